package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/anjiri1684/tuition_coupons/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var fixtureNow = time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []CouponEvent
}

func (p *recordingPublisher) Publish(e CouponEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type sentMail struct {
	To      string
	Subject string
	HTML    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *recordingNotifier) Send(toName, toEmail, subject, html string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{To: toEmail, Subject: subject, HTML: html})
}

func (n *recordingNotifier) lastHTML() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return ""
	}
	return n.sent[len(n.sent)-1].HTML
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fixture struct {
	db           *gorm.DB
	now          time.Time
	audit        *AuditService
	coupons      *CouponService
	installments *InstallmentService
	catalog      *CatalogService
	events       *recordingPublisher
	mail         *recordingNotifier

	student models.User
	staff   models.User
	gateway models.Gateway
	// Installments #101 and #102 of the student, $50 each.
	inst101 models.Installment
	inst102 models.Installment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		db:     db,
		now:    fixtureNow,
		events: &recordingPublisher{},
		mail:   &recordingNotifier{},
	}
	log := zap.NewNop()
	f.audit = NewAuditService(db, log)
	f.audit.now = f.clock
	f.coupons = NewCouponService(db, log, f.audit, CouponOptions{
		Validity:  7 * 24 * time.Hour,
		Publisher: f.events,
		Notifier:  f.mail,
		Clock:     f.clock,
	})
	f.installments = NewInstallmentService(db, log, f.audit)
	f.installments.now = f.clock
	f.catalog = NewCatalogService(db, log, f.audit)

	f.student = testutil.CreateStudent(t, db, "Ana Gomez")
	f.staff = testutil.CreateStaff(t, db)
	f.gateway = testutil.CreateGateway(t, db, "Pago Facil", true)
	f.inst101 = testutil.CreateInstallment(t, db, f.student.ID, "2025-03", "50.00", testutil.Date(2025, 3, 1))
	f.inst102 = testutil.CreateInstallment(t, db, f.student.ID, "2025-04", "50.00", testutil.Date(2025, 4, 1))
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) asStudent() Principal {
	return Principal{UserID: f.student.ID, Role: models.RoleStudent, SessionID: uuid.New()}
}

func (f *fixture) asStaff() Principal {
	return Principal{UserID: f.staff.ID, Role: models.RoleStaff, SessionID: uuid.New()}
}

func as(u models.User) Principal {
	return Principal{UserID: u.ID, Role: u.Role, SessionID: uuid.New()}
}

func (f *fixture) generate(t *testing.T, token string, ids ...uuid.UUID) *models.Coupon {
	t.Helper()
	coupon, outcome, err := f.coupons.Generate(context.Background(), f.asStudent(), GenerateInput{
		InstallmentIDs:   ids,
		IdempotencyToken: token,
		GatewayID:        f.gateway.ID,
	})
	if err != nil {
		t.Fatalf("generate %s: %v", token, err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("generate %s: outcome %s, want created", token, outcome)
	}
	return coupon
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func (f *fixture) reloadInstallment(t *testing.T, id uuid.UUID) models.Installment {
	t.Helper()
	var inst models.Installment
	if err := f.db.First(&inst, "id = ?", id).Error; err != nil {
		t.Fatalf("reload installment: %v", err)
	}
	return inst
}

func (f *fixture) links(t *testing.T, couponID uuid.UUID) []models.CouponInstallment {
	t.Helper()
	var links []models.CouponInstallment
	if err := f.db.Where("coupon_id = ?", couponID).Order("position").Find(&links).Error; err != nil {
		t.Fatalf("links: %v", err)
	}
	return links
}

func (f *fixture) auditActions(t *testing.T, targetID uuid.UUID) []string {
	t.Helper()
	var actions []string
	if err := f.db.Model(&models.AuditLog{}).Where("target_id = ?", targetID.String()).Order("created_at, id").Pluck("action", &actions).Error; err != nil {
		t.Fatalf("audit actions: %v", err)
	}
	return actions
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
