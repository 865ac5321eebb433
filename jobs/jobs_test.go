package jobs

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/anjiri1684/tuition_coupons/testutil"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type mailbox struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
}

func (m *mailbox) Send(toName, toEmail, subject, html string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	m.bodies = append(m.bodies, html)
}

func (m *mailbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subjects)
}

func TestScheduleRegistersJobs(t *testing.T) {
	db := testutil.NewDB(t)
	coupons := services.NewCouponService(db, zap.NewNop(), services.NewAuditService(db, zap.NewNop()), services.CouponOptions{})
	c := cron.New()
	if err := Schedule(c, coupons, 24*time.Hour, zap.NewNop()); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if got := len(c.Entries()); got != 3 {
		t.Fatalf("entries = %d, want 3", got)
	}
}

func TestJobsRunAgainstStore(t *testing.T) {
	db := testutil.NewDB(t)
	log := zap.NewNop()
	now := time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	mail := &mailbox{}
	coupons := services.NewCouponService(db, log, services.NewAuditService(db, log), services.CouponOptions{
		Validity: 7 * 24 * time.Hour,
		Notifier: mail,
		Clock:    clock,
	})

	student := testutil.CreateStudent(t, db, "Ana <i>Gomez</i>")
	gateway := testutil.CreateGateway(t, db, "Pago Facil", true)
	inst := testutil.CreateInstallment(t, db, student.ID, "2025-03", "50.00", testutil.Date(2025, 3, 1))
	coupon, _, err := coupons.Generate(context.Background(),
		services.Principal{UserID: student.ID, Role: models.RoleStudent, SessionID: uuid.New()},
		services.GenerateInput{InstallmentIDs: []uuid.UUID{inst.ID}, IdempotencyToken: "K1", GatewayID: gateway.ID})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	SendDueReminders(coupons, log)()
	if mail.count() != 0 {
		t.Fatalf("reminder sent a week early")
	}

	now = time.Date(2025, 2, 27, 8, 0, 0, 0, time.UTC)
	SendDueReminders(coupons, log)()
	if mail.count() != 1 {
		t.Fatalf("reminders on the due day = %d, want 1", mail.count())
	}
	if body := mail.bodies[0]; strings.Contains(body, "<i>") || !strings.Contains(body, "Ana &lt;i&gt;Gomez&lt;/i&gt;") {
		t.Fatalf("student name was not escaped: %s", body)
	}

	now = time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	SweepOverdue(coupons, log)()
	var stored models.Coupon
	if err := db.First(&stored, "id = ?", coupon.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != models.CouponOverdue {
		t.Fatalf("status after sweep = %s", stored.Status)
	}

	now = now.Add(48 * time.Hour)
	PurgeIdempotency(coupons, 24*time.Hour, log)()
	var tokens int64
	db.Model(&models.IdempotencyRecord{}).Count(&tokens)
	if tokens != 0 {
		t.Fatalf("tokens after purge = %d", tokens)
	}
}
