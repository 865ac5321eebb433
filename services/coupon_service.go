package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anjiri1684/tuition_coupons/metrics"
	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/anjiri1684/tuition_coupons/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GenerateOutcome string

const (
	OutcomeCreated  GenerateOutcome = "created"
	OutcomeReplayed GenerateOutcome = "replayed"
)

type GenerateInput struct {
	// StudentID is only honoured for staff callers generating on a student's behalf.
	StudentID        uuid.UUID
	InstallmentIDs   []uuid.UUID
	IdempotencyToken string
	GatewayID        uuid.UUID
}

type CouponOptions struct {
	Validity  time.Duration
	Publisher Publisher
	Notifier  Notifier
	Clock     func() time.Time
}

type CouponService struct {
	db       *gorm.DB
	log      *zap.Logger
	audit    *AuditService
	events   Publisher
	notifier Notifier
	validity time.Duration
	now      func() time.Time
}

func NewCouponService(db *gorm.DB, log *zap.Logger, audit *AuditService, opts CouponOptions) *CouponService {
	s := &CouponService{
		db:       db,
		log:      log,
		audit:    audit,
		events:   opts.Publisher,
		notifier: opts.Notifier,
		validity: opts.Validity,
		now:      opts.Clock,
	}
	if s.events == nil {
		s.events = noopPublisher{}
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	if s.validity <= 0 {
		s.validity = 7 * 24 * time.Hour
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Generate creates one coupon for the installments, or replays the coupon an
// earlier call with the same token produced. The token check, the coverage
// check and the inserts form a single transaction.
func (s *CouponService) Generate(ctx context.Context, p Principal, in GenerateInput) (*models.Coupon, GenerateOutcome, error) {
	studentID, ids, err := s.validateGenerate(p, in)
	if err != nil {
		metrics.CouponGenerations.WithLabelValues("rejected").Inc()
		return nil, "", err
	}
	token := strings.TrimSpace(in.IdempotencyToken)

	var coupon *models.Coupon
	var outcome GenerateOutcome
	err = inTx(ctx, s.db, s.log, "coupon.generate", func(tx *gorm.DB) error {
		var txErr error
		coupon, outcome, txErr = s.generateTx(ctx, tx, p, studentID, ids, token, in.GatewayID)
		return txErr
	})
	if err != nil {
		var conflict *ConflictError
		switch {
		case errors.As(err, &conflict):
			metrics.CouponGenerations.WithLabelValues("conflict").Inc()
			s.decorate(conflict.Coupon)
		case errors.Is(err, ErrTransient):
			metrics.CouponGenerations.WithLabelValues("error").Inc()
			s.log.Error("coupon generation failed", zap.String("student_id", studentID.String()), zap.Error(err))
		default:
			metrics.CouponGenerations.WithLabelValues("rejected").Inc()
		}
		return nil, "", err
	}

	metrics.CouponGenerations.WithLabelValues(string(outcome)).Inc()
	s.decorate(coupon)
	if outcome == OutcomeCreated {
		metrics.CouponTransitions.WithLabelValues("", string(models.CouponActive), "generate").Inc()
		s.log.Info("coupon generated",
			zap.String("coupon_id", coupon.ID.String()),
			zap.String("student_id", studentID.String()),
			zap.String("amount_total", coupon.AmountTotal.StringFixed(2)),
			zap.Int("installments", len(coupon.Installments)))
		s.events.Publish(CouponEvent{Type: EventCouponCreated, Coupon: coupon})
	} else {
		s.log.Info("coupon generation replayed", zap.String("coupon_id", coupon.ID.String()))
	}
	return coupon, outcome, nil
}

func (s *CouponService) validateGenerate(p Principal, in GenerateInput) (uuid.UUID, []uuid.UUID, error) {
	if err := p.validate(); err != nil {
		return uuid.Nil, nil, err
	}
	studentID := p.UserID
	if p.IsStaff() {
		if in.StudentID == uuid.Nil {
			return uuid.Nil, nil, invalid("student_id", "required for staff callers")
		}
		studentID = in.StudentID
	} else if in.StudentID != uuid.Nil && in.StudentID != p.UserID {
		return uuid.Nil, nil, ErrNotFound
	}

	if len(in.InstallmentIDs) == 0 {
		return uuid.Nil, nil, invalid("installment_ids", "at least one installment is required")
	}
	seen := make(map[uuid.UUID]bool, len(in.InstallmentIDs))
	ids := make([]uuid.UUID, 0, len(in.InstallmentIDs))
	for _, id := range in.InstallmentIDs {
		if id == uuid.Nil {
			return uuid.Nil, nil, invalid("installment_ids", "contains an empty id")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if strings.TrimSpace(in.IdempotencyToken) == "" {
		return uuid.Nil, nil, invalid("idempotency_token", "is required")
	}
	if len(in.IdempotencyToken) > 255 {
		return uuid.Nil, nil, invalid("idempotency_token", "must be at most 255 characters")
	}
	if in.GatewayID == uuid.Nil {
		return uuid.Nil, nil, invalid("gateway_id", "is required")
	}
	return studentID, ids, nil
}

func (s *CouponService) generateTx(ctx context.Context, tx *gorm.DB, p Principal, studentID uuid.UUID, ids []uuid.UUID, token string, gatewayID uuid.UUID) (*models.Coupon, GenerateOutcome, error) {
	now := s.now()
	couponID := uuid.New()

	// A concurrent transaction holding the same token blocks this insert until
	// it finishes; afterwards the row is either visible (replay) or gone.
	record := models.IdempotencyRecord{Token: token, StudentID: studentID, CouponID: couponID, CreatedAt: now}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if res.Error != nil {
		return nil, "", res.Error
	}
	if res.RowsAffected == 0 {
		var existing models.IdempotencyRecord
		if err := tx.Where("token = ?", token).First(&existing).Error; err != nil {
			return nil, "", err
		}
		if existing.StudentID != studentID {
			return nil, "", ErrTokenReused
		}
		coupon, err := loadCoupon(tx, existing.CouponID)
		if err != nil {
			return nil, "", err
		}
		return coupon, OutcomeReplayed, nil
	}

	var gateway models.Gateway
	if err := tx.Where("id = ?", gatewayID).First(&gateway).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", invalid("gateway_id", "unknown gateway")
		}
		return nil, "", err
	}
	if !gateway.IsActive {
		return nil, "", invalid("gateway_id", "gateway is not active")
	}

	installments, err := lockInstallments(tx, ids)
	if err != nil {
		return nil, "", err
	}
	byID := make(map[uuid.UUID]models.Installment, len(installments))
	for _, inst := range installments {
		byID[inst.ID] = inst
	}
	total := decimal.Zero
	for _, id := range ids {
		inst, ok := byID[id]
		if !ok || inst.StudentID != studentID {
			return nil, "", invalid("installment_ids", fmt.Sprintf("unknown installment %s", id))
		}
		if inst.Status == models.InstallmentPaid {
			return nil, "", invalid("installment_ids", fmt.Sprintf("installment %s is already paid", id))
		}
		total = total.Add(inst.Amount)
	}

	if existing, err := coveringCoupon(tx, ids, uuid.Nil); err != nil {
		return nil, "", err
	} else if existing != nil {
		return nil, "", &ConflictError{Coupon: existing}
	}

	number, err := utils.GenerateUniqueCouponNumber(tx)
	if err != nil {
		return nil, "", err
	}
	coupon := models.Coupon{
		ID:          couponID,
		Number:      number,
		StudentID:   studentID,
		GatewayID:   gateway.ID,
		AmountTotal: total,
		Status:      models.CouponActive,
		DueDate:     s.dueDate(now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Omit(clause.Associations).Create(&coupon).Error; err != nil {
		return nil, "", err
	}

	links := make([]models.CouponInstallment, 0, len(ids))
	for i, id := range ids {
		links = append(links, models.CouponInstallment{CouponID: coupon.ID, InstallmentID: id, Position: i})
	}
	// The partial unique index rejects a racing coverage; inTx retries and the
	// retry reports the winner as a conflict.
	if err := tx.Omit(clause.Associations).Create(&links).Error; err != nil {
		return nil, "", err
	}

	if err := s.audit.Record(ctx, tx, AuditEntry{
		Actor:      &p,
		Action:     ActionCouponGenerate,
		TargetType: "coupon",
		TargetID:   coupon.ID.String(),
		Detail:     fmt.Sprintf("coupon %s generated for %d installment(s), total %s", coupon.Number, len(ids), total.StringFixed(2)),
		Metadata: map[string]any{
			"student_id":      studentID.String(),
			"installment_ids": uuidStrings(ids),
			"gateway_id":      gateway.ID.String(),
			"amount_total":    total.StringFixed(2),
		},
	}); err != nil {
		return nil, "", err
	}

	created, err := loadCoupon(tx, coupon.ID)
	if err != nil {
		return nil, "", err
	}
	return created, OutcomeCreated, nil
}

// dueDate is the last calendar day the coupon can be paid.
func (s *CouponService) dueDate(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return day.Add(s.validity)
}

func (s *CouponService) Get(ctx context.Context, p Principal, couponID uuid.UUID) (*models.Coupon, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	coupon, err := loadCoupon(s.db.WithContext(ctx), couponID)
	if err != nil {
		return nil, classify(err)
	}
	if !canSee(p, coupon.StudentID) {
		return nil, ErrNotFound
	}
	s.decorate(coupon)
	return coupon, nil
}

type CouponFilter struct {
	Scope     string
	StudentID uuid.UUID
	Status    models.CouponStatus
	Search    string
	Limit     int
	Offset    int
}

const (
	ScopeOwn = "own"
	ScopeAll = "all"
)

// List returns coupon history. Students always see their own coupons only.
func (s *CouponService) List(ctx context.Context, p Principal, filter CouponFilter) ([]models.Coupon, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("status", "unknown coupon status")
	}

	q := s.db.WithContext(ctx).Model(&models.Coupon{})
	switch {
	case !p.IsStaff():
		if filter.Scope == ScopeAll {
			return nil, ErrForbidden
		}
		if filter.StudentID != uuid.Nil && filter.StudentID != p.UserID {
			return nil, ErrNotFound
		}
		q = q.Where("coupons.student_id = ?", p.UserID)
	case filter.Scope == ScopeOwn:
		q = q.Where("coupons.student_id = ?", p.UserID)
	case filter.StudentID != uuid.Nil:
		q = q.Where("coupons.student_id = ?", filter.StudentID)
	}

	if filter.Status != "" {
		q = s.whereEffectiveStatus(q, filter.Status)
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" && p.IsStaff() {
		like := "%" + term + "%"
		q = q.Where("coupons.number LIKE ? OR coupons.student_id IN (?)", like,
			s.db.Model(&models.User{}).Select("id").
				Where("LOWER(full_name) LIKE ? OR LOWER(national_id) LIKE ? OR LOWER(file_number) LIKE ?", like, like, like))
	}

	var coupons []models.Coupon
	err := q.Scopes(withCouponDetails).
		Order("coupons.created_at DESC, coupons.id").
		Limit(pageSize(filter.Limit)).
		Offset(max(filter.Offset, 0)).
		Find(&coupons).Error
	if err != nil {
		return nil, classify(err)
	}
	for i := range coupons {
		s.decorate(&coupons[i])
	}
	return coupons, nil
}

func (s *CouponService) whereEffectiveStatus(q *gorm.DB, status models.CouponStatus) *gorm.DB {
	cutoff := s.now().Add(-24 * time.Hour)
	switch status {
	case models.CouponActive:
		return q.Where("coupons.status = ? AND coupons.due_date > ?", models.CouponActive, cutoff)
	case models.CouponOverdue:
		return q.Where("coupons.status = ? OR (coupons.status = ? AND coupons.due_date <= ?)",
			models.CouponOverdue, models.CouponActive, cutoff)
	}
	return q.Where("coupons.status = ?", status)
}

type CouponStats struct {
	Total       int64           `json:"total"`
	Active      int64           `json:"active"`
	Paid        int64           `json:"paid"`
	Overdue     int64           `json:"overdue"`
	Voided      int64           `json:"voided"`
	Outstanding decimal.Decimal `json:"outstanding_amount"`
}

func (s *CouponService) Stats(ctx context.Context, p Principal) (*CouponStats, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	stats := &CouponStats{}
	counts := map[models.CouponStatus]*int64{
		models.CouponActive:  &stats.Active,
		models.CouponPaid:    &stats.Paid,
		models.CouponOverdue: &stats.Overdue,
		models.CouponVoided:  &stats.Voided,
	}
	for status, dst := range counts {
		if err := s.whereEffectiveStatus(db.Model(&models.Coupon{}), status).Count(dst).Error; err != nil {
			return nil, classify(err)
		}
		stats.Total += *dst
	}

	var outstanding decimal.NullDecimal
	err := db.Model(&models.Coupon{}).
		Where("status IN ?", []models.CouponStatus{models.CouponActive, models.CouponOverdue}).
		Select("SUM(amount_total)").
		Row().Scan(&outstanding)
	if err != nil {
		return nil, classify(err)
	}
	stats.Outstanding = decimal.Zero
	if outstanding.Valid {
		stats.Outstanding = outstanding.Decimal
	}
	return stats, nil
}

// decorate applies derived state for presentation: overdue for elapsed active
// coupons and installments.
func (s *CouponService) decorate(c *models.Coupon) {
	if c == nil {
		return
	}
	now := s.now()
	c.Status = c.EffectiveStatus(now)
	for i := range c.Installments {
		inst := &c.Installments[i].Installment
		inst.Status = inst.EffectiveStatus(now)
	}
}

func withCouponDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Gateway").
		Preload("Student").
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("coupon_installments.position ASC")
		}).
		Preload("Installments.Installment")
}

func loadCoupon(tx *gorm.DB, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := tx.Scopes(withCouponDetails).Where("coupons.id = ?", id).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// lockCoupon reads the coupon row FOR UPDATE.
func lockCoupon(tx *gorm.DB, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// lockInstallments reads installments FOR UPDATE in id order so overlapping
// requests always acquire locks in the same sequence.
func lockInstallments(tx *gorm.DB, ids []uuid.UUID) ([]models.Installment, error) {
	var installments []models.Installment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&installments).Error
	return installments, err
}

// coveringCoupon returns a coupon other than except that currently holds
// coverage of any of the installments.
func coveringCoupon(tx *gorm.DB, installmentIDs []uuid.UUID, except uuid.UUID) (*models.Coupon, error) {
	var links []models.CouponInstallment
	q := tx.Where("installment_id IN ? AND released_at IS NULL", installmentIDs)
	if except != uuid.Nil {
		q = q.Where("coupon_id <> ?", except)
	}
	if err := q.Limit(1).Find(&links).Error; err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}
	return loadCoupon(tx, links[0].CouponID)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// DueWithin lists active coupons whose last payable day falls in the next
// window, with their students loaded, for reminders.
func (s *CouponService) DueWithin(ctx context.Context, window time.Duration) ([]models.Coupon, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var coupons []models.Coupon
	err := s.db.WithContext(ctx).
		Scopes(withCouponDetails).
		Where("coupons.status = ? AND coupons.due_date >= ? AND coupons.due_date < ?", models.CouponActive, today, today.Add(window)).
		Order("coupons.due_date ASC").
		Find(&coupons).Error
	if err != nil {
		return nil, classify(err)
	}
	return coupons, nil
}

// Notify sends an e-mail through the configured notifier.
func (s *CouponService) Notify(toName, toEmail, subject, html string) {
	s.notifier.Send(toName, toEmail, subject, html)
}
