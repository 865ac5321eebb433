package services

import (
	"errors"
	"fmt"

	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("not_found")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrTransient          = errors.New("store_unavailable")
	ErrReferenced         = errors.New("referenced")
	ErrDuplicateName      = errors.New("duplicate_name")
	ErrTokenReused        = errors.New("idempotency_token_reused")
)

// ValidationError rejects a request before any store mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError carries the coupon that already covers one of the requested
// installments.
type ConflictError struct {
	Coupon *models.Coupon
}

func (e *ConflictError) Error() string {
	if e.Coupon == nil {
		return "installments already covered by an active coupon"
	}
	return fmt.Sprintf("installments already covered by active coupon %s", e.Coupon.Number)
}

// TerminalStateError rejects a transition out of the coupon's current status.
type TerminalStateError struct {
	CouponID uuid.UUID
	Status   models.CouponStatus
	Override bool
}

func (e *TerminalStateError) Error() string {
	if e.Override {
		return fmt.Sprintf("coupon %s is already %s, override already applied", e.CouponID, e.Status)
	}
	return fmt.Sprintf("coupon %s is already %s", e.CouponID, e.Status)
}
