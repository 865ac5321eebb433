package services

import (
	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/google/uuid"
)

// Principal is the caller identity resolved once per request from a verified
// session. Role comes from the user row, never from token claims.
type Principal struct {
	UserID    uuid.UUID
	Role      models.Role
	SessionID uuid.UUID
}

func (p Principal) IsStaff() bool {
	return p.Role == models.RoleStaff
}

func (p Principal) validate() error {
	if p.UserID == uuid.Nil || !p.Role.Valid() {
		return ErrUnauthorized
	}
	return nil
}

func requireStaff(p Principal) error {
	if err := p.validate(); err != nil {
		return err
	}
	if !p.IsStaff() {
		return ErrForbidden
	}
	return nil
}

// studentScope resolves which student a read or write targets. Students may
// only name themselves; other ids read as not found.
func studentScope(p Principal, requested uuid.UUID) (uuid.UUID, error) {
	if err := p.validate(); err != nil {
		return uuid.Nil, err
	}
	if p.IsStaff() {
		if requested == uuid.Nil {
			return uuid.Nil, invalid("student_id", "required for staff callers")
		}
		return requested, nil
	}
	if requested != uuid.Nil && requested != p.UserID {
		return uuid.Nil, ErrNotFound
	}
	return p.UserID, nil
}

func canSee(p Principal, ownerID uuid.UUID) bool {
	return p.IsStaff() || p.UserID == ownerID
}
