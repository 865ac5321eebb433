package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxTxAttempts = 3

// inTx runs fn in a transaction and retries it when the store reports a
// lost race: a unique violation, a serialization failure or a deadlock.
// Retried attempts observe the winner's committed rows.
func inTx(ctx context.Context, db *gorm.DB, log *zap.Logger, op string, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = db.WithContext(ctx).Transaction(fn)
		if err == nil || !retryable(err) {
			break
		}
		log.Warn("retrying transaction", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
	}
	return classify(err)
}

func retryable(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return strings.Contains(err.Error(), "database is locked")
}

// classify passes domain errors through and reports everything else coming
// out of the store as retryable by the caller.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var validation *ValidationError
	var conflict *ConflictError
	var terminal *TerminalStateError
	switch {
	case errors.As(err, &validation), errors.As(err, &conflict), errors.As(err, &terminal):
		return err
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrReferenced), errors.Is(err, ErrDuplicateName), errors.Is(err, ErrTokenReused),
		errors.Is(err, ErrInvalidCredentials):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
