package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// SessionService issues bearer tokens backed by a server-side session row.
// A token is only honoured while its session is live and its user active.
type SessionService struct {
	db     *gorm.DB
	log    *zap.Logger
	audit  *AuditService
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionService(db *gorm.DB, log *zap.Logger, audit *AuditService, secret string, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionService{
		db:     db,
		log:    log,
		audit:  audit,
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *SessionService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.Where("LOWER(email) = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, classify(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil || !user.IsActive {
		s.log.Warn("login rejected", zap.String("user_id", user.ID.String()))
		if err := s.audit.Record(ctx, db, AuditEntry{
			Action:     ActionSessionLoginFailed,
			TargetType: "user",
			TargetID:   user.ID.String(),
			Detail:     "rejected login for " + user.Email,
		}); err != nil {
			s.log.Warn("recording failed login", zap.String("user_id", user.ID.String()), zap.Error(err))
		}
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	session := models.Session{UserID: user.ID, ExpiresAt: now.Add(s.ttl), CreatedAt: now}
	principal := Principal{UserID: user.ID, Role: user.Role}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User").Create(&session).Error; err != nil {
			return err
		}
		principal.SessionID = session.ID
		return s.audit.Record(ctx, tx, AuditEntry{
			Actor:      &principal,
			Action:     ActionSessionLogin,
			TargetType: "session",
			TargetID:   session.ID.String(),
			Detail:     user.Email + " signed in",
		})
	})
	if err != nil {
		return nil, classify(err)
	}

	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"sid":  session.ID.String(),
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  session.ExpiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	s.log.Info("session opened", zap.String("user_id", user.ID.String()), zap.String("session_id", session.ID.String()))
	return &LoginResult{Token: signed, ExpiresAt: session.ExpiresAt, User: &user}, nil
}

func (s *SessionService) Logout(ctx context.Context, p Principal) error {
	if err := p.validate(); err != nil {
		return err
	}
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Session{}).
			Where("id = ? AND user_id = ? AND revoked_at IS NULL", p.SessionID, p.UserID).
			Update("revoked_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUnauthorized
		}
		return s.audit.Record(ctx, tx, AuditEntry{
			Actor:      &p,
			Action:     ActionSessionLogout,
			TargetType: "session",
			TargetID:   p.SessionID.String(),
			Detail:     "session closed",
		})
	})
	return classify(err)
}

// Resolve re-verifies a token's session against the store and builds the
// request principal. The role is taken from the user row.
func (s *SessionService) Resolve(ctx context.Context, sessionID, userID uuid.UUID) (Principal, error) {
	var session models.Session
	err := s.db.WithContext(ctx).Preload("User").Where("id = ?", sessionID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Principal{}, ErrUnauthorized
		}
		return Principal{}, classify(err)
	}
	if session.UserID != userID || !session.Live(s.now()) || !session.User.IsActive || !session.User.Role.Valid() {
		return Principal{}, ErrUnauthorized
	}
	return Principal{UserID: session.User.ID, Role: session.User.Role, SessionID: session.ID}, nil
}

// ParseToken verifies the signature and expiry of a bearer token outside the
// HTTP stack, for the realtime handshake.
func (s *SessionService) ParseToken(raw string) (sessionID, userID uuid.UUID, err error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, uuid.Nil, ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, uuid.Nil, ErrUnauthorized
	}
	return ClaimIDs(claims)
}

// ClaimIDs extracts the session and user ids a token names.
func ClaimIDs(claims jwt.MapClaims) (sessionID, userID uuid.UUID, err error) {
	sid, _ := claims["sid"].(string)
	sub, _ := claims["sub"].(string)
	if sessionID, err = uuid.Parse(sid); err != nil {
		return uuid.Nil, uuid.Nil, ErrUnauthorized
	}
	if userID, err = uuid.Parse(sub); err != nil {
		return uuid.Nil, uuid.Nil, ErrUnauthorized
	}
	return sessionID, userID, nil
}
