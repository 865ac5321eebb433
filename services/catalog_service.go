package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type GatewayInput struct {
	Name        string
	Description string
	IsActive    *bool
}

type StatusLabelInput struct {
	Code        models.CouponStatus
	Name        string
	Description string
}

// CatalogService manages the payment gateways and coupon status labels.
// Anyone signed in may read them; only staff may change them.
type CatalogService struct {
	db    *gorm.DB
	log   *zap.Logger
	audit *AuditService
}

func NewCatalogService(db *gorm.DB, log *zap.Logger, audit *AuditService) *CatalogService {
	return &CatalogService{db: db, log: log, audit: audit}
}

func (s *CatalogService) ListGateways(ctx context.Context, p Principal) ([]models.Gateway, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Order("name ASC")
	if !p.IsStaff() {
		q = q.Where("is_active = ?", true)
	}
	var gateways []models.Gateway
	if err := q.Find(&gateways).Error; err != nil {
		return nil, classify(err)
	}
	return gateways, nil
}

func (s *CatalogService) GetGateway(ctx context.Context, p Principal, id uuid.UUID) (*models.Gateway, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	var gateway models.Gateway
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&gateway).Error; err != nil {
		return nil, classify(err)
	}
	return &gateway, nil
}

func (s *CatalogService) CreateGateway(ctx context.Context, p Principal, in GatewayInput) (*models.Gateway, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	gateway := models.Gateway{Name: name, Description: strings.TrimSpace(in.Description), IsActive: true}
	if in.IsActive != nil {
		gateway.IsActive = *in.IsActive
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&gateway).Error; err != nil {
			return err
		}
		return s.recordChange(ctx, tx, p, "gateway", gateway.ID, "created gateway "+gateway.Name)
	})
	if err != nil {
		return nil, catalogError(err)
	}
	return &gateway, nil
}

func (s *CatalogService) UpdateGateway(ctx context.Context, p Principal, id uuid.UUID, in GatewayInput) (*models.Gateway, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	var gateway models.Gateway
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&gateway).Error; err != nil {
			return err
		}
		gateway.Name = name
		gateway.Description = strings.TrimSpace(in.Description)
		if in.IsActive != nil {
			gateway.IsActive = *in.IsActive
		}
		if err := tx.Save(&gateway).Error; err != nil {
			return err
		}
		return s.recordChange(ctx, tx, p, "gateway", gateway.ID, "updated gateway "+gateway.Name)
	})
	if err != nil {
		return nil, catalogError(err)
	}
	return &gateway, nil
}

// DeleteGateway refuses to remove a gateway any coupon was issued through.
func (s *CatalogService) DeleteGateway(ctx context.Context, p Principal, id uuid.UUID) error {
	if err := requireStaff(p); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var gateway models.Gateway
		if err := tx.Where("id = ?", id).First(&gateway).Error; err != nil {
			return err
		}
		var uses int64
		if err := tx.Model(&models.Coupon{}).Where("gateway_id = ?", id).Count(&uses).Error; err != nil {
			return err
		}
		if uses > 0 {
			return ErrReferenced
		}
		if err := tx.Delete(&gateway).Error; err != nil {
			return err
		}
		return s.recordChange(ctx, tx, p, "gateway", gateway.ID, "deleted gateway "+gateway.Name)
	})
	return catalogError(err)
}

func (s *CatalogService) ListStatusLabels(ctx context.Context, p Principal) ([]models.StatusLabel, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	var labels []models.StatusLabel
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&labels).Error; err != nil {
		return nil, classify(err)
	}
	return labels, nil
}

func (s *CatalogService) GetStatusLabel(ctx context.Context, p Principal, id uuid.UUID) (*models.StatusLabel, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	var label models.StatusLabel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&label).Error; err != nil {
		return nil, classify(err)
	}
	return &label, nil
}

func (s *CatalogService) CreateStatusLabel(ctx context.Context, p Principal, in StatusLabelInput) (*models.StatusLabel, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	label, err := statusLabelFrom(in)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(label).Error; err != nil {
			return err
		}
		return s.recordChange(ctx, tx, p, "coupon_status", label.ID, "created status label "+label.Name)
	})
	if err != nil {
		return nil, catalogError(err)
	}
	return label, nil
}

func (s *CatalogService) UpdateStatusLabel(ctx context.Context, p Principal, id uuid.UUID, in StatusLabelInput) (*models.StatusLabel, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	next, err := statusLabelFrom(in)
	if err != nil {
		return nil, err
	}
	var label models.StatusLabel
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&label).Error; err != nil {
			return err
		}
		if label.Code != next.Code {
			inUse, err := statusInUse(tx, label.Code)
			if err != nil {
				return err
			}
			if inUse {
				return ErrReferenced
			}
		}
		label.Code = next.Code
		label.Name = next.Name
		label.Description = next.Description
		if err := tx.Save(&label).Error; err != nil {
			return err
		}
		return s.recordChange(ctx, tx, p, "coupon_status", label.ID, "updated status label "+label.Name)
	})
	if err != nil {
		return nil, catalogError(err)
	}
	return &label, nil
}

// DeleteStatusLabel refuses while any coupon is in the label's status.
func (s *CatalogService) DeleteStatusLabel(ctx context.Context, p Principal, id uuid.UUID) error {
	if err := requireStaff(p); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var label models.StatusLabel
		if err := tx.Where("id = ?", id).First(&label).Error; err != nil {
			return err
		}
		inUse, err := statusInUse(tx, label.Code)
		if err != nil {
			return err
		}
		if inUse {
			return ErrReferenced
		}
		if err := tx.Delete(&label).Error; err != nil {
			return err
		}
		return s.recordChange(ctx, tx, p, "coupon_status", label.ID, "deleted status label "+label.Name)
	})
	return catalogError(err)
}

func statusLabelFrom(in StatusLabelInput) (*models.StatusLabel, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if !in.Code.Valid() {
		return nil, invalid("code", fmt.Sprintf("must be one of %v", models.CouponStatuses))
	}
	return &models.StatusLabel{Code: in.Code, Name: name, Description: strings.TrimSpace(in.Description)}, nil
}

func statusInUse(tx *gorm.DB, code models.CouponStatus) (bool, error) {
	var count int64
	err := tx.Model(&models.Coupon{}).Where("status = ?", code).Count(&count).Error
	return count > 0, err
}

func (s *CatalogService) recordChange(ctx context.Context, tx *gorm.DB, p Principal, targetType string, id uuid.UUID, detail string) error {
	s.log.Info("catalog changed", zap.String("target_type", targetType), zap.String("target_id", id.String()), zap.String("actor_id", p.UserID.String()))
	return s.audit.Record(ctx, tx, AuditEntry{
		Actor:      &p,
		Action:     ActionCatalogChange,
		TargetType: targetType,
		TargetID:   id.String(),
		Detail:     detail,
	})
}

func catalogError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateName
	}
	return classify(err)
}
