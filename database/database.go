package database

import (
	"errors"
	"fmt"
	"time"

	config "github.com/anjiri1684/tuition_coupons/configs"
	"github.com/anjiri1684/tuition_coupons/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ConnectDB opens the Postgres store.
func ConnectDB(dsn string, log *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	db, err := Open(postgres.Open(dsn))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("database connected")
	return db, nil
}

// Open applies the shared GORM settings to any dialector.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		DisableNestedTransaction:                 true,
		TranslateError:                           true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Installment{},
		&models.Gateway{},
		&models.StatusLabel{},
		&models.Coupon{},
		&models.CouponInstallment{},
		&models.IdempotencyRecord{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// SeedStaff creates the first staff account from configuration when missing.
func SeedStaff(db *gorm.DB, settings config.Settings, log *zap.Logger) error {
	if settings.StaffEmail == "" || settings.StaffPassword == "" {
		log.Warn("staff account not configured, skipping seed")
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", settings.StaffEmail).Count(&count).Error; err != nil {
		return fmt.Errorf("check staff user: %w", err)
	}
	if count > 0 {
		log.Info("staff user already exists", zap.String("email", settings.StaffEmail))
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(settings.StaffPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash staff password: %w", err)
	}

	staff := models.User{
		FullName: settings.StaffFullName,
		Email:    settings.StaffEmail,
		Password: string(hashedPassword),
		Role:     models.RoleStaff,
		IsActive: true,
	}
	if err := db.Create(&staff).Error; err != nil {
		return fmt.Errorf("seed staff user: %w", err)
	}

	log.Info("staff user seeded", zap.String("email", staff.Email))
	return nil
}

var defaultStatusLabels = []models.StatusLabel{
	{Code: models.CouponActive, Name: "Active", Description: "Issued and awaiting payment"},
	{Code: models.CouponPaid, Name: "Paid", Description: "Settlement confirmed by the gateway"},
	{Code: models.CouponOverdue, Name: "Overdue", Description: "Due date elapsed without settlement"},
	{Code: models.CouponVoided, Name: "Voided", Description: "Cancelled, installments released"},
}

var defaultGateways = []models.Gateway{
	{Name: "Pago Facil", Description: "Cash payment network", IsActive: true},
	{Name: "Macro Click", Description: "Online banking", IsActive: true},
}

// SeedCatalog inserts the status labels and gateways that do not exist yet.
func SeedCatalog(db *gorm.DB, log *zap.Logger) error {
	for _, label := range defaultStatusLabels {
		label := label
		var count int64
		if err := db.Model(&models.StatusLabel{}).Where("code = ?", label.Code).Count(&count).Error; err != nil {
			return fmt.Errorf("check status label: %w", err)
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&label).Error; err != nil {
			return fmt.Errorf("seed status label %s: %w", label.Code, err)
		}
		log.Info("status label seeded", zap.String("code", string(label.Code)))
	}

	for _, gateway := range defaultGateways {
		gateway := gateway
		var count int64
		if err := db.Model(&models.Gateway{}).Where("name = ?", gateway.Name).Count(&count).Error; err != nil {
			return fmt.Errorf("check gateway: %w", err)
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&gateway).Error; err != nil {
			return fmt.Errorf("seed gateway %s: %w", gateway.Name, err)
		}
		log.Info("gateway seeded", zap.String("name", gateway.Name))
	}
	return nil
}
