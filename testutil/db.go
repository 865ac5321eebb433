package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/anjiri1684/tuition_coupons/database"
	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDB opens a migrated SQLite file database. Transactions take the write
// lock on BEGIN so concurrent tests serialize the way row locks do in Postgres.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coupons.db")
	db, err := database.Open(sqlite.Open(path + "?_busy_timeout=10000&_txlock=immediate"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

const Password = "s3cret-pass"

func CreateUser(t *testing.T, db *gorm.DB, name string, role models.Role) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	dni := uuid.NewString()[:8]
	user := models.User{
		FullName:   name,
		Email:      uuid.NewString() + "@example.edu",
		Password:   string(hash),
		Role:       role,
		NationalID: &dni,
		IsActive:   true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func CreateStudent(t *testing.T, db *gorm.DB, name string) models.User {
	return CreateUser(t, db, name, models.RoleStudent)
}

func CreateStaff(t *testing.T, db *gorm.DB) models.User {
	return CreateUser(t, db, "Billing Office", models.RoleStaff)
}

func CreateGateway(t *testing.T, db *gorm.DB, name string, active bool) models.Gateway {
	t.Helper()
	gateway := models.Gateway{Name: name, IsActive: active}
	if err := db.Create(&gateway).Error; err != nil {
		t.Fatalf("create gateway: %v", err)
	}
	return gateway
}

func CreateInstallment(t *testing.T, db *gorm.DB, studentID uuid.UUID, period, amount string, due time.Time) models.Installment {
	t.Helper()
	inst := models.Installment{
		StudentID: studentID,
		Period:    period,
		Amount:    decimal.RequireFromString(amount),
		DueDate:   due,
		Status:    models.InstallmentPending,
	}
	if err := db.Create(&inst).Error; err != nil {
		t.Fatalf("create installment: %v", err)
	}
	return inst
}

func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FixedClock returns a clock frozen at the given instant.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
