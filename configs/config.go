package config

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var loadEnv sync.Once

// Config returns a single environment value, loading .env on first use.
func Config(key string) string {
	loadEnv.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: .env file not found, reading from system environment variables")
		}
	})

	return os.Getenv(key)
}

type Settings struct {
	AppEnv   string
	Port     string
	TimeZone string

	DatabaseURL string

	JWTSecret  string
	SessionTTL time.Duration

	CouponValidity       time.Duration
	IdempotencyRetention time.Duration

	StaffEmail    string
	StaffPassword string
	StaffFullName string

	WebhookSecret string
	CloudinaryURL string

	BrevoAPIKey     string
	EmailSender     string
	EmailSenderName string
}

func Load() Settings {
	return Settings{
		AppEnv:   withDefault(Config("APP_ENV"), "production"),
		Port:     withDefault(Config("PORT"), "8080"),
		TimeZone: withDefault(Config("TIMEZONE"), "America/Argentina/Buenos_Aires"),

		DatabaseURL: Config("DATABASE_URL"),

		JWTSecret:  Config("JWT_SECRET"),
		SessionTTL: durationOr(Config("SESSION_TTL"), 12*time.Hour),

		CouponValidity:       time.Duration(intOr(Config("COUPON_VALIDITY_DAYS"), 7)) * 24 * time.Hour,
		IdempotencyRetention: durationOr(Config("IDEMPOTENCY_RETENTION"), 24*time.Hour),

		StaffEmail:    Config("STAFF_EMAIL"),
		StaffPassword: Config("STAFF_PASSWORD"),
		StaffFullName: withDefault(Config("STAFF_FULL_NAME"), "Billing Office"),

		WebhookSecret: Config("WEBHOOK_SECRET"),
		CloudinaryURL: Config("CLOUDINARY_URL"),

		BrevoAPIKey:     Config("BREVO_API_KEY"),
		EmailSender:     Config("EMAIL_SENDER"),
		EmailSenderName: Config("EMAIL_SENDER_NAME"),
	}
}

func (s Settings) IsDevelopment() bool {
	return s.AppEnv == "development"
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func durationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid duration %q, using %s", value, fallback)
		return fallback
	}
	return d
}

func intOr(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid integer %q, using %d", value, fallback)
		return fallback
	}
	return n
}
