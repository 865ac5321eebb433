package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/anjiri1684/tuition_coupons/configs"
	"github.com/anjiri1684/tuition_coupons/database"
	"github.com/anjiri1684/tuition_coupons/jobs"
	"github.com/anjiri1684/tuition_coupons/logger"
	"github.com/anjiri1684/tuition_coupons/notifications"
	"github.com/anjiri1684/tuition_coupons/routes"
	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/anjiri1684/tuition_coupons/websocket"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	settings := config.Load()
	zl, err := logger.New(settings.IsDevelopment())
	if err != nil {
		log.Fatalf("🔥 Failed to build logger: %v", err)
	}
	defer zl.Sync()

	if settings.JWTSecret == "" {
		zl.Fatal("JWT_SECRET is not set")
	}

	db, err := database.ConnectDB(settings.DatabaseURL, zl)
	if err != nil {
		zl.Fatal("database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zl.Fatal("migration failed", zap.Error(err))
	}
	if err := database.SeedStaff(db, settings, zl); err != nil {
		zl.Fatal("staff seed failed", zap.Error(err))
	}
	if err := database.SeedCatalog(db, zl); err != nil {
		zl.Fatal("catalog seed failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(zl.Named("realtime"))
	go hub.Run(ctx)

	mailer := notifications.NewBrevoService(settings.BrevoAPIKey, settings.EmailSender, settings.EmailSenderName, zl.Named("email"))
	audit := services.NewAuditService(db, zl)
	coupons := services.NewCouponService(db, zl.Named("coupons"), audit, services.CouponOptions{
		Validity:  settings.CouponValidity,
		Publisher: hub,
		Notifier:  mailer,
	})

	var store services.DocumentStore
	if settings.CloudinaryURL != "" {
		cld, err := services.NewCloudinaryStore(settings.CloudinaryURL)
		if err != nil {
			zl.Warn("cloudinary not available, documents will not be stored", zap.Error(err))
		} else {
			store = cld
		}
	}
	if settings.WebhookSecret == "" {
		zl.Warn("WEBHOOK_SECRET is not set, settlement webhooks will be rejected")
	} else {
		zl.Info("settlement webhook enabled", zap.String("secret", logger.MaskToken(settings.WebhookSecret)))
	}

	c := cron.New()
	if err := jobs.Schedule(c, coupons, settings.IdempotencyRetention, zl.Named("jobs")); err != nil {
		zl.Fatal("failed to schedule jobs", zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	app := routes.NewApp(routes.Deps{
		Settings:     settings,
		Log:          zl,
		Sessions:     services.NewSessionService(db, zl.Named("sessions"), audit, settings.JWTSecret, settings.SessionTTL),
		Coupons:      coupons,
		Installments: services.NewInstallmentService(db, zl.Named("installments"), audit),
		Catalog:      services.NewCatalogService(db, zl.Named("catalog"), audit),
		Audit:        audit,
		Documents:    services.NewDocumentService(db, zl.Named("documents"), coupons, services.ChromeRenderer{}, store),
		Hub:          hub,
	})

	go func() {
		<-ctx.Done()
		zl.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zl.Error("shutdown failed", zap.Error(err))
		}
	}()

	zl.Info("server is running", zap.String("port", settings.Port))
	if err := app.Listen(":" + settings.Port); err != nil {
		zl.Fatal("server failed to start", zap.Error(err))
	}
}
