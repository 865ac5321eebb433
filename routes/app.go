package routes

import (
	"errors"
	"time"

	config "github.com/anjiri1684/tuition_coupons/configs"
	"github.com/anjiri1684/tuition_coupons/handlers"
	"github.com/anjiri1684/tuition_coupons/metrics"
	"github.com/anjiri1684/tuition_coupons/middleware"
	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/anjiri1684/tuition_coupons/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type Deps struct {
	Settings     config.Settings
	Log          *zap.Logger
	Sessions     *services.SessionService
	Coupons      *services.CouponService
	Installments *services.InstallmentService
	Catalog      *services.CatalogService
	Audit        *services.AuditService
	Documents    *services.DocumentService
	Hub          *websocket.Hub
}

// NewApp builds the HTTP surface with every route mounted under /api/v1.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:       "Tuition Coupons",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  60 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			d.Log.Error("request failed",
				zap.Int("status", code),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.Error(err))
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Idempotency-Key, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Content-Disposition",
		MaxAge:        86400,
	}))
	app.Use(recover.New())
	if d.Settings.IsDevelopment() {
		app.Use(logger.New(logger.Config{
			TimeFormat: "2006-01-02 15:04:05",
			TimeZone:   d.Settings.TimeZone,
			Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api/v1")
	guard := []fiber.Handler{middleware.Protected(d.Settings.JWTSecret), middleware.RequireSession(d.Sessions)}

	AuthRoutes(api, handlers.NewAuthHandler(d.Sessions, d.Log), guard)
	InstallmentRoutes(api, handlers.NewInstallmentHandler(d.Installments, d.Log), guard)
	CouponRoutes(api, handlers.NewCouponHandler(d.Coupons, d.Documents, d.Log), guard)
	PaymentRoutes(api, handlers.NewPaymentHandler(d.Coupons, d.Settings.WebhookSecret, d.Log))
	CatalogRoutes(api, handlers.NewCatalogHandler(d.Catalog, d.Log), guard)
	AuditRoutes(api, handlers.NewAuditHandler(d.Audit, d.Log), guard)
	if d.Hub != nil {
		RealtimeRoutes(api, handlers.NewRealtimeHandler(d.Hub, d.Sessions, d.Log))
	}
	return app
}
