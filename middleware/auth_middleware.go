package middleware

import (
	"errors"

	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
)

const principalKey = "principal"

// Protected verifies the bearer token signature and expiry.
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusUnauthorized).
			JSON(fiber.Map{"status": "error", "code": "unauthorized", "message": "Missing or malformed JWT"})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "code": "unauthorized", "message": "Invalid or expired JWT"})
}

// RequireSession re-checks the token's session on every request and stores
// the resolved principal for handlers. It must run after Protected.
func RequireSession(sessions *services.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("user").(*jwt.Token)
		if !ok {
			return unauthorized(c)
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return unauthorized(c)
		}
		sessionID, userID, err := services.ClaimIDs(claims)
		if err != nil {
			return unauthorized(c)
		}
		principal, err := sessions.Resolve(c.UserContext(), sessionID, userID)
		if err != nil {
			if errors.Is(err, services.ErrTransient) {
				return c.Status(fiber.StatusServiceUnavailable).
					JSON(fiber.Map{"status": "error", "code": "store_unavailable", "message": "Please retry shortly"})
			}
			return unauthorized(c)
		}
		c.Locals(principalKey, principal)
		return c.Next()
	}
}

func StaffRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			return unauthorized(c)
		}
		if !principal.IsStaff() {
			return c.Status(fiber.StatusForbidden).
				JSON(fiber.Map{"status": "error", "code": "forbidden", "message": "Forbidden: staff access required"})
		}
		return c.Next()
	}
}

func CurrentPrincipal(c *fiber.Ctx) (services.Principal, bool) {
	principal, ok := c.Locals(principalKey).(services.Principal)
	return principal, ok
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "code": "unauthorized", "message": "Session is not valid"})
}
