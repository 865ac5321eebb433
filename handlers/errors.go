package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/anjiri1684/tuition_coupons/middleware"
	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func errorBody(code, message string) fiber.Map {
	return fiber.Map{"status": "error", "code": code, "message": message}
}

// respondError maps service errors to the HTTP error contract.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var validation *services.ValidationError
	var conflict *services.ConflictError
	var terminal *services.TerminalStateError

	switch {
	case errors.As(err, &validation):
		body := errorBody("validation_error", validation.Error())
		body["field"] = validation.Field
		return c.Status(fiber.StatusBadRequest).JSON(body)
	case errors.As(err, &conflict):
		body := errorBody("conflict", conflict.Error())
		body["coupon"] = conflict.Coupon
		return c.Status(fiber.StatusConflict).JSON(body)
	case errors.As(err, &terminal):
		body := errorBody("terminal_state", terminal.Error())
		body["current_status"] = terminal.Status
		return c.Status(fiber.StatusConflict).JSON(body)
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody("not_found", "Resource not found"))
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(errorBody("forbidden", "You are not allowed to perform this action"))
	case errors.Is(err, services.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody("unauthorized", "Session is not valid"))
	case errors.Is(err, services.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody("invalid_credentials", "Invalid email or password"))
	case errors.Is(err, services.ErrReferenced):
		return c.Status(fiber.StatusConflict).JSON(errorBody("referenced", "The entry is still referenced by coupons"))
	case errors.Is(err, services.ErrDuplicateName):
		return c.Status(fiber.StatusConflict).JSON(errorBody("duplicate_name", "An entry with that name already exists"))
	case errors.Is(err, services.ErrTokenReused):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("idempotency_token_reused", "The idempotency token belongs to another request"))
	case errors.Is(err, services.ErrTransient):
		log.Error("store unavailable", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorBody("store_unavailable", "Please retry shortly"))
	}
	log.Error("unhandled error", zap.String("path", c.Path()), zap.String("method", c.Method()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody("internal", "Something went wrong"))
}

// parseBody decodes and validates a request body into req.
func parseBody(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return &services.ValidationError{Field: "body", Message: "cannot parse JSON"}
	}
	return validateStruct(req)
}

func validateStruct(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &services.ValidationError{Field: fe.Field(), Message: describe(fe)}
		}
		return &services.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid", "uuid4":
		return "must be a valid id"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "datetime":
		return fmt.Sprintf("must be a date formatted as %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid"
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, &services.ValidationError{Field: name, Message: "must be a valid id"}
	}
	return id, nil
}

func principal(c *fiber.Ctx) (services.Principal, error) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return services.Principal{}, services.ErrUnauthorized
	}
	return p, nil
}

func success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{"status": "success", "data": data})
}
