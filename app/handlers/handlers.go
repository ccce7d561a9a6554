// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/social-publisher/app/dto"
	"github.com/amirphl/social-publisher/app/middleware"
	"github.com/amirphl/social-publisher/app/services"
	businessflow "github.com/amirphl/social-publisher/business_flow"
	"github.com/amirphl/social-publisher/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// baseHandler carries the response helpers shared by every handler
type baseHandler struct {
	validator *validator.Validate
}

func newBaseHandler() baseHandler {
	return baseHandler{validator: validator.New()}
}

func (h *baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validationErrors lists the failed rules of req, empty when req is valid
func (h *baseHandler) validationErrors(req any) []string {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

func (h *baseHandler) userID(c fiber.Ctx) (uint, bool) {
	id, ok := c.Locals(middleware.LocalUserID).(uint)
	return id, ok && id != 0
}

func (h *baseHandler) missingUser(c fiber.Ctx) error {
	return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
}

// createRequestContext bounds a business call and carries request-scoped values for logging
func (h *baseHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	timeout := utils.DefaultRequestTimeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)

	return ctx, cancel
}

// businessError writes the response for an error returned by a business flow
func (h *baseHandler) businessError(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	status := statusForError(err)

	message, code := fallbackMessage, fallbackCode
	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		message, code = be.Message, be.Code
	}

	if status >= fiber.StatusInternalServerError {
		log.Printf("handlers: %s %s failed: %v", c.Method(), c.Path(), err)
	}
	var details any
	if errors.Is(err, businessflow.ErrPlatformRejected) {
		// the platform's own message is shown to the owner
		details = services.PlatformMessage(err)
	}
	return h.ErrorResponse(c, status, message, code, details)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, businessflow.ErrCampaignNotFound),
		errors.Is(err, businessflow.ErrPostNotFound),
		errors.Is(err, businessflow.ErrAccountNotFound),
		errors.Is(err, businessflow.ErrPageNotManaged),
		errors.Is(err, businessflow.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, businessflow.ErrCampaignUpdateNotAllowed),
		errors.Is(err, businessflow.ErrCampaignDeleteNotAllowed),
		errors.Is(err, businessflow.ErrCampaignNotPublishable),
		errors.Is(err, businessflow.ErrCampaignNotPublished),
		errors.Is(err, businessflow.ErrPostNotOnPlatform),
		errors.Is(err, businessflow.ErrPostAlreadyLive),
		errors.Is(err, businessflow.ErrPostUpdateNotAllowed),
		errors.Is(err, businessflow.ErrPostDeleteNotAllowed):
		return fiber.StatusConflict
	case errors.Is(err, businessflow.ErrStoreUnavailable),
		errors.Is(err, businessflow.ErrGatewayUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, businessflow.ErrCredentialMissing),
		errors.Is(err, businessflow.ErrPlatformRejected):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, businessflow.ErrPostRemovalUnconfirmed):
		return fiber.StatusBadGateway
	case errors.Is(err, businessflow.ErrInvalidWindow),
		errors.Is(err, businessflow.ErrInvalidRequest),
		errors.Is(err, businessflow.ErrPlatformUnsupported),
		errors.Is(err, businessflow.ErrCampaignUpdateRequired),
		errors.Is(err, businessflow.ErrPostUpdateRequired),
		errors.Is(err, businessflow.ErrInvalidScheduleDate),
		errors.Is(err, businessflow.ErrInvalidScheduleTime),
		errors.Is(err, businessflow.ErrInvalidTimezone),
		errors.Is(err, businessflow.ErrInvalidFrequency),
		errors.Is(err, businessflow.ErrInvalidAudience),
		errors.Is(err, businessflow.ErrEndsBeforeStart),
		errors.Is(err, businessflow.ErrInvalidPage),
		errors.Is(err, businessflow.ErrInvalidPageSize):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func queryInt(c fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}

func queryTime(c fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC3339 timestamp", key)
	}
	t = t.UTC()
	return &t, nil
}

func queryOptional(c fiber.Ctx, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "url":
		return err.Field() + " must be a valid URL"
	case "uuid":
		return err.Field() + " must be a valid UUID"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
