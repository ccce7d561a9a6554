// Package businessflow contains the core business logic and use cases for publication workflows
package businessflow

import (
	"errors"
	"fmt"

	"github.com/amirphl/social-publisher/app/services"
	"github.com/amirphl/social-publisher/repository"
)

// Business flow error constants
var (
	// Publication failure categories
	ErrCredentialMissing   = errors.New("no usable credential for the target account")
	ErrInvalidWindow       = services.ErrInvalidWindow
	ErrPlatformRejected    = services.ErrPlatformRejected
	ErrGatewayUnavailable  = services.ErrGatewayUnavailable
	ErrStoreUnavailable    = errors.New("record store unavailable")
	ErrInvalidRequest      = services.ErrInvalidRequest
	ErrPlatformUnsupported = errors.New("platform not supported")

	// Campaign errors
	ErrCampaignNotFound         = errors.New("campaign not found")
	ErrCampaignUpdateNotAllowed = errors.New("campaign update not allowed")
	ErrCampaignDeleteNotAllowed = errors.New("campaign delete not allowed")
	ErrCampaignNotPublishable   = errors.New("campaign is not awaiting publication")
	ErrCampaignNotPublished     = errors.New("campaign has not been published")
	ErrCampaignUpdateRequired   = errors.New("at least one field must be provided for update")
	ErrInvalidScheduleDate      = errors.New("scheduled date must be YYYY-MM-DD")
	ErrInvalidScheduleTime      = errors.New("scheduled time must be HH:MM")
	ErrInvalidTimezone          = errors.New("unknown timezone")
	ErrInvalidFrequency         = errors.New("frequency must be once, daily or weekly")
	ErrInvalidAudience          = errors.New("audience minimum age exceeds maximum age")
	ErrEndsBeforeStart          = errors.New("recurrence end precedes the first occurrence")

	// Post errors
	ErrPostNotFound           = errors.New("post not found")
	ErrPostNotOnPlatform      = errors.New("post is not held by the platform")
	ErrPostAlreadyLive        = errors.New("post is already live on the platform")
	ErrPostRemovalUnconfirmed = errors.New("platform did not confirm the removal")
	ErrPostUpdateNotAllowed   = errors.New("post update not allowed")
	ErrPostDeleteNotAllowed   = errors.New("post delete not allowed")
	ErrPostUpdateRequired     = errors.New("at least one field must be provided for update")

	// Account errors
	ErrUserNotFound    = errors.New("user not found")
	ErrAccountNotFound = errors.New("social account not found")
	ErrPageNotManaged  = errors.New("page is not managed by the user")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

// ErrorCategory classifies why a publication attempt failed
type ErrorCategory string

const (
	CategoryNone                ErrorCategory = ""
	CategoryCredentialMissing   ErrorCategory = "CredentialMissing"
	CategoryInvalidWindow       ErrorCategory = "InvalidWindow"
	CategoryPlatformRejected    ErrorCategory = "PlatformRejected"
	CategoryGatewayUnavailable  ErrorCategory = "GatewayUnavailable"
	CategoryStoreUnavailable    ErrorCategory = "StoreUnavailable"
	CategoryInvalidRequest      ErrorCategory = "InvalidRequest"
	CategoryPlatformUnsupported ErrorCategory = "PlatformUnsupported"
	CategoryUnknown             ErrorCategory = "Unknown"
)

// CategoryOf maps an error to its publication failure category
func CategoryOf(err error) ErrorCategory {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, repository.ErrClaimLost):
		return CategoryStoreUnavailable
	case errors.Is(err, ErrCredentialMissing):
		return CategoryCredentialMissing
	case errors.Is(err, ErrInvalidWindow):
		return CategoryInvalidWindow
	case errors.Is(err, ErrGatewayUnavailable):
		return CategoryGatewayUnavailable
	case errors.Is(err, ErrPlatformRejected):
		return CategoryPlatformRejected
	case errors.Is(err, ErrInvalidRequest):
		return CategoryInvalidRequest
	case errors.Is(err, ErrPlatformUnsupported):
		return CategoryPlatformUnsupported
	default:
		return CategoryUnknown
	}
}

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// storeErr tags a repository failure as ErrStoreUnavailable while keeping the cause
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func IsCredentialMissing(err error) bool {
	return errors.Is(err, ErrCredentialMissing)
}

func IsInvalidWindow(err error) bool {
	return errors.Is(err, ErrInvalidWindow)
}

func IsPlatformRejected(err error) bool {
	return errors.Is(err, ErrPlatformRejected)
}

func IsGatewayUnavailable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignUpdateNotAllowed(err error) bool {
	return errors.Is(err, ErrCampaignUpdateNotAllowed)
}

func IsPostNotFound(err error) bool {
	return errors.Is(err, ErrPostNotFound)
}

func IsAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}
