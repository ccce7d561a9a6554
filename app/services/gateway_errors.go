package services

import (
	"errors"
	"fmt"
)

// Gateway error kinds. Use errors.Is against these to classify a gateway failure.
var (
	ErrPlatformRejected   = errors.New("platform rejected request")
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrInvalidWindow      = errors.New("scheduled time outside accepted window")
	ErrInvalidRequest     = errors.New("invalid gateway request")
)

// GatewayError is a normalized failure of a platform call
type GatewayError struct {
	Kind       error
	Op         string
	StatusCode int
	Code       int
	Message    string
	Transient  bool
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Op, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, msg)
}

func (e *GatewayError) Is(target error) bool {
	return target == e.Kind
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func unavailable(op string, err error) *GatewayError {
	return &GatewayError{Kind: ErrGatewayUnavailable, Op: op, Transient: true, Err: err}
}

func rejected(op string, status int, code int, message string, transient bool) *GatewayError {
	return &GatewayError{Kind: ErrPlatformRejected, Op: op, StatusCode: status, Code: code, Message: message, Transient: transient}
}

// IsTransient reports whether a later attempt of the same call may succeed
func IsTransient(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Transient
	}
	return errors.Is(err, ErrGatewayUnavailable)
}

// PlatformMessage returns the platform's own error message when there is one
func PlatformMessage(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
