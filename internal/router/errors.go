package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error classes. Every failure reported to a connection wraps exactly one.
var (
	ErrNotAuthenticated = errors.New("user not authenticated")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrInternal         = errors.New("internal error")
)

// ErrorCode is the wire form of an error class.
type ErrorCode string

const (
	CodeNotAuthenticated ErrorCode = "not_authenticated"
	CodeNotFound         ErrorCode = "not_found"
	CodeValidation       ErrorCode = "validation"
	CodeInternal         ErrorCode = "internal"
)

// CodeOf classifies err. Anything unrecognized is internal.
func CodeOf(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return CodeNotAuthenticated
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrValidation):
		return CodeValidation
	default:
		return CodeInternal
	}
}

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// invalidPayload turns validator output into a single readable validation error.
func invalidPayload(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			details = append(details, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		details = append(details, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(details, "; "))
}

// errorPayload is what the originator sees. Internal faults never leak detail.
func errorPayload(event string, err error) ErrorPayload {
	code := CodeOf(err)
	message := err.Error()
	if code == CodeInternal {
		message = ErrInternal.Error()
	}
	return ErrorPayload{Code: code, Message: message, Event: event}
}
