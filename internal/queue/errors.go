package queue

import (
	"errors"
	"fmt"
	"time"
)

var ErrCooldown = errors.New("verification requested too recently")

// ValidationError reports a malformed or missing argument.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// CooldownError carries how long the caller should wait before asking for
// another verification code. It unwraps to ErrCooldown.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrCooldown, e.RetryAfter.Round(time.Second))
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldown
}
