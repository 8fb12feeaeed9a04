package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrVerificationNotFound = errors.New("verification not found")
	ErrEmployeeNotFound     = errors.New("employee not found")
	ErrNoWaitingCustomer    = errors.New("no waiting customer")
	ErrInvalidState         = errors.New("invalid ticket state")
	ErrBlacklisted          = errors.New("customer blacklisted")
	ErrVerificationFailed   = errors.New("verification failed")
	ErrBusy                 = errors.New("store busy")
	ErrInvariant            = errors.New("state invariant violated")
)

// InvariantError carries the context of a state invariant violation. It unwraps to ErrInvariant.
type InvariantError struct {
	Op     string
	Detail string
	Fields map[string]interface{}
}

func (e *InvariantError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, e.Fields[key]))
	}
	return fmt.Sprintf("%s: %s: %s (%s)", ErrInvariant, e.Op, e.Detail, strings.Join(parts, " "))
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

// VerificationError reports a remote issuance rejected by the verification store.
type VerificationError struct {
	Result VerificationResult
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrVerificationFailed, e.Result)
}

func (e *VerificationError) Unwrap() error {
	return ErrVerificationFailed
}
