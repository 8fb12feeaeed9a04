package store

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

type VerificationResult int

const (
	VerificationValid VerificationResult = iota
	VerificationInvalid
	VerificationExpired
	VerificationAlreadyUsed
	VerificationNotFound
)

func (r VerificationResult) String() string {
	switch r {
	case VerificationValid:
		return "valid"
	case VerificationInvalid:
		return "invalid"
	case VerificationExpired:
		return "expired"
	case VerificationAlreadyUsed:
		return "already_used"
	case VerificationNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type VerificationCode struct {
	VerificationID string    `json:"verification_id"`
	CustomerID     string    `json:"customer_id"`
	Phone          string    `json:"phone_number,omitempty"`
	Code           string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Used           bool      `json:"used"`
}

// EvaluateCode classifies a submitted code against a stored one. A code is
// expired from ExpiresAt onwards.
func EvaluateCode(stored VerificationCode, submitted string, now time.Time) VerificationResult {
	if stored.Code != submitted {
		return VerificationInvalid
	}
	if stored.Used {
		return VerificationAlreadyUsed
	}
	if !now.Before(stored.ExpiresAt) {
		return VerificationExpired
	}
	return VerificationValid
}

// GenerateCode draws a uniformly distributed six digit code from r.
func GenerateCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
