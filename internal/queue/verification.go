package queue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"tablequeue/queue-service/internal/notify"
	"tablequeue/queue-service/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type VerificationRequest struct {
	VerificationID string    `json:"verification_id"`
	CustomerID     string    `json:"customer_id"`
	ExpiresAt      time.Time `json:"expires_at"`
	// Code is only populated outside production.
	Code string `json:"code,omitempty"`
}

type VerifyResult struct {
	VerificationID string `json:"verification_id,omitempty"`
	CustomerID     string `json:"customer_id"`
	Verified       bool   `json:"verified"`
}

// RequestVerification issues a fresh code for phone and hands it to the
// notifier. Earlier codes for the customer stay valid until they expire.
func (e *Engine) RequestVerification(ctx context.Context, phone string) (VerificationRequest, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return VerificationRequest{}, err
	}
	held := false
	if e.cooldown != nil {
		allowed, retryAfter, err := e.cooldown.AcquireCooldown(ctx, phone)
		switch {
		case err != nil:
			e.log.Warn("verification cooldown unavailable", zap.Error(err))
		case !allowed:
			return VerificationRequest{}, &CooldownError{RetryAfter: retryAfter}
		default:
			held = true
		}
	}

	issued, code, customerID, err := e.issueVerification(ctx, phone)
	if err != nil {
		if held {
			e.releaseCooldown(ctx, phone)
		}
		return VerificationRequest{}, err
	}

	e.send(notify.Message{
		Kind:       notify.KindVerificationCode,
		CustomerID: customerID,
		Recipient:  phone,
		Vars: map[string]string{
			"code":        code,
			"ttl_minutes": formatMinutes(e.verificationTTL),
		},
	})

	result := VerificationRequest{
		VerificationID: issued.VerificationID,
		CustomerID:     customerID,
		ExpiresAt:      issued.ExpiresAt,
	}
	if e.exposeCodes {
		result.Code = code
	}
	return result, nil
}

func (e *Engine) issueVerification(ctx context.Context, phone string) (store.VerificationCode, string, string, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	now := e.clock.Now()
	customer, err := e.store.FindOrCreateCustomer(ctx, phone, now)
	if err != nil {
		return store.VerificationCode{}, "", "", e.fail("request_verification", err)
	}
	code, err := store.GenerateCode(e.codeSource)
	if err != nil {
		return store.VerificationCode{}, "", "", err
	}
	issued, err := e.store.IssueCode(ctx, customer.CustomerID, code, now, now.Add(e.verificationTTL))
	if err != nil {
		return store.VerificationCode{}, "", "", e.fail("request_verification", err)
	}
	return issued, code, customer.CustomerID, nil
}

// releaseCooldown reopens the window after a request that stored no code.
func (e *Engine) releaseCooldown(ctx context.Context, phone string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.storeTimeout)
	defer cancel()
	if err := e.cooldown.ReleaseCooldown(ctx, phone); err != nil {
		e.log.Warn("verification cooldown release failed", zap.Error(err))
	}
}

// VerifyCode checks and consumes a code for phone without issuing a ticket.
func (e *Engine) VerifyCode(ctx context.Context, phone, code string) (VerifyResult, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return VerifyResult{}, err
	}
	code = strings.TrimSpace(code)
	if !isCode(code) {
		return VerifyResult{}, invalid("code", "must be 6 digits")
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	customer, err := e.store.FindCustomerByPhone(ctx, phone)
	if errors.Is(err, store.ErrCustomerNotFound) {
		return VerifyResult{}, &store.VerificationError{Result: store.VerificationNotFound}
	}
	if err != nil {
		return VerifyResult{}, e.fail("verify_code", err)
	}
	result, err := e.store.VerifyCode(ctx, customer.CustomerID, code, e.clock.Now())
	if err != nil {
		return VerifyResult{}, e.fail("verify_code", err)
	}
	if result != store.VerificationValid {
		return VerifyResult{}, &store.VerificationError{Result: result}
	}
	return VerifyResult{CustomerID: customer.CustomerID, Verified: true}, nil
}

// VerifyByID checks and consumes the code issued under verificationID.
func (e *Engine) VerifyByID(ctx context.Context, verificationID, code string) (VerifyResult, error) {
	verificationID = strings.TrimSpace(verificationID)
	if _, err := uuid.Parse(verificationID); err != nil {
		return VerifyResult{}, invalid("verification_id", "must be a UUID")
	}
	code = strings.TrimSpace(code)
	if !isCode(code) {
		return VerifyResult{}, invalid("code", "must be 6 digits")
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	stored, result, err := e.store.VerifyCodeByID(ctx, verificationID, code, e.clock.Now())
	if err != nil {
		return VerifyResult{}, e.fail("verify_by_id", err)
	}
	if result == store.VerificationNotFound && stored.VerificationID == "" {
		return VerifyResult{}, store.ErrVerificationNotFound
	}
	if result != store.VerificationValid {
		return VerifyResult{}, &store.VerificationError{Result: result}
	}
	return VerifyResult{VerificationID: stored.VerificationID, CustomerID: stored.CustomerID, Verified: true}, nil
}

// PurgeVerifications removes codes that expired more than retention ago.
func (e *Engine) PurgeVerifications(ctx context.Context, retention time.Duration) (int64, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	cutoff := e.clock.Now().Add(-retention)
	removed, err := e.store.PurgeVerificationCodes(ctx, cutoff)
	if err != nil {
		return 0, e.fail("purge_verifications", err)
	}
	if removed > 0 {
		e.log.Info("expired verification codes purged", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

func formatMinutes(d time.Duration) string {
	return strconv.Itoa(int(d.Round(time.Minute) / time.Minute))
}
