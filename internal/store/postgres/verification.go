package postgres

import (
	"context"
	"errors"
	"time"

	"tablequeue/queue-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) IssueCode(ctx context.Context, customerID, code string, createdAt, expiresAt time.Time) (store.VerificationCode, error) {
	verification := store.VerificationCode{
		VerificationID: uuid.NewString(),
		CustomerID:     customerID,
		Code:           code,
		CreatedAt:      createdAt,
		ExpiresAt:      expiresAt,
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verification_codes (verification_id, customer_id, code, created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`, verification.VerificationID, customerID, code, createdAt, expiresAt)
	if err != nil {
		return store.VerificationCode{}, translateError(err)
	}
	return verification, nil
}

func (s *Store) VerifyCode(ctx context.Context, customerID, code string, now time.Time) (store.VerificationResult, error) {
	result := store.VerificationNotFound
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		result, err = verifyCode(ctx, tx, customerID, code, now)
		return err
	})
	return result, err
}

// VerifyCodeByID checks the code of one specific verification, as used by the
// verifications/{id}/verify route.
func (s *Store) VerifyCodeByID(ctx context.Context, verificationID, code string, now time.Time) (store.VerificationCode, store.VerificationResult, error) {
	var verification store.VerificationCode
	result := store.VerificationNotFound
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT v.verification_id, v.customer_id, c.phone_number, v.code, v.created_at, v.expires_at, v.used
			FROM verification_codes v
			JOIN customers c ON c.customer_id = v.customer_id
			WHERE v.verification_id = $1
			FOR UPDATE OF v
		`, verificationID)
		if err := row.Scan(&verification.VerificationID, &verification.CustomerID, &verification.Phone, &verification.Code, &verification.CreatedAt, &verification.ExpiresAt, &verification.Used); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		result = store.EvaluateCode(verification, code, now)
		if result != store.VerificationValid {
			return nil
		}
		var err error
		result, err = consumeCode(ctx, tx, verification.VerificationID, now)
		return err
	})
	if err != nil {
		return store.VerificationCode{}, store.VerificationNotFound, err
	}
	if result == store.VerificationValid {
		verification.Used = true
	}
	return verification, result, nil
}

func (s *Store) PurgeVerificationCodes(ctx context.Context, expiredBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM verification_codes WHERE expires_at < $1`, expiredBefore)
	if err != nil {
		return 0, translateError(err)
	}
	return tag.RowsAffected(), nil
}

// verifyCode evaluates the most recent code matching (customerID, code) and
// consumes it when valid. A customer with codes but none matching gets
// Invalid; a customer without any code gets NotFound.
func verifyCode(ctx context.Context, tx pgx.Tx, customerID, code string, now time.Time) (store.VerificationResult, error) {
	var verification store.VerificationCode
	row := tx.QueryRow(ctx, `
		SELECT verification_id, customer_id, code, created_at, expires_at, used
		FROM verification_codes
		WHERE customer_id = $1 AND code = $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, customerID, code)
	if err := row.Scan(&verification.VerificationID, &verification.CustomerID, &verification.Code, &verification.CreatedAt, &verification.ExpiresAt, &verification.Used); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return store.VerificationNotFound, err
		}
		var any bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM verification_codes WHERE customer_id = $1)`, customerID).Scan(&any); err != nil {
			return store.VerificationNotFound, err
		}
		if any {
			return store.VerificationInvalid, nil
		}
		return store.VerificationNotFound, nil
	}

	result := store.EvaluateCode(verification, code, now)
	if result != store.VerificationValid {
		return result, nil
	}
	return consumeCode(ctx, tx, verification.VerificationID, now)
}

func consumeCode(ctx context.Context, tx pgx.Tx, verificationID string, now time.Time) (store.VerificationResult, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE verification_codes
		SET used = TRUE, used_at = $2
		WHERE verification_id = $1 AND NOT used
	`, verificationID, now)
	if err != nil {
		return store.VerificationNotFound, err
	}
	if tag.RowsAffected() == 0 {
		return store.VerificationAlreadyUsed, nil
	}
	return store.VerificationValid, nil
}
