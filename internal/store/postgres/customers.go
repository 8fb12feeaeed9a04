package postgres

import (
	"context"
	"errors"
	"time"

	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const customerColumns = `customer_id, phone_number, name, no_show_count, blacklisted, listed_since, created_at`

func scanCustomer(row pgx.Row) (models.Customer, error) {
	var customer models.Customer
	if err := row.Scan(&customer.CustomerID, &customer.Phone, &customer.Name, &customer.NoShowCount, &customer.Blacklisted, &customer.ListedSince, &customer.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Customer{}, store.ErrCustomerNotFound
		}
		return models.Customer{}, err
	}
	return customer, nil
}

func (s *Store) FindOrCreateCustomer(ctx context.Context, phone string, at time.Time) (models.Customer, error) {
	customer, err := findOrCreateCustomer(ctx, s.pool, phone, at)
	return customer, translateError(err)
}

func (s *Store) GetCustomer(ctx context.Context, customerID string) (models.Customer, error) {
	customer, err := getCustomer(ctx, s.pool, customerID)
	return customer, translateError(err)
}

func (s *Store) FindCustomerByPhone(ctx context.Context, phone string) (models.Customer, error) {
	customer, err := scanCustomer(s.pool.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE phone_number = $1
	`, phone))
	return customer, translateError(err)
}

func (s *Store) CheckBlacklist(ctx context.Context, customerID string) (bool, error) {
	var blacklisted bool
	row := s.pool.QueryRow(ctx, `SELECT blacklisted FROM customers WHERE customer_id = $1`, customerID)
	if err := row.Scan(&blacklisted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, store.ErrCustomerNotFound
		}
		return false, translateError(err)
	}
	return blacklisted, nil
}

// RecordNoShow increments the customer's no-show count and blacklists them
// once the new count reaches threshold. The bool reports whether this call
// flipped the flag.
func (s *Store) RecordNoShow(ctx context.Context, customerID string, threshold int, at time.Time) (models.Customer, bool, error) {
	var customer models.Customer
	var escalated bool
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		customer, escalated, err = recordNoShow(ctx, tx, customerID, threshold, at)
		return err
	})
	return customer, escalated, err
}

func (s *Store) SetBlacklist(ctx context.Context, customerID string, blacklisted bool, at time.Time) (models.Customer, error) {
	query := `
		UPDATE customers
		SET blacklisted = TRUE,
			listed_since = CASE WHEN blacklisted THEN listed_since ELSE $2 END,
			updated_at = $2
		WHERE customer_id = $1
		RETURNING ` + customerColumns
	if !blacklisted {
		query = `
		UPDATE customers
		SET blacklisted = FALSE,
			no_show_count = 0,
			listed_since = $2,
			updated_at = $2
		WHERE customer_id = $1
		RETURNING ` + customerColumns
	}
	customer, err := scanCustomer(s.pool.QueryRow(ctx, query, customerID, at))
	return customer, translateError(err)
}

func (s *Store) ListBlacklisted(ctx context.Context) ([]models.Customer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE blacklisted
		ORDER BY no_show_count DESC, listed_since DESC
	`)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return customers, nil
}

// findOrCreateCustomer relies on the unique phone_number constraint: a
// concurrent insert for the same phone waits, does nothing, and the follow-up
// select sees the committed row.
func findOrCreateCustomer(ctx context.Context, q querier, phone string, at time.Time) (models.Customer, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO customers (customer_id, phone_number, listed_since, created_at, updated_at)
		VALUES ($1, $2, $3, $3, $3)
		ON CONFLICT (phone_number) DO NOTHING
	`, uuid.NewString(), phone, at)
	if err != nil {
		return models.Customer{}, err
	}
	return scanCustomer(q.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE phone_number = $1
	`, phone))
}

func getCustomer(ctx context.Context, q querier, customerID string) (models.Customer, error) {
	return scanCustomer(q.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE customer_id = $1
	`, customerID))
}

// recordNoShow locks the customer row first, so concurrent no-shows are
// applied one after another and exactly one of them observes the threshold
// crossing.
func recordNoShow(ctx context.Context, tx pgx.Tx, customerID string, threshold int, at time.Time) (models.Customer, bool, error) {
	var wasBlacklisted bool
	row := tx.QueryRow(ctx, `
		SELECT blacklisted
		FROM customers
		WHERE customer_id = $1
		FOR UPDATE
	`, customerID)
	if err := row.Scan(&wasBlacklisted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Customer{}, false, store.ErrCustomerNotFound
		}
		return models.Customer{}, false, err
	}

	customer, err := scanCustomer(tx.QueryRow(ctx, `
		UPDATE customers
		SET no_show_count = no_show_count + 1,
			blacklisted = blacklisted OR no_show_count + 1 >= $2,
			listed_since = CASE WHEN NOT blacklisted AND no_show_count + 1 >= $2 THEN $3 ELSE listed_since END,
			updated_at = $3
		WHERE customer_id = $1
		RETURNING `+customerColumns, customerID, threshold, at))
	if err != nil {
		return models.Customer{}, false, err
	}
	return customer, customer.Blacklisted && !wasBlacklisted, nil
}
