package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tablequeue/queue-service/internal/clock"
	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

type Options struct {
	// LockTimeout bounds how long a transaction waits for a row lock before
	// failing with store.ErrBusy. Zero leaves the server default.
	LockTimeout time.Duration
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	return &Store{
		pool:        pool,
		lockTimeout: options.LockTimeout,
	}
}

var _ store.QueueStore = (*Store)(nil)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// inTx runs fn in a read-committed transaction and commits when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return translateError(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if s.lockTimeout > 0 {
		if _, err = tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, strconv.FormatInt(s.lockTimeout.Milliseconds(), 10)); err != nil {
			return translateError(err)
		}
	}
	if err = fn(tx); err != nil {
		return translateError(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return translateError(err)
	}
	return nil
}

// translateError turns lock waits, deadlocks and timeouts into store.ErrBusy.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrBusy) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", store.ErrBusy, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01", "57014":
			return fmt.Errorf("%w: %s", store.ErrBusy, pgErr.Message)
		}
	}
	return err
}

const ticketColumns = `
	t.ticket_id, t.request_id, t.customer_id, t.queue_date, t.table_class, t.ticket_number,
	t.party_size, t.channel, t.status, t.waiting_count_at_creation, t.created_at, t.seated_at,
	t.updated_at, c.phone_number`

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var requestIDNull sql.NullString
	var queueDate time.Time
	var tableClass int16
	var seatedAtNull sql.NullTime
	if err := row.Scan(&ticket.TicketID, &requestIDNull, &ticket.CustomerID, &queueDate, &tableClass, &ticket.TicketNumber,
		&ticket.PartySize, &ticket.Channel, &ticket.Status, &ticket.WaitingCountAtCreation, &ticket.CreatedAt, &seatedAtNull,
		&ticket.UpdatedAt, &ticket.Phone); err != nil {
		return models.Ticket{}, err
	}
	if requestIDNull.Valid {
		ticket.RequestID = requestIDNull.String
	}
	ticket.QueueDate = queueDate.Format(clock.DateLayout)
	ticket.TableClass = models.TableClass(tableClass)
	ticket.SeatedAt = nullTimePtr(seatedAtNull)
	ticket.Decorate()
	return ticket, nil
}

func scanTickets(rows pgx.Rows) ([]models.Ticket, error) {
	defer rows.Close()
	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}
