package postgres

import (
	"context"
	"errors"
	"time"

	"tablequeue/queue-service/internal/clock"
	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/store"

	"github.com/jackc/pgx/v5"
)

// GetOrCreateDayState returns the three class rows for queueDate, creating
// zeroed rows the first time a date is seen.
func (s *Store) GetOrCreateDayState(ctx context.Context, queueDate time.Time) ([]models.ClassState, error) {
	if err := ensureDayState(ctx, s.pool, queueDate, time.Now().UTC()); err != nil {
		return nil, translateError(err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT s.table_class, s.current_called, s.last_issued,
			(SELECT COUNT(*) FROM tickets t
			 WHERE t.queue_date = s.queue_date AND t.table_class = s.table_class AND t.status = $2)
		FROM daily_queue_state s
		WHERE s.queue_date = $1
		ORDER BY s.table_class ASC
	`, queueDate, models.StatusWaiting)
	if err != nil {
		return nil, translateError(err)
	}
	return scanClassStates(rows)
}

// GetDayState reads the class rows for queueDate without creating any.
// Classes with no row report zeroes.
func (s *Store) GetDayState(ctx context.Context, queueDate time.Time) ([]models.ClassState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.class::smallint, COALESCE(s.current_called, 0), COALESCE(s.last_issued, 0),
			(SELECT COUNT(*) FROM tickets t
			 WHERE t.queue_date = $1::date AND t.table_class = c.class AND t.status = $2)
		FROM generate_series(1, 3) AS c(class)
		LEFT JOIN daily_queue_state s ON s.queue_date = $1::date AND s.table_class = c.class
		ORDER BY c.class ASC
	`, queueDate, models.StatusWaiting)
	if err != nil {
		return nil, translateError(err)
	}
	return scanClassStates(rows)
}

func scanClassStates(rows pgx.Rows) ([]models.ClassState, error) {
	defer rows.Close()
	var states []models.ClassState
	for rows.Next() {
		var state models.ClassState
		var class int16
		if err := rows.Scan(&class, &state.CurrentCalled, &state.LastIssued, &state.WaitingCount); err != nil {
			return nil, err
		}
		state.TableClass = models.TableClass(class)
		state.Name = state.TableClass.String()
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return states, nil
}

func ensureDayState(ctx context.Context, q querier, queueDate, at time.Time) error {
	_, err := q.Exec(ctx, `
		INSERT INTO daily_queue_state (queue_date, table_class, last_issued, current_called, updated_at)
		SELECT $1::date, c, 0, 0, $2::timestamptz
		FROM generate_series(1, 3) AS c
		ON CONFLICT (queue_date, table_class) DO NOTHING
	`, queueDate, at)
	return err
}

// nextTicketNumber reserves the next number for (queueDate, class). The
// upsert holds the row lock until the surrounding transaction ends, so
// concurrent issuers for the same class are serialized and a rolled back
// issuance releases its number.
func nextTicketNumber(ctx context.Context, tx pgx.Tx, queueDate time.Time, class models.TableClass, at time.Time) (int, error) {
	var next int
	row := tx.QueryRow(ctx, `
		INSERT INTO daily_queue_state (queue_date, table_class, last_issued, current_called, updated_at)
		VALUES ($1, $2, 1, 0, $3)
		ON CONFLICT (queue_date, table_class)
		DO UPDATE SET last_issued = daily_queue_state.last_issued + 1, updated_at = EXCLUDED.updated_at
		RETURNING last_issued
	`, queueDate, int16(class), at)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func lockDayState(ctx context.Context, tx pgx.Tx, queueDate time.Time, class models.TableClass, at time.Time) (models.ClassState, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO daily_queue_state (queue_date, table_class, last_issued, current_called, updated_at)
		VALUES ($1, $2, 0, 0, $3)
		ON CONFLICT (queue_date, table_class) DO NOTHING
	`, queueDate, int16(class), at)
	if err != nil {
		return models.ClassState{}, err
	}

	state := models.ClassState{TableClass: class, Name: class.String()}
	row := tx.QueryRow(ctx, `
		SELECT current_called, last_issued
		FROM daily_queue_state
		WHERE queue_date = $1 AND table_class = $2
		FOR UPDATE
	`, queueDate, int16(class))
	if err := row.Scan(&state.CurrentCalled, &state.LastIssued); err != nil {
		return models.ClassState{}, err
	}
	return state, nil
}

// advanceCalled moves current_called forward to number. The guard in the
// WHERE clause refuses to move backwards or past the last issued number.
func advanceCalled(ctx context.Context, tx pgx.Tx, queueDate time.Time, class models.TableClass, number int, at time.Time) error {
	var current, last int
	row := tx.QueryRow(ctx, `
		UPDATE daily_queue_state
		SET current_called = $3, updated_at = $4
		WHERE queue_date = $1 AND table_class = $2 AND $3 > current_called AND $3 <= last_issued
		RETURNING current_called, last_issued
	`, queueDate, int16(class), number, at)
	if err := row.Scan(&current, &last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &store.InvariantError{
				Op:     "advance_called",
				Detail: "called number must move forward within issued range",
				Fields: map[string]interface{}{
					"queue_date":  queueDate.Format(clock.DateLayout),
					"table_class": class.String(),
					"number":      number,
				},
			}
		}
		return err
	}
	return nil
}
