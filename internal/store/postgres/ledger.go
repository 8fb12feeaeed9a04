package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tablequeue/queue-service/internal/clock"
	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IssueTicket reserves the next number for the ticket's class and inserts the
// ticket in one transaction. A remote ticket also consumes its verification
// code there, so a failed issuance leaves the code usable. The bool is false
// when RequestID matched an earlier ticket.
func (s *Store) IssueTicket(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error) {
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var ticket models.Ticket
	created := false
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if input.RequestID != "" {
			existing, found, err := findTicketByRequestID(ctx, tx, input.RequestID)
			if err != nil {
				return err
			}
			if found {
				ticket = existing
				return nil
			}
		}

		customer, err := findOrCreateCustomer(ctx, tx, input.Phone, createdAt)
		if err != nil {
			return err
		}
		if input.Channel == models.ChannelRemote {
			result, err := verifyCode(ctx, tx, customer.CustomerID, input.Code, createdAt)
			if err != nil {
				return err
			}
			if result != store.VerificationValid {
				return &store.VerificationError{Result: result}
			}
		}
		if customer.Blacklisted {
			return store.ErrBlacklisted
		}

		number, err := nextTicketNumber(ctx, tx, input.QueueDate, input.TableClass, createdAt)
		if err != nil {
			return err
		}
		waiting, err := countWaiting(ctx, tx, input.QueueDate, input.TableClass)
		if err != nil {
			return err
		}

		ticket, err = scanTicket(tx.QueryRow(ctx, `
			WITH t AS (
				INSERT INTO tickets (
					ticket_id, request_id, customer_id, queue_date, table_class, ticket_number,
					party_size, channel, status, waiting_count_at_creation, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
				ON CONFLICT (request_id) DO NOTHING
				RETURNING *
			)
			SELECT `+ticketColumns+`
			FROM t
			JOIN customers c ON c.customer_id = t.customer_id
		`, uuid.NewString(), nullIfEmpty(input.RequestID), customer.CustomerID, input.QueueDate, int16(input.TableClass), number,
			input.PartySize, input.Channel, models.StatusWaiting, waiting, createdAt))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: request %s is being issued concurrently", store.ErrBusy, input.RequestID)
			}
			return err
		}

		if err := insertTicketEvent(ctx, tx, ticket.TicketID, store.EventTicketIssued, store.EventPayload{
			TicketID:     ticket.TicketID,
			TicketNumber: ticket.TicketNumber,
			TableClass:   int(ticket.TableClass),
			QueueDate:    ticket.QueueDate,
			Channel:      ticket.Channel,
			PartySize:    ticket.PartySize,
			Status:       ticket.Status,
			CreatedAt:    &ticket.CreatedAt,
		}, createdAt); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, created, nil
}

// CallNext advances the class's called number to the lowest waiting ticket
// above it. The ticket itself stays waiting.
func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (store.CallResult, error) {
	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	var result store.CallResult
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		state, err := lockDayState(ctx, tx, input.QueueDate, input.TableClass, calledAt)
		if err != nil {
			return err
		}

		ticket, err := scanTicket(tx.QueryRow(ctx, `
			SELECT `+ticketColumns+`
			FROM tickets t
			JOIN customers c ON c.customer_id = t.customer_id
			WHERE t.queue_date = $1 AND t.table_class = $2 AND t.status = $3 AND t.ticket_number > $4
			ORDER BY t.ticket_number ASC
			LIMIT 1
		`, input.QueueDate, int16(input.TableClass), models.StatusWaiting, state.CurrentCalled))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNoWaitingCustomer
			}
			return err
		}
		if ticket.TicketNumber <= state.CurrentCalled || ticket.TicketNumber > state.LastIssued {
			return &store.InvariantError{
				Op:     "call_next",
				Detail: "waiting ticket outside the called..issued window",
				Fields: map[string]interface{}{
					"queue_date":     input.QueueDate.Format(clock.DateLayout),
					"table_class":    input.TableClass.String(),
					"ticket_number":  ticket.TicketNumber,
					"current_called": state.CurrentCalled,
					"last_issued":    state.LastIssued,
				},
			}
		}

		if err := advanceCalled(ctx, tx, input.QueueDate, input.TableClass, ticket.TicketNumber, calledAt); err != nil {
			return err
		}
		if err := insertTicketEvent(ctx, tx, ticket.TicketID, store.EventTicketCalled, store.EventPayload{
			TicketID:     ticket.TicketID,
			TicketNumber: ticket.TicketNumber,
			TableClass:   int(ticket.TableClass),
			CalledAt:     &calledAt,
		}, calledAt); err != nil {
			return err
		}

		result = store.CallResult{
			Ticket:         ticket,
			PreviousCalled: state.CurrentCalled,
			LastIssued:     state.LastIssued,
		}
		return nil
	})
	if err != nil {
		return store.CallResult{}, err
	}
	return result, nil
}

// UpdateTicketStatus moves a waiting ticket into a terminal status. A remote
// no-show also counts against the customer in the same transaction.
func (s *Store) UpdateTicketStatus(ctx context.Context, input store.StatusUpdateInput) (store.StatusUpdate, error) {
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var update store.StatusUpdate
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var fromStatus, channel, customerID string
		row := tx.QueryRow(ctx, `
			SELECT status, channel, customer_id
			FROM tickets
			WHERE ticket_id = $1
			FOR UPDATE
		`, input.TicketID)
		if err := row.Scan(&fromStatus, &channel, &customerID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrTicketNotFound
			}
			return err
		}
		if !store.ValidTransition(input.Status, fromStatus) {
			return fmt.Errorf("%w: %s -> %s", store.ErrInvalidState, fromStatus, input.Status)
		}

		var seatedAt interface{}
		if input.Status == models.StatusSeated {
			seatedAt = occurredAt
		}
		ticket, err := scanTicket(tx.QueryRow(ctx, `
			WITH t AS (
				UPDATE tickets
				SET status = $2, seated_at = COALESCE($3, seated_at), updated_at = $4
				WHERE ticket_id = $1
				RETURNING *
			)
			SELECT `+ticketColumns+`
			FROM t
			JOIN customers c ON c.customer_id = t.customer_id
		`, input.TicketID, input.Status, seatedAt, occurredAt))
		if err != nil {
			return err
		}

		var customer models.Customer
		escalated := false
		if input.Status == models.StatusNoShow && channel == models.ChannelRemote {
			customer, escalated, err = recordNoShow(ctx, tx, customerID, input.NoShowThreshold, occurredAt)
		} else {
			customer, err = getCustomer(ctx, tx, customerID)
		}
		if err != nil {
			return err
		}

		if err := insertTicketEvent(ctx, tx, ticket.TicketID, store.EventForStatus(input.Status), store.EventPayload{
			TicketID: ticket.TicketID,
			Status:   ticket.Status,
			SeatedAt: ticket.SeatedAt,
		}, occurredAt); err != nil {
			return err
		}

		update = store.StatusUpdate{Ticket: ticket, Customer: customer, Escalated: escalated}
		return nil
	})
	if err != nil {
		return store.StatusUpdate{}, err
	}
	return update, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	ticket, err := scanTicket(s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		JOIN customers c ON c.customer_id = t.customer_id
		WHERE t.ticket_id = $1
	`, ticketID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, translateError(err)
}

func (s *Store) FindTicketByNumber(ctx context.Context, queueDate time.Time, class models.TableClass, number int) (models.Ticket, error) {
	ticket, err := scanTicket(s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		JOIN customers c ON c.customer_id = t.customer_id
		WHERE t.queue_date = $1 AND t.table_class = $2 AND t.ticket_number = $3
	`, queueDate, int16(class), number))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, translateError(err)
}

// FindLatestTicketByPhone returns the most recently issued ticket of the
// customer on queueDate.
func (s *Store) FindLatestTicketByPhone(ctx context.Context, phone string, queueDate time.Time) (models.Ticket, error) {
	ticket, err := scanTicket(s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		JOIN customers c ON c.customer_id = t.customer_id
		WHERE c.phone_number = $1 AND t.queue_date = $2
		ORDER BY t.created_at DESC, t.ticket_number DESC
		LIMIT 1
	`, phone, queueDate))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, translateError(err)
}

func (s *Store) CountWaiting(ctx context.Context, queueDate time.Time, class models.TableClass) (int, error) {
	count, err := countWaiting(ctx, s.pool, queueDate, class)
	return count, translateError(err)
}

func (s *Store) ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		JOIN customers c ON c.customer_id = t.customer_id
		WHERE t.queue_date = $1
			AND ($2 = '' OR t.status = $2)
			AND ($3 = 0 OR t.table_class = $3)
		ORDER BY t.table_class ASC, t.ticket_number ASC
	`, filter.QueueDate, filter.Status, int16(filter.TableClass))
	if err != nil {
		return nil, translateError(err)
	}
	tickets, err := scanTickets(rows)
	return tickets, translateError(err)
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id, ticket_seq, type, payload::text, created_at, prev_hash, hash
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY ticket_seq ASC
	`, ticketID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var events []store.TicketEvent
	for rows.Next() {
		var event store.TicketEvent
		var payload string
		if err := rows.Scan(&event.TicketID, &event.TicketSeq, &event.Type, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = json.RawMessage(payload)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return events, nil
}

func countWaiting(ctx context.Context, q querier, queueDate time.Time, class models.TableClass) (int, error) {
	var count int
	row := q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tickets
		WHERE queue_date = $1 AND table_class = $2 AND status = $3
	`, queueDate, int16(class), models.StatusWaiting)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func findTicketByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Ticket, bool, error) {
	ticket, err := scanTicket(tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		JOIN customers c ON c.customer_id = t.customer_id
		WHERE t.request_id = $1
	`, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

// insertTicketEvent appends to the ticket's hash chain. The advisory lock
// orders writers of the same ticket; timestamps are truncated to the
// microsecond precision the column keeps so stored hashes recompute.
func insertTicketEvent(ctx context.Context, tx pgx.Tx, ticketID, eventType string, payload store.EventPayload, at time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ticketID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT ticket_seq, hash
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY ticket_seq DESC
		LIMIT 1
	`, ticketID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	nextSeq := lastSeq + 1
	prev := ""
	if prevHash.Valid {
		prev = prevHash.String
	}
	createdAt := at.UTC().Truncate(time.Microsecond)
	hash := store.ComputeTicketEventHash(prev, ticketID, eventType, body, createdAt, nextSeq)

	_, err = tx.Exec(ctx, `
		INSERT INTO ticket_events (ticket_id, ticket_seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ticketID, nextSeq, eventType, string(body), createdAt, prev, hash)
	return err
}
