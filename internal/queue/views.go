package queue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"tablequeue/queue-service/internal/clock"
	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TicketEvents struct {
	TicketID string              `json:"ticket_id"`
	Events   []store.TicketEvent `json:"events"`
	Valid    bool                `json:"valid"`
	BrokenAt int                 `json:"broken_at,omitempty"`
	// Replayed is the ticket as rebuilt from the event payloads. Matches
	// reports whether it agrees with the stored ticket row.
	Replayed models.Ticket `json:"replayed"`
	Matches  bool          `json:"matches_ticket"`
}

// QueueStatus reports called, issued and waiting numbers per class for date.
// An empty date means today. Only today's rows are created on demand.
func (e *Engine) QueueStatus(ctx context.Context, date string) (models.QueueStatus, error) {
	day, err := e.parseDay(date)
	if err != nil {
		return models.QueueStatus{}, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	var classes []models.ClassState
	if day.Equal(e.today()) {
		classes, err = e.store.GetOrCreateDayState(ctx, day)
	} else {
		classes, err = e.store.GetDayState(ctx, day)
	}
	if err != nil {
		return models.QueueStatus{}, e.fail("queue_status", err)
	}
	return models.QueueStatus{
		QueueDate: day.Format(clock.DateLayout),
		Classes:   classes,
		UpdatedAt: e.clock.Now(),
	}, nil
}

// LookupTicket resolves key as a ticket id, a formatted number such as M12, a
// bare number, or a phone number. Numbers and phones resolve against today.
func (e *Engine) LookupTicket(ctx context.Context, key string) (models.Ticket, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return models.Ticket{}, invalid("ticket", "is required")
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	today := e.today()
	if _, err := uuid.Parse(key); err == nil {
		ticket, err := e.store.GetTicket(ctx, key)
		if err != nil {
			return models.Ticket{}, e.fail("lookup_ticket", err)
		}
		return ticket, nil
	}
	if class, number, ok := models.ParseFormattedNumber(key); ok {
		ticket, err := e.store.FindTicketByNumber(ctx, today, class, number)
		if err != nil {
			return models.Ticket{}, e.fail("lookup_ticket", err)
		}
		return ticket, nil
	}
	if number, err := strconv.Atoi(key); err == nil && number > 0 && len(key) < 8 {
		for _, class := range models.TableClasses {
			ticket, err := e.store.FindTicketByNumber(ctx, today, class, number)
			if err == nil {
				return ticket, nil
			}
			if !errors.Is(err, store.ErrTicketNotFound) {
				return models.Ticket{}, e.fail("lookup_ticket", err)
			}
		}
		return models.Ticket{}, store.ErrTicketNotFound
	}

	phone, err := normalizePhone(key)
	if err != nil {
		return models.Ticket{}, invalid("ticket", "must be a ticket id, ticket number or phone number")
	}
	ticket, err := e.store.FindLatestTicketByPhone(ctx, phone, today)
	if err != nil {
		return models.Ticket{}, e.fail("lookup_ticket", err)
	}
	return ticket, nil
}

// WaitingList returns today's waiting tickets ordered by class then number.
func (e *Engine) WaitingList(ctx context.Context) ([]models.WaitingTicket, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	tickets, err := e.store.ListTickets(ctx, store.TicketFilter{QueueDate: e.today(), Status: models.StatusWaiting})
	if err != nil {
		return nil, e.fail("waiting_list", err)
	}
	now := e.clock.Now()
	loc := e.clock.Location()
	list := make([]models.WaitingTicket, 0, len(tickets))
	for _, ticket := range tickets {
		minutes := int(now.Sub(ticket.CreatedAt).Minutes())
		if minutes < 0 {
			minutes = 0
		}
		masked := models.MaskPhone(ticket.Phone)
		ticket.Phone = ""
		list = append(list, models.WaitingTicket{
			Ticket:         ticket,
			MaskedPhone:    masked,
			FormattedTime:  ticket.CreatedAt.In(loc).Format("15:04"),
			WaitingMinutes: minutes,
		})
	}
	return list, nil
}

// Records lists tickets for date (default today), optionally by status.
func (e *Engine) Records(ctx context.Context, date, status string) ([]models.Ticket, error) {
	day, err := e.parseDay(date)
	if err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", models.StatusWaiting, models.StatusSeated, models.StatusNoShow, models.StatusCancelled:
	default:
		return nil, invalid("status", "unknown ticket status")
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	tickets, err := e.store.ListTickets(ctx, store.TicketFilter{QueueDate: day, Status: status})
	if err != nil {
		return nil, e.fail("records", err)
	}
	return tickets, nil
}

// TicketEvents returns the audit chain of a ticket and whether it verifies.
func (e *Engine) TicketEvents(ctx context.Context, ticketID string) (TicketEvents, error) {
	ticketID = strings.TrimSpace(ticketID)
	if _, err := uuid.Parse(ticketID); err != nil {
		return TicketEvents{}, invalid("ticket_id", "must be a UUID")
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	events, err := e.store.ListTicketEvents(ctx, ticketID)
	if err != nil {
		return TicketEvents{}, e.fail("ticket_events", err)
	}
	if len(events) == 0 {
		return TicketEvents{}, store.ErrTicketNotFound
	}
	broken := store.VerifyTicketEventChain(events)
	result := TicketEvents{
		TicketID: ticketID,
		Events:   events,
		Valid:    broken == 0,
		BrokenAt: broken,
	}

	replayed, err := store.RehydrateTicket(events)
	if err != nil {
		e.log.Warn("ticket event payload unreadable", zap.String("ticket_id", ticketID), zap.Error(err))
		return result, nil
	}
	result.Replayed = replayed

	stored, err := e.store.GetTicket(ctx, ticketID)
	switch {
	case errors.Is(err, store.ErrTicketNotFound):
		return result, nil
	case err != nil:
		return TicketEvents{}, e.fail("ticket_events", err)
	}
	result.Matches = sameTicketState(replayed, stored)
	return result, nil
}

func sameTicketState(replayed, stored models.Ticket) bool {
	return replayed.TicketID == stored.TicketID &&
		replayed.TicketNumber == stored.TicketNumber &&
		replayed.TableClass == stored.TableClass &&
		replayed.QueueDate == stored.QueueDate &&
		replayed.Status == stored.Status
}

func (e *Engine) parseDay(date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return e.today(), nil
	}
	day, err := clock.ParseDate(date)
	if err != nil {
		return time.Time{}, invalid("date", "must be YYYY-MM-DD")
	}
	return day, nil
}
