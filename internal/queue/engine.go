// Package queue implements ticket issuance, calling, status changes and the
// read-only queue views on top of a transactional store.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"tablequeue/queue-service/internal/clock"
	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/notify"
	"tablequeue/queue-service/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultNoShowThreshold = 3
	DefaultVerificationTTL = 10 * time.Minute
	DefaultStoreTimeout    = 5 * time.Second

	maxPartySize = 100
)

// Notifier accepts best-effort customer notifications.
type Notifier interface {
	Notify(msg notify.Message) bool
}

// Cooldown limits how often a phone may request verification codes.
type Cooldown interface {
	AcquireCooldown(ctx context.Context, phone string) (bool, time.Duration, error)
	ReleaseCooldown(ctx context.Context, phone string) error
}

type Options struct {
	StoreTimeout    time.Duration
	NoShowThreshold int
	VerificationTTL time.Duration
	// ExposeCodes returns verification codes in responses. Never set in production.
	ExposeCodes bool
	Notifier    Notifier
	Cooldown    Cooldown
	// CodeSource overrides the random source for verification codes.
	CodeSource io.Reader
}

type Engine struct {
	store           store.QueueStore
	clock           clock.Clock
	log             *zap.Logger
	storeTimeout    time.Duration
	noShowThreshold int
	verificationTTL time.Duration
	exposeCodes     bool
	notifier        Notifier
	cooldown        Cooldown
	codeSource      io.Reader

	mu        sync.Mutex
	activeDay string
}

func NewEngine(st store.QueueStore, clk clock.Clock, log *zap.Logger, options Options) *Engine {
	if clk == nil {
		clk = clock.NewSystem(time.Local)
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store:           st,
		clock:           clk,
		log:             log,
		storeTimeout:    options.StoreTimeout,
		noShowThreshold: options.NoShowThreshold,
		verificationTTL: options.VerificationTTL,
		exposeCodes:     options.ExposeCodes,
		notifier:        options.Notifier,
		cooldown:        options.Cooldown,
		codeSource:      options.CodeSource,
	}
	if e.storeTimeout <= 0 {
		e.storeTimeout = DefaultStoreTimeout
	}
	if e.noShowThreshold <= 0 {
		e.noShowThreshold = DefaultNoShowThreshold
	}
	if e.verificationTTL <= 0 {
		e.verificationTTL = DefaultVerificationTTL
	}
	return e
}

type IssueRequest struct {
	RequestID string
	Phone     string
	PartySize int
	Code      string
}

type IssueResult struct {
	Ticket models.Ticket
	// Created is false when RequestID replayed an earlier issuance.
	Created bool
}

type CallResult struct {
	Ticket         models.Ticket `json:"ticket"`
	PreviousCalled int           `json:"previous_called"`
	CurrentCalled  int           `json:"current_called"`
	LastIssued     int           `json:"last_issued"`
}

type StatusResult struct {
	Ticket              models.Ticket `json:"ticket"`
	NoShowCount         int           `json:"no_show_count"`
	CustomerBlacklisted bool          `json:"customer_blacklisted"`
	Escalated           bool          `json:"escalated"`
}

func (e *Engine) IssueOnsiteTicket(ctx context.Context, req IssueRequest) (IssueResult, error) {
	req.Code = ""
	return e.issue(ctx, req, models.ChannelOnsite)
}

// IssueRemoteTicket issues a ticket only after req.Code verifies for the
// phone. The code is consumed together with the issuance.
func (e *Engine) IssueRemoteTicket(ctx context.Context, req IssueRequest) (IssueResult, error) {
	code := strings.TrimSpace(req.Code)
	if !isCode(code) {
		return IssueResult{}, invalid("verification_code", "must be 6 digits")
	}
	req.Code = code
	return e.issue(ctx, req, models.ChannelRemote)
}

func (e *Engine) issue(ctx context.Context, req IssueRequest, channel string) (IssueResult, error) {
	phone, err := normalizePhone(req.Phone)
	if err != nil {
		return IssueResult{}, err
	}
	if req.PartySize <= 0 || req.PartySize > maxPartySize {
		return IssueResult{}, invalid("party_size", fmt.Sprintf("must be between 1 and %d", maxPartySize))
	}
	requestID := strings.TrimSpace(req.RequestID)
	if requestID != "" {
		if _, err := uuid.Parse(requestID); err != nil {
			return IssueResult{}, invalid("request_id", "must be a UUID")
		}
	}

	now := e.clock.Now()
	class := models.ClassForPartySize(req.PartySize)
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	ticket, created, err := e.store.IssueTicket(ctx, store.IssueTicketInput{
		RequestID:  requestID,
		Phone:      phone,
		PartySize:  req.PartySize,
		TableClass: class,
		Channel:    channel,
		Code:       req.Code,
		QueueDate:  e.today(),
		CreatedAt:  now,
	})
	if err != nil {
		return IssueResult{}, e.fail("issue_ticket", err)
	}

	if created {
		e.log.Info("ticket issued",
			zap.String("ticket_id", ticket.TicketID),
			zap.String("number", ticket.FormattedNumber),
			zap.String("channel", channel),
			zap.Int("party_size", ticket.PartySize),
			zap.Int("waiting_ahead", ticket.WaitingCountAtCreation))
		e.notifyIssued(ctx, ticket)
	}
	return IssueResult{Ticket: ticket, Created: created}, nil
}

// CallNext summons the lowest waiting ticket above the class's called number.
// The ticket stays waiting until staff seat it or mark it.
func (e *Engine) CallNext(ctx context.Context, class models.TableClass) (CallResult, error) {
	if !class.Valid() {
		return CallResult{}, invalid("table_type_id", "must be 1, 2 or 3")
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	result, err := e.store.CallNext(ctx, store.CallNextInput{
		QueueDate:  e.today(),
		TableClass: class,
		CalledAt:   e.clock.Now(),
	})
	if err != nil {
		return CallResult{}, e.fail("call_next", err)
	}

	e.log.Info("ticket called",
		zap.String("ticket_id", result.Ticket.TicketID),
		zap.String("number", result.Ticket.FormattedNumber),
		zap.Int("previous_called", result.PreviousCalled))
	e.send(notify.Message{
		Kind:       notify.KindTicketCalled,
		CustomerID: result.Ticket.CustomerID,
		TicketID:   result.Ticket.TicketID,
		Recipient:  result.Ticket.Phone,
		Vars: map[string]string{
			"formatted_number": result.Ticket.FormattedNumber,
			"table_type":       result.Ticket.TableClassName,
		},
	})
	return CallResult{
		Ticket:         result.Ticket,
		PreviousCalled: result.PreviousCalled,
		CurrentCalled:  result.Ticket.TicketNumber,
		LastIssued:     result.LastIssued,
	}, nil
}

// SetTicketStatus moves a waiting ticket to seated, no_show or cancelled. A
// remote no-show counts against the customer and may blacklist them.
func (e *Engine) SetTicketStatus(ctx context.Context, ticketID, status string) (StatusResult, error) {
	ticketID = strings.TrimSpace(ticketID)
	if _, err := uuid.Parse(ticketID); err != nil {
		return StatusResult{}, invalid("ticket_id", "must be a UUID")
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if !store.IsSettableStatus(status) {
		return StatusResult{}, invalid("status", "must be seated, no_show or cancelled")
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	update, err := e.store.UpdateTicketStatus(ctx, store.StatusUpdateInput{
		TicketID:        ticketID,
		Status:          status,
		OccurredAt:      e.clock.Now(),
		NoShowThreshold: e.noShowThreshold,
	})
	if err != nil {
		return StatusResult{}, e.fail("set_ticket_status", err)
	}

	if update.Escalated {
		e.log.Info("customer blacklisted after repeated no-shows",
			zap.String("customer_id", update.Customer.CustomerID),
			zap.Int("no_show_count", update.Customer.NoShowCount))
	}
	return StatusResult{
		Ticket:              update.Ticket,
		NoShowCount:         update.Customer.NoShowCount,
		CustomerBlacklisted: update.Customer.Blacklisted,
		Escalated:           update.Escalated,
	}, nil
}

func (e *Engine) TableTypes() []models.TableType {
	return models.TableTypes()
}

// Today is the service date in the engine's time zone.
func (e *Engine) Today() string {
	return clock.Today(e.clock)
}

func (e *Engine) today() time.Time {
	date, _ := clock.ParseDate(e.Today())
	return date
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.storeTimeout)
}

// fail turns store deadline errors into the retryable busy error and logs
// invariant violations with their context.
func (e *Engine) fail(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, store.ErrBusy) {
		err = fmt.Errorf("%w: %s timed out: %w", store.ErrBusy, op, err)
	}
	var invariant *store.InvariantError
	if errors.As(err, &invariant) {
		fields := []zap.Field{
			zap.String("op", op),
			zap.String("invariant_op", invariant.Op),
			zap.String("detail", invariant.Detail),
		}
		for key, value := range invariant.Fields {
			fields = append(fields, zap.Any(key, value))
		}
		e.log.Error("state invariant violated", fields...)
	} else if errors.Is(err, store.ErrBusy) {
		e.log.Warn("store busy", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (e *Engine) send(msg notify.Message) {
	if e.notifier == nil || msg.Recipient == "" {
		return
	}
	if !e.notifier.Notify(msg) {
		e.log.Debug("notification not queued", zap.String("kind", msg.Kind), zap.String("ticket_id", msg.TicketID))
	}
}

func (e *Engine) notifyIssued(ctx context.Context, ticket models.Ticket) {
	if e.notifier == nil {
		return
	}
	nowCalling := "-"
	if states, err := e.store.GetOrCreateDayState(ctx, e.today()); err == nil {
		for _, state := range states {
			if state.TableClass == ticket.TableClass && state.CurrentCalled > 0 {
				nowCalling = state.TableClass.Format(state.CurrentCalled)
			}
		}
	}
	e.send(notify.Message{
		Kind:       notify.KindTicketIssued,
		CustomerID: ticket.CustomerID,
		TicketID:   ticket.TicketID,
		Recipient:  ticket.Phone,
		Vars: map[string]string{
			"formatted_number": ticket.FormattedNumber,
			"table_type":       ticket.TableClassName,
			"current_called":   nowCalling,
			"waiting_count":    fmt.Sprint(ticket.WaitingCountAtCreation),
		},
	})
}

// normalizePhone strips common separators and requires 8-16 digits, with an
// optional leading plus.
func normalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", invalid("phone_number", "must contain digits only")
		}
	}
	phone := b.String()
	digits := strings.TrimPrefix(phone, "+")
	if digits == "" {
		return "", invalid("phone_number", "is required")
	}
	if len(digits) < 8 || len(digits) > 16 {
		return "", invalid("phone_number", "must be 8-16 digits")
	}
	return phone, nil
}

func isCode(value string) bool {
	if len(value) != 6 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
