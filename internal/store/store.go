package store

import (
	"context"
	"time"

	"tablequeue/queue-service/internal/models"
)

type IssueTicketInput struct {
	RequestID  string
	Phone      string
	PartySize  int
	TableClass models.TableClass
	Channel    string
	// Code is consumed in the issuing transaction when Channel is remote.
	Code      string
	QueueDate time.Time
	CreatedAt time.Time
}

type CallNextInput struct {
	QueueDate  time.Time
	TableClass models.TableClass
	CalledAt   time.Time
}

type CallResult struct {
	Ticket         models.Ticket
	PreviousCalled int
	LastIssued     int
}

type StatusUpdateInput struct {
	TicketID        string
	Status          string
	OccurredAt      time.Time
	NoShowThreshold int
}

type StatusUpdate struct {
	Ticket    models.Ticket
	Customer  models.Customer
	Escalated bool
}

type TicketFilter struct {
	QueueDate  time.Time
	Status     string
	TableClass models.TableClass
}

type DateRange struct {
	From time.Time
	To   time.Time
}

// TimeBucket counts tickets issued within the minute starting at Start.
type TimeBucket struct {
	Start time.Time
	Count int
}

type NotificationRecord struct {
	NotificationID string
	CustomerID     string
	TicketID       string
	Kind           string
	Recipient      string
	Message        string
	Provider       string
	Status         string
	LastError      string
	CreatedAt      time.Time
}

type CustomerDirectory interface {
	FindOrCreateCustomer(ctx context.Context, phone string, at time.Time) (models.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (models.Customer, error)
	FindCustomerByPhone(ctx context.Context, phone string) (models.Customer, error)
	CheckBlacklist(ctx context.Context, customerID string) (bool, error)
	RecordNoShow(ctx context.Context, customerID string, threshold int, at time.Time) (models.Customer, bool, error)
	SetBlacklist(ctx context.Context, customerID string, blacklisted bool, at time.Time) (models.Customer, error)
	ListBlacklisted(ctx context.Context) ([]models.Customer, error)
}

type VerificationStore interface {
	IssueCode(ctx context.Context, customerID, code string, createdAt, expiresAt time.Time) (VerificationCode, error)
	VerifyCode(ctx context.Context, customerID, code string, now time.Time) (VerificationResult, error)
	VerifyCodeByID(ctx context.Context, verificationID, code string, now time.Time) (VerificationCode, VerificationResult, error)
	PurgeVerificationCodes(ctx context.Context, expiredBefore time.Time) (int64, error)
}

type DayStateStore interface {
	GetOrCreateDayState(ctx context.Context, queueDate time.Time) ([]models.ClassState, error)
	GetDayState(ctx context.Context, queueDate time.Time) ([]models.ClassState, error)
}

type TicketLedger interface {
	IssueTicket(ctx context.Context, input IssueTicketInput) (models.Ticket, bool, error)
	CallNext(ctx context.Context, input CallNextInput) (CallResult, error)
	UpdateTicketStatus(ctx context.Context, input StatusUpdateInput) (StatusUpdate, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	FindTicketByNumber(ctx context.Context, queueDate time.Time, class models.TableClass, number int) (models.Ticket, error)
	FindLatestTicketByPhone(ctx context.Context, phone string, queueDate time.Time) (models.Ticket, error)
	CountWaiting(ctx context.Context, queueDate time.Time, class models.TableClass) (int, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]models.Ticket, error)
	ListTicketEvents(ctx context.Context, ticketID string) ([]TicketEvent, error)
}

type StatisticsStore interface {
	AverageWaitMinutes(ctx context.Context, r DateRange) (map[models.TableClass]float64, error)
	CountByChannel(ctx context.Context, r DateRange) (map[string]int, error)
	CountByStatus(ctx context.Context, r DateRange) (map[string]int, error)
	CountByClass(ctx context.Context, r DateRange) (map[models.TableClass]int, error)
	IssuedPerMinute(ctx context.Context, r DateRange) ([]TimeBucket, error)
}

type EmployeeStore interface {
	GetEmployeeByUsername(ctx context.Context, username string) (models.Employee, error)
	EnsureEmployee(ctx context.Context, employee models.Employee) (bool, error)
}

type NotificationLog interface {
	RecordNotification(ctx context.Context, record NotificationRecord) error
}

// QueueStore is everything the queue engine needs from persistence.
type QueueStore interface {
	CustomerDirectory
	VerificationStore
	DayStateStore
	TicketLedger
	StatisticsStore
}
