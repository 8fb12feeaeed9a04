package postgres

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
	container     testcontainers.Container
)

func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		_ = container.Terminate(context.Background())
	}
	os.Exit(code)
}

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestIssueTicketConcurrentNumbersUnique(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	const issuers = 20
	var wg sync.WaitGroup
	numbers := make(chan int, issuers)
	errs := make(chan error, issuers)
	for i := 0; i < issuers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, _, err := st.IssueTicket(ctx, store.IssueTicketInput{
				Phone:      fmt.Sprintf("09000000%02d", i),
				PartySize:  2,
				TableClass: models.TableSmall,
				Channel:    models.ChannelOnsite,
				QueueDate:  day,
				CreatedAt:  at(12, 0),
			})
			if err != nil {
				errs <- err
				return
			}
			numbers <- ticket.TicketNumber
		}(i)
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Fatalf("issue ticket: %v", err)
	}
	var got []int
	for number := range numbers {
		got = append(got, number)
	}
	sort.Ints(got)
	require.Len(t, got, issuers)
	for i, number := range got {
		assert.Equal(t, i+1, number)
	}

	states, err := st.GetOrCreateDayState(ctx, day)
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, issuers, states[0].LastIssued)
	assert.Equal(t, issuers, states[0].WaitingCount)
	assert.Equal(t, 0, states[1].LastIssued)
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	require.NoError(t, Migrate(ctx, pool))
	version, dirty, err := MigrationVersion(pool)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	var tables int
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name IN ('customers', 'tickets', 'ticket_events')
	`).Scan(&tables))
	assert.Equal(t, 3, tables)
}

func TestGetDayStateDoesNotCreateRows(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	issueOnsite(t, ctx, st, "0911000001", 2)
	states, err := st.GetDayState(ctx, day)
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, 1, states[0].LastIssued)
	assert.Equal(t, 1, states[0].WaitingCount)
	assert.Equal(t, "medium", states[1].Name)

	future := day.AddDate(1, 0, 0)
	states, err = st.GetDayState(ctx, future)
	require.NoError(t, err)
	require.Len(t, states, 3)
	for _, state := range states {
		assert.Zero(t, state.LastIssued)
		assert.Zero(t, state.CurrentCalled)
		assert.Zero(t, state.WaitingCount)
	}

	var rows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM daily_queue_state WHERE queue_date = $1`, future).Scan(&rows))
	assert.Zero(t, rows)
}

func TestCallNextMonotonic(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	first := issueOnsite(t, ctx, st, "0911000001", 2)
	second := issueOnsite(t, ctx, st, "0911000002", 2)
	third := issueOnsite(t, ctx, st, "0911000003", 2)

	_, err := st.UpdateTicketStatus(ctx, store.StatusUpdateInput{TicketID: second.TicketID, Status: models.StatusCancelled, OccurredAt: at(12, 5)})
	require.NoError(t, err)

	called, err := st.CallNext(ctx, store.CallNextInput{QueueDate: day, TableClass: models.TableSmall, CalledAt: at(12, 10)})
	require.NoError(t, err)
	assert.Equal(t, first.TicketID, called.Ticket.TicketID)
	assert.Equal(t, 0, called.PreviousCalled)
	assert.Equal(t, models.StatusWaiting, called.Ticket.Status)

	called, err = st.CallNext(ctx, store.CallNextInput{QueueDate: day, TableClass: models.TableSmall, CalledAt: at(12, 11)})
	require.NoError(t, err)
	assert.Equal(t, third.TicketID, called.Ticket.TicketID)
	assert.Equal(t, 1, called.PreviousCalled)

	_, err = st.CallNext(ctx, store.CallNextInput{QueueDate: day, TableClass: models.TableSmall, CalledAt: at(12, 12)})
	assert.ErrorIs(t, err, store.ErrNoWaitingCustomer)

	states, err := st.GetOrCreateDayState(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 3, states[0].CurrentCalled)
	assert.Equal(t, 3, states[0].LastIssued)
}

func TestCallNextConcurrentCallsDistinctTickets(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	issueOnsite(t, ctx, st, "0911000001", 4)
	issueOnsite(t, ctx, st, "0911000002", 4)

	var wg sync.WaitGroup
	results := make(chan callResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := st.CallNext(ctx, store.CallNextInput{QueueDate: day, TableClass: models.TableMedium, CalledAt: at(13, 0)})
			results <- callResult{number: result.Ticket.TicketNumber, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var numbers []int
	for result := range results {
		require.NoError(t, result.err)
		numbers = append(numbers, result.number)
	}
	sort.Ints(numbers)
	assert.Equal(t, []int{1, 2}, numbers)
}

func TestRemoteNoShowsBlacklistExactlyOnce(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	phone := "0922000001"
	var tickets []models.Ticket
	for i := 0; i < 3; i++ {
		tickets = append(tickets, issueRemote(t, ctx, st, phone, 2, at(12, i)))
	}

	var wg sync.WaitGroup
	updates := make(chan store.StatusUpdate, len(tickets))
	errs := make(chan error, len(tickets))
	for _, ticket := range tickets {
		wg.Add(1)
		go func(ticketID string) {
			defer wg.Done()
			update, err := st.UpdateTicketStatus(ctx, store.StatusUpdateInput{
				TicketID:        ticketID,
				Status:          models.StatusNoShow,
				OccurredAt:      at(14, 0),
				NoShowThreshold: 3,
			})
			if err != nil {
				errs <- err
				return
			}
			updates <- update
		}(ticket.TicketID)
	}
	wg.Wait()
	close(updates)
	close(errs)

	for err := range errs {
		t.Fatalf("no-show: %v", err)
	}
	escalations := 0
	for update := range updates {
		if update.Escalated {
			escalations++
		}
	}
	assert.Equal(t, 1, escalations)

	customer, err := st.FindCustomerByPhone(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, 3, customer.NoShowCount)
	assert.True(t, customer.Blacklisted)

	_, _, err = st.IssueTicket(ctx, store.IssueTicketInput{
		Phone:      phone,
		PartySize:  2,
		TableClass: models.TableSmall,
		Channel:    models.ChannelOnsite,
		QueueDate:  day,
		CreatedAt:  at(15, 0),
	})
	assert.ErrorIs(t, err, store.ErrBlacklisted)
}

func TestOnsiteNoShowDoesNotCount(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	ticket := issueOnsite(t, ctx, st, "0933000001", 1)
	update, err := st.UpdateTicketStatus(ctx, store.StatusUpdateInput{
		TicketID:        ticket.TicketID,
		Status:          models.StatusNoShow,
		OccurredAt:      at(13, 0),
		NoShowThreshold: 1,
	})
	require.NoError(t, err)
	assert.False(t, update.Escalated)
	assert.Equal(t, 0, update.Customer.NoShowCount)
	assert.False(t, update.Customer.Blacklisted)
}

func TestVerificationLifecycle(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	customer, err := st.FindOrCreateCustomer(ctx, "0944000001", at(10, 0))
	require.NoError(t, err)

	result, err := st.VerifyCode(ctx, customer.CustomerID, "123456", at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, store.VerificationNotFound, result)

	_, err = st.IssueCode(ctx, customer.CustomerID, "123456", at(10, 0), at(10, 10))
	require.NoError(t, err)

	result, err = st.VerifyCode(ctx, customer.CustomerID, "654321", at(10, 1))
	require.NoError(t, err)
	assert.Equal(t, store.VerificationInvalid, result)

	result, err = st.VerifyCode(ctx, customer.CustomerID, "123456", at(10, 1))
	require.NoError(t, err)
	assert.Equal(t, store.VerificationValid, result)

	result, err = st.VerifyCode(ctx, customer.CustomerID, "123456", at(10, 2))
	require.NoError(t, err)
	assert.Equal(t, store.VerificationAlreadyUsed, result)

	issued, err := st.IssueCode(ctx, customer.CustomerID, "777777", at(11, 0), at(11, 10))
	require.NoError(t, err)
	verification, result, err := st.VerifyCodeByID(ctx, issued.VerificationID, "777777", at(11, 10))
	require.NoError(t, err)
	assert.Equal(t, store.VerificationExpired, result)
	assert.Equal(t, "0944000001", verification.Phone)

	_, result, err = st.VerifyCodeByID(ctx, uuid.NewString(), "777777", at(11, 0))
	require.NoError(t, err)
	assert.Equal(t, store.VerificationNotFound, result)

	purged, err := st.PurgeVerificationCodes(ctx, at(12, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)
}

func TestRemoteIssuanceKeepsCodeWhenRejected(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	customer, err := st.FindOrCreateCustomer(ctx, "0955000001", at(10, 0))
	require.NoError(t, err)
	_, err = st.SetBlacklist(ctx, customer.CustomerID, true, at(10, 0))
	require.NoError(t, err)
	_, err = st.IssueCode(ctx, customer.CustomerID, "246810", at(10, 0), at(10, 10))
	require.NoError(t, err)

	_, _, err = st.IssueTicket(ctx, store.IssueTicketInput{
		Phone:      customer.Phone,
		PartySize:  2,
		TableClass: models.TableSmall,
		Channel:    models.ChannelRemote,
		Code:       "246810",
		QueueDate:  day,
		CreatedAt:  at(10, 1),
	})
	require.ErrorIs(t, err, store.ErrBlacklisted)

	result, err := st.VerifyCode(ctx, customer.CustomerID, "246810", at(10, 2))
	require.NoError(t, err)
	assert.Equal(t, store.VerificationValid, result)

	states, err := st.GetOrCreateDayState(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 0, states[0].LastIssued)

	_, _, err = st.IssueTicket(ctx, store.IssueTicketInput{
		Phone:      "0955000002",
		PartySize:  2,
		TableClass: models.TableSmall,
		Channel:    models.ChannelRemote,
		Code:       "000000",
		QueueDate:  day,
		CreatedAt:  at(10, 3),
	})
	var verificationErr *store.VerificationError
	require.ErrorAs(t, err, &verificationErr)
	assert.Equal(t, store.VerificationNotFound, verificationErr.Result)
}

func TestBlacklistRemovalResetsCount(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	phone := "0966000001"
	ticket := issueRemote(t, ctx, st, phone, 3, at(12, 0))
	update, err := st.UpdateTicketStatus(ctx, store.StatusUpdateInput{
		TicketID:        ticket.TicketID,
		Status:          models.StatusNoShow,
		OccurredAt:      at(12, 30),
		NoShowThreshold: 1,
	})
	require.NoError(t, err)
	require.True(t, update.Escalated)

	listed, err := st.ListBlacklisted(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, phone, listed[0].Phone)

	customer, err := st.SetBlacklist(ctx, update.Customer.CustomerID, false, at(13, 0))
	require.NoError(t, err)
	assert.False(t, customer.Blacklisted)
	assert.Equal(t, 0, customer.NoShowCount)
	assert.True(t, customer.ListedSince.Equal(at(13, 0)))

	blacklisted, err := st.CheckBlacklist(ctx, customer.CustomerID)
	require.NoError(t, err)
	assert.False(t, blacklisted)
}

func TestCancelledTicketCannotBeSeated(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	ticket := issueOnsite(t, ctx, st, "0977000001", 5)
	_, err := st.UpdateTicketStatus(ctx, store.StatusUpdateInput{TicketID: ticket.TicketID, Status: models.StatusCancelled, OccurredAt: at(12, 1)})
	require.NoError(t, err)

	_, err = st.UpdateTicketStatus(ctx, store.StatusUpdateInput{TicketID: ticket.TicketID, Status: models.StatusSeated, OccurredAt: at(12, 2)})
	assert.ErrorIs(t, err, store.ErrInvalidState)

	reloaded, err := st.GetTicket(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, reloaded.Status)
	assert.Nil(t, reloaded.SeatedAt)

	_, err = st.UpdateTicketStatus(ctx, store.StatusUpdateInput{TicketID: uuid.NewString(), Status: models.StatusSeated})
	assert.ErrorIs(t, err, store.ErrTicketNotFound)
}

func TestIssueTicketIdempotentRequest(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	input := store.IssueTicketInput{
		RequestID:  uuid.NewString(),
		Phone:      "0988000001",
		PartySize:  2,
		TableClass: models.TableSmall,
		Channel:    models.ChannelOnsite,
		QueueDate:  day,
		CreatedAt:  at(12, 0),
	}
	first, created, err := st.IssueTicket(ctx, input)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := st.IssueTicket(ctx, input)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.TicketID, second.TicketID)
	assert.Equal(t, input.RequestID, second.RequestID)

	count, err := st.CountWaiting(ctx, day, models.TableSmall)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOnsiteScenarioMediumParty(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	earlier := issueOnsite(t, ctx, st, "0900111222", 4)
	_, err := st.UpdateTicketStatus(ctx, store.StatusUpdateInput{TicketID: earlier.TicketID, Status: models.StatusCancelled, OccurredAt: at(11, 0)})
	require.NoError(t, err)

	before, err := st.GetOrCreateDayState(ctx, day)
	require.NoError(t, err)
	medium := before[models.TableMedium-1]

	ticket := issueOnsite(t, ctx, st, "0912345678", 3)
	assert.Equal(t, models.TableMedium, ticket.TableClass)
	assert.Equal(t, medium.LastIssued+1, ticket.TicketNumber)
	assert.Equal(t, medium.WaitingCount, ticket.WaitingCountAtCreation)
	assert.Equal(t, "M2", ticket.FormattedNumber)
	assert.Equal(t, "0912345678", ticket.Phone)

	called, err := st.CallNext(ctx, store.CallNextInput{QueueDate: day, TableClass: models.TableMedium, CalledAt: at(12, 30)})
	require.NoError(t, err)
	assert.Equal(t, ticket.TicketID, called.Ticket.TicketID)

	latest, err := st.FindLatestTicketByPhone(ctx, "0912345678", day)
	require.NoError(t, err)
	assert.Equal(t, ticket.TicketID, latest.TicketID)

	byNumber, err := st.FindTicketByNumber(ctx, day, models.TableMedium, 2)
	require.NoError(t, err)
	assert.Equal(t, ticket.TicketID, byNumber.TicketID)
}

func TestTicketEventChainVerifies(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	ticket := issueOnsite(t, ctx, st, "0999000001", 2)
	_, err := st.CallNext(ctx, store.CallNextInput{QueueDate: day, TableClass: models.TableSmall, CalledAt: at(12, 15)})
	require.NoError(t, err)
	_, err = st.UpdateTicketStatus(ctx, store.StatusUpdateInput{TicketID: ticket.TicketID, Status: models.StatusSeated, OccurredAt: at(12, 20)})
	require.NoError(t, err)

	events, err := st.ListTicketEvents(ctx, ticket.TicketID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, store.EventTicketIssued, events[0].Type)
	assert.Equal(t, store.EventTicketCalled, events[1].Type)
	assert.Equal(t, store.EventTicketSeated, events[2].Type)
	assert.Equal(t, 0, store.VerifyTicketEventChain(events))

	rebuilt, err := store.RehydrateTicket(events)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSeated, rebuilt.Status)
	assert.Equal(t, ticket.TicketNumber, rebuilt.TicketNumber)
}

func TestStatisticsQueries(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	onsite := issueOnsite(t, ctx, st, "0901000001", 3)
	remote := issueRemote(t, ctx, st, "0901000002", 6, at(12, 5))
	_, err := st.UpdateTicketStatus(ctx, store.StatusUpdateInput{TicketID: onsite.TicketID, Status: models.StatusSeated, OccurredAt: at(12, 15)})
	require.NoError(t, err)
	_, err = st.UpdateTicketStatus(ctx, store.StatusUpdateInput{TicketID: remote.TicketID, Status: models.StatusCancelled, OccurredAt: at(12, 20)})
	require.NoError(t, err)

	r := store.DateRange{From: day, To: day}
	averages, err := st.AverageWaitMinutes(ctx, r)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, averages[models.TableMedium], 0.001)
	_, ok := averages[models.TableLarge]
	assert.False(t, ok)

	channels, err := st.CountByChannel(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{models.ChannelOnsite: 1, models.ChannelRemote: 1}, channels)

	statuses, err := st.CountByStatus(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{models.StatusSeated: 1, models.StatusCancelled: 1}, statuses)

	classes, err := st.CountByClass(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, map[models.TableClass]int{models.TableMedium: 1, models.TableLarge: 1}, classes)

	buckets, err := st.IssuedPerMinute(ctx, r)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.True(t, buckets[0].Start.Equal(at(12, 0)))
	assert.Equal(t, 1, buckets[0].Count)

	tickets, err := st.ListTickets(ctx, store.TicketFilter{QueueDate: day, Status: models.StatusSeated})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, onsite.TicketID, tickets[0].TicketID)
}

func TestEmployeesAndNotificationLog(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	created, err := st.EnsureEmployee(ctx, models.Employee{Username: "admin", Name: "Admin", Role: models.RoleAdmin, PasswordHash: "hash", Active: true})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = st.EnsureEmployee(ctx, models.Employee{Username: "admin", Role: models.RoleAdmin, PasswordHash: "other", Active: true})
	require.NoError(t, err)
	assert.False(t, created)

	employee, err := st.GetEmployeeByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "hash", employee.PasswordHash)
	_, err = st.GetEmployeeByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrEmployeeNotFound)

	require.NoError(t, st.RecordNotification(ctx, store.NotificationRecord{
		Kind:      "verification",
		Recipient: "0912345678",
		Message:   "code",
		Provider:  "log",
		Status:    "sent",
	}))
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM notification_log`).Scan(&count))
	assert.Equal(t, 1, count)
}

type callResult struct {
	number int
	err    error
}

func issueOnsite(t *testing.T, ctx context.Context, st *Store, phone string, partySize int) models.Ticket {
	t.Helper()
	ticket, created, err := st.IssueTicket(ctx, store.IssueTicketInput{
		Phone:      phone,
		PartySize:  partySize,
		TableClass: models.ClassForPartySize(partySize),
		Channel:    models.ChannelOnsite,
		QueueDate:  day,
		CreatedAt:  at(12, 0),
	})
	if err != nil {
		t.Fatalf("issue onsite ticket: %v", err)
	}
	if !created {
		t.Fatalf("expected a new ticket")
	}
	return ticket
}

func issueRemote(t *testing.T, ctx context.Context, st *Store, phone string, partySize int, when time.Time) models.Ticket {
	t.Helper()
	customer, err := st.FindOrCreateCustomer(ctx, phone, when)
	if err != nil {
		t.Fatalf("find customer: %v", err)
	}
	code := fmt.Sprintf("%06d", when.Hour()*100+when.Minute())
	if _, err := st.IssueCode(ctx, customer.CustomerID, code, when, when.Add(10*time.Minute)); err != nil {
		t.Fatalf("issue code: %v", err)
	}
	ticket, _, err := st.IssueTicket(ctx, store.IssueTicketInput{
		Phone:      phone,
		PartySize:  partySize,
		TableClass: models.ClassForPartySize(partySize),
		Channel:    models.ChannelRemote,
		Code:       code,
		QueueDate:  day,
		CreatedAt:  when,
	})
	if err != nil {
		t.Fatalf("issue remote ticket: %v", err)
	}
	return ticket
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = startPostgres(t)
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	st := NewStore(pool, Options{LockTimeout: 5 * time.Second})
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return st, pool, cleanup
}

// startPostgres runs one disposable postgres container for the whole package.
func startPostgres(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	containerOnce.Do(func() {
		ctx := context.Background()
		c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "postgres:16-alpine",
				ExposedPorts: []string{"5432/tcp"},
				Env: map[string]string{
					"POSTGRES_USER":     "queue",
					"POSTGRES_PASSWORD": "queue",
					"POSTGRES_DB":       "queue",
				},
				WaitingFor: wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60 * time.Second),
			},
			Started: true,
		})
		if err != nil {
			containerErr = err
			return
		}
		container = c
		host, err := c.Host(ctx)
		if err != nil {
			containerErr = err
			return
		}
		port, err := c.MappedPort(ctx, "5432")
		if err != nil {
			containerErr = err
			return
		}
		containerDSN = fmt.Sprintf("postgres://queue:queue@%s:%s/queue?sslmode=disable", host, port.Port())
	})
	if containerErr != nil {
		t.Skipf("postgres container unavailable: %v", containerErr)
	}
	return containerDSN
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}
