package queue

import (
	"context"
	"time"

	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/store"
)

type fakeStore struct {
	findOrCreateCustomerFn    func(ctx context.Context, phone string, at time.Time) (models.Customer, error)
	getCustomerFn             func(ctx context.Context, customerID string) (models.Customer, error)
	findCustomerByPhoneFn     func(ctx context.Context, phone string) (models.Customer, error)
	setBlacklistFn            func(ctx context.Context, customerID string, blacklisted bool, at time.Time) (models.Customer, error)
	listBlacklistedFn         func(ctx context.Context) ([]models.Customer, error)
	issueCodeFn               func(ctx context.Context, customerID, code string, createdAt, expiresAt time.Time) (store.VerificationCode, error)
	verifyCodeFn              func(ctx context.Context, customerID, code string, now time.Time) (store.VerificationResult, error)
	verifyCodeByIDFn          func(ctx context.Context, verificationID, code string, now time.Time) (store.VerificationCode, store.VerificationResult, error)
	purgeVerificationCodesFn  func(ctx context.Context, expiredBefore time.Time) (int64, error)
	getOrCreateDayStateFn     func(ctx context.Context, queueDate time.Time) ([]models.ClassState, error)
	getDayStateFn             func(ctx context.Context, queueDate time.Time) ([]models.ClassState, error)
	issueTicketFn             func(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error)
	callNextFn                func(ctx context.Context, input store.CallNextInput) (store.CallResult, error)
	updateTicketStatusFn      func(ctx context.Context, input store.StatusUpdateInput) (store.StatusUpdate, error)
	getTicketFn               func(ctx context.Context, ticketID string) (models.Ticket, error)
	findTicketByNumberFn      func(ctx context.Context, queueDate time.Time, class models.TableClass, number int) (models.Ticket, error)
	findLatestTicketByPhoneFn func(ctx context.Context, phone string, queueDate time.Time) (models.Ticket, error)
	listTicketsFn             func(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error)
	listTicketEventsFn        func(ctx context.Context, ticketID string) ([]store.TicketEvent, error)
	averageWaitMinutesFn      func(ctx context.Context, r store.DateRange) (map[models.TableClass]float64, error)
	countByChannelFn          func(ctx context.Context, r store.DateRange) (map[string]int, error)
	countByStatusFn           func(ctx context.Context, r store.DateRange) (map[string]int, error)
	countByClassFn            func(ctx context.Context, r store.DateRange) (map[models.TableClass]int, error)
	issuedPerMinuteFn         func(ctx context.Context, r store.DateRange) ([]store.TimeBucket, error)
}

func (f *fakeStore) FindOrCreateCustomer(ctx context.Context, phone string, at time.Time) (models.Customer, error) {
	if f.findOrCreateCustomerFn == nil {
		return models.Customer{CustomerID: "c-" + phone, Phone: phone}, nil
	}
	return f.findOrCreateCustomerFn(ctx, phone, at)
}

func (f *fakeStore) GetCustomer(ctx context.Context, customerID string) (models.Customer, error) {
	if f.getCustomerFn == nil {
		return models.Customer{}, store.ErrCustomerNotFound
	}
	return f.getCustomerFn(ctx, customerID)
}

func (f *fakeStore) FindCustomerByPhone(ctx context.Context, phone string) (models.Customer, error) {
	if f.findCustomerByPhoneFn == nil {
		return models.Customer{}, store.ErrCustomerNotFound
	}
	return f.findCustomerByPhoneFn(ctx, phone)
}

func (f *fakeStore) CheckBlacklist(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakeStore) RecordNoShow(context.Context, string, int, time.Time) (models.Customer, bool, error) {
	return models.Customer{}, false, nil
}

func (f *fakeStore) SetBlacklist(ctx context.Context, customerID string, blacklisted bool, at time.Time) (models.Customer, error) {
	if f.setBlacklistFn == nil {
		return models.Customer{CustomerID: customerID, Blacklisted: blacklisted}, nil
	}
	return f.setBlacklistFn(ctx, customerID, blacklisted, at)
}

func (f *fakeStore) ListBlacklisted(ctx context.Context) ([]models.Customer, error) {
	if f.listBlacklistedFn == nil {
		return nil, nil
	}
	return f.listBlacklistedFn(ctx)
}

func (f *fakeStore) IssueCode(ctx context.Context, customerID, code string, createdAt, expiresAt time.Time) (store.VerificationCode, error) {
	if f.issueCodeFn == nil {
		return store.VerificationCode{VerificationID: "v-1", CustomerID: customerID, Code: code, CreatedAt: createdAt, ExpiresAt: expiresAt}, nil
	}
	return f.issueCodeFn(ctx, customerID, code, createdAt, expiresAt)
}

func (f *fakeStore) VerifyCode(ctx context.Context, customerID, code string, now time.Time) (store.VerificationResult, error) {
	if f.verifyCodeFn == nil {
		return store.VerificationNotFound, nil
	}
	return f.verifyCodeFn(ctx, customerID, code, now)
}

func (f *fakeStore) VerifyCodeByID(ctx context.Context, verificationID, code string, now time.Time) (store.VerificationCode, store.VerificationResult, error) {
	if f.verifyCodeByIDFn == nil {
		return store.VerificationCode{}, store.VerificationNotFound, nil
	}
	return f.verifyCodeByIDFn(ctx, verificationID, code, now)
}

func (f *fakeStore) PurgeVerificationCodes(ctx context.Context, expiredBefore time.Time) (int64, error) {
	if f.purgeVerificationCodesFn == nil {
		return 0, nil
	}
	return f.purgeVerificationCodesFn(ctx, expiredBefore)
}

func (f *fakeStore) GetOrCreateDayState(ctx context.Context, queueDate time.Time) ([]models.ClassState, error) {
	if f.getOrCreateDayStateFn == nil {
		return nil, nil
	}
	return f.getOrCreateDayStateFn(ctx, queueDate)
}

func (f *fakeStore) GetDayState(ctx context.Context, queueDate time.Time) ([]models.ClassState, error) {
	if f.getDayStateFn == nil {
		return nil, nil
	}
	return f.getDayStateFn(ctx, queueDate)
}

func (f *fakeStore) IssueTicket(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error) {
	if f.issueTicketFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.issueTicketFn(ctx, input)
}

func (f *fakeStore) CallNext(ctx context.Context, input store.CallNextInput) (store.CallResult, error) {
	if f.callNextFn == nil {
		return store.CallResult{}, store.ErrNoWaitingCustomer
	}
	return f.callNextFn(ctx, input)
}

func (f *fakeStore) UpdateTicketStatus(ctx context.Context, input store.StatusUpdateInput) (store.StatusUpdate, error) {
	if f.updateTicketStatusFn == nil {
		return store.StatusUpdate{}, store.ErrTicketNotFound
	}
	return f.updateTicketStatusFn(ctx, input)
}

func (f *fakeStore) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if f.getTicketFn == nil {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return f.getTicketFn(ctx, ticketID)
}

func (f *fakeStore) FindTicketByNumber(ctx context.Context, queueDate time.Time, class models.TableClass, number int) (models.Ticket, error) {
	if f.findTicketByNumberFn == nil {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return f.findTicketByNumberFn(ctx, queueDate, class, number)
}

func (f *fakeStore) FindLatestTicketByPhone(ctx context.Context, phone string, queueDate time.Time) (models.Ticket, error) {
	if f.findLatestTicketByPhoneFn == nil {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return f.findLatestTicketByPhoneFn(ctx, phone, queueDate)
}

func (f *fakeStore) CountWaiting(context.Context, time.Time, models.TableClass) (int, error) {
	return 0, nil
}

func (f *fakeStore) ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
	if f.listTicketsFn == nil {
		return nil, nil
	}
	return f.listTicketsFn(ctx, filter)
}

func (f *fakeStore) ListTicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error) {
	if f.listTicketEventsFn == nil {
		return nil, nil
	}
	return f.listTicketEventsFn(ctx, ticketID)
}

func (f *fakeStore) AverageWaitMinutes(ctx context.Context, r store.DateRange) (map[models.TableClass]float64, error) {
	if f.averageWaitMinutesFn == nil {
		return nil, nil
	}
	return f.averageWaitMinutesFn(ctx, r)
}

func (f *fakeStore) CountByChannel(ctx context.Context, r store.DateRange) (map[string]int, error) {
	if f.countByChannelFn == nil {
		return nil, nil
	}
	return f.countByChannelFn(ctx, r)
}

func (f *fakeStore) CountByStatus(ctx context.Context, r store.DateRange) (map[string]int, error) {
	if f.countByStatusFn == nil {
		return nil, nil
	}
	return f.countByStatusFn(ctx, r)
}

func (f *fakeStore) CountByClass(ctx context.Context, r store.DateRange) (map[models.TableClass]int, error) {
	if f.countByClassFn == nil {
		return nil, nil
	}
	return f.countByClassFn(ctx, r)
}

func (f *fakeStore) IssuedPerMinute(ctx context.Context, r store.DateRange) ([]store.TimeBucket, error) {
	if f.issuedPerMinuteFn == nil {
		return nil, nil
	}
	return f.issuedPerMinuteFn(ctx, r)
}
