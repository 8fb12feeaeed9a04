package queue

import (
	"context"
	"errors"
	"strings"

	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CustomerCheck struct {
	CustomerID  string `json:"customer_id"`
	Phone       string `json:"phone_number"`
	NoShowCount int    `json:"no_show_count"`
	Blacklisted bool   `json:"blacklisted"`
}

// CheckCustomer looks the phone up, registering it on first contact.
func (e *Engine) CheckCustomer(ctx context.Context, phone string) (CustomerCheck, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return CustomerCheck{}, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	customer, err := e.store.FindOrCreateCustomer(ctx, phone, e.clock.Now())
	if err != nil {
		return CustomerCheck{}, e.fail("check_customer", err)
	}
	return CustomerCheck{
		CustomerID:  customer.CustomerID,
		Phone:       customer.Phone,
		NoShowCount: customer.NoShowCount,
		Blacklisted: customer.Blacklisted,
	}, nil
}

func (e *Engine) ListBlacklist(ctx context.Context) ([]models.Customer, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	customers, err := e.store.ListBlacklisted(ctx)
	if err != nil {
		return nil, e.fail("list_blacklist", err)
	}
	return customers, nil
}

// AddToBlacklist blacklists the customer behind phone, creating it if needed.
func (e *Engine) AddToBlacklist(ctx context.Context, phone string) (models.Customer, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return models.Customer{}, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	now := e.clock.Now()
	customer, err := e.store.FindOrCreateCustomer(ctx, phone, now)
	if err != nil {
		return models.Customer{}, e.fail("add_to_blacklist", err)
	}
	customer, err = e.store.SetBlacklist(ctx, customer.CustomerID, true, now)
	if err != nil {
		return models.Customer{}, e.fail("add_to_blacklist", err)
	}
	e.log.Info("customer blacklisted", zap.String("customer_id", customer.CustomerID))
	return customer, nil
}

// SetBlacklist sets the flag on an existing customer. Clearing it also resets
// the no-show count.
func (e *Engine) SetBlacklist(ctx context.Context, customerID string, blacklisted bool) (models.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if _, err := uuid.Parse(customerID); err != nil {
		return models.Customer{}, invalid("customer_id", "must be a UUID")
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	customer, err := e.store.SetBlacklist(ctx, customerID, blacklisted, e.clock.Now())
	if err != nil {
		if !errors.Is(err, store.ErrCustomerNotFound) {
			err = e.fail("set_blacklist", err)
		}
		return models.Customer{}, err
	}
	e.log.Info("customer blacklist updated",
		zap.String("customer_id", customer.CustomerID),
		zap.Bool("blacklisted", customer.Blacklisted))
	return customer, nil
}
