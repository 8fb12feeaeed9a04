package queue

import (
	"context"

	"go.uber.org/zap"
)

// Rollover makes sure today's queue state exists. It reports whether the
// service day changed since the previous call.
func (e *Engine) Rollover(ctx context.Context) (bool, error) {
	today := e.Today()
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if _, err := e.store.GetOrCreateDayState(ctx, e.today()); err != nil {
		return false, e.fail("rollover", err)
	}

	e.mu.Lock()
	previous := e.activeDay
	e.activeDay = today
	e.mu.Unlock()

	if previous == today {
		return false, nil
	}
	e.log.Info("queue day started", zap.String("queue_date", today), zap.String("previous_date", previous))
	return true, nil
}

// ActiveDay is the service date seen by the last successful Rollover.
func (e *Engine) ActiveDay() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeDay
}

