package queue

import (
	"context"
	"math"
	"strings"

	"tablequeue/queue-service/internal/clock"
	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/store"

	"go.uber.org/zap"
)

// Statistics aggregates tickets whose queue date falls in [start, end]. Empty
// bounds default to today and reversed bounds are swapped. A failing
// aggregate is left out and the result marked partial; only when every
// aggregate fails is an error returned.
func (e *Engine) Statistics(ctx context.Context, start, end string) (models.Statistics, error) {
	from, err := e.parseDay(start)
	if err != nil {
		return models.Statistics{}, invalid("start_date", "must be YYYY-MM-DD")
	}
	to, err := e.parseDay(end)
	if err != nil {
		return models.Statistics{}, invalid("end_date", "must be YYYY-MM-DD")
	}
	if to.Before(from) {
		from, to = to, from
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	r := store.DateRange{From: from, To: to}
	stats := models.Statistics{
		StartDate:           from.Format(clock.DateLayout),
		EndDate:             to.Format(clock.DateLayout),
		AvgWaitMinutes:      make(map[string]int),
		ChannelDistribution: map[string]int{models.ChannelOnsite: 0, models.ChannelRemote: 0},
		StatusDistribution:  make(map[string]int),
		TableClassCounts:    make(map[string]int),
		HourlyDistribution:  make([]int, 24),
	}

	var failures []error
	degrade := func(part string, err error) {
		e.log.Warn("statistics aggregate failed", zap.String("aggregate", part), zap.Error(err))
		failures = append(failures, err)
		stats.Partial = true
	}

	if averages, err := e.store.AverageWaitMinutes(ctx, r); err != nil {
		degrade("average_wait", err)
	} else {
		for class, minutes := range averages {
			stats.AvgWaitMinutes[class.String()] = int(math.Round(minutes))
		}
	}
	if channels, err := e.store.CountByChannel(ctx, r); err != nil {
		degrade("channel", err)
	} else {
		for channel, count := range channels {
			stats.ChannelDistribution[channel] = count
		}
	}
	if statuses, err := e.store.CountByStatus(ctx, r); err != nil {
		degrade("status", err)
	} else {
		for status, count := range statuses {
			stats.StatusDistribution[status] = count
		}
	}
	if classes, err := e.store.CountByClass(ctx, r); err != nil {
		degrade("table_class", err)
	} else {
		for _, class := range models.TableClasses {
			stats.TableClassCounts[class.String()] = classes[class]
			stats.TotalTickets += classes[class]
		}
	}
	if buckets, err := e.store.IssuedPerMinute(ctx, r); err != nil {
		degrade("hourly", err)
	} else {
		loc := e.clock.Location()
		for _, bucket := range buckets {
			stats.HourlyDistribution[bucket.Start.In(loc).Hour()] += bucket.Count
		}
	}

	if len(failures) == 5 {
		return models.Statistics{}, e.fail("statistics", failures[0])
	}
	return stats, nil
}

// DailyStatistics is Statistics for a single date.
func (e *Engine) DailyStatistics(ctx context.Context, date string) (models.Statistics, error) {
	date = strings.TrimSpace(date)
	return e.Statistics(ctx, date, date)
}
