package postgres

import (
	"context"

	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/store"
)

// AverageWaitMinutes averages seated_at - created_at of seated tickets per class.
func (s *Store) AverageWaitMinutes(ctx context.Context, r store.DateRange) (map[models.TableClass]float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT table_class, AVG(EXTRACT(EPOCH FROM (seated_at - created_at)) / 60.0)::float8
		FROM tickets
		WHERE queue_date BETWEEN $1 AND $2 AND status = $3 AND seated_at IS NOT NULL
		GROUP BY table_class
	`, r.From, r.To, models.StatusSeated)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	averages := make(map[models.TableClass]float64)
	for rows.Next() {
		var class int16
		var minutes float64
		if err := rows.Scan(&class, &minutes); err != nil {
			return nil, err
		}
		averages[models.TableClass(class)] = minutes
	}
	return averages, translateError(rows.Err())
}

func (s *Store) CountByChannel(ctx context.Context, r store.DateRange) (map[string]int, error) {
	return s.countBy(ctx, "channel", r)
}

func (s *Store) CountByStatus(ctx context.Context, r store.DateRange) (map[string]int, error) {
	return s.countBy(ctx, "status", r)
}

func (s *Store) CountByClass(ctx context.Context, r store.DateRange) (map[models.TableClass]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT table_class, COUNT(*)
		FROM tickets
		WHERE queue_date BETWEEN $1 AND $2
		GROUP BY table_class
	`, r.From, r.To)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	counts := make(map[models.TableClass]int)
	for rows.Next() {
		var class int16
		var count int
		if err := rows.Scan(&class, &count); err != nil {
			return nil, err
		}
		counts[models.TableClass(class)] = count
	}
	return counts, translateError(rows.Err())
}

// IssuedPerMinute counts issued tickets per minute. Callers regroup the
// buckets into hours of their own time zone.
func (s *Store) IssuedPerMinute(ctx context.Context, r store.DateRange) ([]store.TimeBucket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date_trunc('minute', created_at) AS minute, COUNT(*)
		FROM tickets
		WHERE queue_date BETWEEN $1 AND $2
		GROUP BY minute
		ORDER BY minute ASC
	`, r.From, r.To)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var buckets []store.TimeBucket
	for rows.Next() {
		var bucket store.TimeBucket
		if err := rows.Scan(&bucket.Start, &bucket.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	return buckets, translateError(rows.Err())
}

// countBy groups tickets by a fixed column name; column never comes from input.
func (s *Store) countBy(ctx context.Context, column string, r store.DateRange) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+column+`, COUNT(*)
		FROM tickets
		WHERE queue_date BETWEEN $1 AND $2
		GROUP BY `+column, r.From, r.To)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, translateError(rows.Err())
}
