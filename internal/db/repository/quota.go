package repository

import (
	"context"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// quotaDay is the counter's calendar day; it rolls over with YouTube's quota.
const quotaDay = `(NOW() AT TIME ZONE 'America/Los_Angeles')::date`

// QuotaRepository defines operations for tracking API quota usage.
type QuotaRepository interface {
	// TodaysUsage returns the quota spent today summed over operations.
	TodaysUsage(ctx context.Context) (used int, calls int, err error)

	// IncrementQuota adds cost to today's usage for an operation.
	IncrementQuota(ctx context.Context, cost int, operation string) error

	// GetQuotaHistory returns per-operation usage for the last days, newest first.
	GetQuotaHistory(ctx context.Context, days int) ([]*models.QuotaUsage, error)
}

type quotaRepository struct {
	pool *pgxpool.Pool
}

// NewQuotaRepository creates a new QuotaRepository.
func NewQuotaRepository(pool *pgxpool.Pool) QuotaRepository {
	return &quotaRepository{pool: pool}
}

func (r *quotaRepository) TodaysUsage(ctx context.Context) (int, int, error) {
	query := `
		SELECT COALESCE(SUM(quota_used), 0), COALESCE(SUM(calls), 0)
		FROM api_quota_usage
		WHERE date = ` + quotaDay

	var used, calls int
	if err := r.pool.QueryRow(ctx, query).Scan(&used, &calls); err != nil {
		return 0, 0, db.WrapError(err, "get todays quota")
	}

	return used, calls, nil
}

func (r *quotaRepository) IncrementQuota(ctx context.Context, cost int, operation string) error {
	if operation == "" {
		operation = "other"
	}

	query := `
		INSERT INTO api_quota_usage (date, operation, quota_used, calls)
		VALUES (` + quotaDay + `, $1, $2, 1)
		ON CONFLICT (date, operation) DO UPDATE
		SET quota_used = api_quota_usage.quota_used + EXCLUDED.quota_used,
		    calls = api_quota_usage.calls + 1,
		    updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, operation, cost); err != nil {
		return db.WrapError(err, "increment quota")
	}

	return nil
}

func (r *quotaRepository) GetQuotaHistory(ctx context.Context, days int) ([]*models.QuotaUsage, error) {
	if days <= 0 {
		days = 7
	}

	query := `
		SELECT date, operation, quota_used, calls, updated_at
		FROM api_quota_usage
		WHERE date > ` + quotaDay + ` - $1::int
		ORDER BY date DESC, operation ASC
	`

	rows, err := r.pool.Query(ctx, query, days)
	if err != nil {
		return nil, db.WrapError(err, "get quota history")
	}

	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.QuotaUsage, error) {
		usage := &models.QuotaUsage{}
		err := row.Scan(&usage.Date, &usage.Operation, &usage.QuotaUsed, &usage.Calls, &usage.UpdatedAt)
		return usage, err
	})
	if err != nil {
		return nil, db.WrapError(err, "scan quota history")
	}

	return history, nil
}
