package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"

	"go.uber.org/zap"
)

// ErrQuotaExhausted is returned when today's threshold has been reached.
var ErrQuotaExhausted = errors.New("youtube api quota threshold reached")

// resetZone is where YouTube's daily quota rolls over.
var resetZone = loadResetZone()

func loadResetZone() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return time.FixedZone("PST", -8*60*60)
	}
	return loc
}

// Repository is the persistence the manager needs.
type Repository interface {
	TodaysUsage(ctx context.Context) (used int, calls int, err error)
	IncrementQuota(ctx context.Context, cost int, operation string) error
}

// Manager handles YouTube API quota management.
type Manager struct {
	repo             Repository
	dailyLimit       int
	thresholdPercent int // Stop processing when this % of quota is used
}

// NewManager creates a new quota manager.
func NewManager(repo Repository, dailyLimit int, thresholdPercent int) *Manager {
	if dailyLimit <= 0 {
		dailyLimit = 10000 // YouTube API v3 default
	}
	if thresholdPercent <= 0 || thresholdPercent > 100 {
		thresholdPercent = 90
	}

	return &Manager{
		repo:             repo,
		dailyLimit:       dailyLimit,
		thresholdPercent: thresholdPercent,
	}
}

func (m *Manager) threshold() int {
	return (m.dailyLimit * m.thresholdPercent) / 100
}

// GetQuotaInfo returns current quota information.
func (m *Manager) GetQuotaInfo(ctx context.Context) (*models.QuotaInfo, error) {
	used, calls, err := m.repo.TodaysUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get quota info: %w", err)
	}

	remaining := m.dailyLimit - used
	if remaining < 0 {
		remaining = 0
	}

	return &models.QuotaInfo{
		QuotaUsed:       used,
		QuotaLimit:      m.dailyLimit,
		QuotaRemaining:  remaining,
		OperationsCount: calls,
	}, nil
}

// CheckQuotaAvailable reports whether requiredQuota more units fit under the threshold.
func (m *Manager) CheckQuotaAvailable(ctx context.Context, requiredQuota int) (bool, *models.QuotaInfo, error) {
	info, err := m.GetQuotaInfo(ctx)
	if err != nil {
		return false, nil, err
	}

	if info.QuotaUsed+requiredQuota > m.threshold() {
		logger.Log.Warn("Quota threshold reached",
			zap.Int("used", info.QuotaUsed),
			zap.Int("required", requiredQuota),
			zap.Int("threshold", m.threshold()),
			zap.Int("limit", m.dailyLimit),
		)
		return false, info, nil
	}

	return true, info, nil
}

// Reserve returns ErrQuotaExhausted when requiredQuota does not fit.
func (m *Manager) Reserve(ctx context.Context, requiredQuota int) error {
	ok, _, err := m.CheckQuotaAvailable(ctx, requiredQuota)
	if err != nil {
		return err
	}
	if !ok {
		return ErrQuotaExhausted
	}
	return nil
}

// RecordQuotaUsage records API quota usage.
func (m *Manager) RecordQuotaUsage(ctx context.Context, quotaCost int, operationType string) error {
	if err := m.repo.IncrementQuota(ctx, quotaCost, operationType); err != nil {
		return fmt.Errorf("failed to record quota usage: %w", err)
	}

	logger.Log.Debug("Recorded quota usage",
		zap.Int("cost", quotaCost),
		zap.String("operation", operationType),
	)

	return nil
}

// GetRemainingQuota returns how much quota is left before the threshold.
func (m *Manager) GetRemainingQuota(ctx context.Context) (int, error) {
	info, err := m.GetQuotaInfo(ctx)
	if err != nil {
		return 0, err
	}

	remaining := m.threshold() - info.QuotaUsed
	if remaining < 0 {
		return 0, nil
	}

	return remaining, nil
}

// ResetAt returns the next quota rollover after now: midnight Pacific time.
func (m *Manager) ResetAt(now time.Time) time.Time {
	local := now.In(resetZone)
	y, mo, d := local.Date()
	return time.Date(y, mo, d+1, 0, 0, 0, 0, resetZone)
}
