package store

import (
	"context"
	"time"

	"carebook/backend/internal/domain"
)

// AvailabilityRepository owns the weekly pattern and date overrides. All
// writes are upserts keyed on (provider_id, day_of_week) and
// (provider_id, date) respectively.
type AvailabilityRepository interface {
	UpsertWeeklyRules(ctx context.Context, providerID string, rules []domain.WeeklyRule) error
	ListWeeklyRules(ctx context.Context, providerID string) ([]domain.WeeklyRule, error)
	UpsertOverride(ctx context.Context, ov domain.AvailabilityOverride) (domain.AvailabilityOverride, error)
	ListOverrides(ctx context.Context, providerID string, from, to time.Time) ([]domain.AvailabilityOverride, error)
}
