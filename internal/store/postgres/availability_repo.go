package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"carebook/backend/internal/domain"
)

type AvailabilityRepo struct {
	db *bun.DB
}

func NewAvailabilityRepo(db *bun.DB) *AvailabilityRepo {
	return &AvailabilityRepo{db: db}
}

func (r *AvailabilityRepo) UpsertWeeklyRules(ctx context.Context, providerID string, rules []domain.WeeklyRule) error {
	if len(rules) == 0 {
		return nil
	}
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, rule := range rules {
			m := rule
			m.ProviderID = providerID
			_, err := tx.NewInsert().
				Model(&m).
				On("CONFLICT (provider_id, day_of_week) DO UPDATE").
				Set("start_time = EXCLUDED.start_time").
				Set("end_time = EXCLUDED.end_time").
				Set("is_available = EXCLUDED.is_available").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *AvailabilityRepo) ListWeeklyRules(ctx context.Context, providerID string) ([]domain.WeeklyRule, error) {
	var rows []domain.WeeklyRule
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		OrderExpr("day_of_week ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AvailabilityRepo) UpsertOverride(ctx context.Context, ov domain.AvailabilityOverride) (domain.AvailabilityOverride, error) {
	m := ov
	m.Date = domain.DateOf(ov.Date)
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (provider_id, date) DO UPDATE").
		Set("is_available = EXCLUDED.is_available").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return domain.AvailabilityOverride{}, err
	}
	return m, nil
}

// ListOverrides returns overrides with date in the half-open range [from, to).
func (r *AvailabilityRepo) ListOverrides(ctx context.Context, providerID string, from, to time.Time) ([]domain.AvailabilityOverride, error) {
	var rows []domain.AvailabilityOverride
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("date >= ?", domain.DateOf(from)).
		Where("date < ?", domain.DateOf(to)).
		OrderExpr("date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
