package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Provider struct {
	bun.BaseModel `bun:"table:providers"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Specialty string    `bun:"specialty"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (p *Provider) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}

// WeeklyRule is one entry of a provider's recurring weekly pattern. At most
// one row exists per (provider_id, day_of_week); writes are upserts.
// StartTime/EndTime hold "HH:MM" clock values and may be empty when the day
// is marked unavailable or the provider keeps no fixed hours.
type WeeklyRule struct {
	bun.BaseModel `bun:"table:weekly_availability"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	ProviderID  string    `bun:"provider_id,notnull"`
	DayOfWeek   int       `bun:"day_of_week,notnull"`
	StartTime   string    `bun:"start_time"`
	EndTime     string    `bun:"end_time"`
	IsAvailable bool      `bun:"is_available,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func (w *WeeklyRule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if w.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			w.ID = id
		}
		if w.CreatedAt.IsZero() {
			w.CreatedAt = now
		}
		if w.UpdatedAt.IsZero() {
			w.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		w.UpdatedAt = now
	}
	return nil
}

// AvailabilityOverride pins a single calendar date open or closed. It carries
// no hours of its own; an open override defers to the weekly pattern for the
// window.
type AvailabilityOverride struct {
	bun.BaseModel `bun:"table:availability_overrides"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	ProviderID  string    `bun:"provider_id,notnull"`
	Date        time.Time `bun:"date,notnull"`
	IsAvailable bool      `bun:"is_available,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func (o *AvailabilityOverride) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if o.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			o.ID = id
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
		if o.UpdatedAt.IsZero() {
			o.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		o.UpdatedAt = now
	}
	return nil
}
