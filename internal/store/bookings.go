package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"carebook/backend/internal/domain"
)

// BookingFilter narrows appointment listings. Zero values mean "any".
type BookingFilter struct {
	Status domain.AppointmentStatus
}

// BookingRepository owns all writes to appointment rows. Create and
// Reschedule run their overlap check and mutation inside one transaction
// holding the provider's exclusive booking lock; Transition is a single
// conditional update and needs no cross-request exclusion.
type BookingRepository interface {
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, newStart, newEnd time.Time) (domain.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, to domain.AppointmentStatus, completionNote string) (domain.Appointment, error)
	ListByProvider(ctx context.Context, providerID string, f BookingFilter) ([]domain.Appointment, error)
	ListByRequester(ctx context.Context, requesterID string, f BookingFilter) ([]domain.Appointment, error)
}
