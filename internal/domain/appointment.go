package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusBooked    AppointmentStatus = "booked"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// CanTransitionTo reports whether the status machine allows moving to next.
// Booked is the only non-terminal state; completed and cancelled are final.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	if s != AppointmentStatusBooked {
		return false
	}
	return next == AppointmentStatusCompleted || next == AppointmentStatusCancelled
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID             uuid.UUID         `bun:"id,pk,type:uuid"`
	ProviderID     string            `bun:"provider_id,notnull"`
	RequesterID    string            `bun:"requester_id,notnull"`
	StartTime      time.Time         `bun:"start_time,notnull"`
	EndTime        time.Time         `bun:"end_time,notnull"`
	Status         AppointmentStatus `bun:"status,notnull"`
	Note           string            `bun:"note"`
	CompletionNote string            `bun:"completion_note"`
	CreatedAt      time.Time         `bun:"created_at,notnull"`
	UpdatedAt      time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.Status == "" {
			a.Status = AppointmentStatusBooked
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
