package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"carebook/backend/internal/domain"
	"carebook/backend/internal/store"
)

const defaultLockWait = 5 * time.Second

type BookingRepo struct {
	db       *bun.DB
	lockWait time.Duration
}

func NewBookingRepo(db *bun.DB, lockWait time.Duration) *BookingRepo {
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	return &BookingRepo{db: db, lockWait: lockWait}
}

func (r *BookingRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	appt.Status = domain.AppointmentStatusBooked

	var out domain.Appointment
	err := r.inProviderTx(ctx, appt.ProviderID, func(ctx context.Context, tx bun.Tx) error {
		taken, err := overlapExists(ctx, tx, appt.ProviderID, appt.StartTime, appt.EndTime, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return store.ErrConflict
		}

		m := appt
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var row domain.Appointment
	err := r.db.NewSelect().
		Model(&row).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return row, nil
}

func (r *BookingRepo) Reschedule(ctx context.Context, id uuid.UUID, newStart, newEnd time.Time) (domain.Appointment, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	err = r.inProviderTx(ctx, current.ProviderID, func(ctx context.Context, tx bun.Tx) error {
		// Re-read under the lock: the row may have changed since Get.
		var row domain.Appointment
		if err := tx.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if row.Status != domain.AppointmentStatusBooked {
			return store.ErrInvalidTransition
		}

		taken, err := overlapExists(ctx, tx, row.ProviderID, newStart, newEnd, row.ID)
		if err != nil {
			return err
		}
		if taken {
			return store.ErrConflict
		}

		row.StartTime = newStart
		row.EndTime = newEnd
		if _, err := tx.NewUpdate().
			Model(&row).
			Column("start_time", "end_time", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return err
		}
		out = row
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

// Transition moves a booked appointment to a terminal status. The status
// predicate in the UPDATE makes the check-and-set atomic, so no advisory
// lock is needed here.
func (r *BookingRepo) Transition(ctx context.Context, id uuid.UUID, to domain.AppointmentStatus, completionNote string) (domain.Appointment, error) {
	if !domain.AppointmentStatusBooked.CanTransitionTo(to) {
		return domain.Appointment{}, store.ErrInvalidTransition
	}

	q := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", domain.AppointmentStatusBooked)
	if to == domain.AppointmentStatusCompleted && completionNote != "" {
		q = q.Set("completion_note = ?", completionNote)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		exists, err := r.db.NewSelect().
			Model((*domain.Appointment)(nil)).
			Where("id = ?", id).
			Exists(ctx)
		if err != nil {
			return domain.Appointment{}, err
		}
		if !exists {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, store.ErrInvalidTransition
	}

	return r.Get(ctx, id)
}

func (r *BookingRepo) ListByProvider(ctx context.Context, providerID string, f store.BookingFilter) ([]domain.Appointment, error) {
	return r.list(ctx, "provider_id", providerID, f)
}

func (r *BookingRepo) ListByRequester(ctx context.Context, requesterID string, f store.BookingFilter) ([]domain.Appointment, error) {
	return r.list(ctx, "requester_id", requesterID, f)
}

func (r *BookingRepo) list(ctx context.Context, column, id string, f store.BookingFilter) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Where("? = ?", bun.Ident(column), id).
		OrderExpr("start_time ASC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// inProviderTx runs fn inside a transaction that holds the provider's
// advisory booking lock. Acquisition is mandatory: the transaction-local
// lock_timeout turns contention past the configured wait into a hard
// failure (ErrLockNotAcquired) instead of ever proceeding unlocked.
func (r *BookingRepo) inProviderTx(ctx context.Context, providerID string, fn func(ctx context.Context, tx bun.Tx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockWait.Milliseconds())
		if _, err := tx.NewRaw(stmt).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID).Exec(ctx); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
	return mapPgError(err)
}

// overlapExists tests the half-open interval predicate against booked rows.
// Touching endpoints ([09:00,10:00) next to [10:00,11:00)) do not overlap.
func overlapExists(ctx context.Context, tx bun.Tx, providerID string, start, end time.Time, exclude uuid.UUID) (bool, error) {
	q := tx.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("provider_id = ?", providerID).
		Where("status = ?", domain.AppointmentStatusBooked).
		Where("start_time < ?", end).
		Where("end_time > ?", start)
	if exclude != uuid.Nil {
		q = q.Where("id != ?", exclude)
	}
	return q.Exists(ctx)
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "55P03" {
			return store.ErrLockNotAcquired
		}
		if pgErr.Code == "23P01" && pgErr.ConstraintName == "appointments_no_overlap" {
			return store.ErrConflict
		}
	}
	return err
}
