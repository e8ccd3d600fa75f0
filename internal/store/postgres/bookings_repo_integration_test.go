package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"carebook/backend/internal/domain"
	"carebook/backend/internal/store"
)

// integrationEnv lets a test open further single-connection pools joined to
// the same throwaway schema, for exercising concurrent writers.
type integrationEnv struct {
	databaseURL string
	schema      string
}

func (e *integrationEnv) openConn(t *testing.T) *bun.DB {
	t.Helper()
	db, err := Open(e.databaseURL, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.NewRaw("SET search_path TO " + e.schema + ", public").Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	return db
}

// The repos open their own transactions, so the test pins the pool to one
// connection and moves its search_path into a throwaway schema. public stays
// on the path for the btree_gist operator classes.
func setupIntegrationDB(t *testing.T) (*bun.DB, *integrationEnv) {
	t.Helper()
	databaseURL := strings.TrimSpace(os.Getenv("CAREBOOK_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("CAREBOOK_TEST_DATABASE_URL not set")
	}

	env := &integrationEnv{
		databaseURL: databaseURL,
		schema:      "carebook_test_" + randomHex(t, 8),
	}

	db := env.openConn(t)
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + env.schema + " CASCADE").Exec(cleanupCtx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	if _, err := db.NewRaw("CREATE SCHEMA " + env.schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.NewRaw("SET search_path TO " + env.schema + ", public").Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db, env
}

func TestPostgresIntegration_BookingLifecycle(t *testing.T) {
	db, _ := setupIntegrationDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	providers := NewProviderRepo(db)
	availability := NewAvailabilityRepo(db)
	bookings := NewBookingRepo(db, time.Second)

	if _, err := providers.Upsert(ctx, domain.Provider{ID: "p1", Name: "Dr. Gray", Specialty: "cardiology"}); err != nil {
		t.Fatalf("provider upsert: %v", err)
	}

	err := availability.UpsertWeeklyRules(ctx, "p1", []domain.WeeklyRule{
		{ProviderID: "p1", DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00", IsAvailable: true},
	})
	if err != nil {
		t.Fatalf("weekly upsert: %v", err)
	}
	rules, err := availability.ListWeeklyRules(ctx, "p1")
	if err != nil {
		t.Fatalf("weekly list: %v", err)
	}
	if len(rules) != 1 || rules[0].StartTime != "09:00" {
		t.Fatalf("rules = %+v", rules)
	}

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	first, err := bookings.Create(ctx, domain.Appointment{
		ProviderID:  "p1",
		RequesterID: "r1",
		StartTime:   start,
		EndTime:     end,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Overlapping slot is rejected before the insert is attempted.
	_, err = bookings.Create(ctx, domain.Appointment{
		ProviderID:  "p1",
		RequesterID: "r2",
		StartTime:   start.Add(30 * time.Minute),
		EndTime:     end.Add(30 * time.Minute),
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlap err = %v, want %v", err, store.ErrConflict)
	}

	// A touching interval shares only the boundary instant and is allowed.
	second, err := bookings.Create(ctx, domain.Appointment{
		ProviderID:  "p1",
		RequesterID: "r2",
		StartTime:   end,
		EndTime:     end.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("adjacent create: %v", err)
	}

	// Cancelling frees the slot for a new booking.
	cancelled, err := bookings.Transition(ctx, first.ID, domain.AppointmentStatusCancelled, "")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.AppointmentStatusCancelled {
		t.Fatalf("status = %q", cancelled.Status)
	}
	rebooked, err := bookings.Create(ctx, domain.Appointment{
		ProviderID:  "p1",
		RequesterID: "r3",
		StartTime:   start,
		EndTime:     end,
	})
	if err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}

	// Terminal rows reject further transitions and reschedules.
	if _, err := bookings.Transition(ctx, first.ID, domain.AppointmentStatusCompleted, ""); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("transition on cancelled err = %v, want %v", err, store.ErrInvalidTransition)
	}
	if _, err := bookings.Reschedule(ctx, first.ID, start.Add(2*time.Hour), end.Add(2*time.Hour)); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("reschedule cancelled err = %v, want %v", err, store.ErrInvalidTransition)
	}

	// Rescheduling may not land on an occupied slot, but can move freely
	// otherwise; its own row never blocks it.
	if _, err := bookings.Reschedule(ctx, rebooked.ID, second.StartTime, second.EndTime); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("reschedule onto occupied err = %v, want %v", err, store.ErrConflict)
	}
	moved, err := bookings.Reschedule(ctx, rebooked.ID, start.Add(15*time.Minute), end.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !moved.StartTime.Equal(start.Add(15 * time.Minute)) {
		t.Fatalf("moved start = %v", moved.StartTime)
	}

	// Completion records the note.
	done, err := bookings.Transition(ctx, moved.ID, domain.AppointmentStatusCompleted, "seen")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.CompletionNote != "seen" {
		t.Fatalf("completion_note = %q", done.CompletionNote)
	}

	booked, err := bookings.ListByProvider(ctx, "p1", store.BookingFilter{Status: domain.AppointmentStatusBooked})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(booked) != 1 || booked[0].ID != second.ID {
		t.Fatalf("booked = %+v", booked)
	}
}

func TestPostgresIntegration_ConcurrentCreatesOneWins(t *testing.T) {
	db, env := setupIntegrationDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	providers := NewProviderRepo(db)
	if _, err := providers.Upsert(ctx, domain.Provider{ID: "p1", Name: "Dr. Gray"}); err != nil {
		t.Fatalf("provider upsert: %v", err)
	}

	// Two repos over separate connections race for the same fully
	// overlapping slot; the advisory lock serializes them, so the loser's
	// overlap check must see the winner's committed row.
	repos := []*BookingRepo{
		NewBookingRepo(db, 5*time.Second),
		NewBookingRepo(env.openConn(t), 5*time.Second),
	}

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	release := make(chan struct{})
	errs := make(chan error, len(repos))
	var wg sync.WaitGroup
	for i, r := range repos {
		wg.Add(1)
		go func(i int, r *BookingRepo) {
			defer wg.Done()
			<-release
			_, err := r.Create(ctx, domain.Appointment{
				ProviderID:  "p1",
				RequesterID: fmt.Sprintf("r%d", i),
				StartTime:   start,
				EndTime:     end,
			})
			errs <- err
		}(i, r)
	}
	close(release)
	wg.Wait()
	close(errs)

	var created, conflicted int
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, store.ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected create error: %v", err)
		}
	}
	if created != 1 || conflicted != 1 {
		t.Fatalf("created = %d, conflicted = %d, want exactly one of each", created, conflicted)
	}

	rows, err := NewBookingRepo(db, time.Second).ListByProvider(ctx, "p1", store.BookingFilter{Status: domain.AppointmentStatusBooked})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("booked rows = %d, want 1", len(rows))
	}
}

func TestPostgresIntegration_OverrideUpsertIsIdempotentPerDate(t *testing.T) {
	db, _ := setupIntegrationDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	providers := NewProviderRepo(db)
	availability := NewAvailabilityRepo(db)

	if _, err := providers.Upsert(ctx, domain.Provider{ID: "p1", Name: "Dr. Gray"}); err != nil {
		t.Fatalf("provider upsert: %v", err)
	}

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if _, err := availability.UpsertOverride(ctx, domain.AvailabilityOverride{ProviderID: "p1", Date: date, IsAvailable: false}); err != nil {
		t.Fatalf("first override: %v", err)
	}
	if _, err := availability.UpsertOverride(ctx, domain.AvailabilityOverride{ProviderID: "p1", Date: date, IsAvailable: true}); err != nil {
		t.Fatalf("second override: %v", err)
	}

	rows, err := availability.ListOverrides(ctx, "p1", date, date.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list overrides: %v", err)
	}
	if len(rows) != 1 || !rows[0].IsAvailable {
		t.Fatalf("rows = %+v", rows)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for _, stmt := range splitSQLStatements(upSQL) {
			if normalized, ok := normalizeExtensionStatement(stmt); ok {
				stmt = normalized
			}
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := strings.TrimLeft(sql[upIdx+len(upMarker):], "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

// Extensions always install into public so their operator classes resolve
// regardless of the test schema on the search_path.
func normalizeExtensionStatement(stmt string) (string, bool) {
	s := strings.TrimSpace(stmt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "CREATE EXTENSION") {
		return "", false
	}
	if strings.Contains(upper, " SCHEMA ") {
		return "", false
	}
	return s + " SCHEMA public", true
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
