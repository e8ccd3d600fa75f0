package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"carebook/backend/internal/cache"
	"carebook/backend/internal/domain"
	"carebook/backend/internal/store"
)

const (
	RoleProvider  = "provider"
	RoleRequester = "requester"
	RoleAdmin     = "admin"
)

// Actor is the acting identity attached to every operation. Authentication
// happens upstream; the service only checks ownership.
type Actor struct {
	ID   string
	Role string
}

// Cache is the slice of the cache client the service depends on.
type Cache interface {
	CurrentVersion(ctx context.Context, namespace string) (int64, error)
	Bump(ctx context.Context, namespace string) (int64, error)
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

type Config struct {
	AvailabilityCacheTTL time.Duration
	SearchCacheTTL       time.Duration
}

type Service struct {
	bookings     store.BookingRepository
	availability store.AvailabilityRepository
	providers    store.ProviderRepository
	cache        Cache
	cfg          Config
	log          *slog.Logger
}

func NewService(bookings store.BookingRepository, availability store.AvailabilityRepository, providers store.ProviderRepository, c Cache, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.AvailabilityCacheTTL <= 0 {
		cfg.AvailabilityCacheTTL = 5 * time.Minute
	}
	if cfg.SearchCacheTTL <= 0 {
		cfg.SearchCacheTTL = time.Minute
	}
	return &Service{
		bookings:     bookings,
		availability: availability,
		providers:    providers,
		cache:        c,
		cfg:          cfg,
		log:          log.With(slog.String("component", "scheduling")),
	}
}

// DayView is the wire shape of one resolved date.
type DayView struct {
	Date        string `json:"date"`
	Weekday     string `json:"weekday"`
	IsAvailable bool   `json:"is_available"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
}

// GetAvailability resolves the provider's calendar for [from, from+days).
// Reads go through the versioned cache: the key embeds the current
// availability namespace version, so any committed mutation makes prior
// entries unreachable without explicit deletion. Cache failures degrade to
// live resolution.
func (s *Service) GetAvailability(ctx context.Context, providerID string, from time.Time, days int) ([]DayView, error) {
	if providerID == "" {
		return nil, validationError("provider_id is required")
	}
	if days < 1 || days > 90 {
		return nil, validationError("days must be between 1 and 90")
	}
	if _, err := s.providers.Get(ctx, providerID); err != nil {
		return nil, err
	}

	fromDate := domain.DateOf(from)
	namespace := cache.AvailabilityNamespace(providerID)

	key := ""
	version, err := s.cache.CurrentVersion(ctx, namespace)
	usable := err == nil
	if err != nil {
		s.log.Warn("namespace version read failed; serving live", slog.String("namespace", namespace), slog.Any("err", err))
	}
	if usable {
		key = fmt.Sprintf("avail:%s:%s:%d:v=%d", providerID, fromDate.Format("2006-01-02"), days, version)
		var cached []DayView
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.log.Warn("cache read failed; serving live", slog.String("key", key), slog.Any("err", err))
		} else if hit {
			return cached, nil
		}
	}

	rules, err := s.availability.ListWeeklyRules(ctx, providerID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.availability.ListOverrides(ctx, providerID, fromDate, fromDate.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}

	resolved := domain.ResolveAvailability(rules, overrides, fromDate, days)
	out := make([]DayView, 0, len(resolved))
	for _, d := range resolved {
		out = append(out, DayView{
			Date:        d.Date.Format("2006-01-02"),
			Weekday:     d.Date.Weekday().String(),
			IsAvailable: d.IsAvailable(),
			StartTime:   d.StartTime,
			EndTime:     d.EndTime,
		})
	}

	if usable {
		if err := s.cache.SetJSON(ctx, key, out, s.cfg.AvailabilityCacheTTL); err != nil {
			s.log.Warn("cache write failed", slog.String("key", key), slog.Any("err", err))
		}
	}
	return out, nil
}

type WeeklyEntryInput struct {
	DayOfWeek   int
	StartTime   string
	EndTime     string
	IsAvailable bool
}

// SetWeeklyPattern upserts the provider's recurring weekly hours and bumps
// the provider's availability namespace.
func (s *Service) SetWeeklyPattern(ctx context.Context, actor Actor, providerID string, entries []WeeklyEntryInput) error {
	if providerID == "" {
		return validationError("provider_id is required")
	}
	if len(entries) == 0 {
		return validationError("entries are required")
	}
	if !canActForProvider(actor, providerID) {
		return ErrForbidden
	}
	if _, err := s.providers.Get(ctx, providerID); err != nil {
		return err
	}

	rules := make([]domain.WeeklyRule, 0, len(entries))
	for _, e := range entries {
		if e.DayOfWeek < 1 || e.DayOfWeek > 7 {
			return validationError("day_of_week must be between 1 (Monday) and 7 (Sunday)")
		}
		if e.IsAvailable && (e.StartTime == "" || e.EndTime == "") {
			return validationError("an available day needs both start_time and end_time")
		}
		if (e.StartTime == "") != (e.EndTime == "") {
			return validationError("start_time and end_time must be given together")
		}
		if e.StartTime != "" {
			startMin, err := domain.ParseClock(e.StartTime)
			if err != nil {
				return validationError("start_time must be HH:MM")
			}
			endMin, err := domain.ParseClock(e.EndTime)
			if err != nil {
				return validationError("end_time must be HH:MM")
			}
			if startMin >= endMin {
				return validationError("start_time must be before end_time")
			}
		}
		rules = append(rules, domain.WeeklyRule{
			ProviderID:  providerID,
			DayOfWeek:   e.DayOfWeek,
			StartTime:   e.StartTime,
			EndTime:     e.EndTime,
			IsAvailable: e.IsAvailable,
		})
	}

	if err := s.availability.UpsertWeeklyRules(ctx, providerID, rules); err != nil {
		return err
	}
	s.bumpAvailability(ctx, providerID)
	return nil
}

// SetOverride pins a single date open or closed and bumps the namespace.
func (s *Service) SetOverride(ctx context.Context, actor Actor, providerID string, date time.Time, isAvailable bool) error {
	if providerID == "" {
		return validationError("provider_id is required")
	}
	if date.IsZero() {
		return validationError("date is required")
	}
	if !canActForProvider(actor, providerID) {
		return ErrForbidden
	}
	if _, err := s.providers.Get(ctx, providerID); err != nil {
		return err
	}

	_, err := s.availability.UpsertOverride(ctx, domain.AvailabilityOverride{
		ProviderID:  providerID,
		Date:        domain.DateOf(date),
		IsAvailable: isAvailable,
	})
	if err != nil {
		return err
	}
	s.bumpAvailability(ctx, providerID)
	return nil
}

type CreateBookingInput struct {
	ProviderID  string
	RequesterID string
	StartTime   time.Time
	EndTime     time.Time
	Note        string
}

// CreateBooking validates the interval, checks the provider's resolved
// availability for the date, and hands the overlap check plus insert to the
// ledger, which runs them under the provider's exclusive lock. The
// availability namespace is bumped only after the row is committed.
func (s *Service) CreateBooking(ctx context.Context, actor Actor, in CreateBookingInput) (domain.Appointment, error) {
	if in.ProviderID == "" {
		return domain.Appointment{}, validationError("provider_id is required")
	}
	if in.RequesterID == "" {
		return domain.Appointment{}, validationError("requester_id is required")
	}
	start, end, err := validateInterval(in.StartTime, in.EndTime)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !canActForRequester(actor, in.RequesterID) {
		return domain.Appointment{}, ErrForbidden
	}
	if _, err := s.providers.Get(ctx, in.ProviderID); err != nil {
		return domain.Appointment{}, err
	}
	if err := s.checkWithinWorkingHours(ctx, in.ProviderID, start, end); err != nil {
		return domain.Appointment{}, err
	}

	created, err := s.bookings.Create(ctx, domain.Appointment{
		ProviderID:  in.ProviderID,
		RequesterID: in.RequesterID,
		StartTime:   start,
		EndTime:     end,
		Note:        strings.TrimSpace(in.Note),
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	s.bumpAvailability(ctx, in.ProviderID)
	return created, nil
}

// RescheduleBooking moves a booked appointment to a new slot under the same
// availability and overlap discipline as CreateBooking, excluding the
// appointment's own row from the overlap test.
func (s *Service) RescheduleBooking(ctx context.Context, actor Actor, id uuid.UUID, newStart, newEnd time.Time) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	start, end, err := validateInterval(newStart, newEnd)
	if err != nil {
		return domain.Appointment{}, err
	}

	appt, err := s.bookings.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !canActForRequester(actor, appt.RequesterID) {
		return domain.Appointment{}, ErrForbidden
	}
	if appt.Status != domain.AppointmentStatusBooked {
		return domain.Appointment{}, store.ErrInvalidTransition
	}
	if err := s.checkWithinWorkingHours(ctx, appt.ProviderID, start, end); err != nil {
		return domain.Appointment{}, err
	}

	updated, err := s.bookings.Reschedule(ctx, id, start, end)
	if err != nil {
		return domain.Appointment{}, err
	}
	s.bumpAvailability(ctx, appt.ProviderID)
	return updated, nil
}

// CancelBooking transitions booked -> cancelled and bumps the namespace:
// the freed slot is bookable again, so cached availability is stale.
func (s *Service) CancelBooking(ctx context.Context, actor Actor, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	appt, err := s.bookings.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !canActForRequester(actor, appt.RequesterID) && !canActForProvider(actor, appt.ProviderID) {
		return domain.Appointment{}, ErrForbidden
	}

	cancelled, err := s.bookings.Transition(ctx, id, domain.AppointmentStatusCancelled, "")
	if err != nil {
		return domain.Appointment{}, err
	}
	s.bumpAvailability(ctx, appt.ProviderID)
	return cancelled, nil
}

// CompleteBooking transitions booked -> completed. The slot stays occupied,
// so no namespace bump happens.
func (s *Service) CompleteBooking(ctx context.Context, actor Actor, id uuid.UUID, completionNote string) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	appt, err := s.bookings.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !canActForProvider(actor, appt.ProviderID) {
		return domain.Appointment{}, ErrForbidden
	}

	return s.bookings.Transition(ctx, id, domain.AppointmentStatusCompleted, strings.TrimSpace(completionNote))
}

func (s *Service) ListProviderBookings(ctx context.Context, actor Actor, providerID string, status string) ([]domain.Appointment, error) {
	if providerID == "" {
		return nil, validationError("provider_id is required")
	}
	f, err := bookingFilter(status)
	if err != nil {
		return nil, err
	}
	if !canActForProvider(actor, providerID) {
		return nil, ErrForbidden
	}
	return s.bookings.ListByProvider(ctx, providerID, f)
}

func (s *Service) ListRequesterBookings(ctx context.Context, actor Actor, requesterID string, status string) ([]domain.Appointment, error) {
	if requesterID == "" {
		return nil, validationError("requester_id is required")
	}
	f, err := bookingFilter(status)
	if err != nil {
		return nil, err
	}
	if !canActForRequester(actor, requesterID) {
		return nil, ErrForbidden
	}
	return s.bookings.ListByRequester(ctx, requesterID, f)
}

type ProviderInput struct {
	ID        string
	Name      string
	Specialty string
}

// SaveProvider upserts a directory entry and bumps the global search
// namespace so cached directory pages stop matching.
func (s *Service) SaveProvider(ctx context.Context, actor Actor, in ProviderInput) (domain.Provider, error) {
	if in.ID == "" {
		return domain.Provider{}, validationError("provider id is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Provider{}, validationError("name is required")
	}
	if !canActForProvider(actor, in.ID) {
		return domain.Provider{}, ErrForbidden
	}

	saved, err := s.providers.Upsert(ctx, domain.Provider{
		ID:        in.ID,
		Name:      name,
		Specialty: strings.TrimSpace(in.Specialty),
	})
	if err != nil {
		return domain.Provider{}, err
	}
	if _, err := s.cache.Bump(ctx, cache.SearchNamespace()); err != nil {
		s.log.Warn("search namespace bump failed; cached searches may lag until expiry", slog.Any("err", err))
	}
	return saved, nil
}

type ProviderView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
}

type SearchResult struct {
	Total     int            `json:"total"`
	Page      int            `json:"page"`
	PerPage   int            `json:"per_page"`
	Providers []ProviderView `json:"providers"`
}

// SearchProviders is a cached directory search keyed on the global search
// namespace version.
func (s *Service) SearchProviders(ctx context.Context, query string, page, perPage int) (SearchResult, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	qnorm := strings.ToLower(strings.TrimSpace(query))

	key := ""
	version, err := s.cache.CurrentVersion(ctx, cache.SearchNamespace())
	usable := err == nil
	if err != nil {
		s.log.Warn("namespace version read failed; serving live", slog.String("namespace", cache.SearchNamespace()), slog.Any("err", err))
	}
	if usable {
		// The query is user input; escape it so it cannot forge the other
		// key segments.
		key = fmt.Sprintf("providers:search:q=%s:page=%d:per=%d:v=%d", url.QueryEscape(qnorm), page, perPage, version)
		var cached SearchResult
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.log.Warn("cache read failed; serving live", slog.String("key", key), slog.Any("err", err))
		} else if hit {
			return cached, nil
		}
	}

	total, rows, err := s.providers.Search(ctx, qnorm, page, perPage)
	if err != nil {
		return SearchResult{}, err
	}
	out := SearchResult{Total: total, Page: page, PerPage: perPage, Providers: make([]ProviderView, 0, len(rows))}
	for _, p := range rows {
		out.Providers = append(out.Providers, ProviderView{ID: p.ID, Name: p.Name, Specialty: p.Specialty})
	}

	if usable {
		if err := s.cache.SetJSON(ctx, key, out, s.cfg.SearchCacheTTL); err != nil {
			s.log.Warn("cache write failed", slog.String("key", key), slog.Any("err", err))
		}
	}
	return out, nil
}

// checkWithinWorkingHours resolves the booking date straight from the store
// (the write path never reads cached availability) and verifies the slot
// sits inside the provider's window when one exists.
func (s *Service) checkWithinWorkingHours(ctx context.Context, providerID string, start, end time.Time) error {
	date := domain.DateOf(start)
	rules, err := s.availability.ListWeeklyRules(ctx, providerID)
	if err != nil {
		return err
	}
	overrides, err := s.availability.ListOverrides(ctx, providerID, date, date.AddDate(0, 0, 1))
	if err != nil {
		return err
	}

	day := domain.ResolveAvailability(rules, overrides, date, 1)[0]
	if !day.IsAvailable() {
		return availabilityError(AvailabilityReasonClosed, "provider is not available on this date")
	}
	if day.Kind != domain.AvailabilityOpenWindow {
		return nil
	}

	winStart, err := domain.ParseClock(day.StartTime)
	if err != nil {
		return err
	}
	winEnd, err := domain.ParseClock(day.EndTime)
	if err != nil {
		return err
	}
	if domain.MinuteOfDay(start) < winStart || domain.MinuteOfDay(end) > winEnd {
		return availabilityError(AvailabilityReasonOutsideHours, "requested time is outside the provider's working hours")
	}
	return nil
}

func (s *Service) bumpAvailability(ctx context.Context, providerID string) {
	ns := cache.AvailabilityNamespace(providerID)
	if _, err := s.cache.Bump(ctx, ns); err != nil {
		s.log.Warn("availability namespace bump failed; cached reads may lag until expiry",
			slog.String("namespace", ns), slog.Any("err", err))
	}
}

func validateInterval(start, end time.Time) (time.Time, time.Time, error) {
	s := start.UTC()
	e := end.UTC()
	if s.IsZero() || e.IsZero() {
		return time.Time{}, time.Time{}, validationError("start_time and end_time are required")
	}
	if !e.After(s) {
		return time.Time{}, time.Time{}, validationError("end_time must be after start_time")
	}
	if s.Second() != 0 || s.Nanosecond() != 0 || e.Second() != 0 || e.Nanosecond() != 0 {
		return time.Time{}, time.Time{}, validationError("times must align to whole minutes")
	}
	if !domain.DateOf(s).Equal(domain.DateOf(e)) {
		return time.Time{}, time.Time{}, validationError("appointment must start and end on the same date")
	}
	return s, e, nil
}

func bookingFilter(status string) (store.BookingFilter, error) {
	switch domain.AppointmentStatus(status) {
	case "", domain.AppointmentStatusBooked, domain.AppointmentStatusCompleted, domain.AppointmentStatusCancelled:
		return store.BookingFilter{Status: domain.AppointmentStatus(status)}, nil
	default:
		return store.BookingFilter{}, validationError("unknown status filter")
	}
}

func canActForProvider(actor Actor, providerID string) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	return actor.Role == RoleProvider && actor.ID == providerID
}

func canActForRequester(actor Actor, requesterID string) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	return actor.Role == RoleRequester && actor.ID == requesterID
}
