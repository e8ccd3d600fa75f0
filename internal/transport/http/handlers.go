package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"carebook/backend/internal/domain"
	"carebook/backend/internal/service/scheduling"
	"carebook/backend/internal/store"
)

// Scheduler is the slice of the scheduling service the handlers call.
type Scheduler interface {
	GetAvailability(ctx context.Context, providerID string, from time.Time, days int) ([]scheduling.DayView, error)
	SetWeeklyPattern(ctx context.Context, actor scheduling.Actor, providerID string, entries []scheduling.WeeklyEntryInput) error
	SetOverride(ctx context.Context, actor scheduling.Actor, providerID string, date time.Time, isAvailable bool) error
	CreateBooking(ctx context.Context, actor scheduling.Actor, in scheduling.CreateBookingInput) (domain.Appointment, error)
	RescheduleBooking(ctx context.Context, actor scheduling.Actor, id uuid.UUID, newStart, newEnd time.Time) (domain.Appointment, error)
	CancelBooking(ctx context.Context, actor scheduling.Actor, id uuid.UUID) (domain.Appointment, error)
	CompleteBooking(ctx context.Context, actor scheduling.Actor, id uuid.UUID, completionNote string) (domain.Appointment, error)
	ListProviderBookings(ctx context.Context, actor scheduling.Actor, providerID string, status string) ([]domain.Appointment, error)
	ListRequesterBookings(ctx context.Context, actor scheduling.Actor, requesterID string, status string) ([]domain.Appointment, error)
	SaveProvider(ctx context.Context, actor scheduling.Actor, in scheduling.ProviderInput) (domain.Provider, error)
	SearchProviders(ctx context.Context, query string, page, perPage int) (scheduling.SearchResult, error)
}

type Handler struct {
	svc Scheduler
	log *slog.Logger
}

func NewHandler(svc Scheduler, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log.With(slog.String("component", "http"))}
}

func actorFrom(c *gin.Context) scheduling.Actor {
	return scheduling.Actor{
		ID:   c.GetHeader("X-Actor-Id"),
		Role: c.GetHeader("X-Actor-Role"),
	}
}

// writeError maps service and store errors onto the wire taxonomy. Every
// body carries a machine-readable code alongside the message.
func (h *Handler) writeError(c *gin.Context, err error) {
	var ve *scheduling.ValidationError
	var ae *scheduling.AvailabilityError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": ve.Error()})
	case errors.Is(err, scheduling.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": "not allowed to act on this resource"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "resource not found"})
	case errors.As(err, &ae):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": string(ae.Reason), "error": ae.Error()})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"code": "conflict", "error": "the requested slot overlaps an existing booking"})
	case errors.Is(err, store.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"code": "invalid_state", "error": "the booking is not in a state that allows this operation"})
	case errors.Is(err, store.ErrLockNotAcquired):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "contention_timeout", "error": "could not acquire the provider's booking lock, retry shortly"})
	default:
		h.log.Error("request failed", slog.String("path", c.FullPath()), slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal", "error": "internal error"})
	}
}

// GET /providers/:id/availability?from=YYYY-MM-DD&days=N
func (h *Handler) GetAvailability(c *gin.Context) {
	from := time.Now().UTC()
	if s := c.Query("from"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "from must be YYYY-MM-DD"})
			return
		}
		from = parsed
	}
	days := 7
	if s := c.Query("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "days must be an integer"})
			return
		}
		days = n
	}

	out, err := h.svc.GetAvailability(c.Request.Context(), c.Param("id"), from, days)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider_id": c.Param("id"), "days": out})
}

type weeklyEntryReq struct {
	DayOfWeek   int    `json:"day_of_week" binding:"required"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

// PUT /providers/:id/availability/weekly
func (h *Handler) SetWeeklyPattern(c *gin.Context) {
	var req struct {
		Entries []weeklyEntryReq `json:"entries" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	entries := make([]scheduling.WeeklyEntryInput, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, scheduling.WeeklyEntryInput{
			DayOfWeek:   e.DayOfWeek,
			StartTime:   e.StartTime,
			EndTime:     e.EndTime,
			IsAvailable: e.IsAvailable,
		})
	}

	if err := h.svc.SetWeeklyPattern(c.Request.Context(), actorFrom(c), c.Param("id"), entries); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PUT /providers/:id/availability/overrides
func (h *Handler) SetOverride(c *gin.Context) {
	var req struct {
		Date        string `json:"date" binding:"required"`
		IsAvailable *bool  `json:"is_available" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "date must be YYYY-MM-DD"})
		return
	}

	if err := h.svc.SetOverride(c.Request.Context(), actorFrom(c), c.Param("id"), date, *req.IsAvailable); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type bookingView struct {
	ID             string    `json:"id"`
	ProviderID     string    `json:"provider_id"`
	RequesterID    string    `json:"requester_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
	Note           string    `json:"note,omitempty"`
	CompletionNote string    `json:"completion_note,omitempty"`
}

func toBookingView(a domain.Appointment) bookingView {
	return bookingView{
		ID:             a.ID.String(),
		ProviderID:     a.ProviderID,
		RequesterID:    a.RequesterID,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		Status:         string(a.Status),
		Note:           a.Note,
		CompletionNote: a.CompletionNote,
	}
}

func toBookingViews(appts []domain.Appointment) []bookingView {
	out := make([]bookingView, 0, len(appts))
	for _, a := range appts {
		out = append(out, toBookingView(a))
	}
	return out
}

type createBookingReq struct {
	ProviderID  string    `json:"provider_id" binding:"required"`
	RequesterID string    `json:"requester_id" binding:"required"`
	StartTime   time.Time `json:"start_time" binding:"required"`
	EndTime     time.Time `json:"end_time" binding:"required"`
	Note        string    `json:"note"`
}

// POST /bookings
func (h *Handler) CreateBooking(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	appt, err := h.svc.CreateBooking(c.Request.Context(), actorFrom(c), scheduling.CreateBookingInput{
		ProviderID:  req.ProviderID,
		RequesterID: req.RequesterID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Note:        req.Note,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingView(appt))
}

func bookingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "booking id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// POST /bookings/:id/reschedule
func (h *Handler) RescheduleBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req struct {
		StartTime time.Time `json:"start_time" binding:"required"`
		EndTime   time.Time `json:"end_time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	appt, err := h.svc.RescheduleBooking(c.Request.Context(), actorFrom(c), id, req.StartTime, req.EndTime)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingView(appt))
}

// POST /bookings/:id/cancel
func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	appt, err := h.svc.CancelBooking(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingView(appt))
}

// POST /bookings/:id/complete
func (h *Handler) CompleteBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req struct {
		CompletionNote string `json:"completion_note"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
			return
		}
	}

	appt, err := h.svc.CompleteBooking(c.Request.Context(), actorFrom(c), id, req.CompletionNote)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingView(appt))
}

// GET /providers/:id/bookings?status=
func (h *Handler) ListProviderBookings(c *gin.Context) {
	appts, err := h.svc.ListProviderBookings(c.Request.Context(), actorFrom(c), c.Param("id"), c.Query("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": toBookingViews(appts)})
}

// GET /requesters/:id/bookings?status=
func (h *Handler) ListRequesterBookings(c *gin.Context) {
	appts, err := h.svc.ListRequesterBookings(c.Request.Context(), actorFrom(c), c.Param("id"), c.Query("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": toBookingViews(appts)})
}

// POST /providers
func (h *Handler) CreateProvider(c *gin.Context) {
	var req struct {
		ID        string `json:"id" binding:"required"`
		Name      string `json:"name" binding:"required"`
		Specialty string `json:"specialty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	h.saveProvider(c, scheduling.ProviderInput{ID: req.ID, Name: req.Name, Specialty: req.Specialty}, http.StatusCreated)
}

// PUT /providers/:id
func (h *Handler) SaveProvider(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		Specialty string `json:"specialty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	h.saveProvider(c, scheduling.ProviderInput{ID: c.Param("id"), Name: req.Name, Specialty: req.Specialty}, http.StatusOK)
}

func (h *Handler) saveProvider(c *gin.Context, in scheduling.ProviderInput, status int) {
	p, err := h.svc.SaveProvider(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(status, gin.H{"id": p.ID, "name": p.Name, "specialty": p.Specialty})
}

// GET /providers?q=&page=&per_page=
func (h *Handler) SearchProviders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	res, err := h.svc.SearchProviders(c.Request.Context(), c.Query("q"), page, perPage)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
