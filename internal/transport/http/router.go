package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger func(ctx context.Context) error

// NewRouter wires all routes onto a fresh engine. Health probes run the
// given pingers with a short deadline.
func NewRouter(h *Handler, log *slog.Logger, pingers map[string]Pinger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := gin.H{}
		for name, ping := range pingers {
			if err := ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				deps[name] = err.Error()
			} else {
				deps[name] = "ok"
			}
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "deps": deps})
	})

	providers := router.Group("/providers")
	{
		providers.GET("", h.SearchProviders)
		providers.POST("", h.CreateProvider)
		providers.PUT("/:id", h.SaveProvider)
		providers.GET("/:id/availability", h.GetAvailability)
		providers.PUT("/:id/availability/week", h.SetWeeklyPattern)
		providers.PUT("/:id/availability/overrides", h.SetOverride)
		providers.GET("/:id/bookings", h.ListProviderBookings)
	}

	bookings := router.Group("/bookings")
	{
		bookings.POST("", h.CreateBooking)
		bookings.POST("/:id/reschedule", h.RescheduleBooking)
		bookings.POST("/:id/cancel", h.CancelBooking)
		bookings.POST("/:id/complete", h.CompleteBooking)
	}

	router.GET("/requesters/:id/bookings", h.ListRequesterBookings)

	return router
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
