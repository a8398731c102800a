package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appBooking "github.com/companion-hub/companion-hub/internal/application/booking"
	domainBooking "github.com/companion-hub/companion-hub/internal/domain/booking"
	"github.com/companion-hub/companion-hub/internal/infrastructure/sse"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	engine *appBooking.Engine
	guard  *appBooking.Guard
	sseHub *sse.Hub
	db     Pinger
	logger zerolog.Logger
}

func NewServer(engine *appBooking.Engine, guard *appBooking.Guard, sseHub *sse.Hub, db Pinger, logger zerolog.Logger) *Server {
	return &Server{
		engine: engine,
		guard:  guard,
		sseHub: sseHub,
		db:     db,
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireActor)

		// The event stream outlives the request timeout.
		r.Get("/events", s.sseEndpoint)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", s.createBooking)
				r.Get("/", s.listBookings)
				r.Get("/{bookingId}", s.getBooking)
				r.Post("/{bookingId}/accept", s.acceptBooking)
				r.Post("/{bookingId}/reject", s.rejectBooking)
				r.Post("/{bookingId}/cancel", s.cancelBooking)
				r.Post("/{bookingId}/complete", s.completeBooking)
				r.Post("/{bookingId}/extension", s.requestExtension)
				r.Post("/{bookingId}/extension/confirm", s.confirmExtension)
				r.Post("/{bookingId}/extension/reject", s.rejectExtension)
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondBookingError maps a booking core failure onto an HTTP status.
func (s *Server) respondBookingError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domainBooking.KindOf(err)
	message := err.Error()
	var bErr *domainBooking.Error
	if errors.As(err, &bErr) && bErr.Message != "" {
		message = bErr.Message
	}

	status := http.StatusInternalServerError
	switch kind {
	case domainBooking.KindInvalidArgument:
		status = http.StatusBadRequest
	case domainBooking.KindUnauthenticated:
		status = http.StatusUnauthorized
	case domainBooking.KindNotFound:
		status = http.StatusNotFound
	case domainBooking.KindConflict:
		status = http.StatusConflict
	case domainBooking.KindInvalidTransition:
		status = http.StatusUnprocessableEntity
	case domainBooking.KindTransient, domainBooking.KindNotConfigured:
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("kind", kind.String()).
			Msg("booking request failed")
	}
	if kind == domainBooking.KindUnknown {
		respondError(w, status, "INTERNAL_ERROR", "internal error")
		return
	}
	respondError(w, status, kind.String(), message)
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := []string{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
