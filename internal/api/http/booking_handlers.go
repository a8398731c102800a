package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	appBooking "github.com/companion-hub/companion-hub/internal/application/booking"
	domainBooking "github.com/companion-hub/companion-hub/internal/domain/booking"
)

type bookingCreateRequest struct {
	ProviderID    string    `json:"providerId"`
	BookingDate   time.Time `json:"bookingDate"`
	DurationHours float64   `json:"durationHours"`
	Location      *string   `json:"location,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	TopicID       *string   `json:"topicId,omitempty"`
}

type extensionRequest struct {
	Hours int `json:"hours"`
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	actor := actorFromRequest(r)
	in := appBooking.CreateInput{
		RequesterID:   actor,
		ProviderID:    req.ProviderID,
		BookingDate:   req.BookingDate,
		DurationHours: req.DurationHours,
		Location:      req.Location,
		Notes:         req.Notes,
		TopicID:       req.TopicID,
	}
	if err := appBooking.ValidateCreate(in); err != nil {
		s.respondBookingError(w, r, err)
		return
	}
	if err := s.guard.CanCreate(r.Context(), actor, req.ProviderID, nil); err != nil {
		s.respondBookingError(w, r, err)
		return
	}
	b, err := s.engine.Create(r.Context(), in)
	if err != nil {
		s.respondBookingError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

func (s *Server) listBookings(w http.ResponseWriter, r *http.Request) {
	var statuses []domainBooking.Status
	for _, raw := range splitCSV(r.URL.Query().Get("status")) {
		st, ok := domainBooking.ParseStatus(raw)
		if !ok {
			respondError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown status "+raw)
			return
		}
		statuses = append(statuses, st)
	}
	list, err := s.engine.List(r.Context(), actorFromRequest(r), statuses)
	if err != nil {
		s.respondBookingError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"bookings": list})
}

func (s *Server) getBooking(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "bookingId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid bookingId")
		return
	}
	b, err := s.engine.Get(r.Context(), id)
	if err != nil {
		s.respondBookingError(w, r, err)
		return
	}
	// Non-participants see the same answer as for a missing booking.
	if !b.IsParticipant(actorFromRequest(r)) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "booking not found")
		return
	}
	respondJSON(w, http.StatusOK, b)
}

type transitionFunc func(ctx context.Context, id uuid.UUID, actor string) (*domainBooking.Booking, error)

// transition runs a state change for the calling actor and writes the resulting booking.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	id, err := parseUUIDParam(r, "bookingId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid bookingId")
		return
	}
	b, err := fn(r.Context(), id, actorFromRequest(r))
	if err != nil {
		s.respondBookingError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

func (s *Server) acceptBooking(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.Accept)
}

func (s *Server) rejectBooking(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.Reject)
}

func (s *Server) cancelBooking(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.Cancel)
}

func (s *Server) completeBooking(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.Complete)
}

func (s *Server) requestExtension(w http.ResponseWriter, r *http.Request) {
	var req extensionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	s.transition(w, r, func(ctx context.Context, id uuid.UUID, actor string) (*domainBooking.Booking, error) {
		return s.engine.RequestExtension(ctx, id, actor, req.Hours)
	})
}

func (s *Server) confirmExtension(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.ConfirmExtension)
}

func (s *Server) rejectExtension(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.RejectExtension)
}
