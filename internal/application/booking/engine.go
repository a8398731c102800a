package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domainBooking "github.com/companion-hub/companion-hub/internal/domain/booking"
	"github.com/companion-hub/companion-hub/internal/domain/notification"
)

// SystemActor is recorded as the actor of automatic completions.
const SystemActor = "system"

// CreateInput describes a new booking request.
type CreateInput struct {
	RequesterID   string
	ProviderID    string
	BookingDate   time.Time
	DurationHours float64
	Location      *string
	Notes         *string
	TopicID       *string
}

// Engine drives booking state transitions against the authoritative store.
type Engine struct {
	store    domainBooking.Store
	notifier notification.Dispatcher
	now      func() time.Time
	logger   zerolog.Logger
}

// NewEngine creates a booking engine.
func NewEngine(store domainBooking.Store, notifier notification.Dispatcher, logger zerolog.Logger) *Engine {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("service", "booking").Logger(),
	}
}

// WithClock replaces the engine clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// ValidateCreate checks a create request without touching the store.
func ValidateCreate(in CreateInput) error {
	const op = "create"
	requester := strings.TrimSpace(in.RequesterID)
	provider := strings.TrimSpace(in.ProviderID)
	switch {
	case requester == "":
		return domainBooking.Errorf(domainBooking.KindUnauthenticated, op, "requester is required")
	case provider == "":
		return domainBooking.Errorf(domainBooking.KindInvalidArgument, op, "provider is required")
	case requester == provider:
		return domainBooking.Errorf(domainBooking.KindInvalidArgument, op, "cannot book yourself")
	case in.DurationHours <= 0:
		return domainBooking.Errorf(domainBooking.KindInvalidArgument, op, "duration must be positive")
	case in.BookingDate.IsZero():
		return domainBooking.Errorf(domainBooking.KindInvalidArgument, op, "booking date is required")
	}
	return nil
}

// Create validates and inserts a pending booking, then notifies the provider.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*domainBooking.Booking, error) {
	const op = "create"
	if err := ValidateCreate(in); err != nil {
		return nil, err
	}
	requester := strings.TrimSpace(in.RequesterID)
	provider := strings.TrimSpace(in.ProviderID)

	now := e.now()
	b := &domainBooking.Booking{
		ID:            uuid.New(),
		RequesterID:   requester,
		ProviderID:    provider,
		Status:        domainBooking.StatusPending,
		BookingDate:   in.BookingDate.UTC(),
		DurationHours: in.DurationHours,
		Location:      in.Location,
		Notes:         in.Notes,
		TopicID:       in.TopicID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	saved, err := e.store.Insert(ctx, b)
	if err != nil {
		return nil, domainBooking.Annotate(err, op, b.ID, "", domainBooking.StatusPending)
	}

	e.logger.Info().Str("booking_id", saved.ID.String()).Str("requester", requester).Str("provider", provider).Msg("booking requested")
	e.notify(ctx, saved.ProviderID, notification.KindBookingRequested, "New booking request",
		"You have a new booking request", saved, requester)
	return saved, nil
}

// Get returns a booking by id.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*domainBooking.Booking, error) {
	b, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, domainBooking.Annotate(err, "get", id, "", "")
	}
	if b == nil {
		return nil, &domainBooking.Error{Kind: domainBooking.KindNotFound, Op: "get", BookingID: id}
	}
	return b, nil
}

// List returns the bookings the user participates in with one of the given statuses.
func (e *Engine) List(ctx context.Context, userID string, statuses []domainBooking.Status) ([]*domainBooking.Booking, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domainBooking.Errorf(domainBooking.KindUnauthenticated, "list", "no current actor")
	}
	if len(statuses) == 0 {
		statuses = domainBooking.HistoryStatuses
	}
	out, err := e.store.ListByParticipant(ctx, userID, statuses)
	if err != nil {
		return nil, domainBooking.Annotate(err, "list", uuid.Nil, "", "")
	}
	return out, nil
}

// Accept moves a pending booking to accepted. Only the provider may accept.
func (e *Engine) Accept(ctx context.Context, id uuid.UUID, actor string) (*domainBooking.Booking, error) {
	b, changed, err := e.apply(ctx, "accept", id, actor, domainBooking.StatusAccepted, func(b *domainBooking.Booking, now time.Time) error {
		return b.Accept(actor, now)
	})
	if err != nil || !changed {
		return b, err
	}
	e.notify(ctx, b.RequesterID, notification.KindBookingAccepted, "Request accepted",
		"Your booking request was accepted", b, actor)
	return b, nil
}

// Reject moves a pending booking to rejected. Only the provider may reject.
func (e *Engine) Reject(ctx context.Context, id uuid.UUID, actor string) (*domainBooking.Booking, error) {
	b, changed, err := e.apply(ctx, "reject", id, actor, domainBooking.StatusRejected, func(b *domainBooking.Booking, now time.Time) error {
		return b.Reject(actor, now)
	})
	if err != nil || !changed {
		return b, err
	}
	e.notify(ctx, b.RequesterID, notification.KindBookingRejected, "Request rejected",
		"Your booking request was declined", b, actor)
	return b, nil
}

// Complete marks an accepted booking completed on behalf of a participant.
func (e *Engine) Complete(ctx context.Context, id uuid.UUID, actor string) (*domainBooking.Booking, error) {
	b, changed, err := e.apply(ctx, "complete", id, actor, domainBooking.StatusCompleted, func(b *domainBooking.Booking, now time.Time) error {
		return b.Complete(actor, now)
	})
	if err != nil || !changed {
		return b, err
	}
	e.notifyCompleted(ctx, b, actor)
	return b, nil
}

// CompleteElapsed completes an accepted booking whose window has passed.
func (e *Engine) CompleteElapsed(ctx context.Context, id uuid.UUID) (*domainBooking.Booking, error) {
	b, changed, err := e.apply(ctx, "complete_elapsed", id, SystemActor, domainBooking.StatusCompleted, func(b *domainBooking.Booking, now time.Time) error {
		return b.CompleteElapsed(now)
	})
	if err != nil || !changed {
		return b, err
	}
	e.notifyCompleted(ctx, b, SystemActor)
	return b, nil
}

// Cancel cancels a pending or accepted booking through the store's atomic cancel.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, actor string) (*domainBooking.Booking, error) {
	const op = "cancel"
	if strings.TrimSpace(actor) == "" {
		return nil, domainBooking.Errorf(domainBooking.KindUnauthenticated, op, "no current actor")
	}
	cur, err := e.Get(ctx, id)
	if err != nil {
		return nil, domainBooking.Annotate(err, op, id, "", domainBooking.StatusCancelled)
	}

	now := e.now()
	if err := cur.Clone().Cancel(actor, now); err != nil {
		if errors.Is(err, domainBooking.ErrNoChange) {
			return cur, nil
		}
		return nil, domainBooking.Annotate(err, op, id, cur.Status, domainBooking.StatusCancelled)
	}

	saved, err := e.store.Cancel(ctx, id, actor, now)
	if err != nil {
		return nil, domainBooking.Annotate(err, op, id, cur.Status, domainBooking.StatusCancelled)
	}

	e.logger.Info().Str("booking_id", id.String()).Str("actor", actor).Str("from", string(cur.Status)).Msg("booking cancelled")
	e.notify(ctx, saved.Counterpart(actor), notification.KindBookingCancelled, "Session cancelled",
		fmt.Sprintf("Session cancelled by %s", actor), saved, actor)
	return saved, nil
}

// apply loads the booking, runs mutate on a copy and persists the result conditionally on the
// version that was read. changed is false when the booking already sat in the target status.
func (e *Engine) apply(
	ctx context.Context,
	op string,
	id uuid.UUID,
	actor string,
	to domainBooking.Status,
	mutate func(b *domainBooking.Booking, now time.Time) error,
) (*domainBooking.Booking, bool, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, false, domainBooking.Errorf(domainBooking.KindUnauthenticated, op, "no current actor")
	}
	cur, err := e.Get(ctx, id)
	if err != nil {
		return nil, false, domainBooking.Annotate(err, op, id, "", to)
	}

	next := cur.Clone()
	if err := mutate(next, e.now()); err != nil {
		if errors.Is(err, domainBooking.ErrNoChange) {
			e.logger.Debug().Str("booking_id", id.String()).Str("op", op).Msg("already applied")
			return cur, false, nil
		}
		return nil, false, domainBooking.Annotate(err, op, id, cur.Status, to)
	}

	saved, err := e.store.Update(ctx, next, cur.UpdatedAt)
	if err != nil {
		return nil, false, domainBooking.Annotate(err, op, id, cur.Status, to)
	}

	e.logger.Info().
		Str("booking_id", id.String()).
		Str("op", op).
		Str("actor", actor).
		Str("from", string(cur.Status)).
		Str("to", string(saved.Status)).
		Msg("booking updated")
	return saved, true, nil
}

func (e *Engine) notifyCompleted(ctx context.Context, b *domainBooking.Booking, actor string) {
	for _, recipient := range []string{b.RequesterID, b.ProviderID} {
		e.notify(ctx, recipient, notification.KindBookingCompleted, "Session completed, please rate",
			"Your session has ended. Let us know how it went.", b, actor)
	}
}

func (e *Engine) notify(ctx context.Context, recipient string, kind notification.Kind, title, body string, b *domainBooking.Booking, actor string) {
	data := map[string]string{
		notification.DataBookingID: b.ID.String(),
		notification.DataActor:     actor,
		notification.DataKind:      string(kind),
		notification.DataStatus:    string(b.Status),
		notification.DataVersion:   b.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := e.notifier.Notify(ctx, recipient, kind, title, body, data); err != nil {
		e.logger.Warn().Err(err).
			Str("booking_id", b.ID.String()).
			Str("recipient", recipient).
			Str("kind", string(kind)).
			Msg("failed to dispatch notification")
	}
}
