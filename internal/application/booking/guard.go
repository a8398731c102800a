package booking

import (
	"context"

	"github.com/rs/zerolog"

	domainBooking "github.com/companion-hub/companion-hub/internal/domain/booking"
)

// Guard rejects a new booking when the pair already has a pending or accepted one.
type Guard struct {
	store  domainBooking.Store
	logger zerolog.Logger
}

// NewGuard creates a conflict guard. A nil store limits the guard to the local scan.
func NewGuard(store domainBooking.Store, logger zerolog.Logger) *Guard {
	return &Guard{
		store:  store,
		logger: logger.With().Str("service", "booking_guard").Logger(),
	}
}

// CanCreate checks local first, then the store. A failing remote check is logged and
// treated as no evidence of conflict; the store's pair constraint still applies on insert.
func (g *Guard) CanCreate(ctx context.Context, requesterID, providerID string, local []*domainBooking.Booking) error {
	for _, b := range local {
		if b != nil && b.Status.IsActive() && b.Involves(requesterID, providerID) {
			return conflictFor(b)
		}
	}
	if g.store == nil {
		return nil
	}

	existing, err := g.store.FindActiveBetween(ctx, requesterID, providerID)
	if err != nil {
		g.logger.Warn().Err(err).
			Str("requester", requesterID).
			Str("provider", providerID).
			Msg("remote conflict check failed")
		return nil
	}
	if existing != nil {
		return conflictFor(existing)
	}
	return nil
}

func conflictFor(b *domainBooking.Booking) error {
	msg := "a booking request is already pending with this user"
	if b.Status == domainBooking.StatusAccepted {
		msg = "you are already engaged with this user"
	}
	return &domainBooking.Error{
		Kind:      domainBooking.KindConflict,
		Op:        "create",
		BookingID: b.ID,
		Message:   msg,
	}
}
