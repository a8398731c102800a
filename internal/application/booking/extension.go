package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	domainBooking "github.com/companion-hub/companion-hub/internal/domain/booking"
	"github.com/companion-hub/companion-hub/internal/domain/notification"
)

// RequestExtension records a request by the requester for more hours on an accepted booking.
func (e *Engine) RequestExtension(ctx context.Context, id uuid.UUID, actor string, hours int) (*domainBooking.Booking, error) {
	const op = "request_extension"
	if hours <= 0 || hours > domainBooking.MaxExtensionHours {
		return nil, domainBooking.Annotate(domainBooking.ErrInvalidHours, op, id, "", "")
	}
	b, _, err := e.apply(ctx, op, id, actor, domainBooking.StatusAccepted, func(b *domainBooking.Booking, now time.Time) error {
		return b.RequestExtension(actor, hours, now)
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, b.ProviderID, notification.KindExtensionRequested, "Extension requested",
		fmt.Sprintf("Your client asked to extend the session by %d hour(s)", hours), b, actor)
	return b, nil
}

// ConfirmExtension adds the outstanding hours to the booking duration.
func (e *Engine) ConfirmExtension(ctx context.Context, id uuid.UUID, actor string) (*domainBooking.Booking, error) {
	b, _, err := e.apply(ctx, "confirm_extension", id, actor, domainBooking.StatusAccepted, func(b *domainBooking.Booking, now time.Time) error {
		return b.ConfirmExtension(actor, now)
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, b.RequesterID, notification.KindExtensionConfirmed, "Extension approved",
		"Your extension request was approved", b, actor)
	return b, nil
}

// RejectExtension discards the outstanding extension request.
func (e *Engine) RejectExtension(ctx context.Context, id uuid.UUID, actor string) (*domainBooking.Booking, error) {
	b, _, err := e.apply(ctx, "reject_extension", id, actor, domainBooking.StatusAccepted, func(b *domainBooking.Booking, now time.Time) error {
		return b.RejectExtension(actor, now)
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, b.RequesterID, notification.KindExtensionRejected, "Extension declined",
		"Your extension request was declined", b, actor)
	return b, nil
}
