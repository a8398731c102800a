package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainBooking "github.com/companion-hub/companion-hub/internal/domain/booking"
	bookingMocks "github.com/companion-hub/companion-hub/internal/domain/booking/mocks"
)

func guardBooking(requester, provider string, status domainBooking.Status) *domainBooking.Booking {
	return &domainBooking.Booking{
		ID:            uuid.New(),
		RequesterID:   requester,
		ProviderID:    provider,
		Status:        status,
		BookingDate:   time.Now(),
		DurationHours: 1,
	}
}

func TestGuard_CanCreate(t *testing.T) {
	t.Run("local pending in either direction", func(t *testing.T) {
		g := NewGuard(nil, zerolog.Nop())
		local := []*domainBooking.Booking{guardBooking("b", "a", domainBooking.StatusPending)}

		err := g.CanCreate(context.Background(), "a", "b", local)

		require.Error(t, err)
		assert.True(t, domainBooking.IsKind(err, domainBooking.KindConflict))
		assert.Contains(t, err.Error(), "already pending")
	})

	t.Run("local accepted", func(t *testing.T) {
		g := NewGuard(nil, zerolog.Nop())
		local := []*domainBooking.Booking{guardBooking("a", "b", domainBooking.StatusAccepted)}

		err := g.CanCreate(context.Background(), "a", "b", local)

		assert.True(t, domainBooking.IsKind(err, domainBooking.KindConflict))
		assert.Contains(t, err.Error(), "already engaged")
	})

	t.Run("terminal bookings do not block", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		store := bookingMocks.NewMockStore(ctrl)
		g := NewGuard(store, zerolog.Nop())
		local := []*domainBooking.Booking{
			guardBooking("a", "b", domainBooking.StatusCompleted),
			guardBooking("a", "b", domainBooking.StatusRejected),
			guardBooking("a", "c", domainBooking.StatusPending),
		}

		store.EXPECT().FindActiveBetween(gomock.Any(), "a", "b").Return(nil, nil)

		assert.NoError(t, g.CanCreate(context.Background(), "a", "b", local))
	})

	t.Run("local hit skips the store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		store := bookingMocks.NewMockStore(ctrl)
		g := NewGuard(store, zerolog.Nop())
		local := []*domainBooking.Booking{guardBooking("a", "b", domainBooking.StatusPending)}

		assert.Error(t, g.CanCreate(context.Background(), "a", "b", local))
	})

	t.Run("remote hit", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		store := bookingMocks.NewMockStore(ctrl)
		g := NewGuard(store, zerolog.Nop())
		existing := guardBooking("b", "a", domainBooking.StatusAccepted)

		store.EXPECT().FindActiveBetween(gomock.Any(), "a", "b").Return(existing, nil)

		err := g.CanCreate(context.Background(), "a", "b", nil)
		var be *domainBooking.Error
		require.ErrorAs(t, err, &be)
		assert.Equal(t, domainBooking.KindConflict, be.Kind)
		assert.Equal(t, existing.ID, be.BookingID)
	})

	t.Run("remote failure is best effort", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		store := bookingMocks.NewMockStore(ctrl)
		g := NewGuard(store, zerolog.Nop())

		store.EXPECT().FindActiveBetween(gomock.Any(), "a", "b").Return(nil, errors.New("connection refused"))

		assert.NoError(t, g.CanCreate(context.Background(), "a", "b", nil))
	})
}
