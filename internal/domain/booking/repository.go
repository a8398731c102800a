package booking

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_store.go -package=mocks . Store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the authoritative booking store.
//
// Implementations return *Error values classified by ErrorKind: KindNotFound for a missing
// booking, KindConflict when the one-active-booking-per-pair constraint rejects an insert,
// KindTransient for connectivity failures and KindNotConfigured when the backing table or
// permissions are missing.
type Store interface {
	Insert(ctx context.Context, b *Booking) (*Booking, error)
	// Update writes b only if the stored row still carries expectedUpdatedAt.
	Update(ctx context.Context, b *Booking, expectedUpdatedAt time.Time) (*Booking, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListByParticipant(ctx context.Context, userID string, statuses []Status) ([]*Booking, error)
	FindActiveBetween(ctx context.Context, a, b string) (*Booking, error)
	// Cancel atomically cancels a pending or accepted booking if actor is a participant.
	Cancel(ctx context.Context, id uuid.UUID, actor string, at time.Time) (*Booking, error)
	ListElapsed(ctx context.Context, now time.Time, limit int) ([]*Booking, error)
}
