// Package memstore is an in-process booking store used by tests and local development.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/companion-hub/companion-hub/internal/domain/booking"
)

// BookingStore keeps bookings in memory and enforces the same constraints as the SQL schema.
type BookingStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*booking.Booking
	// active maps PairKey to the single pending or accepted booking of the pair.
	active map[string]uuid.UUID
}

// NewBookingStore creates an empty store.
func NewBookingStore() *BookingStore {
	return &BookingStore{
		rows:   make(map[uuid.UUID]*booking.Booking),
		active: make(map[string]uuid.UUID),
	}
}

// Insert stores a new booking.
func (s *BookingStore) Insert(_ context.Context, b *booking.Booking) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[b.ID]; ok {
		return nil, booking.Errorf(booking.KindConflict, "insert", "booking %s already exists", b.ID)
	}
	if b.Status.IsActive() && s.activeBetweenLocked(b.RequesterID, b.ProviderID, b.ID) != nil {
		return nil, booking.Errorf(booking.KindConflict, "insert", "an active booking already exists for this pair")
	}
	s.putLocked(b.Clone())
	return b.Clone(), nil
}

// Update replaces a booking if its stored version matches expectedUpdatedAt.
func (s *BookingStore) Update(_ context.Context, b *booking.Booking, expectedUpdatedAt time.Time) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rows[b.ID]
	if !ok {
		return nil, &booking.Error{Kind: booking.KindNotFound, Op: "update", BookingID: b.ID}
	}
	if !cur.UpdatedAt.Equal(expectedUpdatedAt) {
		return nil, &booking.Error{Kind: booking.KindInvalidTransition, Op: "update", BookingID: b.ID, Message: "booking changed concurrently"}
	}
	if b.Status.IsActive() && s.activeBetweenLocked(b.RequesterID, b.ProviderID, b.ID) != nil {
		return nil, booking.Errorf(booking.KindConflict, "update", "an active booking already exists for this pair")
	}
	s.putLocked(b.Clone())
	return b.Clone(), nil
}

// GetByID returns a booking or a NotFound error.
func (s *BookingStore) GetByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.rows[id]
	if !ok {
		return nil, &booking.Error{Kind: booking.KindNotFound, Op: "get", BookingID: id}
	}
	return b.Clone(), nil
}

// ListByParticipant returns the user's bookings with one of statuses, newest first.
func (s *BookingStore) ListByParticipant(_ context.Context, userID string, statuses []booking.Status) ([]*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[booking.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*booking.Booking
	for _, b := range s.rows {
		if !b.IsParticipant(userID) {
			continue
		}
		if len(want) > 0 && !want[b.Status] {
			continue
		}
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// FindActiveBetween returns the pending or accepted booking for the pair, or nil.
func (s *BookingStore) FindActiveBetween(_ context.Context, a, b string) (*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if found := s.activeBetweenLocked(a, b, uuid.Nil); found != nil {
		return found.Clone(), nil
	}
	return nil, nil
}

// Cancel cancels a pending or accepted booking when actor is a participant.
// Cancelling an already cancelled booking returns it unchanged.
func (s *BookingStore) Cancel(_ context.Context, id uuid.UUID, actor string, at time.Time) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rows[id]
	if !ok {
		return nil, &booking.Error{Kind: booking.KindNotFound, Op: "cancel", BookingID: id}
	}
	if !cur.IsParticipant(actor) {
		return nil, booking.Annotate(booking.ErrNotParticipant, "cancel", id, cur.Status, booking.StatusCancelled)
	}
	if cur.Status == booking.StatusCancelled {
		return cur.Clone(), nil
	}
	if !cur.Status.IsActive() {
		return nil, booking.Annotate(booking.ErrInvalidTransition, "cancel", id, cur.Status, booking.StatusCancelled)
	}
	next := cur.Clone()
	next.Status = booking.StatusCancelled
	next.ExtensionRequestedHours = nil
	next.ExtensionRequestedAt = nil
	next.UpdatedAt = at
	s.putLocked(next)
	return next.Clone(), nil
}

// ListElapsed returns accepted bookings whose window ended at or before now, oldest end first.
func (s *BookingStore) ListElapsed(_ context.Context, now time.Time, limit int) ([]*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*booking.Booking
	for _, b := range s.rows {
		if b.Status == booking.StatusAccepted && b.IsEnded(now) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EndTime().Before(out[j].EndTime())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored bookings.
func (s *BookingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *BookingStore) activeBetweenLocked(a, b string, except uuid.UUID) *booking.Booking {
	id, ok := s.active[booking.PairKey(a, b)]
	if !ok || id == except {
		return nil
	}
	return s.rows[id]
}

// putLocked stores row and keeps the active pair index in step with its status.
func (s *BookingStore) putLocked(row *booking.Booking) {
	key := booking.PairKey(row.RequesterID, row.ProviderID)
	if prev, ok := s.rows[row.ID]; ok {
		prevKey := booking.PairKey(prev.RequesterID, prev.ProviderID)
		if s.active[prevKey] == row.ID {
			delete(s.active, prevKey)
		}
	}
	s.rows[row.ID] = row
	if row.Status.IsActive() {
		s.active[key] = row.ID
	}
}
