package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	domainBooking "github.com/companion-hub/companion-hub/internal/domain/booking"
)

// Cache is the actor's local projection of the bookings it participates in.
// Rejected and cancelled bookings are kept out of the view.
type Cache struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*domainBooking.Booking
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[uuid.UUID]*domainBooking.Booking)}
}

// Apply merges a server record. An older record never overwrites a newer one.
func (c *Cache) Apply(b *domainBooking.Booking) {
	if b == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.items[b.ID]; ok && cur.UpdatedAt.After(b.UpdatedAt) {
		return
	}
	if !inView(b.Status) {
		delete(c.items, b.ID)
		return
	}
	c.items[b.ID] = b.Clone()
}

// Replace swaps the view for list. A cached entry newer than its listed version is kept.
func (c *Cache) Replace(list []*domainBooking.Booking) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make(map[uuid.UUID]*domainBooking.Booking, len(list))
	for _, b := range list {
		if b == nil {
			continue
		}
		if cur, ok := c.items[b.ID]; ok && cur.UpdatedAt.After(b.UpdatedAt) {
			if inView(cur.Status) {
				items[b.ID] = cur
			}
			continue
		}
		if inView(b.Status) {
			items[b.ID] = b.Clone()
		}
	}
	c.items = items
}

// Snapshot returns copies of all cached bookings, newest booking date first.
func (c *Cache) Snapshot() []*domainBooking.Booking {
	c.mu.RLock()
	out := make([]*domainBooking.Booking, 0, len(c.items))
	for _, b := range c.items {
		out = append(out, b.Clone())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BookingDate.Equal(out[j].BookingDate) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].BookingDate.After(out[j].BookingDate)
	})
	return out
}

// Get returns a copy of one cached booking.
func (c *Cache) Get(id uuid.UUID) (*domainBooking.Booking, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.items[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// ActiveWith returns the pending or accepted booking between self and peer, if cached.
func (c *Cache) ActiveWith(self, peer string) *domainBooking.Booking {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.items {
		if b.Status.IsActive() && b.Involves(self, peer) {
			return b.Clone()
		}
	}
	return nil
}

// Ended returns the accepted bookings of actor whose window has passed at now.
func (c *Cache) Ended(actor string, now time.Time) []*domainBooking.Booking {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*domainBooking.Booking
	for _, b := range c.items {
		if b.Status == domainBooking.StatusAccepted && b.IsParticipant(actor) && b.IsEnded(now) {
			out = append(out, b.Clone())
		}
	}
	return out
}

// Len returns the number of cached bookings.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func inView(s domainBooking.Status) bool {
	for _, v := range domainBooking.HistoryStatuses {
		if s == v {
			return true
		}
	}
	return false
}
