package booking

import (
	"time"

	"github.com/google/uuid"
)

// Record is the persisted row shape of a booking.
type Record struct {
	ID                      uuid.UUID  `db:"id"`
	RequesterID             string     `db:"requester_id"`
	ProviderID              string     `db:"provider_id"`
	Status                  string     `db:"status"`
	BookingDate             time.Time  `db:"booking_date"`
	DurationHours           float64    `db:"duration_hours"`
	Location                *string    `db:"location"`
	Notes                   *string    `db:"notes"`
	TopicID                 *string    `db:"topic_id"`
	ExtensionRequestedHours *int32     `db:"extension_requested_hours"`
	ExtensionRequestedAt    *time.Time `db:"extension_requested_at"`
	CreatedAt               time.Time  `db:"created_at"`
	UpdatedAt               time.Time  `db:"updated_at"`
}

// ToRecord converts a booking into its persisted shape.
func ToRecord(b *Booking) Record {
	r := Record{
		ID:                   b.ID,
		RequesterID:          b.RequesterID,
		ProviderID:           b.ProviderID,
		Status:               string(b.Status),
		BookingDate:          b.BookingDate.UTC(),
		DurationHours:        b.DurationHours,
		Location:             cloneString(b.Location),
		Notes:                cloneString(b.Notes),
		TopicID:              cloneString(b.TopicID),
		ExtensionRequestedAt: b.ExtensionRequestedAt,
		CreatedAt:            b.CreatedAt.UTC(),
		UpdatedAt:            b.UpdatedAt.UTC(),
	}
	if b.ExtensionRequestedHours != nil {
		h := int32(*b.ExtensionRequestedHours)
		r.ExtensionRequestedHours = &h
	}
	return r
}

// FromRecord validates a persisted row and converts it into a booking.
func FromRecord(r Record) (*Booking, error) {
	status, ok := ParseStatus(r.Status)
	if !ok {
		return nil, Errorf(KindInvalidArgument, "decode", "unknown booking status %q", r.Status)
	}
	if r.DurationHours <= 0 {
		return nil, Errorf(KindInvalidArgument, "decode", "non-positive duration %v", r.DurationHours)
	}
	if r.RequesterID == "" || r.ProviderID == "" || r.RequesterID == r.ProviderID {
		return nil, Errorf(KindInvalidArgument, "decode", "invalid participants for booking %s", r.ID)
	}
	b := &Booking{
		ID:            r.ID,
		RequesterID:   r.RequesterID,
		ProviderID:    r.ProviderID,
		Status:        status,
		BookingDate:   r.BookingDate,
		DurationHours: r.DurationHours,
		Location:      cloneString(r.Location),
		Notes:         cloneString(r.Notes),
		TopicID:       cloneString(r.TopicID),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	// A stray extension on a non-accepted row is dropped.
	if status == StatusAccepted && r.ExtensionRequestedHours != nil {
		h := int(*r.ExtensionRequestedHours)
		b.ExtensionRequestedHours = &h
		if r.ExtensionRequestedAt != nil {
			at := *r.ExtensionRequestedAt
			b.ExtensionRequestedAt = &at
		}
	}
	return b, nil
}
