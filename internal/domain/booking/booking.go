package booking

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents booking status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// MaxExtensionHours bounds a single extension request.
const MaxExtensionHours = 24

var (
	ErrInvalidTransition  = errors.New("invalid booking status transition")
	ErrNoChange           = errors.New("booking already in target status")
	ErrNotParticipant     = errors.New("actor is not a participant of the booking")
	ErrNotProvider        = errors.New("only the provider may perform this action")
	ErrNotRequester       = errors.New("only the requester may perform this action")
	ErrSessionEnded       = errors.New("booking window has already ended")
	ErrSessionNotEnded    = errors.New("booking window has not ended yet")
	ErrInvalidHours       = errors.New("extension hours must be between 1 and 24")
	ErrExtensionPending   = errors.New("an extension request is already pending")
	ErrNoExtensionPending = errors.New("no extension request is pending")
)

// ParseStatus validates a raw status value.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusAccepted, StatusRejected, StatusCompleted, StatusCancelled:
		return Status(s), true
	default:
		return "", false
	}
}

// IsActive reports whether the status blocks a new booking between the same pair.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusAccepted
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusCancelled
}

// ActiveStatuses are the statuses covered by the one-active-booking-per-pair rule.
var ActiveStatuses = []Status{StatusPending, StatusAccepted}

// HistoryStatuses are the statuses kept in a participant's default view.
var HistoryStatuses = []Status{StatusPending, StatusAccepted, StatusCompleted}

// Booking represents a companionship engagement negotiated between a requester and a provider.
type Booking struct {
	ID                      uuid.UUID  `json:"id"`
	RequesterID             string     `json:"requesterId"`
	ProviderID              string     `json:"providerId"`
	Status                  Status     `json:"status"`
	BookingDate             time.Time  `json:"bookingDate"`
	DurationHours           float64    `json:"durationHours"`
	Location                *string    `json:"location,omitempty"`
	Notes                   *string    `json:"notes,omitempty"`
	TopicID                 *string    `json:"topicId,omitempty"`
	ExtensionRequestedHours *int       `json:"extensionRequestedHours,omitempty"`
	ExtensionRequestedAt    *time.Time `json:"extensionRequestedAt,omitempty"`
	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`
}

// EndTime is the scheduled end of the booking window.
func (b *Booking) EndTime() time.Time {
	return b.BookingDate.Add(hoursToDuration(b.DurationHours))
}

// IsEnded reports whether the booking window has elapsed at now.
func (b *Booking) IsEnded(now time.Time) bool {
	return !now.Before(b.EndTime())
}

// HasPendingExtension reports whether an extension request is outstanding.
func (b *Booking) HasPendingExtension() bool {
	return b.ExtensionRequestedHours != nil
}

// IsParticipant reports whether actor is the requester or the provider.
func (b *Booking) IsParticipant(actor string) bool {
	return actor != "" && (actor == b.RequesterID || actor == b.ProviderID)
}

// Counterpart returns the other participant.
func (b *Booking) Counterpart(actor string) string {
	if actor == b.RequesterID {
		return b.ProviderID
	}
	return b.RequesterID
}

// Involves reports whether the booking is between a and b in either direction.
func (b *Booking) Involves(x, y string) bool {
	return (b.RequesterID == x && b.ProviderID == y) || (b.RequesterID == y && b.ProviderID == x)
}

// Clone returns a deep copy.
func (b *Booking) Clone() *Booking {
	c := *b
	c.Location = cloneString(b.Location)
	c.Notes = cloneString(b.Notes)
	c.TopicID = cloneString(b.TopicID)
	if b.ExtensionRequestedHours != nil {
		h := *b.ExtensionRequestedHours
		c.ExtensionRequestedHours = &h
	}
	if b.ExtensionRequestedAt != nil {
		t := *b.ExtensionRequestedAt
		c.ExtensionRequestedAt = &t
	}
	return &c
}

// CanTransitionTo validates booking status transition.
func (b *Booking) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusPending:   {StatusAccepted, StatusRejected, StatusCancelled},
		StatusAccepted:  {StatusCompleted, StatusCancelled},
		StatusRejected:  {},
		StatusCompleted: {},
		StatusCancelled: {},
	}
	for _, s := range transitions[b.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// Accept moves a pending booking to accepted on behalf of the provider.
func (b *Booking) Accept(actor string, now time.Time) error {
	if actor != b.ProviderID {
		return ErrNotProvider
	}
	return b.moveTo(StatusAccepted, now)
}

// Reject moves a pending booking to rejected on behalf of the provider.
func (b *Booking) Reject(actor string, now time.Time) error {
	if actor != b.ProviderID {
		return ErrNotProvider
	}
	return b.moveTo(StatusRejected, now)
}

// Cancel moves a pending or accepted booking to cancelled on behalf of either participant.
func (b *Booking) Cancel(actor string, now time.Time) error {
	if !b.IsParticipant(actor) {
		return ErrNotParticipant
	}
	return b.moveTo(StatusCancelled, now)
}

// Complete moves an accepted booking to completed on behalf of either participant.
func (b *Booking) Complete(actor string, now time.Time) error {
	if !b.IsParticipant(actor) {
		return ErrNotParticipant
	}
	return b.moveTo(StatusCompleted, now)
}

// CompleteElapsed completes an accepted booking whose window has passed. No actor is involved.
func (b *Booking) CompleteElapsed(now time.Time) error {
	if b.Status == StatusCompleted {
		return ErrNoChange
	}
	if b.Status == StatusAccepted && !b.IsEnded(now) {
		return ErrSessionNotEnded
	}
	return b.moveTo(StatusCompleted, now)
}

// RequestExtension records an outstanding request for more hours.
func (b *Booking) RequestExtension(actor string, hours int, now time.Time) error {
	if hours <= 0 || hours > MaxExtensionHours {
		return ErrInvalidHours
	}
	if actor != b.RequesterID {
		return ErrNotRequester
	}
	if err := b.extensionOpen(now); err != nil {
		return err
	}
	if b.HasPendingExtension() {
		return ErrExtensionPending
	}
	at := now
	b.ExtensionRequestedHours = &hours
	b.ExtensionRequestedAt = &at
	b.UpdatedAt = now
	return nil
}

// ConfirmExtension merges the outstanding request into the duration.
func (b *Booking) ConfirmExtension(actor string, now time.Time) error {
	if actor != b.ProviderID {
		return ErrNotProvider
	}
	if err := b.extensionOpen(now); err != nil {
		return err
	}
	if !b.HasPendingExtension() {
		return ErrNoExtensionPending
	}
	b.DurationHours += float64(*b.ExtensionRequestedHours)
	b.clearExtension()
	b.UpdatedAt = now
	return nil
}

// RejectExtension discards the outstanding request.
func (b *Booking) RejectExtension(actor string, now time.Time) error {
	if actor != b.ProviderID {
		return ErrNotProvider
	}
	if err := b.extensionOpen(now); err != nil {
		return err
	}
	if !b.HasPendingExtension() {
		return ErrNoExtensionPending
	}
	b.clearExtension()
	b.UpdatedAt = now
	return nil
}

func (b *Booking) extensionOpen(now time.Time) error {
	if b.Status != StatusAccepted {
		return ErrInvalidTransition
	}
	if b.IsEnded(now) {
		return ErrSessionEnded
	}
	return nil
}

func (b *Booking) moveTo(target Status, now time.Time) error {
	if b.Status == target {
		return ErrNoChange
	}
	if !b.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	b.Status = target
	b.clearExtension()
	b.UpdatedAt = now
	return nil
}

func (b *Booking) clearExtension() {
	b.ExtensionRequestedHours = nil
	b.ExtensionRequestedAt = nil
}

// PairKey returns an order-independent key for two participants.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
