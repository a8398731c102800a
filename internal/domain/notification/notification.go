package notification

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the booking event a notification reports.
type Kind string

const (
	KindBookingRequested   Kind = "BOOKING_REQUESTED"
	KindBookingAccepted    Kind = "BOOKING_ACCEPTED"
	KindBookingRejected    Kind = "BOOKING_REJECTED"
	KindBookingCancelled   Kind = "BOOKING_CANCELLED"
	KindBookingCompleted   Kind = "BOOKING_COMPLETED"
	KindExtensionRequested Kind = "EXTENSION_REQUESTED"
	KindExtensionConfirmed Kind = "EXTENSION_CONFIRMED"
	KindExtensionRejected  Kind = "EXTENSION_REJECTED"
)

// Well-known data keys.
const (
	DataBookingID = "bookingId"
	DataActor     = "actor"
	DataKind      = "kind"
	DataStatus    = "status"
	DataVersion   = "version"
)

var (
	ErrClientNotFound = errors.New("SSE client not found")
	ErrChannelFull    = errors.New("SSE message channel full")
	ErrNoRecipient    = errors.New("notification has no recipient")
)

// Notification is a single message addressed to one booking participant.
type Notification struct {
	NotificationID uuid.UUID         `json:"notificationId"`
	RecipientID    string            `json:"recipientId"`
	Kind           Kind              `json:"kind"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Data           map[string]string `json:"data,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// NewNotification creates a new notification
func NewNotification(recipientID string, kind Kind, title, body string, data map[string]string) *Notification {
	return &Notification{
		NotificationID: uuid.New(),
		RecipientID:    recipientID,
		Kind:           kind,
		Title:          title,
		Body:           body,
		Data:           data,
		CreatedAt:      time.Now().UTC(),
	}
}

// Validate checks the notification can be delivered.
func (n *Notification) Validate() error {
	if strings.TrimSpace(n.RecipientID) == "" {
		return ErrNoRecipient
	}
	return nil
}

// DedupeKey identifies the same logical event for the same recipient across processes.
func (n *Notification) DedupeKey() string {
	parts := []string{string(n.Kind), n.RecipientID}
	if n.Data != nil {
		parts = append(parts, n.Data[DataBookingID], n.Data[DataVersion])
	}
	return strings.Join(parts, ":")
}

// JSON encodes the notification, falling back to an empty object.
func (n *Notification) JSON() json.RawMessage {
	b, err := json.Marshal(n)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// SSEClient represents an active SSE connection
type SSEClient struct {
	ClientID    string
	UserID      *string
	ConnectedAt time.Time
	MessageChan chan *SSEMessage
}

// NewSSEClient creates a new SSE client
func NewSSEClient(clientID string, userID *string) *SSEClient {
	return &SSEClient{
		ClientID:    clientID,
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *SSEMessage, 100),
	}
}

// Close closes the client's message channel
func (c *SSEClient) Close() {
	close(c.MessageChan)
}

// SSEMessage represents a message to be sent via SSE
type SSEMessage struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewSSEMessage creates a new SSE message
func NewSSEMessage(event string, data json.RawMessage) *SSEMessage {
	return &SSEMessage{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// SSEHub manages connected SSE clients.
type SSEHub interface {
	Register(client *SSEClient)
	Unregister(client *SSEClient)
	GetClientCount() int
	// BroadcastToUser returns the number of the user's clients that accepted the message.
	BroadcastToUser(userID string, message *SSEMessage) int
	SendToClient(clientID string, message *SSEMessage) error
	Stop()
}
