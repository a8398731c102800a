package sse

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/companion-hub/companion-hub/internal/domain/notification"
)

// Dispatcher delivers booking notifications to the recipient's open event streams.
type Dispatcher struct {
	hub    notification.SSEHub
	logger zerolog.Logger
}

func NewDispatcher(hub notification.SSEHub, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		hub:    hub,
		logger: logger.With().Str("dispatcher", "sse").Logger(),
	}
}

func (d *Dispatcher) Notify(_ context.Context, recipientID string, kind notification.Kind, title, body string, data map[string]string) error {
	n := notification.NewNotification(recipientID, kind, title, body, data)
	if err := n.Validate(); err != nil {
		return err
	}
	delivered := d.hub.BroadcastToUser(recipientID, notification.NewSSEMessage(string(kind), n.JSON()))
	if delivered == 0 {
		d.logger.Debug().Str("recipient", recipientID).Str("kind", string(kind)).Msg("recipient has no open stream")
	}
	return nil
}
