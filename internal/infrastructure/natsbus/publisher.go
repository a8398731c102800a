package natsbus

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/companion-hub/companion-hub/internal/domain/notification"
)

// SubjectPrefix prefixes every booking notification subject.
const SubjectPrefix = "booking.notify."

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher hands booking notifications to downstream push services over NATS.
type Publisher struct {
	conn   conn
	nc     *nats.Conn
	logger zerolog.Logger
}

// Connect dials NATS and returns a publisher that owns the connection.
func Connect(url string, logger zerolog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("companion-hub"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p := NewPublisher(nc, logger)
	p.nc = nc
	return p, nil
}

func NewPublisher(c conn, logger zerolog.Logger) *Publisher {
	return &Publisher{
		conn:   c,
		logger: logger.With().Str("dispatcher", "nats").Logger(),
	}
}

// Subject returns the subject a notification kind is published on.
func Subject(kind notification.Kind) string {
	return SubjectPrefix + strings.ToLower(string(kind))
}

func (p *Publisher) Notify(_ context.Context, recipientID string, kind notification.Kind, title, body string, data map[string]string) error {
	n := notification.NewNotification(recipientID, kind, title, body, data)
	if err := n.Validate(); err != nil {
		return err
	}
	subject := Subject(kind)
	if err := p.conn.Publish(subject, n.JSON()); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug().Str("subject", subject).Str("recipient", recipientID).Msg("notification published")
	return nil
}

// Close drains the owned connection, if any.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
