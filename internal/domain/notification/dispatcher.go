package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_dispatcher.go -package=mocks . Dispatcher

import (
	"context"
	"errors"
)

// Dispatcher delivers a notification to one recipient. Delivery is best effort.
type Dispatcher interface {
	Notify(ctx context.Context, recipientID string, kind Kind, title, body string, data map[string]string) error
}

// Multi fans a notification out to several dispatchers.
type Multi []Dispatcher

func (m Multi) Notify(ctx context.Context, recipientID string, kind Kind, title, body string, data map[string]string) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Notify(ctx, recipientID, kind, title, body, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, string, Kind, string, string, map[string]string) error {
	return nil
}
