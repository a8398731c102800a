package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrNoActor = errors.New("no authenticated actor")

// Provider supplies the current actor and tells remote-addressable identities apart from
// local placeholders.
type Provider interface {
	CurrentActor(ctx context.Context) (string, error)
	IsRemote(id string) bool
}

// IsRemoteID reports whether id has the store's identity format (a UUID).
func IsRemoteID(id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Static is a Provider bound to a single actor for the life of a session.
type Static struct {
	ActorID string
}

func (s Static) CurrentActor(context.Context) (string, error) {
	if strings.TrimSpace(s.ActorID) == "" {
		return "", ErrNoActor
	}
	return s.ActorID, nil
}

func (Static) IsRemote(id string) bool {
	return IsRemoteID(id)
}

type contextKey string

const actorKey contextKey = "actorID"

// WithActor stores the actor id in ctx.
func WithActor(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, actorID)
}

// FromContext is a Provider that reads the actor placed by WithActor.
type FromContext struct{}

func (FromContext) CurrentActor(ctx context.Context) (string, error) {
	if v, ok := ctx.Value(actorKey).(string); ok && v != "" {
		return v, nil
	}
	return "", ErrNoActor
}

func (FromContext) IsRemote(id string) bool {
	return IsRemoteID(id)
}
