package booking

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// ErrorKind classifies failures so callers can decide how to react (retry only Transient).
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindUnauthenticated
	KindInvalidArgument
	KindConflict
	KindInvalidTransition
	KindTransient
	KindNotFound
	// KindNotConfigured marks a store that is missing its table or permissions.
	KindNotConfigured
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	case KindConflict:
		return "CONFLICT"
	case KindInvalidTransition:
		return "INVALID_TRANSITION"
	case KindTransient:
		return "TRANSIENT"
	case KindNotFound:
		return "NOT_FOUND"
	case KindNotConfigured:
		return "NOT_CONFIGURED"
	default:
		return "UNKNOWN"
	}
}

// Error is the typed failure returned by the booking core.
type Error struct {
	Kind      ErrorKind
	Op        string
	BookingID uuid.UUID
	From      Status
	To        Status
	Message   string
	Err       error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(strings.ToLower(e.Kind.String()))
	if e.BookingID != uuid.Nil {
		sb.WriteString(" booking ")
		sb.WriteString(e.BookingID.String())
	}
	if e.From != "" && e.To != "" {
		fmt.Fprintf(&sb, " (%s -> %s)", e.From, e.To)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	} else if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a typed error with a formatted message.
func Errorf(kind ErrorKind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Annotate fills in the operation, booking and attempted transition on err, keeping its kind.
func Annotate(err error, op string, id uuid.UUID, from, to Status) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		out := *be
		if out.Op == "" {
			out.Op = op
		}
		if out.BookingID == uuid.Nil {
			out.BookingID = id
		}
		if out.From == "" {
			out.From = from
		}
		if out.To == "" {
			out.To = to
		}
		return &out
	}
	return &Error{Kind: KindOf(err), Op: op, BookingID: id, From: from, To: to, Err: err}
}

// KindOf classifies any error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidHours):
		return KindInvalidArgument
	case errors.Is(err, ErrExtensionPending):
		return KindConflict
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrNotParticipant),
		errors.Is(err, ErrNotProvider),
		errors.Is(err, ErrNotRequester),
		errors.Is(err, ErrSessionEnded),
		errors.Is(err, ErrSessionNotEnded),
		errors.Is(err, ErrNoExtensionPending):
		return KindInvalidTransition
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
