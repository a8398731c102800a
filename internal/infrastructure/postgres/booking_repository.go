package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/companion-hub/companion-hub/internal/domain/booking"
)

const bookingColumns = `id, requester_id, provider_id, status, booking_date, duration_hours, location, notes, topic_id,
	extension_requested_hours, extension_requested_at, created_at, updated_at`

// BookingRepository implements booking.Store.
type BookingRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewBookingRepository creates a repository. A positive timeout bounds every statement.
func NewBookingRepository(pool *pgxpool.Pool, timeout time.Duration) *BookingRepository {
	return &BookingRepository{pool: pool, timeout: timeout}
}

func (r *BookingRepository) Insert(ctx context.Context, b *booking.Booking) (*booking.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rec := booking.ToRecord(b)
	row := r.pool.QueryRow(ctx, `
		INSERT INTO bookings
		(id, requester_id, provider_id, status, booking_date, duration_hours, location, notes, topic_id,
		 extension_requested_hours, extension_requested_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING `+bookingColumns,
		rec.ID, rec.RequesterID, rec.ProviderID, rec.Status, rec.BookingDate, rec.DurationHours,
		rec.Location, rec.Notes, rec.TopicID, rec.ExtensionRequestedHours, rec.ExtensionRequestedAt,
		rec.CreatedAt, rec.UpdatedAt)
	saved, err := scanBooking(row)
	if err != nil {
		return nil, classify("insert", b.ID, err)
	}
	return saved, nil
}

func (r *BookingRepository) Update(ctx context.Context, b *booking.Booking, expectedUpdatedAt time.Time) (*booking.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rec := booking.ToRecord(b)
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status=$2, booking_date=$3, duration_hours=$4, location=$5, notes=$6, topic_id=$7,
			extension_requested_hours=$8, extension_requested_at=$9, updated_at=$10
		WHERE id=$1 AND updated_at=$11
		RETURNING `+bookingColumns,
		rec.ID, rec.Status, rec.BookingDate, rec.DurationHours, rec.Location, rec.Notes, rec.TopicID,
		rec.ExtensionRequestedHours, rec.ExtensionRequestedAt, rec.UpdatedAt, expectedUpdatedAt.UTC())
	saved, err := scanBooking(row)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, classify("update", b.ID, err)
	}

	if _, err := r.GetByID(ctx, b.ID); err != nil {
		return nil, err
	}
	return nil, &booking.Error{
		Kind:      booking.KindInvalidTransition,
		Op:        "update",
		BookingID: b.ID,
		Message:   "booking changed concurrently",
	}
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, classify("get", id, err)
	}
	return b, nil
}

func (r *BookingRepository) ListByParticipant(ctx context.Context, userID string, statuses []booking.Status) ([]*booking.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE (requester_id=$1 OR provider_id=$1)`
	args := []interface{}{userID}
	if len(statuses) > 0 {
		raw := make([]string, len(statuses))
		for i, s := range statuses {
			raw[i] = string(s)
		}
		query += " AND status = ANY($2)"
		args = append(args, raw)
	}
	query += " ORDER BY created_at DESC"

	return r.list(ctx, "list", query, args...)
}

func (r *BookingRepository) FindActiveBetween(ctx context.Context, a, b string) (*booking.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status IN ('pending', 'accepted')
		  AND ((requester_id=$1 AND provider_id=$2) OR (requester_id=$2 AND provider_id=$1))
		ORDER BY created_at DESC
		LIMIT 1
	`, a, b)
	found, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("find_active", uuid.Nil, err)
	}
	return found, nil
}

// Cancel validates the actor and the source status in the statement itself.
func (r *BookingRepository) Cancel(ctx context.Context, id uuid.UUID, actor string, at time.Time) (*booking.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status='cancelled', extension_requested_hours=NULL, extension_requested_at=NULL, updated_at=$3
		WHERE id=$1
		  AND status IN ('pending', 'accepted')
		  AND (requester_id=$2 OR provider_id=$2)
		RETURNING `+bookingColumns,
		id, actor, at.UTC())
	saved, err := scanBooking(row)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, classify("cancel", id, err)
	}

	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case !cur.IsParticipant(actor):
		return nil, booking.Annotate(booking.ErrNotParticipant, "cancel", id, cur.Status, booking.StatusCancelled)
	case cur.Status == booking.StatusCancelled:
		return cur, nil
	default:
		return nil, booking.Annotate(booking.ErrInvalidTransition, "cancel", id, cur.Status, booking.StatusCancelled)
	}
}

func (r *BookingRepository) ListElapsed(ctx context.Context, now time.Time, limit int) ([]*booking.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.list(ctx, "list_elapsed", `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status='accepted'
		  AND booking_date + duration_hours * INTERVAL '1 hour' <= $1
		ORDER BY booking_date + duration_hours * INTERVAL '1 hour' ASC
		LIMIT $2
	`, now.UTC(), limit)
}

func (r *BookingRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]*booking.Booking, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, uuid.Nil, err)
	}
	defer rows.Close()
	var out []*booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, classify(op, uuid.Nil, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, uuid.Nil, err)
	}
	return out, nil
}

func (r *BookingRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var rec booking.Record
	if err := row.Scan(
		&rec.ID, &rec.RequesterID, &rec.ProviderID, &rec.Status, &rec.BookingDate, &rec.DurationHours,
		&rec.Location, &rec.Notes, &rec.TopicID, &rec.ExtensionRequestedHours, &rec.ExtensionRequestedAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return booking.FromRecord(rec)
}

// SQLSTATE codes the store classifies.
const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
	codeUndefinedTable     = "42P01"
	codeInsufficientPrivs  = "42501"
	codeSerialization      = "40001"
	codeDeadlock           = "40P01"
	codeTooManyConnections = "53300"
	codeAdminShutdown      = "57P01"
	codeCannotConnectNow   = "57P03"
	codeQueryCanceled      = "57014"
)

// classify maps driver errors onto booking error kinds.
func classify(op string, id uuid.UUID, err error) error {
	if err == nil {
		return nil
	}
	var be *booking.Error
	if errors.As(err, &be) {
		return booking.Annotate(err, op, id, "", "")
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &booking.Error{Kind: booking.KindNotFound, Op: op, BookingID: id}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeExclusionViolation:
			return &booking.Error{Kind: booking.KindConflict, Op: op, BookingID: id,
				Message: "an active booking already exists for this pair", Err: err}
		case codeUndefinedTable, codeInsufficientPrivs:
			return &booking.Error{Kind: booking.KindNotConfigured, Op: op, BookingID: id, Err: err}
		case codeSerialization, codeDeadlock, codeTooManyConnections, codeAdminShutdown, codeCannotConnectNow, codeQueryCanceled:
			return &booking.Error{Kind: booking.KindTransient, Op: op, BookingID: id, Err: err}
		}
		return &booking.Error{Kind: booking.KindUnknown, Op: op, BookingID: id, Err: err}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return &booking.Error{Kind: booking.KindTransient, Op: op, BookingID: id, Err: err}
	}
	return booking.Annotate(err, op, id, "", "")
}
