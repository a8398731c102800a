package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	appBooking "github.com/companion-hub/companion-hub/internal/application/booking"
	domainBooking "github.com/companion-hub/companion-hub/internal/domain/booking"
	bookingMocks "github.com/companion-hub/companion-hub/internal/domain/booking/mocks"
	"github.com/companion-hub/companion-hub/internal/domain/identity"
	"github.com/companion-hub/companion-hub/internal/domain/notification"
	"github.com/companion-hub/companion-hub/internal/infrastructure/memstore"
)

type delivered struct {
	recipient string
	kind      notification.Kind
}

type outbox struct {
	mu   sync.Mutex
	sent []delivered
}

func (o *outbox) Notify(_ context.Context, recipientID string, kind notification.Kind, _, _ string, _ map[string]string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, delivered{recipient: recipientID, kind: kind})
	return nil
}

func (o *outbox) to(recipient string, kind notification.Kind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, d := range o.sent {
		if d.recipient == recipient && d.kind == kind {
			n++
		}
	}
	return n
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type world struct {
	store     *memstore.BookingStore
	engine    *appBooking.Engine
	guard     *appBooking.Guard
	outbox    *outbox
	clock     *clock
	requester *Session
	provider  *Session
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{
		store:  memstore.NewBookingStore(),
		outbox: &outbox{},
		clock:  &clock{t: time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)},
	}
	w.engine = appBooking.NewEngine(w.store, w.outbox, zerolog.Nop()).WithClock(w.clock.Now)
	w.guard = appBooking.NewGuard(w.store, zerolog.Nop())
	w.requester = w.session(t, uuid.NewString())
	w.provider = w.session(t, uuid.NewString())
	return w
}

func (w *world) session(t *testing.T, actor string) *Session {
	t.Helper()
	s, err := New(context.Background(), identity.Static{ActorID: actor}, w.engine, w.guard, DefaultConfig(), zerolog.Nop(), WithClock(w.clock.Now))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// settle waits for background refreshes and moves past the refresh throttle.
func (w *world) settle() {
	w.requester.Wait()
	w.provider.Wait()
	w.clock.Advance(11 * time.Second)
}

func (w *world) create(t *testing.T, start time.Time, hours float64) *domainBooking.Booking {
	t.Helper()
	b, err := w.requester.Create(context.Background(), appBooking.CreateInput{
		ProviderID:    w.provider.Actor(),
		BookingDate:   start,
		DurationHours: hours,
	})
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

func TestNew(t *testing.T) {
	w := newWorld(t)

	_, err := New(context.Background(), identity.Static{}, w.engine, w.guard, Config{}, zerolog.Nop())
	assert.True(t, domainBooking.IsKind(err, domainBooking.KindUnauthenticated))

	s, err := New(context.Background(), identity.Static{ActorID: uuid.NewString()}, w.engine, w.guard, Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), s.cfg)
}

func TestSession_PlaceholderActor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := bookingMocks.NewMockStore(ctrl)
	engine := appBooking.NewEngine(store, nil, zerolog.Nop())
	guard := appBooking.NewGuard(store, zerolog.Nop())

	s, err := New(context.Background(), identity.Static{ActorID: "local-user"}, engine, guard, DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	b, err := s.Create(ctx, appBooking.CreateInput{ProviderID: uuid.NewString(), BookingDate: time.Now(), DurationHours: 1})
	assert.NoError(t, err)
	assert.Nil(t, b)

	list, err := s.Refresh(ctx)
	assert.NoError(t, err)
	assert.Empty(t, list)

	for _, op := range []func(context.Context, uuid.UUID) (*domainBooking.Booking, error){
		s.Accept, s.Reject, s.Cancel, s.Complete, s.ConfirmExtension, s.RejectExtension,
	} {
		b, err := op(ctx, uuid.New())
		assert.NoError(t, err)
		assert.Nil(t, b)
	}
	b, err = s.RequestExtension(ctx, uuid.New(), 2)
	assert.NoError(t, err)
	assert.Nil(t, b)

	s.Start(ctx)
	assert.False(t, s.Watchdog().Running())
}

func TestSession_CreateConflict(t *testing.T) {
	w := newWorld(t)
	first := w.create(t, w.clock.Now().Add(time.Hour), 1)

	_, err := w.requester.Create(context.Background(), appBooking.CreateInput{
		ProviderID:    w.provider.Actor(),
		BookingDate:   w.clock.Now().Add(3 * time.Hour),
		DurationHours: 1,
	})

	require.Error(t, err)
	assert.True(t, domainBooking.IsKind(err, domainBooking.KindConflict))
	assert.Equal(t, 1, w.store.Len())
	cached := w.requester.Bookings()
	require.Len(t, cached, 1)
	assert.Equal(t, first.ID, cached[0].ID)
}

func TestSession_CreateConflictFromPeerSide(t *testing.T) {
	w := newWorld(t)
	w.create(t, w.clock.Now().Add(time.Hour), 1)

	// The provider has never refreshed, so only the remote check can catch it.
	_, err := w.provider.Create(context.Background(), appBooking.CreateInput{
		ProviderID:    w.requester.Actor(),
		BookingDate:   w.clock.Now(),
		DurationHours: 1,
	})

	assert.True(t, domainBooking.IsKind(err, domainBooking.KindConflict))
	assert.Equal(t, 0, w.provider.Cache().Len())
}

func TestSession_ExtensionConfirmedScenario(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	b := w.create(t, w.clock.Now().Add(time.Hour), 2)
	assert.Equal(t, domainBooking.StatusPending, b.Status)

	w.settle()
	_, err := w.provider.Refresh(ctx)
	require.NoError(t, err)
	_, ok := w.provider.Get(b.ID)
	require.True(t, ok)

	accepted, err := w.provider.Accept(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domainBooking.StatusAccepted, accepted.Status)
	assert.Equal(t, 1, w.outbox.to(w.requester.Actor(), notification.KindBookingAccepted))

	w.clock.Advance(90 * time.Minute)
	requested, err := w.requester.RequestExtension(ctx, b.ID, 3)
	require.NoError(t, err)
	require.NotNil(t, requested.ExtensionRequestedHours)
	assert.Equal(t, 3, *requested.ExtensionRequestedHours)

	confirmed, err := w.provider.ConfirmExtension(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, confirmed.DurationHours)
	assert.Nil(t, confirmed.ExtensionRequestedHours)
	assert.Nil(t, confirmed.ExtensionRequestedAt)
	assert.Equal(t, 1, w.outbox.to(w.requester.Actor(), notification.KindExtensionConfirmed))

	cached, ok := w.provider.Get(b.ID)
	require.True(t, ok)
	assert.Equal(t, 5.0, cached.DurationHours)
}

func TestSession_ExtensionRejectedScenario(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	b := w.create(t, w.clock.Now().Add(time.Hour), 2)

	_, err := w.provider.Accept(ctx, b.ID)
	require.NoError(t, err)
	_, err = w.requester.RequestExtension(ctx, b.ID, 3)
	require.NoError(t, err)

	_, err = w.requester.RequestExtension(ctx, b.ID, 1)
	assert.True(t, domainBooking.IsKind(err, domainBooking.KindConflict))

	rejected, err := w.provider.RejectExtension(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, rejected.DurationHours)
	assert.Nil(t, rejected.ExtensionRequestedHours)
	assert.Nil(t, rejected.ExtensionRequestedAt)
	assert.Equal(t, 1, w.outbox.to(w.requester.Actor(), notification.KindExtensionRejected))

	_, err = w.provider.ConfirmExtension(ctx, b.ID)
	assert.True(t, domainBooking.IsKind(err, domainBooking.KindInvalidTransition))
}

func TestSession_RejectTwice(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	b := w.create(t, w.clock.Now().Add(time.Hour), 1)

	_, err := w.provider.Reject(ctx, b.ID)
	require.NoError(t, err)
	_, err = w.provider.Reject(ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, w.outbox.to(w.requester.Actor(), notification.KindBookingRejected))
	_, ok := w.provider.Get(b.ID)
	assert.False(t, ok, "rejected bookings leave the view")
}

func TestSession_MutationFailureLeavesCache(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	b := w.create(t, w.clock.Now().Add(time.Hour), 1)
	w.requester.Wait()

	_, err := w.requester.Accept(ctx, b.ID)
	require.Error(t, err)

	cached, ok := w.requester.Get(b.ID)
	require.True(t, ok)
	assert.Equal(t, domainBooking.StatusPending, cached.Status)
}

func TestSession_WatchdogCompletesOnce(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	start := w.clock.Now()
	b := w.create(t, start, 1)
	_, err := w.provider.Accept(ctx, b.ID)
	require.NoError(t, err)

	w.settle()
	_, err = w.requester.Refresh(ctx)
	require.NoError(t, err)

	w.clock.Advance(59*time.Minute - 11*time.Second)
	assert.True(t, w.requester.Watchdog().Tick(ctx))
	assert.True(t, w.provider.Watchdog().Tick(ctx))
	stored, _ := w.store.GetByID(ctx, b.ID)
	assert.Equal(t, domainBooking.StatusAccepted, stored.Status)

	w.clock.Advance(2 * time.Minute)
	for i := 0; i < 5; i++ {
		w.requester.Watchdog().Tick(ctx)
		w.provider.Watchdog().Tick(ctx)
		w.clock.Advance(time.Minute)
	}

	stored, _ = w.store.GetByID(ctx, b.ID)
	assert.Equal(t, domainBooking.StatusCompleted, stored.Status)
	assert.Equal(t, 1, w.outbox.to(w.requester.Actor(), notification.KindBookingCompleted))
	assert.Equal(t, 1, w.outbox.to(w.provider.Actor(), notification.KindBookingCompleted))

	cached, ok := w.requester.Get(b.ID)
	require.True(t, ok)
	assert.Equal(t, domainBooking.StatusCompleted, cached.Status)
	assert.Empty(t, w.requester.Cache().Ended(w.requester.Actor(), w.clock.Now()))
}

func TestSession_Refresh(t *testing.T) {
	newMocked := func(t *testing.T) (*Session, *bookingMocks.MockStore, *clock) {
		ctrl := gomock.NewController(t)
		store := bookingMocks.NewMockStore(ctrl)
		c := &clock{t: time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)}
		engine := appBooking.NewEngine(store, nil, zerolog.Nop()).WithClock(c.Now)
		s, err := New(context.Background(), identity.Static{ActorID: uuid.NewString()}, engine,
			appBooking.NewGuard(store, zerolog.Nop()), DefaultConfig(), zerolog.Nop(), WithClock(c.Now))
		require.NoError(t, err)
		t.Cleanup(s.Close)
		return s, store, c
	}
	row := func(s *Session, status domainBooking.Status) *domainBooking.Booking {
		return &domainBooking.Booking{
			ID: uuid.New(), RequesterID: s.Actor(), ProviderID: uuid.NewString(),
			Status: status, BookingDate: time.Now(), DurationHours: 1, UpdatedAt: time.Now(),
		}
	}

	t.Run("replaces cache and throttles", func(t *testing.T) {
		s, store, c := newMocked(t)
		rows := []*domainBooking.Booking{row(s, domainBooking.StatusPending), row(s, domainBooking.StatusCompleted)}

		store.EXPECT().
			ListByParticipant(gomock.Any(), s.Actor(), domainBooking.HistoryStatuses).
			Return(rows, nil).
			Times(2)

		got, err := s.Refresh(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, 2)

		c.Advance(5 * time.Second)
		got, err = s.Refresh(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, 2)

		c.Advance(6 * time.Second)
		_, err = s.Refresh(context.Background())
		require.NoError(t, err)
	})

	t.Run("re-entrant call is dropped", func(t *testing.T) {
		s, store, _ := newMocked(t)
		entered := make(chan struct{})
		release := make(chan struct{})

		store.EXPECT().
			ListByParticipant(gomock.Any(), s.Actor(), gomock.Any()).
			DoAndReturn(func(context.Context, string, []domainBooking.Status) ([]*domainBooking.Booking, error) {
				close(entered)
				<-release
				return nil, nil
			}).
			Times(1)

		done := make(chan error, 1)
		go func() {
			_, err := s.Refresh(context.Background())
			done <- err
		}()
		<-entered

		got, err := s.Refresh(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)

		close(release)
		require.NoError(t, <-done)
	})

	t.Run("transient failure keeps cache", func(t *testing.T) {
		s, store, _ := newMocked(t)
		kept := row(s, domainBooking.StatusAccepted)
		s.Cache().Apply(kept)

		store.EXPECT().ListByParticipant(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, context.DeadlineExceeded)

		got, err := s.Refresh(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, 1, s.Cache().Len())
	})

	t.Run("not configured store is tolerated", func(t *testing.T) {
		s, store, _ := newMocked(t)

		store.EXPECT().ListByParticipant(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, &domainBooking.Error{Kind: domainBooking.KindNotConfigured, Message: "relation \"bookings\" does not exist"})

		got, err := s.Refresh(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("data errors are returned", func(t *testing.T) {
		s, store, _ := newMocked(t)

		store.EXPECT().ListByParticipant(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("bad row"))

		_, err := s.Refresh(context.Background())
		require.Error(t, err)
		assert.Equal(t, domainBooking.KindUnknown, domainBooking.KindOf(err))
	})
}

func TestSession_CreateValidatesBeforeRemoteCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	// No expectations: any store call fails the test.
	store := bookingMocks.NewMockStore(ctrl)
	engine := appBooking.NewEngine(store, nil, zerolog.Nop())
	guard := appBooking.NewGuard(store, zerolog.Nop())
	actor := uuid.NewString()

	s, err := New(context.Background(), identity.Static{ActorID: actor}, engine, guard, DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	tests := []struct {
		name string
		in   appBooking.CreateInput
	}{
		{"self booking", appBooking.CreateInput{ProviderID: actor, BookingDate: time.Now(), DurationHours: 1}},
		{"zero duration", appBooking.CreateInput{ProviderID: uuid.NewString(), BookingDate: time.Now()}},
		{"missing provider", appBooking.CreateInput{BookingDate: time.Now(), DurationHours: 1}},
		{"missing date", appBooking.CreateInput{ProviderID: uuid.NewString(), DurationHours: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := s.Create(ctx, tt.in)
			assert.Nil(t, b)
			assert.True(t, domainBooking.IsKind(err, domainBooking.KindInvalidArgument), "got %v", err)
		})
	}
}

func TestSession_StartAfterCloseStaysStopped(t *testing.T) {
	w := newWorld(t)
	w.requester.Close()

	w.requester.Start(context.Background())
	assert.False(t, w.requester.Watchdog().Running())

	w.provider.Start(context.Background())
	assert.True(t, w.provider.Watchdog().Running())
}

func TestSession_CreateConflictFromCacheSkipsStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := bookingMocks.NewMockStore(ctrl)
	engine := appBooking.NewEngine(store, nil, zerolog.Nop())
	guard := appBooking.NewGuard(store, zerolog.Nop())
	actor, peer := uuid.NewString(), uuid.NewString()

	s, err := New(context.Background(), identity.Static{ActorID: actor}, engine, guard, DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	now := time.Now().UTC()
	s.Cache().Apply(&domainBooking.Booking{
		ID: uuid.New(), RequesterID: peer, ProviderID: actor, Status: domainBooking.StatusAccepted,
		BookingDate: now, DurationHours: 1, CreatedAt: now, UpdatedAt: now,
	})

	_, err = s.Create(context.Background(), appBooking.CreateInput{ProviderID: peer, BookingDate: now, DurationHours: 1})
	assert.True(t, domainBooking.IsKind(err, domainBooking.KindConflict), "got %v", err)
}
