package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	appBooking "github.com/companion-hub/companion-hub/internal/application/booking"
	domainBooking "github.com/companion-hub/companion-hub/internal/domain/booking"
	"github.com/companion-hub/companion-hub/internal/domain/identity"
)

// Config tunes a session.
type Config struct {
	RefreshMinInterval time.Duration
	RefreshTimeout     time.Duration
	WatchdogInterval   time.Duration
}

// DefaultConfig returns the default session settings.
func DefaultConfig() Config {
	return Config{
		RefreshMinInterval: 10 * time.Second,
		RefreshTimeout:     15 * time.Second,
		WatchdogInterval:   time.Minute,
	}
}

// Session holds one authenticated actor's view of its bookings and keeps it in sync with the store.
type Session struct {
	actor  string
	remote bool
	engine *appBooking.Engine
	guard  *appBooking.Guard
	cache  *Cache
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger

	limiter    *rate.Limiter
	refreshing atomic.Bool
	watchdog   *Watchdog

	bgMu   sync.Mutex
	bg     sync.WaitGroup
	closed bool
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the session clock.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a session for the provider's current actor.
func New(
	ctx context.Context,
	ids identity.Provider,
	engine *appBooking.Engine,
	guard *appBooking.Guard,
	cfg Config,
	logger zerolog.Logger,
	opts ...Option,
) (*Session, error) {
	actor, err := ids.CurrentActor(ctx)
	if err != nil || actor == "" {
		return nil, &domainBooking.Error{Kind: domainBooking.KindUnauthenticated, Op: "session", Err: err}
	}

	defaults := DefaultConfig()
	if cfg.RefreshMinInterval <= 0 {
		cfg.RefreshMinInterval = defaults.RefreshMinInterval
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaults.RefreshTimeout
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = defaults.WatchdogInterval
	}

	s := &Session{
		actor:   actor,
		remote:  ids.IsRemote(actor),
		engine:  engine,
		guard:   guard,
		cache:   NewCache(),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		limiter: rate.NewLimiter(rate.Every(cfg.RefreshMinInterval), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.With().Str("service", "session").Str("actor", actor).Logger()
	s.watchdog = NewWatchdog(cfg.WatchdogInterval, s.completeEnded, s.logger)
	return s, nil
}

// Actor returns the session's actor id.
func (s *Session) Actor() string {
	return s.actor
}

// Cache exposes the session's local view.
func (s *Session) Cache() *Cache {
	return s.cache
}

// Watchdog exposes the session's completion watchdog.
func (s *Session) Watchdog() *Watchdog {
	return s.watchdog
}

// Start arms the completion watchdog. Placeholder actors have nothing to watch, and a
// closed session stays closed.
func (s *Session) Start(ctx context.Context) {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	if s.closed || !s.remote {
		return
	}
	s.watchdog.Start(ctx)
}

// Close stops the watchdog and waits for background refreshes.
func (s *Session) Close() {
	s.bgMu.Lock()
	s.closed = true
	s.bgMu.Unlock()
	s.watchdog.Stop()
	s.bg.Wait()
}

// Wait blocks until running background refreshes finish.
func (s *Session) Wait() {
	s.bg.Wait()
}

// Bookings returns the cached view.
func (s *Session) Bookings() []*domainBooking.Booking {
	return s.cache.Snapshot()
}

// Get returns a cached booking.
func (s *Session) Get(id uuid.UUID) (*domainBooking.Booking, bool) {
	return s.cache.Get(id)
}

// Refresh reloads the view from the store. Calls made while a refresh is running, or sooner than
// the minimum interval after the last one, return the current view without a store call.
// Transient and not-configured store failures yield an empty result and keep the cache.
func (s *Session) Refresh(ctx context.Context) ([]*domainBooking.Booking, error) {
	if !s.remote {
		return nil, nil
	}
	if !s.refreshing.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("refresh already in flight, dropped")
		return s.cache.Snapshot(), nil
	}
	defer s.refreshing.Store(false)

	if !s.limiter.AllowN(s.now(), 1) {
		s.logger.Debug().Msg("refresh throttled")
		return s.cache.Snapshot(), nil
	}

	list, err := s.engine.List(ctx, s.actor, domainBooking.HistoryStatuses)
	if err != nil {
		switch domainBooking.KindOf(err) {
		case domainBooking.KindTransient, domainBooking.KindNotConfigured:
			s.logger.Warn().Err(err).Msg("refresh failed, keeping cached bookings")
			return nil, nil
		}
		return nil, err
	}
	s.cache.Replace(list)
	return s.cache.Snapshot(), nil
}

// RefreshAsync runs Refresh in the background with its own timeout.
func (s *Session) RefreshAsync() {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	if s.closed || !s.remote {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RefreshTimeout)
		defer cancel()
		if _, err := s.Refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("background refresh failed")
		}
	}()
}

// Create books providerID on behalf of the session actor.
func (s *Session) Create(ctx context.Context, in appBooking.CreateInput) (*domainBooking.Booking, error) {
	if !s.remote {
		return nil, nil
	}
	in.RequesterID = s.actor
	if err := appBooking.ValidateCreate(in); err != nil {
		return nil, err
	}
	var local []*domainBooking.Booking
	if cached := s.cache.ActiveWith(s.actor, in.ProviderID); cached != nil {
		local = append(local, cached)
	}
	if err := s.guard.CanCreate(ctx, s.actor, in.ProviderID, local); err != nil {
		return nil, err
	}
	b, err := s.engine.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.cache.Apply(b)
	s.RefreshAsync()
	return b, nil
}

func (s *Session) Accept(ctx context.Context, id uuid.UUID) (*domainBooking.Booking, error) {
	return s.mutate(ctx, id, s.engine.Accept)
}

func (s *Session) Reject(ctx context.Context, id uuid.UUID) (*domainBooking.Booking, error) {
	return s.mutate(ctx, id, s.engine.Reject)
}

func (s *Session) Cancel(ctx context.Context, id uuid.UUID) (*domainBooking.Booking, error) {
	return s.mutate(ctx, id, s.engine.Cancel)
}

func (s *Session) Complete(ctx context.Context, id uuid.UUID) (*domainBooking.Booking, error) {
	return s.mutate(ctx, id, s.engine.Complete)
}

func (s *Session) RequestExtension(ctx context.Context, id uuid.UUID, hours int) (*domainBooking.Booking, error) {
	return s.mutate(ctx, id, func(ctx context.Context, id uuid.UUID, actor string) (*domainBooking.Booking, error) {
		return s.engine.RequestExtension(ctx, id, actor, hours)
	})
}

func (s *Session) ConfirmExtension(ctx context.Context, id uuid.UUID) (*domainBooking.Booking, error) {
	return s.mutate(ctx, id, s.engine.ConfirmExtension)
}

func (s *Session) RejectExtension(ctx context.Context, id uuid.UUID) (*domainBooking.Booking, error) {
	return s.mutate(ctx, id, s.engine.RejectExtension)
}

// mutate writes remotely first and applies the server record to the cache only on success.
func (s *Session) mutate(
	ctx context.Context,
	id uuid.UUID,
	op func(ctx context.Context, id uuid.UUID, actor string) (*domainBooking.Booking, error),
) (*domainBooking.Booking, error) {
	if !s.remote {
		return nil, nil
	}
	b, err := op(ctx, id, s.actor)
	if err != nil {
		return nil, err
	}
	s.cache.Apply(b)
	return b, nil
}

// completeEnded is the watchdog check: every cached accepted booking past its end is completed.
func (s *Session) completeEnded(ctx context.Context) {
	for _, b := range s.cache.Ended(s.actor, s.now()) {
		if _, err := s.Complete(ctx, b.ID); err != nil {
			s.logger.Warn().Err(err).Str("booking_id", b.ID.String()).Msg("auto-complete failed")
			continue
		}
		s.logger.Info().Str("booking_id", b.ID.String()).Msg("booking auto-completed")
	}
}
