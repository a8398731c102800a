package completion

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	appBooking "github.com/companion-hub/companion-hub/internal/application/booking"
	domainBooking "github.com/companion-hub/companion-hub/internal/domain/booking"
)

// Sweeper completes accepted bookings whose window has elapsed, independently of any client.
type Sweeper struct {
	store  domainBooking.Store
	engine *appBooking.Engine
	logger zerolog.Logger
}

// NewSweeper creates a completion sweeper.
func NewSweeper(store domainBooking.Store, engine *appBooking.Engine, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		engine: engine,
		logger: logger.With().Str("service", "completion").Logger(),
	}
}

// ProcessElapsed scans for elapsed bookings and completes them.
func (s *Sweeper) ProcessElapsed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	bookings, err := s.store.ListElapsed(ctx, s.engine.Now(), limit)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, b := range bookings {
		if _, err := s.engine.CompleteElapsed(ctx, b.ID); err != nil {
			s.logger.Warn().Err(err).
				Str("booking_id", b.ID.String()).
				Msg("failed to complete elapsed booking")
			continue
		}
		processed++
	}
	return processed, nil
}

// Run calls ProcessElapsed every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration, limit int) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.ProcessElapsed(ctx, limit)
			if err != nil {
				s.logger.Warn().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Int("completed", n).Msg("elapsed bookings completed")
			}
		}
	}
}
