package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Watchdog runs check immediately on Start and then on every interval until stopped.
// A tick that fires while the previous check is still running is dropped.
type Watchdog struct {
	interval time.Duration
	check    func(ctx context.Context)
	logger   zerolog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Bool
}

// NewWatchdog creates a stopped watchdog.
func NewWatchdog(interval time.Duration, check func(ctx context.Context), logger zerolog.Logger) *Watchdog {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watchdog{
		interval: interval,
		check:    check,
		logger:   logger.With().Str("component", "completion_watchdog").Logger(),
	}
}

// Start arms the watchdog. Starting a running watchdog does nothing.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	go w.loop(ctx, done)
	w.logger.Debug().Dur("interval", w.interval).Msg("watchdog started")
}

// Stop cancels the loop and waits for it to exit. It may be started again afterwards.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Debug().Msg("watchdog stopped")
}

// Running reports whether the loop is armed.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// Tick runs one check unless another is in flight. It reports whether the check ran.
func (w *Watchdog) Tick(ctx context.Context) bool {
	if !w.inFlight.CompareAndSwap(false, true) {
		w.logger.Debug().Msg("tick skipped, previous check still running")
		return false
	}
	defer w.inFlight.Store(false)
	w.check(ctx)
	return true
}

func (w *Watchdog) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		// Disarm only if Stop or a later Start has not already replaced this run.
		w.mu.Lock()
		if w.done == done {
			w.cancel()
			w.cancel, w.done = nil, nil
		}
		w.mu.Unlock()
		close(done)
	}()

	w.Tick(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}
