// Package sweep runs the periodic background tasks: flagging overtime
// passes, expiring stale pending requests and purging expired refresh
// tokens.  The sweeps are a safety net, not the source of truth; the
// engine also expires stale passes lazily on read.
package sweep

import (
    "context"
    "time"

    "go.uber.org/zap"
)

// Engine is the subset of the lifecycle engine the sweeper drives.
type Engine interface {
    SweepOvertime(ctx context.Context) (int, error)
    SweepPendingExpiry(ctx context.Context) (int, error)
}

// TokenPurger removes expired refresh tokens.  Satisfied by
// *repository.TokenRepo.
type TokenPurger interface {
    PurgeExpired(ctx context.Context) (int64, error)
}

// Sweeper owns the background tick loop.
type Sweeper struct {
    engine   Engine
    tokens   TokenPurger
    interval time.Duration
    log      *zap.Logger
    stopChan chan struct{}
}

// New builds a Sweeper.  A non-positive interval falls back to one
// minute, which matches how often a hall monitor board needs the
// overtime flag to be fresh.
func New(engine Engine, tokens TokenPurger, interval time.Duration, log *zap.Logger) *Sweeper {
    if interval <= 0 {
        interval = time.Minute
    }
    return &Sweeper{
        engine:   engine,
        tokens:   tokens,
        interval: interval,
        log:      log,
        stopChan: make(chan struct{}),
    }
}

// Start launches the sweep loop in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
    s.log.Info("starting background sweeper", zap.Duration("interval", s.interval))
    go s.run(ctx)
}

// Stop signals the loop to exit.  Safe to call once.
func (s *Sweeper) Stop() {
    s.log.Info("stopping background sweeper")
    close(s.stopChan)
}

func (s *Sweeper) run(ctx context.Context) {
    // First pass immediately so a restart does not leave overtime
    // passes unflagged for a full interval.
    s.sweep(ctx)

    ticker := time.NewTicker(s.interval)
    defer ticker.Stop()

    // Token purging is much less urgent than pass sweeps; run it on
    // every sixtieth tick.
    tick := 0
    for {
        select {
        case <-ticker.C:
            s.sweep(ctx)
            tick++
            if tick%60 == 0 {
                s.purgeTokens(ctx)
            }
        case <-s.stopChan:
            s.log.Info("background sweeper stopped")
            return
        case <-ctx.Done():
            s.log.Info("background sweeper cancelled")
            return
        }
    }
}

func (s *Sweeper) sweep(ctx context.Context) {
    if n, err := s.engine.SweepOvertime(ctx); err != nil {
        s.log.Error("overtime sweep failed", zap.Error(err))
    } else if n > 0 {
        s.log.Info("overtime sweep flagged passes", zap.Int("count", n))
    }
    if n, err := s.engine.SweepPendingExpiry(ctx); err != nil {
        s.log.Error("pending expiry sweep failed", zap.Error(err))
    } else if n > 0 {
        s.log.Info("pending expiry sweep closed passes", zap.Int("count", n))
    }
}

func (s *Sweeper) purgeTokens(ctx context.Context) {
    if s.tokens == nil {
        return
    }
    n, err := s.tokens.PurgeExpired(ctx)
    if err != nil {
        s.log.Error("refresh token purge failed", zap.Error(err))
        return
    }
    if n > 0 {
        s.log.Info("purged expired refresh tokens", zap.Int64("count", n))
    }
}
