// Package broadcast drives the periodic fetch→evaluate→cache→publish
// cycle per instrument and fans results out to subscribers.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"orderflow-signals/internal/cache"
	"orderflow-signals/internal/engine"
	apperrors "orderflow-signals/internal/errors"
	"orderflow-signals/internal/logging"
	"orderflow-signals/internal/models"
	"orderflow-signals/internal/source"
	"orderflow-signals/internal/stream"
	"orderflow-signals/internal/supervise"
)

// SessionClock classifies time into market session states.
type SessionClock interface {
	Classify(t time.Time) models.SessionState
}

// Config holds broadcaster configuration.
type Config struct {
	// Interval is the evaluation cadence per instrument.
	Interval time.Duration
	// FetchTimeout bounds one metrics fetch; on expiry the tick is skipped.
	FetchTimeout time.Duration
}

// DefaultConfig returns the default broadcaster configuration.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Second,
		FetchTimeout: 3 * time.Second,
	}
}

// InstrumentStatus is the per-instrument loop health record, safe to
// read while the loop runs.
type InstrumentStatus struct {
	Symbol              string
	Running             bool
	LastTick            time.Time
	LastSuccess         time.Time
	ConsecutiveFailures int
}

// instrumentLoop owns one instrument's periodic task.
type instrumentLoop struct {
	symbol string
	cancel context.CancelFunc
	done   chan struct{}

	mu                  sync.Mutex
	running             bool
	lastTick            time.Time
	lastSuccess         time.Time
	hasSuccess          bool
	consecutiveFailures int
}

// Broadcaster evaluates each instrument on a fixed cadence while the
// session is live and pushes every cache update to all subscribers.
// Instruments are fully independent: one loop goroutine each, no shared
// mutable state across them beyond the cache and hub.
type Broadcaster struct {
	cfg     Config
	source  source.MetricsSource
	engine  *engine.Engine
	cache   *cache.SignalCache
	hub     *stream.Hub
	clock   SessionClock
	breaker *supervise.CircuitBreaker
	logger  zerolog.Logger

	mu          sync.Mutex
	started     bool
	rootCtx     context.Context
	instruments []models.Instrument
	loops       map[string]*instrumentLoop
}

// New creates a broadcaster for the given instruments.
func New(
	instruments []models.Instrument,
	src source.MetricsSource,
	eng *engine.Engine,
	sc *cache.SignalCache,
	hub *stream.Hub,
	clock SessionClock,
	logger zerolog.Logger,
	cfg Config,
) *Broadcaster {
	return &Broadcaster{
		cfg:         cfg,
		source:      src,
		engine:      eng,
		cache:       sc,
		hub:         hub,
		clock:       clock,
		breaker:     supervise.NewCircuitBreaker("metrics-source", supervise.DefaultCircuitBreakerConfig()),
		logger:      logger,
		instruments: instruments,
		loops:       make(map[string]*instrumentLoop),
	}
}

// Start launches one periodic loop per instrument. Calling Start on a
// running broadcaster is a no-op.
func (b *Broadcaster) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return
	}
	b.started = true
	b.rootCtx = ctx

	for _, ins := range b.instruments {
		b.launchLoopLocked(ctx, ins.Symbol)
	}
}

// launchLoopLocked starts one instrument loop. Caller holds b.mu.
func (b *Broadcaster) launchLoopLocked(ctx context.Context, symbol string) {
	loopCtx, cancel := context.WithCancel(ctx)
	lp := &instrumentLoop{
		symbol:  symbol,
		cancel:  cancel,
		done:    make(chan struct{}),
		running: true,
	}
	b.loops[symbol] = lp
	go b.run(loopCtx, lp)
}

// Stop halts all loops and closes subscriber channels, leaving the last
// cached signal in place. Idempotent; takes effect before the next tick.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	loops := make([]*instrumentLoop, 0, len(b.loops))
	for _, lp := range b.loops {
		loops = append(loops, lp)
	}
	b.loops = make(map[string]*instrumentLoop)
	b.mu.Unlock()

	for _, lp := range loops {
		lp.cancel()
		<-lp.done
	}
	b.hub.Stop()
}

// Restart tears down and relaunches one instrument's loop. Used by the
// health supervisor when a loop stalls.
func (b *Broadcaster) Restart(ctx context.Context, symbol string) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return apperrors.ErrBroadcasterStopped
	}
	lp, ok := b.loops[symbol]
	if !ok {
		b.mu.Unlock()
		return apperrors.ErrUnknownInstrument
	}
	rootCtx := b.rootCtx
	delete(b.loops, symbol)
	b.mu.Unlock()

	lp.cancel()
	<-lp.done

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return apperrors.ErrBroadcasterStopped
	}
	b.launchLoopLocked(rootCtx, symbol)
	return nil
}

// Subscribe returns a channel receiving every cache update for the
// instrument from the moment of subscription.
func (b *Broadcaster) Subscribe(symbol string) <-chan models.Signal {
	return b.hub.Subscribe(symbol)
}

// Unsubscribe removes a subscription channel.
func (b *Broadcaster) Unsubscribe(symbol string, ch <-chan models.Signal) {
	b.hub.Unsubscribe(symbol, ch)
}

// GetCurrent returns the latest cached signal for the instrument, or
// false before the first successful evaluation.
func (b *Broadcaster) GetCurrent(symbol string) (models.Signal, bool) {
	return b.cache.Get(symbol)
}

// run is one instrument's periodic task. Evaluation within a loop is
// strictly sequential; a slow fetch causes the next tick to be skipped
// rather than queued.
func (b *Broadcaster) run(ctx context.Context, lp *instrumentLoop) {
	defer close(lp.done)
	defer func() {
		lp.mu.Lock()
		lp.running = false
		lp.mu.Unlock()
	}()

	logger := logging.WithInstrument(b.logger, lp.symbol)
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	// Evaluate immediately rather than waiting out the first interval.
	b.tick(ctx, lp, logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick(ctx, lp, logger)
		}
	}
}

// tick runs one fetch→evaluate→cache→publish cycle.
func (b *Broadcaster) tick(ctx context.Context, lp *instrumentLoop, logger zerolog.Logger) {
	now := time.Now()

	lp.mu.Lock()
	lp.lastTick = now
	lp.mu.Unlock()

	state := b.clock.Classify(now)
	if state != models.SessionLive {
		// PRE_OPEN holds the cached signal frozen; CLOSED skips the
		// engine entirely. Either way the cache is untouched and
		// nothing is published.
		logger.Debug().Str("session", string(state)).Msg("Session not live, tick skipped")
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, b.cfg.FetchTimeout)
	defer cancel()

	snap, err := supervise.ExecuteWithResult(b.breaker, fetchCtx, func() (models.MetricsSnapshot, error) {
		return b.source.Fetch(fetchCtx, lp.symbol)
	})
	if err != nil {
		lp.recordFailure()
		logging.LogTickSkipped(logger, lp.symbol, "fetch_failed", err)
		return
	}

	sig, err := b.engine.Evaluate(snap, state)
	if err != nil {
		// Invalid input: no update this tick, keep serving the cached
		// signal. Logged once per occurrence, not per subscriber.
		lp.recordFailure()
		logging.LogTickSkipped(logger, lp.symbol, "snapshot_rejected", err)
		return
	}

	b.cache.Put(sig)
	b.hub.Publish(sig)

	lp.mu.Lock()
	lp.lastSuccess = now
	lp.hasSuccess = true
	lp.consecutiveFailures = 0
	lp.mu.Unlock()

	logging.LogSignal(logger, sig)
}

func (lp *instrumentLoop) recordFailure() {
	lp.mu.Lock()
	lp.consecutiveFailures++
	lp.mu.Unlock()
}

// Symbols returns the instruments this broadcaster drives.
func (b *Broadcaster) Symbols() []string {
	symbols := make([]string, 0, len(b.instruments))
	for _, ins := range b.instruments {
		symbols = append(symbols, ins.Symbol)
	}
	return symbols
}

// IsStarted reports whether the broadcaster is running.
func (b *Broadcaster) IsStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// Running reports whether the instrument's loop goroutine is alive.
func (b *Broadcaster) Running(symbol string) bool {
	b.mu.Lock()
	lp, ok := b.loops[symbol]
	b.mu.Unlock()
	if !ok {
		return false
	}
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.running
}

// LastSuccess returns the time of the instrument's last successful tick.
func (b *Broadcaster) LastSuccess(symbol string) (time.Time, bool) {
	b.mu.Lock()
	lp, ok := b.loops[symbol]
	b.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.lastSuccess, lp.hasSuccess
}

// Status returns the instrument's loop health record.
func (b *Broadcaster) Status(symbol string) (InstrumentStatus, bool) {
	b.mu.Lock()
	lp, ok := b.loops[symbol]
	b.mu.Unlock()
	if !ok {
		return InstrumentStatus{}, false
	}
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return InstrumentStatus{
		Symbol:              symbol,
		Running:             lp.running,
		LastTick:            lp.lastTick,
		LastSuccess:         lp.lastSuccess,
		ConsecutiveFailures: lp.consecutiveFailures,
	}, true
}

// BreakerStats exposes the metrics-source circuit breaker counters.
func (b *Broadcaster) BreakerStats() supervise.CircuitBreakerStats {
	return b.breaker.Stats()
}
