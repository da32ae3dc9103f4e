package supervise

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"orderflow-signals/internal/logging"
	"orderflow-signals/internal/models"
)

// Target is the broadcast loop being supervised.
type Target interface {
	// Symbols returns the instruments the target drives.
	Symbols() []string
	// LastSuccess returns the time of the last successful tick for the
	// instrument; false before the first success.
	LastSuccess(symbol string) (time.Time, bool)
	// Running reports whether the instrument's loop goroutine is alive.
	Running(symbol string) bool
	// Restart tears down and relaunches the instrument's loop.
	Restart(ctx context.Context, symbol string) error
}

// SessionGate classifies time into market session states.
type SessionGate interface {
	Classify(t time.Time) models.SessionState
}

// Pinger reports upstream feed reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventRecorder persists supervisor events for operator review.
type EventRecorder interface {
	RecordEvent(ctx context.Context, symbol, event, detail string) error
}

// Alert is an operator-visible escalation raised when the restart budget
// for an instrument is exhausted.
type Alert struct {
	Symbol   string
	Restarts int
	At       time.Time
	Message  string
}

// Config holds supervisor configuration.
type Config struct {
	// Interval is the polling cadence while the session is live.
	Interval time.Duration
	// GraceIntervals is how many intervals without a successful tick are
	// tolerated before a restart is issued.
	GraceIntervals int
	// MaxRestarts bounds consecutive restarts per instrument before
	// escalating instead of retrying.
	MaxRestarts int
}

// DefaultConfig returns the default supervisor configuration.
func DefaultConfig() Config {
	return Config{
		Interval:       10 * time.Minute,
		GraceIntervals: 2,
		MaxRestarts:    3,
	}
}

// Supervisor watches the broadcast loops and the upstream feed and
// restarts a stalled loop. Restarts are bounded: repeated failure
// escalates to an alert instead of retrying indefinitely.
type Supervisor struct {
	target   Target
	pinger   Pinger
	gate     SessionGate
	recorder EventRecorder
	logger   zerolog.Logger
	cfg      Config

	onAlert func(Alert)

	mu        sync.Mutex
	restarts  map[string]int
	escalated map[string]bool
	cancel    context.CancelFunc
	running   bool
}

// New creates a supervisor. recorder may be nil.
func New(target Target, pinger Pinger, gate SessionGate, recorder EventRecorder, logger zerolog.Logger, cfg Config) *Supervisor {
	return &Supervisor{
		target:    target,
		pinger:    pinger,
		gate:      gate,
		recorder:  recorder,
		logger:    logger,
		cfg:       cfg,
		restarts:  make(map[string]int),
		escalated: make(map[string]bool),
	}
}

// SetAlertCallback sets the escalation callback.
func (s *Supervisor) SetAlertCallback(fn func(Alert)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAlert = fn
}

// Start begins the polling loop. Idempotent.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.loop(ctx)
}

// Stop halts the polling loop. Idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
}

func (s *Supervisor) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckOnce(ctx, time.Now())
		}
	}
}

// CheckOnce runs one supervision pass at the given time. Outside the
// live session the broadcaster is expected to be idle, so no staleness
// judgment is made. An unreachable metrics source counts as an unhealthy
// observation for every instrument, driving the same restart and
// escalation accounting as a stale loop.
func (s *Supervisor) CheckOnce(ctx context.Context, now time.Time) {
	if s.gate != nil && s.gate.Classify(now) != models.SessionLive {
		return
	}

	pingFailed := false
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			pingFailed = true
			s.logger.Warn().Err(err).Str("event", "source_unreachable").Msg("Metrics source ping failed")
		}
	}

	grace := time.Duration(s.cfg.GraceIntervals) * s.cfg.Interval

	for _, symbol := range s.target.Symbols() {
		last, ok := s.target.LastSuccess(symbol)
		healthy := !pingFailed && ok && now.Sub(last) <= grace && s.target.Running(symbol)

		if healthy {
			// Re-arm the failure counter on a healthy observation.
			s.mu.Lock()
			s.restarts[symbol] = 0
			s.escalated[symbol] = false
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		if s.escalated[symbol] {
			s.mu.Unlock()
			continue
		}
		if s.restarts[symbol] >= s.cfg.MaxRestarts {
			s.escalated[symbol] = true
			restarts := s.restarts[symbol]
			onAlert := s.onAlert
			s.mu.Unlock()

			logging.LogEscalation(s.logger, symbol, restarts)
			s.recordEvent(ctx, symbol, "escalation", "restart budget exhausted")
			if onAlert != nil {
				onAlert(Alert{
					Symbol:   symbol,
					Restarts: restarts,
					At:       now,
					Message:  "broadcast loop unhealthy beyond restart budget",
				})
			}
			continue
		}
		s.restarts[symbol]++
		attempt := s.restarts[symbol]
		s.mu.Unlock()

		if err := s.target.Restart(ctx, symbol); err != nil {
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("Restart failed")
			s.recordEvent(ctx, symbol, "restart_failed", err.Error())
			continue
		}
		logging.LogRestart(s.logger, symbol, attempt, last)
		detail := "no successful tick within grace window"
		if pingFailed {
			detail = "metrics source unreachable"
		}
		s.recordEvent(ctx, symbol, "restart", detail)
	}
}

func (s *Supervisor) recordEvent(ctx context.Context, symbol, event, detail string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordEvent(ctx, symbol, event, detail); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record supervisor event")
	}
}

// RestartCount returns the consecutive restart count for an instrument.
func (s *Supervisor) RestartCount(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts[symbol]
}

// instrumentProbe is the per-instrument health probe payload.
type instrumentProbe struct {
	Symbol      string    `json:"symbol"`
	Running     bool      `json:"running"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	HasData     bool      `json:"has_data"`
	Restarts    int       `json:"restarts"`
	Escalated   bool      `json:"escalated"`
}

// HealthHTTPHandler returns an HTTP handler reporting per-instrument
// last-successful-tick timestamps for external monitoring.
func (s *Supervisor) HealthHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		probes := make([]instrumentProbe, 0)
		healthy := true

		s.mu.Lock()
		restarts := make(map[string]int, len(s.restarts))
		escalated := make(map[string]bool, len(s.escalated))
		for k, v := range s.restarts {
			restarts[k] = v
		}
		for k, v := range s.escalated {
			escalated[k] = v
		}
		s.mu.Unlock()

		for _, symbol := range s.target.Symbols() {
			last, ok := s.target.LastSuccess(symbol)
			probe := instrumentProbe{
				Symbol:    symbol,
				Running:   s.target.Running(symbol),
				HasData:   ok,
				Restarts:  restarts[symbol],
				Escalated: escalated[symbol],
			}
			if ok {
				probe.LastSuccess = last
			}
			if escalated[symbol] {
				healthy = false
			}
			probes = append(probes, probe)
		}

		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"healthy":     healthy,
			"instruments": probes,
		})
	}
}

// LivenessHTTPHandler returns an HTTP handler for liveness checks.
func (s *Supervisor) LivenessHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"alive"}`))
	}
}
