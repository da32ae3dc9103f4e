package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"orderflow-signals/internal/cache"
	"orderflow-signals/internal/engine"
	"orderflow-signals/internal/models"
	"orderflow-signals/internal/stream"
)

// fakeSource serves a controllable snapshot per instrument.
type fakeSource struct {
	mu        sync.Mutex
	snapshots map[string]models.MetricsSnapshot
	err       error
	fetches   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{snapshots: make(map[string]models.MetricsSnapshot)}
}

func (f *fakeSource) set(snap models.MetricsSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[snap.Symbol] = snap
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) Fetch(ctx context.Context, symbol string) (models.MetricsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return models.MetricsSnapshot{}, f.err
	}
	return f.snapshots[symbol], nil
}

func (f *fakeSource) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// fakeClock reports a settable session state.
type fakeClock struct {
	mu    sync.Mutex
	state models.SessionState
}

func (c *fakeClock) Classify(time.Time) models.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeClock) setState(s models.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func testBroadcaster(src *fakeSource, clock *fakeClock, interval time.Duration) *Broadcaster {
	instruments := []models.Instrument{
		{Symbol: "NIFTY 50", Token: 256265},
		{Symbol: "BANKNIFTY", Token: 260105},
	}
	return New(
		instruments,
		src,
		engine.New(),
		cache.New(),
		stream.NewHub(),
		clock,
		zerolog.Nop(),
		Config{Interval: interval, FetchTimeout: time.Second},
	)
}

func validSnapshot(symbol string, ratio float64) models.MetricsSnapshot {
	return models.MetricsSnapshot{
		Symbol:         symbol,
		BuyVolumeRatio: ratio,
		EMAAlignment:   models.EMANone,
		CandleStrength: 50,
		CapturedAt:     time.Now(),
	}
}

func waitForSignal(t *testing.T, ch <-chan models.Signal, timeout time.Duration) models.Signal {
	t.Helper()
	select {
	case sig := <-ch:
		return sig
	case <-time.After(timeout):
		t.Fatal("timed out waiting for signal")
		return models.Signal{}
	}
}

func TestLiveTickPublishesAndCaches(t *testing.T) {
	src := newFakeSource()
	src.set(validSnapshot("NIFTY 50", 10))
	clock := &fakeClock{state: models.SessionLive}

	b := testBroadcaster(src, clock, 10*time.Millisecond)
	ch := b.Subscribe("NIFTY 50")

	b.Start(context.Background())
	defer b.Stop()

	sig := waitForSignal(t, ch, time.Second)
	if sig.Direction != models.DirectionSell {
		t.Errorf("direction = %v, want SELL", sig.Direction)
	}
	if sig.Confidence != 95 {
		t.Errorf("confidence = %d, want 95", sig.Confidence)
	}

	cached, ok := b.GetCurrent("NIFTY 50")
	if !ok {
		t.Fatal("cache empty after successful tick")
	}
	if cached.Direction != models.DirectionSell {
		t.Errorf("cached direction = %v, want SELL", cached.Direction)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	src := newFakeSource()
	src.set(validSnapshot("NIFTY 50", 50))
	clock := &fakeClock{state: models.SessionLive}

	b := testBroadcaster(src, clock, 10*time.Millisecond)
	b.Start(context.Background())
	b.Start(context.Background()) // no-op
	defer b.Stop()

	if !b.IsStarted() {
		t.Error("broadcaster not started")
	}
	for _, sym := range b.Symbols() {
		if !b.Running(sym) {
			t.Errorf("loop for %s not running", sym)
		}
	}
}

func TestPreOpenFreezesCache(t *testing.T) {
	src := newFakeSource()
	src.set(validSnapshot("NIFTY 50", 10))
	clock := &fakeClock{state: models.SessionLive}

	b := testBroadcaster(src, clock, 10*time.Millisecond)
	ch := b.Subscribe("NIFTY 50")
	b.Start(context.Background())
	defer b.Stop()

	// Wait for one live update to land in the cache.
	waitForSignal(t, ch, time.Second)
	before, ok := b.GetCurrent("NIFTY 50")
	if !ok {
		t.Fatal("no cached signal")
	}

	// Switch to pre-open and change what the source would report.
	clock.setState(models.SessionPreOpen)
	src.set(validSnapshot("NIFTY 50", 90))

	// Let several scheduled ticks pass.
	time.Sleep(60 * time.Millisecond)

	after, ok := b.GetCurrent("NIFTY 50")
	if !ok {
		t.Fatal("cached signal disappeared")
	}
	if after != before {
		t.Errorf("cache changed during PRE_OPEN: %+v -> %+v", before, after)
	}
}

func TestInvalidSnapshotKeepsCachedSignal(t *testing.T) {
	src := newFakeSource()
	src.set(validSnapshot("NIFTY 50", 10))
	clock := &fakeClock{state: models.SessionLive}

	b := testBroadcaster(src, clock, 10*time.Millisecond)
	ch := b.Subscribe("NIFTY 50")
	b.Start(context.Background())
	defer b.Stop()

	waitForSignal(t, ch, time.Second)
	before, _ := b.GetCurrent("NIFTY 50")

	// Out-of-domain ratio must be rejected, not turned into a signal.
	src.set(validSnapshot("NIFTY 50", 250))
	time.Sleep(60 * time.Millisecond)

	after, ok := b.GetCurrent("NIFTY 50")
	if !ok {
		t.Fatal("cached signal disappeared")
	}
	if after != before {
		t.Errorf("cache updated from invalid snapshot: %+v -> %+v", before, after)
	}

	status, ok := b.Status("NIFTY 50")
	if !ok {
		t.Fatal("no status for instrument")
	}
	if status.ConsecutiveFailures == 0 {
		t.Error("rejection not counted as failure")
	}
}

func TestStopHaltsBeforeNextTick(t *testing.T) {
	src := newFakeSource()
	src.set(validSnapshot("NIFTY 50", 10))
	clock := &fakeClock{state: models.SessionLive}

	b := testBroadcaster(src, clock, 20*time.Millisecond)
	b.Start(context.Background())

	b.Stop()

	src.mu.Lock()
	fetchesAtStop := src.fetches
	src.mu.Unlock()

	time.Sleep(80 * time.Millisecond)

	src.mu.Lock()
	fetchesAfter := src.fetches
	src.mu.Unlock()

	if fetchesAfter != fetchesAtStop {
		t.Errorf("fetches continued after Stop: %d -> %d", fetchesAtStop, fetchesAfter)
	}

	// Last cached signal stays in place.
	if _, ok := b.GetCurrent("NIFTY 50"); !ok {
		t.Error("cached signal lost on Stop")
	}

	// Stop is idempotent.
	b.Stop()
}

func TestRestartRelaunchesLoop(t *testing.T) {
	src := newFakeSource()
	src.set(validSnapshot("NIFTY 50", 10))
	clock := &fakeClock{state: models.SessionLive}

	b := testBroadcaster(src, clock, 10*time.Millisecond)
	b.Start(context.Background())
	defer b.Stop()

	if err := b.Restart(context.Background(), "NIFTY 50"); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if !b.Running("NIFTY 50") {
		t.Error("loop not running after Restart")
	}

	// A fresh loop still produces ticks.
	deadline := time.After(time.Second)
	for {
		if last, ok := b.LastSuccess("NIFTY 50"); ok && !last.IsZero() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no successful tick after restart")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRestartUnknownInstrument(t *testing.T) {
	src := newFakeSource()
	clock := &fakeClock{state: models.SessionLive}

	b := testBroadcaster(src, clock, 10*time.Millisecond)
	b.Start(context.Background())
	defer b.Stop()

	if err := b.Restart(context.Background(), "SENSEX"); err == nil {
		t.Error("Restart of unknown instrument did not error")
	}
}

func TestSubscriberIsolation(t *testing.T) {
	src := newFakeSource()
	src.set(validSnapshot("NIFTY 50", 10))
	clock := &fakeClock{state: models.SessionLive}

	b := testBroadcaster(src, clock, 10*time.Millisecond)

	// One subscriber that never reads, one that reads actively.
	_ = b.Subscribe("NIFTY 50")
	active := b.Subscribe("NIFTY 50")

	b.Start(context.Background())
	defer b.Stop()

	// The active subscriber keeps receiving despite the silent one.
	received := 0
	deadline := time.After(2 * time.Second)
	for received < 5 {
		select {
		case <-active:
			received++
		case <-deadline:
			t.Fatalf("active subscriber starved after %d updates", received)
		}
	}
}

func TestInstrumentsAreIndependent(t *testing.T) {
	src := newFakeSource()
	src.set(validSnapshot("NIFTY 50", 10))
	src.set(validSnapshot("BANKNIFTY", 80))
	clock := &fakeClock{state: models.SessionLive}

	b := testBroadcaster(src, clock, 10*time.Millisecond)
	niftyCh := b.Subscribe("NIFTY 50")
	bankCh := b.Subscribe("BANKNIFTY")

	b.Start(context.Background())
	defer b.Stop()

	nifty := waitForSignal(t, niftyCh, time.Second)
	bank := waitForSignal(t, bankCh, time.Second)

	if nifty.Symbol != "NIFTY 50" || nifty.Direction != models.DirectionSell {
		t.Errorf("NIFTY signal = %+v", nifty)
	}
	if bank.Symbol != "BANKNIFTY" || bank.Direction != models.DirectionBuy {
		t.Errorf("BANKNIFTY signal = %+v", bank)
	}
}
