package source

import (
	"context"
	"math"
	"sync"
	"time"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"orderflow-signals/internal/errors"
	"orderflow-signals/internal/models"
)

const (
	// emaFastPeriod and emaSlowPeriod are the tick-price EMA periods used
	// to derive trend alignment.
	emaFastPeriod = 9
	emaSlowPeriod = 21

	// emaAlignmentBand is the minimum relative separation between the
	// fast and slow EMA before the trend counts as aligned.
	emaAlignmentBand = 0.0005

	// maxPriceSamples bounds the per-instrument price history window.
	maxPriceSamples = 120
)

// KiteSource derives metrics snapshots from the Kite websocket stream.
// It keeps a small rolling window of ticks per instrument and computes
// buy-volume ratio, candle strength and EMA alignment from it.
type KiteSource struct {
	ticker      *kiteticker.Ticker
	apiKey      string
	accessToken string

	mu           sync.RWMutex
	serving      bool
	connected    bool
	instruments  map[uint32]string // token -> symbol
	tokens       []uint32
	state        map[string]*instrumentState
	staleAfter   time.Duration
	lastTickTime time.Time
}

// instrumentState is the rolling per-instrument tick window.
type instrumentState struct {
	lastTick   kitemodels.Tick
	lastTickAt time.Time
	prevPrice  float64
	prices     []float64
}

// KiteSourceConfig holds configuration for the Kite source.
type KiteSourceConfig struct {
	APIKey      string
	AccessToken string
	Instruments []models.Instrument
	// StaleAfter rejects snapshots whose newest tick is older than this.
	StaleAfter time.Duration
	// MaxReconnectRetries bounds the websocket reconnect attempts.
	MaxReconnectRetries int
}

// NewKiteSource creates a Kite-backed metrics source. Connect must be
// called before Fetch.
func NewKiteSource(cfg KiteSourceConfig) *KiteSource {
	staleAfter := cfg.StaleAfter
	if staleAfter == 0 {
		staleAfter = 10 * time.Second
	}

	s := &KiteSource{
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		instruments: make(map[uint32]string),
		state:       make(map[string]*instrumentState),
		staleAfter:  staleAfter,
	}
	for _, ins := range cfg.Instruments {
		s.instruments[ins.Token] = ins.Symbol
		s.tokens = append(s.tokens, ins.Token)
		s.state[ins.Symbol] = &instrumentState{}
	}

	s.ticker = kiteticker.New(cfg.APIKey, cfg.AccessToken)
	s.ticker.SetAutoReconnect(true)
	if cfg.MaxReconnectRetries > 0 {
		s.ticker.SetReconnectMaxRetries(cfg.MaxReconnectRetries)
	}

	return s
}

// Connect establishes the websocket stream and subscribes the configured
// instrument tokens. It returns once connected or when ctx expires.
// Calling Connect again while the stream task is already running only
// waits for the connection.
func (s *KiteSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.serving {
		s.mu.Unlock()
		return s.waitConnected(ctx)
	}
	s.serving = true
	s.mu.Unlock()

	s.ticker.OnConnect(func() {
		s.mu.Lock()
		s.connected = true
		tokens := s.tokens
		s.mu.Unlock()

		// Resubscribe on every (re)connect.
		if err := s.ticker.Subscribe(tokens); err == nil {
			s.ticker.SetMode(kiteticker.ModeFull, tokens)
		}
	})

	s.ticker.OnClose(func(code int, reason string) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	})

	s.ticker.OnTick(func(tick kitemodels.Tick) {
		s.recordTick(tick)
	})

	go s.ticker.Serve()

	return s.waitConnected(ctx)
}

// waitConnected blocks until the stream reports connected or ctx expires.
func (s *KiteSource) waitConnected(ctx context.Context) error {
	checkTicker := time.NewTicker(50 * time.Millisecond)
	defer checkTicker.Stop()

	for {
		s.mu.RLock()
		connected := s.connected
		s.mu.RUnlock()
		if connected {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-checkTicker.C:
		}
	}
}

// Close shuts down the websocket stream.
func (s *KiteSource) Close() {
	s.ticker.Close()
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

// recordTick folds one tick into the instrument's rolling window.
func (s *KiteSource) recordTick(tick kitemodels.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol, ok := s.instruments[tick.InstrumentToken]
	if !ok {
		return
	}
	st := s.state[symbol]

	st.prevPrice = st.lastTick.LastPrice
	st.lastTick = tick
	st.lastTickAt = time.Now()
	s.lastTickTime = st.lastTickAt

	st.prices = append(st.prices, tick.LastPrice)
	if len(st.prices) > maxPriceSamples {
		st.prices = st.prices[len(st.prices)-maxPriceSamples:]
	}
}

// Fetch assembles a metrics snapshot from the instrument's current tick
// window.
func (s *KiteSource) Fetch(ctx context.Context, symbol string) (models.MetricsSnapshot, error) {
	select {
	case <-ctx.Done():
		return models.MetricsSnapshot{}, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.state[symbol]
	if !ok {
		return models.MetricsSnapshot{}, errors.ErrUnknownInstrument
	}
	if !s.connected {
		return models.MetricsSnapshot{}, errors.NewSourceError("kite", symbol, "websocket disconnected", errors.ErrSourceUnavailable)
	}
	if st.lastTickAt.IsZero() || time.Since(st.lastTickAt) > s.staleAfter {
		return models.MetricsSnapshot{}, errors.NewSourceError("kite", symbol, "no recent tick", errors.ErrNoData)
	}

	tick := st.lastTick
	buyQty := float64(tick.TotalBuyQuantity)
	sellQty := float64(tick.TotalSellQuantity)
	if buyQty+sellQty == 0 {
		return models.MetricsSnapshot{}, errors.NewSourceError("kite", symbol, "no order-flow depth", errors.ErrNoData)
	}

	ratio := buyQty / (buyQty + sellQty) * 100

	return models.MetricsSnapshot{
		Symbol:             symbol,
		BuyVolumeRatio:     ratio,
		EMAAlignment:       emaAlignment(st.prices),
		CandleStrength:     candleStrength(tick),
		PriceVolumeAligned: priceVolumeAligned(tick.LastPrice, st.prevPrice, ratio),
		CapturedAt:         st.lastTickAt,
	}, nil
}

// Ping reports feed reachability: connected and ticking recently.
func (s *KiteSource) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return errors.ErrSourceUnavailable
	}
	if !s.lastTickTime.IsZero() && time.Since(s.lastTickTime) > s.staleAfter {
		return errors.Wrap(errors.ErrSourceUnavailable, "stream silent")
	}
	return nil
}

// candleStrength measures how much of the day's range the current move
// covers, 0-100.
func candleStrength(tick kitemodels.Tick) float64 {
	rng := tick.OHLC.High - tick.OHLC.Low
	if rng <= 0 {
		return 0
	}
	strength := math.Abs(tick.LastPrice-tick.OHLC.Open) / rng * 100
	if strength > 100 {
		strength = 100
	}
	return strength
}

// emaAlignment compares a fast and slow EMA of recent tick prices.
func emaAlignment(prices []float64) models.EMAAlignment {
	if len(prices) < emaSlowPeriod {
		return models.EMANone
	}

	fast := lastEMA(prices, emaFastPeriod)
	slow := lastEMA(prices, emaSlowPeriod)
	if slow == 0 {
		return models.EMANone
	}

	switch diff := (fast - slow) / slow; {
	case diff > emaAlignmentBand:
		return models.EMABullish
	case diff < -emaAlignmentBand:
		return models.EMABearish
	default:
		return models.EMANone
	}
}

// lastEMA returns the final EMA value over the series. The first value
// is seeded with an SMA of the initial period.
func lastEMA(values []float64, period int) float64 {
	if len(values) < period || period <= 0 {
		return 0
	}

	var sum float64
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = (v-ema)*multiplier + ema
	}
	return ema
}

// priceVolumeAligned reports whether the latest price move agrees with
// the order-flow skew.
func priceVolumeAligned(price, prevPrice, ratio float64) bool {
	if prevPrice == 0 {
		return false
	}
	switch {
	case price > prevPrice:
		return ratio > 50
	case price < prevPrice:
		return ratio < 50
	default:
		return false
	}
}
