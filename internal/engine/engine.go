// Package engine implements the tiered signal derivation procedure that
// maps one metrics snapshot and a session state to a trading signal.
package engine

import (
	"math"
	"time"

	"orderflow-signals/internal/errors"
	"orderflow-signals/internal/models"
)

// Cut points of the cascade. Consumers calibrate against these exact
// values, so they are constants rather than configuration.
const (
	sellImbalanceBelow = 45.0
	buyImbalanceAbove  = 55.0
	extremeSellBelow   = 35.0
	extremeBuyAbove    = 65.0
	extremeBaseCap     = 90.0
	trendMinBase       = 30.0
	moderateMid        = 50.0

	liveBonus         = 5
	closedPenalty     = 15
	ceilingActionable = 99
)

// Config holds the tunable coefficients of the cascade. The tier cut
// points above are fixed; only the trend and moderate-flow scaling is
// parameterized.
type Config struct {
	// TrendScale multiplies candle strength into the Tier 3 base confidence.
	TrendScale float64
	// ModerateScale multiplies the distance from a 50/50 flow split into
	// the Tier 4 base confidence.
	ModerateScale float64
	// ModerateCap caps the Tier 4 base confidence.
	ModerateCap float64
}

// DefaultConfig returns the default engine coefficients.
func DefaultConfig() Config {
	return Config{
		TrendScale:    1.0,
		ModerateScale: 8.0,
		ModerateCap:   60.0,
	}
}

// Engine evaluates metrics snapshots into signals. It is stateless and
// safe for concurrent use.
type Engine struct {
	cfg Config
	now func() time.Time
}

// New creates an engine with default coefficients.
func New() *Engine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an engine with custom coefficients.
func NewWithConfig(cfg Config) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// SetNowFunc overrides the clock used to stamp ProducedAt.
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.now = now
}

// verdict is the outcome of a single tier before session adjustment.
type verdict struct {
	direction models.Direction
	base      float64
}

// Evaluate runs the ordered tier cascade over one snapshot. The first
// tier whose precondition holds wins; later tiers are never consulted.
// A snapshot with a metric outside [0,100] is rejected with a
// ValidationError and no signal is produced.
func (e *Engine) Evaluate(snap models.MetricsSnapshot, state models.SessionState) (models.Signal, error) {
	if err := validate(snap); err != nil {
		return models.Signal{}, err
	}

	tiers := []struct {
		tier models.Tier
		eval func(models.MetricsSnapshot) (verdict, bool)
	}{
		{models.TierImbalance, e.evalImbalance},
		{models.TierExtremeFlow, e.evalExtremeFlow},
		{models.TierTrend, e.evalTrend},
		{models.TierModerateFlow, e.evalModerateFlow},
	}

	sig := models.Signal{
		Symbol:     snap.Symbol,
		Direction:  models.DirectionNeutral,
		Confidence: 0,
		Tier:       models.TierNone,
		ProducedAt: e.now(),
	}

	for _, t := range tiers {
		v, fired := t.eval(snap)
		if !fired {
			continue
		}
		sig.Direction = v.direction
		sig.Tier = t.tier
		sig.Confidence = adjustForSession(v.base, state)
		break
	}

	return sig, nil
}

// evalImbalance is Tier 1: structural volume imbalance dominates all
// other evidence. The bullish side additionally requires that the
// imbalance is the dominant bullish signal, i.e. the trend is not
// actively contradicting it.
func (e *Engine) evalImbalance(snap models.MetricsSnapshot) (verdict, bool) {
	r := snap.BuyVolumeRatio
	switch {
	case r < sellImbalanceBelow:
		return verdict{models.DirectionSell, 100 - r}, true
	case r > buyImbalanceAbove && snap.EMAAlignment != models.EMABearish:
		return verdict{models.DirectionBuy, r}, true
	}
	return verdict{}, false
}

// evalExtremeFlow is Tier 2: a conviction fallback for ratios so extreme
// that they override Tier 1's hesitation.
func (e *Engine) evalExtremeFlow(snap models.MetricsSnapshot) (verdict, bool) {
	r := snap.BuyVolumeRatio
	switch {
	case r < extremeSellBelow:
		return verdict{models.DirectionSell, math.Min(extremeBaseCap, 100-r)}, true
	case r > extremeBuyAbove:
		return verdict{models.DirectionBuy, math.Min(extremeBaseCap, r)}, true
	}
	return verdict{}, false
}

// evalTrend is Tier 3: EMA alignment with candle-strength confidence,
// accepted only above the minimum conviction threshold.
func (e *Engine) evalTrend(snap models.MetricsSnapshot) (verdict, bool) {
	base := snap.CandleStrength * e.cfg.TrendScale
	if base <= trendMinBase {
		return verdict{}, false
	}
	switch snap.EMAAlignment {
	case models.EMABullish:
		return verdict{models.DirectionBuy, base}, true
	case models.EMABearish:
		return verdict{models.DirectionSell, base}, true
	}
	return verdict{}, false
}

// evalModerateFlow is Tier 4: near-50/50 flow yields only a tentative,
// low-capped call.
func (e *Engine) evalModerateFlow(snap models.MetricsSnapshot) (verdict, bool) {
	r := snap.BuyVolumeRatio
	if r < sellImbalanceBelow || r > buyImbalanceAbove {
		return verdict{}, false
	}
	base := math.Min(math.Abs(r-moderateMid)*e.cfg.ModerateScale, e.cfg.ModerateCap)
	dir := models.DirectionSell
	if r > moderateMid {
		dir = models.DirectionBuy
	}
	return verdict{dir, base}, true
}

// adjustForSession applies the session adjustment to a non-neutral base
// confidence and clamps it to [0, 99]. 99 is the ceiling, never 100, to
// avoid implying certainty.
func adjustForSession(base float64, state models.SessionState) int {
	conf := base
	switch state {
	case models.SessionLive:
		conf += liveBonus
	case models.SessionClosed:
		conf -= closedPenalty
	}
	if conf < 0 {
		conf = 0
	}
	if conf > ceilingActionable {
		conf = ceilingActionable
	}
	return int(math.Round(conf))
}

func validate(snap models.MetricsSnapshot) error {
	if snap.BuyVolumeRatio < 0 || snap.BuyVolumeRatio > 100 || math.IsNaN(snap.BuyVolumeRatio) {
		return errors.NewValidationError("buy_volume_ratio", snap.BuyVolumeRatio, "must be in [0,100]")
	}
	if snap.CandleStrength < 0 || snap.CandleStrength > 100 || math.IsNaN(snap.CandleStrength) {
		return errors.NewValidationError("candle_strength", snap.CandleStrength, "must be in [0,100]")
	}
	return nil
}
