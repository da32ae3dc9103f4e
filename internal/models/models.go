// Package models provides domain models for the signal service.
package models

import (
	"time"
)

// Direction represents the direction of a trading signal.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// EMAAlignment represents the alignment of fast and slow EMAs.
type EMAAlignment string

const (
	EMABullish EMAAlignment = "BULLISH"
	EMABearish EMAAlignment = "BEARISH"
	EMANone    EMAAlignment = "NONE"
)

// SessionState represents the market-hours phase.
type SessionState string

const (
	SessionPreOpen SessionState = "PRE_OPEN"
	SessionLive    SessionState = "LIVE"
	SessionClosed  SessionState = "CLOSED"
)

// Tier identifies which rule in the cascade produced a signal.
// TierNone means no rule fired and the signal is neutral.
type Tier int

const (
	TierNone Tier = iota
	TierImbalance
	TierExtremeFlow
	TierTrend
	TierModerateFlow
)

func (t Tier) String() string {
	switch t {
	case TierImbalance:
		return "imbalance"
	case TierExtremeFlow:
		return "extreme_flow"
	case TierTrend:
		return "trend"
	case TierModerateFlow:
		return "moderate_flow"
	default:
		return "none"
	}
}

// Instrument represents a tradeable instrument, enumerated at startup.
type Instrument struct {
	Symbol string
	Token  uint32
	Name   string
}

// MetricsSnapshot is one tick of order-flow and trend metrics for an
// instrument. It is immutable once produced.
type MetricsSnapshot struct {
	Symbol             string
	BuyVolumeRatio     float64 // percent of traded volume that is buy-side, 0-100
	EMAAlignment       EMAAlignment
	CandleStrength     float64 // 0-100
	PriceVolumeAligned bool
	CapturedAt         time.Time
}

// Signal is the engine's verdict for one instrument at one point in time.
type Signal struct {
	Symbol     string
	Direction  Direction
	Confidence int // 0-100, never 100 for non-neutral directions
	Tier       Tier
	ProducedAt time.Time
}

// IsActionable reports whether the signal carries a directional call.
func (s Signal) IsActionable() bool {
	return s.Direction != DirectionNeutral
}

// Age returns how stale the signal is relative to now.
func (s Signal) Age(now time.Time) time.Duration {
	return now.Sub(s.ProducedAt)
}
