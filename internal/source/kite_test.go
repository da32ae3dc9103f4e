package source

import (
	"math"
	"testing"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"

	"orderflow-signals/internal/models"
)

func tickWith(open, high, low, last float64) kitemodels.Tick {
	return kitemodels.Tick{
		LastPrice: last,
		OHLC: kitemodels.OHLC{
			Open: open,
			High: high,
			Low:  low,
		},
	}
}

func TestCandleStrength(t *testing.T) {
	tests := []struct {
		name string
		tick kitemodels.Tick
		want float64
	}{
		{"half range up", tickWith(100, 110, 100, 105), 50},
		{"full range", tickWith(100, 110, 100, 110), 100},
		{"down move", tickWith(110, 110, 100, 100), 100},
		{"flat day", tickWith(100, 100, 100, 100), 0},
		{"gap beyond range clamps", tickWith(90, 110, 100, 110), 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := candleStrength(tt.tick)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("candleStrength = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEMAAlignment(t *testing.T) {
	rising := make([]float64, 60)
	falling := make([]float64, 60)
	flat := make([]float64, 60)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 160 - float64(i)
		flat[i] = 100
	}

	if got := emaAlignment(rising); got != models.EMABullish {
		t.Errorf("rising series = %v, want BULLISH", got)
	}
	if got := emaAlignment(falling); got != models.EMABearish {
		t.Errorf("falling series = %v, want BEARISH", got)
	}
	if got := emaAlignment(flat); got != models.EMANone {
		t.Errorf("flat series = %v, want NONE", got)
	}
	if got := emaAlignment(rising[:emaSlowPeriod-1]); got != models.EMANone {
		t.Errorf("short series = %v, want NONE", got)
	}
}

func TestLastEMA(t *testing.T) {
	// A constant series has itself as its EMA regardless of period.
	constant := []float64{50, 50, 50, 50, 50, 50, 50, 50, 50, 50}
	if got := lastEMA(constant, 5); math.Abs(got-50) > 1e-9 {
		t.Errorf("constant EMA = %v, want 50", got)
	}

	// Short series and bad period return zero.
	if got := lastEMA([]float64{1, 2}, 5); got != 0 {
		t.Errorf("short series EMA = %v, want 0", got)
	}
	if got := lastEMA(constant, 0); got != 0 {
		t.Errorf("zero period EMA = %v, want 0", got)
	}

	// The EMA tracks toward the latest values.
	climbing := []float64{10, 10, 10, 10, 10, 20, 20, 20, 20, 20}
	got := lastEMA(climbing, 5)
	if got <= 10 || got > 20 {
		t.Errorf("climbing EMA = %v, want between 10 and 20", got)
	}
}

func TestPriceVolumeAligned(t *testing.T) {
	tests := []struct {
		name        string
		price, prev float64
		ratio       float64
		want        bool
	}{
		{"up move with buy skew", 101, 100, 70, true},
		{"up move with sell skew", 101, 100, 30, false},
		{"down move with sell skew", 99, 100, 30, true},
		{"down move with buy skew", 99, 100, 70, false},
		{"unchanged price", 100, 100, 70, false},
		{"no previous price", 100, 0, 70, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := priceVolumeAligned(tt.price, tt.prev, tt.ratio); got != tt.want {
				t.Errorf("priceVolumeAligned(%v, %v, %v) = %v, want %v",
					tt.price, tt.prev, tt.ratio, got, tt.want)
			}
		})
	}
}
