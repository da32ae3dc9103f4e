package cache

import (
	"sync"
	"testing"
	"time"

	"orderflow-signals/internal/models"
)

func signalAt(symbol string, confidence int, at time.Time) models.Signal {
	return models.Signal{
		Symbol:     symbol,
		Direction:  models.DirectionBuy,
		Confidence: confidence,
		Tier:       models.TierImbalance,
		ProducedAt: at,
	}
}

func TestGetBeforeFirstWrite(t *testing.T) {
	c := New()

	if _, ok := c.Get("NIFTY 50"); ok {
		t.Error("Get on empty cache reported data")
	}
	if _, ok := c.LastUpdated("NIFTY 50"); ok {
		t.Error("LastUpdated on empty cache reported data")
	}
	if _, ok := c.Age("NIFTY 50", time.Now()); ok {
		t.Error("Age on empty cache reported data")
	}
}

func TestPutOverwrites(t *testing.T) {
	c := New()
	base := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)

	c.Put(signalAt("NIFTY 50", 70, base))
	c.Put(signalAt("NIFTY 50", 85, base.Add(5*time.Second)))

	sig, ok := c.Get("NIFTY 50")
	if !ok {
		t.Fatal("Get returned no data after Put")
	}
	if sig.Confidence != 85 {
		t.Errorf("confidence = %d, want latest write 85", sig.Confidence)
	}

	updated, _ := c.LastUpdated("NIFTY 50")
	if !updated.Equal(base.Add(5 * time.Second)) {
		t.Errorf("LastUpdated = %v, want %v", updated, base.Add(5*time.Second))
	}
}

func TestAgeIsDerived(t *testing.T) {
	c := New()
	base := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)

	c.Put(signalAt("BANKNIFTY", 60, base))

	age, ok := c.Age("BANKNIFTY", base.Add(12*time.Second))
	if !ok {
		t.Fatal("Age returned no data")
	}
	if age != 12*time.Second {
		t.Errorf("age = %v, want 12s", age)
	}
}

func TestInstrumentsAreIndependent(t *testing.T) {
	c := New()
	base := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)

	c.Put(signalAt("NIFTY 50", 70, base))

	if _, ok := c.Get("BANKNIFTY"); ok {
		t.Error("write to one instrument visible under another")
	}

	symbols := c.Symbols()
	if len(symbols) != 1 || symbols[0] != "NIFTY 50" {
		t.Errorf("Symbols() = %v, want [NIFTY 50]", symbols)
	}
}

func TestConcurrentReadersSingleWriter(t *testing.T) {
	c := New()
	base := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	c.Put(signalAt("NIFTY 50", 1, base))

	done := make(chan struct{})
	var wg sync.WaitGroup

	// One writer replacing the slot continuously.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 2; ; i++ {
			select {
			case <-done:
				return
			default:
				c.Put(signalAt("NIFTY 50", i%100, base.Add(time.Duration(i)*time.Second)))
			}
		}
	}()

	// Many readers that must always observe a complete record.
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					sig, ok := c.Get("NIFTY 50")
					if !ok {
						t.Error("reader observed missing value after first write")
						return
					}
					if sig.Symbol != "NIFTY 50" || sig.Direction != models.DirectionBuy {
						t.Errorf("reader observed partial record: %+v", sig)
						return
					}
				}
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()
}
