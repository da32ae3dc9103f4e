package stream

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"orderflow-signals/internal/models"
)

func testSignal(symbol string, confidence int) models.Signal {
	return models.Signal{
		Symbol:     symbol,
		Direction:  models.DirectionBuy,
		Confidence: confidence,
		Tier:       models.TierImbalance,
		ProducedAt: time.Now(),
	}
}

// Property: every subscriber with buffer headroom receives every
// published signal for its instrument.
func TestProperty_AllSubscribersReceiveSignals(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"NIFTY 50", "BANKNIFTY", "FINNIFTY"}

	properties.Property("all subscribers receive all published signals", prop.ForAll(
		func(subscriberCount, signalCount, symbolIdx int) bool {
			symbol := symbols[symbolIdx]

			hub := NewHubWithConfig(HubConfig{SubscriberBufferSize: 64})
			defer hub.Stop()

			channels := make([]<-chan models.Signal, subscriberCount)
			for i := range channels {
				channels[i] = hub.Subscribe(symbol)
			}

			for i := 0; i < signalCount; i++ {
				hub.Publish(testSignal(symbol, i%100))
			}

			// Publishing is synchronous, so every update is already
			// buffered in each subscriber channel.
			for i, ch := range channels {
				if received := len(ch); received != signalCount {
					t.Logf("subscriber %d received %d of %d", i, received, signalCount)
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 30),
		gen.IntRange(0, len(symbols)-1),
	))

	properties.TestingRun(t)
}

// Property: a subscriber that never reads does not delay or block
// publishing to an actively-reading subscriber of the same instrument.
func TestProperty_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("slow subscribers never block fast ones", prop.ForAll(
		func(signalCount int) bool {
			hub := NewHubWithConfig(HubConfig{SubscriberBufferSize: 2})
			defer hub.Stop()

			fastCh := hub.Subscribe("NIFTY 50")
			_ = hub.Subscribe("NIFTY 50") // never read

			var fastReceived int64
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range fastCh {
					atomic.AddInt64(&fastReceived, 1)
				}
			}()

			donePublishing := make(chan struct{})
			go func() {
				for i := 0; i < signalCount; i++ {
					hub.Publish(testSignal("NIFTY 50", i%100))
				}
				close(donePublishing)
			}()

			// The publisher must finish promptly even though one
			// subscriber's buffer overflowed long ago.
			select {
			case <-donePublishing:
			case <-time.After(2 * time.Second):
				t.Log("publisher blocked by slow subscriber")
				return false
			}

			hub.Stop()
			wg.Wait()

			return atomic.LoadInt64(&fastReceived) > 0
		},
		gen.IntRange(10, 200),
	))

	properties.TestingRun(t)
}

// Property: subscribers only receive signals for their own instrument.
func TestProperty_SubscribersScopedToInstrument(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"NIFTY 50", "BANKNIFTY", "FINNIFTY"}

	properties.Property("no cross-instrument delivery", prop.ForAll(
		func(subscribedIdx, publishedIdx int) bool {
			subscribed := symbols[subscribedIdx]
			published := symbols[publishedIdx]

			hub := NewHub()
			defer hub.Stop()

			ch := hub.Subscribe(subscribed)
			hub.Publish(testSignal(published, 50))

			select {
			case sig := <-ch:
				return sig.Symbol == subscribed && subscribed == published
			default:
				return subscribed != published
			}
		},
		gen.IntRange(0, len(symbols)-1),
		gen.IntRange(0, len(symbols)-1),
	))

	properties.TestingRun(t)
}
