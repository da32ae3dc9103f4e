package stream

import (
	"sync"
	"testing"
)

// A subscriber leaving while its instrument's loop is mid-publish must
// stay local to that subscriber: the publisher keeps running and never
// sends on a closed channel.
func TestPublishDuringSubscriberChurn(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{SubscriberBufferSize: 4})
	defer hub.Stop()

	const symbol = "NIFTY 50"
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
				hub.Publish(testSignal(symbol, i%100))
			}
		}
	}()

	for i := 0; i < 500; i++ {
		ch := hub.Subscribe(symbol)
		hub.Unsubscribe(symbol, ch)
	}

	close(done)
	wg.Wait()

	if got := hub.SubscriberCount(symbol); got != 0 {
		t.Errorf("subscriber count after churn = %d, want 0", got)
	}
}

// Stop racing an in-flight publish must not panic the publisher either.
func TestStopDuringPublish(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{SubscriberBufferSize: 1})

	const symbol = "BANKNIFTY"
	hub.Subscribe(symbol)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
				hub.Publish(testSignal(symbol, i%100))
			}
		}
	}()

	hub.Stop()
	close(done)
	wg.Wait()

	if got := hub.TotalSubscriberCount(); got != 0 {
		t.Errorf("subscriber count after stop = %d, want 0", got)
	}
}
