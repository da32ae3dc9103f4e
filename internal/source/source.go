// Package source provides the upstream metrics feed that supplies
// order-flow snapshots to the broadcaster.
package source

import (
	"context"

	"orderflow-signals/internal/models"
)

// MetricsSource supplies one order-flow snapshot per instrument on
// demand. Fetch is a blocking call bounded by the caller's context; on
// timeout or error the caller skips the tick and keeps serving the
// cached signal.
type MetricsSource interface {
	// Fetch returns the current metrics snapshot for the instrument.
	Fetch(ctx context.Context, symbol string) (models.MetricsSnapshot, error)
	// Ping reports whether the upstream feed is reachable.
	Ping(ctx context.Context) error
}
