// Package history keeps the durable, append-only ledger of dispatched
// alerts and serves the time-window queries and aggregate statistics built
// on it.
package history

import (
	"context"
	"time"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
)

// Store is the persistence layer for the alert ledger.
type Store interface {
	// Append persists a single record. Safe for concurrent writers.
	Append(ctx context.Context, record *model.HistoryRecord) error

	// Since returns records with a timestamp at or after now minus d,
	// newest first.
	Since(ctx context.Context, d time.Duration) ([]model.HistoryRecord, error)

	// Stats aggregates the full ledger plus the rolling 24h and 7d windows.
	Stats(ctx context.Context) (*model.Stats, error)

	// Close releases resources.
	Close() error
}
