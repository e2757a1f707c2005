// Package store defines the snapshot persistence contract for the market
// engine. The ledger rewrites the whole snapshot after every successful
// mutation; there is no incremental write-ahead log. Implementations
// include a JSON file (default), PostgreSQL, Redis, and in-memory (tests).
package store

import (
	"context"

	"github.com/horizonmkt/market-engine/internal/model"
)

// Store is the snapshot load/save contract.
type Store interface {
	// Load returns the persisted snapshot, or (nil, nil) when none exists.
	Load(ctx context.Context) (*model.Snapshot, error)

	// Save rewrites the snapshot wholesale.
	Save(ctx context.Context, snap *model.Snapshot) error
}
