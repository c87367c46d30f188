// Package store persists simulation snapshots so the market survives
// restarts without resetting prices or positions. Implementations include a
// JSON file store (default), PostgreSQL, and in-memory (for testing).
//
// The persisted state is three independent collections: instruments,
// portfolios, and webhook subscribers. Load→save→load is a no-op on values.
package store

import (
	"context"

	"github.com/papertrade/market-sim/internal/model"
)

// Store is the snapshot persistence interface. Loads return empty
// collections, not errors, when no snapshot exists yet.
type Store interface {
	LoadMarket(ctx context.Context) ([]model.Instrument, error)
	SaveMarket(ctx context.Context, instruments []model.Instrument) error

	LoadPortfolios(ctx context.Context) (map[string]*model.Portfolio, error)
	SavePortfolios(ctx context.Context, portfolios map[string]*model.Portfolio) error

	// Subscribers maps participant → webhook URL for market event delivery.
	LoadSubscribers(ctx context.Context) (map[string]string, error)
	SaveSubscribers(ctx context.Context, subscribers map[string]string) error
}
