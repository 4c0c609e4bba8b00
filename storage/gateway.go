package storage

import (
	"context"
	"fmt"

	"github.com/remesas-ve/tasas/storage/types"
)

// Gateway guards all rate persistence behind record validation.
// A candidate that fails validation is rejected without touching
// the underlying store; rejection of one candidate never affects
// the others in a batch
type Gateway struct {
	store Storage
}

// NewGateway creates a persistence gateway over the given store
func NewGateway(store Storage) *Gateway {
	return &Gateway{
		store: store,
	}
}

// Write validates and persists a single rate candidate
func (g *Gateway) Write(ctx context.Context, candidate *types.ExchangeRate) error {
	if err := candidate.Validate(); err != nil {
		return fmt.Errorf("invalid rate candidate: %w", err)
	}

	if err := g.store.SaveExchangeRate(ctx, candidate); err != nil {
		return fmt.Errorf("unable to save exchange rate: %w", err)
	}

	return nil
}

// Latest fetches the most recently created record for the pair,
// or nil if the pair has never been observed
func (g *Gateway) Latest(
	ctx context.Context,
	from types.Currency,
	to types.Currency,
) (*types.ExchangeRate, error) {
	return g.store.LatestRate(ctx, from, to)
}

// Active fetches one latest record per distinct currency pair
func (g *Gateway) Active(ctx context.Context) ([]*types.ExchangeRate, error) {
	return g.store.ActiveRates(ctx)
}
