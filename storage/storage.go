package storage

import (
	"context"

	"github.com/remesas-ve/tasas/storage/types"
)

// Storage is an abstraction over exchange rate data.
//
// Rate records are append-only: adapters never update a row in place,
// and "latest" queries are monotonic with respect to creation time
type Storage interface {
	// SaveExchangeRate persists the given exchange rate record.
	// The record must already be validated (types.NewExchangeRate)
	SaveExchangeRate(context.Context, *types.ExchangeRate) error

	// LatestRate fetches the most recently created record for the
	// given currency pair, or nil if none exists (absence is not an error)
	LatestRate(context.Context, types.Currency, types.Currency) (*types.ExchangeRate, error)

	// ActiveRates fetches the latest record for every distinct
	// currency pair present
	ActiveRates(context.Context) ([]*types.ExchangeRate, error)

	// ListSources lists all present sources for fx rates
	ListSources(context.Context) ([]types.Source, error)

	// ListCurrencies lists all currencies present
	ListCurrencies(context.Context) ([]types.Currency, error)
}
