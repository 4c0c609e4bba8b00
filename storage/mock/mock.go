package mock

import (
	"context"

	"github.com/remesas-ve/tasas/storage/types"
)

type (
	SaveExchangeRateDelegate func(context.Context, *types.ExchangeRate) error
	LatestRateDelegate       func(context.Context, types.Currency, types.Currency) (*types.ExchangeRate, error)
	ActiveRatesDelegate      func(context.Context) ([]*types.ExchangeRate, error)
	ListSourcesDelegate      func(context.Context) ([]types.Source, error)
	ListCurrenciesDelegate   func(context.Context) ([]types.Currency, error)
)

type Storage struct {
	SaveExchangeRateFn SaveExchangeRateDelegate
	LatestRateFn       LatestRateDelegate
	ActiveRatesFn      ActiveRatesDelegate
	ListSourcesFn      ListSourcesDelegate
	ListCurrenciesFn   ListCurrenciesDelegate
}

func (m *Storage) SaveExchangeRate(ctx context.Context, rate *types.ExchangeRate) error {
	if m.SaveExchangeRateFn != nil {
		return m.SaveExchangeRateFn(ctx, rate)
	}

	return nil
}

func (m *Storage) LatestRate(
	ctx context.Context,
	from types.Currency,
	to types.Currency,
) (*types.ExchangeRate, error) {
	if m.LatestRateFn != nil {
		return m.LatestRateFn(ctx, from, to)
	}

	return nil, nil //nolint:nilnil // valid case
}

func (m *Storage) ActiveRates(ctx context.Context) ([]*types.ExchangeRate, error) {
	if m.ActiveRatesFn != nil {
		return m.ActiveRatesFn(ctx)
	}

	return nil, nil
}

func (m *Storage) ListSources(ctx context.Context) ([]types.Source, error) {
	if m.ListSourcesFn != nil {
		return m.ListSourcesFn(ctx)
	}

	return nil, nil
}

func (m *Storage) ListCurrencies(ctx context.Context) ([]types.Currency, error) {
	if m.ListCurrenciesFn != nil {
		return m.ListCurrenciesFn(ctx)
	}

	return nil, nil
}
