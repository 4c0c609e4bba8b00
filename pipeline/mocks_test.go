package pipeline

import (
	"context"

	"github.com/remesas-ve/tasas/scrape"
	"github.com/remesas-ve/tasas/storage/types"
)

type (
	nameDelegate     func() string
	sourceDelegate   func() types.Source
	initDelegate     func(context.Context) error
	fetchDelegate    func(context.Context) ([]scrape.Quote, error)
	shutdownDelegate func(context.Context) error
)

type mockAdapter struct {
	nameFn     nameDelegate
	sourceFn   sourceDelegate
	initFn     initDelegate
	fetchFn    fetchDelegate
	shutdownFn shutdownDelegate
}

func (m *mockAdapter) Name() string {
	if m.nameFn != nil {
		return m.nameFn()
	}

	return "mock-adapter"
}

func (m *mockAdapter) Source() types.Source {
	if m.sourceFn != nil {
		return m.sourceFn()
	}

	return types.SourceBinanceP2P
}

func (m *mockAdapter) Initialize(ctx context.Context) error {
	if m.initFn != nil {
		return m.initFn(ctx)
	}

	return nil
}

func (m *mockAdapter) FetchQuotes(ctx context.Context) ([]scrape.Quote, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx)
	}

	return nil, nil
}

func (m *mockAdapter) Shutdown(ctx context.Context) error {
	if m.shutdownFn != nil {
		return m.shutdownFn(ctx)
	}

	return nil
}
