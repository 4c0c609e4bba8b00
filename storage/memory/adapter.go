package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/remesas-ve/tasas/storage/types"
)

// Storage is an append-only, in-memory exchange rate store
type Storage struct {
	data []types.ExchangeRate

	mu sync.RWMutex
}

func NewStorage() *Storage {
	return &Storage{
		data: make([]types.ExchangeRate, 0),
	}
}

func (s *Storage) SaveExchangeRate(_ context.Context, r *types.ExchangeRate) error {
	elem := *r
	elem.CreatedAt = elem.CreatedAt.UTC()

	s.mu.Lock()
	s.data = append(s.data, elem) // records are immutable, always a new row
	s.mu.Unlock()

	return nil
}

func (s *Storage) LatestRate(
	_ context.Context,
	from types.Currency,
	to types.Currency,
) (*types.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *types.ExchangeRate

	for i := range s.data {
		v := s.data[i]

		if v.From != from || v.To != to {
			continue
		}

		if best == nil || v.CreatedAt.After(best.CreatedAt) {
			cp := v
			best = &cp
		}
	}

	return best, nil
}

func (s *Storage) ActiveRates(_ context.Context) ([]*types.ExchangeRate, error) {
	s.mu.RLock()

	bestByPair := make(map[types.Pair]types.ExchangeRate)

	for _, v := range s.data {
		p := types.Pair{
			From: v.From,
			To:   v.To,
		}

		cur, ok := bestByPair[p]
		if !ok || v.CreatedAt.After(cur.CreatedAt) {
			bestByPair[p] = v
		}
	}

	s.mu.RUnlock()

	out := make([]*types.ExchangeRate, 0, len(bestByPair))
	for _, v := range bestByPair {
		cp := v
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From.String() < out[j].From.String()
		}

		return out[i].To.String() < out[j].To.String()
	})

	return out, nil
}

func (s *Storage) ListSources(_ context.Context) ([]types.Source, error) {
	s.mu.RLock()

	seen := make(map[types.Source]struct{})

	for _, v := range s.data {
		seen[v.Source] = struct{}{}
	}

	s.mu.RUnlock()

	out := make([]types.Source, 0, len(seen))

	for v := range seen {
		out = append(out, v)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})

	return out, nil
}

func (s *Storage) ListCurrencies(_ context.Context) ([]types.Currency, error) {
	s.mu.RLock()

	seen := make(map[types.Currency]struct{})

	for _, v := range s.data {
		seen[v.From] = struct{}{}
		seen[v.To] = struct{}{}
	}

	s.mu.RUnlock()

	out := make([]types.Currency, 0, len(seen))

	for v := range seen {
		out = append(out, v)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})

	return out, nil
}
