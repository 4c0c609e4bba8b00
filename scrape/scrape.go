package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/remesas-ve/tasas/storage/types"
)

var (
	// ErrInit indicates the venue is unreachable or session setup failed
	ErrInit = errors.New("adapter init failed")

	// ErrFetch indicates a network, parsing or rate-limit error during a fetch.
	// Zero fetched quotes is a valid outcome, not a fetch error
	ErrFetch = errors.New("adapter fetch failed")
)

// Side is the trade side of an observed quote
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) String() string {
	return string(s)
}

// Quote is a single raw venue observation.
// Quotes are ephemeral: they exist in memory for the duration of
// one pipeline run and are never persisted directly
type Quote struct {
	ObservedAt      time.Time
	BaseCurrency    types.Currency // the venue asset, e.g. USDT
	CounterCurrency types.Currency // the fiat side, e.g. VES
	PaymentMethod   string         // optional, e.g. "BANK"
	Side            Side
	Price           float64
}

// Adapter is a single quote source for one configured
// (currency pair, trade side, payment method) combination.
// Adapter instances do not share mutable state
type Adapter interface {
	// Name returns the human-readable name of the adapter
	Name() string

	// Source returns the primary attribution tag for rates
	// observed through this adapter
	Source() types.Source

	// Initialize acquires session or connection resources.
	// Errors wrap ErrInit
	Initialize(ctx context.Context) error

	// FetchQuotes returns a finite list of quotes for the configured
	// combination. An empty list is a valid result. Errors wrap ErrFetch
	FetchQuotes(ctx context.Context) ([]Quote, error)

	// Shutdown releases all resources. It is idempotent and safe
	// to call even if Initialize partially failed
	Shutdown(ctx context.Context) error
}
