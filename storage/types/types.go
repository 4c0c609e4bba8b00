package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidCurrency = errors.New("invalid currency code")
	ErrSamePair        = errors.New("from and to currencies are identical")
	ErrInvalidRate     = errors.New("rate must be positive")
	ErrUnknownSource   = errors.New("unknown rate source")
)

type Currency string

const (
	CurrencyUSDT   Currency = "USDT"
	CurrencyUSD    Currency = "USD"
	CurrencyVES    Currency = "VES"
	CurrencyCOP    Currency = "COP"
	CurrencyBRL    Currency = "BRL"
	CurrencyZELLE  Currency = "ZELLE"
	CurrencyPAYPAL Currency = "PAYPAL"
)

func (c Currency) String() string {
	return string(c)
}

// Source is the attribution tag for a persisted rate.
// Valid sources form a closed set: each registered primary source id,
// plus its "_derived" and "_cross" variants
type Source string

const (
	SourceBinanceP2P Source = "binance_p2p"
	SourceBCV        Source = "bcv"
)

const (
	derivedSuffix = "_derived"
	crossSuffix   = "_cross"
)

// primarySources is the registry of known primary source ids
var primarySources = map[Source]struct{}{
	SourceBinanceP2P: {},
	SourceBCV:        {},
}

func (s Source) String() string {
	return string(s)
}

// Derived returns the derived-rate attribution tag for the primary source
func (s Source) Derived() Source {
	return s + derivedSuffix
}

// Cross returns the cross-rate attribution tag for the primary source
func (s Source) Cross() Source {
	return s + crossSuffix
}

// Valid checks the source against the closed attribution set
func (s Source) Valid() bool {
	primary := Source(
		strings.TrimSuffix(
			strings.TrimSuffix(s.String(), derivedSuffix),
			crossSuffix,
		),
	)

	_, ok := primarySources[primary]

	return ok
}

// ExchangeRate is a single immutable rate record.
// Rate is the final price after any margin has been applied;
// margin parameters themselves are never stored.
// Corrections are made by inserting a new record, never by
// mutating an existing one
type ExchangeRate struct {
	CreatedAt time.Time `json:"created_at"`
	From      Currency  `json:"from"`
	To        Currency  `json:"to"`
	Source    Source    `json:"source"`
	Rate      float64   `json:"rate"`
}

// NewExchangeRate creates a validated exchange rate record.
// This is the only construction path that guarantees the
// record invariants hold
func NewExchangeRate(
	from Currency,
	to Currency,
	rate float64,
	source Source,
	createdAt time.Time,
) (*ExchangeRate, error) {
	r := &ExchangeRate{
		CreatedAt: createdAt.UTC(),
		From:      from,
		To:        to,
		Source:    source,
		Rate:      rate,
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	return r, nil
}

// Validate verifies the exchange rate record invariants
func (r *ExchangeRate) Validate() error {
	if strings.TrimSpace(r.From.String()) == "" {
		return fmt.Errorf("%w: empty from currency", ErrInvalidCurrency)
	}

	if strings.TrimSpace(r.To.String()) == "" {
		return fmt.Errorf("%w: empty to currency", ErrInvalidCurrency)
	}

	if r.From == r.To {
		return fmt.Errorf("%w: %s", ErrSamePair, r.From)
	}

	if r.Rate <= 0 {
		return fmt.Errorf("%w: %f", ErrInvalidRate, r.Rate)
	}

	if !r.Source.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSource, r.Source)
	}

	return nil
}

// Pair is a (from, to) currency pair
type Pair struct {
	From Currency `json:"from"`
	To   Currency `json:"to"`
}
