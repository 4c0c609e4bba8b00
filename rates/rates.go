// Package rates holds the pure rate math of the pipeline: margin
// derivation for retail channels and fiat-to-fiat cross synthesis
// through an anchor currency. Nothing in this package performs I/O
package rates

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/remesas-ve/tasas/storage/types"
)

var (
	ErrInvalidMargin     = errors.New("margin percentage out of bounds")
	ErrInvalidBase       = errors.New("base rate must be positive")
	ErrMissingAnchorRate = errors.New("missing anchor rate leg")
)

// MaxMarginPercent is the sanity bound for configured margins
const MaxMarginPercent = 50

// Direction determines how a channel margin is applied:
// inflating the base quote, or deflating its inverse
type Direction string

const (
	DirectionInflate Direction = "inflate"
	DirectionDeflate Direction = "deflate"
)

// Margin is the configured adjustment for a single retail channel
type Margin struct {
	Direction Direction `toml:"direction"`
	Percent   float64   `toml:"percent"`
}

// Validate checks the margin configuration sanity bounds
func (m Margin) Validate() error {
	if m.Percent < 0 || m.Percent > MaxMarginPercent {
		return fmt.Errorf("%w: %f", ErrInvalidMargin, m.Percent)
	}

	if m.Direction != DirectionInflate && m.Direction != DirectionDeflate {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidMargin, m.Direction)
	}

	return nil
}

// Derive applies a channel margin to a base rate.
// Inflate yields base*(1+p/100), deflate yields base/(1+p/100).
// Both are monotonic in p
func Derive(base float64, m Margin) (float64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}

	if base <= 0 {
		return 0, fmt.Errorf("%w: %f", ErrInvalidBase, base)
	}

	factor := 1 + m.Percent/100

	if m.Direction == DirectionInflate {
		return base * factor, nil
	}

	return base / factor, nil
}

// Synthesize triangulates two same-anchor legs (X→anchor = r1,
// Y→anchor = r2) into the direct rate X→Y = r1/r2. A non-positive
// leg counts as absent
func Synthesize(r1, r2 float64) (float64, error) {
	if r1 <= 0 || r2 <= 0 {
		return 0, ErrMissingAnchorRate
	}

	return r1 / r2, nil
}

// DeriveAll maps the run's base rates through the margin schedule,
// producing one derived candidate per applicable (base, channel) pair.
//
// Inflate-direction channels apply to anchor→fiat bases and produce
// channel→fiat candidates; deflate-direction channels apply to
// fiat→anchor bases and produce fiat→channel candidates.
// A bad schedule entry skips its own outputs only
func DeriveAll(
	bases []*types.ExchangeRate,
	anchor types.Currency,
	schedule map[string]Margin,
	createdAt time.Time,
) ([]*types.ExchangeRate, []error) {
	var (
		candidates []*types.ExchangeRate
		errs       []error
	)

	// Deterministic channel order
	channels := make([]string, 0, len(schedule))
	for name := range schedule {
		channels = append(channels, name)
	}

	sort.Strings(channels)

	for _, name := range channels {
		var (
			margin          = schedule[name]
			channelCurrency = types.Currency(strings.ToUpper(name))
		)

		for _, base := range bases {
			var from, to types.Currency

			switch margin.Direction {
			case DirectionInflate:
				if base.From != anchor {
					continue
				}

				from, to = channelCurrency, base.To
			case DirectionDeflate:
				if base.To != anchor {
					continue
				}

				from, to = base.From, channelCurrency
			default:
				// caught by Derive below
			}

			adjusted, err := Derive(base.Rate, margin)
			if err != nil {
				errs = append(
					errs,
					fmt.Errorf("channel %q: %w", name, err),
				)

				break // the schedule entry is bad for every base
			}

			candidate, err := types.NewExchangeRate(
				from,
				to,
				adjusted,
				base.Source.Derived(),
				createdAt,
			)
			if err != nil {
				errs = append(
					errs,
					fmt.Errorf("channel %q: %w", name, err),
				)

				continue
			}

			candidates = append(candidates, candidate)
		}
	}

	return candidates, errs
}

// CrossAll triangulates every ordered fiat pair through the anchor,
// using only this run's fiat→anchor legs. Fiats in the expected set
// without a leg are reported as missing and their crosses skipped;
// stale data from prior runs never fills in.
// Triangulation is single-hop and single-anchor, and legs only
// combine within the same primary source
func CrossAll(
	bases []*types.ExchangeRate,
	anchor types.Currency,
	expected []types.Currency,
	createdAt time.Time,
) ([]*types.ExchangeRate, []error) {
	var (
		candidates []*types.ExchangeRate
		errs       []error
	)

	type leg struct {
		source types.Source
		rate   float64
	}

	legs := make(map[types.Currency]leg)

	for _, base := range bases {
		if base.To != anchor {
			continue
		}

		legs[base.From] = leg{
			source: base.Source,
			rate:   base.Rate,
		}
	}

	for _, fiat := range expected {
		if _, ok := legs[fiat]; !ok {
			errs = append(
				errs,
				fmt.Errorf("%w: %s->%s", ErrMissingAnchorRate, fiat, anchor),
			)
		}
	}

	// Deterministic pair order
	fiats := make([]types.Currency, 0, len(legs))
	for fiat := range legs {
		fiats = append(fiats, fiat)
	}

	sort.Slice(fiats, func(i, j int) bool {
		return fiats[i].String() < fiats[j].String()
	})

	for _, x := range fiats {
		for _, y := range fiats {
			if x == y {
				continue
			}

			var (
				legX = legs[x]
				legY = legs[y]
			)

			if legX.source != legY.source {
				continue
			}

			rate, err := Synthesize(legX.rate, legY.rate)
			if err != nil {
				errs = append(
					errs,
					fmt.Errorf("cross %s->%s: %w", x, y, err),
				)

				continue
			}

			candidate, err := types.NewExchangeRate(
				x,
				y,
				rate,
				legX.source.Cross(),
				createdAt,
			)
			if err != nil {
				errs = append(
					errs,
					fmt.Errorf("cross %s->%s: %w", x, y, err),
				)

				continue
			}

			candidates = append(candidates, candidate)
		}
	}

	return candidates, errs
}
