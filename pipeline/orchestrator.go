package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/remesas-ve/tasas/pipeline/config"
	"github.com/remesas-ve/tasas/rates"
	"github.com/remesas-ve/tasas/scrape"
	"github.com/remesas-ve/tasas/storage"
	"github.com/remesas-ve/tasas/storage/types"
)

// Orchestrator owns the adapter pool and sequences one run:
// acquisition, derivation, synthesis, persistence.
// Individual adapter failures are recovered and bookkept,
// never aborting the run
type Orchestrator struct {
	gateway  *storage.Gateway
	cfg      *config.Config
	adapters []scrape.Adapter

	logger  *slog.Logger
	metrics *Metrics

	shutdownTimeout time.Duration
}

// NewOrchestrator creates a new run orchestrator over the adapter pool
func NewOrchestrator(
	gateway *storage.Gateway,
	cfg *config.Config,
	adapters []scrape.Adapter,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		gateway:         gateway,
		cfg:             cfg,
		adapters:        adapters,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		shutdownTimeout: time.Second * 10,
	}

	// Apply the options
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Execute runs one full acquisition -> derivation -> synthesis ->
// persistence cycle and returns the aggregate outcome.
// The caller is responsible for run-level mutual exclusion
func (o *Orchestrator) Execute(ctx context.Context) *Outcome {
	var (
		out = &Outcome{}
		now = time.Now().UTC()

		results = o.collectQuotes(ctx)

		bases           []*types.ExchangeRate
		adapterFailures int
		allProduced     = true
	)

	for _, res := range results {
		if res.err != nil {
			adapterFailures++
			allProduced = false

			out.Errors = append(
				out.Errors,
				fmt.Errorf("adapter %s: %w", res.name, res.err),
			)

			o.metrics.observeAdapterFailure(res.name)

			o.logger.Error(
				"adapter failed",
				"adapter", res.name,
				"err", res.err,
			)

			continue
		}

		if len(res.quotes) == 0 {
			// valid, if degenerate: no base rate from this adapter
			allProduced = false

			o.logger.Warn(
				"adapter produced no quotes",
				"adapter", res.name,
			)

			continue
		}

		adapterBases, errs := baseRates(res.quotes, res.source, now)
		for _, err := range errs {
			out.Errors = append(
				out.Errors,
				fmt.Errorf("adapter %s: %w", res.name, err),
			)
		}

		bases = append(bases, adapterBases...)
	}

	// A cancelled run still went through the adapter shutdown phase,
	// but none of its partially-complete output is persisted
	if ctx.Err() != nil {
		out.Errors = append(out.Errors, ctx.Err())
		out.Status = StatusFailed

		o.metrics.observeRun(out.Status)

		return out
	}

	// Derive retail-channel rates from this run's bases
	derived, deriveErrs := rates.DeriveAll(bases, o.cfg.Anchor, o.cfg.Margins, now)
	for _, err := range deriveErrs {
		out.Errors = append(out.Errors, err)

		o.logger.Warn("derivation skipped", "err", err)
	}

	// Synthesize cross rates, this run's legs only
	crossed, crossErrs := rates.CrossAll(bases, o.cfg.Anchor, o.monitoredFiats(), now)
	for _, err := range crossErrs {
		out.Errors = append(out.Errors, err)

		o.logger.Warn("cross synthesis skipped", "err", err)
	}

	var (
		candidates  = make([]*types.ExchangeRate, 0, len(bases)+len(derived)+len(crossed))
		writeErrors int
	)

	candidates = append(candidates, bases...)
	candidates = append(candidates, derived...)
	candidates = append(candidates, crossed...)

	for _, candidate := range candidates {
		if err := o.gateway.Write(ctx, candidate); err != nil {
			writeErrors++

			out.Errors = append(out.Errors, err)

			o.logger.Error(
				"unable to persist rate candidate",
				"from", candidate.From,
				"to", candidate.To,
				"source", candidate.Source,
				"err", err,
			)

			continue
		}

		out.RatesWritten++

		o.metrics.observePersisted(candidate.Source.String())

		o.logger.Info(
			"saved exchange rate",
			"from", candidate.From,
			"to", candidate.To,
			"rate", candidate.Rate,
			"source", candidate.Source,
		)
	}

	switch {
	case out.RatesWritten == 0:
		out.Status = StatusFailed
	case adapterFailures == 0 && allProduced && writeErrors == 0:
		out.Status = StatusSucceeded
	default:
		out.Status = StatusPartial
	}

	o.metrics.observeRun(out.Status)

	return out
}

// monitoredFiats returns the configured fiat set, used to detect
// missing cross-rate legs
func (o *Orchestrator) monitoredFiats() []types.Currency {
	fiats := make([]types.Currency, 0, len(o.cfg.Pairs))

	for _, pair := range o.cfg.Pairs {
		fiats = append(fiats, pair.Fiat)
	}

	return fiats
}

// fetchResult is the outcome of one adapter's acquisition
type fetchResult struct {
	err    error
	name   string
	source types.Source
	quotes []scrape.Quote
}

// collectQuotes fans out to all adapters concurrently and waits for
// every one to finish (or fail). Each adapter is bulkheaded:
// its failure is captured in its own result
func (o *Orchestrator) collectQuotes(ctx context.Context) []fetchResult {
	var (
		resCh = make(chan fetchResult, len(o.adapters))

		wg sync.WaitGroup
	)

	for _, adapter := range o.adapters {
		wg.Add(1)

		go func(a scrape.Adapter) {
			defer wg.Done()

			resCh <- o.fetchOne(ctx, a)
		}(adapter)
	}

	wg.Wait()
	close(resCh)

	results := make([]fetchResult, 0, len(o.adapters))
	for res := range resCh {
		results = append(results, res)
	}

	// Stable order for outcome bookkeeping
	sort.Slice(results, func(i, j int) bool {
		return results[i].name < results[j].name
	})

	return results
}

// fetchOne runs a single adapter's initialize / fetch cycle.
// Shutdown is attempted on every exit path, detached from the run
// context so cancellation cannot skip resource release
func (o *Orchestrator) fetchOne(ctx context.Context, a scrape.Adapter) (res fetchResult) {
	res = fetchResult{
		name:   a.Name(),
		source: a.Source(),
	}

	defer func() {
		shutdownCtx, cancelFn := context.WithTimeout(
			context.WithoutCancel(ctx),
			o.shutdownTimeout,
		)
		defer cancelFn()

		if err := a.Shutdown(shutdownCtx); err != nil {
			o.logger.Error(
				"adapter shutdown failed",
				"adapter", res.name,
				"err", err,
			)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("adapter panic: %v", r)
		}
	}()

	if err := a.Initialize(ctx); err != nil {
		res.err = err

		return res
	}

	quotes, err := a.FetchQuotes(ctx)
	if err != nil {
		res.err = err

		return res
	}

	res.quotes = quotes

	return res
}

// baseRates reduces an adapter's quotes into base rate records,
// one per observed (pair, side) combination, using the median price.
// BUY side quotes map to fiat->asset records, SELL side to
// asset->fiat, mirroring the venue's price orientation
func baseRates(
	quotes []scrape.Quote,
	source types.Source,
	createdAt time.Time,
) ([]*types.ExchangeRate, []error) {
	type group struct {
		base, counter types.Currency
		side          scrape.Side
	}

	grouped := make(map[group][]float64)

	for _, q := range quotes {
		g := group{
			base:    q.BaseCurrency,
			counter: q.CounterCurrency,
			side:    q.Side,
		}

		grouped[g] = append(grouped[g], q.Price)
	}

	var (
		out  []*types.ExchangeRate
		errs []error
	)

	for g, prices := range grouped {
		var from, to types.Currency

		if g.side == scrape.SideBuy {
			from, to = g.counter, g.base
		} else {
			from, to = g.base, g.counter
		}

		price := math.Round(median(prices)*1e4) / 1e4

		rate, err := types.NewExchangeRate(from, to, price, source, createdAt)
		if err != nil {
			errs = append(
				errs,
				fmt.Errorf("base rate %s->%s: %w", from, to, err),
			)

			continue
		}

		out = append(out, rate)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From.String() < out[j].From.String()
		}

		return out[i].To.String() < out[j].To.String()
	})

	return out, errs
}

// median calculates the median of a slice of float64 values
func median(values []float64) float64 {
	sort.Float64s(values)

	n := len(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}

	return values[n/2]
}
