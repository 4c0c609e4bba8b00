// Package bcv implements a quote source adapter for the BCV
// (Banco Central de Venezuela) reference rate page.
//
// Unlike the Binance P2P adapter, this venue has no JSON API:
// quotes are scraped out of the rendered HTML. Both venues sit
// behind the same scrape.Adapter capability, so the pipeline
// never special-cases either
package bcv

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/remesas-ve/tasas/scrape"
	"github.com/remesas-ve/tasas/storage/types"
)

var errInvalidRate = errors.New("invalid rate")

const defaultURL = "https://www.bcv.org.ve/"

// sectionIDs maps the hardcoded BCV page section IDs to currencies
var sectionIDs = map[string]types.Currency{
	"dolar": types.CurrencyUSD,
	"euro":  "EUR",
}

// Adapter scrapes USD/VES and EUR/VES reference rates
// from the BCV website
type Adapter struct {
	client *http.Client

	url     string
	timeout time.Duration

	mu sync.Mutex
}

// NewAdapter creates a new BCV website adapter instance
func NewAdapter(url string, timeout time.Duration) *Adapter {
	if url == "" {
		url = defaultURL
	}

	if timeout == 0 {
		timeout = time.Second * 30
	}

	return &Adapter{
		url:     url,
		timeout: timeout,
	}
}

func (a *Adapter) Name() string {
	return "BCV"
}

func (a *Adapter) Source() types.Source {
	return types.SourceBCV
}

// Initialize sets up the HTTP session and checks page reachability
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return nil
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // BCV serves a broken cert chain
	}

	client := &http.Client{
		Timeout:   a.timeout,
		Transport: tr,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.url, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: unable to create probe request: %w", scrape.ErrInit, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		client.CloseIdleConnections()

		return fmt.Errorf("%w: venue unreachable: %w", scrape.ErrInit, err)
	}

	_ = resp.Body.Close()

	a.client = client

	return nil
}

// FetchQuotes scrapes the reference page and emits one quote
// per recognized currency section
func (a *Adapter) FetchQuotes(ctx context.Context) ([]scrape.Quote, error) {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()

	if client == nil {
		return nil, fmt.Errorf("%w: adapter not initialized", scrape.ErrFetch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to create GET request: %w", scrape.ErrFetch, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to execute GET request: %w", scrape.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: invalid status code received: %d", scrape.ErrFetch, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to construct query doc: %w", scrape.ErrFetch, err)
	}

	var (
		observedAt = time.Now().UTC()
		quotes     = make([]scrape.Quote, 0, len(sectionIDs))
	)

	for id, currency := range sectionIDs {
		rate, err := fetchSectionRate(doc, id)
		if err != nil {
			// a missing section is not fatal, other sections still count
			continue
		}

		quotes = append(quotes, scrape.Quote{
			ObservedAt:      observedAt,
			BaseCurrency:    currency,
			CounterCurrency: types.CurrencyVES,
			Side:            scrape.SideSell,
			Price:           rate,
		})
	}

	return quotes, nil
}

// Shutdown releases the HTTP session. Idempotent
func (a *Adapter) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		return nil
	}

	a.client.CloseIdleConnections()
	a.client = nil

	return nil
}

// fetchSectionRate extracts the rate value from a currency section
func fetchSectionRate(doc *goquery.Document, sectionID string) (float64, error) {
	sel := doc.Find("#" + sectionID)

	if sel.Length() == 0 {
		return 0, fmt.Errorf("missing element #%s", sectionID)
	}

	txt := sel.Find(".col-sm-6.col-xs-6.centrado").First().Text()
	if strings.TrimSpace(txt) == "" {
		txt = sel.Find(".centrado").First().Text()
	}

	v, err := parseBCVNumber(strings.TrimSpace(txt))
	if err != nil {
		return 0, fmt.Errorf("unable to parse rate value for %s: %w", sectionID, err)
	}

	return math.Round(v*1e4) / 1e4, nil
}

// parseBCVNumber parses the rate number from the BCV website
func parseBCVNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errInvalidRate
	}

	// BCV typically uses comma as decimal separator and no thousands:
	// "1.234,56" -> "1234.56"
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse rate %q: %w", s, err)
	}

	return f, nil
}
