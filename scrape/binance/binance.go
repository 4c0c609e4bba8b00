//nolint:tagliatelle // Binance API uses camel case
package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/remesas-ve/tasas/scrape"
	"github.com/remesas-ve/tasas/storage/types"
)

const defaultURL = "https://p2p.binance.com/bapi/c2c/v2/friendly/c2c/adv/search"

// searchRequest is the request body for the Binance P2P search API
type searchRequest struct {
	Asset       types.Currency `json:"asset"`
	Fiat        types.Currency `json:"fiat"`
	TradeType   string         `json:"tradeType"`
	PayTypes    []string       `json:"payTypes"`
	TransAmount float64        `json:"transAmount,omitempty"`
	Rows        int            `json:"rows"`
	Page        int            `json:"page"`
}

// searchResponse is the response from the Binance P2P search API
type searchResponse struct {
	Data []searchOffer `json:"data"`
}

type searchOffer struct {
	Adv        searchAdv        `json:"adv"`
	Advertiser searchAdvertiser `json:"advertiser"`
}

type searchAdv struct {
	Price                string `json:"price"`
	MinSingleTransAmount string `json:"minSingleTransAmount"`
	MaxSingleTransAmount string `json:"maxSingleTransAmount"`
	SurplusAmount        string `json:"surplusAmount"`
	TradableQuantity     string `json:"tradableQuantity"`
}

type searchAdvertiser struct {
	MonthOrderCount int     `json:"monthOrderCount"`
	MonthFinishRate float64 `json:"monthFinishRate"`
}

type offer struct {
	price      float64
	minLimit   float64
	maxLimit   float64
	available  float64
	orders     int
	finishRate float64
	quality    float64
}

// Config holds the venue parameters for a single
// (fiat, trade side, payment method) combination
type Config struct {
	Fiat        types.Currency
	Side        scrape.Side
	PayTypes    []string // venue payment method filters, e.g. "BANK", "PIX"
	TransAmount float64  // typical transaction amount in fiat, 0 to skip
	Timeout     time.Duration
	URL         string // overridable for testing
}

// Adapter fetches USDT quotes from the Binance P2P venue for one
// configured fiat, trade side and payment method combination
type Adapter struct {
	client *http.Client

	fiat        types.Currency
	side        scrape.Side
	payTypes    []string
	transAmount float64
	timeout     time.Duration
	url         string

	mu sync.Mutex
}

// NewAdapter creates a new Binance P2P adapter instance
func NewAdapter(cfg Config) *Adapter {
	url := cfg.URL
	if url == "" {
		url = defaultURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}

	return &Adapter{
		fiat:        cfg.Fiat,
		side:        cfg.Side,
		payTypes:    cfg.PayTypes,
		transAmount: cfg.TransAmount,
		timeout:     timeout,
		url:         url,
	}
}

func (a *Adapter) Name() string {
	return fmt.Sprintf("Binance P2P %s/%s %s", types.CurrencyUSDT, a.fiat, a.side)
}

func (a *Adapter) Source() types.Source {
	return types.SourceBinanceP2P
}

// Initialize sets up the HTTP session and probes venue reachability
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return nil
	}

	client := &http.Client{
		Timeout: a.timeout,
	}

	// Probe with a minimal search, so session problems surface
	// at init time instead of mid-run
	if _, err := fetchPage(ctx, client, a.url, a.probeRequest()); err != nil {
		client.CloseIdleConnections()

		return fmt.Errorf("%w: venue unreachable: %w", scrape.ErrInit, err)
	}

	a.client = client

	return nil
}

// FetchQuotes fetches and quality-filters venue offers, emitting one
// quote per surviving offer. An empty result is valid
func (a *Adapter) FetchQuotes(ctx context.Context) ([]scrape.Quote, error) {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()

	if client == nil {
		return nil, fmt.Errorf("%w: adapter not initialized", scrape.ErrFetch)
	}

	observedAt := time.Now().UTC()

	offers, err := a.fetchOffers(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scrape.ErrFetch, err)
	}

	offers = selectBestOffers(offers, a.side)

	paymentMethod := ""
	if len(a.payTypes) > 0 {
		paymentMethod = a.payTypes[0]
	}

	quotes := make([]scrape.Quote, 0, len(offers))

	for _, o := range offers {
		quotes = append(quotes, scrape.Quote{
			ObservedAt:      observedAt,
			BaseCurrency:    types.CurrencyUSDT,
			CounterCurrency: a.fiat,
			PaymentMethod:   paymentMethod,
			Side:            a.side,
			Price:           o.price,
		})
	}

	return quotes, nil
}

// Shutdown releases the HTTP session. Safe to call repeatedly,
// and after a failed Initialize
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

func (a *Adapter) probeRequest() searchRequest {
	return searchRequest{
		Asset:     types.CurrencyUSDT,
		Fiat:      a.fiat,
		TradeType: a.side.String(),
		PayTypes:  a.payTypes,
		Rows:      1,
		Page:      1,
	}
}

// fetchOffers queries Binance P2P and parses offers
func (a *Adapter) fetchOffers(
	ctx context.Context,
	client *http.Client,
) ([]offer, error) {
	offers := make([]offer, 0, 30)

	for page := 1; page <= 3; page++ {
		reqBody := searchRequest{
			Asset:       types.CurrencyUSDT,
			Fiat:        a.fiat,
			TradeType:   a.side.String(),
			PayTypes:    a.payTypes,
			TransAmount: a.transAmount,
			Rows:        10,
			Page:        page,
		}

		apiResp, err := fetchPage(ctx, client, a.url, reqBody)
		if err != nil {
			return nil, err
		}

		if len(apiResp.Data) == 0 {
			break
		}

		for _, raw := range apiResp.Data {
			price, ok := parseFloat(raw.Adv.Price)
			if !ok {
				continue
			}

			var (
				minLimit, _ = parseFloat(raw.Adv.MinSingleTransAmount)
				maxLimit, _ = parseFloat(raw.Adv.MaxSingleTransAmount)
			)

			available, ok := parseFloat(raw.Adv.SurplusAmount)
			if !ok {
				available, _ = parseFloat(raw.Adv.TradableQuantity)
			}

			var (
				finishRate = normalizeFinishRate(raw.Advertiser.MonthFinishRate)
				orders     = raw.Advertiser.MonthOrderCount
			)

			offers = append(offers, offer{
				price:      price,
				minLimit:   minLimit,
				maxLimit:   maxLimit,
				available:  available,
				orders:     orders,
				finishRate: finishRate,
				quality:    wilsonLowerBound(finishRate, orders),
			})
		}
	}

	return offers, nil
}

// fetchPage executes a single search request against the venue
func fetchPage(
	ctx context.Context,
	client *http.Client,
	url string,
	reqBody searchRequest,
) (*searchResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to create POST request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to execute POST request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("invalid status code received: %d", resp.StatusCode)
	}

	var apiResp searchResponse
	if err = json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("unable to decode response: %w", err)
	}

	return &apiResp, nil
}

// selectBestOffers filters offers by advertiser quality (strict, then
// relaxed if too few survive) and keeps the top 12 sorted by price,
// with quality as tiebreaker
func selectBestOffers(offers []offer, side scrape.Side) []offer {
	filtered := filterOffers(
		offers,
		50,
		0.95,
		50,
		100,
	)

	if len(filtered) < 12 {
		// Filter with relaxed criteria
		if relaxed := filterOffers(
			offers,
			20,
			0.90,
			50,
			100,
		); len(relaxed) > len(filtered) {
			filtered = relaxed
		}
	}

	if len(filtered) == 0 {
		// Fallback, use all offers as none match criteria
		filtered = offers
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].price != filtered[j].price {
			if side == scrape.SideBuy {
				return filtered[i].price < filtered[j].price
			}

			return filtered[i].price > filtered[j].price
		}

		return filtered[i].quality > filtered[j].quality
	})

	if len(filtered) > 12 {
		filtered = filtered[:12]
	}

	return filtered
}

// filterOffers applies quality and limit thresholds
func filterOffers(
	offers []offer,
	minOrders int,
	minFinish float64,
	minAvailable float64,
	typicalAmount float64,
) []offer {
	filtered := make([]offer, 0, len(offers))

	for _, o := range offers {
		if o.orders < minOrders {
			continue
		}

		if o.finishRate < minFinish {
			continue
		}

		if minAvailable > 0 && o.available > 0 && o.available < minAvailable {
			continue
		}

		if typicalAmount > 0 {
			if o.minLimit > 0 && typicalAmount < o.minLimit {
				continue
			}

			if o.maxLimit > 0 && typicalAmount > o.maxLimit {
				continue
			}
		}

		filtered = append(filtered, o)
	}

	return filtered
}

// normalizeFinishRate ensures finish rate is 0-1
func normalizeFinishRate(rate float64) float64 {
	if rate <= 0 {
		return 0
	}

	if rate > 1 {
		return rate / 100
	}

	return rate
}

// wilsonLowerBound returns a conservative completion score
func wilsonLowerBound(rate float64, n int) float64 {
	if n <= 0 {
		return 0
	}

	var (
		z           = 1.96
		denominator = 1 + z*z/float64(n)
		center      = rate + z*z/(2*float64(n))
		adjust      = z * math.Sqrt((rate*(1-rate)+z*z/(4*float64(n)))/float64(n))
	)

	return (center - adjust) / denominator
}

// parseFloat parses a float string into a value
func parseFloat(value string) (float64, bool) {
	if value == "" {
		return 0, false
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}

	return parsed, true
}
