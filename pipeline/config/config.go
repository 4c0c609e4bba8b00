package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml"

	"github.com/remesas-ve/tasas/rates"
	"github.com/remesas-ve/tasas/storage/types"
)

// DefaultIntervalSeconds is the periodic scrape interval.
// This value is the single source of truth for run cadence
const DefaultIntervalSeconds = 300

// DefaultLockTTLSeconds is the run lock lease duration; a crashed
// worker's lease expires after this long
const DefaultLockTTLSeconds = 600

var (
	ErrInvalidInterval = errors.New("invalid scrape interval")
	ErrInvalidLockTTL  = errors.New("invalid lock TTL")
	ErrInvalidAnchor   = errors.New("invalid anchor currency")
	ErrNoPairs         = errors.New("no monitored pairs configured")
)

// Pair is a single monitored fiat with its venue parameters
type Pair struct {
	Fiat        types.Currency `toml:"fiat"`
	PayTypes    []string       `toml:"pay_types"`
	TransAmount float64        `toml:"trans_amount"`
}

// Config defines the pipeline configuration: the margin schedule,
// the monitored currency pairs and the run cadence
type Config struct {
	// Margins maps retail channel names to their configured margin
	Margins map[string]rates.Margin `toml:"margins"`

	// Anchor is the triangulation currency for cross rates
	Anchor types.Currency `toml:"anchor"`

	// Pairs are the monitored fiat currencies and their venue filters
	Pairs []Pair `toml:"pairs"`

	// IntervalSeconds is the periodic scrape interval
	IntervalSeconds int64 `toml:"interval_seconds"`

	// LockTTLSeconds is the run lock lease duration
	LockTTLSeconds int64 `toml:"lock_ttl_seconds"`

	// ScrapeBCV enables the BCV reference rate adapter
	ScrapeBCV bool `toml:"scrape_bcv"`
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() *Config {
	return &Config{
		Margins: map[string]rates.Margin{
			"zelle": {
				Percent:   8,
				Direction: rates.DirectionInflate,
			},
			"paypal": {
				Percent:   12,
				Direction: rates.DirectionInflate,
			},
		},
		Anchor: types.CurrencyUSDT,
		Pairs: []Pair{
			{
				Fiat:        types.CurrencyVES,
				PayTypes:    []string{"BANK", "SpecificBank"},
				TransAmount: 20000,
			},
			{
				Fiat:        types.CurrencyCOP,
				PayTypes:    []string{"BancolombiaSA"},
				TransAmount: 500000,
			},
			{
				Fiat:        types.CurrencyBRL,
				PayTypes:    []string{"PIX"},
				TransAmount: 500,
			},
		},
		IntervalSeconds: DefaultIntervalSeconds,
		LockTTLSeconds:  DefaultLockTTLSeconds,
		ScrapeBCV:       true,
	}
}

// ValidateConfig validates the pipeline configuration
func ValidateConfig(cfg *Config) error {
	if cfg.IntervalSeconds <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, cfg.IntervalSeconds)
	}

	if cfg.LockTTLSeconds <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLockTTL, cfg.LockTTLSeconds)
	}

	if cfg.Anchor == "" {
		return ErrInvalidAnchor
	}

	if len(cfg.Pairs) == 0 {
		return ErrNoPairs
	}

	for name, margin := range cfg.Margins {
		if err := margin.Validate(); err != nil {
			return fmt.Errorf("channel %q: %w", name, err)
		}
	}

	return nil
}

// Read reads the configuration from the given path
func Read(path string) (*Config, error) {
	// Read the config file
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Parse it
	var cfg Config

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
