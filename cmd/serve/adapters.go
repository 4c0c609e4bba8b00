package serve

import (
	"time"

	pipelineconfig "github.com/remesas-ve/tasas/pipeline/config"
	"github.com/remesas-ve/tasas/scrape"
	"github.com/remesas-ve/tasas/scrape/bcv"
	"github.com/remesas-ve/tasas/scrape/binance"
)

// defaultAdapters builds the venue adapter pool for the configured
// pairs: one Binance P2P adapter per (fiat, side), plus the BCV
// reference adapter when enabled
func defaultAdapters(cfg *pipelineconfig.Config) []scrape.Adapter {
	adapters := make([]scrape.Adapter, 0, len(cfg.Pairs)*2+1)

	for _, pair := range cfg.Pairs {
		for _, side := range []scrape.Side{scrape.SideBuy, scrape.SideSell} {
			adapters = append(adapters, binance.NewAdapter(binance.Config{
				Fiat:        pair.Fiat,
				Side:        side,
				PayTypes:    pair.PayTypes,
				TransAmount: pair.TransAmount,
				Timeout:     time.Second * 30,
			}))
		}
	}

	if cfg.ScrapeBCV {
		adapters = append(
			adapters,
			bcv.NewAdapter("", time.Second*30),
		)
	}

	return adapters
}
