package server

import (
	"github.com/rs/xid"

	"github.com/remesas-ve/tasas/pipeline"
	"github.com/remesas-ve/tasas/storage/types"
)

type RatesResponse struct {
	Results []*types.ExchangeRate `json:"results"`
}

type SourcesResponse struct {
	Results []types.Source `json:"results"`
}

type CurrenciesResponse struct {
	Results []types.Currency `json:"results"`
}

// RunAcceptedResponse acknowledges a manual trigger.
// The run executes out-of-band; its outcome is polled by id
type RunAcceptedResponse struct {
	ID     xid.ID          `json:"id"`
	Status pipeline.Status `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
