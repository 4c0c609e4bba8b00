package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remesas-ve/tasas/pipeline"
	"github.com/remesas-ve/tasas/storage/mock"
	"github.com/remesas-ve/tasas/storage/types"
)

type (
	triggerDelegate func() (xid.ID, error)
	statusDelegate  func(xid.ID) (pipeline.Report, bool)
)

type mockPipeline struct {
	triggerFn triggerDelegate
	statusFn  statusDelegate
}

func (m *mockPipeline) Trigger() (xid.ID, error) {
	if m.triggerFn != nil {
		return m.triggerFn()
	}

	return xid.New(), nil
}

func (m *mockPipeline) Status(id xid.ID) (pipeline.Report, bool) {
	if m.statusFn != nil {
		return m.statusFn(id)
	}

	return pipeline.Report{}, false
}

func TestHandlers_TriggerRun(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		expectedID := xid.New()

		s := &Server{
			logger: noopLogger,
			pipeline: &mockPipeline{
				triggerFn: func() (xid.ID, error) {
					return expectedID, nil
				},
			},
		}

		req := httptest.NewRequest(http.MethodPost, "/v1/runs", http.NoBody)

		w := httptest.NewRecorder()
		s.TriggerRun(w, req)

		require.Equal(t, http.StatusAccepted, w.Code)

		var resp RunAcceptedResponse

		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, expectedID, resp.ID)
		assert.Equal(t, pipeline.StatusPending, resp.Status)
	})

	t.Run("run already in progress", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			pipeline: &mockPipeline{
				triggerFn: func() (xid.ID, error) {
					return xid.NilID(), pipeline.ErrRunInProgress
				},
			},
		}

		req := httptest.NewRequest(http.MethodPost, "/v1/runs", http.NoBody)

		w := httptest.NewRecorder()
		s.TriggerRun(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestHandlers_RunStatus(t *testing.T) {
	t.Parallel()

	t.Run("invalid run id", func(t *testing.T) {
		t.Parallel()

		var called bool

		s := &Server{
			logger: noopLogger,
			pipeline: &mockPipeline{
				statusFn: func(_ xid.ID) (pipeline.Report, bool) {
					called = true

					return pipeline.Report{}, false
				},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/v1/runs/not-an-id", http.NoBody)
		req = withRouteParams(t, req, map[string]string{
			"id": "not-an-id",
		})

		w := httptest.NewRecorder()
		s.RunStatus(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, called)
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger:   noopLogger,
			pipeline: &mockPipeline{},
		}

		id := xid.New()

		req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+id.String(), http.NoBody)
		req = withRouteParams(t, req, map[string]string{
			"id": id.String(),
		})

		w := httptest.NewRecorder()
		s.RunStatus(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("terminal run report", func(t *testing.T) {
		t.Parallel()

		var (
			id = xid.New()

			expected = pipeline.Report{
				ID:           id,
				Status:       pipeline.StatusSucceeded,
				RatesWritten: 9,
				StartedAt:    time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC),
				FinishedAt:   time.Date(2026, time.March, 5, 12, 0, 4, 0, time.UTC),
			}
		)

		s := &Server{
			logger: noopLogger,
			pipeline: &mockPipeline{
				statusFn: func(queried xid.ID) (pipeline.Report, bool) {
					require.Equal(t, id, queried)

					return expected, true
				},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+id.String(), http.NoBody)
		req = withRouteParams(t, req, map[string]string{
			"id": id.String(),
		})

		w := httptest.NewRecorder()
		s.RunStatus(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var report pipeline.Report

		require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
		assert.Equal(t, expected.Status, report.Status)
		assert.Equal(t, expected.RatesWritten, report.RatesWritten)
	})
}

func TestHandlers_LatestRate(t *testing.T) {
	t.Parallel()

	t.Run("invalid currency", func(t *testing.T) {
		t.Parallel()

		var called bool

		storage := &mock.Storage{
			LatestRateFn: func(
				_ context.Context,
				_ types.Currency,
				_ types.Currency,
			) (*types.ExchangeRate, error) {
				called = true

				return nil, nil
			},
		}

		s := &Server{
			storage: storage,
			logger:  noopLogger,
		}

		req := httptest.NewRequest(http.MethodGet, "/v1/rates/V3S/USDT", http.NoBody)
		req = withRouteParams(t, req, map[string]string{
			"from": "V3S",
			"to":   types.CurrencyUSDT.String(),
		})

		w := httptest.NewRecorder()
		s.LatestRate(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, called)
	})

	t.Run("storage error", func(t *testing.T) {
		t.Parallel()

		storage := &mock.Storage{
			LatestRateFn: func(
				_ context.Context,
				_ types.Currency,
				_ types.Currency,
			) (*types.ExchangeRate, error) {
				return nil, errors.New("boom")
			},
		}

		s := &Server{
			storage: storage,
			logger:  noopLogger,
		}

		req := newPairRequest(t, types.CurrencyVES, types.CurrencyUSDT)

		w := httptest.NewRecorder()
		s.LatestRate(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("pair never observed", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			storage: &mock.Storage{},
			logger:  noopLogger,
		}

		req := newPairRequest(t, types.CurrencyVES, types.CurrencyUSDT)

		w := httptest.NewRecorder()
		s.LatestRate(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		var (
			capturedFrom types.Currency
			capturedTo   types.Currency

			expected = &types.ExchangeRate{
				From:      types.CurrencyVES,
				To:        types.CurrencyUSDT,
				Rate:      45.50,
				Source:    types.SourceBinanceP2P,
				CreatedAt: time.Now().UTC(),
			}
		)

		storage := &mock.Storage{
			LatestRateFn: func(
				_ context.Context,
				from types.Currency,
				to types.Currency,
			) (*types.ExchangeRate, error) {
				capturedFrom = from
				capturedTo = to

				return expected, nil
			},
		}

		s := &Server{
			storage: storage,
			logger:  noopLogger,
		}

		// Lowercase symbols are normalized before the lookup
		req := httptest.NewRequest(http.MethodGet, "/v1/rates/ves/usdt", http.NoBody)
		req = withRouteParams(t, req, map[string]string{
			"from": "ves",
			"to":   "usdt",
		})

		w := httptest.NewRecorder()
		s.LatestRate(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, types.CurrencyVES, capturedFrom)
		assert.Equal(t, types.CurrencyUSDT, capturedTo)

		var rate types.ExchangeRate

		require.NoError(t, json.NewDecoder(w.Body).Decode(&rate))
		assert.Equal(t, expected.From, rate.From)
		assert.Equal(t, expected.To, rate.To)
		assert.InDelta(t, expected.Rate, rate.Rate, 1e-9)
		assert.Equal(t, expected.Source, rate.Source)
	})
}

func TestHandlers_ActiveRates(t *testing.T) {
	t.Parallel()

	t.Run("storage error", func(t *testing.T) {
		t.Parallel()

		storage := &mock.Storage{
			ActiveRatesFn: func(_ context.Context) ([]*types.ExchangeRate, error) {
				return nil, errors.New("boom")
			},
		}

		s := &Server{
			storage: storage,
			logger:  noopLogger,
		}

		req := httptest.NewRequest(http.MethodGet, "/v1/rates/active", http.NoBody)

		w := httptest.NewRecorder()
		s.ActiveRates(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		storage := &mock.Storage{
			ActiveRatesFn: func(_ context.Context) ([]*types.ExchangeRate, error) {
				return []*types.ExchangeRate{
					{
						From:   types.CurrencyVES,
						To:     types.CurrencyUSDT,
						Rate:   45.50,
						Source: types.SourceBinanceP2P,
					},
					{
						From:   types.CurrencyZELLE,
						To:     types.CurrencyVES,
						Rate:   49.14,
						Source: types.SourceBinanceP2P.Derived(),
					},
				}, nil
			},
		}

		s := &Server{
			storage: storage,
			logger:  noopLogger,
		}

		req := httptest.NewRequest(http.MethodGet, "/v1/rates/active", http.NoBody)

		w := httptest.NewRecorder()
		s.ActiveRates(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp RatesResponse

		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Len(t, resp.Results, 2)
		assert.Equal(t, types.SourceBinanceP2P.Derived(), resp.Results[1].Source)
	})
}

func TestHandlers_Listings(t *testing.T) {
	t.Parallel()

	t.Run("sources", func(t *testing.T) {
		t.Parallel()

		storage := &mock.Storage{
			ListSourcesFn: func(_ context.Context) ([]types.Source, error) {
				return []types.Source{
					types.SourceBinanceP2P,
					types.SourceBinanceP2P.Cross(),
				}, nil
			},
		}

		s := &Server{
			storage: storage,
			logger:  noopLogger,
		}

		req := httptest.NewRequest(http.MethodGet, "/v1/sources", http.NoBody)

		w := httptest.NewRecorder()
		s.Sources(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp SourcesResponse

		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(
			t,
			[]types.Source{
				types.SourceBinanceP2P,
				types.SourceBinanceP2P.Cross(),
			},
			resp.Results,
		)
	})

	t.Run("currencies", func(t *testing.T) {
		t.Parallel()

		storage := &mock.Storage{
			ListCurrenciesFn: func(_ context.Context) ([]types.Currency, error) {
				return []types.Currency{
					types.CurrencyUSDT,
					types.CurrencyVES,
				}, nil
			},
		}

		s := &Server{
			storage: storage,
			logger:  noopLogger,
		}

		req := httptest.NewRequest(http.MethodGet, "/v1/currencies", http.NoBody)

		w := httptest.NewRecorder()
		s.Currencies(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp CurrenciesResponse

		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(
			t,
			[]types.Currency{
				types.CurrencyUSDT,
				types.CurrencyVES,
			},
			resp.Results,
		)
	})

	t.Run("sources storage error", func(t *testing.T) {
		t.Parallel()

		storage := &mock.Storage{
			ListSourcesFn: func(_ context.Context) ([]types.Source, error) {
				return nil, errors.New("boom")
			},
		}

		s := &Server{
			storage: storage,
			logger:  noopLogger,
		}

		req := httptest.NewRequest(http.MethodGet, "/v1/sources", http.NoBody)

		w := httptest.NewRecorder()
		s.Sources(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func withRouteParams(
	t *testing.T,
	req *http.Request,
	params map[string]string,
) *http.Request {
	t.Helper()

	rctx := chi.NewRouteContext()

	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}

	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func newPairRequest(
	t *testing.T,
	from types.Currency,
	to types.Currency,
) *http.Request {
	t.Helper()

	target := "/v1/rates/" + from.String() + "/" + to.String()

	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)

	return withRouteParams(t, req, map[string]string{
		"from": from.String(),
		"to":   to.String(),
	})
}
