package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/remesas-ve/tasas/pipeline"
	"github.com/remesas-ve/tasas/storage/types"
)

var (
	errUnableToFetchRates      = errors.New("unable to fetch rates")
	errUnableToFetchCurrencies = errors.New("unable to fetch currencies")
	errUnableToFetchSources    = errors.New("unable to fetch sources")

	errInvalidRunID = errors.New("invalid run id")
	errRunNotFound  = errors.New("run not found")
	errRateNotFound = errors.New("no rate recorded for pair")
)

// TriggerRun enqueues a manual pipeline run.
// A single run occupies the pipeline; concurrent triggers are
// rejected, not queued
func (s *Server) TriggerRun(w http.ResponseWriter, _ *http.Request) {
	id, err := s.pipeline.Trigger()
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err)

			return
		}

		s.logger.Debug(
			"unable to trigger run",
			"err", err,
		)

		writeError(w, http.StatusInternalServerError, err)

		return
	}

	resp := &RunAcceptedResponse{
		ID:     id,
		Status: pipeline.StatusPending,
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// RunStatus fetches the report for a previously triggered run
func (s *Server) RunStatus(w http.ResponseWriter, r *http.Request) {
	id, err := xid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRunID)

		return
	}

	report, ok := s.pipeline.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, errRunNotFound)

		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ActiveRates fetches the latest record for every observed pair
func (s *Server) ActiveRates(w http.ResponseWriter, r *http.Request) {
	items, err := s.storage.ActiveRates(r.Context())
	if err != nil {
		s.logger.Debug(
			"unable to fetch rates",
			"err", err,
		)

		writeError(
			w,
			http.StatusInternalServerError,
			errUnableToFetchRates,
		)

		return
	}

	resp := &RatesResponse{
		Results: items,
	}

	writeJSON(w, http.StatusOK, resp)
}

// LatestRate fetches the most recent record for a single pair
func (s *Server) LatestRate(w http.ResponseWriter, r *http.Request) {
	from, err := parseCurrencySymbol(chi.URLParam(r, "from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	to, err := parseCurrencySymbol(chi.URLParam(r, "to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	rate, err := s.storage.LatestRate(r.Context(), from, to)
	if err != nil {
		s.logger.Debug(
			"unable to fetch rates",
			"err", err,
		)

		writeError(
			w,
			http.StatusInternalServerError,
			errUnableToFetchRates,
		)

		return
	}

	if rate == nil {
		writeError(w, http.StatusNotFound, errRateNotFound)

		return
	}

	writeJSON(w, http.StatusOK, rate)
}

func (s *Server) Sources(w http.ResponseWriter, r *http.Request) {
	items, err := s.storage.ListSources(r.Context())
	if err != nil {
		s.logger.Debug(
			"unable to fetch sources",
			"err", err,
		)

		writeError(
			w,
			http.StatusInternalServerError,
			errUnableToFetchSources,
		)

		return
	}

	resp := &SourcesResponse{
		Results: items,
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) Currencies(w http.ResponseWriter, r *http.Request) {
	items, err := s.storage.ListCurrencies(r.Context())
	if err != nil {
		s.logger.Debug(
			"unable to fetch currencies",
			"err", err,
		)

		writeError(
			w,
			http.StatusInternalServerError,
			errUnableToFetchCurrencies,
		)

		return
	}

	resp := &CurrenciesResponse{
		Results: items,
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseCurrencySymbol accepts 3 to 8 letter codes, covering both
// fiat ISO symbols and channel codes like ZELLE or PAYPAL
func parseCurrencySymbol(v string) (types.Currency, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	if len(s) < 3 || len(s) > 8 {
		return "", errors.New("invalid currency (must be 3-8 letters)")
	}

	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return "", errors.New("invalid currency (must be A-Z)")
		}
	}

	return types.Currency(s), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // Fine to ignore
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := &ErrorResponse{
		Error: err.Error(),
	}

	writeJSON(w, status, resp)
}
