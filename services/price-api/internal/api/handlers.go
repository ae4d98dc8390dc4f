// Package api exposes the price pipelines over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/paaavkata/market-dashboard/services/price-api/internal/aggregator"
	"github.com/paaavkata/market-dashboard/services/price-api/internal/fetcher"
	"github.com/paaavkata/market-dashboard/services/price-api/pkg/models"
	"github.com/paaavkata/market-dashboard/shared/pkg/nobitex"
)

const (
	msgPricesUnavailable = "Unable to fetch prices from Baha24"
	msgPricesFailed      = "Failed to fetch prices"
	msgNobitexFailed     = "Failed to fetch Nobitex prices"
	msgInvalidSymbol     = "Invalid symbol"
	msgTradesFailed      = "Failed to fetch trades"
)

type PricesSource interface {
	Get(ctx context.Context) (aggregator.Snapshot[models.CategorizedPrices], error)
}

type NobitexSource interface {
	Get(ctx context.Context) (aggregator.Snapshot[map[string]models.DerivedCryptoPrice], error)
}

type TradesSource interface {
	FetchTrades(ctx context.Context, symbol string) (json.RawMessage, error)
}

type Handler struct {
	prices  PricesSource
	nobitex NobitexSource
	trades  TradesSource
	logger  *logrus.Logger
}

func NewHandler(prices PricesSource, nobitex NobitexSource, trades TradesSource, logger *logrus.Logger) *Handler {
	return &Handler{
		prices:  prices,
		nobitex: nobitex,
		trades:  trades,
		logger:  logger,
	}
}

func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.prices.Get(r.Context())
	if err != nil {
		status, msg := http.StatusInternalServerError, msgPricesFailed
		if fetcher.IsUpstreamFailure(err) {
			status, msg = http.StatusServiceUnavailable, msgPricesUnavailable
		}
		requestLogger(r, h.logger).WithError(err).WithField("status", status).Error("Failed to serve prices")
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, models.PricesResponse{
		CategorizedPrices: snapshot.Data,
		LastUpdated:       models.FormatTime(snapshot.Timestamp),
	})
}

func (h *Handler) GetNobitex(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.nobitex.Get(r.Context())
	if err != nil {
		requestLogger(r, h.logger).WithError(err).Error("Failed to serve Nobitex prices")
		writeError(w, http.StatusInternalServerError, msgNobitexFailed)
		return
	}

	writeJSON(w, http.StatusOK, models.NobitexResponse{
		Status:      nobitex.StatusOK,
		Prices:      snapshot.Data,
		LastUpdated: models.FormatTime(snapshot.Timestamp),
	})
}

// GetTrades relays the upstream trades document unchanged.
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")

	body, err := h.trades.FetchTrades(r.Context(), symbol)
	if err != nil {
		logger := requestLogger(r, h.logger).WithError(err).WithField("symbol", symbol)
		if errors.Is(err, fetcher.ErrInvalidSymbol) {
			logger.Debug("Rejected trades request")
			writeError(w, http.StatusBadRequest, msgInvalidSymbol)
			return
		}
		logger.Error("Failed to serve trades")
		writeError(w, http.StatusInternalServerError, msgTradesFailed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Message: msg})
}
