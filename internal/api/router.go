// Package api provides the HTTP API of the trading service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/gateway"
	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/model"
	"trading-advisorv1/internal/portfolio"
	"trading-advisorv1/internal/report"
)

const (
	defaultTxLimit = 100
	maxTxLimit     = 1000
)

// Backend is what the API reads from.
type Backend interface {
	Snapshot() ledger.Snapshot
	Transactions(ctx context.Context, ticker string, limit int) ([]model.Transaction, error)
	LatestReport() (*report.CycleReport, bool)
	LatestPrices() map[string]decimal.Decimal
	RiskStatus() portfolio.RiskStatus
}

// AdviceHistory serves past advice payloads, newest first.
type AdviceHistory interface {
	AdviceHistory(ctx context.Context, ticker string, limit int) ([]json.RawMessage, error)
}

// Options are the optional surfaces mounted next to the core routes.
type Options struct {
	Hub     *gateway.Hub  // websocket stream under /api/v1/stream
	History AdviceHistory // Redis-backed advice history
	Health  http.Handler  // detailed health; a static "ok" otherwise
}

// PortfolioResponse is the body of GET /api/v1/portfolio.
type PortfolioResponse struct {
	Cash           decimal.Decimal            `json:"cash"`
	TotalValue     decimal.Decimal            `json:"total_value"`
	Positions      []model.Position           `json:"positions"`
	ShortPositions []model.ShortPosition      `json:"short_positions"`
	Prices         map[string]decimal.Decimal `json:"prices"`
	PnL            portfolio.PnLSummary       `json:"pnl"`
	WinRate        float64                    `json:"win_rate"`
	Risk           portfolio.RiskStatus       `json:"risk"`
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(b Backend, opts Options) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			opts.Health.ServeHTTP(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/v1/portfolio", func(w http.ResponseWriter, r *http.Request) {
		txs, err := b.Transactions(r.Context(), "", 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		snap := b.Snapshot()
		prices := b.LatestPrices()
		pnl := portfolio.Summarize(txs, snap, prices)

		resp := PortfolioResponse{
			Cash:           snap.Cash,
			TotalValue:     snap.TotalValue(prices),
			Positions:      nonNil(snap.Longs),
			ShortPositions: nonNil(snap.Shorts),
			Prices:         prices,
			PnL:            pnl,
			WinRate:        pnl.WinRate(),
			Risk:           b.RiskStatus(),
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /api/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ticker := strings.ToUpper(r.URL.Query().Get("ticker"))
		txs, err := b.Transactions(r.Context(), ticker, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(txs))
	})

	mux.HandleFunc("GET /api/v1/reports/latest", func(w http.ResponseWriter, r *http.Request) {
		rep, ok := b.LatestReport()
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("no cycle has completed yet"))
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})

	mux.HandleFunc("GET /api/v1/advice/history", func(w http.ResponseWriter, r *http.Request) {
		if opts.History == nil {
			writeError(w, http.StatusServiceUnavailable, errors.New("advice history requires Redis"))
			return
		}
		limit, err := parseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ticker := strings.ToUpper(r.URL.Query().Get("ticker"))
		hist, err := opts.History.AdviceHistory(r.Context(), ticker, limit)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(hist))
	})

	if opts.Hub != nil {
		gateway.RegisterRoutes(mux, opts.Hub)
	}
	return mux
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultTxLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxTxLimit {
		n = maxTxLimit
	}
	return n, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
