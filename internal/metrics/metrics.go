// Package metrics exposes Prometheus metrics for the trading cycle and a
// /healthz endpoint.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading service.
type Metrics struct {
	CyclesTotal    prometheus.Counter
	CycleDuration  prometheus.Histogram
	FetchFailures  *prometheus.CounterVec // labels: ticker
	TickersSkipped *prometheus.CounterVec // labels: reason (market_closed|no_signals)

	// Signal pipeline
	Decisions           *prometheus.CounterVec // labels: call
	UndefinedIndicators *prometheus.CounterVec // labels: indicator

	// Orders and risk
	Orders     *prometheus.CounterVec // labels: side
	Rejections *prometheus.CounterVec // labels: reason
	AutoCloses *prometheus.CounterVec // labels: side, reason

	// Ledger
	Cash       prometheus.Gauge
	TotalValue prometheus.Gauge
	OpenLots   *prometheus.GaugeVec // labels: side

	// Redis circuit breaker (0=closed, 1=open, 2=half-open)
	RedisCircuitState prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_cycles_total",
			Help: "Trading cycles completed",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_cycle_duration_seconds",
			Help:    "Wall time of one trading cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_fetch_failures_total",
			Help: "Market data fetches that failed, by ticker",
		}, []string{"ticker"}),
		TickersSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_tickers_skipped_total",
			Help: "Tickers skipped in a cycle, by reason",
		}, []string{"reason"}),

		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_decisions_total",
			Help: "Aggregated decisions, by call",
		}, []string{"call"}),
		UndefinedIndicators: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_indicator_undefined_total",
			Help: "Indicators excluded for lack of history, by indicator",
		}, []string{"indicator"}),

		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_orders_total",
			Help: "Orders filled, by side",
		}, []string{"side"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_order_rejections_total",
			Help: "Orders rejected, by reason",
		}, []string{"reason"}),
		AutoCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_auto_closes_total",
			Help: "Lots closed by the risk monitor",
		}, []string{"side", "reason"}),

		Cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_cash",
			Help: "Ledger cash budget",
		}),
		TotalValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_total_value",
			Help: "Cash plus marked-to-market lots",
		}),
		OpenLots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradebot_open_lots",
			Help: "Open lots, by side",
		}, []string{"side"}),

		RedisCircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.FetchFailures,
		m.TickersSkipped,
		m.Decisions,
		m.UndefinedIndicators,
		m.Orders,
		m.Rejections,
		m.AutoCloses,
		m.Cash,
		m.TotalValue,
		m.OpenLots,
		m.RedisCircuitState,
	)
	return m
}

// Pinger is any dependency with a liveness check.
type Pinger func(ctx context.Context) error

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	LedgerOK       bool
	RedisEnabled   bool
	RedisConnected bool
	LastCycleAt    time.Time
	LastCycleErr   string

	LedgerLatencyMs float64
	RedisLatencyMs  float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		LedgerOK:  true,
		StartedAt: time.Now(),
	}
}

// RecordCycle notes the completion of a cycle and its error, if any.
func (h *HealthStatus) RecordCycle(at time.Time, err error) {
	h.mu.Lock()
	h.LastCycleAt = at
	h.LastCycleErr = ""
	if err != nil {
		h.LastCycleErr = err.Error()
	}
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckLedger pings the ledger store and records latency + health.
func (h *HealthStatus) CheckLedger(ctx context.Context, ping Pinger) {
	start := time.Now()
	err := ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.LedgerOK = err == nil
	h.LedgerLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. rdb and ledger may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, ledger Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if ledger != nil {
					h.CheckLedger(probeCtx, ledger)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. A failing ledger is unhealthy;
// a failing Redis or last cycle only degrades the service.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if (h.RedisEnabled && !h.RedisConnected) || h.LastCycleErr != "" {
		overallStatus = "degraded"
	}
	if !h.LedgerOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	lastCycle := ""
	if !h.LastCycleAt.IsZero() {
		lastCycle = h.LastCycleAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		LedgerOK        bool    `json:"ledger_ok"`
		LedgerLatencyMs float64 `json:"ledger_latency_ms"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		LastCycleAt     string  `json:"last_cycle_at"`
		LastCycleError  string  `json:"last_cycle_error,omitempty"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		LedgerOK:        h.LedgerOK,
		LedgerLatencyMs: h.LedgerLatencyMs,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		LastCycleAt:     lastCycle,
		LastCycleError:  h.LastCycleErr,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server over gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
