package trader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"trading-advisorv1/config"
	"trading-advisorv1/internal/api"
	"trading-advisorv1/internal/execution"
	"trading-advisorv1/internal/gateway"
	"trading-advisorv1/internal/indicator"
	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/marketdata"
	"trading-advisorv1/internal/markethours"
	"trading-advisorv1/internal/metrics"
	"trading-advisorv1/internal/model"
	"trading-advisorv1/internal/notification"
	"trading-advisorv1/internal/portfolio"
	"trading-advisorv1/internal/scheduler"
	"trading-advisorv1/internal/store/postgres"
	redisstore "trading-advisorv1/internal/store/redis"
	"trading-advisorv1/internal/store/sqlite"
	"trading-advisorv1/internal/strategy"
)

// Service owns every long-lived resource of the trading process.
type Service struct {
	cfg *config.Config

	Ledger   *ledger.Ledger
	Trader   *Trader
	Hub      *gateway.Hub
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus

	executor   *execution.PaperExecutor
	rdb        *goredis.Client
	publisher  *redisstore.Publisher
	pingLedger metrics.Pinger
	closers    []func() error
}

// NewService builds the ledger, data pipeline, strategy and surfaces from
// cfg. Call Close when done.
func NewService(ctx context.Context, cfg *config.Config) (svc *Service, err error) {
	s := &Service{cfg: cfg}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	store, err := s.openStore(ctx)
	if err != nil {
		return nil, err
	}
	s.Ledger, err = ledger.Open(ctx, store, cfg.InitialBudget)
	if err != nil {
		store.Close()
		return nil, err
	}
	s.closers = append(s.closers, s.Ledger.Close)

	s.Registry = prometheus.NewRegistry()
	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.Metrics = metrics.NewMetrics(s.Registry)
	s.Health = metrics.NewHealthStatus()

	provider, err := s.buildProvider(ctx)
	if err != nil {
		return nil, err
	}

	inds, err := indicator.NewSet(indicator.AllKinds, cfg.Term.Params())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}
	agg, err := strategy.NewAggregator(cfg.Scoring)
	if err != nil {
		return nil, err
	}

	sizerCfg := portfolio.DefaultSizerConfig()
	sizerCfg.StopLossPct = cfg.StopLossPct
	sizerCfg.TakeProfitPct = cfg.TakeProfitPct
	sizerCfg.MinConfidence = cfg.MinConfidence
	sizer, err := portfolio.NewSizer(sizerCfg)
	if err != nil {
		return nil, err
	}

	notifier := buildNotifier(cfg)
	s.Hub = gateway.NewHub(s.rdb)
	s.executor = execution.NewPaperExecutor(s.Ledger, cfg.SlippageBps)

	deps := Deps{
		Ledger:   s.Ledger,
		Provider: provider,
		Advisor:  strategy.NewAdvisor(inds, agg),
		Sizer:    sizer,
		Monitor:  portfolio.NewMonitor(s.Ledger, notifier),
		Risk: portfolio.NewRiskManager(
			portfolio.RiskLimits{MaxOpenLots: cfg.MaxOpenLots, MaxDrawdownPct: cfg.MaxDrawdownPct},
			s.Ledger.TotalValue(nil)),
		Executor: s.executor,
		Metrics:  s.Metrics,
		Health:   s.Health,
		Notifier: notifier,
	}
	if s.publisher != nil {
		// The hub relays Redis pub/sub, so it must not also get direct copies.
		deps.Publisher = s.publisher
	} else {
		deps.Hub = s.Hub
	}
	if !cfg.IgnoreMarketHours {
		deps.IsOpen = markethours.IsOpen
	}

	s.Trader, err = New(deps, Options{
		Tickers:     cfg.Tickers,
		Term:        cfg.Term,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("service ready",
		"ledger", cfg.LedgerDriver,
		"term", cfg.Term.Name,
		"scoring", string(cfg.Scoring),
		"tickers", len(cfg.Tickers),
		"redis", s.rdb != nil,
		"cash", s.Ledger.Cash().StringFixed(2))
	return s, nil
}

func (s *Service) openStore(ctx context.Context) (ledger.Store, error) {
	switch s.cfg.LedgerDriver {
	case config.DriverMemory:
		s.pingLedger = func(context.Context) error { return nil }
		return ledger.NewMemoryStore(), nil
	case config.DriverPostgres:
		st, err := postgres.NewLedgerStore(ctx, s.cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.pingLedger = st.Ping
		return st, nil
	default:
		st, err := sqlite.NewLedgerStore(s.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.pingLedger = st.DB().PingContext
		return st, nil
	}
}

// buildProvider stacks Yahoo, the optional candle archive and the optional
// Redis cache, outermost last.
func (s *Service) buildProvider(ctx context.Context) (model.CandleProvider, error) {
	var provider model.CandleProvider = marketdata.NewYahooProvider()

	if s.cfg.ArchiveCandles {
		archive, err := sqlite.NewCandleArchive(s.cfg.ArchivePath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, archive.Close)
		provider = marketdata.NewArchivingProvider(provider, archive)
	}

	if s.cfg.RedisAddr == "" {
		return provider, nil
	}
	rdb, err := redisstore.Connect(ctx, redisstore.Config{Addr: s.cfg.RedisAddr, Password: s.cfg.RedisPassword})
	if err != nil {
		log.Printf("[trader] redis unavailable, running without cache and publisher: %v", err)
		return provider, nil
	}
	s.rdb = rdb
	s.closers = append(s.closers, rdb.Close)
	s.publisher = redisstore.NewPublisher(rdb)

	cached := redisstore.NewCachedProvider(rdb, provider, s.cfg.CandleCacheTTL)
	br := cached.Breaker()
	logTransition := br.OnStateChange
	br.OnStateChange = func(from, to redisstore.State) {
		logTransition(from, to)
		s.Metrics.RedisCircuitState.Set(float64(to))
	}
	return cached, nil
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		n = append(n, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return n
}

// Handler returns the HTTP API, including the websocket stream.
func (s *Service) Handler() http.Handler {
	opts := api.Options{Hub: s.Hub, Health: s.Health}
	if s.publisher != nil {
		opts.History = s.publisher
	}
	return api.NewRouter(s.Trader, opts)
}

// Run serves metrics and the HTTP API and drives cycles every poll
// interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsSrv := metrics.NewServer(s.cfg.MetricsAddr, s.Registry, s.Health)
	metricsSrv.Start()
	s.Health.StartLivenessChecker(ctx, s.rdb, s.pingLedger, 15*time.Second)

	httpSrv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[api] listening on %s", s.cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[api] server error: %v", err)
		}
	}()
	go s.Hub.Run(ctx)
	go s.Hub.StartStatusBroadcast(ctx, 30*time.Second)

	driver := scheduler.NewDriver(s.cfg.PollInterval, s.Trader.Cycle)
	err := driver.Run(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Printf("[trader] stopped after %s", s.summary(driver))
	return err
}

// summary counts the cycles d completed and the fills since start.
func (s *Service) summary(d *scheduler.Driver) string {
	return fmt.Sprintf("%d cycles, %d fills", d.Runs(), len(s.executor.Fills()))
}

// Close releases the ledger store, archive and Redis client, newest first.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
