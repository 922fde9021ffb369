// cmd/backtest walks historical bars through the advisor and a paper ledger
// to evaluate a term preset without live trading.
//
// Usage:
//
//	go run ./cmd/backtest --tickers AAPL,MSFT --term long
//	go run ./cmd/backtest --source archive --db data/candles.db --from 2025-01-01 --term medium
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"trading-advisorv1/config"
	"trading-advisorv1/internal/backtest"
	"trading-advisorv1/internal/indicator"
	"trading-advisorv1/internal/logger"
	"trading-advisorv1/internal/marketdata"
	"trading-advisorv1/internal/model"
	"trading-advisorv1/internal/portfolio"
	"trading-advisorv1/internal/report"
	"trading-advisorv1/internal/store/sqlite"
	"trading-advisorv1/internal/strategy"
)

type options struct {
	tickers  []string
	term     string
	source   string
	dbPath   string
	from     string
	to       string
	budget   string
	scoring  string
	save     bool
	asJSON   bool
	verbose  bool
	logLevel string
}

func main() {
	o := &options{}
	cmd := &cobra.Command{
		Use:          "backtest",
		Short:        "Walk-forward backtest of the indicator advisor",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&o.tickers, "tickers", nil, "tickers to replay (default TICKERS)")
	f.StringVar(&o.term, "term", "", "term preset (default TRADE_TERM)")
	f.StringVar(&o.source, "source", "yahoo", "bar source: yahoo|archive")
	f.StringVar(&o.dbPath, "db", "data/candles.db", "SQLite candle archive")
	f.StringVar(&o.from, "from", "", "archive start date YYYY-MM-DD (default: term period)")
	f.StringVar(&o.to, "to", "", "archive end date YYYY-MM-DD, exclusive")
	f.StringVar(&o.budget, "budget", "", "initial budget (default INITIAL_BUDGET)")
	f.StringVar(&o.scoring, "scoring", "", "categorical|continuous (default SCORING)")
	f.BoolVar(&o.save, "save", false, "archive fetched Yahoo bars into --db")
	f.BoolVar(&o.asJSON, "json", false, "print the result as JSON")
	f.BoolVar(&o.verbose, "verbose", false, "print every transaction")
	f.StringVar(&o.logLevel, "log-level", "warn", "debug|info|warn|error")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cobra.Command, o *options) error {
	level, err := logger.ParseLevel(o.logLevel)
	if err != nil {
		return err
	}
	logger.InitWriter(os.Stderr, "backtest", level, "text")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	term := cfg.Term
	if o.term != "" {
		terms, err := config.LoadTerms(os.Getenv("TERMS_FILE"))
		if err != nil {
			return err
		}
		if term, err = terms.Get(o.term); err != nil {
			return err
		}
	}
	tickers := cfg.Tickers
	if len(o.tickers) > 0 {
		tickers = nil
		for _, t := range o.tickers {
			tickers = append(tickers, strings.ToUpper(strings.TrimSpace(t)))
		}
	}
	budget := cfg.InitialBudget
	if o.budget != "" {
		if budget, err = decimal.NewFromString(o.budget); err != nil {
			return fmt.Errorf("%w: budget %q", config.ErrInvalidConfiguration, o.budget)
		}
	}
	scoring := cfg.Scoring
	if o.scoring != "" {
		if scoring, err = strategy.ParseConvention(o.scoring); err != nil {
			return err
		}
	}

	inds, err := indicator.NewSet(indicator.AllKinds, term.Params())
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}
	agg, err := strategy.NewAggregator(scoring)
	if err != nil {
		return err
	}
	sizerCfg := portfolio.DefaultSizerConfig()
	sizerCfg.StopLossPct = cfg.StopLossPct
	sizerCfg.TakeProfitPct = cfg.TakeProfitPct
	sizerCfg.MinConfidence = cfg.MinConfidence
	sizer, err := portfolio.NewSizer(sizerCfg)
	if err != nil {
		return err
	}

	series, err := loadSeries(ctx, o, term, tickers)
	if err != nil {
		return err
	}

	res, err := backtest.Run(ctx, backtest.Config{
		InitialBudget: budget,
		Advisor:       strategy.NewAdvisor(inds, agg),
		Sizer:         sizer,
		SlippageBps:   cfg.SlippageBps,
		Limits:        portfolio.RiskLimits{MaxOpenLots: cfg.MaxOpenLots},
	}, series...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if o.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprint(out, report.RenderSummary("Backtest complete", [][2]string{
		{"Term", fmt.Sprintf("%s (%s bars)", term.Name, term.Interval)},
		{"Tickers", strings.Join(tickers, ", ")},
		{"Bars", fmt.Sprint(res.Bars)},
		{"Trades", fmt.Sprint(len(res.Trades))},
		{"Auto-closed", fmt.Sprint(len(res.Closures))},
		{"Rejected", fmt.Sprint(len(res.Rejections))},
		{"Initial budget", res.InitialBudget.StringFixed(2)},
		{"Final value", res.FinalValue.StringFixed(2)},
		{"Profit", res.Profit.StringFixed(2)},
		{"Return", fmt.Sprintf("%.2f%%", res.ReturnPct)},
		{"Max drawdown", fmt.Sprintf("%.2f%%", res.MaxDrawdownPct)},
	}))
	if o.verbose {
		fmt.Fprint(out, report.RenderTransactions(res.Transactions))
	}
	return nil
}

// loadSeries reads every ticker from the archive or Yahoo. A ticker without
// data is skipped with a warning; no data at all is an error.
func loadSeries(ctx context.Context, o *options, term config.Term, tickers []string) ([]model.Series, error) {
	var (
		provider model.CandleProvider
		archived *marketdata.ArchiveProvider
	)
	switch o.source {
	case "archive":
		archive, err := sqlite.NewCandleArchive(o.dbPath)
		if err != nil {
			return nil, err
		}
		defer archive.Close()
		archived = marketdata.NewArchiveProvider(archive, time.Time{})
		provider = archived
	case "yahoo":
		provider = marketdata.NewYahooProvider()
		if o.save {
			archive, err := sqlite.NewCandleArchive(o.dbPath)
			if err != nil {
				return nil, err
			}
			defer archive.Close()
			provider = marketdata.NewArchivingProvider(provider, archive)
		}
	default:
		return nil, fmt.Errorf("%w: unknown source %q", config.ErrInvalidConfiguration, o.source)
	}

	from, err := parseDate(o.from)
	if err != nil {
		return nil, err
	}
	to, err := parseDate(o.to)
	if err != nil {
		return nil, err
	}

	var out []model.Series
	for _, t := range tickers {
		var s model.Series
		if archived != nil && !from.IsZero() {
			s, err = archived.Range(ctx, t, term.Interval, from, to)
		} else {
			s, err = provider.Candles(ctx, t, term.Period, term.Interval)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", t, err)
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no bars for %s: %w", strings.Join(tickers, ","), marketdata.ErrDataUnavailable)
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", config.ErrInvalidConfiguration, s, err)
	}
	return t.UTC(), nil
}
