// cmd/tradebot runs the paper-trading advisor: a long-running service, a
// single cycle, or read-only views of the ledger.
//
// Usage:
//
//	go run ./cmd/tradebot run
//	go run ./cmd/tradebot once --term short
//	go run ./cmd/tradebot advise AAPL TSLA
//	go run ./cmd/tradebot transactions --ticker AAPL --limit 20
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trading-advisorv1/config"
	"trading-advisorv1/internal/logger"
	"trading-advisorv1/internal/markethours"
	"trading-advisorv1/internal/report"
	"trading-advisorv1/internal/trader"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globals struct {
	cfg       *config.Config
	logLevel  string
	logFormat string
	term      string
	tickers   []string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "tradebot",
		Short: "Technical-indicator trading advisor with a paper ledger",
		Long: `tradebot fetches market data, scores it with moving averages, RSI, MACD,
Bollinger Bands, Stochastic and Pivot Points, and trades the resulting
advice against a paper ledger with stop-loss and take-profit exits.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load()
		},
	}

	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug|info|warn|error (default LOG_LEVEL)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "text|json")
	root.PersistentFlags().StringVar(&g.term, "term", "", "term preset (default TRADE_TERM)")
	root.PersistentFlags().StringSliceVar(&g.tickers, "tickers", nil, "comma-separated tickers (default TICKERS)")

	root.AddCommand(
		newRunCmd(g),
		newOnceCmd(g),
		newAdviseCmd(g),
		newPortfolioCmd(g),
		newTransactionsCmd(g),
		newTermsCmd(),
	)
	return root
}

// load reads the environment and applies flag overrides.
func (g *globals) load() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if g.term != "" {
		terms, err := config.LoadTerms(os.Getenv("TERMS_FILE"))
		if err != nil {
			return err
		}
		if cfg.Term, err = terms.Get(g.term); err != nil {
			return err
		}
	}
	if len(g.tickers) > 0 {
		cfg.Tickers = cfg.Tickers[:0]
		for _, t := range g.tickers {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				cfg.Tickers = append(cfg.Tickers, t)
			}
		}
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}
	logger.InitWriter(os.Stderr, "tradebot", level, g.logFormat)
	g.cfg = cfg
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// withService builds the service for one command and closes it afterwards.
func (g *globals) withService(fn func(ctx context.Context, svc *trader.Service) error) error {
	ctx, stop := signalContext()
	defer stop()
	svc, err := trader.NewService(ctx, g.cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(ctx, svc)
}

func newRunCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run cycles every POLL_INTERVAL and serve the HTTP API and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withService(func(ctx context.Context, svc *trader.Service) error {
				fmt.Fprintln(cmd.OutOrStdout(), markethours.StatusString(time.Now()))
				err := svc.Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func newOnceCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withService(func(ctx context.Context, svc *trader.Service) error {
				rep, err := svc.Trader.RunCycle(ctx)
				if rep != nil {
					fmt.Fprint(cmd.OutOrStdout(), report.RenderCycle(*rep))
				}
				return err
			})
		},
	}
}

func newAdviseCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "advise [TICKER...]",
		Short: "Print indicator advice without trading",
		Long:  "Print per-indicator recommendations and the aggregated call. Defaults to the configured tickers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tickers := g.cfg.Tickers
			if len(args) > 0 {
				tickers = nil
				for _, a := range args {
					tickers = append(tickers, strings.ToUpper(a))
				}
			}
			return g.withService(func(ctx context.Context, svc *trader.Service) error {
				out := cmd.OutOrStdout()
				failed := 0
				for _, t := range tickers {
					tr, err := svc.Trader.Advise(ctx, t)
					if err != nil {
						failed++
					}
					fmt.Fprintln(out, report.RenderTicker(tr))
				}
				if failed == len(tickers) {
					return fmt.Errorf("no ticker could be advised")
				}
				return nil
			})
		},
	}
}

func newPortfolioCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Print cash and open lots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withService(func(ctx context.Context, svc *trader.Service) error {
				snap := svc.Ledger.Snapshot()
				out := cmd.OutOrStdout()
				fmt.Fprint(out, report.RenderPortfolio(snap, nil))
				fmt.Fprint(out, report.RenderSummary("Book value", [][2]string{
					{"Cash", snap.Cash.StringFixed(2)},
					{"Total (at entry)", snap.TotalValue(nil).StringFixed(2)},
					{"Market", markethours.StatusString(time.Now())},
				}))
				return nil
			})
		},
	}
}

func newTransactionsCmd(g *globals) *cobra.Command {
	var (
		ticker string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Print the transaction log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("limit must be >= 0")
			}
			return g.withService(func(ctx context.Context, svc *trader.Service) error {
				txs, err := svc.Ledger.Transactions(ctx, strings.ToUpper(ticker), limit)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), report.RenderTransactions(txs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ticker, "ticker", "", "only this ticker")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows, 0 for all")
	return cmd
}

func newTermsCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "terms",
		Short:             "List term presets",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := config.LoadTerms(os.Getenv("TERMS_FILE"))
			if err != nil {
				return err
			}
			var rows [][2]string
			for _, name := range terms.Names() {
				t := terms[name]
				rows = append(rows, [2]string{name, fmt.Sprintf("period %s, interval %s, MA %d/%d, RSI %d",
					t.Period, t.Interval, t.ShortWindow, t.LongWindow, t.RSIWindow)})
			}
			fmt.Fprint(cmd.OutOrStdout(), report.RenderSummary("Terms", rows))
			return nil
		},
	}
}
