// Package config loads runtime configuration from the environment (and an
// optional .env file) plus YAML term presets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/strategy"
)

// ErrInvalidConfiguration marks any configuration value that cannot be used.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Ledger backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DefaultTickers is the watch list used when TICKERS is unset.
const DefaultTickers = "BTC-EUR,ETH-EUR,TSLA,AAPL,AMZN,GOOGL,JPM"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Ledger
	LedgerDriver  string
	SQLitePath    string
	PostgresDSN   string
	InitialBudget decimal.Decimal

	// Strategy
	Tickers []string
	Term    Term
	Scoring strategy.Convention

	// Cycle
	PollInterval      time.Duration
	Concurrency       int
	IgnoreMarketHours bool
	ArchiveCandles    bool
	ArchivePath       string

	// Sizing and risk
	SlippageBps    int64
	StopLossPct    decimal.Decimal
	TakeProfitPct  decimal.Decimal
	MinConfidence  float64
	MaxOpenLots    int
	MaxDrawdownPct float64

	// Infrastructure
	RedisAddr      string
	RedisPassword  string
	CandleCacheTTL time.Duration
	MetricsAddr    string
	HTTPAddr       string
	LogLevel       string

	// Alerts
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first if
// present. Every unparsable value is reported, joined, and wraps
// ErrInvalidConfiguration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	p := &parser{}
	cfg := &Config{
		LedgerDriver:  p.oneOf("LEDGER_DRIVER", DriverSQLite, DriverSQLite, DriverPostgres, DriverMemory),
		SQLitePath:    getEnv("SQLITE_PATH", "data/ledger.db"),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		InitialBudget: p.decimal("INITIAL_BUDGET", "100000"),

		Tickers: parseTickers(getEnv("TICKERS", DefaultTickers)),

		PollInterval:      p.duration("POLL_INTERVAL", "60s"),
		Concurrency:       p.integer("CONCURRENCY", "4"),
		IgnoreMarketHours: p.boolean("IGNORE_MARKET_HOURS", "false"),
		ArchiveCandles:    p.boolean("ARCHIVE_CANDLES", "false"),
		ArchivePath:       getEnv("ARCHIVE_PATH", "data/candles.db"),

		SlippageBps:    int64(p.integer("SLIPPAGE_BPS", "0")),
		StopLossPct:    p.decimal("STOP_LOSS_PCT", "0.002"),
		TakeProfitPct:  p.decimal("TAKE_PROFIT_PCT", "0.005"),
		MinConfidence:  p.float("MIN_CONFIDENCE", "0"),
		MaxOpenLots:    p.integer("MAX_OPEN_LOTS", "50"),
		MaxDrawdownPct: p.float("MAX_DRAWDOWN_PCT", "20"),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		CandleCacheTTL: p.duration("CANDLE_CACHE_TTL", "30s"),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	scoring, err := strategy.ParseConvention(getEnv("SCORING", string(strategy.Categorical)))
	if err != nil {
		p.fail(err)
	}
	cfg.Scoring = scoring

	terms, err := LoadTerms(getEnv("TERMS_FILE", ""))
	if err != nil {
		p.fail(err)
	} else if t, err := terms.Get(getEnv("TRADE_TERM", "very_short")); err != nil {
		p.fail(err)
	} else {
		cfg.Term = t
	}

	p.check(len(cfg.Tickers) > 0, "TICKERS is empty")
	p.check(cfg.PollInterval > 0, "POLL_INTERVAL must be positive")
	p.check(cfg.Concurrency >= 1, "CONCURRENCY must be >= 1")
	p.check(cfg.InitialBudget.IsPositive(), "INITIAL_BUDGET must be positive")
	p.check(cfg.SlippageBps >= 0, "SLIPPAGE_BPS must be >= 0")
	p.check(cfg.CandleCacheTTL > 0, "CANDLE_CACHE_TTL must be positive")
	p.check(cfg.LedgerDriver != DriverPostgres || cfg.PostgresDSN != "", "POSTGRES_DSN required for postgres driver")

	if err := p.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parser accumulates conversion errors so Load reports all of them at once.
type parser struct {
	errs []error
}

func (p *parser) fail(err error) {
	if !errors.Is(err, ErrInvalidConfiguration) {
		err = fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	p.errs = append(p.errs, err)
}

func (p *parser) check(ok bool, msg string) {
	if !ok {
		p.fail(errors.New(msg))
	}
}

func (p *parser) err() error { return errors.Join(p.errs...) }

func (p *parser) integer(key, fallback string) int {
	v, err := strconv.Atoi(getEnv(key, fallback))
	if err != nil {
		p.fail(fmt.Errorf("%s: %v", key, err))
	}
	return v
}

func (p *parser) float(key, fallback string) float64 {
	v, err := strconv.ParseFloat(getEnv(key, fallback), 64)
	if err != nil {
		p.fail(fmt.Errorf("%s: %v", key, err))
	}
	return v
}

func (p *parser) boolean(key, fallback string) bool {
	v, err := strconv.ParseBool(getEnv(key, fallback))
	if err != nil {
		p.fail(fmt.Errorf("%s: %v", key, err))
	}
	return v
}

func (p *parser) duration(key, fallback string) time.Duration {
	v, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		p.fail(fmt.Errorf("%s: %v", key, err))
	}
	return v
}

func (p *parser) decimal(key, fallback string) decimal.Decimal {
	v, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		p.fail(fmt.Errorf("%s: %v", key, err))
	}
	return v
}

func (p *parser) oneOf(key, fallback string, allowed ...string) string {
	v := strings.ToLower(getEnv(key, fallback))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	p.fail(fmt.Errorf("%s: %q not one of %s", key, v, strings.Join(allowed, ", ")))
	return v
}

// parseTickers splits a comma-separated watch list, dropping blanks and
// duplicates and upper-casing symbols.
func parseTickers(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
