package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"trading-advisorv1/internal/indicator"
)

// Term is a trading horizon: how much history to fetch, at which bar size,
// and the indicator windows tuned for it.
type Term struct {
	Name             string  `yaml:"-" json:"name"`
	Period           string  `yaml:"period" json:"period"`
	Interval         string  `yaml:"interval" json:"interval"`
	ShortWindow      int     `yaml:"short_window" json:"short_window"`
	LongWindow       int     `yaml:"long_window" json:"long_window"`
	RSIWindow        int     `yaml:"rsi_window" json:"rsi_window"`
	MACDShort        int     `yaml:"macd_short" json:"macd_short"`
	MACDLong         int     `yaml:"macd_long" json:"macd_long"`
	MACDSignal       int     `yaml:"macd_signal" json:"macd_signal"`
	BollingerWindow  int     `yaml:"bollinger_window" json:"bollinger_window"`
	BollingerK       float64 `yaml:"bollinger_k" json:"bollinger_k"`
	StochasticWindow int     `yaml:"stochastic_window" json:"stochastic_window"`
	StochasticSmooth int     `yaml:"stochastic_smooth" json:"stochastic_smooth"`
}

// Params converts the term into indicator parameters.
func (t Term) Params() indicator.Params {
	return indicator.Params{
		ShortWindow:      t.ShortWindow,
		LongWindow:       t.LongWindow,
		RSIWindow:        t.RSIWindow,
		MACDFast:         t.MACDShort,
		MACDSlow:         t.MACDLong,
		MACDSignal:       t.MACDSignal,
		BollingerWindow:  t.BollingerWindow,
		BollingerK:       t.BollingerK,
		StochasticWindow: t.StochasticWindow,
		StochasticSmooth: t.StochasticSmooth,
	}
}

// Validate builds every indicator from the term's windows.
func (t Term) Validate() error {
	if t.Period == "" || t.Interval == "" {
		return fmt.Errorf("%w: term %s needs period and interval", ErrInvalidConfiguration, t.Name)
	}
	if _, err := indicator.NewSet(indicator.AllKinds, t.Params()); err != nil {
		return fmt.Errorf("%w: term %s: %v", ErrInvalidConfiguration, t.Name, err)
	}
	return nil
}

// Terms maps a term name to its preset.
type Terms map[string]Term

var presets = Terms{
	"very_short": {Period: "1d", Interval: "1m", ShortWindow: 5, LongWindow: 20, RSIWindow: 14,
		MACDShort: 12, MACDLong: 26, MACDSignal: 9, BollingerWindow: 20, BollingerK: 2, StochasticWindow: 14, StochasticSmooth: 3},
	"short": {Period: "1d", Interval: "1m", ShortWindow: 5, LongWindow: 20, RSIWindow: 14,
		MACDShort: 12, MACDLong: 26, MACDSignal: 9, BollingerWindow: 20, BollingerK: 2, StochasticWindow: 14, StochasticSmooth: 3},
	"medium": {Period: "1mo", Interval: "1h", ShortWindow: 12, LongWindow: 26, RSIWindow: 14,
		MACDShort: 12, MACDLong: 26, MACDSignal: 9, BollingerWindow: 20, BollingerK: 2, StochasticWindow: 14, StochasticSmooth: 3},
	"long": {Period: "1y", Interval: "1d", ShortWindow: 50, LongWindow: 200, RSIWindow: 14,
		MACDShort: 12, MACDLong: 26, MACDSignal: 9, BollingerWindow: 20, BollingerK: 2, StochasticWindow: 14, StochasticSmooth: 3},
}

// Presets returns a copy of the built-in terms.
func Presets() Terms {
	out := make(Terms, len(presets))
	for name, t := range presets {
		t.Name = name
		out[name] = t
	}
	return out
}

// ParseTerm returns the built-in preset called name.
func ParseTerm(name string) (Term, error) {
	return Presets().Get(name)
}

// Get looks up a term by name (case-insensitive, '-' accepted for '_').
func (ts Terms) Get(name string) (Term, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	t, ok := ts[key]
	if !ok {
		return Term{}, fmt.Errorf("%w: unknown term %q (have %s)", ErrInvalidConfiguration, name, strings.Join(ts.Names(), ", "))
	}
	return t, nil
}

// Names returns the term names in sorted order.
func (ts Terms) Names() []string {
	names := make([]string, 0, len(ts))
	for n := range ts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadTerms returns the presets overlaid with the YAML file at path. Fields
// absent from the file keep their preset value; new names define new terms.
// An empty path returns the presets unchanged.
func LoadTerms(path string) (Terms, error) {
	terms := Presets()
	if path == "" {
		return terms, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open terms: %v", ErrInvalidConfiguration, err)
	}
	defer file.Close()

	var raw map[string]yaml.Node
	if err := yaml.NewDecoder(file).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode terms yaml: %v", ErrInvalidConfiguration, err)
	}
	for name, node := range raw {
		t := terms[name]
		if err := node.Decode(&t); err != nil {
			return nil, fmt.Errorf("%w: term %s: %v", ErrInvalidConfiguration, name, err)
		}
		t.Name = name
		if err := t.Validate(); err != nil {
			return nil, err
		}
		terms[name] = t
	}
	return terms, nil
}
