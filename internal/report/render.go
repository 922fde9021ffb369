package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/indicator"
	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	buyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	sellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	holdStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))
)

func callStyle(c indicator.Call) lipgloss.Style {
	switch {
	case c.IsBuy():
		return buyStyle
	case c.IsSell():
		return sellStyle
	}
	return holdStyle
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// RenderTicker draws one ticker's recommendations and decision.
func RenderTicker(tr TickerReport) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  (%s term)", tr.Ticker, tr.Term)))
	b.WriteString("\n")
	if tr.Error != "" {
		b.WriteString(errorStyle.Render("error: " + tr.Error))
		b.WriteString("\n")
		return b.String()
	}

	t := newTable("Strategy", "Call", "Score", "Value", "Rationale")
	for _, r := range tr.Recommendations {
		t.Row(r.Strategy, callStyle(r.Call).Render(r.Call.String()),
			fmt.Sprintf("%+.3f", r.Score), fmt.Sprintf("%.2f", r.CurrentValue), r.Rationale)
	}
	b.WriteString(t.Render())
	b.WriteString("\n")

	d := tr.Decision
	b.WriteString(fmt.Sprintf("Price %.2f  Decision %s  Confidence %.0f%%  (%d indicators)\n",
		tr.Price, callStyle(d.Call).Render(d.Call.String()), d.Confidence*100, d.Count))
	if len(tr.Undefined) > 0 {
		b.WriteString(holdStyle.Render("undefined: " + strings.Join(tr.Undefined, ", ")))
		b.WriteString("\n")
	}
	if p := tr.Pivots; p != nil {
		b.WriteString(fmt.Sprintf("Pivots  S3 %.2f  S2 %.2f  S1 %.2f  P %.2f  R1 %.2f  R2 %.2f  R3 %.2f\n",
			p.S3, p.S2, p.S1, p.Pivot, p.R1, p.R2, p.R3))
	}
	return b.String()
}

// RenderCycle draws the summary of a cycle: decisions, trades and closures.
func RenderCycle(c CycleReport) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Cycle %s  %s  (%s)",
		c.ID, c.FinishedAt.Format("2006-01-02 15:04:05"), c.Duration().Round(1e6))))
	b.WriteString("\n")

	dec := newTable("Ticker", "Price", "Decision", "Confidence")
	for _, tr := range c.Tickers {
		if tr.Error != "" {
			dec.Row(tr.Ticker, "-", errorStyle.Render("error"), tr.Error)
			continue
		}
		dec.Row(tr.Ticker, fmt.Sprintf("%.2f", tr.Price),
			callStyle(tr.Decision.Call).Render(tr.Decision.Call.String()),
			fmt.Sprintf("%.0f%%", tr.Decision.Confidence*100))
	}
	for _, s := range c.Skipped {
		dec.Row(s, "-", holdStyle.Render("market closed"), "-")
	}
	b.WriteString(dec.Render())
	b.WriteString("\n")

	if len(c.Trades) > 0 {
		tt := newTable("Ticker", "Side", "Qty", "Fill", "Lev", "Flattened", "Realized")
		for _, t := range c.Trades {
			tt.Row(t.Ticker, t.Side, t.Quantity.String(), money(t.FillPrice),
				fmt.Sprintf("%dx", t.Leverage), fmt.Sprint(t.Flattened), money(t.Realized))
		}
		b.WriteString(tt.Render())
		b.WriteString("\n")
	}
	if len(c.Closures) > 0 {
		ct := newTable("Lot", "Ticker", "Side", "Reason", "Price", "Gain")
		for _, cl := range c.Closures {
			ct.Row(shortID(cl.LotID), cl.Ticker, string(cl.Side), string(cl.Reason), money(cl.Price), money(cl.Gain))
		}
		b.WriteString(ct.Render())
		b.WriteString("\n")
	}
	for _, r := range c.Rejections {
		b.WriteString(holdStyle.Render(fmt.Sprintf("rejected %s %s: %s", r.Side, r.Ticker, r.Reason)))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("Cash %s  Total value %s  Open lots %d long / %d short\n",
		money(c.Cash), money(c.TotalValue), c.OpenLongs, c.OpenShorts))
	return b.String()
}

// RenderPortfolio draws the open lots, marked at prices where known.
func RenderPortfolio(snap ledger.Snapshot, prices map[string]decimal.Decimal) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Portfolio"))
	b.WriteString("\n")

	t := newTable("Lot", "Ticker", "Side", "Qty", "Entry", "Lev", "Stop", "Target", "State", "Gain")
	longs := append([]model.Position(nil), snap.Longs...)
	sort.Slice(longs, func(i, j int) bool { return longs[i].OpenedAt.Before(longs[j].OpenedAt) })
	for _, p := range longs {
		gain := "-"
		if px, ok := prices[p.Ticker]; ok {
			gain = money(p.Gain(px))
		}
		t.Row(shortID(p.ID), p.Ticker, string(model.SideLong), p.Quantity.String(), money(p.EntryPrice),
			fmt.Sprintf("%dx", p.Leverage), money(p.StopLoss), money(p.TakeProfit), string(p.State), gain)
	}
	for _, s := range snap.Shorts {
		gain := "-"
		if px, ok := prices[s.Ticker]; ok {
			gain = money(s.Gain(px))
		}
		t.Row(shortID(s.ID), s.Ticker, string(model.SideShort), s.Quantity.String(), money(s.EntryPrice),
			fmt.Sprintf("%dx", s.Leverage), money(s.StopLoss), money(s.TakeProfit), string(s.State), gain)
	}
	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Cash %s\n", money(snap.Cash)))
	return b.String()
}

// RenderTransactions draws the transaction log, newest first as given.
func RenderTransactions(txs []model.Transaction) string {
	t := newTable("ID", "Time", "Type", "Ticker", "Qty", "Price", "Lev", "Gain")
	for _, tx := range txs {
		t.Row(fmt.Sprint(tx.ID), tx.Timestamp.Format("2006-01-02 15:04"), string(tx.Type), tx.Ticker,
			tx.Quantity.String(), money(tx.Price), fmt.Sprintf("%dx", tx.Leverage), money(tx.Gain))
	}
	return t.Render() + "\n"
}

// RenderSummary draws a two-column key/value table under a title.
func RenderSummary(title string, rows [][2]string) string {
	t := newTable("", "")
	for _, r := range rows {
		t.Row(r[0], r[1])
	}
	return titleStyle.Render(title) + "\n" + t.Render() + "\n"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
