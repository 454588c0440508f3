package entities

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Window is a bounded recent time range over which leaderboard metrics
// are computed, or "all" for the address's full lifetime.
type Window string

const (
	Window7d  Window = "7d"
	Window30d Window = "30d"
	WindowAll Window = "all"
)

// Windows lists every window the aggregator maintains.
var Windows = []Window{Window7d, Window30d, WindowAll}

// ParseWindow validates a window string
func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case Window7d, Window30d, WindowAll:
		return Window(s), nil
	}
	return "", fmt.Errorf("unknown window %q", s)
}

// Duration returns the window length, or 0 for the unbounded window.
func (w Window) Duration() time.Duration {
	switch w {
	case Window7d:
		return 7 * 24 * time.Hour
	case Window30d:
		return 30 * 24 * time.Hour
	}
	return 0
}

// SamplePoints returns how many evenly spaced timestamps the aggregator
// resolves across the window. Longer windows get more points.
func (w Window) SamplePoints() int {
	switch w {
	case Window7d:
		return 8
	case Window30d:
		return 12
	}
	return 24
}

// SortMetric selects which leaderboard column an ordering applies to.
type SortMetric string

const (
	MetricPnl SortMetric = "pnl"
	MetricRoi SortMetric = "roi"
	MetricMdd SortMetric = "mdd"
	MetricAum SortMetric = "aum"
)

// ParseSortMetric validates a sort metric string
func ParseSortMetric(s string) (SortMetric, error) {
	switch SortMetric(s) {
	case MetricPnl, MetricRoi, MetricMdd, MetricAum:
		return SortMetric(s), nil
	}
	return "", fmt.Errorf("unknown sort metric %q", s)
}

// DefaultAscending reports the conventional "better first" direction for
// the metric: smaller drawdowns rank higher, everything else larger-first.
func (m SortMetric) DefaultAscending() bool {
	return m == MetricMdd
}

// Value extracts the metric's column from a row. The switch is
// exhaustive over the closed metric set.
func (m SortMetric) Value(row *LeaderboardRow) float64 {
	switch m {
	case MetricPnl:
		return row.Pnl
	case MetricRoi:
		return row.RoiPct
	case MetricMdd:
		return row.MaxDrawdownPct
	case MetricAum:
		return row.AUM
	}
	return 0
}

// Currency selects the denomination of a valuation.
type Currency string

const (
	CurrencyCoin Currency = "coin"
	CurrencyUSD  Currency = "usd"
)

// ParseCurrency validates a currency string, defaulting to the native coin
func ParseCurrency(s string) (Currency, error) {
	switch s {
	case "":
		return CurrencyCoin, nil
	case string(CurrencyCoin), string(CurrencyUSD):
		return Currency(s), nil
	}
	return "", fmt.Errorf("unknown currency %q", s)
}

// LeaderboardRow is one persisted (window, address) leaderboard entry.
// Rows for a window are replaced wholesale on every refresh cycle.
type LeaderboardRow struct {
	Window         Window          `db:"window" json:"window"`
	Rank           int             `db:"rank" json:"rank"`
	Address        string          `db:"address" json:"address"`
	AUM            float64         `db:"aum" json:"aum"`
	Pnl            float64         `db:"pnl" json:"pnl"`
	RoiPct         float64         `db:"roi_pct" json:"roi_pct"`
	MaxDrawdownPct float64         `db:"max_drawdown_pct" json:"max_drawdown_pct"`
	BuyCount       int64           `db:"buy_count" json:"buy_count"`
	SellCount      int64           `db:"sell_count" json:"sell_count"`
	TokensCreated  int64           `db:"tokens_created" json:"tokens_created"`
	HoldingsCount  int64           `db:"holdings_count" json:"holdings_count"`
	ValueSeries    pq.Float64Array `db:"value_series" json:"value_series"`
	ComputedAt     time.Time       `db:"computed_at" json:"computed_at"`
}
