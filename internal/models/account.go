package models

import (
	"encoding/json"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// AssetPoint is one row of the daily mark-to-market assets table.
type AssetPoint struct {
	Date   time.Time `json:"date"`
	Assets float64   `json:"assets"`
}

// PositionView is the per-symbol summary returned to clients. Sellable
// excludes shares bought on the query date (T+1 rule).
type PositionView struct {
	Symbol      string          `json:"symbol"`
	Shares      decimal.Decimal `json:"shares"`
	Sellable    decimal.Decimal `json:"sellable"`
	Cost        float64         `json:"cost"`
	MarketPrice float64         `json:"market_price"`
	MarketValue float64         `json:"market_value"`
}

// AccountInfo is the read-only account summary.
type AccountInfo struct {
	Name        string         `json:"name"`
	Principal   float64        `json:"principal"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	Stopped     bool           `json:"bt_stopped"`
	LastTrade   *time.Time     `json:"last_trade,omitempty"`
	Assets      float64        `json:"assets"`
	Available   float64        `json:"available"`
	MarketValue float64        `json:"market_value"`
	Pnl         float64        `json:"pnl"`
	Ppnl        float64        `json:"ppnl"`
	Positions   []PositionView `json:"positions"`
}

// Bill pairs one entrust with the trades it produced.
type Bill struct {
	Entrust Entrust `json:"entrust"`
	Trades  []Trade `json:"trades"`
}

// Metrics is the strategy performance report computed from the daily assets
// series. Baseline is present only when a benchmark symbol was requested.
type Metrics struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Window           int       `json:"window"`
	TotalTrades      int       `json:"total_tx"`
	TotalProfit      float64   `json:"total_profit"`
	TotalReturn      float64   `json:"total_profit_rate"`
	AnnualizedReturn float64   `json:"annual_return"`
	WinRate          float64   `json:"win_rate"`
	MeanReturn       float64   `json:"mean_return"`
	Sharpe           float64   `json:"sharpe"`
	Sortino          float64   `json:"sortino"`
	Calmar           float64   `json:"calmar"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	Volatility       float64   `json:"volatility"`
	Baseline         *Metrics  `json:"baseline,omitempty"`
}

// MarshalJSON renders non-finite ratios as null. A flat or single-point
// assets series yields NaN or infinite Sharpe/Sortino/Calmar values, which
// encoding/json refuses to emit.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type metricsJSON struct {
		Start            time.Time `json:"start"`
		End              time.Time `json:"end"`
		Window           int       `json:"window"`
		TotalTrades      int       `json:"total_tx"`
		TotalProfit      *float64  `json:"total_profit"`
		TotalReturn      *float64  `json:"total_profit_rate"`
		AnnualizedReturn *float64  `json:"annual_return"`
		WinRate          *float64  `json:"win_rate"`
		MeanReturn       *float64  `json:"mean_return"`
		Sharpe           *float64  `json:"sharpe"`
		Sortino          *float64  `json:"sortino"`
		Calmar           *float64  `json:"calmar"`
		MaxDrawdown      *float64  `json:"max_drawdown"`
		Volatility       *float64  `json:"volatility"`
		Baseline         *Metrics  `json:"baseline,omitempty"`
	}
	return json.Marshal(metricsJSON{
		Start:            m.Start,
		End:              m.End,
		Window:           m.Window,
		TotalTrades:      m.TotalTrades,
		TotalProfit:      finiteOrNull(m.TotalProfit),
		TotalReturn:      finiteOrNull(m.TotalReturn),
		AnnualizedReturn: finiteOrNull(m.AnnualizedReturn),
		WinRate:          finiteOrNull(m.WinRate),
		MeanReturn:       finiteOrNull(m.MeanReturn),
		Sharpe:           finiteOrNull(m.Sharpe),
		Sortino:          finiteOrNull(m.Sortino),
		Calmar:           finiteOrNull(m.Calmar),
		MaxDrawdown:      finiteOrNull(m.MaxDrawdown),
		Volatility:       finiteOrNull(m.Volatility),
		Baseline:         m.Baseline,
	})
}

func finiteOrNull(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// AccountState is the full serializable state of one account, used for
// session persistence. The format is stable within a major release.
type AccountState struct {
	Name       string          `json:"name"`
	Token      string          `json:"token"`
	Principal  float64         `json:"principal"`
	Commission float64         `json:"commission"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Cash       decimal.Decimal `json:"cash"`
	Lots       []Lot           `json:"lots"`
	Entrusts   []Entrust       `json:"entrusts"`
	Trades     []Trade         `json:"trades"`
	Assets     []AssetPoint    `json:"assets"`
	XDXRCursor time.Time       `json:"xdxr_cursor"`
	Stopped    bool            `json:"stopped"`
}

// SessionRecord is one persisted backtest snapshot, keyed by name.
type SessionRecord struct {
	Name        string            `badgerhold:"key" json:"name"`
	Description string            `json:"description"`
	Params      map[string]string `json:"params,omitempty"`
	Account     AccountState      `json:"account"`
	SavedAt     time.Time         `json:"saved_at"`
}
