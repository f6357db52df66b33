package trade

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/zillionare/backtesting/internal/models"
)

func assetSeries(values ...float64) []models.AssetPoint {
	days := weekdays("2022-03-01", "2022-12-30")
	out := make([]models.AssetPoint, len(values))
	for i, v := range values {
		out[i] = models.AssetPoint{Date: days[i], Assets: v}
	}
	return out
}

func TestComputeMetrics_TotalAndAnnualizedReturn(t *testing.T) {
	m := ComputeMetrics(MetricsInput{
		Principal:    1_000_000,
		Assets:       assetSeries(1_000_000, 1_010_000, 1_050_000),
		RiskFreeRate: 0.03,
		AnnualDays:   252,
	})

	assert.InDelta(t, 0.05, m.TotalReturn, 1e-9)
	assert.InDelta(t, math.Pow(1.05, 252.0/3)-1, m.AnnualizedReturn, 1e-9)
	assert.Equal(t, 3, m.Window)
}

func TestComputeMetrics_MaxDrawdownAndCalmar(t *testing.T) {
	m := ComputeMetrics(MetricsInput{
		Principal:    100,
		Assets:       assetSeries(100, 120, 90, 110),
		RiskFreeRate: 0.03,
		AnnualDays:   252,
	})

	// trough 90 against peak 120
	assert.InDelta(t, 90.0/120.0-1, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, m.AnnualizedReturn/math.Abs(m.MaxDrawdown), m.Calmar, 1e-9)
}

func TestComputeMetrics_WinRate(t *testing.T) {
	trades := []models.Trade{
		{Side: models.SideBuy, Shares: decimal.NewFromInt(100)},
		{Side: models.SideSell, Profit: decimal.NewFromInt(50)},
		{Side: models.SideSell, Profit: decimal.NewFromInt(-20)},
		{Side: models.SideMarketSell, Profit: decimal.NewFromInt(10)},
	}

	m := ComputeMetrics(MetricsInput{
		Principal:    100,
		Assets:       assetSeries(100, 101),
		Trades:       trades,
		RiskFreeRate: 0.03,
		AnnualDays:   252,
	})

	assert.Equal(t, 4, m.TotalTrades)
	assert.InDelta(t, 2.0/3.0, m.WinRate, 1e-9)
	assert.InDelta(t, 40.0, m.TotalProfit, 1e-9)
}

func TestComputeMetrics_SharpePositiveForSteadyGains(t *testing.T) {
	// 1% daily gain with slight wobble
	vals := []float64{100}
	for i := 1; i < 30; i++ {
		step := 1.01
		if i%5 == 0 {
			step = 1.002
		}
		vals = append(vals, vals[i-1]*step)
	}

	m := ComputeMetrics(MetricsInput{
		Principal:    100,
		Assets:       assetSeries(vals...),
		RiskFreeRate: 0.03,
		AnnualDays:   252,
	})

	assert.Greater(t, m.Sharpe, 0.0)
	assert.Greater(t, m.Volatility, 0.0)
	assert.True(t, math.IsNaN(m.Sortino), "no negative returns means undefined sortino")
}

func TestComputeMetrics_EmptySeries(t *testing.T) {
	m := ComputeMetrics(MetricsInput{Principal: 100, RiskFreeRate: 0.03, AnnualDays: 252})
	assert.Equal(t, 0, m.Window)
	assert.Zero(t, m.TotalReturn)
}

func TestComputeMetrics_SingleDaySeries(t *testing.T) {
	m := ComputeMetrics(MetricsInput{
		Principal:    100,
		Assets:       assetSeries(110),
		RiskFreeRate: 0.03,
		AnnualDays:   252,
	})
	assert.InDelta(t, 0.1, m.TotalReturn, 1e-9)
	assert.True(t, math.IsNaN(m.Sharpe))
	assert.Zero(t, m.MaxDrawdown)
}
