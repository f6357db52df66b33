package trade

import (
	"context"
	"math"
	"time"

	"github.com/zillionare/backtesting/internal/interfaces"
	"github.com/zillionare/backtesting/internal/models"
)

// MetricsInput carries everything the calculator needs from an account.
type MetricsInput struct {
	Principal float64
	Assets    []models.AssetPoint // daily series, ascending
	Trades    []models.Trade
	// RiskFreeRate is annual; AnnualDays the trading-day year length.
	RiskFreeRate float64
	AnnualDays   int
}

// ComputeMetrics derives the performance report from the daily assets series
// and the trade ledger. Ratios that divide by a zero denominator are
// reported as NaN, mirroring how the series math behaves, so clients can
// distinguish "no volatility" from a true zero.
func ComputeMetrics(in MetricsInput) models.Metrics {
	m := models.Metrics{}
	if len(in.Assets) == 0 {
		return m
	}

	m.Start = in.Assets[0].Date
	m.End = in.Assets[len(in.Assets)-1].Date
	m.Window = len(in.Assets)

	sells, wins := 0, 0
	for _, t := range in.Trades {
		m.TotalTrades++
		if t.Side.IsSell() {
			sells++
			if t.Profit.IsPositive() {
				wins++
			}
			p, _ := t.Profit.Float64()
			m.TotalProfit += p
		}
	}
	if sells > 0 {
		m.WinRate = float64(wins) / float64(sells)
	}

	final := in.Assets[len(in.Assets)-1].Assets
	if in.Principal > 0 {
		m.TotalReturn = final/in.Principal - 1
	}

	n := float64(len(in.Assets))
	annual := float64(in.AnnualDays)
	m.AnnualizedReturn = math.Pow(1+m.TotalReturn, annual/n) - 1

	returns := dailyReturns(in.Assets)
	rf := in.RiskFreeRate / annual

	m.MeanReturn = mean(returns)
	sd := stddev(returns)
	m.Volatility = sd * math.Sqrt(annual)

	excess := make([]float64, len(returns))
	var downside []float64
	for i, r := range returns {
		excess[i] = r - rf
		if r < 0 {
			downside = append(downside, r)
		}
	}
	m.Sharpe = mean(excess) / sd * math.Sqrt(annual)
	m.Sortino = mean(excess) / stddev(downside) * math.Sqrt(annual)

	m.MaxDrawdown = maxDrawdown(in.Assets)
	m.Calmar = m.AnnualizedReturn / math.Abs(m.MaxDrawdown)

	return m
}

// BaselineMetrics computes the same report for a buy-and-hold position in
// the benchmark symbol over [start, end], using its adjusted close series.
func BaselineMetrics(ctx context.Context, feed interfaces.MarketFeed, symbol string, start, end time.Time, rf float64, annualDays int) (*models.Metrics, error) {
	bars, err := feed.DayBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}

	assets := make([]models.AssetPoint, len(bars))
	for i, b := range bars {
		factor, err := feed.AdjustFactor(ctx, symbol, b.Frame)
		if err != nil {
			return nil, err
		}
		assets[i] = models.AssetPoint{Date: models.DateOf(b.Frame), Assets: b.Close * factor}
	}

	m := ComputeMetrics(MetricsInput{
		Principal:    assets[0].Assets,
		Assets:       assets,
		RiskFreeRate: rf,
		AnnualDays:   annualDays,
	})
	return &m, nil
}

func dailyReturns(assets []models.AssetPoint) []float64 {
	if len(assets) < 2 {
		return nil
	}
	out := make([]float64, 0, len(assets)-1)
	for i := 1; i < len(assets); i++ {
		out = append(out, assets[i].Assets/assets[i-1].Assets-1)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// maxDrawdown is the deepest peak-to-trough decline, as a non-positive
// fraction.
func maxDrawdown(assets []models.AssetPoint) float64 {
	peak := math.Inf(-1)
	mdd := 0.0
	for _, a := range assets {
		if a.Assets > peak {
			peak = a.Assets
		}
		dd := a.Assets/peak - 1
		if dd < mdd {
			mdd = dd
		}
	}
	return mdd
}
