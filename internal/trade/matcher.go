package trade

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zillionare/backtesting/internal/models"
)

// openRuleCutoff is 09:31 in minutes-of-day. Orders placed at or before it
// are evaluated against the first bar's open instead of its close, so that
// "buy at next-day open" strategies fill at the opening auction price.
const openRuleCutoff = 9*60 + 31

// lotSize is the exchange board lot; buys fill in multiples of it.
var lotSize = decimal.NewFromInt(100)

// priceEqual compares prices at cent resolution, matching how price limits
// are published.
func priceEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}

// MatchRequest is one order presented to the matcher.
type MatchRequest struct {
	Side       models.OrderSide
	LimitPrice *float64 // nil for market orders
	Shares     decimal.Decimal
	OrderTime  time.Time
}

// quote is one bar reduced to its matchable form.
type quote struct {
	price     float64
	volume    decimal.Decimal
	unlimited bool
	frame     time.Time
	taken     decimal.Decimal
}

// MatchOrder matches one order against the day's bar stream. Bars must start
// at the order minute and run to the session close, in feed order (ties at
// the same minute are consumed in feed order). limits is the day's price
// band for the symbol.
//
// Bars whose price sits at the blocking limit (upper for buys, lower for
// sells) represent uncrossable one-sided markets and are discarded; bars at
// the opposite limit are one-sided in the order's favor and fill without a
// volume cap.
func MatchOrder(req MatchRequest, bars []models.Bar, limits models.PriceLimit) (models.Fill, error) {
	if len(bars) == 0 {
		return models.Fill{}, models.Rejected(models.CodeSuspended,
			"no bars to match at %s", req.OrderTime.Format(models.MinuteLayout))
	}

	blocking, boosted := limits.Upper, limits.Lower
	if req.Side.IsSell() {
		blocking, boosted = limits.Lower, limits.Upper
	}

	quotes := make([]*quote, 0, len(bars))
	sawCrossable := false
	for i, b := range bars {
		price := b.Close
		if i == 0 && minuteOfDay(req.OrderTime) <= openRuleCutoff {
			price = b.Open
		}

		if priceEqual(price, blocking) {
			continue
		}
		sawCrossable = true

		if req.LimitPrice != nil && !priceEqual(price, *req.LimitPrice) {
			if req.Side.IsBuy() && price > *req.LimitPrice {
				continue
			}
			if req.Side.IsSell() && price < *req.LimitPrice {
				continue
			}
		}

		quotes = append(quotes, &quote{
			price:     price,
			volume:    decimal.NewFromFloat(b.Volume),
			unlimited: priceEqual(price, boosted),
			frame:     b.Frame,
		})
	}

	if len(quotes) == 0 {
		if !sawCrossable {
			return models.Fill{}, models.Rejected(models.CodePriceLimit,
				"%s blocked at price limit %.2f", req.Side, blocking)
		}
		return models.Fill{}, models.Rejected(models.CodeNoMatch, "limit price never met")
	}

	remaining := req.Shares
	for _, q := range quotes {
		take := remaining
		if !q.unlimited && q.volume.LessThan(take) {
			take = q.volume
		}
		q.taken = take
		remaining = remaining.Sub(take)
		if remaining.IsZero() {
			break
		}
	}

	filled := decimal.Zero
	for _, q := range quotes {
		filled = filled.Add(q.taken)
	}

	if req.Side.IsBuy() {
		// board lots only; trim the excess off the tail of the fill
		excess := filled.Mod(lotSize)
		filled = filled.Sub(excess)
		for i := len(quotes) - 1; i >= 0 && excess.IsPositive(); i-- {
			cut := decimal.Min(quotes[i].taken, excess)
			quotes[i].taken = quotes[i].taken.Sub(cut)
			excess = excess.Sub(cut)
		}
	}

	if filled.IsZero() {
		return models.Fill{}, models.Rejected(models.CodeVolumeNotEnough,
			"price met but no volume available")
	}

	money := decimal.Zero
	fillTime := quotes[0].frame
	for _, q := range quotes {
		if q.taken.IsZero() {
			continue
		}
		money = money.Add(decimal.NewFromFloat(q.price).Mul(q.taken))
		fillTime = q.frame
	}

	avg, _ := money.Div(filled).Float64()

	status := models.StatusFilled
	if filled.LessThan(req.Shares) {
		status = models.StatusPartial
	}

	return models.Fill{
		Shares:   filled,
		Price:    avg,
		FillTime: fillTime,
		Status:   status,
	}, nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
