package trade

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zillionare/backtesting/internal/interfaces"
	"github.com/zillionare/backtesting/internal/models"
)

// ForwardXDXR replays the corporate actions on held lots for every trading
// day in (cursor, target]. Cash dividends accrue to the returned cash delta;
// stock dividends and splits append zero-cost lots acquired on the event
// day. After each event the symbol's lots are renormalized into the
// event-day adjustment frame, which keeps NAV continuous across the event:
// the price drop the exchange applies on the ex date is exactly offset by
// the added cash and shares.
//
// One synthetic XDXR trade is emitted per event. Its price records the cash
// per share and its shares the stock component; both are bookkeeping for the
// bill, not matched fills. XDXR trades carry no fee.
func ForwardXDXR(ctx context.Context, feed interfaces.MarketFeed, cal *Calendar, ledger *Ledger, cursor, target time.Time) ([]models.Trade, decimal.Decimal, error) {
	cashDelta := decimal.Zero
	var trades []models.Trade

	from, ok := cal.NextAfter(cursor)
	if !ok || from.After(models.DateOf(target)) {
		return nil, cashDelta, nil
	}

	for _, symbol := range ledger.Symbols() {
		events, err := feed.Dividends(ctx, symbol, from, models.DateOf(target))
		if err != nil {
			return nil, decimal.Zero, err
		}

		for _, ev := range events {
			held := ledger.Holding(symbol)
			if !held.IsPositive() {
				continue
			}

			cashDelta = cashDelta.Add(held.Mul(decimal.NewFromFloat(ev.CashPerShare)))

			factor, err := feed.AdjustFactor(ctx, symbol, ev.Date)
			if err != nil {
				return nil, decimal.Zero, err
			}
			ledger.Renormalize(symbol, factor)

			newShares := held.Mul(decimal.NewFromFloat(ev.ShareRatio + ev.NewShareRatio))
			if newShares.GreaterThan(epsilon) {
				ledger.AddLot(models.Lot{
					Symbol:         symbol,
					Shares:         newShares,
					CostBasis:      0,
					AcquiredDate:   ev.Date,
					AcquiredFactor: factor,
				})
			}

			trades = append(trades, models.Trade{
				ID:        uuid.NewString(),
				Symbol:    symbol,
				Side:      models.SideXDXR,
				Shares:    newShares,
				Price:     ev.CashPerShare,
				Fee:       decimal.Zero,
				TradeTime: ev.Date,
				Profit:    decimal.Zero,
			})
		}
	}

	return trades, cashDelta, nil
}
