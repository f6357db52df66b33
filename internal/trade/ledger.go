package trade

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/zillionare/backtesting/internal/interfaces"
	"github.com/zillionare/backtesting/internal/models"
)

// epsilon below which a lot is considered empty and pruned. Sells after
// stock dividends leave fractional dust; carrying it forever distorts the
// T+1 sellable view.
var epsilon = decimal.New(1, -6)

// Ledger tracks the share lots of one account. Lots are kept FIFO per
// symbol for sell matching and cost-basis accounting. The ledger itself is
// not locked; the owning account serializes access.
type Ledger struct {
	lots map[string][]models.Lot
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{lots: make(map[string][]models.Lot)}
}

// NewLedgerFromLots restores a ledger from persisted lots.
func NewLedgerFromLots(lots []models.Lot) *Ledger {
	l := NewLedger()
	for _, lot := range lots {
		l.lots[lot.Symbol] = append(l.lots[lot.Symbol], lot)
	}
	return l
}

// Lots returns all lots in symbol order, FIFO within a symbol.
func (l *Ledger) Lots() []models.Lot {
	var out []models.Lot
	for _, sym := range l.Symbols() {
		out = append(out, l.lots[sym]...)
	}
	return out
}

// Symbols returns the held symbols in sorted order.
func (l *Ledger) Symbols() []string {
	syms := make([]string, 0, len(l.lots))
	for s := range l.lots {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

// Holds reports whether any lot of symbol exists.
func (l *Ledger) Holds(symbol string) bool {
	_, ok := l.lots[symbol]
	return ok
}

// Holding returns the total unadjusted shares held of symbol.
func (l *Ledger) Holding(symbol string) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.lots[symbol] {
		total = total.Add(lot.Shares)
	}
	return total
}

// Sellable returns the shares of symbol sellable on date: lots acquired
// strictly before date (T+1 rule).
func (l *Ledger) Sellable(symbol string, date time.Time) decimal.Decimal {
	d := models.DateOf(date)
	total := decimal.Zero
	for _, lot := range l.lots[symbol] {
		if models.DateOf(lot.AcquiredDate).Before(d) {
			total = total.Add(lot.Shares)
		}
	}
	return total
}

// ApplyBuy appends a new lot for a buy fill.
func (l *Ledger) ApplyBuy(symbol string, shares decimal.Decimal, price float64, date time.Time, factor float64) {
	l.lots[symbol] = append(l.lots[symbol], models.Lot{
		Symbol:         symbol,
		Shares:         shares,
		CostBasis:      price,
		AcquiredDate:   models.DateOf(date),
		AcquiredFactor: factor,
	})
}

// AddLot appends an arbitrary lot; used for zero-cost stock-dividend lots.
func (l *Ledger) AddLot(lot models.Lot) {
	lot.AcquiredDate = models.DateOf(lot.AcquiredDate)
	l.lots[lot.Symbol] = append(l.lots[lot.Symbol], lot)
}

// Renormalize rebases every lot of symbol into the frame of factor: cost
// basis is rescaled by acquired_factor/factor and the acquired factor set to
// factor. The effective cost (cost · acquired_factor / current_factor) is
// unchanged, so valuation and realized profit are unaffected.
func (l *Ledger) Renormalize(symbol string, factor float64) {
	lots := l.lots[symbol]
	for i := range lots {
		lots[i].CostBasis = lots[i].CostBasis * lots[i].AcquiredFactor / factor
		lots[i].AcquiredFactor = factor
	}
}

// ApplySell consumes shares of symbol FIFO across its lots and returns the
// realized profit against cost basis. Each lot's cost is rescaled into the
// sell date's adjustment frame (cost · acquired_factor / current_factor) so
// NAV is scale-invariant under corporate actions. Empty lots are dropped.
func (l *Ledger) ApplySell(symbol string, shares decimal.Decimal, price, currentFactor float64, date time.Time) (decimal.Decimal, error) {
	lots := l.lots[symbol]
	remaining := shares
	profit := decimal.Zero
	sellPrice := decimal.NewFromFloat(price)
	d := models.DateOf(date)

	kept := lots[:0]
	for _, lot := range lots {
		if remaining.IsPositive() && models.DateOf(lot.AcquiredDate).Before(d) {
			take := decimal.Min(lot.Shares, remaining)
			effCost := decimal.NewFromFloat(lot.CostBasis * lot.AcquiredFactor / currentFactor)
			profit = profit.Add(sellPrice.Sub(effCost).Mul(take))
			lot.Shares = lot.Shares.Sub(take)
			remaining = remaining.Sub(take)
		}
		if lot.Shares.GreaterThan(epsilon) {
			kept = append(kept, lot)
		}
	}

	if remaining.GreaterThan(epsilon) {
		return decimal.Zero, models.Rejected(models.CodePositionShort,
			"%s: %s shares asked, position short by %s", symbol, shares, remaining)
	}

	if len(kept) == 0 {
		delete(l.lots, symbol)
	} else {
		l.lots[symbol] = kept
	}
	return profit, nil
}

// SymbolValue values the holding of one symbol at date. Valuation uses the
// raw close re-inflated by the factor ratio:
//
//	value = Σ lot.shares · close(date) · factor(date) / lot.acquired_factor
//
// A symbol suspended longer than lookback trading days is valued at its
// weighted-average cost basis instead.
func (l *Ledger) SymbolValue(ctx context.Context, feed interfaces.MarketFeed, symbol string, date time.Time, lookback int) (float64, error) {
	lots := l.lots[symbol]
	if len(lots) == 0 {
		return 0, nil
	}

	price, err := feed.ClosePrice(ctx, symbol, date, lookback)
	if err != nil {
		if errors.Is(err, models.ErrPriceUnavailable) {
			total := decimal.Zero
			for _, lot := range lots {
				total = total.Add(lot.Shares.Mul(decimal.NewFromFloat(lot.CostBasis)))
			}
			v, _ := total.Float64()
			return v, nil
		}
		return 0, err
	}

	factor, err := feed.AdjustFactor(ctx, symbol, date)
	if err != nil {
		return 0, err
	}

	total := decimal.Zero
	for _, lot := range lots {
		scaled := decimal.NewFromFloat(price * factor / lot.AcquiredFactor)
		total = total.Add(lot.Shares.Mul(scaled))
	}
	v, _ := total.Float64()
	return v, nil
}

// Quote carries one symbol's prefetched valuation inputs for a date.
// PriceOK is false when no close exists within the lookback window; such
// symbols are valued at cost basis.
type Quote struct {
	Price   float64
	Factor  float64
	PriceOK bool
}

// FetchQuotes loads valuation quotes for symbols at date, concurrently.
// Callers use it to gather every feed input before committing state, so a
// feed failure cannot strand a half-applied mutation.
func FetchQuotes(ctx context.Context, feed interfaces.MarketFeed, symbols []string, date time.Time, lookback int) (map[string]Quote, error) {
	quotes := make(map[string]Quote, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			var q Quote
			price, err := feed.ClosePrice(gctx, sym, date, lookback)
			switch {
			case errors.Is(err, models.ErrPriceUnavailable):
				// cost-basis fallback
			case err != nil:
				return err
			default:
				factor, err := feed.AdjustFactor(gctx, sym, date)
				if err != nil {
					return err
				}
				q = Quote{Price: price, Factor: factor, PriceOK: true}
			}
			mu.Lock()
			quotes[sym] = q
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}

// ValueWith computes the portfolio market value from prefetched quotes,
// touching no I/O.
func (l *Ledger) ValueWith(quotes map[string]Quote) float64 {
	total := decimal.Zero
	for sym, lots := range l.lots {
		q := quotes[sym]
		for _, lot := range lots {
			if q.PriceOK {
				scaled := decimal.NewFromFloat(q.Price * q.Factor / lot.AcquiredFactor)
				total = total.Add(lot.Shares.Mul(scaled))
			} else {
				total = total.Add(lot.Shares.Mul(decimal.NewFromFloat(lot.CostBasis)))
			}
		}
	}
	v, _ := total.Float64()
	return v
}

// MarketValue values the whole portfolio at date, fetching per-symbol
// prices concurrently.
func (l *Ledger) MarketValue(ctx context.Context, feed interfaces.MarketFeed, date time.Time, lookback int) (float64, error) {
	symbols := l.Symbols()
	if len(symbols) == 0 {
		return 0, nil
	}
	quotes, err := FetchQuotes(ctx, feed, symbols, date, lookback)
	if err != nil {
		return 0, err
	}
	return l.ValueWith(quotes), nil
}

// Snapshot summarizes the portfolio at date: one row per held symbol with
// the T+1 sellable count and mark-to-market value.
func (l *Ledger) Snapshot(ctx context.Context, feed interfaces.MarketFeed, date time.Time, lookback int) ([]models.PositionView, error) {
	views := make([]models.PositionView, 0, len(l.lots))
	for _, sym := range l.Symbols() {
		lots := l.lots[sym]
		shares := l.Holding(sym)
		if shares.LessThanOrEqual(epsilon) {
			continue
		}

		cost := decimal.Zero
		for _, lot := range lots {
			cost = cost.Add(lot.Shares.Mul(decimal.NewFromFloat(lot.CostBasis)))
		}
		avgCost, _ := cost.Div(shares).Float64()

		value, err := l.SymbolValue(ctx, feed, sym, date, lookback)
		if err != nil {
			return nil, err
		}

		mktPrice := 0.0
		if f, _ := shares.Float64(); f > 0 {
			mktPrice = value / f
		}

		views = append(views, models.PositionView{
			Symbol:      sym,
			Shares:      shares,
			Sellable:    l.Sellable(sym, date),
			Cost:        avgCost,
			MarketPrice: mktPrice,
			MarketValue: value,
		})
	}
	return views, nil
}
