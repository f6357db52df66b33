package trade

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zillionare/backtesting/internal/common"
	"github.com/zillionare/backtesting/internal/interfaces"
	"github.com/zillionare/backtesting/internal/models"
)

// AccountParams configures a new backtest account.
type AccountParams struct {
	Name       string
	Token      string
	Principal  float64
	Commission float64
	Start      time.Time
	End        time.Time
}

// Account is one backtest session: cash, the lot ledger, the append-only
// entrust and trade logs, and the daily assets table. All mutating
// operations serialize on the account mutex and hold it across feed calls,
// so an order advances corporate actions, matches and commits as one
// critical section.
type Account struct {
	mu sync.Mutex

	name       string
	token      string
	principal  float64
	commission decimal.Decimal
	start      time.Time
	end        time.Time

	cash     decimal.Decimal
	ledger   *Ledger
	entrusts []models.Entrust
	trades   []models.Trade
	assets   []models.AssetPoint // ascending by date

	lastOrderTime time.Time
	xdxrCursor    time.Time
	stopped       bool

	feed   interfaces.MarketFeed
	cal    *Calendar
	cfg    *common.Config
	logger *common.Logger
}

// NewAccount creates an account with cash seeded to the principal and the
// corporate-action cursor at the start date.
func NewAccount(p AccountParams, feed interfaces.MarketFeed, cal *Calendar, cfg *common.Config, logger *common.Logger) *Account {
	return &Account{
		name:       p.Name,
		token:      p.Token,
		principal:  p.Principal,
		commission: decimal.NewFromFloat(p.Commission),
		start:      models.DateOf(p.Start),
		end:        models.DateOf(p.End),
		cash:       decimal.NewFromFloat(p.Principal),
		ledger:     NewLedger(),
		xdxrCursor: models.DateOf(p.Start),
		feed:       feed,
		cal:        cal,
		cfg:        cfg,
		logger:     logger,
	}
}

// RestoreAccount rebuilds an account from a persisted state snapshot.
func RestoreAccount(st models.AccountState, feed interfaces.MarketFeed, cal *Calendar, cfg *common.Config, logger *common.Logger) *Account {
	a := &Account{
		name:       st.Name,
		token:      st.Token,
		principal:  st.Principal,
		commission: decimal.NewFromFloat(st.Commission),
		start:      models.DateOf(st.Start),
		end:        models.DateOf(st.End),
		cash:       st.Cash,
		ledger:     NewLedgerFromLots(st.Lots),
		entrusts:   st.Entrusts,
		trades:     st.Trades,
		assets:     st.Assets,
		xdxrCursor: st.XDXRCursor,
		stopped:    st.Stopped,
		feed:       feed,
		cal:        cal,
		cfg:        cfg,
		logger:     logger,
	}
	for _, e := range st.Entrusts {
		if e.Status != models.StatusRejected && e.OrderTime.After(a.lastOrderTime) {
			a.lastOrderTime = e.OrderTime
		}
	}
	return a
}

// Name returns the account name.
func (a *Account) Name() string { return a.name }

// Token returns the account's access token.
func (a *Account) Token() string { return a.token }

// Buy places a limit buy order.
func (a *Account) Buy(ctx context.Context, symbol string, price float64, shares decimal.Decimal, orderTime time.Time) (*models.Bill, error) {
	return a.placeOrder(ctx, models.SideBuy, symbol, &price, shares, orderTime)
}

// MarketBuy places a buy order with no price cap.
func (a *Account) MarketBuy(ctx context.Context, symbol string, shares decimal.Decimal, orderTime time.Time) (*models.Bill, error) {
	return a.placeOrder(ctx, models.SideMarketBuy, symbol, nil, shares, orderTime)
}

// Sell places a limit sell order.
func (a *Account) Sell(ctx context.Context, symbol string, price float64, shares decimal.Decimal, orderTime time.Time) (*models.Bill, error) {
	return a.placeOrder(ctx, models.SideSell, symbol, &price, shares, orderTime)
}

// MarketSell places a sell order with no price floor.
func (a *Account) MarketSell(ctx context.Context, symbol string, shares decimal.Decimal, orderTime time.Time) (*models.Bill, error) {
	return a.placeOrder(ctx, models.SideMarketSell, symbol, nil, shares, orderTime)
}

// SellPercent sells the given fraction of the sellable position, in (0, 1].
func (a *Account) SellPercent(ctx context.Context, symbol string, percent float64, orderTime time.Time) (*models.Bill, error) {
	if percent <= 0 || percent > 1 {
		return nil, models.BadParam(models.CodeBadParam, "percent must be in (0, 1], got %v", percent)
	}
	return a.placeOrder(ctx, models.SideSellPercent, symbol, nil, decimal.NewFromFloat(percent), orderTime)
}

// placeOrder runs the full order pipeline under the account lock:
// validate, advance corporate actions, match, check funds or position,
// then commit the fill and the daily assets rows as one step.
func (a *Account) placeOrder(ctx context.Context, side models.OrderSide, symbol string, price *float64, shares decimal.Decimal, orderTime time.Time) (*models.Bill, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return nil, models.AccountErr(models.CodeAccountFrozen, "backtest %s already stopped", a.name)
	}
	if symbol == "" {
		return nil, models.BadParam(models.CodeUnknownSymbol, "empty symbol")
	}
	if !shares.IsPositive() {
		return nil, models.BadParam(models.CodeLotSize, "shares must be positive, got %s", shares)
	}
	if side.IsBuy() && !shares.Mod(lotSize).IsZero() {
		return nil, models.BadParam(models.CodeLotSize, "buy shares must be a multiple of 100, got %s", shares)
	}

	date := models.DateOf(orderTime)
	if date.Before(a.start) || date.After(a.end) {
		return nil, models.BadParam(models.CodeBadDatetime,
			"%s outside backtest window [%s, %s]",
			date.Format(models.DateLayout), a.start.Format(models.DateLayout), a.end.Format(models.DateLayout))
	}
	if !a.cal.IsTradingDay(date) {
		return nil, models.BadParam(models.CodeBadDatetime, "%s is not a trading day", date.Format(models.DateLayout))
	}
	if !orderTime.After(a.lastOrderTime) {
		return nil, models.Rejected(models.CodeTimeRewind,
			"order time %s not after last order %s",
			orderTime.Format(models.MinuteLayout), a.lastOrderTime.Format(models.MinuteLayout))
	}

	// Corporate actions apply before the order and stay applied even if the
	// order is then rejected: the cursor tracks market time, not order fate.
	if err := a.advanceXDXR(ctx, date); err != nil {
		return nil, err
	}

	if a.cfg.Trading.BlockOnSuspension {
		if err := a.checkHeldSuspensions(ctx, symbol, date); err != nil {
			return nil, err
		}
	}

	entrust := models.Entrust{
		ID:        uuid.NewString(),
		Account:   a.name,
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Shares:    shares,
		OrderTime: orderTime,
		Status:    models.StatusNew,
	}

	bill, err := a.executeOrder(ctx, &entrust)
	if err != nil {
		entrust.Status = models.StatusRejected
		if te, ok := models.AsTradeError(err); ok {
			entrust.Reason = te.Message
		} else {
			entrust.Reason = err.Error()
		}
		a.entrusts = append(a.entrusts, entrust)
		a.logger.Debug().Str("account", a.name).Str("symbol", symbol).
			Str("side", string(side)).Err(err).Msg("Order rejected")
		return nil, err
	}

	a.lastOrderTime = orderTime
	return bill, nil
}

// executeOrder matches and commits one validated entrust.
func (a *Account) executeOrder(ctx context.Context, entrust *models.Entrust) (*models.Bill, error) {
	symbol, orderTime := entrust.Symbol, entrust.OrderTime
	date := models.DateOf(orderTime)

	shares := entrust.Shares
	if entrust.Side == models.SideSellPercent {
		sellable := a.ledger.Sellable(symbol, date)
		shares = sellable.Mul(entrust.Shares)
		if !shares.IsPositive() {
			return nil, models.Rejected(models.CodePositionShort, "no sellable %s shares", symbol)
		}
	} else if entrust.Side.IsSell() {
		sellable := a.ledger.Sellable(symbol, date)
		if shares.GreaterThan(sellable) {
			return nil, models.Rejected(models.CodePositionShort,
				"%s: %s shares asked, %s sellable", symbol, shares, sellable)
		}
	}

	bars, err := a.feed.MinuteBars(ctx, symbol, orderTime)
	if err != nil {
		return nil, err
	}
	limits, err := a.feed.PriceLimits(ctx, symbol, date)
	if err != nil {
		return nil, err
	}

	fill, err := MatchOrder(MatchRequest{
		Side:       entrust.Side,
		LimitPrice: entrust.Price,
		Shares:     shares,
		OrderTime:  orderTime,
	}, bars, limits)
	if err != nil {
		return nil, err
	}

	fillPrice := decimal.NewFromFloat(fill.Price)
	fee := fill.Shares.Mul(fillPrice).Mul(a.commission)

	factor, err := a.feed.AdjustFactor(ctx, symbol, date)
	if err != nil {
		return nil, err
	}

	// Everything the commit needs from the feed is gathered here: the gap
	// rows are valued with the pre-trade portfolio, the trade-day quotes
	// value the post-trade one. No feed call happens past this point, so a
	// feed failure cannot strand a half-applied order.
	gapRows, err := a.missingAssetRows(ctx, date)
	if err != nil {
		return nil, err
	}
	quoted := a.ledger.Symbols()
	if !a.ledger.Holds(symbol) {
		quoted = append(quoted, symbol)
	}
	quotes, err := FetchQuotes(ctx, a.feed, quoted, date, a.cfg.Trading.SuspendLimitDays)
	if err != nil {
		return nil, err
	}

	trade := models.Trade{
		ID:        uuid.NewString(),
		OrderID:   entrust.ID,
		Symbol:    symbol,
		Side:      entrust.Side,
		Shares:    fill.Shares,
		Price:     fill.Price,
		Fee:       fee,
		TradeTime: fill.FillTime,
		Profit:    decimal.Zero,
	}

	if entrust.Side.IsBuy() {
		cost := fill.Shares.Mul(fillPrice).Add(fee)
		if cost.GreaterThan(a.cash) {
			return nil, models.Rejected(models.CodeCashShortage,
				"need %s, available %s", cost.StringFixed(2), a.cash.StringFixed(2))
		}
		a.ledger.ApplyBuy(symbol, fill.Shares, fill.Price, date, factor)
		a.cash = a.cash.Sub(cost)
	} else {
		profit, err := a.ledger.ApplySell(symbol, fill.Shares, fill.Price, factor, date)
		if err != nil {
			return nil, err
		}
		trade.Profit = profit.Sub(fee)
		a.cash = a.cash.Add(fill.Shares.Mul(fillPrice)).Sub(fee)
	}

	entrust.Status = fill.Status
	a.entrusts = append(a.entrusts, *entrust)
	a.trades = append(a.trades, trade)

	for _, row := range gapRows {
		a.upsertAsset(row)
	}
	cash, _ := a.cash.Float64()
	a.upsertAsset(models.AssetPoint{Date: date, Assets: cash + a.ledger.ValueWith(quotes)})

	a.logger.Info().Str("account", a.name).Str("symbol", symbol).
		Str("side", string(entrust.Side)).Str("shares", fill.Shares.String()).
		Float64("price", fill.Price).Msg("Order filled")

	return &models.Bill{Entrust: *entrust, Trades: []models.Trade{trade}}, nil
}

// advanceXDXR replays corporate actions through date and commits their cash
// and lot effects immediately.
func (a *Account) advanceXDXR(ctx context.Context, date time.Time) error {
	if !date.After(a.xdxrCursor) {
		return nil
	}
	trades, cashDelta, err := ForwardXDXR(ctx, a.feed, a.cal, a.ledger, a.xdxrCursor, date)
	if err != nil {
		return err
	}
	a.cash = a.cash.Add(cashDelta)
	a.trades = append(a.trades, trades...)
	a.xdxrCursor = date
	return nil
}

// checkHeldSuspensions rejects the order when any held symbol other than
// the ordered one is suspended on date. The default policy permits trading
// around suspensions; this stricter mode is opt-in.
func (a *Account) checkHeldSuspensions(ctx context.Context, ordered string, date time.Time) error {
	for _, sym := range a.ledger.Symbols() {
		if sym == ordered {
			continue
		}
		bars, err := a.feed.DayBars(ctx, sym, date, date)
		if err != nil {
			return err
		}
		if len(bars) == 0 {
			return models.Rejected(models.CodeSuspended, "held symbol %s suspended on %s",
				sym, date.Format(models.DateLayout))
		}
	}
	return nil
}

// missingAssetRows values every untouched trading day since the last assets
// row, exclusive of date itself, with the current cash and holdings. Rows
// are returned rather than committed so a later failure leaves the table
// as written; historical rows are never recomputed.
func (a *Account) missingAssetRows(ctx context.Context, date time.Time) ([]models.AssetPoint, error) {
	from := a.start
	if n := len(a.assets); n > 0 {
		from = a.assets[n-1].Date
	}
	cash, _ := a.cash.Float64()

	var rows []models.AssetPoint
	for _, d := range a.cal.Between(from, date) {
		if !d.Before(date) || a.hasAsset(d) {
			continue
		}
		mv, err := a.ledger.MarketValue(ctx, a.feed, d, a.cfg.Trading.SuspendLimitDays)
		if err != nil {
			return nil, err
		}
		rows = append(rows, models.AssetPoint{Date: d, Assets: cash + mv})
	}
	return rows, nil
}

// refreshAssets fills every untouched trading day since the last assets row
// through date, date included, valuing the current portfolio.
func (a *Account) refreshAssets(ctx context.Context, date time.Time) error {
	rows, err := a.missingAssetRows(ctx, date)
	if err != nil {
		return err
	}
	for _, row := range rows {
		a.upsertAsset(row)
	}
	if a.cal.IsTradingDay(date) && !a.hasAsset(date) {
		mv, err := a.ledger.MarketValue(ctx, a.feed, date, a.cfg.Trading.SuspendLimitDays)
		if err != nil {
			return err
		}
		cash, _ := a.cash.Float64()
		a.upsertAsset(models.AssetPoint{Date: date, Assets: cash + mv})
	}
	return nil
}

func (a *Account) hasAsset(d time.Time) bool {
	i := sort.Search(len(a.assets), func(i int) bool { return !a.assets[i].Date.Before(d) })
	return i < len(a.assets) && a.assets[i].Date.Equal(d)
}

func (a *Account) upsertAsset(p models.AssetPoint) {
	i := sort.Search(len(a.assets), func(i int) bool { return !a.assets[i].Date.Before(p.Date) })
	if i < len(a.assets) && a.assets[i].Date.Equal(p.Date) {
		a.assets[i] = p
		return
	}
	a.assets = append(a.assets, models.AssetPoint{})
	copy(a.assets[i+1:], a.assets[i:])
	a.assets[i] = p
}

// Stop freezes the account and forward-fills the assets table through the
// end date so the final report is already materialized.
func (a *Account) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return nil
	}
	if err := a.advanceXDXR(ctx, a.end); err != nil {
		return err
	}
	if err := a.refreshAssets(ctx, a.end); err != nil {
		return err
	}
	a.stopped = true
	a.logger.Info().Str("account", a.name).Msg("Backtest stopped")
	return nil
}

// valuationDate is the account's notion of "now": the last asset row if one
// exists, else the start date.
func (a *Account) valuationDate() time.Time {
	if n := len(a.assets); n > 0 {
		return a.assets[n-1].Date
	}
	return a.start
}

// Info returns the account summary valued at the latest touched date.
func (a *Account) Info(ctx context.Context) (*models.AccountInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	date := a.valuationDate()
	positions, err := a.ledger.Snapshot(ctx, a.feed, date, a.cfg.Trading.SuspendLimitDays)
	if err != nil {
		return nil, err
	}

	mv := 0.0
	for _, p := range positions {
		mv += p.MarketValue
	}
	cash, _ := a.cash.Float64()
	assets := cash + mv

	info := &models.AccountInfo{
		Name:        a.name,
		Principal:   a.principal,
		Start:       a.start,
		End:         a.end,
		Stopped:     a.stopped,
		Assets:      assets,
		Available:   cash,
		MarketValue: mv,
		Pnl:         assets - a.principal,
		Positions:   positions,
	}
	if a.principal > 0 {
		info.Ppnl = info.Pnl / a.principal
	}
	if !a.lastOrderTime.IsZero() {
		t := a.lastOrderTime
		info.LastTrade = &t
	}
	return info, nil
}

// Positions returns the portfolio snapshot at date (the latest touched date
// when date is zero).
func (a *Account) Positions(ctx context.Context, date time.Time) ([]models.PositionView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if date.IsZero() {
		date = a.valuationDate()
	}
	return a.ledger.Snapshot(ctx, a.feed, models.DateOf(date), a.cfg.Trading.SuspendLimitDays)
}

// Bills returns the entrust log with each entrust's trades attached.
func (a *Account) Bills() []models.Bill {
	a.mu.Lock()
	defer a.mu.Unlock()

	byOrder := make(map[string][]models.Trade, len(a.trades))
	for _, t := range a.trades {
		if t.OrderID != "" {
			byOrder[t.OrderID] = append(byOrder[t.OrderID], t)
		}
	}
	bills := make([]models.Bill, 0, len(a.entrusts))
	for _, e := range a.entrusts {
		bills = append(bills, models.Bill{Entrust: e, Trades: byOrder[e.ID]})
	}
	return bills
}

// Assets returns a copy of the daily assets table.
func (a *Account) Assets() []models.AssetPoint {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.AssetPoint, len(a.assets))
	copy(out, a.assets)
	return out
}

// Trades returns a copy of the trade log, synthetic XDXR trades included.
func (a *Account) Trades() []models.Trade {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.Trade, len(a.trades))
	copy(out, a.trades)
	return out
}

// Metrics computes the performance report. A non-empty baseline symbol adds
// a buy-and-hold benchmark computed over the same window.
func (a *Account) Metrics(ctx context.Context, baseline string) (*models.Metrics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := ComputeMetrics(MetricsInput{
		Principal:    a.principal,
		Assets:       a.assets,
		Trades:       a.trades,
		RiskFreeRate: a.cfg.Metrics.RiskFreeRate,
		AnnualDays:   a.cfg.Metrics.AnnualDays,
	})

	if baseline != "" && len(a.assets) > 0 {
		bm, err := BaselineMetrics(ctx, a.feed, baseline,
			m.Start, m.End, a.cfg.Metrics.RiskFreeRate, a.cfg.Metrics.AnnualDays)
		if err != nil {
			a.logger.Warn().Str("baseline", baseline).Err(err).Msg("Baseline metrics unavailable")
		} else {
			m.Baseline = bm
		}
	}
	return &m, nil
}

// State serializes the full account for session persistence.
func (a *Account) State() models.AccountState {
	a.mu.Lock()
	defer a.mu.Unlock()

	commission, _ := a.commission.Float64()
	return models.AccountState{
		Name:       a.name,
		Token:      a.token,
		Principal:  a.principal,
		Commission: commission,
		Start:      a.start,
		End:        a.end,
		Cash:       a.cash,
		Lots:       a.ledger.Lots(),
		Entrusts:   append([]models.Entrust(nil), a.entrusts...),
		Trades:     append([]models.Trade(nil), a.trades...),
		Assets:     append([]models.AssetPoint(nil), a.assets...),
		XDXRCursor: a.xdxrCursor,
		Stopped:    a.stopped,
	}
}
