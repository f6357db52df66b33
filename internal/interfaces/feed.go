// Package interfaces defines the external collaborator contracts for the
// backtest server.
package interfaces

import (
	"context"
	"time"

	"github.com/zillionare/backtesting/internal/models"
)

// MarketFeed is the narrow read-only view over the market-data provider.
// Every call may block on network I/O and carries the configured timeout;
// on expiry implementations return a FEED_TIMEOUT trade error.
type MarketFeed interface {
	// MinuteBars returns the minute bars for symbol from `from` (inclusive,
	// minute resolution) through the end of that trading day, in feed order.
	// An empty slice means the symbol did not trade that day.
	MinuteBars(ctx context.Context, symbol string, from time.Time) ([]models.Bar, error)

	// PriceLimits returns the daily upper/lower price band for symbol.
	PriceLimits(ctx context.Context, symbol string, date time.Time) (models.PriceLimit, error)

	// ClosePrice returns the close of symbol on date, or the closest
	// preceding non-suspended close within lookback trading days. When no
	// close exists in the window it returns models.ErrPriceUnavailable.
	ClosePrice(ctx context.Context, symbol string, date time.Time, lookback int) (float64, error)

	// Dividends returns the XDXR events for symbol in [start, end],
	// at most one per day.
	Dividends(ctx context.Context, symbol string, start, end time.Time) ([]models.DividendEvent, error)

	// AdjustFactor returns the cumulative adjustment factor of symbol on
	// date (the factor of the closest preceding trading day if suspended).
	AdjustFactor(ctx context.Context, symbol string, date time.Time) (float64, error)

	// DayBars returns the daily bars for symbol in [start, end], ascending.
	// Suspended days are absent from the result.
	DayBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error)

	// TradingCalendar returns the trading days in [start, end], ascending.
	TradingCalendar(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// SessionStore persists full backtest snapshots keyed by name.
type SessionStore interface {
	SaveSession(ctx context.Context, rec *models.SessionRecord) error
	GetSession(ctx context.Context, name string) (*models.SessionRecord, error)
	DeleteSession(ctx context.Context, name string) error
	ListSessions(ctx context.Context) ([]string, error)
	Close() error
}
