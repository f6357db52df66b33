// Package app wires the backtest server's components together.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/zillionare/backtesting/internal/clients/omega"
	"github.com/zillionare/backtesting/internal/common"
	"github.com/zillionare/backtesting/internal/interfaces"
	"github.com/zillionare/backtesting/internal/storage/badger"
	"github.com/zillionare/backtesting/internal/trade"
)

// calendarSpan is how far the trading calendar is preloaded around now.
const calendarSpan = 20 * 365 * 24 * time.Hour

// App aggregates the process-wide singletons: config, logger, the feed
// client, the trading calendar, the account registry and the session store.
// Only the registry is mutated after startup.
type App struct {
	Config   *common.Config
	Logger   *common.Logger
	Feed     interfaces.MarketFeed
	Calendar *trade.Calendar
	Registry *trade.Registry
	Sessions interfaces.SessionStore

	store *badger.Store
}

// New builds the application from config. The trading calendar is fetched
// once at startup; backtests never reach outside the preloaded span.
func New(ctx context.Context, cfg *common.Config) (*App, error) {
	logger := common.NewLogger(cfg.Logging.Level)

	feed := omega.NewClient(cfg.Feed.APIToken,
		omega.WithBaseURL(cfg.Feed.BaseURL),
		omega.WithRateLimit(cfg.Feed.RateLimit),
		omega.WithTimeout(cfg.Feed.GetTimeout()),
		omega.WithLogger(logger),
	)

	now := time.Now()
	days, err := feed.TradingCalendar(ctx, now.Add(-calendarSpan), now.Add(calendarSpan/20))
	if err != nil {
		return nil, fmt.Errorf("load trading calendar: %w", err)
	}
	cal := trade.NewCalendar(days)
	logger.Info().Int("days", cal.Count(now.Add(-calendarSpan), now.Add(calendarSpan/20))).
		Msg("Trading calendar loaded")

	store, err := badger.NewStore(logger, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Feed:     feed,
		Calendar: cal,
		Registry: trade.NewRegistry(feed, cal, cfg, logger),
		Sessions: badger.NewSessionStorage(store, logger),
		store:    store,
	}, nil
}

// NewWithComponents builds an App from pre-built collaborators; used by
// tests to inject an in-memory feed and store.
func NewWithComponents(cfg *common.Config, logger *common.Logger, feed interfaces.MarketFeed, cal *trade.Calendar, sessions interfaces.SessionStore) *App {
	return &App{
		Config:   cfg,
		Logger:   logger,
		Feed:     feed,
		Calendar: cal,
		Registry: trade.NewRegistry(feed, cal, cfg, logger),
		Sessions: sessions,
	}
}

// Close releases held resources.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
