package server

import (
	"net/http"
	"time"

	"github.com/zillionare/backtesting/internal/common"
)

// registerRoutes sets up all trade API routes on the mux under the
// configured prefix.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	route := func(path string, h http.HandlerFunc) {
		mux.HandleFunc(s.prefix+path, h)
	}

	// System
	route("/status", s.handleStatus)

	// Account lifecycle
	route("/start_backtest", s.handleStartBacktest)
	route("/stop_backtest", s.handleStopBacktest)
	route("/delete_accounts", s.handleDeleteAccounts)
	route("/accounts", s.handleAccounts)

	// Trading
	route("/buy", s.handleBuy)
	route("/market_buy", s.handleMarketBuy)
	route("/sell", s.handleSell)
	route("/market_sell", s.handleMarketSell)
	route("/sell_percent", s.handleSellPercent)

	// State reads
	route("/info", s.handleInfo)
	route("/positions", s.handlePositions)
	route("/bills", s.handleBills)
	route("/get_assets", s.handleAssets)
	route("/metrics", s.handleMetrics)

	// Persistence
	route("/save_backtest", s.handleSaveBacktest)
	route("/load_backtest", s.handleLoadBacktest)
}

// handleStatus reports liveness and version.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteData(w, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"uptime":  time.Since(s.start).Round(time.Second).String(),
	})
}
