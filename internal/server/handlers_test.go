package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zillionare/backtesting/internal/app"
	"github.com/zillionare/backtesting/internal/common"
	"github.com/zillionare/backtesting/internal/models"
	"github.com/zillionare/backtesting/internal/trade"
)

const (
	prefix     = "/backtest/api/trade/v0.3"
	testSymbol = "000001.XSHE"
)

// fakeFeed serves canned market data for handler tests: one symbol trading
// every weekday of March 2022 at a flat 10.00 close with deep volume.
type fakeFeed struct {
	days []time.Time
}

func newFakeFeed() *fakeFeed {
	var days []time.Time
	start, _ := models.ParseDate("2022-03-01")
	end, _ := models.ParseDate("2022-03-31")
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return &fakeFeed{days: days}
}

func (f *fakeFeed) MinuteBars(_ context.Context, symbol string, from time.Time) ([]models.Bar, error) {
	return []models.Bar{{
		Frame: from, Open: 10.0, High: 10.0, Low: 10.0, Close: 10.0, Volume: 1e8,
	}}, nil
}

func (f *fakeFeed) DayBars(_ context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	var out []models.Bar
	for _, d := range f.days {
		if !d.Before(models.DateOf(start)) && !d.After(models.DateOf(end)) {
			out = append(out, models.Bar{Frame: d, Open: 10, High: 10, Low: 10, Close: 10, Volume: 1e8})
		}
	}
	return out, nil
}

func (f *fakeFeed) PriceLimits(_ context.Context, symbol string, _ time.Time) (models.PriceLimit, error) {
	return models.PriceLimit{Symbol: symbol, Upper: 11.0, Lower: 9.0}, nil
}

func (f *fakeFeed) ClosePrice(_ context.Context, _ string, _ time.Time, _ int) (float64, error) {
	return 10.0, nil
}

func (f *fakeFeed) Dividends(_ context.Context, _ string, _, _ time.Time) ([]models.DividendEvent, error) {
	return nil, nil
}

func (f *fakeFeed) AdjustFactor(_ context.Context, _ string, _ time.Time) (float64, error) {
	return 1.0, nil
}

func (f *fakeFeed) TradingCalendar(_ context.Context, start, end time.Time) ([]time.Time, error) {
	return f.days, nil
}

// memSessions is an in-memory SessionStore.
type memSessions struct {
	mu   sync.Mutex
	recs map[string]models.SessionRecord
}

func newMemSessions() *memSessions {
	return &memSessions{recs: make(map[string]models.SessionRecord)}
}

func (m *memSessions) SaveSession(_ context.Context, rec *models.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.SavedAt = time.Now()
	m.recs[rec.Name] = *rec
	return nil
}

func (m *memSessions) GetSession(_ context.Context, name string) (*models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[name]
	if !ok {
		return nil, models.AccountErr(models.CodeNotFound, "session %s not found", name)
	}
	return &rec, nil
}

func (m *memSessions) DeleteSession(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, name)
	return nil
}

func (m *memSessions) ListSessions(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.recs))
	for n := range m.recs {
		names = append(names, n)
	}
	return names, nil
}

func (m *memSessions) Close() error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Metrics.Baseline = "" // no benchmark in handler tests
	logger := common.NewSilentLogger()
	feed := newFakeFeed()
	a := app.NewWithComponents(cfg, logger, feed, trade.NewCalendar(feed.days), newMemSessions())
	return NewServer(a)
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, prefix+path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp), rec.Body.String())
	return rec, resp
}

func startAccount(t *testing.T, srv *Server, name string) string {
	t.Helper()
	_, resp := doJSON(t, srv, http.MethodPost, "/start_backtest", "", map[string]interface{}{
		"name": name, "principal": 1_000_000, "commission": 1e-4,
		"start": "2022-03-01", "end": "2022-03-31",
	})
	require.Equal(t, "success", resp.Status, resp.Message)
	data := resp.Data.(map[string]interface{})
	return data["token"].(string)
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t)

	rec, resp := doJSON(t, srv, http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.NotEmpty(t, data["version"])
}

func TestStartBacktest_GeneratesToken(t *testing.T) {
	srv := newTestServer(t)
	token := startAccount(t, srv, "alpha")
	assert.NotEmpty(t, token)
}

func TestStartBacktest_DuplicateName(t *testing.T) {
	srv := newTestServer(t)
	startAccount(t, srv, "alpha")

	rec, resp := doJSON(t, srv, http.MethodPost, "/start_backtest", "", map[string]interface{}{
		"name": "alpha", "principal": 1_000_000, "commission": 1e-4,
		"start": "2022-03-01", "end": "2022-03-31",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, models.CodeAccountExists, resp.Code)
}

func TestBuy_Success(t *testing.T) {
	srv := newTestServer(t)
	token := startAccount(t, srv, "alpha")

	rec, resp := doJSON(t, srv, http.MethodPost, "/buy", token, map[string]interface{}{
		"symbol": testSymbol, "price": 10.5, "volume": 1000,
		"order_time": "2022-03-01 09:40:00",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "success", resp.Status, resp.Message)

	data := resp.Data.(map[string]interface{})
	entrust := data["entrust"].(map[string]interface{})
	assert.Equal(t, string(models.StatusFilled), entrust["status"])
}

func TestBuy_RejectionKeepsEnvelopeAt200(t *testing.T) {
	srv := newTestServer(t)
	token := startAccount(t, srv, "alpha")

	// limit below the market never matches
	rec, resp := doJSON(t, srv, http.MethodPost, "/buy", token, map[string]interface{}{
		"symbol": testSymbol, "price": 9.5, "volume": 1000,
		"order_time": "2022-03-01 09:40:00",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, models.CodeNoMatch, resp.Code)
	assert.NotEmpty(t, resp.Message)
}

func TestTrade_RequiresToken(t *testing.T) {
	srv := newTestServer(t)

	rec, resp := doJSON(t, srv, http.MethodPost, "/buy", "", map[string]interface{}{
		"symbol": testSymbol, "price": 10.0, "volume": 100,
		"order_time": "2022-03-01 09:40:00",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, models.CodeUnauthorized, resp.Code)

	rec, _ = doJSON(t, srv, http.MethodGet, "/info", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	_ = resp
}

func TestInfoAndPositionsAfterTrade(t *testing.T) {
	srv := newTestServer(t)
	token := startAccount(t, srv, "alpha")

	_, resp := doJSON(t, srv, http.MethodPost, "/market_buy", token, map[string]interface{}{
		"symbol": testSymbol, "volume": 1000, "order_time": "2022-03-01 09:40:00",
	})
	require.Equal(t, "success", resp.Status, resp.Message)

	_, resp = doJSON(t, srv, http.MethodGet, "/info", token, nil)
	require.Equal(t, "success", resp.Status)
	info := resp.Data.(map[string]interface{})
	assert.InDelta(t, 989_999.0, info["available"].(float64), 1e-6)
	assert.InDelta(t, 10_000.0, info["market_value"].(float64), 1e-6)

	_, resp = doJSON(t, srv, http.MethodGet, "/positions", token, nil)
	require.Equal(t, "success", resp.Status)
	positions := resp.Data.([]interface{})
	require.Len(t, positions, 1)
}

func TestSellPercentAndBills(t *testing.T) {
	srv := newTestServer(t)
	token := startAccount(t, srv, "alpha")

	_, resp := doJSON(t, srv, http.MethodPost, "/market_buy", token, map[string]interface{}{
		"symbol": testSymbol, "volume": 1000, "order_time": "2022-03-01 09:40:00",
	})
	require.Equal(t, "success", resp.Status, resp.Message)

	_, resp = doJSON(t, srv, http.MethodPost, "/sell_percent", token, map[string]interface{}{
		"symbol": testSymbol, "percent": 0.5, "order_time": "2022-03-02 10:00:00",
	})
	require.Equal(t, "success", resp.Status, resp.Message)

	_, resp = doJSON(t, srv, http.MethodGet, "/bills", token, nil)
	require.Equal(t, "success", resp.Status)
	data := resp.Data.(map[string]interface{})
	assert.Len(t, data["tx"].([]interface{}), 2)
}

func TestStopBacktestAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	token := startAccount(t, srv, "alpha")

	_, resp := doJSON(t, srv, http.MethodPost, "/market_buy", token, map[string]interface{}{
		"symbol": testSymbol, "volume": 1000, "order_time": "2022-03-01 09:40:00",
	})
	require.Equal(t, "success", resp.Status, resp.Message)

	_, resp = doJSON(t, srv, http.MethodPost, "/stop_backtest", token, nil)
	require.Equal(t, "success", resp.Status, resp.Message)
	info := resp.Data.(map[string]interface{})
	assert.Equal(t, true, info["bt_stopped"])

	_, resp = doJSON(t, srv, http.MethodGet, "/get_assets", token, nil)
	require.Equal(t, "success", resp.Status)
	assets := resp.Data.([]interface{})
	assert.Len(t, assets, 23, "march 2022 has 23 weekdays")

	_, resp = doJSON(t, srv, http.MethodGet, "/metrics", token, nil)
	require.Equal(t, "success", resp.Status)
	m := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 23, m["window"])
}

func TestSaveAndLoadBacktest(t *testing.T) {
	srv := newTestServer(t)
	token := startAccount(t, srv, "alpha")

	_, resp := doJSON(t, srv, http.MethodPost, "/market_buy", token, map[string]interface{}{
		"symbol": testSymbol, "volume": 1000, "order_time": "2022-03-01 09:40:00",
	})
	require.Equal(t, "success", resp.Status, resp.Message)

	_, resp = doJSON(t, srv, http.MethodPost, "/save_backtest", token, map[string]interface{}{
		"name": "checkpoint-1", "description": "after first buy",
	})
	require.Equal(t, "success", resp.Status, resp.Message)

	// wipe and restore
	admin := srv.app.Config.Auth.AdminToken
	_, resp = doJSON(t, srv, http.MethodPost, "/delete_accounts", admin, nil)
	require.Equal(t, "success", resp.Status)

	_, resp = doJSON(t, srv, http.MethodPost, "/load_backtest", "", map[string]interface{}{
		"name": "checkpoint-1",
	})
	require.Equal(t, "success", resp.Status, resp.Message)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, token, data["token"])

	info := data["info"].(map[string]interface{})
	assert.InDelta(t, 989_999.0, info["available"].(float64), 1e-6)
}

func TestLoadBacktest_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec, resp := doJSON(t, srv, http.MethodPost, "/load_backtest", "", map[string]interface{}{
		"name": "missing",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, models.CodeNotFound, resp.Code)
}

func TestDeleteAccounts_AdminAndOwner(t *testing.T) {
	srv := newTestServer(t)
	tokenA := startAccount(t, srv, "alpha")
	startAccount(t, srv, "beta")

	// owner can delete only its own account
	rec, resp := doJSON(t, srv, http.MethodPost, "/delete_accounts", tokenA, map[string]interface{}{
		"name": "beta",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, models.CodeUnauthorized, resp.Code)

	_, resp = doJSON(t, srv, http.MethodPost, "/delete_accounts", tokenA, nil)
	require.Equal(t, "success", resp.Status)

	// admin wipes the rest
	admin := srv.app.Config.Auth.AdminToken
	_, resp = doJSON(t, srv, http.MethodGet, "/accounts", admin, nil)
	require.Equal(t, "success", resp.Status)
	assert.Len(t, resp.Data.([]interface{}), 1)

	_, resp = doJSON(t, srv, http.MethodPost, "/delete_accounts", admin, nil)
	require.Equal(t, "success", resp.Status)

	_, resp = doJSON(t, srv, http.MethodGet, "/accounts", admin, nil)
	assert.Empty(t, resp.Data)
}

func TestAccounts_RequiresAdmin(t *testing.T) {
	srv := newTestServer(t)
	token := startAccount(t, srv, "alpha")

	rec, _ := doJSON(t, srv, http.MethodGet, "/accounts", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, prefix+"/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
