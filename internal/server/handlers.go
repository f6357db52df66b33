package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zillionare/backtesting/internal/models"
	"github.com/zillionare/backtesting/internal/trade"
)

// account resolves the request's bearer token to an account, writing an
// UNAUTHORIZED envelope when it does not map to one.
func (s *Server) account(w http.ResponseWriter, r *http.Request) (*trade.Account, bool) {
	token := BearerToken(r)
	if token == "" {
		WriteError(w, models.AccountErr(models.CodeUnauthorized, "missing bearer token"))
		return nil, false
	}
	acct, err := s.app.Registry.Get(token)
	if err != nil {
		WriteError(w, models.AccountErr(models.CodeUnauthorized, "invalid token"))
		return nil, false
	}
	return acct, true
}

// isAdmin reports whether the request carries the admin token.
func (s *Server) isAdmin(r *http.Request) bool {
	return BearerToken(r) == s.app.Config.Auth.AdminToken
}

type startBacktestRequest struct {
	Name       string  `json:"name"`
	Principal  float64 `json:"principal"`
	Commission float64 `json:"commission"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	Token      string  `json:"token"`
}

// handleStartBacktest creates a backtest account.
func (s *Server) handleStartBacktest(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req startBacktestRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	start, err := models.ParseDate(req.Start)
	if err != nil {
		WriteError(w, models.BadParam(models.CodeBadDatetime, "bad start date %q", req.Start))
		return
	}
	end, err := models.ParseDate(req.End)
	if err != nil {
		WriteError(w, models.BadParam(models.CodeBadDatetime, "bad end date %q", req.End))
		return
	}

	token := req.Token
	if token == "" {
		token = uuid.NewString()
	}

	acct, err := s.app.Registry.Create(trade.AccountParams{
		Name:       req.Name,
		Token:      token,
		Principal:  req.Principal,
		Commission: req.Commission,
		Start:      start,
		End:        end,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteData(w, map[string]interface{}{
		"account_name": acct.Name(),
		"token":        token,
		"principal":    req.Principal,
		"start":        start.Format(models.DateLayout),
		"end":          end.Format(models.DateLayout),
	})
}

// handleStopBacktest freezes the account and materializes the assets table
// through the end date.
func (s *Server) handleStopBacktest(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	acct, ok := s.account(w, r)
	if !ok {
		return
	}

	if err := acct.Stop(r.Context()); err != nil {
		WriteError(w, err)
		return
	}

	info, err := acct.Info(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, info)
}

type deleteAccountsRequest struct {
	Name string `json:"name"`
}

// handleDeleteAccounts removes one account, or every account when called
// with the admin token and no name.
func (s *Server) handleDeleteAccounts(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req deleteAccountsRequest
	if r.ContentLength > 0 && !DecodeJSON(w, r, &req) {
		return
	}

	if s.isAdmin(r) {
		if req.Name == "" {
			n := s.app.Registry.DeleteAll()
			WriteData(w, map[string]int{"deleted": n})
			return
		}
		if err := s.app.Registry.Delete(req.Name); err != nil {
			WriteError(w, err)
			return
		}
		WriteData(w, map[string]int{"deleted": 1})
		return
	}

	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	if req.Name != "" && req.Name != acct.Name() {
		WriteError(w, models.AccountErr(models.CodeUnauthorized,
			"token does not own account %s", req.Name))
		return
	}
	if err := s.app.Registry.Delete(acct.Name()); err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, map[string]int{"deleted": 1})
}

// handleAccounts lists account names; admin only.
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if !s.isAdmin(r) {
		WriteError(w, models.AccountErr(models.CodeUnauthorized, "admin token required"))
		return
	}
	WriteData(w, s.app.Registry.List())
}

// handleInfo returns the account summary.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	acct, ok := s.account(w, r)
	if !ok {
		return
	}

	info, err := acct.Info(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, info)
}

// handlePositions returns the portfolio snapshot, at ?date= when given.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	acct, ok := s.account(w, r)
	if !ok {
		return
	}

	var date time.Time
	if ds := r.URL.Query().Get("date"); ds != "" {
		d, err := models.ParseDate(ds)
		if err != nil {
			WriteError(w, models.BadParam(models.CodeBadDatetime, "bad date %q", ds))
			return
		}
		date = d
	}

	positions, err := acct.Positions(r.Context(), date)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, positions)
}

// handleBills returns the entrust log with attached trades.
func (s *Server) handleBills(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	WriteData(w, map[string]interface{}{
		"tx":     acct.Bills(),
		"trades": acct.Trades(),
	})
}

// handleAssets returns the daily assets table, optionally bounded by
// ?start= and ?end=.
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	acct, ok := s.account(w, r)
	if !ok {
		return
	}

	assets := acct.Assets()
	q := r.URL.Query()
	if ss := q.Get("start"); ss != "" {
		start, err := models.ParseDate(ss)
		if err != nil {
			WriteError(w, models.BadParam(models.CodeBadDatetime, "bad start %q", ss))
			return
		}
		for len(assets) > 0 && assets[0].Date.Before(start) {
			assets = assets[1:]
		}
	}
	if es := q.Get("end"); es != "" {
		end, err := models.ParseDate(es)
		if err != nil {
			WriteError(w, models.BadParam(models.CodeBadDatetime, "bad end %q", es))
			return
		}
		for len(assets) > 0 && assets[len(assets)-1].Date.After(end) {
			assets = assets[:len(assets)-1]
		}
	}
	WriteData(w, assets)
}

// handleMetrics computes the performance report. ?baseline= overrides the
// configured benchmark symbol; an empty configured symbol disables it.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	acct, ok := s.account(w, r)
	if !ok {
		return
	}

	baseline := r.URL.Query().Get("baseline")
	if baseline == "" {
		baseline = s.app.Config.Metrics.Baseline
	}

	m, err := acct.Metrics(r.Context(), baseline)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, m)
}

type saveBacktestRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleSaveBacktest snapshots the full account state under a name.
func (s *Server) handleSaveBacktest(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	acct, ok := s.account(w, r)
	if !ok {
		return
	}

	var req saveBacktestRequest
	if r.ContentLength > 0 && !DecodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		req.Name = acct.Name()
	}

	rec := &models.SessionRecord{
		Name:        req.Name,
		Description: req.Description,
		Account:     acct.State(),
	}
	if err := s.app.Sessions.SaveSession(r.Context(), rec); err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, map[string]string{"name": req.Name})
}

type loadBacktestRequest struct {
	Name string `json:"name"`
}

// handleLoadBacktest restores a saved session into the registry.
func (s *Server) handleLoadBacktest(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req loadBacktestRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		WriteError(w, models.BadParam(models.CodeBadParam, "session name is required"))
		return
	}

	rec, err := s.app.Sessions.GetSession(r.Context(), req.Name)
	if err != nil {
		WriteError(w, err)
		return
	}

	acct := trade.RestoreAccount(rec.Account, s.app.Feed, s.app.Calendar, s.app.Config, s.app.Logger)
	s.app.Registry.Attach(acct)

	info, err := acct.Info(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, map[string]interface{}{
		"token": acct.Token(),
		"info":  info,
	})
}
