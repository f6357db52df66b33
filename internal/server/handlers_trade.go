package server

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zillionare/backtesting/internal/models"
)

type orderRequest struct {
	Symbol    string          `json:"symbol"`
	Price     *float64        `json:"price,omitempty"`
	Volume    decimal.Decimal `json:"volume"`
	Percent   float64         `json:"percent,omitempty"`
	OrderTime string          `json:"order_time"`
}

func (s *Server) decodeOrder(w http.ResponseWriter, r *http.Request) (*orderRequest, time.Time, bool) {
	var req orderRequest
	if !DecodeJSON(w, r, &req) {
		return nil, time.Time{}, false
	}
	orderTime, err := models.ParseMinute(req.OrderTime)
	if err != nil {
		WriteError(w, models.BadParam(models.CodeBadDatetime, "bad order_time %q", req.OrderTime))
		return nil, time.Time{}, false
	}
	return &req, orderTime, true
}

// handleBuy places a limit buy order.
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	req, orderTime, ok := s.decodeOrder(w, r)
	if !ok {
		return
	}
	if req.Price == nil {
		WriteJSON(w, http.StatusBadRequest, Response{
			Status: "failed", Message: "buy requires a limit price",
		})
		return
	}

	bill, err := acct.Buy(r.Context(), req.Symbol, *req.Price, req.Volume, orderTime)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, bill)
}

// handleMarketBuy places a buy order with no price cap.
func (s *Server) handleMarketBuy(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	req, orderTime, ok := s.decodeOrder(w, r)
	if !ok {
		return
	}

	bill, err := acct.MarketBuy(r.Context(), req.Symbol, req.Volume, orderTime)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, bill)
}

// handleSell places a limit sell order.
func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	req, orderTime, ok := s.decodeOrder(w, r)
	if !ok {
		return
	}
	if req.Price == nil {
		WriteJSON(w, http.StatusBadRequest, Response{
			Status: "failed", Message: "sell requires a limit price",
		})
		return
	}

	bill, err := acct.Sell(r.Context(), req.Symbol, *req.Price, req.Volume, orderTime)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, bill)
}

// handleMarketSell places a sell order with no price floor.
func (s *Server) handleMarketSell(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	req, orderTime, ok := s.decodeOrder(w, r)
	if !ok {
		return
	}

	bill, err := acct.MarketSell(r.Context(), req.Symbol, req.Volume, orderTime)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, bill)
}

// handleSellPercent sells a fraction of the sellable position.
func (s *Server) handleSellPercent(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	req, orderTime, ok := s.decodeOrder(w, r)
	if !ok {
		return
	}

	bill, err := acct.SellPercent(r.Context(), req.Symbol, req.Percent, orderTime)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, bill)
}
