package models

import (
	"errors"
	"fmt"
)

// ErrorKind groups machine codes into the four client-visible families.
type ErrorKind string

const (
	KindBadParameter  ErrorKind = "bad_parameter"
	KindTradeRejected ErrorKind = "trade_rejected"
	KindAccount       ErrorKind = "account"
	KindInfra         ErrorKind = "infra"
)

// Machine codes. Stable across versions: clients reconstruct the error kind
// by matching the code; the message is informational only.
const (
	CodeBadParam      = "BAD_PARAM"
	CodeLotSize       = "LOT_SIZE"
	CodeTimeRewind    = "TIME_REWIND"
	CodeUnknownSymbol = "UNKNOWN_SYMBOL"
	CodeBadDatetime   = "BAD_DATETIME"

	CodeCashShortage    = "CASH_SHORTAGE"
	CodePositionShort   = "POSITION_SHORT"
	CodeNoMatch         = "NO_MATCH"
	CodeVolumeNotEnough = "VOLUME_NOT_ENOUGH"
	CodePriceLimit      = "PRICE_LIMIT"
	CodeSuspended       = "SUSPENDED"

	CodeAccountExists = "ACCOUNT_EXISTS"
	CodeNotFound      = "NOT_FOUND"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeAccountFrozen = "ACCOUNT_STOPPED"

	CodeFeedTimeout     = "FEED_TIMEOUT"
	CodeFeedDataMissing = "FEED_DATA_MISSING"
	CodePersistence     = "PERSISTENCE"
)

// TradeError is the serializable error carried across the wire.
type TradeError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// BadParam builds a bad_parameter error.
func BadParam(code, format string, args ...interface{}) *TradeError {
	return &TradeError{Kind: KindBadParameter, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Rejected builds a trade_rejected error.
func Rejected(code, format string, args ...interface{}) *TradeError {
	return &TradeError{Kind: KindTradeRejected, Code: code, Message: fmt.Sprintf(format, args...)}
}

// AccountErr builds an account error.
func AccountErr(code, format string, args ...interface{}) *TradeError {
	return &TradeError{Kind: KindAccount, Code: code, Message: fmt.Sprintf(format, args...)}
}

// InfraErr builds an infrastructure error.
func InfraErr(code, format string, args ...interface{}) *TradeError {
	return &TradeError{Kind: KindInfra, Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsTradeError unwraps err into a *TradeError if one is in the chain.
func AsTradeError(err error) (*TradeError, bool) {
	var te *TradeError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// ErrPriceUnavailable signals that no close price exists within the
// suspension lookback window; valuation falls back to cost basis.
var ErrPriceUnavailable = errors.New("no close price within lookback window")
