package models

import "time"

// Bar is one OHLCV aggregate for a symbol over one interval.
type Bar struct {
	Frame  time.Time `json:"frame"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceLimit is the regulated daily price band for a symbol. At the upper
// limit the market is one-sided for buyers, at the lower limit for sellers.
type PriceLimit struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Upper  float64   `json:"upper"`
	Lower  float64   `json:"lower"`
}

// DividendEvent is one ex-dividend / ex-rights (XDXR) record.
// ShareRatio and NewShareRatio are per held share; CashPerShare is the cash
// dividend per held share.
type DividendEvent struct {
	Symbol        string    `json:"symbol"`
	Date          time.Time `json:"date"`
	CashPerShare  float64   `json:"cash_per_share"`
	ShareRatio    float64   `json:"share_ratio"`
	NewShareRatio float64   `json:"new_share_ratio"`
}
