package trade

import (
	"context"
	"time"

	"github.com/zillionare/backtesting/internal/models"
)

// memFeed is an in-memory MarketFeed for tests. Keys are formatted with
// models.DateLayout.
type memFeed struct {
	days      []time.Time
	minutes   map[string]map[string][]models.Bar // symbol -> date -> bars
	closes    map[string]map[string]float64
	limits    map[string]map[string]models.PriceLimit
	dividends map[string][]models.DividendEvent
	factors   map[string]map[string]float64 // absent entries default to 1.0
}

func newMemFeed(days []time.Time) *memFeed {
	return &memFeed{
		days:      days,
		minutes:   make(map[string]map[string][]models.Bar),
		closes:    make(map[string]map[string]float64),
		limits:    make(map[string]map[string]models.PriceLimit),
		dividends: make(map[string][]models.DividendEvent),
		factors:   make(map[string]map[string]float64),
	}
}

func (f *memFeed) addMinuteBars(symbol, date string, bars ...models.Bar) {
	if f.minutes[symbol] == nil {
		f.minutes[symbol] = make(map[string][]models.Bar)
	}
	f.minutes[symbol][date] = append(f.minutes[symbol][date], bars...)
}

func (f *memFeed) setClose(symbol, date string, close float64) {
	if f.closes[symbol] == nil {
		f.closes[symbol] = make(map[string]float64)
	}
	f.closes[symbol][date] = close
}

func (f *memFeed) setLimits(symbol, date string, upper, lower float64) {
	if f.limits[symbol] == nil {
		f.limits[symbol] = make(map[string]models.PriceLimit)
	}
	f.limits[symbol][date] = models.PriceLimit{Symbol: symbol, Upper: upper, Lower: lower}
}

func (f *memFeed) setFactor(symbol, date string, factor float64) {
	if f.factors[symbol] == nil {
		f.factors[symbol] = make(map[string]float64)
	}
	f.factors[symbol][date] = factor
}

func (f *memFeed) addDividend(ev models.DividendEvent) {
	f.dividends[ev.Symbol] = append(f.dividends[ev.Symbol], ev)
}

func (f *memFeed) MinuteBars(_ context.Context, symbol string, from time.Time) ([]models.Bar, error) {
	all := f.minutes[symbol][models.DateOf(from).Format(models.DateLayout)]
	var out []models.Bar
	for _, b := range all {
		if !b.Frame.Before(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *memFeed) DayBars(_ context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	var out []models.Bar
	for _, d := range f.days {
		if d.Before(models.DateOf(start)) || d.After(models.DateOf(end)) {
			continue
		}
		if c, ok := f.closes[symbol][d.Format(models.DateLayout)]; ok {
			out = append(out, models.Bar{Frame: d, Open: c, High: c, Low: c, Close: c, Volume: 1e6})
		}
	}
	return out, nil
}

func (f *memFeed) PriceLimits(_ context.Context, symbol string, date time.Time) (models.PriceLimit, error) {
	if l, ok := f.limits[symbol][models.DateOf(date).Format(models.DateLayout)]; ok {
		return l, nil
	}
	// generous default band
	return models.PriceLimit{Symbol: symbol, Upper: 1e9, Lower: 0.01}, nil
}

func (f *memFeed) ClosePrice(_ context.Context, symbol string, date time.Time, lookback int) (float64, error) {
	d := models.DateOf(date)
	steps := 0
	for i := len(f.days) - 1; i >= 0 && steps <= lookback; i-- {
		if f.days[i].After(d) {
			continue
		}
		if c, ok := f.closes[symbol][f.days[i].Format(models.DateLayout)]; ok {
			return c, nil
		}
		steps++
	}
	return 0, models.ErrPriceUnavailable
}

func (f *memFeed) Dividends(_ context.Context, symbol string, start, end time.Time) ([]models.DividendEvent, error) {
	var out []models.DividendEvent
	for _, ev := range f.dividends[symbol] {
		if !ev.Date.Before(models.DateOf(start)) && !ev.Date.After(models.DateOf(end)) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *memFeed) AdjustFactor(_ context.Context, symbol string, date time.Time) (float64, error) {
	d := models.DateOf(date)
	for i := len(f.days) - 1; i >= 0; i-- {
		if f.days[i].After(d) {
			continue
		}
		if v, ok := f.factors[symbol][f.days[i].Format(models.DateLayout)]; ok {
			return v, nil
		}
	}
	return 1.0, nil
}

func (f *memFeed) TradingCalendar(_ context.Context, start, end time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, d := range f.days {
		if !d.Before(models.DateOf(start)) && !d.After(models.DateOf(end)) {
			out = append(out, d)
		}
	}
	return out, nil
}

// weekdays returns the weekdays in [start, end] as normalized dates.
func weekdays(start, end string) []time.Time {
	s, _ := models.ParseDate(start)
	e, _ := models.ParseDate(end)
	var out []time.Time
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, models.DateOf(d))
	}
	return out
}

func minuteAt(date string, hhmm string) time.Time {
	t, _ := models.ParseMinute(date + " " + hhmm + ":00")
	return t
}
