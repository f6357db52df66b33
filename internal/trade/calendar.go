// Package trade implements the matching engine, position ledger,
// corporate-action handling and account state machine of the backtest
// server.
package trade

import (
	"sort"
	"time"

	"github.com/zillionare/backtesting/internal/models"
)

// Calendar is the trading-day time fabric. All date arithmetic routes
// through it; wall-clock calendar math is never used for market time.
type Calendar struct {
	days []time.Time // normalized dates, ascending, unique
}

// NewCalendar builds a calendar from a list of trading days.
func NewCalendar(days []time.Time) *Calendar {
	norm := make([]time.Time, 0, len(days))
	seen := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		nd := models.DateOf(d)
		if _, ok := seen[nd]; ok {
			continue
		}
		seen[nd] = struct{}{}
		norm = append(norm, nd)
	}
	sort.Slice(norm, func(i, j int) bool { return norm[i].Before(norm[j]) })
	return &Calendar{days: norm}
}

// IsTradingDay reports whether d is a trading day.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	i := c.floorIndex(d)
	return i >= 0 && c.days[i].Equal(models.DateOf(d))
}

// floorIndex returns the index of the last trading day <= d, or -1.
func (c *Calendar) floorIndex(d time.Time) int {
	nd := models.DateOf(d)
	i := sort.Search(len(c.days), func(i int) bool { return c.days[i].After(nd) })
	return i - 1
}

// Floor returns the last trading day on or before d.
func (c *Calendar) Floor(d time.Time) (time.Time, bool) {
	i := c.floorIndex(d)
	if i < 0 {
		return time.Time{}, false
	}
	return c.days[i], true
}

// Shift returns the trading day n steps from the last trading day <= d.
// Negative n moves backward.
func (c *Calendar) Shift(d time.Time, n int) (time.Time, bool) {
	i := c.floorIndex(d)
	if i < 0 {
		return time.Time{}, false
	}
	j := i + n
	if j < 0 || j >= len(c.days) {
		return time.Time{}, false
	}
	return c.days[j], true
}

// NextAfter returns the first trading day strictly after d.
func (c *Calendar) NextAfter(d time.Time) (time.Time, bool) {
	nd := models.DateOf(d)
	i := sort.Search(len(c.days), func(i int) bool { return c.days[i].After(nd) })
	if i >= len(c.days) {
		return time.Time{}, false
	}
	return c.days[i], true
}

// Between returns the trading days in [start, end], ascending.
func (c *Calendar) Between(start, end time.Time) []time.Time {
	s, e := models.DateOf(start), models.DateOf(end)
	lo := sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(s) })
	hi := sort.Search(len(c.days), func(i int) bool { return c.days[i].After(e) })
	if lo >= hi {
		return nil
	}
	out := make([]time.Time, hi-lo)
	copy(out, c.days[lo:hi])
	return out
}

// Count returns the number of trading days in [start, end].
func (c *Calendar) Count(start, end time.Time) int {
	return len(c.Between(start, end))
}
