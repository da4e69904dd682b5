// Package calendar answers "is this a trading day/minute" questions for the
// scheduler, grounded on the Python original's is_trading_time() and the
// trading-day lookups scattered through its dashboard blueprints.
package calendar

import (
	"sort"
	"time"
)

// Calendar answers trading-day questions from a fixed, sorted list of
// trading days. The list is expected to be loaded once at startup (spec
// calls it "a persisted list") and is immutable thereafter.
type Calendar struct {
	loc          *time.Location
	tradingDays  map[string]struct{} // "2006-01-02" -> present
	sortedDays   []time.Time
}

// New builds a Calendar from a list of trading days (any order, any
// timezone — normalized to loc's calendar date) and the local exchange
// timezone used for trading-minute checks.
func New(loc *time.Location, tradingDays []time.Time) *Calendar {
	c := &Calendar{
		loc:         loc,
		tradingDays: make(map[string]struct{}, len(tradingDays)),
	}
	for _, d := range tradingDays {
		d = d.In(loc)
		key := d.Format("2006-01-02")
		if _, ok := c.tradingDays[key]; ok {
			continue
		}
		c.tradingDays[key] = struct{}{}
		c.sortedDays = append(c.sortedDays, time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc))
	}
	sort.Slice(c.sortedDays, func(i, j int) bool { return c.sortedDays[i].Before(c.sortedDays[j]) })
	return c
}

// GenerateWeekdays returns every Monday-Friday date in [from, to], in loc's
// calendar. It is the Calendar seed used when no holiday list is
// available: it overcounts trading days by including public holidays, so
// callers that have a real exchange holiday feed should prefer that
// instead.
func GenerateWeekdays(from, to time.Time, loc *time.Location) []time.Time {
	var days []time.Time
	cursor := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc)
	for !cursor.After(end) {
		if cursor.Weekday() != time.Saturday && cursor.Weekday() != time.Sunday {
			days = append(days, cursor)
		}
		cursor = cursor.AddDate(0, 0, 1)
	}
	return days
}

// IsTradingDay reports whether date (any timezone) falls on a day present
// in the calendar.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	key := date.In(c.loc).Format("2006-01-02")
	_, ok := c.tradingDays[key]
	return ok
}

// NearestPriorTradingDay returns the latest trading day on or before date.
// The zero time is returned if no trading day precedes it.
func (c *Calendar) NearestPriorTradingDay(date time.Time) time.Time {
	target := time.Date(date.In(c.loc).Year(), date.In(c.loc).Month(), date.In(c.loc).Day(), 0, 0, 0, 0, c.loc)
	idx := sort.Search(len(c.sortedDays), func(i int) bool {
		return c.sortedDays[i].After(target)
	})
	if idx == 0 {
		return time.Time{}
	}
	return c.sortedDays[idx-1]
}

// Window describes one trading session within a day, in exchange-local time.
type Window struct {
	Start, End time.Duration // offsets from local midnight
}

// Trading-hours windows, local exchange time, Monday-Friday only.
var (
	MorningWindow   = Window{Start: 9*time.Hour + 30*time.Minute, End: 11*time.Hour + 30*time.Minute}
	AfternoonWindow = Window{Start: 13 * time.Hour, End: 15 * time.Hour}
	MarketOpen      = 9*time.Hour + 30*time.Minute
	PreOpenUntil    = 9*time.Hour + 10*time.Minute
	LunchBreakUntil = 13 * time.Hour
)

// IsTradingMinute reports whether now falls inside a trading window on a
// validated trading day.
func (c *Calendar) IsTradingMinute(now time.Time) bool {
	now = now.In(c.loc)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	if !c.IsTradingDay(now) {
		return false
	}
	offset := time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute + time.Duration(now.Second())*time.Second
	return (offset >= MorningWindow.Start && offset < MorningWindow.End) ||
		(offset >= AfternoonWindow.Start && offset < AfternoonWindow.End)
}

// NextWakeUp computes how long the scheduler should sleep before its next
// tick, implementing §4.F's pre-open and lunch-break gating: before 09:10
// on a trading day, sleep until 09:10; between 11:30 and 13:00, sleep until
// 13:00; otherwise use interval directly.
func (c *Calendar) NextWakeUp(now time.Time, tradingInterval, nonTradingInterval time.Duration) time.Duration {
	local := now.In(c.loc)
	if !c.IsTradingDay(local) || local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return nonTradingInterval
	}
	offset := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute + time.Duration(local.Second())*time.Second
	switch {
	case offset < PreOpenUntil:
		return PreOpenUntil - offset
	case offset >= MorningWindow.End && offset < LunchBreakUntil:
		return LunchBreakUntil - offset
	case c.IsTradingMinute(now):
		return tradingInterval
	default:
		return nonTradingInterval
	}
}
