package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shanghai(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	return loc
}

func TestIsTradingDay(t *testing.T) {
	loc := shanghai(t)
	days := []time.Time{
		time.Date(2026, 8, 3, 0, 0, 0, 0, loc),
		time.Date(2026, 8, 4, 0, 0, 0, 0, loc),
	}
	cal := New(loc, days)

	assert.True(t, cal.IsTradingDay(time.Date(2026, 8, 3, 10, 0, 0, 0, loc)))
	assert.False(t, cal.IsTradingDay(time.Date(2026, 8, 1, 10, 0, 0, 0, loc)))
}

func TestNearestPriorTradingDay(t *testing.T) {
	loc := shanghai(t)
	days := []time.Time{
		time.Date(2026, 8, 3, 0, 0, 0, 0, loc),
		time.Date(2026, 8, 4, 0, 0, 0, 0, loc),
	}
	cal := New(loc, days)

	got := cal.NearestPriorTradingDay(time.Date(2026, 8, 5, 9, 0, 0, 0, loc))
	assert.Equal(t, "2026-08-04", got.Format("2006-01-02"))

	none := cal.NearestPriorTradingDay(time.Date(2026, 8, 1, 9, 0, 0, 0, loc))
	assert.True(t, none.IsZero())
}

func TestIsTradingMinute(t *testing.T) {
	loc := shanghai(t)
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, loc) // a Monday
	cal := New(loc, []time.Time{day})

	assert.True(t, cal.IsTradingMinute(time.Date(2026, 8, 3, 10, 0, 0, 0, loc)))
	assert.False(t, cal.IsTradingMinute(time.Date(2026, 8, 3, 12, 0, 0, 0, loc)))
	assert.False(t, cal.IsTradingMinute(time.Date(2026, 8, 3, 9, 0, 0, 0, loc)))
}

func TestNextWakeUpPreOpen(t *testing.T) {
	loc := shanghai(t)
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, loc)
	cal := New(loc, []time.Time{day})

	wake := cal.NextWakeUp(time.Date(2026, 8, 3, 9, 0, 0, 0, loc), time.Minute, time.Hour)
	assert.Equal(t, 10*time.Minute, wake)
}

func TestNextWakeUpLunchBreak(t *testing.T) {
	loc := shanghai(t)
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, loc)
	cal := New(loc, []time.Time{day})

	wake := cal.NextWakeUp(time.Date(2026, 8, 3, 12, 0, 0, 0, loc), time.Minute, time.Hour)
	assert.Equal(t, time.Hour, wake)
}

func TestNextWakeUpTradingInterval(t *testing.T) {
	loc := shanghai(t)
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, loc)
	cal := New(loc, []time.Time{day})

	wake := cal.NextWakeUp(time.Date(2026, 8, 3, 14, 0, 0, 0, loc), 7*time.Second, 30*time.Second)
	assert.Equal(t, 7*time.Second, wake)
}
