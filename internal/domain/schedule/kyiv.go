package schedule

import (
	"fmt"
	"strings"
	"time"
)

const (
	kyivStandardOffset = 120 // minutes east of UTC, winter
	kyivSummerOffset   = 180
)

// localLayouts are the offset-less timestamp forms the backend emits.
// Fractional seconds are accepted after the seconds field by time.Parse.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// lastSunday returns the day of month of the last Sunday in the given month.
func lastSunday(year int, month time.Month) int {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	return lastDay.Day() - int(lastDay.Weekday())
}

// SummerTimeWindow returns the EU summer time interval for a year:
// [01:00 UTC last Sunday of March, 01:00 UTC last Sunday of October).
func SummerTimeWindow(year int) (start, end time.Time) {
	start = time.Date(year, time.March, lastSunday(year, time.March), 1, 0, 0, 0, time.UTC)
	end = time.Date(year, time.October, lastSunday(year, time.October), 1, 0, 0, 0, time.UTC)
	return start, end
}

// IsSummerTime reports whether EU summer time is in effect at instant t.
func IsSummerTime(t time.Time) bool {
	u := t.UTC()
	start, end := SummerTimeWindow(u.Year())
	return !u.Before(start) && u.Before(end)
}

// KyivOffsetMinutes is Kyiv's UTC offset at instant t.
func KyivOffsetMinutes(t time.Time) int {
	if IsSummerTime(t) {
		return kyivSummerOffset
	}
	return kyivStandardOffset
}

// ToKyiv returns t expressed on Kyiv's wall clock.
func ToKyiv(t time.Time) time.Time {
	offset := KyivOffsetMinutes(t)
	return t.In(time.FixedZone("Europe/Kyiv", offset*60))
}

// ParseKyivTimestamp reads an offset-less timestamp as Kyiv local time and
// returns the UTC instant. In the autumn repeated hour the summer-time
// reading wins; a wall time inside the spring gap is read as standard time.
func ParseKyivTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var (
		wall time.Time
		err  error
	)
	for _, layout := range localLayouts {
		wall, err = time.Parse(layout, s)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid Kyiv timestamp %q: %w", s, err)
	}

	summer := wall.Add(-kyivSummerOffset * time.Minute)
	if IsSummerTime(summer) {
		return summer, nil
	}
	return wall.Add(-kyivStandardOffset * time.Minute), nil
}

// ParseServerTimestamp accepts RFC 3339 timestamps with an explicit offset
// and falls back to Kyiv local time for offset-less ones.
func ParseServerTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
		return t.UTC(), nil
	}
	return ParseKyivTimestamp(s)
}
