package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// Type selects how a group's report times are configured.
type Type string

const (
	TypeFixedTimes Type = "FIXED_TIMES"
	TypeInterval   Type = "INTERVAL"
)

// Config is a group's report schedule as returned by the backend.
type Config struct {
	ScheduleType      Type     `json:"scheduleType"`
	FixedTimes        []string `json:"fixedTimes,omitempty"`
	IntervalStartTime string   `json:"intervalStartTime,omitempty"`
	IntervalMinutes   int      `json:"intervalMinutes,omitempty"`
}

// UnmarshalJSON accepts both the fixedTimes array and the backend's
// fixedTime1..fixedTime5 columns.
func (c *Config) UnmarshalJSON(b []byte) error {
	var raw struct {
		ScheduleType      Type     `json:"scheduleType"`
		FixedTimes        []string `json:"fixedTimes"`
		FixedTime1        string   `json:"fixedTime1"`
		FixedTime2        string   `json:"fixedTime2"`
		FixedTime3        string   `json:"fixedTime3"`
		FixedTime4        string   `json:"fixedTime4"`
		FixedTime5        string   `json:"fixedTime5"`
		IntervalStartTime string   `json:"intervalStartTime"`
		IntervalMinutes   *int     `json:"intervalMinutes"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.ScheduleType = raw.ScheduleType
	c.FixedTimes = raw.FixedTimes
	for _, t := range []string{raw.FixedTime1, raw.FixedTime2, raw.FixedTime3, raw.FixedTime4, raw.FixedTime5} {
		if t != "" {
			c.FixedTimes = append(c.FixedTimes, t)
		}
	}
	c.IntervalStartTime = raw.IntervalStartTime
	c.IntervalMinutes = 0
	if raw.IntervalMinutes != nil {
		c.IntervalMinutes = *raw.IntervalMinutes
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hours*60 + minutes, nil
}

// FormatClock renders minutes since midnight as "HH:MM", wrapping at 24h.
func FormatClock(minutes int) string {
	minutes = ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func (c Config) fixedMinutes() []int {
	out := make([]int, 0, len(c.FixedTimes))
	for _, t := range c.FixedTimes {
		m, err := ParseClock(t)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}

// NextReportTime returns the time of day of the next expected report after
// now, using now's wall clock. The result carries no date: a fixed schedule
// with no time left today wraps to its earliest time, which callers read as
// tomorrow. ok is false when the schedule is unknown or incomplete.
func NextReportTime(cfg Config, now time.Time) (next string, ok bool) {
	current := minuteOfDay(now)

	switch cfg.ScheduleType {
	case TypeFixedTimes:
		times := cfg.fixedMinutes()
		if len(times) == 0 {
			return "", false
		}
		for _, m := range times {
			if m > current {
				return FormatClock(m), true
			}
		}
		return FormatClock(times[0]), true

	case TypeInterval:
		if cfg.IntervalStartTime == "" || cfg.IntervalMinutes <= 0 {
			return "", false
		}
		start, err := ParseClock(cfg.IntervalStartTime)
		if err != nil {
			return "", false
		}
		elapsed := current - start
		if elapsed < 0 {
			elapsed += minutesPerDay
		}
		passed := elapsed / cfg.IntervalMinutes
		return FormatClock(start + (passed+1)*cfg.IntervalMinutes), true
	}

	return "", false
}

// IsDue reports whether a reminder should fire during now's minute: a fixed
// time equal to now, or an interval boundary at or after the start time.
func IsDue(cfg Config, now time.Time) bool {
	current := minuteOfDay(now)

	switch cfg.ScheduleType {
	case TypeFixedTimes:
		for _, m := range cfg.fixedMinutes() {
			if m == current {
				return true
			}
		}
	case TypeInterval:
		if cfg.IntervalMinutes <= 0 {
			return false
		}
		start, err := ParseClock(cfg.IntervalStartTime)
		if err != nil || current < start {
			return false
		}
		return (current-start)%cfg.IntervalMinutes == 0
	}
	return false
}
