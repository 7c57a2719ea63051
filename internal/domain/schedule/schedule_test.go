package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic(err)
	}
	return time.Date(2025, time.May, 5, t.Hour(), t.Minute(), 0, 0, time.UTC)
}

func TestNextReportTime_FixedTimes(t *testing.T) {
	cfg := Config{ScheduleType: TypeFixedTimes, FixedTimes: []string{"08:00", "14:00", "20:00"}}

	tests := []struct {
		now  string
		want string
	}{
		{"09:00", "14:00"},
		{"21:00", "08:00"},
		{"07:59", "08:00"},
		{"08:00", "14:00"}, // strictly greater
		{"20:00", "08:00"},
		{"00:00", "08:00"},
	}
	for _, tt := range tests {
		t.Run(tt.now, func(t *testing.T) {
			got, ok := NextReportTime(cfg, at(tt.now))
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextReportTime_FixedTimesUnordered(t *testing.T) {
	cfg := Config{ScheduleType: TypeFixedTimes, FixedTimes: []string{"20:00", "bogus", "08:00"}}

	got, ok := NextReportTime(cfg, at("21:30"))
	require.True(t, ok)
	assert.Equal(t, "08:00", got)
}

func TestNextReportTime_Interval(t *testing.T) {
	cfg := Config{ScheduleType: TypeInterval, IntervalStartTime: "06:00", IntervalMinutes: 90}

	tests := []struct {
		now  string
		want string
	}{
		{"07:00", "07:30"},
		{"05:00", "06:00"},
		{"06:00", "07:30"},
		{"07:30", "09:00"},
		{"23:50", "00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.now, func(t *testing.T) {
			got, ok := NextReportTime(cfg, at(tt.now))
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextReportTime_Absent(t *testing.T) {
	tests := map[string]Config{
		"unknown type":       {ScheduleType: "WEEKLY"},
		"empty type":         {},
		"no fixed times":     {ScheduleType: TypeFixedTimes},
		"only invalid times": {ScheduleType: TypeFixedTimes, FixedTimes: []string{"25:00"}},
		"no interval start":  {ScheduleType: TypeInterval, IntervalMinutes: 30},
		"zero interval":      {ScheduleType: TypeInterval, IntervalStartTime: "06:00"},
		"bad interval start": {ScheduleType: TypeInterval, IntervalStartTime: "six", IntervalMinutes: 30},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := NextReportTime(cfg, at("10:00"))
			assert.False(t, ok)
		})
	}
}

func TestIsDue(t *testing.T) {
	fixed := Config{ScheduleType: TypeFixedTimes, FixedTimes: []string{"08:00", "14:00"}}
	assert.True(t, IsDue(fixed, at("14:00")))
	assert.False(t, IsDue(fixed, at("14:01")))

	interval := Config{ScheduleType: TypeInterval, IntervalStartTime: "06:00", IntervalMinutes: 90}
	assert.True(t, IsDue(interval, at("06:00")))
	assert.True(t, IsDue(interval, at("07:30")))
	assert.False(t, IsDue(interval, at("07:00")))
	assert.False(t, IsDue(interval, at("04:30")), "before the start time nothing is due")
}

func TestConfig_UnmarshalBackendColumns(t *testing.T) {
	var cfg Config
	err := json.Unmarshal([]byte(`{"scheduleType":"FIXED_TIMES","fixedTime1":"08:00","fixedTime2":"12:30","fixedTime3":null}`), &cfg)
	require.NoError(t, err)
	assert.Equal(t, TypeFixedTimes, cfg.ScheduleType)
	assert.Equal(t, []string{"08:00", "12:30"}, cfg.FixedTimes)

	err = json.Unmarshal([]byte(`{"scheduleType":"INTERVAL","intervalStartTime":"06:00","intervalMinutes":90}`), &cfg)
	require.NoError(t, err)
	assert.Equal(t, TypeInterval, cfg.ScheduleType)
	assert.Empty(t, cfg.FixedTimes)
	assert.Equal(t, 90, cfg.IntervalMinutes)
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("07:05")
	require.NoError(t, err)
	assert.Equal(t, 425, m)

	for _, bad := range []string{"", "7", "24:00", "12:60", "aa:bb"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "00:10", FormatClock(minutesPerDay+10))
}
