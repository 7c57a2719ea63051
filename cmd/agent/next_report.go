package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"zvit_agent/internal/domain/schedule"
)

var nextReportFlags struct {
	scheduleType string
	times        string
	start        string
	interval     int
	at           string
}

var nextReportCmd = &cobra.Command{
	Use:   "next-report",
	Short: "Print the next expected report time for a schedule",
	Example: `  zvit-agent next-report --type fixed --times 08:00,14:00,20:00
  zvit-agent next-report --type interval --start 06:00 --interval 90 --at 07:45`,
	RunE: runNextReport,
}

func init() {
	f := nextReportCmd.Flags()
	f.StringVar(&nextReportFlags.scheduleType, "type", "fixed", "schedule type: fixed or interval")
	f.StringVar(&nextReportFlags.times, "times", "", "comma separated HH:MM report times (fixed)")
	f.StringVar(&nextReportFlags.start, "start", "", "first report time HH:MM (interval)")
	f.IntVar(&nextReportFlags.interval, "interval", 0, "minutes between reports (interval)")
	f.StringVar(&nextReportFlags.at, "at", "", "Kyiv wall clock HH:MM to compute from (default: now)")
}

func scheduleType(s string) (schedule.Type, error) {
	switch strings.ToUpper(s) {
	case "FIXED", string(schedule.TypeFixedTimes):
		return schedule.TypeFixedTimes, nil
	case string(schedule.TypeInterval):
		return schedule.TypeInterval, nil
	}
	return "", fmt.Errorf("unknown schedule type %q", s)
}

func runNextReport(cmd *cobra.Command, _ []string) error {
	st, err := scheduleType(nextReportFlags.scheduleType)
	if err != nil {
		return err
	}
	cfg := schedule.Config{
		ScheduleType:      st,
		IntervalStartTime: nextReportFlags.start,
		IntervalMinutes:   nextReportFlags.interval,
	}
	for _, t := range strings.Split(nextReportFlags.times, ",") {
		if t = strings.TrimSpace(t); t != "" {
			cfg.FixedTimes = append(cfg.FixedTimes, t)
		}
	}

	now := schedule.ToKyiv(time.Now())
	if nextReportFlags.at != "" {
		m, err := schedule.ParseClock(nextReportFlags.at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		now = time.Date(now.Year(), now.Month(), now.Day(), m/60, m%60, 0, 0, now.Location())
	}

	next, ok := schedule.NextReportTime(cfg, now)
	if !ok {
		return fmt.Errorf("schedule is incomplete")
	}
	fmt.Fprintln(cmd.OutOrStdout(), next)
	if schedule.IsDue(cfg, now) {
		fmt.Fprintln(cmd.OutOrStdout(), "a report is due now")
	}
	return nil
}
