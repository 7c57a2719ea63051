// internal/app/companion.go
package app

import (
	"context"

	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/push"
)

const (
	CompanionID  = "companion"
	CompanionURL = "agent://companion"
)

// Companion is the agent's own window: it receives relayed messages like
// any page and keeps the local state they describe up to date. Its URL is
// not the shell, so clicks never focus it.
type Companion struct {
	reminders *ReminderService
	schedule  *ScheduleService
	log       *logrus.Entry
}

func NewCompanion(reminders *ReminderService, schedule *ScheduleService, log *logrus.Entry) *Companion {
	return &Companion{reminders: reminders, schedule: schedule, log: log}
}

func (c *Companion) ID() string  { return CompanionID }
func (c *Companion) URL() string { return CompanionURL }

func (c *Companion) PostMessage(ctx context.Context, msg push.Message) error {
	switch msg.Type {
	case push.MsgUrgentReportReceived:
		return c.reminders.SaveUrgent(ctx, msg.Data)
	case push.MsgSettingsUpdateReceived:
		if c.schedule == nil {
			return nil
		}
		_, err := c.schedule.RefreshGroups(ctx)
		return err
	}
	return nil
}

func (c *Companion) Focus(context.Context) error { return nil }
