// internal/app/schedule_service.go
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/group"
	"zvit_agent/internal/domain/push"
	"zvit_agent/internal/domain/schedule"
	"zvit_agent/internal/domain/session"
	"zvit_agent/internal/domain/storage"
)

const (
	reminderTitle     = "⏰ Час звітувати!"
	reminderTagPrefix = "reminder-"
)

var ErrGroupNotFound = errors.New("group not found")

type GroupSource interface {
	Groups(ctx context.Context) ([]group.Group, error)
}

// Presenter shows a notification built from a payload.
type Presenter interface {
	Present(ctx context.Context, payload push.Payload) (push.Notification, error)
}

// ScheduleService keeps a local copy of the user's groups and raises a
// notification when a group's schedule says a report is due.
type ScheduleService struct {
	source    GroupSource
	kv        storage.KeyValue
	presenter Presenter
	log       *logrus.Entry
}

func NewScheduleService(source GroupSource, kv storage.KeyValue, presenter Presenter, log *logrus.Entry) *ScheduleService {
	return &ScheduleService{source: source, kv: kv, presenter: presenter, log: log}
}

// RefreshGroups fetches the groups from the backend and stores them.
func (s *ScheduleService) RefreshGroups(ctx context.Context) ([]group.Group, error) {
	groups, err := s.source.Groups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch groups: %w", err)
	}
	raw, err := json.Marshal(groups)
	if err != nil {
		return nil, fmt.Errorf("failed to encode groups: %w", err)
	}
	if err := s.kv.Set(ctx, session.KeyGroups, string(raw)); err != nil {
		return nil, fmt.Errorf("failed to store groups: %w", err)
	}
	s.log.WithField("groups", len(groups)).Debug("Groups refreshed")
	return groups, nil
}

// Groups returns the stored groups; none when never refreshed.
func (s *ScheduleService) Groups(ctx context.Context) ([]group.Group, error) {
	raw, err := s.kv.Get(ctx, session.KeyGroups)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var groups []group.Group
	if err := json.Unmarshal([]byte(raw), &groups); err != nil {
		return nil, fmt.Errorf("stored groups are corrupt: %w", err)
	}
	return groups, nil
}

// CheckDue presents a reminder for every group due at now (Kyiv wall
// clock) and returns how many were shown.
func (s *ScheduleService) CheckDue(ctx context.Context, now time.Time) (int, error) {
	groups, err := s.Groups(ctx)
	if err != nil {
		return 0, err
	}
	local := schedule.ToKyiv(now)

	shown := 0
	for _, g := range groups {
		if !schedule.IsDue(g.Schedule, local) {
			continue
		}
		payload := push.Payload{
			Notification: &push.Body{Title: reminderTitle, Body: g.Name + " - надішліть свій звіт"},
			Data: push.Fields{
				"type":      push.TypeReminder,
				"groupId":   g.ID,
				"groupName": g.Name,
				"tag":       reminderTagPrefix + g.ID,
			},
		}
		if _, err := s.presenter.Present(ctx, payload); err != nil {
			s.log.WithError(err).WithField("group_id", g.ID).Error("Failed to show report reminder")
			continue
		}
		shown++
	}
	return shown, nil
}

// NextReport computes the next report time of a stored group.
func (s *ScheduleService) NextReport(ctx context.Context, groupID string, now time.Time) (string, bool, error) {
	groups, err := s.Groups(ctx)
	if err != nil {
		return "", false, err
	}
	for _, g := range groups {
		if g.ID == groupID {
			next, ok := schedule.NextReportTime(g.Schedule, schedule.ToKyiv(now))
			return next, ok, nil
		}
	}
	return "", false, ErrGroupNotFound
}
