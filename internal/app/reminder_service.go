// internal/app/reminder_service.go
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/push"
	"zvit_agent/internal/domain/reminder"
	"zvit_agent/internal/domain/schedule"
	"zvit_agent/internal/domain/session"
	"zvit_agent/internal/domain/storage"
)

var ErrNoDeadline = errors.New("urgent report has no usable deadline")

// ReminderService keeps per-group urgent-report reminders. Expired entries
// are purged when read; there is no background timer.
type ReminderService struct {
	kv  storage.KeyValue
	now func() time.Time
	log *logrus.Entry

	mu sync.Mutex
}

func NewReminderService(kv storage.KeyValue, log *logrus.Entry) *ReminderService {
	return &ReminderService{kv: kv, now: time.Now, log: log}
}

// SaveUrgent stores the reminder carried by an urgent push.
func (s *ReminderService) SaveUrgent(ctx context.Context, d push.Data) error {
	if d.GroupID == "" {
		return fmt.Errorf("urgent report without group id")
	}
	receivedAt := s.now().UTC()
	deadline, ok := d.DeadlineAfter(receivedAt)
	if !ok {
		return ErrNoDeadline
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	all[d.GroupID] = reminder.Urgent{Deadline: deadline, Message: d.Message, ReceivedAt: receivedAt}
	if err := s.store(ctx, all); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"group_id": d.GroupID, "deadline": deadline}).Info("Urgent reminder saved")
	return nil
}

// Get returns the live reminder for a group. An expired one is deleted and
// reported absent by the same call.
func (s *ReminderService) Get(ctx context.Context, groupID string) (reminder.Urgent, bool, error) {
	all, err := s.All(ctx)
	if err != nil {
		return reminder.Urgent{}, false, err
	}
	u, ok := all[groupID]
	return u, ok, nil
}

// All returns every live reminder after purging expired ones.
func (s *ReminderService) All(ctx context.Context) (reminder.Reminders, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	purged := false
	for groupID, u := range all {
		if expired(u, now) {
			delete(all, groupID)
			purged = true
			s.log.WithField("group_id", groupID).Debug("Urgent reminder expired")
		}
	}
	if purged {
		if err := s.store(ctx, all); err != nil {
			return nil, err
		}
	}
	return all, nil
}

// Remove drops a group's reminder, e.g. after its report was sent.
func (s *ReminderService) Remove(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := all[groupID]; !ok {
		return nil
	}
	delete(all, groupID)
	return s.store(ctx, all)
}

// An unreadable deadline counts as expired.
func expired(u reminder.Urgent, now time.Time) bool {
	deadline, err := schedule.ParseServerTimestamp(u.Deadline)
	if err != nil {
		return true
	}
	return now.After(deadline)
}

func (s *ReminderService) load(ctx context.Context) (reminder.Reminders, error) {
	raw, err := s.kv.Get(ctx, session.KeyUrgentReminders)
	if errors.Is(err, storage.ErrNotFound) {
		return reminder.Reminders{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read urgent reminders: %w", err)
	}
	all := reminder.Reminders{}
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		s.log.WithError(err).Warn("Urgent reminders are corrupt, starting over")
		return reminder.Reminders{}, nil
	}
	return all, nil
}

func (s *ReminderService) store(ctx context.Context, all reminder.Reminders) error {
	if len(all) == 0 {
		if err := s.kv.Delete(ctx, session.KeyUrgentReminders); err != nil {
			return fmt.Errorf("failed to clear urgent reminders: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to encode urgent reminders: %w", err)
	}
	if err := s.kv.Set(ctx, session.KeyUrgentReminders, string(raw)); err != nil {
		return fmt.Errorf("failed to store urgent reminders: %w", err)
	}
	return nil
}
