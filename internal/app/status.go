// internal/app/status.go
package app

import (
	"context"

	"zvit_agent/internal/domain/session"
)

// Status is a snapshot of the agent's offline state.
type Status struct {
	Online          bool     `json:"online"`
	PendingReports  int      `json:"pendingReports"`
	SyncTags        []string `json:"syncTags"`
	UrgentReminders int      `json:"urgentReminders"`
	Phone           string   `json:"phone,omitempty"` // signed-in user, formatted for display
}

type onlineState interface {
	Online() bool
	Tags(ctx context.Context) ([]string, error)
}

type StatusService struct {
	state     onlineState
	queue     *OfflineQueue
	reminders *ReminderService
	sessions  *SessionStore
}

func NewStatusService(state onlineState, queue *OfflineQueue, reminders *ReminderService, sessions *SessionStore) *StatusService {
	return &StatusService{state: state, queue: queue, reminders: reminders, sessions: sessions}
}

func (s *StatusService) Status(ctx context.Context) (Status, error) {
	st := Status{Online: s.state.Online()}
	var err error
	if st.SyncTags, err = s.state.Tags(ctx); err != nil {
		return st, err
	}
	if st.PendingReports, err = s.queue.Len(ctx); err != nil {
		return st, err
	}
	all, err := s.reminders.All(ctx)
	if err != nil {
		return st, err
	}
	st.UrgentReminders = len(all)
	if sess, err := s.sessions.Load(ctx); err == nil && sess.User.Phone != "" {
		st.Phone = session.FormatPhone(sess.User.Phone)
	}
	return st, nil
}
