package reminder

import "time"

// Urgent is a pending urgent-report request for one group. Deadline is kept
// in the form the server sent it and parsed on read.
type Urgent struct {
	Deadline   string    `json:"deadline"`
	Message    string    `json:"message,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Reminders maps group ids to their urgent reminder.
type Reminders map[string]Urgent
