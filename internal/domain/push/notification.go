package push

import (
	"strconv"
	"time"
)

// Display defaults.
const (
	DefaultTitle = "ZVIT"
	DefaultBody  = "Нове повідомлення"
	DefaultTag   = "zvit-notification"
	DefaultURL   = "/app"
	IconURL      = "/icons/icon-192x192.png"
	BadgeURL     = "/icons/icon-72x72.png"
)

// Message types carried in push data.
const (
	TypeUrgentReport   = "URGENT_REPORT"
	TypeSettingsUpdate = "SETTINGS_UPDATE"
	TypeReminder       = "REMINDER"
)

// Notification actions.
const (
	ActionOpen    = "open"
	ActionDismiss = "dismiss"
	ActionClose   = "close"
)

var (
	urgentVibrate  = []int{200, 100, 200}
	defaultVibrate = []int{100, 50, 100}
)

// Action is a button offered on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Data is the semantic payload embedded in a notification, enough for a
// click handler or a page to act without another request.
type Data struct {
	URL             string `json:"url"`
	GroupID         string `json:"groupId,omitempty"`
	GroupName       string `json:"groupName,omitempty"`
	Type            string `json:"type,omitempty"`
	ReportID        string `json:"reportId,omitempty"`
	DeadlineMinutes string `json:"deadlineMinutes,omitempty"`
	Deadline        string `json:"deadline,omitempty"`
	Message         string `json:"message,omitempty"`
	UrgentSessionID string `json:"urgentSessionId,omitempty"`
}

// IsUrgent reports whether the data describes an urgent report request.
func (d Data) IsUrgent() bool {
	return d.Type == TypeUrgentReport
}

// DeadlineAfter returns the deadline as RFC 3339 UTC. An explicit deadline
// wins; otherwise it is receivedAt plus DeadlineMinutes. ok is false when
// neither is usable.
func (d Data) DeadlineAfter(receivedAt time.Time) (string, bool) {
	if d.Deadline != "" {
		return d.Deadline, true
	}
	minutes, err := strconv.Atoi(d.DeadlineMinutes)
	if err != nil || minutes <= 0 {
		return "", false
	}
	return receivedAt.Add(time.Duration(minutes) * time.Minute).UTC().Format(time.RFC3339), true
}

// Notification is a displayed (or displayable) system notification.
type Notification struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	Icon               string    `json:"icon"`
	Badge              string    `json:"badge"`
	Vibrate            []int     `json:"vibrate"`
	Tag                string    `json:"tag"`
	Renotify           bool      `json:"renotify"`
	RequireInteraction bool      `json:"requireInteraction"`
	Actions            []Action  `json:"actions"`
	Data               Data      `json:"data"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Compose turns a push payload into notification options. The caller
// assigns the ID.
func Compose(p Payload, now time.Time) Notification {
	data := Data{
		URL:             firstNonEmpty(p.Get("url"), DefaultURL),
		GroupID:         p.Get("groupId"),
		GroupName:       p.Get("groupName"),
		Type:            p.Type(),
		ReportID:        p.Get("reportId"),
		DeadlineMinutes: p.Get("deadlineMinutes"),
		Deadline:        p.Get("deadline"),
		Message:         p.Get("message"),
		UrgentSessionID: p.Get("urgentSessionId"),
	}
	urgent := data.IsUrgent()

	n := Notification{
		Title:              p.Title(),
		Body:               p.BodyText(),
		Icon:               IconURL,
		Badge:              BadgeURL,
		Vibrate:            append([]int(nil), defaultVibrate...),
		Tag:                firstNonEmpty(p.Get("tag"), DefaultTag),
		Renotify:           true,
		RequireInteraction: urgent,
		Actions: []Action{
			{Action: ActionOpen, Title: "Відкрити"},
			{Action: ActionDismiss, Title: "Закрити"},
		},
		Data:      data,
		CreatedAt: now,
	}
	if urgent {
		n.Vibrate = append([]int(nil), urgentVibrate...)
		n.Tag = "urgent-" + data.GroupID
	}
	return n
}
