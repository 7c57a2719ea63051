package push

import "context"

// Cross-context message types posted to windows.
const (
	MsgNotificationClick      = "NOTIFICATION_CLICK"
	MsgUrgentReportReceived   = "URGENT_REPORT_RECEIVED"
	MsgSettingsUpdateReceived = "SETTINGS_UPDATE_RECEIVED"
)

// Message is posted from the agent to a window.
type Message struct {
	Type string `json:"type"`
	Data Data   `json:"data"`
}

// RelayTypeFor maps a push type to the message relayed to open windows.
func RelayTypeFor(pushType string) (string, bool) {
	switch pushType {
	case TypeUrgentReport:
		return MsgUrgentReportReceived, true
	case TypeSettingsUpdate:
		return MsgSettingsUpdateReceived, true
	}
	return "", false
}

// Client is an open application window.
type Client interface {
	ID() string
	URL() string
	PostMessage(ctx context.Context, msg Message) error
	Focus(ctx context.Context) error
}

// MatchOptions filters Clients.MatchAll.
type MatchOptions struct {
	// IncludeUncontrolled also returns windows not yet claimed by the
	// current agent generation.
	IncludeUncontrolled bool
}

// Clients enumerates and opens windows.
type Clients interface {
	MatchAll(ctx context.Context, opts MatchOptions) ([]Client, error)
	OpenWindow(ctx context.Context, url string) error
}

// Display shows and closes system notifications.
type Display interface {
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, id string) error
}

// Lookup finds a shown notification by id.
type Lookup interface {
	Get(id string) (Notification, bool)
}

// Click is a user interaction with a notification. Action is empty when the
// notification body itself was clicked.
type Click struct {
	Notification Notification
	Action       string
}
