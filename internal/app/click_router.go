// internal/app/click_router.go
package app

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/push"
)

var ErrNotificationNotFound = errors.New("notification not found")

// ClickRouter reacts to notification clicks: it closes the notification
// and either hands the click to the main window or opens a new one.
type ClickRouter struct {
	clients  push.Clients
	display  push.Display
	lookup   push.Lookup
	shellURL string
	log      *logrus.Entry
	rec      Recorder
}

func NewClickRouter(clients push.Clients, display push.Display, lookup push.Lookup, shellURL string, log *logrus.Entry, rec Recorder) *ClickRouter {
	if shellURL == "" {
		shellURL = push.DefaultURL
	}
	return &ClickRouter{
		clients:  clients,
		display:  display,
		lookup:   lookup,
		shellURL: shellURL,
		log:      log,
		rec:      orNop(rec),
	}
}

// HandleClickByID routes a click on a notification that is still shown.
func (r *ClickRouter) HandleClickByID(ctx context.Context, id, action string) error {
	n, ok := r.lookup.Get(id)
	if !ok {
		return ErrNotificationNotFound
	}
	return r.HandleClick(ctx, push.Click{Notification: n, Action: action})
}

func (r *ClickRouter) HandleClick(ctx context.Context, click push.Click) error {
	n := click.Notification
	logCtx := r.log.WithFields(logrus.Fields{"notification_id": n.ID, "action": click.Action})

	if err := r.display.Close(ctx, n.ID); err != nil {
		logCtx.WithError(err).Warn("Failed to close notification")
	}
	r.rec.NotificationClick(click.Action)

	if click.Action == push.ActionDismiss || click.Action == push.ActionClose {
		logCtx.Debug("Notification dismissed")
		return nil
	}

	windows, err := r.clients.MatchAll(ctx, push.MatchOptions{IncludeUncontrolled: true})
	if err != nil {
		logCtx.WithError(err).Warn("Failed to list windows, opening a new one")
		windows = nil
	}
	for _, w := range windows {
		if !strings.Contains(w.URL(), r.shellURL) {
			continue
		}
		if err := w.PostMessage(ctx, push.Message{Type: push.MsgNotificationClick, Data: n.Data}); err != nil {
			logCtx.WithError(err).Warn("Failed to post click to window")
		}
		if n.Data.IsUrgent() {
			if err := w.PostMessage(ctx, push.Message{Type: push.MsgUrgentReportReceived, Data: n.Data}); err != nil {
				logCtx.WithError(err).Warn("Failed to post urgent report to window")
			}
		}
		logCtx.WithField("window_id", w.ID()).Info("Focusing existing window")
		return w.Focus(ctx)
	}

	target := n.Data.URL
	if target == "" {
		target = push.DefaultURL
	}
	logCtx.WithField("url", target).Info("Opening new window")
	return r.clients.OpenWindow(ctx, target)
}
