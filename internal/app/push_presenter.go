// internal/app/push_presenter.go
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/push"
)

// PushPresenter turns inbound push payloads into displayed notifications.
// Structured types are relayed to every open window before display, so a
// window reacts even if the notification is never clicked.
type PushPresenter struct {
	clients push.Clients
	display push.Display
	now     func() time.Time
	newID   func() string
	log     *logrus.Entry
	rec     Recorder
}

func NewPushPresenter(clients push.Clients, display push.Display, log *logrus.Entry, rec Recorder) *PushPresenter {
	return &PushPresenter{
		clients: clients,
		display: display,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     log,
		rec:     orNop(rec),
	}
}

// HandlePush presents a raw push body. Bodies that are not JSON objects are
// shown as plain text under the default title.
func (p *PushPresenter) HandlePush(ctx context.Context, raw []byte) (push.Notification, error) {
	payload := push.ParsePayload(raw)
	if payload.IsText() {
		p.log.Debug("Push payload is not JSON, showing it as text")
	}
	return p.Present(ctx, payload)
}

func (p *PushPresenter) Present(ctx context.Context, payload push.Payload) (push.Notification, error) {
	n := push.Compose(payload, p.now())
	n.ID = p.newID()

	logCtx := p.log.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"type":            n.Data.Type,
		"tag":             n.Tag,
	})

	if msgType, ok := push.RelayTypeFor(n.Data.Type); ok {
		p.relay(ctx, logCtx, push.Message{Type: msgType, Data: n.Data})
	}

	if err := p.display.Show(ctx, n); err != nil {
		logCtx.WithError(err).Error("Failed to show notification")
		return n, fmt.Errorf("failed to show notification: %w", err)
	}
	p.rec.PushPresented(n.Data.Type)
	logCtx.Info("Notification shown")
	return n, nil
}

func (p *PushPresenter) relay(ctx context.Context, logCtx *logrus.Entry, msg push.Message) {
	windows, err := p.clients.MatchAll(ctx, push.MatchOptions{IncludeUncontrolled: true})
	if err != nil {
		logCtx.WithError(err).Warn("Failed to list windows for relay")
		return
	}
	for _, w := range windows {
		if err := w.PostMessage(ctx, msg); err != nil {
			logCtx.WithError(err).WithField("window_id", w.ID()).Warn("Failed to relay message to window")
		}
	}
	logCtx.WithFields(logrus.Fields{"message": msg.Type, "windows": len(windows)}).Debug("Message relayed")
}
