// internal/infra/telegram/notification_backend.go
package telegram

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gopkg.in/telebot.v3"

	"zvit_agent/internal/domain/push"
	domainTelegram "zvit_agent/internal/domain/telegram"
)

// CallbackUnique identifies inline buttons attached to notifications.
const CallbackUnique = "zvit_notif"

// NotificationBackend shows notifications as chat messages with the
// notification's actions as inline buttons.
type NotificationBackend struct {
	client domainTelegram.Client
	chatID int64
	sent   *gocache.Cache // notification id -> message id
}

// NewNotificationBackend remembers sent messages for ttl, the lifetime of a
// shown notification. Notifications requiring interaction are kept until
// retracted.
func NewNotificationBackend(client domainTelegram.Client, chatID int64, ttl time.Duration) *NotificationBackend {
	return &NotificationBackend{client: client, chatID: chatID, sent: gocache.New(ttl, 10*time.Minute)}
}

func (b *NotificationBackend) Name() string { return "telegram" }

func (b *NotificationBackend) Deliver(_ context.Context, n push.Notification) error {
	msgID, err := b.client.SendMessage(b.chatID, messageText(n), &telebot.SendOptions{
		ReplyMarkup: notificationMarkup(n),
	})
	if err != nil {
		return err
	}
	exp := gocache.DefaultExpiration
	if n.RequireInteraction {
		exp = gocache.NoExpiration
	}
	b.sent.Set(n.ID, msgID, exp)
	return nil
}

// Retract deletes the chat message of a closed or replaced notification.
func (b *NotificationBackend) Retract(_ context.Context, id string) error {
	v, ok := b.sent.Get(id)
	b.sent.Delete(id)
	if !ok {
		return nil
	}
	return b.client.DeleteMessage(b.chatID, v.(int))
}

func messageText(n push.Notification) string {
	var sb strings.Builder
	sb.WriteString(n.Title)
	if n.Body != "" {
		sb.WriteString("\n\n")
		sb.WriteString(n.Body)
	}
	if n.Data.IsUrgent() && n.Data.Deadline != "" {
		sb.WriteString("\n\nДедлайн: ")
		sb.WriteString(n.Data.Deadline)
	}
	return sb.String()
}

func notificationMarkup(n push.Notification) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	var buttons []telebot.Btn
	for _, a := range n.Actions {
		buttons = append(buttons, markup.Data(a.Title, CallbackUnique, a.Action, n.ID))
	}
	if len(buttons) == 0 {
		buttons = append(buttons, markup.Data("Відкрити", CallbackUnique, push.ActionOpen, n.ID))
	}
	markup.Inline(markup.Row(buttons...))
	return markup
}

// ParseCallback splits button data into the action and notification id.
func ParseCallback(data string) (action, id string, ok bool) {
	action, id, ok = strings.Cut(data, "|")
	if !ok || id == "" {
		return "", "", false
	}
	return action, id, true
}
