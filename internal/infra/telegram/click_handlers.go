// internal/infra/telegram/click_handlers.go
package telegram

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"zvit_agent/internal/app"
	"zvit_agent/internal/domain/push"
)

// ClickHandler routes a click on a shown notification.
type ClickHandler interface {
	HandleClickByID(ctx context.Context, id, action string) error
}

func RegisterClickHandlers(ctx context.Context, b *telebot.Bot, clicks ClickHandler, baseLogger *logrus.Entry) {
	b.Handle(&telebot.Btn{Unique: CallbackUnique}, clickCallback(ctx, clicks, baseLogger))
}

func clickCallback(ctx context.Context, clicks ClickHandler, baseLogger *logrus.Entry) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		data := c.Callback().Data
		logCtx := baseLogger.WithField("handler", "notification_click").WithField("data", data)

		action, id, ok := ParseCallback(data)
		if !ok {
			logCtx.Warn("Invalid callback data")
			return c.Respond(&telebot.CallbackResponse{Text: "Помилка обробки дії."})
		}

		err := clicks.HandleClickByID(ctx, id, action)
		switch {
		case errors.Is(err, app.ErrNotificationNotFound):
			logCtx.Info("Notification already closed")
			return c.Respond(&telebot.CallbackResponse{Text: "Сповіщення вже закрите."})
		case err != nil:
			logCtx.WithError(err).Error("Failed to handle notification click")
			return c.Respond(&telebot.CallbackResponse{Text: "Сталася помилка."})
		}

		text := "Відкриваю ZVIT."
		if action == push.ActionDismiss || action == push.ActionClose {
			text = "Закрито."
		}
		logCtx.WithField("notification_id", id).Infof("Click %q handled", action)
		return c.Respond(&telebot.CallbackResponse{Text: text})
	}
}
