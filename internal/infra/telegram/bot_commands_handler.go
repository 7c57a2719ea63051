// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"zvit_agent/internal/app"
)

type StatusSource interface {
	Status(ctx context.Context) (app.Status, error)
}

// SyncTrigger fires registered background sync tags now.
type SyncTrigger interface {
	Fire(ctx context.Context) ([]string, error)
}

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	chatID int64, // Only this chat may use the commands
	status StatusSource,
	syncer SyncTrigger,
	baseLogger *logrus.Entry, // For contextual logging
) {
	logger := baseLogger.WithField("handler_group", "commands")
	chatOf := func(c telebot.Context) int64 {
		if c.Chat() == nil {
			return 0
		}
		return c.Chat().ID
	}
	allowed := func(c telebot.Context) bool {
		return chatOf(c) == chatID
	}

	b.Handle("/start", func(c telebot.Context) error {
		logCtx := logger.WithField("command", "/start").WithField("chat_id", chatOf(c))
		if !allowed(c) {
			logCtx.Info("Command from unknown chat")
			return c.Send("Цей бот показує сповіщення ZVIT лише для налаштованого чату.")
		}
		logCtx.Info("Processing /start command")
		return c.Send("Привіт! Сюди надходитимуть сповіщення ZVIT. Використовуйте /help для списку команд.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		if !allowed(c) {
			return nil
		}
		var helpText strings.Builder
		helpText.WriteString("Доступні команди:\n\n")
		helpText.WriteString("`/status`\n - Стан з'єднання та черги звітів.\n\n")
		helpText.WriteString("`/sync`\n - Надіслати збережені звіти зараз.\n\n")
		helpText.WriteString("`/help`\n - Показати це повідомлення.")
		return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})

	b.Handle("/status", func(c telebot.Context) error {
		if !allowed(c) {
			return nil
		}
		logCtx := logger.WithField("command", "/status")
		st, err := status.Status(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Failed to read agent status")
			return c.Send("Не вдалося отримати стан. Спробуйте пізніше.")
		}
		return c.Send(formatStatus(st))
	})

	b.Handle("/sync", func(c telebot.Context) error {
		if !allowed(c) {
			return nil
		}
		logCtx := logger.WithField("command", "/sync")
		ran, err := syncer.Fire(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Manual sync failed")
			return c.Send("Синхронізація не вдалася: " + err.Error())
		}
		if len(ran) == 0 {
			return c.Send("Немає що синхронізувати або сервер недоступний.")
		}
		logCtx.WithField("tags", ran).Info("Manual sync done")
		return c.Send("Синхронізацію виконано.")
	})
}

func formatStatus(st app.Status) string {
	conn := "офлайн"
	if st.Online {
		conn = "онлайн"
	}
	text := fmt.Sprintf("З'єднання: %s\nЗвітів у черзі: %d\nТермінових нагадувань: %d", conn, st.PendingReports, st.UrgentReminders)
	if st.Phone != "" {
		text += "\nТелефон: " + st.Phone
	}
	return text
}
