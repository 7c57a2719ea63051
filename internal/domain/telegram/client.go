package telegram

import "gopkg.in/telebot.v3"

// Client defines an interface for sending and removing messages via a Telegram bot.
// This helps in decoupling the notification display from the specific bot library.
type Client interface {
	SendMessage(chatID int64, text string, options *telebot.SendOptions) (messageID int, err error)
	DeleteMessage(chatID int64, messageID int) error
}
