// internal/infra/telegram/client.go
package telegram

import (
	"strconv"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to the chat and returns its message id.
func (tba *TelebotAdapter) SendMessage(chatID int64, text string, options *telebot.SendOptions) (int, error) {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := &telebot.Chat{ID: chatID} // private chats and groups alike
	msg, err := tba.bot.Send(recipient, text, options)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (tba *TelebotAdapter) DeleteMessage(chatID int64, messageID int) error {
	return tba.bot.Delete(telebot.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	})
}
