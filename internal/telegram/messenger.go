// Package telegram adapts the Telegram Bot API to the notify.Messenger
// interface.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/orbitvpn/sentinel/internal/notify"
)

// Messenger sends notifications through a Telegram bot.
type Messenger struct {
	api *tgbotapi.BotAPI
}

// New authenticates the bot token against the Telegram API.
func New(token string) (*Messenger, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &Messenger{api: api}, nil
}

// BotUsername returns the authenticated bot account name.
func (m *Messenger) BotUsername() string {
	return m.api.Self.UserName
}

// Send implements notify.Messenger. A recipient who blocked the bot maps to
// notify.ErrRecipientBlocked so the dispatcher can drop silently.
func (m *Messenger) Send(_ context.Context, msg notify.Message) error {
	out := tgbotapi.NewMessage(msg.Recipient, msg.Text)
	out.ParseMode = tgbotapi.ModeMarkdown
	if kb, ok := keyboard(msg.Buttons); ok {
		out.ReplyMarkup = kb
	}

	if _, err := m.api.Send(out); err != nil {
		if isBlocked(err) {
			return fmt.Errorf("telegram send to %d: %w", msg.Recipient, notify.ErrRecipientBlocked)
		}
		return fmt.Errorf("telegram send to %d: %w", msg.Recipient, err)
	}
	return nil
}

func keyboard(buttons [][]notify.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(buttons) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.CallbackData))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btns...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

// isBlocked detects the Bot API responses for a recipient that blocked the
// bot or deactivated their account.
func isBlocked(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "blocked by the user") ||
		strings.Contains(s, "user is deactivated") ||
		strings.Contains(s, "chat not found")
}
