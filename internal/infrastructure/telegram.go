package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramAlerter delivers landlord alerts over Telegram for landlords who
// opted into that channel. A missing or bad token disables the channel
// rather than failing startup.
type TelegramAlerter struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramAlerter(token string) *TelegramAlerter {
	if token == "" {
		return &TelegramAlerter{}
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		slog.Warn("telegram disabled", "error", err)
		return &TelegramAlerter{}
	}
	return &TelegramAlerter{bot: bot}
}

// Enabled reports whether the Telegram channel is usable.
func (t *TelegramAlerter) Enabled() bool {
	return t.bot != nil
}

func (t *TelegramAlerter) SendAlert(_ context.Context, chatID, body string) error {
	if t.bot == nil {
		return fmt.Errorf("telegram channel not configured")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	msg := tgbotapi.NewMessage(id, body)
	msg.ParseMode = "Markdown"
	_, err = t.bot.Send(msg)
	return err
}
