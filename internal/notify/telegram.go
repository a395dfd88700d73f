// Package notify mirrors completed exchanges to the staff Telegram channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// maxReplyRunes bounds the reply excerpt in the staff summary; the full answer
// already went to the user.
const maxReplyRunes = 500

// TelegramNotifier posts a short summary of each exchange to a fixed chat.
type TelegramNotifier struct {
	bot    *telego.Bot
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// Notify posts the exchange summary. Callers treat this as best-effort and
// bound it with their own context deadline.
func (n *TelegramNotifier) Notify(ctx context.Context, userID, input, reply string) error {
	if input == "" {
		input = "(только фото)"
	}

	text := fmt.Sprintf(
		"🌐 Новый чат с сайта:\n\n👤 Пользователь: %s\n❓ Вопрос: %s\n💬 Ответ: %s",
		userID, input, truncateRunes(reply, maxReplyRunes),
	)

	if _, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(n.chatID), text)); err != nil {
		return fmt.Errorf("telegram notify: %w", err)
	}

	slog.Debug("staff notification sent", "user", userID)
	return nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
