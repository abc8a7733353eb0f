package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Logging records every operator update with its command and duration.
func Logging() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()
			from, chatID := sender(update)

			updateType, command := "unknown", ""
			switch {
			case update.Message != nil:
				updateType, command = "message", commandOf(update.Message.Text)
			case update.CallbackQuery != nil:
				updateType, command = "callback_query", update.CallbackQuery.Data
			}

			next(ctx, b, update)

			attrs := []any{
				"type", updateType,
				"command", command,
				"chat_id", chatID,
				"duration", time.Since(start),
			}
			if from != nil {
				attrs = append(attrs, "operator_id", from.ID)
			}
			slog.Info("update processed", attrs...)
		}
	}
}

func commandOf(text string) string {
	for i, r := range text {
		if r == ' ' || r == '\n' {
			return text[:i]
		}
	}
	return text
}
