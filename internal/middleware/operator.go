package middleware

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type ctxKey string

const operatorKey ctxKey = "operator"

// OperatorID returns the Telegram id of the admin who sent the update, or 0.
func OperatorID(ctx context.Context) int64 {
	id, _ := ctx.Value(operatorKey).(int64)
	return id
}

// WithOperator stores an operator id in ctx.
func WithOperator(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, operatorKey, id)
}

// AdminOnly drops updates from anyone outside the admin list and stores the
// operator id for the handlers, which use it as the auditor id.
func AdminOnly(admins interface{ IsAdmin(int64) bool }) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			from, chatID := sender(update)
			if from == nil {
				return
			}
			if !admins.IsAdmin(from.ID) {
				slog.Warn("update from non-admin ignored", "user_id", from.ID, "chat_id", chatID)
				return
			}
			next(WithOperator(ctx, from.ID), b, update)
		}
	}
}

func sender(update *models.Update) (*models.User, int64) {
	switch {
	case update.Message != nil:
		return update.Message.From, update.Message.Chat.ID
	case update.CallbackQuery != nil:
		var chatID int64
		if msg := update.CallbackQuery.Message.Message; msg != nil {
			chatID = msg.Chat.ID
		}
		return &update.CallbackQuery.From, chatID
	}
	return nil, 0
}
