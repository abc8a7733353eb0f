package handler

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/taskhub/internal/telegram"
)

// Register wires the operator commands into b.
func (h *Handler) Register(b *bot.Bot) {
	// Audit
	b.RegisterHandler(bot.HandlerTypeMessageText, "/preapprove", bot.MatchTypePrefix, h.handlePreApprove)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/prereject", bot.MatchTypePrefix, h.handlePreReject)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/approve", bot.MatchTypePrefix, h.handleApprove)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/reject", bot.MatchTypePrefix, h.handleReject)

	// Browsing
	b.RegisterHandler(bot.HandlerTypeMessageText, "/submission", bot.MatchTypePrefix, h.handleSubmission)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/pending", bot.MatchTypePrefix, h.handlePending)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/progress", bot.MatchTypePrefix, h.handleProgress)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/earnings", bot.MatchTypePrefix, h.handleEarnings)

	// Admin
	b.RegisterHandler(bot.HandlerTypeMessageText, "/setconfig", bot.MatchTypePrefix, h.handleSetConfig)

	// Callbacks
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, pendingPrefix, bot.MatchTypePrefix, h.handlePendingPage)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.NoopCallback, bot.MatchTypeExact, h.handleNoop)
}

func (h *Handler) handleNoop(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		h.answer(ctx, update.CallbackQuery.ID)
	}
}

func (h *Handler) answer(ctx context.Context, callbackID string) {
	if _, err := h.client.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackID}); err != nil {
		slog.Warn("answer callback", "error", err)
	}
}
