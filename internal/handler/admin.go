package handler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/taskhub/internal/config"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/middleware"
	"github.com/set-night/taskhub/internal/repository"
	"github.com/set-night/taskhub/internal/service"
	"github.com/set-night/taskhub/internal/telegram"
)

var configKeys = []string{
	config.KeyTaskRejectTimes,
	config.KeyGroupOwnerCommissionRate,
	config.KeyInviteRewardAmount,
}

func (h *Handler) handleSetConfig(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	fields := strings.Fields(commandArgs(update.Message.Text))
	if len(fields) != 2 {
		h.reply(ctx, chatID, "Usage: /setconfig <key> <value>\nKeys: "+telegram.EscapeMarkdown(strings.Join(configKeys, ", ")))
		return
	}
	key, value := fields[0], fields[1]

	err := h.store.ExecTx(ctx, func(q repository.Querier) error {
		return h.settings.Set(ctx, q, key, value)
	})
	if err != nil {
		h.replyError(ctx, chatID, "/setconfig", err)
		return
	}
	slog.Info("system config changed", "key", key, "value", value, "operator_id", middleware.OperatorID(ctx))
	h.reply(ctx, chatID, fmt.Sprintf("✅ %s = %s", telegram.EscapeMarkdown(key), telegram.EscapeMarkdown(value)))
}

func (h *Handler) handleEarnings(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	memberID, err := strconv.ParseInt(commandArgs(update.Message.Text), 10, 64)
	if err != nil || memberID <= 0 {
		h.reply(ctx, chatID, "Usage: /earnings <member id>")
		return
	}
	earnings, err := h.ledger.MemberEarnings(ctx, memberID)
	if err != nil {
		h.replyError(ctx, chatID, "/earnings", err)
		return
	}
	h.reply(ctx, chatID, formatEarnings(memberID, earnings))
}

func formatEarnings(memberID int64, e *service.Earnings) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 *Earnings of member %d*\n", memberID)
	if len(e.ByType) == 0 {
		sb.WriteString("\nNo bills yet.")
		return sb.String()
	}
	types := make([]string, 0, len(e.ByType))
	for t := range e.ByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(&sb, "\n%s: %s", telegram.EscapeMarkdown(t), e.ByType[domain.BillType(t)].StringFixed(config.AmountScale))
	}
	fmt.Fprintf(&sb, "\n\n*Total:* %s", e.Total.StringFixed(config.AmountScale))
	return sb.String()
}
