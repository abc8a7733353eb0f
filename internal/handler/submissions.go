package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/taskhub/internal/config"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/service"
	"github.com/set-night/taskhub/internal/telegram"
)

const pendingPrefix = "pending_"

func (h *Handler) handleSubmission(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	id, err := strconv.ParseInt(commandArgs(update.Message.Text), 10, 64)
	if err != nil || id <= 0 {
		h.reply(ctx, chatID, "Usage: /submission <id>")
		return
	}
	sub, err := h.submissions.GetByID(ctx, id)
	if err != nil {
		h.replyError(ctx, chatID, "/submission", err)
		return
	}
	h.reply(ctx, chatID, formatSubmission(sub))
}

func formatSubmission(sub *domain.SubmittedTask) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📄 *Submission %d*\n\n", sub.ID)
	fmt.Fprintf(&sb, "*Task:* %d\n", sub.TaskID)
	fmt.Fprintf(&sb, "*Member:* %d\n", sub.MemberID)
	if sub.RelatedGroupID != nil {
		fmt.Fprintf(&sb, "*Group:* %d\n", *sub.RelatedGroupID)
	}
	fmt.Fprintf(&sb, "*Pre-audit:* %s\n", sub.PreAuditStatus)
	fmt.Fprintf(&sb, "*Audit:* %s\n", sub.AuditStatus)
	fmt.Fprintf(&sb, "*Rejected:* %d times\n", sub.RejectTimes)
	if sub.RejectReason != "" {
		fmt.Fprintf(&sb, "*Reason:* %s\n", telegram.EscapeMarkdown(sub.RejectReason))
	}
	fmt.Fprintf(&sb, "*Submitted:* %s\n", sub.SubmittedAt.UTC().Format("2006-01-02 15:04"))
	if text := sub.Content.PlainText(); text != "" {
		fmt.Fprintf(&sb, "\n%s", telegram.EscapeMarkdown(telegram.Truncate(text, 1000)))
	}
	return sb.String()
}

// parseStage maps the /pending argument to an audit stage. The default is the pre-audit queue.
func parseStage(arg string) (domain.AuditStage, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "", "pre", "pre_audit", "preaudit":
		return domain.StagePreAudit, nil
	case "audit", "confirm":
		return domain.StageAudit, nil
	}
	return "", domain.Validation(fmt.Sprintf("unknown stage %q, use pre or audit", arg))
}

// stageFilter selects the rows awaiting a decision at stage.
func stageFilter(stage domain.AuditStage) service.ListFilter {
	if stage == domain.StageAudit {
		return service.ListFilter{PreAuditStatus: domain.AuditApproved, AuditStatus: domain.AuditPending}
	}
	return service.ListFilter{PreAuditStatus: domain.AuditPending, AuditStatus: domain.AuditPending}
}

func (h *Handler) handlePending(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	stage, err := parseStage(commandArgs(update.Message.Text))
	if err != nil {
		h.replyError(ctx, chatID, "/pending", err)
		return
	}
	text, markup, err := h.pendingPage(ctx, stage, 0)
	if err != nil {
		h.replyError(ctx, chatID, "/pending", err)
		return
	}
	if err := telegram.SendLongMessage(ctx, h.client, telegram.Message{ChatID: chatID, Text: text, Markup: markup}); err != nil {
		slog.Error("send pending list", "chat_id", chatID, "error", err)
	}
}

// handlePendingPage serves the pagination buttons, with callback data pending_<stage>_<page>.
func (h *Handler) handlePendingPage(ctx context.Context, b *bot.Bot, update *models.Update) {
	cq := update.CallbackQuery
	if cq == nil {
		return
	}
	h.answer(ctx, cq.ID)

	stage, page, err := parsePendingCallback(cq.Data)
	if err != nil {
		slog.Warn("bad pending callback", "data", cq.Data, "error", err)
		return
	}
	if cq.Message.Message == nil {
		return
	}
	msg := cq.Message.Message

	text, markup, err := h.pendingPage(ctx, stage, page)
	if err != nil {
		h.replyError(ctx, msg.Chat.ID, "pending page", err)
		return
	}
	if err := telegram.EditMessage(ctx, h.client, msg.Chat.ID, msg.ID, text, markup); err != nil {
		slog.Error("edit pending list", "chat_id", msg.Chat.ID, "error", err)
	}
}

func parsePendingCallback(data string) (domain.AuditStage, int, error) {
	rest, ok := strings.CutPrefix(data, pendingPrefix)
	if !ok {
		return "", 0, errors.New("missing prefix")
	}
	i := strings.LastIndex(rest, "_")
	if i < 0 {
		return "", 0, errors.New("missing page")
	}
	page, err := strconv.Atoi(rest[i+1:])
	if err != nil || page < 0 {
		return "", 0, fmt.Errorf("bad page %q", rest[i+1:])
	}
	stage := domain.AuditStage(rest[:i])
	if stage != domain.StagePreAudit && stage != domain.StageAudit {
		return "", 0, fmt.Errorf("bad stage %q", stage)
	}
	return stage, page, nil
}

func (h *Handler) pendingPage(ctx context.Context, stage domain.AuditStage, page int) (string, models.ReplyMarkup, error) {
	f := stageFilter(stage)
	f.Limit = config.OperatorPageSize
	f.Offset = page * config.OperatorPageSize

	res, err := h.submissions.GetList(ctx, f)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 *Pending %s* (%d)\n", telegram.EscapeMarkdown(string(stage)), res.Total)
	if len(res.Items) == 0 {
		sb.WriteString("\nNothing to review.")
		return sb.String(), nil, nil
	}
	for _, sub := range res.Items {
		fmt.Fprintf(&sb, "\n`%d` task %d, member %d", sub.ID, sub.TaskID, sub.MemberID)
		if sub.RejectTimes > 0 {
			fmt.Fprintf(&sb, ", resubmitted %d", sub.RejectTimes)
		}
	}

	totalPages := int((res.Total + config.OperatorPageSize - 1) / config.OperatorPageSize)
	if totalPages <= 1 {
		return sb.String(), nil, nil
	}
	markup := telegram.InlineKeyboard(telegram.PaginationRow(page, totalPages, pendingPrefix+string(stage)))
	return sb.String(), markup, nil
}

func (h *Handler) handleProgress(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	memberID, err := strconv.ParseInt(commandArgs(update.Message.Text), 10, 64)
	if err != nil || memberID <= 0 {
		h.reply(ctx, chatID, "Usage: /progress <member id>")
		return
	}
	progress, err := h.tasks.GetTaskGroupProgress(ctx, memberID)
	if err != nil {
		h.replyError(ctx, chatID, "/progress", err)
		return
	}
	h.reply(ctx, chatID, formatProgress(memberID, progress))
}

func formatProgress(memberID int64, progress []service.GroupProgress) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🧩 *Task groups of member %d*\n", memberID)
	if len(progress) == 0 {
		sb.WriteString("\nNo task groups.")
		return sb.String()
	}
	for _, p := range progress {
		icon := "⏳"
		if p.Completion == domain.CompletionCompleted {
			icon = "✅"
		}
		fmt.Fprintf(&sb, "\n%s %s: %d/%d submitted",
			icon, telegram.EscapeMarkdown(p.Group.Title), len(p.Enrollment.SubmitTaskIDs), len(p.Group.RelatedTasks))
		if len(p.Remaining) > 0 {
			fmt.Fprintf(&sb, ", missing %v", p.Remaining.Int64s())
		}
	}
	return sb.String()
}
