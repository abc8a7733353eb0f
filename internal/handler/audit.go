package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/middleware"
	"github.com/set-night/taskhub/internal/service"
	"github.com/set-night/taskhub/internal/telegram"
)

// commandArgs returns the text after the command word.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return ""
}

// commandName returns the command word without a @botname suffix.
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return name
}

// parseIDs reads submission ids separated by commas or whitespace.
func parseIDs(s string) ([]int64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, domain.Validation("no submission ids given")
	}
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil || id <= 0 {
			return nil, domain.Validation(fmt.Sprintf("bad submission id %q", f))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseRejectArgs splits "1,2,3 reason text" into ids and reason.
func parseRejectArgs(args string) ([]int64, string, error) {
	head, reason, _ := strings.Cut(args, " ")
	ids, err := parseIDs(head)
	if err != nil {
		return nil, "", err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, "", domain.Validation("a reject reason is required")
	}
	return ids, reason, nil
}

type batchFunc func(ctx context.Context, ids []int64, reason string, waiterID int64) (*service.BatchResult, error)

func (h *Handler) handlePreApprove(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.runBatch(ctx, update, false, func(ctx context.Context, ids []int64, _ string, waiterID int64) (*service.BatchResult, error) {
		return h.audit.BatchPreApprove(ctx, ids, waiterID)
	})
}

func (h *Handler) handlePreReject(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.runBatch(ctx, update, true, h.audit.BatchPreReject)
}

func (h *Handler) handleApprove(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.runBatch(ctx, update, false, func(ctx context.Context, ids []int64, _ string, waiterID int64) (*service.BatchResult, error) {
		return h.audit.BatchApprove(ctx, ids, waiterID)
	})
}

func (h *Handler) handleReject(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.runBatch(ctx, update, true, h.audit.BatchReject)
}

func (h *Handler) runBatch(ctx context.Context, update *models.Update, reject bool, fn batchFunc) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	command := commandName(update.Message.Text)
	args := commandArgs(update.Message.Text)

	var (
		ids    []int64
		reason string
		err    error
	)
	if reject {
		ids, reason, err = parseRejectArgs(args)
	} else {
		ids, err = parseIDs(args)
	}
	if err != nil {
		usage := "ids"
		if reject {
			usage = "ids reason"
		}
		h.reply(ctx, chatID, fmt.Sprintf("❌ %s\nUsage: %s %s (ids separated by commas)",
			telegram.EscapeMarkdown(err.Error()), command, usage))
		return
	}

	res, err := fn(ctx, ids, reason, middleware.OperatorID(ctx))
	if err != nil {
		h.replyError(ctx, chatID, command, err)
		return
	}
	h.reply(ctx, chatID, formatBatchResult(res))
}

func formatBatchResult(res *service.BatchResult) string {
	var sb strings.Builder
	icon := "✅"
	if len(res.Failed()) > 0 {
		icon = "⚠️"
	}
	fmt.Fprintf(&sb, "%s *%s %s*: %d of %d affected",
		icon, telegram.EscapeMarkdown(string(res.Stage)), res.Action, res.AffectedCount(), res.Requested)
	if skipped := res.Requested - res.AffectedCount(); skipped > 0 {
		fmt.Fprintf(&sb, "\n%d skipped (not pending at this stage or unknown)", skipped)
	}

	var posted int
	for _, it := range res.Items {
		if it.Settlement != nil {
			posted += len(it.Settlement.Bills())
		}
	}
	if res.Stage == domain.StageAudit && res.Action == domain.AuditApproved {
		fmt.Fprintf(&sb, "\n%d bills posted", posted)
	}

	if failed := res.Failed(); len(failed) > 0 {
		sb.WriteString("\n\n*Needs manual follow-up:*")
		for _, it := range failed {
			fmt.Fprintf(&sb, "\n`%d`: %s", it.SubmissionID, telegram.EscapeMarkdown(it.Err.Error()))
		}
	}
	return sb.String()
}
