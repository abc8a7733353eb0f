package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
	"github.com/set-night/taskhub/internal/service"
	"github.com/set-night/taskhub/internal/telegram"
)

// Handler serves the operator bot commands.
type Handler struct {
	client      telegram.Client
	store       repository.TxStore
	audit       *service.AuditService
	submissions *service.SubmissionService
	settings    *service.SettingsService
	ledger      *service.LedgerService
	tasks       *service.TaskService
	notifier    service.Notifier
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Client      telegram.Client
	Store       repository.TxStore
	Audit       *service.AuditService
	Submissions *service.SubmissionService
	Settings    *service.SettingsService
	Ledger      *service.LedgerService
	Tasks       *service.TaskService
	Notifier    service.Notifier
}

func New(deps Deps) *Handler {
	return &Handler{
		client:      deps.Client,
		store:       deps.Store,
		audit:       deps.Audit,
		submissions: deps.Submissions,
		settings:    deps.Settings,
		ledger:      deps.Ledger,
		tasks:       deps.Tasks,
		notifier:    deps.Notifier,
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := telegram.SendLongMessage(ctx, h.client, telegram.Message{ChatID: chatID, Text: text}); err != nil {
		slog.Error("reply to operator", "chat_id", chatID, "error", err)
	}
}

// replyError tells the operator why a command failed. Typed engine errors are
// shown as is; anything else is logged and reported as an internal error.
func (h *Handler) replyError(ctx context.Context, chatID int64, command string, err error) {
	var e *domain.Error
	if errors.As(err, &e) && e.Kind != domain.KindTransient {
		h.reply(ctx, chatID, "❌ "+telegram.EscapeMarkdown(e.Error()))
		return
	}
	slog.Error("operator command failed", "command", command, "error", err)
	if h.notifier != nil {
		h.notifier.LogError(err, command)
	}
	if domain.IsRetryable(err) {
		h.reply(ctx, chatID, "⏳ The database is busy. Nothing was changed, retry the command.")
		return
	}
	h.reply(ctx, chatID, "❌ Internal error.")
}
