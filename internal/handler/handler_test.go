package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/taskhub/internal/config"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/middleware"
	"github.com/set-night/taskhub/internal/repository/memstore"
	"github.com/set-night/taskhub/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu     sync.Mutex
	sent   []*bot.SendMessageParams
	edited []*bot.EditMessageTextParams
	acks   int
}

func (c *fakeClient) SendMessage(ctx context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, p)
	return &models.Message{ID: len(c.sent)}, nil
}

func (c *fakeClient) EditMessageText(ctx context.Context, p *bot.EditMessageTextParams) (*models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edited = append(c.edited, p)
	return &models.Message{ID: p.MessageID}, nil
}

func (c *fakeClient) AnswerCallbackQuery(ctx context.Context, p *bot.AnswerCallbackQueryParams) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acks++
	return true, nil
}

func (c *fakeClient) last(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent)
	return c.sent[len(c.sent)-1].Text
}

type errorNotifier struct {
	errors []string
}

func (n *errorNotifier) LogError(err error, context string) {
	n.errors = append(n.errors, context)
}

func (n *errorNotifier) LogSettlementFailures([]domain.ItemFailure) {}

func (n *errorNotifier) LogAudit(stage, action string, requested, affected int, waiterID int64) {}

func (n *errorNotifier) LogTaskSchedule(started, ended int64) {}

type env struct {
	ctx         context.Context
	store       *memstore.Store
	client      *fakeClient
	notifier    *errorNotifier
	members     *service.MembershipService
	tasks       *service.TaskService
	submissions *service.SubmissionService
	h           *Handler
}

const operator = 900

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memstore.New()
	settings := service.NewSettingsService(service.Defaults{
		RejectTimes:    domain.Unlimited,
		CommissionRate: decimal.RequireFromString("0.1"),
		InviteReward:   decimal.RequireFromString("1.00"),
	})
	tracker := service.NewTaskGroupTracker()
	client := &fakeClient{}
	notifier := &errorNotifier{}
	e := &env{
		ctx:         middleware.WithOperator(context.Background(), operator),
		store:       store,
		client:      client,
		notifier:    notifier,
		members:     service.NewMembershipService(store),
		tasks:       service.NewTaskService(store, tracker),
		submissions: service.NewSubmissionService(store, service.NewQuotaGuard(), tracker, settings, nil),
	}
	e.h = New(Deps{
		Client:      client,
		Store:       store,
		Audit:       service.NewAuditService(store, service.NewSettlementEngine(settings), tracker, notifier, nil),
		Submissions: e.submissions,
		Settings:    settings,
		Ledger:      service.NewLedgerService(store),
		Tasks:       e.tasks,
		Notifier:    notifier,
	})
	return e
}

func (e *env) task(t *testing.T) domain.Task {
	t.Helper()
	task, err := e.tasks.CreateTask(e.ctx, service.CreateTaskInput{
		Title:  "repost the announcement",
		Reward: decimal.RequireFromString("5"),
	})
	require.NoError(t, err)
	return *task
}

func (e *env) submit(t *testing.T, taskID int64) domain.SubmittedTask {
	t.Helper()
	m, err := e.members.CreateMember(e.ctx, "member", nil)
	require.NoError(t, err)
	_, err = e.submissions.Enroll(e.ctx, taskID, m.ID)
	require.NoError(t, err)
	sub, err := e.submissions.Submit(e.ctx, taskID, m.ID, domain.SubmitContent{Text: "<b>done</b>", Account: "@member"})
	require.NoError(t, err)
	return *sub
}

func text(s string) *models.Update {
	return &models.Update{
		Message: &models.Message{
			From: &models.User{ID: operator},
			Chat: models.Chat{ID: operator},
			Text: s,
		},
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs("1,2, 3\n4")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)

	for _, bad := range []string{"", " , ", "1,x", "0", "-5"} {
		_, err := parseIDs(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, bad)
	}
}

func TestParseRejectArgs(t *testing.T) {
	ids, reason, err := parseRejectArgs("4,5 screenshot is blurry")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, ids)
	assert.Equal(t, "screenshot is blurry", reason)

	_, _, err = parseRejectArgs("4,5")
	assert.Error(t, err)
	_, _, err = parseRejectArgs("blurry 4")
	assert.Error(t, err)
}

func TestCommandParsing(t *testing.T) {
	assert.Equal(t, "/approve", commandName("/approve@taskhub_bot 1,2"))
	assert.Equal(t, "", commandName("  "))
	assert.Equal(t, "1,2", commandArgs("/approve@taskhub_bot 1,2"))
	assert.Equal(t, "", commandArgs("/pending"))

	stage, err := parseStage("")
	require.NoError(t, err)
	assert.Equal(t, domain.StagePreAudit, stage)
	stage, err = parseStage("Audit")
	require.NoError(t, err)
	assert.Equal(t, domain.StageAudit, stage)
	_, err = parseStage("final")
	assert.Error(t, err)

	stage, page, err := parsePendingCallback("pending_pre_audit_3")
	require.NoError(t, err)
	assert.Equal(t, domain.StagePreAudit, stage)
	assert.Equal(t, 3, page)
	for _, bad := range []string{"pending_audit", "pending_final_1", "pending_audit_-1", "other_audit_1"} {
		_, _, err := parsePendingCallback(bad)
		assert.Error(t, err, bad)
	}
}

func TestAuditCommands(t *testing.T) {
	e := newEnv(t)
	task := e.task(t)
	sub := e.submit(t, task.ID)
	other := e.submit(t, task.ID)

	e.h.handlePreApprove(e.ctx, nil, text(fmt.Sprintf("/preapprove %d,%d", sub.ID, 999)))
	assert.Contains(t, e.client.last(t), "1 of 2 affected")
	assert.Contains(t, e.client.last(t), "1 skipped")

	e.h.handleApprove(e.ctx, nil, text(fmt.Sprintf("/approve %d", sub.ID)))
	assert.Contains(t, e.client.last(t), "1 of 1 affected")
	assert.Contains(t, e.client.last(t), "1 bills posted")

	got, err := e.submissions.GetByID(e.ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditApproved, got.AuditStatus)
	require.NotNil(t, got.WaiterID)
	assert.Equal(t, int64(operator), *got.WaiterID)

	e.h.handlePreReject(e.ctx, nil, text(fmt.Sprintf("/prereject %d", other.ID)))
	assert.Contains(t, e.client.last(t), "reject reason is required")

	e.h.handlePreReject(e.ctx, nil, text(fmt.Sprintf("/prereject %d wrong account", other.ID)))
	assert.Contains(t, e.client.last(t), "1 of 1 affected")
	got, err = e.submissions.GetByID(e.ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditRejected, got.PreAuditStatus)
	assert.Equal(t, "wrong account", got.RejectReason)

	e.h.handleApprove(e.ctx, nil, text("/approve"))
	assert.Contains(t, e.client.last(t), "Usage: /approve ids")
}

func TestSubmissionAndEarnings(t *testing.T) {
	e := newEnv(t)
	sub := e.submit(t, e.task(t).ID)

	e.h.handleSubmission(e.ctx, nil, text(fmt.Sprintf("/submission %d", sub.ID)))
	out := e.client.last(t)
	assert.Contains(t, out, fmt.Sprintf("Submission %d", sub.ID))
	assert.Contains(t, out, "*Pre-audit:* pending")
	assert.Contains(t, out, "done @member")

	e.h.handleSubmission(e.ctx, nil, text("/submission 404"))
	assert.Contains(t, e.client.last(t), "submission not found")

	e.h.handleEarnings(e.ctx, nil, text(fmt.Sprintf("/earnings %d", sub.MemberID)))
	assert.Contains(t, e.client.last(t), "No bills yet")

	e.h.handlePreApprove(e.ctx, nil, text(fmt.Sprintf("/preapprove %d", sub.ID)))
	e.h.handleApprove(e.ctx, nil, text(fmt.Sprintf("/approve %d", sub.ID)))
	e.h.handleEarnings(e.ctx, nil, text(fmt.Sprintf("/earnings %d", sub.MemberID)))
	out = e.client.last(t)
	assert.Contains(t, out, `task\_reward: 5.00`)
	assert.Contains(t, out, "*Total:* 5.00")
}

func TestPendingPagination(t *testing.T) {
	e := newEnv(t)
	task := e.task(t)
	for i := 0; i < config.OperatorPageSize+1; i++ {
		e.submit(t, task.ID)
	}

	e.h.handlePending(e.ctx, nil, text("/pending pre"))
	require.Len(t, e.client.sent, 1)
	first := e.client.sent[0]
	assert.Contains(t, first.Text, "(11)")
	markup, ok := first.ReplyMarkup.(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	row := markup.InlineKeyboard[0]
	assert.Equal(t, "pending_pre_audit_1", row[len(row)-1].CallbackData)

	cb := &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:   "cb",
		From: models.User{ID: operator},
		Data: "pending_pre_audit_1",
		Message: models.MaybeInaccessibleMessage{
			Message: &models.Message{ID: 77, Chat: models.Chat{ID: operator}},
		},
	}}
	e.h.handlePendingPage(e.ctx, nil, cb)
	assert.Equal(t, 1, e.client.acks)
	require.Len(t, e.client.edited, 1)
	assert.Equal(t, 77, e.client.edited[0].MessageID)
	paged, ok := e.client.edited[0].ReplyMarkup.(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "pending_pre_audit_0", paged.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "2/2", paged.InlineKeyboard[0][1].Text)

	e.h.handlePending(e.ctx, nil, text("/pending audit"))
	assert.Contains(t, e.client.last(t), "Nothing to review")
}

func TestSetConfig(t *testing.T) {
	e := newEnv(t)

	e.h.handleSetConfig(e.ctx, nil, text("/setconfig task_reject_times 3"))
	assert.Contains(t, e.client.last(t), "✅")
	v, err := e.store.GetSystemConfig(e.ctx, config.KeyTaskRejectTimes)
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	e.h.handleSetConfig(e.ctx, nil, text("/setconfig group_owner_commission_rate 2"))
	assert.Contains(t, e.client.last(t), "commission rate must be within")

	e.h.handleSetConfig(e.ctx, nil, text("/setconfig bad_key 1"))
	assert.Contains(t, e.client.last(t), "unknown config key")

	e.h.handleSetConfig(e.ctx, nil, text("/setconfig"))
	assert.Contains(t, e.client.last(t), "Usage")
}

func TestReplyError(t *testing.T) {
	e := newEnv(t)

	e.h.replyError(e.ctx, 1, "/approve", domain.Transient(errors.New("deadlock detected")))
	assert.Contains(t, e.client.last(t), "retry the command")

	e.h.replyError(e.ctx, 1, "/approve", errors.New("connection refused"))
	assert.Contains(t, e.client.last(t), "Internal error")
	assert.Equal(t, []string{"/approve", "/approve"}, e.notifier.errors)

	e.h.replyError(e.ctx, 1, "/approve", domain.ErrTaskNotFound)
	assert.Contains(t, e.client.last(t), "task not found")
	assert.Len(t, e.notifier.errors, 2)
}
