package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
	"github.com/set-night/taskhub/internal/repository/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx         context.Context
	store       *memstore.Store
	settings    *SettingsService
	members     *MembershipService
	tasks       *TaskService
	tracker     *TaskGroupTracker
	submissions *SubmissionService
	settler     *SettlementEngine
	audit       *AuditService
	ledger      *LedgerService
	notifier    *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	settings := NewSettingsService(Defaults{
		RejectTimes:    domain.Unlimited,
		CommissionRate: decimal.RequireFromString("0.1"),
		InviteReward:   decimal.RequireFromString("1.00"),
	})
	tracker := NewTaskGroupTracker()
	settler := NewSettlementEngine(settings)
	notifier := &recordingNotifier{}
	return &fixture{
		ctx:         context.Background(),
		store:       store,
		settings:    settings,
		members:     NewMembershipService(store),
		tasks:       NewTaskService(store, tracker),
		tracker:     tracker,
		submissions: NewSubmissionService(store, NewQuotaGuard(), tracker, settings, nil),
		settler:     settler,
		audit:       NewAuditService(store, settler, tracker, notifier, nil),
		ledger:      NewLedgerService(store),
		notifier:    notifier,
	}
}

func (f *fixture) member(t *testing.T, inviterID *int64) domain.Member {
	t.Helper()
	m, err := f.members.CreateMember(f.ctx, "member", inviterID)
	require.NoError(t, err)
	return *m
}

func (f *fixture) group(t *testing.T, ownerID int64, memberIDs ...int64) domain.Group {
	t.Helper()
	g, err := f.members.CreateGroup(f.ctx, "group", ownerID)
	require.NoError(t, err)
	for _, id := range memberIDs {
		require.NoError(t, f.members.JoinGroup(f.ctx, g.ID, id, time.Now()))
	}
	return *g
}

func (f *fixture) task(t *testing.T, reward string, quota *int) domain.Task {
	t.Helper()
	task, err := f.tasks.CreateTask(f.ctx, CreateTaskInput{
		Title:  "follow the account",
		Reward: decimal.RequireFromString(reward),
		Quota:  quota,
	})
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusProcessing, task.Status)
	return *task
}

func (f *fixture) submit(t *testing.T, taskID, memberID int64) domain.SubmittedTask {
	t.Helper()
	_, err := f.submissions.Enroll(f.ctx, taskID, memberID)
	require.NoError(t, err)
	sub, err := f.submissions.Submit(f.ctx, taskID, memberID, proof("done"))
	require.NoError(t, err)
	return *sub
}

// approve runs both audit stages for ids and returns the confirm-audit result.
func (f *fixture) approve(t *testing.T, ids ...int64) *BatchResult {
	t.Helper()
	_, err := f.audit.BatchPreApprove(f.ctx, ids, 900)
	require.NoError(t, err)
	res, err := f.audit.BatchApprove(f.ctx, ids, 901)
	require.NoError(t, err)
	return res
}

func (f *fixture) reload(t *testing.T, id int64) domain.SubmittedTask {
	t.Helper()
	sub, err := f.submissions.GetByID(f.ctx, id)
	require.NoError(t, err)
	return *sub
}

func (f *fixture) bills(t *testing.T, filter repository.BillFilter) []domain.Bill {
	t.Helper()
	bills, err := f.store.ListBills(f.ctx, filter)
	require.NoError(t, err)
	return bills
}

func (f *fixture) billTypes(t *testing.T, submissionID int64) []domain.BillType {
	t.Helper()
	var out []domain.BillType
	for _, b := range f.bills(t, repository.BillFilter{SubmittedTaskID: &submissionID}) {
		out = append(out, b.BillType)
	}
	return out
}

func proof(text string) domain.SubmitContent {
	return domain.SubmitContent{Text: text, Links: []string{"https://example.com/post/1"}}
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

type recordingNotifier struct {
	mu                sync.Mutex
	errors            []string
	settlement        []int64
	settlementBatches int
	audits            int
	schedules         int
}

func (n *recordingNotifier) LogError(err error, context string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, context)
}

func (n *recordingNotifier) LogSettlementFailures(failures []domain.ItemFailure) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settlementBatches++
	for _, f := range failures {
		n.settlement = append(n.settlement, f.SubmissionID)
	}
}

func (n *recordingNotifier) LogAudit(stage, action string, requested, affected int, waiterID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.audits++
}

func (n *recordingNotifier) LogTaskSchedule(started, ended int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.schedules++
}
