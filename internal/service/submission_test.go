package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/set-night/taskhub/internal/config"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_QuotaUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, "5.00", intPtr(2))

	members := make([]domain.Member, 3)
	for i := range members {
		members[i] = f.member(t, nil)
		_, err := f.submissions.Enroll(f.ctx, task.ID, members[i].ID)
		require.NoError(t, err)
	}

	errs := make([]error, len(members))
	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func(i int, memberID int64) {
			defer wg.Done()
			_, errs[i] = f.submissions.Submit(f.ctx, task.ID, memberID, proof("done"))
		}(i, m.ID)
	}
	wg.Wait()

	var ok, exceeded int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrQuotaExceeded):
			exceeded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, exceeded)

	ids, err := f.store.LockActiveSubmissionIDs(f.ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestSubmit_RejectionFreesQuota(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, "5.00", intPtr(1))
	a, b := f.member(t, nil), f.member(t, nil)

	first := f.submit(t, task.ID, a.ID)
	_, err := f.submissions.Enroll(f.ctx, task.ID, b.ID)
	require.NoError(t, err)
	_, err = f.submissions.Submit(f.ctx, task.ID, b.ID, proof("me too"))
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)

	_, err = f.audit.BatchPreReject(f.ctx, []int64{first.ID}, "blurry screenshot", 900)
	require.NoError(t, err)

	_, err = f.submissions.Submit(f.ctx, task.ID, b.ID, proof("me too"))
	require.NoError(t, err)

	// the slot is taken again, so the rejected member cannot come back
	_, err = f.submissions.Submit(f.ctx, task.ID, a.ID, proof("retry"))
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestEnroll(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, "1.00", nil)
	m := f.member(t, nil)

	enrolled, err := f.submissions.Enroll(f.ctx, task.ID, m.ID)
	require.NoError(t, err)
	assert.Nil(t, enrolled.RelatedGroupID)

	_, err = f.submissions.Enroll(f.ctx, task.ID, m.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyEnrolled)

	_, err = f.submissions.Enroll(f.ctx, 999, m.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = f.submissions.Enroll(f.ctx, task.ID, 999)
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestEnroll_SnapshotsFirstJoinedGroup(t *testing.T) {
	f := newFixture(t)
	owner := f.member(t, nil)
	m := f.member(t, nil)
	first, err := f.members.CreateGroup(f.ctx, "first", owner.ID)
	require.NoError(t, err)
	second, err := f.members.CreateGroup(f.ctx, "second", owner.ID)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, f.members.JoinGroup(f.ctx, second.ID, m.ID, now))
	require.NoError(t, f.members.JoinGroup(f.ctx, first.ID, m.ID, now.Add(-time.Hour)))

	task := f.task(t, "1.00", nil)
	enrolled, err := f.submissions.Enroll(f.ctx, task.ID, m.ID)
	require.NoError(t, err)
	require.NotNil(t, enrolled.RelatedGroupID)
	assert.Equal(t, first.ID, *enrolled.RelatedGroupID)
}

func TestEnroll_Eligibility(t *testing.T) {
	f := newFixture(t)
	owner := f.member(t, nil)
	insider := f.member(t, nil)
	outsider := f.member(t, nil)
	g := f.group(t, owner.ID, insider.ID)

	restricted, err := f.tasks.CreateTask(f.ctx, CreateTaskInput{Title: "members only", GroupIDs: []int64{g.ID}})
	require.NoError(t, err)

	_, err = f.submissions.Enroll(f.ctx, restricted.ID, outsider.ID)
	assert.ErrorIs(t, err, domain.ErrNotEligible)
	_, err = f.submissions.Enroll(f.ctx, restricted.ID, insider.ID)
	assert.NoError(t, err)

	newcomers, err := f.tasks.CreateTask(f.ctx, CreateTaskInput{
		Title:              "newcomers only",
		UserRule:           domain.UserRuleCompletedLimit,
		CompletedTaskLimit: 0,
	})
	require.NoError(t, err)

	warmup := f.task(t, "1.00", nil)
	sub := f.submit(t, warmup.ID, outsider.ID)
	f.approve(t, sub.ID)

	_, err = f.submissions.Enroll(f.ctx, newcomers.ID, outsider.ID)
	assert.ErrorIs(t, err, domain.ErrNotEligible)
	_, err = f.submissions.Enroll(f.ctx, newcomers.ID, insider.ID)
	assert.NoError(t, err)
}

func TestEnroll_TaskNotActive(t *testing.T) {
	f := newFixture(t)
	start := time.Now().Add(time.Hour)
	task, err := f.tasks.CreateTask(f.ctx, CreateTaskInput{Title: "later", StartAt: &start})
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusNotStarted, task.Status)

	_, err = f.submissions.Enroll(f.ctx, task.ID, f.member(t, nil).ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotActive)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, "1.00", nil)
	m := f.member(t, nil)

	_, err := f.submissions.Submit(f.ctx, task.ID, m.ID, proof("done"))
	assert.ErrorIs(t, err, domain.ErrNotEnrolled)

	_, err = f.submissions.Enroll(f.ctx, task.ID, m.ID)
	require.NoError(t, err)

	_, err = f.submissions.Submit(f.ctx, task.ID, m.ID, domain.SubmitContent{Text: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestSubmit_TaskCheckedBeforeEnrollment(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, nil)

	_, err := f.submissions.Submit(f.ctx, 9999, m.ID, proof("done"))
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	end := time.Now().Add(time.Hour)
	task, err := f.tasks.CreateTask(f.ctx, CreateTaskInput{Title: "closing", Reward: decimal.NewFromInt(1), EndAt: &end})
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusProcessing, task.Status)
	enrolled := f.member(t, nil)
	_, err = f.submissions.Enroll(f.ctx, task.ID, enrolled.ID)
	require.NoError(t, err)

	job, _ := newStatusJob(f, 1, end)
	_, ended, err := job.Run(f.ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ended)

	_, err = f.submissions.Submit(f.ctx, task.ID, m.ID, proof("done"))
	assert.ErrorIs(t, err, domain.ErrTaskNotActive)
	_, err = f.submissions.Submit(f.ctx, task.ID, enrolled.ID, proof("done"))
	assert.ErrorIs(t, err, domain.ErrTaskNotActive)
}

func TestSubmit_StateMachineClosure(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, f *fixture, id int64)
		wantErr error
	}{
		{
			name:    "pending review",
			prepare: func(t *testing.T, f *fixture, id int64) {},
			wantErr: domain.ErrAuditInProgress,
		},
		{
			name: "pre-approved awaiting audit",
			prepare: func(t *testing.T, f *fixture, id int64) {
				_, err := f.audit.BatchPreApprove(f.ctx, []int64{id}, 900)
				require.NoError(t, err)
			},
			wantErr: domain.ErrAuditInProgress,
		},
		{
			name: "pre-rejected",
			prepare: func(t *testing.T, f *fixture, id int64) {
				_, err := f.audit.BatchPreReject(f.ctx, []int64{id}, "wrong account", 900)
				require.NoError(t, err)
			},
		},
		{
			name: "audit rejected",
			prepare: func(t *testing.T, f *fixture, id int64) {
				_, err := f.audit.BatchPreApprove(f.ctx, []int64{id}, 900)
				require.NoError(t, err)
				_, err = f.audit.BatchReject(f.ctx, []int64{id}, "deleted post", 901)
				require.NoError(t, err)
			},
		},
		{
			name: "approved",
			prepare: func(t *testing.T, f *fixture, id int64) {
				f.approve(t, id)
			},
			wantErr: domain.ErrAlreadyApproved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			task := f.task(t, "1.00", nil)
			m := f.member(t, nil)
			sub := f.submit(t, task.ID, m.ID)
			tt.prepare(t, f, sub.ID)

			again, err := f.submissions.Submit(f.ctx, task.ID, m.ID, proof("second try"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, domain.KindStateConflict, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, sub.ID, again.ID)
			assert.Equal(t, domain.AuditPending, again.PreAuditStatus)
			assert.Equal(t, domain.AuditPending, again.AuditStatus)
			assert.Empty(t, again.RejectReason)
			assert.Equal(t, 1, again.RejectTimes)
			assert.Equal(t, "second try", again.Content.Text)
		})
	}
}

func TestSubmit_RejectCeiling(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settings.Set(f.ctx, f.store, config.KeyTaskRejectTimes, "0"))

	task := f.task(t, "1.00", nil)
	m := f.member(t, nil)
	sub := f.submit(t, task.ID, m.ID)

	_, err := f.audit.BatchPreApprove(f.ctx, []int64{sub.ID}, 900)
	require.NoError(t, err)
	_, err = f.audit.BatchReject(f.ctx, []int64{sub.ID}, "not visible", 901)
	require.NoError(t, err)

	_, err = f.submissions.Submit(f.ctx, task.ID, m.ID, proof("fixed"))
	require.NoError(t, err)

	_, err = f.audit.BatchPreReject(f.ctx, []int64{sub.ID}, "still not visible", 900)
	require.NoError(t, err)

	_, err = f.submissions.Submit(f.ctx, task.ID, m.ID, proof("fixed again"))
	assert.ErrorIs(t, err, domain.ErrRejectLimitReached)

	page, err := f.submissions.GetList(f.ctx, ListFilter{TaskID: &task.ID, MemberID: &m.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, 2, page.Items[0].RejectTimes)
}

func TestSubmit_ResubmissionResnapshotsGroup(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, "1.00", nil)
	owner := f.member(t, nil)
	m := f.member(t, nil)

	sub := f.submit(t, task.ID, m.ID)
	require.Nil(t, sub.RelatedGroupID)

	g := f.group(t, owner.ID, m.ID)
	_, err := f.audit.BatchPreReject(f.ctx, []int64{sub.ID}, "retake", 900)
	require.NoError(t, err)

	again, err := f.submissions.Submit(f.ctx, task.ID, m.ID, proof("retaken"))
	require.NoError(t, err)
	require.NotNil(t, again.RelatedGroupID)
	assert.Equal(t, g.ID, *again.RelatedGroupID)
}

func TestSubmit_RegistersChannelAccount(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, "1.00", nil)
	m := f.member(t, nil)
	_, err := f.submissions.Enroll(f.ctx, task.ID, m.ID)
	require.NoError(t, err)

	_, err = f.submissions.Submit(f.ctx, task.ID, m.ID, domain.SubmitContent{Text: "followed", Account: " @alice "})
	require.NoError(t, err)

	acct, err := f.store.GetChannelAccount(f.ctx, m.ID, "@alice")
	require.NoError(t, err)
	assert.True(t, acct.IsNew)
}

func TestGetByID_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.submissions.GetByID(f.ctx, 42)
	assert.ErrorIs(t, err, domain.ErrSubmissionNotFound)
}

func TestGetList_Filters(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, "1.00", nil)
	owner := f.member(t, nil)

	var ids []int64
	for i := 0; i < 3; i++ {
		m := f.member(t, nil)
		if i == 0 {
			f.group(t, owner.ID, m.ID)
		}
		_, err := f.submissions.Enroll(f.ctx, task.ID, m.ID)
		require.NoError(t, err)
		content := proof("plain proof")
		if i == 2 {
			content = domain.SubmitContent{Text: "<p>Shared the <b>launch</b> thread</p>"}
		}
		sub, err := f.submissions.Submit(f.ctx, task.ID, m.ID, content)
		require.NoError(t, err)
		ids = append(ids, sub.ID)
	}
	_, err := f.audit.BatchPreApprove(f.ctx, ids[:2], 77)
	require.NoError(t, err)

	page, err := f.submissions.GetList(f.ctx, ListFilter{Keyword: "the launch"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ids[2], page.Items[0].ID)

	page, err = f.submissions.GetList(f.ctx, ListFilter{PreAuditStatus: domain.AuditApproved, PreWaiterID: int64Ptr(77)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)

	page, err = f.submissions.GetList(f.ctx, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ids[1], page.Items[0].ID)

	subs, _, err := f.store.ListSubmittedTasks(f.ctx, repository.SubmissionFilter{MemberID: &page.Items[0].MemberID})
	require.NoError(t, err)
	require.Len(t, subs, 1)

	first := f.reload(t, ids[0])
	require.NotNil(t, first.RelatedGroupID)
	page, err = f.submissions.GetList(f.ctx, ListFilter{RelatedGroupID: first.RelatedGroupID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	_, err = f.submissions.GetList(f.ctx, ListFilter{AuditStatus: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
