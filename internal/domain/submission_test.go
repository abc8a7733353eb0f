package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckResubmit(t *testing.T) {
	tests := []struct {
		name    string
		sub     SubmittedTask
		ceiling int
		want    error
	}{
		{"approved", SubmittedTask{PreAuditStatus: AuditApproved, AuditStatus: AuditApproved}, Unlimited, ErrAlreadyApproved},
		{"awaiting pre-audit", SubmittedTask{PreAuditStatus: AuditPending, AuditStatus: AuditPending}, Unlimited, ErrAuditInProgress},
		{"awaiting confirm-audit", SubmittedTask{PreAuditStatus: AuditApproved, AuditStatus: AuditPending}, Unlimited, ErrAuditInProgress},
		{"pre-rejected", SubmittedTask{PreAuditStatus: AuditRejected, AuditStatus: AuditPending, RejectTimes: 1}, Unlimited, nil},
		{"confirm-rejected", SubmittedTask{PreAuditStatus: AuditApproved, AuditStatus: AuditRejected, RejectTimes: 4}, Unlimited, nil},
		{"ceiling zero allows one resubmission", SubmittedTask{AuditStatus: AuditRejected, RejectTimes: 1}, 0, nil},
		{"ceiling zero blocks the second", SubmittedTask{AuditStatus: AuditRejected, RejectTimes: 2}, 0, ErrRejectLimitReached},
		{"ceiling two at three rejections", SubmittedTask{AuditStatus: AuditRejected, RejectTimes: 3}, 2, nil},
		{"ceiling two at four rejections", SubmittedTask{AuditStatus: AuditRejected, RejectTimes: 4}, 2, ErrRejectLimitReached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.CheckResubmit(tt.ceiling)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubmittedTask_Queues(t *testing.T) {
	fresh := SubmittedTask{PreAuditStatus: AuditPending, AuditStatus: AuditPending}
	assert.True(t, fresh.IsActive())
	assert.True(t, fresh.PendingIn(StagePreAudit))
	assert.False(t, fresh.PendingIn(StageAudit))

	pre := SubmittedTask{PreAuditStatus: AuditApproved, AuditStatus: AuditPending}
	assert.False(t, pre.PendingIn(StagePreAudit))
	assert.True(t, pre.PendingIn(StageAudit))

	rejected := SubmittedTask{PreAuditStatus: AuditRejected, AuditStatus: AuditPending}
	assert.False(t, rejected.IsActive())
	assert.False(t, rejected.PendingIn(StageAudit))
	assert.False(t, rejected.PendingIn("unknown"))
}

func TestAuditStatus_Valid(t *testing.T) {
	assert.True(t, AuditPending.Valid())
	assert.True(t, AuditRejected.Valid())
	assert.False(t, AuditStatus("done").Valid())
}
