package domain

import "time"

type AuditStatus string

const (
	AuditPending  AuditStatus = "pending"
	AuditApproved AuditStatus = "approved"
	AuditRejected AuditStatus = "rejected"
)

func (s AuditStatus) Valid() bool {
	switch s {
	case AuditPending, AuditApproved, AuditRejected:
		return true
	}
	return false
}

// AuditStage names one of the two review dimensions of a submission.
type AuditStage string

const (
	StagePreAudit AuditStage = "pre_audit"
	StageAudit    AuditStage = "audit"
)

// Unlimited disables the reject ceiling.
const Unlimited = -1

type SubmittedTask struct {
	ID             int64
	TaskID         int64
	MemberID       int64
	Content        SubmitContent
	PreAuditStatus AuditStatus
	AuditStatus    AuditStatus
	RejectReason   string
	RejectTimes    int
	RelatedGroupID *int64
	PreWaiterID    *int64
	WaiterID       *int64
	SubmittedAt    time.Time
	PreAuditedAt   *time.Time
	AuditedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CheckResubmit applies the resubmission rules to the current row.
//
// A row may be resubmitted when the confirm-audit rejected it, or when the
// pre-audit rejected it before a confirm-audit happened. The ceiling is compared
// with the number of resubmissions made before the latest rejection, so a ceiling
// of N permits N+1 resubmissions.
func (s *SubmittedTask) CheckResubmit(ceiling int) error {
	switch {
	case s.AuditStatus == AuditApproved:
		return ErrAlreadyApproved
	case s.AuditStatus == AuditPending && s.PreAuditStatus != AuditRejected:
		return ErrAuditInProgress
	}
	if ceiling != Unlimited && s.RejectTimes-1 > ceiling {
		return ErrRejectLimitReached
	}
	return nil
}

// IsActive reports whether the row counts against the task quota.
func (s *SubmittedTask) IsActive() bool {
	return s.PreAuditStatus != AuditRejected && s.AuditStatus != AuditRejected
}

// PendingIn reports whether the row is awaiting a decision at stage.
// The confirm-audit only reviews rows the pre-audit approved.
func (s *SubmittedTask) PendingIn(stage AuditStage) bool {
	switch stage {
	case StagePreAudit:
		return s.PreAuditStatus == AuditPending && s.AuditStatus == AuditPending
	case StageAudit:
		return s.PreAuditStatus == AuditApproved && s.AuditStatus == AuditPending
	}
	return false
}
