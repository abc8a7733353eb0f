package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TaskStatus string

const (
	TaskStatusNotStarted TaskStatus = "not_started"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusEnded      TaskStatus = "ended"
)

// UserRule decides which members may enroll in a task.
type UserRule string

const (
	UserRuleAll            UserRule = "all"
	UserRuleCompletedLimit UserRule = "completed_limit"
)

type Task struct {
	ID                 int64
	Title              string
	Reward             decimal.Decimal
	Quota              *int // nil means unlimited
	Status             TaskStatus
	UserRule           UserRule
	CompletedTaskLimit int
	GroupIDs           IDList // empty means no group restriction
	StartAt            *time.Time
	EndAt              *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (t *Task) IsActive() bool {
	return t.Status == TaskStatusProcessing
}

// QuotaReached reports whether active non-rejected submissions fill the quota.
func (t *Task) QuotaReached(active int) bool {
	if t.Quota == nil {
		return false
	}
	return active >= *t.Quota
}

// AllowsCompletedCount applies the user-eligibility rule to a member's approved task count.
func (t *Task) AllowsCompletedCount(completed int64) bool {
	if t.UserRule != UserRuleCompletedLimit {
		return true
	}
	return completed <= int64(t.CompletedTaskLimit)
}

// StatusAt returns the status the schedule implies at now.
func (t *Task) StatusAt(now time.Time) TaskStatus {
	if t.EndAt != nil && !now.Before(*t.EndAt) {
		return TaskStatusEnded
	}
	if t.StartAt == nil || !now.Before(*t.StartAt) {
		return TaskStatusProcessing
	}
	return TaskStatusNotStarted
}

// EnrolledTask records that a member took a task, with the member's group at enroll time.
type EnrolledTask struct {
	ID             int64
	TaskID         int64
	MemberID       int64
	RelatedGroupID *int64
	CreatedAt      time.Time
}
