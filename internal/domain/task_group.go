package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaskGroup bundles related tasks that share one combined reward.
type TaskGroup struct {
	ID           int64
	Title        string
	Reward       decimal.Decimal
	RelatedTasks IDList
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CompletionStatus string

const (
	CompletionIncomplete CompletionStatus = "incomplete"
	CompletionCompleted  CompletionStatus = "completed"
)

type SubmitStatus string

const (
	SubmitStatusNone      SubmitStatus = "not_submitted"
	SubmitStatusSubmitted SubmitStatus = "submitted"
)

// EnrolledTaskGroup tracks which tasks of a group a member has submitted.
type EnrolledTaskGroup struct {
	ID               int64
	TaskGroupID      int64
	MemberID         int64
	SubmitTaskIDs    IDList
	SubmitStatus     SubmitStatus
	CompletionStatus CompletionStatus
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Evaluate derives the completion status against the group's related tasks.
func (e *EnrolledTaskGroup) Evaluate(related IDList) CompletionStatus {
	if e.SubmitTaskIDs.Covers(related) {
		return CompletionCompleted
	}
	return CompletionIncomplete
}
