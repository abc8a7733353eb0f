package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
)

// TaskGroupTracker keeps each member's EnrolledTaskGroup in step with their submissions.
type TaskGroupTracker struct {
	now func() time.Time
}

func NewTaskGroupTracker() *TaskGroupTracker {
	return &TaskGroupTracker{now: time.Now}
}

// GroupProgress is a member's standing in one task group. Completion is
// derived from the submitted task ids each time it is read.
type GroupProgress struct {
	Group      domain.TaskGroup
	Enrollment domain.EnrolledTaskGroup
	Completion domain.CompletionStatus
	Remaining  domain.IDList
}

// Enroll creates the member's tracking row when the task belongs to a group.
func (t *TaskGroupTracker) Enroll(ctx context.Context, q repository.Querier, taskID, memberID int64) error {
	group, err := q.GetTaskGroupByTaskID(ctx, taskID)
	if err == pgx.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get task group by task: %w", err)
	}
	if err := q.EnsureEnrolledTaskGroup(ctx, group.ID, memberID); err != nil {
		return fmt.Errorf("ensure enrolled task group: %w", err)
	}
	return nil
}

// RecordSubmission appends taskID to the member's submitted ids for the task's
// group. Recording the same task again changes nothing.
func (t *TaskGroupTracker) RecordSubmission(ctx context.Context, q repository.Querier, taskID, memberID int64) (*domain.EnrolledTaskGroup, error) {
	return t.sync(ctx, q, taskID, memberID)
}

// CheckCompletion re-evaluates the member's group after an approval.
func (t *TaskGroupTracker) CheckCompletion(ctx context.Context, q repository.Querier, taskID, memberID int64) (*domain.EnrolledTaskGroup, error) {
	return t.sync(ctx, q, taskID, memberID)
}

func (t *TaskGroupTracker) sync(ctx context.Context, q repository.Querier, taskID, memberID int64) (*domain.EnrolledTaskGroup, error) {
	group, err := q.GetTaskGroupByTaskID(ctx, taskID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task group by task: %w", err)
	}

	if err := q.EnsureEnrolledTaskGroup(ctx, group.ID, memberID); err != nil {
		return nil, fmt.Errorf("ensure enrolled task group: %w", err)
	}
	e, err := q.GetEnrolledTaskGroupForUpdate(ctx, group.ID, memberID)
	if err != nil {
		return nil, fmt.Errorf("lock enrolled task group: %w", err)
	}

	ids, added := e.SubmitTaskIDs.Add(taskID)
	next := e
	next.SubmitTaskIDs = ids
	next.SubmitStatus = domain.SubmitStatusSubmitted
	next.CompletionStatus = next.Evaluate(group.RelatedTasks)
	if next.CompletionStatus == domain.CompletionCompleted && next.CompletedAt == nil {
		now := t.now()
		next.CompletedAt = &now
	}

	if !added && next.SubmitStatus == e.SubmitStatus && next.CompletionStatus == e.CompletionStatus {
		return &e, nil
	}
	err = q.UpdateEnrolledTaskGroup(ctx, repository.UpdateEnrolledTaskGroupParams{
		ID:               next.ID,
		SubmitTaskIDs:    next.SubmitTaskIDs,
		SubmitStatus:     next.SubmitStatus,
		CompletionStatus: next.CompletionStatus,
		CompletedAt:      next.CompletedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("update enrolled task group: %w", err)
	}
	return &next, nil
}

// Progress lists the member's task groups with completion computed from the stored ids.
func (t *TaskGroupTracker) Progress(ctx context.Context, q repository.Querier, memberID int64) ([]GroupProgress, error) {
	rows, err := q.ListEnrolledTaskGroups(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("list enrolled task groups: %w", err)
	}
	out := make([]GroupProgress, 0, len(rows))
	for _, e := range rows {
		group, err := q.GetTaskGroup(ctx, e.TaskGroupID)
		if err != nil {
			return nil, fmt.Errorf("get task group %d: %w", e.TaskGroupID, err)
		}
		out = append(out, GroupProgress{
			Group:      group,
			Enrollment: e,
			Completion: e.Evaluate(group.RelatedTasks),
			Remaining:  e.SubmitTaskIDs.Missing(group.RelatedTasks),
		})
	}
	return out, nil
}
