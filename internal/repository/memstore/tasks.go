package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
)

func (v *view) CreateTask(ctx context.Context, arg repository.CreateTaskParams) (domain.Task, error) {
	defer v.lock()()
	st := v.db.st
	now := v.now()
	t := domain.Task{
		ID:                 st.next("tasks"),
		Title:              arg.Title,
		Reward:             arg.Reward,
		Quota:              arg.Quota,
		Status:             arg.Status,
		UserRule:           arg.UserRule,
		CompletedTaskLimit: arg.CompletedTaskLimit,
		GroupIDs:           arg.GroupIDs,
		StartAt:            arg.StartAt,
		EndAt:              arg.EndAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if t.Status == "" {
		t.Status = domain.TaskStatusNotStarted
	}
	if t.UserRule == "" {
		t.UserRule = domain.UserRuleAll
	}
	st.tasks[t.ID] = t
	return t, nil
}

func (v *view) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	defer v.lock()()
	t, ok := v.db.st.tasks[id]
	if !ok {
		return domain.Task{}, pgx.ErrNoRows
	}
	return t, nil
}

func (v *view) GetTaskForUpdate(ctx context.Context, id int64) (domain.Task, error) {
	if err := v.failure("GetTaskForUpdate", id); err != nil {
		return domain.Task{}, err
	}
	return v.GetTask(ctx, id)
}

func (v *view) StartDueTasks(ctx context.Context, now time.Time) (int64, error) {
	if err := v.failure("StartDueTasks", 0); err != nil {
		return 0, err
	}
	defer v.lock()()
	var n int64
	for id, t := range v.db.st.tasks {
		if t.Status != domain.TaskStatusNotStarted {
			continue
		}
		if t.StatusAt(now) != domain.TaskStatusProcessing {
			continue
		}
		t.Status = domain.TaskStatusProcessing
		t.UpdatedAt = now
		v.db.st.tasks[id] = t
		n++
	}
	return n, nil
}

func (v *view) EndDueTasks(ctx context.Context, now time.Time) (int64, error) {
	if err := v.failure("EndDueTasks", 0); err != nil {
		return 0, err
	}
	defer v.lock()()
	var n int64
	for id, t := range v.db.st.tasks {
		if t.Status == domain.TaskStatusEnded || t.EndAt == nil || now.Before(*t.EndAt) {
			continue
		}
		t.Status = domain.TaskStatusEnded
		t.UpdatedAt = now
		v.db.st.tasks[id] = t
		n++
	}
	return n, nil
}

func (v *view) CreateTaskGroup(ctx context.Context, arg repository.CreateTaskGroupParams) (domain.TaskGroup, error) {
	defer v.lock()()
	st := v.db.st
	for _, id := range arg.RelatedTasks {
		if _, taken := st.taskGroupOf[id]; taken {
			return domain.TaskGroup{}, uniqueViolation("task_group_tasks_pkey")
		}
	}
	now := v.now()
	g := domain.TaskGroup{
		ID:           st.next("task_groups"),
		Title:        arg.Title,
		Reward:       arg.Reward,
		RelatedTasks: arg.RelatedTasks,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	st.taskGroups[g.ID] = g
	for _, id := range arg.RelatedTasks {
		st.taskGroupOf[id] = g.ID
	}
	return g, nil
}

func (v *view) GetTaskGroup(ctx context.Context, id int64) (domain.TaskGroup, error) {
	defer v.lock()()
	g, ok := v.db.st.taskGroups[id]
	if !ok {
		return domain.TaskGroup{}, pgx.ErrNoRows
	}
	return g, nil
}

func (v *view) GetTaskGroupByTaskID(ctx context.Context, taskID int64) (domain.TaskGroup, error) {
	defer v.lock()()
	id, ok := v.db.st.taskGroupOf[taskID]
	if !ok {
		return domain.TaskGroup{}, pgx.ErrNoRows
	}
	return v.db.st.taskGroups[id], nil
}

func (v *view) EnsureEnrolledTaskGroup(ctx context.Context, taskGroupID, memberID int64) error {
	defer v.lock()()
	st := v.db.st
	key := pairKey{taskGroupID, memberID}
	if _, ok := st.enrolledGroups[key]; ok {
		return nil
	}
	now := v.now()
	st.enrolledGroups[key] = domain.EnrolledTaskGroup{
		ID:               st.next("enrolled_task_groups"),
		TaskGroupID:      taskGroupID,
		MemberID:         memberID,
		SubmitStatus:     domain.SubmitStatusNone,
		CompletionStatus: domain.CompletionIncomplete,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return nil
}

func (v *view) GetEnrolledTaskGroup(ctx context.Context, taskGroupID, memberID int64) (domain.EnrolledTaskGroup, error) {
	defer v.lock()()
	e, ok := v.db.st.enrolledGroups[pairKey{taskGroupID, memberID}]
	if !ok {
		return domain.EnrolledTaskGroup{}, pgx.ErrNoRows
	}
	return e, nil
}

func (v *view) GetEnrolledTaskGroupForUpdate(ctx context.Context, taskGroupID, memberID int64) (domain.EnrolledTaskGroup, error) {
	return v.GetEnrolledTaskGroup(ctx, taskGroupID, memberID)
}

func (v *view) UpdateEnrolledTaskGroup(ctx context.Context, arg repository.UpdateEnrolledTaskGroupParams) error {
	if err := v.failure("UpdateEnrolledTaskGroup", arg.ID); err != nil {
		return err
	}
	defer v.lock()()
	for key, e := range v.db.st.enrolledGroups {
		if e.ID != arg.ID {
			continue
		}
		e.SubmitTaskIDs = arg.SubmitTaskIDs
		e.SubmitStatus = arg.SubmitStatus
		e.CompletionStatus = arg.CompletionStatus
		e.CompletedAt = arg.CompletedAt
		e.UpdatedAt = v.now()
		v.db.st.enrolledGroups[key] = e
		return nil
	}
	return nil
}

func (v *view) ListEnrolledTaskGroups(ctx context.Context, memberID int64) ([]domain.EnrolledTaskGroup, error) {
	defer v.lock()()
	var items []domain.EnrolledTaskGroup
	for _, e := range v.db.st.enrolledGroups {
		if e.MemberID == memberID {
			items = append(items, e)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}
