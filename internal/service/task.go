package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/config"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
	"github.com/shopspring/decimal"
)

// TaskService is the admin surface for tasks and task groups.
type TaskService struct {
	store   repository.TxStore
	tracker *TaskGroupTracker
	now     func() time.Time
}

func NewTaskService(store repository.TxStore, tracker *TaskGroupTracker) *TaskService {
	return &TaskService{store: store, tracker: tracker, now: time.Now}
}

type CreateTaskInput struct {
	Title              string
	Reward             decimal.Decimal
	Quota              *int
	UserRule           domain.UserRule
	CompletedTaskLimit int
	GroupIDs           []int64
	StartAt            *time.Time
	EndAt              *time.Time
}

func (in *CreateTaskInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return domain.Validation("task title is required")
	case in.Reward.IsNegative():
		return domain.Validation("task reward must not be negative")
	case in.Quota != nil && *in.Quota < 0:
		return domain.Validation("task quota must not be negative")
	case in.CompletedTaskLimit < 0:
		return domain.Validation("completed task limit must not be negative")
	case in.StartAt != nil && in.EndAt != nil && !in.EndAt.After(*in.StartAt):
		return domain.Validation("task must end after it starts")
	}
	switch in.UserRule {
	case "", domain.UserRuleAll, domain.UserRuleCompletedLimit:
		return nil
	}
	return domain.Validation(fmt.Sprintf("unknown user rule %q", in.UserRule))
}

// CreateTask stores a task with the status its schedule implies right now.
func (s *TaskService) CreateTask(ctx context.Context, in CreateTaskInput) (*domain.Task, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	rule := in.UserRule
	if rule == "" {
		rule = domain.UserRuleAll
	}
	draft := domain.Task{StartAt: in.StartAt, EndAt: in.EndAt}

	var task domain.Task
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		groupIDs := domain.IDList(in.GroupIDs).Unique()
		for _, id := range groupIDs {
			if _, err := q.GetGroup(ctx, id); err != nil {
				if err == pgx.ErrNoRows {
					return domain.ErrGroupNotFound
				}
				return fmt.Errorf("get group %d: %w", id, err)
			}
		}
		var err error
		task, err = q.CreateTask(ctx, repository.CreateTaskParams{
			Title:              strings.TrimSpace(in.Title),
			Reward:             in.Reward.Round(config.AmountScale),
			Quota:              in.Quota,
			Status:             draft.StatusAt(s.now()),
			UserRule:           rule,
			CompletedTaskLimit: in.CompletedTaskLimit,
			GroupIDs:           groupIDs,
			StartAt:            in.StartAt,
			EndAt:              in.EndAt,
		})
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// CreateTaskGroup bundles existing tasks. A task may belong to one group only.
func (s *TaskService) CreateTaskGroup(ctx context.Context, title string, reward decimal.Decimal, taskIDs []int64) (*domain.TaskGroup, error) {
	related := domain.IDList(taskIDs).Unique()
	switch {
	case strings.TrimSpace(title) == "":
		return nil, domain.Validation("task group title is required")
	case reward.IsNegative():
		return nil, domain.Validation("task group reward must not be negative")
	case len(related) == 0:
		return nil, domain.Validation("task group needs at least one task")
	}

	var group domain.TaskGroup
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		for _, id := range related {
			if _, err := q.GetTask(ctx, id); err != nil {
				if err == pgx.ErrNoRows {
					return domain.ErrTaskNotFound
				}
				return fmt.Errorf("get task %d: %w", id, err)
			}
			_, err := q.GetTaskGroupByTaskID(ctx, id)
			if err == nil {
				return domain.ErrTaskAlreadyGrouped
			}
			if err != pgx.ErrNoRows {
				return fmt.Errorf("get task group by task: %w", err)
			}
		}
		var err error
		group, err = q.CreateTaskGroup(ctx, repository.CreateTaskGroupParams{
			Title:        strings.TrimSpace(title),
			Reward:       reward.Round(config.AmountScale),
			RelatedTasks: related,
		})
		if err != nil {
			if repository.IsUniqueViolation(err) {
				return domain.ErrTaskAlreadyGrouped
			}
			return fmt.Errorf("create task group: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// GetTaskGroupProgress returns the member's task groups with completion computed on read.
func (s *TaskService) GetTaskGroupProgress(ctx context.Context, memberID int64) ([]GroupProgress, error) {
	return s.tracker.Progress(ctx, s.store, memberID)
}
