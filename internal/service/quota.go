package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
)

// QuotaGuard serializes submitters of one task on the task row.
//
// Acquire and Check must run in the same transaction: the task row lock taken
// by Acquire is what keeps two submitters from both seeing the last free slot.
type QuotaGuard struct{}

func NewQuotaGuard() *QuotaGuard {
	return &QuotaGuard{}
}

// Acquire locks the task row and requires the task to be in progress.
func (g *QuotaGuard) Acquire(ctx context.Context, q repository.Querier, taskID int64) (*domain.Task, error) {
	task, err := q.GetTaskForUpdate(ctx, taskID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("lock task: %w", err)
	}
	if !task.IsActive() {
		return nil, domain.ErrTaskNotActive
	}
	return &task, nil
}

// Check locks the task's non-rejected submissions and fails when they fill the quota.
func (g *QuotaGuard) Check(ctx context.Context, q repository.Querier, task *domain.Task) error {
	if task.Quota == nil {
		return nil
	}
	ids, err := q.LockActiveSubmissionIDs(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("lock active submissions: %w", err)
	}
	if task.QuotaReached(len(ids)) {
		return domain.ErrQuotaExceeded
	}
	return nil
}
