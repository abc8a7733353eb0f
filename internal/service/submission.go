package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/config"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/metrics"
	"github.com/set-night/taskhub/internal/repository"
)

type SubmissionService struct {
	store    repository.TxStore
	quota    *QuotaGuard
	tracker  *TaskGroupTracker
	settings *SettingsService
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewSubmissionService(store repository.TxStore, quota *QuotaGuard, tracker *TaskGroupTracker, settings *SettingsService, m *metrics.Metrics) *SubmissionService {
	return &SubmissionService{
		store:    store,
		quota:    quota,
		tracker:  tracker,
		settings: settings,
		metrics:  m,
		now:      time.Now,
	}
}

// Enroll registers the member for the task and snapshots the member's group.
func (s *SubmissionService) Enroll(ctx context.Context, taskID, memberID int64) (*domain.EnrolledTask, error) {
	var enrolled domain.EnrolledTask
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return domain.ErrTaskNotFound
			}
			return fmt.Errorf("get task: %w", err)
		}
		if !task.IsActive() {
			return domain.ErrTaskNotActive
		}
		if _, err := q.GetMember(ctx, memberID); err != nil {
			if err == pgx.ErrNoRows {
				return domain.ErrMemberNotFound
			}
			return fmt.Errorf("get member: %w", err)
		}
		if err := checkEligibility(ctx, q, &task, memberID); err != nil {
			return err
		}

		groupID, err := snapshotGroup(ctx, q, memberID)
		if err != nil {
			return err
		}
		e, inserted, err := q.CreateEnrolledTask(ctx, repository.CreateEnrolledTaskParams{
			TaskID:         taskID,
			MemberID:       memberID,
			RelatedGroupID: groupID,
		})
		if err != nil {
			return fmt.Errorf("create enrolled task: %w", err)
		}
		if !inserted {
			return domain.ErrAlreadyEnrolled
		}
		enrolled = e
		return s.tracker.Enroll(ctx, q, taskID, memberID)
	})
	if err != nil {
		return nil, err
	}
	return &enrolled, nil
}

// Submit records proof for an enrolled task. The first call creates the
// submission; later calls resubmit the same row after a rejection.
func (s *SubmissionService) Submit(ctx context.Context, taskID, memberID int64, content domain.SubmitContent) (*domain.SubmittedTask, error) {
	sub, err := s.submit(ctx, taskID, memberID, content)
	s.metrics.RecordSubmission(submitOutcome(err))
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubmissionService) submit(ctx context.Context, taskID, memberID int64, content domain.SubmitContent) (*domain.SubmittedTask, error) {
	if err := content.Validate(); err != nil {
		return nil, err
	}
	content.Account = strings.TrimSpace(content.Account)

	var sub domain.SubmittedTask
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		task, err := s.quota.Acquire(ctx, q, taskID)
		if err != nil {
			return err
		}
		if _, err := q.GetEnrolledTask(ctx, taskID, memberID); err != nil {
			if err == pgx.ErrNoRows {
				return domain.ErrNotEnrolled
			}
			return fmt.Errorf("get enrolled task: %w", err)
		}

		existing, err := q.GetSubmittedTaskForUpdate(ctx, taskID, memberID)
		switch {
		case err == pgx.ErrNoRows:
			existing = domain.SubmittedTask{}
		case err != nil:
			return fmt.Errorf("lock submission: %w", err)
		default:
			ceiling, err := s.settings.RejectCeiling(ctx, q)
			if err != nil {
				return err
			}
			if err := existing.CheckResubmit(ceiling); err != nil {
				return err
			}
		}

		if err := s.quota.Check(ctx, q, task); err != nil {
			return err
		}

		groupID, err := snapshotGroup(ctx, q, memberID)
		if err != nil {
			return err
		}
		now := s.now()
		if existing.ID == 0 {
			sub, err = q.CreateSubmittedTask(ctx, repository.CreateSubmittedTaskParams{
				TaskID:         taskID,
				MemberID:       memberID,
				Content:        content,
				RelatedGroupID: groupID,
				SubmittedAt:    now,
			})
			if err != nil {
				return fmt.Errorf("create submission: %w", err)
			}
		} else {
			sub, err = q.ResubmitSubmittedTask(ctx, repository.ResubmitSubmittedTaskParams{
				ID:             existing.ID,
				Content:        content,
				RelatedGroupID: groupID,
				SubmittedAt:    now,
			})
			if err != nil {
				return fmt.Errorf("resubmit submission: %w", err)
			}
		}

		if content.Account != "" {
			if err := q.UpsertChannelAccount(ctx, memberID, content.Account); err != nil {
				return fmt.Errorf("upsert channel account: %w", err)
			}
		}
		if _, err := s.tracker.RecordSubmission(ctx, q, taskID, memberID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("submission recorded", "submission_id", sub.ID, "task_id", taskID, "member_id", memberID, "reject_times", sub.RejectTimes)
	return &sub, nil
}

func submitOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := domain.KindOf(err); kind == domain.KindStateConflict || kind == domain.KindValidation {
		if code := domain.CodeOf(err); code != "" {
			return code
		}
	}
	return "error"
}

func (s *SubmissionService) GetByID(ctx context.Context, id int64) (*domain.SubmittedTask, error) {
	sub, err := s.store.GetSubmittedTask(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &sub, nil
}

// ListFilter selects submissions for GetList. Zero fields match everything.
type ListFilter struct {
	TaskID         *int64
	MemberID       *int64
	PreAuditStatus domain.AuditStatus
	AuditStatus    domain.AuditStatus
	RelatedGroupID *int64
	PreWaiterID    *int64
	WaiterID       *int64
	Keyword        string
	Limit          int
	Offset         int
}

type SubmissionPage struct {
	Items []domain.SubmittedTask
	Total int64
}

func (s *SubmissionService) GetList(ctx context.Context, f ListFilter) (*SubmissionPage, error) {
	for _, st := range []domain.AuditStatus{f.PreAuditStatus, f.AuditStatus} {
		if st != "" && !st.Valid() {
			return nil, domain.Validation(fmt.Sprintf("unknown audit status %q", st))
		}
	}
	if f.Offset < 0 {
		return nil, domain.Validation("offset must not be negative")
	}
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = config.DefaultPageSize
	case limit > config.MaxPageSize:
		limit = config.MaxPageSize
	}

	items, total, err := s.store.ListSubmittedTasks(ctx, repository.SubmissionFilter{
		TaskID:         f.TaskID,
		MemberID:       f.MemberID,
		PreAuditStatus: f.PreAuditStatus,
		AuditStatus:    f.AuditStatus,
		RelatedGroupID: f.RelatedGroupID,
		PreWaiterID:    f.PreWaiterID,
		WaiterID:       f.WaiterID,
		Keyword:        f.Keyword,
		Limit:          limit,
		Offset:         f.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return &SubmissionPage{Items: items, Total: total}, nil
}
