package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/set-night/taskhub/internal/config"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/metrics"
	"github.com/set-night/taskhub/internal/repository"
)

// ItemResult is the outcome for one submission a confirm-audit approval moved.
// Err is a settlement or side-effect failure; the approval itself committed.
type ItemResult struct {
	SubmissionID int64
	Settlement   *SettlementResult
	Err          error
}

// BatchResult reports one batch audit call.
type BatchResult struct {
	Stage     domain.AuditStage
	Action    domain.AuditStatus
	Requested int
	Affected  []int64
	Items     []ItemResult
}

func (r *BatchResult) AffectedCount() int { return len(r.Affected) }

// Failed returns the items whose settlement or side effects failed.
func (r *BatchResult) Failed() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// AuditService runs the pre-audit and confirm-audit batch operations.
type AuditService struct {
	store    repository.TxStore
	settler  *SettlementEngine
	tracker  *TaskGroupTracker
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewAuditService(store repository.TxStore, settler *SettlementEngine, tracker *TaskGroupTracker, notifier Notifier, m *metrics.Metrics) *AuditService {
	return &AuditService{
		store:    store,
		settler:  settler,
		tracker:  tracker,
		notifier: notifierOrNop(notifier),
		metrics:  m,
		now:      time.Now,
	}
}

func (s *AuditService) BatchPreApprove(ctx context.Context, ids []int64, waiterID int64) (*BatchResult, error) {
	return s.run(ctx, domain.StagePreAudit, domain.AuditApproved, ids, waiterID, "")
}

func (s *AuditService) BatchPreReject(ctx context.Context, ids []int64, reason string, waiterID int64) (*BatchResult, error) {
	return s.run(ctx, domain.StagePreAudit, domain.AuditRejected, ids, waiterID, reason)
}

// BatchApprove approves pre-approved submissions and settles each one it moved.
func (s *AuditService) BatchApprove(ctx context.Context, ids []int64, waiterID int64) (*BatchResult, error) {
	return s.run(ctx, domain.StageAudit, domain.AuditApproved, ids, waiterID, "")
}

func (s *AuditService) BatchReject(ctx context.Context, ids []int64, reason string, waiterID int64) (*BatchResult, error) {
	return s.run(ctx, domain.StageAudit, domain.AuditRejected, ids, waiterID, reason)
}

func (s *AuditService) run(ctx context.Context, stage domain.AuditStage, to domain.AuditStatus, ids []int64, waiterID int64, reason string) (*BatchResult, error) {
	unique := domain.IDList(ids).Unique()
	reason = strings.TrimSpace(reason)
	switch {
	case len(unique) == 0:
		return nil, domain.Validation("submission ids are required")
	case len(unique) > config.MaxBatchSize:
		return nil, domain.Validation(fmt.Sprintf("at most %d submissions per batch", config.MaxBatchSize))
	case waiterID <= 0:
		return nil, domain.Validation("auditor id is required")
	case to == domain.AuditRejected && reason == "":
		return nil, domain.Validation("reject reason is required")
	}

	res := &BatchResult{Stage: stage, Action: to, Requested: len(unique)}
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		moved, err := conditionalTransition(ctx, q, repository.TransitionParams{
			Stage:    stage,
			IDs:      unique.Int64s(),
			To:       to,
			WaiterID: waiterID,
			Reason:   reason,
			At:       s.now(),
		})
		if err != nil {
			return err
		}

		res.Affected = make([]int64, 0, len(moved))
		res.Items = nil
		for _, sub := range moved {
			res.Affected = append(res.Affected, sub.ID)
		}
		if stage != domain.StageAudit || to != domain.AuditApproved {
			return nil
		}
		for i := range moved {
			item, err := s.settleOne(ctx, q, &moved[i])
			if err != nil {
				return err
			}
			res.Items = append(res.Items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.report(res, waiterID)
	return res, nil
}

// conditionalTransition locks the rows of p.IDs still pending at p.Stage and
// moves exactly those rows. Rows already resolved by another call are skipped,
// which makes repeating a batch a no-op. It returns the moved rows as they
// were before the update.
func conditionalTransition(ctx context.Context, q repository.Querier, p repository.TransitionParams) ([]domain.SubmittedTask, error) {
	locked, err := q.LockPendingSubmissions(ctx, p.Stage, p.IDs)
	if err != nil {
		return nil, fmt.Errorf("lock pending submissions: %w", err)
	}
	if len(locked) == 0 {
		return nil, nil
	}

	p.IDs = make([]int64, len(locked))
	for i, sub := range locked {
		p.IDs[i] = sub.ID
	}
	changed, err := q.TransitionSubmissions(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("transition submissions: %w", err)
	}

	set := domain.IDList(changed)
	moved := locked[:0]
	for _, sub := range locked {
		if set.Contains(sub.ID) {
			moved = append(moved, sub)
		}
	}
	return moved, nil
}

// settleOne settles sub and runs the post-approval side effects, each in its
// own savepoint. The side effects run even when settlement fails. Only
// transient store errors are returned; anything else is recorded on the item
// so the rest of the batch still commits.
func (s *AuditService) settleOne(ctx context.Context, q repository.Querier, sub *domain.SubmittedTask) (ItemResult, error) {
	item := ItemResult{SubmissionID: sub.ID}

	var settleErr error
	err := q.Savepoint(ctx, func(sq repository.Querier) error {
		r, err := s.settler.Settle(ctx, sq, sub)
		if err != nil {
			return err
		}
		item.Settlement = r
		return nil
	})
	if err != nil {
		if err := repository.Classify(err); domain.IsRetryable(err) {
			return item, err
		}
		item.Settlement = nil
		settleErr = domain.SettlementFailure(err)
	}

	var sideErr error
	err = q.Savepoint(ctx, func(sq repository.Querier) error {
		if _, err := s.tracker.CheckCompletion(ctx, sq, sub.TaskID, sub.MemberID); err != nil {
			return err
		}
		if account := sub.Content.Account; account != "" {
			if _, err := sq.MarkChannelAccountOld(ctx, sub.MemberID, account); err != nil {
				return fmt.Errorf("mark channel account old: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if err := repository.Classify(err); domain.IsRetryable(err) {
			return item, err
		}
		sideErr = domain.SideEffectFailure(err)
	}

	switch {
	case settleErr != nil && sideErr != nil:
		item.Err = errors.Join(settleErr, sideErr)
	case settleErr != nil:
		item.Err = settleErr
	case sideErr != nil:
		item.Err = sideErr
	}
	return item, nil
}

func (s *AuditService) report(res *BatchResult, waiterID int64) {
	stage, action := string(res.Stage), actionName(res.Action)
	s.metrics.RecordAuditTransition(stage, action, res.AffectedCount())

	var failures []domain.ItemFailure
	for _, it := range res.Items {
		if it.Settlement != nil {
			for _, b := range it.Settlement.Bills() {
				s.metrics.RecordBill(string(b.BillType))
			}
		}
		if it.Err == nil {
			continue
		}
		if errors.Is(it.Err, domain.ErrSettlementFailed) {
			s.metrics.RecordSettlementFailure("settlement")
		}
		if errors.Is(it.Err, domain.ErrSideEffectFailed) {
			s.metrics.RecordSettlementFailure("side_effect")
		}
		slog.Error("approval needs manual follow-up", "submission_id", it.SubmissionID, "error", it.Err)
		failures = append(failures, domain.ItemFailure{SubmissionID: it.SubmissionID, Err: it.Err})
	}
	if len(failures) > 0 {
		s.notifier.LogSettlementFailures(failures)
	}

	slog.Info("batch audit applied",
		"stage", stage, "action", action,
		"requested", res.Requested, "affected", res.AffectedCount(), "waiter_id", waiterID)
	s.notifier.LogAudit(stage, action, res.Requested, res.AffectedCount(), waiterID)
}

func actionName(to domain.AuditStatus) string {
	if to == domain.AuditRejected {
		return "reject"
	}
	return "approve"
}
