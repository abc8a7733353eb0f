package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/config"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
)

// SettlementResult lists the bills posted for one approved submission.
// Nil bills were not due (no inviter, no group) or already existed.
type SettlementResult struct {
	SubmissionID    int64
	FirstCompletion bool
	AlreadySettled  bool
	TaskReward      *domain.Bill
	InviteReward    *domain.Bill
	Commission      *domain.Bill
}

// Bills returns the posted bills in posting order.
func (r *SettlementResult) Bills() []domain.Bill {
	var out []domain.Bill
	for _, b := range []*domain.Bill{r.TaskReward, r.InviteReward, r.Commission} {
		if b != nil {
			out = append(out, *b)
		}
	}
	return out
}

// SettlementEngine posts the bills an approval earns.
type SettlementEngine struct {
	settings *SettingsService
}

func NewSettlementEngine(settings *SettingsService) *SettlementEngine {
	return &SettlementEngine{settings: settings}
}

// Settle posts the task reward and then exactly one of the invite reward (the
// member's first approval) or the group owner commission (every later one).
//
// It must run in the transaction that approved sub. The member row is locked
// so two approvals of the same member cannot both take the first-approval path.
func (e *SettlementEngine) Settle(ctx context.Context, q repository.Querier, sub *domain.SubmittedTask) (*SettlementResult, error) {
	res := &SettlementResult{SubmissionID: sub.ID}

	existing, err := q.ListBills(ctx, repository.BillFilter{SubmittedTaskID: &sub.ID})
	if err != nil {
		return nil, fmt.Errorf("list submission bills: %w", err)
	}
	if len(existing) > 0 {
		res.AlreadySettled = true
		return res, nil
	}

	task, err := q.GetTask(ctx, sub.TaskID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	member, err := q.GetMemberForUpdate(ctx, sub.MemberID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrMemberNotFound
		}
		return nil, fmt.Errorf("lock member: %w", err)
	}
	res.FirstCompletion = member.IsNew

	reward := task.Reward.Round(config.AmountScale)
	res.TaskReward, err = e.post(ctx, q, repository.CreateBillParams{
		BillType:        domain.BillTaskReward,
		MemberID:        member.ID,
		TaskID:          &task.ID,
		SubmittedTaskID: &sub.ID,
		RelatedGroupID:  sub.RelatedGroupID,
		Amount:          reward,
		Remark:          fmt.Sprintf("task %d approved", task.ID),
	})
	if err != nil {
		return nil, err
	}

	if member.IsNew {
		if err := e.settleFirstCompletion(ctx, q, res, &member, &task, sub); err != nil {
			return nil, err
		}
		return res, nil
	}
	if err := e.settleRepeatCompletion(ctx, q, res, &member, &task, sub); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *SettlementEngine) settleFirstCompletion(ctx context.Context, q repository.Querier, res *SettlementResult, member *domain.Member, task *domain.Task, sub *domain.SubmittedTask) error {
	if member.InviterID != nil {
		amount, err := e.settings.InviteReward(ctx, q)
		if err != nil {
			return err
		}
		res.InviteReward, err = e.post(ctx, q, repository.CreateBillParams{
			BillType:        domain.BillInviteReward,
			MemberID:        *member.InviterID,
			RelatedMemberID: &member.ID,
			TaskID:          &task.ID,
			SubmittedTaskID: &sub.ID,
			RelatedGroupID:  sub.RelatedGroupID,
			Amount:          amount,
			Remark:          fmt.Sprintf("member %d completed a first task", member.ID),
		})
		if err != nil {
			return err
		}
	}
	if _, err := q.MarkMemberNotNew(ctx, member.ID); err != nil {
		return fmt.Errorf("mark member not new: %w", err)
	}
	return nil
}

// settleRepeatCompletion pays the owner of the group snapshotted on the
// submission, which may be the submitting member.
func (e *SettlementEngine) settleRepeatCompletion(ctx context.Context, q repository.Querier, res *SettlementResult, member *domain.Member, task *domain.Task, sub *domain.SubmittedTask) error {
	if sub.RelatedGroupID == nil {
		return nil
	}
	owner, err := groupOwner(ctx, q, *sub.RelatedGroupID)
	if err != nil || owner == nil {
		return err
	}
	rate, err := e.settings.CommissionRate(ctx, q)
	if err != nil {
		return err
	}
	res.Commission, err = e.post(ctx, q, repository.CreateBillParams{
		BillType:        domain.BillGroupOwnerCommission,
		MemberID:        *owner,
		RelatedMemberID: &member.ID,
		TaskID:          &task.ID,
		SubmittedTaskID: &sub.ID,
		RelatedGroupID:  sub.RelatedGroupID,
		Amount:          task.Reward.Mul(rate).Round(config.AmountScale),
		Remark:          fmt.Sprintf("commission on task %d", task.ID),
	})
	return err
}

func (e *SettlementEngine) post(ctx context.Context, q repository.Querier, arg repository.CreateBillParams) (*domain.Bill, error) {
	bill, inserted, err := q.CreateBill(ctx, arg)
	if err != nil {
		return nil, fmt.Errorf("create %s bill: %w", arg.BillType, err)
	}
	if !inserted {
		return nil, nil
	}
	return &bill, nil
}
