package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
)

func (v *view) CreateEnrolledTask(ctx context.Context, arg repository.CreateEnrolledTaskParams) (domain.EnrolledTask, bool, error) {
	defer v.lock()()
	st := v.db.st
	key := pairKey{arg.TaskID, arg.MemberID}
	if _, ok := st.enrolled[key]; ok {
		return domain.EnrolledTask{}, false, nil
	}
	e := domain.EnrolledTask{
		ID:             st.next("enrolled_tasks"),
		TaskID:         arg.TaskID,
		MemberID:       arg.MemberID,
		RelatedGroupID: arg.RelatedGroupID,
		CreatedAt:      v.now(),
	}
	st.enrolled[key] = e
	return e, true, nil
}

func (v *view) GetEnrolledTask(ctx context.Context, taskID, memberID int64) (domain.EnrolledTask, error) {
	defer v.lock()()
	e, ok := v.db.st.enrolled[pairKey{taskID, memberID}]
	if !ok {
		return domain.EnrolledTask{}, pgx.ErrNoRows
	}
	return e, nil
}

func (v *view) LockActiveSubmissionIDs(ctx context.Context, taskID int64) ([]int64, error) {
	defer v.lock()()
	var ids []int64
	for _, s := range v.db.st.submissions {
		if s.TaskID == taskID && s.IsActive() {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (v *view) CreateSubmittedTask(ctx context.Context, arg repository.CreateSubmittedTaskParams) (domain.SubmittedTask, error) {
	defer v.lock()()
	st := v.db.st
	for _, s := range st.submissions {
		if s.TaskID == arg.TaskID && s.MemberID == arg.MemberID {
			return domain.SubmittedTask{}, uniqueViolation("submitted_tasks_task_id_member_id_key")
		}
	}
	now := v.now()
	s := domain.SubmittedTask{
		ID:             st.next("submitted_tasks"),
		TaskID:         arg.TaskID,
		MemberID:       arg.MemberID,
		Content:        arg.Content,
		PreAuditStatus: domain.AuditPending,
		AuditStatus:    domain.AuditPending,
		RelatedGroupID: arg.RelatedGroupID,
		SubmittedAt:    arg.SubmittedAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	st.submissions[s.ID] = s
	return s, nil
}

func (v *view) GetSubmittedTask(ctx context.Context, id int64) (domain.SubmittedTask, error) {
	defer v.lock()()
	s, ok := v.db.st.submissions[id]
	if !ok {
		return domain.SubmittedTask{}, pgx.ErrNoRows
	}
	return s, nil
}

func (v *view) GetSubmittedTaskForUpdate(ctx context.Context, taskID, memberID int64) (domain.SubmittedTask, error) {
	defer v.lock()()
	for _, s := range v.db.st.submissions {
		if s.TaskID == taskID && s.MemberID == memberID {
			return s, nil
		}
	}
	return domain.SubmittedTask{}, pgx.ErrNoRows
}

func (v *view) ResubmitSubmittedTask(ctx context.Context, arg repository.ResubmitSubmittedTaskParams) (domain.SubmittedTask, error) {
	defer v.lock()()
	s, ok := v.db.st.submissions[arg.ID]
	if !ok {
		return domain.SubmittedTask{}, pgx.ErrNoRows
	}
	s.Content = arg.Content
	s.RelatedGroupID = arg.RelatedGroupID
	s.PreAuditStatus = domain.AuditPending
	s.AuditStatus = domain.AuditPending
	s.RejectReason = ""
	s.PreWaiterID, s.WaiterID = nil, nil
	s.PreAuditedAt, s.AuditedAt = nil, nil
	s.SubmittedAt = arg.SubmittedAt
	s.UpdatedAt = arg.SubmittedAt
	v.db.st.submissions[s.ID] = s
	return s, nil
}

func (v *view) LockPendingSubmissions(ctx context.Context, stage domain.AuditStage, ids []int64) ([]domain.SubmittedTask, error) {
	if stage != domain.StagePreAudit && stage != domain.StageAudit {
		return nil, fmt.Errorf("unknown audit stage %q", stage)
	}
	defer v.lock()()
	var items []domain.SubmittedTask
	for _, id := range domain.IDList(ids).Unique() {
		if s, ok := v.db.st.submissions[id]; ok && s.PendingIn(stage) {
			items = append(items, s)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (v *view) TransitionSubmissions(ctx context.Context, arg repository.TransitionParams) ([]int64, error) {
	if arg.Stage != domain.StagePreAudit && arg.Stage != domain.StageAudit {
		return nil, fmt.Errorf("unknown audit stage %q", arg.Stage)
	}
	if err := v.failure("TransitionSubmissions", 0); err != nil {
		return nil, err
	}
	defer v.lock()()
	var changed []int64
	for _, id := range domain.IDList(arg.IDs).Unique() {
		s, ok := v.db.st.submissions[id]
		if !ok || !s.PendingIn(arg.Stage) {
			continue
		}
		waiter, at := arg.WaiterID, arg.At
		if arg.Stage == domain.StagePreAudit {
			s.PreAuditStatus = arg.To
			s.PreWaiterID, s.PreAuditedAt = &waiter, &at
		} else {
			s.AuditStatus = arg.To
			s.WaiterID, s.AuditedAt = &waiter, &at
		}
		if arg.To == domain.AuditRejected {
			s.RejectReason = arg.Reason
			s.RejectTimes++
		}
		s.UpdatedAt = at
		v.db.st.submissions[id] = s
		changed = append(changed, id)
	}
	return changed, nil
}

func (v *view) ListSubmittedTasks(ctx context.Context, f repository.SubmissionFilter) ([]domain.SubmittedTask, int64, error) {
	defer v.lock()()
	kw := strings.ToLower(strings.TrimSpace(f.Keyword))
	var matched []domain.SubmittedTask
	for _, s := range v.db.st.submissions {
		switch {
		case f.TaskID != nil && s.TaskID != *f.TaskID,
			f.MemberID != nil && s.MemberID != *f.MemberID,
			f.PreAuditStatus != "" && s.PreAuditStatus != f.PreAuditStatus,
			f.AuditStatus != "" && s.AuditStatus != f.AuditStatus,
			f.RelatedGroupID != nil && !equalPtr(s.RelatedGroupID, f.RelatedGroupID),
			f.PreWaiterID != nil && !equalPtr(s.PreWaiterID, f.PreWaiterID),
			f.WaiterID != nil && !equalPtr(s.WaiterID, f.WaiterID),
			kw != "" && !strings.Contains(strings.ToLower(s.Content.PlainText()), kw):
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (v *view) CreateBill(ctx context.Context, arg repository.CreateBillParams) (domain.Bill, bool, error) {
	var sid int64
	if arg.SubmittedTaskID != nil {
		sid = *arg.SubmittedTaskID
	}
	if err := v.failure("CreateBill", sid); err != nil {
		return domain.Bill{}, false, err
	}
	defer v.lock()()
	st := v.db.st
	if arg.SubmittedTaskID != nil {
		for _, b := range st.bills {
			if b.BillType == arg.BillType && equalPtr(b.SubmittedTaskID, arg.SubmittedTaskID) {
				return domain.Bill{}, false, nil
			}
		}
	}
	b := domain.Bill{
		ID:               st.next("bills"),
		BillNo:           uuid.New(),
		BillType:         arg.BillType,
		MemberID:         arg.MemberID,
		RelatedMemberID:  arg.RelatedMemberID,
		TaskID:           arg.TaskID,
		SubmittedTaskID:  arg.SubmittedTaskID,
		RelatedGroupID:   arg.RelatedGroupID,
		Amount:           arg.Amount,
		SettlementStatus: domain.SettlementSettled,
		Remark:           arg.Remark,
		CreatedAt:        v.now(),
	}
	st.bills = append(st.bills, b)
	return b, true, nil
}

func (v *view) ListBills(ctx context.Context, f repository.BillFilter) ([]domain.Bill, error) {
	defer v.lock()()
	var out []domain.Bill
	for _, b := range v.db.st.bills {
		switch {
		case f.MemberID != nil && b.MemberID != *f.MemberID,
			f.BillType != "" && b.BillType != f.BillType,
			f.SubmittedTaskID != nil && !equalPtr(b.SubmittedTaskID, f.SubmittedTaskID):
			continue
		}
		out = append(out, b)
	}
	if f.Limit > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
		if f.Limit < len(out) {
			out = out[:f.Limit]
		}
	}
	return out, nil
}

func equalPtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
