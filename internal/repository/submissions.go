package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/domain"
)

func scanEnrolledTask(row pgx.Row) (domain.EnrolledTask, error) {
	var e domain.EnrolledTask
	err := row.Scan(&e.ID, &e.TaskID, &e.MemberID, &e.RelatedGroupID, &e.CreatedAt)
	return e, err
}

const createEnrolledTask = `INSERT INTO enrolled_tasks (task_id, member_id, related_group_id)
VALUES ($1, $2, $3)
ON CONFLICT (task_id, member_id) DO NOTHING
RETURNING id, task_id, member_id, related_group_id, created_at`

// CreateEnrolledTask reports false when the member was already enrolled.
func (q *Queries) CreateEnrolledTask(ctx context.Context, arg CreateEnrolledTaskParams) (domain.EnrolledTask, bool, error) {
	e, err := scanEnrolledTask(q.db.QueryRow(ctx, createEnrolledTask, arg.TaskID, arg.MemberID, arg.RelatedGroupID))
	if err == pgx.ErrNoRows {
		return domain.EnrolledTask{}, false, nil
	}
	if err != nil {
		return domain.EnrolledTask{}, false, err
	}
	return e, true, nil
}

const getEnrolledTask = `SELECT id, task_id, member_id, related_group_id, created_at
FROM enrolled_tasks WHERE task_id = $1 AND member_id = $2`

func (q *Queries) GetEnrolledTask(ctx context.Context, taskID, memberID int64) (domain.EnrolledTask, error) {
	return scanEnrolledTask(q.db.QueryRow(ctx, getEnrolledTask, taskID, memberID))
}

const lockActiveSubmissionIDs = `SELECT id FROM submitted_tasks
WHERE task_id = $1 AND pre_audit_status <> 'rejected' AND audit_status <> 'rejected'
FOR UPDATE`

// LockActiveSubmissionIDs locks and returns the submissions that count against the task quota.
func (q *Queries) LockActiveSubmissionIDs(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, lockActiveSubmissionIDs, taskID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

const submissionColumns = `id, task_id, member_id, submit_content, pre_audit_status, audit_status,
reject_reason, reject_times, related_group_id, pre_waiter_id, waiter_id,
submitted_at, pre_audited_at, audited_at, created_at, updated_at`

func scanSubmission(row pgx.Row) (domain.SubmittedTask, error) {
	var s domain.SubmittedTask
	var content []byte
	err := row.Scan(&s.ID, &s.TaskID, &s.MemberID, &content, &s.PreAuditStatus, &s.AuditStatus,
		&s.RejectReason, &s.RejectTimes, &s.RelatedGroupID, &s.PreWaiterID, &s.WaiterID,
		&s.SubmittedAt, &s.PreAuditedAt, &s.AuditedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	s.Content, err = domain.UnmarshalContent(content)
	return s, err
}

func collectSubmissions(rows pgx.Rows) ([]domain.SubmittedTask, error) {
	defer rows.Close()
	var items []domain.SubmittedTask
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const createSubmittedTask = `INSERT INTO submitted_tasks
(task_id, member_id, submit_content, search_text, related_group_id, submitted_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + submissionColumns

func (q *Queries) CreateSubmittedTask(ctx context.Context, arg CreateSubmittedTaskParams) (domain.SubmittedTask, error) {
	content, err := domain.MarshalContent(arg.Content)
	if err != nil {
		return domain.SubmittedTask{}, err
	}
	return scanSubmission(q.db.QueryRow(ctx, createSubmittedTask,
		arg.TaskID, arg.MemberID, content, arg.Content.PlainText(), arg.RelatedGroupID, arg.SubmittedAt))
}

const getSubmittedTask = `SELECT ` + submissionColumns + ` FROM submitted_tasks WHERE id = $1`

func (q *Queries) GetSubmittedTask(ctx context.Context, id int64) (domain.SubmittedTask, error) {
	return scanSubmission(q.db.QueryRow(ctx, getSubmittedTask, id))
}

const getSubmittedTaskForUpdate = `SELECT ` + submissionColumns + `
FROM submitted_tasks WHERE task_id = $1 AND member_id = $2
FOR UPDATE`

func (q *Queries) GetSubmittedTaskForUpdate(ctx context.Context, taskID, memberID int64) (domain.SubmittedTask, error) {
	return scanSubmission(q.db.QueryRow(ctx, getSubmittedTaskForUpdate, taskID, memberID))
}

const resubmitSubmittedTask = `UPDATE submitted_tasks
SET submit_content = $2, search_text = $3, related_group_id = $4,
    pre_audit_status = 'pending', audit_status = 'pending', reject_reason = '',
    pre_waiter_id = NULL, waiter_id = NULL, pre_audited_at = NULL, audited_at = NULL,
    submitted_at = $5, updated_at = $5
WHERE id = $1
RETURNING ` + submissionColumns

// ResubmitSubmittedTask resets a rejected row for another review round. reject_times is kept.
func (q *Queries) ResubmitSubmittedTask(ctx context.Context, arg ResubmitSubmittedTaskParams) (domain.SubmittedTask, error) {
	content, err := domain.MarshalContent(arg.Content)
	if err != nil {
		return domain.SubmittedTask{}, err
	}
	return scanSubmission(q.db.QueryRow(ctx, resubmitSubmittedTask,
		arg.ID, content, arg.Content.PlainText(), arg.RelatedGroupID, arg.SubmittedAt))
}

// pendingPredicate selects rows still awaiting a decision at stage.
func pendingPredicate(stage domain.AuditStage) (string, error) {
	switch stage {
	case domain.StagePreAudit:
		return `pre_audit_status = 'pending' AND audit_status = 'pending'`, nil
	case domain.StageAudit:
		return `pre_audit_status = 'approved' AND audit_status = 'pending'`, nil
	}
	return "", fmt.Errorf("unknown audit stage %q", stage)
}

// LockPendingSubmissions locks the rows of ids still pending at stage, in id order.
func (q *Queries) LockPendingSubmissions(ctx context.Context, stage domain.AuditStage, ids []int64) ([]domain.SubmittedTask, error) {
	pred, err := pendingPredicate(stage)
	if err != nil {
		return nil, err
	}
	sql := `SELECT ` + submissionColumns + ` FROM submitted_tasks
WHERE id = ANY($1::bigint[]) AND ` + pred + `
ORDER BY id
FOR UPDATE`
	rows, err := q.db.Query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}
	return collectSubmissions(rows)
}

// TransitionSubmissions sets the stage status of the still-pending rows among arg.IDs
// and returns the ids it changed. A rejection records the reason and bumps reject_times.
func (q *Queries) TransitionSubmissions(ctx context.Context, arg TransitionParams) ([]int64, error) {
	pred, err := pendingPredicate(arg.Stage)
	if err != nil {
		return nil, err
	}
	statusCol, waiterCol, atCol := "audit_status", "waiter_id", "audited_at"
	if arg.Stage == domain.StagePreAudit {
		statusCol, waiterCol, atCol = "pre_audit_status", "pre_waiter_id", "pre_audited_at"
	}

	set := fmt.Sprintf(`%s = $2, %s = $3, %s = $4, updated_at = $4`, statusCol, waiterCol, atCol)
	args := []any{arg.IDs, string(arg.To), arg.WaiterID, arg.At}
	if arg.To == domain.AuditRejected {
		set += `, reject_reason = $5, reject_times = reject_times + 1`
		args = append(args, arg.Reason)
	}

	sql := `UPDATE submitted_tasks SET ` + set + `
WHERE id = ANY($1::bigint[]) AND ` + pred + `
RETURNING id`
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ListSubmittedTasks returns one page of submissions, newest first, and the total match count.
func (q *Queries) ListSubmittedTasks(ctx context.Context, f SubmissionFilter) ([]domain.SubmittedTask, int64, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.TaskID != nil {
		add("task_id = $%d", *f.TaskID)
	}
	if f.MemberID != nil {
		add("member_id = $%d", *f.MemberID)
	}
	if f.PreAuditStatus != "" {
		add("pre_audit_status = $%d", string(f.PreAuditStatus))
	}
	if f.AuditStatus != "" {
		add("audit_status = $%d", string(f.AuditStatus))
	}
	if f.RelatedGroupID != nil {
		add("related_group_id = $%d", *f.RelatedGroupID)
	}
	if f.PreWaiterID != nil {
		add("pre_waiter_id = $%d", *f.PreWaiterID)
	}
	if f.WaiterID != nil {
		add("waiter_id = $%d", *f.WaiterID)
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		add("search_text ILIKE '%%' || $%d || '%%'", escapeLike(kw))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM submitted_tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	page := fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := q.db.Query(ctx, `SELECT `+submissionColumns+` FROM submitted_tasks`+where+page,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	items, err := collectSubmissions(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
