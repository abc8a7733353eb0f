package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/domain"
)

const taskColumns = `id, title, reward, quota, status, user_rule, completed_task_limit,
group_ids, start_at, end_at, created_at, updated_at`

func scanTask(row pgx.Row) (domain.Task, error) {
	var t domain.Task
	var groupIDs []int64
	err := row.Scan(&t.ID, &t.Title, &t.Reward, &t.Quota, &t.Status, &t.UserRule, &t.CompletedTaskLimit,
		&groupIDs, &t.StartAt, &t.EndAt, &t.CreatedAt, &t.UpdatedAt)
	t.GroupIDs = domain.IDList(groupIDs)
	return t, err
}

const createTask = `INSERT INTO tasks (title, reward, quota, status, user_rule, completed_task_limit, group_ids, start_at, end_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + taskColumns

func (q *Queries) CreateTask(ctx context.Context, arg CreateTaskParams) (domain.Task, error) {
	return scanTask(q.db.QueryRow(ctx, createTask,
		arg.Title, arg.Reward, arg.Quota, string(arg.Status), string(arg.UserRule),
		arg.CompletedTaskLimit, arg.GroupIDs.Int64s(), arg.StartAt, arg.EndAt))
}

const getTask = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

func (q *Queries) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return scanTask(q.db.QueryRow(ctx, getTask, id))
}

// GetTaskForUpdate locks the task row. Quota checks serialize on it.
func (q *Queries) GetTaskForUpdate(ctx context.Context, id int64) (domain.Task, error) {
	return scanTask(q.db.QueryRow(ctx, getTask+` FOR UPDATE`, id))
}

const startDueTasks = `UPDATE tasks SET status = 'processing', updated_at = $1
WHERE status = 'not_started'
  AND (start_at IS NULL OR start_at <= $1)
  AND (end_at IS NULL OR end_at > $1)`

func (q *Queries) StartDueTasks(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, startDueTasks, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const endDueTasks = `UPDATE tasks SET status = 'ended', updated_at = $1
WHERE status IN ('not_started', 'processing')
  AND end_at IS NOT NULL AND end_at <= $1`

func (q *Queries) EndDueTasks(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, endDueTasks, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const taskGroupColumns = `g.id, g.title, g.reward, g.related_tasks, g.created_at, g.updated_at`

func scanTaskGroup(row pgx.Row) (domain.TaskGroup, error) {
	var g domain.TaskGroup
	var related []int64
	err := row.Scan(&g.ID, &g.Title, &g.Reward, &related, &g.CreatedAt, &g.UpdatedAt)
	g.RelatedTasks = domain.IDList(related)
	return g, err
}

const createTaskGroup = `INSERT INTO task_groups AS g (title, reward, related_tasks)
VALUES ($1, $2, $3)
RETURNING ` + taskGroupColumns

const linkTaskGroupTasks = `INSERT INTO task_group_tasks (task_id, task_group_id)
SELECT unnest($1::bigint[]), $2`

// CreateTaskGroup inserts the group and claims its tasks. A task claimed by
// another group fails with a unique violation; run it inside a transaction.
func (q *Queries) CreateTaskGroup(ctx context.Context, arg CreateTaskGroupParams) (domain.TaskGroup, error) {
	g, err := scanTaskGroup(q.db.QueryRow(ctx, createTaskGroup, arg.Title, arg.Reward, arg.RelatedTasks.Int64s()))
	if err != nil {
		return g, err
	}
	if _, err := q.db.Exec(ctx, linkTaskGroupTasks, arg.RelatedTasks.Int64s(), g.ID); err != nil {
		return domain.TaskGroup{}, err
	}
	return g, nil
}

func (q *Queries) GetTaskGroup(ctx context.Context, id int64) (domain.TaskGroup, error) {
	return scanTaskGroup(q.db.QueryRow(ctx, `SELECT `+taskGroupColumns+` FROM task_groups g WHERE g.id = $1`, id))
}

const getTaskGroupByTaskID = `SELECT ` + taskGroupColumns + `
FROM task_groups g
JOIN task_group_tasks t ON t.task_group_id = g.id
WHERE t.task_id = $1`

func (q *Queries) GetTaskGroupByTaskID(ctx context.Context, taskID int64) (domain.TaskGroup, error) {
	return scanTaskGroup(q.db.QueryRow(ctx, getTaskGroupByTaskID, taskID))
}

const enrolledTaskGroupColumns = `id, task_group_id, member_id, submit_task_ids, submit_status,
completion_status, completed_at, created_at, updated_at`

func scanEnrolledTaskGroup(row pgx.Row) (domain.EnrolledTaskGroup, error) {
	var e domain.EnrolledTaskGroup
	var ids []int64
	err := row.Scan(&e.ID, &e.TaskGroupID, &e.MemberID, &ids, &e.SubmitStatus,
		&e.CompletionStatus, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt)
	e.SubmitTaskIDs = domain.IDList(ids)
	return e, err
}

const ensureEnrolledTaskGroup = `INSERT INTO enrolled_task_groups (task_group_id, member_id)
VALUES ($1, $2)
ON CONFLICT (task_group_id, member_id) DO NOTHING`

func (q *Queries) EnsureEnrolledTaskGroup(ctx context.Context, taskGroupID, memberID int64) error {
	_, err := q.db.Exec(ctx, ensureEnrolledTaskGroup, taskGroupID, memberID)
	return err
}

const getEnrolledTaskGroup = `SELECT ` + enrolledTaskGroupColumns + `
FROM enrolled_task_groups WHERE task_group_id = $1 AND member_id = $2`

func (q *Queries) GetEnrolledTaskGroup(ctx context.Context, taskGroupID, memberID int64) (domain.EnrolledTaskGroup, error) {
	return scanEnrolledTaskGroup(q.db.QueryRow(ctx, getEnrolledTaskGroup, taskGroupID, memberID))
}

func (q *Queries) GetEnrolledTaskGroupForUpdate(ctx context.Context, taskGroupID, memberID int64) (domain.EnrolledTaskGroup, error) {
	return scanEnrolledTaskGroup(q.db.QueryRow(ctx, getEnrolledTaskGroup+` FOR UPDATE`, taskGroupID, memberID))
}

const updateEnrolledTaskGroup = `UPDATE enrolled_task_groups
SET submit_task_ids = $2, submit_status = $3, completion_status = $4, completed_at = $5, updated_at = now()
WHERE id = $1`

func (q *Queries) UpdateEnrolledTaskGroup(ctx context.Context, arg UpdateEnrolledTaskGroupParams) error {
	_, err := q.db.Exec(ctx, updateEnrolledTaskGroup, arg.ID, arg.SubmitTaskIDs.Int64s(),
		string(arg.SubmitStatus), string(arg.CompletionStatus), arg.CompletedAt)
	return err
}

const listEnrolledTaskGroups = `SELECT ` + enrolledTaskGroupColumns + `
FROM enrolled_task_groups WHERE member_id = $1 ORDER BY id`

func (q *Queries) ListEnrolledTaskGroups(ctx context.Context, memberID int64) ([]domain.EnrolledTaskGroup, error) {
	rows, err := q.db.Query(ctx, listEnrolledTaskGroups, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.EnrolledTaskGroup
	for rows.Next() {
		e, err := scanEnrolledTaskGroup(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
