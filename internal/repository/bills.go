package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/domain"
)

const billColumns = `id, bill_no, bill_type, member_id, related_member_id, task_id, submitted_task_id,
related_group_id, amount, settlement_status, remark, created_at`

func scanBill(row pgx.Row) (domain.Bill, error) {
	var b domain.Bill
	err := row.Scan(&b.ID, &b.BillNo, &b.BillType, &b.MemberID, &b.RelatedMemberID, &b.TaskID,
		&b.SubmittedTaskID, &b.RelatedGroupID, &b.Amount, &b.SettlementStatus, &b.Remark, &b.CreatedAt)
	return b, err
}

const createBill = `INSERT INTO bills
(bill_no, bill_type, member_id, related_member_id, task_id, submitted_task_id, related_group_id, amount, settlement_status, remark)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'settled', $9)
ON CONFLICT (submitted_task_id, bill_type) WHERE submitted_task_id IS NOT NULL DO NOTHING
RETURNING ` + billColumns

// CreateBill appends a ledger row. It reports false when a bill of the same
// type already exists for the submission.
func (q *Queries) CreateBill(ctx context.Context, arg CreateBillParams) (domain.Bill, bool, error) {
	b, err := scanBill(q.db.QueryRow(ctx, createBill,
		uuid.New(), string(arg.BillType), arg.MemberID, arg.RelatedMemberID, arg.TaskID,
		arg.SubmittedTaskID, arg.RelatedGroupID, arg.Amount, arg.Remark))
	if err == pgx.ErrNoRows {
		return domain.Bill{}, false, nil
	}
	if err != nil {
		return domain.Bill{}, false, err
	}
	return b, true, nil
}

func (q *Queries) ListBills(ctx context.Context, f BillFilter) ([]domain.Bill, error) {
	var (
		conds []string
		args  []any
	)
	if f.MemberID != nil {
		args = append(args, *f.MemberID)
		conds = append(conds, fmt.Sprintf("member_id = $%d", len(args)))
	}
	if f.BillType != "" {
		args = append(args, string(f.BillType))
		conds = append(conds, fmt.Sprintf("bill_type = $%d", len(args)))
	}
	if f.SubmittedTaskID != nil {
		args = append(args, *f.SubmittedTaskID)
		conds = append(conds, fmt.Sprintf("submitted_task_id = $%d", len(args)))
	}

	sql := `SELECT ` + billColumns + ` FROM bills`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY id"
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []domain.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (q *Queries) GetSystemConfig(ctx context.Context, key string) (string, error) {
	var v string
	err := q.db.QueryRow(ctx, `SELECT value FROM system_configs WHERE key = $1`, key).Scan(&v)
	return v, err
}

const setSystemConfig = `INSERT INTO system_configs (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

func (q *Queries) SetSystemConfig(ctx context.Context, key, value string) error {
	_, err := q.db.Exec(ctx, setSystemConfig, key, value)
	return err
}
