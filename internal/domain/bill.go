package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BillType string

const (
	BillTaskReward           BillType = "task_reward"
	BillInviteReward         BillType = "invite_reward"
	BillGroupOwnerCommission BillType = "group_owner_commission"
	BillWithdrawal           BillType = "withdrawal"
)

type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementSettled SettlementStatus = "settled"
)

// Bill is an append-only ledger row. At most one bill of each type exists per submission.
type Bill struct {
	ID               int64
	BillNo           uuid.UUID
	BillType         BillType
	MemberID         int64
	RelatedMemberID  *int64
	TaskID           *int64
	SubmittedTaskID  *int64
	RelatedGroupID   *int64
	Amount           decimal.Decimal
	SettlementStatus SettlementStatus
	Remark           string
	CreatedAt        time.Time
}
