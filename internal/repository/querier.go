package repository

import (
	"context"
	"time"

	"github.com/set-night/taskhub/internal/domain"
	"github.com/shopspring/decimal"
)

// Querier is the storage surface of the engine. Reads of missing rows return pgx.ErrNoRows.
type Querier interface {
	// Members and groups
	CreateMember(ctx context.Context, arg CreateMemberParams) (domain.Member, error)
	GetMember(ctx context.Context, id int64) (domain.Member, error)
	GetMemberForUpdate(ctx context.Context, id int64) (domain.Member, error)
	MarkMemberNotNew(ctx context.Context, id int64) (bool, error)
	CreateGroup(ctx context.Context, arg CreateGroupParams) (domain.Group, error)
	GetGroup(ctx context.Context, id int64) (domain.Group, error)
	AddGroupMember(ctx context.Context, arg AddGroupMemberParams) error
	GetFirstJoinedGroupID(ctx context.Context, memberID int64) (int64, error)
	CountMemberGroupsIn(ctx context.Context, memberID int64, groupIDs []int64) (int64, error)
	CountApprovedSubmissions(ctx context.Context, memberID int64) (int64, error)
	UpsertChannelAccount(ctx context.Context, memberID int64, account string) error
	GetChannelAccount(ctx context.Context, memberID int64, account string) (domain.ChannelAccount, error)
	MarkChannelAccountOld(ctx context.Context, memberID int64, account string) (bool, error)

	// Tasks
	CreateTask(ctx context.Context, arg CreateTaskParams) (domain.Task, error)
	GetTask(ctx context.Context, id int64) (domain.Task, error)
	GetTaskForUpdate(ctx context.Context, id int64) (domain.Task, error)
	StartDueTasks(ctx context.Context, now time.Time) (int64, error)
	EndDueTasks(ctx context.Context, now time.Time) (int64, error)

	// Task groups
	CreateTaskGroup(ctx context.Context, arg CreateTaskGroupParams) (domain.TaskGroup, error)
	GetTaskGroup(ctx context.Context, id int64) (domain.TaskGroup, error)
	GetTaskGroupByTaskID(ctx context.Context, taskID int64) (domain.TaskGroup, error)
	EnsureEnrolledTaskGroup(ctx context.Context, taskGroupID, memberID int64) error
	GetEnrolledTaskGroup(ctx context.Context, taskGroupID, memberID int64) (domain.EnrolledTaskGroup, error)
	GetEnrolledTaskGroupForUpdate(ctx context.Context, taskGroupID, memberID int64) (domain.EnrolledTaskGroup, error)
	UpdateEnrolledTaskGroup(ctx context.Context, arg UpdateEnrolledTaskGroupParams) error
	ListEnrolledTaskGroups(ctx context.Context, memberID int64) ([]domain.EnrolledTaskGroup, error)

	// Enrollment and submissions
	CreateEnrolledTask(ctx context.Context, arg CreateEnrolledTaskParams) (domain.EnrolledTask, bool, error)
	GetEnrolledTask(ctx context.Context, taskID, memberID int64) (domain.EnrolledTask, error)
	LockActiveSubmissionIDs(ctx context.Context, taskID int64) ([]int64, error)
	CreateSubmittedTask(ctx context.Context, arg CreateSubmittedTaskParams) (domain.SubmittedTask, error)
	GetSubmittedTask(ctx context.Context, id int64) (domain.SubmittedTask, error)
	GetSubmittedTaskForUpdate(ctx context.Context, taskID, memberID int64) (domain.SubmittedTask, error)
	ResubmitSubmittedTask(ctx context.Context, arg ResubmitSubmittedTaskParams) (domain.SubmittedTask, error)
	LockPendingSubmissions(ctx context.Context, stage domain.AuditStage, ids []int64) ([]domain.SubmittedTask, error)
	TransitionSubmissions(ctx context.Context, arg TransitionParams) ([]int64, error)
	ListSubmittedTasks(ctx context.Context, f SubmissionFilter) ([]domain.SubmittedTask, int64, error)

	// Ledger
	CreateBill(ctx context.Context, arg CreateBillParams) (domain.Bill, bool, error)
	ListBills(ctx context.Context, f BillFilter) ([]domain.Bill, error)

	// System configuration
	GetSystemConfig(ctx context.Context, key string) (string, error)
	SetSystemConfig(ctx context.Context, key, value string) error

	// Savepoint runs fn in a nested transaction; an error from fn rolls back only fn's writes.
	Savepoint(ctx context.Context, fn func(Querier) error) error
}

// TxStore is a Querier that can open transactions.
type TxStore interface {
	Querier
	ExecTx(ctx context.Context, fn func(Querier) error) error
}

type CreateMemberParams struct {
	Nickname  string
	InviterID *int64
}

type CreateGroupParams struct {
	Name    string
	OwnerID int64
}

type AddGroupMemberParams struct {
	GroupID  int64
	MemberID int64
	JoinedAt time.Time
}

type CreateTaskParams struct {
	Title              string
	Reward             decimal.Decimal
	Quota              *int
	Status             domain.TaskStatus
	UserRule           domain.UserRule
	CompletedTaskLimit int
	GroupIDs           domain.IDList
	StartAt            *time.Time
	EndAt              *time.Time
}

type CreateTaskGroupParams struct {
	Title        string
	Reward       decimal.Decimal
	RelatedTasks domain.IDList
}

type UpdateEnrolledTaskGroupParams struct {
	ID               int64
	SubmitTaskIDs    domain.IDList
	SubmitStatus     domain.SubmitStatus
	CompletionStatus domain.CompletionStatus
	CompletedAt      *time.Time
}

type CreateEnrolledTaskParams struct {
	TaskID         int64
	MemberID       int64
	RelatedGroupID *int64
}

type CreateSubmittedTaskParams struct {
	TaskID         int64
	MemberID       int64
	Content        domain.SubmitContent
	RelatedGroupID *int64
	SubmittedAt    time.Time
}

type ResubmitSubmittedTaskParams struct {
	ID             int64
	Content        domain.SubmitContent
	RelatedGroupID *int64
	SubmittedAt    time.Time
}

// TransitionParams moves rows that are still pending at Stage to To.
// Rows resolved by someone else in the meantime are left untouched.
type TransitionParams struct {
	Stage    domain.AuditStage
	IDs      []int64
	To       domain.AuditStatus
	WaiterID int64
	Reason   string
	At       time.Time
}

type SubmissionFilter struct {
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

type CreateBillParams struct {
	BillType        domain.BillType
	MemberID        int64
	RelatedMemberID *int64
	TaskID          *int64
	SubmittedTaskID *int64
	RelatedGroupID  *int64
	Amount          decimal.Decimal
	Remark          string
}

type BillFilter struct {
	MemberID        *int64
	BillType        domain.BillType
	SubmittedTaskID *int64
	Limit           int
	Offset          int
}
