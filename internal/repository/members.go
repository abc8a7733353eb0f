package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/domain"
)

const memberColumns = `id, nickname, inviter_id, is_new, created_at, updated_at`

func scanMember(row pgx.Row) (domain.Member, error) {
	var m domain.Member
	err := row.Scan(&m.ID, &m.Nickname, &m.InviterID, &m.IsNew, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

const createMember = `INSERT INTO members (nickname, inviter_id) VALUES ($1, $2)
RETURNING ` + memberColumns

func (q *Queries) CreateMember(ctx context.Context, arg CreateMemberParams) (domain.Member, error) {
	return scanMember(q.db.QueryRow(ctx, createMember, arg.Nickname, arg.InviterID))
}

const getMember = `SELECT ` + memberColumns + ` FROM members WHERE id = $1`

func (q *Queries) GetMember(ctx context.Context, id int64) (domain.Member, error) {
	return scanMember(q.db.QueryRow(ctx, getMember, id))
}

func (q *Queries) GetMemberForUpdate(ctx context.Context, id int64) (domain.Member, error) {
	return scanMember(q.db.QueryRow(ctx, getMember+` FOR UPDATE`, id))
}

const markMemberNotNew = `UPDATE members SET is_new = FALSE, updated_at = now()
WHERE id = $1 AND is_new`

// MarkMemberNotNew clears the first-completion flag. It reports whether the flag was set.
func (q *Queries) MarkMemberNotNew(ctx context.Context, id int64) (bool, error) {
	tag, err := q.db.Exec(ctx, markMemberNotNew, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const groupColumns = `id, name, owner_id, created_at`

const createGroup = `INSERT INTO member_groups (name, owner_id) VALUES ($1, $2)
RETURNING ` + groupColumns

func scanGroup(row pgx.Row) (domain.Group, error) {
	var g domain.Group
	err := row.Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt)
	return g, err
}

func (q *Queries) CreateGroup(ctx context.Context, arg CreateGroupParams) (domain.Group, error) {
	return scanGroup(q.db.QueryRow(ctx, createGroup, arg.Name, arg.OwnerID))
}

func (q *Queries) GetGroup(ctx context.Context, id int64) (domain.Group, error) {
	return scanGroup(q.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM member_groups WHERE id = $1`, id))
}

const addGroupMember = `INSERT INTO group_members (group_id, member_id, joined_at)
VALUES ($1, $2, $3)
ON CONFLICT (group_id, member_id) DO NOTHING`

func (q *Queries) AddGroupMember(ctx context.Context, arg AddGroupMemberParams) error {
	_, err := q.db.Exec(ctx, addGroupMember, arg.GroupID, arg.MemberID, arg.JoinedAt)
	return err
}

const getFirstJoinedGroupID = `SELECT group_id FROM group_members
WHERE member_id = $1
ORDER BY joined_at, id
LIMIT 1`

// GetFirstJoinedGroupID returns the earliest group the member joined.
func (q *Queries) GetFirstJoinedGroupID(ctx context.Context, memberID int64) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, getFirstJoinedGroupID, memberID).Scan(&id)
	return id, err
}

const countMemberGroupsIn = `SELECT count(*) FROM group_members
WHERE member_id = $1 AND group_id = ANY($2::bigint[])`

func (q *Queries) CountMemberGroupsIn(ctx context.Context, memberID int64, groupIDs []int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countMemberGroupsIn, memberID, groupIDs).Scan(&n)
	return n, err
}

const countApprovedSubmissions = `SELECT count(*) FROM submitted_tasks
WHERE member_id = $1 AND audit_status = 'approved'`

func (q *Queries) CountApprovedSubmissions(ctx context.Context, memberID int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countApprovedSubmissions, memberID).Scan(&n)
	return n, err
}

const upsertChannelAccount = `INSERT INTO channel_accounts (member_id, account) VALUES ($1, $2)
ON CONFLICT (member_id, account) DO NOTHING`

func (q *Queries) UpsertChannelAccount(ctx context.Context, memberID int64, account string) error {
	_, err := q.db.Exec(ctx, upsertChannelAccount, memberID, account)
	return err
}

const getChannelAccount = `SELECT id, member_id, account, is_new, created_at
FROM channel_accounts WHERE member_id = $1 AND account = $2`

func (q *Queries) GetChannelAccount(ctx context.Context, memberID int64, account string) (domain.ChannelAccount, error) {
	var a domain.ChannelAccount
	err := q.db.QueryRow(ctx, getChannelAccount, memberID, account).
		Scan(&a.ID, &a.MemberID, &a.Account, &a.IsNew, &a.CreatedAt)
	return a, err
}

const markChannelAccountOld = `UPDATE channel_accounts SET is_new = FALSE
WHERE member_id = $1 AND account = $2 AND is_new`

func (q *Queries) MarkChannelAccountOld(ctx context.Context, memberID int64, account string) (bool, error) {
	tag, err := q.db.Exec(ctx, markChannelAccountOld, memberID, account)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
