package memstore

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
)

func (v *view) CreateMember(ctx context.Context, arg repository.CreateMemberParams) (domain.Member, error) {
	defer v.lock()()
	st := v.db.st
	now := v.now()
	m := domain.Member{
		ID:        st.next("members"),
		Nickname:  arg.Nickname,
		InviterID: arg.InviterID,
		IsNew:     true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	st.members[m.ID] = m
	return m, nil
}

func (v *view) GetMember(ctx context.Context, id int64) (domain.Member, error) {
	defer v.lock()()
	m, ok := v.db.st.members[id]
	if !ok {
		return domain.Member{}, pgx.ErrNoRows
	}
	return m, nil
}

func (v *view) GetMemberForUpdate(ctx context.Context, id int64) (domain.Member, error) {
	if err := v.failure("GetMemberForUpdate", id); err != nil {
		return domain.Member{}, err
	}
	return v.GetMember(ctx, id)
}

func (v *view) MarkMemberNotNew(ctx context.Context, id int64) (bool, error) {
	defer v.lock()()
	m, ok := v.db.st.members[id]
	if !ok || !m.IsNew {
		return false, nil
	}
	m.IsNew = false
	m.UpdatedAt = v.now()
	v.db.st.members[id] = m
	return true, nil
}

func (v *view) CreateGroup(ctx context.Context, arg repository.CreateGroupParams) (domain.Group, error) {
	defer v.lock()()
	st := v.db.st
	g := domain.Group{ID: st.next("member_groups"), Name: arg.Name, OwnerID: arg.OwnerID, CreatedAt: v.now()}
	st.groups[g.ID] = g
	return g, nil
}

func (v *view) GetGroup(ctx context.Context, id int64) (domain.Group, error) {
	defer v.lock()()
	g, ok := v.db.st.groups[id]
	if !ok {
		return domain.Group{}, pgx.ErrNoRows
	}
	return g, nil
}

func (v *view) AddGroupMember(ctx context.Context, arg repository.AddGroupMemberParams) error {
	defer v.lock()()
	st := v.db.st
	for _, gm := range st.groupMembers {
		if gm.GroupID == arg.GroupID && gm.MemberID == arg.MemberID {
			return nil
		}
	}
	st.groupMembers = append(st.groupMembers, groupMember{
		id:          st.next("group_members"),
		GroupMember: domain.GroupMember{GroupID: arg.GroupID, MemberID: arg.MemberID, JoinedAt: arg.JoinedAt},
	})
	return nil
}

func (v *view) GetFirstJoinedGroupID(ctx context.Context, memberID int64) (int64, error) {
	defer v.lock()()
	var joined []groupMember
	for _, gm := range v.db.st.groupMembers {
		if gm.MemberID == memberID {
			joined = append(joined, gm)
		}
	}
	if len(joined) == 0 {
		return 0, pgx.ErrNoRows
	}
	sort.Slice(joined, func(i, j int) bool {
		if joined[i].JoinedAt.Equal(joined[j].JoinedAt) {
			return joined[i].id < joined[j].id
		}
		return joined[i].JoinedAt.Before(joined[j].JoinedAt)
	})
	return joined[0].GroupID, nil
}

func (v *view) CountMemberGroupsIn(ctx context.Context, memberID int64, groupIDs []int64) (int64, error) {
	defer v.lock()()
	var n int64
	for _, gm := range v.db.st.groupMembers {
		if gm.MemberID == memberID && domain.IDList(groupIDs).Contains(gm.GroupID) {
			n++
		}
	}
	return n, nil
}

func (v *view) CountApprovedSubmissions(ctx context.Context, memberID int64) (int64, error) {
	defer v.lock()()
	var n int64
	for _, s := range v.db.st.submissions {
		if s.MemberID == memberID && s.AuditStatus == domain.AuditApproved {
			n++
		}
	}
	return n, nil
}

func (v *view) UpsertChannelAccount(ctx context.Context, memberID int64, account string) error {
	defer v.lock()()
	st := v.db.st
	key := accountKey{memberID, account}
	if _, ok := st.channelAccounts[key]; ok {
		return nil
	}
	st.channelAccounts[key] = domain.ChannelAccount{
		ID:        st.next("channel_accounts"),
		MemberID:  memberID,
		Account:   account,
		IsNew:     true,
		CreatedAt: v.now(),
	}
	return nil
}

func (v *view) GetChannelAccount(ctx context.Context, memberID int64, account string) (domain.ChannelAccount, error) {
	defer v.lock()()
	a, ok := v.db.st.channelAccounts[accountKey{memberID, account}]
	if !ok {
		return domain.ChannelAccount{}, pgx.ErrNoRows
	}
	return a, nil
}

func (v *view) MarkChannelAccountOld(ctx context.Context, memberID int64, account string) (bool, error) {
	if err := v.failure("MarkChannelAccountOld", memberID); err != nil {
		return false, err
	}
	defer v.lock()()
	key := accountKey{memberID, account}
	a, ok := v.db.st.channelAccounts[key]
	if !ok || !a.IsNew {
		return false, nil
	}
	a.IsNew = false
	v.db.st.channelAccounts[key] = a
	return true, nil
}

func (v *view) GetSystemConfig(ctx context.Context, key string) (string, error) {
	defer v.lock()()
	val, ok := v.db.st.configs[key]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return val, nil
}

func (v *view) SetSystemConfig(ctx context.Context, key, value string) error {
	defer v.lock()()
	v.db.st.configs[key] = value
	return nil
}
