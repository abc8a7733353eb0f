package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
)

// MembershipService manages members and groups and answers the group questions
// settlement and enrollment ask.
type MembershipService struct {
	store repository.TxStore
}

func NewMembershipService(store repository.TxStore) *MembershipService {
	return &MembershipService{store: store}
}

func (s *MembershipService) CreateMember(ctx context.Context, nickname string, inviterID *int64) (*domain.Member, error) {
	var m domain.Member
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		if inviterID != nil {
			if _, err := q.GetMember(ctx, *inviterID); err != nil {
				if err == pgx.ErrNoRows {
					return domain.ErrMemberNotFound
				}
				return fmt.Errorf("get inviter: %w", err)
			}
		}
		var err error
		m, err = q.CreateMember(ctx, repository.CreateMemberParams{Nickname: strings.TrimSpace(nickname), InviterID: inviterID})
		if err != nil {
			return fmt.Errorf("create member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MembershipService) GetMember(ctx context.Context, id int64) (*domain.Member, error) {
	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

func (s *MembershipService) CreateGroup(ctx context.Context, name string, ownerID int64) (*domain.Group, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.Validation("group name is required")
	}
	var g domain.Group
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		if _, err := q.GetMember(ctx, ownerID); err != nil {
			if err == pgx.ErrNoRows {
				return domain.ErrMemberNotFound
			}
			return fmt.Errorf("get owner: %w", err)
		}
		var err error
		g, err = q.CreateGroup(ctx, repository.CreateGroupParams{Name: strings.TrimSpace(name), OwnerID: ownerID})
		if err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// JoinGroup adds the member to the group. Joining twice keeps the first join time.
func (s *MembershipService) JoinGroup(ctx context.Context, groupID, memberID int64, joinedAt time.Time) error {
	return s.store.ExecTx(ctx, func(q repository.Querier) error {
		if _, err := q.GetGroup(ctx, groupID); err != nil {
			if err == pgx.ErrNoRows {
				return domain.ErrGroupNotFound
			}
			return fmt.Errorf("get group: %w", err)
		}
		if _, err := q.GetMember(ctx, memberID); err != nil {
			if err == pgx.ErrNoRows {
				return domain.ErrMemberNotFound
			}
			return fmt.Errorf("get member: %w", err)
		}
		if err := q.AddGroupMember(ctx, repository.AddGroupMemberParams{GroupID: groupID, MemberID: memberID, JoinedAt: joinedAt}); err != nil {
			return fmt.Errorf("add group member: %w", err)
		}
		return nil
	})
}

// SnapshotGroup returns the member's first-joined group, or nil when the member is in no group.
func (s *MembershipService) SnapshotGroup(ctx context.Context, memberID int64) (*int64, error) {
	return snapshotGroup(ctx, s.store, memberID)
}

func snapshotGroup(ctx context.Context, q repository.Querier, memberID int64) (*int64, error) {
	id, err := q.GetFirstJoinedGroupID(ctx, memberID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get first joined group: %w", err)
	}
	return &id, nil
}

// groupOwner returns the owner of groupID, or nil when the group no longer exists.
func groupOwner(ctx context.Context, q repository.Querier, groupID int64) (*int64, error) {
	g, err := q.GetGroup(ctx, groupID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g.OwnerID, nil
}

// checkEligibility applies the task's user rule and group restriction to the member.
func checkEligibility(ctx context.Context, q repository.Querier, task *domain.Task, memberID int64) error {
	if task.UserRule == domain.UserRuleCompletedLimit {
		completed, err := q.CountApprovedSubmissions(ctx, memberID)
		if err != nil {
			return fmt.Errorf("count approved submissions: %w", err)
		}
		if !task.AllowsCompletedCount(completed) {
			return domain.ErrNotEligible
		}
	}
	if len(task.GroupIDs) > 0 {
		n, err := q.CountMemberGroupsIn(ctx, memberID, task.GroupIDs.Int64s())
		if err != nil {
			return fmt.Errorf("count member groups: %w", err)
		}
		if n == 0 {
			return domain.ErrNotEligible
		}
	}
	return nil
}
