package domain

import "time"

type Member struct {
	ID        int64
	Nickname  string
	InviterID *int64
	IsNew     bool // no task approved yet
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Group is a member community with a single owner who earns commission on repeat completions.
type Group struct {
	ID        int64
	Name      string
	OwnerID   int64
	CreatedAt time.Time
}

type GroupMember struct {
	GroupID  int64
	MemberID int64
	JoinedAt time.Time
}

// ChannelAccount is a social account a member submits proof from.
type ChannelAccount struct {
	ID        int64
	MemberID  int64
	Account   string
	IsNew     bool
	CreatedAt time.Time
}
