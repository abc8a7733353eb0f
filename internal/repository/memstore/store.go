// Package memstore is an in-memory repository.TxStore for tests.
//
// Transactions are serialized on one mutex, which stands in for the row locks
// the Postgres store takes. A failed transaction or savepoint restores the
// snapshot taken when it began.
package memstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
)

// FailFunc lets a test inject an error into a store operation. id is the
// operation's main key: the submission id for CreateBill, the member id for
// GetMemberForUpdate and MarkChannelAccountOld, the enrolled group row for
// UpdateEnrolledTaskGroup, zero otherwise.
type FailFunc func(op string, id int64) error

type Store struct {
	*view
}

type db struct {
	mu   sync.Mutex
	st   *state
	fail FailFunc
	now  func() time.Time
}

// view is a Querier over db. Outside a transaction every call takes the lock itself.
type view struct {
	db   *db
	inTx bool
}

func New() *Store {
	return &Store{view: &view{db: &db{st: newState(), now: func() time.Time { return time.Now().UTC() }}}}
}

// FailOn installs fn. Pass nil to clear it.
func (s *Store) FailOn(fn FailFunc) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.fail = fn
}

func (s *Store) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	snap := s.db.st.clone()
	if err := fn(&view{db: s.db, inTx: true}); err != nil {
		s.db.st = snap
		return repository.Classify(err)
	}
	return nil
}

func (v *view) Savepoint(ctx context.Context, fn func(repository.Querier) error) error {
	if !v.inTx {
		return (&Store{view: v}).ExecTx(ctx, fn)
	}
	snap := v.db.st.clone()
	if err := fn(v); err != nil {
		v.db.st = snap
		return err
	}
	return nil
}

func (v *view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.db.mu.Lock()
	return v.db.mu.Unlock
}

func (v *view) failure(op string, id int64) error {
	defer v.lock()()
	if v.db.fail == nil {
		return nil
	}
	return v.db.fail(op, id)
}

func (v *view) now() time.Time { return v.db.now() }

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

type groupMember struct {
	id int64
	domain.GroupMember
}

type accountKey struct {
	memberID int64
	account  string
}

type pairKey struct {
	a, b int64
}

type state struct {
	seq map[string]int64

	members         map[int64]domain.Member
	groups          map[int64]domain.Group
	groupMembers    []groupMember
	channelAccounts map[accountKey]domain.ChannelAccount

	tasks          map[int64]domain.Task
	taskGroups     map[int64]domain.TaskGroup
	taskGroupOf    map[int64]int64
	enrolledGroups map[pairKey]domain.EnrolledTaskGroup

	enrolled    map[pairKey]domain.EnrolledTask
	submissions map[int64]domain.SubmittedTask

	bills   []domain.Bill
	configs map[string]string
}

func newState() *state {
	return &state{
		seq:             make(map[string]int64),
		members:         make(map[int64]domain.Member),
		groups:          make(map[int64]domain.Group),
		channelAccounts: make(map[accountKey]domain.ChannelAccount),
		tasks:           make(map[int64]domain.Task),
		taskGroups:      make(map[int64]domain.TaskGroup),
		taskGroupOf:     make(map[int64]int64),
		enrolledGroups:  make(map[pairKey]domain.EnrolledTaskGroup),
		enrolled:        make(map[pairKey]domain.EnrolledTask),
		submissions:     make(map[int64]domain.SubmittedTask),
		configs:         make(map[string]string),
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// clone copies every table. Row values are copied by assignment; their slices
// are replaced, never mutated in place, so sharing them is safe.
func (s *state) clone() *state {
	c := &state{
		seq:             maps.Clone(s.seq),
		members:         maps.Clone(s.members),
		groups:          maps.Clone(s.groups),
		groupMembers:    append([]groupMember(nil), s.groupMembers...),
		channelAccounts: maps.Clone(s.channelAccounts),
		tasks:           maps.Clone(s.tasks),
		taskGroups:      maps.Clone(s.taskGroups),
		taskGroupOf:     maps.Clone(s.taskGroupOf),
		enrolledGroups:  maps.Clone(s.enrolledGroups),
		enrolled:        maps.Clone(s.enrolled),
		submissions:     maps.Clone(s.submissions),
		bills:           append([]domain.Bill(nil), s.bills...),
		configs:         maps.Clone(s.configs),
	}
	return c
}

var _ repository.TxStore = (*Store)(nil)
