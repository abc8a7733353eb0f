package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.ExecTx(ctx, func(q repository.Querier) error {
		if _, err := q.CreateMember(ctx, repository.CreateMemberParams{Nickname: "ghost"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetMember(ctx, 1)
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	m, err := s.CreateMember(ctx, repository.CreateMemberParams{Nickname: "real"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.ID)
	assert.True(t, m.IsNew)
}

func TestSavepoint_RollsBackOnlyItsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.SetSystemConfig(ctx, "outer", "1"); err != nil {
			return err
		}
		err := q.Savepoint(ctx, func(sq repository.Querier) error {
			if err := sq.SetSystemConfig(ctx, "inner", "1"); err != nil {
				return err
			}
			return errors.New("inner failed")
		})
		assert.Error(t, err)
		return q.Savepoint(ctx, func(sq repository.Querier) error {
			return sq.SetSystemConfig(ctx, "kept", "1")
		})
	})
	require.NoError(t, err)

	for key, want := range map[string]bool{"outer": true, "inner": false, "kept": true} {
		_, err := s.GetSystemConfig(ctx, key)
		assert.Equal(t, want, err == nil, key)
	}
}

func TestExecTx_ClassifiesAndHonoursContext(t *testing.T) {
	s := New()
	err := s.ExecTx(context.Background(), func(q repository.Querier) error {
		return &pgconn.PgError{Code: "40001"}
	})
	assert.True(t, domain.IsRetryable(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err = s.ExecTx(ctx, func(q repository.Querier) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestCreateBill_OnePerTypePerSubmission(t *testing.T) {
	ctx := context.Background()
	s := New()
	sid := int64(10)

	arg := repository.CreateBillParams{BillType: domain.BillTaskReward, MemberID: 1, SubmittedTaskID: &sid}
	b, inserted, err := s.CreateBill(ctx, arg)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, domain.SettlementSettled, b.SettlementStatus)

	_, inserted, err = s.CreateBill(ctx, arg)
	require.NoError(t, err)
	assert.False(t, inserted)

	arg.BillType = domain.BillInviteReward
	_, inserted, err = s.CreateBill(ctx, arg)
	require.NoError(t, err)
	assert.True(t, inserted)

	bills, err := s.ListBills(ctx, repository.BillFilter{SubmittedTaskID: &sid})
	require.NoError(t, err)
	assert.Len(t, bills, 2)
}

func TestFailOn(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, err := s.CreateMember(ctx, repository.CreateMemberParams{Nickname: "a"})
	require.NoError(t, err)

	s.FailOn(func(op string, id int64) error {
		if op == "GetMemberForUpdate" && id == m.ID {
			return errors.New("injected")
		}
		return nil
	})
	_, err = s.GetMemberForUpdate(ctx, m.ID)
	assert.EqualError(t, err, "injected")

	s.FailOn(nil)
	_, err = s.GetMemberForUpdate(ctx, m.ID)
	assert.NoError(t, err)
}
