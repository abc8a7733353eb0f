package service

import (
	"context"
	"fmt"

	"github.com/set-night/taskhub/internal/config"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
	"github.com/shopspring/decimal"
)

// LedgerService reads the bill ledger. Bills are only ever written by settlement.
type LedgerService struct {
	store repository.TxStore
}

func NewLedgerService(store repository.TxStore) *LedgerService {
	return &LedgerService{store: store}
}

type BillFilter struct {
	MemberID        *int64
	BillType        domain.BillType
	SubmittedTaskID *int64
	Limit           int
	Offset          int
}

func (s *LedgerService) ListBills(ctx context.Context, f BillFilter) ([]domain.Bill, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, domain.Validation("limit and offset must not be negative")
	}
	if f.Limit > config.MaxPageSize {
		f.Limit = config.MaxPageSize
	}
	bills, err := s.store.ListBills(ctx, repository.BillFilter{
		MemberID:        f.MemberID,
		BillType:        f.BillType,
		SubmittedTaskID: f.SubmittedTaskID,
		Limit:           f.Limit,
		Offset:          f.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	return bills, nil
}

// Earnings sums a member's bills by type.
type Earnings struct {
	ByType map[domain.BillType]decimal.Decimal
	Total  decimal.Decimal
}

func (s *LedgerService) MemberEarnings(ctx context.Context, memberID int64) (*Earnings, error) {
	bills, err := s.store.ListBills(ctx, repository.BillFilter{MemberID: &memberID})
	if err != nil {
		return nil, fmt.Errorf("list member bills: %w", err)
	}
	out := &Earnings{ByType: make(map[domain.BillType]decimal.Decimal), Total: decimal.Zero}
	for _, b := range bills {
		amount := b.Amount
		if b.BillType == domain.BillWithdrawal {
			amount = amount.Neg()
		}
		out.ByType[b.BillType] = out.ByType[b.BillType].Add(b.Amount)
		out.Total = out.Total.Add(amount)
	}
	return out, nil
}
