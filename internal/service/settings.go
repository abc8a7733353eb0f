package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/taskhub/internal/config"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/repository"
	"github.com/shopspring/decimal"
)

// Defaults are used when system_configs has no row for a key.
type Defaults struct {
	RejectTimes    int
	CommissionRate decimal.Decimal
	InviteReward   decimal.Decimal
}

func DefaultsFromConfig(cfg *config.Config) (Defaults, error) {
	rate, err := parseRate(cfg.DefaultCommissionRate)
	if err != nil {
		return Defaults{}, fmt.Errorf("default commission rate: %w", err)
	}
	reward, err := parseAmount(cfg.DefaultInviteRewardAmount)
	if err != nil {
		return Defaults{}, fmt.Errorf("default invite reward: %w", err)
	}
	if cfg.DefaultTaskRejectTimes < domain.Unlimited {
		return Defaults{}, fmt.Errorf("default reject times: %d is below -1", cfg.DefaultTaskRejectTimes)
	}
	return Defaults{RejectTimes: cfg.DefaultTaskRejectTimes, CommissionRate: rate, InviteReward: reward}, nil
}

// SettingsService reads the runtime system configuration. Values are read
// through the caller's Querier so they come from the same transaction.
type SettingsService struct {
	defaults Defaults
}

func NewSettingsService(defaults Defaults) *SettingsService {
	return &SettingsService{defaults: defaults}
}

// RejectCeiling returns task_reject_times; -1 means unlimited.
func (s *SettingsService) RejectCeiling(ctx context.Context, q repository.Querier) (int, error) {
	raw, ok, err := s.lookup(ctx, q, config.KeyTaskRejectTimes)
	if err != nil || !ok {
		return s.defaults.RejectTimes, err
	}
	return parseRejectTimes(raw)
}

func (s *SettingsService) CommissionRate(ctx context.Context, q repository.Querier) (decimal.Decimal, error) {
	raw, ok, err := s.lookup(ctx, q, config.KeyGroupOwnerCommissionRate)
	if err != nil || !ok {
		return s.defaults.CommissionRate, err
	}
	return parseRate(raw)
}

func (s *SettingsService) InviteReward(ctx context.Context, q repository.Querier) (decimal.Decimal, error) {
	raw, ok, err := s.lookup(ctx, q, config.KeyInviteRewardAmount)
	if err != nil || !ok {
		return s.defaults.InviteReward, err
	}
	return parseAmount(raw)
}

// Set validates and stores one system configuration value.
func (s *SettingsService) Set(ctx context.Context, q repository.Querier, key, value string) error {
	var err error
	switch key {
	case config.KeyTaskRejectTimes:
		_, err = parseRejectTimes(value)
	case config.KeyGroupOwnerCommissionRate:
		_, err = parseRate(value)
	case config.KeyInviteRewardAmount:
		_, err = parseAmount(value)
	default:
		return domain.Validation(fmt.Sprintf("unknown config key %q", key))
	}
	if err != nil {
		return err
	}
	if err := q.SetSystemConfig(ctx, key, value); err != nil {
		return fmt.Errorf("set system config: %w", err)
	}
	return nil
}

func (s *SettingsService) lookup(ctx context.Context, q repository.Querier, key string) (string, bool, error) {
	raw, err := q.GetSystemConfig(ctx, key)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get system config %s: %w", key, err)
	}
	return raw, true, nil
}

func parseRejectTimes(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < domain.Unlimited {
		return 0, domain.Validation(fmt.Sprintf("task_reject_times must be an integer >= -1, got %q", raw))
	}
	return n, nil
}

func parseRate(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, domain.Validation(fmt.Sprintf("commission rate must be within [0, 1], got %q", raw))
	}
	return d, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.Zero, domain.Validation(fmt.Sprintf("amount must be a non-negative decimal, got %q", raw))
	}
	return d.Round(config.AmountScale), nil
}
