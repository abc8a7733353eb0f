package config

import "time"

// System configuration keys stored in system_configs.
const (
	KeyTaskRejectTimes          = "task_reject_times"
	KeyGroupOwnerCommissionRate = "group_owner_commission_rate"
	KeyInviteRewardAmount       = "invite_reward_amount"
)

const (
	// Money precision of ledger amounts
	AmountScale = 2

	// Submission list paging
	DefaultPageSize = 20
	MaxPageSize     = 200

	// Largest batch accepted by one audit call
	MaxBatchSize = 500

	// Telegram limits
	MaxTelegramMessageLen = 4096
	OperatorPageSize      = 10

	// Operator command rate limit
	OperatorCommandsPerSecond = 2
	OperatorCommandBurst      = 5

	// Deadline of one task status job run
	StatusJobTimeout = 30 * time.Second

	// Shutdown grace for the metrics server
	ShutdownTimeout = 10 * time.Second
)
