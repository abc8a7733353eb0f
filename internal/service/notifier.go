package service

import "github.com/set-night/taskhub/internal/domain"

// Notifier pushes operator-facing events out of the engine. Implementations must not block for long.
type Notifier interface {
	LogError(err error, context string)
	LogSettlementFailures(failures []domain.ItemFailure)
	LogAudit(stage, action string, requested, affected int, waiterID int64)
	LogTaskSchedule(started, ended int64)
}

type nopNotifier struct{}

func (nopNotifier) LogError(error, string)                     {}
func (nopNotifier) LogSettlementFailures([]domain.ItemFailure) {}
func (nopNotifier) LogAudit(string, string, int, int, int64)   {}
func (nopNotifier) LogTaskSchedule(int64, int64)               {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}
