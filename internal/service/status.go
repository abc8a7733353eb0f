package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/set-night/taskhub/internal/domain"
	"github.com/set-night/taskhub/internal/metrics"
	"github.com/set-night/taskhub/internal/repository"
)

// TaskStatusJob moves tasks along their schedule: not_started to processing at
// start_at, and anything unfinished to ended at end_at.
type TaskStatusJob struct {
	store    repository.TxStore
	notifier Notifier
	metrics  *metrics.Metrics
	attempts int
	delay    time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewTaskStatusJob(store repository.TxStore, notifier Notifier, m *metrics.Metrics, attempts int, delay time.Duration) *TaskStatusJob {
	if attempts < 1 {
		attempts = 1
	}
	return &TaskStatusJob{
		store:    store,
		notifier: notifierOrNop(notifier),
		metrics:  m,
		attempts: attempts,
		delay:    delay,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Run applies due transitions once. Lock timeouts and deadlocks are retried
// after attempt*delay, up to the configured number of attempts.
func (j *TaskStatusJob) Run(ctx context.Context) (started, ended int64, err error) {
	for attempt := 1; ; attempt++ {
		started, ended, err = j.runOnce(ctx)
		if err == nil || !domain.IsRetryable(err) || attempt >= j.attempts {
			break
		}
		slog.Warn("task status job retrying", "attempt", attempt, "error", err)
		if serr := j.sleep(ctx, time.Duration(attempt)*j.delay); serr != nil {
			err = serr
			break
		}
	}

	j.metrics.RecordStatusJobRun(err)
	if err != nil {
		slog.Error("task status job failed", "error", err)
		j.notifier.LogError(err, "task status job")
		return 0, 0, err
	}
	j.metrics.RecordStatusFlips(string(domain.TaskStatusProcessing), started)
	j.metrics.RecordStatusFlips(string(domain.TaskStatusEnded), ended)
	if started > 0 || ended > 0 {
		slog.Info("task statuses updated", "started", started, "ended", ended)
		j.notifier.LogTaskSchedule(started, ended)
	}
	return started, ended, nil
}

func (j *TaskStatusJob) runOnce(ctx context.Context) (started, ended int64, err error) {
	now := j.now()
	err = j.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		if ended, err = q.EndDueTasks(ctx, now); err != nil {
			return fmt.Errorf("end due tasks: %w", err)
		}
		if started, err = q.StartDueTasks(ctx, now); err != nil {
			return fmt.Errorf("start due tasks: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return started, ended, nil
}

// Schedule registers the job on c. Each run gets its own timeout.
func (j *TaskStatusJob) Schedule(c *cron.Cron, spec string, timeout time.Duration) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, _, _ = j.Run(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule task status job %q: %w", spec, err)
	}
	return id, nil
}

// NewCron returns a scheduler that recovers panics, skips overlapping runs and logs through slog.
func NewCron() *cron.Cron {
	logger := cronLogger{}
	return cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
