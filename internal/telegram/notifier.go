package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/set-night/taskhub/internal/config"
	"github.com/set-night/taskhub/internal/domain"
)

// Topic names a forum thread of the log chat.
type Topic string

const (
	TopicError        Topic = "error"
	TopicSettlement   Topic = "settlement"
	TopicAudit        Topic = "audit"
	TopicTaskSchedule Topic = "task_schedule"
)

const sendTimeout = 10 * time.Second

// LogNotifier posts engine events to the log chat, one forum topic per kind.
// It is silent when the chat or the topic is not configured.
type LogNotifier struct {
	client Client
	cfg    *config.Config
	now    func() time.Time
}

func NewLogNotifier(c Client, cfg *config.Config) *LogNotifier {
	return &LogNotifier{client: c, cfg: cfg, now: time.Now}
}

func (l *LogNotifier) Log(topic Topic, message string) {
	if l == nil || l.client == nil || l.cfg.LogTelegramChatID == 0 {
		return
	}
	thread := l.topicID(topic)
	if thread == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	err := SendLongMessage(ctx, l.client, Message{
		ChatID:   l.cfg.LogTelegramChatID,
		ThreadID: thread,
		Text:     Truncate(message, config.MaxTelegramMessageLen),
	})
	if err != nil {
		slog.Error("failed to send telegram log", "topic", topic, "error", err)
	}
}

func (l *LogNotifier) LogError(err error, context string) {
	l.Log(TopicError, fmt.Sprintf("❌ *Error*\n\n*Context:* %s\n*Error:* %s\n*Time:* %s",
		EscapeMarkdown(context), EscapeMarkdown(err.Error()), l.stamp()))
}

// LogSettlementFailures sends one message for all failed items of a batch.
func (l *LogNotifier) LogSettlementFailures(failures []domain.ItemFailure) {
	if len(failures) == 0 {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ *Approved but not settled* (%d)\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(&sb, "\n`%d`: %s", f.SubmissionID, EscapeMarkdown(f.Err.Error()))
	}
	fmt.Fprintf(&sb, "\n\n*Time:* %s", l.stamp())
	l.Log(TopicSettlement, sb.String())
}

func (l *LogNotifier) LogAudit(stage, action string, requested, affected int, waiterID int64) {
	l.Log(TopicAudit, fmt.Sprintf("📝 *Batch %s %s*\n\n*Operator:* `%d`\n*Requested:* %d\n*Affected:* %d",
		EscapeMarkdown(stage), action, waiterID, requested, affected))
}

func (l *LogNotifier) LogTaskSchedule(started, ended int64) {
	l.Log(TopicTaskSchedule, fmt.Sprintf("⏱ *Task schedule*\n\n*Started:* %d\n*Ended:* %d", started, ended))
}

func (l *LogNotifier) stamp() string {
	return l.now().Format("2006-01-02 15:04:05")
}

func (l *LogNotifier) topicID(topic Topic) int {
	switch topic {
	case TopicError:
		return l.cfg.LogTopicError
	case TopicSettlement:
		return l.cfg.LogTopicSettlement
	case TopicAudit:
		return l.cfg.LogTopicAudit
	case TopicTaskSchedule:
		return l.cfg.LogTopicTaskSchedule
	default:
		return 0
	}
}
