package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"5"`

	// Operator bot, disabled when the token is empty
	BotToken string  `env:"BOT_TOKEN"`
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`

	// Metrics
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	// Task status job
	TaskStatusCron      string        `env:"TASK_STATUS_CRON" envDefault:"@every 1m"`
	StatusJobAttempts   int           `env:"STATUS_JOB_MAX_ATTEMPTS" envDefault:"3"`
	StatusJobRetryDelay time.Duration `env:"STATUS_JOB_RETRY_DELAY" envDefault:"500ms"`

	// Engine defaults, overridden by rows in system_configs
	DefaultTaskRejectTimes    int    `env:"DEFAULT_TASK_REJECT_TIMES" envDefault:"-1"`
	DefaultCommissionRate     string `env:"DEFAULT_GROUP_OWNER_COMMISSION_RATE" envDefault:"0.1"`
	DefaultInviteRewardAmount string `env:"DEFAULT_INVITE_REWARD_AMOUNT" envDefault:"1.00"`

	// Telegram logging
	LogTelegramChatID    int64 `env:"LOG_TELEGRAM_CHAT_ID"`
	LogTopicError        int   `env:"LOG_TOPIC_ERROR"`
	LogTopicSettlement   int   `env:"LOG_TOPIC_SETTLEMENT"`
	LogTopicAudit        int   `env:"LOG_TOPIC_AUDIT"`
	LogTopicTaskSchedule int   `env:"LOG_TOPIC_TASK_SCHEDULE"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.StatusJobAttempts < 1 {
		return nil, fmt.Errorf("parse config: STATUS_JOB_MAX_ATTEMPTS must be at least 1")
	}
	return cfg, nil
}

func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (c *Config) AdminIDsString() string {
	parts := make([]string, len(c.AdminIDs))
	for i, id := range c.AdminIDs {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
