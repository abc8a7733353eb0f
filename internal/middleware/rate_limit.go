package middleware

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/taskhub/internal/telegram"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per operator so a runaway script cannot
// flood the audit commands.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	rate     rate.Limit
	burst    int
	client   telegram.Client
}

// NewRateLimiter builds the limiter. A nil client replies through the bot serving the update.
func NewRateLimiter(perSecond float64, burst int, client telegram.Client) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[int64]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		client:   client,
	}
}

func (rl *RateLimiter) limiter(id int64) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[id]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[id] = l
	}
	return l
}

// Middleware rejects messages beyond the operator's budget. Callbacks pass through.
func (rl *RateLimiter) Middleware() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if update.Message == nil || update.Message.From == nil {
				next(ctx, b, update)
				return
			}
			id := update.Message.From.ID
			if rl.limiter(id).Allow() {
				next(ctx, b, update)
				return
			}

			slog.Warn("operator rate limited", "operator_id", id)
			client := rl.client
			if client == nil && b != nil {
				client = b
			}
			if client != nil {
				client.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: update.Message.Chat.ID,
					Text:   "⏳ Too many commands. Wait a moment and retry.",
				})
			}
		}
	}
}
