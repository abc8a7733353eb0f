package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/taskhub/internal/config"
)

// Client is the part of the Bot API the operator bot uses. *bot.Bot satisfies it.
type Client interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

var _ Client = (*bot.Bot)(nil)

// Message is one outgoing text. Zero ThreadID posts to the main chat.
type Message struct {
	ChatID   int64
	ThreadID int
	Text     string
	Markup   models.ReplyMarkup
}

// SendLongMessage sends msg as Markdown, split into parts when it is too long.
// A part Telegram refuses to parse is resent as plain text. The markup goes on the last part.
func SendLongMessage(ctx context.Context, c Client, msg Message) error {
	parts := SplitMessage(msg.Text, config.MaxTelegramMessageLen)
	for i, part := range parts {
		params := &bot.SendMessageParams{
			ChatID:          msg.ChatID,
			MessageThreadID: msg.ThreadID,
			Text:            part,
			ParseMode:       models.ParseModeMarkdownV1,
		}
		if i == len(parts)-1 && msg.Markup != nil {
			params.ReplyMarkup = msg.Markup
		}

		if _, err := c.SendMessage(ctx, params); err != nil {
			slog.Warn("markdown send failed, falling back to plain text", "chat_id", msg.ChatID, "error", err)
			params.ParseMode = ""
			if _, err := c.SendMessage(ctx, params); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
	return nil
}

// EditMessage replaces the text and keyboard of an earlier message.
func EditMessage(ctx context.Context, c Client, chatID int64, messageID int, text string, markup models.ReplyMarkup) error {
	params := &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        Truncate(text, config.MaxTelegramMessageLen),
		ParseMode:   models.ParseModeMarkdownV1,
		ReplyMarkup: markup,
	}
	if _, err := c.EditMessageText(ctx, params); err != nil {
		params.ParseMode = ""
		if _, err := c.EditMessageText(ctx, params); err != nil {
			return fmt.Errorf("edit message: %w", err)
		}
	}
	return nil
}
