// Package telegram is the operator-facing reporting layer: it renders pricing
// decisions as MarkdownV2 chat messages, answers bot commands from the configured
// chat and delivers scheduled reports with retry.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/nightrate/internal/logger"
)

// botAPI is the subset of tgbotapi.BotAPI the client uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client handles Telegram delivery for a single chat
type Client struct {
	bot            botAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	return newClient(bot, chatIDInt, maxRetries, retryDelayBase), nil
}

func newClient(bot botAPI, chatID int64, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		bot:            bot,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// Send delivers a MarkdownV2 message to the configured chat, retrying with linear backoff.
func (c *Client) Send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// SendError notifies the chat that a scheduled ingestion run failed.
func (c *Client) SendError(err error) error {
	return c.Send(formatError(err))
}

// SendRecovery notifies the chat that ingestion recovered after failures consecutive failed runs.
func (c *Client) SendRecovery(failures int) error {
	return c.Send(formatRecovery(failures))
}

// ListenForCommands answers bot commands until ctx is cancelled.
// Messages from any chat other than the configured one are ignored.
func (c *Client) ListenForCommands(ctx context.Context, h *Commands) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		defer c.bot.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				c.handleUpdate(ctx, h, update)
			}
		}
	}()
	logger.Info("Listening for Telegram commands in chat %d", c.chatID)
}

func (c *Client) handleUpdate(ctx context.Context, h *Commands, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	if msg.Chat == nil || msg.Chat.ID != c.chatID {
		logger.Warn("Ignoring /%s from unauthorized chat", msg.Command())
		return
	}

	logger.Debug("Handling command /%s %s", msg.Command(), msg.CommandArguments())
	reply := h.Handle(ctx, msg.Command(), strings.TrimSpace(msg.CommandArguments()))
	if err := c.Send(reply); err != nil {
		logger.Error("Failed to reply to /%s: %v", msg.Command(), err)
	}
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if hours := int(d.Hours()); hours >= 1 {
		return fmt.Sprintf("%dh", hours)
	}
	if mins := int(d.Minutes()); mins >= 1 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
