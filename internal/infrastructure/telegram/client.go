package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	"github.com/birdeye-sniper/sniper_service/pkg/metrics"
)

// Config represents the Bot API client configuration
type Config struct {
	BotToken          string
	UpdateTimeout     int
	MessagesPerSecond float64
	Burst             int
	Debug             bool
}

// Client wraps the Bot API with outbound rate limiting and markdown defaults
type Client struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	config  Config
	logger  *zap.Logger
}

// NewClient authorizes against the Bot API
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	bot.Debug = config.Debug

	if config.UpdateTimeout == 0 {
		config.UpdateTimeout = 60
	}
	if config.MessagesPerSecond <= 0 {
		config.MessagesPerSecond = 25
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}

	logger.Info("Authorized on Telegram", zap.String("account", bot.Self.UserName))

	return &Client{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(config.MessagesPerSecond), config.Burst),
		config:  config,
		logger:  logger,
	}, nil
}

// Username returns the bot account name
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

// Send posts a markdown message, optionally with an inline keyboard
func (c *Client) Send(ctx context.Context, chatID int64, text string, keyboard *entities.Keyboard) (entities.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if keyboard != nil {
		msg.ReplyMarkup = toMarkup(keyboard)
	}

	if err := c.wait(ctx, "send"); err != nil {
		return entities.MessageRef{}, err
	}

	sent, err := c.bot.Send(msg)
	record("send", err)
	if err != nil {
		c.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
		return entities.MessageRef{}, fmt.Errorf("failed to send message: %w", err)
	}
	return entities.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// Edit replaces the text and keyboard of a sent message
func (c *Client) Edit(ctx context.Context, ref entities.MessageRef, text string, keyboard *entities.Keyboard) error {
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	edit.DisableWebPagePreview = true
	if keyboard != nil {
		markup := toMarkup(keyboard)
		edit.ReplyMarkup = &markup
	}

	if err := c.wait(ctx, "edit"); err != nil {
		return err
	}

	_, err := c.bot.Send(edit)
	record("edit", err)
	if err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query, optionally with a toast
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := c.wait(ctx, "answer_callback"); err != nil {
		return err
	}
	_, err := c.bot.Request(tgbotapi.NewCallback(callbackID, text))
	record("answer_callback", err)
	if err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// GroupAdmins lists the user ids administering chatID
func (c *Client) GroupAdmins(ctx context.Context, chatID int64) ([]int64, error) {
	if err := c.wait(ctx, "get_admins"); err != nil {
		return nil, err
	}
	members, err := c.bot.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	record("get_admins", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat administrators: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			ids = append(ids, m.User.ID)
		}
	}
	return ids, nil
}

// Updates starts long polling and returns the update channel
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.config.UpdateTimeout
	return c.bot.GetUpdatesChan(u)
}

// StopUpdates stops long polling and closes the update channel
func (c *Client) StopUpdates() {
	c.bot.StopReceivingUpdates()
}

func (c *Client) wait(ctx context.Context, operation string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		record(operation, err)
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func toMarkup(keyboard *entities.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard.Rows))
	for _, row := range keyboard.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func record(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ChatMessagesTotal.WithLabelValues(operation, status).Inc()
}
