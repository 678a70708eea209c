// Package telegram is the chat surface of the service: it consumes Bot API
// updates and routes commands, button presses and free text to the domain
// services.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
	"github.com/birdeye-sniper/sniper_service/internal/domain/repositories"
	"github.com/birdeye-sniper/sniper_service/internal/domain/services/notifier"
	"github.com/birdeye-sniper/sniper_service/internal/domain/services/pending"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
)

// Client is the Bot API transport
type Client interface {
	Updates() tgbotapi.UpdatesChannel
	StopUpdates()
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Notifier sends chat messages and answers authorization questions
type Notifier interface {
	SendToUser(ctx context.Context, chatID int64, text string, keyboard *entities.Keyboard) (entities.MessageRef, error)
	Edit(ctx context.Context, ref entities.MessageRef, text string, keyboard *entities.Keyboard) error
	IsAdmin(userID int64) bool
	IsAuthorized(ctx context.Context, userID int64) bool
	GroupConfigured() bool
	Price() decimal.Decimal
	FormatSOL(amount decimal.Decimal) string
}

// Monitor is the wallet monitor as seen from chat
type Monitor interface {
	BotAddress() string
	Status() entities.MonitorStatus
	Wallets() []entities.MonitoredWallet
	CancelAutoTransfer(address string) bool
	EnableMonitoring(ctx context.Context, userID int64) error
	DisableMonitoring(ctx context.Context, userID int64) error
}

// Ledger answers balance and history lookups
type Ledger interface {
	IsValidAddress(address string) bool
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetRecentTransactions(ctx context.Context, address string, limit int) ([]entities.LedgerTransaction, error)
}

// Health runs checks on demand
type Health interface {
	Run(ctx context.Context) *entities.HealthSnapshot
	Report(ctx context.Context) *entities.HealthReport
}

// Onboarding is the setup dialogue
type Onboarding interface {
	Start(ctx context.Context, chatID, userID int64, profile entities.UserProfile) error
	HandleCallback(ctx context.Context, chatID, userID int64, ref entities.MessageRef, data string) (bool, error)
	HandleText(ctx context.Context, chatID, userID int64, text string) (bool, error)
	Dashboard(ctx context.Context, chatID, userID int64, ref *entities.MessageRef) error
}

// Transfers is the interactive transfer wizard
type Transfers interface {
	Begin(ctx context.Context, chatID, userID int64, fromAddress string, originMessageID int) error
	BeginDefaultAddress(ctx context.Context, chatID, userID int64) error
	HandleText(ctx context.Context, chatID, userID int64, text string) (bool, error)
	UseDefaultRecipient(ctx context.Context, userID int64, ref entities.MessageRef) error
	SelectPercentage(ctx context.Context, userID int64, ref entities.MessageRef, pct int) error
	SelectCustom(ctx context.Context, userID int64, ref entities.MessageRef) error
	Confirm(ctx context.Context, userID int64, ref entities.MessageRef) (*entities.TransferResult, error)
	Cancel(ctx context.Context, userID int64, ref entities.MessageRef) error
}

// Config holds display settings and per-update limits
type Config struct {
	Network        string
	PollInterval   time.Duration
	HandlerTimeout time.Duration
	HistoryLimit   int
}

// DefaultConfig returns stock settings
func DefaultConfig() Config {
	return Config{
		Network:        "mainnet-beta",
		PollInterval:   30 * time.Second,
		HandlerTimeout: 2 * time.Minute,
		HistoryLimit:   10,
	}
}

// Bot routes chat updates
type Bot struct {
	client    Client
	notifier  Notifier
	monitor   Monitor
	ledger    Ledger
	health    Health
	setup     Onboarding
	transfers Transfers
	users     repositories.UserRepository
	config    Config
	logger    *logger.Logger
}

// NewBot creates the chat router
func NewBot(client Client, notify Notifier, monitor Monitor, ledger Ledger, health Health, setup Onboarding, transfers Transfers, users repositories.UserRepository, config Config, log *logger.Logger) *Bot {
	return &Bot{
		client:    client,
		notifier:  notify,
		monitor:   monitor,
		ledger:    ledger,
		health:    health,
		setup:     setup,
		transfers: transfers,
		users:     users,
		config:    config,
		logger:    log.Named("telegram"),
	}
}

// Run consumes updates until ctx is cancelled or the update channel closes
func (b *Bot) Run(ctx context.Context) error {
	updates := b.client.Updates()
	b.logger.Info("Chat update loop started")

	for {
		select {
		case <-ctx.Done():
			b.client.StopUpdates()
			b.logger.Info("Chat update loop stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one update. A panicking handler is logged and contained.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Chat handler panicked", "update_id", update.UpdateID, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.config.HandlerTimeout)
	defer cancel()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID

	if msg.IsCommand() {
		b.logger.Debug("Command received", "command", msg.Command(), "user_id", userID)
		if err := b.handleCommand(ctx, msg); err != nil {
			b.fail(ctx, chatID, "command "+msg.Command(), err)
		}
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if err := b.handleText(ctx, chatID, userID, text); err != nil {
		b.fail(ctx, chatID, "text", err)
	}
}

// handleText gives the transfer wizard first claim on free text, then setup, then the address lookup
func (b *Bot) handleText(ctx context.Context, chatID, userID int64, text string) error {
	if handled, err := b.transfers.HandleText(ctx, chatID, userID, text); handled || err != nil {
		return err
	}
	if handled, err := b.setup.HandleText(ctx, chatID, userID, text); handled || err != nil {
		return err
	}

	user, err := b.users.GetByID(ctx, userID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			return b.say(ctx, chatID, startFirstText)
		}
		return err
	}
	if user.IsSetupComplete() && b.ledger.IsValidAddress(text) {
		return b.addressLookup(ctx, chatID, text)
	}
	if user.IsSetupComplete() {
		return b.say(ctx, chatID, useMenuCompletedText)
	}
	return b.say(ctx, chatID, useMenuText)
}

func (b *Bot) addressLookup(ctx context.Context, chatID int64, address string) error {
	balance, err := b.ledger.GetBalance(ctx, address)
	if err != nil {
		return domainerrors.ServiceUnavailableError("solana rpc", err)
	}
	return b.say(ctx, chatID, b.addressInfoText(address, balance))
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.From == nil {
		b.answer(ctx, q.ID, "")
		return
	}
	chatID, userID := q.Message.Chat.ID, q.From.ID
	ref := entities.MessageRef{ChatID: chatID, MessageID: q.Message.MessageID}

	toast, err := b.routeCallback(ctx, chatID, userID, ref, q.Data)
	if err != nil {
		if t := callbackToast(err); t != "" {
			b.answer(ctx, q.ID, t)
			if !domainerrors.IsUnauthorized(err) && !errors.Is(err, domainerrors.ErrPendingNotFound) {
				b.logger.Warn("Callback failed", "data", q.Data, "user_id", userID, "error", err)
			}
			return
		}
		b.answer(ctx, q.ID, "")
		b.fail(ctx, chatID, "callback "+q.Data, err)
		return
	}
	b.answer(ctx, q.ID, toast)
}

// routeCallback returns an optional toast for the button press
func (b *Bot) routeCallback(ctx context.Context, chatID, userID int64, ref entities.MessageRef, data string) (string, error) {
	if handled, err := b.setup.HandleCallback(ctx, chatID, userID, ref, data); handled {
		return "", err
	}

	prefix, arg, _ := strings.Cut(data, ":")
	switch prefix {
	case commandCenterPrefix:
		if !b.notifier.IsAuthorized(ctx, userID) {
			return "", domainerrors.UnauthorizedError("command center")
		}
		return b.handleCommandCenter(ctx, chatID, userID, ref, arg)
	case notifier.ActionDeploy:
		return b.deploy(ctx, chatID, userID, ref, arg)
	case notifier.ActionStandDown:
		return b.standDown(ctx, userID, arg)
	case pending.CallbackPrefix:
		return b.handleTransferButton(ctx, userID, ref, data)
	}

	b.logger.Debug("Unrouted callback", "data", data, "user_id", userID)
	return "", nil
}

func (b *Bot) deploy(ctx context.Context, chatID, userID int64, ref entities.MessageRef, address string) (string, error) {
	if !b.notifier.IsAuthorized(ctx, userID) {
		return "", domainerrors.UnauthorizedError("deploy")
	}
	if b.monitor.CancelAutoTransfer(address) {
		b.logger.Info("Auto-transfer superseded by manual deploy", "address", address, "user_id", userID)
	}
	if err := b.transfers.Begin(ctx, chatID, userID, address, ref.MessageID); err != nil {
		return "", err
	}
	return "🚀 Deployment started", nil
}

func (b *Bot) standDown(ctx context.Context, userID int64, address string) (string, error) {
	if !b.notifier.IsAuthorized(ctx, userID) {
		return "", domainerrors.UnauthorizedError("stand down")
	}
	if b.monitor.CancelAutoTransfer(address) {
		b.logger.Info("Auto-transfer stood down", "address", address, "user_id", userID)
		return "🛑 Auto-transfer cancelled", nil
	}
	return "No auto-transfer pending", nil
}

func (b *Bot) handleTransferButton(ctx context.Context, userID int64, ref entities.MessageRef, data string) (string, error) {
	cb, ok := pending.ParseCallback(data)
	if !ok {
		return "", domainerrors.ValidationError("callback", "unknown transfer action")
	}

	switch cb.Action {
	case pending.ActionPercent:
		return "", b.transfers.SelectPercentage(ctx, userID, ref, cb.Percent)
	case pending.ActionCustom:
		return "", b.transfers.SelectCustom(ctx, userID, ref)
	case pending.ActionDefault:
		return "", b.transfers.UseDefaultRecipient(ctx, userID, ref)
	case pending.ActionCancel:
		return "🛑 Aborted", b.transfers.Cancel(ctx, userID, ref)
	case pending.ActionConfirm:
		result, err := b.transfers.Confirm(ctx, userID, ref)
		if err != nil {
			return "", err
		}
		if result.Succeeded() {
			return "✅ Deployment complete", nil
		}
		return "❌ Deployment failed", nil
	}
	return "", nil
}

func (b *Bot) answer(ctx context.Context, callbackID, text string) {
	if err := b.client.AnswerCallback(ctx, callbackID, text); err != nil {
		b.logger.Debug("Failed to answer callback", "error", err)
	}
}

func (b *Bot) say(ctx context.Context, chatID int64, text string) error {
	_, err := b.notifier.SendToUser(ctx, chatID, text, nil)
	return err
}

// fail reports err to the chat in user terms and logs anything unexpected
func (b *Bot) fail(ctx context.Context, chatID int64, what string, err error) {
	text := userFacingText(err)
	if !domainerrors.IsValidation(err) && !domainerrors.IsUnauthorized(err) && !domainerrors.IsNotFound(err) {
		b.logger.Error("Chat handler failed", "handler", what, "chat_id", chatID, "error", err)
	}
	if sendErr := b.say(ctx, chatID, text); sendErr != nil {
		b.logger.Warn("Failed to report handler error", "chat_id", chatID, "error", sendErr)
	}
}

func userFacingText(err error) string {
	var de *domainerrors.DomainError
	switch {
	case domainerrors.IsUnauthorized(err):
		return accessDeniedText
	case errors.Is(err, domainerrors.ErrPendingNotFound):
		return expiredText
	case domainerrors.IsNotFound(err):
		return startFirstText
	case domainerrors.IsValidation(err) && errors.As(err, &de):
		return "⚠️ " + de.Message
	case domainerrors.IsServiceUnavailable(err):
		return "⚠️ Network unavailable. Try again in a moment."
	}
	return "❌ Something went wrong. Please try again."
}

// callbackToast maps expected rejections to a toast; empty means report in chat
func callbackToast(err error) string {
	switch {
	case domainerrors.IsUnauthorized(err):
		return "❌ Access denied"
	case errors.Is(err, domainerrors.ErrPendingNotFound):
		return "⌛ Operation expired"
	case domainerrors.IsValidation(err):
		var de *domainerrors.DomainError
		if errors.As(err, &de) {
			return de.Message
		}
		return "Not available right now"
	}
	return ""
}

func profileOf(u *tgbotapi.User) entities.UserProfile {
	return entities.UserProfile{Username: u.UserName, FirstName: u.FirstName, LastName: u.LastName}
}

func usd(amount, price decimal.Decimal) string {
	return fmt.Sprintf("$%s", amount.Mul(price).StringFixed(2))
}
