package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
	"github.com/birdeye-sniper/sniper_service/internal/domain/services/health"
)

const (
	accessDeniedText     = "❌ Access denied."
	adminOnlyText        = "❌ Access denied. Admin privileges required."
	expiredText          = "⌛ This operation expired. Start again from the alert."
	startFirstText       = "Please start with /start to set up your account."
	setupFirstText       = "❌ Please complete setup first using /start"
	useMenuText          = "Please use the menu buttons or type /help for available commands."
	useMenuCompletedText = "🎯 Use /sniper to access the command center or /help for available commands."
	unknownCommandText   = "Unknown command. Use /help to see available commands."
	healthRunningText    = "🏥 Performing health check..."
)

const helpText = "🦅 *BirdEye Sniper Bot - Help Center* 🦅\n\n" +
	"*Available Commands:*\n" +
	"• /start - Initialize or restart bot setup\n" +
	"• /sniper - Access sniper command center\n" +
	"• /status - View system status\n" +
	"• /payout - Set the auto-transfer payout address\n" +
	"• /help - Show this help message\n\n" +
	"*Admin Commands:*\n" +
	"• /wallet - View wallet information\n" +
	"• /health - System health check\n\n" +
	"*Features:*\n" +
	"🎯 Real-time wallet monitoring\n" +
	"⚡ Instant deposit notifications\n" +
	"🚀 Automatic forwarding after 30 minutes\n\n" +
	"Contact your squadron leader for technical support."

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID, userID := msg.Chat.ID, msg.From.ID

	switch msg.Command() {
	case "start":
		return b.setup.Start(ctx, chatID, userID, profileOf(msg.From))
	case "help":
		return b.say(ctx, chatID, helpText)
	case "sniper":
		if !b.notifier.IsAuthorized(ctx, userID) {
			return b.say(ctx, chatID, adminOnlyText)
		}
		if ok, err := b.requireSetup(ctx, chatID, userID); !ok {
			return err
		}
		return b.commandCenter(ctx, chatID, userID, nil)
	case "status":
		if !b.notifier.IsAuthorized(ctx, userID) {
			return b.say(ctx, chatID, accessDeniedText)
		}
		return b.say(ctx, chatID, b.statusText(ctx))
	case "wallet":
		if !b.notifier.IsAdmin(userID) {
			return b.say(ctx, chatID, "❌ Access denied. Super admin privileges required.")
		}
		return b.say(ctx, chatID, b.walletOverviewText(ctx))
	case "health":
		if !b.notifier.IsAdmin(userID) {
			return b.say(ctx, chatID, adminOnlyText)
		}
		if err := b.say(ctx, chatID, healthRunningText); err != nil {
			return err
		}
		return b.say(ctx, chatID, health.ReportText(b.health.Report(ctx)))
	case "payout":
		if !b.notifier.IsAuthorized(ctx, userID) {
			return b.say(ctx, chatID, accessDeniedText)
		}
		if ok, err := b.requireSetup(ctx, chatID, userID); !ok {
			return err
		}
		return b.transfers.BeginDefaultAddress(ctx, chatID, userID)
	}
	return b.say(ctx, chatID, unknownCommandText)
}

// requireSetup reports whether userID finished onboarding, telling them otherwise
func (b *Bot) requireSetup(ctx context.Context, chatID, userID int64) (bool, error) {
	user, err := b.users.GetByID(ctx, userID)
	if err != nil && !domainerrors.IsNotFound(err) {
		return false, err
	}
	if user == nil || !user.IsSetupComplete() {
		return false, b.say(ctx, chatID, setupFirstText)
	}
	return true, nil
}

func (b *Bot) balanceOf(ctx context.Context, address string) (decimal.Decimal, bool) {
	balance, err := b.ledger.GetBalance(ctx, address)
	if err != nil {
		b.logger.Warn("Balance lookup failed", "address", address, "error", err)
		return decimal.Zero, false
	}
	return balance, true
}

func (b *Bot) formatBalance(ctx context.Context, address string) string {
	balance, ok := b.balanceOf(ctx, address)
	if !ok {
		return "unavailable"
	}
	return b.notifier.FormatSOL(balance)
}

func (b *Bot) network() string {
	if b.config.Network == "" {
		return "Solana"
	}
	return "Solana " + strings.ToUpper(b.config.Network[:1]) + b.config.Network[1:]
}

func running(ok bool, on, off string) string {
	if ok {
		return on
	}
	return off
}

func (b *Bot) addressInfoText(address string, balance decimal.Decimal) string {
	return fmt.Sprintf("💳 *Wallet Information* 💳\n\n"+
		"📮 *Address:* `%s`\n"+
		"💰 *Balance:* %s\n"+
		"💵 *USD Value:* %s\n"+
		"📡 *Network:* %s\n\n"+
		"Use /sniper to access tactical operations.",
		address, b.notifier.FormatSOL(balance), usd(balance, b.notifier.Price()), b.network())
}

func (b *Bot) userCounts(ctx context.Context) entities.UserStats {
	users, err := b.users.List(ctx)
	if err != nil {
		b.logger.Warn("Failed to list users", "error", err)
		return entities.UserStats{}
	}
	return entities.ComputeUserStats(users)
}

func (b *Bot) statusText(ctx context.Context) string {
	status := b.monitor.Status()
	stats := b.userCounts(ctx)

	lastHealth := "never"
	if !status.LastHealthCheck.IsZero() {
		lastHealth = status.LastHealthCheck.UTC().Format("2006-01-02 15:04:05 MST")
	}

	return fmt.Sprintf("📊 *SYSTEM STATUS REPORT* 📊\n\n"+
		"⚡ *Bot Status:* %s\n"+
		"👥 *Total Users:* %d\n"+
		"⚡ *Active Users:* %d\n"+
		"👁️ *Monitored Wallets:* %d\n"+
		"💰 *Bot Balance:* %s\n"+
		"💵 *SOL Price:* $%s\n"+
		"📡 *Network:* %s\n\n"+
		"🔍 *Scan Frequency:* Every %s\n"+
		"🏥 *Last Health Check:* %s",
		running(status.Running, "🟢 OPERATIONAL", "🔴 STANDBY"),
		stats.Total, stats.Active,
		status.WalletCount,
		b.formatBalance(ctx, b.monitor.BotAddress()),
		b.notifier.Price().StringFixed(2),
		b.network(),
		b.config.PollInterval,
		lastHealth)
}

func (b *Bot) walletOverviewText(ctx context.Context) string {
	address := b.monitor.BotAddress()
	balance, ok := b.balanceOf(ctx, address)
	sol, value := "unavailable", "unavailable"
	if ok {
		sol, value = b.notifier.FormatSOL(balance), usd(balance, b.notifier.Price())
	}

	return fmt.Sprintf("💳 *ADMIN WALLET OVERVIEW* 💳\n\n"+
		"🏦 *Bot Wallet:* `%s`\n"+
		"💰 *Balance:* %s\n"+
		"💵 *USD Value:* %s\n"+
		"📡 *Network:* %s\n\n"+
		"👥 *Active Users:* %d\n"+
		"👁️ *Monitoring:* %s\n\n"+
		"*Administrative access confirmed.*",
		address,
		sol,
		value,
		b.network(),
		b.userCounts(ctx).Active,
		running(b.monitor.Status().Running, "Active", "Inactive"))
}
