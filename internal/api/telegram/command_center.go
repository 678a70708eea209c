package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
	"github.com/birdeye-sniper/sniper_service/internal/domain/services/notifier"
	"github.com/birdeye-sniper/sniper_service/internal/domain/services/setup"
)

const commandCenterPrefix = "cc"

// command center screens, addressed as "cc:<screen>"
const (
	screenHome    = "home"
	screenWallet  = "wallet"
	screenIntel   = "intel"
	screenTargets = "targets"
	screenConfig  = "config"
	screenToggle  = "toggle"
	screenForce   = "force"
	screenHistory = "history"
	screenPayout  = "payout"
)

func ccData(screen string) string {
	return commandCenterPrefix + ":" + screen
}

func backToCommand() []entities.Button {
	return entities.Row(entities.Btn("◀️ BACK TO COMMAND", ccData(screenHome)))
}

func (b *Bot) handleCommandCenter(ctx context.Context, chatID, userID int64, ref entities.MessageRef, screen string) (string, error) {
	switch screen {
	case screenHome:
		return "", b.commandCenter(ctx, chatID, userID, &ref)
	case screenWallet:
		return "", b.show(ctx, chatID, &ref, b.walletOpsText(ctx), walletOpsKeyboard())
	case screenIntel:
		return "", b.show(ctx, chatID, &ref, b.intelText(ctx), entities.NewKeyboard(
			entities.Row(entities.Btn("🔄 REFRESH INTEL", ccData(screenIntel))),
			backToCommand(),
		))
	case screenTargets:
		return "", b.show(ctx, chatID, &ref, b.targetsText(), entities.NewKeyboard(
			entities.Row(entities.Btn("🔄 REFRESH TARGETS", ccData(screenTargets))),
			backToCommand(),
		))
	case screenConfig:
		user, err := b.users.GetByID(ctx, userID)
		if err != nil {
			return "", err
		}
		return "", b.show(ctx, chatID, &ref, b.configText(user), configKeyboard(user.MonitorEnabled))
	case screenToggle:
		return b.toggleMonitoring(ctx, chatID, userID, ref)
	case screenForce:
		snapshot := b.health.Run(ctx)
		return "📡 Status broadcast", b.show(ctx, chatID, &ref, forcedStatusText(snapshot), entities.NewKeyboard(backToCommand()))
	case screenHistory:
		return "", b.show(ctx, chatID, &ref, b.historyText(ctx), entities.NewKeyboard(
			entities.Row(entities.Btn("🔄 REFRESH HISTORY", ccData(screenHistory))),
			entities.Row(entities.Btn("◀️ BACK TO WALLET OPS", ccData(screenWallet))),
		))
	case screenPayout:
		return "", b.transfers.BeginDefaultAddress(ctx, chatID, userID)
	}
	return "", domainerrors.ValidationError("callback", "unknown screen "+screen)
}

// commandCenter renders the home screen, editing ref in place when given
func (b *Bot) commandCenter(ctx context.Context, chatID, userID int64, ref *entities.MessageRef) error {
	user, err := b.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsSetupComplete() {
		return b.say(ctx, chatID, setupFirstText)
	}

	status := b.monitor.Status()
	text := fmt.Sprintf("🎯 *SNIPER COMMAND CENTER* 🎯\n\n"+
		"👤 *Operative:* %s\n"+
		"🏦 *Bot Treasury:* %s\n"+
		"👁️ *Surveillance:* %s\n"+
		"🎯 *Targets Tracked:* %d\n"+
		"💵 *SOL Price:* $%s\n"+
		"⚡ *System Status:* %s\n\n"+
		"*Mission Control Online - Awaiting Orders*\n"+
		"_Next scan: <%s_",
		notifier.EscapeMarkdown(user.DisplayName()),
		b.formatBalance(ctx, b.monitor.BotAddress()),
		running(user.MonitorEnabled, "🟢 ACTIVE", "🔴 OFFLINE"),
		status.WalletCount,
		b.notifier.Price().StringFixed(2),
		running(status.Running, "OPERATIONAL", "STANDBY"),
		b.config.PollInterval)

	return b.show(ctx, chatID, ref, text, entities.NewKeyboard(
		entities.Row(
			entities.Btn("💳 WALLET OPERATIONS", ccData(screenWallet)),
			entities.Btn("📊 INTEL REPORT", ccData(screenIntel)),
		),
		entities.Row(
			entities.Btn("🎯 ACTIVE TARGETS", ccData(screenTargets)),
			entities.Btn("⚙️ SYSTEM CONFIG", ccData(screenConfig)),
		),
		entities.Row(
			entities.Btn("📡 FORCE STATUS", ccData(screenForce)),
			entities.Btn("🔄 REFRESH CENTER", ccData(screenHome)),
		),
		entities.Row(entities.Btn("🏠 MAIN DASHBOARD", setup.DashboardCallback)),
	))
}

func (b *Bot) toggleMonitoring(ctx context.Context, chatID, userID int64, ref entities.MessageRef) (string, error) {
	user, err := b.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	enable := !user.MonitorEnabled
	if enable {
		err = b.monitor.EnableMonitoring(ctx, userID)
	} else {
		err = b.monitor.DisableMonitoring(ctx, userID)
	}
	if err != nil {
		return "", err
	}
	b.logger.Info("Monitoring toggled", "user_id", userID, "enabled", enable)

	text := "⚙️ *MONITORING STATUS UPDATED* ⚙️\n\n"
	if enable {
		text += "👁️ *New Status:* 🟢 ENABLED\n\n✅ Real-time surveillance resumed. Deposit alerts will be sent."
	} else {
		text += "👁️ *New Status:* 🔴 DISABLED\n\n🔴 Surveillance paused for your profile."
	}
	return "", b.show(ctx, chatID, &ref, text, entities.NewKeyboard(
		entities.Row(entities.Btn("◀️ BACK TO CONFIG", ccData(screenConfig))),
	))
}

func (b *Bot) walletOpsText(ctx context.Context) string {
	address := b.monitor.BotAddress()
	balance, ok := b.balanceOf(ctx, address)
	sol, value := "unavailable", "unavailable"
	if ok {
		sol, value = b.notifier.FormatSOL(balance), usd(balance, b.notifier.Price())
	}

	return fmt.Sprintf("💳 *WALLET OPERATIONS CENTER* 💳\n\n"+
		"🏦 *Tactical Wallet:* `%s`\n"+
		"💰 *Available Assets:* %s\n"+
		"💵 *USD Value:* %s\n"+
		"📡 *Network:* %s\n\n"+
		"*Select wallet operation:*",
		address, sol, value, b.network())
}

func walletOpsKeyboard() *entities.Keyboard {
	return entities.NewKeyboard(
		entities.Row(
			entities.Btn("📈 TRANSACTION HISTORY", ccData(screenHistory)),
			entities.Btn("📮 SET DEFAULT TARGET", ccData(screenPayout)),
		),
		entities.Row(entities.Btn("🔄 REFRESH BALANCE", ccData(screenWallet))),
		backToCommand(),
	)
}

func (b *Bot) intelText(ctx context.Context) string {
	status := b.monitor.Status()
	stats := b.userCounts(ctx)

	uptime := "0"
	if !status.StartedAt.IsZero() {
		uptime = fmt.Sprintf("%d", int(time.Since(status.StartedAt).Hours()))
	}

	return fmt.Sprintf("📊 *TACTICAL INTELLIGENCE REPORT* 📊\n\n"+
		"📈 *OPERATIONAL METRICS*\n"+
		"• 👥 Total Operatives: %d\n"+
		"• ⚡ Active Operatives: %d\n"+
		"• ✅ Enlisted: %d\n"+
		"• 👁️ Surveillance Targets: %d\n"+
		"• ⏱️ System Uptime: %s hours\n"+
		"• 🔍 Scan Frequency: %s\n\n"+
		"💰 *MARKET INTELLIGENCE*\n"+
		"• 💵 SOL Price: $%s\n"+
		"• 🏦 Bot Treasury: %s\n"+
		"• 📡 Network: %s",
		stats.Total, stats.Active, stats.Completed,
		status.WalletCount,
		uptime,
		b.config.PollInterval,
		b.notifier.Price().StringFixed(2),
		b.formatBalance(ctx, b.monitor.BotAddress()),
		b.network())
}

func (b *Bot) targetsText() string {
	var sb strings.Builder
	sb.WriteString("🎯 *ACTIVE SURVEILLANCE TARGETS* 🎯\n\n")
	fmt.Fprintf(&sb, "🔍 *Scan Frequency:* Every %s\n\n", b.config.PollInterval)

	wallets := b.monitor.Wallets()
	if len(wallets) == 0 {
		sb.WriteString("📭 No wallets under surveillance")
		return sb.String()
	}
	for _, w := range wallets {
		fmt.Fprintf(&sb, "💳 `%s`\n", w.Address)
		fmt.Fprintf(&sb, "💰 *Last Balance:* %s\n", b.notifier.FormatSOL(w.LastObservedBalance))
		fmt.Fprintf(&sb, "👁️ *Watchers:* %d\n", len(w.Owners))
		if w.AutoTransferScheduleAt != nil {
			fmt.Fprintf(&sb, "⏳ *Auto-transfer:* %s\n", w.AutoTransferScheduleAt.UTC().Format("15:04:05 MST"))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) configText(user *entities.User) string {
	payout := "Not set"
	if user.PayoutAddress != "" {
		payout = "`" + user.PayoutAddress + "`"
	}
	return fmt.Sprintf("⚙️ *SYSTEM CONFIGURATION* ⚙️\n\n"+
		"👁️ *Monitoring:* %s\n"+
		"🔍 *Scan Interval:* %s\n"+
		"📱 *Notifications:* %s\n"+
		"📮 *Payout Address:* %s\n\n"+
		"🎯 *Available Configurations:*",
		running(user.MonitorEnabled, "🟢 ENABLED", "🔴 DISABLED"),
		b.config.PollInterval,
		running(b.notifier.GroupConfigured(), "🟢 ACTIVE", "🔴 INACTIVE"),
		payout)
}

func configKeyboard(enabled bool) *entities.Keyboard {
	label := "🟢 ENABLE MONITORING"
	if enabled {
		label = "🔴 DISABLE MONITORING"
	}
	return entities.NewKeyboard(
		entities.Row(entities.Btn(label, ccData(screenToggle))),
		entities.Row(entities.Btn("📮 SET PAYOUT ADDRESS", ccData(screenPayout))),
		backToCommand(),
	)
}

func forcedStatusText(snapshot *entities.HealthSnapshot) string {
	return fmt.Sprintf("📡 *FORCED STATUS UPDATE COMPLETE* 📡\n\n"+
		"✅ Health check executed\n"+
		"📊 *Result:* %s\n\n"+
		"*Status recorded, Commander!*",
		strings.ToUpper(string(snapshot.Status)))
}

func (b *Bot) historyText(ctx context.Context) string {
	address := b.monitor.BotAddress()
	var sb strings.Builder
	sb.WriteString("📈 *TRANSACTION HISTORY* 📈\n\n")
	fmt.Fprintf(&sb, "💳 *Wallet:* `%s`\n", address)

	txs, err := b.ledger.GetRecentTransactions(ctx, address, b.config.HistoryLimit)
	if err != nil {
		b.logger.Warn("Failed to load transaction history", "address", address, "error", err)
		sb.WriteString("\n⚠️ History unavailable right now")
		return sb.String()
	}

	fmt.Fprintf(&sb, "📊 *Recent Transactions:* %d\n\n", len(txs))
	if len(txs) == 0 {
		sb.WriteString("📭 *No recent transactions found*")
		return sb.String()
	}

	for i, tx := range txs {
		if i == 5 {
			break
		}
		sig := tx.Signature
		if len(sig) > 16 {
			sig = sig[:16] + "..."
		}
		fmt.Fprintf(&sb, "• 📋 `%s`\n", sig)
		if tx.BlockTime != nil {
			fmt.Fprintf(&sb, "  ⏰ %s\n", tx.BlockTime.UTC().Format("2006-01-02 15:04:05 MST"))
		}
		sb.WriteString("  " + running(!tx.Failed, "✅ Success", "❌ Failed") + "\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// show edits ref when given, otherwise sends a new message
func (b *Bot) show(ctx context.Context, chatID int64, ref *entities.MessageRef, text string, keyboard *entities.Keyboard) error {
	if ref != nil {
		if err := b.notifier.Edit(ctx, *ref, text, keyboard); err == nil {
			return nil
		}
	}
	_, err := b.notifier.SendToUser(ctx, chatID, text, keyboard)
	return err
}
