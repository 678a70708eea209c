package setup

import (
	"context"
	"fmt"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	"github.com/birdeye-sniper/sniper_service/internal/domain/services/notifier"
)

// CallbackPrefix marks setup buttons
const CallbackPrefix = "setup"

// Setup button actions
const (
	ActionBegin      = "begin"
	ActionLearnMore  = "learn"
	ActionWelcome    = "welcome"
	ActionBackEmail  = "back_email"
	ActionBackIP     = "back_ip"
	ActionBackWallet = "back_wallet"
	ActionActivate   = "activate"
	ActionCancel     = "cancel"
	ActionDashboard  = "dashboard"
)

// Command center entry points linked from setup screens
const (
	CommandCenterCallback = "cc:home"
	WalletOpsCallback     = "cc:wallet"
	IntelCallback         = "cc:intel"
	ConfigCallback        = "cc:config"
)

// DashboardCallback reopens the main dashboard
const DashboardCallback = CallbackPrefix + ":" + ActionDashboard

func cb(action string) string {
	return CallbackPrefix + ":" + action
}

const welcomeText = "🦅 *Welcome to BirdEye Sniper Bot* 🦅\n\n" +
	"🎯 *The Ultimate Memecoin Sniper*\n\n" +
	"🚀 *What can this bot do?*\n" +
	"• 👁️ Monitor wallet activities in real-time\n" +
	"• 💰 Track balance changes instantly\n" +
	"• 📱 Send instant notifications to your group\n" +
	"• ⚡ Lightning-fast transaction detection\n\n" +
	"To get started, we need to set up your sniper profile.\n\n" +
	"*Ready to begin, Commander?*"

const learnMoreText = "📚 *ABOUT BIRDEYE SNIPER BOT* 📚\n\n" +
	"🎯 *Mission:* Memecoin wallet surveillance\n\n" +
	"⚡ *Core Features:*\n" +
	"• 🔍 Real-time wallet monitoring\n" +
	"• ⚡ Instant deposit notifications\n" +
	"• 🚀 Automatic forwarding to your payout address\n" +
	"• 🏥 Scheduled health reports\n\n" +
	"Ready to dominate the memecoin battlefield?"

const emailPromptText = "📋 *SNIPER PROFILE SETUP* 📋\n\n" +
	"*Step 1 of 3: Email Configuration*\n\n" +
	"🔧 Please provide your operational email address.\n" +
	"It is used for mission reports and transaction summaries.\n\n" +
	"*Enter your email address:*\n" +
	"_Example: sniper@tactical.com_"

const invalidEmailText = "❌ *Invalid Email Format*\n\n" +
	"Please enter a valid email address.\n" +
	"_Example: sniper@tactical.com_\n\n" +
	"*Try again:*"

const ipPromptText = "📋 *SNIPER PROFILE SETUP* 📋\n\n" +
	"*Step 2 of 3: Network Configuration*\n\n" +
	"🌐 Please provide your operational IP address.\n\n" +
	"*Enter your IP address:*\n" +
	"_Example: 192.168.1.100_"

const invalidIPText = "❌ *Invalid IP Address Format*\n\n" +
	"Please enter a valid IPv4 address.\n" +
	"_Example: 192.168.1.100_\n\n" +
	"*Try again:*"

const walletPromptText = "📋 *SNIPER PROFILE SETUP* 📋\n\n" +
	"*Step 3 of 3: Wallet Configuration*\n\n" +
	"✅ *Connection Successful!*\n" +
	"📡 *Network Status:* Connected\n\n" +
	"Your sniper profile will be linked to the squadron wallet.\n" +
	"This enables real-time monitoring and instant notifications.\n\n" +
	"*Ready to activate your tactical wallet?*"

const activatingText = "⚡ *Activating Tactical Wallet...*\n\n" +
	"📡 *Syncing with network...*\n" +
	"🎯 *Initializing sniper protocols...*"

const cancelledText = "❌ *Setup Cancelled*\n\n" +
	"No worries, Commander! You can restart the setup process anytime.\n\n" +
	"🚀 Use /start to begin again when you're ready."

func checkingEmailText(email string) string {
	return fmt.Sprintf("⏳ *Verifying Email Configuration...*\n\n"+
		"📧 *Email:* %s\n"+
		"🔍 *Status:* Validating...", notifier.EscapeMarkdown(email))
}

func connectingText(ip string) string {
	return fmt.Sprintf("⚡ *Establishing Secure Connection...*\n\n"+
		"🌐 *IP:* %s\n"+
		"📡 *Status:* Connecting to tactical network...", ip)
}

func (s *Service) completedText(ctx context.Context, user *entities.User) string {
	return fmt.Sprintf("🎉 *SETUP COMPLETE - SNIPER ACTIVATED!* 🎉\n\n"+
		"👤 *Operative:* %s\n"+
		"📧 *Email:* %s\n"+
		"🌐 *IP:* %s\n\n"+
		"💳 *WALLET*\n"+
		"📮 *Address:* `%s`\n"+
		"💰 *Balance:* %s\n\n"+
		"🚀 Your sniper bot is now *OPERATIONAL*.\n"+
		"Use /payout to set where deposits are forwarded.",
		notifier.EscapeMarkdown(user.DisplayName()),
		notifier.EscapeMarkdown(user.Email),
		user.IP,
		user.LinkedAddress,
		s.balanceText(ctx, user.LinkedAddress))
}

func (s *Service) dashboardText(ctx context.Context, user *entities.User) string {
	monitoring := "🔴 Disabled"
	if user.MonitorEnabled {
		monitoring = "🟢 Active"
	}
	wallet := "❌ Inactive"
	if user.WalletGenerated {
		wallet = "✅ Active"
	}
	payout := "Not set"
	if user.PayoutAddress != "" {
		payout = "`" + user.PayoutAddress + "`"
	}

	return fmt.Sprintf("🦅 *BirdEye Sniper Dashboard* 🦅\n\n"+
		"👤 *Operative:* %s\n"+
		"📧 *Email:* %s\n"+
		"🌐 *IP:* %s\n"+
		"💳 *Wallet:* %s\n"+
		"💰 *Balance:* %s\n"+
		"📮 *Payout:* %s\n"+
		"👁️ *Monitoring:* %s\n\n"+
		"*Select your mission, Commander:*",
		notifier.EscapeMarkdown(user.DisplayName()),
		orNotSet(notifier.EscapeMarkdown(user.Email)),
		orNotSet(user.IP),
		wallet,
		s.balanceText(ctx, user.LinkedAddress),
		payout,
		monitoring)
}

func orNotSet(v string) string {
	if v == "" {
		return "Not set"
	}
	return v
}

func welcomeKeyboard() *entities.Keyboard {
	return entities.NewKeyboard(
		entities.Row(entities.Btn("🚀 START SETUP", cb(ActionBegin))),
		entities.Row(entities.Btn("❓ Learn More", cb(ActionLearnMore))),
	)
}

func learnMoreKeyboard() *entities.Keyboard {
	return entities.NewKeyboard(
		entities.Row(entities.Btn("🚀 START SETUP", cb(ActionBegin))),
		entities.Row(entities.Btn("◀️ Back to Welcome", cb(ActionWelcome))),
	)
}

func navKeyboard(back string) *entities.Keyboard {
	return entities.NewKeyboard(
		entities.Row(entities.Btn("◀️ Previous", cb(back))),
		entities.Row(entities.Btn("❌ Cancel Setup", cb(ActionCancel))),
	)
}

func walletKeyboard() *entities.Keyboard {
	return entities.NewKeyboard(
		entities.Row(entities.Btn("💳 ACTIVATE WALLET", cb(ActionActivate))),
		entities.Row(entities.Btn("◀️ Previous", cb(ActionBackWallet))),
		entities.Row(entities.Btn("❌ Cancel Setup", cb(ActionCancel))),
	)
}

func completedKeyboard() *entities.Keyboard {
	return entities.NewKeyboard(
		entities.Row(entities.Btn("🎯 ENTER COMMAND CENTER", CommandCenterCallback)),
		entities.Row(entities.Btn("📊 VIEW DASHBOARD", DashboardCallback)),
	)
}

func dashboardKeyboard() *entities.Keyboard {
	return entities.NewKeyboard(
		entities.Row(
			entities.Btn("🎯 SNIPER CENTER", CommandCenterCallback),
			entities.Btn("💳 WALLET OPS", WalletOpsCallback),
		),
		entities.Row(
			entities.Btn("⚙️ SETTINGS", ConfigCallback),
			entities.Btn("📊 INTEL REPORT", IntelCallback),
		),
		entities.Row(entities.Btn("🔄 REFRESH", DashboardCallback)),
	)
}
