package pending

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
)

// CallbackPrefix marks wizard buttons
const CallbackPrefix = "tx"

// Wizard button actions
const (
	ActionPercent = "pct"
	ActionCustom  = "custom"
	ActionConfirm = "confirm"
	ActionCancel  = "cancel"
	ActionDefault = "default"
)

const (
	invalidAddressNotice     = "⚠️ Invalid Solana address. Check it and send it again."
	balanceUnavailableNotice = "⚠️ Balance lookup failed. Try again in a moment."
	abortedText              = "🛑 *OPERATION ABORTED*\n\nNo assets were moved."
)

// Callback is a decoded wizard button press
type Callback struct {
	Action  string
	Percent int
}

// ParseCallback decodes "tx:<action>[:<arg>]" callback data
func ParseCallback(data string) (Callback, bool) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 || parts[0] != CallbackPrefix {
		return Callback{}, false
	}

	switch parts[1] {
	case ActionPercent:
		if len(parts) != 3 {
			return Callback{}, false
		}
		pct, err := strconv.Atoi(parts[2])
		if err != nil {
			return Callback{}, false
		}
		return Callback{Action: ActionPercent, Percent: pct}, true
	case ActionCustom, ActionConfirm, ActionCancel, ActionDefault:
		return Callback{Action: parts[1]}, len(parts) == 2
	}
	return Callback{}, false
}

func callbackData(action string, args ...string) string {
	return strings.Join(append([]string{CallbackPrefix, action}, args...), ":")
}

type formatter interface {
	FormatSOL(amount decimal.Decimal) string
}

func withNotice(text, notice string) string {
	if notice == "" {
		return text
	}
	return text + "\n\n" + notice
}

func recipientPromptText(from, notice string) string {
	text := fmt.Sprintf("🚀 *DEPLOY ASSETS*\n\n"+
		"📤 *SOURCE:* `%s`\n\n"+
		"Send the destination Solana address.", from)
	return withNotice(text, notice)
}

func recipientKeyboard(hasDefault bool) *entities.Keyboard {
	rows := [][]entities.Button{}
	if hasDefault {
		rows = append(rows, entities.Row(entities.Btn("🏦 USE PAYOUT ADDRESS", callbackData(ActionDefault))))
	}
	rows = append(rows, entities.Row(entities.Btn("❌ CANCEL", callbackData(ActionCancel))))
	return entities.NewKeyboard(rows...)
}

func cancelKeyboard() *entities.Keyboard {
	return entities.NewKeyboard(entities.Row(entities.Btn("❌ CANCEL", callbackData(ActionCancel))))
}

func defaultAddressPromptText(current, notice string) string {
	var b strings.Builder
	b.WriteString("🏦 *PAYOUT ADDRESS*\n\n")
	if current != "" {
		fmt.Fprintf(&b, "Current: `%s`\n\n", current)
	}
	b.WriteString("Send the Solana address that should receive auto-deployed assets.")
	return withNotice(b.String(), notice)
}

func payoutSavedText(address string) string {
	return fmt.Sprintf("✅ *PAYOUT ADDRESS SET*\n\n`%s`\n\nAuto-deploys will be sent here.", address)
}

func amountSelectionText(p *entities.PendingTransaction, balance decimal.Decimal, f formatter) string {
	return fmt.Sprintf("💰 *SELECT AMOUNT*\n\n"+
		"📤 *SOURCE:* `%s`\n"+
		"📥 *TARGET:* `%s`\n"+
		"💼 *AVAILABLE:* %s\n\n"+
		"Choose a share of the balance or enter a custom amount.",
		p.FromAddress, p.RecipientAddress, f.FormatSOL(balance))
}

func amountKeyboard() *entities.Keyboard {
	pcts := make([]entities.Button, 0, len(Percentages))
	for _, pct := range Percentages {
		pcts = append(pcts, entities.Btn(fmt.Sprintf("%d%%", pct), callbackData(ActionPercent, strconv.Itoa(pct))))
	}
	return entities.NewKeyboard(
		pcts,
		entities.Row(
			entities.Btn("✏️ CUSTOM", callbackData(ActionCustom)),
			entities.Btn("❌ CANCEL", callbackData(ActionCancel)),
		),
	)
}

func customAmountPromptText(p *entities.PendingTransaction, balance decimal.Decimal, f formatter, notice string) string {
	text := fmt.Sprintf("✏️ *CUSTOM AMOUNT*\n\n"+
		"📥 *TARGET:* `%s`\n"+
		"💼 *AVAILABLE:* %s\n\n"+
		"Send the amount in SOL, e.g. `0.5`.",
		p.RecipientAddress, f.FormatSOL(balance))
	return withNotice(text, notice)
}

func confirmationText(p *entities.PendingTransaction, f formatter) string {
	return fmt.Sprintf("⚠️ *CONFIRM DEPLOYMENT*\n\n"+
		"📤 *SOURCE:* `%s`\n"+
		"📥 *TARGET:* `%s`\n"+
		"💰 *AMOUNT:* %s\n\n"+
		"This cannot be undone.",
		p.FromAddress, p.RecipientAddress, f.FormatSOL(*p.Amount))
}

func confirmKeyboard() *entities.Keyboard {
	return entities.NewKeyboard(entities.Row(
		entities.Btn("✅ CONFIRM", callbackData(ActionConfirm)),
		entities.Btn("❌ CANCEL", callbackData(ActionCancel)),
	))
}

func executingText(p *entities.PendingTransaction, f formatter) string {
	return fmt.Sprintf("⏳ *EXECUTING DEPLOYMENT*\n\n💰 %s → `%s`", f.FormatSOL(*p.Amount), p.RecipientAddress)
}

func outcomeText(result *entities.TransferResult) string {
	if result.Succeeded() {
		return fmt.Sprintf("✅ *DEPLOYMENT COMPLETE*\n\n🔗 `%s`", result.Signature)
	}
	return "❌ *DEPLOYMENT FAILED*\n\nSee the transaction report for details."
}
