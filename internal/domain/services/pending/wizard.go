package pending

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
	"github.com/birdeye-sniper/sniper_service/internal/domain/repositories"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
	"github.com/birdeye-sniper/sniper_service/pkg/metrics"
)

// Ledger is the subset of the ledger client the wizard needs
type Ledger interface {
	IsValidAddress(address string) bool
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	SendPayment(ctx context.Context, fromAddress, toAddress string, amount decimal.Decimal) (string, error)
}

// Notifier delivers wizard prompts and transfer outcomes
type Notifier interface {
	SendToUser(ctx context.Context, chatID int64, text string, keyboard *entities.Keyboard) (entities.MessageRef, error)
	Edit(ctx context.Context, ref entities.MessageRef, text string, keyboard *entities.Keyboard) error
	NotifyTransfer(ctx context.Context, chatID int64, result *entities.TransferResult)
	FormatSOL(amount decimal.Decimal) string
}

// Percentages offered on the amount selection step
var Percentages = []int{25, 50, 75}

// Wizard drives the interactive transfer dialogue on top of a Registry
type Wizard struct {
	registry *Registry
	ledger   Ledger
	notifier Notifier
	users    repositories.UserRepository
	logger   *logger.Logger
	now      func() time.Time
}

// NewWizard creates a wizard
func NewWizard(registry *Registry, ledger Ledger, notifier Notifier, users repositories.UserRepository, log *logger.Logger) *Wizard {
	return &Wizard{
		registry: registry,
		ledger:   ledger,
		notifier: notifier,
		users:    users,
		logger:   log.Named("wizard"),
		now:      time.Now,
	}
}

// Registry exposes the underlying registry
func (w *Wizard) Registry() *Registry {
	return w.registry
}

// Sweep drops stale entries
func (w *Wizard) Sweep(maxAge time.Duration) int {
	removed := w.registry.Sweep(maxAge)
	if removed > 0 {
		w.logger.Info("Swept stale pending transactions", "removed", removed, "remaining", w.registry.Len())
	}
	return removed
}

// Begin opens a transfer from fromAddress and asks for the recipient
func (w *Wizard) Begin(ctx context.Context, chatID, userID int64, fromAddress string, originMessageID int) error {
	hasDefault := w.payoutAddress(ctx, userID) != ""

	ref, err := w.notifier.SendToUser(ctx, chatID, recipientPromptText(fromAddress, ""), recipientKeyboard(hasDefault))
	if err != nil {
		return fmt.Errorf("failed to send recipient prompt: %w", err)
	}

	w.put(&entities.PendingTransaction{
		Key:               ref.MessageID,
		Kind:              entities.PendingAwaitingRecipientAddress,
		ChatID:            chatID,
		FromAddress:       fromAddress,
		InitiatingUserID:  userID,
		OriginalMessageID: originMessageID,
	})
	return nil
}

// BeginDefaultAddress asks the user for the auto-transfer payout address
func (w *Wizard) BeginDefaultAddress(ctx context.Context, chatID, userID int64) error {
	ref, err := w.notifier.SendToUser(ctx, chatID, defaultAddressPromptText(w.payoutAddress(ctx, userID), ""), cancelKeyboard())
	if err != nil {
		return fmt.Errorf("failed to send payout prompt: %w", err)
	}

	w.put(&entities.PendingTransaction{
		Key:              ref.MessageID,
		Kind:             entities.PendingAwaitingDefaultAddress,
		ChatID:           chatID,
		InitiatingUserID: userID,
	})
	return nil
}

// HandleText feeds free text to the user's entry in chatID.
// It reports false when no entry is waiting for text.
func (w *Wizard) HandleText(ctx context.Context, chatID, userID int64, text string) (bool, error) {
	p, ok := w.registry.ActiveForUser(userID)
	if !ok || p.ChatID != chatID || !p.Kind.AcceptsText() {
		return false, nil
	}
	text = strings.TrimSpace(text)

	switch p.Kind {
	case entities.PendingAwaitingRecipientAddress:
		return true, w.receiveRecipient(ctx, p, text)
	case entities.PendingAwaitingDefaultAddress:
		return true, w.receiveDefaultAddress(ctx, p, text)
	case entities.PendingAwaitingCustomAmount:
		return true, w.receiveCustomAmount(ctx, p, text)
	}
	return false, nil
}

func (w *Wizard) receiveRecipient(ctx context.Context, p *entities.PendingTransaction, address string) error {
	if !w.ledger.IsValidAddress(address) {
		hasDefault := w.payoutAddress(ctx, p.InitiatingUserID) != ""
		return w.notifier.Edit(ctx, p.Ref(), recipientPromptText(p.FromAddress, invalidAddressNotice), recipientKeyboard(hasDefault))
	}
	return w.showAmountSelection(ctx, p, address, false)
}

func (w *Wizard) receiveDefaultAddress(ctx context.Context, p *entities.PendingTransaction, address string) error {
	if !w.ledger.IsValidAddress(address) {
		return w.notifier.Edit(ctx, p.Ref(), defaultAddressPromptText("", invalidAddressNotice), cancelKeyboard())
	}

	if _, err := w.users.Update(ctx, p.InitiatingUserID, entities.UserUpdate{PayoutAddress: &address}); err != nil {
		w.logger.Error("Failed to store payout address", "user_id", p.InitiatingUserID, "error", err)
		return w.notifier.Edit(ctx, p.Ref(), defaultAddressPromptText("", "⚠️ Could not save the address, try again."), cancelKeyboard())
	}

	w.registry.Delete(p.Ref())
	w.logger.Info("Payout address updated", "user_id", p.InitiatingUserID)
	return w.notifier.Edit(ctx, p.Ref(), payoutSavedText(address), nil)
}

func (w *Wizard) receiveCustomAmount(ctx context.Context, p *entities.PendingTransaction, text string) error {
	balance, err := w.ledger.GetBalance(ctx, p.FromAddress)
	if err != nil {
		w.logger.Warn("Failed to fetch balance for custom amount", "address", p.FromAddress, "error", err)
		return w.notifier.Edit(ctx, p.Ref(), customAmountPromptText(p, decimal.Zero, w.notifier, balanceUnavailableNotice), cancelKeyboard())
	}

	amount, err := ParseAmount(text, balance)
	if err != nil {
		return w.notifier.Edit(ctx, p.Ref(), customAmountPromptText(p, balance, w.notifier, "⚠️ "+err.Error()), cancelKeyboard())
	}

	next := p.Clone()
	next.Kind = entities.PendingAwaitingConfirmation
	next.Amount = &amount
	ref, err := w.notifier.SendToUser(ctx, p.ChatID, confirmationText(next, w.notifier), confirmKeyboard())
	if err != nil {
		return fmt.Errorf("failed to send confirmation: %w", err)
	}
	next.Key = ref.MessageID
	next.CreatedAt = time.Time{}
	return w.rekey(ctx, p, next)
}

// ParseAmount validates a custom amount against the available balance
func ParseAmount(text string, balance decimal.Decimal) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, domainerrors.ValidationError("amount", "amount must be a number")
	}
	if !amount.IsPositive() {
		return decimal.Zero, domainerrors.ValidationError("amount", "amount must be greater than zero")
	}
	if amount.GreaterThan(balance) {
		return decimal.Zero, domainerrors.InsufficientBalanceError(amount.String(), balance.String())
	}
	return amount, nil
}

// UseDefaultRecipient fills the recipient with the user's payout address
func (w *Wizard) UseDefaultRecipient(ctx context.Context, userID int64, ref entities.MessageRef) error {
	p, err := w.lookup(ref, userID, entities.PendingAwaitingRecipientAddress)
	if err != nil {
		return err
	}
	address := w.payoutAddress(ctx, userID)
	if address == "" {
		return domainerrors.ValidationError("payout_address", "no payout address configured")
	}
	return w.showAmountSelection(ctx, p, address, true)
}

// showAmountSelection moves p to amount selection. With inPlace the prompt message is edited,
// otherwise a new message is sent and the entry is re-keyed to it.
func (w *Wizard) showAmountSelection(ctx context.Context, p *entities.PendingTransaction, recipient string, inPlace bool) error {
	balance, err := w.ledger.GetBalance(ctx, p.FromAddress)
	if err != nil {
		w.logger.Warn("Failed to fetch balance for amount selection", "address", p.FromAddress, "error", err)
		return w.notifier.Edit(ctx, p.Ref(), recipientPromptText(p.FromAddress, balanceUnavailableNotice), cancelKeyboard())
	}

	next := p.Clone()
	next.Kind = entities.PendingAwaitingAmountSelection
	next.RecipientAddress = recipient
	next.CreatedAt = time.Time{}

	text := amountSelectionText(next, balance, w.notifier)
	if inPlace {
		if err := w.notifier.Edit(ctx, p.Ref(), text, amountKeyboard()); err != nil {
			return err
		}
	} else {
		ref, err := w.notifier.SendToUser(ctx, p.ChatID, text, amountKeyboard())
		if err != nil {
			return fmt.Errorf("failed to send amount selection: %w", err)
		}
		next.Key = ref.MessageID
	}
	return w.rekey(ctx, p, next)
}

// SelectPercentage resolves the amount as a share of the current balance and asks for confirmation
func (w *Wizard) SelectPercentage(ctx context.Context, userID int64, ref entities.MessageRef, pct int) error {
	p, err := w.lookup(ref, userID, entities.PendingAwaitingAmountSelection)
	if err != nil {
		return err
	}
	if pct <= 0 || pct > 100 {
		return domainerrors.ValidationError("percentage", "percentage out of range")
	}

	balance, err := w.ledger.GetBalance(ctx, p.FromAddress)
	if err != nil {
		w.logger.Warn("Failed to fetch balance for percentage", "address", p.FromAddress, "error", err)
		return w.notifier.Edit(ctx, p.Ref(), amountSelectionText(p, decimal.Zero, w.notifier)+"\n\n"+balanceUnavailableNotice, amountKeyboard())
	}

	amount := balance.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100))
	if !amount.IsPositive() {
		return w.notifier.Edit(ctx, p.Ref(), amountSelectionText(p, balance, w.notifier)+"\n\n⚠️ Nothing to deploy.", amountKeyboard())
	}

	next := p.Clone()
	next.Kind = entities.PendingAwaitingConfirmation
	next.Amount = &amount
	if err := w.notifier.Edit(ctx, p.Ref(), confirmationText(next, w.notifier), confirmKeyboard()); err != nil {
		return err
	}
	return w.rekey(ctx, p, next)
}

// SelectCustom switches the entry to free-text amount entry
func (w *Wizard) SelectCustom(ctx context.Context, userID int64, ref entities.MessageRef) error {
	p, err := w.lookup(ref, userID, entities.PendingAwaitingAmountSelection)
	if err != nil {
		return err
	}

	balance, err := w.ledger.GetBalance(ctx, p.FromAddress)
	if err != nil {
		balance = decimal.Zero
	}

	next := p.Clone()
	next.Kind = entities.PendingAwaitingCustomAmount
	if err := w.notifier.Edit(ctx, p.Ref(), customAmountPromptText(next, balance, w.notifier, ""), cancelKeyboard()); err != nil {
		return err
	}
	return w.rekey(ctx, p, next)
}

// Confirm executes the negotiated transfer. The entry is removed before sending.
func (w *Wizard) Confirm(ctx context.Context, userID int64, ref entities.MessageRef) (*entities.TransferResult, error) {
	if _, err := w.lookup(ref, userID, entities.PendingAwaitingConfirmation); err != nil {
		return nil, err
	}
	p, ok := w.registry.Take(ref)
	if !ok {
		return nil, domainerrors.ErrPendingNotFound
	}
	if p.Amount == nil || p.RecipientAddress == "" {
		return nil, domainerrors.ValidationError("pending", "transfer is incomplete")
	}

	if err := w.notifier.Edit(ctx, p.Ref(), executingText(p, w.notifier), nil); err != nil {
		w.logger.Warn("Failed to mark transfer as executing", "error", err)
	}

	result := &entities.TransferResult{
		Kind:        entities.TransferKindManual,
		From:        p.FromAddress,
		To:          p.RecipientAddress,
		Amount:      *p.Amount,
		InitiatedBy: userID,
	}
	if user, err := w.users.GetByID(ctx, userID); err == nil {
		result.OwnerEmail = user.Email
	}

	result.Signature, result.Err = w.ledger.SendPayment(ctx, p.FromAddress, p.RecipientAddress, *p.Amount)
	result.CompletedAt = w.now()
	metrics.TransfersTotal.WithLabelValues(string(result.Kind), result.Status()).Inc()

	if result.Succeeded() {
		w.logger.Info("Manual transfer executed",
			"from", p.FromAddress, "to", p.RecipientAddress, "amount", p.Amount.String(), "signature", result.Signature)
	} else {
		w.logger.Error("Manual transfer failed",
			"from", p.FromAddress, "to", p.RecipientAddress, "amount", p.Amount.String(), "error", result.Err)
	}

	if err := w.notifier.Edit(ctx, p.Ref(), outcomeText(result), nil); err != nil {
		w.logger.Warn("Failed to update confirmation message", "error", err)
	}
	w.notifier.NotifyTransfer(ctx, p.ChatID, result)
	return result, nil
}

// Cancel aborts the entry behind ref
func (w *Wizard) Cancel(ctx context.Context, userID int64, ref entities.MessageRef) error {
	p, err := w.lookup(ref, userID, "")
	if err != nil {
		return err
	}
	w.registry.Delete(p.Ref())
	return w.notifier.Edit(ctx, p.Ref(), abortedText, nil)
}

// lookup returns the entry behind ref after checking the caller and, when kind is set, the step
func (w *Wizard) lookup(ref entities.MessageRef, userID int64, kind entities.PendingKind) (*entities.PendingTransaction, error) {
	p, ok := w.registry.Get(ref)
	if !ok {
		return nil, domainerrors.ErrPendingNotFound
	}
	if p.InitiatingUserID != userID {
		return nil, domainerrors.UnauthorizedError("only the initiating operator can continue this transfer")
	}
	if kind != "" && p.Kind != kind {
		return nil, domainerrors.ValidationError("step", fmt.Sprintf("transfer is at step %s", p.Kind))
	}
	return p, nil
}

func (w *Wizard) put(p *entities.PendingTransaction) {
	if superseded := w.registry.Put(p); superseded > 0 {
		w.logger.Debug("Superseded pending transactions", "user_id", p.InitiatingUserID, "count", superseded)
	}
}

// rekey moves p to next, which may carry a new prompt message. A prompt sent for an entry
// that vanished meanwhile is marked expired.
func (w *Wizard) rekey(ctx context.Context, p, next *entities.PendingTransaction) error {
	if w.registry.Rekey(p.Ref(), next) {
		return nil
	}
	w.logger.Debug("Pending transaction vanished before re-key", "user_id", p.InitiatingUserID)
	if next.Ref() != p.Ref() {
		if err := w.notifier.Edit(ctx, next.Ref(), abortedText, nil); err != nil {
			w.logger.Warn("Failed to mark orphaned prompt", "error", err)
		}
	}
	return domainerrors.ErrPendingNotFound
}

func (w *Wizard) payoutAddress(ctx context.Context, userID int64) string {
	user, err := w.users.GetByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.PayoutAddress
}
