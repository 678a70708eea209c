package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingKind is the step an interactive transfer is waiting on
type PendingKind string

const (
	PendingAwaitingRecipientAddress PendingKind = "awaiting_recipient_address"
	PendingAwaitingDefaultAddress   PendingKind = "awaiting_default_address"
	PendingAwaitingCustomAmount     PendingKind = "awaiting_custom_amount"
	PendingAwaitingAmountSelection  PendingKind = "awaiting_amount_selection"
	PendingAwaitingConfirmation     PendingKind = "awaiting_confirmation"
)

// AcceptsText reports whether the step consumes free-text input
func (k PendingKind) AcceptsText() bool {
	switch k {
	case PendingAwaitingRecipientAddress, PendingAwaitingDefaultAddress, PendingAwaitingCustomAmount:
		return true
	}
	return false
}

// PendingTransaction is one in-flight interactive transfer negotiation
type PendingTransaction struct {
	Key               int              `json:"key"`
	Kind              PendingKind      `json:"kind"`
	ChatID            int64            `json:"chat_id"`
	FromAddress       string           `json:"from_address"`
	RecipientAddress  string           `json:"recipient_address,omitempty"`
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	InitiatingUserID  int64            `json:"initiating_user_id"`
	OriginalMessageID int              `json:"original_message_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// Clone returns a copy safe to hand out of the registry
func (p *PendingTransaction) Clone() *PendingTransaction {
	c := *p
	if p.Amount != nil {
		a := *p.Amount
		c.Amount = &a
	}
	return &c
}

// IsStale reports whether the entry is older than maxAge at now
func (p *PendingTransaction) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(p.CreatedAt) > maxAge
}

// Ref returns the message currently carrying the entry's prompt
func (p *PendingTransaction) Ref() MessageRef {
	return MessageRef{ChatID: p.ChatID, MessageID: p.Key}
}
