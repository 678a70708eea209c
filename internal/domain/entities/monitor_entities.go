package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MonitoredWallet is a read-only view of a monitor registry entry
type MonitoredWallet struct {
	Address                string          `json:"address"`
	OwnerUserID            int64           `json:"owner_user_id"`
	Owners                 []int64         `json:"owners"`
	LastObservedBalance    decimal.Decimal `json:"last_observed_balance"`
	LastCheckedAt          time.Time       `json:"last_checked_at"`
	AutoTransferPending    bool            `json:"auto_transfer_pending"`
	AutoTransferScheduleAt *time.Time      `json:"auto_transfer_scheduled_at,omitempty"`
}

// MonitorStatus describes the monitor's run state
type MonitorStatus struct {
	Running         bool      `json:"running"`
	WalletCount     int       `json:"wallet_count"`
	StartedAt       time.Time `json:"started_at"`
	LastPollAt      time.Time `json:"last_poll_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	PollInterval    string    `json:"poll_interval"`
}

// DepositEvent is a balance increase above the dust threshold
type DepositEvent struct {
	ID              uuid.UUID       `json:"id"`
	Address         string          `json:"address"`
	OwnerUserID     int64           `json:"owner_user_id"`
	OwnerContact    string          `json:"owner_contact"`
	Watchers        int             `json:"watchers"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	Delta           decimal.Decimal `json:"delta"`
	DetectedAt      time.Time       `json:"detected_at"`
}

// TransferKind distinguishes timeout-driven sweeps from operator transfers
type TransferKind string

const (
	TransferKindAuto   TransferKind = "auto"
	TransferKindManual TransferKind = "manual"
)

// TransferResult is the outcome of an outgoing payment
type TransferResult struct {
	Kind        TransferKind    `json:"kind"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Signature   string          `json:"signature,omitempty"`
	Err         error           `json:"-"`
	InitiatedBy int64           `json:"initiated_by,omitempty"`
	OwnerEmail  string          `json:"owner_email,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Succeeded reports whether the payment went through
func (r *TransferResult) Succeeded() bool {
	return r.Err == nil && r.Signature != ""
}

// Status returns the metric label for the outcome
func (r *TransferResult) Status() string {
	if r.Succeeded() {
		return "success"
	}
	return "failed"
}

// LedgerTransaction is a signature entry from the address history
type LedgerTransaction struct {
	Signature string     `json:"signature"`
	Slot      uint64     `json:"slot"`
	BlockTime *time.Time `json:"block_time,omitempty"`
	Failed    bool       `json:"failed"`
}

// TransactionDetails enriches a deposit alert
type TransactionDetails struct {
	Signature   string          `json:"signature"`
	Fee         decimal.Decimal `json:"fee"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"`
	Type        string          `json:"type,omitempty"`
	Description string          `json:"description,omitempty"`
	Failed      bool            `json:"failed"`
}
