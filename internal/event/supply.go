package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Deposit supplies underlying to a reserve and mints deposit tokens.
type Deposit struct {
	DepositID uuid.UUID    `json:"deposit_id"`
	UserID    uuid.UUID    `json:"user_id"`
	Reserve   string       `json:"reserve"`
	Amount    *uint256.Int `json:"amount"` // native units of the underlying
	Timestamp int64        `json:"timestamp"` // epoch seconds (versioned input)
	Sequence  int64        `json:"sequence"`
}

func (d *Deposit) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *Deposit) EventType() EventType {
	return EventTypeDeposit
}

func (d *Deposit) Asset() *string {
	return &d.Reserve
}

func (d *Deposit) SourceSequence() int64 {
	return d.Sequence
}

// Withdraw redeems deposit tokens for underlying. Amount may be the
// max-uint sentinel to withdraw the full balance.
type Withdraw struct {
	WithdrawalID uuid.UUID    `json:"withdrawal_id"`
	UserID       uuid.UUID    `json:"user_id"`
	Reserve      string       `json:"reserve"`
	Amount       *uint256.Int `json:"amount"`
	Timestamp    int64        `json:"timestamp"`
	Sequence     int64        `json:"sequence"`
}

func (w *Withdraw) IdempotencyKey() string {
	return w.WithdrawalID.String()
}

func (w *Withdraw) EventType() EventType {
	return EventTypeWithdraw
}

func (w *Withdraw) Asset() *string {
	return &w.Reserve
}

func (w *Withdraw) SourceSequence() int64 {
	return w.Sequence
}
