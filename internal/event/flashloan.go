package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// FlashLoan records an atomic borrow-and-repay of reserve liquidity.
// By the time the event reaches the core the principal plus premium
// has already been returned upstream; the core re-executes the cycle
// to accrue the premium to depositors.
type FlashLoan struct {
	LoanID    uuid.UUID    `json:"loan_id"`
	Initiator uuid.UUID    `json:"initiator"`
	Reserve   string       `json:"reserve"`
	Amount    *uint256.Int `json:"amount"`
	Timestamp int64        `json:"timestamp"`
	Sequence  int64        `json:"sequence"`
}

func (f *FlashLoan) IdempotencyKey() string {
	return f.LoanID.String()
}

func (f *FlashLoan) EventType() EventType {
	return EventTypeFlashLoan
}

func (f *FlashLoan) Asset() *string {
	return &f.Reserve
}

func (f *FlashLoan) SourceSequence() int64 {
	return f.Sequence
}
