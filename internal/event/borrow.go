package event

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Borrow draws underlying from a reserve against the user's collateral.
type Borrow struct {
	BorrowID  uuid.UUID    `json:"borrow_id"`
	UserID    uuid.UUID    `json:"user_id"`
	Reserve   string       `json:"reserve"`
	Amount    *uint256.Int `json:"amount"`
	RateMode  int32        `json:"rate_mode"` // 1 = stable, 2 = variable
	Timestamp int64        `json:"timestamp"`
	Sequence  int64        `json:"sequence"`
}

func (b *Borrow) IdempotencyKey() string {
	return b.BorrowID.String()
}

func (b *Borrow) EventType() EventType {
	return EventTypeBorrow
}

func (b *Borrow) Asset() *string {
	return &b.Reserve
}

func (b *Borrow) SourceSequence() int64 {
	return b.Sequence
}

// Repay settles debt of the selected rate mode. Amount may be the
// max-uint sentinel to repay the full accrued debt.
type Repay struct {
	RepayID   uuid.UUID    `json:"repay_id"`
	UserID    uuid.UUID    `json:"user_id"`
	Reserve   string       `json:"reserve"`
	Amount    *uint256.Int `json:"amount"`
	RateMode  int32        `json:"rate_mode"`
	Timestamp int64        `json:"timestamp"`
	Sequence  int64        `json:"sequence"`
}

func (r *Repay) IdempotencyKey() string {
	return r.RepayID.String()
}

func (r *Repay) EventType() EventType {
	return EventTypeRepay
}

func (r *Repay) Asset() *string {
	return &r.Reserve
}

func (r *Repay) SourceSequence() int64 {
	return r.Sequence
}

// SwapRateMode moves the user's full debt in a reserve from one rate
// mode to the other. RateMode names the mode being swapped FROM.
type SwapRateMode struct {
	RequestID uuid.UUID `json:"request_id"`
	UserID    uuid.UUID `json:"user_id"`
	Reserve   string    `json:"reserve"`
	RateMode  int32     `json:"rate_mode"`
	Timestamp int64     `json:"timestamp"`
	Sequence  int64     `json:"sequence"`
}

func (s *SwapRateMode) IdempotencyKey() string {
	return s.RequestID.String()
}

func (s *SwapRateMode) EventType() EventType {
	return EventTypeSwapRateMode
}

func (s *SwapRateMode) Asset() *string {
	return &s.Reserve
}

func (s *SwapRateMode) SourceSequence() int64 {
	return s.Sequence
}

// RebalanceStableRate relocks a borrower's stable position at the
// current stable rate when the reserve meets the rebalance conditions.
type RebalanceStableRate struct {
	RequestID uuid.UUID `json:"request_id"`
	UserID    uuid.UUID `json:"user_id"` // the borrower being rebalanced
	Reserve   string    `json:"reserve"`
	Timestamp int64     `json:"timestamp"`
	Sequence  int64     `json:"sequence"`
}

func (r *RebalanceStableRate) IdempotencyKey() string {
	return fmt.Sprintf("rebalance:%s:%s", r.Reserve, r.RequestID)
}

func (r *RebalanceStableRate) EventType() EventType {
	return EventTypeRebalanceStableRate
}

func (r *RebalanceStableRate) Asset() *string {
	return &r.Reserve
}

func (r *RebalanceStableRate) SourceSequence() int64 {
	return r.Sequence
}

// SetCollateral toggles whether the user's deposit in a reserve counts
// as collateral.
type SetCollateral struct {
	RequestID       uuid.UUID `json:"request_id"`
	UserID          uuid.UUID `json:"user_id"`
	Reserve         string    `json:"reserve"`
	UseAsCollateral bool      `json:"use_as_collateral"`
	Timestamp       int64     `json:"timestamp"`
	Sequence        int64     `json:"sequence"`
}

func (s *SetCollateral) IdempotencyKey() string {
	return s.RequestID.String()
}

func (s *SetCollateral) EventType() EventType {
	return EventTypeSetCollateral
}

func (s *SetCollateral) Asset() *string {
	return &s.Reserve
}

func (s *SetCollateral) SourceSequence() int64 {
	return s.Sequence
}
