package event

import (
	"LendLedger/internal/rates"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ReserveInit lists a new reserve with its risk configuration and rate
// strategy.
type ReserveInit struct {
	RequestID uuid.UUID            `json:"request_id"`
	Reserve   string               `json:"reserve"`
	Rebasing  bool                 `json:"rebasing"` // underlying balances grow in place (e.g. stETH)
	Config    state.ReserveConfig  `json:"config"`
	Strategy  rates.StrategyConfig `json:"strategy"`
	Timestamp int64                `json:"timestamp"`
	Sequence  int64                `json:"sequence"`
}

func (r *ReserveInit) IdempotencyKey() string {
	return r.RequestID.String()
}

func (r *ReserveInit) EventType() EventType {
	return EventTypeReserveInit
}

func (r *ReserveInit) Asset() *string {
	return &r.Reserve
}

func (r *ReserveInit) SourceSequence() int64 {
	return r.Sequence
}

// ReserveConfigUpdate replaces the risk configuration of a listed reserve.
type ReserveConfigUpdate struct {
	RequestID uuid.UUID           `json:"request_id"`
	Reserve   string              `json:"reserve"`
	Config    state.ReserveConfig `json:"config"`
	Timestamp int64               `json:"timestamp"`
	Sequence  int64               `json:"sequence"`
}

func (r *ReserveConfigUpdate) IdempotencyKey() string {
	return r.RequestID.String()
}

func (r *ReserveConfigUpdate) EventType() EventType {
	return EventTypeReserveConfigUpdate
}

func (r *ReserveConfigUpdate) Asset() *string {
	return &r.Reserve
}

func (r *ReserveConfigUpdate) SourceSequence() int64 {
	return r.Sequence
}

// RebaseUnderlying applies an external balance rebase (e.g. a staking
// yield distribution) to a rebasing underlying.
type RebaseUnderlying struct {
	RebaseID  uuid.UUID    `json:"rebase_id"`
	Reserve   string       `json:"reserve"`
	Factor    *uint256.Int `json:"factor"` // ray multiplier applied to all holder balances
	Timestamp int64        `json:"timestamp"`
	Sequence  int64        `json:"sequence"`
}

func (r *RebaseUnderlying) IdempotencyKey() string {
	return r.RebaseID.String()
}

func (r *RebaseUnderlying) EventType() EventType {
	return EventTypeRebaseUnderlying
}

func (r *RebaseUnderlying) Asset() *string {
	return &r.Reserve
}

func (r *RebaseUnderlying) SourceSequence() int64 {
	return r.Sequence
}

// SetPause halts or resumes all user-facing pool operations.
type SetPause struct {
	RequestID uuid.UUID `json:"request_id"`
	Paused    bool      `json:"paused"`
	Timestamp int64     `json:"timestamp"`
	Sequence  int64     `json:"sequence"`
}

func (s *SetPause) IdempotencyKey() string {
	return s.RequestID.String()
}

func (s *SetPause) EventType() EventType {
	return EventTypeSetPause
}

func (s *SetPause) Asset() *string {
	return nil // global event
}

func (s *SetPause) SourceSequence() int64 {
	return s.Sequence
}
