package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDeposit
	EventTypeWithdraw
	EventTypeBorrow
	EventTypeRepay
	EventTypeSwapRateMode
	EventTypeRebalanceStableRate
	EventTypeSetCollateral
	EventTypeLiquidationCall
	EventTypeFlashLoan
	EventTypePriceUpdate
	EventTypeReserveInit
	EventTypeReserveConfigUpdate
	EventTypeRebaseUnderlying
	EventTypeSetPause
	EventTypeReserveDataUpdated
	EventTypeLiquidationExecuted
)

// Rate mode selectors carried on borrow-side events.
// Values match the wire protocol: 1 = stable, 2 = variable.
const (
	RateModeNone     int32 = 0
	RateModeStable   int32 = 1
	RateModeVariable int32 = 2
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Reserve context (nullable for global events)
	Asset *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Asset returns the reserve context (nil for global events)
	Asset() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeWithdraw:
		return "Withdraw"
	case EventTypeBorrow:
		return "Borrow"
	case EventTypeRepay:
		return "Repay"
	case EventTypeSwapRateMode:
		return "SwapRateMode"
	case EventTypeRebalanceStableRate:
		return "RebalanceStableRate"
	case EventTypeSetCollateral:
		return "SetCollateral"
	case EventTypeLiquidationCall:
		return "LiquidationCall"
	case EventTypeFlashLoan:
		return "FlashLoan"
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeReserveInit:
		return "ReserveInit"
	case EventTypeReserveConfigUpdate:
		return "ReserveConfigUpdate"
	case EventTypeRebaseUnderlying:
		return "RebaseUnderlying"
	case EventTypeSetPause:
		return "SetPause"
	case EventTypeReserveDataUpdated:
		return "ReserveDataUpdated"
	case EventTypeLiquidationExecuted:
		return "LiquidationExecuted"
	default:
		return "Unknown"
	}
}
