package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// LiquidationCall repays part of an unhealthy borrower's debt and
// seizes collateral at a bonus. Partitioned on the debt reserve.
type LiquidationCall struct {
	LiquidationID       uuid.UUID    `json:"liquidation_id"`
	CollateralReserve   string       `json:"collateral_reserve"`
	DebtReserve         string       `json:"debt_reserve"`
	Borrower            uuid.UUID    `json:"borrower"`
	Liquidator          uuid.UUID    `json:"liquidator"`
	DebtToCover         *uint256.Int `json:"debt_to_cover"`
	ReceiveDepositToken bool         `json:"receive_deposit_token"`
	Timestamp           int64        `json:"timestamp"`
	Sequence            int64        `json:"sequence"`
}

func (l *LiquidationCall) IdempotencyKey() string {
	return l.LiquidationID.String()
}

func (l *LiquidationCall) EventType() EventType {
	return EventTypeLiquidationCall
}

func (l *LiquidationCall) Asset() *string {
	return &l.DebtReserve
}

func (l *LiquidationCall) SourceSequence() int64 {
	return l.Sequence
}
