package event

import "github.com/google/uuid"

// Outbound payloads derived by the core. They are not ingested events;
// the core serializes them into envelope payloads for downstream
// consumers (projections and the NATS publisher). Numeric fields are
// decimal strings so consumers never lose precision.

// ReserveDataUpdated snapshots a reserve's indices and rates after any
// operation that touched them.
type ReserveDataUpdated struct {
	Reserve             string `json:"reserve"`
	LiquidityRate       string `json:"liquidity_rate"`
	StableBorrowRate    string `json:"stable_borrow_rate"`
	VariableBorrowRate  string `json:"variable_borrow_rate"`
	LiquidityIndex      string `json:"liquidity_index"`
	VariableBorrowIndex string `json:"variable_borrow_index"`
	AvailableLiquidity  string `json:"available_liquidity"`
	TotalStableDebt     string `json:"total_stable_debt"`
	TotalVariableDebt   string `json:"total_variable_debt"`
	Timestamp           int64  `json:"timestamp"`
}

// LiquidationExecuted reports the outcome of a liquidation call.
type LiquidationExecuted struct {
	LiquidationID       uuid.UUID `json:"liquidation_id"`
	CollateralReserve   string    `json:"collateral_reserve"`
	DebtReserve         string    `json:"debt_reserve"`
	Borrower            uuid.UUID `json:"borrower"`
	Liquidator          uuid.UUID `json:"liquidator"`
	DebtCovered         string    `json:"debt_covered"`
	CollateralSeized    string    `json:"collateral_seized"`
	ReceiveDepositToken bool      `json:"receive_deposit_token"`
	Timestamp           int64     `json:"timestamp"`
}
