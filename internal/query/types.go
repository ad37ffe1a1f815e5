package query

import "github.com/google/uuid"

// Rates and indices are ray-scaled decimal strings; token amounts are
// decimal strings in native units. Every response carries the
// projection watermark (or live core sequence) it was read at.

// ReserveDataResponse is the current public view of one reserve.
type ReserveDataResponse struct {
	Reserve             string `json:"reserve"`
	LiquidityRate       string `json:"liquidity_rate"`
	StableBorrowRate    string `json:"stable_borrow_rate"`
	VariableBorrowRate  string `json:"variable_borrow_rate"`
	LiquidityIndex      string `json:"liquidity_index"`
	VariableBorrowIndex string `json:"variable_borrow_index"`
	AvailableLiquidity  string `json:"available_liquidity"`
	TotalStableDebt     string `json:"total_stable_debt"`
	TotalVariableDebt   string `json:"total_variable_debt"`
	LastSequence        int64  `json:"last_sequence"`
	UpdatedAt           int64  `json:"updated_at"`
	AsOfSequence        int64  `json:"as_of_sequence"`
}

// RateHistoryEntry is one point on a reserve's rate curve.
type RateHistoryEntry struct {
	Reserve             string `json:"reserve"`
	Sequence            int64  `json:"sequence"`
	LiquidityRate       string `json:"liquidity_rate"`
	StableBorrowRate    string `json:"stable_borrow_rate"`
	VariableBorrowRate  string `json:"variable_borrow_rate"`
	LiquidityIndex      string `json:"liquidity_index"`
	VariableBorrowIndex string `json:"variable_borrow_index"`
	Timestamp           int64  `json:"timestamp"`
	AsOfSequence        int64  `json:"as_of_sequence"`
}

// LiquidationRecord is one executed liquidation.
type LiquidationRecord struct {
	LiquidationID       uuid.UUID `json:"liquidation_id"`
	CollateralReserve   string    `json:"collateral_reserve"`
	DebtReserve         string    `json:"debt_reserve"`
	Borrower            uuid.UUID `json:"borrower"`
	Liquidator          uuid.UUID `json:"liquidator"`
	DebtCovered         string    `json:"debt_covered"`
	CollateralSeized    string    `json:"collateral_seized"`
	ReceiveDepositToken bool      `json:"receive_deposit_token"`
	Sequence            int64     `json:"sequence"`
	Timestamp           int64     `json:"timestamp"`
}

// UserCollateralEntry is the latest collateral toggle for one reserve.
type UserCollateralEntry struct {
	Reserve         string `json:"reserve"`
	UseAsCollateral bool   `json:"use_as_collateral"`
	LastSequence    int64  `json:"last_sequence"`
}

// JournalHistoryEntry is one double-entry journal row.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	EventSequence int64  `json:"event_sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        string `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// BalanceEntry is a projected ledger balance for one account and asset.
// Balances of rebasing assets are share-denominated.
type BalanceEntry struct {
	AccountPath  string `json:"account_path"`
	AssetID      uint16 `json:"asset_id"`
	Balance      string `json:"balance"`
	LastSequence int64  `json:"last_sequence"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// AccountDataResponse is a user's cross-reserve risk summary computed
// from live core state. Collateral and debt are wad base-currency
// values, the average factors are basis points, the health factor a ray.
type AccountDataResponse struct {
	UserID                  uuid.UUID `json:"user_id"`
	TotalCollateral         string    `json:"total_collateral"`
	TotalDebt               string    `json:"total_debt"`
	AvailableBorrows        string    `json:"available_borrows"`
	AvgLtv                  string    `json:"avg_ltv"`
	AvgLiquidationThreshold string    `json:"avg_liquidation_threshold"`
	HealthFactor            string    `json:"health_factor"`
	AsOfSequence            int64     `json:"as_of_sequence"`
}

// UserReserveDataResponse is a user's position in one reserve, with
// interest accrued to query time.
type UserReserveDataResponse struct {
	UserID           uuid.UUID `json:"user_id"`
	Reserve          string    `json:"reserve"`
	DepositBalance   string    `json:"deposit_balance"`
	UsedAsCollateral bool      `json:"used_as_collateral"`
	VariableDebt     string    `json:"variable_debt"`
	StableDebt       string    `json:"stable_debt"`
	StablePrincipal  string    `json:"stable_principal"`
	StableRate       string    `json:"stable_rate"`
	AsOfSequence     int64     `json:"as_of_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool             `json:"is_healthy"`
	HashChainBreaks  []int64          `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []AssetImbalance `json:"unbalanced_assets,omitempty"`
}

// AssetImbalance is an asset whose journal-projected balances do not
// sum to zero across all accounts, the external boundary included.
type AssetImbalance struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance string `json:"imbalance"`
}
