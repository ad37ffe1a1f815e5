package pool

import "errors"

// Validation errors reject before any state mutation.
var (
	ErrReserveNotFound       = errors.New("pool: reserve not listed")
	ErrReserveAlreadyListed  = errors.New("pool: reserve already listed")
	ErrReserveInactive       = errors.New("pool: reserve inactive")
	ErrReserveFrozen         = errors.New("pool: reserve frozen")
	ErrPaused                = errors.New("pool: protocol paused")
	ErrInvalidAmount         = errors.New("pool: amount must be positive")
	ErrInvalidRateMode       = errors.New("pool: invalid interest rate mode")
	ErrBorrowingDisabled     = errors.New("pool: borrowing disabled on reserve")
	ErrStableBorrowDisabled  = errors.New("pool: stable borrowing disabled on reserve")
	ErrCollateralRequired    = errors.New("pool: collateral balance is zero")
	ErrDepositRequired       = errors.New("pool: no deposit balance in reserve")
)

// Solvency errors reject after validation; the operation rolls back.
var (
	ErrInsufficientLiquidity = errors.New("pool: insufficient available liquidity")
	ErrHealthFactorTooLow    = errors.New("pool: health factor below threshold")
	ErrDebtOverpayment       = errors.New("pool: repay exceeds outstanding debt")
	ErrNoDebtOfSelectedType  = errors.New("pool: no debt of the selected rate mode")
)

// Liquidation-policy errors reject the liquidation attempt outright.
var (
	ErrHealthFactorNotBelowThreshold = errors.New("pool: health factor not below liquidation threshold")
	ErrCollateralCannotBeLiquidated  = errors.New("pool: collateral not usable for liquidation")
	ErrUserDidNotBorrowSpecifiedAsset = errors.New("pool: user has no debt in specified asset")
	ErrRebalanceConditionsNotMet     = errors.New("pool: stable rate rebalance conditions not met")
)

// Flash-loan errors revert the whole operation including the transient
// transfer.
var (
	ErrFlashLoanNotRepaid           = errors.New("pool: flash loan not repaid with premium")
	ErrLoanTooSmall                 = errors.New("pool: flash loan premium rounds to zero")
	ErrInconsistentProtocolBalance  = errors.New("pool: protocol balance inconsistent after flash loan")
)
