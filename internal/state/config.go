package state

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ReserveConfig holds the risk and behavior parameters of one reserve.
// Percentage fields are basis points (scale 10_000).
type ReserveConfig struct {
	Decimals             uint8 `json:"decimals"`
	LoanToValue          int64 `json:"loan_to_value"`         // max borrow power of collateral, e.g. 7500 = 75%
	LiquidationThreshold int64 `json:"liquidation_threshold"` // collateral counted for health factor, e.g. 8000
	LiquidationBonus     int64 `json:"liquidation_bonus"`     // collateral premium paid to liquidators, e.g. 10500 = 105%
	ReserveFactor        int64 `json:"reserve_factor"`        // interest share routed to treasury, e.g. 1000 = 10%

	Active              bool `json:"active"`
	Frozen              bool `json:"frozen"`
	BorrowingEnabled    bool `json:"borrowing_enabled"`
	StableBorrowEnabled bool `json:"stable_borrow_enabled"`
	UsableAsCollateral  bool `json:"usable_as_collateral"`
}

// ValidateReserveConfig checks parameter ranges at init/config time.
func ValidateReserveConfig(cfg ReserveConfig) error {
	if cfg.LoanToValue < 0 || cfg.LoanToValue > 10_000 {
		return fmt.Errorf("ltv out of range: %d", cfg.LoanToValue)
	}
	if cfg.LiquidationThreshold < cfg.LoanToValue {
		return fmt.Errorf("liquidation threshold (%d) below ltv (%d)", cfg.LiquidationThreshold, cfg.LoanToValue)
	}
	if cfg.LiquidationThreshold > 10_000 {
		return fmt.Errorf("liquidation threshold out of range: %d", cfg.LiquidationThreshold)
	}
	if cfg.UsableAsCollateral && cfg.LiquidationBonus <= 10_000 {
		return fmt.Errorf("liquidation bonus must exceed 10000, got %d", cfg.LiquidationBonus)
	}
	if cfg.ReserveFactor < 0 || cfg.ReserveFactor >= 10_000 {
		return fmt.Errorf("reserve factor out of range: %d", cfg.ReserveFactor)
	}
	return nil
}

// PolicyConfig holds deployment-level policy constants. These vary by
// deployment and are configuration inputs, never hardcoded in the engine.
type PolicyConfig struct {
	// CloseFactor caps how much of a borrower's debt one liquidation
	// may cover, in bps of the debt in that asset (default 5000 = 50%).
	CloseFactor int64

	// FlashLoanPremium is the flash-loan fee in bps (default 9 = 0.09%).
	FlashLoanPremium int64

	// RebalanceUtilizationThreshold: stable rebalancing is only allowed
	// when utilization is at or above this ray fraction (e.g. 0.95 ray).
	RebalanceUtilizationThreshold *uint256.Int

	// RebalanceLiquidityRateThreshold: and the liquidity rate is below
	// this bps fraction of the max variable rate (e.g. 4000 = 40%).
	RebalanceLiquidityRateThreshold int64
}

// DefaultPolicy mirrors the reference deployment's constants.
func DefaultPolicy() PolicyConfig {
	u, _ := uint256.FromDecimal("950000000000000000000000000") // 0.95 ray
	return PolicyConfig{
		CloseFactor:                     5_000,
		FlashLoanPremium:                9,
		RebalanceUtilizationThreshold:   u,
		RebalanceLiquidityRateThreshold: 4_000,
	}
}
