package pool

import (
	"fmt"

	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// LiquidationResult reports what a settled liquidation actually moved,
// after the close-factor and collateral-balance caps.
type LiquidationResult struct {
	CollateralAsset      string
	DebtAsset            string
	Borrower             uuid.UUID
	Liquidator           uuid.UUID
	DebtCovered          *uint256.Int
	CollateralLiquidated *uint256.Int
	ReceivedDepositToken bool
	HealthFactorBefore   *uint256.Int
}

// LiquidationCall lets a liquidator repay part of an unhealthy
// borrower's debt in exchange for the borrower's collateral plus the
// liquidation bonus. Debt covered is capped at the policy close factor
// of the borrower's debt in that asset; the collateral seized is capped
// at the borrower's balance, shrinking the debt covered to match.
func (p *Pool) LiquidationCall(
	collateralAsset, debtAsset string,
	borrower, liquidator uuid.UUID,
	debtToCover *uint256.Int,
	receiveDepositToken bool,
	now uint64,
) (*LiquidationResult, error) {
	if p.paused {
		return nil, ErrPaused
	}
	collateralReserve, err := p.requireReserve(collateralAsset)
	if err != nil {
		return nil, err
	}
	debtReserve, err := p.requireReserve(debtAsset)
	if err != nil {
		return nil, err
	}
	if !collateralReserve.Config.Active || !debtReserve.Config.Active {
		return nil, ErrReserveInactive
	}
	if debtToCover.IsZero() {
		return nil, ErrInvalidAmount
	}

	bk := p.backup(collateralAsset, debtAsset)
	p.settleDepositRewards(collateralReserve, now, borrower, liquidator)

	if err := collateralReserve.UpdateState(now); err != nil {
		return nil, p.fail(bk, err)
	}
	if debtReserve != collateralReserve {
		if err := debtReserve.UpdateState(now); err != nil {
			return nil, p.fail(bk, err)
		}
	}

	data, err := p.AccountData(borrower, now)
	if err != nil {
		return nil, p.fail(bk, err)
	}
	if !data.HealthFactor.Lt(fpmath.Ray()) {
		return nil, p.fail(bk, fmt.Errorf("%w: health factor %s", ErrHealthFactorNotBelowThreshold, data.HealthFactor.Dec()))
	}

	variableDebt, err := debtReserve.VariableDebt.BalanceOf(borrower, debtReserve.VariableBorrowIndex)
	if err != nil {
		return nil, p.fail(bk, err)
	}
	stableDebt, err := debtReserve.StableDebt.BalanceOf(borrower, now)
	if err != nil {
		return nil, p.fail(bk, err)
	}
	totalDebt := new(uint256.Int).Add(variableDebt, stableDebt)
	if totalDebt.IsZero() {
		return nil, p.fail(bk, ErrUserDidNotBorrowSpecifiedAsset)
	}

	uc := p.users.Peek(borrower)
	collateralBalance, err := collateralReserve.DepositToken.BalanceOf(borrower, collateralReserve.LiquidityIndex)
	if err != nil {
		return nil, p.fail(bk, err)
	}
	usable := collateralReserve.Config.UsableAsCollateral &&
		uc != nil && uc.UsingAsCollateral(collateralAsset) &&
		!collateralBalance.IsZero()
	if !usable {
		return nil, p.fail(bk, ErrCollateralCannotBeLiquidated)
	}

	// Close factor caps how much of the debt one call may cover.
	maxCoverable, err := fpmath.PercentMul(totalDebt, uint256.NewInt(uint64(p.policy.CloseFactor)))
	if err != nil {
		return nil, p.fail(bk, err)
	}
	actualDebt := new(uint256.Int).Set(debtToCover)
	if actualDebt.Gt(maxCoverable) {
		actualDebt.Set(maxCoverable)
	}

	actualDebt, collateralAmount, err := p.collateralForDebt(collateralReserve, debtReserve, actualDebt, collateralBalance)
	if err != nil {
		return nil, p.fail(bk, err)
	}

	// Variable debt burns first, stable covers the remainder.
	remaining := new(uint256.Int).Set(actualDebt)
	if !variableDebt.IsZero() && !remaining.IsZero() {
		burn := new(uint256.Int).Set(remaining)
		if burn.Gt(variableDebt) {
			burn.Set(variableDebt)
		}
		if _, err := debtReserve.VariableDebt.Burn(borrower, burn, debtReserve.VariableBorrowIndex); err != nil {
			return nil, p.fail(bk, err)
		}
		remaining.Sub(remaining, burn)
	}
	if !remaining.IsZero() {
		if _, err := debtReserve.StableDebt.Burn(borrower, remaining, now); err != nil {
			return nil, p.fail(bk, err)
		}
	}

	if receiveDepositToken {
		res, err := collateralReserve.DepositToken.Transfer(borrower, liquidator, collateralAmount, collateralReserve.LiquidityIndex)
		if err != nil {
			return nil, p.fail(bk, err)
		}
		if res.SenderDrained {
			p.users.Get(borrower).SetUsingAsCollateral(collateralAsset, false)
		}
		if res.FirstForTarget && collateralReserve.Config.UsableAsCollateral {
			p.users.Get(liquidator).SetUsingAsCollateral(collateralAsset, true)
		}
	} else {
		available := p.AvailableLiquidity(collateralAsset)
		if collateralAmount.Gt(available) {
			return nil, p.fail(bk, fmt.Errorf("%w: collateral payout %s exceeds available %s", ErrInsufficientLiquidity, collateralAmount.Dec(), available.Dec()))
		}
		drained, err := collateralReserve.DepositToken.Burn(borrower, collateralAmount, collateralReserve.LiquidityIndex)
		if err != nil {
			return nil, p.fail(bk, err)
		}
		if drained {
			p.users.Get(borrower).SetUsingAsCollateral(collateralAsset, false)
		}
		if err := p.book.Transfer(p.poolKey(collateralReserve), p.walletKey(collateralReserve, liquidator), collateralAmount); err != nil {
			return nil, p.fail(bk, err)
		}
	}

	// The liquidator's repayment lands in the debt reserve.
	if err := p.book.Issue(p.poolKey(debtReserve), actualDebt); err != nil {
		return nil, p.fail(bk, err)
	}

	if err := p.refreshRates(debtReserve, now); err != nil {
		return nil, p.fail(bk, err)
	}
	if debtReserve != collateralReserve {
		if err := p.refreshRates(collateralReserve, now); err != nil {
			return nil, p.fail(bk, err)
		}
	}

	p.log.Info().
		Str("collateral_asset", collateralAsset).
		Str("debt_asset", debtAsset).
		Str("borrower", borrower.String()).
		Str("liquidator", liquidator.String()).
		Str("debt_covered", actualDebt.Dec()).
		Str("collateral_liquidated", collateralAmount.Dec()).
		Str("health_factor", data.HealthFactor.Dec()).
		Msg("liquidation executed")

	return &LiquidationResult{
		CollateralAsset:      collateralAsset,
		DebtAsset:            debtAsset,
		Borrower:             borrower,
		Liquidator:           liquidator,
		DebtCovered:          actualDebt,
		CollateralLiquidated: collateralAmount,
		ReceivedDepositToken: receiveDepositToken,
		HealthFactorBefore:   data.HealthFactor,
	}, nil
}

// collateralForDebt prices debtAmount of the debt asset into collateral
// units with the liquidation bonus applied. When the borrower's
// collateral cannot cover it, the pair is re-derived from the full
// collateral balance instead.
func (p *Pool) collateralForDebt(
	collateralReserve, debtReserve *state.Reserve,
	debtAmount, collateralBalance *uint256.Int,
) (*uint256.Int, *uint256.Int, error) {
	collateralPrice, err := p.prices.GetAssetPrice(collateralReserve.Asset)
	if err != nil {
		return nil, nil, err
	}
	debtPrice, err := p.prices.GetAssetPrice(debtReserve.Asset)
	if err != nil {
		return nil, nil, err
	}
	bonus := uint256.NewInt(uint64(collateralReserve.Config.LiquidationBonus))

	debtBase, err := state.BaseValue(debtAmount, debtPrice, debtReserve.Config.Decimals)
	if err != nil {
		return nil, nil, err
	}
	seizedBase, err := fpmath.PercentMul(debtBase, bonus)
	if err != nil {
		return nil, nil, err
	}
	collateralAmount, err := state.NativeAmount(seizedBase, collateralPrice, collateralReserve.Config.Decimals)
	if err != nil {
		return nil, nil, err
	}

	if !collateralAmount.Gt(collateralBalance) {
		return debtAmount, collateralAmount, nil
	}

	// Cap at the full collateral balance and shrink the debt covered.
	collateralBase, err := state.BaseValue(collateralBalance, collateralPrice, collateralReserve.Config.Decimals)
	if err != nil {
		return nil, nil, err
	}
	coveredBase, err := fpmath.PercentDiv(collateralBase, bonus)
	if err != nil {
		return nil, nil, err
	}
	covered, err := state.NativeAmount(coveredBase, debtPrice, debtReserve.Config.Decimals)
	if err != nil {
		return nil, nil, err
	}
	return covered, new(uint256.Int).Set(collateralBalance), nil
}
