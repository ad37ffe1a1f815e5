package state

import (
	"errors"
	"fmt"

	fpmath "LendLedger/internal/math"
	"LendLedger/internal/rates"

	"github.com/holiman/uint256"
)

var (
	ErrIndexRegression = errors.New("state: reserve index regressed")
	ErrClockRegression = errors.New("state: timestamp before last accrual")
)

// Reserve holds the full accounting state of one listed asset: the two
// monotone interest indices, the current annual rates, and the three
// token books (deposits, variable debt, stable debt).
//
// Indices and rates are rays. Amounts are native token units.
type Reserve struct {
	Asset   string
	AssetID uint16
	Config  ReserveConfig

	Strategy *rates.Strategy

	LiquidityIndex      *uint256.Int
	VariableBorrowIndex *uint256.Int

	CurrentLiquidityRate      *uint256.Int
	CurrentVariableBorrowRate *uint256.Int
	CurrentStableBorrowRate   *uint256.Int

	LastUpdateTimestamp uint64

	DepositToken *DepositToken
	VariableDebt *VariableDebtToken
	StableDebt   *StableDebtToken
}

// NewReserve lists an asset with both indices at one ray and all rates
// at zero. Rates converge to the strategy curve on the first operation.
func NewReserve(asset string, assetID uint16, cfg ReserveConfig, strategy *rates.Strategy, now uint64) *Reserve {
	return &Reserve{
		Asset:                     asset,
		AssetID:                   assetID,
		Config:                    cfg,
		Strategy:                  strategy,
		LiquidityIndex:            fpmath.Ray(),
		VariableBorrowIndex:       fpmath.Ray(),
		CurrentLiquidityRate:      fpmath.Zero(),
		CurrentVariableBorrowRate: fpmath.Zero(),
		CurrentStableBorrowRate:   fpmath.Zero(),
		LastUpdateTimestamp:       now,
		DepositToken:              NewDepositToken(),
		VariableDebt:              NewVariableDebtToken(),
		StableDebt:                NewStableDebtToken(),
	}
}

// UpdateState accrues interest from LastUpdateTimestamp to now: the
// liquidity index grows linearly at the liquidity rate, the variable
// borrow index grows compounded at the variable borrow rate, and the
// reserve factor share of the newly accrued debt is minted to the
// treasury as scaled deposit tokens. Idempotent when now equals the
// last update. Must run before any balance mutation in an operation.
func (r *Reserve) UpdateState(now uint64) error {
	if now < r.LastUpdateTimestamp {
		return fmt.Errorf("%w: %s now=%d last=%d", ErrClockRegression, r.Asset, now, r.LastUpdateTimestamp)
	}
	if now == r.LastUpdateTimestamp {
		return nil
	}

	prevVariableDebt, err := r.VariableDebt.TotalSupply(r.VariableBorrowIndex)
	if err != nil {
		return err
	}
	prevStableDebt, _, err := r.StableDebt.Totals(now)
	if err != nil {
		return err
	}

	if !r.CurrentLiquidityRate.IsZero() {
		linear, err := fpmath.CalculateLinearInterest(r.CurrentLiquidityRate, r.LastUpdateTimestamp, now)
		if err != nil {
			return err
		}
		newIndex, err := fpmath.RayMul(linear, r.LiquidityIndex)
		if err != nil {
			return err
		}
		if newIndex.Lt(r.LiquidityIndex) {
			return fmt.Errorf("%w: liquidity index for %s", ErrIndexRegression, r.Asset)
		}
		r.LiquidityIndex = newIndex
	}

	if !r.VariableDebt.ScaledTotalSupply().IsZero() {
		compounded, err := fpmath.CalculateCompoundedInterest(r.CurrentVariableBorrowRate, r.LastUpdateTimestamp, now)
		if err != nil {
			return err
		}
		newIndex, err := fpmath.RayMul(compounded, r.VariableBorrowIndex)
		if err != nil {
			return err
		}
		if newIndex.Lt(r.VariableBorrowIndex) {
			return fmt.Errorf("%w: variable borrow index for %s", ErrIndexRegression, r.Asset)
		}
		r.VariableBorrowIndex = newIndex
	}

	r.LastUpdateTimestamp = now

	return r.mintToTreasury(prevVariableDebt, prevStableDebt, now)
}

// mintToTreasury skims ReserveFactor basis points of the debt accrued
// since the previous update and credits it to the treasury at the new
// liquidity index. Depositors receive the remainder through the index.
func (r *Reserve) mintToTreasury(prevVariableDebt, prevStableDebt *uint256.Int, now uint64) error {
	if r.Config.ReserveFactor == 0 {
		return nil
	}

	curVariableDebt, err := r.VariableDebt.TotalSupply(r.VariableBorrowIndex)
	if err != nil {
		return err
	}
	curStableDebt, _, err := r.StableDebt.Totals(now)
	if err != nil {
		return err
	}

	prevTotal := new(uint256.Int).Add(prevVariableDebt, prevStableDebt)
	curTotal := new(uint256.Int).Add(curVariableDebt, curStableDebt)
	if !curTotal.Gt(prevTotal) {
		return nil
	}

	accrued := new(uint256.Int).Sub(curTotal, prevTotal)
	factor := uint256.NewInt(uint64(r.Config.ReserveFactor))
	share, err := fpmath.PercentMul(accrued, factor)
	if err != nil {
		return err
	}
	if share.IsZero() {
		return nil
	}

	if _, err := r.DepositToken.Mint(TreasuryID, share, r.LiquidityIndex); err != nil {
		if errors.Is(err, ErrInvalidMintAmount) {
			return nil
		}
		return err
	}
	return nil
}

// UpdateInterestRates recomputes the reserve's rates from the strategy
// curve. availableLiquidity is the pool's underlying balance after the
// operation's transfers; liquidityAdded/Taken adjust for transfers the
// caller has not applied to the pool account yet.
func (r *Reserve) UpdateInterestRates(availableLiquidity, liquidityAdded, liquidityTaken *uint256.Int, now uint64) error {
	totalStableDebt, avgStableRate, err := r.StableDebt.Totals(now)
	if err != nil {
		return err
	}
	totalVariableDebt, err := r.VariableDebt.TotalSupply(r.VariableBorrowIndex)
	if err != nil {
		return err
	}

	avail := new(uint256.Int).Add(availableLiquidity, liquidityAdded)
	if avail.Lt(liquidityTaken) {
		return fmt.Errorf("state: liquidity taken exceeds available for %s", r.Asset)
	}
	avail.Sub(avail, liquidityTaken)

	factor := uint256.NewInt(uint64(r.Config.ReserveFactor))
	out, err := r.Strategy.CalculateInterestRates(avail, totalStableDebt, totalVariableDebt, avgStableRate, factor)
	if err != nil {
		return err
	}

	r.CurrentLiquidityRate = out.LiquidityRate
	r.CurrentStableBorrowRate = out.StableBorrowRate
	r.CurrentVariableBorrowRate = out.VariableBorrowRate
	return nil
}

// CumulateToLiquidityIndex folds a directly received amount (flash
// loan premium) into the liquidity index so every depositor's balance
// grows pro rata. totalLiquidity is the nominal deposit supply before
// the premium lands.
func (r *Reserve) CumulateToLiquidityIndex(totalLiquidity, amount *uint256.Int) error {
	if totalLiquidity.IsZero() {
		return nil
	}
	amountRay, err := fpmath.WadToRay(amount)
	if err != nil {
		return err
	}
	totalRay, err := fpmath.WadToRay(totalLiquidity)
	if err != nil {
		return err
	}
	ratio, err := fpmath.RayDiv(amountRay, totalRay)
	if err != nil {
		return err
	}
	ratio.Add(ratio, fpmath.Ray())
	newIndex, err := fpmath.RayMul(ratio, r.LiquidityIndex)
	if err != nil {
		return err
	}
	r.LiquidityIndex = newIndex
	return nil
}

// NormalizedIncome is the liquidity index projected to now without
// mutating state. Read path for balance queries between accruals.
func (r *Reserve) NormalizedIncome(now uint64) (*uint256.Int, error) {
	if now == r.LastUpdateTimestamp || r.CurrentLiquidityRate.IsZero() {
		return new(uint256.Int).Set(r.LiquidityIndex), nil
	}
	linear, err := fpmath.CalculateLinearInterest(r.CurrentLiquidityRate, r.LastUpdateTimestamp, now)
	if err != nil {
		return nil, err
	}
	return fpmath.RayMul(linear, r.LiquidityIndex)
}

// NormalizedDebt is the variable borrow index projected to now without
// mutating state.
func (r *Reserve) NormalizedDebt(now uint64) (*uint256.Int, error) {
	if now == r.LastUpdateTimestamp || r.CurrentVariableBorrowRate.IsZero() {
		return new(uint256.Int).Set(r.VariableBorrowIndex), nil
	}
	compounded, err := fpmath.CalculateCompoundedInterest(r.CurrentVariableBorrowRate, r.LastUpdateTimestamp, now)
	if err != nil {
		return nil, err
	}
	return fpmath.RayMul(compounded, r.VariableBorrowIndex)
}
