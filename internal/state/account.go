package state

import (
	"fmt"

	fpmath "LendLedger/internal/math"
	"LendLedger/internal/oracle"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// AccountData is a user's cross-reserve risk summary. Collateral and
// debt are wad base-currency values, the average factors are basis
// points, and the health factor is a ray.
type AccountData struct {
	TotalCollateral         *uint256.Int
	TotalDebt               *uint256.Int
	AvailableBorrows        *uint256.Int
	AvgLtv                  *uint256.Int
	AvgLiquidationThreshold *uint256.Int
	HealthFactor            *uint256.Int
}

// AccountCalculator values a user's positions across every reserve
// using oracle prices. Reserves and users are owned by the pool; the
// calculator only reads them.
type AccountCalculator struct {
	reserves map[string]*Reserve
	users    *UserRegistry
	oracle   oracle.PriceOracle
}

func NewAccountCalculator(reserves map[string]*Reserve, users *UserRegistry, o oracle.PriceOracle) *AccountCalculator {
	return &AccountCalculator{reserves: reserves, users: users, oracle: o}
}

// CalculateUserAccountData sums the user's collateral and debt in base
// currency and derives the weighted risk factors. A user with no debt
// has the maximum representable health factor.
func (ac *AccountCalculator) CalculateUserAccountData(user uuid.UUID, now uint64) (*AccountData, error) {
	totalCollateral := fpmath.Zero()
	totalDebt := fpmath.Zero()
	weightedLtv := fpmath.Zero()
	weightedThreshold := fpmath.Zero()

	uc := ac.users.Peek(user)

	for asset, reserve := range ac.reserves {
		collateralValue, debtValue, err := ac.valueUserReserve(user, reserve, uc, now)
		if err != nil {
			return nil, fmt.Errorf("valuing %s: %w", asset, err)
		}

		if !collateralValue.IsZero() {
			totalCollateral.Add(totalCollateral, collateralValue)

			ltvContrib := new(uint256.Int).Mul(collateralValue, uint256.NewInt(uint64(reserve.Config.LoanToValue)))
			weightedLtv.Add(weightedLtv, ltvContrib)

			thresholdContrib := new(uint256.Int).Mul(collateralValue, uint256.NewInt(uint64(reserve.Config.LiquidationThreshold)))
			weightedThreshold.Add(weightedThreshold, thresholdContrib)
		}
		totalDebt.Add(totalDebt, debtValue)
	}

	avgLtv := fpmath.Zero()
	avgThreshold := fpmath.Zero()
	if !totalCollateral.IsZero() {
		avgLtv.Div(weightedLtv, totalCollateral)
		avgThreshold.Div(weightedThreshold, totalCollateral)
	}

	hf, err := HealthFactor(totalCollateral, totalDebt, avgThreshold)
	if err != nil {
		return nil, err
	}

	borrowCapacity, err := fpmath.PercentMul(totalCollateral, avgLtv)
	if err != nil {
		return nil, err
	}
	available := fpmath.Zero()
	if borrowCapacity.Gt(totalDebt) {
		available.Sub(borrowCapacity, totalDebt)
	}

	return &AccountData{
		TotalCollateral:         totalCollateral,
		TotalDebt:               totalDebt,
		AvailableBorrows:        available,
		AvgLtv:                  avgLtv,
		AvgLiquidationThreshold: avgThreshold,
		HealthFactor:            hf,
	}, nil
}

// HealthFactor is percentMul(collateral, threshold) rayDiv debt, or the
// maximum value when debt is zero.
func HealthFactor(totalCollateral, totalDebt, avgThreshold *uint256.Int) (*uint256.Int, error) {
	if totalDebt.IsZero() {
		return fpmath.MaxUint256(), nil
	}
	adjusted, err := fpmath.PercentMul(totalCollateral, avgThreshold)
	if err != nil {
		return nil, err
	}
	return fpmath.RayDiv(adjusted, totalDebt)
}

// valueUserReserve prices one reserve's deposit-as-collateral and debt
// for the user, both in wad base currency.
func (ac *AccountCalculator) valueUserReserve(user uuid.UUID, reserve *Reserve, uc *UserConfig, now uint64) (*uint256.Int, *uint256.Int, error) {
	collateralValue := fpmath.Zero()
	debtValue := fpmath.Zero()

	scaledDeposit := reserve.DepositToken.ScaledBalanceOf(user)
	scaledVariable := reserve.VariableDebt.ScaledBalanceOf(user)
	stablePrincipal := reserve.StableDebt.PrincipalOf(user)
	if scaledDeposit.IsZero() && scaledVariable.IsZero() && stablePrincipal.IsZero() {
		return collateralValue, debtValue, nil
	}

	price, err := ac.oracle.GetAssetPrice(reserve.Asset)
	if err != nil {
		return nil, nil, err
	}

	useAsCollateral := reserve.Config.UsableAsCollateral && uc != nil && uc.UsingAsCollateral(reserve.Asset)
	if useAsCollateral && !scaledDeposit.IsZero() {
		income, err := reserve.NormalizedIncome(now)
		if err != nil {
			return nil, nil, err
		}
		balance, err := fpmath.RayMul(scaledDeposit, income)
		if err != nil {
			return nil, nil, err
		}
		collateralValue, err = BaseValue(balance, price, reserve.Config.Decimals)
		if err != nil {
			return nil, nil, err
		}
	}

	if !scaledVariable.IsZero() {
		debtIndex, err := reserve.NormalizedDebt(now)
		if err != nil {
			return nil, nil, err
		}
		balance, err := fpmath.RayMul(scaledVariable, debtIndex)
		if err != nil {
			return nil, nil, err
		}
		v, err := BaseValue(balance, price, reserve.Config.Decimals)
		if err != nil {
			return nil, nil, err
		}
		debtValue.Add(debtValue, v)
	}

	if !stablePrincipal.IsZero() {
		balance, err := reserve.StableDebt.BalanceOf(user, now)
		if err != nil {
			return nil, nil, err
		}
		v, err := BaseValue(balance, price, reserve.Config.Decimals)
		if err != nil {
			return nil, nil, err
		}
		debtValue.Add(debtValue, v)
	}

	return collateralValue, debtValue, nil
}

// BaseValue converts a native token amount to wad base currency:
// amount × price / 10^decimals.
func BaseValue(amount, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	unit := tenPow(decimals)
	product := new(uint256.Int)
	if _, overflow := product.MulOverflow(amount, price); overflow {
		return nil, fpmath.ErrOverflow
	}
	return product.Div(product, unit), nil
}

// NativeAmount is the inverse: wad base value × 10^decimals / price.
func NativeAmount(baseValue, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	if price.IsZero() {
		return nil, fpmath.ErrDivisionByZero
	}
	unit := tenPow(decimals)
	product := new(uint256.Int)
	if _, overflow := product.MulOverflow(baseValue, unit); overflow {
		return nil, fpmath.ErrOverflow
	}
	return product.Div(product, price), nil
}

func tenPow(decimals uint8) *uint256.Int {
	out := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < decimals; i++ {
		out.Mul(out, ten)
	}
	return out
}
