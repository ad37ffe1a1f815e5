package rates

import (
	fpmath "LendLedger/internal/math"

	"github.com/holiman/uint256"
)

// StrategyConfig holds the two-slope rate curve parameters for one reserve.
// All rate fields are rays (per-year nominal), utilization fields are rays.
type StrategyConfig struct {
	OptimalUtilization *uint256.Int `json:"optimal_utilization"` // kink point, e.g. 0.8 ray
	BaseVariableRate   *uint256.Int `json:"base_variable_rate"`  // variable rate at zero utilization
	VariableSlope1     *uint256.Int `json:"variable_slope1"`     // variable slope below the kink
	VariableSlope2     *uint256.Int `json:"variable_slope2"`     // variable slope above the kink
	StableSlope1       *uint256.Int `json:"stable_slope1"`       // stable slope below the kink
	StableSlope2       *uint256.Int `json:"stable_slope2"`       // stable slope above the kink
	MarketStableRate   *uint256.Int `json:"market_stable_rate"`  // base stable coupon at zero utilization
}

// Rates is the output of one strategy evaluation.
type Rates struct {
	LiquidityRate      *uint256.Int
	StableBorrowRate   *uint256.Int
	VariableBorrowRate *uint256.Int
	Utilization        *uint256.Int
}

// Strategy computes interest rates from a reserve's debt composition.
// Pure and deterministic: the same inputs always produce the same rates.
type Strategy struct {
	cfg StrategyConfig

	// excessUtilizationRate = 1 - optimal, precomputed
	excessUtilization *uint256.Int
}

func NewStrategy(cfg StrategyConfig) *Strategy {
	return &Strategy{
		cfg:               cfg,
		excessUtilization: new(uint256.Int).Sub(fpmath.RAY, cfg.OptimalUtilization),
	}
}

// Config returns the curve parameters the strategy was built with.
func (s *Strategy) Config() StrategyConfig { return s.cfg }

// MaxVariableBorrowRate is the variable rate at full utilization,
// base + slope1 + slope2. Rebalance eligibility is judged against it.
func (s *Strategy) MaxVariableBorrowRate() *uint256.Int {
	out := new(uint256.Int).Add(s.cfg.BaseVariableRate, s.cfg.VariableSlope1)
	return out.Add(out, s.cfg.VariableSlope2)
}

// CalculateInterestRates evaluates the curve for the given post-mutation
// totals. averageStableRate is the reserve's incrementally maintained
// debt-weighted stable coupon; reserveFactorBps is the treasury share in
// basis points. Must be called after every debt/liquidity mutation.
func (s *Strategy) CalculateInterestRates(
	availableLiquidity *uint256.Int,
	totalStableDebt *uint256.Int,
	totalVariableDebt *uint256.Int,
	averageStableRate *uint256.Int,
	reserveFactorBps *uint256.Int,
) (*Rates, error) {
	totalDebt := new(uint256.Int).Add(totalStableDebt, totalVariableDebt)

	utilization := fpmath.Zero()
	if !totalDebt.IsZero() {
		totalLiquidity := new(uint256.Int).Add(availableLiquidity, totalDebt)
		u, err := fpmath.RayDiv(totalDebt, totalLiquidity)
		if err != nil {
			return nil, err
		}
		utilization = u
	}

	variableRate := new(uint256.Int).Set(s.cfg.BaseVariableRate)
	stableRate := new(uint256.Int).Set(s.cfg.MarketStableRate)

	if utilization.Gt(s.cfg.OptimalUtilization) {
		// Above the kink: slope2 applies to (u - optimal) / (1 - optimal).
		excess := new(uint256.Int).Sub(utilization, s.cfg.OptimalUtilization)
		excessRatio, err := fpmath.RayDiv(excess, s.excessUtilization)
		if err != nil {
			return nil, err
		}

		varExcess, err := fpmath.RayMul(s.cfg.VariableSlope2, excessRatio)
		if err != nil {
			return nil, err
		}
		variableRate.Add(variableRate, s.cfg.VariableSlope1)
		variableRate.Add(variableRate, varExcess)

		stableExcess, err := fpmath.RayMul(s.cfg.StableSlope2, excessRatio)
		if err != nil {
			return nil, err
		}
		stableRate.Add(stableRate, s.cfg.StableSlope1)
		stableRate.Add(stableRate, stableExcess)
	} else {
		// Below the kink: slope1 scaled by u/optimal.
		ratio, err := fpmath.RayDiv(utilization, s.cfg.OptimalUtilization)
		if err != nil {
			return nil, err
		}

		varSlope, err := fpmath.RayMul(s.cfg.VariableSlope1, ratio)
		if err != nil {
			return nil, err
		}
		variableRate.Add(variableRate, varSlope)

		stableSlope, err := fpmath.RayMul(s.cfg.StableSlope1, ratio)
		if err != nil {
			return nil, err
		}
		stableRate.Add(stableRate, stableSlope)
	}

	liquidityRate, err := s.calculateLiquidityRate(
		totalStableDebt, totalVariableDebt, variableRate, averageStableRate,
		utilization, reserveFactorBps,
	)
	if err != nil {
		return nil, err
	}

	return &Rates{
		LiquidityRate:      liquidityRate,
		StableBorrowRate:   stableRate,
		VariableBorrowRate: variableRate,
		Utilization:        utilization,
	}, nil
}

// calculateLiquidityRate = overallBorrowRate · utilization · (1 - reserveFactor)
// where overallBorrowRate is the debt-weighted average of the variable rate
// and the average stable coupon.
func (s *Strategy) calculateLiquidityRate(
	totalStableDebt, totalVariableDebt *uint256.Int,
	variableRate, averageStableRate *uint256.Int,
	utilization *uint256.Int,
	reserveFactorBps *uint256.Int,
) (*uint256.Int, error) {
	totalDebt := new(uint256.Int).Add(totalStableDebt, totalVariableDebt)
	if totalDebt.IsZero() {
		return fpmath.Zero(), nil
	}

	weightedVariable, err := fpmath.RayMul(totalVariableDebt, variableRate)
	if err != nil {
		return nil, err
	}
	weightedStable, err := fpmath.RayMul(totalStableDebt, averageStableRate)
	if err != nil {
		return nil, err
	}

	sum := new(uint256.Int).Add(weightedVariable, weightedStable)
	overallRate, err := fpmath.RayDiv(sum, totalDebt)
	if err != nil {
		return nil, err
	}

	gross, err := fpmath.RayMul(overallRate, utilization)
	if err != nil {
		return nil, err
	}

	netFactor := new(uint256.Int).Sub(fpmath.PercentageFactor, reserveFactorBps)
	return fpmath.PercentMul(gross, netFactor)
}
