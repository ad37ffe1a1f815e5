package rates_test

import (
	"testing"

	fpmath "LendLedger/internal/math"
	"LendLedger/internal/rates"

	"github.com/holiman/uint256"
)

func ray(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}

// testStrategy mirrors a mainnet-style stablecoin curve:
// optimal 80%, base 0%, variable slopes 4%/75%, stable slopes 2%/75%,
// market stable rate 3.9%.
func testStrategy(t *testing.T) *rates.Strategy {
	t.Helper()
	return rates.NewStrategy(rates.StrategyConfig{
		OptimalUtilization: ray(t, "800000000000000000000000000"),
		BaseVariableRate:   fpmath.Zero(),
		VariableSlope1:     ray(t, "40000000000000000000000000"),
		VariableSlope2:     ray(t, "750000000000000000000000000"),
		StableSlope1:       ray(t, "20000000000000000000000000"),
		StableSlope2:       ray(t, "750000000000000000000000000"),
		MarketStableRate:   ray(t, "39000000000000000000000000"),
	})
}

func wad(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), fpmath.WAD)
}

func TestCalculateInterestRates_NoDebt(t *testing.T) {
	s := testStrategy(t)

	got, err := s.CalculateInterestRates(wad(1000), fpmath.Zero(), fpmath.Zero(), fpmath.Zero(), uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("CalculateInterestRates: %v", err)
	}

	if !got.Utilization.IsZero() {
		t.Errorf("utilization: got %s, want 0", got.Utilization)
	}
	if !got.LiquidityRate.IsZero() {
		t.Errorf("liquidity rate: got %s, want 0", got.LiquidityRate)
	}
	if !got.VariableBorrowRate.IsZero() {
		t.Errorf("variable rate at zero utilization: got %s, want base 0", got.VariableBorrowRate)
	}
}

func TestCalculateInterestRates_BelowOptimal(t *testing.T) {
	s := testStrategy(t)

	// 400 variable debt against 600 available → u = 0.4, half of optimal.
	got, err := s.CalculateInterestRates(wad(600), fpmath.Zero(), wad(400), fpmath.Zero(), fpmath.Zero())
	if err != nil {
		t.Fatalf("CalculateInterestRates: %v", err)
	}

	wantU := ray(t, "400000000000000000000000000")
	if !got.Utilization.Eq(wantU) {
		t.Errorf("utilization: got %s, want %s", got.Utilization, wantU)
	}

	// variable = 0 + slope1 · (0.4/0.8) = 2%
	wantVar := ray(t, "20000000000000000000000000")
	if !got.VariableBorrowRate.Eq(wantVar) {
		t.Errorf("variable rate: got %s, want %s", got.VariableBorrowRate, wantVar)
	}

	// All debt is variable, zero reserve factor:
	// liquidity = variable · u = 2% · 0.4 = 0.8%
	wantLiq := ray(t, "8000000000000000000000000")
	if !got.LiquidityRate.Eq(wantLiq) {
		t.Errorf("liquidity rate: got %s, want %s", got.LiquidityRate, wantLiq)
	}
}

func TestCalculateInterestRates_AboveOptimal(t *testing.T) {
	s := testStrategy(t)

	// 900 variable debt against 100 available → u = 0.9, excess ratio 0.5.
	got, err := s.CalculateInterestRates(wad(100), fpmath.Zero(), wad(900), fpmath.Zero(), fpmath.Zero())
	if err != nil {
		t.Fatalf("CalculateInterestRates: %v", err)
	}

	// variable = 0 + slope1 + slope2·0.5 = 4% + 37.5% = 41.5%
	wantVar := ray(t, "415000000000000000000000000")
	if !got.VariableBorrowRate.Eq(wantVar) {
		t.Errorf("variable rate: got %s, want %s", got.VariableBorrowRate, wantVar)
	}

	// stable = 3.9% + 2% + 37.5% = 43.4%
	wantStable := ray(t, "434000000000000000000000000")
	if !got.StableBorrowRate.Eq(wantStable) {
		t.Errorf("stable rate: got %s, want %s", got.StableBorrowRate, wantStable)
	}
}

func TestCalculateInterestRates_StableWeighting(t *testing.T) {
	s := testStrategy(t)

	// Equal stable and variable debt: overall rate is the simple average of
	// the variable rate and the outstanding average stable coupon.
	avgStable := ray(t, "60000000000000000000000000") // 6%
	got, err := s.CalculateInterestRates(wad(600), wad(200), wad(200), avgStable, fpmath.Zero())
	if err != nil {
		t.Fatalf("CalculateInterestRates: %v", err)
	}

	// u = 0.4 → variable = 2%; overall = (2% + 6%)/2 = 4%; liquidity = 4%·0.4 = 1.6%
	wantLiq := ray(t, "16000000000000000000000000")
	if !got.LiquidityRate.Eq(wantLiq) {
		t.Errorf("liquidity rate: got %s, want %s", got.LiquidityRate, wantLiq)
	}
}

func TestCalculateInterestRates_ReserveFactorCutsLiquidityRate(t *testing.T) {
	s := testStrategy(t)

	noFactor, err := s.CalculateInterestRates(wad(600), fpmath.Zero(), wad(400), fpmath.Zero(), fpmath.Zero())
	if err != nil {
		t.Fatalf("CalculateInterestRates: %v", err)
	}

	// 20% reserve factor routes a fifth of interest to the treasury.
	withFactor, err := s.CalculateInterestRates(wad(600), fpmath.Zero(), wad(400), fpmath.Zero(), uint256.NewInt(2000))
	if err != nil {
		t.Fatalf("CalculateInterestRates: %v", err)
	}

	wantNet, err := fpmath.PercentMul(noFactor.LiquidityRate, uint256.NewInt(8000))
	if err != nil {
		t.Fatalf("PercentMul: %v", err)
	}
	if !withFactor.LiquidityRate.Eq(wantNet) {
		t.Errorf("net liquidity rate: got %s, want %s", withFactor.LiquidityRate, wantNet)
	}
	if !withFactor.VariableBorrowRate.Eq(noFactor.VariableBorrowRate) {
		t.Errorf("reserve factor must not change the borrow rate")
	}
}

func TestCalculateInterestRates_Deterministic(t *testing.T) {
	s := testStrategy(t)

	a, err := s.CalculateInterestRates(wad(123), wad(45), wad(67), ray(t, "50000000000000000000000000"), uint256.NewInt(900))
	if err != nil {
		t.Fatalf("CalculateInterestRates: %v", err)
	}
	b, err := s.CalculateInterestRates(wad(123), wad(45), wad(67), ray(t, "50000000000000000000000000"), uint256.NewInt(900))
	if err != nil {
		t.Fatalf("CalculateInterestRates: %v", err)
	}

	if !a.LiquidityRate.Eq(b.LiquidityRate) || !a.StableBorrowRate.Eq(b.StableBorrowRate) ||
		!a.VariableBorrowRate.Eq(b.VariableBorrowRate) {
		t.Error("same inputs produced different rates")
	}
}
