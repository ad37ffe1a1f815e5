package state_test

import (
	"testing"

	fpmath "LendLedger/internal/math"
	"LendLedger/internal/rates"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

func ray(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return v
}

func testStrategy(t *testing.T) *rates.Strategy {
	t.Helper()
	return rates.NewStrategy(rates.StrategyConfig{
		OptimalUtilization: ray(t, "800000000000000000000000000"), // 0.8
		BaseVariableRate:   fpmath.Zero(),
		VariableSlope1:     ray(t, "40000000000000000000000000"),  // 4%
		VariableSlope2:     ray(t, "750000000000000000000000000"), // 75%
		StableSlope1:       ray(t, "20000000000000000000000000"),  // 2%
		StableSlope2:       ray(t, "750000000000000000000000000"), // 75%
		MarketStableRate:   ray(t, "39000000000000000000000000"),  // 3.9%
	})
}

func within(got, want *uint256.Int, tol uint64) bool {
	diff := new(uint256.Int)
	if got.Gt(want) {
		diff.Sub(got, want)
	} else {
		diff.Sub(want, got)
	}
	return !diff.Gt(uint256.NewInt(tol))
}

func testConfig() state.ReserveConfig {
	return state.ReserveConfig{
		Decimals:             18,
		LoanToValue:          7500,
		LiquidationThreshold: 8000,
		LiquidationBonus:     10500,
		ReserveFactor:        1000,
		Active:               true,
		BorrowingEnabled:     true,
		StableBorrowEnabled:  true,
		UsableAsCollateral:   true,
	}
}

func TestReserveStartsAtOneRay(t *testing.T) {
	r := state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 1000)

	if !r.LiquidityIndex.Eq(fpmath.Ray()) {
		t.Errorf("liquidity index = %s, want one ray", r.LiquidityIndex.Dec())
	}
	if !r.VariableBorrowIndex.Eq(fpmath.Ray()) {
		t.Errorf("variable borrow index = %s, want one ray", r.VariableBorrowIndex.Dec())
	}
	if !r.CurrentLiquidityRate.IsZero() {
		t.Errorf("liquidity rate = %s, want zero", r.CurrentLiquidityRate.Dec())
	}
}

func TestUpdateStateIdempotentAtSameTimestamp(t *testing.T) {
	r := state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 1000)
	r.CurrentLiquidityRate = ray(t, "50000000000000000000000000")

	if err := r.UpdateState(2000); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	after := new(uint256.Int).Set(r.LiquidityIndex)

	if err := r.UpdateState(2000); err != nil {
		t.Fatalf("UpdateState repeat: %v", err)
	}
	if !r.LiquidityIndex.Eq(after) {
		t.Errorf("index changed on same-timestamp update: %s != %s", r.LiquidityIndex.Dec(), after.Dec())
	}
}

func TestUpdateStateRejectsClockRegression(t *testing.T) {
	r := state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 1000)
	if err := r.UpdateState(999); err == nil {
		t.Fatal("expected error for timestamp before last update")
	}
}

func TestUpdateStateGrowsLiquidityIndexLinearly(t *testing.T) {
	r := state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 0)
	rate := ray(t, "100000000000000000000000000") // 10%/yr
	r.CurrentLiquidityRate = rate

	year := uint64(fpmath.SecondsPerYear)
	if err := r.UpdateState(year); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}

	linear, err := fpmath.CalculateLinearInterest(rate, 0, year)
	if err != nil {
		t.Fatalf("CalculateLinearInterest: %v", err)
	}
	if !r.LiquidityIndex.Eq(linear) {
		t.Errorf("liquidity index = %s, want %s", r.LiquidityIndex.Dec(), linear.Dec())
	}
	// 10% for a year on an index of one ray is exactly 1.1 ray.
	want := ray(t, "1100000000000000000000000000")
	if !r.LiquidityIndex.Eq(want) {
		t.Errorf("liquidity index = %s, want 1.1 ray", r.LiquidityIndex.Dec())
	}
}

func TestUpdateStateCompoundsVariableBorrowIndex(t *testing.T) {
	r := state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 0)
	r.CurrentVariableBorrowRate = ray(t, "100000000000000000000000000")

	user := uuid.New()
	amount := ray(t, "1000000000000000000000") // 1000 tokens wad
	if err := r.VariableDebt.Mint(user, amount, r.VariableBorrowIndex); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	year := uint64(fpmath.SecondsPerYear)
	if err := r.UpdateState(year); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}

	// Compounded index must exceed the 1.1 ray a linear accrual gives.
	linearWant := ray(t, "1100000000000000000000000000")
	if !r.VariableBorrowIndex.Gt(linearWant) {
		t.Errorf("variable borrow index = %s, want > 1.1 ray", r.VariableBorrowIndex.Dec())
	}

	debt, err := r.VariableDebt.BalanceOf(user, r.VariableBorrowIndex)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if !debt.Gt(amount) {
		t.Errorf("debt %s did not grow past principal %s", debt.Dec(), amount.Dec())
	}
}

func TestUpdateStateMintsReserveFactorShareToTreasury(t *testing.T) {
	r := state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 0)
	r.CurrentVariableBorrowRate = ray(t, "100000000000000000000000000")
	r.CurrentLiquidityRate = ray(t, "72000000000000000000000000")

	user := uuid.New()
	principal := ray(t, "1000000000000000000000")
	if err := r.VariableDebt.Mint(user, principal, r.VariableBorrowIndex); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if err := r.UpdateState(uint64(fpmath.SecondsPerYear)); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}

	treasuryScaled := r.DepositToken.ScaledBalanceOf(state.TreasuryID)
	if treasuryScaled.IsZero() {
		t.Fatal("treasury received no share of accrued interest")
	}

	// ReserveFactor is 10%: the treasury's nominal balance must be
	// close to 10% of the debt growth.
	debt, err := r.VariableDebt.TotalSupply(r.VariableBorrowIndex)
	if err != nil {
		t.Fatalf("TotalSupply: %v", err)
	}
	accrued := new(uint256.Int).Sub(debt, principal)
	wantShare := new(uint256.Int).Div(accrued, uint256.NewInt(10))

	got, err := r.DepositToken.BalanceOf(state.TreasuryID, r.LiquidityIndex)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	diff := new(uint256.Int)
	if got.Gt(wantShare) {
		diff.Sub(got, wantShare)
	} else {
		diff.Sub(wantShare, got)
	}
	if diff.Gt(uint256.NewInt(1000)) {
		t.Errorf("treasury share = %s, want ~%s", got.Dec(), wantShare.Dec())
	}
}

func TestUpdateStateNoTreasuryMintWithoutDebt(t *testing.T) {
	r := state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 0)
	if err := r.UpdateState(3600); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if !r.DepositToken.ScaledBalanceOf(state.TreasuryID).IsZero() {
		t.Error("treasury minted with no outstanding debt")
	}
}

func TestCumulateToLiquidityIndex(t *testing.T) {
	r := state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 0)

	user := uuid.New()
	deposit := ray(t, "10000000000000000000000") // 10000 wad
	if _, err := r.DepositToken.Mint(user, deposit, r.LiquidityIndex); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	premium := ray(t, "9000000000000000000") // 9 wad, 9bps of 10000
	if err := r.CumulateToLiquidityIndex(deposit, premium); err != nil {
		t.Fatalf("CumulateToLiquidityIndex: %v", err)
	}

	// Index grows by premium/totalLiquidity = 0.0009.
	want := ray(t, "1000900000000000000000000000")
	if !r.LiquidityIndex.Eq(want) {
		t.Errorf("liquidity index = %s, want %s", r.LiquidityIndex.Dec(), want.Dec())
	}

	balance, err := r.DepositToken.BalanceOf(user, r.LiquidityIndex)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	wantBalance := ray(t, "10009000000000000000000")
	if !balance.Eq(wantBalance) {
		t.Errorf("depositor balance = %s, want %s", balance.Dec(), wantBalance.Dec())
	}
}

func TestCumulateToLiquidityIndexNoSupplyIsNoop(t *testing.T) {
	r := state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 0)
	if err := r.CumulateToLiquidityIndex(fpmath.Zero(), uint256.NewInt(100)); err != nil {
		t.Fatalf("CumulateToLiquidityIndex: %v", err)
	}
	if !r.LiquidityIndex.Eq(fpmath.Ray()) {
		t.Errorf("index moved with zero supply: %s", r.LiquidityIndex.Dec())
	}
}

func TestNormalizedIncomeMatchesUpdateState(t *testing.T) {
	r := state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 0)
	r.CurrentLiquidityRate = ray(t, "50000000000000000000000000")

	projected, err := r.NormalizedIncome(7200)
	if err != nil {
		t.Fatalf("NormalizedIncome: %v", err)
	}
	if err := r.UpdateState(7200); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if !projected.Eq(r.LiquidityIndex) {
		t.Errorf("projection %s != accrued index %s", projected.Dec(), r.LiquidityIndex.Dec())
	}
}

func TestUpdateInterestRatesTracksUtilization(t *testing.T) {
	r := state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 0)

	user := uuid.New()
	debt := ray(t, "400000000000000000000") // 400 wad borrowed
	if err := r.VariableDebt.Mint(user, debt, r.VariableBorrowIndex); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	available := ray(t, "600000000000000000000") // 600 wad idle

	if err := r.UpdateInterestRates(available, fpmath.Zero(), fpmath.Zero(), 0); err != nil {
		t.Fatalf("UpdateInterestRates: %v", err)
	}

	// Utilization 0.4 on a 0.8-optimal curve: variable = 4% × 0.4/0.8 = 2%.
	wantVariable := ray(t, "20000000000000000000000000")
	if !r.CurrentVariableBorrowRate.Eq(wantVariable) {
		t.Errorf("variable rate = %s, want %s", r.CurrentVariableBorrowRate.Dec(), wantVariable.Dec())
	}
	if r.CurrentLiquidityRate.IsZero() {
		t.Error("liquidity rate stayed zero with outstanding debt")
	}
}

func TestUpdateInterestRatesRejectsExcessTaken(t *testing.T) {
	r := state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 0)
	err := r.UpdateInterestRates(uint256.NewInt(100), fpmath.Zero(), uint256.NewInt(200), 0)
	if err == nil {
		t.Fatal("expected error when liquidity taken exceeds available")
	}
}
