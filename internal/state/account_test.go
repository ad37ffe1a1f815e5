package state_test

import (
	"testing"

	fpmath "LendLedger/internal/math"
	"LendLedger/internal/oracle"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

func setupAccountFixture(t *testing.T) (map[string]*state.Reserve, *state.UserRegistry, *oracle.Feed) {
	t.Helper()
	reserves := map[string]*state.Reserve{
		"DAI":  state.NewReserve("DAI", 1, testConfig(), testStrategy(t), 0),
		"WETH": state.NewReserve("WETH", 3, testConfig(), testStrategy(t), 0),
	}
	users := state.NewUserRegistry()
	feed := oracle.NewFeed(0)
	// DAI at 1.0, WETH at 2000.0 base currency.
	feed.SetAssetPrice("DAI", fpmath.Wad(), 1, 0)
	feed.SetAssetPrice("WETH", ray(t, "2000000000000000000000"), 1, 0)
	return reserves, users, feed
}

func TestAccountDataNoDebtMaxHealthFactor(t *testing.T) {
	reserves, users, feed := setupAccountFixture(t)
	calc := state.NewAccountCalculator(reserves, users, feed)
	user := uuid.New()

	deposit := ray(t, "1000000000000000000") // 1 WETH
	if _, err := reserves["WETH"].DepositToken.Mint(user, deposit, fpmath.Ray()); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	users.Get(user).SetUsingAsCollateral("WETH", true)

	data, err := calc.CalculateUserAccountData(user, 0)
	if err != nil {
		t.Fatalf("CalculateUserAccountData: %v", err)
	}

	wantCollateral := ray(t, "2000000000000000000000") // 2000 wad
	if !data.TotalCollateral.Eq(wantCollateral) {
		t.Errorf("collateral = %s, want %s", data.TotalCollateral.Dec(), wantCollateral.Dec())
	}
	if !data.TotalDebt.IsZero() {
		t.Errorf("debt = %s, want 0", data.TotalDebt.Dec())
	}
	if !data.HealthFactor.Eq(fpmath.MaxUint256()) {
		t.Error("health factor not maxed with zero debt")
	}

	// 75% LTV of 2000 leaves 1500 borrowable.
	wantBorrows := ray(t, "1500000000000000000000")
	if !data.AvailableBorrows.Eq(wantBorrows) {
		t.Errorf("available borrows = %s, want %s", data.AvailableBorrows.Dec(), wantBorrows.Dec())
	}
}

func TestAccountDataHealthFactorWithDebt(t *testing.T) {
	reserves, users, feed := setupAccountFixture(t)
	calc := state.NewAccountCalculator(reserves, users, feed)
	user := uuid.New()

	// 1 WETH collateral (2000 base), 1000 DAI variable debt.
	if _, err := reserves["WETH"].DepositToken.Mint(user, ray(t, "1000000000000000000"), fpmath.Ray()); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	users.Get(user).SetUsingAsCollateral("WETH", true)
	if err := reserves["DAI"].VariableDebt.Mint(user, ray(t, "1000000000000000000000"), fpmath.Ray()); err != nil {
		t.Fatalf("Mint debt: %v", err)
	}

	data, err := calc.CalculateUserAccountData(user, 0)
	if err != nil {
		t.Fatalf("CalculateUserAccountData: %v", err)
	}

	// HF = 2000 × 0.8 / 1000 = 1.6 ray.
	want := ray(t, "1600000000000000000000000000")
	if !data.HealthFactor.Eq(want) {
		t.Errorf("health factor = %s, want %s", data.HealthFactor.Dec(), want.Dec())
	}
}

func TestAccountDataIgnoresUnflaggedCollateral(t *testing.T) {
	reserves, users, feed := setupAccountFixture(t)
	calc := state.NewAccountCalculator(reserves, users, feed)
	user := uuid.New()

	if _, err := reserves["WETH"].DepositToken.Mint(user, ray(t, "1000000000000000000"), fpmath.Ray()); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	// Collateral flag left off.

	data, err := calc.CalculateUserAccountData(user, 0)
	if err != nil {
		t.Fatalf("CalculateUserAccountData: %v", err)
	}
	if !data.TotalCollateral.IsZero() {
		t.Errorf("collateral = %s, want 0 when flag is off", data.TotalCollateral.Dec())
	}
}

func TestAccountDataWeightedFactorsAcrossReserves(t *testing.T) {
	reserves, users, feed := setupAccountFixture(t)
	// Give DAI a weaker profile to make the weighting visible.
	daiCfg := testConfig()
	daiCfg.LoanToValue = 5000
	daiCfg.LiquidationThreshold = 6000
	reserves["DAI"].Config = daiCfg

	calc := state.NewAccountCalculator(reserves, users, feed)
	user := uuid.New()

	// 2000 base in WETH (ltv 7500), 2000 base in DAI (ltv 5000).
	if _, err := reserves["WETH"].DepositToken.Mint(user, ray(t, "1000000000000000000"), fpmath.Ray()); err != nil {
		t.Fatalf("Mint WETH: %v", err)
	}
	if _, err := reserves["DAI"].DepositToken.Mint(user, ray(t, "2000000000000000000000"), fpmath.Ray()); err != nil {
		t.Fatalf("Mint DAI: %v", err)
	}
	uc := users.Get(user)
	uc.SetUsingAsCollateral("WETH", true)
	uc.SetUsingAsCollateral("DAI", true)

	data, err := calc.CalculateUserAccountData(user, 0)
	if err != nil {
		t.Fatalf("CalculateUserAccountData: %v", err)
	}

	// Equal-value halves: avg ltv (7500+5000)/2, avg threshold (8000+6000)/2.
	if got, want := data.AvgLtv, uint256.NewInt(6250); !got.Eq(want) {
		t.Errorf("avg ltv = %s, want %s", got.Dec(), want.Dec())
	}
	if got, want := data.AvgLiquidationThreshold, uint256.NewInt(7000); !got.Eq(want) {
		t.Errorf("avg threshold = %s, want %s", got.Dec(), want.Dec())
	}
}

func TestBaseValueScalesDecimals(t *testing.T) {
	// 1000 USDC (6 decimals) at price 1 wad is 1000 wad base.
	amount := uint256.NewInt(1_000_000_000)
	got, err := state.BaseValue(amount, fpmath.Wad(), 6)
	if err != nil {
		t.Fatalf("BaseValue: %v", err)
	}
	want := ray(t, "1000000000000000000000")
	if !got.Eq(want) {
		t.Errorf("base value = %s, want %s", got.Dec(), want.Dec())
	}

	back, err := state.NativeAmount(got, fpmath.Wad(), 6)
	if err != nil {
		t.Fatalf("NativeAmount: %v", err)
	}
	if !back.Eq(amount) {
		t.Errorf("native round trip = %s, want %s", back.Dec(), amount.Dec())
	}
}
