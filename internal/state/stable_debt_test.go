package state_test

import (
	"testing"

	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

func TestStableDebtLocksRateAtMint(t *testing.T) {
	st := state.NewStableDebtToken()
	user := uuid.New()
	amount := ray(t, "1000000000000000000000")
	rate := ray(t, "50000000000000000000000000") // 5%

	if err := st.Mint(user, amount, rate, 0); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if got := st.RateOf(user); !got.Eq(rate) {
		t.Errorf("locked rate = %s, want %s", got.Dec(), rate.Dec())
	}
	if got := st.PrincipalOf(user); !got.Eq(amount) {
		t.Errorf("principal = %s, want %s", got.Dec(), amount.Dec())
	}
}

func TestStableDebtCompoundsAtLockedRate(t *testing.T) {
	st := state.NewStableDebtToken()
	user := uuid.New()
	amount := ray(t, "1000000000000000000000")
	rate := ray(t, "100000000000000000000000000") // 10%

	if err := st.Mint(user, amount, rate, 0); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	debt, err := st.BalanceOf(user, uint64(fpmath.SecondsPerYear))
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	// Compounded 10% over a year lands just above e^0.1 linearized:
	// strictly more than 1100 and under 1106.
	low := ray(t, "1100000000000000000000")
	high := ray(t, "1106000000000000000000")
	if !debt.Gt(low) || !debt.Lt(high) {
		t.Errorf("debt after one year = %s, want in (1100, 1106) wad", debt.Dec())
	}
}

func TestStableDebtBlendedRateOnSecondMint(t *testing.T) {
	st := state.NewStableDebtToken()
	user := uuid.New()
	amount := ray(t, "1000000000000000000000")

	rateA := ray(t, "40000000000000000000000000") // 4%
	rateB := ray(t, "80000000000000000000000000") // 8%
	if err := st.Mint(user, amount, rateA, 0); err != nil {
		t.Fatalf("Mint A: %v", err)
	}
	if err := st.Mint(user, amount, rateB, 0); err != nil {
		t.Fatalf("Mint B: %v", err)
	}

	// Equal principals at 4% and 8% blend to 6%.
	want := ray(t, "60000000000000000000000000")
	if got := st.RateOf(user); !within(got, want, 2) {
		t.Errorf("blended rate = %s, want ~%s", got.Dec(), want.Dec())
	}
}

func TestStableDebtAverageRateTracksBook(t *testing.T) {
	st := state.NewStableDebtToken()
	alice := uuid.New()
	bob := uuid.New()

	// Alice borrows 300 at 2%, bob 100 at 6%: average is 3%.
	if err := st.Mint(alice, ray(t, "300000000000000000000"), ray(t, "20000000000000000000000000"), 0); err != nil {
		t.Fatalf("Mint alice: %v", err)
	}
	if err := st.Mint(bob, ray(t, "100000000000000000000"), ray(t, "60000000000000000000000000"), 0); err != nil {
		t.Fatalf("Mint bob: %v", err)
	}

	avg := st.AverageRate()
	want := ray(t, "30000000000000000000000000")
	if !within(avg, want, 2) {
		t.Errorf("average rate = %s, want ~%s", avg.Dec(), want.Dec())
	}
}

func TestStableDebtFullBurnClearsBook(t *testing.T) {
	st := state.NewStableDebtToken()
	user := uuid.New()
	amount := ray(t, "500000000000000000000")
	rate := ray(t, "50000000000000000000000000")

	if err := st.Mint(user, amount, rate, 0); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	debt, err := st.BalanceOf(user, 3600)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	cleared, err := st.Burn(user, debt, 3600)
	if err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if !cleared {
		t.Error("full burn not reported as cleared")
	}

	if !st.TotalPrincipal().IsZero() {
		t.Errorf("total principal = %s after full burn", st.TotalPrincipal().Dec())
	}
	if avg := st.AverageRate(); !avg.IsZero() {
		t.Errorf("average rate = %s on empty book", avg.Dec())
	}
}

func TestStableDebtPartialBurnKeepsRate(t *testing.T) {
	st := state.NewStableDebtToken()
	user := uuid.New()
	rate := ray(t, "50000000000000000000000000")

	if err := st.Mint(user, ray(t, "1000000000000000000000"), rate, 0); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := st.Burn(user, ray(t, "400000000000000000000"), 0); err != nil {
		t.Fatalf("Burn: %v", err)
	}

	if got := st.RateOf(user); !got.Eq(rate) {
		t.Errorf("rate after partial burn = %s, want %s", got.Dec(), rate.Dec())
	}
	want := ray(t, "600000000000000000000")
	if got := st.PrincipalOf(user); !got.Eq(want) {
		t.Errorf("principal = %s, want %s", got.Dec(), want.Dec())
	}
}

func TestStableDebtRebalanceRelocksRate(t *testing.T) {
	st := state.NewStableDebtToken()
	user := uuid.New()

	if err := st.Mint(user, ray(t, "1000000000000000000000"), ray(t, "20000000000000000000000000"), 0); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	newRate := ray(t, "90000000000000000000000000")
	if err := st.Rebalance(user, newRate, 1000); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}

	if got := st.RateOf(user); !got.Eq(newRate) {
		t.Errorf("rate after rebalance = %s, want %s", got.Dec(), newRate.Dec())
	}
	// A sole borrower's average is exactly their locked rate.
	if avg := st.AverageRate(); !avg.Eq(newRate) {
		t.Errorf("average after rebalance = %s, want %s", avg.Dec(), newRate.Dec())
	}
}

func TestStableDebtBurnWithoutPosition(t *testing.T) {
	st := state.NewStableDebtToken()
	if _, err := st.Burn(uuid.New(), uint256.NewInt(1), 0); err != state.ErrNoStableDebt {
		t.Errorf("err = %v, want ErrNoStableDebt", err)
	}
}
