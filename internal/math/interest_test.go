package math_test

import (
	"math/big"
	"testing"

	fpmath "LendLedger/internal/math"

	"github.com/holiman/uint256"
)

const oneYear = fpmath.SecondsPerYear

// tenPercentRay is 0.1 ray (10%/yr nominal rate).
func tenPercentRay() *uint256.Int {
	v, _ := uint256.FromDecimal("100000000000000000000000000")
	return v
}

func TestLinearInterest_OneYearAtTenPercent(t *testing.T) {
	got, err := fpmath.CalculateLinearInterest(tenPercentRay(), 0, oneYear)
	if err != nil {
		t.Fatalf("CalculateLinearInterest: %v", err)
	}

	// Exactly 1.1 ray: rate*Δt/SecondsPerYear has no remainder when Δt is a year.
	want, _ := uint256.FromDecimal("1100000000000000000000000000")
	if !got.Eq(want) {
		t.Errorf("linear factor: got %s, want %s", got, want)
	}
}

func TestLinearInterest_ZeroElapsed(t *testing.T) {
	got, err := fpmath.CalculateLinearInterest(tenPercentRay(), 1_700_000_000, 1_700_000_000)
	if err != nil {
		t.Fatalf("CalculateLinearInterest: %v", err)
	}
	if !got.Eq(fpmath.RAY) {
		t.Errorf("zero elapsed: got %s, want 1 ray", got)
	}
}

func TestCompoundedInterest_ZeroElapsed(t *testing.T) {
	got, err := fpmath.CalculateCompoundedInterest(tenPercentRay(), 42, 42)
	if err != nil {
		t.Fatalf("CalculateCompoundedInterest: %v", err)
	}
	if !got.Eq(fpmath.RAY) {
		t.Errorf("zero elapsed: got %s, want 1 ray", got)
	}
}

// TestCompoundedInterest_MatchesReference recomputes the third-order binomial
// expansion with an independent big.Int implementation and requires bit-for-bit
// equality: the truncated series and its per-step rounding are part of the
// compatibility surface, not just an approximation target.
func TestCompoundedInterest_MatchesReference(t *testing.T) {
	cases := []struct {
		name    string
		rateRay string
		seconds uint64
	}{
		{"ten_percent_one_year", "100000000000000000000000000", oneYear},
		{"ten_percent_one_day", "100000000000000000000000000", 86_400},
		{"fifty_percent_one_month", "500000000000000000000000000", 2_592_000},
		{"one_second", "100000000000000000000000000", 1},
		{"two_seconds", "100000000000000000000000000", 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rate, err := uint256.FromDecimal(tc.rateRay)
			if err != nil {
				t.Fatalf("parse rate: %v", err)
			}

			got, err := fpmath.CalculateCompoundedInterest(rate, 0, tc.seconds)
			if err != nil {
				t.Fatalf("CalculateCompoundedInterest: %v", err)
			}

			want := referenceCompounded(rate.ToBig(), tc.seconds)
			if got.ToBig().Cmp(want) != 0 {
				t.Errorf("compounded factor: got %s, want %s", got, want)
			}
		})
	}
}

// TestCompoundedInterest_ApproximatesExp checks the documented property:
// 1000 at 10%/yr stable rate compounds to ≈ 1000·e^0.1 after one year,
// within the third-order truncation error (the series undershoots e^x).
func TestCompoundedInterest_ApproximatesExp(t *testing.T) {
	factor, err := fpmath.CalculateCompoundedInterest(tenPercentRay(), 0, oneYear)
	if err != nil {
		t.Fatalf("CalculateCompoundedInterest: %v", err)
	}

	principal := new(uint256.Int).Mul(uint256.NewInt(1000), fpmath.WAD)
	debt, err := fpmath.RayMul(principal, factor)
	if err != nil {
		t.Fatalf("RayMul: %v", err)
	}

	// e^0.1 = 1.10517091808…; third-order series gives 1.10516666…
	lo, _ := uint256.FromDecimal("1105166000000000000000") // 1105.166 wad
	hi, _ := uint256.FromDecimal("1105171000000000000000") // 1105.171 wad
	if debt.Lt(lo) || debt.Gt(hi) {
		t.Errorf("compounded debt %s outside [%s, %s]", debt, lo, hi)
	}

	// The truncated series must undershoot the exact exponential.
	exact, _ := uint256.FromDecimal("1105170918075647624811") // 1000·e^0.1 wad, truncated
	if debt.Gt(exact) {
		t.Errorf("series overshoots e^x: got %s, exact %s", debt, exact)
	}
}

func TestCompoundedInterest_Monotone(t *testing.T) {
	rate := tenPercentRay()
	prev := fpmath.Ray()

	for _, seconds := range []uint64{1, 10, 3600, 86_400, 604_800, oneYear} {
		factor, err := fpmath.CalculateCompoundedInterest(rate, 0, seconds)
		if err != nil {
			t.Fatalf("CalculateCompoundedInterest(%d): %v", seconds, err)
		}
		if factor.Lt(prev) {
			t.Errorf("factor decreased at Δt=%d: %s < %s", seconds, factor, prev)
		}
		prev = factor
	}
}

// referenceCompounded reimplements the series with big.Int, mirroring the
// on-paper formula: ratePerSecond = rate/SPY (floor), rayMul rounds half up.
func referenceCompounded(rate *big.Int, seconds uint64) *big.Int {
	ray, _ := new(big.Int).SetString("1000000000000000000000000000", 10)
	halfRay := new(big.Int).Rsh(ray, 1)

	rayMul := func(a, b *big.Int) *big.Int {
		out := new(big.Int).Mul(a, b)
		out.Add(out, halfRay)
		return out.Div(out, ray)
	}

	exp := new(big.Int).SetUint64(seconds)
	if exp.Sign() == 0 {
		return new(big.Int).Set(ray)
	}

	expMinusOne := new(big.Int).Sub(exp, big.NewInt(1))
	expMinusTwo := new(big.Int).Sub(exp, big.NewInt(2))
	if expMinusTwo.Sign() < 0 {
		expMinusTwo.SetInt64(0)
	}

	rps := new(big.Int).Div(rate, big.NewInt(fpmath.SecondsPerYear))
	bp2 := rayMul(rps, rps)
	bp3 := rayMul(bp2, rps)

	t1 := new(big.Int).Mul(exp, rps)

	t2 := new(big.Int).Mul(exp, expMinusOne)
	t2.Mul(t2, bp2)
	t2.Div(t2, big.NewInt(2))

	t3 := new(big.Int).Mul(exp, expMinusOne)
	t3.Mul(t3, expMinusTwo)
	t3.Mul(t3, bp3)
	t3.Div(t3, big.NewInt(6))

	out := new(big.Int).Add(ray, t1)
	out.Add(out, t2)
	return out.Add(out, t3)
}
