package math_test

import (
	"errors"
	"testing"

	fpmath "LendLedger/internal/math"

	"github.com/holiman/uint256"
)

// ============================================================================
// Test: RayMul / RayDiv
// ============================================================================

func TestRayMul_Identity(t *testing.T) {
	a := uint256.NewInt(123_456_789)

	got, err := fpmath.RayMul(a, fpmath.RAY)
	if err != nil {
		t.Fatalf("RayMul: %v", err)
	}
	if !got.Eq(a) {
		t.Errorf("a rayMul RAY: got %s, want %s", got, a)
	}
}

func TestRayMul_Zero(t *testing.T) {
	a := uint256.NewInt(42)

	got, err := fpmath.RayMul(a, fpmath.Zero())
	if err != nil {
		t.Fatalf("RayMul: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("a rayMul 0: got %s, want 0", got)
	}
}

func TestRayMul_RoundsHalfUp(t *testing.T) {
	// 1 * 0.5 ray = 0.5 → rounds up to 1
	a := uint256.NewInt(1)
	halfRay := new(uint256.Int).Rsh(fpmath.Ray(), 1)

	got, err := fpmath.RayMul(a, halfRay)
	if err != nil {
		t.Fatalf("RayMul: %v", err)
	}
	if got.Uint64() != 1 {
		t.Errorf("1 rayMul halfRAY: got %s, want 1", got)
	}
}

func TestRayMul_Overflow(t *testing.T) {
	big := fpmath.MaxUint256()

	_, err := fpmath.RayMul(big, big)
	if !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestRayDiv_Identity(t *testing.T) {
	a := uint256.NewInt(987_654_321)

	got, err := fpmath.RayDiv(a, fpmath.RAY)
	if err != nil {
		t.Fatalf("RayDiv: %v", err)
	}
	if !got.Eq(a) {
		t.Errorf("a rayDiv RAY: got %s, want %s", got, a)
	}
}

func TestRayDiv_ByZero(t *testing.T) {
	_, err := fpmath.RayDiv(uint256.NewInt(1), fpmath.Zero())
	if !errors.Is(err, fpmath.ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestRayMulDiv_RoundTrip(t *testing.T) {
	// rayDiv then rayMul by the same index returns the original amount
	// when the amount divides cleanly enough for half-up rounding to cancel.
	amount := uint256.NewInt(1_000_000_000_000_000_000) // 1 wad
	index := mustRay(t, "1100000000000000000000000000")  // 1.1 ray

	scaled, err := fpmath.RayDiv(amount, index)
	if err != nil {
		t.Fatalf("RayDiv: %v", err)
	}
	back, err := fpmath.RayMul(scaled, index)
	if err != nil {
		t.Fatalf("RayMul: %v", err)
	}

	diff := absDiff(back, amount)
	if diff.Uint64() > 1 {
		t.Errorf("round trip drift: got %s, want %s (±1)", back, amount)
	}
}

func TestRayMul_InputsNotMutated(t *testing.T) {
	a := uint256.NewInt(7)
	b := new(uint256.Int).Set(fpmath.RAY)

	if _, err := fpmath.RayMul(a, b); err != nil {
		t.Fatalf("RayMul: %v", err)
	}
	if a.Uint64() != 7 {
		t.Errorf("a mutated: %s", a)
	}
	if !b.Eq(fpmath.RAY) {
		t.Errorf("b mutated: %s", b)
	}
}

// ============================================================================
// Test: wad/ray conversions
// ============================================================================

func TestWadToRay_RoundTrip(t *testing.T) {
	wad := uint256.NewInt(123_456)

	ray, err := fpmath.WadToRay(wad)
	if err != nil {
		t.Fatalf("WadToRay: %v", err)
	}
	back := fpmath.RayToWad(ray)
	if !back.Eq(wad) {
		t.Errorf("wad→ray→wad: got %s, want %s", back, wad)
	}
}

func TestRayToWad_RoundsHalfUp(t *testing.T) {
	// 1 ray-unit above half of the 1e9 ratio rounds up
	a := uint256.NewInt(500_000_001)
	got := fpmath.RayToWad(a)
	if got.Uint64() != 1 {
		t.Errorf("rayToWad(0.5e9+1): got %s, want 1", got)
	}
}

// ============================================================================
// Test: percentage math
// ============================================================================

func TestPercentMul_LiquidationBonus(t *testing.T) {
	// 105% of 1000 = 1050 (the 5% liquidation bonus path)
	amount := uint256.NewInt(1000)
	bonus := uint256.NewInt(10_500)

	got, err := fpmath.PercentMul(amount, bonus)
	if err != nil {
		t.Fatalf("PercentMul: %v", err)
	}
	if got.Uint64() != 1050 {
		t.Errorf("1000 × 105%%: got %s, want 1050", got)
	}
}

func TestPercentDiv_ByZero(t *testing.T) {
	_, err := fpmath.PercentDiv(uint256.NewInt(1), fpmath.Zero())
	if !errors.Is(err, fpmath.ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

// --- helpers ---

func mustRay(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}

func absDiff(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return new(uint256.Int).Sub(a, b)
	}
	return new(uint256.Int).Sub(b, a)
}
