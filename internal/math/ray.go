package math

import (
	"errors"

	"github.com/holiman/uint256"
)

// Fixed-point formats:
//   ray — 27 decimals, used for rates and cumulative indices
//   wad — 18 decimals, used for token amounts in base-currency terms
//   bps — 4 decimals (percentage factor 10_000), used for reserve config
//
// All operations replicate 256-bit unsigned arithmetic: an intermediate
// product that would not fit in 256 bits fails with ErrOverflow before
// the final division, never silently saturates.

var (
	// RAY is 1e27, the ray unit.
	RAY = mustFromDecimal("1000000000000000000000000000")
	// WAD is 1e18, the wad unit.
	WAD = mustFromDecimal("1000000000000000000")
	// HalfRAY is RAY/2, the round-half-up bias for ray operations.
	HalfRAY = mustFromDecimal("500000000000000000000000000")
	// HalfWAD is WAD/2.
	HalfWAD = mustFromDecimal("500000000000000000")
	// WadRayRatio is 1e9, the conversion factor between wad and ray.
	WadRayRatio = uint256.NewInt(1_000_000_000)
	// PercentageFactor expresses percentages in basis points (1e4 = 100%).
	PercentageFactor = uint256.NewInt(10_000)
	// HalfPercent is PercentageFactor/2.
	HalfPercent = uint256.NewInt(5_000)

	maxUint256 = new(uint256.Int).Not(uint256.NewInt(0))
)

// SecondsPerYear is the accrual year used by all per-second rate math.
const SecondsPerYear = 365 * 24 * 3600

var (
	ErrOverflow       = errors.New("math: 256-bit overflow")
	ErrDivisionByZero = errors.New("math: division by zero")
)

func mustFromDecimal(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return uint256.NewInt(0)
}

// Ray returns a copy of the ray unit.
func Ray() *uint256.Int {
	return new(uint256.Int).Set(RAY)
}

// Wad returns a copy of the wad unit.
func Wad() *uint256.Int {
	return new(uint256.Int).Set(WAD)
}

// MaxUint256 returns a copy of 2^256-1, the full-withdrawal sentinel.
func MaxUint256() *uint256.Int {
	return new(uint256.Int).Set(maxUint256)
}

// mulRounded computes (a*b + half) / unit with the 256-bit overflow check
// a <= (MaxUint256 - half) / b. Inputs are never mutated.
func mulRounded(a, b, half, unit *uint256.Int) (*uint256.Int, error) {
	if a.IsZero() || b.IsZero() {
		return Zero(), nil
	}

	limit := new(uint256.Int).Sub(maxUint256, half)
	limit.Div(limit, b)
	if a.Gt(limit) {
		return nil, ErrOverflow
	}

	out := new(uint256.Int).Mul(a, b)
	out.Add(out, half)
	out.Div(out, unit)
	return out, nil
}

// divRounded computes (a*unit + b/2) / b with the 256-bit overflow check
// a <= (MaxUint256 - b/2) / unit. Inputs are never mutated.
func divRounded(a, b, unit *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}

	halfB := new(uint256.Int).Rsh(b, 1)

	limit := new(uint256.Int).Sub(maxUint256, halfB)
	limit.Div(limit, unit)
	if a.Gt(limit) {
		return nil, ErrOverflow
	}

	out := new(uint256.Int).Mul(a, unit)
	out.Add(out, halfB)
	out.Div(out, b)
	return out, nil
}

// RayMul multiplies two ray values, rounding half up.
func RayMul(a, b *uint256.Int) (*uint256.Int, error) {
	return mulRounded(a, b, HalfRAY, RAY)
}

// RayDiv divides two ray values, rounding half up.
func RayDiv(a, b *uint256.Int) (*uint256.Int, error) {
	return divRounded(a, b, RAY)
}

// WadMul multiplies two wad values, rounding half up.
func WadMul(a, b *uint256.Int) (*uint256.Int, error) {
	return mulRounded(a, b, HalfWAD, WAD)
}

// WadDiv divides two wad values, rounding half up.
func WadDiv(a, b *uint256.Int) (*uint256.Int, error) {
	return divRounded(a, b, WAD)
}

// WadToRay converts a wad to a ray (exact, fails on overflow).
func WadToRay(a *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(a, WadRayRatio)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// RayToWad converts a ray to a wad, rounding half up.
func RayToWad(a *uint256.Int) *uint256.Int {
	half := new(uint256.Int).Rsh(WadRayRatio, 1)
	out := new(uint256.Int).Add(a, half)
	out.Div(out, WadRayRatio)
	return out
}

// PercentMul applies a basis-point percentage to a value, rounding half up.
func PercentMul(value, bps *uint256.Int) (*uint256.Int, error) {
	return mulRounded(value, bps, HalfPercent, PercentageFactor)
}

// PercentDiv divides a value by a basis-point percentage, rounding half up.
func PercentDiv(value, bps *uint256.Int) (*uint256.Int, error) {
	if bps.IsZero() {
		return nil, ErrDivisionByZero
	}
	halfBps := new(uint256.Int).Rsh(bps, 1)

	limit := new(uint256.Int).Sub(maxUint256, halfBps)
	limit.Div(limit, PercentageFactor)
	if value.Gt(limit) {
		return nil, ErrOverflow
	}

	out := new(uint256.Int).Mul(value, PercentageFactor)
	out.Add(out, halfBps)
	out.Div(out, bps)
	return out, nil
}
