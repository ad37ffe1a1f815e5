package math

import "github.com/holiman/uint256"

// CalculateLinearInterest returns the linear growth factor
// 1 + rate*Δt/SecondsPerYear (ray) for a per-year rate over
// [lastUpdate, now] seconds. Used for the liquidity index.
func CalculateLinearInterest(ratePerYear *uint256.Int, lastUpdate, now uint64) (*uint256.Int, error) {
	timeDelta := uint256.NewInt(now - lastUpdate)

	out, overflow := new(uint256.Int).MulOverflow(ratePerYear, timeDelta)
	if overflow {
		return nil, ErrOverflow
	}
	out.Div(out, uint256.NewInt(SecondsPerYear))
	out.Add(out, RAY)
	return out, nil
}

// CalculateCompoundedInterest returns the compounded growth factor
// (1+ratePerSecond)^Δt (ray) approximated by the third-order binomial
// expansion
//
//	1 + n·x + n(n-1)/2·x² + n(n-1)(n-2)/6·x³
//
// with x = ratePerYear/SecondsPerYear and n = Δt seconds. The truncated
// series, its per-step ray rounding, and the integer division producing
// the per-second rate are all part of the compatibility surface: debt
// balances must reproduce these values bit-for-bit, so this is NOT a
// literal power operation.
func CalculateCompoundedInterest(ratePerYear *uint256.Int, lastUpdate, now uint64) (*uint256.Int, error) {
	exp := now - lastUpdate
	if exp == 0 {
		return Ray(), nil
	}

	expMinusOne := exp - 1
	var expMinusTwo uint64
	if exp > 2 {
		expMinusTwo = exp - 2
	}

	ratePerSecond := new(uint256.Int).Div(ratePerYear, uint256.NewInt(SecondsPerYear))

	basePowerTwo, err := RayMul(ratePerSecond, ratePerSecond)
	if err != nil {
		return nil, err
	}
	basePowerThree, err := RayMul(basePowerTwo, ratePerSecond)
	if err != nil {
		return nil, err
	}

	firstTerm, overflow := new(uint256.Int).MulOverflow(ratePerSecond, uint256.NewInt(exp))
	if overflow {
		return nil, ErrOverflow
	}

	secondTerm, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(exp), uint256.NewInt(expMinusOne))
	if overflow {
		return nil, ErrOverflow
	}
	secondTerm, overflow = secondTerm.MulOverflow(secondTerm, basePowerTwo)
	if overflow {
		return nil, ErrOverflow
	}
	secondTerm.Div(secondTerm, uint256.NewInt(2))

	thirdTerm, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(exp), uint256.NewInt(expMinusOne))
	if overflow {
		return nil, ErrOverflow
	}
	thirdTerm, overflow = thirdTerm.MulOverflow(thirdTerm, uint256.NewInt(expMinusTwo))
	if overflow {
		return nil, ErrOverflow
	}
	thirdTerm, overflow = thirdTerm.MulOverflow(thirdTerm, basePowerThree)
	if overflow {
		return nil, ErrOverflow
	}
	thirdTerm.Div(thirdTerm, uint256.NewInt(6))

	out := Ray()
	out, overflow = out.AddOverflow(out, firstTerm)
	if overflow {
		return nil, ErrOverflow
	}
	out, overflow = out.AddOverflow(out, secondTerm)
	if overflow {
		return nil, ErrOverflow
	}
	out, overflow = out.AddOverflow(out, thirdTerm)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}
