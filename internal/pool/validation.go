package pool

import (
	"fmt"

	"LendLedger/internal/state"

	"github.com/holiman/uint256"
)

// Validation runs before any state mutation, so a rejected operation
// leaves no side effects and needs no rollback.

func (p *Pool) validateDeposit(asset string, amount *uint256.Int) (*state.Reserve, error) {
	r, err := p.requireActive(asset)
	if err != nil {
		return nil, err
	}
	if r.Config.Frozen {
		return nil, fmt.Errorf("%w: %s", ErrReserveFrozen, asset)
	}
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	return r, nil
}

// Withdrawals stay open on a frozen reserve; freezing only blocks new
// exposure.
func (p *Pool) validateWithdraw(asset string, amount *uint256.Int) (*state.Reserve, error) {
	r, err := p.requireActive(asset)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	return r, nil
}

func (p *Pool) validateBorrow(asset string, amount *uint256.Int, mode RateMode) (*state.Reserve, error) {
	r, err := p.requireActive(asset)
	if err != nil {
		return nil, err
	}
	if r.Config.Frozen {
		return nil, fmt.Errorf("%w: %s", ErrReserveFrozen, asset)
	}
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if !r.Config.BorrowingEnabled {
		return nil, fmt.Errorf("%w: %s", ErrBorrowingDisabled, asset)
	}
	switch mode {
	case RateModeVariable:
	case RateModeStable:
		if !r.Config.StableBorrowEnabled {
			return nil, fmt.Errorf("%w: %s", ErrStableBorrowDisabled, asset)
		}
	default:
		return nil, ErrInvalidRateMode
	}
	return r, nil
}

func (p *Pool) validateRepay(asset string, amount *uint256.Int, mode RateMode) (*state.Reserve, error) {
	r, err := p.requireActive(asset)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if mode != RateModeVariable && mode != RateModeStable {
		return nil, ErrInvalidRateMode
	}
	return r, nil
}

func (p *Pool) validateSwapRateMode(asset string, fromMode RateMode) (*state.Reserve, error) {
	r, err := p.requireActive(asset)
	if err != nil {
		return nil, err
	}
	switch fromMode {
	case RateModeStable:
	case RateModeVariable:
		// Entering the stable book is a new stable borrow.
		if r.Config.Frozen {
			return nil, fmt.Errorf("%w: %s", ErrReserveFrozen, asset)
		}
		if !r.Config.StableBorrowEnabled {
			return nil, fmt.Errorf("%w: %s", ErrStableBorrowDisabled, asset)
		}
	default:
		return nil, ErrInvalidRateMode
	}
	return r, nil
}

func (p *Pool) requireActive(asset string) (*state.Reserve, error) {
	if p.paused {
		return nil, ErrPaused
	}
	r, err := p.requireReserve(asset)
	if err != nil {
		return nil, err
	}
	if !r.Config.Active {
		return nil, fmt.Errorf("%w: %s", ErrReserveInactive, asset)
	}
	return r, nil
}
