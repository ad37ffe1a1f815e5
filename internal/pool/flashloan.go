package pool

import (
	"fmt"

	fpmath "LendLedger/internal/math"

	"github.com/holiman/uint256"
)

// FlashLoanReceiver is the external code a flash loan hands control to.
// It receives the borrowed amount and owes amount+premium back through
// the repay function before returning; returning an error or failing to
// repay reverts the whole operation.
type FlashLoanReceiver interface {
	ExecuteOperation(asset string, amount, premium *uint256.Int, repay func(*uint256.Int) error) error
}

// FlashLoanFunc adapts a plain function to FlashLoanReceiver.
type FlashLoanFunc func(asset string, amount, premium *uint256.Int, repay func(*uint256.Int) error) error

func (f FlashLoanFunc) ExecuteOperation(asset string, amount, premium *uint256.Int, repay func(*uint256.Int) error) error {
	return f(asset, amount, premium, repay)
}

// FlashLoan lends amount to the receiver within one atomic operation.
// The premium the receiver repays on top is folded into the liquidity
// index, accruing to depositors. Any shortfall reverts the operation
// with the reserve byte-identical to its pre-call state.
func (p *Pool) FlashLoan(receiver FlashLoanReceiver, asset string, amount *uint256.Int, now uint64) (*uint256.Int, error) {
	r, err := p.requireActive(asset)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}

	premium, err := fpmath.PercentMul(amount, uint256.NewInt(uint64(p.policy.FlashLoanPremium)))
	if err != nil {
		return nil, err
	}
	if premium.IsZero() {
		return nil, ErrLoanTooSmall
	}

	bk := p.backup(asset)

	if err := r.UpdateState(now); err != nil {
		return nil, p.fail(bk, err)
	}

	balanceBefore := p.AvailableLiquidity(asset)
	if amount.Gt(balanceBefore) {
		return nil, p.fail(bk, fmt.Errorf("%w: want %s, have %s", ErrInsufficientLiquidity, amount.Dec(), balanceBefore.Dec()))
	}

	// Supply measured before the premium lands; the premium is what the
	// index cumulation distributes over it.
	supply, err := r.DepositToken.TotalSupply(r.LiquidityIndex)
	if err != nil {
		return nil, p.fail(bk, err)
	}

	poolKey := p.poolKey(r)
	escrowKey := p.flashEscrowKey(r)
	if err := p.book.Transfer(poolKey, escrowKey, amount); err != nil {
		return nil, p.fail(bk, err)
	}

	repay := func(repayment *uint256.Int) error {
		return p.book.Issue(poolKey, repayment)
	}
	if err := receiver.ExecuteOperation(asset, amount, premium, repay); err != nil {
		return nil, p.fail(bk, fmt.Errorf("%w: %v", ErrFlashLoanNotRepaid, err))
	}

	owed := new(uint256.Int).Add(balanceBefore, premium)
	balanceAfter := p.AvailableLiquidity(asset)
	if balanceAfter.Lt(owed) {
		return nil, p.fail(bk, fmt.Errorf("%w: have %s, owed %s", ErrInconsistentProtocolBalance, balanceAfter.Dec(), owed.Dec()))
	}

	if err := r.CumulateToLiquidityIndex(supply, premium); err != nil {
		return nil, p.fail(bk, err)
	}
	if err := p.refreshRates(r, now); err != nil {
		return nil, p.fail(bk, err)
	}

	p.log.Info().
		Str("asset", asset).
		Str("amount", amount.Dec()).
		Str("premium", premium.Dec()).
		Str("liquidity_index", r.LiquidityIndex.Dec()).
		Msg("flash loan settled")
	return premium, nil
}
