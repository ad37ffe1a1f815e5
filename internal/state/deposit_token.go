package state

import (
	"errors"
	"fmt"

	fpmath "LendLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// TreasuryID is the opaque collector account credited with the reserve
// factor share of accrued interest.
var TreasuryID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

var (
	ErrInvalidMintAmount = errors.New("state: mint amount scales to zero")
	ErrInvalidBurnAmount = errors.New("state: burn exceeds balance")
)

// DepositToken tracks the scaled yield-bearing deposit balances of one
// reserve. A holder's nominal balance is scaledBalance × liquidityIndex;
// the scaled value only changes on mint/burn/transfer, so interest
// accrues passively through the index.
// Not thread-safe — only mutated from the single-threaded core.
type DepositToken struct {
	scaled      map[uuid.UUID]*uint256.Int
	totalScaled *uint256.Int
}

func NewDepositToken() *DepositToken {
	return &DepositToken{
		scaled:      make(map[uuid.UUID]*uint256.Int),
		totalScaled: fpmath.Zero(),
	}
}

// ScaledBalanceOf returns the raw scaled balance.
func (dt *DepositToken) ScaledBalanceOf(user uuid.UUID) *uint256.Int {
	if b, ok := dt.scaled[user]; ok {
		return new(uint256.Int).Set(b)
	}
	return fpmath.Zero()
}

// ScaledTotalSupply returns the raw scaled supply.
func (dt *DepositToken) ScaledTotalSupply() *uint256.Int {
	return new(uint256.Int).Set(dt.totalScaled)
}

// BalanceOf returns the nominal balance at the given liquidity index.
func (dt *DepositToken) BalanceOf(user uuid.UUID, index *uint256.Int) (*uint256.Int, error) {
	b, ok := dt.scaled[user]
	if !ok {
		return fpmath.Zero(), nil
	}
	return fpmath.RayMul(b, index)
}

// TotalSupply returns the nominal supply at the given liquidity index.
func (dt *DepositToken) TotalSupply(index *uint256.Int) (*uint256.Int, error) {
	return fpmath.RayMul(dt.totalScaled, index)
}

// Mint credits amount at the current index. Minting against the
// post-accrual index never grants interest accrued before the mint and
// never dilutes existing holders. Returns true when this was the
// holder's first balance (collateral default flips on).
func (dt *DepositToken) Mint(user uuid.UUID, amount, index *uint256.Int) (bool, error) {
	scaledAmount, err := fpmath.RayDiv(amount, index)
	if err != nil {
		return false, err
	}
	if scaledAmount.IsZero() {
		return false, ErrInvalidMintAmount
	}

	b, existed := dt.scaled[user]
	if !existed {
		b = fpmath.Zero()
		dt.scaled[user] = b
	}
	first := b.IsZero()
	b.Add(b, scaledAmount)
	dt.totalScaled.Add(dt.totalScaled, scaledAmount)
	return first, nil
}

// Burn debits amount at the current index. Returns true when the burn
// drained the holder to zero (collateral flag clears).
func (dt *DepositToken) Burn(user uuid.UUID, amount, index *uint256.Int) (bool, error) {
	scaledAmount, err := fpmath.RayDiv(amount, index)
	if err != nil {
		return false, err
	}

	b, ok := dt.scaled[user]
	if !ok || b.Lt(scaledAmount) {
		return false, fmt.Errorf("%w: user %s", ErrInvalidBurnAmount, user)
	}

	b.Sub(b, scaledAmount)
	dt.totalScaled.Sub(dt.totalScaled, scaledAmount)
	return b.IsZero(), nil
}

// BurnAll removes the holder's entire scaled balance. Full withdrawals
// burn by scaled value so no dust survives index rounding.
func (dt *DepositToken) BurnAll(user uuid.UUID) error {
	b, ok := dt.scaled[user]
	if !ok || b.IsZero() {
		return fmt.Errorf("%w: user %s has no balance", ErrInvalidBurnAmount, user)
	}
	dt.totalScaled.Sub(dt.totalScaled, b)
	delete(dt.scaled, user)
	return nil
}

// TransferResult reports the side effects of a scaled-balance transfer
// that the pool turns into collateral-flag updates.
type TransferResult struct {
	SenderDrained  bool
	FirstForTarget bool
}

// Transfer moves a nominal amount between holders. Both parties settle
// at the same index, so the transfer carries exactly the accrued value
// of the scaled delta — no interest is forfeited or gifted.
func (dt *DepositToken) Transfer(from, to uuid.UUID, amount, index *uint256.Int) (*TransferResult, error) {
	scaledAmount, err := fpmath.RayDiv(amount, index)
	if err != nil {
		return nil, err
	}

	fromBal, ok := dt.scaled[from]
	if !ok || fromBal.Lt(scaledAmount) {
		return nil, fmt.Errorf("%w: transfer from %s", ErrInvalidBurnAmount, from)
	}

	toBal, existed := dt.scaled[to]
	if !existed {
		toBal = fpmath.Zero()
		dt.scaled[to] = toBal
	}
	firstForTarget := toBal.IsZero() && !scaledAmount.IsZero()

	fromBal.Sub(fromBal, scaledAmount)
	toBal.Add(toBal, scaledAmount)

	return &TransferResult{
		SenderDrained:  fromBal.IsZero(),
		FirstForTarget: firstForTarget,
	}, nil
}

// Snapshot returns a serializable copy of all scaled balances.
func (dt *DepositToken) Snapshot() map[string]string {
	out := make(map[string]string, len(dt.scaled))
	for user, b := range dt.scaled {
		if !b.IsZero() {
			out[user.String()] = b.Dec()
		}
	}
	return out
}

// SetScaled restores one holder's scaled balance (recovery path).
func (dt *DepositToken) SetScaled(user uuid.UUID, scaled *uint256.Int) {
	prev := dt.ScaledBalanceOf(user)
	dt.totalScaled.Sub(dt.totalScaled, prev)
	dt.scaled[user] = new(uint256.Int).Set(scaled)
	dt.totalScaled.Add(dt.totalScaled, scaled)
}
