package state

import (
	"fmt"

	fpmath "LendLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// VariableDebtToken mirrors DepositToken on the borrow side: a user's
// owed amount is scaledBalance × variableBorrowIndex, so debt compounds
// passively through the index.
// Not thread-safe — only mutated from the single-threaded core.
type VariableDebtToken struct {
	scaled      map[uuid.UUID]*uint256.Int
	totalScaled *uint256.Int
}

func NewVariableDebtToken() *VariableDebtToken {
	return &VariableDebtToken{
		scaled:      make(map[uuid.UUID]*uint256.Int),
		totalScaled: fpmath.Zero(),
	}
}

func (vt *VariableDebtToken) ScaledBalanceOf(user uuid.UUID) *uint256.Int {
	if b, ok := vt.scaled[user]; ok {
		return new(uint256.Int).Set(b)
	}
	return fpmath.Zero()
}

func (vt *VariableDebtToken) ScaledTotalSupply() *uint256.Int {
	return new(uint256.Int).Set(vt.totalScaled)
}

// BalanceOf returns the compounded debt at the given borrow index.
func (vt *VariableDebtToken) BalanceOf(user uuid.UUID, index *uint256.Int) (*uint256.Int, error) {
	b, ok := vt.scaled[user]
	if !ok {
		return fpmath.Zero(), nil
	}
	return fpmath.RayMul(b, index)
}

func (vt *VariableDebtToken) TotalSupply(index *uint256.Int) (*uint256.Int, error) {
	return fpmath.RayMul(vt.totalScaled, index)
}

// Mint records new variable debt at the current index.
func (vt *VariableDebtToken) Mint(user uuid.UUID, amount, index *uint256.Int) error {
	scaledAmount, err := fpmath.RayDiv(amount, index)
	if err != nil {
		return err
	}
	if scaledAmount.IsZero() {
		return ErrInvalidMintAmount
	}

	b, existed := vt.scaled[user]
	if !existed {
		b = fpmath.Zero()
		vt.scaled[user] = b
	}
	b.Add(b, scaledAmount)
	vt.totalScaled.Add(vt.totalScaled, scaledAmount)
	return nil
}

// Burn repays variable debt at the current index. Returns true when the
// borrower's debt is fully cleared.
func (vt *VariableDebtToken) Burn(user uuid.UUID, amount, index *uint256.Int) (bool, error) {
	scaledAmount, err := fpmath.RayDiv(amount, index)
	if err != nil {
		return false, err
	}

	b, ok := vt.scaled[user]
	if !ok || b.Lt(scaledAmount) {
		return false, fmt.Errorf("%w: user %s", ErrInvalidBurnAmount, user)
	}

	b.Sub(b, scaledAmount)
	vt.totalScaled.Sub(vt.totalScaled, scaledAmount)
	return b.IsZero(), nil
}

func (vt *VariableDebtToken) Snapshot() map[string]string {
	out := make(map[string]string, len(vt.scaled))
	for user, b := range vt.scaled {
		if !b.IsZero() {
			out[user.String()] = b.Dec()
		}
	}
	return out
}

func (vt *VariableDebtToken) SetScaled(user uuid.UUID, scaled *uint256.Int) {
	prev := vt.ScaledBalanceOf(user)
	vt.totalScaled.Sub(vt.totalScaled, prev)
	vt.scaled[user] = new(uint256.Int).Set(scaled)
	vt.totalScaled.Add(vt.totalScaled, scaled)
}
