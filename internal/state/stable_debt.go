package state

import (
	"errors"
	"fmt"

	fpmath "LendLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var ErrNoStableDebt = errors.New("state: user has no stable debt")

// StablePosition is one borrower's stable-rate loan: principal locked
// at a fixed coupon. Interest compounds from LastUpdated at Rate
// regardless of later market moves.
type StablePosition struct {
	Principal   *uint256.Int
	Rate        *uint256.Int
	LastUpdated uint64
}

// StableDebtToken tracks stable-rate debt. The book-wide average rate
// is stored directly and re-weighted at each position change, so a
// sole borrower's average is exactly their locked rate; deriving it
// from a Σ principal×rate aggregate instead would round-trip through
// rayMul/rayDiv and drift by up to RAY/(2·principal) per settlement.
// Totals compounds the principal from totalTimestamp at the average
// rate, the standard approximation for a mixed-coupon book.
// Not thread-safe — only mutated from the single-threaded core.
type StableDebtToken struct {
	positions      map[uuid.UUID]*StablePosition
	totalPrincipal *uint256.Int
	avgRate        *uint256.Int // ray, principal-weighted average coupon
	totalTimestamp uint64
}

func NewStableDebtToken() *StableDebtToken {
	return &StableDebtToken{
		positions:      make(map[uuid.UUID]*StablePosition),
		totalPrincipal: fpmath.Zero(),
		avgRate:        fpmath.Zero(),
	}
}

// BalanceOf returns the borrower's compounded stable debt at now.
func (st *StableDebtToken) BalanceOf(user uuid.UUID, now uint64) (*uint256.Int, error) {
	p, ok := st.positions[user]
	if !ok {
		return fpmath.Zero(), nil
	}
	return compoundPosition(p.Principal, p.Rate, p.LastUpdated, now)
}

// PrincipalOf returns the borrower's last-settled principal.
func (st *StableDebtToken) PrincipalOf(user uuid.UUID) *uint256.Int {
	if p, ok := st.positions[user]; ok {
		return new(uint256.Int).Set(p.Principal)
	}
	return fpmath.Zero()
}

// RateOf returns the borrower's locked rate, zero when no debt.
func (st *StableDebtToken) RateOf(user uuid.UUID) *uint256.Int {
	if p, ok := st.positions[user]; ok {
		return new(uint256.Int).Set(p.Rate)
	}
	return fpmath.Zero()
}

func (st *StableDebtToken) LastUpdatedOf(user uuid.UUID) uint64 {
	if p, ok := st.positions[user]; ok {
		return p.LastUpdated
	}
	return 0
}

// AverageRate returns the principal-weighted average coupon, zero on an
// empty book.
func (st *StableDebtToken) AverageRate() *uint256.Int {
	return new(uint256.Int).Set(st.avgRate)
}

// Totals returns the compounded total supply and the average rate.
func (st *StableDebtToken) Totals(now uint64) (*uint256.Int, *uint256.Int, error) {
	avg := st.AverageRate()
	if st.totalPrincipal.IsZero() {
		return fpmath.Zero(), avg, nil
	}
	total, err := compoundPosition(st.totalPrincipal, avg, st.totalTimestamp, now)
	if err != nil {
		return nil, nil, err
	}
	return total, avg, nil
}

// TotalPrincipal returns the last-settled aggregate principal.
func (st *StableDebtToken) TotalPrincipal() *uint256.Int {
	return new(uint256.Int).Set(st.totalPrincipal)
}

// Mint settles the borrower's accrued interest into principal, adds the
// new amount, and re-locks the position at the blended rate
// (oldBalance×oldRate + amount×newRate) / (oldBalance + amount).
func (st *StableDebtToken) Mint(user uuid.UUID, amount, rate *uint256.Int, now uint64) error {
	if amount.IsZero() {
		return ErrInvalidMintAmount
	}

	settled, err := st.BalanceOf(user, now)
	if err != nil {
		return err
	}
	oldRate := st.RateOf(user)

	newPrincipal := new(uint256.Int).Add(settled, amount)
	oldWeighted, err := fpmath.RayMul(settled, oldRate)
	if err != nil {
		return err
	}
	addWeighted, err := fpmath.RayMul(amount, rate)
	if err != nil {
		return err
	}
	blended, err := fpmath.RayDiv(new(uint256.Int).Add(oldWeighted, addWeighted), newPrincipal)
	if err != nil {
		return err
	}

	if err := st.settleTotals(user, newPrincipal, blended, now); err != nil {
		return err
	}
	st.positions[user] = &StablePosition{
		Principal:   newPrincipal,
		Rate:        blended,
		LastUpdated: now,
	}
	return nil
}

// Burn settles the borrower and reduces their debt. The locked rate is
// unchanged by a partial repayment; a full repayment removes the
// position. Returns true when the debt is fully cleared.
func (st *StableDebtToken) Burn(user uuid.UUID, amount *uint256.Int, now uint64) (bool, error) {
	p, ok := st.positions[user]
	if !ok {
		return false, ErrNoStableDebt
	}

	settled, err := compoundPosition(p.Principal, p.Rate, p.LastUpdated, now)
	if err != nil {
		return false, err
	}
	if settled.Lt(amount) {
		return false, fmt.Errorf("%w: user %s", ErrInvalidBurnAmount, user)
	}

	remaining := new(uint256.Int).Sub(settled, amount)
	if remaining.IsZero() {
		if err := st.settleTotals(user, fpmath.Zero(), fpmath.Zero(), now); err != nil {
			return false, err
		}
		delete(st.positions, user)
		return true, nil
	}

	if err := st.settleTotals(user, remaining, p.Rate, now); err != nil {
		return false, err
	}
	p.Principal = remaining
	p.LastUpdated = now
	return false, nil
}

// Rebalance re-locks the borrower's settled balance at a new rate.
func (st *StableDebtToken) Rebalance(user uuid.UUID, newRate *uint256.Int, now uint64) error {
	p, ok := st.positions[user]
	if !ok {
		return ErrNoStableDebt
	}
	settled, err := compoundPosition(p.Principal, p.Rate, p.LastUpdated, now)
	if err != nil {
		return err
	}
	if err := st.settleTotals(user, settled, newRate, now); err != nil {
		return err
	}
	p.Principal = settled
	p.Rate = new(uint256.Int).Set(newRate)
	p.LastUpdated = now
	return nil
}

// settleTotals rolls the aggregate book forward to now and swaps the
// user's old (principal, rate) contribution for the new one. The
// average is re-blended from the rest of the book and the new
// position, so a sole borrower's average stays exactly their rate.
func (st *StableDebtToken) settleTotals(user uuid.UUID, newPrincipal, newRate *uint256.Int, now uint64) error {
	// Roll accrued interest on the whole book into totalPrincipal so
	// the aggregate stays consistent with per-user settlement. The
	// average rate is unchanged by the roll.
	if !st.totalPrincipal.IsZero() {
		rolled, err := compoundPosition(st.totalPrincipal, st.avgRate, st.totalTimestamp, now)
		if err != nil {
			return err
		}
		st.totalPrincipal = rolled
	}
	st.totalTimestamp = now

	var oldSettled *uint256.Int
	if p, ok := st.positions[user]; ok {
		var err error
		oldSettled, err = compoundPosition(p.Principal, p.Rate, p.LastUpdated, now)
		if err != nil {
			return err
		}
	} else {
		oldSettled = fpmath.Zero()
	}

	// Per-user and aggregate compounding can disagree by a few units.
	remaining := fpmath.Zero()
	if st.totalPrincipal.Gt(oldSettled) {
		remaining = new(uint256.Int).Sub(st.totalPrincipal, oldSettled)
	}
	newTotal := new(uint256.Int).Add(remaining, newPrincipal)

	switch {
	case newTotal.IsZero():
		st.avgRate = fpmath.Zero()
	case remaining.IsZero():
		st.avgRate = new(uint256.Int).Set(newRate)
	default:
		restWeighted, err := fpmath.RayMul(remaining, st.avgRate)
		if err != nil {
			return err
		}
		newWeighted, err := fpmath.RayMul(newPrincipal, newRate)
		if err != nil {
			return err
		}
		st.avgRate, err = fpmath.RayDiv(new(uint256.Int).Add(restWeighted, newWeighted), newTotal)
		if err != nil {
			return err
		}
	}
	st.totalPrincipal = newTotal
	return nil
}

func compoundPosition(principal, rate *uint256.Int, from, to uint64) (*uint256.Int, error) {
	if principal.IsZero() || rate.IsZero() || from >= to {
		return new(uint256.Int).Set(principal), nil
	}
	factor, err := fpmath.CalculateCompoundedInterest(rate, from, to)
	if err != nil {
		return nil, err
	}
	return fpmath.RayMul(principal, factor)
}

// StableSnap is the serializable form of one stable position.
type StableSnap struct {
	Principal   string `json:"principal"`
	Rate        string `json:"rate"`
	LastUpdated uint64 `json:"last_updated"`
}

func (st *StableDebtToken) Snapshot() map[string]StableSnap {
	out := make(map[string]StableSnap, len(st.positions))
	for user, p := range st.positions {
		out[user.String()] = StableSnap{
			Principal:   p.Principal.Dec(),
			Rate:        p.Rate.Dec(),
			LastUpdated: p.LastUpdated,
		}
	}
	return out
}

// SetPosition restores one borrower's stable position (recovery path).
// Aggregates must be restored separately via SetTotals.
func (st *StableDebtToken) SetPosition(user uuid.UUID, principal, rate *uint256.Int, lastUpdated uint64) {
	st.positions[user] = &StablePosition{
		Principal:   new(uint256.Int).Set(principal),
		Rate:        new(uint256.Int).Set(rate),
		LastUpdated: lastUpdated,
	}
}

func (st *StableDebtToken) SetTotals(totalPrincipal, avgRate *uint256.Int, timestamp uint64) {
	st.totalPrincipal = new(uint256.Int).Set(totalPrincipal)
	st.avgRate = new(uint256.Int).Set(avgRate)
	st.totalTimestamp = timestamp
}

func (st *StableDebtToken) TotalTimestamp() uint64 {
	return st.totalTimestamp
}
