// Package rewards accrues liquidity-mining rewards to deposit-token
// holders using an accumulated-rewards-per-token index.
package rewards

import (
	"errors"

	fpmath "LendLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var ErrNothingToClaim = errors.New("rewards: nothing to claim")

// userState is one holder's reward bookkeeping: the index at their
// last settlement and the rewards banked up to that point.
type userState struct {
	index   *uint256.Int
	accrued *uint256.Int
}

// Distributor streams a fixed emission per second to one reserve's
// deposit-token holders pro rata by scaled balance. The global index
// accRewardsPerToken only needs updating when supply or emission
// changes, so every checkpoint is O(1).
// Not thread-safe — only mutated from the single-threaded core.
type Distributor struct {
	asset              string
	emissionPerSecond  *uint256.Int // reward units per second, ray precision
	accRewardsPerToken *uint256.Int // ray, rewards per scaled token unit
	lastUpdated        uint64
	users              map[uuid.UUID]*userState
}

func NewDistributor(asset string, emissionPerSecond *uint256.Int, now uint64) *Distributor {
	return &Distributor{
		asset:              asset,
		emissionPerSecond:  new(uint256.Int).Set(emissionPerSecond),
		accRewardsPerToken: fpmath.Zero(),
		lastUpdated:        now,
		users:              make(map[uuid.UUID]*userState),
	}
}

// Checkpoint advances the global index to now against the given scaled
// supply. Must run before the supply changes.
func (d *Distributor) Checkpoint(totalScaledSupply *uint256.Int, now uint64) error {
	if now <= d.lastUpdated {
		return nil
	}
	elapsed := now - d.lastUpdated
	d.lastUpdated = now

	if totalScaledSupply.IsZero() || d.emissionPerSecond.IsZero() {
		return nil
	}

	emitted := new(uint256.Int)
	if _, overflow := emitted.MulOverflow(d.emissionPerSecond, uint256.NewInt(elapsed)); overflow {
		return fpmath.ErrOverflow
	}
	delta, err := fpmath.RayDiv(emitted, totalScaledSupply)
	if err != nil {
		return err
	}
	d.accRewardsPerToken.Add(d.accRewardsPerToken, delta)
	return nil
}

// SettleUser banks the rewards the user earned since their last
// settlement at their given scaled balance. Must run with the balance
// the user held over the elapsed interval, before it changes.
func (d *Distributor) SettleUser(user uuid.UUID, scaledBalance *uint256.Int) error {
	us, ok := d.users[user]
	if !ok {
		us = &userState{index: fpmath.Zero(), accrued: fpmath.Zero()}
		d.users[user] = us
	}

	if !scaledBalance.IsZero() && d.accRewardsPerToken.Gt(us.index) {
		delta := new(uint256.Int).Sub(d.accRewardsPerToken, us.index)
		earned, err := fpmath.RayMul(scaledBalance, delta)
		if err != nil {
			return err
		}
		us.accrued.Add(us.accrued, earned)
	}
	us.index = new(uint256.Int).Set(d.accRewardsPerToken)
	return nil
}

// Accrued returns the user's banked rewards without settling.
func (d *Distributor) Accrued(user uuid.UUID) *uint256.Int {
	if us, ok := d.users[user]; ok {
		return new(uint256.Int).Set(us.accrued)
	}
	return fpmath.Zero()
}

// Claim zeroes and returns the user's banked rewards.
func (d *Distributor) Claim(user uuid.UUID) (*uint256.Int, error) {
	us, ok := d.users[user]
	if !ok || us.accrued.IsZero() {
		return nil, ErrNothingToClaim
	}
	out := us.accrued
	us.accrued = fpmath.Zero()
	return out, nil
}

// SetEmission changes the emission. The caller must Checkpoint first so
// the old rate applies up to now.
func (d *Distributor) SetEmission(emissionPerSecond *uint256.Int) {
	d.emissionPerSecond = new(uint256.Int).Set(emissionPerSecond)
}

func (d *Distributor) Asset() string { return d.asset }

// Clone returns a deep copy for rollback snapshots.
func (d *Distributor) Clone() *Distributor {
	users := make(map[uuid.UUID]*userState, len(d.users))
	for id, us := range d.users {
		users[id] = &userState{
			index:   new(uint256.Int).Set(us.index),
			accrued: new(uint256.Int).Set(us.accrued),
		}
	}
	return &Distributor{
		asset:              d.asset,
		emissionPerSecond:  new(uint256.Int).Set(d.emissionPerSecond),
		accRewardsPerToken: new(uint256.Int).Set(d.accRewardsPerToken),
		lastUpdated:        d.lastUpdated,
		users:              users,
	}
}

func (d *Distributor) AccRewardsPerToken() *uint256.Int {
	return new(uint256.Int).Set(d.accRewardsPerToken)
}

// Snap is the serializable distributor state.
type Snap struct {
	Asset              string               `json:"asset"`
	EmissionPerSecond  string               `json:"emission_per_second"`
	AccRewardsPerToken string               `json:"acc_rewards_per_token"`
	LastUpdated        uint64               `json:"last_updated"`
	Users              map[string]UserSnap  `json:"users"`
}

type UserSnap struct {
	Index   string `json:"index"`
	Accrued string `json:"accrued"`
}

func (d *Distributor) Snapshot() Snap {
	users := make(map[string]UserSnap, len(d.users))
	for user, us := range d.users {
		users[user.String()] = UserSnap{Index: us.index.Dec(), Accrued: us.accrued.Dec()}
	}
	return Snap{
		Asset:              d.asset,
		EmissionPerSecond:  d.emissionPerSecond.Dec(),
		AccRewardsPerToken: d.accRewardsPerToken.Dec(),
		LastUpdated:        d.lastUpdated,
		Users:              users,
	}
}

// Restore rebuilds a distributor from a snapshot.
func Restore(s Snap) (*Distributor, error) {
	emission, err := uint256.FromDecimal(s.EmissionPerSecond)
	if err != nil {
		return nil, err
	}
	acc, err := uint256.FromDecimal(s.AccRewardsPerToken)
	if err != nil {
		return nil, err
	}
	d := &Distributor{
		asset:              s.Asset,
		emissionPerSecond:  emission,
		accRewardsPerToken: acc,
		lastUpdated:        s.LastUpdated,
		users:              make(map[uuid.UUID]*userState, len(s.Users)),
	}
	for id, us := range s.Users {
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		index, err := uint256.FromDecimal(us.Index)
		if err != nil {
			return nil, err
		}
		accrued, err := uint256.FromDecimal(us.Accrued)
		if err != nil {
			return nil, err
		}
		d.users[uid] = &userState{index: index, accrued: accrued}
	}
	return d, nil
}
