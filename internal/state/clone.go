package state

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Deep copies used for operation-level rollback: the pool clones every
// reserve an operation touches before mutating, and swaps the clone
// back in when the operation fails.

func (dt *DepositToken) Clone() *DepositToken {
	out := &DepositToken{
		scaled:      make(map[uuid.UUID]*uint256.Int, len(dt.scaled)),
		totalScaled: new(uint256.Int).Set(dt.totalScaled),
	}
	for user, b := range dt.scaled {
		out.scaled[user] = new(uint256.Int).Set(b)
	}
	return out
}

func (vt *VariableDebtToken) Clone() *VariableDebtToken {
	out := &VariableDebtToken{
		scaled:      make(map[uuid.UUID]*uint256.Int, len(vt.scaled)),
		totalScaled: new(uint256.Int).Set(vt.totalScaled),
	}
	for user, b := range vt.scaled {
		out.scaled[user] = new(uint256.Int).Set(b)
	}
	return out
}

func (st *StableDebtToken) Clone() *StableDebtToken {
	out := &StableDebtToken{
		positions:      make(map[uuid.UUID]*StablePosition, len(st.positions)),
		totalPrincipal: new(uint256.Int).Set(st.totalPrincipal),
		avgRate:        new(uint256.Int).Set(st.avgRate),
		totalTimestamp: st.totalTimestamp,
	}
	for user, p := range st.positions {
		out.positions[user] = &StablePosition{
			Principal:   new(uint256.Int).Set(p.Principal),
			Rate:        new(uint256.Int).Set(p.Rate),
			LastUpdated: p.LastUpdated,
		}
	}
	return out
}

// Clone copies the reserve's full accounting state. The strategy and
// static identity are shared; everything mutable is deep-copied.
func (r *Reserve) Clone() *Reserve {
	return &Reserve{
		Asset:                     r.Asset,
		AssetID:                   r.AssetID,
		Config:                    r.Config,
		Strategy:                  r.Strategy,
		LiquidityIndex:            new(uint256.Int).Set(r.LiquidityIndex),
		VariableBorrowIndex:       new(uint256.Int).Set(r.VariableBorrowIndex),
		CurrentLiquidityRate:      new(uint256.Int).Set(r.CurrentLiquidityRate),
		CurrentVariableBorrowRate: new(uint256.Int).Set(r.CurrentVariableBorrowRate),
		CurrentStableBorrowRate:   new(uint256.Int).Set(r.CurrentStableBorrowRate),
		LastUpdateTimestamp:       r.LastUpdateTimestamp,
		DepositToken:              r.DepositToken.Clone(),
		VariableDebt:              r.VariableDebt.Clone(),
		StableDebt:                r.StableDebt.Clone(),
	}
}

func (uc *UserConfig) Clone() *UserConfig {
	out := NewUserConfig()
	for asset, using := range uc.collateral {
		out.collateral[asset] = using
	}
	return out
}

func (ur *UserRegistry) Clone() *UserRegistry {
	out := NewUserRegistry()
	for user, uc := range ur.users {
		out.users[user] = uc.Clone()
	}
	return out
}

// Restore swaps the registry's contents for the clone's.
func (ur *UserRegistry) Restore(from *UserRegistry) {
	ur.users = from.users
}
