package state

import (
	"github.com/google/uuid"
)

// UserConfig tracks which reserves a user has flagged as collateral.
// Deposit and debt balances live on the reserve token books; this only
// carries the per-user collateral toggles the account calculator reads.
type UserConfig struct {
	collateral map[string]bool
}

func NewUserConfig() *UserConfig {
	return &UserConfig{collateral: make(map[string]bool)}
}

func (uc *UserConfig) UsingAsCollateral(asset string) bool {
	return uc.collateral[asset]
}

func (uc *UserConfig) SetUsingAsCollateral(asset string, using bool) {
	if using {
		uc.collateral[asset] = true
	} else {
		delete(uc.collateral, asset)
	}
}

// CollateralAssets returns the flagged assets in no particular order.
func (uc *UserConfig) CollateralAssets() []string {
	out := make([]string, 0, len(uc.collateral))
	for asset := range uc.collateral {
		out = append(out, asset)
	}
	return out
}

// UserRegistry holds per-user configuration keyed by user ID, created
// lazily on first touch.
type UserRegistry struct {
	users map[uuid.UUID]*UserConfig
}

func NewUserRegistry() *UserRegistry {
	return &UserRegistry{users: make(map[uuid.UUID]*UserConfig)}
}

func (ur *UserRegistry) Get(user uuid.UUID) *UserConfig {
	if uc, ok := ur.users[user]; ok {
		return uc
	}
	uc := NewUserConfig()
	ur.users[user] = uc
	return uc
}

// Peek returns the config without creating one, nil when absent.
func (ur *UserRegistry) Peek(user uuid.UUID) *UserConfig {
	return ur.users[user]
}

func (ur *UserRegistry) Snapshot() map[string][]string {
	out := make(map[string][]string, len(ur.users))
	for user, uc := range ur.users {
		assets := uc.CollateralAssets()
		if len(assets) > 0 {
			out[user.String()] = assets
		}
	}
	return out
}
