package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopePool
	AccountScopeTreasury
	AccountScopeExternal
)

// AccountKey is the in-memory key for underlying token balances.
// User accounts are wallets outside the pool; pool accounts hold a
// reserve's available liquidity; treasury accounts collect the reserve
// factor; external accounts are the supply boundary of the ledger.
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, zero for pool/treasury/external
	AssetID  AssetID
}

// NewUserAccountKey creates a key for a user wallet.
func NewUserAccountKey(userID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		AssetID:  assetID,
	}
}

// NewPoolAccountKey creates the key for a reserve's liquidity holding account.
func NewPoolAccountKey(assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopePool,
		AssetID: assetID,
	}
}

// NewTreasuryAccountKey creates the key for the protocol collector.
func NewTreasuryAccountKey(assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeTreasury,
		AssetID: assetID,
	}
}

// NewExternalAccountKey creates the key for the supply boundary account.
func NewExternalAccountKey(assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		AssetID: assetID,
	}
}

// AccountPath returns the key's string representation for
// storage/logging, resolving the asset symbol through the registry.
func (reg *AssetRegistry) AccountPath(k AccountKey) string {
	assetName, _ := reg.Name(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s", uid.String(), assetName)
	case AccountScopePool:
		return fmt.Sprintf("pool:%s", assetName)
	case AccountScopeTreasury:
		return fmt.Sprintf("treasury:%s", assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s", assetName)
	}
	return "unknown"
}

// ParseAccountPath inverts AccountPath. The referenced asset must
// already be listed so its symbol resolves to an ID.
func (reg *AssetRegistry) ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")

	resolve := func(symbol string) (AssetID, error) {
		id, ok := reg.Lookup(symbol)
		if !ok {
			return 0, fmt.Errorf("unknown asset %q in account path %q", symbol, path)
		}
		return id, nil
	}

	switch {
	case len(parts) == 3 && parts[0] == "user":
		uid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("bad user id in account path %q: %w", path, err)
		}
		assetID, err := resolve(parts[2])
		if err != nil {
			return AccountKey{}, err
		}
		return NewUserAccountKey(uid, assetID), nil
	case len(parts) == 2:
		assetID, err := resolve(parts[1])
		if err != nil {
			return AccountKey{}, err
		}
		switch parts[0] {
		case "pool":
			return NewPoolAccountKey(assetID), nil
		case "treasury":
			return NewTreasuryAccountKey(assetID), nil
		case "external":
			return NewExternalAccountKey(assetID), nil
		}
	}
	return AccountKey{}, fmt.Errorf("malformed account path %q", path)
}
