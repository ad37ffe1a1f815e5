package ledger

// AssetID maps asset symbols to numeric IDs for performance
type AssetID uint16

// AssetInfo describes a listed underlying asset.
type AssetInfo struct {
	ID       AssetID
	Symbol   string
	Decimals uint8
	// Rebasing marks underlyings whose nominal balance drifts
	// independently of transfers (stETH-style).
	Rebasing bool
}

// AssetRegistry resolves asset symbols to IDs for one ledger.
// Listings are append-only, so rollback clones can share the registry.
type AssetRegistry struct {
	bySymbol map[string]AssetID
	byID     map[AssetID]*AssetInfo
	nextID   AssetID
}

// NewAssetRegistry pre-lists the well-known underlyings.
func NewAssetRegistry() *AssetRegistry {
	reg := &AssetRegistry{
		bySymbol: make(map[string]AssetID),
		byID:     make(map[AssetID]*AssetInfo),
		nextID:   1,
	}
	reg.Register("DAI", 18, false)
	reg.Register("USDC", 6, false)
	reg.Register("WETH", 18, false)
	reg.Register("STETH", 18, true)
	return reg
}

func (reg *AssetRegistry) Lookup(symbol string) (AssetID, bool) {
	id, ok := reg.bySymbol[symbol]
	return id, ok
}

func (reg *AssetRegistry) Info(id AssetID) (*AssetInfo, bool) {
	info, ok := reg.byID[id]
	return info, ok
}

func (reg *AssetRegistry) Name(id AssetID) (string, bool) {
	info, ok := reg.byID[id]
	if !ok {
		return "", false
	}
	return info.Symbol, true
}

// Register lists a new underlying at reserve initialization.
// Returns the existing ID if the symbol is already listed.
func (reg *AssetRegistry) Register(symbol string, decimals uint8, rebasing bool) AssetID {
	if id, ok := reg.bySymbol[symbol]; ok {
		return id
	}
	id := reg.nextID
	reg.nextID++
	reg.bySymbol[symbol] = id
	reg.byID[id] = &AssetInfo{ID: id, Symbol: symbol, Decimals: decimals, Rebasing: rebasing}
	return id
}
