package oracle

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrPriceUnavailable is returned when an asset has no usable price feed.
var ErrPriceUnavailable = errors.New("oracle: price unavailable")

// PriceOracle is the external price feed consumed by the pool. Prices are
// wad-scaled base-currency units per whole unit of the asset.
type PriceOracle interface {
	GetAssetPrice(asset string) (*uint256.Int, error)
}

// priceState tracks the latest feed value for one asset.
type priceState struct {
	price     *uint256.Int
	sequence  int64
	updatedAt int64 // feed timestamp, epoch seconds
}

// Feed is the in-process oracle fed by PriceUpdate events. Stale updates
// (by feed sequence) are silently ignored; gaps are tolerated, matching
// the gap-tolerant price sequencing of the ingestion layer.
// Not thread-safe — only mutated from the single-threaded core.
type Feed struct {
	prices map[string]*priceState

	// maxAge of 0 disables staleness checks (tests, replay).
	maxAge int64
}

func NewFeed(maxAgeSeconds int64) *Feed {
	return &Feed{
		prices: make(map[string]*priceState),
		maxAge: maxAgeSeconds,
	}
}

// SetAssetPrice records a feed update. Returns false if the update was
// stale (sequence at or below the last applied one) and was dropped.
func (f *Feed) SetAssetPrice(asset string, price *uint256.Int, sequence, timestamp int64) bool {
	st, ok := f.prices[asset]
	if ok && sequence <= st.sequence {
		return false
	}
	f.prices[asset] = &priceState{
		price:     new(uint256.Int).Set(price),
		sequence:  sequence,
		updatedAt: timestamp,
	}
	return true
}

// GetAssetPrice returns the latest price for asset.
func (f *Feed) GetAssetPrice(asset string) (*uint256.Int, error) {
	st, ok := f.prices[asset]
	if !ok {
		return nil, fmt.Errorf("%w: no feed for %s", ErrPriceUnavailable, asset)
	}
	return new(uint256.Int).Set(st.price), nil
}

// GetAssetPriceAt additionally enforces the staleness bound against a
// versioned operation timestamp (the core never uses wall-clock time).
func (f *Feed) GetAssetPriceAt(asset string, now int64) (*uint256.Int, error) {
	st, ok := f.prices[asset]
	if !ok {
		return nil, fmt.Errorf("%w: no feed for %s", ErrPriceUnavailable, asset)
	}
	if f.maxAge > 0 && now-st.updatedAt > f.maxAge {
		return nil, fmt.Errorf("%w: %s price is %ds old", ErrPriceUnavailable, asset, now-st.updatedAt)
	}
	return new(uint256.Int).Set(st.price), nil
}

// Snapshot returns a copy of all feed state for persistence.
func (f *Feed) Snapshot() map[string]PriceSnap {
	out := make(map[string]PriceSnap, len(f.prices))
	for asset, st := range f.prices {
		out[asset] = PriceSnap{
			Price:     st.price.Dec(),
			Sequence:  st.sequence,
			UpdatedAt: st.updatedAt,
		}
	}
	return out
}

// Restore loads feed state from a snapshot.
func (f *Feed) Restore(asset string, snap PriceSnap) error {
	price, err := uint256.FromDecimal(snap.Price)
	if err != nil {
		return fmt.Errorf("restore price for %s: %w", asset, err)
	}
	f.prices[asset] = &priceState{
		price:     price,
		sequence:  snap.Sequence,
		updatedAt: snap.UpdatedAt,
	}
	return nil
}

// PriceSnap is a serializable price feed state.
type PriceSnap struct {
	Price     string `json:"price"`
	Sequence  int64  `json:"sequence"`
	UpdatedAt int64  `json:"updated_at"`
}
