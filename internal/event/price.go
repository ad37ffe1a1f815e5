package event

import (
	"fmt"

	"github.com/holiman/uint256"
)

// PriceUpdate carries an oracle price for one asset.
type PriceUpdate struct {
	Reserve        string       `json:"reserve"`
	Price          *uint256.Int `json:"price"` // base currency per whole token, wad
	PriceSequence  int64        `json:"price_sequence"` // monotonic per asset
	PriceTimestamp int64        `json:"price_timestamp"` // epoch seconds (versioned input)
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:price:%d", p.Reserve, p.PriceSequence)
}

func (p *PriceUpdate) EventType() EventType {
	return EventTypePriceUpdate
}

func (p *PriceUpdate) Asset() *string {
	return &p.Reserve
}

func (p *PriceUpdate) SourceSequence() int64 {
	return p.PriceSequence
}
