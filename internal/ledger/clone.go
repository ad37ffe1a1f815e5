package ledger

import (
	"github.com/holiman/uint256"
)

// Clone deep-copies the ledger for operation-level rollback.
func (l *Ledger) Clone() *Ledger {
	out := NewLedger()
	// Listings are append-only, so the registry is shared, not copied.
	out.assets = l.assets
	for key, s := range l.shares {
		out.shares[key] = new(uint256.Int).Set(s)
	}
	for id, idx := range l.rebaseIndex {
		out.rebaseIndex[id] = new(uint256.Int).Set(idx)
	}
	for id, total := range l.totalShares {
		out.totalShares[id] = new(uint256.Int).Set(total)
	}
	for id, minted := range l.mintedSupply {
		out.mintedSupply[id] = new(uint256.Int).Set(minted)
	}
	if len(l.journal) > 0 {
		out.journal = make([]JournalEntry, len(l.journal))
		copy(out.journal, l.journal)
	}
	return out
}

// Restore swaps the ledger's contents for the clone's.
func (l *Ledger) Restore(from *Ledger) {
	l.assets = from.assets
	l.shares = from.shares
	l.rebaseIndex = from.rebaseIndex
	l.totalShares = from.totalShares
	l.mintedSupply = from.mintedSupply
	l.journal = from.journal
}
