package ledger

import (
	"errors"
	"fmt"

	fpmath "LendLedger/internal/math"

	"github.com/holiman/uint256"
)

// ErrTransferFailed covers every underlying transfer failure, including
// insufficient balance. Callers classify with errors.Is.
var ErrTransferFailed = errors.New("ledger: transfer failed")

// Ledger maintains in-memory underlying token balances. It stands in for
// the external fungible-token ledger the pool settles against: deposits
// move tokens from the user wallet into the pool account, borrows move
// them out, and the reserve factor accrues into the treasury account.
//
// Balances are stored as shares. For ordinary assets the rebase index is
// exactly 1 ray and shares equal nominal amounts; for rebasing assets
// (stETH-style) nominal balance = shares × rebaseIndex, so a rebase moves
// every holder's nominal balance without a transfer.
//
// Not thread-safe — only accessed from the single-threaded core.
type Ledger struct {
	assets       *AssetRegistry
	shares       map[AccountKey]*uint256.Int
	rebaseIndex  map[AssetID]*uint256.Int
	totalShares  map[AssetID]*uint256.Int
	mintedSupply map[AssetID]*uint256.Int // nominal supply issued at the external boundary
	journal      []JournalEntry           // movements since the last drain, in order
}

func NewLedger() *Ledger {
	return &Ledger{
		assets:       NewAssetRegistry(),
		shares:       make(map[AccountKey]*uint256.Int),
		rebaseIndex:  make(map[AssetID]*uint256.Int),
		totalShares:  make(map[AssetID]*uint256.Int),
		mintedSupply: make(map[AssetID]*uint256.Int),
	}
}

// Assets returns the ledger's asset registry.
func (l *Ledger) Assets() *AssetRegistry {
	return l.assets
}

// JournalKind classifies a book movement for the durable journal.
type JournalKind int32

const (
	JournalTransfer JournalKind = iota + 1
	JournalIssue
	JournalRebase
)

func (k JournalKind) String() string {
	switch k {
	case JournalTransfer:
		return "transfer"
	case JournalIssue:
		return "issue"
	case JournalRebase:
		return "rebase"
	default:
		return "unknown"
	}
}

// JournalEntry records one settled book movement. Entries accumulate as
// operations apply and are drained once per applied event; a rolled-back
// operation's entries are discarded with the rest of the restore.
type JournalEntry struct {
	Debit   string // account path the amount left
	Credit  string // account path the amount entered
	AssetID AssetID
	Amount  *uint256.Int // nominal amount; the ray factor for a rebase
	Kind    JournalKind
}

// DrainJournal returns the movements recorded since the last drain and
// clears the buffer.
func (l *Ledger) DrainJournal() []JournalEntry {
	out := l.journal
	l.journal = nil
	return out
}

func (l *Ledger) index(assetID AssetID) *uint256.Int {
	if idx, ok := l.rebaseIndex[assetID]; ok {
		return idx
	}
	return fpmath.RAY
}

// BalanceOf returns the nominal balance of an account.
func (l *Ledger) BalanceOf(key AccountKey) *uint256.Int {
	sh, ok := l.shares[key]
	if !ok {
		return fpmath.Zero()
	}
	nominal, err := fpmath.RayMul(sh, l.index(key.AssetID))
	if err != nil {
		// Share totals are bounded by issuance; overflow here means
		// corrupted state, not a caller error.
		panic(fmt.Sprintf("FATAL: ledger balance overflow for %s: %v", l.assets.AccountPath(key), err))
	}
	return nominal
}

// Transfer moves a nominal amount between two accounts of the same asset.
func (l *Ledger) Transfer(from, to AccountKey, amount *uint256.Int) error {
	if from.AssetID != to.AssetID {
		return fmt.Errorf("%w: cross-asset transfer %s -> %s", ErrTransferFailed, l.assets.AccountPath(from), l.assets.AccountPath(to))
	}
	if amount.IsZero() {
		return nil
	}

	idx := l.index(from.AssetID)
	shareAmount, err := fpmath.RayDiv(amount, idx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	fromShares := l.shares[from]
	if fromShares == nil || fromShares.Lt(shareAmount) {
		return fmt.Errorf("%w: insufficient balance in %s: have %s, need %s",
			ErrTransferFailed, l.assets.AccountPath(from), l.BalanceOf(from), amount)
	}

	fromShares.Sub(fromShares, shareAmount)

	toShares, ok := l.shares[to]
	if !ok {
		toShares = fpmath.Zero()
		l.shares[to] = toShares
	}
	toShares.Add(toShares, shareAmount)

	l.journal = append(l.journal, JournalEntry{
		Debit:   l.assets.AccountPath(from),
		Credit:  l.assets.AccountPath(to),
		AssetID: from.AssetID,
		Amount:  new(uint256.Int).Set(amount),
		Kind:    JournalTransfer,
	})

	return nil
}

// Issue credits a nominal amount to an account from the external supply
// boundary. Used when funds enter the system (user funding, test setup).
func (l *Ledger) Issue(to AccountKey, amount *uint256.Int) error {
	idx := l.index(to.AssetID)
	shareAmount, err := fpmath.RayDiv(amount, idx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	toShares, ok := l.shares[to]
	if !ok {
		toShares = fpmath.Zero()
		l.shares[to] = toShares
	}
	toShares.Add(toShares, shareAmount)

	total, ok := l.totalShares[to.AssetID]
	if !ok {
		total = fpmath.Zero()
		l.totalShares[to.AssetID] = total
	}
	total.Add(total, shareAmount)

	minted, ok := l.mintedSupply[to.AssetID]
	if !ok {
		minted = fpmath.Zero()
		l.mintedSupply[to.AssetID] = minted
	}
	minted.Add(minted, amount)

	l.journal = append(l.journal, JournalEntry{
		Debit:   l.assets.AccountPath(NewExternalAccountKey(to.AssetID)),
		Credit:  l.assets.AccountPath(to),
		AssetID: to.AssetID,
		Amount:  new(uint256.Int).Set(amount),
		Kind:    JournalIssue,
	})

	return nil
}

// Rebase multiplies an asset's rebase index by factor (ray). Every
// holder's nominal balance scales without any transfer. A factor above
// 1 ray is a positive rebase; below, negative.
func (l *Ledger) Rebase(assetID AssetID, factor *uint256.Int) error {
	info, ok := l.assets.Info(assetID)
	if !ok || !info.Rebasing {
		return fmt.Errorf("asset %d is not rebasing", assetID)
	}

	current := l.index(assetID)
	next, err := fpmath.RayMul(current, factor)
	if err != nil {
		return err
	}
	l.rebaseIndex[assetID] = next

	ext := l.assets.AccountPath(NewExternalAccountKey(assetID))
	l.journal = append(l.journal, JournalEntry{
		Debit:   ext,
		Credit:  ext,
		AssetID: assetID,
		Amount:  new(uint256.Int).Set(factor),
		Kind:    JournalRebase,
	})

	return nil
}

// RebaseIndex returns the current rebase index for an asset (1 ray for
// non-rebasing assets).
func (l *Ledger) RebaseIndex(assetID AssetID) *uint256.Int {
	return new(uint256.Int).Set(l.index(assetID))
}

// TotalNominalSupply returns the current nominal supply of an asset
// (shares ever issued × current rebase index). Conservation checks
// compare this to the sum over all accounts.
func (l *Ledger) TotalNominalSupply(assetID AssetID) *uint256.Int {
	total, ok := l.totalShares[assetID]
	if !ok {
		return fpmath.Zero()
	}
	nominal, err := fpmath.RayMul(total, l.index(assetID))
	if err != nil {
		panic(fmt.Sprintf("FATAL: ledger supply overflow for asset %d: %v", assetID, err))
	}
	return nominal
}

// Snapshot returns a serializable copy of all ledger state.
func (l *Ledger) Snapshot() LedgerSnap {
	snap := LedgerSnap{
		Shares:       make(map[string]string, len(l.shares)),
		RebaseIndex:  make(map[string]string, len(l.rebaseIndex)),
		TotalShares:  make(map[string]string, len(l.totalShares)),
		MintedSupply: make(map[string]string, len(l.mintedSupply)),
	}
	for key, sh := range l.shares {
		snap.Shares[l.assets.AccountPath(key)] = sh.Dec()
	}
	for assetID, idx := range l.rebaseIndex {
		name, _ := l.assets.Name(assetID)
		snap.RebaseIndex[name] = idx.Dec()
	}
	for assetID, total := range l.totalShares {
		name, _ := l.assets.Name(assetID)
		snap.TotalShares[name] = total.Dec()
	}
	for assetID, minted := range l.mintedSupply {
		name, _ := l.assets.Name(assetID)
		snap.MintedSupply[name] = minted.Dec()
	}
	return snap
}

// SetShares restores one account's share balance (recovery path).
func (l *Ledger) SetShares(key AccountKey, shares *uint256.Int) {
	l.shares[key] = new(uint256.Int).Set(shares)
}

// SetRebaseIndex restores an asset's rebase index (recovery path).
func (l *Ledger) SetRebaseIndex(assetID AssetID, idx *uint256.Int) {
	l.rebaseIndex[assetID] = new(uint256.Int).Set(idx)
}

// SetTotalShares restores an asset's share supply (recovery path).
func (l *Ledger) SetTotalShares(assetID AssetID, total *uint256.Int) {
	l.totalShares[assetID] = new(uint256.Int).Set(total)
}

// SetMintedSupply restores an asset's issued nominal supply (recovery path).
func (l *Ledger) SetMintedSupply(assetID AssetID, minted *uint256.Int) {
	l.mintedSupply[assetID] = new(uint256.Int).Set(minted)
}

// LedgerSnap is the serializable ledger state.
type LedgerSnap struct {
	Shares       map[string]string `json:"shares"`
	RebaseIndex  map[string]string `json:"rebase_index"`
	TotalShares  map[string]string `json:"total_shares"`
	MintedSupply map[string]string `json:"minted_supply"`
}
