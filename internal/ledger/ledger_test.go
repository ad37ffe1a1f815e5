package ledger_test

import (
	"errors"
	"testing"

	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

func wad(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), fpmath.WAD)
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	l := ledger.NewLedger()
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	assetID, _ := l.Assets().Lookup("DAI")
	key := ledger.NewUserAccountKey(userID, assetID)

	path := l.Assets().AccountPath(key)
	expected := "user:550e8400-e29b-41d4-a716-446655440000:DAI"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_PoolPath(t *testing.T) {
	l := ledger.NewLedger()
	assetID, _ := l.Assets().Lookup("WETH")
	key := ledger.NewPoolAccountKey(assetID)

	if path := l.Assets().AccountPath(key); path != "pool:WETH" {
		t.Errorf("got %q, want %q", path, "pool:WETH")
	}
}

func TestAssetLookup_Unknown(t *testing.T) {
	_, ok := ledger.NewLedger().Assets().Lookup("DOGE")
	if ok {
		t.Error("DOGE should not be a known asset")
	}
}

func TestAssetRegister_Idempotent(t *testing.T) {
	reg := ledger.NewLedger().Assets()
	a := reg.Register("LINK", 18, false)
	b := reg.Register("LINK", 18, false)
	if a != b {
		t.Errorf("re-listing returned different IDs: %d vs %d", a, b)
	}
}

func TestAssetRegister_ScopedToLedger(t *testing.T) {
	a := ledger.NewLedger()
	b := ledger.NewLedger()

	id := a.Assets().Register("LINK", 18, false)
	if _, ok := b.Assets().Lookup("LINK"); ok {
		t.Error("listing on one ledger leaked into another")
	}
	if got, _ := a.Assets().Lookup("LINK"); got != id {
		t.Errorf("lookup after register: got %d, want %d", got, id)
	}
}

// ============================================================================
// Test: Ledger
// ============================================================================

func TestLedger_InitialBalanceZero(t *testing.T) {
	l := ledger.NewLedger()
	assetID, _ := l.Assets().Lookup("DAI")

	balance := l.BalanceOf(ledger.NewUserAccountKey(uuid.New(), assetID))
	if !balance.IsZero() {
		t.Errorf("initial balance should be 0, got %s", balance)
	}
}

func TestLedger_IssueAndTransfer(t *testing.T) {
	l := ledger.NewLedger()
	assetID, _ := l.Assets().Lookup("DAI")
	userID := uuid.New()

	userKey := ledger.NewUserAccountKey(userID, assetID)
	poolKey := ledger.NewPoolAccountKey(assetID)

	if err := l.Issue(userKey, wad(1000)); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := l.Transfer(userKey, poolKey, wad(400)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if got := l.BalanceOf(userKey); !got.Eq(wad(600)) {
		t.Errorf("user balance: got %s, want %s", got, wad(600))
	}
	if got := l.BalanceOf(poolKey); !got.Eq(wad(400)) {
		t.Errorf("pool balance: got %s, want %s", got, wad(400))
	}
}

func TestLedger_TransferInsufficient(t *testing.T) {
	l := ledger.NewLedger()
	assetID, _ := l.Assets().Lookup("DAI")
	userKey := ledger.NewUserAccountKey(uuid.New(), assetID)
	poolKey := ledger.NewPoolAccountKey(assetID)

	err := l.Transfer(userKey, poolKey, wad(1))
	if !errors.Is(err, ledger.ErrTransferFailed) {
		t.Errorf("expected ErrTransferFailed, got %v", err)
	}
}

func TestLedger_CrossAssetTransferRejected(t *testing.T) {
	l := ledger.NewLedger()
	dai, _ := l.Assets().Lookup("DAI")
	weth, _ := l.Assets().Lookup("WETH")

	err := l.Transfer(ledger.NewPoolAccountKey(dai), ledger.NewPoolAccountKey(weth), wad(1))
	if !errors.Is(err, ledger.ErrTransferFailed) {
		t.Errorf("expected ErrTransferFailed, got %v", err)
	}
}

// ============================================================================
// Test: rebasing underlyings
// ============================================================================

func TestLedger_RebaseScalesAllHolders(t *testing.T) {
	l := ledger.NewLedger()
	steth, _ := l.Assets().Lookup("STETH")
	userKey := ledger.NewUserAccountKey(uuid.New(), steth)
	poolKey := ledger.NewPoolAccountKey(steth)

	if err := l.Issue(userKey, wad(1000)); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := l.Transfer(userKey, poolKey, wad(1000)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	// +10% rebase: pool's nominal balance drifts to 1100 with no transfer.
	factor, _ := uint256.FromDecimal("1100000000000000000000000000")
	if err := l.Rebase(steth, factor); err != nil {
		t.Fatalf("Rebase: %v", err)
	}

	got := l.BalanceOf(poolKey)
	want := wad(1100)
	if diff := absDiff(got, want); diff.Uint64() > 2 {
		t.Errorf("pool balance after rebase: got %s, want %s", got, want)
	}

	supply := l.TotalNominalSupply(steth)
	if diff := absDiff(supply, want); diff.Uint64() > 2 {
		t.Errorf("total supply after rebase: got %s, want %s", supply, want)
	}
}

func TestLedger_RebaseNonRebasingAssetRejected(t *testing.T) {
	l := ledger.NewLedger()
	dai, _ := l.Assets().Lookup("DAI")

	factor, _ := uint256.FromDecimal("1100000000000000000000000000")
	if err := l.Rebase(dai, factor); err == nil {
		t.Error("rebasing DAI should fail")
	}
}

func TestLedger_TransferAfterRebaseUsesNominal(t *testing.T) {
	l := ledger.NewLedger()
	steth, _ := l.Assets().Lookup("STETH")
	aKey := ledger.NewUserAccountKey(uuid.New(), steth)
	bKey := ledger.NewUserAccountKey(uuid.New(), steth)

	if err := l.Issue(aKey, wad(1000)); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	factor, _ := uint256.FromDecimal("2000000000000000000000000000") // ×2
	if err := l.Rebase(steth, factor); err != nil {
		t.Fatalf("Rebase: %v", err)
	}

	// A now reads 2000 nominal; transferring 2000 must drain the account.
	if err := l.Transfer(aKey, bKey, wad(2000)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := l.BalanceOf(aKey); got.Uint64() > 2 {
		t.Errorf("sender should be drained, got %s", got)
	}
	if got := l.BalanceOf(bKey); absDiff(got, wad(2000)).Uint64() > 2 {
		t.Errorf("receiver balance: got %s, want %s", got, wad(2000))
	}
}

func absDiff(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return new(uint256.Int).Sub(a, b)
	}
	return new(uint256.Int).Sub(b, a)
}
