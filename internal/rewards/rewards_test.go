package rewards_test

import (
	"testing"

	"LendLedger/internal/rewards"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

func dec(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return v
}

func TestSingleHolderEarnsFullEmission(t *testing.T) {
	emission := uint256.NewInt(100) // 100 units/sec
	d := rewards.NewDistributor("DAI", emission, 0)

	user := uuid.New()
	supply := dec(t, "1000000000000000000000") // 1000 wad scaled

	if err := d.Checkpoint(supply, 10); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := d.SettleUser(user, supply); err != nil {
		t.Fatalf("SettleUser: %v", err)
	}

	// Sole holder over 10s at 100/s earns 1000 units.
	got := d.Accrued(user)
	want := uint256.NewInt(1000)
	diff := new(uint256.Int)
	if got.Gt(want) {
		diff.Sub(got, want)
	} else {
		diff.Sub(want, got)
	}
	if diff.Gt(uint256.NewInt(1)) {
		t.Errorf("accrued = %s, want ~%s", got.Dec(), want.Dec())
	}
}

func TestTwoHoldersSplitProRata(t *testing.T) {
	d := rewards.NewDistributor("DAI", uint256.NewInt(90), 0)

	alice := uuid.New()
	bob := uuid.New()
	aliceBal := dec(t, "2000000000000000000000") // 2000
	bobBal := dec(t, "1000000000000000000000")   // 1000
	supply := new(uint256.Int).Add(aliceBal, bobBal)

	if err := d.Checkpoint(supply, 100); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := d.SettleUser(alice, aliceBal); err != nil {
		t.Fatalf("SettleUser alice: %v", err)
	}
	if err := d.SettleUser(bob, bobBal); err != nil {
		t.Fatalf("SettleUser bob: %v", err)
	}

	// 9000 emitted: alice gets 6000, bob 3000.
	if got := d.Accrued(alice); !within(got, uint256.NewInt(6000), 2) {
		t.Errorf("alice accrued = %s, want ~6000", got.Dec())
	}
	if got := d.Accrued(bob); !within(got, uint256.NewInt(3000), 2) {
		t.Errorf("bob accrued = %s, want ~3000", got.Dec())
	}
}

func TestCheckpointWithZeroSupplyEmitsNothing(t *testing.T) {
	d := rewards.NewDistributor("DAI", uint256.NewInt(100), 0)
	if err := d.Checkpoint(uint256.NewInt(0), 50); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if !d.AccRewardsPerToken().IsZero() {
		t.Error("index moved with zero supply")
	}
}

func TestClaimZeroesAccrued(t *testing.T) {
	d := rewards.NewDistributor("DAI", uint256.NewInt(100), 0)
	user := uuid.New()
	bal := dec(t, "1000000000000000000")

	if err := d.Checkpoint(bal, 10); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := d.SettleUser(user, bal); err != nil {
		t.Fatalf("SettleUser: %v", err)
	}

	first, err := d.Claim(user)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if first.IsZero() {
		t.Fatal("claimed zero")
	}
	if _, err := d.Claim(user); err != rewards.ErrNothingToClaim {
		t.Errorf("second claim err = %v, want ErrNothingToClaim", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	d := rewards.NewDistributor("DAI", uint256.NewInt(100), 0)
	user := uuid.New()
	bal := dec(t, "5000000000000000000")

	if err := d.Checkpoint(bal, 30); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := d.SettleUser(user, bal); err != nil {
		t.Fatalf("SettleUser: %v", err)
	}

	restored, err := rewards.Restore(d.Snapshot())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got, want := restored.Accrued(user), d.Accrued(user); !got.Eq(want) {
		t.Errorf("restored accrued = %s, want %s", got.Dec(), want.Dec())
	}
	if got, want := restored.AccRewardsPerToken(), d.AccRewardsPerToken(); !got.Eq(want) {
		t.Errorf("restored index = %s, want %s", got.Dec(), want.Dec())
	}
}

func within(got, want *uint256.Int, tol uint64) bool {
	diff := new(uint256.Int)
	if got.Gt(want) {
		diff.Sub(got, want)
	} else {
		diff.Sub(want, got)
	}
	return !diff.Gt(uint256.NewInt(tol))
}
