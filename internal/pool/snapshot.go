package pool

import (
	"LendLedger/internal/ledger"
	"LendLedger/internal/rewards"
	"LendLedger/internal/state"
)

// backupState captures the mutable state an operation may touch so a
// failure anywhere past validation restores the pool byte-identical to
// its pre-operation form. Reward distributors are included because
// deposit-side operations checkpoint them before validation can fail.
type backupState struct {
	reserves map[string]*state.Reserve
	rewards  map[string]*rewards.Distributor
	users    *state.UserRegistry
	book     *ledger.Ledger
}

func (p *Pool) backup(assets ...string) *backupState {
	bk := &backupState{
		reserves: make(map[string]*state.Reserve, len(assets)),
		rewards:  make(map[string]*rewards.Distributor, len(assets)),
		users:    p.users.Clone(),
		book:     p.book.Clone(),
	}
	for _, asset := range assets {
		if r, ok := p.reserves[asset]; ok {
			bk.reserves[asset] = r.Clone()
		}
		if d, ok := p.rewards[asset]; ok {
			bk.rewards[asset] = d.Clone()
		}
	}
	return bk
}

// fail restores the backup and passes the error through.
func (p *Pool) fail(bk *backupState, err error) error {
	for asset, saved := range bk.reserves {
		p.reserves[asset] = saved
	}
	for asset, saved := range bk.rewards {
		p.rewards[asset] = saved
	}
	p.users.Restore(bk.users)
	p.book.Restore(bk.book)

	p.log.Debug().Err(err).Msg("operation rolled back")
	return err
}
