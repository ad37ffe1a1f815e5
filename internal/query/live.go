package query

import (
	"fmt"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/pool"

	"github.com/google/uuid"
)

// LiveQuery answers user-level questions from in-memory core state
// instead of projections. Health factors and accrued balances depend on
// the current indices and oracle prices, so projecting them from event
// payloads would drift; reading the core under its view lock gives the
// exact numbers the next event would see.
type LiveQuery struct {
	core *core.DeterministicCore
}

func NewLiveQuery(c *core.DeterministicCore) *LiveQuery {
	return &LiveQuery{core: c}
}

// GetUserAccountData returns the user's cross-reserve risk summary with
// interest accrued to the current wall clock.
func (lq *LiveQuery) GetUserAccountData(userID uuid.UUID) (*AccountDataResponse, error) {
	now := uint64(time.Now().Unix())

	var resp *AccountDataResponse
	err := lq.core.View(func(p *pool.Pool, sequence int64) error {
		data, err := p.AccountData(userID, now)
		if err != nil {
			return fmt.Errorf("account data for %s: %w", userID, err)
		}
		resp = &AccountDataResponse{
			UserID:                  userID,
			TotalCollateral:         data.TotalCollateral.Dec(),
			TotalDebt:               data.TotalDebt.Dec(),
			AvailableBorrows:        data.AvailableBorrows.Dec(),
			AvgLtv:                  data.AvgLtv.Dec(),
			AvgLiquidationThreshold: data.AvgLiquidationThreshold.Dec(),
			HealthFactor:            data.HealthFactor.Dec(),
			AsOfSequence:            sequence,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetUserReserveData returns the user's position in one reserve with
// interest accrued to the current wall clock.
func (lq *LiveQuery) GetUserReserveData(userID uuid.UUID, asset string) (*UserReserveDataResponse, error) {
	now := uint64(time.Now().Unix())

	var resp *UserReserveDataResponse
	err := lq.core.View(func(p *pool.Pool, sequence int64) error {
		r, ok := p.Reserve(asset)
		if !ok {
			return fmt.Errorf("reserve %s: %w", asset, ErrNotFound)
		}

		deposit, err := p.DepositBalance(userID, asset, now)
		if err != nil {
			return fmt.Errorf("deposit balance: %w", err)
		}

		debtIndex, err := r.NormalizedDebt(now)
		if err != nil {
			return err
		}
		variableDebt, err := r.VariableDebt.BalanceOf(userID, debtIndex)
		if err != nil {
			return err
		}

		stableDebt, err := r.StableDebt.BalanceOf(userID, now)
		if err != nil {
			return err
		}

		uc := p.Users().Peek(userID)
		usingCollateral := uc != nil && uc.UsingAsCollateral(asset)

		resp = &UserReserveDataResponse{
			UserID:           userID,
			Reserve:          asset,
			DepositBalance:   deposit.Dec(),
			UsedAsCollateral: usingCollateral,
			VariableDebt:     variableDebt.Dec(),
			StableDebt:       stableDebt.Dec(),
			StablePrincipal:  r.StableDebt.PrincipalOf(userID).Dec(),
			StableRate:       r.StableDebt.RateOf(userID).Dec(),
			AsOfSequence:     sequence,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
