// Package pool orchestrates all lending operations against the reserve
// state machines: validation, interest accrual, balance mutation, rate
// refresh and health-factor enforcement, with atomic rollback on any
// failure past validation.
package pool

import (
	"fmt"
	"sort"

	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/oracle"
	"LendLedger/internal/rates"
	"LendLedger/internal/rewards"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// RateMode selects which debt book a borrow/repay targets.
type RateMode uint8

const (
	RateModeNone RateMode = iota
	RateModeStable
	RateModeVariable
)

func (m RateMode) String() string {
	switch m {
	case RateModeStable:
		return "stable"
	case RateModeVariable:
		return "variable"
	default:
		return "none"
	}
}

// Pool owns every reserve and serializes all mutations. The core feeds
// it one operation at a time; nothing here is safe for concurrent use.
type Pool struct {
	reserves map[string]*state.Reserve
	assets   []string // sorted, for deterministic iteration
	users    *state.UserRegistry
	book     *ledger.Ledger
	prices   *oracle.Feed
	policy   state.PolicyConfig
	rewards  map[string]*rewards.Distributor
	paused   bool
	log      zerolog.Logger
}

func New(book *ledger.Ledger, prices *oracle.Feed, policy state.PolicyConfig, log zerolog.Logger) *Pool {
	return &Pool{
		reserves: make(map[string]*state.Reserve),
		users:    state.NewUserRegistry(),
		book:     book,
		prices:   prices,
		policy:   policy,
		rewards:  make(map[string]*rewards.Distributor),
		log:      log.With().Str("component", "pool").Logger(),
	}
}

// InitReserve lists a new asset. The asset must already be registered
// with the underlying ledger.
func (p *Pool) InitReserve(asset string, cfg state.ReserveConfig, strategyCfg rates.StrategyConfig, now uint64) error {
	if _, exists := p.reserves[asset]; exists {
		return fmt.Errorf("%w: %s", ErrReserveAlreadyListed, asset)
	}
	assetID, ok := p.book.Assets().Lookup(asset)
	if !ok {
		return fmt.Errorf("%w: %s not listed with ledger", ErrReserveNotFound, asset)
	}
	if err := state.ValidateReserveConfig(cfg); err != nil {
		return err
	}

	p.reserves[asset] = state.NewReserve(asset, uint16(assetID), cfg, rates.NewStrategy(strategyCfg), now)
	p.assets = append(p.assets, asset)
	sort.Strings(p.assets)

	p.log.Info().Str("asset", asset).Uint64("timestamp", now).Msg("reserve initialized")
	return nil
}

// ConfigureReserve replaces a listed reserve's risk parameters.
func (p *Pool) ConfigureReserve(asset string, cfg state.ReserveConfig) error {
	r, ok := p.reserves[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrReserveNotFound, asset)
	}
	if err := state.ValidateReserveConfig(cfg); err != nil {
		return err
	}
	r.Config = cfg
	p.log.Info().Str("asset", asset).Msg("reserve reconfigured")
	return nil
}

// SetPause halts or resumes all mutating operations.
func (p *Pool) SetPause(paused bool) {
	p.paused = paused
	p.log.Warn().Bool("paused", paused).Msg("pause state changed")
}

// SetFreeze blocks deposits and borrows on one reserve; withdrawals and
// repayments stay open.
func (p *Pool) SetFreeze(asset string, frozen bool) error {
	r, ok := p.reserves[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrReserveNotFound, asset)
	}
	r.Config.Frozen = frozen
	p.log.Warn().Str("asset", asset).Bool("frozen", frozen).Msg("freeze state changed")
	return nil
}

// AttachDistributor wires a liquidity-mining distributor to a reserve's
// deposit token.
func (p *Pool) AttachDistributor(asset string, d *rewards.Distributor) {
	p.rewards[asset] = d
}

// Reserve exposes a listed reserve to the read side.
func (p *Pool) Reserve(asset string) (*state.Reserve, bool) {
	r, ok := p.reserves[asset]
	return r, ok
}

// Assets returns the listed assets in sorted order.
func (p *Pool) Assets() []string {
	out := make([]string, len(p.assets))
	copy(out, p.assets)
	return out
}

func (p *Pool) Users() *state.UserRegistry { return p.users }

func (p *Pool) Policy() state.PolicyConfig { return p.policy }

func (p *Pool) Paused() bool { return p.paused }

// Distributor returns the liquidity-mining distributor attached to a
// reserve, if any.
func (p *Pool) Distributor(asset string) (*rewards.Distributor, bool) {
	d, ok := p.rewards[asset]
	return d, ok
}

// Distributors exposes the attached distributors keyed by asset.
func (p *Pool) Distributors() map[string]*rewards.Distributor {
	return p.rewards
}

// InstallSnapshot swaps in restored reserves and user configuration.
// Used by warm-restart recovery before event replay.
func (p *Pool) InstallSnapshot(reserves map[string]*state.Reserve, users *state.UserRegistry) {
	p.reserves = reserves
	p.assets = p.assets[:0]
	for asset := range reserves {
		p.assets = append(p.assets, asset)
	}
	sort.Strings(p.assets)
	if users != nil {
		p.users = users
	}
}

// AvailableLiquidity is the reserve's idle underlying held by the pool.
func (p *Pool) AvailableLiquidity(asset string) *uint256.Int {
	r, ok := p.reserves[asset]
	if !ok {
		return fpmath.Zero()
	}
	return p.book.BalanceOf(ledger.NewPoolAccountKey(ledger.AssetID(r.AssetID)))
}

// AccountData computes a user's aggregate risk position.
func (p *Pool) AccountData(user uuid.UUID, now uint64) (*state.AccountData, error) {
	calc := state.NewAccountCalculator(p.reserves, p.users, p.prices)
	return calc.CalculateUserAccountData(user, now)
}

// Deposit moves amount of underlying into the pool and mints deposit
// tokens at the current liquidity index. A first deposit on a
// collateral-usable reserve enables the collateral flag.
func (p *Pool) Deposit(user uuid.UUID, asset string, amount *uint256.Int, now uint64) error {
	r, err := p.validateDeposit(asset, amount)
	if err != nil {
		return err
	}

	bk := p.backup(asset)
	p.settleDepositRewards(r, now, user)

	if err := r.UpdateState(now); err != nil {
		return p.fail(bk, err)
	}
	if err := p.book.Issue(p.poolKey(r), amount); err != nil {
		return p.fail(bk, err)
	}

	first, err := r.DepositToken.Mint(user, amount, r.LiquidityIndex)
	if err != nil {
		return p.fail(bk, err)
	}
	if first && r.Config.UsableAsCollateral {
		p.users.Get(user).SetUsingAsCollateral(asset, true)
	}

	if err := p.refreshRates(r, now); err != nil {
		return p.fail(bk, err)
	}

	p.log.Info().
		Str("asset", asset).
		Str("user", user.String()).
		Str("amount", amount.Dec()).
		Str("liquidity_index", r.LiquidityIndex.Dec()).
		Msg("deposit")
	return nil
}

// Withdraw burns deposit tokens and pays out underlying. Passing the
// maximum uint256 withdraws the full balance, reconciled against the
// pool's actual holdings when the underlying rebases.
func (p *Pool) Withdraw(user uuid.UUID, asset string, amount *uint256.Int, now uint64) (*uint256.Int, error) {
	r, err := p.validateWithdraw(asset, amount)
	if err != nil {
		return nil, err
	}

	bk := p.backup(asset)
	p.settleDepositRewards(r, now, user)

	if err := r.UpdateState(now); err != nil {
		return nil, p.fail(bk, err)
	}

	balance, err := r.DepositToken.BalanceOf(user, r.LiquidityIndex)
	if err != nil {
		return nil, p.fail(bk, err)
	}
	if balance.IsZero() {
		return nil, p.fail(bk, ErrDepositRequired)
	}

	withdrawAll := amount.Eq(fpmath.MaxUint256())
	target := amount
	if withdrawAll {
		target = p.reconcileFullWithdrawal(r, user, balance, now)
	} else if amount.Gt(balance) {
		return nil, p.fail(bk, fmt.Errorf("%w: withdraw %s exceeds balance %s", ErrInvalidAmount, amount.Dec(), balance.Dec()))
	}

	available := p.AvailableLiquidity(asset)
	if target.Gt(available) {
		return nil, p.fail(bk, fmt.Errorf("%w: want %s, have %s", ErrInsufficientLiquidity, target.Dec(), available.Dec()))
	}

	var drained bool
	if withdrawAll {
		drained = true
		if err := r.DepositToken.BurnAll(user); err != nil {
			return nil, p.fail(bk, err)
		}
	} else {
		drained, err = r.DepositToken.Burn(user, target, r.LiquidityIndex)
		if err != nil {
			return nil, p.fail(bk, err)
		}
	}
	if drained {
		p.users.Get(user).SetUsingAsCollateral(asset, false)
	}

	if err := p.book.Transfer(p.poolKey(r), p.walletKey(r, user), target); err != nil {
		return nil, p.fail(bk, err)
	}
	if err := p.refreshRates(r, now); err != nil {
		return nil, p.fail(bk, err)
	}

	if err := p.requireHealthy(user, now); err != nil {
		return nil, p.fail(bk, err)
	}

	p.log.Info().
		Str("asset", asset).
		Str("user", user.String()).
		Str("amount", target.Dec()).
		Bool("full", withdrawAll).
		Msg("withdraw")
	return target, nil
}

// Borrow mints debt at the selected rate mode and pays out underlying.
// The borrower's post-borrow position must stay within the loan-to-value
// limit and above a health factor of one.
func (p *Pool) Borrow(user uuid.UUID, asset string, amount *uint256.Int, mode RateMode, now uint64) error {
	r, err := p.validateBorrow(asset, amount, mode)
	if err != nil {
		return err
	}

	bk := p.backup(asset)

	if err := r.UpdateState(now); err != nil {
		return p.fail(bk, err)
	}

	available := p.AvailableLiquidity(asset)
	if amount.Gt(available) {
		return p.fail(bk, fmt.Errorf("%w: want %s, have %s", ErrInsufficientLiquidity, amount.Dec(), available.Dec()))
	}

	switch mode {
	case RateModeVariable:
		if err := r.VariableDebt.Mint(user, amount, r.VariableBorrowIndex); err != nil {
			return p.fail(bk, err)
		}
	case RateModeStable:
		if err := r.StableDebt.Mint(user, amount, r.CurrentStableBorrowRate, now); err != nil {
			return p.fail(bk, err)
		}
	}

	if err := p.book.Transfer(p.poolKey(r), p.walletKey(r, user), amount); err != nil {
		return p.fail(bk, err)
	}
	if err := p.refreshRates(r, now); err != nil {
		return p.fail(bk, err)
	}

	if err := p.requireBorrowCapacity(user, now); err != nil {
		return p.fail(bk, err)
	}

	p.log.Info().
		Str("asset", asset).
		Str("user", user.String()).
		Str("amount", amount.Dec()).
		Str("mode", mode.String()).
		Msg("borrow")
	return nil
}

// Repay burns debt of the selected mode and returns underlying to the
// pool. Passing the maximum uint256 repays the full balance; an explicit
// amount above the outstanding debt is rejected.
func (p *Pool) Repay(user uuid.UUID, asset string, amount *uint256.Int, mode RateMode, now uint64) (*uint256.Int, error) {
	r, err := p.validateRepay(asset, amount, mode)
	if err != nil {
		return nil, err
	}

	bk := p.backup(asset)

	if err := r.UpdateState(now); err != nil {
		return nil, p.fail(bk, err)
	}

	debt, err := p.debtOf(r, user, mode, now)
	if err != nil {
		return nil, p.fail(bk, err)
	}
	if debt.IsZero() {
		return nil, p.fail(bk, ErrNoDebtOfSelectedType)
	}

	payback := amount
	if amount.Eq(fpmath.MaxUint256()) {
		payback = debt
	} else if amount.Gt(debt) {
		return nil, p.fail(bk, fmt.Errorf("%w: repay %s exceeds debt %s", ErrDebtOverpayment, amount.Dec(), debt.Dec()))
	}

	switch mode {
	case RateModeVariable:
		if _, err := r.VariableDebt.Burn(user, payback, r.VariableBorrowIndex); err != nil {
			return nil, p.fail(bk, err)
		}
	case RateModeStable:
		if _, err := r.StableDebt.Burn(user, payback, now); err != nil {
			return nil, p.fail(bk, err)
		}
	}

	if err := p.book.Issue(p.poolKey(r), payback); err != nil {
		return nil, p.fail(bk, err)
	}
	if err := p.refreshRates(r, now); err != nil {
		return nil, p.fail(bk, err)
	}

	p.log.Info().
		Str("asset", asset).
		Str("user", user.String()).
		Str("amount", payback.Dec()).
		Str("mode", mode.String()).
		Msg("repay")
	return payback, nil
}

// SwapBorrowRateMode moves a user's full debt in one reserve between the
// stable and variable books. Swapping into stable counts as opening a
// stable borrow, so the reserve must allow it.
func (p *Pool) SwapBorrowRateMode(user uuid.UUID, asset string, fromMode RateMode, now uint64) error {
	r, err := p.validateSwapRateMode(asset, fromMode)
	if err != nil {
		return err
	}

	bk := p.backup(asset)

	if err := r.UpdateState(now); err != nil {
		return p.fail(bk, err)
	}

	debt, err := p.debtOf(r, user, fromMode, now)
	if err != nil {
		return p.fail(bk, err)
	}
	if debt.IsZero() {
		return p.fail(bk, ErrNoDebtOfSelectedType)
	}

	switch fromMode {
	case RateModeVariable:
		if _, err := r.VariableDebt.Burn(user, debt, r.VariableBorrowIndex); err != nil {
			return p.fail(bk, err)
		}
		if err := r.StableDebt.Mint(user, debt, r.CurrentStableBorrowRate, now); err != nil {
			return p.fail(bk, err)
		}
	case RateModeStable:
		if _, err := r.StableDebt.Burn(user, debt, now); err != nil {
			return p.fail(bk, err)
		}
		if err := r.VariableDebt.Mint(user, debt, r.VariableBorrowIndex); err != nil {
			return p.fail(bk, err)
		}
	}

	if err := p.refreshRates(r, now); err != nil {
		return p.fail(bk, err)
	}

	p.log.Info().
		Str("asset", asset).
		Str("user", user.String()).
		Str("from_mode", fromMode.String()).
		Msg("rate mode swapped")
	return nil
}

// RebalanceStableBorrowRate forces a stable borrower onto the current
// market stable rate. Only permitted when the reserve is squeezed:
// utilization above the policy threshold and the liquidity rate below
// the policy fraction of the maximum variable rate.
func (p *Pool) RebalanceStableBorrowRate(target uuid.UUID, asset string, now uint64) error {
	r, err := p.requireReserve(asset)
	if err != nil {
		return err
	}
	if p.paused {
		return ErrPaused
	}
	if !r.Config.Active {
		return fmt.Errorf("%w: %s", ErrReserveInactive, asset)
	}

	bk := p.backup(asset)

	if err := r.UpdateState(now); err != nil {
		return p.fail(bk, err)
	}

	if r.StableDebt.PrincipalOf(target).IsZero() {
		return p.fail(bk, ErrUserDidNotBorrowSpecifiedAsset)
	}

	ok, err := p.rebalanceEligible(r, now)
	if err != nil {
		return p.fail(bk, err)
	}
	if !ok {
		return p.fail(bk, ErrRebalanceConditionsNotMet)
	}

	if err := r.StableDebt.Rebalance(target, r.CurrentStableBorrowRate, now); err != nil {
		return p.fail(bk, err)
	}
	if err := p.refreshRates(r, now); err != nil {
		return p.fail(bk, err)
	}

	p.log.Info().
		Str("asset", asset).
		Str("user", target.String()).
		Str("new_rate", r.StableDebt.RateOf(target).Dec()).
		Msg("stable rate rebalanced")
	return nil
}

// SetUserUseReserveAsCollateral flips the collateral flag. Disabling is
// rejected when it would push the user's health factor below one.
func (p *Pool) SetUserUseReserveAsCollateral(user uuid.UUID, asset string, use bool, now uint64) error {
	r, err := p.requireReserve(asset)
	if err != nil {
		return err
	}
	if p.paused {
		return ErrPaused
	}
	if !r.Config.Active {
		return fmt.Errorf("%w: %s", ErrReserveInactive, asset)
	}
	if r.DepositToken.ScaledBalanceOf(user).IsZero() {
		return ErrDepositRequired
	}

	uc := p.users.Get(user)
	prev := uc.UsingAsCollateral(asset)
	uc.SetUsingAsCollateral(asset, use)

	if !use {
		if err := p.requireHealthy(user, now); err != nil {
			uc.SetUsingAsCollateral(asset, prev)
			return err
		}
	}
	return nil
}

// RebaseUnderlying applies a rebase factor to a rebasing underlying and
// refreshes the reserve. Deposit-token nominal supply is reconciled
// against the pool's post-rebase holdings; divergence beyond interest
// drift is logged, never silently corrected.
func (p *Pool) RebaseUnderlying(asset string, factor *uint256.Int, now uint64) error {
	r, err := p.requireReserve(asset)
	if err != nil {
		return err
	}
	if p.paused {
		return ErrPaused
	}

	bk := p.backup(asset)

	if err := r.UpdateState(now); err != nil {
		return p.fail(bk, err)
	}
	if err := p.book.Rebase(ledger.AssetID(r.AssetID), factor); err != nil {
		return p.fail(bk, err)
	}
	if err := p.refreshRates(r, now); err != nil {
		return p.fail(bk, err)
	}

	p.logBalanceDrift(r, now)

	p.log.Info().
		Str("asset", asset).
		Str("factor", factor.Dec()).
		Str("pool_balance", p.AvailableLiquidity(asset).Dec()).
		Msg("underlying rebased")
	return nil
}

// reconcileFullWithdrawal resolves the sentinel amount. For a rebasing
// underlying the nominal balance can drift from the index-implied value,
// so the payout is the holder's pro-rata share of what actually backs
// the deposit book, and the drift is surfaced in the log.
func (p *Pool) reconcileFullWithdrawal(r *state.Reserve, user uuid.UUID, indexBalance *uint256.Int, now uint64) *uint256.Int {
	entitled, drifted, err := p.rebasingEntitlement(r, indexBalance, r.LiquidityIndex, now)
	if err != nil {
		return indexBalance
	}
	if drifted {
		p.log.Warn().
			Str("asset", r.Asset).
			Str("user", user.String()).
			Str("index_balance", indexBalance.Dec()).
			Str("entitlement", entitled.Dec()).
			Msg("balance drift on full withdrawal of rebasing underlying")
	}
	return entitled
}

// rebasingEntitlement maps an index-implied balance to the holder's
// share of the reserve's actual backing (pool holdings plus debt). Only
// rebasing underlyings can diverge; everything else passes through.
func (p *Pool) rebasingEntitlement(r *state.Reserve, indexBalance, index *uint256.Int, now uint64) (*uint256.Int, bool, error) {
	info, ok := p.book.Assets().Info(ledger.AssetID(r.AssetID))
	if !ok || !info.Rebasing {
		return indexBalance, false, nil
	}

	supply, err := r.DepositToken.TotalSupply(index)
	if err != nil {
		return nil, false, err
	}
	if supply.IsZero() {
		return indexBalance, false, nil
	}

	stable, _, err := r.StableDebt.Totals(now)
	if err != nil {
		return nil, false, err
	}
	variable, err := r.VariableDebt.TotalSupply(r.VariableBorrowIndex)
	if err != nil {
		return nil, false, err
	}
	backing := new(uint256.Int).Add(p.AvailableLiquidity(r.Asset), stable)
	backing.Add(backing, variable)

	if backing.Eq(supply) {
		return indexBalance, false, nil
	}

	entitled := new(uint256.Int)
	if _, overflow := entitled.MulOverflow(indexBalance, backing); overflow {
		return nil, false, fpmath.ErrOverflow
	}
	entitled.Div(entitled, supply)
	return entitled, true, nil
}

// DepositBalance is the read-path nominal balance: scaled balance at
// the projected index, reconciled pro rata against actual backing for
// rebasing underlyings.
func (p *Pool) DepositBalance(user uuid.UUID, asset string, now uint64) (*uint256.Int, error) {
	r, err := p.requireReserve(asset)
	if err != nil {
		return nil, err
	}
	income, err := r.NormalizedIncome(now)
	if err != nil {
		return nil, err
	}
	raw, err := r.DepositToken.BalanceOf(user, income)
	if err != nil {
		return nil, err
	}
	entitled, _, err := p.rebasingEntitlement(r, raw, income, now)
	if err != nil {
		return nil, err
	}
	return entitled, nil
}

// DepositSupply is the reserve's total nominal deposit value, with the
// same rebasing reconciliation as DepositBalance.
func (p *Pool) DepositSupply(asset string, now uint64) (*uint256.Int, error) {
	r, err := p.requireReserve(asset)
	if err != nil {
		return nil, err
	}
	income, err := r.NormalizedIncome(now)
	if err != nil {
		return nil, err
	}
	raw, err := r.DepositToken.TotalSupply(income)
	if err != nil {
		return nil, err
	}
	entitled, _, err := p.rebasingEntitlement(r, raw, income, now)
	if err != nil {
		return nil, err
	}
	return entitled, nil
}

// logBalanceDrift compares the deposit book's nominal value with the
// pool's holdings plus outstanding debt and reports the divergence.
func (p *Pool) logBalanceDrift(r *state.Reserve, now uint64) {
	supply, err := r.DepositToken.TotalSupply(r.LiquidityIndex)
	if err != nil {
		return
	}
	stable, _, err := r.StableDebt.Totals(now)
	if err != nil {
		return
	}
	variable, err := r.VariableDebt.TotalSupply(r.VariableBorrowIndex)
	if err != nil {
		return
	}
	backing := p.AvailableLiquidity(r.Asset)
	backing = new(uint256.Int).Add(backing, stable)
	backing.Add(backing, variable)

	if supply.Eq(backing) {
		return
	}
	diff := new(uint256.Int)
	if supply.Gt(backing) {
		diff.Sub(supply, backing)
	} else {
		diff.Sub(backing, supply)
	}
	p.log.Warn().
		Str("asset", r.Asset).
		Str("deposit_supply", supply.Dec()).
		Str("backing", backing.Dec()).
		Str("drift", diff.Dec()).
		Msg("balance drift between deposit book and backing")
}

func (p *Pool) rebalanceEligible(r *state.Reserve, now uint64) (bool, error) {
	stable, _, err := r.StableDebt.Totals(now)
	if err != nil {
		return false, err
	}
	variable, err := r.VariableDebt.TotalSupply(r.VariableBorrowIndex)
	if err != nil {
		return false, err
	}
	totalDebt := new(uint256.Int).Add(stable, variable)
	if totalDebt.IsZero() {
		return false, nil
	}

	total := new(uint256.Int).Add(p.AvailableLiquidity(r.Asset), totalDebt)
	utilization, err := fpmath.RayDiv(totalDebt, total)
	if err != nil {
		return false, err
	}
	if utilization.Lt(p.policy.RebalanceUtilizationThreshold) {
		return false, nil
	}

	maxVariable := r.Strategy.MaxVariableBorrowRate()
	ceiling, err := fpmath.PercentMul(maxVariable, uint256.NewInt(uint64(p.policy.RebalanceLiquidityRateThreshold)))
	if err != nil {
		return false, err
	}
	return r.CurrentLiquidityRate.Lt(ceiling), nil
}

// debtOf reads the user's current debt for one rate mode.
func (p *Pool) debtOf(r *state.Reserve, user uuid.UUID, mode RateMode, now uint64) (*uint256.Int, error) {
	switch mode {
	case RateModeVariable:
		return r.VariableDebt.BalanceOf(user, r.VariableBorrowIndex)
	case RateModeStable:
		return r.StableDebt.BalanceOf(user, now)
	default:
		return nil, ErrInvalidRateMode
	}
}

// refreshRates recomputes the reserve's rate triplet from the live pool
// balance after the operation's transfers.
func (p *Pool) refreshRates(r *state.Reserve, now uint64) error {
	return r.UpdateInterestRates(p.AvailableLiquidity(r.Asset), fpmath.Zero(), fpmath.Zero(), now)
}

// requireHealthy fails when the user has debt and a health factor below
// one ray.
func (p *Pool) requireHealthy(user uuid.UUID, now uint64) error {
	data, err := p.AccountData(user, now)
	if err != nil {
		return err
	}
	if data.TotalDebt.IsZero() {
		return nil
	}
	if data.HealthFactor.Lt(fpmath.Ray()) {
		return fmt.Errorf("%w: health factor %s", ErrHealthFactorTooLow, data.HealthFactor.Dec())
	}
	return nil
}

// requireBorrowCapacity additionally enforces the loan-to-value limit,
// which binds before the liquidation threshold does.
func (p *Pool) requireBorrowCapacity(user uuid.UUID, now uint64) error {
	data, err := p.AccountData(user, now)
	if err != nil {
		return err
	}
	if data.TotalCollateral.IsZero() {
		return ErrCollateralRequired
	}
	capacity, err := fpmath.PercentMul(data.TotalCollateral, data.AvgLtv)
	if err != nil {
		return err
	}
	if data.TotalDebt.Gt(capacity) {
		return fmt.Errorf("%w: debt %s exceeds borrow capacity %s", ErrHealthFactorTooLow, data.TotalDebt.Dec(), capacity.Dec())
	}
	if data.HealthFactor.Lt(fpmath.Ray()) {
		return fmt.Errorf("%w: health factor %s", ErrHealthFactorTooLow, data.HealthFactor.Dec())
	}
	return nil
}

// settleDepositRewards checkpoints the reserve's distributor and banks
// each touched user's earnings before their scaled balance changes.
func (p *Pool) settleDepositRewards(r *state.Reserve, now uint64, users ...uuid.UUID) {
	d, ok := p.rewards[r.Asset]
	if !ok {
		return
	}
	if err := d.Checkpoint(r.DepositToken.ScaledTotalSupply(), now); err != nil {
		p.log.Error().Err(err).Str("asset", r.Asset).Msg("reward checkpoint failed")
		return
	}
	for _, user := range users {
		if err := d.SettleUser(user, r.DepositToken.ScaledBalanceOf(user)); err != nil {
			p.log.Error().Err(err).Str("asset", r.Asset).Str("user", user.String()).Msg("reward settle failed")
		}
	}
}

// ClaimRewards pays out a user's banked rewards for one reserve.
func (p *Pool) ClaimRewards(user uuid.UUID, asset string, now uint64) (*uint256.Int, error) {
	r, err := p.requireReserve(asset)
	if err != nil {
		return nil, err
	}
	d, ok := p.rewards[asset]
	if !ok {
		return nil, rewards.ErrNothingToClaim
	}
	p.settleDepositRewards(r, now, user)
	return d.Claim(user)
}

func (p *Pool) requireReserve(asset string) (*state.Reserve, error) {
	r, ok := p.reserves[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReserveNotFound, asset)
	}
	return r, nil
}

func (p *Pool) poolKey(r *state.Reserve) ledger.AccountKey {
	return ledger.NewPoolAccountKey(ledger.AssetID(r.AssetID))
}

func (p *Pool) walletKey(r *state.Reserve, user uuid.UUID) ledger.AccountKey {
	return ledger.NewUserAccountKey(user, ledger.AssetID(r.AssetID))
}

// flashEscrowKey is where flash-loaned funds sit while the receiver
// callback runs; repayments come back through the boundary.
func (p *Pool) flashEscrowKey(r *state.Reserve) ledger.AccountKey {
	return ledger.NewExternalAccountKey(ledger.AssetID(r.AssetID))
}
