package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"LendLedger/internal/event"
	"LendLedger/internal/ledger"
	"LendLedger/internal/observability"
	"LendLedger/internal/oracle"
	"LendLedger/internal/pool"
	"LendLedger/internal/rewards"
	"LendLedger/internal/state"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// fullCheckInterval is how often (in processed events) the solvency
// check runs across every reserve instead of just the touched one.
const fullCheckInterval = 1000

// DeterministicCore is the single-threaded event processor. Events are
// applied by exactly one goroutine; the RWMutex exists only so query
// handlers can take consistent read views between events.
type DeterministicCore struct {
	mu       sync.RWMutex
	sequence int64
	hasher   *StateHasher

	pool   *pool.Pool
	book   *ledger.Ledger
	prices *oracle.Feed

	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	// Liquidity indices only ever grow; a regression means replay
	// divergence or state corruption.
	lastIndices map[string]*uint256.Int

	eventsSinceFullCheck int

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

type CoreOutput struct {
	Envelope   *event.EventEnvelope
	StateDelta []byte
	Journal    []ledger.JournalEntry
}

func NewDeterministicCore(
	startSequence int64,
	policy state.PolicyConfig,
	priceMaxAgeSeconds int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *DeterministicCore {
	book := ledger.NewLedger()
	prices := oracle.NewFeed(priceMaxAgeSeconds)

	// Initialize with capacity of 1M entries (configurable)
	idempotencyChecker := NewIdempotencyChecker(1_000_000, dbChecker)
	sequenceValidator := NewSequenceValidator()

	return &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		pool:              pool.New(book, prices, policy, log),
		book:              book,
		prices:            prices,
		idempotency:       idempotencyChecker,
		sequenceValidator: sequenceValidator,
		metrics:           metrics,
		lastIndices:       make(map[string]*uint256.Int),
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessEvent is the main processing pipeline
func (c *DeterministicCore) ProcessEvent(evt event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Sequence validation
	partition := c.getPartition(evt)
	sourceSequence := evt.SourceSequence()

	// Special handling for price updates (gaps tolerated)
	if priceEvt, ok := evt.(*event.PriceUpdate); ok {
		if err := c.sequenceValidator.ValidatePriceSequence(priceEvt.Reserve, priceEvt.PriceSequence); err != nil {
			return err
		}
	} else {
		// Regular sequence validation
		if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Dispatch into the pool. The pool restores its own state
	// on failure, so a rejected event leaves nothing behind.
	liqResult, err := c.dispatchEvent(evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "rejected").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 4: Post-checks. A violated invariant means the in-memory
	// state can no longer be trusted; crash and recover from the log.
	if err := c.postCheckInvariants(evt); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 5: Compute state digest and extend the hash chain
	stateDigest := c.computeStateDigest()
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: payload marshal: %v", err))
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Asset:          evt.Asset(),
		Timestamp:      c.getEventTimestamp(evt),
		SourceSequence: sourceSequence,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:   envelope,
		StateDelta: stateDigest,
		Journal:    c.book.DrainJournal(),
	}
	c.sequence++

	if c.metrics != nil {
		for _, j := range output.Journal {
			c.metrics.CoreJournals.WithLabelValues(j.Kind.String()).Inc()
		}
	}

	// Step 6: Emit. Persistence uses a BLOCKING send — the core stalls
	// until the persistence worker drains, so no event is ever lost.
	// Projections use a NON-BLOCKING send with silent drop; projection
	// workers rebuild from the event log if they fall behind.
	c.persistChan <- output

	select {
	case c.projectionChan <- output:
	default:
		// Dropped — projection catches up via rebuild
		if c.metrics != nil {
			c.metrics.ProjectionDrops.Inc()
		}
	}

	// Step 7: Derived outbound events
	if asset := evt.Asset(); asset != nil {
		c.emitReserveDataUpdated(*asset, envelope.Timestamp)
	}
	if liqResult != nil {
		c.emitLiquidationExecuted(evt.(*event.LiquidationCall), liqResult)
	}

	// Step 8: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

// getPartition determines partition key for sequence validation
func (c *DeterministicCore) getPartition(evt event.Event) string {
	if asset := evt.Asset(); asset != nil {
		return fmt.Sprintf("reserve:%s", *asset)
	}
	return "global"
}

// getEventTimestamp extracts the versioned timestamp from the event.
// The core never calls time.Now() for state; all timestamps are inputs.
func (c *DeterministicCore) getEventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.Deposit:
		return time.Unix(e.Timestamp, 0).UTC()
	case *event.Withdraw:
		return time.Unix(e.Timestamp, 0).UTC()
	case *event.Borrow:
		return time.Unix(e.Timestamp, 0).UTC()
	case *event.Repay:
		return time.Unix(e.Timestamp, 0).UTC()
	case *event.SwapRateMode:
		return time.Unix(e.Timestamp, 0).UTC()
	case *event.RebalanceStableRate:
		return time.Unix(e.Timestamp, 0).UTC()
	case *event.SetCollateral:
		return time.Unix(e.Timestamp, 0).UTC()
	case *event.LiquidationCall:
		return time.Unix(e.Timestamp, 0).UTC()
	case *event.FlashLoan:
		return time.Unix(e.Timestamp, 0).UTC()
	case *event.PriceUpdate:
		return time.Unix(e.PriceTimestamp, 0).UTC()
	case *event.ReserveInit:
		return time.Unix(e.Timestamp, 0).UTC()
	case *event.ReserveConfigUpdate:
		return time.Unix(e.Timestamp, 0).UTC()
	case *event.RebaseUnderlying:
		return time.Unix(e.Timestamp, 0).UTC()
	case *event.SetPause:
		return time.Unix(e.Timestamp, 0).UTC()
	default:
		panic(fmt.Sprintf("FATAL: no deterministic timestamp for event type %T", evt))
	}
}

func rateModeOf(wire int32) pool.RateMode {
	switch wire {
	case event.RateModeStable:
		return pool.RateModeStable
	case event.RateModeVariable:
		return pool.RateModeVariable
	default:
		return pool.RateModeNone
	}
}

// dispatchEvent applies one event to the pool. The second return is
// non-nil only for liquidation calls, so the caller can emit the
// derived LiquidationExecuted event.
func (c *DeterministicCore) dispatchEvent(evt event.Event) (*pool.LiquidationResult, error) {
	switch e := evt.(type) {
	case *event.Deposit:
		return nil, c.pool.Deposit(e.UserID, e.Reserve, e.Amount, uint64(e.Timestamp))

	case *event.Withdraw:
		_, err := c.pool.Withdraw(e.UserID, e.Reserve, e.Amount, uint64(e.Timestamp))
		return nil, err

	case *event.Borrow:
		return nil, c.pool.Borrow(e.UserID, e.Reserve, e.Amount, rateModeOf(e.RateMode), uint64(e.Timestamp))

	case *event.Repay:
		_, err := c.pool.Repay(e.UserID, e.Reserve, e.Amount, rateModeOf(e.RateMode), uint64(e.Timestamp))
		return nil, err

	case *event.SwapRateMode:
		return nil, c.pool.SwapBorrowRateMode(e.UserID, e.Reserve, rateModeOf(e.RateMode), uint64(e.Timestamp))

	case *event.RebalanceStableRate:
		return nil, c.pool.RebalanceStableBorrowRate(e.UserID, e.Reserve, uint64(e.Timestamp))

	case *event.SetCollateral:
		return nil, c.pool.SetUserUseReserveAsCollateral(e.UserID, e.Reserve, e.UseAsCollateral, uint64(e.Timestamp))

	case *event.LiquidationCall:
		return c.pool.LiquidationCall(
			e.CollateralReserve,
			e.DebtReserve,
			e.Borrower,
			e.Liquidator,
			e.DebtToCover,
			e.ReceiveDepositToken,
			uint64(e.Timestamp),
		)

	case *event.FlashLoan:
		return nil, c.handleFlashLoan(e)

	case *event.PriceUpdate:
		// Stale updates are silently dropped; the sequence validator
		// already recorded any gap.
		c.prices.SetAssetPrice(e.Reserve, e.Price, e.PriceSequence, e.PriceTimestamp)
		return nil, nil

	case *event.ReserveInit:
		return nil, c.handleReserveInit(e)

	case *event.ReserveConfigUpdate:
		return nil, c.pool.ConfigureReserve(e.Reserve, e.Config)

	case *event.RebaseUnderlying:
		return nil, c.pool.RebaseUnderlying(e.Reserve, e.Factor, uint64(e.Timestamp))

	case *event.SetPause:
		c.pool.SetPause(e.Paused)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

// handleFlashLoan re-executes the borrow-and-repay cycle. By the time
// the event reaches the core the funds have already moved upstream, so
// the receiver simply returns principal plus premium; what matters here
// is accruing the premium to depositors through the liquidity index.
func (c *DeterministicCore) handleFlashLoan(e *event.FlashLoan) error {
	receiver := pool.FlashLoanFunc(func(asset string, amount, premium *uint256.Int, repay func(*uint256.Int) error) error {
		return repay(new(uint256.Int).Add(amount, premium))
	})
	premiumPaid, err := c.pool.FlashLoan(receiver, e.Reserve, e.Amount, uint64(e.Timestamp))
	if err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.FlashLoans.WithLabelValues(e.Reserve).Inc()
		premium, _ := new(big.Float).SetInt(premiumPaid.ToBig()).Float64()
		c.metrics.FlashLoanPremiums.WithLabelValues(e.Reserve).Add(premium)
	}
	return nil
}

func (c *DeterministicCore) handleReserveInit(e *event.ReserveInit) error {
	if _, ok := c.book.Assets().Lookup(e.Reserve); !ok {
		c.book.Assets().Register(e.Reserve, e.Config.Decimals, e.Rebasing)
	}
	return c.pool.InitReserve(e.Reserve, e.Config, e.Strategy, uint64(e.Timestamp))
}

// --- Derived outbound events ---

// emitReserveDataUpdated publishes a post-operation reserve snapshot to
// the projection channel. Informational only: not hashed, not persisted
// to the event log, dropped silently under backpressure.
func (c *DeterministicCore) emitReserveDataUpdated(asset string, ts time.Time) {
	r, ok := c.pool.Reserve(asset)
	if !ok {
		return
	}

	stableDebt, _, err := r.StableDebt.Totals(r.LastUpdateTimestamp)
	if err != nil {
		return
	}
	variableDebt, err := r.VariableDebt.TotalSupply(r.VariableBorrowIndex)
	if err != nil {
		return
	}

	payload, err := json.Marshal(&event.ReserveDataUpdated{
		Reserve:             asset,
		LiquidityRate:       r.CurrentLiquidityRate.Dec(),
		StableBorrowRate:    r.CurrentStableBorrowRate.Dec(),
		VariableBorrowRate:  r.CurrentVariableBorrowRate.Dec(),
		LiquidityIndex:      r.LiquidityIndex.Dec(),
		VariableBorrowIndex: r.VariableBorrowIndex.Dec(),
		AvailableLiquidity:  c.pool.AvailableLiquidity(asset).Dec(),
		TotalStableDebt:     stableDebt.Dec(),
		TotalVariableDebt:   variableDebt.Dec(),
		Timestamp:           ts.Unix(),
	})
	if err != nil {
		return
	}

	output := CoreOutput{
		Envelope: &event.EventEnvelope{
			Sequence:       c.sequence,
			IdempotencyKey: fmt.Sprintf("reserve_data:%s:%d", asset, c.sequence),
			EventType:      event.EventTypeReserveDataUpdated,
			Asset:          &asset,
			Timestamp:      ts,
			Payload:        payload,
		},
	}

	select {
	case c.projectionChan <- output:
	default:
		if c.metrics != nil {
			c.metrics.ProjectionDrops.Inc()
		}
	}

	if c.metrics != nil {
		c.metrics.RateUpdates.WithLabelValues(asset).Inc()
	}
}

// emitLiquidationExecuted records the outcome of a liquidation as a
// first-class event. Unlike ReserveDataUpdated it is persisted: the
// derived event gets its own sequence and extends the hash chain.
func (c *DeterministicCore) emitLiquidationExecuted(call *event.LiquidationCall, result *pool.LiquidationResult) {
	liqSeq := c.sequence
	c.sequence++

	payload, err := json.Marshal(&event.LiquidationExecuted{
		LiquidationID:       call.LiquidationID,
		CollateralReserve:   result.CollateralAsset,
		DebtReserve:         result.DebtAsset,
		Borrower:            result.Borrower,
		Liquidator:          result.Liquidator,
		DebtCovered:         result.DebtCovered.Dec(),
		CollateralSeized:    result.CollateralLiquidated.Dec(),
		ReceiveDepositToken: result.ReceivedDepositToken,
		Timestamp:           call.Timestamp,
	})
	if err != nil {
		panic(fmt.Sprintf("FATAL: payload marshal: %v", err))
	}

	stateDigest := c.computeStateDigest()
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(liqSeq, stateDigest)

	output := CoreOutput{
		Envelope: &event.EventEnvelope{
			Sequence:       liqSeq,
			IdempotencyKey: fmt.Sprintf("liquidation_executed:%s", call.LiquidationID),
			EventType:      event.EventTypeLiquidationExecuted,
			Asset:          &call.DebtReserve,
			Timestamp:      time.Unix(call.Timestamp, 0).UTC(),
			Payload:        payload,
			StateHash:      stateHash,
			PrevHash:       prevHash,
		},
		StateDelta: stateDigest,
	}

	// Blocking send — guarantees the derived event is logged
	c.persistChan <- output

	select {
	case c.projectionChan <- output:
	default:
	}

	if c.metrics != nil {
		c.metrics.LiquidationsExecuted.WithLabelValues(result.CollateralAsset, result.DebtAsset).Inc()
	}
}

// --- State digest ---

// computeStateDigest serializes all reserve, token, book and user state
// in canonical order. Two replicas that processed the same event stream
// produce identical digests; anything else is divergence.
func (c *DeterministicCore) computeStateDigest() []byte {
	buf := make([]byte, 0, 4096)

	for _, asset := range c.pool.Assets() {
		r, ok := c.pool.Reserve(asset)
		if !ok {
			continue
		}

		buf = appendString(buf, asset)
		buf = appendU256(buf, r.LiquidityIndex)
		buf = appendU256(buf, r.VariableBorrowIndex)
		buf = appendU256(buf, r.CurrentLiquidityRate)
		buf = appendU256(buf, r.CurrentVariableBorrowRate)
		buf = appendU256(buf, r.CurrentStableBorrowRate)
		buf = appendU64(buf, r.LastUpdateTimestamp)

		buf = appendStringMap(buf, r.DepositToken.Snapshot())
		buf = appendStringMap(buf, r.VariableDebt.Snapshot())

		stable := r.StableDebt.Snapshot()
		keys := make([]string, 0, len(stable))
		for k := range stable {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pos := stable[k]
			buf = appendString(buf, k)
			buf = appendString(buf, pos.Principal)
			buf = appendString(buf, pos.Rate)
			buf = appendU64(buf, pos.LastUpdated)
		}
		buf = appendString(buf, r.StableDebt.TotalPrincipal().Dec())
		buf = appendString(buf, r.StableDebt.AverageRate().Dec())
		buf = appendU64(buf, r.StableDebt.TotalTimestamp())
	}

	book := c.book.Snapshot()
	buf = appendStringMap(buf, book.Shares)
	buf = appendStringMap(buf, book.RebaseIndex)
	buf = appendStringMap(buf, book.TotalShares)
	buf = appendStringMap(buf, book.MintedSupply)

	users := c.pool.Users().Snapshot()
	userKeys := make([]string, 0, len(users))
	for k := range users {
		userKeys = append(userKeys, k)
	}
	sort.Strings(userKeys)
	for _, k := range userKeys {
		buf = appendString(buf, k)
		for _, asset := range users[k] {
			buf = appendString(buf, asset)
		}
	}

	return buf
}

func appendString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendU256(buf []byte, v *uint256.Int) []byte {
	b := v.Bytes32()
	return append(buf, b[:]...)
}

func appendStringMap(buf []byte, m map[string]string) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf = appendString(buf, k)
		buf = appendString(buf, m[k])
	}
	return buf
}

// --- Invariant post-checks ---

// postCheckInvariants runs after every applied event: index
// monotonicity plus solvency of the touched reserve, and periodically
// solvency of every reserve.
func (c *DeterministicCore) postCheckInvariants(evt event.Event) error {
	if asset := evt.Asset(); asset != nil {
		if r, ok := c.pool.Reserve(*asset); ok {
			if err := c.checkIndexMonotonic(*asset, r); err != nil {
				return err
			}
			if err := c.checkSolvency(*asset, r); err != nil {
				return err
			}
		}
	}

	c.eventsSinceFullCheck++
	if c.eventsSinceFullCheck >= fullCheckInterval {
		c.eventsSinceFullCheck = 0
		for _, asset := range c.pool.Assets() {
			r, ok := c.pool.Reserve(asset)
			if !ok {
				continue
			}
			if err := c.checkSolvency(asset, r); err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *DeterministicCore) checkIndexMonotonic(asset string, r *state.Reserve) error {
	if last, ok := c.lastIndices[asset]; ok && r.LiquidityIndex.Lt(last) {
		return fmt.Errorf("liquidity index regressed for %s: %s -> %s",
			asset, last.Dec(), r.LiquidityIndex.Dec())
	}
	c.lastIndices[asset] = new(uint256.Int).Set(r.LiquidityIndex)
	return nil
}

// checkSolvency verifies that idle liquidity plus outstanding debt
// covers the deposit token supply. Variable debt compounds while the
// liquidity index grows linearly, so backing normally exceeds supply;
// a small tolerance absorbs per-operation rounding.
func (c *DeterministicCore) checkSolvency(asset string, r *state.Reserve) error {
	supply, err := r.DepositToken.TotalSupply(r.LiquidityIndex)
	if err != nil {
		return err
	}
	if supply.IsZero() {
		return nil
	}

	stableDebt, _, err := r.StableDebt.Totals(r.LastUpdateTimestamp)
	if err != nil {
		return err
	}
	variableDebt, err := r.VariableDebt.TotalSupply(r.VariableBorrowIndex)
	if err != nil {
		return err
	}

	backing := new(uint256.Int).Set(c.pool.AvailableLiquidity(asset))
	backing.Add(backing, stableDebt)
	backing.Add(backing, variableDebt)

	if backing.Lt(supply) {
		deficit := new(uint256.Int).Sub(supply, backing)
		tolerance := new(uint256.Int).Div(supply, uint256.NewInt(1_000_000))
		tolerance.Add(tolerance, uint256.NewInt(1000))
		if deficit.Gt(tolerance) {
			return fmt.Errorf("reserve %s undercollateralized: supply=%s backing=%s",
				asset, supply.Dec(), backing.Dec())
		}
	}

	return nil
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Reserves        map[string]*state.Reserve
	Users           *state.UserRegistry
	Book            *ledger.Ledger
	Prices          map[string]oracle.PriceSnap
	Rewards         map[string]rewards.Snap
	Paused          bool
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state from a
// snapshot. On warm restart: load the latest snapshot, then replay the
// event log from the snapshot's sequence.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) error {
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.hasher.SetPrevHash(snap.StateHash)

	c.pool.InstallSnapshot(snap.Reserves, snap.Users)
	c.book.Restore(snap.Book)

	for asset, r := range snap.Reserves {
		c.lastIndices[asset] = new(uint256.Int).Set(r.LiquidityIndex)
	}

	for asset, priceSnap := range snap.Prices {
		if err := c.prices.Restore(asset, priceSnap); err != nil {
			return fmt.Errorf("restore price for %s: %w", asset, err)
		}
	}

	for asset, rewardSnap := range snap.Rewards {
		d, err := rewards.Restore(rewardSnap)
		if err != nil {
			return fmt.Errorf("restore distributor for %s: %w", asset, err)
		}
		c.pool.AttachDistributor(asset, d)
	}

	c.pool.SetPause(snap.Paused)

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, nextSeq)
	}

	c.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)

	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache so recently
// processed events skip the cold-path DB lookup after restart.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sequence
}

// View runs fn against the pool with event application blocked. The
// callback must only read; it runs on the caller's goroutine and holds
// up the pipeline for its duration.
func (c *DeterministicCore) View(fn func(p *pool.Pool, sequence int64) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(c.pool, c.sequence)
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasher.GetPrevHash()
}

// Pool exposes the reserve state machine for the read side.
func (c *DeterministicCore) Pool() *pool.Pool {
	return c.pool
}

// CreateSnapshotState captures the current in-memory state for
// persistence. Safe to call from the snapshot goroutine: the view lock
// holds off event application while state is cloned.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	reserves := make(map[string]*state.Reserve)
	for _, asset := range c.pool.Assets() {
		if r, ok := c.pool.Reserve(asset); ok {
			reserves[asset] = r.Clone()
		}
	}

	rewardSnaps := make(map[string]rewards.Snap)
	for asset, d := range c.pool.Distributors() {
		rewardSnaps[asset] = d.Snapshot()
	}

	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Reserves:        reserves,
		Users:           c.pool.Users().Clone(),
		Book:            c.book.Clone(),
		Prices:          c.prices.Snapshot(),
		Rewards:         rewardSnaps,
		Paused:          c.pool.Paused(),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}
