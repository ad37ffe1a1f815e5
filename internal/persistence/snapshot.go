package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/ledger"
	"LendLedger/internal/oracle"
	"LendLedger/internal/rates"
	"LendLedger/internal/rewards"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// SnapshotManager creates and loads state snapshots for recovery.
// Snapshots contain every input the core needs for a warm restart:
// reserves, user collateral flags, the underlying book, oracle prices,
// reward distributors, sequence partitions, and recent idempotency keys.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the JSON-serialized form of core.SnapshotState. All
// 256-bit quantities are decimal strings.
type SnapshotData struct {
	Sequence        int64                       `json:"sequence"`
	StateHash       []byte                      `json:"state_hash"`
	Reserves        map[string]ReserveSnap      `json:"reserves"`
	Users           map[string][]string         `json:"users"` // user -> collateral assets
	Book            ledger.LedgerSnap           `json:"book"`
	Prices          map[string]oracle.PriceSnap `json:"prices"`
	Rewards         map[string]rewards.Snap     `json:"rewards"`
	Paused          bool                        `json:"paused"`
	SequenceState   map[string]int64            `json:"sequence_state"`
	IdempotencyKeys []string                    `json:"idempotency_keys"`
	CreatedAt       time.Time                   `json:"created_at"`
}

// ReserveSnap is the serializable form of one reserve.
type ReserveSnap struct {
	Asset    string              `json:"asset"`
	AssetID  uint16              `json:"asset_id"`
	Rebasing bool                `json:"rebasing"`
	Config   state.ReserveConfig `json:"config"`
	Strategy StrategySnap        `json:"strategy"`

	LiquidityIndex            string `json:"liquidity_index"`
	VariableBorrowIndex       string `json:"variable_borrow_index"`
	CurrentLiquidityRate      string `json:"current_liquidity_rate"`
	CurrentVariableBorrowRate string `json:"current_variable_borrow_rate"`
	CurrentStableBorrowRate   string `json:"current_stable_borrow_rate"`
	LastUpdateTimestamp       uint64 `json:"last_update_timestamp"`

	DepositScaled  map[string]string           `json:"deposit_scaled"`
	VariableScaled map[string]string           `json:"variable_scaled"`
	Stable         map[string]state.StableSnap `json:"stable"`

	StableTotalPrincipal string `json:"stable_total_principal"`
	StableAvgRate        string `json:"stable_avg_rate"`
	StableTotalTimestamp uint64 `json:"stable_total_timestamp"`
}

// StrategySnap holds the rate curve parameters as decimal ray strings.
type StrategySnap struct {
	OptimalUtilization string `json:"optimal_utilization"`
	BaseVariableRate   string `json:"base_variable_rate"`
	VariableSlope1     string `json:"variable_slope1"`
	VariableSlope2     string `json:"variable_slope2"`
	StableSlope1       string `json:"stable_slope1"`
	StableSlope2       string `json:"stable_slope2"`
	MarketStableRate   string `json:"market_stable_rate"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SerializeSnapshot converts the core's typed snapshot into its
// persistable form.
func SerializeSnapshot(snap *core.SnapshotState) *SnapshotData {
	reserves := make(map[string]ReserveSnap, len(snap.Reserves))
	for asset, r := range snap.Reserves {
		rebasing := false
		if info, ok := snap.Book.Assets().Info(ledger.AssetID(r.AssetID)); ok {
			rebasing = info.Rebasing
		}
		cfg := r.Strategy.Config()
		reserves[asset] = ReserveSnap{
			Asset:    r.Asset,
			AssetID:  r.AssetID,
			Rebasing: rebasing,
			Config:   r.Config,
			Strategy: StrategySnap{
				OptimalUtilization: cfg.OptimalUtilization.Dec(),
				BaseVariableRate:   cfg.BaseVariableRate.Dec(),
				VariableSlope1:     cfg.VariableSlope1.Dec(),
				VariableSlope2:     cfg.VariableSlope2.Dec(),
				StableSlope1:       cfg.StableSlope1.Dec(),
				StableSlope2:       cfg.StableSlope2.Dec(),
				MarketStableRate:   cfg.MarketStableRate.Dec(),
			},
			LiquidityIndex:            r.LiquidityIndex.Dec(),
			VariableBorrowIndex:       r.VariableBorrowIndex.Dec(),
			CurrentLiquidityRate:      r.CurrentLiquidityRate.Dec(),
			CurrentVariableBorrowRate: r.CurrentVariableBorrowRate.Dec(),
			CurrentStableBorrowRate:   r.CurrentStableBorrowRate.Dec(),
			LastUpdateTimestamp:       r.LastUpdateTimestamp,
			DepositScaled:             r.DepositToken.Snapshot(),
			VariableScaled:            r.VariableDebt.Snapshot(),
			Stable:                    r.StableDebt.Snapshot(),
			StableTotalPrincipal:      r.StableDebt.TotalPrincipal().Dec(),
			StableAvgRate:             r.StableDebt.AverageRate().Dec(),
			StableTotalTimestamp:      r.StableDebt.TotalTimestamp(),
		}
	}

	return &SnapshotData{
		Sequence:        snap.Sequence,
		StateHash:       snap.StateHash[:],
		Reserves:        reserves,
		Users:           snap.Users.Snapshot(),
		Book:            snap.Book.Snapshot(),
		Prices:          snap.Prices,
		Rewards:         snap.Rewards,
		Paused:          snap.Paused,
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       time.Now().UTC(),
	}
}

// DeserializeSnapshot rebuilds the typed core snapshot. Assets are
// registered before any balance is restored so account paths resolve.
func DeserializeSnapshot(data *SnapshotData) (*core.SnapshotState, error) {
	// Reserves register their assets before the ledger's account paths
	// need to resolve them.
	book := ledger.NewLedger()

	reserves := make(map[string]*state.Reserve, len(data.Reserves))
	for asset, rs := range data.Reserves {
		r, err := rebuildReserve(asset, rs, book.Assets())
		if err != nil {
			return nil, fmt.Errorf("rebuild reserve %s: %w", asset, err)
		}
		reserves[asset] = r
	}

	users := state.NewUserRegistry()
	for id, assets := range data.Users {
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("bad user id %q: %w", id, err)
		}
		cfg := users.Get(uid)
		for _, asset := range assets {
			cfg.SetUsingAsCollateral(asset, true)
		}
	}

	if err := rebuildLedger(book, data.Book); err != nil {
		return nil, fmt.Errorf("rebuild ledger: %w", err)
	}

	snap := &core.SnapshotState{
		Sequence:        data.Sequence,
		Reserves:        reserves,
		Users:           users,
		Book:            book,
		Prices:          data.Prices,
		Rewards:         data.Rewards,
		Paused:          data.Paused,
		SequenceState:   data.SequenceState,
		IdempotencyKeys: data.IdempotencyKeys,
	}
	copy(snap.StateHash[:], data.StateHash)
	return snap, nil
}

func rebuildReserve(asset string, rs ReserveSnap, assets *ledger.AssetRegistry) (*state.Reserve, error) {
	var errs []error
	ray := func(field, src string) *uint256.Int {
		v, err := uint256.FromDecimal(src)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return nil
		}
		return v
	}

	strategyCfg := rates.StrategyConfig{
		OptimalUtilization: ray("optimal_utilization", rs.Strategy.OptimalUtilization),
		BaseVariableRate:   ray("base_variable_rate", rs.Strategy.BaseVariableRate),
		VariableSlope1:     ray("variable_slope1", rs.Strategy.VariableSlope1),
		VariableSlope2:     ray("variable_slope2", rs.Strategy.VariableSlope2),
		StableSlope1:       ray("stable_slope1", rs.Strategy.StableSlope1),
		StableSlope2:       ray("stable_slope2", rs.Strategy.StableSlope2),
		MarketStableRate:   ray("market_stable_rate", rs.Strategy.MarketStableRate),
	}
	liquidityIndex := ray("liquidity_index", rs.LiquidityIndex)
	variableBorrowIndex := ray("variable_borrow_index", rs.VariableBorrowIndex)
	liquidityRate := ray("current_liquidity_rate", rs.CurrentLiquidityRate)
	variableRate := ray("current_variable_borrow_rate", rs.CurrentVariableBorrowRate)
	stableRate := ray("current_stable_borrow_rate", rs.CurrentStableBorrowRate)
	totalPrincipal := ray("stable_total_principal", rs.StableTotalPrincipal)
	stableAvgRate := ray("stable_avg_rate", rs.StableAvgRate)
	if len(errs) > 0 {
		return nil, errs[0]
	}

	assetID := assets.Register(asset, rs.Config.Decimals, rs.Rebasing)

	r := state.NewReserve(asset, uint16(assetID), rs.Config, rates.NewStrategy(strategyCfg), rs.LastUpdateTimestamp)
	r.LiquidityIndex = liquidityIndex
	r.VariableBorrowIndex = variableBorrowIndex
	r.CurrentLiquidityRate = liquidityRate
	r.CurrentVariableBorrowRate = variableRate
	r.CurrentStableBorrowRate = stableRate

	if err := restoreScaled(rs.DepositScaled, r.DepositToken.SetScaled); err != nil {
		return nil, fmt.Errorf("deposit balances: %w", err)
	}
	if err := restoreScaled(rs.VariableScaled, r.VariableDebt.SetScaled); err != nil {
		return nil, fmt.Errorf("variable debt: %w", err)
	}

	for id, pos := range rs.Stable {
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("stable position user %q: %w", id, err)
		}
		principal, err := uint256.FromDecimal(pos.Principal)
		if err != nil {
			return nil, fmt.Errorf("stable principal for %s: %w", id, err)
		}
		rate, err := uint256.FromDecimal(pos.Rate)
		if err != nil {
			return nil, fmt.Errorf("stable rate for %s: %w", id, err)
		}
		r.StableDebt.SetPosition(uid, principal, rate, pos.LastUpdated)
	}
	r.StableDebt.SetTotals(totalPrincipal, stableAvgRate, rs.StableTotalTimestamp)

	return r, nil
}

func restoreScaled(balances map[string]string, set func(uuid.UUID, *uint256.Int)) error {
	for id, dec := range balances {
		uid, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("user %q: %w", id, err)
		}
		scaled, err := uint256.FromDecimal(dec)
		if err != nil {
			return fmt.Errorf("balance for %s: %w", id, err)
		}
		set(uid, scaled)
	}
	return nil
}

func rebuildLedger(book *ledger.Ledger, snap ledger.LedgerSnap) error {
	for path, dec := range snap.Shares {
		key, err := book.Assets().ParseAccountPath(path)
		if err != nil {
			return err
		}
		shares, err := uint256.FromDecimal(dec)
		if err != nil {
			return fmt.Errorf("shares for %s: %w", path, err)
		}
		book.SetShares(key, shares)
	}

	byAsset := func(m map[string]string, set func(ledger.AssetID, *uint256.Int)) error {
		for asset, dec := range m {
			id, ok := book.Assets().Lookup(asset)
			if !ok {
				return fmt.Errorf("unknown asset %q in ledger snapshot", asset)
			}
			v, err := uint256.FromDecimal(dec)
			if err != nil {
				return fmt.Errorf("value for %s: %w", asset, err)
			}
			set(id, v)
		}
		return nil
	}

	if err := byAsset(snap.RebaseIndex, book.SetRebaseIndex); err != nil {
		return err
	}
	if err := byAsset(snap.TotalShares, book.SetTotalShares); err != nil {
		return err
	}
	if err := byAsset(snap.MintedSupply, book.SetMintedSupply); err != nil {
		return err
	}

	return nil
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and verified by replaying events from the snapshot
// sequence forward before being trusted for restart.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, len(data), snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil
// for a cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after the replay check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events for replay, ordered by sequence. Used on
// warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, reserve, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Reserve,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
