package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound marks lookups whose subject does not exist; the HTTP
// layer maps it to 404.
var ErrNotFound = errors.New("query: not found")

const defaultLimit = 100

// QueryService serves reads from the Postgres projection tables. All
// responses carry as_of_sequence, the projection watermark at read
// time, so callers can reason about staleness against the event log.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetReserveData returns the current projected view of one reserve.
func (qs *QueryService) GetReserveData(ctx context.Context, reserve string) (*ReserveDataResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var (
		r         ReserveDataResponse
		updatedAt time.Time
	)
	err = qs.db.QueryRowContext(ctx, `
		SELECT reserve, liquidity_rate, stable_borrow_rate, variable_borrow_rate,
		       liquidity_index, variable_borrow_index, available_liquidity,
		       total_stable_debt, total_variable_debt, last_sequence, updated_at
		FROM projections.reserves
		WHERE reserve = $1
	`, reserve).Scan(
		&r.Reserve, &r.LiquidityRate, &r.StableBorrowRate, &r.VariableBorrowRate,
		&r.LiquidityIndex, &r.VariableBorrowIndex, &r.AvailableLiquidity,
		&r.TotalStableDebt, &r.TotalVariableDebt, &r.LastSequence, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("reserve %s: %w", reserve, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	r.UpdatedAt = updatedAt.Unix()
	r.AsOfSequence = asOfSeq
	return &r, nil
}

// ListReserves returns the projected view of every listed reserve.
func (qs *QueryService) ListReserves(ctx context.Context) ([]ReserveDataResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT reserve, liquidity_rate, stable_borrow_rate, variable_borrow_rate,
		       liquidity_index, variable_borrow_index, available_liquidity,
		       total_stable_debt, total_variable_debt, last_sequence, updated_at
		FROM projections.reserves
		ORDER BY reserve
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReserveDataResponse
	for rows.Next() {
		var (
			r         ReserveDataResponse
			updatedAt time.Time
		)
		if err := rows.Scan(
			&r.Reserve, &r.LiquidityRate, &r.StableBorrowRate, &r.VariableBorrowRate,
			&r.LiquidityIndex, &r.VariableBorrowIndex, &r.AvailableLiquidity,
			&r.TotalStableDebt, &r.TotalVariableDebt, &r.LastSequence, &updatedAt,
		); err != nil {
			return nil, err
		}
		r.UpdatedAt = updatedAt.Unix()
		r.AsOfSequence = asOfSeq
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRateHistory returns a reserve's rate curve, newest first, with
// cursor pagination on sequence.
func (qs *QueryService) GetRateHistory(
	ctx context.Context,
	reserve string,
	limit int,
	beforeSequence *int64,
) ([]RateHistoryEntry, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	query := `
		SELECT sequence, liquidity_rate, stable_borrow_rate, variable_borrow_rate,
		       liquidity_index, variable_borrow_index, timestamp
		FROM projections.rate_history
		WHERE reserve = $1
	`
	args := []interface{}{reserve}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []RateHistoryEntry
	for rows.Next() {
		var (
			h  RateHistoryEntry
			ts time.Time
		)
		h.Reserve = reserve
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.Sequence, &h.LiquidityRate, &h.StableBorrowRate, &h.VariableBorrowRate,
			&h.LiquidityIndex, &h.VariableBorrowIndex, &ts,
		); err != nil {
			return nil, err
		}
		h.Timestamp = ts.Unix()
		history = append(history, h)
	}
	return history, rows.Err()
}

// GetLiquidationHistory returns liquidations against a borrower, newest
// first, with cursor pagination on sequence.
func (qs *QueryService) GetLiquidationHistory(
	ctx context.Context,
	borrower uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]LiquidationRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	query := `
		SELECT liquidation_id, collateral_reserve, debt_reserve, borrower, liquidator,
		       debt_covered, collateral_seized, receive_deposit_token, sequence, timestamp
		FROM projections.liquidation_history
		WHERE borrower = $1
	`
	args := []interface{}{borrower}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []LiquidationRecord
	for rows.Next() {
		var (
			rec LiquidationRecord
			ts  time.Time
		)
		if err := rows.Scan(
			&rec.LiquidationID, &rec.CollateralReserve, &rec.DebtReserve,
			&rec.Borrower, &rec.Liquidator, &rec.DebtCovered, &rec.CollateralSeized,
			&rec.ReceiveDepositToken, &rec.Sequence, &ts,
		); err != nil {
			return nil, err
		}
		rec.Timestamp = ts.Unix()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetUserCollateral returns a user's latest collateral toggle per reserve.
func (qs *QueryService) GetUserCollateral(ctx context.Context, userID uuid.UUID) ([]UserCollateralEntry, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT reserve, use_as_collateral, last_sequence
		FROM projections.user_collateral
		WHERE user_id = $1
		ORDER BY reserve
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []UserCollateralEntry
	for rows.Next() {
		var e UserCollateralEntry
		if err := rows.Scan(&e.Reserve, &e.UseAsCollateral, &e.LastSequence); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetJournalHistory returns journal entries touching any of a user's
// accounts, newest first, with cursor pagination on event sequence.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]JournalHistoryEntry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, event_sequence, debit_account, credit_account,
		       asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND event_sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY event_sequence DESC, journal_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var (
			e  JournalHistoryEntry
			ts time.Time
		)
		if err := rows.Scan(
			&e.JournalID, &e.EventSequence, &e.DebitAccount, &e.CreditAccount,
			&e.AssetID, &e.Amount, &e.JournalType, &ts,
		); err != nil {
			return nil, err
		}
		e.Timestamp = ts.Unix()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetBalances returns the projected ledger balances for one account
// path across all assets. Missing rows mean a zero balance.
func (qs *QueryService) GetBalances(ctx context.Context, accountPath string) ([]BalanceEntry, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, balance, last_sequence
		FROM projections.balances
		WHERE account_path = $1
		ORDER BY asset_id
	`, accountPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []BalanceEntry
	for rows.Next() {
		e := BalanceEntry{AccountPath: accountPath, AsOfSequence: asOfSeq}
		if err := rows.Scan(&e.AssetID, &e.Balance, &e.LastSequence); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks that the persisted hash chain is continuous
// and that projected balances conserve value. Every journal entry moves
// an amount between two accounts, supply changes crossing the external
// boundary account, so per-asset balances must sum to zero.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance)::text
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var imbalance AssetImbalance
		if err := balanceRows.Scan(&imbalance.AssetID, &imbalance.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, imbalance)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
