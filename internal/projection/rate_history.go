package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
)

// applyEventProjection routes event-specific read-model updates.
// ReserveDataUpdated maintains the current reserve view and the
// append-only rate history; LiquidationExecuted and SetCollateral
// maintain their histories.
func (pw *ProjectionWorker) applyEventProjection(ctx context.Context, tx *sql.Tx, output core.CoreOutput) error {
	env := output.Envelope

	switch env.EventType {
	case event.EventTypeReserveDataUpdated:
		var rd event.ReserveDataUpdated
		if err := json.Unmarshal(env.Payload, &rd); err != nil {
			return fmt.Errorf("decode reserve data: %w", err)
		}
		return pw.applyReserveData(ctx, tx, env.Sequence, rd)

	case event.EventTypeLiquidationExecuted:
		var le event.LiquidationExecuted
		if err := json.Unmarshal(env.Payload, &le); err != nil {
			return fmt.Errorf("decode liquidation: %w", err)
		}
		return pw.applyLiquidation(ctx, tx, env.Sequence, le)

	case event.EventTypeSetCollateral:
		var sc event.SetCollateral
		if err := json.Unmarshal(env.Payload, &sc); err != nil {
			return fmt.Errorf("decode collateral toggle: %w", err)
		}
		return pw.applyCollateralToggle(ctx, tx, env.Sequence, sc)
	}

	return nil
}

func (pw *ProjectionWorker) applyReserveData(ctx context.Context, tx *sql.Tx, seq int64, rd event.ReserveDataUpdated) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.reserves
			(reserve, liquidity_rate, stable_borrow_rate, variable_borrow_rate,
			 liquidity_index, variable_borrow_index, available_liquidity,
			 total_stable_debt, total_variable_debt, last_sequence, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::numeric,
		        $7::numeric, $8::numeric, $9::numeric, $10, $11)
		ON CONFLICT (reserve) DO UPDATE SET
			liquidity_rate = $2::numeric,
			stable_borrow_rate = $3::numeric,
			variable_borrow_rate = $4::numeric,
			liquidity_index = $5::numeric,
			variable_borrow_index = $6::numeric,
			available_liquidity = $7::numeric,
			total_stable_debt = $8::numeric,
			total_variable_debt = $9::numeric,
			last_sequence = $10,
			updated_at = $11
	`, rd.Reserve, rd.LiquidityRate, rd.StableBorrowRate, rd.VariableBorrowRate,
		rd.LiquidityIndex, rd.VariableBorrowIndex, rd.AvailableLiquidity,
		rd.TotalStableDebt, rd.TotalVariableDebt, seq, time.Unix(rd.Timestamp, 0).UTC(),
	); err != nil {
		return fmt.Errorf("reserve upsert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.rate_history
			(reserve, sequence, liquidity_rate, stable_borrow_rate,
			 variable_borrow_rate, liquidity_index, variable_borrow_index, timestamp)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8)
		ON CONFLICT (reserve, sequence) DO NOTHING
	`, rd.Reserve, seq, rd.LiquidityRate, rd.StableBorrowRate,
		rd.VariableBorrowRate, rd.LiquidityIndex, rd.VariableBorrowIndex,
		time.Unix(rd.Timestamp, 0).UTC(),
	); err != nil {
		return fmt.Errorf("rate history insert: %w", err)
	}

	return nil
}

func (pw *ProjectionWorker) applyLiquidation(ctx context.Context, tx *sql.Tx, seq int64, le event.LiquidationExecuted) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.liquidation_history
			(liquidation_id, collateral_reserve, debt_reserve, borrower, liquidator,
			 debt_covered, collateral_seized, receive_deposit_token, sequence, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10)
		ON CONFLICT (liquidation_id) DO NOTHING
	`, le.LiquidationID, le.CollateralReserve, le.DebtReserve, le.Borrower, le.Liquidator,
		le.DebtCovered, le.CollateralSeized, le.ReceiveDepositToken, seq,
		time.Unix(le.Timestamp, 0).UTC(),
	)
	if err != nil {
		return fmt.Errorf("liquidation history insert: %w", err)
	}
	return nil
}

func (pw *ProjectionWorker) applyCollateralToggle(ctx context.Context, tx *sql.Tx, seq int64, sc event.SetCollateral) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.user_collateral (user_id, reserve, use_as_collateral, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, reserve) DO UPDATE SET use_as_collateral = $3, last_sequence = $4
	`, sc.UserID, sc.Reserve, sc.UseAsCollateral, seq)
	if err != nil {
		return fmt.Errorf("user collateral upsert: %w", err)
	}
	return nil
}
