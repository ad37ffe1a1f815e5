package projection

import (
	"context"
	"database/sql"
	"fmt"

	"LendLedger/internal/core"
	"LendLedger/internal/ledger"

	"github.com/rs/zerolog"
)

// ProjectionWorker updates read-model tables from processed events.
// The projection channel is non-blocking with drop: if this worker
// falls behind, projections go stale and are rebuilt from the event
// log rather than stalling the core.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	lastSeq   int64
	log       zerolog.Logger
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput, log zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		log:       log,
	}
}

// Run starts the projection loop. Blocks until ctx is cancelled or the
// input channel closes.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent and rebuildable,
				// so a failed update is logged and skipped.
				pw.log.Warn().
					Err(err).
					Int64("sequence", output.Envelope.Sequence).
					Msg("projection update failed")
			}

			pw.lastSeq = output.Envelope.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output core.CoreOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.Journal {
		if j.Kind == ledger.JournalRebase {
			// A rebase scales every holder at once; nominal flows in the
			// balance table stay share-denominated and are not touched.
			continue
		}
		if err := pw.updateBalanceProjection(ctx, tx, output.Envelope.Sequence, j); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if err := pw.applyEventProjection(ctx, tx, output); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Envelope.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, seq int64, j ledger.JournalEntry) error {
	amount := j.Amount.Dec()

	// Debit side decreases, credit side increases.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -($3::numeric), $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - ($3::numeric), last_sequence = $4
	`, j.Debit, int16(j.AssetID), amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + ($3::numeric), last_sequence = $4
	`, j.Credit, int16(j.AssetID), amount, seq); err != nil {
		return err
	}

	return nil
}

// RebuildProjections rebuilds projection tables from the event log.
// Balance, liquidation and collateral projections rebuild exactly;
// reserve rate tables repopulate from the live stream because
// ReserveDataUpdated payloads are informational and not logged.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.reserves`,
		`TRUNCATE projections.rate_history`,
		`TRUNCATE projections.liquidation_history`,
		`TRUNCATE projections.user_collateral`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Credits first, then subtract debits. Rebase rows carry a ray
	// factor, not a movement, and are excluded.
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(event_sequence) AS last_sequence
		FROM event_log.journal
		WHERE journal_type != %d
		GROUP BY credit_account, asset_id
	`, ledger.JournalRebase))
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(event_sequence) AS last_sequence
		FROM event_log.journal
		WHERE journal_type != %d
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`, ledger.JournalRebase))
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.liquidation_history
			(liquidation_id, collateral_reserve, debt_reserve, borrower, liquidator,
			 debt_covered, collateral_seized, receive_deposit_token, sequence, timestamp)
		SELECT
			(payload->>'liquidation_id')::uuid,
			payload->>'collateral_reserve',
			payload->>'debt_reserve',
			(payload->>'borrower')::uuid,
			(payload->>'liquidator')::uuid,
			(payload->>'debt_covered')::numeric,
			(payload->>'collateral_seized')::numeric,
			(payload->>'receive_deposit_token')::boolean,
			sequence,
			timestamp
		FROM event_log.events
		WHERE event_type = 'LiquidationExecuted'
		ON CONFLICT (liquidation_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("rebuild liquidation history: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.user_collateral (user_id, reserve, use_as_collateral, last_sequence)
		SELECT DISTINCT ON ((payload->>'user_id'), (payload->>'reserve'))
			(payload->>'user_id')::uuid,
			payload->>'reserve',
			(payload->>'use_as_collateral')::boolean,
			sequence
		FROM event_log.events
		WHERE event_type = 'SetCollateral'
		ORDER BY (payload->>'user_id'), (payload->>'reserve'), sequence DESC
	`)
	if err != nil {
		return fmt.Errorf("rebuild user collateral: %w", err)
	}

	return nil
}
