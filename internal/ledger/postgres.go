package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/swayfi/dca-engine/internal/constants"
	"github.com/swayfi/dca-engine/internal/delegation"
)

// DBTX is the querying surface the ledger needs; *pgxpool.Pool and pgx
// transactions both satisfy it.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresLedger implements Ledger over a pgx connection pool.
type PostgresLedger struct {
	pool DBTX
}

// NewPostgresLedger wraps an existing pool.
func NewPostgresLedger(pool DBTX) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

const listDelegationsQuery = `
SELECT delegator, delegate, account, salt, signature, caveats, status
FROM delegations
WHERE status = $1
ORDER BY delegator`

func (l *PostgresLedger) ListActiveDelegations(ctx context.Context, now time.Time, limit int32) ([]*delegation.Delegation, error) {
	rows, err := l.pool.Query(ctx, listDelegationsQuery, constants.DelegationActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query delegations: %w", err)
	}
	defer rows.Close()

	// The cap is applied after the expiry filter: limiting in SQL would let
	// expired rows inside the window crowd out active ones beyond it.
	var out []*delegation.Delegation
	for int32(len(out)) < limit && rows.Next() {
		var (
			delegator, delegate, account, salt string
			signature                          []byte
			caveatsJSON                        []byte
			status                             string
		)
		if err := rows.Scan(&delegator, &delegate, &account, &salt, &signature, &caveatsJSON, &status); err != nil {
			return nil, fmt.Errorf("failed to scan delegation row: %w", err)
		}

		caveats, err := delegation.UnmarshalCaveats(caveatsJSON)
		if err != nil {
			return nil, fmt.Errorf("delegation for %s has corrupt caveats: %w", delegator, err)
		}

		saltInt, ok := new(big.Int).SetString(salt, 10)
		if !ok {
			return nil, fmt.Errorf("delegation for %s has invalid salt %q", delegator, salt)
		}

		d := &delegation.Delegation{
			Delegator: common.HexToAddress(delegator),
			Delegate:  common.HexToAddress(delegate),
			Account:   common.HexToAddress(account),
			Caveats:   caveats,
			Salt:      saltInt,
			Signature: signature,
			Status:    status,
		}

		// Expiry is derived, not stored: filter here rather than in SQL so
		// the window check stays in one place.
		if d.Active(now) {
			out = append(out, d)
		}
	}
	return out, rows.Err()
}

const upsertDelegationQuery = `
INSERT INTO delegations (delegator, delegate, account, salt, signature, caveats, status, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (delegator) DO UPDATE SET
	delegate = EXCLUDED.delegate,
	account = EXCLUDED.account,
	salt = EXCLUDED.salt,
	signature = EXCLUDED.signature,
	caveats = EXCLUDED.caveats,
	status = EXCLUDED.status,
	updated_at = now()`

func (l *PostgresLedger) UpsertDelegation(ctx context.Context, d *delegation.Delegation) error {
	caveatsJSON, err := delegation.MarshalCaveats(d.Caveats)
	if err != nil {
		return fmt.Errorf("failed to marshal caveats: %w", err)
	}

	salt := "0"
	if d.Salt != nil {
		salt = d.Salt.String()
	}

	_, err = l.pool.Exec(ctx, upsertDelegationQuery,
		d.Delegator.Hex(), d.Delegate.Hex(), d.Account.Hex(), salt, d.Signature, caveatsJSON, d.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert delegation: %w", err)
	}
	return nil
}

const incrementUsageQuery = `
UPDATE delegations
SET caveats = (
	SELECT jsonb_agg(
		CASE WHEN c->>'kind' = 'call_limit'
		THEN jsonb_set(c, '{used}', to_jsonb(COALESCE((c->>'used')::bigint, 0) + 1))
		ELSE c END)
	FROM jsonb_array_elements(caveats) AS c
), updated_at = now()
WHERE delegator = $1`

func (l *PostgresLedger) IncrementDelegationUsage(ctx context.Context, delegator common.Address) error {
	_, err := l.pool.Exec(ctx, incrementUsageQuery, delegator.Hex())
	if err != nil {
		return fmt.Errorf("failed to increment delegation usage: %w", err)
	}
	return nil
}

const recordExecutionQuery = `
INSERT INTO execution_records
	(wallet, cycle_date, action, token_in, token_out, swap_amount, fee_amount, net_amount,
	 tx_hash, status, error_kind, error_message, retry_count, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
ON CONFLICT (wallet, cycle_date) DO UPDATE SET
	tx_hash = EXCLUDED.tx_hash,
	status = EXCLUDED.status,
	error_kind = EXCLUDED.error_kind,
	error_message = EXCLUDED.error_message,
	retry_count = EXCLUDED.retry_count,
	recorded_at = now()`

func (l *PostgresLedger) RecordExecution(ctx context.Context, rec ExecutionRecord) error {
	_, err := l.pool.Exec(ctx, recordExecutionQuery,
		rec.Wallet.Hex(), rec.CycleDate, rec.Action, rec.TokenIn, rec.TokenOut,
		rec.SwapAmount, rec.FeeAmount, rec.NetAmount,
		rec.TxHash, rec.Status, rec.ErrorKind, rec.ErrorMsg, rec.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

const recordCycleSummaryQuery = `
INSERT INTO cycle_summaries
	(cycle_id, cycle_date, action, signal_value, signal_source, processed, succeeded, failed, skipped, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (cycle_date) DO UPDATE SET
	cycle_id = EXCLUDED.cycle_id,
	action = EXCLUDED.action,
	signal_value = EXCLUDED.signal_value,
	signal_source = EXCLUDED.signal_source,
	processed = EXCLUDED.processed,
	succeeded = EXCLUDED.succeeded,
	failed = EXCLUDED.failed,
	skipped = EXCLUDED.skipped,
	recorded_at = now()`

func (l *PostgresLedger) RecordCycleSummary(ctx context.Context, summary CycleSummary) error {
	_, err := l.pool.Exec(ctx, recordCycleSummaryQuery,
		summary.CycleID, summary.CycleDate, summary.Action, summary.SignalValue, summary.SignalSource,
		summary.Processed, summary.Succeeded, summary.Failed, summary.Skipped)
	if err != nil {
		return fmt.Errorf("failed to record cycle summary: %w", err)
	}
	return nil
}

const recordFeeReconciliationQuery = `
INSERT INTO fee_reconciliations (wallet, cycle_date, token, amount, step, last_error, collected, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, false, now())
ON CONFLICT (wallet, cycle_date) DO UPDATE SET
	step = EXCLUDED.step,
	last_error = EXCLUDED.last_error,
	collected = false,
	recorded_at = now()`

func (l *PostgresLedger) RecordFeeReconciliation(ctx context.Context, rec FeeReconciliation) error {
	_, err := l.pool.Exec(ctx, recordFeeReconciliationQuery,
		rec.Wallet.Hex(), rec.CycleDate, rec.Token.Hex(), rec.Amount, rec.Step, rec.LastError)
	if err != nil {
		return fmt.Errorf("failed to record fee reconciliation: %w", err)
	}
	return nil
}

const listPendingFeesQuery = `
SELECT wallet, cycle_date, token, amount, step, last_error
FROM fee_reconciliations
WHERE collected = false
ORDER BY cycle_date, wallet
LIMIT $1`

func (l *PostgresLedger) ListPendingFeeReconciliations(ctx context.Context, limit int32) ([]FeeReconciliation, error) {
	rows, err := l.pool.Query(ctx, listPendingFeesQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending fee reconciliations: %w", err)
	}
	defer rows.Close()

	var out []FeeReconciliation
	for rows.Next() {
		var rec FeeReconciliation
		var wallet, token string
		if err := rows.Scan(&wallet, &rec.CycleDate, &token, &rec.Amount, &rec.Step, &rec.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan fee reconciliation row: %w", err)
		}
		rec.Wallet = common.HexToAddress(wallet)
		rec.Token = common.HexToAddress(token)
		out = append(out, rec)
	}
	return out, rows.Err()
}

const markFeeReconciledQuery = `
UPDATE fee_reconciliations SET collected = true, recorded_at = now()
WHERE wallet = $1 AND cycle_date = $2`

func (l *PostgresLedger) MarkFeeReconciled(ctx context.Context, wallet common.Address, cycleDate string) error {
	tag, err := l.pool.Exec(ctx, markFeeReconciledQuery, wallet.Hex(), cycleDate)
	if err != nil {
		return fmt.Errorf("failed to mark fee reconciled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
