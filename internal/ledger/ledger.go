// Package ledger is the boundary to the external persistence collaborator.
// Execution records are append-only and keyed by (wallet, cycle date);
// writes are idempotent so a late-arriving duplicate settlement after a
// timeout cannot double-record.
package ledger

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swayfi/dca-engine/internal/delegation"
)

// ExecutionRecord is the per-wallet, per-cycle outcome. One is written for
// every processed wallet, success or failure.
type ExecutionRecord struct {
	Wallet     common.Address
	CycleDate  string // YYYY-MM-DD
	Action     string
	TokenIn    string
	TokenOut   string
	SwapAmount string // base units, decimal string
	FeeAmount  string
	NetAmount  string
	TxHash     string
	Status     string
	ErrorKind  string
	ErrorMsg   string
	RetryCount int
}

// CycleSummary aggregates one complete cycle.
type CycleSummary struct {
	CycleID      string
	CycleDate    string
	Action       string
	SignalValue  float64
	SignalSource string
	Processed    int
	Succeeded    int
	Failed       int
	Skipped      int
}

// FeeReconciliation tracks an uncollected fee. The swap it belongs to has
// already settled; collection is best-effort and retried on later cycles.
type FeeReconciliation struct {
	Wallet    common.Address
	CycleDate string
	Token     common.Address
	Amount    string
	Step      string // "fee_transfer" or "reward_deposit"
	LastError string
}

// Ledger is the persistence collaborator interface.
//
//go:generate mockgen -source=ledger.go -destination=../mocks/ledger_mock.go -package=mocks
type Ledger interface {
	// ListActiveDelegations returns delegations valid at now, in stable
	// delegator order, capped at limit.
	ListActiveDelegations(ctx context.Context, now time.Time, limit int32) ([]*delegation.Delegation, error)

	// UpsertDelegation stores a delegation keyed by delegator.
	UpsertDelegation(ctx context.Context, d *delegation.Delegation) error

	// IncrementDelegationUsage bumps the settled-call counter backing the
	// delegation's call-limit caveat.
	IncrementDelegationUsage(ctx context.Context, delegator common.Address) error

	// RecordExecution writes one execution record, idempotent per
	// (wallet, cycle date).
	RecordExecution(ctx context.Context, rec ExecutionRecord) error

	// RecordCycleSummary persists the aggregate outcome of a cycle.
	RecordCycleSummary(ctx context.Context, summary CycleSummary) error

	// RecordFeeReconciliation registers an uncollected fee for later retry.
	RecordFeeReconciliation(ctx context.Context, rec FeeReconciliation) error

	// ListPendingFeeReconciliations returns fees still awaiting collection.
	ListPendingFeeReconciliations(ctx context.Context, limit int32) ([]FeeReconciliation, error)

	// MarkFeeReconciled marks a pending fee as collected.
	MarkFeeReconciled(ctx context.Context, wallet common.Address, cycleDate string) error
}
