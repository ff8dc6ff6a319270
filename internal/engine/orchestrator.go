// Package engine runs the daily execution cycle: one sentiment reading,
// one decision, then a sequential pass over every eligible wallet.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swayfi/dca-engine/internal/chain"
	"github.com/swayfi/dca-engine/internal/constants"
	"github.com/swayfi/dca-engine/internal/delegation"
	"github.com/swayfi/dca-engine/internal/executor"
	"github.com/swayfi/dca-engine/internal/ledger"
	"github.com/swayfi/dca-engine/internal/lock"
	"github.com/swayfi/dca-engine/internal/logger"
	"github.com/swayfi/dca-engine/internal/metrics"
	"github.com/swayfi/dca-engine/internal/quote"
	"github.com/swayfi/dca-engine/internal/retry"
	"github.com/swayfi/dca-engine/internal/signal"
	"github.com/swayfi/dca-engine/internal/wallet"
)

const (
	// maxWalletsPerCycle is the hard processing cap. Anything beyond it
	// waits for the next cycle.
	maxWalletsPerCycle = 100

	defaultInterWalletDelay  = 2 * time.Second
	defaultPendingFeeRetries = 50
)

// SignalProvider produces the cycle's sentiment reading.
type SignalProvider interface {
	Current(ctx context.Context) (signal.Reading, error)
}

// Preparer builds the per-wallet swap context.
type Preparer interface {
	Prepare(ctx context.Context, d *delegation.Delegation, decision signal.TradeDecision) (*wallet.SwapContext, error)
	TradePair(action string) (tokenIn, tokenOut wallet.Token)
}

// Submitter settles an encoded redemption on-chain.
type Submitter interface {
	Submit(ctx context.Context, redemption []byte) (*executor.Result, error)
}

// FeeCollector handles post-swap fee movement.
type FeeCollector interface {
	Collect(ctx context.Context, d *delegation.Delegation, token common.Address, amount *big.Int, cycleDate string)
	RetryPending(ctx context.Context, limit int32)
}

// CycleLocker serializes cycle runs.
type CycleLocker interface {
	Acquire(ctx context.Context, cycleDate string) (func(context.Context) error, error)
}

// Config tunes the orchestrator.
type Config struct {
	MaxWallets       int
	InterWalletDelay time.Duration
}

// CycleResult summarizes one completed run. Success means the cycle ran
// to completion, including hold days and partial wallet failures; fatal
// failures are returned as errors instead.
type CycleResult struct {
	CycleID     uuid.UUID
	CycleDate   string
	Success     bool
	Action      string
	SignalValue float64
	Processed   int
	Succeeded   int
	Failed      int
	Skipped     int
}

// Orchestrator drives the cycle end to end. Wallets are processed
// sequentially and in isolation: one wallet's failure never touches
// another's outcome.
type Orchestrator struct {
	cfg       Config
	locker    CycleLocker
	ledger    ledger.Ledger
	signals   SignalProvider
	pipeline  Preparer
	quoter    quote.Quoter
	validator *quote.Validator
	slippage  quote.SlippageConfig
	submitter Submitter
	fees      FeeCollector
	registry  delegation.EnforcerRegistry

	retryPolicy retry.Policy
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the cycle components together.
func NewOrchestrator(cfg Config, locker CycleLocker, lgr ledger.Ledger, signals SignalProvider, pipeline Preparer, quoter quote.Quoter, validator *quote.Validator, slippage quote.SlippageConfig, submitter Submitter, fees FeeCollector, registry delegation.EnforcerRegistry) *Orchestrator {
	if cfg.MaxWallets <= 0 || cfg.MaxWallets > maxWalletsPerCycle {
		cfg.MaxWallets = maxWalletsPerCycle
	}
	if cfg.InterWalletDelay < 0 {
		cfg.InterWalletDelay = defaultInterWalletDelay
	}
	return &Orchestrator{
		cfg:         cfg,
		locker:      locker,
		ledger:      lgr,
		signals:     signals,
		pipeline:    pipeline,
		quoter:      quoter,
		validator:   validator,
		slippage:    slippage,
		submitter:   submitter,
		fees:        fees,
		registry:    registry,
		retryPolicy: retry.DefaultPolicy(),
		now:         time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			if d <= 0 {
				return nil
			}
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// Run executes one full cycle. It is safe to invoke more than once per
// cycle date: the lock rejects concurrent runs and the ledger's
// (wallet, cycle date) upsert absorbs sequential re-runs.
func (o *Orchestrator) Run(ctx context.Context) (*CycleResult, error) {
	started := o.now()
	cycleDate := started.UTC().Format("2006-01-02")
	result := &CycleResult{
		CycleID:   uuid.New(),
		CycleDate: cycleDate,
		Action:    constants.HoldAction,
	}

	release, err := o.locker.Acquire(ctx, cycleDate)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			logger.Warn("cycle already running, skipping", zap.String("cycle_date", cycleDate))
		}
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to release cycle lock", zap.Error(err))
		}
	}()
	defer func() {
		metrics.CycleDurationSeconds.Observe(time.Since(started).Seconds())
	}()

	// Settle fee work left over from earlier cycles before trading.
	o.fees.RetryPending(ctx, defaultPendingFeeRetries)

	reading, err := o.signals.Current(ctx)
	if err != nil {
		// No defensible reading means no trading. The cycle records a
		// hold so the day is visibly accounted for.
		logger.Error("no usable sentiment reading, holding", zap.Error(err))
		result.Success = true
		o.recordSummary(ctx, result, "unavailable")
		metrics.CyclesTotal.WithLabelValues(constants.HoldAction).Inc()
		return result, nil
	}

	decision := signal.Decide(reading.Value)
	result.Action = decision.Action
	result.SignalValue = reading.Value
	metrics.SignalValue.WithLabelValues(reading.Source).Set(reading.Value)

	logger.Info("cycle decision",
		zap.String("cycle_date", cycleDate),
		zap.Float64("signal_value", reading.Value),
		zap.String("signal_source", reading.Source),
		zap.String("classification", reading.Classification),
		zap.String("action", decision.Action),
		zap.Int64("percent_bps", decision.PercentBps))

	if decision.Action == constants.HoldAction {
		result.Success = true
		o.recordSummary(ctx, result, reading.Source)
		metrics.CyclesTotal.WithLabelValues(constants.HoldAction).Inc()
		return result, nil
	}

	delegations, err := o.ledger.ListActiveDelegations(ctx, o.now(), int32(o.cfg.MaxWallets))
	if err != nil {
		return nil, fmt.Errorf("failed to list active delegations: %w", err)
	}

	for i, d := range delegations {
		if i > 0 {
			if err := o.sleep(ctx, o.cfg.InterWalletDelay); err != nil {
				return result, err
			}
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		status := o.processWallet(ctx, d, decision, reading, cycleDate)
		result.Processed++
		switch status {
		case constants.SuccessStatus:
			result.Succeeded++
		case constants.SkippedStatus:
			result.Skipped++
		default:
			result.Failed++
		}
		metrics.WalletOutcomesTotal.WithLabelValues(status).Inc()
	}

	result.Success = true
	o.recordSummary(ctx, result, reading.Source)
	metrics.CyclesTotal.WithLabelValues(decision.Action).Inc()

	logger.Info("cycle complete",
		zap.String("cycle_date", cycleDate),
		zap.String("action", decision.Action),
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))

	return result, nil
}

// processWallet runs one wallet through preparation, quoting, submission
// and fee collection. Every terminal path writes an execution record; the
// returned status feeds the cycle counters.
func (o *Orchestrator) processWallet(ctx context.Context, d *delegation.Delegation, decision signal.TradeDecision, reading signal.Reading, cycleDate string) string {
	log := logger.With(
		zap.String("wallet", d.Delegator.Hex()),
		zap.String("cycle_date", cycleDate))

	rec := ledger.ExecutionRecord{
		Wallet:    d.Delegator,
		CycleDate: cycleDate,
		Action:    decision.Action,
	}

	sc, err := o.pipeline.Prepare(ctx, d, decision)
	if err != nil {
		if errors.Is(err, wallet.ErrBelowMinimumValue) || errors.Is(err, wallet.ErrDustAmount) {
			log.Info("wallet skipped", zap.String("reason", err.Error()))
			rec.Status = constants.SkippedStatus
			rec.ErrorMsg = retry.Sanitize(err.Error())
			o.record(ctx, rec)
			return constants.SkippedStatus
		}
		log.Error("wallet preparation failed", zap.Error(err))
		return o.fail(ctx, rec, retry.Classify(err), 0)
	}

	rec.TokenIn = sc.TokenIn.Symbol
	rec.TokenOut = sc.TokenOut.Symbol
	rec.SwapAmount = sc.SwapAmount.String()
	rec.FeeAmount = sc.FeeAmount.String()
	rec.NetAmount = sc.NetAmount.String()

	toleranceBps := o.slippage.ToleranceFor(sc.NotionalCents)

	// Quote, validate and submit inside one retry scope so a quote that
	// expires mid-flight is re-fetched rather than replayed.
	res, attempts, err := retry.Do(ctx, "wallet_execution", o.retryPolicy, func(ctx context.Context) (*executor.Result, error) {
		q, err := o.quoter.Quote(ctx, quote.Request{
			TokenIn:     sc.TokenIn.Address,
			TokenOut:    sc.TokenOut.Address,
			Amount:      sc.NetAmount,
			Swapper:     d.Account,
			SlippageBps: toleranceBps,
		})
		if err != nil {
			return nil, err
		}

		validated, err := o.validator.Validate(q, toleranceBps)
		if err != nil {
			if errors.Is(err, quote.ErrRouterNotAllowed) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		sc.Quote = validated

		call := delegation.CallRequest{
			Target:   validated.Router,
			Selector: chain.Selector(validated.CallData),
			Value:    validated.Value,
		}
		if err := d.Validate(o.now(), call); err != nil {
			return nil, retry.Permanent(fmt.Errorf("delegation does not authorize the route: %w", err))
		}

		redemption, err := delegation.EncodeRedemption(
			[]*delegation.Delegation{d},
			[]delegation.Execution{{Target: validated.Router, Value: validated.Value, CallData: validated.CallData}},
			o.registry,
		)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("failed to encode redemption: %w", err))
		}
		sc.Redemption = redemption

		return o.submitter.Submit(ctx, redemption)
	})
	rec.RetryCount = attempts - 1
	if attempts > 1 {
		var ce *retry.ClassifiedError
		if errors.As(err, &ce) {
			metrics.SubmissionRetriesTotal.WithLabelValues(string(ce.Kind)).Add(float64(attempts - 1))
		}
	}
	if err != nil {
		if isSecurityRejection(err) {
			log.Error("wallet execution rejected on security grounds", zap.Error(err))
			rec.Status = constants.SecurityRejectedStatus
			rec.ErrorKind = string(retry.KindRevert)
			rec.ErrorMsg = retry.Sanitize(err.Error())
			o.record(ctx, rec)
			return constants.SecurityRejectedStatus
		}
		log.Error("wallet execution failed", zap.Int("attempts", attempts), zap.Error(err))
		return o.fail(ctx, rec, err, attempts-1)
	}

	rec.TxHash = res.TxHash.Hex()
	rec.Status = constants.SuccessStatus
	o.record(ctx, rec)

	if err := o.ledger.IncrementDelegationUsage(ctx, d.Delegator); err != nil {
		log.Error("failed to increment delegation usage", zap.Error(err))
	}

	o.fees.Collect(ctx, d, sc.TokenIn.Address, sc.FeeAmount, cycleDate)

	log.Info("wallet executed",
		zap.String("tx_hash", rec.TxHash),
		zap.String("swap_amount", rec.SwapAmount),
		zap.String("fee_amount", rec.FeeAmount),
		zap.Int("retries", rec.RetryCount))
	return constants.SuccessStatus
}

func (o *Orchestrator) fail(ctx context.Context, rec ledger.ExecutionRecord, err error, retries int) string {
	rec.Status = constants.FailedStatus
	rec.RetryCount = retries
	var ce *retry.ClassifiedError
	if errors.As(err, &ce) {
		rec.ErrorKind = string(ce.Kind)
	}
	rec.ErrorMsg = retry.Sanitize(err.Error())
	o.record(ctx, rec)
	return constants.FailedStatus
}

func (o *Orchestrator) record(ctx context.Context, rec ledger.ExecutionRecord) {
	if err := o.ledger.RecordExecution(ctx, rec); err != nil {
		logger.Error("failed to write execution record",
			zap.String("wallet", rec.Wallet.Hex()),
			zap.String("cycle_date", rec.CycleDate),
			zap.Error(err))
	}
}

func (o *Orchestrator) recordSummary(ctx context.Context, result *CycleResult, source string) {
	summary := ledger.CycleSummary{
		CycleID:      result.CycleID.String(),
		CycleDate:    result.CycleDate,
		Action:       result.Action,
		SignalValue:  result.SignalValue,
		SignalSource: source,
		Processed:    result.Processed,
		Succeeded:    result.Succeeded,
		Failed:       result.Failed,
		Skipped:      result.Skipped,
	}
	if err := o.ledger.RecordCycleSummary(ctx, summary); err != nil {
		logger.Error("failed to write cycle summary",
			zap.String("cycle_date", result.CycleDate),
			zap.Error(err))
	}
}

// isSecurityRejection separates the abort-and-flag outcomes (unknown
// router, delegation scope escape) from ordinary failures.
func isSecurityRejection(err error) bool {
	if errors.Is(err, quote.ErrRouterNotAllowed) {
		return true
	}
	for _, sentinel := range []error{
		delegation.ErrTargetNotAllowed,
		delegation.ErrSelectorNotAllowed,
		delegation.ErrRevoked,
		delegation.ErrMissingSignature,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
