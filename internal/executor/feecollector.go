package executor

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/swayfi/dca-engine/internal/chain"
	"github.com/swayfi/dca-engine/internal/delegation"
	"github.com/swayfi/dca-engine/internal/ledger"
	"github.com/swayfi/dca-engine/internal/logger"
	"github.com/swayfi/dca-engine/internal/metrics"
	"github.com/swayfi/dca-engine/internal/retry"
)

// Fee collection steps recorded in the reconciliation ledger.
const (
	StepFeeTransfer   = "fee_transfer"
	StepRewardDeposit = "reward_deposit"
)

// FeeCollector moves the platform fee out of the wallet after a successful
// swap and deposits it into the reward pool. Both steps are best effort:
// the swap result stands whether or not they succeed, and failures are
// parked in the reconciliation ledger for the next cycle.
type FeeCollector struct {
	submitter   *Submitter
	direct      DirectSender
	waiter      ReceiptWaiter
	ledger      ledger.Ledger
	registry    delegation.EnforcerRegistry
	feeWallet   common.Address
	rewardPool  common.Address
	retryPolicy retry.Policy
	now         func() time.Time
}

// NewFeeCollector wires the collector. feeWallet receives the delegated
// transfer; rewardPool receives the operator's deposit.
func NewFeeCollector(submitter *Submitter, direct DirectSender, waiter ReceiptWaiter, lgr ledger.Ledger, registry delegation.EnforcerRegistry, feeWallet, rewardPool common.Address) *FeeCollector {
	return &FeeCollector{
		submitter:   submitter,
		direct:      direct,
		waiter:      waiter,
		ledger:      lgr,
		registry:    registry,
		feeWallet:   feeWallet,
		rewardPool:  rewardPool,
		retryPolicy: retry.DefaultPolicy(),
		now:         time.Now,
	}
}

// Collect transfers the fee from the wallet to the fee wallet using the
// same delegation that authorized the swap, then deposits it into the
// reward pool. Errors are recorded, never returned: a failed collection
// must not mark a settled swap as failed.
func (f *FeeCollector) Collect(ctx context.Context, d *delegation.Delegation, token common.Address, amount *big.Int, cycleDate string) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}

	if err := f.transferFee(ctx, d, token, amount); err != nil {
		logger.Warn("fee transfer failed, parked for reconciliation",
			zap.String("wallet", d.Delegator.Hex()),
			zap.String("cycle_date", cycleDate),
			zap.Error(err))
		f.park(ctx, d.Delegator, cycleDate, token, amount, StepFeeTransfer, err)
		return
	}

	if err := f.depositReward(ctx, token, amount); err != nil {
		logger.Warn("reward pool deposit failed, parked for reconciliation",
			zap.String("wallet", d.Delegator.Hex()),
			zap.String("cycle_date", cycleDate),
			zap.Error(err))
		f.park(ctx, d.Delegator, cycleDate, token, amount, StepRewardDeposit, err)
		return
	}

	logger.Info("fee collected",
		zap.String("wallet", d.Delegator.Hex()),
		zap.String("token", token.Hex()),
		zap.String("amount", amount.String()))
}

// RetryPending re-runs parked reconciliations. Called at the start of each
// cycle so a wallet is never more than one cycle behind on fees. Only the
// reward deposit step is replayable without the original delegation; parked
// fee transfers are retried the next time the wallet trades.
func (f *FeeCollector) RetryPending(ctx context.Context, limit int32) {
	pending, err := f.ledger.ListPendingFeeReconciliations(ctx, limit)
	if err != nil {
		logger.Error("failed to list pending fee reconciliations", zap.Error(err))
		return
	}
	metrics.PendingFeeReconciliations.Set(float64(len(pending)))
	if len(pending) == 0 {
		return
	}

	for _, rec := range pending {
		if rec.Step != StepRewardDeposit {
			continue
		}
		amount, ok := new(big.Int).SetString(rec.Amount, 10)
		if !ok {
			logger.Error("pending reconciliation has invalid amount",
				zap.String("wallet", rec.Wallet.Hex()),
				zap.String("amount", rec.Amount))
			continue
		}
		if err := f.depositReward(ctx, rec.Token, amount); err != nil {
			logger.Warn("fee reconciliation retry failed",
				zap.String("wallet", rec.Wallet.Hex()),
				zap.String("cycle_date", rec.CycleDate),
				zap.Error(err))
			continue
		}
		if err := f.ledger.MarkFeeReconciled(ctx, rec.Wallet, rec.CycleDate); err != nil {
			logger.Error("failed to mark fee reconciled",
				zap.String("wallet", rec.Wallet.Hex()),
				zap.String("cycle_date", rec.CycleDate),
				zap.Error(err))
		}
	}
}

// transferFee redeems the wallet's delegation for an ERC-20 transfer of the
// fee amount to the fee wallet.
func (f *FeeCollector) transferFee(ctx context.Context, d *delegation.Delegation, token common.Address, amount *big.Int) error {
	transferData, err := chain.PackERC20Transfer(f.feeWallet, amount)
	if err != nil {
		return errors.Wrap(err, "failed to pack fee transfer")
	}

	call := delegation.CallRequest{Target: token, Selector: chain.Selector(transferData)}
	if err := d.Validate(f.now(), call); err != nil {
		return errors.Wrap(err, "delegation does not authorize the fee transfer")
	}

	redemption, err := delegation.EncodeRedemption(
		[]*delegation.Delegation{d},
		[]delegation.Execution{{Target: token, Value: big.NewInt(0), CallData: transferData}},
		f.registry,
	)
	if err != nil {
		return errors.Wrap(err, "failed to encode fee redemption")
	}

	_, _, err = retry.Do(ctx, "fee_transfer", f.retryPolicy, func(ctx context.Context) (*Result, error) {
		return f.submitter.Submit(ctx, redemption)
	})
	return err
}

// depositReward moves the collected fee from the fee wallet into the
// reward pool via the operator EOA.
func (f *FeeCollector) depositReward(ctx context.Context, token common.Address, amount *big.Int) error {
	depositData, err := chain.PackRewardDeposit(token, amount)
	if err != nil {
		return errors.Wrap(err, "failed to pack reward deposit")
	}

	_, _, err = retry.Do(ctx, "reward_deposit", f.retryPolicy, func(ctx context.Context) (common.Hash, error) {
		txHash, err := f.direct.Submit(ctx, f.rewardPool, big.NewInt(0), depositData)
		if err != nil {
			return common.Hash{}, err
		}
		receipt, err := f.waiter.WaitMined(ctx, txHash, defaultSettleTimeout)
		if err != nil {
			return txHash, err
		}
		if receipt.Status != 1 {
			return txHash, retry.Permanent(errors.Errorf("reward deposit %s reverted", txHash.Hex()))
		}
		return txHash, nil
	})
	return err
}

func (f *FeeCollector) park(ctx context.Context, wallet common.Address, cycleDate string, token common.Address, amount *big.Int, step string, cause error) {
	rec := ledger.FeeReconciliation{
		Wallet:    wallet,
		CycleDate: cycleDate,
		Token:     token,
		Amount:    amount.String(),
		Step:      step,
		LastError: retry.Sanitize(cause.Error()),
	}
	if err := f.ledger.RecordFeeReconciliation(ctx, rec); err != nil {
		logger.Error("failed to record fee reconciliation",
			zap.String("wallet", wallet.Hex()),
			zap.String("cycle_date", cycleDate),
			zap.Error(err))
	}
}
