// Package executor turns an encoded redemption into an on-chain swap and
// collects the platform fee afterwards.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	coretypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/swayfi/dca-engine/internal/chain"
	"github.com/swayfi/dca-engine/internal/client/bundler"
	"github.com/swayfi/dca-engine/internal/constants"
	"github.com/swayfi/dca-engine/internal/logger"
	"github.com/swayfi/dca-engine/internal/retry"
)

// Default bounds on how long a submission waits for settlement.
const (
	defaultSettleTimeout = 90 * time.Second
	minSettleTimeout     = 60 * time.Second
	maxSettleTimeout     = 120 * time.Second
)

// DirectSender submits a transaction from the operator EOA.
type DirectSender interface {
	Submit(ctx context.Context, target common.Address, value *big.Int, data []byte) (common.Hash, error)
}

// ReceiptWaiter blocks until a transaction lands or the timeout expires.
type ReceiptWaiter interface {
	WaitMined(ctx context.Context, txHash common.Hash, timeout time.Duration) (*coretypes.Receipt, error)
}

// SponsoredSender submits through the gas-sponsoring bundler.
type SponsoredSender interface {
	SubmitSponsoredCall(ctx context.Context, target common.Address, callData []byte) (string, error)
	WaitForReceipt(ctx context.Context, operationID string) (*bundler.Receipt, error)
}

// Result is the settled outcome of one redemption submission.
type Result struct {
	TxHash  common.Hash
	Success bool
}

// Submitter routes redemption calls to the delegation manager, either from
// the operator EOA or through the sponsoring bundler.
type Submitter struct {
	mode          string
	manager       common.Address
	direct        DirectSender
	waiter        ReceiptWaiter
	sponsored     SponsoredSender
	settleTimeout time.Duration
}

// NewSubmitter builds a submitter for the given mode. The settle timeout is
// clamped to the supported window; zero selects the default.
func NewSubmitter(mode string, manager common.Address, direct DirectSender, waiter ReceiptWaiter, sponsored SponsoredSender, settleTimeout time.Duration) *Submitter {
	switch {
	case settleTimeout <= 0:
		settleTimeout = defaultSettleTimeout
	case settleTimeout < minSettleTimeout:
		settleTimeout = minSettleTimeout
	case settleTimeout > maxSettleTimeout:
		settleTimeout = maxSettleTimeout
	}
	return &Submitter{
		mode:          mode,
		manager:       manager,
		direct:        direct,
		waiter:        waiter,
		sponsored:     sponsored,
		settleTimeout: settleTimeout,
	}
}

// Submit sends the encoded redemption and waits for settlement. Errors are
// classified so the retry controller can tell transient failures from
// permanent reverts.
func (s *Submitter) Submit(ctx context.Context, redemption []byte) (*Result, error) {
	switch s.mode {
	case constants.SponsoredSubmission:
		return s.submitSponsored(ctx, redemption)
	case constants.DirectSubmission:
		return s.submitDirect(ctx, redemption)
	default:
		return nil, retry.Permanent(fmt.Errorf("unknown submission mode %q", s.mode))
	}
}

func (s *Submitter) submitDirect(ctx context.Context, redemption []byte) (*Result, error) {
	txHash, err := s.direct.Submit(ctx, s.manager, big.NewInt(0), redemption)
	if err != nil {
		return nil, classifySubmission(err)
	}

	logger.Debug("redemption submitted, waiting for receipt",
		zap.String("tx_hash", txHash.Hex()))

	receipt, err := s.waiter.WaitMined(ctx, txHash, s.settleTimeout)
	if err != nil {
		// Indeterminate: the transaction may still land. The classifier
		// marks timeouts retryable and the ledger upsert absorbs the
		// duplicate if both attempts settle.
		return nil, retry.Classify(fmt.Errorf("settlement wait for %s: %w", txHash.Hex(), err))
	}

	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return &Result{TxHash: txHash, Success: false},
			retry.Permanent(fmt.Errorf("transaction %s reverted on-chain", txHash.Hex()))
	}
	return &Result{TxHash: txHash, Success: true}, nil
}

func (s *Submitter) submitSponsored(ctx context.Context, redemption []byte) (*Result, error) {
	operationID, err := s.sponsored.SubmitSponsoredCall(ctx, s.manager, redemption)
	if err != nil {
		return nil, classifySubmission(err)
	}

	logger.Debug("sponsored redemption submitted, waiting for receipt",
		zap.String("operation_id", operationID))

	receipt, err := s.sponsored.WaitForReceipt(ctx, operationID)
	if err != nil {
		return nil, retry.Classify(fmt.Errorf("sponsored settlement wait: %w", err))
	}

	if !receipt.Success {
		reason := receipt.Reason
		if decoded, ok := chain.DecodeRevert(common.FromHex(receipt.Reason)); ok {
			reason = decoded
		}
		result := &Result{TxHash: receipt.TxHash, Success: false}
		if transientRevert(reason) {
			return result, classifySubmission(fmt.Errorf("sponsored call failed transiently: %s", reason))
		}
		return result, retry.Permanent(fmt.Errorf("sponsored call reverted: %s", retry.Sanitize(reason)))
	}
	return &Result{TxHash: receipt.TxHash, Success: true}, nil
}

// classifySubmission classifies a pre-settlement error, upgrading the known
// nonce and gas races to retryable even though they read like reverts.
func classifySubmission(err error) error {
	if transientRevert(err.Error()) {
		ce := retry.Classify(err)
		ce.Retryable = true
		return ce
	}
	return retry.Classify(err)
}

// transientRevert recognizes failure modes that resolve themselves on a
// fresh submission: operator nonce races, repriced mempool entries, and the
// bundler's invalid-nonce code.
func transientRevert(msg string) bool {
	msg = strings.ToLower(msg)
	for _, term := range []string{"nonce too low", "replacement transaction underpriced", "already known", "aa25"} {
		if strings.Contains(msg, term) {
			return true
		}
	}
	return false
}
