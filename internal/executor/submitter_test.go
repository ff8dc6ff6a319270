package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swayfi/dca-engine/internal/client/bundler"
	"github.com/swayfi/dca-engine/internal/constants"
	"github.com/swayfi/dca-engine/internal/logger"
	"github.com/swayfi/dca-engine/internal/retry"
)

func init() {
	logger.InitLogger("local")
}

var (
	testManager = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testTxHash  = common.HexToHash("0xabcdef0000000000000000000000000000000000000000000000000000000001")
)

type fakeDirectSender struct {
	txHash common.Hash
	err    error
	calls  int
}

func (f *fakeDirectSender) Submit(ctx context.Context, target common.Address, value *big.Int, data []byte) (common.Hash, error) {
	f.calls++
	if f.err != nil {
		return common.Hash{}, f.err
	}
	return f.txHash, nil
}

type fakeWaiter struct {
	receipt *coretypes.Receipt
	err     error
}

func (f *fakeWaiter) WaitMined(ctx context.Context, txHash common.Hash, timeout time.Duration) (*coretypes.Receipt, error) {
	return f.receipt, f.err
}

type fakeSponsored struct {
	operationID string
	submitErr   error
	receipt     *bundler.Receipt
	receiptErr  error
}

func (f *fakeSponsored) SubmitSponsoredCall(ctx context.Context, target common.Address, callData []byte) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.operationID, nil
}

func (f *fakeSponsored) WaitForReceipt(ctx context.Context, operationID string) (*bundler.Receipt, error) {
	return f.receipt, f.receiptErr
}

func TestSubmitterDirectSuccess(t *testing.T) {
	sender := &fakeDirectSender{txHash: testTxHash}
	waiter := &fakeWaiter{receipt: &coretypes.Receipt{Status: coretypes.ReceiptStatusSuccessful}}
	s := NewSubmitter(constants.DirectSubmission, testManager, sender, waiter, nil, 0)

	res, err := s.Submit(context.Background(), []byte{0x01})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, testTxHash, res.TxHash)
	assert.Equal(t, 1, sender.calls)
}

func TestSubmitterDirectRevertIsPermanent(t *testing.T) {
	sender := &fakeDirectSender{txHash: testTxHash}
	waiter := &fakeWaiter{receipt: &coretypes.Receipt{Status: coretypes.ReceiptStatusFailed}}
	s := NewSubmitter(constants.DirectSubmission, testManager, sender, waiter, nil, 0)

	res, err := s.Submit(context.Background(), []byte{0x01})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)

	var ce *retry.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.False(t, ce.Retryable)
	assert.Equal(t, retry.KindRevert, ce.Kind)
}

func TestSubmitterDirectSettlementTimeoutIsRetryable(t *testing.T) {
	sender := &fakeDirectSender{txHash: testTxHash}
	waiter := &fakeWaiter{err: fmt.Errorf("timed out waiting for receipt: %w", context.DeadlineExceeded)}
	s := NewSubmitter(constants.DirectSubmission, testManager, sender, waiter, nil, 0)

	_, err := s.Submit(context.Background(), []byte{0x01})
	require.Error(t, err)

	var ce *retry.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Retryable)
}

func TestSubmitterDirectNonceRaceIsRetryable(t *testing.T) {
	sender := &fakeDirectSender{err: errors.New("nonce too low")}
	s := NewSubmitter(constants.DirectSubmission, testManager, sender, &fakeWaiter{}, nil, 0)

	_, err := s.Submit(context.Background(), []byte{0x01})
	require.Error(t, err)

	var ce *retry.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Retryable)
}

func TestSubmitterSponsored(t *testing.T) {
	tests := []struct {
		name          string
		receipt       *bundler.Receipt
		wantSuccess   bool
		wantRetryable bool
		wantErr       bool
	}{
		{
			name:        "success",
			receipt:     &bundler.Receipt{TxHash: testTxHash, Success: true},
			wantSuccess: true,
		},
		{
			name:          "permanent revert",
			receipt:       &bundler.Receipt{TxHash: testTxHash, Success: false, Reason: "caveat violated"},
			wantErr:       true,
			wantRetryable: false,
		},
		{
			name:          "transient AA25 nonce error",
			receipt:       &bundler.Receipt{TxHash: testTxHash, Success: false, Reason: "AA25 invalid account nonce"},
			wantErr:       true,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sponsored := &fakeSponsored{operationID: "op-1", receipt: tt.receipt}
			s := NewSubmitter(constants.SponsoredSubmission, testManager, nil, nil, sponsored, 0)

			res, err := s.Submit(context.Background(), []byte{0x01})
			if !tt.wantErr {
				require.NoError(t, err)
				assert.True(t, res.Success)
				return
			}
			require.Error(t, err)
			var ce *retry.ClassifiedError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantRetryable, ce.Retryable)
		})
	}
}

func TestSubmitterUnknownModeFails(t *testing.T) {
	s := NewSubmitter("carrier_pigeon", testManager, nil, nil, nil, 0)
	_, err := s.Submit(context.Background(), []byte{0x01})
	require.Error(t, err)

	var ce *retry.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.False(t, ce.Retryable)
}

func TestNewSubmitterClampsSettleTimeout(t *testing.T) {
	tests := []struct {
		name  string
		given time.Duration
		want  time.Duration
	}{
		{"zero selects default", 0, defaultSettleTimeout},
		{"below floor clamps up", 10 * time.Second, minSettleTimeout},
		{"above ceiling clamps down", 10 * time.Minute, maxSettleTimeout},
		{"in range passes through", 75 * time.Second, 75 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSubmitter(constants.DirectSubmission, testManager, nil, nil, nil, tt.given)
			assert.Equal(t, tt.want, s.settleTimeout)
		})
	}
}

func TestTransientRevert(t *testing.T) {
	assert.True(t, transientRevert("replacement transaction underpriced"))
	assert.True(t, transientRevert("err: Nonce Too Low"))
	assert.False(t, transientRevert("execution reverted: insufficient balance"))
}
