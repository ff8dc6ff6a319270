package delegation_test

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swayfi/dca-engine/internal/constants"
	"github.com/swayfi/dca-engine/internal/delegation"
)

var (
	managerAddr  = common.HexToAddress("0x739309deED0Ae184E66a427ACa432aE1D91d022e")
	routerAddr   = common.HexToAddress("0xDef1C0ded9bec7F1a1670819833240f027b25EfF")
	otherAddr    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	swapSelector = [4]byte{0x41, 0x55, 0x65, 0xb0}
)

func testDelegation(now time.Time) *delegation.Delegation {
	return &delegation.Delegation{
		Delegator: common.HexToAddress("0xaaaa00000000000000000000000000000000aaaa"),
		Delegate:  common.HexToAddress("0xbbbb00000000000000000000000000000000bbbb"),
		Account:   common.HexToAddress("0xaaaa00000000000000000000000000000000aaaa"),
		Caveats: []delegation.Caveat{
			delegation.TimeWindowCaveat{NotBefore: now.Add(-time.Hour), NotAfter: now.Add(24 * time.Hour)},
			delegation.CallLimitCaveat{Limit: 365, Used: 10},
			delegation.AllowedTargetsCaveat{Targets: []common.Address{managerAddr, routerAddr}},
			delegation.AllowedMethodsCaveat{Selectors: [][4]byte{swapSelector}},
		},
		Salt:      big.NewInt(7),
		Signature: []byte{0x01, 0x02},
		Status:    constants.DelegationActive,
	}
}

func TestDelegationValidate(t *testing.T) {
	now := time.Now()
	okCall := delegation.CallRequest{Target: routerAddr, Selector: swapSelector}

	tests := []struct {
		name    string
		mutate  func(d *delegation.Delegation)
		call    delegation.CallRequest
		wantErr error
	}{
		{
			name:   "valid call passes every caveat",
			mutate: func(d *delegation.Delegation) {},
			call:   okCall,
		},
		{
			name:    "missing signature",
			mutate:  func(d *delegation.Delegation) { d.Signature = nil },
			call:    okCall,
			wantErr: delegation.ErrMissingSignature,
		},
		{
			name:    "revoked",
			mutate:  func(d *delegation.Delegation) { d.Status = constants.DelegationRevoked },
			call:    okCall,
			wantErr: delegation.ErrRevoked,
		},
		{
			name: "expired window",
			mutate: func(d *delegation.Delegation) {
				d.Caveats[0] = delegation.TimeWindowCaveat{NotBefore: now.Add(-48 * time.Hour), NotAfter: now.Add(-time.Hour)}
			},
			call:    okCall,
			wantErr: delegation.ErrExpired,
		},
		{
			name: "not yet valid",
			mutate: func(d *delegation.Delegation) {
				d.Caveats[0] = delegation.TimeWindowCaveat{NotBefore: now.Add(time.Hour), NotAfter: now.Add(48 * time.Hour)}
			},
			call:    okCall,
			wantErr: delegation.ErrNotYetValid,
		},
		{
			name: "call budget exhausted",
			mutate: func(d *delegation.Delegation) {
				d.Caveats[1] = delegation.CallLimitCaveat{Limit: 10, Used: 10}
			},
			call:    okCall,
			wantErr: delegation.ErrCallsExhausted,
		},
		{
			name:    "target outside scope",
			mutate:  func(d *delegation.Delegation) {},
			call:    delegation.CallRequest{Target: otherAddr, Selector: swapSelector},
			wantErr: delegation.ErrTargetNotAllowed,
		},
		{
			name:    "selector outside scope",
			mutate:  func(d *delegation.Delegation) {},
			call:    delegation.CallRequest{Target: routerAddr, Selector: [4]byte{0xde, 0xad, 0xbe, 0xef}},
			wantErr: delegation.ErrSelectorNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDelegation(now)
			tt.mutate(d)

			err := d.Validate(now, tt.call)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDelegationActive(t *testing.T) {
	now := time.Now()

	d := testDelegation(now)
	assert.True(t, d.Active(now))

	expired := testDelegation(now)
	expired.Caveats[0] = delegation.TimeWindowCaveat{NotAfter: now.Add(-time.Minute)}
	assert.False(t, expired.Active(now))

	exhausted := testDelegation(now)
	exhausted.Caveats[1] = delegation.CallLimitCaveat{Limit: 1, Used: 1}
	assert.False(t, exhausted.Active(now))

	unsigned := testDelegation(now)
	unsigned.Signature = nil
	assert.False(t, unsigned.Active(now))
}

func TestRemainingCalls(t *testing.T) {
	now := time.Now()

	d := testDelegation(now)
	assert.Equal(t, int64(355), d.RemainingCalls())

	unbounded := testDelegation(now)
	unbounded.Caveats = []delegation.Caveat{delegation.TimeWindowCaveat{NotAfter: now.Add(time.Hour)}}
	assert.Equal(t, int64(-1), unbounded.RemainingCalls())
}

func TestEncodeExecution(t *testing.T) {
	exec := delegation.Execution{
		Target:   routerAddr,
		Value:    big.NewInt(5),
		CallData: []byte{0xca, 0xfe},
	}

	encoded := delegation.EncodeExecution(exec)
	require.Len(t, encoded, 20+32+2)
	assert.True(t, bytes.Equal(encoded[:20], routerAddr.Bytes()))
	assert.Equal(t, byte(5), encoded[51])
	assert.Equal(t, []byte{0xca, 0xfe}, encoded[52:])
}

func TestEncodeRedemption(t *testing.T) {
	now := time.Now()
	reg := delegation.EnforcerRegistry{
		Timestamp:      common.HexToAddress("0x0000000000000000000000000000000000000101"),
		LimitedCalls:   common.HexToAddress("0x0000000000000000000000000000000000000102"),
		AllowedTargets: common.HexToAddress("0x0000000000000000000000000000000000000103"),
		AllowedMethods: common.HexToAddress("0x0000000000000000000000000000000000000104"),
	}

	d := testDelegation(now)
	exec := delegation.Execution{Target: routerAddr, CallData: []byte{0x01}}

	data, err := delegation.EncodeRedemption([]*delegation.Delegation{d}, []delegation.Execution{exec}, reg)
	require.NoError(t, err)
	require.Greater(t, len(data), 4)

	// Same inputs must encode identically, and the selector prefix is stable.
	again, err := delegation.EncodeRedemption([]*delegation.Delegation{d}, []delegation.Execution{exec}, reg)
	require.NoError(t, err)
	assert.Equal(t, data, again)

	// Mismatched list lengths are a construction bug, not a recoverable state.
	_, err = delegation.EncodeRedemption([]*delegation.Delegation{d}, nil, reg)
	assert.Error(t, err)

	_, err = delegation.EncodeRedemption(nil, nil, reg)
	assert.Error(t, err)
}
