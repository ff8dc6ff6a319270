package wallet_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swayfi/dca-engine/internal/constants"
	"github.com/swayfi/dca-engine/internal/delegation"
	"github.com/swayfi/dca-engine/internal/logger"
	"github.com/swayfi/dca-engine/internal/signal"
	"github.com/swayfi/dca-engine/internal/wallet"
)

func init() {
	logger.InitLogger("local")
}

var (
	usdc = wallet.Token{
		Address:  common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Symbol:   "USDC",
		Decimals: 6,
	}
	weth = wallet.Token{
		Address:  common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Symbol:   "WETH",
		Decimals: 18,
	}
)

type fakeChain struct {
	balances map[common.Address]*big.Int
}

func (f *fakeChain) ERC20Balance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	if b, ok := f.balances[token]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

type fakePrices struct {
	cents map[string]int64
}

func (f *fakePrices) TokenPriceUSDCents(ctx context.Context, symbol string) (int64, error) {
	return f.cents[symbol], nil
}

func testConfig() wallet.Config {
	return wallet.Config{
		StableToken:         usdc,
		VolatileToken:       weth,
		MinWalletValueCents: 500,
		MinTradableAmount:   big.NewInt(10_000), // 0.01 USDC
		FeeBps:              20,
	}
}

func activeDelegation(account common.Address) *delegation.Delegation {
	now := time.Now()
	return &delegation.Delegation{
		Delegator: account,
		Account:   account,
		Caveats: []delegation.Caveat{
			delegation.TimeWindowCaveat{NotAfter: now.Add(24 * time.Hour)},
			delegation.CallLimitCaveat{Limit: 100},
		},
		Signature: []byte{0x01},
		Status:    constants.DelegationActive,
	}
}

func TestPrepareBuyComputesAmounts(t *testing.T) {
	account := common.HexToAddress("0x1000000000000000000000000000000000000001")
	chain := &fakeChain{balances: map[common.Address]*big.Int{
		usdc.Address: big.NewInt(1_000_000_000), // $1,000
	}}
	prices := &fakePrices{cents: map[string]int64{"USDC": 100, "WETH": 2500_00}}

	p := wallet.NewPipeline(chain, prices, testConfig())
	sc, err := p.Prepare(context.Background(), activeDelegation(account), signal.TradeDecision{
		Action:     constants.BuyAction,
		PercentBps: 500,
	})

	require.NoError(t, err)
	// $1,000 balance, 5% swap, 20bps fee: swap $50.00, fee $0.10, net $49.90.
	assert.Equal(t, big.NewInt(50_000_000), sc.SwapAmount)
	assert.Equal(t, big.NewInt(100_000), sc.FeeAmount)
	assert.Equal(t, big.NewInt(49_900_000), sc.NetAmount)
	assert.Equal(t, int64(49_90), sc.NotionalCents)
	assert.Equal(t, usdc, sc.TokenIn)
	assert.Equal(t, weth, sc.TokenOut)
}

func TestPrepareSellUsesVolatileToken(t *testing.T) {
	account := common.HexToAddress("0x1000000000000000000000000000000000000002")
	chain := &fakeChain{balances: map[common.Address]*big.Int{
		weth.Address: new(big.Int).Mul(big.NewInt(2), pow18()), // 2 WETH
	}}
	prices := &fakePrices{cents: map[string]int64{"USDC": 100, "WETH": 2500_00}}

	p := wallet.NewPipeline(chain, prices, testConfig())
	sc, err := p.Prepare(context.Background(), activeDelegation(account), signal.TradeDecision{
		Action:     constants.SellAction,
		PercentBps: 250,
	})

	require.NoError(t, err)
	assert.Equal(t, weth, sc.TokenIn)
	assert.Equal(t, usdc, sc.TokenOut)
	// 2.5% of 2 WETH = 0.05 WETH
	assert.Equal(t, "50000000000000000", sc.SwapAmount.String())
}

func TestPrepareSkipsLowValueWallet(t *testing.T) {
	account := common.HexToAddress("0x1000000000000000000000000000000000000003")
	chain := &fakeChain{balances: map[common.Address]*big.Int{
		usdc.Address: big.NewInt(4_000_000), // $4, below the $5 guard
	}}
	prices := &fakePrices{cents: map[string]int64{"USDC": 100}}

	p := wallet.NewPipeline(chain, prices, testConfig())
	_, err := p.Prepare(context.Background(), activeDelegation(account), signal.TradeDecision{
		Action:     constants.BuyAction,
		PercentBps: 500,
	})

	assert.ErrorIs(t, err, wallet.ErrBelowMinimumValue)
}

func TestPrepareSkipsDust(t *testing.T) {
	account := common.HexToAddress("0x1000000000000000000000000000000000000004")
	chain := &fakeChain{balances: map[common.Address]*big.Int{
		usdc.Address: big.NewInt(6_000_000), // $6: passes value guard
	}}
	prices := &fakePrices{cents: map[string]int64{"USDC": 100}}

	cfg := testConfig()
	cfg.MinTradableAmount = big.NewInt(1_000_000) // net of $0.30 swap is dust
	p := wallet.NewPipeline(chain, prices, cfg)

	_, err := p.Prepare(context.Background(), activeDelegation(account), signal.TradeDecision{
		Action:     constants.BuyAction,
		PercentBps: 500,
	})

	assert.ErrorIs(t, err, wallet.ErrDustAmount)
}

func TestFeeAndNetSumToAmount(t *testing.T) {
	amounts := []int64{0, 1, 7, 9999, 10_000, 49_900_000, 123_456_789}
	feeBps := []int64{0, 1, 20, 30, 100, 9999}

	for _, a := range amounts {
		for _, bps := range feeBps {
			amount := big.NewInt(a)
			fee := wallet.CalculateFee(amount, bps)
			net := wallet.CalculateAmountAfterFee(amount, bps)
			sum := new(big.Int).Add(fee, net)
			assert.Equal(t, amount, sum, "amount=%d feeBps=%d", a, bps)
		}
	}
}

func pow18() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}
