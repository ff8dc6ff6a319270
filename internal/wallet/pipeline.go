package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/swayfi/dca-engine/internal/constants"
	"github.com/swayfi/dca-engine/internal/delegation"
	"github.com/swayfi/dca-engine/internal/logger"
	"github.com/swayfi/dca-engine/internal/quote"
	"github.com/swayfi/dca-engine/internal/signal"
)

// Skip conditions. They are not failures: the orchestrator records a skip
// and moves on to the next wallet.
var (
	ErrBelowMinimumValue = errors.New("wallet balance is below the minimum fiat value")
	ErrDustAmount        = errors.New("net swap amount is below the minimum tradable unit")
)

// Token describes one side of the trading pair.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals int32
}

// SwapContext is the per-wallet, per-cycle working state: created fresh
// each cycle, discarded once the wallet's execution record is written.
type SwapContext struct {
	Delegation *delegation.Delegation
	Decision   signal.TradeDecision

	TokenIn  Token
	TokenOut Token

	Balance       *big.Int
	SwapAmount    *big.Int
	FeeAmount     *big.Int
	NetAmount     *big.Int
	NotionalCents int64

	Quote      *quote.Validated
	Redemption []byte
}

// BalanceReader provides read-only chain queries for ERC-20 balances.
type BalanceReader interface {
	ERC20Balance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// PriceSource converts token amounts to fiat value.
type PriceSource interface {
	TokenPriceUSDCents(ctx context.Context, symbol string) (int64, error)
}

// Config carries the pipeline's thresholds and trading pair.
type Config struct {
	StableToken   Token
	VolatileToken Token

	// MinWalletValueCents is the anti-griefing guard: wallets whose
	// relevant balance converts to less fiat value than this are skipped.
	MinWalletValueCents int64

	// MinTradableAmount is the dust guard on the net swap amount, in base
	// units of the input token.
	MinTradableAmount *big.Int

	// FeeBps is the operator fee taken from each swap, in basis points.
	FeeBps int64
}

// Pipeline turns an active delegation plus a trade decision into a
// populated SwapContext ready for quoting. Side effects are limited to
// read-only chain queries.
type Pipeline struct {
	chain  BalanceReader
	prices PriceSource
	cfg    Config
}

// NewPipeline builds a pipeline over the chain reader and price source.
func NewPipeline(chain BalanceReader, prices PriceSource, cfg Config) *Pipeline {
	return &Pipeline{chain: chain, prices: prices, cfg: cfg}
}

// TradePair returns the input and output tokens for an action: buys spend
// the stablecoin, sells spend the volatile asset.
func (p *Pipeline) TradePair(action string) (tokenIn, tokenOut Token) {
	if action == constants.BuyAction {
		return p.cfg.StableToken, p.cfg.VolatileToken
	}
	return p.cfg.VolatileToken, p.cfg.StableToken
}

// Prepare reads the wallet's relevant balance, applies the eligibility
// guards and computes the swap amounts at basis-point precision.
func (p *Pipeline) Prepare(ctx context.Context, d *delegation.Delegation, decision signal.TradeDecision) (*SwapContext, error) {
	tokenIn, tokenOut := p.TradePair(decision.Action)

	balance, err := p.chain.ERC20Balance(ctx, tokenIn.Address, d.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s balance for %s: %w", tokenIn.Symbol, d.Account.Hex(), err)
	}

	balanceCents, err := p.fiatValueCents(ctx, balance, tokenIn)
	if err != nil {
		return nil, fmt.Errorf("failed to value %s balance: %w", tokenIn.Symbol, err)
	}
	if balanceCents < p.cfg.MinWalletValueCents {
		return nil, fmt.Errorf("%w: %d cents < %d cents", ErrBelowMinimumValue, balanceCents, p.cfg.MinWalletValueCents)
	}

	swapAmount := applyBps(balance, decision.PercentBps)
	feeAmount := CalculateFee(swapAmount, p.cfg.FeeBps)
	netAmount := CalculateAmountAfterFee(swapAmount, p.cfg.FeeBps)

	if p.cfg.MinTradableAmount != nil && netAmount.Cmp(p.cfg.MinTradableAmount) < 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrDustAmount, netAmount, tokenIn.Symbol)
	}

	notionalCents, err := p.fiatValueCents(ctx, netAmount, tokenIn)
	if err != nil {
		return nil, fmt.Errorf("failed to value swap notional: %w", err)
	}

	logger.Debug("prepared wallet swap context",
		zap.String("account", d.Account.Hex()),
		zap.String("action", decision.Action),
		zap.String("balance", balance.String()),
		zap.String("swap_amount", swapAmount.String()),
		zap.String("fee_amount", feeAmount.String()),
		zap.Int64("notional_cents", notionalCents))

	return &SwapContext{
		Delegation:    d,
		Decision:      decision,
		TokenIn:       tokenIn,
		TokenOut:      tokenOut,
		Balance:       balance,
		SwapAmount:    swapAmount,
		FeeAmount:     feeAmount,
		NetAmount:     netAmount,
		NotionalCents: notionalCents,
	}, nil
}

// fiatValueCents converts a token amount in base units to USD cents.
func (p *Pipeline) fiatValueCents(ctx context.Context, amount *big.Int, token Token) (int64, error) {
	priceCents, err := p.prices.TokenPriceUSDCents(ctx, token.Symbol)
	if err != nil {
		return 0, err
	}

	value := new(big.Int).Mul(amount, big.NewInt(priceCents))
	value.Div(value, pow10(token.Decimals))
	if !value.IsInt64() {
		// Balances valued beyond int64 cents are far past every threshold.
		return int64(1) << 62, nil
	}
	return value.Int64(), nil
}

// CalculateFee returns amount * feeBps / 10000, floor division.
func CalculateFee(amount *big.Int, feeBps int64) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(feeBps))
	return fee.Div(fee, big.NewInt(10000))
}

// CalculateAmountAfterFee returns the amount net of fee. Defined by
// subtraction so fee + net always equals the original amount exactly.
func CalculateAmountAfterFee(amount *big.Int, feeBps int64) *big.Int {
	return new(big.Int).Sub(amount, CalculateFee(amount, feeBps))
}

func applyBps(amount *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(bps))
	return out.Div(out, big.NewInt(10000))
}

func pow10(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
