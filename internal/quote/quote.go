package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/swayfi/dca-engine/internal/logger"
)

var (
	// ErrRouterNotAllowed is a security-classified rejection: the routing
	// collaborator returned a target outside the audited allow-list. The
	// wallet's cycle aborts and nothing is submitted.
	ErrRouterNotAllowed = errors.New("router address is not on the allow-list")

	// ErrQuoteExpired marks a quote older than its validity window. An
	// expired quote is discarded and re-fetched, never reused.
	ErrQuoteExpired = errors.New("quote expired")

	// ErrBelowMinimumOut guards against a quote so poor the minimum
	// acceptable output would round to zero.
	ErrBelowMinimumOut = errors.New("quoted output is below the minimum tradable amount")
)

// quoteValidity is how long a fetched quote remains usable.
const quoteValidity = 30 * time.Second

// Request describes the swap a quote is needed for.
type Request struct {
	TokenIn     common.Address
	TokenOut    common.Address
	Amount      *big.Int
	Swapper     common.Address
	SlippageBps int64
}

// Quote is the routing collaborator's answer: an executable call plus the
// quoted output amount. FetchedAt anchors the validity window.
type Quote struct {
	Router    common.Address
	CallData  []byte
	Value     *big.Int
	AmountOut *big.Int
	FetchedAt time.Time
}

// Quoter obtains swap routes from the external routing collaborator.
type Quoter interface {
	Quote(ctx context.Context, req Request) (*Quote, error)
}

// Validated is a quote that has passed every check, carrying the
// slippage-protected minimum output.
type Validated struct {
	Quote
	SlippageBps  int64
	MinAmountOut *big.Int
}

// SlippageConfig selects the tolerance tier by swap size. Larger swaps are
// more attractive front-running targets and get the narrower tolerance.
type SlippageConfig struct {
	NotionalThresholdCents int64
	WideBps                int64
	NarrowBps              int64
}

// DefaultSlippageConfig: below $100 notional use 50bps, at or above use 30bps.
func DefaultSlippageConfig() SlippageConfig {
	return SlippageConfig{
		NotionalThresholdCents: 100_00,
		WideBps:                50,
		NarrowBps:              30,
	}
}

// ToleranceFor returns the tolerance tier for a swap of the given USD
// notional. The threshold itself takes the narrow tier.
func (c SlippageConfig) ToleranceFor(notionalCents int64) int64 {
	if notionalCents < c.NotionalThresholdCents {
		return c.WideBps
	}
	return c.NarrowBps
}

// MinAmountOut applies a tolerance to a quoted output:
// out * (10000 - toleranceBps) / 10000, floor division.
func MinAmountOut(quotedOut *big.Int, toleranceBps int64) *big.Int {
	out := new(big.Int).Mul(quotedOut, big.NewInt(10000-toleranceBps))
	return out.Div(out, big.NewInt(10000))
}

// Validator enforces the route security and freshness rules on quotes
// returned by the routing collaborator.
type Validator struct {
	allowlist map[common.Address]struct{}
	now       func() time.Time
}

// NewValidator builds a validator over the fixed allow-list of known,
// audited router contracts.
func NewValidator(routers []common.Address) *Validator {
	allowlist := make(map[common.Address]struct{}, len(routers))
	for _, r := range routers {
		allowlist[r] = struct{}{}
	}
	return &Validator{allowlist: allowlist, now: time.Now}
}

// RouterAllowed reports allow-list membership. common.Address comparison
// makes the check case-insensitive with respect to hex input.
func (v *Validator) RouterAllowed(router common.Address) bool {
	_, ok := v.allowlist[router]
	return ok
}

// Validate runs all checks, in order: router allow-list, quote freshness,
// then slippage-protected minimum output. Only a quote passing every check
// may enter a wallet's swap context.
func (v *Validator) Validate(q *Quote, toleranceBps int64) (*Validated, error) {
	if !v.RouterAllowed(q.Router) {
		logger.Error("quote returned a non-allow-listed router, aborting wallet cycle",
			zap.String("router", q.Router.Hex()))
		return nil, fmt.Errorf("%w: %s", ErrRouterNotAllowed, q.Router.Hex())
	}

	if age := v.now().Sub(q.FetchedAt); age > quoteValidity {
		return nil, fmt.Errorf("%w: fetched %s ago", ErrQuoteExpired, age.Round(time.Second))
	}

	minOut := MinAmountOut(q.AmountOut, toleranceBps)
	if minOut.Sign() <= 0 {
		return nil, ErrBelowMinimumOut
	}

	return &Validated{
		Quote:        *q,
		SlippageBps:  toleranceBps,
		MinAmountOut: minOut,
	}, nil
}
