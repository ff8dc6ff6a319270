package quote

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swayfi/dca-engine/internal/logger"
)

func init() {
	logger.InitLogger("local")
}

var (
	allowedRouterLower = "0xdef1c0ded9bec7f1a1670819833240f027b25eff"
	allowedRouterMixed = "0xDef1C0ded9bec7F1a1670819833240f027b25EfF"
	nearMissRouter     = "0xDef1C0ded9bec7F1a1670819833240f027b25Ef0"
)

func testValidator(now time.Time) *Validator {
	v := NewValidator([]common.Address{common.HexToAddress(allowedRouterLower)})
	v.now = func() time.Time { return now }
	return v
}

func TestRouterAllowlist(t *testing.T) {
	v := testValidator(time.Now())

	// Case-insensitive: any casing of a listed address is accepted.
	assert.True(t, v.RouterAllowed(common.HexToAddress(allowedRouterLower)))
	assert.True(t, v.RouterAllowed(common.HexToAddress(allowedRouterMixed)))

	// A near-match differing by one character is rejected.
	assert.False(t, v.RouterAllowed(common.HexToAddress(nearMissRouter)))
	assert.False(t, v.RouterAllowed(common.HexToAddress("0x0000000000000000000000000000000000000000")))
}

func TestValidateRejectsUnknownRouter(t *testing.T) {
	now := time.Now()
	v := testValidator(now)

	q := &Quote{
		Router:    common.HexToAddress(nearMissRouter),
		AmountOut: big.NewInt(1000),
		FetchedAt: now,
	}

	_, err := v.Validate(q, 30)
	assert.ErrorIs(t, err, ErrRouterNotAllowed)
}

func TestValidateFreshnessWindow(t *testing.T) {
	now := time.Now()
	v := testValidator(now)

	fresh := &Quote{
		Router:    common.HexToAddress(allowedRouterMixed),
		AmountOut: big.NewInt(1000),
		FetchedAt: now.Add(-quoteValidity),
	}
	_, err := v.Validate(fresh, 30)
	assert.NoError(t, err, "a quote exactly at the validity boundary is usable")

	expired := &Quote{
		Router:    common.HexToAddress(allowedRouterMixed),
		AmountOut: big.NewInt(1000),
		FetchedAt: now.Add(-quoteValidity - time.Second),
	}
	_, err = v.Validate(expired, 30)
	assert.ErrorIs(t, err, ErrQuoteExpired)
}

func TestToleranceTiers(t *testing.T) {
	cfg := DefaultSlippageConfig()

	tests := []struct {
		name          string
		notionalCents int64
		want          int64
	}{
		{"small swap uses wide tolerance", 50_00, 50},
		{"just below threshold uses wide tolerance", 99_99, 50},
		{"exactly at threshold uses narrow tolerance", 100_00, 30},
		{"large swap uses narrow tolerance", 5000_00, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.ToleranceFor(tt.notionalCents))
		})
	}
}

func TestMinAmountOut(t *testing.T) {
	out := MinAmountOut(big.NewInt(10000), 30)
	assert.Equal(t, int64(9970), out.Int64())

	out = MinAmountOut(big.NewInt(10000), 50)
	assert.Equal(t, int64(9950), out.Int64())

	// Floor division on awkward amounts.
	out = MinAmountOut(big.NewInt(333), 50)
	assert.Equal(t, int64(331), out.Int64())
}

func TestValidateComputesMinAmountOut(t *testing.T) {
	now := time.Now()
	v := testValidator(now)

	q := &Quote{
		Router:    common.HexToAddress(allowedRouterLower),
		AmountOut: big.NewInt(1_000_000),
		FetchedAt: now,
	}

	validated, err := v.Validate(q, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(995_000), validated.MinAmountOut.Int64())
	assert.Equal(t, int64(50), validated.SlippageBps)
}
