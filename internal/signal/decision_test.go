package signal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/swayfi/dca-engine/internal/constants"
	"github.com/swayfi/dca-engine/internal/signal"
)

func TestDecideBands(t *testing.T) {
	tests := []struct {
		value      float64
		wantAction string
		wantBps    int64
	}{
		{0, constants.BuyAction, 500},
		{10, constants.BuyAction, 500},
		{25, constants.BuyAction, 500},
		{26, constants.BuyAction, 250},
		{45, constants.BuyAction, 250},
		{46, constants.HoldAction, 0},
		{50, constants.HoldAction, 0},
		{54, constants.HoldAction, 0},
		{55, constants.SellAction, 250},
		{60, constants.SellAction, 250},
		{75, constants.SellAction, 250},
		{76, constants.SellAction, 500},
		{100, constants.SellAction, 500},
	}

	for _, tt := range tests {
		got := signal.Decide(tt.value)
		assert.Equal(t, tt.wantAction, got.Action, "value %v", tt.value)
		assert.Equal(t, tt.wantBps, got.PercentBps, "value %v", tt.value)
	}
}

func TestDecideCoversFullRange(t *testing.T) {
	// Every value in [0,100] maps to exactly one of the five fixed pairs.
	seen := map[signal.TradeDecision]bool{}
	for v := 0; v <= 100; v++ {
		seen[signal.Decide(float64(v))] = true
	}
	assert.Len(t, seen, 5)
}
