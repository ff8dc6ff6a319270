package signal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/swayfi/dca-engine/internal/logger"
	"github.com/swayfi/dca-engine/internal/retry"
)

// Reading is one observation of the market sentiment index.
type Reading struct {
	Value          float64
	Classification string
	Timestamp      time.Time
	Source         string
}

const (
	// SourcePrimary is the sentiment index feed.
	SourcePrimary = "index"
	// SourceBackup is the price-change proxy used when the feed is stale
	// or unavailable.
	SourceBackup = "price_proxy"

	// maxReadingAge is the staleness threshold: a reading exactly this old
	// is still fresh, one second older is not.
	maxReadingAge = 12 * time.Hour
)

// IndexSource fetches the sentiment index from its upstream feed.
type IndexSource interface {
	Latest(ctx context.Context) (Reading, error)
}

// PriceChangeSource reports the short-term price change, in percent, of the
// reference asset. Used to synthesize a backup reading.
type PriceChangeSource interface {
	PctChange24h(ctx context.Context, symbol string) (float64, error)
}

// Provider fetches and validates the sentiment reading, substituting a
// price-change proxy when the primary feed is stale or down. If both
// sources fail, Current returns an error and the cycle degrades to hold:
// correctness over availability.
type Provider struct {
	primary     IndexSource
	backup      PriceChangeSource
	proxySymbol string
	retryPolicy retry.Policy
	now         func() time.Time
}

// NewProvider builds a provider over the primary feed and backup price
// source. proxySymbol names the asset whose price change drives the backup
// computation.
func NewProvider(primary IndexSource, backup PriceChangeSource, proxySymbol string) *Provider {
	return &Provider{
		primary:     primary,
		backup:      backup,
		proxySymbol: proxySymbol,
		retryPolicy: retry.DefaultPolicy(),
		now:         time.Now,
	}
}

// Current returns a fresh sentiment reading.
func (p *Provider) Current(ctx context.Context) (Reading, error) {
	reading, _, err := retry.Do(ctx, "signal_fetch", p.retryPolicy, p.primary.Latest)
	if err == nil {
		age := p.now().Sub(reading.Timestamp)
		switch {
		case reading.Value < 0 || reading.Value > 100:
			// The index is defined on [0, 100]; anything else is a feed
			// glitch and must not drive a trade.
			logger.Warn("sentiment reading out of range, falling back to price proxy",
				zap.Float64("value", reading.Value))
		case age > maxReadingAge:
			logger.Warn("sentiment reading is stale, falling back to price proxy",
				zap.Time("reading_timestamp", reading.Timestamp),
				zap.Duration("age", age))
		default:
			reading.Source = SourcePrimary
			return reading, nil
		}
	} else {
		logger.Warn("primary sentiment source failed, falling back to price proxy", zap.Error(err))
	}

	return p.backupReading(ctx)
}

func (p *Provider) backupReading(ctx context.Context) (Reading, error) {
	pctChange, _, err := retry.Do(ctx, "price_proxy_fetch", p.retryPolicy, func(ctx context.Context) (float64, error) {
		return p.backup.PctChange24h(ctx, p.proxySymbol)
	})
	if err != nil {
		return Reading{}, fmt.Errorf("both sentiment sources unavailable: %w", err)
	}

	value := proxyValue(pctChange)
	return Reading{
		Value:          value,
		Classification: classify(value),
		Timestamp:      p.now(),
		Source:         SourceBackup,
	}, nil
}

// proxyValue derives a sentiment value from a short-term price change:
// clamp(50 + 6*pct, 0, 100), pinned to 20/80 beyond a +/-5% move.
func proxyValue(pctChange float64) float64 {
	if pctChange < -5 {
		return 20
	}
	if pctChange > 5 {
		return 80
	}
	value := 50 + 6*pctChange
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// classify mirrors the labels the index feed publishes.
func classify(value float64) string {
	switch {
	case value <= 25:
		return "Extreme Fear"
	case value <= 45:
		return "Fear"
	case value <= 54:
		return "Neutral"
	case value <= 75:
		return "Greed"
	default:
		return "Extreme Greed"
	}
}
