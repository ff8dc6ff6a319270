// Package coinmarketcap wraps the CoinMarketCap quotes API. It serves two
// callers: fiat valuation of token amounts and the 24h price-change proxy
// used when the sentiment feed is down.
package coinmarketcap

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	httpClient "github.com/swayfi/dca-engine/internal/client/http"
	"github.com/swayfi/dca-engine/internal/logger"
)

const (
	defaultBaseURL = "https://pro-api.coinmarketcap.com"
	defaultTimeout = 10 * time.Second
)

// Client manages communication with the CoinMarketCap API.
type Client struct {
	apiKey     string
	httpClient *httpClient.HTTPClient
}

// NewClient creates a new CoinMarketCap API client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: httpClient.NewHTTPClient(
			httpClient.WithBaseURL(defaultBaseURL),
			httpClient.WithTimeout(defaultTimeout),
		),
	}
}

type cmcQuote struct {
	Price            float64 `json:"price"`
	PercentChange24h float64 `json:"percent_change_24h"`
	LastUpdated      string  `json:"last_updated"`
}

type cmcTokenData struct {
	ID     int                 `json:"id"`
	Symbol string              `json:"symbol"`
	Quote  map[string]cmcQuote `json:"quote"`
}

type cmcStatus struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type cmcAPIResponse struct {
	Status cmcStatus                 `json:"status"`
	Data   map[string][]cmcTokenData `json:"data"`
}

// Error represents an API error returned by CoinMarketCap.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("CoinMarketCap API Error: Status %d, Message: %s", e.StatusCode, e.Message)
}

// latestQuote fetches the latest USD quote for a single token symbol.
func (c *Client) latestQuote(ctx context.Context, symbol string) (*cmcQuote, error) {
	symbol = strings.ToUpper(symbol)

	resp, err := c.httpClient.Get(ctx, "/v2/cryptocurrency/quotes/latest",
		httpClient.WithQueryParam("symbol", symbol),
		httpClient.WithQueryParam("convert", "USD"),
		httpClient.WithHeader("X-CMC_PRO_API_KEY", c.apiKey),
	)
	if err != nil {
		logger.Error("CoinMarketCap API request failed", zap.String("symbol", symbol), zap.Error(err))
		return nil, fmt.Errorf("failed to get latest quote from CoinMarketCap: %w", err)
	}

	var apiResponse cmcAPIResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to decode CoinMarketCap response: %w", err)
	}
	if apiResponse.Status.ErrorCode != 0 {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API Error %d: %s", apiResponse.Status.ErrorCode, apiResponse.Status.ErrorMessage),
		}
	}

	entries, ok := apiResponse.Data[symbol]
	if !ok || len(entries) == 0 {
		return nil, fmt.Errorf("CoinMarketCap returned no data for symbol %s", symbol)
	}
	quote, ok := entries[0].Quote["USD"]
	if !ok {
		return nil, fmt.Errorf("CoinMarketCap returned no USD quote for symbol %s", symbol)
	}
	return &quote, nil
}

// TokenPriceUSDCents returns the token's USD price in integer cents,
// rounded to the nearest cent.
func (c *Client) TokenPriceUSDCents(ctx context.Context, symbol string) (int64, error) {
	quote, err := c.latestQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if quote.Price <= 0 {
		return 0, fmt.Errorf("CoinMarketCap returned non-positive price %f for %s", quote.Price, symbol)
	}
	return int64(math.Round(quote.Price * 100)), nil
}

// PctChange24h returns the token's 24h price change in percent.
func (c *Client) PctChange24h(ctx context.Context, symbol string) (float64, error) {
	quote, err := c.latestQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return quote.PercentChange24h, nil
}
