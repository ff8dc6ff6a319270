// Package quoter calls the external routing collaborator that produces
// executable swap routes.
package quoter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	httpClient "github.com/swayfi/dca-engine/internal/client/http"
	"github.com/swayfi/dca-engine/internal/quote"
)

const defaultTimeout = 15 * time.Second

// Client requests swap routes over the collaborator's REST API.
type Client struct {
	httpClient *httpClient.HTTPClient
	chainID    uint64
}

// NewClient creates a routing client for the given chain.
func NewClient(baseURL, apiKey string, chainID uint64) *Client {
	options := []httpClient.ClientOption{
		httpClient.WithBaseURL(baseURL),
		httpClient.WithTimeout(defaultTimeout),
	}
	if apiKey != "" {
		options = append(options, httpClient.WithDefaultHeader("X-API-Key", apiKey))
	}
	return &Client{
		httpClient: httpClient.NewHTTPClient(options...),
		chainID:    chainID,
	}
}

type quoteRequest struct {
	ChainID     uint64 `json:"chainId"`
	TokenIn     string `json:"tokenIn"`
	TokenOut    string `json:"tokenOut"`
	AmountIn    string `json:"amountIn"`
	Swapper     string `json:"swapper"`
	SlippageBps int64  `json:"slippageBps"`
}

type quoteResponse struct {
	Router    string `json:"router"`
	CallData  string `json:"callData"`
	Value     string `json:"value"`
	AmountOut string `json:"amountOut"`
}

// Quote fetches an executable route. The validity window starts when the
// response arrives, so FetchedAt is stamped here rather than trusted from
// the collaborator.
func (c *Client) Quote(ctx context.Context, req quote.Request) (*quote.Quote, error) {
	body := quoteRequest{
		ChainID:     c.chainID,
		TokenIn:     req.TokenIn.Hex(),
		TokenOut:    req.TokenOut.Hex(),
		AmountIn:    req.Amount.String(),
		Swapper:     req.Swapper.Hex(),
		SlippageBps: req.SlippageBps,
	}

	resp, err := c.httpClient.Post(ctx, "/v1/quote", body)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch swap quote: %w", err)
	}

	var out quoteResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &out); err != nil {
		return nil, fmt.Errorf("failed to decode swap quote: %w", err)
	}

	if !common.IsHexAddress(out.Router) {
		return nil, fmt.Errorf("quote contains invalid router address %q", out.Router)
	}
	callData, err := hexutil.Decode(out.CallData)
	if err != nil {
		return nil, fmt.Errorf("quote contains invalid call data: %w", err)
	}
	amountOut, ok := new(big.Int).SetString(out.AmountOut, 10)
	if !ok {
		return nil, fmt.Errorf("quote contains invalid output amount %q", out.AmountOut)
	}
	value := big.NewInt(0)
	if out.Value != "" {
		if value, ok = new(big.Int).SetString(out.Value, 10); !ok {
			return nil, fmt.Errorf("quote contains invalid call value %q", out.Value)
		}
	}

	return &quote.Quote{
		Router:    common.HexToAddress(out.Router),
		CallData:  callData,
		Value:     value,
		AmountOut: amountOut,
		FetchedAt: time.Now().UTC(),
	}, nil
}
