// Package bundler submits sponsored calls through the account-abstraction
// bundler so smart accounts trade without holding native gas tokens.
package bundler

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	httpClient "github.com/swayfi/dca-engine/internal/client/http"
	"github.com/swayfi/dca-engine/internal/logger"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultPollEvery   = 3 * time.Second
	defaultPollTimeout = 90 * time.Second
)

// Receipt is the terminal state of a sponsored call.
type Receipt struct {
	TxHash  common.Hash
	Success bool
	Reason  string
}

// Client talks to the bundler's sponsorship API.
type Client struct {
	httpClient  *httpClient.HTTPClient
	pollEvery   time.Duration
	pollTimeout time.Duration
}

// NewClient creates a bundler client. pollTimeout bounds how long
// WaitForReceipt blocks; zero selects the default.
func NewClient(baseURL, apiKey string, pollTimeout time.Duration) *Client {
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	options := []httpClient.ClientOption{
		httpClient.WithBaseURL(baseURL),
		httpClient.WithTimeout(defaultTimeout),
	}
	if apiKey != "" {
		options = append(options, httpClient.WithDefaultHeader("Authorization", "Bearer "+apiKey))
	}
	return &Client{
		httpClient:  httpClient.NewHTTPClient(options...),
		pollEvery:   defaultPollEvery,
		pollTimeout: pollTimeout,
	}
}

type sponsoredCallRequest struct {
	Target   string `json:"target"`
	Value    string `json:"value"`
	CallData string `json:"callData"`
	// NonceKey distinguishes concurrent operations for the same account so
	// the bundler never collapses two wallets' calls into one.
	NonceKey string `json:"nonceKey"`
}

type sponsoredCallResponse struct {
	OperationID string `json:"operationId"`
}

type receiptResponse struct {
	Status string `json:"status"`
	TxHash string `json:"txHash"`
	Reason string `json:"reason"`
}

// SubmitSponsoredCall hands the call to the bundler and returns the
// operation ID used to poll for its receipt.
func (c *Client) SubmitSponsoredCall(ctx context.Context, target common.Address, callData []byte) (string, error) {
	body := sponsoredCallRequest{
		Target:   target.Hex(),
		Value:    "0",
		CallData: hexutil.Encode(callData),
		NonceKey: uuid.NewString(),
	}

	resp, err := c.httpClient.Post(ctx, "/v1/sponsored-calls", body)
	if err != nil {
		return "", errors.Wrap(err, "failed to submit sponsored call")
	}

	var out sponsoredCallResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &out); err != nil {
		return "", errors.Wrap(err, "failed to decode sponsored call response")
	}
	if out.OperationID == "" {
		return "", errors.New("bundler returned an empty operation id")
	}

	logger.Debug("sponsored call submitted",
		zap.String("operation_id", out.OperationID),
		zap.String("target", target.Hex()))
	return out.OperationID, nil
}

// WaitForReceipt polls until the operation lands or the poll timeout
// elapses. A timeout is not proof of failure: the operation may still land
// afterwards, so callers must treat it as indeterminate.
func (c *Client) WaitForReceipt(ctx context.Context, operationID string) (*Receipt, error) {
	deadline := time.Now().Add(c.pollTimeout)
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		receipt, done, err := c.pollOnce(ctx, operationID)
		if err != nil {
			return nil, err
		}
		if done {
			return receipt, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for sponsored call %s", operationID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, operationID string) (*Receipt, bool, error) {
	resp, err := c.httpClient.Get(ctx, "/v1/sponsored-calls/"+operationID)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to poll sponsored call status")
	}

	var out receiptResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &out); err != nil {
		return nil, false, errors.Wrap(err, "failed to decode sponsored call status")
	}

	switch out.Status {
	case "success":
		return &Receipt{TxHash: common.HexToHash(out.TxHash), Success: true}, true, nil
	case "reverted":
		return &Receipt{TxHash: common.HexToHash(out.TxHash), Success: false, Reason: out.Reason}, true, nil
	case "pending", "submitted":
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("bundler returned unknown status %q for operation %s", out.Status, operationID)
	}
}
