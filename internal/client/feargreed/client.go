// Package feargreed fetches the crypto fear & greed index from the
// alternative.me public API.
package feargreed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	httpClient "github.com/swayfi/dca-engine/internal/client/http"
	"github.com/swayfi/dca-engine/internal/signal"
)

const (
	defaultBaseURL = "https://api.alternative.me"
	defaultTimeout = 10 * time.Second
)

// Client manages communication with the fear & greed index API.
type Client struct {
	httpClient *httpClient.HTTPClient
}

// NewClient creates a new index client. baseURL may be empty to use the
// public endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient.NewHTTPClient(
			httpClient.WithBaseURL(baseURL),
			httpClient.WithTimeout(defaultTimeout),
		),
	}
}

// The API returns values and timestamps as strings.
type fngEntry struct {
	Value               string `json:"value"`
	ValueClassification string `json:"value_classification"`
	Timestamp           string `json:"timestamp"`
}

type fngResponse struct {
	Name string     `json:"name"`
	Data []fngEntry `json:"data"`
}

// Latest fetches the most recent index reading.
func (c *Client) Latest(ctx context.Context) (signal.Reading, error) {
	resp, err := c.httpClient.Get(ctx, "/fng/", httpClient.WithQueryParam("limit", "1"))
	if err != nil {
		return signal.Reading{}, fmt.Errorf("failed to fetch fear & greed index: %w", err)
	}

	var apiResponse fngResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &apiResponse); err != nil {
		return signal.Reading{}, fmt.Errorf("failed to decode fear & greed response: %w", err)
	}
	if len(apiResponse.Data) == 0 {
		return signal.Reading{}, fmt.Errorf("fear & greed response contained no readings")
	}

	entry := apiResponse.Data[0]
	value, err := strconv.ParseFloat(entry.Value, 64)
	if err != nil {
		return signal.Reading{}, fmt.Errorf("fear & greed value %q is not numeric: %w", entry.Value, err)
	}
	unix, err := strconv.ParseInt(entry.Timestamp, 10, 64)
	if err != nil {
		return signal.Reading{}, fmt.Errorf("fear & greed timestamp %q is not numeric: %w", entry.Timestamp, err)
	}

	return signal.Reading{
		Value:          value,
		Classification: entry.ValueClassification,
		Timestamp:      time.Unix(unix, 0).UTC(),
		Source:         signal.SourcePrimary,
	}, nil
}
