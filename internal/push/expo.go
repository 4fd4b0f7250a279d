package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultChunkSize is the gateway's maximum messages per request.
const DefaultChunkSize = 100

// DefaultExpoURL is the public Expo push endpoint.
const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

// ExpoConfig configures the gateway client.
type ExpoConfig struct {
	URL               string
	AccessToken       string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// ExpoClient submits message batches to the Expo push API.
type ExpoClient struct {
	httpClient  *http.Client
	url         string
	accessToken string
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewExpoClient creates a rate-limited gateway client.
func NewExpoClient(cfg ExpoConfig, logger *zap.Logger) *ExpoClient {
	if cfg.URL == "" {
		cfg.URL = DefaultExpoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &ExpoClient{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		url:         cfg.URL,
		accessToken: cfg.AccessToken,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

type sendResponse struct {
	Data   []Ticket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Send posts one batch and returns one ticket per message, in order.
func (c *ExpoClient) Send(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var result sendResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("push gateway error %s: %s", result.Errors[0].Code, result.Errors[0].Message)
	}

	if len(result.Data) != len(messages) {
		return nil, fmt.Errorf("push gateway returned %d tickets for %d messages", len(result.Data), len(messages))
	}

	c.logger.Debug("push batch sent", zap.Int("messages", len(messages)))
	return result.Data, nil
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
