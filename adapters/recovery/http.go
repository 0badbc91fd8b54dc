package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sagelearn/sage-voice/domain/repositories"
)

const (
	defaultEndpoint       = "http://localhost:8000/get-last-response"
	defaultRequestTimeout = 5 * time.Second
)

// Config holds settings for the last-completed-result endpoint
type Config struct {
	Endpoint       string
	RequestTimeout time.Duration
}

// ConfigFromEnv reads the recovery endpoint from the environment
func ConfigFromEnv() Config {
	return Config{Endpoint: os.Getenv("SAGE_RECOVERY_ENDPOINT")}
}

// Client implements repositories.ResultPoller against the backend's status
// endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.ResultPoller = (*Client)(nil)

// NewClient creates a recovery poller client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Poll asks the backend once whether the lost request completed
func (c *Client) Poll(ctx context.Context, token string) (repositories.RecoveryResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return repositories.RecoveryResult{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return repositories.RecoveryResult{}, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return repositories.RecoveryResult{}, fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode, string(errorBody))
	}

	var result repositories.RecoveryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return repositories.RecoveryResult{}, fmt.Errorf("failed to decode status response: %w", err)
	}

	c.logger.Debug("Recovery poll completed", zap.Bool("ready", result.Ready))
	return result, nil
}
