package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sagelearn/sage-voice/domain/repositories"
)

const (
	defaultBaseURL        = "http://localhost:8000"
	defaultGeneratePath   = "/api/tts/generate"
	defaultRequestTimeout = 30 * time.Second
)

// Config holds settings for the speech synthesis endpoint.
// Required fields: none; everything defaults to the local backend.
type Config struct {
	BaseURL        string
	GeneratePath   string
	RequestTimeout time.Duration
}

// ConfigFromEnv creates a Config from environment variables, applying
// defaults where unset.
func ConfigFromEnv() Config {
	return Config{
		BaseURL:      os.Getenv("SAGE_TTS_BASE_URL"),
		GeneratePath: os.Getenv("SAGE_TTS_GENERATE_PATH"),
	}
}

// Client implements repositories.SpeechSynthesizer against the backend's
// text-to-speech endpoint.
type Client struct {
	baseURL      string
	generatePath string
	httpClient   *http.Client
	logger       *zap.Logger
}

var _ repositories.SpeechSynthesizer = (*Client)(nil)

type generateRequest struct {
	Text string `json:"text"`
}

type generateResponse struct {
	AudioURL string `json:"audio_url"`
}

// NewClient creates a synthesis client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
		logger.Info("Using default synthesis base URL", zap.String("baseURL", baseURL))
	}
	generatePath := cfg.GeneratePath
	if generatePath == "" {
		generatePath = defaultGeneratePath
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		generatePath: generatePath,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// Synthesize requests speech for the given text and returns an absolute
// audio reference. Relative audio_url values are resolved against the base.
func (c *Client) Synthesize(ctx context.Context, text string) (repositories.AudioRef, error) {
	if strings.TrimSpace(text) == "" {
		return repositories.AudioRef{}, fmt.Errorf("text cannot be empty")
	}

	requestBody, err := json.Marshal(generateRequest{Text: text})
	if err != nil {
		return repositories.AudioRef{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + c.generatePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return repositories.AudioRef{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return repositories.AudioRef{}, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return repositories.AudioRef{}, fmt.Errorf("synthesis endpoint returned %d: %s", resp.StatusCode, string(errorBody))
	}

	var generated generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		return repositories.AudioRef{}, fmt.Errorf("failed to decode synthesis response: %w", err)
	}
	if generated.AudioURL == "" {
		return repositories.AudioRef{}, fmt.Errorf("synthesis response missing audio_url")
	}

	resolved, err := c.resolveURL(generated.AudioURL)
	if err != nil {
		return repositories.AudioRef{}, err
	}

	c.logger.Debug("Speech generated", zap.String("audioURL", resolved))
	return repositories.AudioRef{URL: resolved}, nil
}

func (c *Client) resolveURL(audioURL string) (string, error) {
	parsed, err := url.Parse(audioURL)
	if err != nil {
		return "", fmt.Errorf("invalid audio_url %q: %w", audioURL, err)
	}
	if parsed.IsAbs() {
		return audioURL, nil
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	return base.ResolveReference(parsed).String(), nil
}
