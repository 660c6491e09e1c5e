// Package provider wraps the upstream message-delivery REST API. The client
// performs a single attempt per call and classifies failures so the dispatch
// worker can decide between retry scheduling and terminal failure.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultBaseURL   = "https://api.novasend.example.com/v1"
	defaultUserAgent = "novasend-dispatch/0.1"
)

// Well-known error codes surfaced by the delivery API.
const (
	CodeChannelRevoked   = "channel_revoked"
	CodeInvalidRecipient = "invalid_recipient"
	CodeRateLimited      = "rate_limited"
	CodeProviderError    = "provider_error"
	CodeSendTimeout      = "send_timeout"
)

// Config controls how the delivery client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// Client issues message sends against the delivery API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("provider: API key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// Send issues one delivery attempt. Retries are the caller's concern.
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	tracer := otel.Tracer("novasend/provider")
	ctx, span := tracer.Start(ctx, "provider.Send")
	span.SetAttributes(
		attribute.String("channel.id", req.ChannelID),
	)
	defer span.End()

	body, err := json.Marshal(struct {
		ChannelID string `json:"channel_id"`
		To        string `json:"to"`
		Text      string `json:"text"`
	}{
		ChannelID: req.ChannelID,
		To:        req.To,
		Text:      req.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: marshal send body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Code: CodeSendTimeout, Detail: ctx.Err().Error(), Transient: true}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &Error{Code: CodeSendTimeout, Detail: err.Error(), Transient: true}
		}
		return nil, &Error{Code: CodeProviderError, Detail: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("provider: read response: %w", readErr)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return decodeDataWrapper[SendResponse](data)
	}
	return nil, decodeAPIError(resp.StatusCode, data)
}

// Error is a classified delivery API failure. Transient failures are worth
// retrying with backoff; permanent ones fail the recipient outright.
type Error struct {
	Status    int    `json:"-"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Transient bool   `json:"-"`
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("provider: %s: %s (status=%d)", e.Code, e.Detail, e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("provider: %s (status=%d)", e.Code, e.Status)
	}
	return fmt.Sprintf("provider: http status %d", e.Status)
}

// IsTransient reports whether err is a retryable delivery failure.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

// ErrorCode extracts the provider error code, or CodeProviderError when the
// failure carries none.
func ErrorCode(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code
	}
	return CodeProviderError
}

func decodeAPIError(status int, body []byte) error {
	parsed := &Error{Status: status}
	if err := json.Unmarshal(body, parsed); err != nil {
		parsed.Detail = string(body)
	}
	parsed.Status = status
	if parsed.Code == "" {
		switch {
		case status == http.StatusTooManyRequests:
			parsed.Code = CodeRateLimited
		default:
			parsed.Code = CodeProviderError
		}
	}
	parsed.Transient = status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
	return parsed
}

func decodeDataWrapper[T any](body []byte) (*T, error) {
	var wrapper struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("provider: decode response: %w", err)
	}
	return &wrapper.Data, nil
}
