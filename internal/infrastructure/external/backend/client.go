package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
	domainErrors "github.com/neobile/smarttutor-iap/internal/domain/errors"
)

const (
	// DefaultTimeout for HTTP requests
	DefaultTimeout = 30 * time.Second
	// MaxRetries for failed requests
	MaxRetries = 3
	// RetryDelay for retries
	RetryDelay = 500 * time.Millisecond
)

// Config represents subscription backend configuration
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// TokenSource supplies the bearer token attached to backend requests.
// An empty token means the request goes out unauthenticated.
type TokenSource interface {
	Token() string
}

// Client is the HTTP client for the remote subscription API. It is the only
// path to server-owned entitlement truth; callers decide how to soft-fail.
type Client struct {
	config     Config
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
}

// NewClient creates a new subscription backend client
func NewClient(config Config, tokens TokenSource, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = MaxRetries
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		tokens: tokens,
		logger: logger,
	}
}

// GetSubscription reads the authoritative subscription status for a user.
func (c *Client) GetSubscription(ctx context.Context, userID string) (entity.Subscription, error) {
	var sub entity.Subscription
	err := c.doJSON(ctx, http.MethodGet, "/subscription/"+userID, nil, &sub)
	if err != nil {
		return entity.FreeSubscription(), err
	}
	return sub, nil
}

// PutSubscription writes the subscription status for a user.
func (c *Client) PutSubscription(ctx context.Context, userID string, sub entity.Subscription) error {
	return c.doJSON(ctx, http.MethodPut, "/subscription/"+userID, sub, nil)
}

type validateRequest struct {
	Receipt         string `json:"receipt"`
	ProductID       string `json:"productId"`
	TransactionID   string `json:"transactionId"`
	TransactionDate int64  `json:"transactionDate"`
}

// ValidateReceipt submits a purchase receipt for server-side validation.
// An invalid or expired receipt is not an error: the response still carries
// the authoritative status.
func (c *Client) ValidateReceipt(ctx context.Context, userID string, p entity.Purchase) (entity.ReceiptValidation, error) {
	req := validateRequest{
		Receipt:         p.TransactionReceipt,
		ProductID:       p.ProductID,
		TransactionID:   p.TransactionID,
		TransactionDate: p.TransactionDate.UnixMilli(),
	}
	var result entity.ReceiptValidation
	if err := c.doJSON(ctx, http.MethodPost, "/subscription/"+userID+"/validate", req, &result); err != nil {
		return entity.ReceiptValidation{}, err
	}
	return result, nil
}

type cancelRequest struct {
	FirebaseID string `json:"firebaseId"`
}

// Cancel requests a server-side cancellation for platforms without native
// self-service cancel. Returns the updated subscription status.
func (c *Client) Cancel(ctx context.Context, userID string) (entity.Subscription, error) {
	var sub entity.Subscription
	err := c.doJSON(ctx, http.MethodPost, "/subscription/cancel", cancelRequest{FirebaseID: userID}, &sub)
	if err != nil {
		return entity.FreeSubscription(), err
	}
	return sub, nil
}

// DeleteSubscription removes the user's entitlement data, paired with
// identity-provider account deletion.
func (c *Client) DeleteSubscription(ctx context.Context, userID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/subscription/"+userID, nil, nil)
}

// doJSON performs an HTTP request with retries, encoding body and decoding
// the response into result when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(RetryDelay * time.Duration(attempt))
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.tokens != nil {
			if token := c.tokens.Token(); token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("backend request failed, retrying",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return domainErrors.ErrSubscriptionNotFound
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(respBody))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(respBody))
			c.logger.Warn("backend returned error status, retrying",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Int("status", resp.StatusCode),
			)
			continue
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("failed to parse backend response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("%w: %v", domainErrors.ErrBackendUnavailable, lastErr)
}
