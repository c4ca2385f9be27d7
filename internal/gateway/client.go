// Package gateway is the outbound client for the ABDM gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wso2/abdm-integration-api/internal/config"
	"github.com/wso2/abdm-integration-api/internal/metrics"
	"github.com/wso2/abdm-integration-api/pkg/utils"
)

const (
	// tokenRefreshSkew renews the session token this long before it expires
	tokenRefreshSkew     = 30 * time.Second
	defaultTokenLifetime = 5 * time.Minute
	maxErrorBodyLength   = 512
)

// Gateway operations, used as metric labels and in GatewayError
const (
	OperationSession           = "session"
	OperationConsentInit       = "consent_init"
	OperationConsentRevoke     = "consent_revoke"
	OperationHealthInfoRequest = "health_info_request"
)

// GatewayError is returned when an outbound call fails after retries are exhausted
// or on a non-retryable response
type GatewayError struct {
	Operation  string
	StatusCode int
	Attempts   int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway %s failed after %d attempt(s) with status %d: %s", e.Operation, e.Attempts, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway %s failed after %d attempt(s): %s", e.Operation, e.Attempts, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// statusError is a non-2xx gateway response
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

// Client handles communication with the ABDM gateway.
// It holds the session token and the connection pool; nothing else is shared.
type Client struct {
	httpClient *http.Client
	config     *config.GatewayConfig
	callbacks  *config.CallbackConfig
	creds      CredentialResolver
	clock      utils.Clock
	logger     *logrus.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a new gateway client instance
func NewClient(cfg *config.GatewayConfig, callbacks *config.CallbackConfig, creds CredentialResolver, clock utils.Clock, logger *logrus.Logger) *Client {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config:    cfg,
		callbacks: callbacks,
		creds:     creds,
		clock:     clock,
		logger:    logger,
	}
}

// Close closes the HTTP client connections
func (c *Client) Close() {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
}

// post sends payload to endpoint with retries and decodes a 2xx body into out
func (c *Client) post(ctx context.Context, operation, endpoint string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &GatewayError{Operation: operation, Message: "failed to marshal request", Err: err}
	}

	url := c.config.GetGatewayURL(endpoint)
	logger := c.logger.WithFields(logrus.Fields{
		"operation":      operation,
		"url":            url,
		"correlation_id": utils.CorrelationID(ctx),
	})

	attempts := 0
	start := time.Now()
	op := func() error {
		attempts++
		return c.attempt(ctx, url, body, out)
	}
	notify := func(err error, wait time.Duration) {
		metrics.GatewayRetries.WithLabelValues(operation).Inc()
		logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempts,
			"wait":    wait,
		}).Warn("Gateway call failed, retrying")
	}

	err = backoff.RetryNotify(op, c.retryPolicy(ctx), notify)
	metrics.GatewayDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GatewayRequests.WithLabelValues(operation, "failure").Inc()
		gwErr := &GatewayError{Operation: operation, Attempts: attempts, Message: err.Error(), Err: err}
		var se *statusError
		if errors.As(err, &se) {
			gwErr.StatusCode = se.StatusCode
		}
		logger.WithError(err).WithField("attempts", attempts).Error("Gateway call failed")
		return gwErr
	}

	metrics.GatewayRequests.WithLabelValues(operation, "success").Inc()
	logger.WithFields(logrus.Fields{
		"attempts": attempts,
		"duration": time.Since(start),
	}).Debug("Gateway call succeeded")
	return nil
}

// attempt performs one signed call. Errors wrapped in backoff.Permanent stop the retry loop.
func (c *Client) attempt(ctx context.Context, url string, body []byte, out interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	secret, err := c.creds.ClientSecret(ctx)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to resolve gateway credentials: %w", err))
	}

	// Create HTTP request with context
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	// Set headers
	timestamp := utils.FormatMillis(c.clock.Now().UnixMilli())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CM-ID", c.config.CMID)
	req.Header.Set("X-Request-ID", uuid.New().String())
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", Sign(secret, timestamp, body))
	if correlationID := utils.CorrelationID(ctx); correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("gateway call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
			}
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		// The token may have been revoked server side; fetch a new one on the next attempt
		c.invalidateToken()
		return &statusError{StatusCode: resp.StatusCode, Body: truncate(respBody)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &statusError{StatusCode: resp.StatusCode, Body: truncate(respBody)}
	default:
		return backoff.Permanent(&statusError{StatusCode: resp.StatusCode, Body: truncate(respBody)})
	}
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.config.Retry.InitialInterval > 0 {
		b.InitialInterval = c.config.Retry.InitialInterval
	}
	if c.config.Retry.MaxInterval > 0 {
		b.MaxInterval = c.config.Retry.MaxInterval
	}
	if c.config.Retry.Multiplier >= 1 {
		b.Multiplier = c.config.Retry.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()

	retries := 0
	if c.config.Retry.MaxAttempts > 1 {
		retries = c.config.Retry.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// accessToken returns a cached session token, creating a session when it is
// missing or about to expire
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.token != "" && now.Before(c.tokenExpiry.Add(-tokenRefreshSkew)) {
		return c.token, nil
	}

	secret, err := c.creds.ClientSecret(ctx)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to resolve gateway credentials: %w", err))
	}

	body, err := json.Marshal(sessionRequest{ClientID: c.config.ClientID, ClientSecret: secret})
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to marshal session request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.GetGatewayURL(c.config.Endpoints.Session), bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to create session request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CM-ID", c.config.CMID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read session response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &statusError{StatusCode: resp.StatusCode, Body: truncate(respBody)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", se
		}
		return "", backoff.Permanent(se)
	}

	var session sessionResponse
	if err := json.Unmarshal(respBody, &session); err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to unmarshal session response: %w", err))
	}
	if session.AccessToken == "" {
		return "", backoff.Permanent(errors.New("session response carried no access token"))
	}

	c.token = session.AccessToken
	c.tokenExpiry = tokenExpiry(session.AccessToken, session.ExpiresIn, now)
	metrics.GatewayRequests.WithLabelValues(OperationSession, "success").Inc()

	c.logger.WithFields(logrus.Fields{
		"client_id":  c.config.ClientID,
		"expires_at": c.tokenExpiry,
	}).Debug("Gateway session established")

	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// tokenExpiry reads the exp claim of a JWT access token. The gateway's own
// signature is not verified here; the token is only forwarded back to it.
func tokenExpiry(token string, expiresIn int64, now time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}
	return now.Add(defaultTokenLifetime)
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyLength {
		return string(body[:maxErrorBodyLength])
	}
	return string(body)
}
