package paymentgateway

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	paymentgatewaytypes "github.com/carnimore/checkout/internal/core/datamodel/paymentgateway"
)

const maxErrorBodyBytes = 512

// AcceptanceError is returned when the gateway answered but did not accept
// the request with a 2xx.
type AcceptanceError struct {
	StatusCode int
	Body       string
}

func (e *AcceptanceError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	URL     string
	Timeout time.Duration
}

type Option func(*Client)

// WithRootCAs trusts pool for the gateway's certificate.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(c *Client) {
		if t, ok := c.httpClient.Transport.(*http.Transport); ok {
			t.TLSClientConfig.RootCAs = pool
		}
	}
}

// WithHTTPClient replaces the transport entirely. The caller owns TLS policy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client sends authorization requests. It is stateless and never interprets
// the business outcome; that only arrives later through the postback.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(config Config, logger *slog.Logger, opts ...Option) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	c := &Client{
		url: config.URL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authorize posts req form-encoded and returns nil once the gateway accepts it.
func (c *Client) Authorize(ctx context.Context, req *paymentgatewaytypes.AuthorizationRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid authorization request: %w", err)
	}

	body := req.Form().Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "*/*")

	c.logger.Info("sending authorization request",
		"order_id", req.OrderID,
		"amount", req.Amount,
		"gateway_url", c.url)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("gateway request failed",
			"order_id", req.OrderID,
			"error", err,
			"elapsed", time.Since(start))
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Warn("gateway did not accept request",
			"order_id", req.OrderID,
			"status_code", resp.StatusCode)
		return &AcceptanceError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	c.logger.Info("gateway accepted authorization request",
		"order_id", req.OrderID,
		"status_code", resp.StatusCode,
		"elapsed", time.Since(start))
	return nil
}
