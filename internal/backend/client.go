// Package backend is the HTTP client for the inventory backend, the system
// of record for stock and sales.
//
// It implements the two boundary contracts the terminal core consumes:
// catalog fetching and atomic multi-line sale submission. Timeouts live here,
// at the transport layer, and surface to the checkout coordinator as ordinary
// failures.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/salepoint/pos-terminal/internal/domain/catalog"
	"github.com/salepoint/pos-terminal/internal/domain/checkout"
)

// maxResponseBody caps how much of a backend response is read into memory.
const maxResponseBody = 4 << 20

// StatusError is a non-2xx response from the backend, carrying the status
// code and the backend's message when one was decodable.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Config holds backend connection settings.
type Config struct {
	// BaseURL is the backend root, e.g. http://localhost:8080.
	BaseURL string
	// Token is the bearer token attached to every request.
	Token string
	// Timeout bounds each request end to end.
	Timeout time.Duration
	// BreakerFailures is the consecutive-failure count that opens the
	// circuit breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open before probing.
	BreakerCooldown time.Duration
}

// Client talks to the inventory backend over REST.
//
// A circuit breaker wraps every call: once the backend fails repeatedly, the
// terminal fails fast instead of stacking up doomed requests. 4xx rejections
// are backend decisions, not outages, and do not count against the breaker.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[httpResult]
	baseURL string
	token   string
	lg      *zap.Logger
}

type httpResult struct {
	status int
	body   []byte
}

// Compile-time checks: the client satisfies both core boundary contracts.
var (
	_ catalog.Fetcher    = (*Client)(nil)
	_ checkout.Submitter = (*Client)(nil)
)

// NewClient creates a backend client.
func NewClient(cfg Config, lg *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[httpResult](gobreaker.Settings{
		Name:    "inventory-backend",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("backend circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		lg:      lg,
	}
}

// FetchCatalog retrieves the full product catalog. Implements catalog.Fetcher.
func (c *Client) FetchCatalog(ctx context.Context) ([]catalog.Item, error) {
	res, err := c.do(ctx, http.MethodGet, "/api/products", nil)
	if err != nil {
		return nil, err
	}
	items, err := decodeProducts(res.body)
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return items, nil
}

// SubmitSale records a whole sale in one call. Implements checkout.Submitter.
// The backend commits all lines or none. A 401 means the terminal's token is
// no longer accepted and surfaces as checkout.ErrSessionInvalid.
func (c *Client) SubmitSale(ctx context.Context, req checkout.SaleRequest) (*checkout.Confirmation, error) {
	body := encodeSaleRequest(req)
	res, err := c.do(ctx, http.MethodPost, "/api/sales", body)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			return nil, errors.Wrap(checkout.ErrSessionInvalid, "backend rejected credentials")
		}
		return nil, err
	}
	conf, err := decodeConfirmation(res.body)
	if err != nil {
		return nil, errors.Wrap(err, "decode sale confirmation")
	}
	return conf, nil
}

// Ping verifies the backend is reachable. Used as a readiness check.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodHead, "/api/products", nil)
	return err
}

// do issues one request through the circuit breaker. Transport errors and
// 5xx responses count as breaker failures; 4xx responses are returned as
// *StatusError without tripping the breaker.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (httpResult, error) {
	res, err := c.breaker.Execute(func() (httpResult, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return httpResult{}, errors.Wrap(err, "build request")
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return httpResult{}, errors.Wrap(err, "request backend")
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return httpResult{}, errors.Wrap(err, "read response")
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return httpResult{}, &StatusError{
				StatusCode: resp.StatusCode,
				Message:    decodeErrorMessage(data),
			}
		}
		return httpResult{status: resp.StatusCode, body: data}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return httpResult{}, errors.Wrap(err, "backend unavailable")
		}
		return httpResult{}, err
	}

	if res.status < http.StatusOK || res.status >= http.StatusMultipleChoices {
		return httpResult{}, &StatusError{
			StatusCode: res.status,
			Message:    decodeErrorMessage(res.body),
		}
	}
	return res, nil
}
