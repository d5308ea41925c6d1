// Package notify delivers rental transition events to an HTTP webhook.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/pkg/logger"
	"github.com/nimasrn/rental-gateway/pkg/prom"
	"github.com/valyala/fasthttp"
)

var (
	ErrCircuitOpen = errors.New("webhook circuit open")
	ErrNoEndpoint  = errors.New("webhook url is not configured")
)

type Config struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
	// RetryDelay is doubled after every failed attempt.
	RetryDelay              time.Duration
	MaxConns                int
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
	// Dial overrides the connection dialer, mostly for tests.
	Dial fasthttp.DialFunc
}

type DeliveryMetrics struct {
	Sent             atomic.Int64
	Failed           atomic.Int64
	Skipped          atomic.Int64
	TotalLatencyMs   atomic.Int64
	ConsecutiveFails atomic.Int32
}

func (m *DeliveryMetrics) AvgLatencyMs() int64 {
	sent := m.Sent.Load()
	if sent == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / sent
}

// Client posts TransitionEvent JSON to one webhook URL with retries and a small
// circuit breaker so a dead receiver does not slow down every status update.
type Client struct {
	config           Config
	http             *fasthttp.Client
	metrics          *DeliveryMetrics
	circuitOpenUntil atomic.Int64
}

func NewClient(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, ErrNoEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 200 * time.Millisecond
	}
	if config.MaxConns <= 0 {
		config.MaxConns = 64
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = 5
	}
	if config.CircuitBreakerTimeout <= 0 {
		config.CircuitBreakerTimeout = 30 * time.Second
	}

	return &Client{
		config: config,
		http: &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			Dial:                config.Dial,
		},
		metrics: &DeliveryMetrics{},
	}, nil
}

func (c *Client) Metrics() *DeliveryMetrics {
	return c.metrics
}

// Notify delivers one event. It gives up after MaxRetries extra attempts.
func (c *Client) Notify(ctx context.Context, ev model.TransitionEvent) error {
	if c.circuitOpen() {
		c.metrics.Skipped.Add(1)
		prom.IncNotification("skipped")
		return ErrCircuitOpen
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	delay := c.config.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		start := time.Now()
		err := c.post(ctx, body)
		if err == nil {
			c.recordSuccess(time.Since(start))
			logger.Debug("transition event delivered",
				"transaction_id", ev.TransactionID,
				"type", ev.Type,
				"attempt", attempt+1)
			return nil
		}
		lastErr = err
		logger.Warn("webhook delivery failed", "transaction_id", ev.TransactionID, "attempt", attempt+1, "error", err)
	}

	c.recordFailure()
	return fmt.Errorf("webhook failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	code := resp.StatusCode()
	if code < 200 || code >= 300 {
		return fmt.Errorf("unexpected status code: %d, body: %s", code, resp.Body())
	}
	return nil
}

func (c *Client) recordSuccess(latency time.Duration) {
	c.metrics.Sent.Add(1)
	c.metrics.TotalLatencyMs.Add(latency.Milliseconds())
	c.metrics.ConsecutiveFails.Store(0)
	prom.IncNotification("sent")
}

func (c *Client) recordFailure() {
	c.metrics.Failed.Add(1)
	prom.IncNotification("failed")
	fails := c.metrics.ConsecutiveFails.Add(1)
	if fails >= int32(c.config.CircuitBreakerThreshold) {
		c.circuitOpenUntil.Store(time.Now().Add(c.config.CircuitBreakerTimeout).UnixNano())
		logger.Warn("webhook circuit opened", "consecutive_fails", fails, "timeout", c.config.CircuitBreakerTimeout.String())
	}
}

func (c *Client) circuitOpen() bool {
	until := c.circuitOpenUntil.Load()
	if until == 0 {
		return false
	}
	if time.Now().UnixNano() > until {
		// half open: the next failure opens it again right away
		c.circuitOpenUntil.Store(0)
		c.metrics.ConsecutiveFails.Store(int32(c.config.CircuitBreakerThreshold - 1))
		return false
	}
	return true
}

// Noop drops every event. Used when no webhook is configured.
type Noop struct{}

func (Noop) Notify(ctx context.Context, ev model.TransitionEvent) error {
	return nil
}
