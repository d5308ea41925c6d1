package notify

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type webhookServer struct {
	ln       *fasthttputil.InmemoryListener
	calls    atomic.Int32
	failures int32
	mu       sync.Mutex
	received []model.TransitionEvent
}

// newWebhookServer answers 503 to the first failures requests and 204 afterwards.
func newWebhookServer(t *testing.T, failures int32) *webhookServer {
	ws := &webhookServer{ln: fasthttputil.NewInmemoryListener(), failures: failures}
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		n := ws.calls.Add(1)
		if n <= ws.failures {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		var ev model.TransitionEvent
		if err := json.Unmarshal(ctx.PostBody(), &ev); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		ws.mu.Lock()
		ws.received = append(ws.received, ev)
		ws.mu.Unlock()
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	}}
	go func() { _ = srv.Serve(ws.ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return ws
}

func (ws *webhookServer) config() Config {
	return Config{
		URL:        "http://webhook.test/hooks/rentals",
		Timeout:    time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Dial: func(addr string) (net.Conn, error) {
			return ws.ln.Dial()
		},
	}
}

func delinquent(id int64) model.TransitionEvent {
	return model.TransitionEvent{
		Type:           model.EventRentalDelinquent,
		TransactionID:  id,
		OldStatus:      model.StatusPtr(model.RentalStatusActive),
		NewStatus:      model.RentalStatusLate,
		Reason:         model.ReasonScheduledUpdate,
		OverdueLines:   1,
		MaxDaysOverdue: 3,
		OccurredAt:     time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
	}
}

func TestClient_Notify(t *testing.T) {
	ws := newWebhookServer(t, 0)
	client, err := NewClient(ws.config())
	require.NoError(t, err)

	require.NoError(t, client.Notify(context.Background(), delinquent(11)))

	require.Len(t, ws.received, 1)
	got := ws.received[0]
	assert.Equal(t, int64(11), got.TransactionID)
	assert.Equal(t, model.RentalStatusLate, got.NewStatus)
	assert.Equal(t, model.RentalStatusActive, *got.OldStatus)
	assert.Equal(t, 3, got.MaxDaysOverdue)
	assert.Equal(t, int64(1), client.Metrics().Sent.Load())
}

func TestClient_NotifyRetries(t *testing.T) {
	t.Run("recovers within the retry budget", func(t *testing.T) {
		ws := newWebhookServer(t, 2)
		client, err := NewClient(ws.config())
		require.NoError(t, err)

		require.NoError(t, client.Notify(context.Background(), delinquent(12)))
		assert.Equal(t, int32(3), ws.calls.Load())
		assert.Zero(t, client.Metrics().ConsecutiveFails.Load())
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		ws := newWebhookServer(t, 100)
		client, err := NewClient(ws.config())
		require.NoError(t, err)

		err = client.Notify(context.Background(), delinquent(13))
		assert.ErrorContains(t, err, "503")
		assert.Equal(t, int32(3), ws.calls.Load())
		assert.Equal(t, int64(1), client.Metrics().Failed.Load())
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ws := newWebhookServer(t, 100)
		cfg := ws.config()
		cfg.RetryDelay = time.Second
		client, err := NewClient(cfg)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err = client.Notify(ctx, delinquent(14))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, int32(1), ws.calls.Load())
	})
}

func TestClient_CircuitBreaker(t *testing.T) {
	ws := newWebhookServer(t, 100)
	cfg := ws.config()
	cfg.MaxRetries = 0
	cfg.CircuitBreakerThreshold = 2
	cfg.CircuitBreakerTimeout = 50 * time.Millisecond
	client, err := NewClient(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, client.Notify(ctx, delinquent(1)))
	assert.Error(t, client.Notify(ctx, delinquent(1)))

	assert.ErrorIs(t, client.Notify(ctx, delinquent(1)), ErrCircuitOpen)
	assert.Equal(t, int32(2), ws.calls.Load())
	assert.Equal(t, int64(1), client.Metrics().Skipped.Load())

	time.Sleep(60 * time.Millisecond)
	err = client.Notify(ctx, delinquent(1))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), ws.calls.Load())

	// one failure while half open reopens the circuit
	assert.ErrorIs(t, client.Notify(ctx, delinquent(1)), ErrCircuitOpen)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrNoEndpoint)

	client, err := NewClient(Config{URL: "http://localhost:9000"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, client.config.Timeout)
	assert.Equal(t, 5, client.config.CircuitBreakerThreshold)
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Notify(context.Background(), delinquent(1)))
}
