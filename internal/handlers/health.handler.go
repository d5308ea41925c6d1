package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/rental-gateway/pkg/http"
)

// Pinger is a dependency the health check pings, such as the database or redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	deps    map[string]Pinger
	timeout time.Duration
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		deps:    deps,
		timeout: 2 * time.Second,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	// fasthttp cancels ctx only on server shutdown, so checks get their own deadline.
	pingCtx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	res := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.deps))}
	for name, dep := range h.deps {
		if err := dep.Ping(pingCtx); err != nil {
			res.Status = "degraded"
			res.Checks[name] = err.Error()
			continue
		}
		res.Checks[name] = "ok"
	}

	code := xhttp.StatusOK
	if res.Status != "ok" {
		code = xhttp.StatusServiceUnavailable
	}
	xhttp.WriteJSON(ctx, code, res)
}
