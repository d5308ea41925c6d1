package xhttp

import (
	"encoding/json"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func newCtx(method, uri string) *RequestCtx {
	ctx := &RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	return ctx
}

func decodeError(t *testing.T, ctx *RequestCtx) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	return body
}

func TestDefaultRouter_JSONErrors(t *testing.T) {
	r := CreateDefaultRouter()
	r.GET("/rentals/{id}", func(ctx *RequestCtx) {
		WriteJSON(ctx, StatusOK, map[string]string{"id": Param(ctx, "id")})
	})
	r.GET("/boom", func(ctx *RequestCtx) { panic("boom") })

	t.Run("param", func(t *testing.T) {
		ctx := newCtx("GET", "/rentals/42")
		r.Handler(ctx)
		assert.Equal(t, StatusOK, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"id":"42"}`, string(ctx.Response.Body()))
	})

	t.Run("not found", func(t *testing.T) {
		ctx := newCtx("GET", "/nope")
		r.Handler(ctx)
		assert.Equal(t, StatusNotFound, ctx.Response.StatusCode())
		assert.Equal(t, "Not Found", decodeError(t, ctx).Error)
	})

	t.Run("method not allowed", func(t *testing.T) {
		ctx := newCtx("DELETE", "/rentals/42")
		r.Handler(ctx)
		assert.Equal(t, StatusMethodNotAllowed, ctx.Response.StatusCode())
		assert.Equal(t, "Method Not Allowed", decodeError(t, ctx).Error)
	})

	t.Run("panic", func(t *testing.T) {
		ctx := newCtx("GET", "/boom")
		r.Handler(ctx)
		assert.Equal(t, StatusInternalServerError, ctx.Response.StatusCode())
	})
}

func TestEngine_MiddlewareOrder(t *testing.T) {
	e := CreateServer()
	var order []string
	mark := func(name string) MiddlewareFunc {
		return func(next RequestHandler) RequestHandler {
			return func(ctx *RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}
	e.Use(mark("first"))
	e.Use(RequestIDMiddleware)
	e.Use(mark("second"))
	e.GET("/ping", func(ctx *RequestCtx) {
		order = append(order, "handler")
		WriteJSON(ctx, StatusOK, map[string]string{"request_id": requestID(ctx)})
	})

	ctx := newCtx("GET", "/ping")
	e.Handler()(ctx)

	assert.Equal(t, []string{"first", "second", "handler"}, order)
	rid := string(ctx.Response.Header.Peek(HeaderRequestID))
	require.NotEmpty(t, rid)
	assert.JSONEq(t, `{"request_id":"`+rid+`"}`, string(ctx.Response.Body()))
}

func TestRequestIDMiddleware_KeepsIncomingID(t *testing.T) {
	h := RequestIDMiddleware(func(ctx *RequestCtx) {})
	ctx := newCtx("GET", "/")
	ctx.Request.Header.Set(HeaderRequestID, "req-123")
	h(ctx)
	assert.Equal(t, "req-123", string(ctx.Response.Header.Peek(HeaderRequestID)))
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(ctx *RequestCtx) { panic("bad") })
	ctx := newCtx("GET", "/")
	assert.NotPanics(t, func() { h(ctx) })
	assert.Equal(t, StatusInternalServerError, ctx.Response.StatusCode())
	assert.Equal(t, "Internal Server Error", decodeError(t, ctx).Error)
}

func TestQueryAndReadJSON(t *testing.T) {
	ctx := newCtx("POST", "/rentals?as_of=2026-03-15")
	ctx.Request.SetBodyString(`{"notes":"ok"}`)
	assert.Equal(t, "2026-03-15", Query(ctx, "as_of"))

	var body struct {
		Notes string `json:"notes"`
	}
	require.NoError(t, ReadJSON(ctx, &body))
	assert.Equal(t, "ok", body.Notes)
}

func TestEngine_CloseOnSignal(t *testing.T) {
	e := CreateServer()
	e.GET("/ping", func(ctx *RequestCtx) { WriteJSON(ctx, StatusOK, map[string]string{"status": "ok"}) })
	e.Server.Handler = e.Handler()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- e.Server.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/ping"
	require.Eventually(t, func() bool {
		code, _, err := fasthttp.Get(nil, url)
		return err == nil && code == StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	e.CloseOnSignal()
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server still running after SIGTERM")
	}
}
