package xhttp

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

const (
	StatusOK                  = fasthttp.StatusOK
	StatusCreated             = fasthttp.StatusCreated
	StatusBadRequest          = fasthttp.StatusBadRequest
	StatusNotFound            = fasthttp.StatusNotFound
	StatusMethodNotAllowed    = fasthttp.StatusMethodNotAllowed
	StatusRequestTimeout      = fasthttp.StatusRequestTimeout
	StatusConflict            = fasthttp.StatusConflict
	StatusInternalServerError = fasthttp.StatusInternalServerError
	StatusServiceUnavailable  = fasthttp.StatusServiceUnavailable
)

// StatusText returns the reason phrase of an HTTP status code.
func StatusText(code int) string {
	return fasthttp.StatusMessage(code)
}

type ErrorBody struct {
	Error string `json:"error"`
}

func ReadJSON(ctx *RequestCtx, dst any) error {
	return json.Unmarshal(ctx.PostBody(), dst)
}

func WriteJSON(ctx *RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		WriteError(ctx, StatusInternalServerError, "failed to encode response")
		return
	}
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func WriteError(ctx *RequestCtx, status int, msg string) {
	b, _ := json.Marshal(ErrorBody{Error: msg})
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

// Param returns a router path parameter as a string.
func Param(ctx *RequestCtx, name string) string {
	switch v := ctx.UserValue(name).(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func Query(ctx *RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}
