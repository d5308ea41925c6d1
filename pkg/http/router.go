package xhttp

import (
	"github.com/fasthttp/router"
)

type Router = router.Router
type Group = router.Group

func NewRouter() *Router {
	return router.New()
}

// CreateDefaultRouter returns a router that answers unknown routes and methods
// with a JSON ErrorBody and turns handler panics into a 500.
func CreateDefaultRouter() *Router {
	r := NewRouter()
	r.RedirectFixedPath = true
	r.RedirectTrailingSlash = true
	r.SaveMatchedRoutePath = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = MethodNotAllowedHandler
	r.PanicHandler = func(ctx *RequestCtx, v any) {
		WriteError(ctx, StatusInternalServerError, StatusText(StatusInternalServerError))
	}
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	return r
}

func NotFoundHandler(ctx *RequestCtx) {
	WriteError(ctx, StatusNotFound, StatusText(StatusNotFound))
}

func MethodNotAllowedHandler(ctx *RequestCtx) {
	WriteError(ctx, StatusMethodNotAllowed, StatusText(StatusMethodNotAllowed))
}
