// Package httpkit provides tiny HTTP helpers and adapters over the platform seam
package httpkit

import (
	"net/http"

	phttp "github.com/AKSizov/bluebubbles-server/internal/platform/net/http"
)

// Router aliases the platform router seam so modules import one package
type Router = phttp.Router

// Handler aliases the platform handler type
type Handler = phttp.Handler

// Response aliases the functional response object
type Response = phttp.Response

// OK re-exports the 200 response helper
func OK(data any) Response { return phttp.OK(data) }

// Error re-exports the error response helper
func Error(err error) Response { return phttp.Error(err) }

// Call adapts a body-less handler via the envelope adapter
func Call(h func(*http.Request) (any, error)) Handler {
	return phttp.JSONHandlerNoBody(h)
}

// Get registers a no-body handler and uses the envelope adapter
func Get(r Router, path string, h func(*http.Request) (any, error)) {
	r.Get(path, Call(h))
}

// Post registers a no-body handler and uses the envelope adapter
func Post(r Router, path string, h func(*http.Request) (any, error)) {
	r.Post(path, Call(h))
}

// PostJSON mounts a pure JSON handler under POST
func PostJSON[T any](r Router, path string, h func(*http.Request, T) (any, error)) {
	r.Post(path, phttp.JSONHandler(h))
}

// GetJSON mounts a pure JSON handler under GET
func GetJSON[T any](r Router, path string, h func(*http.Request, T) (any, error)) {
	r.Get(path, phttp.JSONHandler(h))
}
