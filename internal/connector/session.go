package connector

import (
	"context"
	"net/http"
)

type Request struct {
	Method string
	// Path is relative to the institution's base url.
	Path string
	// Form is sent url-encoded as the request body when non-nil.
	Form map[string]string
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

func (r Response) Location() string {
	return r.Header.Get("Location")
}

// Session is the authenticated context produced by a login, all requests made
// through it share the same cookies. A Session belongs to exactly one run.
type Session interface {
	Do(ctx context.Context, req Request) (Response, error)
}
