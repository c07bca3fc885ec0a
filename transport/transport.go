// transport/transport.go

// Package transport defines the single HTTP exchange primitive the coordinator wraps, and a default
// implementation on top of net/http. A Transport keeps no credential state: it sends exactly what
// it is given and reports non-2xx responses and network failures as *response.APIError.
package transport

import (
	"context"
	"net/http"
	"net/url"
)

// Options describe one call. The coordinator passes them through untouched apart from the
// Authorization header.
type Options struct {
	Method string
	Header http.Header
	Query  url.Values
	Body   any
}

// Clone returns a copy whose Header and Query can be modified without affecting o.
func (o Options) Clone() Options {
	clone := o
	if o.Header != nil {
		clone.Header = o.Header.Clone()
	}
	if o.Query != nil {
		clone.Query = make(url.Values, len(o.Query))
		for k, v := range o.Query {
			clone.Query[k] = append([]string(nil), v...)
		}
	}
	return clone
}

// Response is a successful (2xx) exchange with the body decoded by content type.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       any
}

// Transport performs one HTTP exchange.
type Transport interface {
	Send(ctx context.Context, url string, opts Options) (*Response, error)
}

// Func adapts an ordinary function to the Transport interface.
type Func func(ctx context.Context, url string, opts Options) (*Response, error)

// Send calls f(ctx, url, opts).
func (f Func) Send(ctx context.Context, url string, opts Options) (*Response, error) {
	return f(ctx, url, opts)
}
