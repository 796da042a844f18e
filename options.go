// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"net/http"
	"net/url"
)

// Option adjusts a single JSON-RPC HTTP request.
type Option func(*Options)

// Options are the per-request settings of SendJSONRequest.
type Options struct {
	headers     http.Header
	queryParams url.Values
}

// NewOptions applies options over empty header and query sets.
func NewOptions(options []Option) *Options {
	o := &Options{
		headers:     make(http.Header),
		queryParams: make(url.Values),
	}
	for _, op := range options {
		op(o)
	}
	return o
}

// Headers returns the headers to send.
func (o *Options) Headers() http.Header { return o.headers }

// QueryParams returns the query parameters to send.
func (o *Options) QueryParams() url.Values { return o.queryParams }

// WithRequestHeader adds a header to the request.
func WithRequestHeader(key, value string) Option {
	return func(o *Options) { o.headers.Add(key, value) }
}

// WithQueryParam adds a query parameter to the request URI.
func WithQueryParam(key, value string) Option {
	return func(o *Options) { o.queryParams.Add(key, value) }
}
