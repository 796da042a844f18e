// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"context"
	"net/http"
	"time"
)

// Invoker is the generic remote-invocation engine behind a service proxy.
// Call sends method with args, a positional []interface{} or nil, and decodes
// the result into reply when reply is non-nil. Implementations must allow
// concurrent calls.
type Invoker interface {
	Call(ctx context.Context, method string, args, reply interface{}) error
	Close() error
}

// Notifier is implemented by invokers that can send one-way messages.
// Operations tagged `rpc:"name,notify"` require it.
type Notifier interface {
	Notify(ctx context.Context, method string, args interface{}) error
}

// Client is the protocol-agnostic RPC client returned by Dial. Every Client
// is an Invoker and a Notifier, so it can back a service proxy directly.
type Client interface {
	Invoker
	Notifier

	// CallRaw sends payload as is and returns the raw reply.
	CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error)
}

// Server is the protocol-agnostic RPC server interface.
type Server interface {
	// Register serves the exported methods of handler as name.Method.
	Register(name string, handler interface{}) error

	// RegisterRaw serves method with a handler working on raw payloads.
	RegisterRaw(method string, handler RawHandler) error

	// Serve blocks until ctx ends or the server is closed.
	Serve(ctx context.Context) error

	Close() error

	Addr() string
}

// RawHandler answers a call from its undecoded payload.
type RawHandler func(ctx context.Context, payload []byte) ([]byte, error)

// DialOption configures Dial.
type DialOption func(*dialOptions)

type dialOptions struct {
	codec       Codec
	transport   string
	timeout     time.Duration
	retries     int
	header      http.Header
	middlewares []Middleware
}

func newDialOptions(opts []DialOption) *dialOptions {
	o := &dialOptions{
		transport: DefaultTransport,
		codec:     defaultCodec,
		timeout:   30 * time.Second,
		retries:   defaultRetries,
		header:    make(http.Header),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithCodec sets a custom codec
func WithCodec(c Codec) DialOption {
	return func(o *dialOptions) { o.codec = c }
}

// WithTransport explicitly sets the transport type
func WithTransport(t string) DialOption {
	return func(o *dialOptions) { o.transport = t }
}

// WithTimeout bounds each HTTP request made by the JSON transport.
func WithTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) { o.timeout = d }
}

// WithRetries sets how many attempts the JSON transport makes on transient
// connection errors.
func WithRetries(n int) DialOption {
	return func(o *dialOptions) { o.retries = n }
}

// WithHeader adds a header to every request of the JSON transport.
func WithHeader(key, value string) DialOption {
	return func(o *dialOptions) { o.header.Add(key, value) }
}

// WithMiddleware decorates the dialed client's Call and Notify.
func WithMiddleware(mws ...Middleware) DialOption {
	return func(o *dialOptions) { o.middlewares = append(o.middlewares, mws...) }
}

// ServerOption configures Listen.
type ServerOption func(*serverOptions)

type serverOptions struct {
	codec     Codec
	transport string
}

func newServerOptions(opts []ServerOption) *serverOptions {
	o := &serverOptions{
		transport: DefaultTransport,
		codec:     defaultCodec,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithServerCodec sets a custom codec for the server
func WithServerCodec(c Codec) ServerOption {
	return func(o *serverOptions) { o.codec = c }
}

// WithServerTransport explicitly sets the transport type for the server
func WithServerTransport(t string) ServerOption {
	return func(o *serverOptions) { o.transport = t }
}
