// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Dial connects to an RPC server. ZAP is used unless WithTransport selects
// another registered transport.
func Dial(ctx context.Context, addr string, opts ...DialOption) (Client, error) {
	o := newDialOptions(opts)
	t, ok := lookupTransport(o.transport)
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", o.transport)
	}
	c, err := t.dial(ctx, addr, o)
	if err != nil {
		return nil, err
	}
	if len(o.middlewares) > 0 {
		c = decorate(c, o.middlewares)
	}
	logger().Debug("dialed rpc client", "transport", o.transport, "addr", addr)
	return c, nil
}

// Listen binds addr for the selected transport. Only transports with a
// server side can listen; ZAP is the default.
func Listen(addr string, opts ...ServerOption) (Server, error) {
	o := newServerOptions(opts)
	t, ok := lookupTransport(o.transport)
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", o.transport)
	}
	if t.listen == nil {
		return nil, fmt.Errorf("transport %s has no server side", o.transport)
	}
	return t.listen(addr, o)
}

// decoratedClient routes Call and Notify through middleware and leaves
// CallRaw untouched.
type decoratedClient struct {
	Invoker
	notifier Notifier
	raw      Client
}

func decorate(c Client, mws []Middleware) Client {
	chained := Chain(c, mws...)
	n, ok := chained.(Notifier)
	if !ok {
		n = c
	}
	return &decoratedClient{Invoker: chained, notifier: n, raw: c}
}

func (c *decoratedClient) Notify(ctx context.Context, method string, args interface{}) error {
	return c.notifier.Notify(ctx, method, args)
}

func (c *decoratedClient) CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error) {
	return c.raw.CallRaw(ctx, method, payload)
}

func dialZAP(ctx context.Context, addr string, o *dialOptions) (Client, error) {
	conn, err := ZAPDial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &zapClient{
		conn:  conn,
		codec: o.codec,
	}, nil
}

func listenZAP(addr string, o *serverOptions) (Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &zapServer{
		listener: listener,
		handlers: make(map[string]RawHandler),
		codec:    o.codec,
	}, nil
}

// zapClient encodes args and replies with its codec over one ZAPConn.
type zapClient struct {
	conn  *ZAPConn
	codec Codec
}

func (c *zapClient) encode(args interface{}) ([]byte, error) {
	if args == nil {
		return nil, nil
	}
	payload, err := c.codec.Encode(args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	return payload, nil
}

func (c *zapClient) Call(ctx context.Context, method string, args, reply interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := c.encode(args)
	if err != nil {
		return err
	}

	resp, err := c.conn.Call(ctx, method, payload)
	if err != nil {
		return err
	}

	if reply != nil && len(resp) > 0 {
		if err := c.codec.Decode(resp, reply); err != nil {
			return fmt.Errorf("decode reply: %w", err)
		}
	}
	return nil
}

func (c *zapClient) CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.conn.Call(ctx, method, payload)
}

func (c *zapClient) Notify(ctx context.Context, method string, args interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := c.encode(args)
	if err != nil {
		return err
	}
	return c.conn.Notify(ctx, method, payload)
}

func (c *zapClient) Close() error {
	return c.conn.Close()
}

// zapServer routes ZAP requests to handlers by method name.
type zapServer struct {
	listener net.Listener
	codec    Codec

	mu       sync.RWMutex
	handlers map[string]RawHandler
	server   *ZAPServer
	closed   bool
}

func (s *zapServer) Register(name string, handler interface{}) error {
	handlers, err := serviceHandlers(name, handler, s.codec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for method, h := range handlers {
		s.handlers[method] = h
	}
	return nil
}

func (s *zapServer) RegisterRaw(method string, handler RawHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	return nil
}

func (s *zapServer) dispatch(ctx context.Context, method string, payload []byte) ([]byte, error) {
	s.mu.RLock()
	handler, ok := s.handlers[method]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown method: %s", method)
	}
	return handler(ctx, payload)
}

func (s *zapServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return net.ErrClosed
	}
	s.server = NewZAPServer(s.listener, ZAPHandlerFunc(s.dispatch))
	srv := s.server
	s.mu.Unlock()
	return srv.Serve(ctx)
}

func (s *zapServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Close()
	}
	return s.listener.Close()
}

func (s *zapServer) Addr() string {
	return s.listener.Addr().String()
}
