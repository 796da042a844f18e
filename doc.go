// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package svcrpc turns declared service contracts into live RPC clients.
//
// # Contracts
//
// A service contract is a struct of func fields. Each field tagged with a
// remote method name is an operation:
//
//	type SampleService struct {
//		Method1 func(p1, p2 int64) (float64, error)               `rpc:"m1"`
//		Sum     func(ctx context.Context, p1, p2 int) (int, error) `rpc:"sum"`
//		Method3 func(ctx context.Context) (bool, error)            `rpc:"m3"`
//		Method4 func() error                                       `rpc:"m4"`
//		Ping    func() error                                       `rpc:"ping,notify"`
//	}
//
// Operations return error or (T, error). A context.Context in the first or
// last parameter position is passed to the invoker as is; operations without
// one use context.Background. At most MaxArity other parameters are allowed.
// The `alias` tag renames an operation in the proxy's dispatch table.
//
// Contracts compose by embedding. Embedding io.Closer makes a contract
// disposable: closing it closes the underlying client.
//
//	type SampleClient struct {
//		SampleService
//		io.Closer
//	}
//
// # Usage
//
//	client, err := svcrpc.Dial(ctx, "localhost:9000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	svc, err := svcrpc.NewService[SampleClient](client)
//	if err != nil {
//	    log.Fatal(err) // declaration mistakes surface here
//	}
//	defer svc.Close()
//
//	sum, err := svc.Sum(ctx, 3, 4)
//
// Contracts and per-signature invocation strategies are resolved once per
// process and cached, including failures. Errors returned by the client are
// passed back to the caller unchanged.
//
// # Transports
//
// ZAP is the default transport. JSON-RPC 2.0 over HTTP is always available
// as TransportJSON; gRPC needs a build tag:
//
//	go build              # ZAP and JSON-RPC
//	go build -tags grpc   # also gRPC
//
// ZAP servers created by Listen serve the exported methods of a handler
// through Register, with the same signature rules as contracts.
//
// # Architecture
//
//   - contract.go: contract resolution (Resolve)
//   - strategy.go: per-signature call dispatch (BuildStrategy)
//   - proxy.go: proxies and NewService
//   - cache.go: process-wide get-or-create caches
//   - client.go, dial.go, transport.go: Client/Server interfaces, Dial and Listen
//   - zap.go, json.go, dial_grpc.go: transports
//   - register.go: reflective Server.Register
//   - codec.go, options.go: payload codecs and per-request HTTP options
//   - middleware.go: Instrument, Trace and RateLimit invoker middleware
//   - config.go: YAML client configuration
//   - log.go, metrics.go: package logger and prometheus collectors
package svcrpc
