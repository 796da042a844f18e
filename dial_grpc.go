//go:build grpc

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func init() {
	// Register gRPC transport when build tag is enabled
	registerTransport(TransportGRPC, dialGRPC, nil)
}

// grpcCodec lets a Codec marshal gRPC messages, so positional argument
// lists travel without generated protobuf types. Method names passed to Call
// must be full gRPC paths such as "/pkg.Service/Method".
type grpcCodec struct {
	codec Codec
}

func (c grpcCodec) Marshal(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return c.codec.Encode(v)
}

func (c grpcCodec) Unmarshal(data []byte, v interface{}) error {
	if _, discard := v.(*discardReply); discard || len(data) == 0 {
		return nil
	}
	return c.codec.Decode(data, v)
}

func (c grpcCodec) Name() string { return c.codec.Name() }

func dialGRPC(_ context.Context, addr string, o *dialOptions) (Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(grpcCodec{codec: o.codec})),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &grpcClient{conn: conn}, nil
}

type grpcClient struct {
	conn *grpc.ClientConn
}

// discardReply absorbs replies the caller did not ask for.
type discardReply struct{}

func (c *grpcClient) Call(ctx context.Context, method string, args, reply interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if reply == nil {
		reply = &discardReply{}
	}
	return c.conn.Invoke(ctx, method, args, reply)
}

func (c *grpcClient) CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var resp []byte
	err := c.conn.Invoke(ctx, method, payload, &resp, grpc.ForceCodec(grpcCodec{codec: Binary}))
	return resp, err
}

// Notify is a unary call whose reply is dropped; gRPC has no one-way calls.
func (c *grpcClient) Notify(ctx context.Context, method string, args interface{}) error {
	return c.Call(ctx, method, args, nil)
}

func (c *grpcClient) Close() error {
	return c.conn.Close()
}
