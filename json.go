// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	rpc "github.com/gorilla/rpc/v2/json2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	defaultRetries = 3
	retryBaseWait  = 500 * time.Millisecond

	// RequestIDHeader carries a per-attempt correlation id.
	RequestIDHeader = "X-Request-ID"
)

func init() {
	registerTransport(TransportJSON, dialJSON, nil)
}

// newHTTPClient opens a fresh connection per request. Pooled connections
// closed by the server between calls surface as EOF on the next request.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// CleanlyCloseBody drains body before closing it. Closing an HTTP/2 body
// with unread data can trigger GOAWAY (golang/go#46071).
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// isRetryableError reports connection-level failures worth another attempt.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe")
}

// jsonClient implements Client with JSON-RPC 2.0 over HTTP POST.
type jsonClient struct {
	uri     *url.URL
	http    *http.Client
	retries int
	header  http.Header
}

func dialJSON(_ context.Context, addr string, o *dialOptions) (Client, error) {
	uri, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("json dial: %w", err)
	}
	if uri.Scheme != "http" && uri.Scheme != "https" {
		return nil, fmt.Errorf("json dial: unsupported scheme %q", uri.Scheme)
	}
	retries := o.retries
	if retries < 1 {
		retries = 1
	}
	return &jsonClient{
		uri:     uri,
		http:    newHTTPClient(o.timeout),
		retries: retries,
		header:  o.header.Clone(),
	}, nil
}

// SendJSONRequest posts one JSON-RPC 2.0 call to uri and decodes its result
// into reply. A nil reply discards the result.
func SendJSONRequest(
	ctx context.Context,
	uri *url.URL,
	method string,
	params interface{},
	reply interface{},
	options ...Option,
) error {
	c := &jsonClient{
		uri:     uri,
		http:    newHTTPClient(30 * time.Second),
		retries: defaultRetries,
		header:  make(http.Header),
	}
	return c.send(ctx, method, params, reply, options...)
}

func (c *jsonClient) Call(ctx context.Context, method string, args, reply interface{}) error {
	return c.send(ctx, method, args, reply)
}

func (c *jsonClient) Notify(ctx context.Context, method string, args interface{}) error {
	body, err := json.Marshal(struct {
		Version string      `json:"jsonrpc"`
		Method  string      `json:"method"`
		Params  interface{} `json:"params,omitempty"`
	}{"2.0", method, args})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	resp, err := c.post(ctx, method, body, NewOptions(nil))
	if err != nil {
		return err
	}
	return CleanlyCloseBody(resp.Body)
}

func (c *jsonClient) CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error) {
	resp, err := c.post(ctx, method, payload, NewOptions(nil))
	if err != nil {
		return nil, err
	}
	defer CleanlyCloseBody(resp.Body)
	return io.ReadAll(resp.Body)
}

func (c *jsonClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *jsonClient) send(ctx context.Context, method string, params, reply interface{}, options ...Option) error {
	requestBodyBytes, err := rpc.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}

	resp, err := c.post(ctx, method, requestBodyBytes, NewOptions(options))
	if err != nil {
		return err
	}
	defer CleanlyCloseBody(resp.Body)

	if reply == nil {
		var discard json.RawMessage
		err = rpc.DecodeClientResponse(resp.Body, &discard)
		if errors.Is(err, rpc.ErrNullResult) {
			err = nil
		}
	} else {
		err = rpc.DecodeClientResponse(resp.Body, reply)
	}
	if err != nil {
		var rpcErr *rpc.Error
		if errors.As(err, &rpcErr) {
			return rpcErr
		}
		return fmt.Errorf("failed to decode client response: %w", err)
	}
	return nil
}

// post sends body, retrying transient connection failures with exponential
// backoff. A non-2xx response that carries a JSON-RPC error object yields
// that error; other non-2xx responses yield a status error.
func (c *jsonClient) post(ctx context.Context, method string, body []byte, ops *Options) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	uri := *c.uri
	if len(ops.queryParams) > 0 {
		uri.RawQuery = ops.queryParams.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			waitTime := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(waitTime):
			}
		}

		// The body reader is consumed by each attempt.
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, uri.String(), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		request.Header = c.header.Clone()
		for k, vs := range ops.headers {
			for _, v := range vs {
				request.Header.Add(k, v)
			}
		}
		request.Header.Set("Content-Type", "application/json")
		requestID := uuid.NewString()
		request.Header.Set(RequestIDHeader, requestID)
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(request.Header))

		resp, err := c.http.Do(request)
		if err != nil {
			lastErr = err
			retryable := isRetryableError(err)
			logger().Warn("json-rpc request failed",
				"method", method,
				"attempt", attempt+1,
				"request_id", requestID,
				"retryable", retryable,
				"err", err,
			)
			if retryable {
				continue
			}
			return nil, fmt.Errorf("failed to issue request: %w", err)
		}
		if attempt > 0 {
			logger().Info("json-rpc request succeeded after retry", "method", method, "attempt", attempt+1)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			defer CleanlyCloseBody(resp.Body)
			payload, _ := io.ReadAll(resp.Body)
			var discard json.RawMessage
			var rpcErr *rpc.Error
			if errors.As(rpc.DecodeClientResponse(bytes.NewReader(payload), &discard), &rpcErr) {
				return nil, rpcErr
			}
			return nil, fmt.Errorf("received status code: %d", resp.StatusCode)
		}
		return resp, nil
	}

	return nil, fmt.Errorf("failed to issue request after %d retries: %w", c.retries, lastErr)
}
