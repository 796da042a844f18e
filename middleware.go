// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Middleware decorates an Invoker. Middleware observes calls; errors coming
// back from the wrapped invoker are returned unchanged.
type Middleware func(Invoker) Invoker

// Chain applies mws to inv. The first middleware is the outermost.
func Chain(inv Invoker, mws ...Middleware) Invoker {
	for i := len(mws) - 1; i >= 0; i-- {
		inv = mws[i](inv)
	}
	return inv
}

// aroundFunc runs next, the wrapped call, for method.
type aroundFunc func(ctx context.Context, method string, next func(context.Context) error) error

// intercept wraps next with around. The result implements Notifier only when
// next does, so proxies still reject notify operations on invokers that
// cannot send them.
func intercept(next Invoker, around aroundFunc) Invoker {
	ii := &interceptedInvoker{next: next, around: around}
	if n, ok := next.(Notifier); ok {
		return &interceptedNotifier{interceptedInvoker: ii, notifier: n}
	}
	return ii
}

type interceptedInvoker struct {
	next   Invoker
	around aroundFunc
}

func (i *interceptedInvoker) Call(ctx context.Context, method string, args, reply interface{}) error {
	return i.around(ctx, method, func(ctx context.Context) error {
		return i.next.Call(ctx, method, args, reply)
	})
}

func (i *interceptedInvoker) Close() error {
	return i.next.Close()
}

type interceptedNotifier struct {
	*interceptedInvoker
	notifier Notifier
}

func (i *interceptedNotifier) Notify(ctx context.Context, method string, args interface{}) error {
	return i.around(ctx, method, func(ctx context.Context) error {
		return i.notifier.Notify(ctx, method, args)
	})
}

// Instrument counts calls and records their latency in reg, labelled by
// remote method name.
func Instrument(reg prometheus.Registerer, subsystem string) (Middleware, error) {
	m, err := newCallMetrics(reg, subsystem)
	if err != nil {
		return nil, err
	}
	return func(next Invoker) Invoker {
		return intercept(next, func(ctx context.Context, method string, call func(context.Context) error) error {
			start := time.Now()
			err := call(ctx)
			m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
			status := "ok"
			if err != nil {
				status = "error"
			}
			m.calls.WithLabelValues(method, status).Inc()
			return err
		})
	}, nil
}

const tracerName = "github.com/luxfi/svcrpc"

// Trace starts a client span around every call. A nil provider uses the
// global one.
func Trace(tp trace.TracerProvider) Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)
	return func(next Invoker) Invoker {
		return intercept(next, func(ctx context.Context, method string, call func(context.Context) error) error {
			if ctx == nil {
				return call(ctx)
			}
			ctx, span := tracer.Start(ctx, method,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("rpc.system", "svcrpc"),
					attribute.String("rpc.method", method),
				),
			)
			defer span.End()

			err := call(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		})
	}
}

// RateLimit holds every call until lim admits it. A context that ends while
// waiting fails the call with the limiter's error.
func RateLimit(lim *rate.Limiter) Middleware {
	return func(next Invoker) Invoker {
		return intercept(next, func(ctx context.Context, method string, call func(context.Context) error) error {
			waitCtx := ctx
			if waitCtx == nil {
				waitCtx = context.Background()
			}
			if err := lim.Wait(waitCtx); err != nil {
				return err
			}
			return call(ctx)
		})
	}
}
