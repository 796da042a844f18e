// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"context"
	"reflect"
	"sync"
)

type invocation struct {
	ctx    context.Context
	method string
	args   interface{}
	reply  interface{}
}

// recordingInvoker records calls and answers them with a fixed result or
// error. It does not implement Notifier.
type recordingInvoker struct {
	mu     sync.Mutex
	calls  []invocation
	result interface{}
	err    error
	closed int
}

func (r *recordingInvoker) Call(ctx context.Context, method string, args, reply interface{}) error {
	r.mu.Lock()
	r.calls = append(r.calls, invocation{ctx: ctx, method: method, args: args, reply: reply})
	r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	if reply != nil && r.result != nil {
		reflect.ValueOf(reply).Elem().Set(reflect.ValueOf(r.result))
	}
	return nil
}

func (r *recordingInvoker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *recordingInvoker) Calls() []invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]invocation(nil), r.calls...)
}

// notifyingInvoker adds Notify to recordingInvoker.
type notifyingInvoker struct {
	*recordingInvoker
	notes []invocation
}

func (n *notifyingInvoker) Notify(ctx context.Context, method string, args interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, invocation{ctx: ctx, method: method, args: args})
	return n.err
}
