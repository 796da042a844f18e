// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func opFor(fn interface{}, notify bool) *Operation {
	return &Operation{
		Contract:   "test",
		Name:       "Op",
		Field:      "Op",
		RemoteName: "op",
		Notify:     notify,
		Func:       reflect.TypeOf(fn),
	}
}

func TestBuildStrategyShapes(t *testing.T) {
	tests := []struct {
		name   string
		fn     interface{}
		arity  int
		cancel bool
		result reflect.Type
	}{
		{"void no args", func() error { return nil }, 0, false, nil},
		{"value two args", func(int, int) (int, error) { return 0, nil }, 2, false, reflect.TypeFor[int]()},
		{"leading context", func(context.Context, string) (bool, error) { return false, nil }, 1, true, reflect.TypeFor[bool]()},
		{"trailing context", func(string, int, context.Context) error { return nil }, 2, true, nil},
		{"context only", func(context.Context) (bool, error) { return false, nil }, 0, true, reflect.TypeFor[bool]()},
		{"eight args", func(a, b, c, d, e, f, g, h int) error { return nil }, 8, false, nil},
		{"eight args and context", func(ctx context.Context, a, b, c, d, e, f, g, h int) error { return nil }, 8, true, nil},
		{"interface result", func() (interface{}, error) { return nil, nil }, 0, false, reflect.TypeFor[interface{}]()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := BuildStrategy(opFor(tt.fn, false))
			require.NoError(t, err)
			assert.Equal(t, tt.arity, s.Arity())
			assert.Equal(t, tt.cancel, s.HasCancellation())
			assert.Equal(t, tt.result, s.Result())
		})
	}
}

func TestBuildStrategyRejects(t *testing.T) {
	tests := []struct {
		name   string
		fn     interface{}
		notify bool
		want   error
	}{
		{"nine args", func(a, b, c, d, e, f, g, h, i int) error { return nil }, false, ErrUnsupportedArity},
		{"nine args and context", func(ctx context.Context, a, b, c, d, e, f, g, h, i int) error { return nil }, false, ErrUnsupportedArity},
		{"variadic", func(...int) error { return nil }, false, ErrUnsupportedArity},
		{"no results", func() {}, false, ErrUnsupportedReturn},
		{"value without error", func() int { return 0 }, false, ErrUnsupportedReturn},
		{"error first", func() (error, int) { return nil, 0 }, false, ErrUnsupportedReturn},
		{"three results", func() (int, int, error) { return 0, 0, nil }, false, ErrUnsupportedReturn},
		{"notify with value", func() (int, error) { return 0, nil }, true, ErrUnsupportedReturn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := BuildStrategy(opFor(tt.fn, tt.notify))
			assert.Nil(t, s)
			require.ErrorIs(t, err, tt.want)

			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, "test", cerr.Contract)
			assert.Equal(t, "Op", cerr.Operation)
		})
	}
}

func TestBuildStrategyFailureAttributedPerOperation(t *testing.T) {
	type wide func(a, b, c, d, e, f, g, h, i string) error

	first := opFor(wide(nil), false)
	second := opFor(wide(nil), false)
	second.Contract, second.Name = "other", "Wide"

	_, err1 := BuildStrategy(first)
	_, err2 := BuildStrategy(second)
	require.ErrorIs(t, err1, ErrUnsupportedArity)
	require.ErrorIs(t, err2, ErrUnsupportedArity)
	assert.Contains(t, err1.Error(), "test.Op")
	assert.Contains(t, err2.Error(), "other.Wide")
}

type sharedSigA struct {
	Mul func(a, b uint16) (uint16, error) `rpc:"mul"`
}

type sharedSigB struct {
	Times func(x, y uint16) (uint16, error) `rpc:"times"`
}

func TestStrategySharedAcrossContracts(t *testing.T) {
	a, err := ResolveFor[sharedSigA]()
	require.NoError(t, err)
	b, err := ResolveFor[sharedSigB]()
	require.NoError(t, err)

	sa, err := BuildStrategy(a.Operations[0])
	require.NoError(t, err)
	sb, err := BuildStrategy(b.Operations[0])
	require.NoError(t, err)
	assert.Same(t, sa, sb)

	notify := *a.Operations[0]
	notify.Func = reflect.TypeFor[func(a, b uint16) error]()
	notify.Notify = true
	sn, err := BuildStrategy(&notify)
	require.NoError(t, err)
	sv, err := BuildStrategy(&Operation{Func: notify.Func})
	require.NoError(t, err)
	assert.NotSame(t, sn, sv, "notify and call strategies differ for the same signature")
}

func TestStrategyInvoke(t *testing.T) {
	s, err := BuildStrategy(opFor(func(string, int) (string, error) { return "", nil }, false))
	require.NoError(t, err)

	inv := &recordingInvoker{result: "done"}
	out := s.Invoke(inv, "remote.op", []reflect.Value{reflect.ValueOf("a"), reflect.ValueOf(1)})
	require.Len(t, out, 2)
	assert.Equal(t, "done", out[0].Interface())
	assert.True(t, out[1].IsNil())

	calls := inv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "remote.op", calls[0].method)
	assert.Equal(t, []interface{}{"a", 1}, calls[0].args)
	assert.Equal(t, context.Background(), calls[0].ctx)
	assert.IsType(t, new(string), calls[0].reply)
}

func TestStrategyInvokeReturnsZeroOnError(t *testing.T) {
	s, err := BuildStrategy(opFor(func(int) (int, error) { return 0, nil }, false))
	require.NoError(t, err)

	boom := errors.New("boom")
	inv := &recordingInvoker{result: 5, err: boom}
	out := s.Invoke(inv, "op", []reflect.Value{reflect.ValueOf(1)})
	assert.Equal(t, 0, out[0].Interface())
	assert.Same(t, boom, out[1].Interface())
}

func TestStrategyBindsAnyInvoker(t *testing.T) {
	s, err := BuildStrategy(opFor(func(int) error { return nil }, false))
	require.NoError(t, err)

	first, second := &recordingInvoker{}, &recordingInvoker{}
	f1 := s.Bind(first, "a").Interface().(func(int) error)
	f2 := s.Bind(second, "b").Interface().(func(int) error)
	require.NoError(t, f1(1))
	require.NoError(t, f2(2))

	require.Len(t, first.Calls(), 1)
	require.Len(t, second.Calls(), 1)
	assert.Equal(t, "a", first.Calls()[0].method)
	assert.Equal(t, "b", second.Calls()[0].method)
	assert.Nil(t, first.Calls()[0].reply)
}

func TestBuildStrategyConcurrentFirstUse(t *testing.T) {
	type signature func(a int32, b string, ctx context.Context) (uint64, error)
	fn := reflect.TypeFor[signature]()
	const callers = 50

	results := make([]*Strategy, callers)
	start := make(chan struct{})
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			<-start
			s, err := BuildStrategy(&Operation{Contract: "test", Name: "Op", Func: fn})
			results[i] = s
			return err
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	for _, s := range results {
		assert.Same(t, results[0], s)
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(strategyBuilds.WithLabelValues(fn.String())))
}

func TestNotifyStrategyWithoutNotifier(t *testing.T) {
	s, err := BuildStrategy(opFor(func(string) error { return nil }, true))
	require.NoError(t, err)

	inv := &recordingInvoker{}
	send := s.Bind(inv, "log").Interface().(func(string) error)
	require.ErrorIs(t, send("x"), ErrNotifyUnsupported)
	assert.Empty(t, inv.Calls())

	notifying := &notifyingInvoker{recordingInvoker: &recordingInvoker{}}
	out := s.Invoke(notifying, "log", []reflect.Value{reflect.ValueOf("y")})
	assert.True(t, out[0].IsNil())
	require.Len(t, notifying.notes, 1)
}
