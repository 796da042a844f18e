// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type mixedContract struct {
	Method1 func(p1, p2 int64) (float64, error) `rpc:"m1"`
	Method2 func(p1, p2 int64) (int64, error)   `rpc:"m2"`
	Sum     func(p1, p2 int) (int, error)       `rpc:"sum"`
	Local   func() error
	Helper  func(string) (string, error)
	Skipped func() error `rpc:"-"`
}

// BaseService is embedded by the composition tests.
type BaseService struct {
	Ping func(ctx context.Context) error `rpc:"ping"`
}

// ExtendedService embeds BaseService.
type ExtendedService struct {
	BaseService
	Echo func(ctx context.Context, s string) (string, error) `rpc:"echo"`
}

type composedContract struct {
	ExtendedService
	Add func(a, b int) (int, error) `rpc:"add" alias:"Plus"`
	io.Closer
}

type dataFieldContract struct {
	Sum  func(a, b int) (int, error) `rpc:"sum"`
	Name string
}

type unexportedFieldContract struct {
	Sum func(a, b int) (int, error) `rpc:"sum"`
	sub func() error                `rpc:"sub"`
}

type namedStructFieldContract struct {
	Base BaseService
}

type noOperationsContract struct {
	Local  func() error
	Helper func(int) (int, error) `rpc:""`
}

type duplicateContract struct {
	BaseService
	Pong func(ctx context.Context) error `rpc:"pong" alias:"Ping"`
}

type failureCacheContract struct {
	Local func() error
}

type concurrentContract struct {
	Status func(ctx context.Context) (string, error) `rpc:"status"`
	Stop   func() error                              `rpc:"stop"`
}

func scans(t reflect.Type) float64 {
	return testutil.ToFloat64(contractScans.WithLabelValues(typeName(t)))
}

func TestResolveKeepsTaggedOperationsOnly(t *testing.T) {
	c, err := ResolveFor[mixedContract]()
	require.NoError(t, err)

	require.Len(t, c.Operations, 3)
	names := make([]string, 0, len(c.Operations))
	for _, op := range c.Operations {
		names = append(names, op.Name+"->"+op.RemoteName)
	}
	assert.Equal(t, []string{"Method1->m1", "Method2->m2", "Sum->sum"}, names)
	assert.False(t, c.Disposable)

	_, ok := c.Lookup("Local")
	assert.False(t, ok)
}

func TestResolveComposedContract(t *testing.T) {
	c, err := ResolveFor[composedContract]()
	require.NoError(t, err)

	require.Len(t, c.Operations, 3)
	assert.True(t, c.Disposable)

	ping, ok := c.Lookup("Ping")
	require.True(t, ok)
	assert.Equal(t, "ping", ping.RemoteName)
	assert.Equal(t, []int{0, 0, 0}, ping.Index)

	echo, ok := c.Lookup("Echo")
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, echo.Index)

	plus, ok := c.Lookup("Plus")
	require.True(t, ok)
	assert.Equal(t, "Add", plus.Field)
	assert.Equal(t, "add", plus.RemoteName)
	assert.Equal(t, reflect.TypeFor[func(a, b int) (int, error)](), plus.Func)

	_, ok = c.Lookup("Add")
	assert.False(t, ok, "aliased operations are exposed under the alias only")
}

func TestResolveRejectsNonInterfaceShapes(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
	}{
		{"int", reflect.TypeFor[int]()},
		{"pointer", reflect.TypeFor[*mixedContract]()},
		{"go interface", reflect.TypeFor[io.Reader]()},
		{"data field", reflect.TypeFor[dataFieldContract]()},
		{"unexported field", reflect.TypeFor[unexportedFieldContract]()},
		{"named struct field", reflect.TypeFor[namedStructFieldContract]()},
		{"nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Resolve(tt.typ)
			assert.Nil(t, c)
			require.ErrorIs(t, err, ErrNotInterface)

			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
		})
	}
}

func TestResolveNoOperations(t *testing.T) {
	_, err := ResolveFor[noOperationsContract]()
	require.ErrorIs(t, err, ErrNoOperations)
	assert.Contains(t, err.Error(), "noOperationsContract")
}

func TestResolveDuplicateOperation(t *testing.T) {
	_, err := ResolveFor[duplicateContract]()
	require.ErrorIs(t, err, ErrDuplicateOperation)
}

func TestResolveCachesFailures(t *testing.T) {
	typ := reflect.TypeFor[failureCacheContract]()

	_, first := Resolve(typ)
	require.ErrorIs(t, first, ErrNoOperations)
	_, second := Resolve(typ)

	assert.Same(t, first.(*ConfigError), second.(*ConfigError))
	assert.Equal(t, float64(1), scans(typ))
}

func TestResolveConcurrentFirstUse(t *testing.T) {
	typ := reflect.TypeFor[concurrentContract]()
	const callers = 50

	results := make([]*Contract, callers)
	start := make(chan struct{})
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			<-start
			c, err := Resolve(typ)
			results[i] = c
			return err
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	for _, c := range results {
		assert.Same(t, results[0], c)
	}
	assert.Equal(t, float64(1), scans(typ))
}

func TestResolveLogsScan(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })

	type loggedContract struct {
		Hello func() error `rpc:"hello"`
	}
	_, err := ResolveFor[loggedContract]()
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"msg":"resolved service contract"`)
	assert.Contains(t, buf.String(), `"operations":1`)
}
