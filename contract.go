// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"context"
	"io"
	"reflect"
	"strings"
)

// Struct tags read from contract fields.
const (
	tagRemote = "rpc"   // `rpc:"remoteName[,notify]"`
	tagAlias  = "alias" // `alias:"ExposedName"`

	optNotify = "notify"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	closerType  = reflect.TypeFor[io.Closer]()
	errorType   = reflect.TypeFor[error]()
)

// Contract is the resolved description of a service contract type. It is
// built once per type and shared; treat it as read-only.
type Contract struct {
	Type       reflect.Type
	Operations []*Operation
	// Disposable is set when the contract carries an io.Closer field. Proxies
	// wire those fields to the invoker's Close.
	Disposable bool

	closers [][]int
	byName  map[string]*Operation
}

// Operation describes one remotely invocable func field of a contract.
type Operation struct {
	Contract   string       // owning contract type name
	Name       string       // exposed name: alias tag or field name
	Field      string       // Go field name
	RemoteName string       // method name sent to the invoker
	Notify     bool         // one-way call, no reply expected
	Func       reflect.Type // declared signature
	Index      []int        // field path from the contract root
}

// Lookup returns the operation exposed under name.
func (c *Contract) Lookup(name string) (*Operation, bool) {
	op, ok := c.byName[name]
	return op, ok
}

func (c *Contract) String() string { return typeName(c.Type) }

// Resolve returns the contract description for t, scanning it on first use.
//
// A contract is a struct made only of func fields, embedded contract structs
// and io.Closer fields. Func fields tagged `rpc:"name"` become operations;
// untagged ones are ignored. Embedded contracts contribute their operations
// as well, so contracts compose the way interfaces embed.
//
//	type Calculator struct {
//		Sum    func(ctx context.Context, a, b int) (int, error) `rpc:"sum"`
//		Divide func(a, b float64) (float64, error)              `rpc:"div" alias:"Div"`
//		Reset  func() error                                     `rpc:"reset,notify"`
//	}
//
// Results are cached for the life of the process, failures included.
func Resolve(t reflect.Type) (*Contract, error) {
	if t == nil {
		return nil, contractError(nil, ErrNotInterface, "nil type")
	}
	return contracts.getOrCreate(t, func() (*Contract, error) {
		return scanContract(t)
	})
}

// ResolveFor is Resolve for a static contract type.
func ResolveFor[T any]() (*Contract, error) {
	return Resolve(reflect.TypeFor[T]())
}

func scanContract(t reflect.Type) (*Contract, error) {
	contractScans.WithLabelValues(typeName(t)).Inc()

	if t.Kind() != reflect.Struct {
		return nil, contractError(t, ErrNotInterface, "kind %s", t.Kind())
	}

	c := &Contract{
		Type:   t,
		byName: make(map[string]*Operation),
	}
	if err := c.walk(t, nil); err != nil {
		return nil, err
	}
	if len(c.Operations) == 0 {
		return nil, contractError(t, ErrNoOperations, "no func field carries an %q tag", tagRemote)
	}
	c.Disposable = len(c.closers) > 0

	logger().Debug("resolved service contract",
		"contract", c.String(),
		"operations", len(c.Operations),
		"disposable", c.Disposable,
	)
	return c, nil
}

// walk visits fields depth-first in declaration order, descending into
// embedded contracts.
func (c *Contract) walk(t reflect.Type, prefix []int) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		switch {
		case !f.IsExported():
			return contractError(c.Type, ErrNotInterface, "field %s is unexported", f.Name)
		case f.Type == closerType:
			c.closers = append(c.closers, index)
		case f.Anonymous && f.Type.Kind() == reflect.Struct:
			if err := c.walk(f.Type, index); err != nil {
				return err
			}
		case f.Type.Kind() == reflect.Func:
			if err := c.addOperation(f, index); err != nil {
				return err
			}
		default:
			return contractError(c.Type, ErrNotInterface, "field %s has concrete type %s", f.Name, f.Type)
		}
	}
	return nil
}

func (c *Contract) addOperation(f reflect.StructField, index []int) error {
	tag, ok := f.Tag.Lookup(tagRemote)
	if !ok || tag == "-" {
		return nil
	}
	remote, opts, _ := strings.Cut(tag, ",")
	if remote == "" {
		return nil
	}

	op := &Operation{
		Contract:   c.String(),
		Name:       f.Name,
		Field:      f.Name,
		RemoteName: remote,
		Func:       f.Type,
		Index:      index,
	}
	if alias := f.Tag.Get(tagAlias); alias != "" {
		op.Name = alias
	}
	for _, opt := range strings.Split(opts, ",") {
		if strings.TrimSpace(opt) == optNotify {
			op.Notify = true
		}
	}

	if prev, dup := c.byName[op.Name]; dup {
		return contractError(c.Type, ErrDuplicateOperation, "%s is exposed by both %s and %s", op.Name, prev.Field, op.Field)
	}
	c.byName[op.Name] = op
	c.Operations = append(c.Operations, op)
	return nil
}
