// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// Dynamic dispatch errors returned by Proxy.Call.
var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrBadArguments     = errors.New("bad arguments")
)

// Proxy pairs one Invoker with one resolved contract. Its dispatch table and
// contract value are fixed at construction.
type Proxy struct {
	contract *Contract
	invoker  Invoker
	methods  map[string]*Method
	value    reflect.Value // *T, func fields bound to invoker
}

// Method is an operation bound to a proxy's invoker.
type Method struct {
	Operation *Operation
	Strategy  *Strategy
	fn        reflect.Value
}

// Func returns the bound func value. Its type is the operation's declared
// signature.
func (m *Method) Func() reflect.Value { return m.fn }

// NewService resolves T as a service contract and returns a *T whose
// operations call inv.
//
//	calc, err := svcrpc.NewService[Calculator](client)
//	if err != nil {
//	    return err
//	}
//	sum, err := calc.Sum(ctx, 3, 4)
func NewService[T any](inv Invoker) (*T, error) {
	c, err := ResolveFor[T]()
	if err != nil {
		return nil, err
	}
	p, err := NewProxy(c, inv)
	if err != nil {
		return nil, err
	}
	return p.Value().(*T), nil
}

// NewProxy binds every operation of c to inv. Strategies are built, or taken
// from the process-wide cache, on the way.
func NewProxy(c *Contract, inv Invoker) (*Proxy, error) {
	if c == nil {
		return nil, errors.New("svcrpc: nil contract")
	}
	if inv == nil {
		return nil, fmt.Errorf("svcrpc: nil invoker for %s", c)
	}

	p := &Proxy{
		contract: c,
		invoker:  inv,
		methods:  make(map[string]*Method, len(c.Operations)),
		value:    reflect.New(c.Type),
	}
	root := p.value.Elem()

	for _, op := range c.Operations {
		s, err := BuildStrategy(op)
		if err != nil {
			return nil, err
		}
		if op.Notify {
			if _, ok := inv.(Notifier); !ok {
				return nil, operationError(op, ErrNotifyUnsupported, "%T", inv)
			}
		}
		fn := s.Bind(inv, op.RemoteName)
		root.FieldByIndex(op.Index).Set(fn)
		p.methods[op.Name] = &Method{Operation: op, Strategy: s, fn: fn}
	}

	if c.Disposable {
		closer := reflect.ValueOf(closerFunc(inv.Close))
		for _, index := range c.closers {
			root.FieldByIndex(index).Set(closer)
		}
	}

	logger().Debug("built service proxy",
		"contract", c.String(),
		"invoker", fmt.Sprintf("%T", inv),
		"operations", len(p.methods),
	)
	return p, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Contract returns the contract the proxy implements.
func (p *Proxy) Contract() *Contract { return p.contract }

// Value returns the populated contract value, a *T for contract type T.
func (p *Proxy) Value() interface{} { return p.value.Interface() }

// Lookup returns the method exposed under name.
func (p *Proxy) Lookup(name string) (*Method, bool) {
	m, ok := p.methods[name]
	return m, ok
}

// Methods lists the exposed operation names in sorted order.
func (p *Proxy) Methods() []string {
	names := make([]string, 0, len(p.methods))
	for name := range p.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases the invoker when the contract is disposable. For other
// contracts it does nothing; the caller keeps ownership of the invoker.
func (p *Proxy) Close() error {
	if !p.contract.Disposable {
		return nil
	}
	return p.invoker.Close()
}

// Call invokes the operation exposed under name. args follow the declared
// signature, context included when the operation takes one. The reply is nil
// for operations without a value result. Errors from the invoker are
// returned unchanged.
func (p *Proxy) Call(name string, args ...interface{}) (interface{}, error) {
	m, ok := p.methods[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", p.contract, name, ErrUnknownOperation)
	}

	fnType := m.fn.Type()
	if len(args) != fnType.NumIn() {
		return nil, fmt.Errorf("%s.%s: %w: want %d, have %d", p.contract, name, ErrBadArguments, fnType.NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		want := fnType.In(i)
		if arg == nil {
			if !nilable(want) {
				return nil, fmt.Errorf("%s.%s: %w: argument %d is nil, want %s", p.contract, name, ErrBadArguments, i, want)
			}
			in[i] = reflect.Zero(want)
			continue
		}
		v := reflect.ValueOf(arg)
		if !v.Type().AssignableTo(want) {
			return nil, fmt.Errorf("%s.%s: %w: argument %d is %s, want %s", p.contract, name, ErrBadArguments, i, v.Type(), want)
		}
		in[i] = v
	}

	out := m.fn.Call(in)
	errOut := out[len(out)-1]
	var err error
	if !errOut.IsNil() {
		err = errOut.Interface().(error)
	}
	if len(out) == 1 {
		return nil, err
	}
	return out[0].Interface(), err
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return true
	}
	return false
}
