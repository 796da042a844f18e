// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// MaxArity is the largest number of positional parameters an operation may
// declare, not counting its context.
const MaxArity = 8

type resultKind uint8

const (
	resultVoid  resultKind = iota // func(...) error
	resultValue                   // func(...) (T, error)
	resultNotify                  // func(...) error, sent without waiting for a reply
)

type cancelPos uint8

const (
	cancelNone cancelPos = iota
	cancelLeading
	cancelTrailing
)

// callShape is what a signature says about how to forward a call.
type callShape struct {
	arity  int
	cancel cancelPos
	result resultKind
	value  reflect.Type   // reply type for resultValue
	params []reflect.Type // positional parameter types
}

// analyzeSignature validates fn as an operation signature. The returned
// error carries no contract or operation name; callers fill those in.
func analyzeSignature(fn reflect.Type) (callShape, *ConfigError) {
	var sh callShape
	if fn.Kind() != reflect.Func {
		return sh, &ConfigError{Err: ErrNotInterface, Detail: "not a func: " + fn.String()}
	}
	if fn.IsVariadic() {
		return sh, &ConfigError{Err: ErrUnsupportedArity, Detail: "variadic signature " + fn.String()}
	}

	n := fn.NumIn()
	first, last := 0, n
	switch {
	case n > 0 && fn.In(0) == contextType:
		sh.cancel = cancelLeading
		first++
	case n > 0 && fn.In(n-1) == contextType:
		sh.cancel = cancelTrailing
		last--
	}
	for i := first; i < last; i++ {
		sh.params = append(sh.params, fn.In(i))
	}
	sh.arity = len(sh.params)
	if sh.arity > MaxArity {
		return sh, &ConfigError{Err: ErrUnsupportedArity, Detail: fmt.Sprintf("%d positional parameters, at most %d supported", sh.arity, MaxArity)}
	}

	switch {
	case fn.NumOut() == 1 && fn.Out(0) == errorType:
		sh.result = resultVoid
	case fn.NumOut() == 2 && fn.Out(1) == errorType:
		sh.result = resultValue
		sh.value = fn.Out(0)
	default:
		return sh, &ConfigError{Err: ErrUnsupportedReturn, Detail: "want error or (T, error), have " + fn.String()}
	}
	return sh, nil
}

type strategyKey struct {
	fn     reflect.Type
	notify bool
}

// callFunc performs the remote call for one result kind.
type callFunc func(ctx context.Context, inv Invoker, method string, args interface{}, reply reflect.Type) (reflect.Value, error)

// splitFunc separates the context from the positional arguments.
type splitFunc func(in []reflect.Value) (context.Context, []reflect.Value)

// Fixed dispatch tables, indexed by result kind and context position.
var (
	callers = [...]callFunc{
		resultVoid: func(ctx context.Context, inv Invoker, method string, args interface{}, _ reflect.Type) (reflect.Value, error) {
			return reflect.Value{}, inv.Call(ctx, method, args, nil)
		},
		resultValue: func(ctx context.Context, inv Invoker, method string, args interface{}, reply reflect.Type) (reflect.Value, error) {
			out := reflect.New(reply)
			if err := inv.Call(ctx, method, args, out.Interface()); err != nil {
				return reflect.Zero(reply), err
			}
			return out.Elem(), nil
		},
		resultNotify: func(ctx context.Context, inv Invoker, method string, args interface{}, _ reflect.Type) (reflect.Value, error) {
			n, ok := inv.(Notifier)
			if !ok {
				return reflect.Value{}, fmt.Errorf("%s: %w: %T", method, ErrNotifyUnsupported, inv)
			}
			return reflect.Value{}, n.Notify(ctx, method, args)
		},
	}

	splitters = [...]splitFunc{
		cancelNone: func(in []reflect.Value) (context.Context, []reflect.Value) {
			return context.Background(), in
		},
		cancelLeading: func(in []reflect.Value) (context.Context, []reflect.Value) {
			return asContext(in[0]), in[1:]
		},
		cancelTrailing: func(in []reflect.Value) (context.Context, []reflect.Value) {
			n := len(in) - 1
			return asContext(in[n]), in[:n]
		},
	}
)

// asContext forwards the caller's context verbatim, nil included.
func asContext(v reflect.Value) context.Context {
	ctx, _ := v.Interface().(context.Context)
	return ctx
}

// packArgs builds the positional argument list. Calls without positional
// arguments send no list at all.
func packArgs(in []reflect.Value) interface{} {
	if len(in) == 0 {
		return nil
	}
	args := make([]interface{}, len(in))
	for i, v := range in {
		args[i] = v.Interface()
	}
	return args
}

// Strategy forwards calls of one operation signature to an Invoker. It holds
// no invoker or method name of its own, so a single Strategy serves every
// contract and proxy that declares the same signature.
type Strategy struct {
	fn    reflect.Type
	shape callShape
	call  callFunc
	split splitFunc
}

// BuildStrategy returns the shared strategy for op's signature, building it
// on first use.
func BuildStrategy(op *Operation) (*Strategy, error) {
	key := strategyKey{fn: op.Func, notify: op.Notify}
	s, err := strategies.getOrCreate(key, func() (*Strategy, error) {
		return newStrategy(key)
	})
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			attributed := *cerr
			attributed.Contract = op.Contract
			attributed.Operation = op.Name
			return nil, &attributed
		}
		return nil, err
	}
	return s, nil
}

func newStrategy(key strategyKey) (*Strategy, error) {
	strategyBuilds.WithLabelValues(key.fn.String()).Inc()

	sh, cerr := analyzeSignature(key.fn)
	if cerr != nil {
		return nil, cerr
	}
	if key.notify {
		if sh.result != resultVoid {
			return nil, &ConfigError{Err: ErrUnsupportedReturn, Detail: "notifications cannot return a value"}
		}
		sh.result = resultNotify
	}

	s := &Strategy{
		fn:    key.fn,
		shape: sh,
		call:  callers[sh.result],
		split: splitters[sh.cancel],
	}
	logger().Debug("built invocation strategy",
		"signature", key.fn.String(),
		"arity", sh.arity,
		"cancellation", s.HasCancellation(),
		"notify", key.notify,
	)
	return s, nil
}

// Arity is the number of positional parameters.
func (s *Strategy) Arity() int { return s.shape.arity }

// HasCancellation reports whether the signature takes a context.
func (s *Strategy) HasCancellation() bool { return s.shape.cancel != cancelNone }

// Result is the reply type, or nil for operations that only return an error.
func (s *Strategy) Result() reflect.Type { return s.shape.value }

// Invoke forwards one call. in holds the caller's arguments in declaration
// order; the results match the operation signature. Errors from inv are
// returned as is.
func (s *Strategy) Invoke(inv Invoker, method string, in []reflect.Value) []reflect.Value {
	ctx, positional := s.split(in)
	val, err := s.call(ctx, inv, method, packArgs(positional), s.shape.value)

	errVal := reflect.Zero(errorType)
	if err != nil {
		errVal = reflect.ValueOf(&err).Elem()
	}
	if s.shape.result == resultValue {
		return []reflect.Value{val, errVal}
	}
	return []reflect.Value{errVal}
}

// Bind returns a func value of the operation's type that calls method on inv.
func (s *Strategy) Bind(inv Invoker, method string) reflect.Value {
	return reflect.MakeFunc(s.fn, func(in []reflect.Value) []reflect.Value {
		return s.Invoke(inv, method, in)
	})
}
