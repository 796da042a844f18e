// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

var errNoServiceMethods = errors.New("no exported methods with a supported signature")

// serviceHandlers builds one RawHandler per exported method of handler. The
// accepted method shapes mirror what service contracts can call: an optional
// leading or trailing context, up to MaxArity positional parameters decoded
// from a positional array, and an error or (T, error) result. Methods are
// served as name.Method; an empty name uses the handler's type name.
func serviceHandlers(name string, handler interface{}, codec Codec) (map[string]RawHandler, error) {
	if handler == nil {
		return nil, errors.New("register: nil handler")
	}
	rv := reflect.ValueOf(handler)
	if name == "" {
		name = reflect.Indirect(rv).Type().Name()
	}
	if name == "" {
		return nil, fmt.Errorf("register %T: service name required", handler)
	}

	rt := rv.Type()
	handlers := make(map[string]RawHandler)
	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		if !m.IsExported() {
			continue
		}
		fn := rv.Method(i)
		sh, cerr := analyzeSignature(fn.Type())
		if cerr != nil {
			logger().Debug("skipping method", "service", name, "method", m.Name, "reason", cerr.Error())
			continue
		}
		handlers[name+"."+m.Name] = methodHandler(fn, sh, codec)
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("register %s: %w", name, errNoServiceMethods)
	}
	return handlers, nil
}

func methodHandler(fn reflect.Value, sh callShape, codec Codec) RawHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		args, err := decodePositional(codec, payload, sh.params)
		if err != nil {
			return nil, err
		}

		ctxVal := reflect.ValueOf(&ctx).Elem()
		in := make([]reflect.Value, 0, len(args)+1)
		if sh.cancel == cancelLeading {
			in = append(in, ctxVal)
		}
		in = append(in, args...)
		if sh.cancel == cancelTrailing {
			in = append(in, ctxVal)
		}

		out := fn.Call(in)
		if errOut := out[len(out)-1]; !errOut.IsNil() {
			return nil, errOut.Interface().(error)
		}
		if sh.result != resultValue {
			return nil, nil
		}
		return codec.Encode(out[0].Interface())
	}
}
