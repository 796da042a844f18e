// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"errors"
	"fmt"
	"reflect"
)

// Declaration errors. They are always returned wrapped in a *ConfigError.
var (
	ErrNotInterface       = errors.New("not an interface")
	ErrNoOperations       = errors.New("no operations")
	ErrDuplicateOperation = errors.New("duplicate operation")
	ErrUnsupportedReturn  = errors.New("unsupported return shape")
	ErrUnsupportedArity   = errors.New("unsupported arity")
	ErrNotifyUnsupported  = errors.New("invoker does not support notifications")
)

// ConfigError reports a mistake in a service contract declaration. It is
// raised on first use of the contract and is never retried.
type ConfigError struct {
	Contract  string // contract type, e.g. "svcrpc.SampleService"
	Operation string // exposed operation name, empty for contract-level errors
	Detail    string
	Err       error
}

func (e *ConfigError) Error() string {
	msg := e.Contract
	if e.Operation != "" {
		msg += "." + e.Operation
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func contractError(t reflect.Type, err error, format string, args ...interface{}) *ConfigError {
	return &ConfigError{
		Contract: typeName(t),
		Detail:   fmt.Sprintf(format, args...),
		Err:      err,
	}
}

func operationError(op *Operation, err error, format string, args ...interface{}) *ConfigError {
	return &ConfigError{
		Contract:  op.Contract,
		Operation: op.Name,
		Detail:    fmt.Sprintf(format, args...),
		Err:       err,
	}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
