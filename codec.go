// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Codec encodes and decodes call payloads. Positional arguments are encoded
// as one array value.
type Codec interface {
	Name() string
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// JSONCodec is a JSON-based codec
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// defaultCodec is used when no codec is specified
var defaultCodec Codec = JSONCodec{}

// BinaryCodec passes []byte values through unchanged and falls back to JSON
// for everything else.
type BinaryCodec struct{}

func (BinaryCodec) Name() string { return "binary" }

func (BinaryCodec) Encode(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	}
	return json.Marshal(v)
}

func (BinaryCodec) Decode(data []byte, v interface{}) error {
	if b, ok := v.(*[]byte); ok {
		*b = data
		return nil
	}
	return json.Unmarshal(data, v)
}

// Binary is a codec that passes bytes through unchanged
var Binary Codec = BinaryCodec{}

// decodePositional decodes a positional argument array into values of the
// given types. An empty payload decodes as no arguments.
func decodePositional(c Codec, payload []byte, types []reflect.Type) ([]reflect.Value, error) {
	var raw []json.RawMessage
	if len(payload) > 0 {
		if err := c.Decode(payload, &raw); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	if len(raw) != len(types) {
		return nil, fmt.Errorf("decode params: want %d positional values, have %d", len(types), len(raw))
	}
	out := make([]reflect.Value, len(types))
	for i, t := range types {
		v := reflect.New(t)
		if err := c.Decode(raw[i], v.Interface()); err != nil {
			return nil, fmt.Errorf("decode param %d: %w", i, err)
		}
		out[i] = v.Elem()
	}
	return out, nil
}
