// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"errors"
	"reflect"
	"sync"
)

// errBuildAborted is left in an entry whose build panicked.
var errBuildAborted = errors.New("svcrpc: build aborted")

// Process-wide memoization tables. Resolving a contract and building a
// strategy both walk reflect metadata; doing it once per type for the life
// of the process keeps proxy construction cheap. Entries are never evicted.
var (
	contracts  = memo[reflect.Type, *Contract]{name: "contract"}
	strategies = memo[strategyKey, *Strategy]{name: "strategy"}
)

// memo is a get-or-create map. The first caller for a key runs build; callers
// arriving while it runs block until it finishes and then see the same value
// or the same error. Failures stay cached.
type memo[K comparable, V any] struct {
	name    string
	entries sync.Map // K -> *memoEntry[V]
}

type memoEntry[V any] struct {
	once sync.Once
	val  V
	err  error
}

func (m *memo[K, V]) getOrCreate(key K, build func() (V, error)) (V, error) {
	e, loaded := m.entries.Load(key)
	if !loaded {
		e, loaded = m.entries.LoadOrStore(key, new(memoEntry[V]))
	}
	if loaded {
		cacheLookups.WithLabelValues(m.name, "hit").Inc()
	} else {
		cacheLookups.WithLabelValues(m.name, "miss").Inc()
	}

	entry := e.(*memoEntry[V])
	entry.once.Do(func() {
		entry.err = errBuildAborted
		entry.val, entry.err = build()
	})
	return entry.val, entry.err
}
