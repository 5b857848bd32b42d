// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rpc

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// A Method is a callable exposed to the remote peer. The receiver is the
// value the facilitator dispatches on, allowing one table to serve every
// instance of its type.
type Method func(recv any, args ...any) (any, error)

// A MethodTable maps the public RPC-exposed names of one concrete type to
// local callables. Tables are declared at type-definition time, not at
// runtime: a type builds its table once, in a package-level variable,
// chaining to the table of its base type if it has one.
//
// Name resolution walks the chain from least to most derived, so a derived
// registration wins over a base registration for the same exposed name. The
// merged mapping is computed once and cached; the first resolution is
// guarded so concurrent first access is safe, and the table must not be
// extended afterward.
type MethodTable struct {
	parent  *MethodTable
	methods map[string]Method

	once   sync.Once
	merged map[string]Method
}

// NewMethodTable constructs a table chained to parent, which may be nil for
// a type without ancestry.
func NewMethodTable(parent *MethodTable) *MethodTable {
	return &MethodTable{parent: parent, methods: make(map[string]Method)}
}

// Expose registers fn under the given public name and returns t to permit
// chaining. Expose must not be called after the table has been resolved.
func (t *MethodTable) Expose(name string, fn Method) *MethodTable {
	t.methods[name] = fn
	return t
}

// Resolve returns the merged exposed-name to method mapping for the table's
// full ancestry, computing and caching it on first use. The returned map
// must not be modified.
func (t *MethodTable) Resolve() map[string]Method {
	t.once.Do(func() {
		merged := make(map[string]Method)
		t.mergeInto(merged)
		t.merged = merged
	})
	return t.merged
}

// mergeInto writes the table's entries over those of its ancestors, so that
// the most derived declaration of a name is the one that survives.
func (t *MethodTable) mergeInto(dst map[string]Method) {
	if t.parent != nil {
		t.parent.mergeInto(dst)
	}
	for name, fn := range t.methods {
		dst[name] = fn
	}
}

// Invoke calls the method exposed under name on recv. It reports
// ErrUnknownMethod if no such name is exposed. A name that is registered but
// bound to no callable is a configuration bug, not a caller error: the
// inconsistency is logged and the same ErrUnknownMethod is reported.
func (t *MethodTable) Invoke(recv any, name string, args ...any) (any, error) {
	fn, ok := t.Resolve()[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownMethod)
	}
	if fn == nil {
		log.WithFields(log.Fields{
			"name":   name,
			"target": fmt.Sprintf("%T", recv),
		}).Error("Exposed method is not bound to a callable")
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownMethod)
	}
	return fn(recv, args...)
}
