// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rpc

import (
	"fmt"
	"sync"
)

// A Registry allocates call IDs and tracks the in-flight calls of one
// connection. Each call holds an opaque context value from initiation until
// it is finished or discarded. Call IDs are never reused: the allocation
// counter only increases, even after the call it numbered has completed.
//
// A Registry is owned by exactly one connection and is never shared across
// connections. Its methods are safe for concurrent use, since call
// initiation and response handling may be triggered from independent
// application goroutines.
type Registry struct {
	μ      sync.Mutex
	lastID uint32
	active map[uint32]any
}

// NewRegistry constructs a new empty call registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[uint32]any)}
}

// IsActive reports whether id identifies a call awaiting completion.
func (r *Registry) IsActive(id uint32) bool {
	r.μ.Lock()
	defer r.μ.Unlock()
	_, ok := r.active[id]
	return ok
}

// NextID reports the ID the next call to Initiate will be assigned. It does
// not change the state of the registry.
func (r *Registry) NextID() uint32 {
	r.μ.Lock()
	defer r.μ.Unlock()
	return r.lastID + 1
}

// Initiate starts tracking a call, storing ctx for retrieval when the call
// completes, and returns the freshly allocated call ID. The call remains
// active until exactly one of Finish or Discard is invoked with its ID;
// a call that is never completed holds its context for the lifetime of the
// connection.
func (r *Registry) Initiate(ctx any) uint32 {
	r.μ.Lock()
	defer r.μ.Unlock()
	r.lastID++
	r.active[r.lastID] = ctx
	return r.lastID
}

// InitiateWithID starts tracking a call under a caller-supplied ID. It
// reports ErrCallActive if id already identifies an in-flight call. The
// allocation counter is not consulted or advanced.
func (r *Registry) InitiateWithID(ctx any, id uint32) error {
	r.μ.Lock()
	defer r.μ.Unlock()
	if _, ok := r.active[id]; ok {
		return fmt.Errorf("call %d: %w", id, ErrCallActive)
	}
	r.active[id] = ctx
	return nil
}

// Finish completes the active call with the given ID and returns the context
// stored at initiation. It reports false for an unknown or already-completed
// ID; that case is not an error, and callers must handle it explicitly.
func (r *Registry) Finish(id uint32) (any, bool) {
	return r.remove(id)
}

// Discard abandons the active call with the given ID and returns the context
// stored at initiation, with the same not-found semantics as Finish. The
// distinct name marks call sites where the call did not complete
// successfully; the registry itself makes no behavioral distinction.
func (r *Registry) Discard(id uint32) (any, bool) {
	return r.remove(id)
}

// Drain removes and returns the contexts of all active calls. It is used
// when the connection is lost, so that every outstanding call can be
// rejected rather than left pending forever.
func (r *Registry) Drain() []any {
	r.μ.Lock()
	defer r.μ.Unlock()
	ctxs := make([]any, 0, len(r.active))
	for _, ctx := range r.active {
		ctxs = append(ctxs, ctx)
	}
	clear(r.active)
	return ctxs
}

func (r *Registry) remove(id uint32) (any, bool) {
	r.μ.Lock()
	defer r.μ.Unlock()
	ctx, ok := r.active[id]
	if ok {
		delete(r.active, id)
	}
	return ctx, ok
}
