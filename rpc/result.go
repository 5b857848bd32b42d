// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rpc

import (
	"context"
	"sync"
)

// A Result is the pending-result handle returned by an initiator for a call
// that expects a response. It has three states: pending, fulfilled, and
// rejected. A Result resolves at most once; once resolved, further
// resolutions are silently ignored.
//
// Two concurrent outstanding calls may resolve in any order relative to the
// order they were sent; responses are matched strictly by call ID.
type Result struct {
	μ     sync.Mutex
	done  chan struct{}
	value any
	err   error
}

// NewResult constructs a new pending Result.
func NewResult() *Result {
	return &Result{done: make(chan struct{})}
}

// Done returns a channel that is closed once the result has been fulfilled
// or rejected.
func (r *Result) Done() <-chan struct{} { return r.done }

// Wait blocks until the result resolves or ctx ends. It returns the value
// the call was fulfilled with, or the rejection error; if ctx ends first it
// returns the context error and the call remains pending.
func (r *Result) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		r.μ.Lock()
		defer r.μ.Unlock()
		return r.value, r.err
	}
}

func (r *Result) fulfill(value any) {
	r.μ.Lock()
	defer r.μ.Unlock()
	select {
	case <-r.done:
		return // already resolved
	default:
	}
	r.value = value
	close(r.done)
}

func (r *Result) reject(err error) {
	r.μ.Lock()
	defer r.μ.Unlock()
	select {
	case <-r.done:
		return // already resolved
	default:
	}
	r.err = err
	close(r.done)
}
