// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package rpc implements the call correlation engine for an RTMP connection.
//
// Each side of a connection may play two roles at once: an initiator, which
// issues calls to the peer and routes asynchronous responses back to the
// waiting caller, and a facilitator, which accepts calls from the peer and
// dispatches them to locally exposed methods.
//
// Both roles are built on a Registry, which allocates call IDs and tracks the
// calls currently in flight. Exposed methods are declared in a MethodTable,
// an explicit per-type registration table merged across a type's declared
// ancestry.
package rpc

import (
	"errors"
	"fmt"

	"github.com/rtmpkit/rtmp/message"
)

// NoResult is the call ID used for an invocation that neither requires nor
// expects a response.
const NoResult = 0

// Reserved response tags.
const (
	// ResponseResult is the name of the response to a successful call.
	ResponseResult = "_result"
	// ResponseError is the name of the response to a failed call.
	ResponseError = "_error"
)

var (
	// ErrCallActive is reported when a call ID is already tracking an
	// in-flight call. A peer reusing an active ID is a protocol violation.
	ErrCallActive = errors.New("call already active")

	// ErrUnknownMethod is reported when a call names a method the target type
	// does not expose.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrConnectionLost rejects every call still pending when the connection
	// is torn down.
	ErrConnectionLost = errors.New("connection lost")
)

// A Sender delivers an invocation message to the remote peer. It is
// implemented by the connection, which frames the message through its
// encoder on the control chunk stream.
type Sender interface {
	SendMessage(m *message.Invoke) error
}

// A RemoteCallError is the rejection value for a call that the peer answered
// with an error response. Value holds the peer-supplied error payload
// verbatim.
type RemoteCallError struct {
	Value any
}

// Error satisfies the error interface.
func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("remote call failed: %v", e.Value)
}
