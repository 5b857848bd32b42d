// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rpc

import (
	log "github.com/sirupsen/logrus"

	"github.com/rtmpkit/rtmp/message"
)

// A Facilitator accepts RPC calls from the remote peer and dispatches them
// to the methods a local target exposes through its MethodTable. It is the
// role played by the receiving side of a connection.
type Facilitator struct {
	reg    *Registry
	send   Sender
	table  *MethodTable
	target any
	log    *log.Entry
}

// NewFacilitator constructs a facilitator over reg dispatching to the
// methods that table exposes on target, sending responses through s.
// A nil logger falls back to the standard logrus logger.
func NewFacilitator(reg *Registry, s Sender, table *MethodTable, target any, logger *log.Entry) *Facilitator {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Facilitator{reg: reg, send: s, table: table, target: target, log: logger}
}

// Registry returns the call registry backing the facilitator.
func (f *Facilitator) Registry() *Registry { return f.reg }

// CallReceived handles an invocation from the peer. If id is already active,
// it reports ErrCallActive without touching the in-flight call: the peer
// must not reuse an ID the facilitator is still processing, and the caller
// should treat the violation as protocol fatal.
//
// Otherwise the call is tracked for the duration of dispatch and the exposed
// method is invoked with args. Unless id is NoResult, a response carrying
// the same id goes back to the peer: a ResponseResult with the method's
// return value on success, or a ResponseError wrapping the failure.
func (f *Facilitator) CallReceived(name string, id uint32, args ...any) error {
	rpcMetrics.callIn.Add(1)

	if err := f.reg.InitiateWithID(&inboundCall{name: name, args: args}, id); err != nil {
		rpcMetrics.callInErr.Add(1)
		return err
	}
	defer f.reg.Finish(id)

	result, err := f.table.Invoke(f.target, name, args...)
	if err != nil {
		rpcMetrics.callInErr.Add(1)
		f.log.WithFields(log.Fields{
			"callId": id,
			"name":   name,
		}).WithError(err).Debug("Exposed method reported an error")
	}

	if id == NoResult {
		// The peer expects no response; a dispatch failure affects only this
		// call and is already logged.
		return nil
	}

	rsp := &message.Invoke{CallID: id}
	if err != nil {
		rsp.Name = ResponseError
		rsp.Args = []any{err.Error()}
	} else {
		rsp.Name = ResponseResult
		rsp.Args = []any{result}
	}
	return f.send.SendMessage(rsp)
}

// inboundCall is the context tracked while an inbound dispatch is running.
type inboundCall struct {
	name string
	args []any
}
