// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rpc

import (
	log "github.com/sirupsen/logrus"

	"github.com/rtmpkit/rtmp/message"
)

// An Initiator issues RPC calls to the remote peer and resolves their
// pending results when responses arrive. It is the role played by one side
// of a connection; the connection supplies the Sender that frames outgoing
// invocations.
type Initiator struct {
	reg  *Registry
	send Sender
	log  *log.Entry
}

// callContext is the tuple stored in the registry while a call is in
// flight, and returned verbatim when the call completes.
type callContext struct {
	res     *Result
	name    string
	args    []any
	command any
}

// NewInitiator constructs an initiator over reg that sends through s.
// A nil logger falls back to the standard logrus logger.
func NewInitiator(reg *Registry, s Sender, logger *log.Entry) *Initiator {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Initiator{reg: reg, send: s, log: logger}
}

// Registry returns the call registry backing the initiator.
func (in *Initiator) Registry() *Registry { return in.reg }

// Call builds and sends a fire-and-forget invocation. No result is expected
// or tracked; the peer will not answer it.
func (in *Initiator) Call(name string, args ...any) error {
	return in.CallCommand(nil, name, args...)
}

// CallCommand is Call with an explicit command tag attached to the
// invocation. Most callers should leave the command alone and use Call.
func (in *Initiator) CallCommand(command any, name string, args ...any) error {
	rpcMetrics.callOut.Add(1)
	return in.send.SendMessage(&message.Invoke{
		Name:    name,
		CallID:  NoResult,
		Command: command,
		Args:    args,
	})
}

// CallWithResult builds and sends an invocation that expects a response, and
// returns a pending Result that resolves when the matching response is
// handled. If the send fails, the call is discarded from the registry before
// the error is returned, so no registry entry is leaked.
func (in *Initiator) CallWithResult(name string, args ...any) (*Result, error) {
	return in.CallWithResultCommand(nil, name, args...)
}

// CallWithResultCommand is CallWithResult with an explicit command tag.
func (in *Initiator) CallWithResultCommand(command any, name string, args ...any) (*Result, error) {
	rpcMetrics.callOut.Add(1)

	res := NewResult()
	id := in.reg.Initiate(&callContext{res: res, name: name, args: args, command: command})

	err := in.send.SendMessage(&message.Invoke{
		Name:    name,
		CallID:  id,
		Command: command,
		Args:    args,
	})
	if err != nil {
		in.reg.Discard(id)
		rpcMetrics.callOutErr.Add(1)
		in.log.WithFields(log.Fields{
			"callId": id,
			"name":   name,
		}).WithError(err).Debug("Discarded call after failed send")
		return nil, err
	}
	rpcMetrics.callPending.Add(1)
	return res, nil
}

// HandleResponse completes the call identified by id. A response that
// matches no active call is not an error: it is logged and absorbed, and the
// registry is left unchanged. For a matched call, a ResponseResult tag
// fulfills the stored handle with result, a ResponseError tag rejects it
// with a RemoteCallError wrapping result, and any other tag is logged as a
// protocol anomaly, leaving the handle unresolved.
func (in *Initiator) HandleResponse(name string, id uint32, result, command any) {
	ctx, ok := in.reg.Finish(id)
	if !ok {
		rpcMetrics.responseOrphan.Add(1)
		if id == NoResult {
			in.log.WithFields(log.Fields{
				"name":   name,
				"result": result,
			}).Info("Received an RPC response when none was expected")
		} else {
			in.log.WithFields(log.Fields{
				"callId": id,
				"name":   name,
				"result": result,
			}).Warn("Unknown RPC call ID for response")
		}
		return
	}
	cc := ctx.(*callContext)
	rpcMetrics.callPending.Add(-1)

	if command != nil {
		// Diagnostics only; the command tag has no functional effect on the
		// response path.
		in.log.WithFields(log.Fields{
			"command":  command,
			"call":     cc.name,
			"callArgs": cc.args,
		}).Debug("Received command tag with RPC response")
	}

	switch name {
	case ResponseResult:
		cc.res.fulfill(result)
	case ResponseError:
		rpcMetrics.callOutErr.Add(1)
		cc.res.reject(&RemoteCallError{Value: result})
	default:
		in.log.WithFields(log.Fields{
			"name":     name,
			"result":   result,
			"call":     cc.name,
			"callArgs": cc.args,
			"command":  cc.command,
		}).Warn("Unknown RPC response type")
	}
}

// Close drains the registry and rejects every outstanding call with err.
// It is invoked when the connection is lost so that no caller is left
// pending forever.
func (in *Initiator) Close(err error) {
	for _, ctx := range in.reg.Drain() {
		if cc, ok := ctx.(*callContext); ok {
			rpcMetrics.callPending.Add(-1)
			cc.res.reject(err)
		}
	}
}
