// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package rtmp implements the connection-level engine of the Real Time
// Messaging Protocol (RTMP).
//
// RTMP is a framed, multiplexed, bidirectional protocol that carries
// remote-procedure-call invocations and continuous media events over a
// single byte stream. This package provides the control-plane logic shared
// by client and server endpoints: handshake sequencing, call correlation,
// and stream multiplexing bookkeeping. The byte-level chunk codec, the AMF
// serialization of command arguments, and the transport are external
// collaborators consumed through interfaces.
//
// # Connections
//
// The core type defined by this package is the [Conn]. A connection is
// constructed for one side over a [Transport]:
//
//	conn := rtmp.NewServerConn(t, rtmp.Config{Codec: codec})
//
// Call Connected to begin the handshake, and feed inbound transport bytes
// to DataReceived:
//
//	if err := conn.Connected(); err != nil {
//	   log.Fatalf("Connect: %v", err)
//	}
//
// A connection has two phases. During the handshake phase all inbound bytes
// belong to the negotiator; once the handshake succeeds the connection
// builds its encoder and decoder through the configured [CodecFactory] and
// enters the streaming phase. A failed handshake closes the transport
// immediately.
//
// # Calls
//
// While streaming, the connection plays two call roles at once. Its
// [rpc.Initiator] issues calls to the peer:
//
//	res, err := conn.Initiator().CallWithResult("createStream")
//
// and routes each asynchronous response back to the pending result of the
// call that produced it, matching strictly by call ID. Its
// [rpc.Facilitator] accepts calls from the peer and dispatches them to the
// methods exposed through the Config's [rpc.MethodTable].
//
// # Streams
//
// Logical streams are registered per connection with integer IDs bounded by
// [MaxStreams]; ID 0 is reserved for the control stream a server installs
// after the handshake. New stream IDs are allocated densely, always
// choosing the lowest ID not currently in use.
//
// # Concurrency
//
// A connection is a single sequential stream of data events: Connected,
// DataReceived, and ConnectionLost must be invoked from one goroutine.
// Calls may be initiated from any goroutine; the call registry serializes
// call state.
//
// # Metrics
//
// The package maintains expvar counters of connection, stream, and call
// activity; see [Metrics] and [rpc.Metrics].
package rtmp
