// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rtmp

import (
	"errors"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/rtmpkit/rtmp/message"
	"github.com/rtmpkit/rtmp/rpc"
)

// DefaultPort is the registered RTMP port. It is informational; the engine
// itself never dials or listens.
const DefaultPort = 1935

// MaxStreams is the largest stream ID that may be active on one connection.
// Stream ID 0 is reserved for the control stream.
const MaxStreams = 0xffff

// A Transport is the byte sink for one connection. The engine writes
// handshake and encoded protocol bytes to it and closes it to drop the
// connection; inbound bytes are delivered by the owner of the transport
// through [Conn.DataReceived].
type Transport interface {
	io.Writer

	// Close drops the connection. No further processing occurs.
	Close() error
}

// A Decoder reassembles inbound chunk data into protocol messages and
// delivers them, one at a time, to the connection it was built for.  An
// error reported by DataReceived is an unrecoverable codec failure; the
// connection logs it and disconnects.
type Decoder interface {
	DataReceived(p []byte) error

	// Pause suspends decoding without discarding buffered work. It is called
	// when the connection is lost, as a hook for retry or flush semantics at
	// a higher layer.
	Pause()

	// Resume continues decoding, draining any work buffered while paused.
	Resume()
}

// An Encoder frames protocol messages into chunks on the transport.
// chunkStreamID hints which chunk stream the message should be carried on.
type Encoder interface {
	WriteMessage(m message.Message, chunkStreamID int) error

	// SetScheduler installs the chunk-interleaving policy used when several
	// channels have queued data.
	SetScheduler(s Scheduler)

	// Pause suspends encoding without discarding buffered work.
	Pause()

	// Resume continues encoding, flushing any work buffered while paused.
	Resume()
}

// A CodecFactory builds the encoder/decoder pair for a connection once its
// handshake has completed.
type CodecFactory interface {
	NewDecoder(c *Conn) Decoder
	NewEncoder(c *Conn, w io.Writer) Encoder
}

// A Scheduler decides which channel the encoder should emit from next when
// several channels have chunks queued. The interleaving policy belongs to
// the codec; the engine only installs the configured scheduler once
// streaming begins.
type Scheduler interface {
	NextChannel(active []int) int
}

// LoopingScheduler cycles through the active channels in round-robin order.
type LoopingScheduler struct {
	last int
}

// NextChannel implements the Scheduler interface.
func (s *LoopingScheduler) NextChannel(active []int) int {
	if len(active) == 0 {
		return -1
	}
	for _, ch := range active {
		if ch > s.last {
			s.last = ch
			return ch
		}
	}
	s.last = active[0]
	return s.last
}

// A Stream is a logical multiplexed channel within one connection. The
// connection is the sole authority for creating, looking up, and destroying
// its streams.
type Stream interface {
	// SetStreamID stamps the stream with its ID at registration time.
	SetStreamID(id uint32)
}

// A MessageReceiver is implemented by streams that consume decoded messages
// routed to them by the connection.
type MessageReceiver interface {
	MessageReceived(m message.Message) error
}

var (
	// ErrUnknownStream is reported for a stream ID with no registered stream.
	ErrUnknownStream = errors.New("unknown stream")

	// ErrStreamRange is reported when a stream ID is outside [0, MaxStreams].
	ErrStreamRange = errors.New("stream id out of range")
)

// A ProtocolError is a fatal violation of the connection protocol, such as
// an operation attempted in the wrong connection state or a peer reusing an
// active call ID. The connection is closed when one is raised.
type ProtocolError struct {
	Err error
}

// Error satisfies the error interface.
func (p *ProtocolError) Error() string { return "protocol error: " + p.Err.Error() }

// Unwrap returns the underlying violation.
func (p *ProtocolError) Unwrap() error { return p.Err }

// Config carries the per-connection settings for a Conn. A zero Codec is the
// only invalid field: the engine cannot stream without one.
type Config struct {
	// Codec builds the encoder/decoder pair after the handshake.
	Codec CodecFactory

	// Methods exposes local methods to the peer. If nil, inbound calls are
	// rejected as unknown.
	Methods *rpc.MethodTable

	// Target is the receiver value inbound calls are dispatched on.
	Target any

	// Scheduler, if set, is installed on a server connection's encoder once
	// streaming begins.
	Scheduler Scheduler

	// DownstreamBandwidth and UpstreamBandwidth are announced by a server on
	// the control channel after a successful handshake. Zero selects the
	// default of 2500000.
	DownstreamBandwidth uint32
	UpstreamBandwidth   uint32

	// Debug enables debug-level logging for this connection only.
	Debug bool

	// Logger receives the connection's log entries. If nil, the standard
	// logrus logger is used (or a private debug-level logger when Debug is
	// set).
	Logger *log.Logger
}

const defaultBandwidth = 2500000

func (c *Config) downstreamBandwidth() uint32 {
	if c.DownstreamBandwidth == 0 {
		return defaultBandwidth
	}
	return c.DownstreamBandwidth
}

func (c *Config) upstreamBandwidth() uint32 {
	if c.UpstreamBandwidth == 0 {
		return defaultBandwidth
	}
	return c.UpstreamBandwidth
}

func (c *Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	if c.Debug {
		l := log.New()
		l.SetLevel(log.DebugLevel)
		return l
	}
	return log.StandardLogger()
}
