// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rtmp

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/creachadair/mds/value"
	log "github.com/sirupsen/logrus"

	"github.com/rtmpkit/rtmp/handshake"
	"github.com/rtmpkit/rtmp/message"
	"github.com/rtmpkit/rtmp/rpc"
)

// Side distinguishes the client and server ends of a connection.
type Side int

const (
	SideClient Side = iota
	SideServer
)

func (s Side) String() string { return value.Cond(s == SideServer, "server", "client") }

// State is the phase of a connection's lifecycle.
type State int32

const (
	// StateHandshake is the initial phase: all inbound bytes belong to the
	// handshake negotiator.
	StateHandshake State = iota

	// StateStream is the streaming phase: inbound bytes belong to the
	// decoder, and stream and call operations are valid.
	StateStream
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateStream:
		return "stream"
	default:
		return fmt.Sprintf("state %d", int32(s))
	}
}

// A Conn is the connection-level engine for one transport connection. It
// negotiates the handshake, then installs the codec pipeline and multiplexes
// logical streams and RPC calls over the transport.
//
// A Conn processes inbound data as a single sequential stream of events:
// Connected, DataReceived, and ConnectionLost must all be invoked from the
// same goroutine. Call initiation and result handling may come from other
// goroutines; the call registry serializes them.
type Conn struct {
	side Side
	tr   Transport
	cfg  Config
	log  *log.Entry

	state atomic.Int32
	ready chan struct{} // closed on entering StateStream

	hs      handshake.Negotiator
	dec     Decoder
	enc     Encoder
	streams *StreamRegistry
	init    *rpc.Initiator
	fac     *rpc.Facilitator
}

// NewClientConn constructs the client end of a connection over tr.
func NewClientConn(tr Transport, cfg Config) *Conn {
	return newConn(SideClient, tr, cfg)
}

// NewServerConn constructs the server end of a connection over tr.
func NewServerConn(tr Transport, cfg Config) *Conn {
	return newConn(SideServer, tr, cfg)
}

func newConn(side Side, tr Transport, cfg Config) *Conn {
	return &Conn{
		side:  side,
		tr:    tr,
		cfg:   cfg,
		log:   cfg.logger().WithField("side", side),
		ready: make(chan struct{}),
	}
}

// State reports the connection's current lifecycle phase.
func (c *Conn) State() State { return State(c.state.Load()) }

// Ready returns a channel that is closed once the handshake has completed
// and the connection has entered the streaming phase.
func (c *Conn) Ready() <-chan struct{} { return c.ready }

// Side reports which end of the connection this is.
func (c *Conn) Side() Side { return c.side }

// Initiator returns the connection's call initiator. It is nil until the
// connection enters the streaming phase.
func (c *Conn) Initiator() *rpc.Initiator { return c.init }

// Connected begins the connection lifecycle: it builds the side-specific
// handshake negotiator, enters the handshake phase, and emits the side's
// opening bytes.
func (c *Conn) Connected() error {
	if c.cfg.Codec == nil {
		return errors.New("rtmp: config has no codec factory")
	}
	c.log.Debug("Connection made")
	connMetrics.connActive.Add(1)

	c.state.Store(int32(StateHandshake))
	switch c.side {
	case SideServer:
		c.hs = handshake.NewServer(c, c.tr)
	default:
		c.hs = handshake.NewClient(c, c.tr)
	}
	if err := c.hs.Start(handshake.Options{}); err != nil {
		c.HandshakeFailure(err)
		return err
	}
	return nil
}

// DataReceived routes inbound transport bytes according to the connection
// phase: to the negotiator during the handshake, to the decoder while
// streaming. Data arriving in an unrecognized state is a fatal internal
// error; the transport is closed and the condition surfaced.
func (c *Conn) DataReceived(p []byte) error {
	switch c.State() {
	case StateStream:
		if err := c.dec.DataReceived(p); err != nil {
			c.logAndDisconnect(err)
			return err
		}
		return nil
	case StateHandshake:
		c.hs.DataReceived(p)
		return nil
	default:
		c.tr.Close()
		return &ProtocolError{Err: fmt.Errorf("unknown connection state %v", c.State())}
	}
}

// ConnectionLost tears down connection activity after the transport has
// gone away. The codecs are paused, not destroyed, so buffered work is not
// silently dropped; every outstanding call is rejected so no caller is left
// pending forever.
func (c *Conn) ConnectionLost(reason error) {
	c.log.WithError(reason).Debug("Lost connection")
	connMetrics.connActive.Add(-1)

	if c.dec != nil {
		c.dec.Pause()
	}
	if c.enc != nil {
		c.enc.Pause()
	}
	if c.init != nil {
		c.init.Close(rpc.ErrConnectionLost)
	}
}

// HandshakeSuccess implements the handshake.Observer interface. It discards
// the negotiator, installs the codec pipeline and stream registry, and
// activates the call roles for the streaming phase. A server connection
// additionally registers the control stream at ID 0, installs the
// configured scheduler, and announces its bandwidth parameters on the
// control channel. Trailing bytes read past the handshake boundary are
// replayed through the normal streaming decode path.
func (c *Conn) HandshakeSuccess(trailing []byte) {
	c.log.Debug("Successful handshake")
	c.hs = nil

	c.streams = NewStreamRegistry()
	c.dec = c.cfg.Codec.NewDecoder(c)
	c.enc = c.cfg.Codec.NewEncoder(c, c.tr)
	c.init = rpc.NewInitiator(rpc.NewRegistry(), c, c.log)
	c.fac = rpc.NewFacilitator(rpc.NewRegistry(), c, c.methodTable(), c.cfg.Target, c.log)

	c.state.Store(int32(StateStream))

	if c.side == SideServer {
		if c.cfg.Scheduler != nil {
			c.enc.SetScheduler(c.cfg.Scheduler)
		}
		cs := &ControlStream{conn: c}
		c.RegisterStream(0, cs)

		cs.WriteEvent(message.DownstreamBandwidth{Bandwidth: c.cfg.downstreamBandwidth()}, message.ControlChunkStreamID)
		cs.WriteEvent(message.UpstreamBandwidth{Bandwidth: c.cfg.upstreamBandwidth(), Limit: message.LimitDynamic}, message.ControlChunkStreamID)
		cs.WriteEvent(message.ControlEvent{Event: message.UserControlStreamBegin}, message.ControlChunkStreamID)
	}

	close(c.ready)

	if len(trailing) > 0 {
		// Anything past the handshake boundary is protocol data.
		c.DataReceived(trailing)
	}
}

// methodTable returns the configured exposure table, or an empty table when
// none is configured so that every inbound call fails as unknown.
func (c *Conn) methodTable() *rpc.MethodTable {
	if c.cfg.Methods != nil {
		return c.cfg.Methods
	}
	return rpc.NewMethodTable(nil)
}

// HandshakeFailure implements the handshake.Observer interface. A failed
// handshake is always fatal: the transport is closed immediately and no
// further processing occurs.
func (c *Conn) HandshakeFailure(err error) {
	c.log.WithError(err).Info("Failed handshake")
	connMetrics.handshakeFail.Add(1)
	c.tr.Close()
}

// Write writes raw bytes to the transport.
func (c *Conn) Write(p []byte) (int, error) { return c.tr.Write(p) }

// WriteMessage frames a message through the encoder on the given chunk
// stream. It is only valid in the streaming phase.
func (c *Conn) WriteMessage(m message.Message, chunkStreamID int) error {
	if c.State() != StateStream {
		return &ProtocolError{Err: fmt.Errorf("write message in %v state", c.State())}
	}
	return c.enc.WriteMessage(m, chunkStreamID)
}

// SendMessage implements the rpc.Sender interface, carrying invocations and
// responses on the control chunk stream.
func (c *Conn) SendMessage(m *message.Invoke) error {
	return c.WriteMessage(m, message.ControlChunkStreamID)
}

// MessageReceived routes one decoded protocol message: RPC commands go to
// the call roles for correlation and dispatch, anything else goes to the
// stream it addresses. The decoder invokes this for each message it
// reassembles.
func (c *Conn) MessageReceived(streamID uint32, m message.Message) error {
	if c.State() != StateStream {
		return &ProtocolError{Err: fmt.Errorf("message received in %v state", c.State())}
	}
	if inv, ok := m.(*message.Invoke); ok {
		return c.commandReceived(inv)
	}

	s, err := c.GetStream(streamID)
	if err != nil {
		// A message for a stream this end never registered is a recoverable
		// anomaly, absorbed like an unmatched call response.
		connMetrics.messageDropped.Add(1)
		c.log.WithFields(log.Fields{
			"streamId": streamID,
			"type":     m.MessageType(),
		}).Debug("Dropped message for unknown stream")
		return nil
	}
	if mr, ok := s.(MessageReceiver); ok {
		return mr.MessageReceived(m)
	}
	connMetrics.messageDropped.Add(1)
	c.log.WithFields(log.Fields{
		"streamId": streamID,
		"type":     m.MessageType(),
	}).Debug("Stream dropped message")
	return nil
}

// commandReceived correlates or dispatches one RPC command. A peer reusing
// an active call ID is a fatal protocol violation and drops the connection.
func (c *Conn) commandReceived(inv *message.Invoke) error {
	switch inv.Name {
	case rpc.ResponseResult, rpc.ResponseError:
		var result any
		if len(inv.Args) > 0 {
			result = inv.Args[0]
		}
		c.init.HandleResponse(inv.Name, inv.CallID, result, inv.Command)
		return nil
	default:
		if err := c.fac.CallReceived(inv.Name, inv.CallID, inv.Args...); err != nil {
			if errors.Is(err, rpc.ErrCallActive) {
				perr := &ProtocolError{Err: err}
				c.logAndDisconnect(perr)
				return perr
			}
			return err
		}
		return nil
	}
}

// logAndDisconnect reports an unrecoverable failure and drops the
// connection.
func (c *Conn) logAndDisconnect(err error) {
	c.log.WithError(err).Error("Closing connection")
	c.tr.Close()
}

// RegisterStream registers s under the given stream ID.
func (c *Conn) RegisterStream(id uint32, s Stream) error { return c.streams.Register(id, s) }

// GetStream returns the stream registered under id.
func (c *Conn) GetStream(id uint32) (Stream, error) { return c.streams.Get(id) }

// RemoveStream removes and returns the stream registered under id.
func (c *Conn) RemoveStream(id uint32) (Stream, error) { return c.streams.Remove(id) }

// NextStreamID returns the lowest stream ID not currently in use, or false
// if the connection has no stream capacity left.
func (c *Conn) NextStreamID() (uint32, bool) { return c.streams.NextID() }

// A ControlStream is the stream registered at ID 0 on a server connection.
// It announces connection-level control parameters and absorbs control
// events from the peer.
type ControlStream struct {
	conn *Conn
	id   uint32
}

// SetStreamID implements the Stream interface.
func (s *ControlStream) SetStreamID(id uint32) { s.id = id }

// WriteEvent frames a control event on the given chunk stream.
func (s *ControlStream) WriteEvent(m message.Message, chunkStreamID int) error {
	return s.conn.WriteMessage(m, chunkStreamID)
}

// MessageReceived implements the MessageReceiver interface. Control events
// from the peer are recorded but have no engine-level effect.
func (s *ControlStream) MessageReceived(m message.Message) error {
	s.conn.log.WithField("type", m.MessageType()).Debug("Control stream event")
	return nil
}
