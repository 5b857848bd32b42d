// Package handshake implements the RTMP handshake negotiation that precedes
// the streaming phase of a connection.
//
// The exchange is three fixed-size packets in each direction: the client
// sends C0 (one version byte) and C1 (1536 bytes of timestamp, version, and
// random fill), the server answers with S0, S1, and S2 (an echo of C1), and
// the client completes with C2 (an echo of S1). Bytes a peer sends past the
// handshake boundary are captured and reported to the observer, since they
// are guaranteed to be protocol data rather than more handshake data.
//
// Negotiators are fed raw bytes incrementally with [Client.DataReceived] and
// [Server.DataReceived] and report the outcome through an Observer. The
// digest-based variant of the handshake (RTMPE) is not implemented.
package handshake

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Version is the plain RTMP protocol version byte.
const Version = 0x03

// PacketSize is the size of each of the C1/C2/S1/S2 handshake packets.
const PacketSize = 1536

// headerSize covers the timestamp and version fields at the head of a
// handshake packet; the remainder is random fill.
const headerSize = 8

// Options configure the first packet a negotiator emits.
type Options struct {
	// Version is written to the version field of the C1/S1 packet.
	Version uint32
}

// An Observer is told how the negotiation ended. Exactly one of its methods
// is invoked, at most once.
type Observer interface {
	// HandshakeSuccess reports a completed handshake. trailing holds any
	// bytes received past the handshake boundary, in arrival order.
	HandshakeSuccess(trailing []byte)

	// HandshakeFailure reports a failed handshake. The connection is beyond
	// recovery and the transport should be closed immediately.
	HandshakeFailure(err error)
}

// A Negotiator drives one side of the handshake exchange.
type Negotiator interface {
	// Start emits the side's opening bytes, if any.
	Start(opts Options) error

	// DataReceived feeds inbound bytes to the negotiator. Outcomes are
	// reported through the Observer; data received after the negotiation has
	// concluded is ignored.
	DataReceived(p []byte)
}

// newPacket builds a C1/S1-style packet with the given version field and
// random fill.
func newPacket(version uint32) []byte {
	p := make([]byte, PacketSize)
	binary.BigEndian.PutUint32(p[0:4], uint32(time.Now().Unix()))
	binary.BigEndian.PutUint32(p[4:8], version)
	rand.Read(p[headerSize:])
	return p
}

// echoPacket builds a C2/S2-style echo of peer, restamping the second
// timestamp field with the local read time.
func echoPacket(peer []byte) []byte {
	p := make([]byte, PacketSize)
	copy(p, peer)
	binary.BigEndian.PutUint32(p[4:8], uint32(time.Now().Unix()))
	return p
}

// checkEcho verifies that the random fill of an echo packet matches the
// packet it claims to echo.
func checkEcho(echo, sent []byte, what string) error {
	if !bytes.Equal(echo[headerSize:], sent[headerSize:]) {
		return fmt.Errorf("handshake: %s does not echo the packet it acknowledges", what)
	}
	return nil
}

// A Client negotiates the client side of the handshake.
type Client struct {
	obs Observer
	w   io.Writer

	c1   []byte
	buf  []byte
	done bool
}

// NewClient constructs a client negotiator reporting to obs and writing its
// packets to w.
func NewClient(obs Observer, w io.Writer) *Client {
	return &Client{obs: obs, w: w}
}

// Start sends C0 and C1.
func (c *Client) Start(opts Options) error {
	c.c1 = newPacket(opts.Version)
	out := make([]byte, 0, 1+PacketSize)
	out = append(out, Version)
	out = append(out, c.c1...)
	_, err := c.w.Write(out)
	return err
}

// DataReceived feeds inbound bytes to the negotiator.
func (c *Client) DataReceived(p []byte) {
	if c.done {
		return
	}
	c.buf = append(c.buf, p...)

	// S0, S1 and S2 are handled as one unit.
	const need = 1 + 2*PacketSize
	if len(c.buf) < need {
		return
	}
	if v := c.buf[0]; v != Version {
		c.fail(fmt.Errorf("handshake: unsupported protocol version %#02x", v))
		return
	}
	s1 := c.buf[1 : 1+PacketSize]
	s2 := c.buf[1+PacketSize : need]
	if err := checkEcho(s2, c.c1, "S2"); err != nil {
		c.fail(err)
		return
	}
	if _, err := c.w.Write(echoPacket(s1)); err != nil {
		c.fail(err)
		return
	}
	trailing := c.buf[need:]
	c.done = true
	c.obs.HandshakeSuccess(trailing)
}

func (c *Client) fail(err error) {
	c.done = true
	c.obs.HandshakeFailure(err)
}

// A Server negotiates the server side of the handshake.
type Server struct {
	obs Observer
	w   io.Writer

	s1      []byte
	buf     []byte
	replied bool
	done    bool
}

// NewServer constructs a server negotiator reporting to obs and writing its
// packets to w.
func NewServer(obs Observer, w io.Writer) *Server {
	return &Server{obs: obs, w: w}
}

// Start prepares S1. The server sends nothing until the client's C0 and C1
// arrive.
func (s *Server) Start(opts Options) error {
	s.s1 = newPacket(opts.Version)
	return nil
}

// DataReceived feeds inbound bytes to the negotiator.
func (s *Server) DataReceived(p []byte) {
	if s.done {
		return
	}
	s.buf = append(s.buf, p...)

	if !s.replied {
		const need = 1 + PacketSize
		if len(s.buf) < need {
			return
		}
		if v := s.buf[0]; v != Version {
			s.fail(fmt.Errorf("handshake: unsupported protocol version %#02x", v))
			return
		}
		c1 := s.buf[1:need]

		out := make([]byte, 0, 1+2*PacketSize)
		out = append(out, Version)
		out = append(out, s.s1...)
		out = append(out, echoPacket(c1)...)
		if _, err := s.w.Write(out); err != nil {
			s.fail(err)
			return
		}
		s.replied = true
		s.buf = append([]byte(nil), s.buf[need:]...)
	}

	if len(s.buf) < PacketSize {
		return
	}
	c2 := s.buf[:PacketSize]
	if err := checkEcho(c2, s.s1, "C2"); err != nil {
		s.fail(err)
		return
	}
	trailing := s.buf[PacketSize:]
	s.done = true
	s.obs.HandshakeSuccess(trailing)
}

func (s *Server) fail(err error) {
	s.done = true
	s.obs.HandshakeFailure(err)
}
