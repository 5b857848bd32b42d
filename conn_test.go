// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rtmp_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rtmpkit/rtmp"
	"github.com/rtmpkit/rtmp/conns"
	"github.com/rtmpkit/rtmp/message"
	"github.com/rtmpkit/rtmp/rpc"
)

// bufTransport is a transport that accumulates writes for explicit delivery
// to the peer, so tests exercise connections fully synchronously.
type bufTransport struct {
	out    bytes.Buffer
	closed bool
}

func (t *bufTransport) Write(p []byte) (int, error) { return t.out.Write(p) }
func (t *bufTransport) Close() error                { t.closed = true; return nil }

// connPair is a synchronous in-process connection pair. Messages written by
// one end sit in its transport buffer until flush moves them to the other.
type connPair struct {
	client, server *rtmp.Conn
	ct, st         *bufTransport
}

func newConnPair(t *testing.T, ccfg, scfg rtmp.Config) *connPair {
	t.Helper()
	if ccfg.Codec == nil {
		ccfg.Codec = conns.GobCodec{}
	}
	if scfg.Codec == nil {
		scfg.Codec = conns.GobCodec{}
	}
	p := &connPair{ct: new(bufTransport), st: new(bufTransport)}
	p.client = rtmp.NewClientConn(p.ct, ccfg)
	p.server = rtmp.NewServerConn(p.st, scfg)

	if err := p.server.Connected(); err != nil {
		t.Fatalf("Server connect: unexpected error: %v", err)
	}
	if err := p.client.Connected(); err != nil {
		t.Fatalf("Client connect: unexpected error: %v", err)
	}
	p.flush(t)
	return p
}

// flush moves buffered bytes between the two ends until both buffers are
// empty.
func (p *connPair) flush(t *testing.T) {
	t.Helper()
	for p.ct.out.Len() > 0 || p.st.out.Len() > 0 {
		if n := p.ct.out.Len(); n > 0 {
			data := append([]byte(nil), p.ct.out.Next(n)...)
			if err := p.server.DataReceived(data); err != nil {
				t.Fatalf("Server receive: unexpected error: %v", err)
			}
		}
		if n := p.st.out.Len(); n > 0 {
			data := append([]byte(nil), p.st.out.Next(n)...)
			if err := p.client.DataReceived(data); err != nil {
				t.Fatalf("Client receive: unexpected error: %v", err)
			}
		}
	}
}

func TestConnLifecycle(t *testing.T) {
	p := newConnPair(t, rtmp.Config{}, rtmp.Config{})

	for _, c := range []*rtmp.Conn{p.client, p.server} {
		if got := c.State(); got != rtmp.StateStream {
			t.Errorf("State of %v: got %v, want %v", c.Side(), got, rtmp.StateStream)
		}
		select {
		case <-c.Ready():
		default:
			t.Errorf("Ready channel of %v is not closed", c.Side())
		}
	}

	// The server owns the control stream; the client registered nothing.
	if _, err := p.server.GetStream(0); err != nil {
		t.Errorf("Server control stream: unexpected error: %v", err)
	}
	if id, ok := p.server.NextStreamID(); !ok || id != 1 {
		t.Errorf("Server NextStreamID: got %d, %v; want 1, true", id, ok)
	}
	if id, ok := p.client.NextStreamID(); !ok || id != 0 {
		t.Errorf("Client NextStreamID: got %d, %v; want 0, true", id, ok)
	}
}

type calcTarget struct{}

var calcMethods = rpc.NewMethodTable(nil).
	Expose("add", func(recv any, args ...any) (any, error) {
		total := 0
		for _, a := range args {
			total += a.(int)
		}
		return total, nil
	}).
	Expose("refuse", func(recv any, args ...any) (any, error) {
		return nil, errors.New("not authorized")
	})

func TestConnCalls(t *testing.T) {
	p := newConnPair(t, rtmp.Config{}, rtmp.Config{
		Methods: calcMethods,
		Target:  calcTarget{},
	})

	t.Run("Result", func(t *testing.T) {
		res, err := p.client.Initiator().CallWithResult("add", 2, 3)
		if err != nil {
			t.Fatalf("CallWithResult: unexpected error: %v", err)
		}
		p.flush(t)
		v, err := res.Wait(t.Context())
		if err != nil {
			t.Fatalf("Wait: unexpected error: %v", err)
		}
		if v != 5 {
			t.Errorf("add(2, 3): got %v, want 5", v)
		}
	})

	t.Run("Error", func(t *testing.T) {
		res, err := p.client.Initiator().CallWithResult("refuse")
		if err != nil {
			t.Fatalf("CallWithResult: unexpected error: %v", err)
		}
		p.flush(t)
		_, err = res.Wait(t.Context())
		var rerr *rpc.RemoteCallError
		if !errors.As(err, &rerr) {
			t.Fatalf("Wait: got error %[1]T (%[1]v), want *RemoteCallError", err)
		}
		if rerr.Value != "not authorized" {
			t.Errorf("Error value: got %v, want not authorized", rerr.Value)
		}
	})

	t.Run("NoResult", func(t *testing.T) {
		if err := p.client.Initiator().Call("add", 1); err != nil {
			t.Fatalf("Call: unexpected error: %v", err)
		}
		p.flush(t)
		// No response comes back; the pair stays parked in the stream state.
		if got := p.client.State(); got != rtmp.StateStream {
			t.Errorf("Client state: got %v, want %v", got, rtmp.StateStream)
		}
	})

	t.Run("Unexposed", func(t *testing.T) {
		// The client exposes nothing, so a server-initiated call comes back
		// as an unknown method error.
		res, err := p.server.Initiator().CallWithResult("add", 1, 2)
		if err != nil {
			t.Fatalf("CallWithResult: unexpected error: %v", err)
		}
		p.flush(t)
		if _, err := res.Wait(t.Context()); err == nil {
			t.Error("Wait: got nil error, want a remote call error")
		}
	})
}

// sinkStream records the messages routed to it.
type sinkStream struct {
	id   uint32
	msgs []message.Message
}

func (s *sinkStream) SetStreamID(id uint32) { s.id = id }

func (s *sinkStream) MessageReceived(m message.Message) error {
	s.msgs = append(s.msgs, m)
	return nil
}

func TestConnMessageRouting(t *testing.T) {
	p := newConnPair(t, rtmp.Config{}, rtmp.Config{})

	sink := &sinkStream{}
	if err := p.server.RegisterStream(5, sink); err != nil {
		t.Fatalf("RegisterStream(5): unexpected error: %v", err)
	}

	audio := &message.AudioData{Payload: []byte("pcm")}
	if err := p.server.MessageReceived(5, audio); err != nil {
		t.Fatalf("MessageReceived: unexpected error: %v", err)
	}
	if len(sink.msgs) != 1 || sink.msgs[0] != audio {
		t.Errorf("Routed messages: got %v, want [%v]", sink.msgs, audio)
	}

	// A message for an unregistered stream is absorbed, not fatal.
	if err := p.server.MessageReceived(9, audio); err != nil {
		t.Errorf("MessageReceived for unknown stream: unexpected error: %v", err)
	}
	if len(sink.msgs) != 1 {
		t.Errorf("Routed messages after drop: got %d, want 1", len(sink.msgs))
	}

	// A stream without a message receiver drops its traffic.
	p.server.RegisterStream(6, &testStream{})
	if err := p.server.MessageReceived(6, audio); err != nil {
		t.Errorf("MessageReceived for silent stream: unexpected error: %v", err)
	}

	if _, err := p.server.RemoveStream(5); err != nil {
		t.Fatalf("RemoveStream(5): unexpected error: %v", err)
	}
	if err := p.server.MessageReceived(5, audio); err != nil {
		t.Errorf("MessageReceived after removal: unexpected error: %v", err)
	}
}

func TestConnWrongState(t *testing.T) {
	c := rtmp.NewClientConn(new(bufTransport), rtmp.Config{Codec: conns.GobCodec{}})

	// Before the handshake completes, stream operations are refused.
	var perr *rtmp.ProtocolError
	if err := c.WriteMessage(&message.AudioData{}, 3); !errors.As(err, &perr) {
		t.Errorf("WriteMessage: got error %[1]T (%[1]v), want *ProtocolError", err)
	}
	if err := c.MessageReceived(0, &message.AudioData{}); !errors.As(err, &perr) {
		t.Errorf("MessageReceived: got error %[1]T (%[1]v), want *ProtocolError", err)
	}
}

func TestConnNoCodec(t *testing.T) {
	c := rtmp.NewClientConn(new(bufTransport), rtmp.Config{})
	if err := c.Connected(); err == nil {
		t.Error("Connected without a codec: got nil error, want failure")
	}
}

func TestConnHandshakeFailure(t *testing.T) {
	tr := new(bufTransport)
	c := rtmp.NewServerConn(tr, rtmp.Config{Codec: conns.GobCodec{}})
	if err := c.Connected(); err != nil {
		t.Fatalf("Connected: unexpected error: %v", err)
	}

	// An unsupported version byte fails the handshake and drops the
	// transport without entering the stream state.
	bad := append([]byte{0x7f}, make([]byte, 1536)...)
	if err := c.DataReceived(bad); err != nil {
		t.Fatalf("DataReceived: unexpected error: %v", err)
	}
	if !tr.closed {
		t.Error("Transport was not closed after a failed handshake")
	}
	if got := c.State(); got != rtmp.StateHandshake {
		t.Errorf("State: got %v, want %v", got, rtmp.StateHandshake)
	}
	select {
	case <-c.Ready():
		t.Error("Ready channel closed after a failed handshake")
	default:
	}
}
