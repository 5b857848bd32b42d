package rtmp

import (
	"errors"
	"testing"

	"github.com/rtmpkit/rtmp/message"
	"github.com/rtmpkit/rtmp/rpc"
)

type closeTransport struct {
	closed bool
}

func (t *closeTransport) Write(p []byte) (int, error) { return len(p), nil }
func (t *closeTransport) Close() error                { t.closed = true; return nil }

// streamConn builds a connection parked in the stream state with its call
// roles installed, bypassing the handshake.
func streamConn(tr Transport) *Conn {
	c := newConn(SideServer, tr, Config{})
	c.streams = NewStreamRegistry()
	c.init = rpc.NewInitiator(rpc.NewRegistry(), nopSender{}, c.log)
	c.fac = rpc.NewFacilitator(rpc.NewRegistry(), nopSender{}, rpc.NewMethodTable(nil), nil, c.log)
	c.state.Store(int32(StateStream))
	return c
}

type nopSender struct{}

func (nopSender) SendMessage(m *message.Invoke) error { return nil }

func TestUnknownStateIsFatal(t *testing.T) {
	tr := new(closeTransport)
	c := newConn(SideClient, tr, Config{})
	c.state.Store(99)

	var perr *ProtocolError
	if err := c.DataReceived([]byte("junk")); !errors.As(err, &perr) {
		t.Errorf("DataReceived: got error %[1]T (%[1]v), want *ProtocolError", err)
	}
	if !tr.closed {
		t.Error("Transport was not closed for an unknown state")
	}
}

func TestDuplicateCallIDIsFatal(t *testing.T) {
	tr := new(closeTransport)
	c := streamConn(tr)
	if err := c.fac.Registry().InitiateWithID("in flight", 7); err != nil {
		t.Fatalf("InitiateWithID: unexpected error: %v", err)
	}

	err := c.commandReceived(&message.Invoke{Name: "createStream", CallID: 7})
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("commandReceived: got error %[1]T (%[1]v), want *ProtocolError", err)
	}
	if !errors.Is(err, rpc.ErrCallActive) {
		t.Errorf("commandReceived: error %v does not wrap %v", err, rpc.ErrCallActive)
	}
	if !tr.closed {
		t.Error("Transport was not closed for a reused call ID")
	}
}

func TestResponseCorrelation(t *testing.T) {
	c := streamConn(new(closeTransport))
	res, err := c.init.CallWithResult("connect")
	if err != nil {
		t.Fatalf("CallWithResult: unexpected error: %v", err)
	}

	// The first argument of a response message is its result payload.
	err = c.commandReceived(&message.Invoke{Name: rpc.ResponseResult, CallID: 1, Args: []any{"ok", "extra"}})
	if err != nil {
		t.Fatalf("commandReceived: unexpected error: %v", err)
	}
	if v, err := res.Wait(t.Context()); err != nil || v != "ok" {
		t.Errorf("Wait: got %v, %v; want ok, nil", v, err)
	}

	// A response with no arguments resolves with a nil payload.
	res, _ = c.init.CallWithResult("connect")
	if err := c.commandReceived(&message.Invoke{Name: rpc.ResponseResult, CallID: 2}); err != nil {
		t.Fatalf("commandReceived: unexpected error: %v", err)
	}
	if v, err := res.Wait(t.Context()); err != nil || v != nil {
		t.Errorf("Wait: got %v, %v; want nil, nil", v, err)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	if got := cfg.downstreamBandwidth(); got != defaultBandwidth {
		t.Errorf("Downstream bandwidth: got %d, want %d", got, defaultBandwidth)
	}
	if got := cfg.upstreamBandwidth(); got != defaultBandwidth {
		t.Errorf("Upstream bandwidth: got %d, want %d", got, defaultBandwidth)
	}
	cfg.DownstreamBandwidth = 8000
	if got := cfg.downstreamBandwidth(); got != 8000 {
		t.Errorf("Downstream bandwidth: got %d, want 8000", got)
	}
	if cfg.logger() == nil {
		t.Error("Default logger is nil")
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateHandshake, "handshake"},
		{StateStream, "stream"},
		{State(42), "state 42"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("String of %d: got %q, want %q", int32(tc.state), got, tc.want)
		}
	}
	if got := SideClient.String(); got != "client" {
		t.Errorf("SideClient: got %q, want client", got)
	}
	if got := SideServer.String(); got != "server" {
		t.Errorf("SideServer: got %q, want server", got)
	}
}

func TestLoopingScheduler(t *testing.T) {
	s := new(LoopingScheduler)
	if got := s.NextChannel(nil); got != -1 {
		t.Errorf("NextChannel(nil): got %d, want -1", got)
	}

	active := []int{2, 3, 7}
	var got []int
	for range 6 {
		got = append(got, s.NextChannel(active))
	}
	want := []int{2, 3, 7, 2, 3, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Channel sequence: got %v, want %v", got, want)
		}
	}
}
