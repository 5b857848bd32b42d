package conns

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"sync"

	"github.com/rtmpkit/rtmp"
	"github.com/rtmpkit/rtmp/message"
)

// GobCodec is a self-framing codec for connecting two endpoints of this
// package to each other. Each message travels as a 4-byte big-endian length
// prefix followed by a gob-encoded frame.
//
// It is not the RTMP chunk format: it exists so connection pairs can be
// exercised end to end without a chunk codec, and as a reference for the
// codec interfaces.
type GobCodec struct{}

// NewDecoder implements part of the [rtmp.CodecFactory] interface.
func (GobCodec) NewDecoder(c *rtmp.Conn) rtmp.Decoder { return &gobDecoder{conn: c} }

// NewEncoder implements part of the [rtmp.CodecFactory] interface.
func (GobCodec) NewEncoder(c *rtmp.Conn, w io.Writer) rtmp.Encoder { return &gobEncoder{w: w} }

// frame is the unit of transfer for the gob codec.
type frame struct {
	StreamID uint32
	Chunk    int
	Msg      message.Message
}

func init() {
	gob.Register(&message.Invoke{})
	gob.Register(message.DownstreamBandwidth{})
	gob.Register(message.UpstreamBandwidth{})
	gob.Register(message.ControlEvent{})
	gob.Register(message.SetChunkSize{})
	gob.Register(&message.AudioData{})
	gob.Register(&message.VideoData{})

	// Concrete types that may appear in interface-valued call arguments.
	gob.Register(int(0))
	gob.Register(float64(0))
	gob.Register(string(""))
	gob.Register(bool(false))
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
}

type gobDecoder struct {
	conn   *rtmp.Conn
	buf    []byte
	paused bool
}

// DataReceived implements part of the [rtmp.Decoder] interface.
func (d *gobDecoder) DataReceived(p []byte) error {
	d.buf = append(d.buf, p...)
	if d.paused {
		return nil
	}
	return d.drain()
}

// Pause implements part of the [rtmp.Decoder] interface.
func (d *gobDecoder) Pause() { d.paused = true }

// Resume implements part of the [rtmp.Decoder] interface.
func (d *gobDecoder) Resume() {
	d.paused = false
	d.drain()
}

func (d *gobDecoder) drain() error {
	for len(d.buf) >= 4 {
		n := int(binary.BigEndian.Uint32(d.buf))
		if len(d.buf) < 4+n {
			return nil
		}
		var f frame
		if err := gob.NewDecoder(bytes.NewReader(d.buf[4 : 4+n])).Decode(&f); err != nil {
			return err
		}
		d.buf = d.buf[4+n:]
		if err := d.conn.MessageReceived(f.StreamID, f.Msg); err != nil {
			return err
		}
	}
	return nil
}

type gobEncoder struct {
	μ      sync.Mutex
	w      io.Writer
	sched  rtmp.Scheduler
	paused bool
	queue  [][]byte
}

// WriteMessage implements part of the [rtmp.Encoder] interface.
func (e *gobEncoder) WriteMessage(m message.Message, chunkStreamID int) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(frame{Chunk: chunkStreamID, Msg: m}); err != nil {
		return err
	}
	out := make([]byte, 4, 4+body.Len())
	binary.BigEndian.PutUint32(out, uint32(body.Len()))
	out = append(out, body.Bytes()...)

	e.μ.Lock()
	defer e.μ.Unlock()
	if e.paused {
		e.queue = append(e.queue, out)
		return nil
	}
	_, err := e.w.Write(out)
	return err
}

// SetScheduler implements part of the [rtmp.Encoder] interface. The gob
// codec emits frames in write order regardless of the installed policy.
func (e *gobEncoder) SetScheduler(s rtmp.Scheduler) {
	e.μ.Lock()
	defer e.μ.Unlock()
	e.sched = s
}

// Pause implements part of the [rtmp.Encoder] interface.
func (e *gobEncoder) Pause() {
	e.μ.Lock()
	defer e.μ.Unlock()
	e.paused = true
}

// Resume implements part of the [rtmp.Encoder] interface, flushing messages
// queued while paused.
func (e *gobEncoder) Resume() {
	e.μ.Lock()
	defer e.μ.Unlock()
	e.paused = false
	for _, out := range e.queue {
		if _, err := e.w.Write(out); err != nil {
			break
		}
	}
	e.queue = nil
}
