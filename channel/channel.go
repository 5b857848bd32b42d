// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package channel provides implementations of the rtmp.Transport interface
// and helpers for feeding a connection from a byte stream.
package channel

import (
	"bufio"
	"io"
	"sync"
)

// A DataSink consumes inbound transport bytes. It is implemented by
// rtmp.Conn and by the handshake negotiators.
type DataSink interface {
	DataReceived(p []byte) error
}

// IO constructs a transport that writes to wc. Writes are buffered and
// flushed per call, and are safe for concurrent use.
func IO(wc io.WriteCloser) *IOTransport {
	// N.B. The bufio package will reuse existing buffers if possible.
	return &IOTransport{w: bufio.NewWriter(wc), c: wc}
}

// An IOTransport frames connection output onto an io.WriteCloser.
type IOTransport struct {
	μ sync.Mutex
	w *bufio.Writer
	c io.Closer
}

// Write implements part of the [rtmp.Transport] interface.
func (t *IOTransport) Write(p []byte) (int, error) {
	t.μ.Lock()
	defer t.μ.Unlock()
	n, err := t.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, t.w.Flush()
}

// Close implements part of the [rtmp.Transport] interface.
func (t *IOTransport) Close() error { return t.c.Close() }

// Pump reads r until it is exhausted, delivering each chunk of bytes to
// sink. It returns nil when r reports io.EOF, otherwise the first error from
// the reader or the sink. The delivered slice is reused between reads; sinks
// must not retain it.
func Pump(r io.Reader, sink DataSink) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if derr := sink.DataReceived(buf[:n]); derr != nil {
				return derr
			}
		}
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}
