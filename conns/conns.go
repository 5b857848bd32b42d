// Package conns provides support code for managing and testing RTMP
// connections.
package conns

import (
	"context"
	"errors"
	"net"

	"github.com/creachadair/taskgroup"
	"github.com/hashicorp/go-multierror"

	"github.com/rtmpkit/rtmp"
	"github.com/rtmpkit/rtmp/channel"
)

// Local is a pair of in-memory connected RTMP endpoints, suitable for
// testing. The two connections handshake against each other over a
// synchronous pipe and exchange messages through the gob test codec unless
// the configs specify otherwise.
type Local struct {
	Client *rtmp.Conn
	Server *rtmp.Conn

	cn, sn net.Conn
	g      *taskgroup.Group
}

// NewLocal creates a connected client/server pair and begins their
// handshake. Use Wait to block until both ends are streaming.
func NewLocal(ccfg, scfg rtmp.Config) (*Local, error) {
	if ccfg.Codec == nil {
		ccfg.Codec = GobCodec{}
	}
	if scfg.Codec == nil {
		scfg.Codec = GobCodec{}
	}

	cn, sn := net.Pipe()
	l := &Local{
		Client: rtmp.NewClientConn(channel.IO(cn), ccfg),
		Server: rtmp.NewServerConn(channel.IO(sn), scfg),
		cn:     cn,
		sn:     sn,
		g:      taskgroup.New(nil),
	}
	l.g.Go(func() error {
		l.Client.ConnectionLost(channel.Pump(cn, l.Client))
		return nil
	})
	l.g.Go(func() error {
		l.Server.ConnectionLost(channel.Pump(sn, l.Server))
		return nil
	})

	if err := l.Server.Connected(); err != nil {
		l.Stop()
		return nil, err
	}
	if err := l.Client.Connected(); err != nil {
		l.Stop()
		return nil, err
	}
	return l, nil
}

// Wait blocks until both ends have completed the handshake or ctx ends.
func (l *Local) Wait(ctx context.Context) error {
	for _, c := range []*rtmp.Conn{l.Client, l.Server} {
		select {
		case <-c.Ready():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stop closes both transports and blocks until both connection pumps have
// exited.
func (l *Local) Stop() error {
	var errs *multierror.Error
	if err := l.cn.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := l.sn.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	l.g.Wait()
	return errs.ErrorOrNil()
}

// Loop accepts connections from lst and runs a server connection for each
// one in a goroutine. Loop continues until lst closes or ctx ends.
//
// When ctx terminates, the listener is closed and running connections are
// torn down. When lst closes, the loop waits for running connections to
// exit before returning.
func Loop(ctx context.Context, lst net.Listener, newConn func(t rtmp.Transport) *rtmp.Conn) error {
	g := taskgroup.New(nil)

	// A net.Listener does not obey a context, so simulate it by closing the
	// listener if ctx ends. The ok channel allows the context watcher to
	// clean up when we return before ctx ends.
	ok := make(chan struct{})
	defer close(ok)
	taskgroup.Go(func() error {
		select {
		case <-ctx.Done():
			lst.Close()
		case <-ok:
			// release the watcher
		}
		return nil
	})

	var errs *multierror.Error
	for {
		nc, err := lst.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				errs = multierror.Append(errs, err)
			}
			g.Wait()
			return errs.ErrorOrNil()
		}

		g.Go(func() error {
			conn := newConn(channel.IO(nc))
			if err := conn.Connected(); err != nil {
				nc.Close()
				return nil
			}
			conn.ConnectionLost(channel.Pump(nc, conn))
			nc.Close()
			return nil
		})
	}
}
