// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"io"
	"sync"

	"github.com/harpcgo/harpc/transport"
	"github.com/harpcgo/harpc/wire"
)

// fakeConn is an in-process transport.IncomingConnection double: tests feed
// it frames as if a peer sent them (via push) and observe what the
// connection task writes back (by reading out).
type fakeConn struct {
	in  chan *wire.Request
	out chan *wire.Response

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan *wire.Request, 64),
		out:    make(chan *wire.Response, 64),
		closed: make(chan struct{}),
	}
}

// push simulates the peer sending req.
func (c *fakeConn) push(req *wire.Request) { c.in <- req }

// hangup simulates the peer disconnecting: subsequent Next calls return
// io.EOF.
func (c *fakeConn) hangup() { close(c.in) }

// Send implements transport.ResponseSink.
func (c *fakeConn) Send(ctx context.Context, r *wire.Response) error {
	select {
	case c.out <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements transport.ResponseSink.
func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Next implements transport.RequestStream.
func (c *fakeConn) Next(ctx context.Context) (*wire.Request, error) {
	select {
	case req, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return req, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fakeTransport publishes pre-built IncomingConnections on demand; tests
// call accept to simulate a new peer connecting.
type fakeTransport struct {
	mu  sync.Mutex
	out chan transport.IncomingConnection
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{out: make(chan transport.IncomingConnection, 8)}
}

func (f *fakeTransport) Listen(ctx context.Context, addr string) (<-chan transport.IncomingConnection, error) {
	return f.out, nil
}

func (f *fakeTransport) accept(peer wire.PeerID) *fakeConn {
	conn := newFakeConn()
	f.out <- transport.IncomingConnection{Peer: peer, Sink: conn, Stream: conn}
	return conn
}
