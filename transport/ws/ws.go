// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package ws adapts the teacher's MCP WebSocket transport
// (mcp.WebSocketServerTransport / mcp.WebSocketClientTransport) from
// newline-delimited JSON-RPC messages to this module's binary
// wire.Request/wire.Response frames, sent as websocket.BinaryMessage.
package ws

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/harpcgo/harpc/transport"
	"github.com/harpcgo/harpc/wire"
)

const subprotocol = "harpc"

// ServerTransport upgrades incoming HTTP requests to WebSocket connections
// and surfaces each as a transport.IncomingConnection. It implements
// http.Handler directly, the same shape as the teacher's
// WebSocketServerTransport.
type ServerTransport struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	out  chan transport.IncomingConnection
	done chan struct{}
}

// NewServerTransport returns a ServerTransport ready to be registered with
// an http.Server and then passed to Listen.
func NewServerTransport() *ServerTransport {
	return &ServerTransport{
		upgrader: websocket.Upgrader{
			Subprotocols: []string{subprotocol},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
	}
}

// Listen implements transport.Transport. Unlike transport/tcp, binding the
// socket is the caller's responsibility (via net/http.Server.Serve); Listen
// here only opens the channel that ServeHTTP feeds as upgrades land.
func (s *ServerTransport) Listen(ctx context.Context, _ string) (<-chan transport.IncomingConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		return nil, fmt.Errorf("ws: Listen called twice on the same ServerTransport")
	}
	s.out = make(chan transport.IncomingConnection)
	s.done = make(chan struct{})
	go func() {
		<-ctx.Done()
		close(s.done)
	}()
	return s.out, nil
}

// ServeHTTP upgrades the request to a WebSocket connection and publishes it
// to the channel returned by Listen.
func (s *ServerTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, fmt.Sprintf("websocket upgrade failed: %v", err), http.StatusBadRequest)
		return
	}

	peer := wire.PeerID(r.RemoteAddr)
	fc := newFramedConn(conn, peer)

	s.mu.Lock()
	out, done := s.out, s.done
	s.mu.Unlock()
	if out == nil {
		conn.Close()
		return
	}

	select {
	case out <- transport.IncomingConnection{Peer: peer, Sink: fc, Stream: fc}:
	case <-done:
		conn.Close()
	}
}

// framedConn implements both transport.ResponseSink and
// transport.RequestStream over a single *websocket.Conn, matching the
// teacher's websocketConn: a write mutex (gorilla connections are not safe
// for concurrent writers) and a close-once guard.
type framedConn struct {
	conn      *websocket.Conn
	peer      wire.PeerID
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newFramedConn(conn *websocket.Conn, peer wire.PeerID) *framedConn {
	return &framedConn{conn: conn, peer: peer}
}

// Send implements transport.ResponseSink.
func (fc *framedConn) Send(ctx context.Context, r *wire.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := wire.EncodeResponse(r)
	if err != nil {
		return fmt.Errorf("ws: encoding response: %w", err)
	}

	fc.writeMu.Lock()
	defer fc.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		fc.conn.SetWriteDeadline(deadline)
	}
	if err := fc.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("ws: write: %w", err)
	}
	return nil
}

// Close implements transport.ResponseSink.
func (fc *framedConn) Close() error {
	var err error
	fc.closeOnce.Do(func() {
		err = fc.conn.Close()
	})
	return err
}

// Next implements transport.RequestStream. gorilla's ReadMessage has no
// context parameter, so cancellation is wired the same way the teacher's
// websocketConn.Read does it: a watcher goroutine closes the underlying
// connection when ctx is done, which unblocks the pending read with an
// error.
func (fc *framedConn) Next(ctx context.Context) (*wire.Request, error) {
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			fc.conn.Close()
		case <-watchDone:
		}
	}()

	msgType, data, err := fc.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ws: read: %w", err)
	}
	if msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("ws: unexpected message type %d (want binary)", msgType)
	}

	req, err := wire.DecodeRequest(data)
	if err != nil {
		return nil, fmt.Errorf("ws: decoding request: %w", err)
	}
	return req, nil
}
