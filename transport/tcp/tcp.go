// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package tcp is the minimal, dependency-free reference implementation of
// transport.Transport: plain TCP sockets framed with wire.Framer.
package tcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/harpcgo/harpc/transport"
	"github.com/harpcgo/harpc/wire"
)

// Transport accepts raw TCP connections and frames them with the binary
// wire format.
type Transport struct {
	Logger *slog.Logger
}

// Listen implements transport.Transport.
func (t *Transport) Listen(ctx context.Context, addr string) (<-chan transport.IncomingConnection, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp: listen on %s: %w", addr, err)
	}

	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := make(chan transport.IncomingConnection)
	go func() {
		defer close(out)
		defer ln.Close()

		go func() {
			<-ctx.Done()
			ln.Close()
		}()

		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("tcp: accept failed", "error", err)
				return
			}
			peer := wire.PeerID(conn.RemoteAddr().String())
			sink, stream := newFramedConn(conn)
			select {
			case out <- transport.IncomingConnection{Peer: peer, Sink: sink, Stream: stream}:
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	return out, nil
}

// framedConn adapts a wire.Framer pair over a net.Conn into
// transport.ResponseSink and transport.RequestStream.
type framedConn struct {
	conn   net.Conn
	writer wire.ResponseWriter
	reader wire.RequestReader
}

func newFramedConn(conn net.Conn) (transport.ResponseSink, transport.RequestStream) {
	writer, reader := wire.Framer{}.NewServerSide(conn)
	fc := &framedConn{conn: conn, writer: writer, reader: reader}
	return fc, fc
}

func (fc *framedConn) Send(ctx context.Context, r *wire.Response) error {
	return fc.writer.Write(ctx, r)
}

func (fc *framedConn) Close() error {
	return fc.conn.Close()
}

func (fc *framedConn) Next(ctx context.Context) (*wire.Request, error) {
	req, err := fc.reader.Read(ctx)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("tcp: reading request: %w", err)
	}
	return req, nil
}
