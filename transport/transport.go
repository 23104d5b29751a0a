// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transport defines the duplex-connection interfaces the session
// core consumes as its underlying transport multiplexer, an external
// collaborator per spec §1 and §6. The session core depends only on this
// package's interfaces; transport/tcp, transport/ws, and transport/http
// give them concrete, runnable bodies.
package transport

import (
	"context"

	"github.com/harpcgo/harpc/wire"
)

// Transport produces a stream of incoming connections for a listen
// address. Listen is called once per session.Layer.Listen call.
type Transport interface {
	Listen(ctx context.Context, addr string) (<-chan IncomingConnection, error)
}

// IncomingConnection is one accepted peer connection, already split into
// its request-reading and response-writing halves.
type IncomingConnection struct {
	Peer   wire.PeerID
	Sink   ResponseSink
	Stream RequestStream
}

// ResponseSink is the write half of a connection duplex: a Sink<Response>
// in the vocabulary of spec §1.
type ResponseSink interface {
	Send(ctx context.Context, r *wire.Response) error
	// Close releases any resources held by the sink. It is safe to call
	// more than once.
	Close() error
}

// RequestStream is the read half of a connection duplex: a
// Stream<Result<Request>> in the vocabulary of spec §1. Next returns
// (nil, io.EOF) once the peer has cleanly disconnected.
type RequestStream interface {
	Next(ctx context.Context) (*wire.Request, error)
}
