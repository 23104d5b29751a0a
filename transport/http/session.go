// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package http

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/harpcgo/harpc/wire"
)

// session implements both transport.ResponseSink and transport.RequestStream
// for a single HTTP-transport peer: POSTs land decoded frames on inbox,
// and the SSE handler drains outbox. It plays the role the teacher's
// mcp/streamable.go gives its per-session *conn, generalized from a
// JSON-RPC message queue to this module's binary wire.Request/wire.Response.
type session struct {
	id   string
	peer wire.PeerID

	inbox  chan *wire.Request
	outbox chan *wire.Response

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id string, peer wire.PeerID) *session {
	return &session{
		id:     id,
		peer:   peer,
		inbox:  make(chan *wire.Request, 64),
		outbox: make(chan *wire.Response, 64),
		done:   make(chan struct{}),
	}
}

var errSessionClosed = errors.New("http: session closed")

// deliver hands a decoded request frame from a POST body to whoever is
// reading this session's transport.RequestStream.
func (s *session) deliver(ctx context.Context, req *wire.Request) error {
	select {
	case s.inbox <- req:
		return nil
	case <-s.done:
		return errSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next implements transport.RequestStream. It returns io.EOF once the
// session has been closed.
func (s *session) Next(ctx context.Context) (*wire.Request, error) {
	select {
	case req := <-s.inbox:
		return req, nil
	case <-s.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send implements transport.ResponseSink.
func (s *session) Send(ctx context.Context, resp *wire.Response) error {
	select {
	case s.outbox <- resp:
		return nil
	case <-s.done:
		return errSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements transport.ResponseSink.
func (s *session) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// streamResponses drains outbox onto an SSE stream, one "data:" line per
// response frame, base64-encoded since the wire format is binary and SSE
// payloads are text. It returns once the request context is cancelled or the
// session is closed.
func (s *session) streamResponses(ctx context.Context, w http.ResponseWriter, flusher http.Flusher) {
	for {
		select {
		case resp := <-s.outbox:
			data, err := wire.EncodeResponse(resp)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", base64.StdEncoding.EncodeToString(data))
			flusher.Flush()
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
