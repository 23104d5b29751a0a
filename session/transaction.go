// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"

	"github.com/harpcgo/harpc/wire"
)

// Transaction is the application-visible handle for one request/response
// conversation, identified by a wire.RequestID (spec §3, §4.4).
type Transaction struct {
	peer   wire.PeerID
	id     ID
	reqID  wire.RequestID
	reqs   <-chan []byte
	writer *ResponseWriter
}

// Peer returns the remote peer that owns this transaction's connection.
func (t *Transaction) Peer() wire.PeerID { return t.peer }

// Session returns the id of the connection this transaction belongs to.
func (t *Transaction) Session() ID { return t.id }

// RequestID returns the wire request id identifying this transaction.
func (t *Transaction) RequestID() wire.RequestID { return t.reqID }

// Requests returns the finite, non-restartable sequence of request-body
// payloads for this transaction. It closes after the frame carrying
// END_OF_REQUEST has been delivered, or when the connection tears down, or
// on cancellation (I2).
func (t *Transaction) Requests() <-chan []byte { return t.reqs }

// Writer returns the ResponseWriter the application uses to produce this
// transaction's response frames.
func (t *Transaction) Writer() *ResponseWriter { return t.writer }

// transactionTask keeps a transaction's channels drained and closed
// correctly (spec §4.4). It is the only reader of frames (which the
// connection task closes) and the only writer of reqs; reqs and done are
// closed exactly once, on its own exit, which is what lets the garbage
// collector treat done as authoritative.
type transactionTask struct {
	ctx    context.Context
	frames chan *wire.Request
	reqs   chan []byte
	done   chan struct{}
	writer *ResponseWriter
}

func newTransactionTask(ctx context.Context, frames chan *wire.Request, reqBuffer int, writer *ResponseWriter) *transactionTask {
	return &transactionTask{
		ctx:    ctx,
		frames: frames,
		reqs:   make(chan []byte, reqBuffer),
		done:   make(chan struct{}),
		writer: writer,
	}
}

// run drains frames into reqs until frames closes (END_OF_REQUEST observed
// or the connection replaced/tore down this transaction), the request
// carries END_OF_REQUEST, or ctx is cancelled. On every exit path it closes
// reqs (I2) and done. The end of the request stream leaves the writer to the
// application, which finishes the response with Writer().Close; only when
// ctx has been cancelled does run make a best-effort Close of the writer
// itself, standing in for the source's drop-based finalization since Go has
// no destructors. A transaction whose application never calls Close on a
// live connection gets no END_OF_RESPONSE frame.
func (t *transactionTask) run() {
	defer close(t.done)
	defer close(t.reqs)
	defer func() {
		if t.ctx.Err() != nil {
			t.writer.Close(t.ctx)
		}
	}()

	for {
		select {
		case req, ok := <-t.frames:
			if !ok {
				return
			}
			select {
			case t.reqs <- req.Payload():
			case <-t.ctx.Done():
				return
			}
			if req.EndOfRequest() {
				return
			}
		case <-t.ctx.Done():
			return
		}
	}
}
