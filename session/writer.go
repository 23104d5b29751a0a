// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"sync"

	"github.com/harpcgo/harpc/wire"
)

// maxResponseFramePayload bounds how many bytes Flush packs into a single
// Response frame; a Push larger than this is split across frames. This is
// purely a batching granularity, not the payload-size enforcement spec §1
// names as a non-goal — there is no rejection here, only splitting.
const maxResponseFramePayload = 32 << 10 // 32 KiB

// ResponseWriter re-frames application-produced bytes into Response
// messages on a connection's shared outbound channel (spec §4.5). All of a
// connection's transactions share the same destination channel; the
// connection's delegate task is the only consumer, serializing interleaved
// writers into one wire stream.
type ResponseWriter struct {
	id   wire.RequestID
	code *uint16
	out  chan<- *wire.Response

	mu        sync.Mutex
	buf       []byte
	sentFirst bool
	closed    bool
}

// NewResponseWriter returns a writer for a standard (non-error) response.
func NewResponseWriter(id wire.RequestID, out chan<- *wire.Response) *ResponseWriter {
	return &ResponseWriter{id: id, out: out}
}

// NewErrorWriter returns a writer whose frames carry the ERROR flag and the
// given code. Every frame it emits is a terminal error response (ERROR and
// END_OF_RESPONSE set); it does not stop a later Flush or Close from
// emitting another such frame, so callers typically Push once and Close.
func NewErrorWriter(id wire.RequestID, code uint16, out chan<- *wire.Response) *ResponseWriter {
	c := code
	return &ResponseWriter{id: id, code: &c, out: out}
}

// Push buffers bytes for the next Flush. It never blocks and never fails;
// Flush is where backpressure and errors surface.
func (w *ResponseWriter) Push(b []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, b...)
}

// Flush drains buffered bytes onto the shared outbound channel, splitting
// into multiple frames if necessary. It returns an error only when the
// channel's consumer is gone (ctx cancelled) — the caller must treat that
// as terminal, per spec §4.5.
func (w *ResponseWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	buf := w.buf
	w.buf = nil
	w.mu.Unlock()
	return w.flushChunks(ctx, buf, false)
}

// Close finalizes the writer: it flushes any buffered bytes and, if the
// terminal frame hasn't been sent yet, emits one (a zero-length frame if
// there was nothing buffered) with END_OF_RESPONSE set. Close is
// idempotent — a second call is a no-op — which is what makes it safe for
// both the application and transactionTask's cleanup to call it.
func (w *ResponseWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	buf := w.buf
	w.buf = nil
	w.mu.Unlock()
	return w.flushChunks(ctx, buf, true)
}

func (w *ResponseWriter) flushChunks(ctx context.Context, buf []byte, final bool) error {
	if len(buf) == 0 {
		if !final {
			return nil
		}
		return w.send(ctx, nil, true)
	}
	for len(buf) > 0 {
		n := len(buf)
		if n > maxResponseFramePayload {
			n = maxResponseFramePayload
		}
		chunk := buf[:n]
		buf = buf[n:]
		if err := w.send(ctx, chunk, final && len(buf) == 0); err != nil {
			return err
		}
	}
	return nil
}

func (w *ResponseWriter) send(ctx context.Context, body []byte, final bool) error {
	w.mu.Lock()
	first := !w.sentFirst
	w.sentFirst = true
	w.mu.Unlock()

	var resp *wire.Response
	if w.code != nil {
		resp = wire.NewErrorResponse(w.id, *w.code, body)
	} else {
		resp = wire.NewResponse(w.id, body, first, final)
	}

	select {
	case w.out <- resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
