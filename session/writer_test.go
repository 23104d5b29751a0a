// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"testing"

	"github.com/harpcgo/harpc/wire"
)

func TestResponseWriterFlushThenClose(t *testing.T) {
	ctx := context.Background()
	id := wire.NewRequestID()
	out := make(chan *wire.Response, 4)
	w := NewResponseWriter(id, out)

	w.Push([]byte("hello"))
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	first := <-out
	if string(first.Body) != "hello" {
		t.Errorf("got body %q, want %q", first.Body, "hello")
	}
	if first.EndOfResponse() {
		t.Error("non-final Flush should not set END_OF_RESPONSE")
	}

	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	final := <-out
	if len(final.Body) != 0 {
		t.Errorf("got non-empty terminal body %q", final.Body)
	}
	if !final.EndOfResponse() {
		t.Error("Close should emit a frame with END_OF_RESPONSE set")
	}
}

func TestResponseWriterCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	out := make(chan *wire.Response, 4)
	w := NewResponseWriter(wire.NewRequestID(), out)

	if err := w.Close(ctx); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	<-out

	if err := w.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	select {
	case resp := <-out:
		t.Fatalf("second Close produced a frame: %+v", resp)
	default:
	}
}

func TestResponseWriterSplitsLargePush(t *testing.T) {
	ctx := context.Background()
	out := make(chan *wire.Response, 8)
	w := NewResponseWriter(wire.NewRequestID(), out)

	big := make([]byte, maxResponseFramePayload+10)
	for i := range big {
		big[i] = byte(i)
	}
	w.Push(big)
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var reassembled []byte
	for i := 0; i < 2; i++ {
		resp := <-out
		reassembled = append(reassembled, resp.Body...)
	}
	if len(reassembled) != len(big) {
		t.Fatalf("got %d reassembled bytes, want %d", len(reassembled), len(big))
	}
	select {
	case resp := <-out:
		t.Fatalf("unexpected extra frame: %+v", resp)
	default:
	}
}

func TestErrorWriterEmitsSingleErrorFrame(t *testing.T) {
	ctx := context.Background()
	id := wire.NewRequestID()
	out := make(chan *wire.Response, 2)
	w := NewErrorWriter(id, 7, out)

	w.Push([]byte("boom"))
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	resp := <-out
	if !resp.IsError() || resp.Code == nil || *resp.Code != 7 {
		t.Fatalf("got %+v, want an error frame with code 7", resp)
	}
	if !resp.EndOfResponse() {
		t.Error("error responses must be terminal")
	}
}

func TestResponseWriterFlushReturnsErrOnCancelledContext(t *testing.T) {
	out := make(chan *wire.Response) // unbuffered, never drained
	w := NewResponseWriter(wire.NewRequestID(), out)
	w.Push([]byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Flush(ctx); err == nil {
		t.Fatal("expected Flush to fail once ctx is already cancelled and out is unread")
	}
}
