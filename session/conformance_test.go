// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/harpcgo/harpc/rpcerr"
	"github.com/harpcgo/harpc/wire"
	"golang.org/x/tools/txtar"
)

// loadScenario parses a boundary-scenario fixture and returns its named
// sections as strings, trimmed of trailing newlines, in the style of the
// teacher's txtar-scripted conformance tests (mcp/conformance_test.go).
func loadScenario(t *testing.T, name string) map[string]string {
	t.Helper()
	ar, err := txtar.ParseFile("testdata/" + name)
	if err != nil {
		t.Fatalf("parsing %s: %v", name, err)
	}
	sections := make(map[string]string, len(ar.Files))
	for _, f := range ar.Files {
		sections[f.Name] = strings.TrimRight(string(f.Data), "\n")
	}
	return sections
}

func newTestLayer(t *testing.T, cfg Config) (*Layer, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	layer, err := NewLayer(cfg, ft, rpcerr.JSONEncoder{}, nil)
	if err != nil {
		t.Fatalf("NewLayer: %v", err)
	}
	return layer, ft
}

// Scenario 1: a single Begin/END_OF_REQUEST transaction; the app echoes a
// fixed reply and drops the writer.
func TestScenario1_Roundtrip(t *testing.T) {
	fx := loadScenario(t, "scenario1_roundtrip.txtar")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	layer, ft := newTestLayer(t, Config{})
	txs, err := layer.Listen(ctx, "")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	conn := ft.accept("peer-1")

	id := wire.NewRequestID()
	conn.push(wire.NewBeginRequest(id, []byte(fx["request"]), true))

	tx := <-txs
	payload, ok := <-tx.Requests()
	if !ok {
		t.Fatal("expected one request payload")
	}
	if string(payload) != fx["request"] {
		t.Errorf("got payload %q, want %q", payload, fx["request"])
	}
	if _, ok := <-tx.Requests(); ok {
		t.Error("expected request stream to close after END_OF_REQUEST")
	}

	tx.Writer().Push([]byte(fx["response"]))
	if err := tx.Writer().Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	resp := <-conn.out
	if string(resp.Body) != fx["response"] {
		t.Errorf("got response body %q, want %q", resp.Body, fx["response"])
	}
	if !resp.EndOfResponse() {
		t.Error("expected END_OF_RESPONSE on the only response frame")
	}
}

// Scenario 2: the (limit+1)th concurrent Begin on a connection is refused
// with TransactionLimitReached; the others proceed normally.
func TestScenario2_TransactionLimit(t *testing.T) {
	fx := loadScenario(t, "scenario2_transaction_limit.txtar")
	var limit, attempts int
	fmt.Sscanf(fx["limit"], "%d", &limit)
	fmt.Sscanf(fx["attempts"], "%d", &attempts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	layer, ft := newTestLayer(t, Config{TransactionLimit: limit})
	txs, err := layer.Listen(ctx, "")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	conn := ft.accept("peer-1")

	ids := make([]wire.RequestID, attempts)
	for i := range ids {
		ids[i] = wire.NewRequestID()
		conn.push(wire.NewBeginRequest(ids[i], []byte("open"), false))
	}

	admitted := 0
	var rejectedCode *uint16
	for i := 0; i < attempts; i++ {
		select {
		case <-txs:
			admitted++
		case resp := <-conn.out:
			if !resp.IsError() {
				t.Fatalf("unexpected non-error response: %+v", resp)
			}
			rejectedCode = resp.Code
		case <-ctx.Done():
			t.Fatal("timed out waiting for admission outcomes")
		}
	}

	if admitted != limit {
		t.Errorf("got %d admitted transactions, want %d", admitted, limit)
	}
	if rejectedCode == nil {
		t.Fatal("expected exactly one rejection, got none")
	}
	if *rejectedCode != uint16(rpcerr.CodeTransactionLimitReached) {
		t.Errorf("got code %d, want %d", *rejectedCode, rpcerr.CodeTransactionLimitReached)
	}
}

// Scenario 3: a Frame with no preceding Begin is dropped; the connection
// stays healthy and can still admit a fresh transaction afterward.
func TestScenario3_RogueFrame(t *testing.T) {
	fx := loadScenario(t, "scenario3_rogue_frame.txtar")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	layer, ft := newTestLayer(t, Config{})
	txs, err := layer.Listen(ctx, "")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	conn := ft.accept("peer-1")

	conn.push(wire.NewFrameRequest(wire.NewRequestID(), []byte(fx["payload"]), true))

	id := wire.NewRequestID()
	conn.push(wire.NewBeginRequest(id, []byte("still healthy"), true))

	select {
	case tx := <-txs:
		if tx.RequestID() != id {
			t.Errorf("got transaction for %s, want %s", tx.RequestID(), id)
		}
	case <-ctx.Done():
		t.Fatal("connection did not admit a transaction after the rogue frame")
	}
}

// Scenario 4: a peer opens a transaction then disconnects before
// END_OF_REQUEST; after the Begin payload, the abandoned transaction's
// request stream closes, which its task does as it exits.
func TestScenario4_AbandonedTransactionClosesOnDisconnect(t *testing.T) {
	fx := loadScenario(t, "scenario4_abandoned_gc.txtar")
	gcInterval, err := time.ParseDuration(fx["gc_interval"])
	if err != nil {
		t.Fatalf("parsing gc_interval: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	layer, ft := newTestLayer(t, Config{GCInterval: gcInterval})
	txs, err := layer.Listen(ctx, "")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	conn := ft.accept("peer-1")

	id := wire.NewRequestID()
	conn.push(wire.NewBeginRequest(id, []byte(fx["payload"]), false))
	tx := <-txs
	if tx.RequestID() != id {
		t.Fatalf("got transaction for %s, want %s", tx.RequestID(), id)
	}
	if payload, ok := <-tx.Requests(); !ok || string(payload) != fx["payload"] {
		t.Fatalf("got Begin payload %q (ok=%v), want %q", payload, ok, fx["payload"])
	}

	conn.hangup()

	select {
	case _, ok := <-tx.Requests():
		if ok {
			t.Fatal("expected no further request payloads before disconnect-driven close")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the abandoned transaction's request stream to close")
	}
}

// Scenario 5: the consumer dropping Listen's context cancels the
// supervisor; the transaction stream closes and a later Listen succeeds.
func TestScenario5_ListenCancellationTearsDownCleanly(t *testing.T) {
	layer, ft := newTestLayer(t, Config{})

	listenCtx, listenCancel := context.WithCancel(context.Background())
	txs, err := layer.Listen(listenCtx, "")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	conn := ft.accept("peer-1")
	_ = conn

	listenCancel()

	select {
	case _, ok := <-txs:
		if ok {
			t.Fatal("expected the transaction stream to close after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the transaction stream to close")
	}

	secondCtx, secondCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer secondCancel()
	if _, err := layer.Listen(secondCtx, ""); err != nil {
		t.Fatalf("second Listen call should succeed, got: %v", err)
	}
}

// Scenario 6: a second Begin for an already-open RequestId replaces the
// first transaction; the first's request stream closes, the second
// proceeds untouched.
func TestScenario6_BeginReplace(t *testing.T) {
	fx := loadScenario(t, "scenario6_begin_replace.txtar")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	layer, ft := newTestLayer(t, Config{})
	txs, err := layer.Listen(ctx, "")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	conn := ft.accept("peer-1")

	id := wire.NewRequestID()
	conn.push(wire.NewBeginRequest(id, []byte(fx["first"]), false))
	first := <-txs
	if payload, ok := <-first.Requests(); !ok || string(payload) != fx["first"] {
		t.Fatalf("got first Begin payload %q (ok=%v), want %q", payload, ok, fx["first"])
	}

	conn.push(wire.NewBeginRequest(id, []byte(fx["second"]), true))
	second := <-txs

	select {
	case _, ok := <-first.Requests():
		if ok {
			t.Error("expected the replaced transaction's request stream to close")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the replaced transaction to close")
	}

	payload, ok := <-second.Requests()
	if !ok {
		t.Fatal("expected the replacing transaction to yield its payload")
	}
	if string(payload) != fx["second"] {
		t.Errorf("got payload %q, want %q", payload, fx["second"])
	}
}
