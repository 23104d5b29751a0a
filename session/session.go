// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package session implements the server-side session layer of a
// peer-to-peer RPC framework: it demultiplexes framed requests from a
// transport into transactions, enforces concurrency and flow-control
// limits, garbage-collects abandoned transaction state, and propagates
// cancellation across the supervisor/connection/transaction task tree.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harpcgo/harpc/rpcerr"
	"github.com/harpcgo/harpc/transport"
)

// Layer is the public entry point: it owns configuration, the error
// encoder, the event bus, and hands out transaction streams per Listen
// call (spec §4.1).
type Layer struct {
	cfg       Config
	transport transport.Transport
	encoder   rpcerr.Encoder
	logger    *slog.Logger

	registry *Registry
	events   *eventBus
}

// NewLayer validates cfg and returns a Layer ready to Listen. A nil logger
// defaults to slog.Default(), matching the teacher's convention of never
// silently discarding log output.
func NewLayer(cfg Config, tr transport.Transport, encoder rpcerr.Encoder, logger *slog.Logger) (*Layer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session: invalid config: %w", err)
	}
	if tr == nil {
		return nil, fmt.Errorf("session: transport must not be nil")
	}
	if encoder == nil {
		return nil, fmt.Errorf("session: encoder must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Layer{
		cfg: cfg, transport: tr, encoder: encoder, logger: logger,
		registry: newRegistry(), events: newEventBus(cfg.EventBufferSize),
	}, nil
}

// Events returns a new subscriber channel for this Layer's event bus. Each
// call gets its own channel; a slow consumer loses events rather than
// blocking publication.
func (l *Layer) Events() <-chan Event { return l.events.subscribe() }

// Sessions returns a snapshot of every currently live session.
func (l *Layer) Sessions() []SessionInfo { return l.registry.Sessions() }

// Listen binds addr via the transport and spawns a supervisor that accepts
// connections until ctx is cancelled. The returned channel yields one
// *Transaction per admitted request and is closed once every connection
// the supervisor spawned has fully torn down.
func (l *Layer) Listen(ctx context.Context, addr string) (<-chan *Transaction, error) {
	incoming, err := l.transport.Listen(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("session: listen %s: %w", addr, err)
	}

	txOut := make(chan *Transaction, l.cfg.TransactionBufferSize)
	sup := newSupervisorTask(l.cfg, l.encoder, l.logger, l.registry, l.events)
	go sup.run(ctx, incoming, txOut)
	return txOut, nil
}
