// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harpcgo/harpc/rpcerr"
	"github.com/harpcgo/harpc/transport"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// supervisorTask accepts incoming connections and spawns one
// connectionTask per accepted duplex (spec §4.2).
type supervisorTask struct {
	cfg      Config
	encoder  rpcerr.Encoder
	logger   *slog.Logger
	registry *Registry
	events   *eventBus

	ids     idProducer
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

func newSupervisorTask(cfg Config, encoder rpcerr.Encoder, logger *slog.Logger, registry *Registry, events *eventBus) *supervisorTask {
	var limiter *rate.Limiter
	if cfg.AcceptRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst)
	}
	return &supervisorTask{
		cfg: cfg, encoder: encoder, logger: logger, registry: registry, events: events,
		sem: semaphore.NewWeighted(cfg.ConcurrentConnectionLimit), limiter: limiter,
	}
}

// run loop-accepts from incoming until ctx is cancelled or incoming closes,
// spawning a connectionTask per accepted connection. It returns once every
// spawned connectionTask has returned, and closes txOut as its final act —
// no transaction is ever sent on a channel the app has already seen closed.
func (s *supervisorTask) run(ctx context.Context, incoming <-chan transport.IncomingConnection, txOut chan *Transaction) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(txOut)
	}()

	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}
		// Admission before accept: acquiring the permit first, then pulling
		// from incoming, applies backpressure into the transport instead of
		// accepting and then dropping. This order is load-bearing (spec §9).
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}

		select {
		case ic, ok := <-incoming:
			if !ok {
				s.sem.Release(1)
				return
			}
			s.spawn(ctx, ic, txOut, &wg)
		case <-ctx.Done():
			s.sem.Release(1)
			return
		}
	}
}

func (s *supervisorTask) spawn(ctx context.Context, ic transport.IncomingConnection, txOut chan *Transaction, wg *sync.WaitGroup) {
	sid := s.ids.mint()
	s.registry.add(SessionInfo{ID: sid, Peer: ic.Peer, AcceptedAt: time.Now()})

	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { s.sem.Release(1) }) }

	conn := newConnectionTask(ctx, sid, ic, s.encoder, s.cfg, s.logger, txOut, release)

	wg.Add(1)
	go func() {
		defer wg.Done()
		conn.run()
		s.registry.remove(sid)
		s.events.publish(SessionDropped{ID: sid})
	}()
}
