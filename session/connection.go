// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/harpcgo/harpc/internal/godebug"
	"github.com/harpcgo/harpc/rpcerr"
	"github.com/harpcgo/harpc/transport"
	"github.com/harpcgo/harpc/wire"
)

// demuxTrace, set via HARPCGODEBUG=demuxtrace=1, logs every frame the
// demux loop routes. Off by default: at trace volume it would otherwise
// dominate a connection's log output.
var demuxTrace = godebug.Value("demuxtrace") == "1"

// connectionTask owns one accepted connection's duplex: it reads frames,
// routes them to transactions, and drains responses back out (spec §4.3).
type connectionTask struct {
	ctx    context.Context
	cancel context.CancelFunc

	peer wire.PeerID
	sid  ID

	stream transport.RequestStream
	sink   transport.ResponseSink

	encoder rpcerr.Encoder
	cfg     Config
	logger  *slog.Logger

	txOut         chan<- *Transaction
	releasePermit func()
}

func newConnectionTask(
	parentCtx context.Context,
	sid ID,
	ic transport.IncomingConnection,
	encoder rpcerr.Encoder,
	cfg Config,
	logger *slog.Logger,
	txOut chan<- *Transaction,
	releasePermit func(),
) *connectionTask {
	ctx, cancel := context.WithCancel(parentCtx)
	return &connectionTask{
		ctx: ctx, cancel: cancel,
		peer: ic.Peer, sid: sid,
		stream: ic.Stream, sink: ic.Sink,
		encoder: encoder, cfg: cfg, logger: logger,
		txOut: txOut, releasePermit: releasePermit,
	}
}

type frameRead struct {
	req *wire.Request
	err error
}

// run is the connection's full lifecycle: demux loop, then teardown. It
// returns only once every resource the connection acquired (map entries,
// frame channels, the delegate and GC goroutines, and finally the
// admission permit) has been released — I5.
func (c *connectionTask) run() {
	defer c.releasePermit()
	defer c.sink.Close()
	defer c.cancel()

	collection := newTransactionCollection()
	responseCh := make(chan *wire.Response, c.cfg.ResponseBufferSize)

	var txWG sync.WaitGroup
	var helperWG sync.WaitGroup

	delegateDone := make(chan error, 1)
	helperWG.Add(1)
	go func() {
		defer helperWG.Done()
		runDelegate(c.ctx, c.sink, responseCh, delegateDone)
	}()

	helperWG.Add(1)
	go func() {
		defer helperWG.Done()
		runGC(c.ctx, collection, c.cfg.GCInterval)
	}()

	reads := make(chan frameRead)
	go func() {
		for {
			req, err := c.stream.Next(c.ctx)
			select {
			case reads <- frameRead{req, err}:
			case <-c.ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	c.demux(collection, responseCh, &txWG, reads, delegateDone)

	// Teardown: cancel so every transaction task wakes from its select,
	// drain whatever is left in the map, then wait for all of them to exit
	// before it's safe to close the shared response channel.
	c.cancel()
	for _, e := range collection.removeAll() {
		close(e.frames)
	}
	txWG.Wait()
	close(responseCh)
	helperWG.Wait()
}

func (c *connectionTask) demux(
	collection *transactionCollection,
	responseCh chan *wire.Response,
	txWG *sync.WaitGroup,
	reads <-chan frameRead,
	delegateDone <-chan error,
) {
	// The loop returns as soon as either side hits a terminal condition:
	// the request stream exhausting is itself sufficient to
	// start teardown, since run's teardown phase cancels ctx, drains the
	// transaction map, and only then closes responseCh — which is what
	// lets the delegate (if still running) observe a clean close instead
	// of this loop waiting on it directly. Waiting for both conditions
	// here would deadlock: delegateDone only fires from responseCh
	// closing or ctx cancellation, both of which are teardown's job, not
	// demux's.
	pendingDelegate := delegateDone

	for {
		select {
		case r, ok := <-reads:
			switch {
			case !ok:
				return
			case r.err != nil:
				if !errors.Is(r.err, io.EOF) {
					c.logger.Warn("error reading frame", "peer", c.peer, "err", r.err)
				}
				return
			default:
				c.handleFrame(r.req, collection, responseCh, txWG)
			}
		case err, ok := <-pendingDelegate:
			if ok {
				pendingDelegate = nil
				if err != nil {
					c.logger.Warn("outbound sink failed, tearing down connection", "peer", c.peer, "err", err)
					c.cancel()
				}
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *connectionTask) handleFrame(req *wire.Request, collection *transactionCollection, responseCh chan *wire.Response, txWG *sync.WaitGroup) {
	id := req.Header.RequestID
	if demuxTrace {
		c.logger.Debug("demux: routing frame", "peer", c.peer, "request_id", id.String(), "begin", req.IsBegin(), "end_of_request", req.EndOfRequest())
	}
	if req.IsBegin() {
		c.handleBegin(req, id, collection, responseCh, txWG)
		return
	}

	entry, ok := collection.Get(id)
	if !ok {
		c.logger.Warn("rogue frame for unknown transaction", "peer", c.peer, "request_id", id.String())
		return
	}
	select {
	case entry.frames <- req:
	case <-entry.done:
		c.logger.Debug("dropping frame for an already-exited transaction", "peer", c.peer, "request_id", id.String())
	case <-c.ctx.Done():
		return
	}
	if req.EndOfRequest() {
		if removed, ok := collection.Remove(id); ok {
			close(removed.frames)
		}
	}
}

func (c *connectionTask) handleBegin(req *wire.Request, id wire.RequestID, collection *transactionCollection, responseCh chan *wire.Response, txWG *sync.WaitGroup) {
	if collection.Len() >= c.cfg.TransactionLimit {
		limitErr := &rpcerr.TransactionLimitReachedError{Limit: c.cfg.TransactionLimit}
		code, body := c.encoder.EncodeError(c.ctx, limitErr)
		select {
		case responseCh <- wire.NewErrorResponse(id, code, body):
		case <-c.ctx.Done():
		}
		return
	}

	frames := make(chan *wire.Request, c.cfg.ResponseBufferSize)
	writer := NewResponseWriter(id, responseCh)
	task := newTransactionTask(c.ctx, frames, c.cfg.ResponseBufferSize, writer)

	// Pre-seed the Begin frame itself; guaranteed to fit, the channel was
	// just allocated with at least one slot of capacity.
	frames <- req

	if old, replaced := collection.Insert(id, &txEntry{frames: frames, done: task.done}); replaced {
		close(old.frames)
	}

	txWG.Add(1)
	go func() {
		defer txWG.Done()
		task.run()
	}()

	tx := &Transaction{peer: c.peer, id: c.sid, reqID: id, reqs: task.reqs, writer: writer}
	select {
	case c.txOut <- tx:
	case <-c.ctx.Done():
		return
	}

	if req.EndOfRequest() {
		if removed, ok := collection.Remove(id); ok {
			close(removed.frames)
		}
	}
}
