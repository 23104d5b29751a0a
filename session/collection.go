// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"sync"

	"github.com/harpcgo/harpc/wire"
)

// txEntry is one transaction's slot in a transactionCollection. frames is
// the connection's send side of the channel the transaction task reads
// from; done is closed by the transaction task itself when it exits.
//
// Go channels have no way for a sender to ask "has the receiver gone away",
// the check the source's scc.HashIndex-backed map makes via
// mpsc::Sender::is_closed. done is the substitute: it is the one thing the
// transaction task itself is authoritative about, so the garbage collector
// polls it instead of frames.
type txEntry struct {
	frames chan *wire.Request
	done   chan struct{}
}

// transactionCollection is the per-connection map described in spec §3: a
// concurrent RequestId -> frame-sender map. Ownership is single-connection
// (unlike scc::HashIndex, which is built for cross-shard sharing); a plain
// RWMutex is sufficient because its only users are the connection's demux
// loop (lookups, inserts and removals) and the garbage collector, whose
// RemoveClosed sweep takes the write lock.
type transactionCollection struct {
	mu      sync.RWMutex
	entries map[wire.RequestID]*txEntry
}

func newTransactionCollection() *transactionCollection {
	return &transactionCollection{entries: make(map[wire.RequestID]*txEntry)}
}

// Len reports the number of live entries, used for TransactionLimit
// admission checks (I4).
func (c *transactionCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Insert adds entry under id, replacing any existing entry (I6: a Begin
// for an already-open RequestId replaces it; the caller is responsible for
// closing the returned old entry's frames channel).
func (c *transactionCollection) Insert(id wire.RequestID, entry *txEntry) (old *txEntry, replaced bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, replaced = c.entries[id]
	c.entries[id] = entry
	return old, replaced
}

// Get looks up the entry for id.
func (c *transactionCollection) Get(id wire.RequestID) (*txEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// Remove deletes the entry for id, if present. The caller closes the
// returned entry's frames channel (not done here, so Remove itself never
// blocks or panics on a repeat close).
func (c *transactionCollection) Remove(id wire.RequestID) (*txEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if ok {
		delete(c.entries, id)
	}
	return e, ok
}

// RemoveClosed sweeps entries whose transaction task has already exited
// (done closed) and removes them, returning the count. This is the garbage
// collector's fast path for transactions abandoned without an
// END_OF_REQUEST frame ever arriving.
func (c *transactionCollection) RemoveClosed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.entries {
		select {
		case <-e.done:
			delete(c.entries, id)
			removed++
		default:
		}
	}
	return removed
}

// removeAll drains every entry for use during connection teardown. The
// caller is responsible for closing each returned entry's frames channel
// and waiting for its transaction task to observe the close.
func (c *transactionCollection) removeAll() []*txEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := make([]*txEntry, 0, len(c.entries))
	for id, e := range c.entries {
		all = append(all, e)
		delete(c.entries, id)
	}
	return all
}
