// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"sync"
	"time"

	"github.com/harpcgo/harpc/wire"
)

// SessionInfo is a snapshot of one live connection, for operational
// introspection distinct from the TransactionCollection used for demuxing.
type SessionInfo struct {
	ID         ID
	Peer       wire.PeerID
	AcceptedAt time.Time
}

// Registry tracks live sessions. It has no equivalent in the Rust source;
// it generalizes the teacher's mcp.MemoryServerSessionStateStore
// (RWMutex-guarded map, read/write/delete) from session *state* persistence
// to session *presence* tracking, because spec §9(c) leaves the event bus
// "deliberately extensible" and the teacher treats this kind of
// observability as ambient rather than optional.
type Registry struct {
	mu       sync.RWMutex
	sessions map[ID]SessionInfo
}

func newRegistry() *Registry {
	return &Registry{sessions: make(map[ID]SessionInfo)}
}

func (r *Registry) add(info SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[info.ID] = info
}

func (r *Registry) remove(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Sessions returns a snapshot of every currently live session.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, info := range r.sessions {
		out = append(out, info)
	}
	return out
}
