// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"strconv"
	"sync/atomic"
)

// ID is a monotone, non-wrapping identifier minted by the supervisor for
// each accepted connection. It is used only for observability and event
// correlation; the demux key for frames is wire.RequestID, not ID.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// idProducer mints monotone session ids. The zero value is ready to use and
// starts counting from 1.
type idProducer struct {
	next atomic.Uint64
}

func (p *idProducer) mint() ID {
	return ID(p.next.Add(1))
}
