// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"

	"github.com/harpcgo/harpc/transport"
	"github.com/harpcgo/harpc/wire"
)

// runDelegate drains in onto sink until in is closed (every writer has
// stopped sending and the connection task closed it) or ctx is cancelled.
// It reports the first send error, if any, on done — the connection task
// treats that as connection-fatal (spec §7, Open Question (b)).
//
// All of a connection's transaction writers share in; this is the "shared
// outbound channel as serialization point" design note from spec §9,
// translated directly: one consumer owning the sink avoids lock contention
// between concurrent writers.
func runDelegate(ctx context.Context, sink transport.ResponseSink, in <-chan *wire.Response, done chan<- error) {
	for {
		select {
		case resp, ok := <-in:
			if !ok {
				done <- nil
				return
			}
			if err := sink.Send(ctx, resp); err != nil {
				done <- err
				return
			}
		case <-ctx.Done():
			done <- ctx.Err()
			return
		}
	}
}
