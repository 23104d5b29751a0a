// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"time"
)

// runGC periodically sweeps c for transactions whose task has already
// exited without their map entry having been removed on the
// END_OF_REQUEST fast path — the case of a peer that opens a transaction
// and vanishes mid-request (spec §4.3, §4.6, boundary scenario 4). It
// returns when ctx is cancelled.
func runGC(ctx context.Context, c *transactionCollection, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.RemoveClosed()
		case <-ctx.Done():
			return
		}
	}
}
