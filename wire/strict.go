// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package wire

import "fmt"

// ValidateRequestHeader rejects headers that set reserved flag bits or
// combine flags the request side never combines (e.g. a request is never
// tagged FlagError; that bit is response-only). This is the binary framing's
// analogue of the teacher's StrictUnmarshal: both exist to refuse anything
// that isn't exactly the wire format, rather than silently accepting and
// reinterpreting bytes the sender didn't intend.
func ValidateRequestHeader(h Header) error {
	if h.Flags&^knownFlags != 0 {
		return fmt.Errorf("wire: request %s sets reserved flag bits %08b", h.RequestID, h.Flags&^knownFlags)
	}
	if h.Flags.Has(FlagError) {
		return fmt.Errorf("wire: request %s sets response-only FlagError", h.RequestID)
	}
	return nil
}

// ValidateResponseHeader rejects response headers that set reserved bits.
func ValidateResponseHeader(h Header) error {
	if h.Flags&^knownFlags != 0 {
		return fmt.Errorf("wire: response %s sets reserved flag bits %08b", h.RequestID, h.Flags&^knownFlags)
	}
	return nil
}
