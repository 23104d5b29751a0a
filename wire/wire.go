// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package wire defines the bit-exact on-wire framing shared by requests and
// responses: a fixed header carrying a 128-bit request id and an 8-bit flag
// bitfield, plus the per-body-kind payloads described by the session layer.
//
// This package is the session core's "wire codec" external collaborator,
// given one concrete, binary implementation. The session core never reaches
// into these types beyond the Header/Flags/RequestID it needs to demux.
package wire

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// RequestID is a 128-bit identifier supplied by the peer in every frame
// header. It is globally unique within a connection and used as the demux
// key by the connection task.
type RequestID [16]byte

// NewRequestID returns a random RequestID, for use by clients and tests that
// need to mint fresh ids.
func NewRequestID() RequestID {
	var id RequestID
	// crypto/rand.Read never returns a short read or non-nil error together
	// for a fixed-size buffer on supported platforms.
	if _, err := rand.Read(id[:]); err != nil {
		panic(fmt.Sprintf("wire: unable to mint request id: %v", err))
	}
	return id
}

func (id RequestID) String() string {
	return hex.EncodeToString(id[:])
}

// Flags is the 8-bit bitfield present in every frame header.
type Flags uint8

const (
	// FlagBegin marks the first frame of a transaction on the request side
	// (a Begin body) and, symmetrically, the first frame of a response; the
	// same bit is reused by both directions per the wire format in spec §6.
	FlagBegin Flags = 1 << 0
	// FlagEndOfRequest marks the final frame of a request; FlagEndOfResponse
	// is the identical bit on a Response header.
	FlagEndOfRequest  Flags = 1 << 1
	FlagEndOfResponse Flags = 1 << 1
	// FlagError marks a Response carrying an error code immediately after
	// the header.
	FlagError Flags = 1 << 2

	knownFlags = FlagBegin | FlagEndOfRequest | FlagError
)

// Has reports whether f has every bit in want set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// Header is the fixed portion shared by every request and response frame.
type Header struct {
	RequestID RequestID
	Flags     Flags
}

// PeerID identifies the remote side of a connection, as assigned by the
// transport layer (e.g. a libp2p peer id, a TLS certificate fingerprint, or
// simply the dialed network address for the plain TCP transport). The
// session core treats it as an opaque, comparable value.
type PeerID string
