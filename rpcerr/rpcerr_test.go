// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package rpcerr

import (
	"context"
	"fmt"
	"testing"
)

func TestJSONEncoderMapsKnownErrors(t *testing.T) {
	enc := JSONEncoder{}

	code, body := enc.EncodeError(context.Background(), &TransactionLimitReachedError{Limit: 64})
	if code != uint16(CodeTransactionLimitReached) {
		t.Errorf("code = %d, want %d", code, CodeTransactionLimitReached)
	}
	if len(body) == 0 {
		t.Error("expected a non-empty encoded body")
	}

	// Wrapped errors still map via errors.As.
	wrapped := fmt.Errorf("admission: %w", &TransactionLimitReachedError{Limit: 64})
	code, _ = enc.EncodeError(context.Background(), wrapped)
	if code != uint16(CodeTransactionLimitReached) {
		t.Errorf("wrapped code = %d, want %d", code, CodeTransactionLimitReached)
	}

	code, _ = enc.EncodeError(context.Background(), fmt.Errorf("boom"))
	if code != uint16(CodeInternal) {
		t.Errorf("default code = %d, want %d", code, CodeInternal)
	}
}
