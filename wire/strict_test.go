// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package wire

import "testing"

func TestValidateRequestHeader(t *testing.T) {
	id := NewRequestID()
	tests := []struct {
		name    string
		flags   Flags
		wantErr bool
	}{
		{"begin only", FlagBegin, false},
		{"begin+end", FlagBegin | FlagEndOfRequest, false},
		{"reserved bit", 1 << 7, true},
		{"error flag on request", FlagError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequestHeader(Header{RequestID: id, Flags: tt.flags})
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequestHeader(%08b) error = %v, wantErr %v", tt.flags, err, tt.wantErr)
			}
		})
	}
}

func TestValidateResponseHeader(t *testing.T) {
	id := NewRequestID()
	tests := []struct {
		name    string
		flags   Flags
		wantErr bool
	}{
		{"begin+end+error", FlagBegin | FlagEndOfResponse | FlagError, false},
		{"reserved bit", 1 << 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResponseHeader(Header{RequestID: id, Flags: tt.flags})
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateResponseHeader(%08b) error = %v, wantErr %v", tt.flags, err, tt.wantErr)
			}
		})
	}
}
