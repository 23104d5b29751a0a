// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/segmentio/encoding/json"
)

// Config holds the session core's configuration (spec §6). Every field has
// a documented zero value that Validate fills in before first use, the
// same "validate at construction" shape the teacher applies to its own
// config-like types.
type Config struct {
	// ConcurrentConnectionLimit caps the number of live connections a
	// supervisor will admit. Zero defaults to 256.
	ConcurrentConnectionLimit int64 `json:"concurrentConnectionLimit"`
	// TransactionBufferSize is the capacity of the app-facing transaction
	// channel returned by Layer.Listen. Zero defaults to 16.
	TransactionBufferSize int `json:"transactionBufferSize"`
	// EventBufferSize is the capacity of each Events() subscriber channel.
	// Zero defaults to 16.
	EventBufferSize int `json:"eventBufferSize"`
	// ResponseBufferSize is the capacity of the per-transaction frame
	// channel and the connection's shared outbound response channel. Zero
	// defaults to 16.
	ResponseBufferSize int `json:"responseBufferSize"`
	// TransactionLimit bounds live transactions per connection. Zero
	// defaults to 64.
	TransactionLimit int `json:"transactionLimit"`
	// GCInterval is how often the garbage collector sweeps a connection's
	// transaction map for abandoned entries. Zero defaults to 10s.
	GCInterval time.Duration `json:"gcInterval"`
	// AcceptBurst and AcceptRate, when AcceptRate is non-zero, additionally
	// throttle the accept loop with a token-bucket limiter in front of the
	// hard admission semaphore. Zero disables the throttle.
	AcceptBurst int     `json:"acceptBurst"`
	AcceptRate  float64 `json:"acceptRate"`
}

const (
	defaultConcurrentConnectionLimit = 256
	defaultTransactionBufferSize     = 16
	defaultEventBufferSize           = 16
	defaultResponseBufferSize        = 16
	defaultTransactionLimit          = 64
	defaultGCInterval                = 10 * time.Second
)

// WithDefaults returns a copy of c with every zero-valued field replaced by
// its documented default.
func (c Config) WithDefaults() Config {
	if c.ConcurrentConnectionLimit == 0 {
		c.ConcurrentConnectionLimit = defaultConcurrentConnectionLimit
	}
	if c.TransactionBufferSize == 0 {
		c.TransactionBufferSize = defaultTransactionBufferSize
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = defaultEventBufferSize
	}
	if c.ResponseBufferSize == 0 {
		c.ResponseBufferSize = defaultResponseBufferSize
	}
	if c.TransactionLimit == 0 {
		c.TransactionLimit = defaultTransactionLimit
	}
	if c.GCInterval == 0 {
		c.GCInterval = defaultGCInterval
	}
	return c
}

var configSchema *jsonschema.Schema

func init() {
	s, err := jsonschema.For[Config](nil)
	if err != nil {
		panic(fmt.Sprintf("session: building Config schema: %v", err))
	}
	configSchema = s
}

// ConfigSchema returns the JSON Schema describing Config, for operators who
// load configuration from JSON and want to validate it before constructing
// a Layer.
func ConfigSchema() *jsonschema.Schema { return configSchema }

// Validate reports whether c (after defaulting) is internally consistent.
// It validates against ConfigSchema in addition to the explicit range
// checks below, the same belt-and-suspenders shape the teacher applies to
// tool input in mcp/reflection_validator.go: the schema checks the JSON
// shape and types of c marshaled back to JSON (so it only ever sees
// Config's own fields), the range checks catch value-level mistakes the
// schema alone can't express as crisply.
func (c Config) Validate() error {
	c = c.WithDefaults()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("session: marshaling config for schema validation: %w", err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(data, &asMap); err != nil {
		return fmt.Errorf("session: unmarshaling config for schema validation: %w", err)
	}
	resolved, err := configSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return fmt.Errorf("session: resolving config schema: %w", err)
	}
	if err := resolved.Validate(&asMap); err != nil {
		return fmt.Errorf("session: config failed schema validation: %w", err)
	}

	if c.ConcurrentConnectionLimit <= 0 {
		return fmt.Errorf("session: ConcurrentConnectionLimit must be positive, got %d", c.ConcurrentConnectionLimit)
	}
	if c.TransactionLimit <= 0 {
		return fmt.Errorf("session: TransactionLimit must be positive, got %d", c.TransactionLimit)
	}
	if c.ResponseBufferSize <= 0 {
		return fmt.Errorf("session: ResponseBufferSize must be positive, got %d", c.ResponseBufferSize)
	}
	if c.GCInterval <= 0 {
		return fmt.Errorf("session: GCInterval must be positive, got %s", c.GCInterval)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("session: AcceptRate must not be negative, got %v", c.AcceptRate)
	}
	if c.AcceptRate > 0 && c.AcceptBurst <= 0 {
		return fmt.Errorf("session: AcceptBurst must be positive when AcceptRate is set")
	}
	return nil
}
