package testutil

import (
	"fmt"
	"sync"
)

// RepeatingTokenGenerator always returns the same batch token.
//
// Unlike the engine's fixed generator, which returns tokens in
// sequence and panics when exhausted, this one never runs out. Useful
// when a test doesn't care how many ticks run.
//
// Stateless and safe for concurrent use.
type RepeatingTokenGenerator struct {
	token string
}

// NewRepeatingTokenGenerator creates a generator for token. An empty
// token defaults to "test-batch-default".
func NewRepeatingTokenGenerator(token string) *RepeatingTokenGenerator {
	if token == "" {
		token = "test-batch-default"
	}
	return &RepeatingTokenGenerator{token: token}
}

// Generate returns the fixed batch token.
func (g *RepeatingTokenGenerator) Generate() string {
	return g.token
}

// SequenceTokenGenerator returns "batch-000001", "batch-000002", ...
// without a predetermined limit.
type SequenceTokenGenerator struct {
	mu sync.Mutex
	n  int
}

// NewSequenceTokenGenerator creates a sequential token generator.
func NewSequenceTokenGenerator() *SequenceTokenGenerator {
	return &SequenceTokenGenerator{}
}

// Generate returns the next sequential token.
func (g *SequenceTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("batch-%06d", g.n)
}
