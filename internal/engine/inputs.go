package engine

import (
	"sync"

	"github.com/google/uuid"
	"github.com/weftlang/weft/internal/value"
)

// InputEvent is one external input: a timer firing or a UI-originated
// event. External inputs are the only sources of new ticks.
type InputEvent struct {
	// Port is the stable port identity (element + event kind) the
	// event arrives on, e.g. "increment_button.press".
	Port string

	// Payload is the event value; Unit for bare pulses.
	Payload value.Value

	// Arrival is the ingest order assigned by the queue. Events are
	// processed strictly in arrival order, never interleaved
	// mid-propagation.
	Arrival int64

	// BatchToken correlates all events accepted in one ingest batch.
	// Used by traces and the replay log, never by evaluation.
	BatchToken string
}

// BatchTokenGenerator generates correlation tokens for ingest batches.
// Implemented by UUIDv7Generator (production) and FixedTokenGenerator
// (tests).
type BatchTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 batch tokens.
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedTokenGenerator returns predetermined tokens for deterministic
// tests and golden trace comparison.
type FixedTokenGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedTokenGenerator creates a generator returning tokens in order.
// It panics when exhausted - tests should provide exactly as many
// tokens as they consume.
func NewFixedTokenGenerator(tokens ...string) *FixedTokenGenerator {
	return &FixedTokenGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.tokens) {
		panic("FixedTokenGenerator: all tokens exhausted")
	}
	tok := g.tokens[g.idx]
	g.idx++
	return tok
}
