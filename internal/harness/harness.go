package harness

import (
	"fmt"

	"github.com/weftlang/weft/internal/compiler"
	"github.com/weftlang/weft/internal/engine"
	"github.com/weftlang/weft/internal/value"
)

// TraceEvent is one externally visible change in the trace.
type TraceEvent struct {
	Slot    string `json:"slot"`
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind"` // "value" or diff kind
	Value   string `json:"value,omitempty"`
	Version uint64 `json:"version"`
}

// TickTrace is one tick's output batch.
type TickTrace struct {
	Tick        uint64       `json:"tick"`
	BatchToken  string       `json:"batch_token"`
	Events      []TraceEvent `json:"events"`
	Diagnostics []string     `json:"diagnostics,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	Pass   bool
	Trace  []TickTrace
	Errors []string

	// Engine stays live for follow-up inspection by tests.
	Engine *engine.Engine
}

// AddError records a validation failure.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run executes a scenario: compile, tick through the scripted batches,
// validate expectations. The trace records every tick's output.
func Run(s *Scenario) (*Result, error) {
	src, err := s.programSource()
	if err != nil {
		return nil, err
	}
	program, err := compiler.CompileString(src)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	// One token per tick: the initial tick plus one per scripted batch.
	tokens := make([]string, 0, len(s.Ticks)+1)
	for i := 0; i <= len(s.Ticks); i++ {
		tokens = append(tokens, fmt.Sprintf("batch-%06d", i+1))
	}

	var collector traceCollector
	opts := []engine.EngineOption{
		engine.WithTokenGenerator(engine.NewFixedTokenGenerator(tokens...)),
		engine.WithSink(&collector),
	}
	if s.UnserializedHolds {
		opts = append(opts, engine.WithUnserializedHolds())
	}

	eng, err := engine.New(program, opts...)
	if err != nil {
		return nil, err
	}

	result := &Result{Pass: true, Engine: eng}

	runTick := func() error {
		report, err := eng.Tick()
		if err != nil && engine.IsInvariantError(err) {
			return err
		}
		tt := TickTrace{
			Tick:       report.Tick,
			BatchToken: report.BatchToken,
			Events:     collector.take(),
		}
		for _, d := range report.Diagnostics {
			tt.Diagnostics = append(tt.Diagnostics, d.Error())
		}
		result.Trace = append(result.Trace, tt)
		return nil
	}

	if err := runTick(); err != nil {
		return nil, err
	}

	for i, tick := range s.Ticks {
		for _, ev := range tick.Events {
			payload, err := yamlToValue(ev.Payload)
			if err != nil {
				return nil, fmt.Errorf("ticks[%d] payload: %w", i, err)
			}
			eng.Enqueue(ev.Port, payload)
		}
		if err := runTick(); err != nil {
			return nil, err
		}
	}

	checkExpectations(s, eng, result)
	return result, nil
}

// traceCollector is a Sink that accumulates tick output as trace
// events rendered in canonical form.
type traceCollector struct {
	events []TraceEvent
}

func (c *traceCollector) Emit(out engine.TickOutput) error {
	for _, ev := range out.Events {
		te := TraceEvent{
			Slot:    ev.Slot.String(),
			Name:    ev.Name,
			Version: ev.Version,
		}
		if ev.Diff != nil {
			te.Kind = string(ev.Diff.Kind)
			if ev.Diff.Value != nil {
				te.Value = renderValue(ev.Diff.Value)
			}
		} else {
			te.Kind = "value"
			te.Value = renderValue(ev.Value)
		}
		c.events = append(c.events, te)
	}
	return nil
}

func (c *traceCollector) take() []TraceEvent {
	out := c.events
	c.events = nil
	return out
}

func renderValue(v value.Value) string {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<unrenderable: %v>", err)
	}
	return string(data)
}
