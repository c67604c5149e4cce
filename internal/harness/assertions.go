package harness

import (
	"fmt"

	"github.com/weftlang/weft/internal/engine"
	"github.com/weftlang/weft/internal/value"
)

// checkExpectations validates final binding values against the
// scenario's expect clauses.
func checkExpectations(s *Scenario, eng *engine.Engine, result *Result) {
	for i, exp := range s.Expect {
		rep, ok := lookupBinding(eng, exp.Binding)
		if !ok {
			result.AddError(fmt.Sprintf("expect[%d]: binding %q not found", i, exp.Binding))
			continue
		}

		if exp.Count != nil {
			l, ok := rep.Value.(value.List)
			if !ok {
				result.AddError(fmt.Sprintf("expect[%d]: binding %q is not a collection", i, exp.Binding))
				continue
			}
			if l.Len() != *exp.Count {
				result.AddError(fmt.Sprintf("expect[%d]: binding %q has %d items, want %d",
					i, exp.Binding, l.Len(), *exp.Count))
			}
			continue
		}

		want, err := yamlToValue(exp.Value)
		if err != nil {
			result.AddError(fmt.Sprintf("expect[%d]: bad expected value: %v", i, err))
			continue
		}
		if !valuesMatch(rep.Value, want) {
			result.AddError(fmt.Sprintf("expect[%d]: binding %q = %s, want %s",
				i, exp.Binding, renderValue(rep.Value), renderValue(want)))
		}
	}
}

func lookupBinding(eng *engine.Engine, name string) (engine.InspectReport, bool) {
	for _, b := range eng.Program().Bindings {
		if b.Name == name {
			return eng.Inspect(engine.RootSlot(b.Expr.ID))
		}
	}
	return engine.InspectReport{}, false
}

// valuesMatch compares ignoring list item keys: scenario authors write
// plain arrays, runtime lists carry allocation-site keys.
func valuesMatch(got, want value.Value) bool {
	gl, gok := got.(value.List)
	wl, wok := want.(value.List)
	if gok && wok {
		gitems, witems := gl.Items(), wl.Items()
		if len(gitems) != len(witems) {
			return false
		}
		for i := range gitems {
			if !valuesMatch(gitems[i].Value, witems[i].Value) {
				return false
			}
		}
		return true
	}
	// Numeric looseness: YAML integers compare against runtime floats.
	if gi, ok := got.(value.Float); ok {
		if wi, ok := want.(value.Int); ok {
			return float64(gi) == float64(wi)
		}
	}
	return value.Equal(got, want)
}
