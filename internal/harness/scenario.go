package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/weftlang/weft/internal/value"
)

// Scenario defines one conformance test: a program, scripted input
// batches, and expectations on the result.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the path to the CUE program, relative to the scenario
	// file. Mutually exclusive with ProgramSource.
	Program string `yaml:"program,omitempty"`

	// ProgramSource is inline CUE source.
	ProgramSource string `yaml:"program_source,omitempty"`

	// Ticks are the scripted input batches, one batch per tick.
	Ticks []TickScript `yaml:"ticks"`

	// Expect validates final binding values after the last tick.
	Expect []Expectation `yaml:"expect,omitempty"`

	// UnserializedHolds runs the engine in the lost-update diagnosis
	// mode, for scenarios that document the race.
	UnserializedHolds bool `yaml:"unserialized_holds,omitempty"`

	// dir is the scenario file's directory, for resolving Program.
	dir string
}

// TickScript is one tick's input batch.
type TickScript struct {
	Events []EventScript `yaml:"events"`
}

// EventScript is one scripted input event.
type EventScript struct {
	Port    string `yaml:"port"`
	Payload any    `yaml:"payload"`
}

// Expectation asserts a final top-level binding value.
type Expectation struct {
	Binding string `yaml:"binding"`
	Value   any    `yaml:"value"`

	// Count asserts collection length instead of a value.
	Count *int `yaml:"count,omitempty"`
}

// LoadScenario reads and validates a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Program == "" && s.ProgramSource == "" {
		return fmt.Errorf("program or program_source is required")
	}
	if s.Program != "" && s.ProgramSource != "" {
		return fmt.Errorf("program and program_source are mutually exclusive")
	}
	for i, tick := range s.Ticks {
		for j, ev := range tick.Events {
			if ev.Port == "" {
				return fmt.Errorf("ticks[%d].events[%d]: port is required", i, j)
			}
		}
	}
	return nil
}

func (s *Scenario) programSource() (string, error) {
	if s.ProgramSource != "" {
		return s.ProgramSource, nil
	}
	data, err := os.ReadFile(filepath.Join(s.dir, s.Program))
	if err != nil {
		return "", fmt.Errorf("read program: %w", err)
	}
	return string(data), nil
}

// yamlToValue converts a decoded YAML payload into a runtime value.
// null maps to Unit (a bare pulse); arrays get positional item keys.
func yamlToValue(raw any) (value.Value, error) {
	switch t := raw.(type) {
	case nil:
		return value.Unit{}, nil
	case bool:
		return value.Bool(t), nil
	case int:
		return value.Int(int64(t)), nil
	case int64:
		return value.Int(t), nil
	case uint64:
		return value.Int(int64(t)), nil
	case float64:
		return value.Float(t), nil
	case string:
		return value.Text(t), nil
	case []any:
		items := make([]value.ListItem, 0, len(t))
		for i, el := range t {
			v, err := yamlToValue(el)
			if err != nil {
				return nil, err
			}
			items = append(items, value.ListItem{Key: value.ItemKey(i), Value: v})
		}
		return value.NewList(items), nil
	case map[string]any:
		fields := make(map[string]value.Value, len(t))
		names := make([]string, 0, len(t))
		for name := range t {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v, err := yamlToValue(t[name])
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			fields[name] = v
		}
		return value.NewObject(fields), nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", raw)
	}
}
