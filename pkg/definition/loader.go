package definition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/fsm"
	"github.com/aretw0/sagaflow/pkg/retry"
	"github.com/aretw0/sagaflow/pkg/schema"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Load reads and builds the definition at path. JSON is used for ".json"
// files and YAML otherwise.
func Load(path string, reg *Registry) (*domain.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	f, err := Decode(data, strings.ToLower(filepath.Ext(path)) == ".json")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Build(f, reg)
}

// Parse decodes YAML (a superset of JSON) and builds the definition.
func Parse(data []byte, reg *Registry) (*domain.Definition, error) {
	f, err := Decode(data, false)
	if err != nil {
		return nil, err
	}
	return Build(f, reg)
}

// Decode turns raw definition bytes into a File without resolving actions.
func Decode(data []byte, asJSON bool) (*File, error) {
	var raw map[string]any
	if asJSON {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: invalid json: %v", domain.ErrDefinition, err)
		}
	} else if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid yaml: %v", domain.ErrDefinition, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty document", domain.ErrDefinition)
	}

	var f File
	if err := decode(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDefinition, err)
	}
	return &f, nil
}

func decode(input any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// Build resolves the actions of f and assembles a validated definition.
func Build(f *File, reg *Registry) (*domain.Definition, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	def := &domain.Definition{
		Name:        f.Name,
		Description: f.Description,
		Initial:     f.Initial,
		Steps:       make([]domain.Step, 0, len(f.Steps)),
	}
	if def.Initial == "" {
		def.Initial = "start"
	}
	contract, err := schema.Parse(f.Context)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDefinition, f.Name, err)
	}
	def.Context = contract

	for i, spec := range f.Steps {
		step, err := buildStep(spec, reg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: step %d (%s): %w", domain.ErrDefinition, f.Name, i, spec.Name, err)
		}
		def.Steps = append(def.Steps, step)
	}

	if len(f.Transitions) > 0 {
		table, err := buildTable(f.Transitions, f.Terminal)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrDefinition, f.Name, err)
		}
		def.Table = table
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	if _, err := def.DryRun(); err != nil {
		return nil, err
	}
	return def, nil
}

func buildStep(spec StepSpec, reg *Registry) (domain.Step, error) {
	step := domain.Step{
		Name:        spec.Name,
		Input:       spec.Input,
		Domain:      spec.Domain,
		Operation:   spec.Operation,
		Destination: domain.Address(spec.Destination),
		Timeout:     spec.Timeout,
		Retry:       retry.DefaultPolicy(),
	}

	if spec.Action == nil {
		return step, fmt.Errorf("action is required")
	}
	ref, err := actionRef(spec.Action)
	if err != nil {
		return step, fmt.Errorf("action: %w", err)
	}
	if step.Action, err = reg.Resolve(ref); err != nil {
		return step, err
	}

	if spec.Compensate != nil {
		ref, err := actionRef(spec.Compensate)
		if err != nil {
			return step, fmt.Errorf("compensate: %w", err)
		}
		if step.Compensate, err = reg.Resolve(ref); err != nil {
			return step, err
		}
	}

	if spec.Retry != nil {
		if step.Retry, err = decodePolicy(spec.Retry); err != nil {
			return step, fmt.Errorf("retry: %w", err)
		}
	}
	if spec.CompensateRetry != nil {
		if step.CompensateRetry, err = decodePolicy(spec.CompensateRetry); err != nil {
			return step, fmt.Errorf("compensate_retry: %w", err)
		}
	}
	return step, nil
}

func decodePolicy(raw map[string]any) (retry.Policy, error) {
	var p retry.Policy
	if err := decode(raw, &p); err != nil {
		return p, err
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p.Normalize(), nil
}

func actionRef(v any) (ActionRef, error) {
	switch val := v.(type) {
	case string:
		return ActionRef{Name: val}, nil
	case map[string]any:
		var ref ActionRef
		if err := decode(val, &ref); err != nil {
			return ref, err
		}
		if ref.Name == "" && ref.Command == "" {
			return ref, fmt.Errorf("name or command is required")
		}
		return ref, nil
	default:
		return ActionRef{}, fmt.Errorf("invalid action reference type: %T", v)
	}
}

func buildTable(transitions []TransitionSpec, terminal []string) (*fsm.Table[string, string, domain.Output], error) {
	type key struct{ from, input, to string }
	events := make(map[key]string)

	b := fsm.NewBuilder[string, string, domain.Output]()
	for _, t := range transitions {
		if t.From == "" || t.Input == "" || t.To == "" {
			return nil, fmt.Errorf("transition needs from, input and to: %+v", t)
		}
		b.RuleWithPriority(t.From, t.Input, t.Priority, t.To)
		if t.Event != "" {
			events[key{t.From, t.Input, t.To}] = t.Event
		}
	}
	b.Terminal(terminal...)
	b.Output(func(from, to, input string) domain.Output {
		out := domain.StepOutput(from, to, input)
		if ev, ok := events[key{from, input, to}]; ok {
			out.Event = ev
		}
		return out
	})
	return b.Build()
}
