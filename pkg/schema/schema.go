package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Type validates one context value.
type Type interface {
	Name() string
	Validate(value any) error
}

type kindType struct {
	name  string
	check func(any) bool
}

func (t kindType) Name() string { return t.name }

func (t kindType) Validate(value any) error {
	if !t.check(value) {
		return fmt.Errorf("expected %s, got %T", t.name, value)
	}
	return nil
}

type sliceType struct {
	elem Type
}

func (t sliceType) Name() string { return "[" + t.elem.Name() + "]" }

func (t sliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected %s, got %T", t.Name(), value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

var builtins = map[string]Type{
	"string": kindType{"string", func(v any) bool { _, ok := v.(string); return ok }},
	"bool":   kindType{"bool", func(v any) bool { _, ok := v.(bool); return ok }},
	"int":    kindType{"int", isInt},
	"float":  kindType{"float", isNumber},
	"map":    kindType{"map", func(v any) bool { return reflect.ValueOf(v).Kind() == reflect.Map }},
	"any":    kindType{"any", func(any) bool { return true }},
}

func isInt(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == float64(int64(n))
	}
	return false
}

func isNumber(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return isInt(v)
}

// ParseType parses a type name such as "int" or "[string]".
func ParseType(name string) (Type, error) {
	name = strings.TrimSpace(name)
	if len(name) > 2 && name[0] == '[' && name[len(name)-1] == ']' {
		elem, err := ParseType(name[1 : len(name)-1])
		if err != nil {
			return nil, err
		}
		return sliceType{elem: elem}, nil
	}
	if t, ok := builtins[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unsupported type %q", name)
}

// Field is one entry of a Schema.
type Field struct {
	Type     Type
	Optional bool
}

func (f Field) String() string {
	if f.Optional {
		return f.Type.Name() + "?"
	}
	return f.Type.Name()
}

// Schema maps context keys to their expected types.
type Schema map[string]Field

// Parse builds a Schema from key -> type name pairs.
func Parse(fields map[string]string) (Schema, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	s := make(Schema, len(fields))
	for key, raw := range fields {
		name, optional := strings.CutSuffix(strings.TrimSpace(raw), "?")
		t, err := ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("context key %s: %w", key, err)
		}
		s[key] = Field{Type: t, Optional: optional}
	}
	return s, nil
}

// FieldError is a single key that failed validation.
type FieldError struct {
	Key    string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("context key %q: %s", e.Key, e.Reason)
}

// Validate checks data against s and reports every failing key, sorted by
// key. Keys not named by s are allowed.
func (s Schema) Validate(data map[string]any) error {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		field := s[key]
		value, ok := data[key]
		if !ok || value == nil {
			if !field.Optional {
				errs = append(errs, &FieldError{Key: key, Reason: "required"})
			}
			continue
		}
		if err := field.Type.Validate(value); err != nil {
			errs = append(errs, &FieldError{Key: key, Reason: err.Error()})
		}
	}
	return errors.Join(errs...)
}

// Names returns the schema as key -> type name pairs.
func (s Schema) Names() map[string]string {
	out := make(map[string]string, len(s))
	for k, f := range s {
		out[k] = f.String()
	}
	return out
}

// MarshalJSON writes the schema as key -> type name pairs.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.Names())
}

// UnmarshalJSON reads key -> type name pairs.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
