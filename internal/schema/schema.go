// Package schema holds the per-format output schema model and the validator
// that checks contract payloads against it.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

type FieldType string

const (
	TypeString FieldType = "string"
	TypeArray  FieldType = "array"
)

// FieldSpec describes the rules for one payload field. A nil Allowed means
// the field is allowed; a missing Type means string.
type FieldSpec struct {
	Type      FieldType `json:"type,omitempty" yaml:"type,omitempty"`
	Required  bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Allowed   *bool     `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	MaxLength *int      `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	MinItems  *int      `json:"min_items,omitempty" yaml:"min_items,omitempty"`
	MaxItems  *int      `json:"max_items,omitempty" yaml:"max_items,omitempty"`
}

func (f FieldSpec) EffectiveType() FieldType {
	if f.Type == "" {
		return TypeString
	}
	return f.Type
}

func (f FieldSpec) IsAllowed() bool {
	return f.Allowed == nil || *f.Allowed
}

type Field struct {
	Name string
	Spec FieldSpec
}

// Schema is an ordered mapping from field name to FieldSpec. It encodes as a
// JSON/YAML object and keeps the document order when decoded.
type Schema []Field

func (s Schema) Lookup(name string) (FieldSpec, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Spec, true
		}
	}
	return FieldSpec{}, false
}

func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for _, f := range s {
		names = append(names, f.Name)
	}
	return names
}

func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Spec)
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("schema: expected object, got %v", tok)
	}
	out := Schema{}
	seen := map[string]struct{}{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("schema: %w", err)
		}
		name, _ := keyTok.(string)
		if _, dup := seen[name]; dup {
			return fmt.Errorf("schema: duplicate field %q", name)
		}
		seen[name] = struct{}{}
		var spec FieldSpec
		if err := dec.Decode(&spec); err != nil {
			return fmt.Errorf("schema: field %q: %w", name, err)
		}
		out = append(out, Field{Name: name, Spec: spec})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	*s = out
	return nil
}

func (s Schema) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range s {
		var val yaml.Node
		if err := val.Encode(f.Spec); err != nil {
			return nil, fmt.Errorf("encode field %q: %w", f.Name, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Name},
			&val,
		)
	}
	return node, nil
}

func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*s = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("schema: line %d: expected mapping", node.Line)
	}
	out := make(Schema, 0, len(node.Content)/2)
	seen := map[string]struct{}{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if _, dup := seen[name]; dup {
			return fmt.Errorf("schema: line %d: duplicate field %q", node.Content[i].Line, name)
		}
		seen[name] = struct{}{}
		var spec FieldSpec
		if err := node.Content[i+1].Decode(&spec); err != nil {
			return fmt.Errorf("schema: field %q: %w", name, err)
		}
		out = append(out, Field{Name: name, Spec: spec})
	}
	*s = out
	return nil
}

// Check reports structural problems in a schema definition: blank or
// duplicate names and negative or inverted bounds.
func Check(s Schema) []error {
	var errs []error
	seen := map[string]struct{}{}
	for i, f := range s {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("fields[%d].name is required", i))
			continue
		}
		if _, dup := seen[f.Name]; dup {
			errs = append(errs, fmt.Errorf("field %q is defined twice", f.Name))
		}
		seen[f.Name] = struct{}{}
		bounds := []struct {
			label string
			value *int
		}{
			{"max_length", f.Spec.MaxLength},
			{"min_items", f.Spec.MinItems},
			{"max_items", f.Spec.MaxItems},
		}
		for _, b := range bounds {
			if b.value != nil && *b.value < 0 {
				errs = append(errs, fmt.Errorf("field %q: %s must not be negative", f.Name, b.label))
			}
		}
		if f.Spec.MinItems != nil && f.Spec.MaxItems != nil && *f.Spec.MinItems > *f.Spec.MaxItems {
			errs = append(errs, fmt.Errorf("field %q: min_items exceeds max_items", f.Name))
		}
	}
	return errs
}

func Int(v int) *int { return &v }

func Bool(v bool) *bool { return &v }
