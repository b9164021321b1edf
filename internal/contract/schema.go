// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package contract checks canonical records against the declarative
// canonical knowledge contract and renders that contract as JSON Schema.
// The checker walks field declarations only; it shares no heuristics with
// the validator.
package contract

import (
	"fmt"
	"strings"

	"github.com/kawidev/knowledge-gate/pkg/types"
)

// Kind is the JSON type a schema node accepts.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
)

// Schema describes the shape one value must have. Objects accept keys
// beyond the declared fields.
type Schema struct {
	Kind     Kind
	Nullable bool
	Enum     []string
	Title    string
	Fields   []Field
	Items    *Schema
}

// Field is one named property of an object schema.
type Field struct {
	Name     string
	Schema   Schema
	Required bool
}

func (s Schema) check(path string, v types.Value, out *[]types.ContractViolation) {
	if v.IsNull() {
		if !s.Nullable {
			*out = append(*out, typeViolation(path, s.Kind))
		}
		return
	}

	switch s.Kind {
	case KindString:
		str, ok := v.AsString()
		if !ok {
			*out = append(*out, typeViolation(path, s.Kind))
			return
		}
		if len(s.Enum) > 0 && !contains(s.Enum, str) {
			*out = append(*out, types.ContractViolation{
				Path:    path,
				Message: "Input should be " + quoteAlternatives(s.Enum),
				Type:    "literal_error",
			})
		}
	case KindNumber:
		if v.Kind() != types.KindNumber {
			*out = append(*out, typeViolation(path, s.Kind))
		}
	case KindBoolean:
		if v.Kind() != types.KindBool {
			*out = append(*out, typeViolation(path, s.Kind))
		}
	case KindArray:
		items, ok := v.AsList()
		if !ok {
			*out = append(*out, typeViolation(path, s.Kind))
			return
		}
		if s.Items == nil {
			return
		}
		for i, item := range items {
			s.Items.check(fmt.Sprintf("%s[%d]", path, i), item, out)
		}
	case KindObject:
		m, ok := v.AsMap()
		if !ok {
			*out = append(*out, typeViolation(path, s.Kind))
			return
		}
		for _, f := range s.Fields {
			val, present := m.Get(f.Name)
			if !present {
				if f.Required {
					*out = append(*out, types.ContractViolation{
						Path:    join(path, f.Name),
						Message: "Field required",
						Type:    "missing",
					})
				}
				continue
			}
			f.Schema.check(join(path, f.Name), val, out)
		}
	}
}

func typeViolation(path string, k Kind) types.ContractViolation {
	switch k {
	case KindString:
		return types.ContractViolation{Path: path, Message: "Input should be a valid string", Type: "string_type"}
	case KindNumber:
		return types.ContractViolation{Path: path, Message: "Input should be a valid number", Type: "float_type"}
	case KindBoolean:
		return types.ContractViolation{Path: path, Message: "Input should be a valid boolean", Type: "bool_type"}
	case KindArray:
		return types.ContractViolation{Path: path, Message: "Input should be a valid list", Type: "list_type"}
	default:
		return types.ContractViolation{Path: path, Message: "Input should be a valid dictionary or object", Type: "model_type"}
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func contains(set []string, s string) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

// quoteAlternatives renders 'a', 'b' or 'c'.
func quoteAlternatives(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " or " + quoted[len(quoted)-1]
}
