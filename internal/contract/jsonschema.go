// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package contract

import "github.com/kawidev/knowledge-gate/pkg/types"

const jsonSchemaDialect = "https://json-schema.org/draft/2020-12/schema"

// JSONSchema renders the contract as a JSON Schema document built from
// the same declarations Check walks.
func (c *Contract) JSONSchema() *types.Map {
	doc := types.NewMap()
	doc.Set("$schema", types.String(jsonSchemaDialect))
	doc.Set("$comment", types.String(c.Version))
	node := schemaNode(c.Root)
	node.Range(func(k string, v types.Value) bool {
		doc.Set(k, v)
		return true
	})
	return doc
}

func schemaNode(s Schema) *types.Map {
	m := types.NewMap()
	if s.Title != "" {
		m.Set("title", types.String(s.Title))
	}
	if s.Nullable {
		m.Set("type", types.Strings(string(s.Kind), "null"))
	} else {
		m.Set("type", types.String(string(s.Kind)))
	}
	if len(s.Enum) > 0 {
		enum := make([]types.Value, 0, len(s.Enum)+1)
		for _, e := range s.Enum {
			enum = append(enum, types.String(e))
		}
		if s.Nullable {
			enum = append(enum, types.Null())
		}
		m.Set("enum", types.List(enum...))
	}

	switch s.Kind {
	case KindObject:
		props := types.NewMap()
		var req []string
		for _, f := range s.Fields {
			props.Set(f.Name, types.MapValue(schemaNode(f.Schema)))
			if f.Required {
				req = append(req, f.Name)
			}
		}
		m.Set("properties", types.MapValue(props))
		if len(req) > 0 {
			m.Set("required", types.Strings(req...))
		}
		m.Set("additionalProperties", types.Bool(true))
	case KindArray:
		if s.Items != nil {
			m.Set("items", types.MapValue(schemaNode(*s.Items)))
		}
	}
	return m
}
