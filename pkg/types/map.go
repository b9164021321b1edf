// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"bytes"
	"fmt"
	"sort"
)

// Map is an insertion-ordered string-keyed mapping. Setting an existing
// key replaces its value in place without moving it. A nil *Map reads
// as empty.
type Map struct {
	keys []string
	vals map[string]Value
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{vals: make(map[string]Value)}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.vals[key]
	return v, ok
}

// Lookup returns the value under key, or null when absent.
func (m *Map) Lookup(key string) Value {
	v, _ := m.Get(key)
	return v
}

// Has reports whether key is present, even when its value is null.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores v under key.
func (m *Map) Set(key string, v Value) {
	if m.vals == nil {
		m.vals = make(map[string]Value)
	}
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

// Delete removes key if present.
func (m *Map) Delete(key string) {
	if m == nil {
		return
	}
	if _, ok := m.vals[key]; !ok {
		return
	}
	delete(m.vals, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// GetString returns the string under key.
func (m *Map) GetString(key string) (string, bool) {
	return m.Lookup(key).AsString()
}

// GetMap returns the map under key.
func (m *Map) GetMap(key string) (*Map, bool) {
	return m.Lookup(key).AsMap()
}

// GetList returns the list under key.
func (m *Map) GetList(key string) ([]Value, bool) {
	return m.Lookup(key).AsList()
}

// Range calls fn for each entry in order until fn returns false.
func (m *Map) Range(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.vals[k]) {
			return
		}
	}
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	out := NewMap()
	m.Range(func(k string, v Value) bool {
		out.Set(k, v.Clone())
		return true
	})
	return out
}

// Equal reports deep equality, including key order.
func (m *Map) Equal(o *Map) bool {
	if m.Len() != o.Len() {
		return false
	}
	keys := m.Keys()
	okeys := o.Keys()
	for i, k := range keys {
		if okeys[i] != k {
			return false
		}
		if !m.Lookup(k).Equal(o.Lookup(k)) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Map) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	var err error
	i := 0
	m.Range(func(k string, v Value) bool {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		if err = encodeString(buf, k); err != nil {
			return false
		}
		buf.WriteByte(':')
		err = v.encode(buf)
		return err == nil
	})
	if err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (m *Map) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	src, ok := v.AsMap()
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", v.Kind())
	}
	*m = *src
	return nil
}

// DeepMerge overlays override onto base and returns a new map. Nested
// maps merge recursively; every other value in override, lists
// included, replaces the base value outright. Neither input is modified.
func DeepMerge(base, override *Map) *Map {
	out := base.Clone()
	override.Range(func(k string, ov Value) bool {
		om, oIsMap := ov.AsMap()
		bm, bIsMap := out.Lookup(k).AsMap()
		if oIsMap && bIsMap {
			out.Set(k, MapValue(DeepMerge(bm, om)))
		} else {
			out.Set(k, ov.Clone())
		}
		return true
	})
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
