// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Counts is a histogram keyed by label that remembers the order in which
// labels were first seen. It encodes as a JSON object in that order.
type Counts struct {
	keys []string
	n    map[string]int
}

// Add increments label by delta.
func (c *Counts) Add(label string, delta int) {
	if c.n == nil {
		c.n = make(map[string]int)
	}
	if _, ok := c.n[label]; !ok {
		c.keys = append(c.keys, label)
	}
	c.n[label] += delta
}

// Inc increments label by one.
func (c *Counts) Inc(label string) { c.Add(label, 1) }

// Get returns the count for label.
func (c Counts) Get(label string) int { return c.n[label] }

// Len returns the number of distinct labels.
func (c Counts) Len() int { return len(c.keys) }

// Labels returns labels in first-seen order.
func (c Counts) Labels() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Total sums every count.
func (c Counts) Total() int {
	total := 0
	for _, k := range c.keys {
		total += c.n[k]
	}
	return total
}

// Merge adds every entry of o into c.
func (c *Counts) Merge(o Counts) {
	for _, k := range o.keys {
		c.Add(k, o.n[k])
	}
}

// Top returns the n most frequent labels, highest first. Ties keep
// first-seen order.
func (c Counts) Top(n int) Counts {
	labels := c.Labels()
	sort.SliceStable(labels, func(i, j int) bool {
		return c.n[labels[i]] > c.n[labels[j]]
	})
	if n >= 0 && len(labels) > n {
		labels = labels[:n]
	}
	var out Counts
	for _, k := range labels {
		out.Add(k, c.n[k])
	}
	return out
}

// MarshalJSON encodes the histogram as an ordered JSON object.
func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		buf.WriteString(jsonInt(c.n[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of integer counts, keeping key order.
func (c *Counts) UnmarshalJSON(data []byte) error {
	m := NewMap()
	if err := m.UnmarshalJSON(data); err != nil {
		return err
	}
	*c = Counts{}
	m.Range(func(k string, v Value) bool {
		f, _ := v.AsFloat()
		c.Add(k, int(f))
		return true
	})
	return nil
}

func jsonInt(n int) string {
	data, _ := json.Marshal(n)
	return string(data)
}
