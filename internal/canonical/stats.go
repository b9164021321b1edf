// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package canonical

import "github.com/kawidev/knowledge-gate/pkg/types"

// preStats measures drift on the raw record: arrays mixing element types
// (nulls ignored) and image descriptions that are empty skeletons.
func preStats(raw types.Value) types.PreStats {
	var stats types.PreStats
	countMixed(raw, &stats.MixedTypeArraysCount)

	rc, _ := raw.AsMap()
	capture, _ := rc.GetMap(types.SectionRawCapture)
	descs, _ := capture.GetList("image_descriptions")
	for _, d := range descs {
		if m, ok := d.AsMap(); ok && skeleton(m) {
			stats.EmptyImageDescriptionsSkeletonCount++
		}
	}
	return stats
}

func countMixed(v types.Value, n *int) {
	switch v.Kind() {
	case types.KindList:
		items, _ := v.AsList()
		seen := make(map[string]bool)
		for _, item := range items {
			if !item.IsNull() {
				seen[item.TypeName()] = true
			}
		}
		if len(seen) > 1 {
			*n++
		}
		for _, item := range items {
			countMixed(item, n)
		}
	case types.KindMap:
		m, _ := v.AsMap()
		m.Range(func(_ string, child types.Value) bool {
			countMixed(child, n)
			return true
		})
	}
}

func skeleton(m *types.Map) bool {
	elems := m.Lookup("observed_visual_elements")
	if list, ok := elems.AsList(); !elems.IsNull() && !(ok && len(list) == 0) {
		return false
	}
	if !m.Lookup("chart_timeframe").IsNull() || !m.Lookup("instrument_hint").IsNull() {
		return false
	}
	conf := m.Lookup("confidence")
	if conf.IsNull() {
		return true
	}
	f, ok := conf.AsFloat()
	return ok && f == 0
}
