// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package canonical normalizes raw knowledge extraction records into the
// fixed canonical shape. Canonicalization never fails: malformed input is
// coerced or filled with fallbacks, and every change is logged as an
// action. Running it on its own output is a no-op.
package canonical

import (
	"fmt"
	"strings"

	"github.com/kawidev/knowledge-gate/pkg/types"
)

// Action names recorded during canonicalization.
const (
	ActionEnsureTopLevel         = "ensure_top_level"
	ActionEnsureList             = "ensure_list"
	ActionCoerceToDict           = "coerce_to_dict"
	ActionCoerceToList           = "coerce_to_list"
	ActionAliasMap               = "alias_map"
	ActionFallbackFill           = "fallback_fill"
	ActionMoveTermDefinition     = "move_term_definition"
	ActionCoerceStringToQuestion = "coerce_string_to_question_dict"
	ActionCoerceStringToLabeled  = "coerce_string_to_labeled_object"
	ActionCoerceScalarToLabeled  = "coerce_scalar_to_labeled_object"
)

// Result is the outcome of canonicalizing one raw record.
type Result struct {
	Record   types.Record
	Actions  []types.Action
	PreStats types.PreStats
}

// Canonicalize normalizes raw into a canonical record. The input is deep
// copied and never modified. A non-mapping input yields a fully
// scaffolded empty record.
func Canonicalize(raw types.Value) Result {
	c := &canonicalizer{actions: []types.Action{}}
	pre := preStats(raw)

	root := types.NewMap()
	if m, ok := raw.AsMap(); ok {
		root = m.Clone()
	}

	c.scaffold(root)
	kx, _ := root.GetMap(types.SectionKnowledgeExtract)
	c.terms(kx)
	c.normalizeList(kx, "definitions_candidate", types.SectionKnowledgeExtract, definitionSpec)
	c.normalizeList(kx, "relations_candidate", types.SectionKnowledgeExtract, relationSpec)
	c.normalizeList(kx, "variants_candidate", types.SectionKnowledgeExtract, variantSpec)

	cmc, _ := root.GetMap(types.SectionMappingCandidates)
	c.normalizeList(cmc, "potential_events", types.SectionMappingCandidates, eventSpec)
	c.normalizeList(cmc, "potential_questions", types.SectionMappingCandidates, questionSpec)
	c.normalizeList(cmc, "potential_play_candidates", types.SectionMappingCandidates, playSpec)

	tce, _ := root.GetMap(types.SectionTradingContext)
	c.tradingContext(tce)
	c.provenance(root)

	return Result{Record: types.NewRecord(root), Actions: c.actions, PreStats: pre}
}

type canonicalizer struct {
	actions []types.Action
}

func (c *canonicalizer) add(action, path, detail string) {
	c.actions = append(c.actions, types.Action{Action: action, Path: path, Detail: detail})
}

// scaffold guarantees every top-level section and the scaffolded sub-lists
// exist with the right container type.
func (c *canonicalizer) scaffold(root *types.Map) {
	for _, key := range types.TopLevelSections {
		v := root.Lookup(key)
		if key == types.SectionProvenanceIndex {
			if _, ok := v.AsList(); !ok {
				root.Set(key, types.List())
				c.add(ActionEnsureTopLevel, key, "")
			}
			continue
		}
		if _, ok := v.AsMap(); !ok {
			root.Set(key, types.MapValue(sectionDefault(key)))
			c.add(ActionEnsureTopLevel, key, "")
		}
	}

	c.ensureLists(root, types.SectionKnowledgeExtract, types.KnowledgeExtractLists)
	c.ensureLists(root, types.SectionMappingCandidates, types.CandidateSections)
	c.ensureLists(root, types.SectionQualityControl, types.QualityControlLists)

	qc, _ := root.GetMap(types.SectionQualityControl)
	if !qc.Has("needs_human_review") {
		qc.Set("needs_human_review", types.Bool(true))
		c.add(ActionFallbackFill, types.SectionQualityControl+".needs_human_review", "needs_human_review=true")
	}
}

func sectionDefault(key string) *types.Map {
	m := types.NewMap()
	if key == types.SectionQualityControl {
		for _, list := range types.QualityControlLists {
			m.Set(list, types.List())
		}
		m.Set("needs_human_review", types.Bool(true))
	}
	return m
}

func (c *canonicalizer) ensureLists(root *types.Map, section string, keys []string) {
	sec, _ := root.GetMap(section)
	for _, key := range keys {
		if _, ok := sec.GetList(key); !ok {
			sec.Set(key, types.List())
			c.add(ActionEnsureList, section+"."+key, "")
		}
	}
}

// terms normalizes terms_detected and lifts inline definitions into
// definitions_candidate. Unlike the other item kinds, term fields are
// refilled when present but empty.
func (c *canonicalizer) terms(kx *types.Map) {
	const base = types.SectionKnowledgeExtract + ".terms_detected"

	existing, _ := kx.GetList("definitions_candidate")
	defs := append([]types.Value{}, existing...)
	items, _ := kx.GetList("terms_detected")
	out := make([]types.Value, 0, len(items))

	for i, raw := range items {
		p := fmt.Sprintf("%s[%d]", base, i)
		item := c.toMap(raw, "term", p)
		c.applyAliases(item, termAliases, p)

		if !item.Lookup("term").Truthy() {
			item.Set("term", types.String("unknown"))
			c.add(ActionFallbackFill, p, "term=unknown")
		}
		if !item.Lookup("normalized_term").Truthy() {
			norm := normalizeTerm(item.Lookup("term").Text())
			if norm == "" {
				norm = "unknown"
			}
			item.Set("normalized_term", types.String(norm))
			c.add(ActionFallbackFill, p, "normalized_term")
		}
		if !item.Lookup("category").Truthy() {
			item.Set("category", types.String("concept"))
			c.add(ActionFallbackFill, p, "category=concept")
		}
		if !item.Has("confidence") {
			item.Set("confidence", types.Null())
			c.add(ActionFallbackFill, p, "confidence=null")
		}
		if !item.Lookup("status").Truthy() {
			status := inferTermStatus(item)
			item.Set("status", types.String(status))
			c.add(ActionFallbackFill, p, "status="+status)
		}
		if !item.Has("evidence_refs") {
			item.Set("evidence_refs", types.List())
			c.add(ActionFallbackFill, p, "evidence_refs=[]")
		} else {
			c.coerceLists(item, []string{"evidence_refs"}, p)
		}

		if def := item.Lookup("definition"); def.Truthy() {
			entry := types.NewMap()
			entry.Set("term", item.Lookup("term").Clone())
			entry.Set("definition_text", def.Clone())
			entry.Set("definition_type", types.String("operational_candidate"))
			entry.Set("status", item.Lookup("status").Clone())
			entry.Set("evidence_refs", item.Lookup("evidence_refs").Clone())
			entry.Set("confidence", item.Lookup("confidence").Clone())
			defs = append(defs, types.MapValue(entry))
			item.Delete("definition")
			c.add(ActionMoveTermDefinition, p+".definition", "")
		}
		out = append(out, types.MapValue(item))
	}

	kx.Set("terms_detected", types.List(out...))
	kx.Set("definitions_candidate", types.List(defs...))
}

// inferTermStatus picks a status for a term that has none: observed when
// it cites the post or OCR text directly and carries no interpretation,
// uncertain otherwise.
func inferTermStatus(item *types.Map) string {
	direct := false
	refs, _ := item.GetList("evidence_refs")
	for _, ref := range refs {
		if s, ok := ref.AsString(); ok && (strings.HasPrefix(s, "post:") || strings.HasPrefix(s, "ocr:")) {
			direct = true
			break
		}
	}
	if !direct {
		return types.StatusUncertain
	}
	for _, key := range interpretiveFields {
		if s, ok := item.GetString(key); ok && strings.TrimSpace(s) != "" {
			return types.StatusUncertain
		}
	}
	return types.StatusObserved
}

// normalizeList applies an item spec to every element of section[key].
func (c *canonicalizer) normalizeList(section *types.Map, key, sectionPath string, spec itemSpec) {
	items, _ := section.GetList(key)
	out := make([]types.Value, 0, len(items))
	for i, raw := range items {
		p := fmt.Sprintf("%s.%s[%d]", sectionPath, key, i)

		var item *types.Map
		if s, ok := raw.AsString(); ok && spec.fromString != nil {
			item = spec.fromString(s)
			c.add(spec.fromStringAction, p, "")
		} else {
			item = c.toMap(raw, spec.wrapKey, p)
		}

		c.applyAliases(item, spec.aliases, p)
		for _, f := range spec.defaults {
			if !item.Has(f.key) {
				v := f.value(item)
				item.Set(f.key, v)
				c.add(ActionFallbackFill, p, fillDetail(f.key, v))
			}
		}
		c.coerceLists(item, spec.lists, p)
		out = append(out, types.MapValue(item))
	}
	section.Set(key, types.List(out...))
}

// toMap returns raw when it is a mapping and otherwise wraps its text
// under wrapKey. Null becomes an empty mapping so defaults apply.
func (c *canonicalizer) toMap(raw types.Value, wrapKey, path string) *types.Map {
	if m, ok := raw.AsMap(); ok {
		return m
	}
	item := types.NewMap()
	if !raw.IsNull() {
		item.Set(wrapKey, types.String(raw.Text()))
	}
	c.add(ActionCoerceToDict, path, "")
	return item
}

// applyAliases copies each alias field onto its canonical name when the
// canonical name is absent. The first matching alias wins.
func (c *canonicalizer) applyAliases(item *types.Map, aliases []alias, path string) {
	for _, a := range aliases {
		if item.Has(a.from) && !item.Has(a.to) {
			item.Set(a.to, item.Lookup(a.from).Clone())
			c.add(ActionAliasMap, path, a.from+"->"+a.to)
		}
	}
}

func (c *canonicalizer) coerceLists(item *types.Map, keys []string, path string) {
	for _, key := range keys {
		v, ok := item.Get(key)
		if !ok {
			continue
		}
		if _, isList := v.AsList(); isList {
			continue
		}
		item.Set(key, ensureList(v))
		c.add(ActionCoerceToList, path+"."+key, "")
	}
}

func ensureList(v types.Value) types.Value {
	if v.IsNull() {
		return types.List()
	}
	if _, ok := v.AsList(); ok {
		return v
	}
	return types.List(v)
}

func (c *canonicalizer) tradingContext(tce *types.Map) {
	for _, key := range types.TradingContextKeys {
		base := types.SectionTradingContext + "." + key

		var items []types.Value
		v := tce.Lookup(key)
		switch {
		case v.IsNull():
		case v.Kind() == types.KindList:
			items, _ = v.AsList()
		default:
			items = []types.Value{v}
			c.add(ActionCoerceToList, base, "")
		}

		out := make([]types.Value, 0, len(items))
		for i, raw := range items {
			p := fmt.Sprintf("%s[%d]", base, i)
			switch raw.Kind() {
			case types.KindString:
				m := types.NewMap()
				m.Set("label", raw)
				out = append(out, types.MapValue(m))
				c.add(ActionCoerceStringToLabeled, p, "")
			case types.KindMap:
				item, _ := raw.AsMap()
				if !item.Has("label") {
					c.borrowLabel(item, p)
				}
				out = append(out, raw)
			default:
				m := types.NewMap()
				if raw.IsNull() {
					m.Set("label", types.Null())
				} else {
					m.Set("label", types.String(raw.Text()))
				}
				out = append(out, types.MapValue(m))
				c.add(ActionCoerceScalarToLabeled, p, "")
			}
		}
		tce.Set(key, types.List(out...))
	}
}

func (c *canonicalizer) borrowLabel(item *types.Map, path string) {
	for _, alias := range labelAliases {
		if s, ok := item.GetString(alias); ok && s != "" {
			item.Set("label", types.String(s))
			c.add(ActionFallbackFill, path, "label<="+alias)
			return
		}
	}
}

func (c *canonicalizer) provenance(root *types.Map) {
	items, _ := root.GetList(types.SectionProvenanceIndex)
	out := make([]types.Value, 0, len(items))
	for i, raw := range items {
		p := fmt.Sprintf("%s[%d]", types.SectionProvenanceIndex, i)
		item := c.toMap(raw, "ref_id", p)
		if s, ok := item.GetString("ref_id"); !ok || s == "" {
			item.Set("ref_id", types.String(fmt.Sprintf("unknown_ref_%d", i)))
			c.add(ActionFallbackFill, p, "ref_id")
		}
		out = append(out, types.MapValue(item))
	}
	root.Set(types.SectionProvenanceIndex, types.List(out...))
}
