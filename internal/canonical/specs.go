// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package canonical

import (
	"regexp"
	"strings"

	"github.com/kawidev/knowledge-gate/pkg/types"
)

// alias maps a producer field name onto its canonical name.
type alias struct {
	from, to string
}

// fill supplies the default for an absent field. The value may depend on
// fields filled earlier in the same item.
type fill struct {
	key   string
	value func(item *types.Map) types.Value
}

// itemSpec drives normalization of one item kind.
type itemSpec struct {
	// wrapKey receives the text of a non-mapping item.
	wrapKey string

	// fromString, when set, expands a bare string into a full item and
	// is logged as fromStringAction instead of coerce_to_dict.
	fromString       func(s string) *types.Map
	fromStringAction string

	aliases  []alias
	defaults []fill
	lists    []string
}

var (
	termAliases = []alias{
		{"interpretation_status", "status"},
		{"concept", "term"},
	}

	// interpretiveFields hold free text that makes a term interpretive
	// rather than directly observed.
	interpretiveFields = []string{"definition", "definition_text", "description", "heuristic", "warning"}

	// labelAliases are probed in order for a trading-context item without
	// a label.
	labelAliases = []string{"element", "window", "poi", "liquidity_type", "outcome", "name", "description"}
)

var definitionSpec = itemSpec{
	wrapKey: "definition_text",
	aliases: []alias{
		{"concept", "term"},
		{"definition", "definition_text"},
	},
	defaults: []fill{
		{"term", constant(types.String("unknown"))},
		{"definition_text", constant(types.String(""))},
		{"definition_type", constant(types.String("operational_candidate"))},
		{"status", constant(types.String(types.StatusInferred))},
		{"confidence", constant(types.Null())},
		{"evidence_refs", constant(types.List())},
	},
	lists: []string{"evidence_refs"},
}

var relationSpec = itemSpec{
	wrapKey: "relation",
	aliases: []alias{
		{"from", "subject"},
		{"source", "subject"},
		{"to", "object"},
		{"target", "object"},
		{"property", "relation"},
	},
	defaults: []fill{
		{"subject", constant(types.String("unknown"))},
		{"object", constant(types.String("unknown"))},
		{"relation", constant(types.String("related_to"))},
		{"status", constant(types.String(types.StatusInferred))},
		{"confidence", constant(types.Null())},
		{"evidence_refs", constant(types.List())},
	},
	lists: []string{"evidence_refs"},
}

var variantSpec = itemSpec{
	wrapKey: "variant_name",
	aliases: []alias{
		{"name", "variant_name"},
	},
	defaults: []fill{
		{"parent_term", constant(types.String("unknown"))},
		{"variant_name", constant(types.String("unknown_variant"))},
		{"description", constant(types.String(""))},
		{"status", constant(types.String(types.StatusInferred))},
		{"confidence", constant(types.Null())},
		{"evidence_refs", constant(types.List())},
	},
	lists: []string{"evidence_refs"},
}

var eventSpec = itemSpec{
	wrapKey: "name",
	aliases: []alias{
		{"event", "name"},
	},
	defaults: []fill{
		{"name", constant(types.String("unknown_event"))},
		{"description", copyOf("name")},
		{"source_terms", constant(types.List())},
		{"status", constant(types.String(types.StatusCandidate))},
		{"evidence_refs", constant(types.List())},
	},
	lists: []string{"source_terms", "evidence_refs"},
}

var questionSpec = itemSpec{
	wrapKey:          "question_text",
	fromString:       questionFromString,
	fromStringAction: ActionCoerceStringToQuestion,
	aliases: []alias{
		{"question", "question_text"},
	},
	defaults: []fill{
		{"question_text", constant(types.String(""))},
		{"question_key_candidate", slugOf("question_text")},
		{"scope", constant(types.String("unknown"))},
		{"trigger_terms", constant(types.List())},
		{"status", constant(types.String(types.StatusCandidate))},
		{"evidence_refs", constant(types.List())},
	},
	lists: []string{"trigger_terms", "evidence_refs"},
}

var playSpec = itemSpec{
	wrapKey: "name",
	aliases: []alias{
		{"play", "name"},
		{"play_name", "name"},
	},
	defaults: []fill{
		{"name", constant(types.String("unknown_play"))},
		{"family", constant(types.String("scenario"))},
		{"description", copyOf("name")},
		{"status", constant(types.String(types.StatusCandidate))},
		{"evidence_refs", constant(types.List())},
	},
	lists: []string{"evidence_refs"},
}

func questionFromString(s string) *types.Map {
	m := types.NewMap()
	m.Set("question_key_candidate", types.String(slugify(s)))
	m.Set("question_text", types.String(s))
	m.Set("scope", types.String("unknown"))
	m.Set("trigger_terms", types.List())
	m.Set("status", types.String(types.StatusCandidate))
	m.Set("evidence_refs", types.List())
	return m
}

func constant(v types.Value) func(*types.Map) types.Value {
	return func(*types.Map) types.Value { return v.Clone() }
}

func copyOf(key string) func(*types.Map) types.Value {
	return func(item *types.Map) types.Value { return item.Lookup(key).Clone() }
}

func slugOf(key string) func(*types.Map) types.Value {
	return func(item *types.Map) types.Value { return types.String(slugify(item.Lookup(key).Text())) }
}

// fillDetail renders key=value for the action log. Strings are shown
// bare, everything else as JSON.
func fillDetail(key string, v types.Value) string {
	if s, ok := v.AsString(); ok {
		return key + "=" + s
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return key
	}
	return key + "=" + string(data)
}

// normalizeTerm lower-cases, collapses whitespace and unescapes &amp;.
func normalizeTerm(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return strings.ReplaceAll(s, "&amp;", "&")
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

const maxSlugLen = 80

// slugify lower-cases s, collapses non-alphanumeric runs to underscores
// and caps the result at 80 characters.
func slugify(s string) string {
	out := nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	out = strings.Trim(out, "_")
	if len(out) > maxSlugLen {
		out = out[:maxSlugLen]
	}
	if out == "" {
		return "unknown"
	}
	return out
}
