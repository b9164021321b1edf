// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Top-level sections of a canonical knowledge record.
const (
	SectionJobMeta           = "job_meta"
	SectionSourceBundle      = "source_bundle"
	SectionRawCapture        = "raw_capture"
	SectionKnowledgeExtract  = "knowledge_extract"
	SectionTradingContext    = "trading_context_extract"
	SectionMappingCandidates = "contextor_mapping_candidates"
	SectionQualityControl    = "quality_control"
	SectionProvenanceIndex   = "provenance_index"
)

// Semantic status values.
const (
	StatusObserved  = "observed"
	StatusInferred  = "inferred"
	StatusUncertain = "uncertain"
	StatusCandidate = "candidate"
)

// JobStatusPartial marks a job whose extraction did not complete.
const JobStatusPartial = "partial"

// TopLevelSections lists the eight required sections in canonical order.
// provenance_index is the only list-shaped section.
var TopLevelSections = []string{
	SectionJobMeta,
	SectionSourceBundle,
	SectionRawCapture,
	SectionKnowledgeExtract,
	SectionTradingContext,
	SectionMappingCandidates,
	SectionQualityControl,
	SectionProvenanceIndex,
}

// SemanticSections are the knowledge_extract lists whose items carry a
// semantic status.
var SemanticSections = []string{
	"terms_detected",
	"definitions_candidate",
	"relations_candidate",
	"variants_candidate",
}

// KnowledgeExtractLists are all list fields scaffolded under
// knowledge_extract.
var KnowledgeExtractLists = append(append([]string{}, SemanticSections...), "contradictions_or_ambiguities")

// CandidateSections are the contextor_mapping_candidates lists.
var CandidateSections = []string{
	"potential_events",
	"potential_questions",
	"potential_play_candidates",
}

// QualityControlLists are the list fields scaffolded under quality_control.
var QualityControlLists = []string{
	"missing_data",
	"uncertainties",
	"possible_hallucination_risks",
}

// TradingContextKeys are the eight fixed trading-context categories.
var TradingContextKeys = []string{
	"htf_elements",
	"ltf_elements",
	"time_windows_mentioned",
	"poi_elements",
	"liquidity_elements",
	"execution_elements",
	"invalidation_elements",
	"outcome_elements",
}

// SemanticStatuses is the set of statuses allowed on semantic items.
var SemanticStatuses = map[string]bool{
	StatusObserved:  true,
	StatusInferred:  true,
	StatusUncertain: true,
}

// Record is a canonical knowledge record. It wraps the ordered tree so
// that producer fields outside the contract survive untouched, and offers
// read accessors for the fields downstream stages consult.
type Record struct {
	root *Map
}

// NewRecord wraps m. A nil map yields an empty record.
func NewRecord(m *Map) Record {
	if m == nil {
		m = NewMap()
	}
	return Record{root: m}
}

// RecordFromValue wraps v when it is a map and yields an empty record
// otherwise.
func RecordFromValue(v Value) Record {
	m, _ := v.AsMap()
	return NewRecord(m)
}

// Map exposes the underlying tree.
func (r Record) Map() *Map {
	if r.root == nil {
		return NewMap()
	}
	return r.root
}

// Value returns the record as a map value.
func (r Record) Value() Value { return MapValue(r.Map()) }

// Clone returns a deep copy.
func (r Record) Clone() Record { return NewRecord(r.root.Clone()) }

// Section returns the named top-level mapping section.
func (r Record) Section(name string) (*Map, bool) {
	return r.root.GetMap(name)
}

// List returns section.key when it is a list.
func (r Record) List(section, key string) []Value {
	sec, ok := r.Section(section)
	if !ok {
		return nil
	}
	items, _ := sec.GetList(key)
	return items
}

// Provenance returns the provenance_index entries.
func (r Record) Provenance() []Value {
	items, _ := r.root.GetList(SectionProvenanceIndex)
	return items
}

// JobStatus returns job_meta.status as text, or "unknown" when falsy.
func (r Record) JobStatus() string {
	sec, _ := r.Section(SectionJobMeta)
	v := sec.Lookup("status")
	if !v.Truthy() {
		return "unknown"
	}
	return v.Text()
}

// JobMeta returns job_meta.key as an optional string. Non-string values
// are rendered as text; absent and null values yield nil.
func (r Record) JobMeta(key string) *string {
	sec, _ := r.Section(SectionJobMeta)
	return optionalText(sec.Lookup(key))
}

// PostID returns the first source post id, or "unknown".
func (r Record) PostID() string {
	v := r.sourceFirst("post_ids")
	if v.IsNull() {
		return "unknown"
	}
	return v.Text()
}

// PostURL returns the first source post url.
func (r Record) PostURL() *string { return optionalText(r.sourceFirst("post_urls")) }

// Timestamp returns the first source timestamp.
func (r Record) Timestamp() *string { return optionalText(r.sourceFirst("timestamps_utc")) }

// AuthorHandle returns source_bundle.author_handle.
func (r Record) AuthorHandle() *string {
	sec, _ := r.Section(SectionSourceBundle)
	return optionalText(sec.Lookup("author_handle"))
}

func (r Record) sourceFirst(key string) Value {
	items := r.List(SectionSourceBundle, key)
	if len(items) == 0 {
		return Null()
	}
	return items[0]
}

// MarshalJSON encodes the record tree.
func (r Record) MarshalJSON() ([]byte, error) { return r.Map().MarshalJSON() }

// UnmarshalJSON decodes a record tree.
func (r *Record) UnmarshalJSON(data []byte) error {
	m := NewMap()
	if err := m.UnmarshalJSON(data); err != nil {
		return err
	}
	r.root = m
	return nil
}

func optionalText(v Value) *string {
	if v.IsNull() {
		return nil
	}
	s := v.Text()
	return &s
}
