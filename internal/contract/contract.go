// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package contract

import "github.com/kawidev/knowledge-gate/pkg/types"

// Contract is a named root schema for canonical records.
type Contract struct {
	Version string
	Root    Schema
}

// Check validates r against the contract. It never fails; every
// violation becomes one entry in the report.
func (c *Contract) Check(r types.Record) types.ContractReport {
	violations := []types.ContractViolation{}
	c.Root.check("", r.Value(), &violations)
	return types.ContractReport{OK: len(violations) == 0, Errors: violations}
}

var canonical = &Contract{
	Version: types.DefaultSchemaContractVersion,
	Root:    canonicalRecord(),
}

// Canonical returns the canonical knowledge record contract.
func Canonical() *Contract { return canonical }

// Check validates r against the canonical contract.
func Check(r types.Record) types.ContractReport { return canonical.Check(r) }

func str() Schema            { return Schema{Kind: KindString} }
func optStr() Schema         { return Schema{Kind: KindString, Nullable: true} }
func optNumber() Schema      { return Schema{Kind: KindNumber, Nullable: true} }
func optBool() Schema        { return Schema{Kind: KindBoolean, Nullable: true} }
func listOf(s Schema) Schema { return Schema{Kind: KindArray, Items: &s} }
func strList() Schema        { return listOf(str()) }

func object(title string, fields ...Field) Schema {
	return Schema{Kind: KindObject, Title: title, Fields: fields}
}

func required(name string, s Schema) Field { return Field{Name: name, Schema: s, Required: true} }
func optional(name string, s Schema) Field { return Field{Name: name, Schema: s} }

func semanticStatus() Schema {
	return Schema{
		Kind:     KindString,
		Nullable: true,
		Enum:     []string{types.StatusObserved, types.StatusInferred, types.StatusUncertain},
	}
}

// evidenceAware appends the fields every evidence-carrying item shares.
func evidenceAware(title string, fields ...Field) Schema {
	fields = append(fields,
		optional("evidence_refs", strList()),
		optional("confidence", optNumber()),
	)
	return object(title, fields...)
}

func canonicalRecord() Schema {
	labeled := object("LabeledContextItem",
		optional("label", optStr()),
		optional("evidence_refs", strList()),
	)
	trading := make([]Field, 0, len(types.TradingContextKeys))
	for _, key := range types.TradingContextKeys {
		trading = append(trading, optional(key, listOf(labeled)))
	}

	return object("CanonicalKnowledgeRecord",
		optional(types.SectionJobMeta, object("JobMeta",
			optional("pipeline_version", optStr()),
			optional("run_id", optStr()),
			optional("created_at_utc", optStr()),
			optional("source_type", optStr()),
			optional("status", optStr()),
		)),
		optional(types.SectionSourceBundle, object("SourceBundle",
			optional("platform", optStr()),
			optional("author_handle", optStr()),
			optional("author_display_name", optStr()),
			optional("post_ids", strList()),
			optional("post_urls", strList()),
			optional("timestamps_utc", strList()),
			optional("language", optStr()),
		)),
		optional(types.SectionRawCapture, object("RawCapture",
			optional("text_exact", strList()),
			optional("ocr_text", listOf(object("OCRTextItem",
				optional("image_id", optStr()),
				optional("text", optStr()),
				optional("quality", optStr()),
			))),
			optional("image_descriptions", listOf(object("ImageDescriptionItem",
				optional("image_id", optStr()),
				optional("observed_visual_elements", strList()),
				optional("chart_timeframe", optStr()),
				optional("instrument_hint", optStr()),
				optional("confidence", optNumber()),
			))),
		)),
		optional(types.SectionKnowledgeExtract, object("KnowledgeExtract",
			optional("terms_detected", listOf(evidenceAware("TermDetected",
				required("term", str()),
				optional("normalized_term", optStr()),
				optional("category", optStr()),
				optional("status", semanticStatus()),
			))),
			optional("definitions_candidate", listOf(evidenceAware("DefinitionCandidate",
				required("term", str()),
				required("definition_text", str()),
				required("definition_type", str()),
				optional("status", semanticStatus()),
			))),
			optional("relations_candidate", listOf(evidenceAware("RelationCandidate",
				required("subject", str()),
				required("relation", str()),
				required("object", str()),
				optional("status", semanticStatus()),
			))),
			optional("variants_candidate", listOf(evidenceAware("VariantCandidate",
				required("parent_term", str()),
				required("variant_name", str()),
				required("description", str()),
				optional("status", semanticStatus()),
			))),
			optional("contradictions_or_ambiguities", listOf(object("ContradictionOrAmbiguity",
				optional("topic", optStr()),
				optional("description", optStr()),
				optional("why_ambiguous", optStr()),
				optional("evidence_refs", strList()),
			))),
		)),
		optional(types.SectionTradingContext, object("TradingContextExtract", trading...)),
		optional(types.SectionMappingCandidates, object("ContextorMappingCandidates",
			optional("potential_events", listOf(object("PotentialEvent",
				required("name", str()),
				optional("description", optStr()),
				optional("source_terms", strList()),
				optional("status", optStr()),
				optional("evidence_refs", strList()),
			))),
			optional("potential_questions", listOf(object("PotentialQuestion",
				required("question_key_candidate", str()),
				required("question_text", str()),
				optional("scope", optStr()),
				optional("trigger_terms", strList()),
				optional("status", optStr()),
				optional("evidence_refs", strList()),
			))),
			optional("potential_play_candidates", listOf(object("PotentialPlayCandidate",
				optional("family", optStr()),
				required("name", str()),
				optional("description", optStr()),
				optional("status", optStr()),
				optional("evidence_refs", strList()),
			))),
		)),
		optional(types.SectionQualityControl, object("QualityControl",
			optional("missing_data", strList()),
			optional("uncertainties", strList()),
			optional("possible_hallucination_risks", strList()),
			optional("needs_human_review", optBool()),
		)),
		optional(types.SectionProvenanceIndex, listOf(object("ProvenanceEntry",
			required("ref_id", str()),
			optional("type", optStr()),
			optional("source_post_id", optStr()),
			optional("image_id", optStr()),
			optional("excerpt", optStr()),
		))),
	)
}
