// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package issues

import "github.com/kawidev/knowledge-gate/pkg/types"

// Diagnostic codes emitted by the validator.
const (
	CodeMissingTopLevelSection        = "missing_top_level_section"
	CodeInvalidType                   = "invalid_type"
	CodeInvalidItemType               = "invalid_item_type"
	CodeInvalidSemanticStatus         = "invalid_semantic_status"
	CodeInvalidCandidateStatus        = "invalid_candidate_status"
	CodeInvalidEvidenceRefsType       = "invalid_evidence_refs_type"
	CodeInvalidEvidenceRefItemType    = "invalid_evidence_ref_item_type"
	CodeMissingStatus                 = "missing_status_after_canonicalization"
	CodeSchemaContractError           = "schema_contract_error"
	CodeBrokenEvidenceRef             = "broken_evidence_ref"
	CodeObservedHedgingLanguage       = "observed_hedging_language"
	CodeUncertainHighConfidence       = "uncertain_high_confidence"
	CodeInferredWithoutEvidence       = "inferred_without_evidence"
	CodePartialWithoutMissingDataNote = "partial_without_missing_data_reason"
)

// Codes synthesized by the export gate.
const (
	CodeProvenanceResolutionBelowThreshold  = "provenance_resolution_below_threshold"
	CodeProvenanceUtilizationBelowThreshold = "provenance_utilization_below_threshold"
	CodeBrokenRefsAboveThreshold            = "broken_refs_above_threshold"
	CodeSemanticEvidenceRateBelowThreshold  = "semantic_evidence_rate_below_threshold"
	CodeMissingStatusAboveThreshold         = "missing_status_above_threshold"
	CodeObservedHedgingAboveThreshold       = "observed_hedging_above_threshold"
	CodePartialRecordDisallowed             = "partial_record_disallowed"
	CodeMissingGateDecision                 = "missing_gate_decision"
	CodeGateFailedWithoutReason             = "gate_failed_without_explicit_reason"
)

// WarningsAboveThresholdCode names the warning synthesized when a
// record's warnings in cat exceed the policy cap.
func WarningsAboveThresholdCode(cat types.Category) string {
	return string(cat) + "_warnings_above_threshold"
}
