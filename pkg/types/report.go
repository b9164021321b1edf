// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Category groups diagnostic codes for reporting and gating.
type Category string

const (
	CategoryStructural   Category = "structural"
	CategoryProvenance   Category = "provenance"
	CategorySemantic     Category = "semantic"
	CategoryCompleteness Category = "completeness"
	CategoryOther        Category = "other"
)

// Categories lists every category in reporting order.
var Categories = []Category{
	CategoryStructural,
	CategoryProvenance,
	CategorySemantic,
	CategoryCompleteness,
	CategoryOther,
}

// Severity describes how the gate treats an issue.
type Severity string

const (
	SeverityBlockingError        Severity = "blocking_error"
	SeverityBlockingWarning      Severity = "blocking_warning"
	SeverityWarning              Severity = "warning"
	SeverityBlockingRunThreshold Severity = "blocking_run_threshold"
)

// Action is one normalization step applied during canonicalization.
type Action struct {
	Action string `json:"action"`
	Path   string `json:"path"`
	Detail string `json:"detail,omitempty"`
}

// PreStats holds drift statistics measured on the raw record before
// canonicalization. They feed QA telemetry only.
type PreStats struct {
	MixedTypeArraysCount                int `json:"mixed_type_arrays_count"`
	EmptyImageDescriptionsSkeletonCount int `json:"empty_image_descriptions_skeleton_count"`
}

// Issue is a single diagnostic. Category and Severity are filled in by
// the gate; the validator leaves them empty.
type Issue struct {
	Code     string   `json:"code"`
	Path     string   `json:"path"`
	Message  string   `json:"message"`
	Category Category `json:"category,omitempty"`
	Severity Severity `json:"severity,omitempty"`
}

// ContractViolation is one schema contract failure.
type ContractViolation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ContractReport is the schema contract verdict for one record.
type ContractReport struct {
	OK     bool                `json:"ok"`
	Errors []ContractViolation `json:"errors"`
}

// Metrics are the per-record quality counters and rates.
type Metrics struct {
	SemanticItemsTotal                   int     `json:"semantic_items_total"`
	SemanticItemsWithStatus              int     `json:"semantic_items_with_status"`
	SemanticItemsWithEvidence            int     `json:"semantic_items_with_evidence"`
	EvidenceRefsTotal                    int     `json:"evidence_refs_total"`
	EvidenceRefsResolved                 int     `json:"evidence_refs_resolved"`
	BrokenRefsCount                      int     `json:"broken_refs_count"`
	ProvenanceRefCount                   int     `json:"provenance_ref_count"`
	ProvenanceRefsUsedCount              int     `json:"provenance_refs_used_count"`
	MissingStatusCount                   int     `json:"missing_status_count"`
	ObservedHedgingWarningsCount         int     `json:"observed_hedging_warnings_count"`
	UncertainHighConfidenceWarningsCount int     `json:"uncertain_high_confidence_warnings_count"`
	InferredWithoutEvidenceWarningsCount int     `json:"inferred_without_evidence_warnings_count"`
	EvidenceResolutionRate               float64 `json:"evidence_resolution_rate"`
	ProvenanceUtilizationRate            float64 `json:"provenance_utilization_rate"`
	SemanticItemsWithEvidenceRate        float64 `json:"semantic_items_with_evidence_rate"`
	SchemaContractErrorCount             int     `json:"schema_contract_error_count"`
}

// ComputeRates fills the three derived rates from the counters.
func (m *Metrics) ComputeRates() {
	m.EvidenceResolutionRate = Rate(m.EvidenceRefsResolved, m.EvidenceRefsTotal, 1.0)
	m.ProvenanceUtilizationRate = Rate(m.ProvenanceRefsUsedCount, m.ProvenanceRefCount, 0.0)
	m.SemanticItemsWithEvidenceRate = Rate(m.SemanticItemsWithEvidence, m.SemanticItemsTotal, 0.0)
}

// Rate returns num/den, or empty when den is zero.
func Rate(num, den int, empty float64) float64 {
	if den == 0 {
		return empty
	}
	return float64(num) / float64(den)
}

// ValidationReport is the validator output for one canonical record.
type ValidationReport struct {
	Errors         []Issue        `json:"errors"`
	Warnings       []Issue        `json:"warnings"`
	Metrics        Metrics        `json:"metrics"`
	SchemaContract ContractReport `json:"schema_contract"`
}

// Canonicalization records what the canonicalizer did to one record.
type Canonicalization struct {
	Actions  []Action `json:"actions"`
	PreStats PreStats `json:"pre_stats"`
}

// RecordReport is the per-record QA output. RecordIndex is the position
// of the record in the input batch.
type RecordReport struct {
	RecordIndex      int              `json:"record_index"`
	PostID           string           `json:"post_id"`
	JobStatus        string           `json:"job_status"`
	Canonicalization Canonicalization `json:"canonicalization"`
	Validation       ValidationReport `json:"validation"`
}

// DriftStats summarizes raw-record drift across a batch.
type DriftStats struct {
	RecordsWithDrift                    int `json:"records_with_drift"`
	MixedTypeArraysCount                int `json:"mixed_type_arrays_count"`
	MixedTypeArraysRecords              int `json:"mixed_type_arrays_records"`
	EmptyImageDescriptionsSkeletonCount int `json:"empty_image_descriptions_skeleton_count"`
}

// QualityGateMetrics are the batch-wide sums of per-record metrics plus
// the aggregate rates the run gate checks.
type QualityGateMetrics struct {
	ErrorCountTotal               int     `json:"error_count_total"`
	WarningCountTotal             int     `json:"warning_count_total"`
	BrokenRefsCount               int     `json:"broken_refs_count"`
	EvidenceRefsTotal             int     `json:"evidence_refs_total"`
	EvidenceRefsResolved          int     `json:"evidence_refs_resolved"`
	ProvenanceRefCount            int     `json:"provenance_ref_count"`
	ProvenanceRefsUsedCount       int     `json:"provenance_refs_used_count"`
	SemanticItemsTotal            int     `json:"semantic_items_total"`
	SemanticItemsWithEvidence     int     `json:"semantic_items_with_evidence"`
	MissingStatusCount            int     `json:"missing_status_count"`
	ObservedHedgingWarningsCount  int     `json:"observed_hedging_warnings_count"`
	SchemaContractErrorCountTotal int     `json:"schema_contract_error_count_total"`
	EvidenceResolutionRate        float64 `json:"evidence_resolution_rate"`
	ProvenanceUtilizationRate     float64 `json:"provenance_utilization_rate"`
	SemanticItemsWithEvidenceRate float64 `json:"semantic_items_with_evidence_rate"`
	StructuralWarningsCount       int     `json:"structural_warnings_count"`
	SemanticWarningsCount         int     `json:"semantic_warnings_count"`
	ProvenanceWarningsCount       int     `json:"provenance_warnings_count"`
}

// QAReport is the run-level QA summary.
type QAReport struct {
	QAVersion             string             `json:"qa_version"`
	RecordCount           int                `json:"record_count"`
	StatusCounts          Counts             `json:"status_counts"`
	SchemaDrift           DriftStats         `json:"schema_drift_stats_pre_canonicalization"`
	ActionsCount          Counts             `json:"canonicalization_actions_count"`
	ActionsByDetailTop20  Counts             `json:"canonicalization_actions_by_detail_top20"`
	WarningCategoryCounts Counts             `json:"warning_category_counts"`
	ErrorCategoryCounts   Counts             `json:"error_category_counts"`
	QualityGateMetrics    QualityGateMetrics `json:"quality_gate_metrics"`
}

// Decision is the export gate verdict for one record.
type Decision struct {
	RecordIndex           int     `json:"record_index"`
	PostID                string  `json:"post_id"`
	JobStatus             string  `json:"job_status"`
	Passed                bool    `json:"passed"`
	BlockingErrorCount    int     `json:"blocking_error_count"`
	BlockingWarningCount  int     `json:"blocking_warning_count"`
	ErrorCategoryCounts   Counts  `json:"error_category_counts"`
	WarningCategoryCounts Counts  `json:"warning_category_counts"`
	Errors                []Issue `json:"errors"`
	Warnings              []Issue `json:"warnings"`
}

// RunIssue is a violated run threshold.
type RunIssue struct {
	Code      string   `json:"code"`
	Category  Category `json:"category"`
	Severity  Severity `json:"severity"`
	Metric    string   `json:"metric"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
}

// IssueCategoryCounts splits category histograms by issue kind.
type IssueCategoryCounts struct {
	Errors   Counts `json:"errors"`
	Warnings Counts `json:"warnings"`
}

// GateReport is the run-level export gate output. Policy echoes the
// effective policy tree, unknown keys included.
type GateReport struct {
	GateVersion           string              `json:"gate_version"`
	Policy                *Map                `json:"policy"`
	RunGatePassed         bool                `json:"run_gate_passed"`
	RecordGatePassedCount int                 `json:"record_gate_passed_count"`
	RecordGateFailedCount int                 `json:"record_gate_failed_count"`
	RecordDecisionSummary []Decision          `json:"record_decision_summary"`
	RunThresholdIssues    []RunIssue          `json:"run_threshold_issues"`
	IssueCategoryCounts   IssueCategoryCounts `json:"issue_category_counts"`
}

// RejectedRecord pairs a failing canonical record with its decision.
type RejectedRecord struct {
	RecordIndex  int      `json:"record_index"`
	PostID       string   `json:"post_id"`
	GateDecision Decision `json:"gate_decision"`
	Record       Record   `json:"record"`
}
