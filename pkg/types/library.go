// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Curation priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// IngestMeta describes how a ready record entered the library stream.
type IngestMeta struct {
	IngestedAtUTC         string  `json:"ingested_at_utc"`
	PipelineVersion       *string `json:"pipeline_version"`
	RunID                 *string `json:"run_id"`
	SchemaContractVersion string  `json:"schema_contract_version"`
	QAPassed              bool    `json:"qa_passed"`
	ExportGatePassed      bool    `json:"export_gate_passed"`
}

// SourceRef points back at the originating post.
type SourceRef struct {
	PostID       string  `json:"post_id"`
	PostURL      *string `json:"post_url"`
	AuthorHandle *string `json:"author_handle"`
	TimestampUTC *string `json:"timestamp_utc"`
}

// RejectSourceRef is the reduced source pointer on reject records.
type RejectSourceRef struct {
	PostID  string  `json:"post_id"`
	PostURL *string `json:"post_url"`
}

// WarningCounts buckets gate warnings. Other absorbs every category not
// listed explicitly.
type WarningCounts struct {
	Structural int `json:"structural"`
	Semantic   int `json:"semantic"`
	Provenance int `json:"provenance"`
	Other      int `json:"other"`
}

// QualitySnapshot summarizes record quality at export time.
type QualitySnapshot struct {
	JobStatus                 string        `json:"job_status"`
	WarningCounts             WarningCounts `json:"warning_counts"`
	EvidenceResolutionRate    float64       `json:"evidence_resolution_rate"`
	ProvenanceUtilizationRate float64       `json:"provenance_utilization_rate"`
}

// CurationHints guide the order of human review.
type CurationHints struct {
	Priority       string   `json:"priority"`
	SuggestedFocus []string `json:"suggested_focus"`
	Notes          []string `json:"notes"`
}

// ReadyRecord is an accepted record enriched for the curation library.
type ReadyRecord struct {
	LibraryIngestMeta IngestMeta      `json:"library_ingest_meta"`
	SourceRef         SourceRef       `json:"source_ref"`
	QualitySnapshot   QualitySnapshot `json:"quality_snapshot"`
	CanonicalRecord   Record          `json:"canonical_record"`
	CurationHints     CurationHints   `json:"curation_hints"`
}

// RejectMeta describes when and from which run a record was rejected.
type RejectMeta struct {
	RejectedAtUTC   string  `json:"rejected_at_utc"`
	PipelineVersion *string `json:"pipeline_version"`
	RunID           *string `json:"run_id"`
}

// RejectReason is one structured reason for rejection.
type RejectReason struct {
	Code     string   `json:"code"`
	Severity string   `json:"severity"`
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

// GateResult carries the gate verdict on a reject record.
type GateResult struct {
	RecordGatePassed bool           `json:"record_gate_passed"`
	RejectReasons    []RejectReason `json:"reject_reasons"`
}

// RejectSnapshot is the quality snapshot plus the blocking error count.
type RejectSnapshot struct {
	QualitySnapshot
	ErrorCount int `json:"error_count"`
}

// RejectRecord is a failed record with structured reject reasons.
type RejectRecord struct {
	RejectMeta      RejectMeta      `json:"reject_meta"`
	SourceRef       RejectSourceRef `json:"source_ref"`
	GateResult      GateResult      `json:"gate_result"`
	QualitySnapshot RejectSnapshot  `json:"quality_snapshot"`
}

// ExportReport summarizes one library export run.
type ExportReport struct {
	ExportVersion         string `json:"export_version"`
	ExportID              string `json:"export_id"`
	SchemaContractVersion string `json:"schema_contract_version"`
	InputRecordCount      int    `json:"input_record_count"`
	ReadyCount            int    `json:"ready_count"`
	RejectCount           int    `json:"reject_count"`
	RunGatePassed         bool   `json:"run_gate_passed"`
}
