// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export turns gated canonical records into the two curation
// library streams: ready records enriched with review hints, and reject
// records carrying structured reasons.
package export

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kawidev/knowledge-gate/internal/gate"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

// Version tags every export report.
const Version = "knowledge-library-export-v1"

// Reject reason severities.
const (
	ReasonError   = "error"
	ReasonWarning = "warning"
)

// CodeGateFailedWithoutReason marks a failing decision that captured no
// blocking issue.
const CodeGateFailedWithoutReason = "gate_failed_without_explicit_reason"

// Curation focus labels and notes.
const (
	FocusTerms            = "terms"
	FocusDefinitions      = "definitions"
	FocusRelations        = "relations"
	FocusContextorMapping = "contextor_mapping"

	NoteJobStatusPartial        = "job_status_partial"
	NoteObservedHedging         = "observed_hedging_present"
	NoteImageSkeleton           = "image_description_skeleton_detected"
	NoteCanonicalizationApplied = "canonicalization_applied"
)

// Priority cut-offs on the number of semantic items.
const (
	highPrioritySemanticItems   = 10
	mediumPrioritySemanticItems = 4
)

// Result holds both streams and the run summary.
type Result struct {
	Ready   []types.ReadyRecord
	Rejects []types.RejectRecord
	Report  types.ExportReport
}

// Exporter builds library streams. The clock and id source are
// replaceable for deterministic output.
type Exporter struct {
	now   func() time.Time
	newID func() string
	log   *zap.SugaredLogger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock sets the time source for ingest and reject timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithIDSource sets the generator for export ids.
func WithIDSource(newID func() string) Option {
	return func(e *Exporter) { e.newID = newID }
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Exporter) { e.log = log }
}

// New returns an Exporter using the wall clock and random UUIDs.
func New(opts ...Option) *Exporter {
	e := &Exporter{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
		log:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export splits canonical records into ready and reject streams by their
// gate decision. Records without a decision are rejected with a synthetic
// missing-decision error.
func (e *Exporter) Export(canonical []types.Record, reports []types.RecordReport, gr types.GateReport, schemaContractVersion string) Result {
	if schemaContractVersion == "" {
		schemaContractVersion = types.DefaultSchemaContractVersion
	}
	decisions := make(map[int]types.Decision, len(gr.RecordDecisionSummary))
	for _, d := range gr.RecordDecisionSummary {
		decisions[d.RecordIndex] = d
	}
	stamp := e.now().UTC().Format(time.RFC3339Nano)

	res := Result{
		Ready:   []types.ReadyRecord{},
		Rejects: []types.RejectRecord{},
	}
	for i, rec := range canonical {
		var rep types.RecordReport
		if i < len(reports) {
			rep = reports[i]
		}
		d, ok := decisions[i]
		if !ok {
			d = gate.MissingDecision(i, rec)
		}
		if d.Passed {
			res.Ready = append(res.Ready, readyRecord(rec, rep, d, schemaContractVersion, stamp))
		} else {
			res.Rejects = append(res.Rejects, rejectRecord(rec, rep, d, stamp))
		}
	}

	res.Report = types.ExportReport{
		ExportVersion:         Version,
		ExportID:              e.newID(),
		SchemaContractVersion: schemaContractVersion,
		InputRecordCount:      len(canonical),
		ReadyCount:            len(res.Ready),
		RejectCount:           len(res.Rejects),
		RunGatePassed:         gr.RunGatePassed,
	}
	e.log.Infow("library streams exported",
		"export_id", res.Report.ExportID,
		"ready", res.Report.ReadyCount,
		"rejects", res.Report.RejectCount,
	)
	return res
}

func readyRecord(rec types.Record, rep types.RecordReport, d types.Decision, version, stamp string) types.ReadyRecord {
	return types.ReadyRecord{
		LibraryIngestMeta: types.IngestMeta{
			IngestedAtUTC:         stamp,
			PipelineVersion:       rec.JobMeta("pipeline_version"),
			RunID:                 rec.JobMeta("run_id"),
			SchemaContractVersion: version,
			QAPassed:              len(rep.Validation.Errors) == 0,
			ExportGatePassed:      d.Passed,
		},
		SourceRef: types.SourceRef{
			PostID:       rec.PostID(),
			PostURL:      rec.PostURL(),
			AuthorHandle: rec.AuthorHandle(),
			TimestampUTC: rec.Timestamp(),
		},
		QualitySnapshot: snapshot(rec, rep, d),
		CanonicalRecord: rec,
		CurationHints:   hints(rec, rep, d),
	}
}

func rejectRecord(rec types.Record, rep types.RecordReport, d types.Decision, stamp string) types.RejectRecord {
	return types.RejectRecord{
		RejectMeta: types.RejectMeta{
			RejectedAtUTC:   stamp,
			PipelineVersion: rec.JobMeta("pipeline_version"),
			RunID:           rec.JobMeta("run_id"),
		},
		SourceRef: types.RejectSourceRef{
			PostID:  rec.PostID(),
			PostURL: rec.PostURL(),
		},
		GateResult: types.GateResult{
			RecordGatePassed: d.Passed,
			RejectReasons:    Reasons(d),
		},
		QualitySnapshot: types.RejectSnapshot{
			QualitySnapshot: snapshot(rec, rep, d),
			ErrorCount:      d.BlockingErrorCount,
		},
	}
}

func snapshot(rec types.Record, rep types.RecordReport, d types.Decision) types.QualitySnapshot {
	m := rep.Validation.Metrics
	return types.QualitySnapshot{
		JobStatus:                 rec.JobStatus(),
		WarningCounts:             WarningCounts(d.WarningCategoryCounts),
		EvidenceResolutionRate:    m.EvidenceResolutionRate,
		ProvenanceUtilizationRate: m.ProvenanceUtilizationRate,
	}
}

// WarningCounts folds a category histogram into the fixed export buckets.
// Categories without a bucket of their own count as other.
func WarningCounts(c types.Counts) types.WarningCounts {
	var wc types.WarningCounts
	for _, label := range c.Labels() {
		n := c.Get(label)
		switch types.Category(label) {
		case types.CategoryStructural:
			wc.Structural = n
		case types.CategorySemantic:
			wc.Semantic = n
		case types.CategoryProvenance:
			wc.Provenance = n
		default:
			wc.Other += n
		}
	}
	return wc
}

// Reasons lists why a decision failed: every error, then every blocking
// warning.
func Reasons(d types.Decision) []types.RejectReason {
	out := []types.RejectReason{}
	for _, is := range d.Errors {
		out = append(out, reason(is, ReasonError))
	}
	for _, is := range d.Warnings {
		if is.Severity == types.SeverityBlockingWarning || is.Severity == types.SeverityBlockingError {
			out = append(out, reason(is, ReasonWarning))
		}
	}
	if len(out) == 0 && !d.Passed {
		out = append(out, types.RejectReason{
			Code:     CodeGateFailedWithoutReason,
			Severity: ReasonError,
			Category: types.CategoryOther,
			Message:  "Record failed export gate but no blocking issue was captured in decision payload.",
		})
	}
	return out
}

func reason(is types.Issue, severity string) types.RejectReason {
	cat := is.Category
	if cat == "" {
		cat = types.CategoryOther
	}
	return types.RejectReason{Code: is.Code, Severity: severity, Category: cat, Message: is.Message}
}

func hints(rec types.Record, rep types.RecordReport, d types.Decision) types.CurationHints {
	var focus []string
	add := func(labels ...string) {
		for _, l := range labels {
			if !contains(focus, l) {
				focus = append(focus, l)
			}
		}
	}
	if nonEmpty(rec, "knowledge_extract", "terms_detected", "definitions_candidate") {
		add(FocusTerms, FocusDefinitions)
	}
	if nonEmpty(rec, "knowledge_extract", "relations_candidate") {
		add(FocusRelations)
	}
	if nonEmpty(rec, "contextor_mapping_candidates", types.CandidateSections...) {
		add(FocusContextorMapping)
	}
	if len(focus) == 0 {
		focus = []string{FocusTerms}
	}

	m := rep.Validation.Metrics
	notes := []string{}
	if rec.JobStatus() == types.JobStatusPartial {
		notes = append(notes, NoteJobStatusPartial)
	}
	if m.ObservedHedgingWarningsCount > 0 {
		notes = append(notes, NoteObservedHedging)
	}
	if rep.Canonicalization.PreStats.EmptyImageDescriptionsSkeletonCount > 0 {
		notes = append(notes, NoteImageSkeleton)
	}
	if len(rep.Canonicalization.Actions) > 0 {
		notes = append(notes, NoteCanonicalizationApplied)
	}

	return types.CurationHints{
		Priority:       Priority(d, m.SemanticItemsTotal),
		SuggestedFocus: focus,
		Notes:          notes,
	}
}

// Priority ranks a record for review from its gate verdict and how much
// semantic content it carries.
func Priority(d types.Decision, semanticItems int) string {
	switch {
	case d.Passed && semanticItems >= highPrioritySemanticItems && WarningCounts(d.WarningCategoryCounts).Semantic == 0:
		return types.PriorityHigh
	case d.Passed && semanticItems >= mediumPrioritySemanticItems:
		return types.PriorityMedium
	default:
		return types.PriorityLow
	}
}

func nonEmpty(rec types.Record, section string, keys ...string) bool {
	for _, k := range keys {
		if len(rec.List(section, k)) > 0 {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
