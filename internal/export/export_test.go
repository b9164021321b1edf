// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kawidev/knowledge-gate/internal/gate"
	"github.com/kawidev/knowledge-gate/internal/issues"
	"github.com/kawidev/knowledge-gate/internal/qa"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testExporter() *Exporter {
	return New(
		WithClock(func() time.Time { return fixedTime }),
		WithIDSource(func() string { return "export-1" }),
	)
}

func record(t *testing.T, doc string) types.Record {
	t.Helper()
	v, err := types.ParseJSON([]byte(doc))
	require.NoError(t, err)
	return types.RecordFromValue(v)
}

func counts(pairs ...any) types.Counts {
	var c types.Counts
	for i := 0; i < len(pairs); i += 2 {
		c.Add(pairs[i].(string), pairs[i+1].(int))
	}
	return c
}

func TestExportPartition(t *testing.T) {
	recs := []types.Record{
		record(t, `{"job_meta": {"status": "ok", "run_id": "r1", "pipeline_version": "v3"}, "source_bundle": {"post_ids": ["a"], "post_urls": ["https://x.com/a"], "author_handle": "@ict", "timestamps_utc": ["2026-01-01T00:00:00Z"]}}`),
		record(t, `{"job_meta": {"status": "ok"}, "source_bundle": {"post_ids": ["b"]}}`),
	}
	reports := []types.RecordReport{{RecordIndex: 0}, {RecordIndex: 1}}
	gr := types.GateReport{
		RunGatePassed: true,
		RecordDecisionSummary: []types.Decision{
			{RecordIndex: 0, Passed: true},
			{RecordIndex: 1, Passed: false, BlockingErrorCount: 1, Errors: []types.Issue{{
				Code: "broken_evidence_ref", Message: "gone", Category: types.CategoryProvenance, Severity: types.SeverityBlockingError,
			}}},
		},
	}

	res := testExporter().Export(recs, reports, gr, "")
	require.Len(t, res.Ready, 1)
	require.Len(t, res.Rejects, 1)

	assert.Equal(t, types.ExportReport{
		ExportVersion:         Version,
		ExportID:              "export-1",
		SchemaContractVersion: types.DefaultSchemaContractVersion,
		InputRecordCount:      2,
		ReadyCount:            1,
		RejectCount:           1,
		RunGatePassed:         true,
	}, res.Report)

	ready := res.Ready[0]
	assert.Equal(t, "2026-03-01T12:00:00Z", ready.LibraryIngestMeta.IngestedAtUTC)
	assert.Equal(t, "r1", *ready.LibraryIngestMeta.RunID)
	assert.Equal(t, "v3", *ready.LibraryIngestMeta.PipelineVersion)
	assert.True(t, ready.LibraryIngestMeta.QAPassed)
	assert.True(t, ready.LibraryIngestMeta.ExportGatePassed)
	assert.Equal(t, "a", ready.SourceRef.PostID)
	assert.Equal(t, "https://x.com/a", *ready.SourceRef.PostURL)
	assert.Equal(t, "@ict", *ready.SourceRef.AuthorHandle)
	assert.Equal(t, "2026-01-01T00:00:00Z", *ready.SourceRef.TimestampUTC)

	reject := res.Rejects[0]
	assert.Equal(t, "2026-03-01T12:00:00Z", reject.RejectMeta.RejectedAtUTC)
	assert.Nil(t, reject.RejectMeta.RunID)
	assert.Equal(t, "b", reject.SourceRef.PostID)
	assert.False(t, reject.GateResult.RecordGatePassed)
	assert.Equal(t, 1, reject.QualitySnapshot.ErrorCount)
	require.Len(t, reject.GateResult.RejectReasons, 1)
	assert.Equal(t, types.RejectReason{
		Code: "broken_evidence_ref", Severity: ReasonError, Category: types.CategoryProvenance, Message: "gone",
	}, reject.GateResult.RejectReasons[0])
}

func TestExportMissingDecision(t *testing.T) {
	recs := []types.Record{record(t, `{"job_meta": {"status": "partial"}}`)}
	res := testExporter().Export(recs, nil, types.GateReport{}, "contract-v9")

	require.Len(t, res.Rejects, 1)
	assert.Equal(t, "contract-v9", res.Report.SchemaContractVersion)
	rej := res.Rejects[0]
	assert.Equal(t, "unknown", rej.SourceRef.PostID)
	assert.Equal(t, "partial", rej.QualitySnapshot.JobStatus)
	require.Len(t, rej.GateResult.RejectReasons, 1)
	assert.Equal(t, issues.CodeMissingGateDecision, rej.GateResult.RejectReasons[0].Code)
	assert.Equal(t, types.CategoryStructural, rej.GateResult.RejectReasons[0].Category)
}

func TestReasons(t *testing.T) {
	tests := []struct {
		name  string
		d     types.Decision
		codes []string
		sevs  []string
	}{
		{
			name:  "failed without issues",
			d:     types.Decision{},
			codes: []string{CodeGateFailedWithoutReason},
			sevs:  []string{ReasonError},
		},
		{
			name:  "passed without issues",
			d:     types.Decision{Passed: true},
			codes: []string{},
			sevs:  []string{},
		},
		{
			name: "only blocking warnings count",
			d: types.Decision{Warnings: []types.Issue{
				{Code: "observed_with_hedging_language", Severity: types.SeverityWarning},
				{Code: "inferred_without_evidence", Severity: types.SeverityBlockingWarning, Category: types.CategorySemantic},
			}},
			codes: []string{"inferred_without_evidence"},
			sevs:  []string{ReasonWarning},
		},
		{
			name: "errors before warnings",
			d: types.Decision{
				Warnings: []types.Issue{{Code: "w", Severity: types.SeverityBlockingWarning}},
				Errors:   []types.Issue{{Code: "e"}},
			},
			codes: []string{"e", "w"},
			sevs:  []string{ReasonError, ReasonWarning},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reasons(tt.d)
			codes := []string{}
			sevs := []string{}
			for _, r := range got {
				codes = append(codes, r.Code)
				sevs = append(sevs, r.Severity)
				assert.NotEmpty(t, r.Category)
			}
			assert.Equal(t, tt.codes, codes)
			assert.Equal(t, tt.sevs, sevs)
		})
	}
}

func TestWarningCountsFoldsOther(t *testing.T) {
	wc := WarningCounts(counts("semantic", 2, "completeness", 1, "other", 3, "structural", 4))
	assert.Equal(t, types.WarningCounts{Structural: 4, Semantic: 2, Provenance: 0, Other: 4}, wc)
}

func TestPriority(t *testing.T) {
	tests := []struct {
		name     string
		d        types.Decision
		semantic int
		want     string
	}{
		{"high", types.Decision{Passed: true}, 10, types.PriorityHigh},
		{"semantic warnings demote", types.Decision{Passed: true, WarningCategoryCounts: counts("semantic", 1)}, 12, types.PriorityMedium},
		{"other warnings keep high", types.Decision{Passed: true, WarningCategoryCounts: counts("provenance", 2)}, 12, types.PriorityHigh},
		{"medium", types.Decision{Passed: true}, 4, types.PriorityMedium},
		{"few items", types.Decision{Passed: true}, 3, types.PriorityLow},
		{"failed", types.Decision{}, 50, types.PriorityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Priority(tt.d, tt.semantic))
		})
	}
}

func TestCurationHints(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		rep   types.RecordReport
		focus []string
		notes []string
	}{
		{
			name:  "empty record defaults to terms",
			doc:   `{"job_meta": {"status": "ok"}}`,
			focus: []string{FocusTerms},
			notes: []string{},
		},
		{
			name:  "definitions imply terms",
			doc:   `{"knowledge_extract": {"definitions_candidate": [{}], "relations_candidate": [{}]}}`,
			focus: []string{FocusTerms, FocusDefinitions, FocusRelations},
			notes: []string{},
		},
		{
			name:  "mapping candidates",
			doc:   `{"contextor_mapping_candidates": {"potential_events": [], "potential_questions": [{}]}}`,
			focus: []string{FocusContextorMapping},
			notes: []string{},
		},
		{
			name: "all notes",
			doc:  `{"job_meta": {"status": "partial"}}`,
			rep: types.RecordReport{
				Canonicalization: types.Canonicalization{
					Actions:  []types.Action{{Action: "ensure_top_level", Path: "raw_capture"}},
					PreStats: types.PreStats{EmptyImageDescriptionsSkeletonCount: 1},
				},
				Validation: types.ValidationReport{Metrics: types.Metrics{ObservedHedgingWarningsCount: 2}},
			},
			focus: []string{FocusTerms},
			notes: []string{NoteJobStatusPartial, NoteObservedHedging, NoteImageSkeleton, NoteCanonicalizationApplied},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hints(record(t, tt.doc), tt.rep, types.Decision{Passed: true})
			assert.Equal(t, tt.focus, h.SuggestedFocus)
			assert.Equal(t, tt.notes, h.Notes)
		})
	}
}

func TestExportAfterGate(t *testing.T) {
	raw := []string{
		`{"job_meta": {"status": "ok"}, "source_bundle": {"post_ids": ["ok1"]},
		  "knowledge_extract": {"terms_detected": [{"term": "FVG", "status": "observed", "evidence_refs": ["post:ok1:text"]}]},
		  "provenance_index": [{"ref_id": "post:ok1:text"}]}`,
		`{"job_meta": {"status": "ok"}, "source_bundle": {"post_ids": ["bad"]},
		  "knowledge_extract": {"terms_detected": [{"term": "BOS", "status": "observed", "evidence_refs": ["post:bad:nowhere"]}]}}`,
	}
	values := make([]types.Value, len(raw))
	for i, doc := range raw {
		v, err := types.ParseJSON([]byte(doc))
		require.NoError(t, err)
		values[i] = v
	}
	qres, err := qa.NewRunner().Run(context.Background(), values)
	require.NoError(t, err)
	gres := gate.New(gate.DefaultPolicy(), nil, nil).EvaluateRun(qres.Canonical, qres.Reports, qres.Report)

	res := testExporter().Export(qres.Canonical, qres.Reports, gres.Report, "")
	require.Len(t, res.Ready, 1)
	require.Len(t, res.Rejects, 1)
	assert.Equal(t, "ok1", res.Ready[0].SourceRef.PostID)
	assert.Equal(t, 1.0, res.Ready[0].QualitySnapshot.EvidenceResolutionRate)
	assert.Equal(t, "bad", res.Rejects[0].SourceRef.PostID)
	assert.NotEmpty(t, res.Rejects[0].GateResult.RejectReasons)
	assert.False(t, res.Report.RunGatePassed)
	assert.Equal(t, len(gres.Accepted), res.Report.ReadyCount)
	assert.Equal(t, len(gres.Rejected), res.Report.RejectCount)
}
