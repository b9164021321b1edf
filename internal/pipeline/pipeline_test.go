// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kawidev/knowledge-gate/internal/export"
	"github.com/kawidev/knowledge-gate/internal/gate"
	"github.com/kawidev/knowledge-gate/internal/storage"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

var inputLines = []string{
	`{"job_meta": {"status": "ok", "run_id": "run-7"}, "source_bundle": {"post_ids": ["good"]}, "knowledge_extract": {"terms_detected": [{"term": "FVG", "status": "observed", "evidence_refs": ["post:good:text"]}]}, "provenance_index": [{"ref_id": "post:good:text"}]}`,
	`{"job_meta": {"status": "ok"}, "source_bundle": {"post_ids": ["bad"]}, "knowledge_extract": {"terms_detected": [{"term": "BOS", "status": "observed", "evidence_refs": ["post:bad:missing"]}]}}`,
	`{"job_meta": {"status": "ok"}, "source_bundle": {"post_ids": ["third"]}}`,
}

func setup(t *testing.T) *Pipeline {
	t.Helper()
	paths := NewPaths(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.Input), 0o755))
	require.NoError(t, os.WriteFile(paths.Input, []byte(strings.Join(inputLines, "\n")+"\n"), 0o644))
	return New(paths,
		WithWorkers(2),
		WithExportOptions(
			export.WithClock(func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }),
			export.WithIDSource(func() string { return "fixed-id" }),
		),
	)
}

func TestNewPaths(t *testing.T) {
	p := NewPaths("/data")
	assert.Equal(t, filepath.Join("/data", "processed", "knowledge_extract.jsonl"), p.Input)
	assert.Equal(t, filepath.Join("/data", "processed", "knowledge_export_gate_report.json"), p.GateReport)
	assert.Equal(t, filepath.Join("/data", "library", "library.db"), p.LibraryDB)

	moved := p.WithLibraryDir("/elsewhere")
	assert.Equal(t, filepath.Join("/elsewhere", "library.db"), moved.LibraryDB)
	assert.Equal(t, p, p.WithLibraryDir(""))
}

func TestRunQAWritesArtifacts(t *testing.T) {
	p := setup(t)
	res, err := p.RunQA(context.Background(), QAOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Report.RecordCount)

	for _, path := range []string{p.Paths().Canonical, p.Paths().QualityRecords, p.Paths().QAReport} {
		assert.True(t, storage.Exists(path), path)
	}
	canon, err := storage.ReadJSONL[types.Record](p.Paths().Canonical)
	require.NoError(t, err)
	require.Len(t, canon, 3)
	assert.Equal(t, "bad", canon[1].PostID())
}

func TestRunQAOptions(t *testing.T) {
	p := setup(t)
	res, err := p.RunQA(context.Background(), QAOptions{MaxRecords: 2, NoWrite: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Report.RecordCount)
	assert.False(t, storage.Exists(p.Paths().QAReport))

	alt := filepath.Join(t.TempDir(), "alt.jsonl")
	require.NoError(t, os.WriteFile(alt, []byte(inputLines[0]+"\n"), 0o644))
	res, err = p.RunQA(context.Background(), QAOptions{Input: alt, NoWrite: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.RecordCount)
}

func TestLoadOrRunQAReusesArtifacts(t *testing.T) {
	p := setup(t)
	ctx := context.Background()
	_, err := p.RunQA(ctx, QAOptions{MaxRecords: 1})
	require.NoError(t, err)

	res, err := p.LoadOrRunQA(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.RecordCount, "persisted artifacts are reused")
	require.Len(t, res.Reports, 1)
	assert.Equal(t, "good", res.Reports[0].PostID)

	res, err = p.LoadOrRunQA(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Report.RecordCount, "refresh recomputes from the input stream")
}

func TestLoadOrRunQAComputesWhenMissing(t *testing.T) {
	p := setup(t)
	res, err := p.LoadOrRunQA(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Report.RecordCount)
	assert.True(t, storage.Exists(p.Paths().QAReport))
}

func TestGateWritesStreams(t *testing.T) {
	p := setup(t)
	res, err := p.Gate(context.Background(), gate.DefaultPolicy(), false)
	require.NoError(t, err)
	assert.False(t, res.Report.RunGatePassed)

	pass, err := storage.ReadValues(p.Paths().ExportPass)
	require.NoError(t, err)
	fail, err := storage.ReadValues(p.Paths().ExportFail)
	require.NoError(t, err)
	assert.Len(t, pass, len(res.Accepted))
	assert.Len(t, fail, len(res.Rejected))
	assert.Equal(t, 3, len(pass)+len(fail))

	var report types.GateReport
	found, err := storage.ReadJSON(p.Paths().GateReport, &report)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, gate.Version, report.GateVersion)
	assert.Len(t, report.RecordDecisionSummary, 3)
}

func TestExportWritesLibraryStreams(t *testing.T) {
	p := setup(t)
	res, err := p.Export(context.Background(), gate.DefaultPolicy(), false, "")
	require.NoError(t, err)

	rep := res.Export.Report
	assert.Equal(t, "fixed-id", rep.ExportID)
	assert.Equal(t, 3, rep.InputRecordCount)
	assert.Equal(t, rep.ReadyCount+rep.RejectCount, rep.InputRecordCount)
	assert.Equal(t, res.Gate.Report.RunGatePassed, rep.RunGatePassed)

	ready, err := storage.ReadJSONL[types.ReadyRecord](p.Paths().LibraryReady)
	require.NoError(t, err)
	require.Len(t, ready, rep.ReadyCount)
	require.NotEmpty(t, ready)
	assert.Equal(t, "good", ready[0].SourceRef.PostID)
	assert.Equal(t, "run-7", *ready[0].LibraryIngestMeta.RunID)
	assert.Equal(t, types.DefaultSchemaContractVersion, ready[0].LibraryIngestMeta.SchemaContractVersion)

	rejects, err := storage.ReadJSONL[types.RejectRecord](p.Paths().LibraryRejects)
	require.NoError(t, err)
	assert.Len(t, rejects, rep.RejectCount)

	var back types.ExportReport
	found, err := storage.ReadJSON(p.Paths().LibraryExportReport, &back)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rep, back)
}

func TestWriteSchema(t *testing.T) {
	p := setup(t)
	path, err := p.WriteSchema("")
	require.NoError(t, err)
	assert.Equal(t, p.Paths().Schema, path)

	var schema map[string]any
	found, err := storage.ReadJSON(path, &schema)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "object", schema["type"])
}
