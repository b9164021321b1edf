// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/kawidev/knowledge-gate/internal/canonical"
	"github.com/kawidev/knowledge-gate/internal/storage"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*Store, Streams) {
	t.Helper()
	tmpDir := t.TempDir()
	store, err := NewStore(types.LibraryConfig{Dir: filepath.Join(tmpDir, "library"), MaxResults: 20})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, Streams{
		Ready:   filepath.Join(tmpDir, "processed", "ready.jsonl"),
		Rejects: filepath.Join(tmpDir, "processed", "rejects.jsonl"),
	}
}

func strp(s string) *string { return &s }

// canonicalWithTerms canonicalizes a raw record whose first term carries
// an inline definition, so the definition is lifted into
// definitions_candidate the way the QA stage does it.
func canonicalWithTerms(t *testing.T, terms ...string) types.Record {
	t.Helper()
	items := make([]string, len(terms))
	for i, term := range terms {
		items[i] = `{"term": "` + term + `", "normalized_term": "` + strings.ToLower(term) + `", "category": "concept", "status": "observed", "evidence_refs": []}`
	}
	items[0] = strings.TrimSuffix(items[0], "}") + `, "definition": "a price imbalance left by displacement"}`
	doc := `{"knowledge_extract": {"terms_detected": [` + strings.Join(items, ",") + `]}}`
	v, err := types.ParseJSON([]byte(doc))
	require.NoError(t, err)
	return canonical.Canonicalize(v).Record
}

func readyRecord(t *testing.T, postID, priority string, terms ...string) types.ReadyRecord {
	t.Helper()
	return types.ReadyRecord{
		LibraryIngestMeta: types.IngestMeta{
			IngestedAtUTC:         "2026-04-01T00:00:00Z",
			RunID:                 strp("run-1"),
			SchemaContractVersion: types.DefaultSchemaContractVersion,
			QAPassed:              true,
			ExportGatePassed:      true,
		},
		SourceRef:       types.SourceRef{PostID: postID, PostURL: strp("https://x.com/" + postID)},
		QualitySnapshot: types.QualitySnapshot{JobStatus: "ok", EvidenceResolutionRate: 1, ProvenanceUtilizationRate: 0.5},
		CanonicalRecord: canonicalWithTerms(t, terms...),
		CurationHints: types.CurationHints{
			Priority:       priority,
			SuggestedFocus: []string{"terms", "definitions"},
			Notes:          []string{},
		},
	}
}

func rejectRecord(postID string) types.RejectRecord {
	return types.RejectRecord{
		RejectMeta: types.RejectMeta{RejectedAtUTC: "2026-04-01T00:00:00Z", RunID: strp("run-1")},
		SourceRef:  types.RejectSourceRef{PostID: postID},
		GateResult: types.GateResult{RejectReasons: []types.RejectReason{{
			Code: "broken_evidence_ref", Severity: "error", Category: types.CategoryProvenance, Message: "missing ref",
		}}},
		QualitySnapshot: types.RejectSnapshot{QualitySnapshot: types.QualitySnapshot{JobStatus: "ok"}, ErrorCount: 1},
	}
}

func writeStreams(t *testing.T, streams Streams, ready []types.ReadyRecord, rejects []types.RejectRecord) {
	t.Helper()
	_, err := storage.WriteJSONL(streams.Ready, ready)
	require.NoError(t, err)
	_, err = storage.WriteJSONL(streams.Rejects, rejects)
	require.NoError(t, err)
}

func touch(t *testing.T, paths ...string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	for _, p := range paths {
		require.NoError(t, os.Chtimes(p, future, future))
	}
}

func sampleStreams(t *testing.T) ([]types.ReadyRecord, []types.RejectRecord) {
	t.Helper()
	ready := []types.ReadyRecord{
		readyRecord(t, "p-low", types.PriorityLow, "Liquidity"),
		readyRecord(t, "p-high", types.PriorityHigh, "FVG", "Displacement"),
		readyRecord(t, "p-med", types.PriorityMedium, "Orderblock"),
	}
	return ready, []types.RejectRecord{rejectRecord("p-bad")}
}

func ingest(t *testing.T, store *Store, streams Streams) (IngestSummary, string) {
	t.Helper()
	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), streams, &buf)
	require.NoError(t, err)
	return summary, buf.String()
}

// --- schema tests ---

func TestNewStoreCreatesSchema(t *testing.T) {
	store, _ := testSetup(t)
	for _, table := range []string{"records", "terms", "terms_fts", "rejects", "ingest_status"} {
		var count int
		err := store.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?`, table,
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}
	_, err := os.Stat(filepath.Join(store.Dir(), dbFile))
	assert.NoError(t, err)
}

func TestNewStoreRequiresDir(t *testing.T) {
	_, err := NewStore(types.LibraryConfig{})
	assert.Error(t, err)
}

// --- ingest tests ---

func TestIngest(t *testing.T) {
	store, streams := testSetup(t)
	ready, rejects := sampleStreams(t)
	writeStreams(t, streams, ready, rejects)

	summary, out := ingest(t, store, streams)
	assert.Equal(t, IngestSummary{Indexed: 3, Rejected: 1}, summary)
	assert.Contains(t, out, "indexed: 3, updated: 0, rejected: 1, skipped: 0, failed: 0")

	var terms int
	require.NoError(t, store.db.QueryRow(`SELECT count(*) FROM terms`).Scan(&terms))
	assert.Equal(t, 7, terms, "four detected terms and three definitions")

	_, err := os.Stat(filepath.Join(store.Dir(), queueYAML))
	assert.NoError(t, err, "curation queue written after ingest")
}

func TestIngestSkipsUnchanged(t *testing.T) {
	store, streams := testSetup(t)
	ready, rejects := sampleStreams(t)
	writeStreams(t, streams, ready, rejects)
	ingest(t, store, streams)

	summary, out := ingest(t, store, streams)
	assert.Equal(t, IngestSummary{Skipped: 2}, summary)
	assert.Contains(t, out, "skipped ready (unchanged)")
}

func TestIngestUpdatesChanged(t *testing.T) {
	store, streams := testSetup(t)
	ready, rejects := sampleStreams(t)
	writeStreams(t, streams, ready, rejects)
	ingest(t, store, streams)

	_, err := storage.WriteJSONL(streams.Ready, []types.ReadyRecord{readyRecord(t, "p-high", types.PriorityMedium, "Breaker")})
	require.NoError(t, err)
	touch(t, streams.Ready)

	summary, _ := ingest(t, store, streams)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Skipped, "the reject stream did not change")

	results, err := store.Retrieve(context.Background(), QueryOptions{PostID: "p-high"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.PriorityMedium, results[0].Priority)
	assert.Equal(t, []string{"Breaker"}, results[0].Terms, "old terms replaced")

	results, err = store.Retrieve(context.Background(), QueryOptions{Query: "fvg"})
	require.NoError(t, err)
	assert.Empty(t, results, "stale FTS entries removed")
}

func TestIngestRejectSupersedesReady(t *testing.T) {
	store, streams := testSetup(t)
	ready, _ := sampleStreams(t)
	writeStreams(t, streams, ready, nil)
	ingest(t, store, streams)

	_, err := storage.WriteJSONL(streams.Rejects, []types.RejectRecord{rejectRecord("p-high")})
	require.NoError(t, err)
	touch(t, streams.Rejects)
	summary, _ := ingest(t, store, streams)
	assert.Equal(t, 1, summary.Rejected)

	results, err := store.Retrieve(context.Background(), QueryOptions{PostID: "p-high"})
	require.NoError(t, err)
	assert.Empty(t, results)

	var terms int
	require.NoError(t, store.db.QueryRow(`SELECT count(*) FROM terms WHERE record_key = 'p-high'`).Scan(&terms))
	assert.Zero(t, terms, "terms follow the record")

	rejects, err := store.Rejects(context.Background(), "p-high", 0)
	require.NoError(t, err)
	require.Len(t, rejects, 1)
	assert.Equal(t, 1, rejects[0].ErrorCount)
	require.Len(t, rejects[0].Reasons, 1)
	assert.Equal(t, "broken_evidence_ref", rejects[0].Reasons[0].Code)
}

func TestIngestMissingAndMalformedStreams(t *testing.T) {
	store, streams := testSetup(t)

	summary, out := ingest(t, store, streams)
	assert.Zero(t, summary.Total())
	assert.Contains(t, out, "missing ready stream")

	require.NoError(t, os.MkdirAll(filepath.Dir(streams.Ready), 0o755))
	require.NoError(t, os.WriteFile(streams.Ready, []byte("{not json}\n"), 0o644))
	summary, out = ingest(t, store, streams)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, out, "failed  ready stream")

	var status int
	require.NoError(t, store.db.QueryRow(`SELECT count(*) FROM ingest_status`).Scan(&status))
	assert.Zero(t, status, "failed streams are retried next time")
}

func TestUnknownPostsDoNotCollide(t *testing.T) {
	store, streams := testSetup(t)
	writeStreams(t, streams, []types.ReadyRecord{
		readyRecord(t, "unknown", types.PriorityLow, "Alpha"),
		readyRecord(t, "unknown", types.PriorityLow, "Beta"),
	}, nil)

	summary, _ := ingest(t, store, streams)
	assert.Equal(t, 2, summary.Indexed)

	results, err := store.Retrieve(context.Background(), QueryOptions{PostID: "unknown"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestIngestSummaryTotal(t *testing.T) {
	s := IngestSummary{Indexed: 2, Updated: 1, Rejected: 2, Skipped: 3, Failed: 1}
	assert.Equal(t, 9, s.Total())
	assert.True(t, s.Changed())
	assert.False(t, IngestSummary{Skipped: 2}.Changed())
}

// --- retrieval tests ---

func TestRetrieveFullTextSearch(t *testing.T) {
	store, streams := testSetup(t)
	ready, rejects := sampleStreams(t)
	writeStreams(t, streams, ready, rejects)
	ingest(t, store, streams)

	tests := []struct {
		query string
		want  []string
	}{
		{"fvg", []string{"p-high"}},
		{"imbalance", []string{"p-high", "p-low", "p-med"}},
		{"orderblock", []string{"p-med"}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			results, err := store.Retrieve(context.Background(), QueryOptions{Query: tt.query})
			require.NoError(t, err)
			var got []string
			for _, r := range results {
				got = append(got, r.PostID)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestRetrieveDeduplicatesMatches(t *testing.T) {
	store, streams := testSetup(t)
	writeStreams(t, streams, []types.ReadyRecord{readyRecord(t, "p1", types.PriorityHigh, "FVG", "FVG inversion")}, nil)
	ingest(t, store, streams)

	results, err := store.Retrieve(context.Background(), QueryOptions{Query: "fvg"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"FVG", "FVG inversion"}, results[0].Terms)
	assert.Equal(t, "https://x.com/p1", results[0].PostURL)
	assert.Equal(t, "run-1", results[0].RunID)
	assert.Equal(t, 0.5, results[0].ProvenanceUtilizationRate)
}

func TestRetrieveStructured(t *testing.T) {
	store, streams := testSetup(t)
	ready, rejects := sampleStreams(t)
	ready[2].QualitySnapshot.JobStatus = types.JobStatusPartial
	ready[0].CurationHints.SuggestedFocus = []string{"relations"}
	writeStreams(t, streams, ready, rejects)
	ingest(t, store, streams)

	tests := []struct {
		name string
		opts QueryOptions
		want []string
	}{
		{"priority order", QueryOptions{}, []string{"p-high", "p-med", "p-low"}},
		{"by priority", QueryOptions{Priority: types.PriorityMedium}, []string{"p-med"}},
		{"by job status", QueryOptions{JobStatus: types.JobStatusPartial}, []string{"p-med"}},
		{"by focus", QueryOptions{Focus: "relations"}, []string{"p-low"}},
		{"max results", QueryOptions{MaxResults: 2}, []string{"p-high", "p-med"}},
		{"combined", QueryOptions{Query: "liquidity", Priority: types.PriorityHigh}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := store.Retrieve(context.Background(), tt.opts)
			require.NoError(t, err)
			var got []string
			for _, r := range results {
				got = append(got, r.PostID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryOptionsIsEmpty(t *testing.T) {
	assert.True(t, QueryOptions{MaxResults: 5}.IsEmpty())
	assert.False(t, QueryOptions{Focus: "terms"}.IsEmpty())
}

// --- export tests ---

func TestExportYAML(t *testing.T) {
	store, streams := testSetup(t)
	ready, rejects := sampleStreams(t)
	writeStreams(t, streams, ready, rejects)
	ingest(t, store, streams)

	path, err := store.ExportYAML(context.Background(), QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), queueYAML), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var q Queue
	require.NoError(t, yaml.Unmarshal(data, &q))
	require.Len(t, q.Records, 3)
	assert.Equal(t, "p-high", q.Records[0].PostID)
	assert.Equal(t, "p-low", q.Records[2].PostID)
	require.Len(t, q.Rejects, 1)
	assert.Equal(t, "p-bad", q.Rejects[0].PostID)
}

func TestExportJSONFilteredByQuery(t *testing.T) {
	store, streams := testSetup(t)
	ready, rejects := sampleStreams(t)
	writeStreams(t, streams, ready, rejects)
	ingest(t, store, streams)

	path, err := store.ExportJSON(context.Background(), QueryOptions{Query: "imbalance"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var q Queue
	require.NoError(t, json.Unmarshal(data, &q))
	require.Len(t, q.Records, 3)
	assert.Equal(t, []string{types.PriorityHigh, types.PriorityMedium, types.PriorityLow},
		[]string{q.Records[0].Priority, q.Records[1].Priority, q.Records[2].Priority},
		"full-text matches are exported in priority order")
	assert.Empty(t, q.Rejects, "rejects carry no terms to match")
}

func TestExtractTerms(t *testing.T) {
	rows := extractTerms(canonicalWithTerms(t, "FVG"))
	require.Len(t, rows, 2)
	assert.Equal(t, termRow{kind: KindTerm, term: "FVG", content: "FVG fvg concept"}, rows[0])
	assert.Equal(t, KindDefinition, rows[1].kind)
	assert.Equal(t, "FVG a price imbalance left by displacement", rows[1].content)

	assert.Empty(t, extractTerms(types.NewRecord(nil)))
}

func TestSearchFindsLiftedDefinitionText(t *testing.T) {
	store, streams := testSetup(t)

	raw, err := types.ParseJSON([]byte(`{"source_bundle": {"post_ids": ["p-def"]},
		"knowledge_extract": {"terms_detected": [{"term": "IFVG", "definition": "Inversion fair value gap", "evidence_refs": ["ocr:img1"]}]}}`))
	require.NoError(t, err)
	rec := readyRecord(t, "p-def", types.PriorityLow, "placeholder")
	rec.CanonicalRecord = canonical.Canonicalize(raw).Record

	rows := extractTerms(rec.CanonicalRecord)
	require.Len(t, rows, 2)
	assert.Equal(t, termRow{kind: KindDefinition, term: "IFVG", content: "IFVG Inversion fair value gap"}, rows[1])

	writeStreams(t, streams, []types.ReadyRecord{rec}, nil)
	ingest(t, store, streams)

	results, err := store.Retrieve(context.Background(), QueryOptions{Query: "inversion"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p-def", results[0].PostID)
}
