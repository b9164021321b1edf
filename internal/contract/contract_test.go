// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kawidev/knowledge-gate/pkg/types"
)

func record(t *testing.T, doc string) types.Record {
	t.Helper()
	v, err := types.ParseJSON([]byte(doc))
	require.NoError(t, err)
	return types.RecordFromValue(v)
}

func TestCheckAcceptsMinimalRecord(t *testing.T) {
	report := Check(types.NewRecord(nil))
	assert.True(t, report.OK)
	assert.NotNil(t, report.Errors)
	assert.Empty(t, report.Errors)
}

func TestCheckAcceptsExtraFields(t *testing.T) {
	r := record(t, `{
		"job_meta": {"status": "ok", "producer_note": {"x": 1}},
		"knowledge_extract": {"terms_detected": [
			{"term": "FVG", "status": "observed", "evidence_refs": ["post:1"], "confidence": 0.7, "custom": true}
		]},
		"provenance_index": [{"ref_id": "post:1", "type": "post_text"}],
		"extra_section": 42
	}`)
	report := Check(r)
	assert.True(t, report.OK, "%+v", report.Errors)
}

func TestCheckViolations(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantPath string
		wantType string
	}{
		{
			name:     "section of wrong type",
			doc:      `{"job_meta": []}`,
			wantPath: "job_meta",
			wantType: "model_type",
		},
		{
			name:     "status outside enum",
			doc:      `{"knowledge_extract": {"terms_detected": [{"term": "x", "status": "maybe"}]}}`,
			wantPath: "knowledge_extract.terms_detected[0].status",
			wantType: "literal_error",
		},
		{
			name:     "missing required field",
			doc:      `{"knowledge_extract": {"relations_candidate": [{"subject": "a", "object": "b"}]}}`,
			wantPath: "knowledge_extract.relations_candidate[0].relation",
			wantType: "missing",
		},
		{
			name:     "evidence ref not a string",
			doc:      `{"knowledge_extract": {"variants_candidate": [{"parent_term": "a", "variant_name": "b", "description": "", "evidence_refs": [7]}]}}`,
			wantPath: "knowledge_extract.variants_candidate[0].evidence_refs[0]",
			wantType: "string_type",
		},
		{
			name:     "confidence not numeric",
			doc:      `{"knowledge_extract": {"terms_detected": [{"term": "x", "confidence": "high"}]}}`,
			wantPath: "knowledge_extract.terms_detected[0].confidence",
			wantType: "float_type",
		},
		{
			name:     "provenance ref id null",
			doc:      `{"provenance_index": [{"ref_id": null}]}`,
			wantPath: "provenance_index[0].ref_id",
			wantType: "string_type",
		},
		{
			name:     "needs review not boolean",
			doc:      `{"quality_control": {"needs_human_review": "yes"}}`,
			wantPath: "quality_control.needs_human_review",
			wantType: "bool_type",
		},
		{
			name:     "list expected",
			doc:      `{"source_bundle": {"post_ids": "123"}}`,
			wantPath: "source_bundle.post_ids",
			wantType: "list_type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Check(record(t, tt.doc))
			require.False(t, report.OK)
			require.Len(t, report.Errors, 1, "%+v", report.Errors)
			assert.Equal(t, tt.wantPath, report.Errors[0].Path)
			assert.Equal(t, tt.wantType, report.Errors[0].Type)
			assert.NotEmpty(t, report.Errors[0].Message)
		})
	}
}

func TestCheckReportsEveryViolation(t *testing.T) {
	r := record(t, `{"knowledge_extract": {"definitions_candidate": [{}]}}`)
	report := Check(r)
	assert.Len(t, report.Errors, 3)
}

func TestEnumMessage(t *testing.T) {
	r := record(t, `{"knowledge_extract": {"terms_detected": [{"term": "x", "status": "maybe"}]}}`)
	report := Check(r)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "Input should be 'observed', 'inferred' or 'uncertain'", report.Errors[0].Message)
}

func TestJSONSchema(t *testing.T) {
	doc := Canonical().JSONSchema()

	assert.Equal(t, jsonSchemaDialect, doc.Lookup("$schema").Text())
	assert.Equal(t, "CanonicalKnowledgeRecord", doc.Lookup("title").Text())

	props, ok := doc.GetMap("properties")
	require.True(t, ok)
	assert.Equal(t, types.TopLevelSections, props.Keys())

	kx, _ := props.GetMap(types.SectionKnowledgeExtract)
	kxProps, _ := kx.GetMap("properties")
	terms, _ := kxProps.GetMap("terms_detected")
	items, _ := terms.GetMap("items")
	req, _ := items.GetList("required")
	require.Len(t, req, 1)
	assert.Equal(t, "term", req[0].Text())

	termProps, _ := items.GetMap("properties")
	status, _ := termProps.GetMap("status")
	enum, _ := status.GetList("enum")
	assert.Len(t, enum, 4, "three statuses plus null")
}
