// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kawidev/knowledge-gate/internal/pipeline"
	"github.com/kawidev/knowledge-gate/internal/storage"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	configureEnv(v)
	return v
}

func TestResolveConfigDefaults(t *testing.T) {
	c, err := resolveConfig(newTestViper())
	require.NoError(t, err)
	assert.Equal(t, "./data", c.DataDir)
	assert.Equal(t, "info", c.LogLevel)
	assert.GreaterOrEqual(t, c.Workers, 1)
	assert.Equal(t, types.DefaultSchemaContractVersion, c.SchemaContractVersion)
	assert.Equal(t, 20, c.Library.MaxResults)
}

func TestResolveConfigEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/legacy")
	t.Setenv("KNOWLEDGE_GATE_LOG_LEVEL", "DEBUG")
	t.Setenv("KNOWLEDGE_GATE_WORKERS", "4")
	t.Setenv("KNOWLEDGE_GATE_LIBRARY_MAX_RESULTS", "5")

	c, err := resolveConfig(newTestViper())
	require.NoError(t, err)
	assert.Equal(t, "/legacy", c.DataDir)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 4, c.Workers)
	assert.Equal(t, 5, c.Library.MaxResults)

	t.Setenv("KNOWLEDGE_GATE_DATA_DIR", "/prefixed")
	c, err = resolveConfig(newTestViper())
	require.NoError(t, err)
	assert.Equal(t, "/prefixed", c.DataDir)
}

func TestResolveConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"log level", "log_level", "loud"},
		{"zero workers", "workers", 0},
		{"too many workers", "workers", 1000},
		{"empty data dir", "data_dir", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestViper()
			v.Set(tt.key, tt.val)
			_, err := resolveConfig(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func gateTestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "gate"}
	addGateFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestRunOverridesOnlyChangedFlags(t *testing.T) {
	assert.True(t, runOverrides(gateTestCmd(t)).Empty())

	o := runOverrides(gateTestCmd(t, "--max-broken-refs", "0", "--min-evidence-resolution-rate", "0.5"))
	require.NotNil(t, o.MaxBrokenRefsCount)
	assert.Equal(t, 0, *o.MaxBrokenRefsCount)
	require.NotNil(t, o.MinEvidenceResolutionRate)
	assert.Equal(t, 0.5, *o.MinEvidenceResolutionRate)
	assert.Nil(t, o.MinSemanticItemsWithEvidenceRate)
}

func TestPolicyFromFlags(t *testing.T) {
	saved := cfg
	t.Cleanup(func() { cfg = saved })

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run_thresholds:\n  max_broken_refs_count: 3\n"), 0o644))
	cfg = types.PipelineConfig{PolicyFile: path}

	p, err := policyFromFlags(gateTestCmd(t, "--min-semantic-evidence-rate", "0.25"))
	require.NoError(t, err)
	run := p.Rules().RunThresholds
	require.NotNil(t, run.MaxBrokenRefsCount)
	assert.Equal(t, 3, *run.MaxBrokenRefsCount)
	require.NotNil(t, run.MinSemanticItemsWithEvidenceRate)
	assert.Equal(t, 0.25, *run.MinSemanticItemsWithEvidenceRate)

	cfg = types.PipelineConfig{PolicyFile: filepath.Join(t.TempDir(), "missing.json")}
	_, err = policyFromFlags(gateTestCmd(t))
	require.Error(t, err)
}

func TestRunGateOutcome(t *testing.T) {
	failed := types.GateReport{RunThresholdIssues: []types.RunIssue{{Code: "broken_refs_above_threshold"}}}

	assert.NoError(t, runGateOutcome(gateTestCmd(t), failed))
	err := runGateOutcome(gateTestCmd(t, "--fail-on-run-gate"), failed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 threshold issue")
	assert.NoError(t, runGateOutcome(gateTestCmd(t, "--fail-on-run-gate"), types.GateReport{RunGatePassed: true}))
}

func TestPrintGateSummary(t *testing.T) {
	var buf bytes.Buffer
	issue := types.RunIssue{
		Code:     "broken_refs_above_threshold",
		Severity: types.SeverityWarning,
		Metric:   "broken_refs_count",
		Value:    4,
	}
	printGateSummary(&buf, types.GateReport{
		RecordGatePassedCount: 2,
		RecordGateFailedCount: 1,
		RunThresholdIssues:    []types.RunIssue{issue},
	})
	out := buf.String()
	assert.Contains(t, out, "run gate: failed")
	assert.Contains(t, out, "records passed: 2, failed: 1")
	assert.Contains(t, out, "broken_refs_count=4.000")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

var cliInput = []string{
	`{"job_meta": {"status": "ok", "run_id": "run-1"}, "source_bundle": {"post_ids": ["good"]}, "knowledge_extract": {"terms_detected": [{"term": "FVG", "status": "observed", "evidence_refs": ["post:good:text"]}]}, "provenance_index": [{"ref_id": "post:good:text"}]}`,
	`{"job_meta": {"status": "ok"}, "source_bundle": {"post_ids": ["bad"]}, "knowledge_extract": {"terms_detected": [{"term": "BOS", "status": "observed", "evidence_refs": ["post:bad:missing"]}]}}`,
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCLIStages(t *testing.T) {
	dir := t.TempDir()
	paths := pipeline.NewPaths(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.Input), 0o755))
	require.NoError(t, os.WriteFile(paths.Input, []byte(strings.Join(cliInput, "\n")+"\n"), 0o644))

	out, err := execute(t, "--data-dir", dir, "qa")
	require.NoError(t, err)
	assert.Contains(t, out, "records: 2")
	assert.True(t, storage.Exists(paths.QAReport))

	out, err = execute(t, "--data-dir", dir, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, paths.Schema)

	out, err = execute(t, "--data-dir", dir, "export", "--fail-on-run-gate")
	require.Error(t, err)
	assert.Contains(t, out, "run gate: failed")
	var report types.ExportReport
	ok, err := storage.ReadJSON(paths.LibraryExportReport, &report)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, report.InputRecordCount)
	assert.Equal(t, report.InputRecordCount, report.ReadyCount+report.RejectCount)

	out, err = execute(t, "--data-dir", dir, "library", "store")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed:")
	assert.True(t, storage.Exists(paths.LibraryDB))

	out, err = execute(t, "--data-dir", dir, "library", "retrieve", "--rejects", "--json")
	require.NoError(t, err)
	var rejects []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rejects))
	assert.Len(t, rejects, report.RejectCount)
}
