// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/kawidev/knowledge-gate/internal/gate"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

// --- gate subcommand ---

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate the export gate over the QA artifacts",
	Long: `Gate judges every canonical record against the record thresholds of
the effective policy and the QA report against the run thresholds. It
writes the gate report with the pass and fail streams. QA artifacts are
reused when present unless --refresh-qa is given.`,
	RunE: runGate,
}

func runGate(cmd *cobra.Command, args []string) error {
	policy, err := policyFromFlags(cmd)
	if err != nil {
		return err
	}
	refresh, _ := cmd.Flags().GetBool("refresh-qa")

	p, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}
	res, err := p.Gate(cmd.Context(), policy, refresh)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printGateSummary(out, res.Report)
	paths := p.Paths()
	for _, path := range []string{paths.GateReport, paths.ExportPass, paths.ExportFail} {
		fmt.Fprintf(out, "wrote %s\n", path)
	}
	return runGateOutcome(cmd, res.Report)
}

// --- export subcommand ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Gate the QA artifacts and write the library ready and reject streams",
	Long: `Export runs the gate, then partitions the canonical records into
library-ready records with curation hints and reject records with
structured reasons. It writes both streams with an export report.`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	policy, err := policyFromFlags(cmd)
	if err != nil {
		return err
	}
	refresh, _ := cmd.Flags().GetBool("refresh-qa")
	contractVersion, _ := cmd.Flags().GetString("schema-contract-version")
	if contractVersion == "" {
		contractVersion = cfg.SchemaContractVersion
	}

	p, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}
	res, err := p.Export(cmd.Context(), policy, refresh, contractVersion)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printGateSummary(out, res.Gate.Report)
	r := res.Export.Report
	fmt.Fprintf(out, "export %s: %d input, %d ready, %d rejected\n",
		r.ExportID, r.InputRecordCount, r.ReadyCount, r.RejectCount)
	paths := p.Paths()
	for _, path := range []string{paths.LibraryReady, paths.LibraryRejects, paths.LibraryExportReport} {
		fmt.Fprintf(out, "wrote %s\n", path)
	}
	return runGateOutcome(cmd, res.Gate.Report)
}

// --- policy subcommand ---

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Print the effective gate policy",
	Long: `Policy prints the default policy deep-merged with --policy-file and
any threshold flags, exactly as the gate would apply it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := policyFromFlags(cmd)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(policy, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encoding policy")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

// --- shared helpers ---

func addThresholdFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("min-evidence-resolution-rate", 0, "override run_thresholds.min_evidence_resolution_rate")
	cmd.Flags().Float64("min-semantic-evidence-rate", 0, "override run_thresholds.min_semantic_items_with_evidence_rate")
	cmd.Flags().Int("max-broken-refs", 0, "override run_thresholds.max_broken_refs_count")
}

func addGateFlags(cmd *cobra.Command) {
	addThresholdFlags(cmd)
	cmd.Flags().Bool("refresh-qa", false, "recompute QA artifacts even when present")
	cmd.Flags().Bool("fail-on-run-gate", false, "exit non-zero when the run gate fails")
}

// runOverrides collects the threshold flags the user actually set.
func runOverrides(cmd *cobra.Command) gate.RunOverrides {
	var o gate.RunOverrides
	flags := cmd.Flags()
	if flags.Changed("min-evidence-resolution-rate") {
		v, _ := flags.GetFloat64("min-evidence-resolution-rate")
		o.MinEvidenceResolutionRate = &v
	}
	if flags.Changed("min-semantic-evidence-rate") {
		v, _ := flags.GetFloat64("min-semantic-evidence-rate")
		o.MinSemanticItemsWithEvidenceRate = &v
	}
	if flags.Changed("max-broken-refs") {
		v, _ := flags.GetInt("max-broken-refs")
		o.MaxBrokenRefsCount = &v
	}
	return o
}

// policyFromFlags loads the configured policy file over the defaults and
// applies explicit threshold flags on top.
func policyFromFlags(cmd *cobra.Command) (gate.Policy, error) {
	policy := gate.DefaultPolicy()
	if cfg.PolicyFile != "" {
		p, err := gate.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return gate.Policy{}, err
		}
		policy = p
	}
	return gate.WithRunOverrides(policy, runOverrides(cmd))
}

func runGateOutcome(cmd *cobra.Command, r types.GateReport) error {
	failOnRunGate, _ := cmd.Flags().GetBool("fail-on-run-gate")
	if failOnRunGate && !r.RunGatePassed {
		return errors.Newf("run gate failed with %d threshold issue(s)", len(r.RunThresholdIssues))
	}
	return nil
}

func printGateSummary(w io.Writer, r types.GateReport) {
	status := "passed"
	if !r.RunGatePassed {
		status = "failed"
	}
	fmt.Fprintf(w, "run gate: %s\n", status)
	fmt.Fprintf(w, "records passed: %d, failed: %d\n", r.RecordGatePassedCount, r.RecordGateFailedCount)
	for _, is := range r.RunThresholdIssues {
		fmt.Fprintf(w, "  %s [%s] %s=%.3f threshold=%.3f\n", is.Code, is.Severity, is.Metric, is.Value, is.Threshold)
	}
}

func init() {
	addGateFlags(gateCmd)

	addGateFlags(exportCmd)
	exportCmd.Flags().String("schema-contract-version", "", "contract version stamped on ready records (default from config)")

	addThresholdFlags(policyCmd)

	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(policyCmd)
}
