// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kawidev/knowledge-gate/internal/pipeline"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

var qaCmd = &cobra.Command{
	Use:   "qa",
	Short: "Canonicalize and validate the raw extraction stream",
	Long: `QA reads processed/knowledge_extract.jsonl (or --input), canonicalizes
every record, validates it against the canonical contract and writes the
canonical stream, the per-record quality reports and the run QA report.`,
	RunE: runQA,
}

func init() {
	qaCmd.Flags().String("input", "", "raw extraction JSONL (default: <data-dir>/processed/knowledge_extract.jsonl)")
	qaCmd.Flags().Int("max-records", 0, "process only the first n records (0 = all)")
	qaCmd.Flags().Bool("no-write", false, "print the summary without writing QA artifacts")

	rootCmd.AddCommand(qaCmd)
}

func runQA(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	maxRecords, _ := cmd.Flags().GetInt("max-records")
	noWrite, _ := cmd.Flags().GetBool("no-write")

	p, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}
	res, err := p.RunQA(cmd.Context(), pipeline.QAOptions{
		Input:      input,
		MaxRecords: maxRecords,
		NoWrite:    noWrite,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printQASummary(out, res.Report)
	if !noWrite {
		paths := p.Paths()
		for _, path := range []string{paths.Canonical, paths.QualityRecords, paths.QAReport} {
			fmt.Fprintf(out, "wrote %s\n", path)
		}
	}
	return nil
}

func printQASummary(w io.Writer, r types.QAReport) {
	m := r.QualityGateMetrics
	fmt.Fprintf(w, "records: %d\n", r.RecordCount)
	fmt.Fprintf(w, "errors: %d, warnings: %d, broken refs: %d\n",
		m.ErrorCountTotal, m.WarningCountTotal, m.BrokenRefsCount)
	fmt.Fprintf(w, "evidence resolution rate: %.3f\n", m.EvidenceResolutionRate)
	fmt.Fprintf(w, "provenance utilization rate: %.3f\n", m.ProvenanceUtilizationRate)
	for _, label := range r.StatusCounts.Labels() {
		fmt.Fprintf(w, "  status %-12s %d\n", label, r.StatusCounts.Get(label))
	}
}
