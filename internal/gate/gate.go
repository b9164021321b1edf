// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gate decides which canonical records may be exported. Each
// record gets a pass/fail decision from its validation report and the
// policy; the run as a whole is checked separately against aggregate
// thresholds. The two verdicts are independent: a run can fail while
// every record passes, and the reverse.
package gate

import (
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/kawidev/knowledge-gate/internal/issues"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

// Gate evaluates records and runs against a policy.
type Gate struct {
	policy     Policy
	classifier *issues.Classifier
	log        *zap.SugaredLogger
}

// New returns a Gate. A nil classifier selects the default rules and a
// nil logger discards output.
func New(policy Policy, classifier *issues.Classifier, log *zap.SugaredLogger) *Gate {
	if classifier == nil {
		classifier = issues.Default()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Gate{policy: policy, classifier: classifier, log: log}
}

// Policy returns the policy the gate applies.
func (g *Gate) Policy() Policy { return g.policy }

// RunResult is the outcome of gating a batch.
type RunResult struct {
	Report   types.GateReport
	Accepted []types.Record
	Rejected []types.RejectedRecord
}

// EvaluateRecord decides whether one record may be exported. Errors always
// block; warnings block when their code is listed in the policy.
func (g *Gate) EvaluateRecord(rep types.RecordReport) types.Decision {
	v := rep.Validation
	errs := append([]types.Issue{}, v.Errors...)
	if !hasCode(v.Errors, issues.CodeSchemaContractError) {
		for _, ce := range v.SchemaContract.Errors {
			errs = append(errs, types.Issue{Code: issues.CodeSchemaContractError, Path: ce.Path, Message: ce.Message})
		}
	}
	warns := append([]types.Issue{}, v.Warnings...)
	warns = append(warns, g.thresholdWarnings(rep)...)

	d := types.Decision{
		RecordIndex: rep.RecordIndex,
		PostID:      rep.PostID,
		JobStatus:   rep.JobStatus,
		Errors:      make([]types.Issue, 0, len(errs)),
		Warnings:    make([]types.Issue, 0, len(warns)),
	}
	for _, is := range errs {
		if is.Code == "" {
			is.Code = "unknown_error"
		}
		is.Category = g.classifier.Categorize(is.Code)
		is.Severity = types.SeverityBlockingError
		d.ErrorCategoryCounts.Inc(string(is.Category))
		d.Errors = append(d.Errors, is)
	}
	for _, is := range warns {
		if is.Code == "" {
			is.Code = "unknown_warning"
		}
		is.Category = g.classifier.Categorize(is.Code)
		is.Severity = types.SeverityWarning
		if g.policy.blocking(is.Code) {
			is.Severity = types.SeverityBlockingWarning
			d.BlockingWarningCount++
		}
		d.WarningCategoryCounts.Inc(string(is.Category))
		d.Warnings = append(d.Warnings, is)
	}
	d.BlockingErrorCount = len(d.Errors)
	d.Passed = d.BlockingErrorCount == 0 && d.BlockingWarningCount == 0
	return d
}

// thresholdWarnings synthesizes warnings for exceeded record thresholds
// and disallowed partial jobs.
func (g *Gate) thresholdWarnings(rep types.RecordReport) []types.Issue {
	rules := g.policy.rules
	rt := rules.RecordThresholds
	m := rep.Validation.Metrics
	var out []types.Issue

	if len(rt.MaxWarningCategories) > 0 {
		var perCat types.Counts
		for _, w := range rep.Validation.Warnings {
			perCat.Inc(string(g.classifier.Categorize(w.Code)))
		}
		for _, cat := range sortedKeys(rt.MaxWarningCategories) {
			limit := rt.MaxWarningCategories[cat]
			if n := perCat.Get(cat); n > limit {
				out = append(out, types.Issue{
					Code:    issues.WarningsAboveThresholdCode(types.Category(cat)),
					Path:    "validation.warnings",
					Message: fmt.Sprintf("%d %s warnings exceed limit %d", n, cat, limit),
				})
			}
		}
	}
	if rt.MaxMissingStatusCount != nil && m.MissingStatusCount > *rt.MaxMissingStatusCount {
		out = append(out, types.Issue{
			Code:    issues.CodeMissingStatusAboveThreshold,
			Path:    "validation.metrics.missing_status_count",
			Message: fmt.Sprintf("%d exceeds limit %d", m.MissingStatusCount, *rt.MaxMissingStatusCount),
		})
	}
	if rt.MaxObservedHedgingWarnings != nil && m.ObservedHedgingWarningsCount > *rt.MaxObservedHedgingWarnings {
		out = append(out, types.Issue{
			Code:    issues.CodeObservedHedgingAboveThreshold,
			Path:    "validation.metrics.observed_hedging_warnings_count",
			Message: fmt.Sprintf("%d exceeds limit %d", m.ObservedHedgingWarningsCount, *rt.MaxObservedHedgingWarnings),
		})
	}
	if rt.MinProvenanceUtilization != nil && m.ProvenanceUtilizationRate < *rt.MinProvenanceUtilization {
		out = append(out, types.Issue{
			Code:    issues.CodeProvenanceUtilizationBelowThreshold,
			Path:    "validation.metrics.provenance_utilization_rate",
			Message: fmt.Sprintf("%s below minimum %s", formatRate(m.ProvenanceUtilizationRate), formatRate(*rt.MinProvenanceUtilization)),
		})
	}
	if rep.JobStatus == types.JobStatusPartial && !rules.JobStatusRules.PartialAllowed() {
		out = append(out, types.Issue{
			Code:    issues.CodePartialRecordDisallowed,
			Path:    "job_meta.status",
			Message: "partial records are not allowed by policy",
		})
	}
	return out
}

// EvaluateRun gates every record and checks the aggregate metrics of qa
// against the run thresholds. Canonical records without a report get a
// failing missing-decision verdict.
func (g *Gate) EvaluateRun(canonical []types.Record, reports []types.RecordReport, qa types.QAReport) RunResult {
	decisions := make([]types.Decision, 0, len(reports))
	byIndex := make(map[int]types.Decision, len(reports))
	for _, rep := range reports {
		d := g.EvaluateRecord(rep)
		decisions = append(decisions, d)
		byIndex[d.RecordIndex] = d
	}
	for i, r := range canonical {
		if _, ok := byIndex[i]; !ok {
			d := MissingDecision(i, r)
			decisions = append(decisions, d)
			byIndex[i] = d
		}
	}

	res := RunResult{
		Accepted: []types.Record{},
		Rejected: []types.RejectedRecord{},
	}
	for _, i := range sortedIndexes(byIndex) {
		if i < 0 || i >= len(canonical) {
			continue
		}
		d := byIndex[i]
		if d.Passed {
			res.Accepted = append(res.Accepted, canonical[i])
			continue
		}
		res.Rejected = append(res.Rejected, types.RejectedRecord{
			RecordIndex:  i,
			PostID:       d.PostID,
			GateDecision: d,
			Record:       canonical[i],
		})
	}

	report := types.GateReport{
		GateVersion:           Version,
		Policy:                g.policy.Tree(),
		RecordDecisionSummary: decisions,
		RunThresholdIssues:    g.runIssues(qa.QualityGateMetrics),
	}
	report.RunGatePassed = len(report.RunThresholdIssues) == 0
	for _, d := range decisions {
		if d.Passed {
			report.RecordGatePassedCount++
		} else {
			report.RecordGateFailedCount++
		}
		report.IssueCategoryCounts.Errors.Merge(d.ErrorCategoryCounts)
		report.IssueCategoryCounts.Warnings.Merge(d.WarningCategoryCounts)
	}
	res.Report = report

	g.log.Infow("export gate evaluated",
		"run_gate_passed", report.RunGatePassed,
		"accepted", len(res.Accepted),
		"rejected", len(res.Rejected),
		"run_threshold_issues", len(report.RunThresholdIssues),
	)
	return res
}

func (g *Gate) runIssues(qgm types.QualityGateMetrics) []types.RunIssue {
	rt := g.policy.rules.RunThresholds
	out := []types.RunIssue{}
	add := func(code, metric string, value, threshold float64) {
		out = append(out, types.RunIssue{
			Code:      code,
			Category:  g.classifier.Categorize(code),
			Severity:  types.SeverityBlockingRunThreshold,
			Metric:    metric,
			Value:     value,
			Threshold: threshold,
		})
	}

	if rt.MaxBrokenRefsCount != nil && qgm.BrokenRefsCount > *rt.MaxBrokenRefsCount {
		add(issues.CodeBrokenRefsAboveThreshold, "broken_refs_count",
			float64(qgm.BrokenRefsCount), float64(*rt.MaxBrokenRefsCount))
	}
	if rt.MinEvidenceResolutionRate != nil && qgm.EvidenceResolutionRate < *rt.MinEvidenceResolutionRate {
		add(issues.CodeProvenanceResolutionBelowThreshold, "evidence_resolution_rate",
			qgm.EvidenceResolutionRate, *rt.MinEvidenceResolutionRate)
	}
	if rt.MinSemanticItemsWithEvidenceRate != nil && qgm.SemanticItemsWithEvidenceRate < *rt.MinSemanticItemsWithEvidenceRate {
		add(issues.CodeSemanticEvidenceRateBelowThreshold, "semantic_items_with_evidence_rate",
			qgm.SemanticItemsWithEvidenceRate, *rt.MinSemanticItemsWithEvidenceRate)
	}
	if rt.MinProvenanceUtilizationRate != nil && qgm.ProvenanceUtilizationRate < *rt.MinProvenanceUtilizationRate {
		add(issues.CodeProvenanceUtilizationBelowThreshold, "provenance_utilization_rate",
			qgm.ProvenanceUtilizationRate, *rt.MinProvenanceUtilizationRate)
	}
	return out
}

// MissingDecision is the failing verdict used when a record has no gate
// decision.
func MissingDecision(idx int, r types.Record) types.Decision {
	cat := issues.Categorize(issues.CodeMissingGateDecision)
	d := types.Decision{
		RecordIndex:        idx,
		PostID:             r.PostID(),
		JobStatus:          r.JobStatus(),
		BlockingErrorCount: 1,
		Errors: []types.Issue{{
			Code:     issues.CodeMissingGateDecision,
			Path:     "record_index",
			Message:  "no gate decision for record " + strconv.Itoa(idx),
			Category: cat,
			Severity: types.SeverityBlockingError,
		}},
		Warnings: []types.Issue{},
	}
	d.ErrorCategoryCounts.Inc(string(cat))
	return d
}

func hasCode(list []types.Issue, code string) bool {
	for _, is := range list {
		if is.Code == code {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedIndexes(m map[int]types.Decision) []int {
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func formatRate(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
