// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package qa canonicalizes and validates a batch of raw knowledge records
// and aggregates the run-level QA report. Records are processed in
// parallel; every output keeps the input order as record_index.
package qa

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kawidev/knowledge-gate/internal/canonical"
	"github.com/kawidev/knowledge-gate/internal/issues"
	"github.com/kawidev/knowledge-gate/internal/validate"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

// Version tags every QA report.
const Version = "knowledge-quality-gates-v1"

// topDetails caps the action-by-detail histogram.
const topDetails = 20

// Result is the outcome of a QA run.
type Result struct {
	Canonical []types.Record
	Reports   []types.RecordReport
	Report    types.QAReport
}

// Runner runs QA over record batches.
type Runner struct {
	validator  *validate.Validator
	classifier *issues.Classifier
	workers    int
	log        *zap.SugaredLogger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers bounds the number of records processed concurrently.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Runner) { r.log = log }
}

// WithClassifier sets the rules used for validation and category counts.
func WithClassifier(c *issues.Classifier) Option {
	return func(r *Runner) { r.classifier = c }
}

// NewRunner returns a Runner. Without options it uses the default rules,
// one worker per CPU and a no-op logger.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		classifier: issues.Default(),
		workers:    runtime.NumCPU(),
		log:        zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.validator = validate.New(r.classifier, nil)
	return r
}

// Run canonicalizes and validates every raw record. It only fails when
// ctx is cancelled.
func (r *Runner) Run(ctx context.Context, raw []types.Value) (Result, error) {
	canon := make([]types.Record, len(raw))
	reports := make([]types.RecordReport, len(raw))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, rec := range raw {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			canon[i], reports[i] = r.processOne(i, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	report := Summarize(reports, r.classifier)
	r.log.Infow("qa complete",
		"records", report.RecordCount,
		"errors", report.QualityGateMetrics.ErrorCountTotal,
		"warnings", report.QualityGateMetrics.WarningCountTotal,
		"evidence_resolution_rate", report.QualityGateMetrics.EvidenceResolutionRate,
	)
	return Result{Canonical: canon, Reports: reports, Report: report}, nil
}

func (r *Runner) processOne(idx int, raw types.Value) (types.Record, types.RecordReport) {
	res := canonical.Canonicalize(raw)
	v := r.validator.Validate(res.Record)
	rep := types.RecordReport{
		RecordIndex: idx,
		PostID:      res.Record.PostID(),
		JobStatus:   res.Record.JobStatus(),
		Canonicalization: types.Canonicalization{
			Actions:  res.Actions,
			PreStats: res.PreStats,
		},
		Validation: v,
	}
	r.log.Debugw("record checked",
		"record_index", idx,
		"post_id", rep.PostID,
		"actions", len(res.Actions),
		"errors", len(v.Errors),
		"warnings", len(v.Warnings),
	)
	return res.Record, rep
}

// Summarize aggregates per-record reports into the run-level QA report.
// Reports must be in record_index order for the histograms to be stable.
func Summarize(reports []types.RecordReport, classifier *issues.Classifier) types.QAReport {
	if classifier == nil {
		classifier = issues.Default()
	}
	var (
		status, actions, details types.Counts
		errCats, warnCats        types.Counts
		drift                    types.DriftStats
		agg                      types.QualityGateMetrics
	)

	for _, rep := range reports {
		pre := rep.Canonicalization.PreStats
		if len(rep.Canonicalization.Actions) > 0 {
			drift.RecordsWithDrift++
		}
		if pre.MixedTypeArraysCount > 0 {
			drift.MixedTypeArraysRecords++
		}
		drift.MixedTypeArraysCount += pre.MixedTypeArraysCount
		drift.EmptyImageDescriptionsSkeletonCount += pre.EmptyImageDescriptionsSkeletonCount

		for _, a := range rep.Canonicalization.Actions {
			actions.Inc(a.Action)
			if a.Detail != "" {
				details.Inc(a.Detail)
			} else {
				details.Inc(a.Path)
			}
		}

		v := rep.Validation
		m := v.Metrics
		agg.ErrorCountTotal += len(v.Errors)
		agg.WarningCountTotal += len(v.Warnings)
		agg.BrokenRefsCount += m.BrokenRefsCount
		agg.EvidenceRefsTotal += m.EvidenceRefsTotal
		agg.EvidenceRefsResolved += m.EvidenceRefsResolved
		agg.ProvenanceRefCount += m.ProvenanceRefCount
		agg.ProvenanceRefsUsedCount += m.ProvenanceRefsUsedCount
		agg.SemanticItemsTotal += m.SemanticItemsTotal
		agg.SemanticItemsWithEvidence += m.SemanticItemsWithEvidence
		agg.MissingStatusCount += m.MissingStatusCount
		agg.ObservedHedgingWarningsCount += m.ObservedHedgingWarningsCount
		agg.SchemaContractErrorCountTotal += len(v.SchemaContract.Errors)

		status.Inc(rep.JobStatus)
		for _, is := range v.Errors {
			errCats.Inc(string(classifier.Categorize(is.Code)))
		}
		for _, is := range v.Warnings {
			warnCats.Inc(string(classifier.Categorize(is.Code)))
		}
	}

	agg.EvidenceResolutionRate = types.Rate(agg.EvidenceRefsResolved, agg.EvidenceRefsTotal, 1.0)
	agg.ProvenanceUtilizationRate = types.Rate(agg.ProvenanceRefsUsedCount, agg.ProvenanceRefCount, 0.0)
	agg.SemanticItemsWithEvidenceRate = types.Rate(agg.SemanticItemsWithEvidence, agg.SemanticItemsTotal, 0.0)
	agg.StructuralWarningsCount = warnCats.Get(string(types.CategoryStructural))
	agg.SemanticWarningsCount = warnCats.Get(string(types.CategorySemantic))
	agg.ProvenanceWarningsCount = warnCats.Get(string(types.CategoryProvenance))

	return types.QAReport{
		QAVersion:             Version,
		RecordCount:           len(reports),
		StatusCounts:          status,
		SchemaDrift:           drift,
		ActionsCount:          actions,
		ActionsByDetailTop20:  details.Top(topDetails),
		WarningCategoryCounts: warnCats,
		ErrorCategoryCounts:   errCats,
		QualityGateMetrics:    agg,
	}
}
