// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the knowledge stages over a data directory: QA,
// export gate and library export. Each stage reads the previous stage's
// artifacts and persists its own.
package pipeline

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/kawidev/knowledge-gate/internal/contract"
	"github.com/kawidev/knowledge-gate/internal/export"
	"github.com/kawidev/knowledge-gate/internal/gate"
	"github.com/kawidev/knowledge-gate/internal/issues"
	"github.com/kawidev/knowledge-gate/internal/qa"
	"github.com/kawidev/knowledge-gate/internal/storage"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

// Pipeline binds the stages to one data directory.
type Pipeline struct {
	paths      Paths
	classifier *issues.Classifier
	runner     *qa.Runner
	exporter   *export.Exporter
	log        *zap.SugaredLogger
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	workers    int
	classifier *issues.Classifier
	exportOpts []export.Option
	log        *zap.SugaredLogger
}

// WithWorkers bounds QA parallelism.
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// WithClassifier replaces the default diagnostic rules.
func WithClassifier(c *issues.Classifier) Option { return func(o *options) { o.classifier = c } }

// WithExportOptions passes options to the library exporter.
func WithExportOptions(opts ...export.Option) Option {
	return func(o *options) { o.exportOpts = append(o.exportOpts, opts...) }
}

// WithLogger sets the logger shared by every stage.
func WithLogger(log *zap.SugaredLogger) Option { return func(o *options) { o.log = log } }

// New returns a Pipeline over paths.
func New(paths Paths, opts ...Option) *Pipeline {
	o := options{classifier: issues.Default(), log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}
	qaOpts := []qa.Option{qa.WithClassifier(o.classifier), qa.WithLogger(o.log)}
	if o.workers > 0 {
		qaOpts = append(qaOpts, qa.WithWorkers(o.workers))
	}
	return &Pipeline{
		paths:      paths,
		classifier: o.classifier,
		runner:     qa.NewRunner(qaOpts...),
		exporter:   export.New(append([]export.Option{export.WithLogger(o.log)}, o.exportOpts...)...),
		log:        o.log,
	}
}

// Paths returns the artifact layout.
func (p *Pipeline) Paths() Paths { return p.paths }

// QAOptions controls a QA run.
type QAOptions struct {
	// Input overrides the default knowledge_extract.jsonl path.
	Input string
	// MaxRecords keeps only the first n input records when positive.
	MaxRecords int
	// NoWrite skips persisting the QA artifacts.
	NoWrite bool
}

// RunQA canonicalizes and validates the raw extraction stream.
func (p *Pipeline) RunQA(ctx context.Context, opts QAOptions) (qa.Result, error) {
	input := opts.Input
	if input == "" {
		input = p.paths.Input
	}
	raw, err := storage.ReadValues(input)
	if err != nil {
		return qa.Result{}, errors.Wrap(err, "reading QA input")
	}
	if opts.MaxRecords > 0 && len(raw) > opts.MaxRecords {
		raw = raw[:opts.MaxRecords]
	}
	res, err := p.runner.Run(ctx, raw)
	if err != nil {
		return qa.Result{}, err
	}
	if !opts.NoWrite {
		if err := p.writeQA(res); err != nil {
			return qa.Result{}, err
		}
	}
	return res, nil
}

func (p *Pipeline) writeQA(res qa.Result) error {
	if _, err := storage.WriteJSONL(p.paths.Canonical, res.Canonical); err != nil {
		return err
	}
	if _, err := storage.WriteJSONL(p.paths.QualityRecords, res.Reports); err != nil {
		return err
	}
	return storage.WriteJSON(p.paths.QAReport, res.Report)
}

// LoadOrRunQA reuses the persisted QA artifacts. It reruns QA from the
// default input when refresh is set or any artifact is missing or empty.
func (p *Pipeline) LoadOrRunQA(ctx context.Context, refresh bool) (qa.Result, error) {
	if !refresh {
		res, ok, err := p.loadQA()
		if err != nil {
			return qa.Result{}, err
		}
		if ok {
			p.log.Debugw("reusing QA artifacts", "records", len(res.Canonical))
			return res, nil
		}
	}
	p.log.Infow("recomputing QA artifacts", "input", p.paths.Input, "refresh", refresh)
	return p.RunQA(ctx, QAOptions{})
}

func (p *Pipeline) loadQA() (qa.Result, bool, error) {
	canon, err := storage.ReadJSONL[types.Record](p.paths.Canonical)
	if err != nil {
		return qa.Result{}, false, err
	}
	reports, err := storage.ReadJSONL[types.RecordReport](p.paths.QualityRecords)
	if err != nil {
		return qa.Result{}, false, err
	}
	var report types.QAReport
	found, err := storage.ReadJSON(p.paths.QAReport, &report)
	if err != nil {
		return qa.Result{}, false, err
	}
	if !found || len(canon) == 0 || len(reports) == 0 {
		return qa.Result{}, false, nil
	}
	return qa.Result{Canonical: canon, Reports: reports, Report: report}, true, nil
}

// WriteSchema writes the JSON Schema of the canonical contract to path,
// or to the default schema path when path is empty. It returns the path
// written.
func (p *Pipeline) WriteSchema(path string) (string, error) {
	if path == "" {
		path = p.paths.Schema
	}
	if err := storage.WriteJSON(path, contract.Canonical().JSONSchema()); err != nil {
		return "", err
	}
	return path, nil
}

// Gate evaluates the export gate over the QA artifacts and persists the
// gate report with the pass and fail streams.
func (p *Pipeline) Gate(ctx context.Context, policy gate.Policy, refreshQA bool) (gate.RunResult, error) {
	q, err := p.LoadOrRunQA(ctx, refreshQA)
	if err != nil {
		return gate.RunResult{}, err
	}
	return p.gate(q, policy)
}

func (p *Pipeline) gate(q qa.Result, policy gate.Policy) (gate.RunResult, error) {
	res := gate.New(policy, p.classifier, p.log).EvaluateRun(q.Canonical, q.Reports, q.Report)
	if err := storage.WriteJSON(p.paths.GateReport, res.Report); err != nil {
		return gate.RunResult{}, err
	}
	if _, err := storage.WriteJSONL(p.paths.ExportPass, res.Accepted); err != nil {
		return gate.RunResult{}, err
	}
	if _, err := storage.WriteJSONL(p.paths.ExportFail, res.Rejected); err != nil {
		return gate.RunResult{}, err
	}
	return res, nil
}

// ExportResult pairs the gate outcome with the library streams.
type ExportResult struct {
	Gate   gate.RunResult
	Export export.Result
}

// Export gates the QA artifacts and writes the library ready and reject
// streams with their export report.
func (p *Pipeline) Export(ctx context.Context, policy gate.Policy, refreshQA bool, schemaContractVersion string) (ExportResult, error) {
	q, err := p.LoadOrRunQA(ctx, refreshQA)
	if err != nil {
		return ExportResult{}, err
	}
	g, err := p.gate(q, policy)
	if err != nil {
		return ExportResult{}, err
	}
	ex := p.exporter.Export(q.Canonical, q.Reports, g.Report, schemaContractVersion)
	if _, err := storage.WriteJSONL(p.paths.LibraryReady, ex.Ready); err != nil {
		return ExportResult{}, err
	}
	if _, err := storage.WriteJSONL(p.paths.LibraryRejects, ex.Rejects); err != nil {
		return ExportResult{}, err
	}
	if err := storage.WriteJSON(p.paths.LibraryExportReport, ex.Report); err != nil {
		return ExportResult{}, err
	}
	return ExportResult{Gate: g, Export: ex}, nil
}
