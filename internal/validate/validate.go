// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package validate checks canonical knowledge records for structural,
// provenance, semantic and completeness problems and computes the
// per-record quality metrics. Malformed records produce diagnostics,
// never errors.
package validate

import (
	"fmt"
	"strings"

	"github.com/kawidev/knowledge-gate/internal/contract"
	"github.com/kawidev/knowledge-gate/internal/issues"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

// Validator validates canonical records. It is safe for concurrent use.
type Validator struct {
	rules    *issues.Classifier
	contract *contract.Contract
}

// New returns a Validator using the given rules and contract. Nil
// arguments select the built-in defaults.
func New(rules *issues.Classifier, c *contract.Contract) *Validator {
	if rules == nil {
		rules = issues.Default()
	}
	if c == nil {
		c = contract.Canonical()
	}
	return &Validator{rules: rules, contract: c}
}

// Validate runs every check over r.
func (v *Validator) Validate(r types.Record) types.ValidationReport {
	s := &state{
		rules:    v.rules,
		errors:   []types.Issue{},
		warnings: []types.Issue{},
		used:     make(map[string]bool),
	}
	root := r.Map()

	for _, key := range types.TopLevelSections {
		if !root.Has(key) {
			s.errorf(issues.CodeMissingTopLevelSection, key, "Missing")
		}
	}
	s.structure(r)
	s.provIDs = provenanceIDs(r)
	s.metrics.ProvenanceRefCount = len(s.provIDs)

	for _, sec := range types.SemanticSections {
		s.items(r, types.SectionKnowledgeExtract, sec, true)
	}
	for _, sec := range types.CandidateSections {
		s.items(r, types.SectionMappingCandidates, sec, false)
	}

	s.metrics.ProvenanceRefsUsedCount = len(s.used)
	s.metrics.ComputeRates()
	s.completeness(r)

	report := v.contract.Check(r)
	s.metrics.SchemaContractErrorCount = len(report.Errors)
	for _, ce := range report.Errors {
		s.errorf(issues.CodeSchemaContractError, ce.Path, ce.Message)
	}

	return types.ValidationReport{
		Errors:         s.errors,
		Warnings:       s.warnings,
		Metrics:        s.metrics,
		SchemaContract: report,
	}
}

// Validate checks r with the default rules and contract.
func Validate(r types.Record) types.ValidationReport {
	return defaultValidator.Validate(r)
}

var defaultValidator = New(nil, nil)

type state struct {
	rules    *issues.Classifier
	errors   []types.Issue
	warnings []types.Issue
	metrics  types.Metrics
	provIDs  map[string]bool
	used     map[string]bool
}

func (s *state) errorf(code, path, msg string) {
	s.errors = append(s.errors, types.Issue{Code: code, Path: path, Message: msg})
}

func (s *state) warnf(code, path, msg string) {
	s.warnings = append(s.warnings, types.Issue{Code: code, Path: path, Message: msg})
}

// structure requires every list-shaped field to be a list of mappings.
func (s *state) structure(r types.Record) {
	check := func(path string, v types.Value) {
		items, ok := v.AsList()
		if !ok {
			s.errorf(issues.CodeInvalidType, path, "Expected list")
			return
		}
		for i, item := range items {
			if item.Kind() != types.KindMap {
				s.errorf(issues.CodeInvalidItemType, fmt.Sprintf("%s[%d]", path, i), "Expected dict")
			}
		}
	}
	lists := func(section string, keys []string) {
		sec, _ := r.Section(section)
		for _, key := range keys {
			check(section+"."+key, sec.Lookup(key))
		}
	}
	lists(types.SectionKnowledgeExtract, types.SemanticSections)
	lists(types.SectionMappingCandidates, types.CandidateSections)
	lists(types.SectionTradingContext, types.TradingContextKeys)
	check(types.SectionProvenanceIndex, r.Map().Lookup(types.SectionProvenanceIndex))
}

func provenanceIDs(r types.Record) map[string]bool {
	ids := make(map[string]bool)
	for _, entry := range r.Provenance() {
		m, ok := entry.AsMap()
		if !ok {
			continue
		}
		if id, ok := m.GetString("ref_id"); ok {
			ids[id] = true
		}
	}
	return ids
}

// items checks the status, evidence and wording of every mapping in
// section.key.
func (s *state) items(r types.Record, section, key string, semantic bool) {
	for i, raw := range r.List(section, key) {
		item, ok := raw.AsMap()
		if !ok {
			continue
		}
		path := fmt.Sprintf("%s.%s[%d]", section, key, i)
		if semantic {
			s.metrics.SemanticItemsTotal++
		}

		status := item.Lookup("status")
		statusText := status.Text()
		switch {
		case !status.Truthy():
			s.metrics.MissingStatusCount++
			s.warnf(issues.CodeMissingStatus, path, "Missing status")
		case semantic:
			s.metrics.SemanticItemsWithStatus++
			if _, known := types.SemanticStatuses[statusText]; !known || status.Kind() != types.KindString {
				s.errorf(issues.CodeInvalidSemanticStatus, path+".status", statusText)
			}
		case statusText != types.StatusCandidate || status.Kind() != types.KindString:
			s.warnf(issues.CodeInvalidCandidateStatus, path+".status", statusText)
		}

		refs := s.evidence(item, path, semantic)
		st, _ := status.AsString()

		if st == types.StatusObserved && s.rules.Hedging(freeText(item)) {
			s.metrics.ObservedHedgingWarningsCount++
			s.warnf(issues.CodeObservedHedgingLanguage, path, "Hedging in observed item")
		}
		if st == types.StatusUncertain {
			conf := item.Lookup("confidence")
			if f, ok := conf.AsFloat(); ok && f >= s.rules.HighConfidence() {
				s.metrics.UncertainHighConfidenceWarningsCount++
				s.warnf(issues.CodeUncertainHighConfidence, path+".confidence", conf.Text())
			}
		}
		if st == types.StatusInferred && refs == 0 {
			s.metrics.InferredWithoutEvidenceWarningsCount++
			s.warnf(issues.CodeInferredWithoutEvidence, path, "No evidence_refs")
		}
	}
}

// evidence resolves the item's evidence_refs against the provenance index
// and returns how many refs it lists.
func (s *state) evidence(item *types.Map, path string, semantic bool) int {
	v, present := item.Get("evidence_refs")
	if !present {
		return 0
	}
	refs, ok := v.AsList()
	if !ok {
		s.errorf(issues.CodeInvalidEvidenceRefsType, path+".evidence_refs", "Expected list[str]")
		return 0
	}
	if semantic && len(refs) > 0 {
		s.metrics.SemanticItemsWithEvidence++
	}
	for j, ref := range refs {
		s.metrics.EvidenceRefsTotal++
		refPath := fmt.Sprintf("%s.evidence_refs[%d]", path, j)
		id, ok := ref.AsString()
		if !ok {
			s.errorf(issues.CodeInvalidEvidenceRefItemType, refPath, ref.TypeName())
			continue
		}
		if s.provIDs[id] {
			s.metrics.EvidenceRefsResolved++
			s.used[id] = true
			continue
		}
		s.metrics.BrokenRefsCount++
		s.errorf(issues.CodeBrokenEvidenceRef, refPath, id)
	}
	return len(refs)
}

// completeness flags partial jobs that do not say what is missing.
func (s *state) completeness(r types.Record) {
	meta, _ := r.Section(types.SectionJobMeta)
	if st, _ := meta.GetString("status"); st != types.JobStatusPartial {
		return
	}
	qc, _ := r.Section(types.SectionQualityControl)
	if missing, ok := qc.GetList("missing_data"); ok && len(missing) > 0 {
		return
	}
	s.warnf(issues.CodePartialWithoutMissingDataNote, types.SectionQualityControl+".missing_data", "partial without missing_data")
}

var ignoredTextFields = map[string]bool{
	"status":          true,
	"category":        true,
	"normalized_term": true,
}

// freeText joins the item's string fields for hedging detection.
func freeText(item *types.Map) string {
	var parts []string
	item.Range(func(k string, v types.Value) bool {
		if s, ok := v.AsString(); ok && !ignoredTextFields[k] {
			parts = append(parts, s)
		}
		return true
	})
	return strings.Join(parts, " ")
}
