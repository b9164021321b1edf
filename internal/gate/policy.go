// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gate

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/kawidev/knowledge-gate/internal/issues"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

// Version tags the default policy and every gate report.
const Version = "knowledge-export-gate-v1"

// Rules is the typed view of the policy keys the evaluator reads. Nil
// thresholds are disabled.
type Rules struct {
	Version                 string           `json:"version"`
	BlockingErrorCategories []string         `json:"blocking_error_categories"`
	BlockingWarningCodes    []string         `json:"blocking_warning_codes" validate:"dive,required"`
	RecordThresholds        RecordThresholds `json:"record_thresholds"`
	RunThresholds           RunThresholds    `json:"run_thresholds"`
	JobStatusRules          JobStatusRules   `json:"job_status_rules"`
}

// RecordThresholds cap per-record diagnostics.
type RecordThresholds struct {
	// MaxWarningCategories caps warnings per category name.
	MaxWarningCategories       map[string]int `json:"max_warning_categories" validate:"dive,gte=0"`
	MaxMissingStatusCount      *int           `json:"max_missing_status_count" validate:"omitempty,gte=0"`
	MaxObservedHedgingWarnings *int           `json:"max_observed_hedging_warnings" validate:"omitempty,gte=0"`
	MinProvenanceUtilization   *float64       `json:"min_provenance_utilization_rate" validate:"omitempty,gte=0,lte=1"`
}

// RunThresholds constrain the batch-wide quality metrics.
type RunThresholds struct {
	MinEvidenceResolutionRate        *float64 `json:"min_evidence_resolution_rate" validate:"omitempty,gte=0,lte=1"`
	MinSemanticItemsWithEvidenceRate *float64 `json:"min_semantic_items_with_evidence_rate" validate:"omitempty,gte=0,lte=1"`
	MaxBrokenRefsCount               *int     `json:"max_broken_refs_count" validate:"omitempty,gte=0"`
	MinProvenanceUtilizationRate     *float64 `json:"min_provenance_utilization_rate" validate:"omitempty,gte=0,lte=1"`
}

// JobStatusRules restrict which job statuses may pass.
type JobStatusRules struct {
	AllowPartial *bool `json:"allow_partial"`
}

// PartialAllowed reports whether partial jobs may pass. Unset means yes.
func (r JobStatusRules) PartialAllowed() bool {
	return r.AllowPartial == nil || *r.AllowPartial
}

// Policy is an export gate policy: the full configuration tree, unknown
// keys included, plus its validated typed view. A Policy is immutable.
type Policy struct {
	tree  *types.Map
	rules Rules
}

// Tree returns a copy of the policy document.
func (p Policy) Tree() *types.Map { return p.tree.Clone() }

// Rules returns the typed view.
func (p Policy) Rules() Rules { return p.rules }

// blocking reports whether a warning code blocks export.
func (p Policy) blocking(code string) bool {
	for _, c := range p.rules.BlockingWarningCodes {
		if c == code {
			return true
		}
	}
	return false
}

// MarshalJSON encodes the policy document.
func (p Policy) MarshalJSON() ([]byte, error) { return p.tree.MarshalJSON() }

// DefaultPolicy returns the baseline policy. Every synthesized
// threshold code is listed as blocking, so setting a record threshold is
// enough to enforce it.
func DefaultPolicy() Policy {
	p, err := newPolicy(defaultTree())
	if err != nil {
		panic(err)
	}
	return p
}

func defaultTree() *types.Map {
	blocking := []string{
		issues.CodeMissingStatus,
		issues.CodeInferredWithoutEvidence,
		issues.CodeMissingStatusAboveThreshold,
		issues.CodeObservedHedgingAboveThreshold,
		issues.CodeProvenanceUtilizationBelowThreshold,
		issues.CodePartialRecordDisallowed,
	}
	cats := make([]string, 0, len(types.Categories))
	for _, cat := range types.Categories {
		cats = append(cats, string(cat))
		blocking = append(blocking, issues.WarningsAboveThresholdCode(cat))
	}

	record := types.NewMap()
	record.Set("max_warning_categories", types.MapValue(nil))
	record.Set("max_missing_status_count", types.Null())
	record.Set("max_observed_hedging_warnings", types.Null())
	record.Set("min_provenance_utilization_rate", types.Null())

	run := types.NewMap()
	run.Set("min_evidence_resolution_rate", types.NumberLiteral("1.0"))
	run.Set("min_semantic_items_with_evidence_rate", types.NumberLiteral("1.0"))
	run.Set("max_broken_refs_count", types.Int(0))

	status := types.NewMap()
	status.Set("allow_partial", types.Bool(true))

	tree := types.NewMap()
	tree.Set("version", types.String(Version))
	tree.Set("blocking_error_categories", types.Strings(cats...))
	tree.Set("blocking_warning_codes", types.Strings(blocking...))
	tree.Set("record_thresholds", types.MapValue(record))
	tree.Set("run_thresholds", types.MapValue(run))
	tree.Set("job_status_rules", types.MapValue(status))
	return tree
}

// MergePolicy deep-merges override onto base. Nested mappings merge
// recursively; lists and scalars are replaced. Unknown keys are kept.
func MergePolicy(base Policy, override *types.Map) (Policy, error) {
	return newPolicy(types.DeepMerge(base.tree, override))
}

// LoadPolicy parses a JSON override document, tolerating a UTF-8 byte
// order mark, and merges it onto the default policy.
func LoadPolicy(data []byte) (Policy, error) {
	return loadPolicy(data, types.ParseJSON)
}

// LoadPolicyYAML is LoadPolicy for YAML override documents.
func LoadPolicyYAML(data []byte) (Policy, error) {
	return loadPolicy(data, types.ParseYAML)
}

// LoadPolicyFile reads an override document from path. Files ending in
// .yaml or .yml are parsed as YAML, anything else as JSON.
func LoadPolicyFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, errors.Wrapf(err, "reading policy file %s", path)
	}
	load := LoadPolicy
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		load = LoadPolicyYAML
	}
	p, err := load(data)
	if err != nil {
		return Policy{}, errors.Wrapf(err, "policy file %s", path)
	}
	return p, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func loadPolicy(data []byte, parse func([]byte) (types.Value, error)) (Policy, error) {
	v, err := parse(bytes.TrimPrefix(data, utf8BOM))
	if err != nil {
		return Policy{}, errors.Wrap(err, "parsing policy override")
	}
	override, ok := v.AsMap()
	if !ok {
		return Policy{}, errors.WithHint(
			errors.Newf("policy override must be an object, got %s", v.Kind()),
			`wrap the overrides in an object, e.g. {"run_thresholds": {"max_broken_refs_count": 2}}`)
	}
	return MergePolicy(DefaultPolicy(), override)
}

var policyValidator = validator.New()

// newPolicy decodes and validates the typed view of tree.
func newPolicy(tree *types.Map) (Policy, error) {
	data, err := tree.MarshalJSON()
	if err != nil {
		return Policy{}, errors.Wrap(err, "encoding policy")
	}
	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return Policy{}, errors.WithHint(errors.Wrap(err, "invalid policy"),
			"thresholds must be numbers (counts as integers) or null, allow_partial a boolean")
	}
	if err := policyValidator.Struct(rules); err != nil {
		return Policy{}, errors.WithHint(errors.Wrap(err, "invalid policy"),
			"rates lie in [0,1] and counts are non-negative")
	}
	return Policy{tree: tree, rules: rules}, nil
}

// RunOverrides replace individual run thresholds. Nil fields leave the
// policy value untouched.
type RunOverrides struct {
	MinEvidenceResolutionRate        *float64
	MinSemanticItemsWithEvidenceRate *float64
	MaxBrokenRefsCount               *int
}

// Empty reports whether no override is set.
func (o RunOverrides) Empty() bool {
	return o.MinEvidenceResolutionRate == nil && o.MinSemanticItemsWithEvidenceRate == nil && o.MaxBrokenRefsCount == nil
}

// WithRunOverrides merges o into the run_thresholds of p.
func WithRunOverrides(p Policy, o RunOverrides) (Policy, error) {
	if o.Empty() {
		return p, nil
	}
	run := types.NewMap()
	if o.MinEvidenceResolutionRate != nil {
		run.Set("min_evidence_resolution_rate", types.Number(*o.MinEvidenceResolutionRate))
	}
	if o.MinSemanticItemsWithEvidenceRate != nil {
		run.Set("min_semantic_items_with_evidence_rate", types.Number(*o.MinSemanticItemsWithEvidenceRate))
	}
	if o.MaxBrokenRefsCount != nil {
		run.Set("max_broken_refs_count", types.Int(*o.MaxBrokenRefsCount))
	}
	override := types.NewMap()
	override.Set("run_thresholds", types.MapValue(run))
	return MergePolicy(p, override)
}
