// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package issues classifies diagnostic codes into categories and holds the
// static rules (category code sets, hedging vocabulary, confidence ceiling)
// that the validator and the export gate share.
package issues

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v3"

	"github.com/kawidev/knowledge-gate/pkg/types"
)

// Rules is the diagnostic configuration loaded once at start-up.
type Rules struct {
	Structural   []string `yaml:"structural" validate:"dive,required"`
	Provenance   []string `yaml:"provenance" validate:"dive,required"`
	Semantic     []string `yaml:"semantic" validate:"dive,required"`
	Completeness []string `yaml:"completeness" validate:"dive,required"`

	// HedgingWords are matched case-insensitively on word boundaries in
	// the free text of observed items.
	HedgingWords []string `yaml:"hedging_words" validate:"min=1,dive,required"`

	// HighConfidence is the confidence at or above which an uncertain item
	// is flagged.
	HighConfidence float64 `yaml:"high_confidence" validate:"gte=0,lte=1"`
}

// DefaultRules returns the built-in rules.
func DefaultRules() Rules {
	return Rules{
		Structural: []string{
			CodeMissingTopLevelSection,
			CodeInvalidType,
			CodeInvalidItemType,
			CodeInvalidSemanticStatus,
			CodeInvalidCandidateStatus,
			CodeInvalidEvidenceRefsType,
			CodeInvalidEvidenceRefItemType,
			CodeMissingStatus,
			CodeSchemaContractError,
			CodeMissingStatusAboveThreshold,
			CodeMissingGateDecision,
			WarningsAboveThresholdCode(types.CategoryStructural),
		},
		Provenance: []string{
			CodeBrokenEvidenceRef,
			CodeProvenanceResolutionBelowThreshold,
			CodeProvenanceUtilizationBelowThreshold,
			CodeBrokenRefsAboveThreshold,
			WarningsAboveThresholdCode(types.CategoryProvenance),
		},
		Semantic: []string{
			CodeObservedHedgingLanguage,
			CodeUncertainHighConfidence,
			CodeInferredWithoutEvidence,
			CodeSemanticEvidenceRateBelowThreshold,
			CodeObservedHedgingAboveThreshold,
			WarningsAboveThresholdCode(types.CategorySemantic),
		},
		Completeness: []string{
			CodePartialWithoutMissingDataNote,
			CodePartialRecordDisallowed,
			WarningsAboveThresholdCode(types.CategoryCompleteness),
		},
		HedgingWords:   []string{"likely", "presumably", "may", "could", "appears", "implies", "suggests"},
		HighConfidence: 0.85,
	}
}

// LoadRules reads a YAML rules document. Keys present in the document
// replace the corresponding default; absent keys keep it.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, errors.Wrapf(err, "reading rules file %s", path)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rules document onto the defaults and
// validates the result. Unknown keys are rejected.
func ParseRules(data []byte) (Rules, error) {
	rules := DefaultRules()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return Rules{}, errors.Wrap(err, "parsing rules")
	}
	if err := validator.New().Struct(rules); err != nil {
		return Rules{}, errors.WithHint(errors.Wrap(err, "invalid rules"),
			"hedging_words needs at least one word and high_confidence must lie in [0,1]")
	}
	return rules, nil
}

// Classifier maps codes to categories and applies the text heuristics of
// its rules. It is immutable and safe for concurrent use.
type Classifier struct {
	byCode         map[string]types.Category
	hedging        *regexp.Regexp
	highConfidence float64
}

// NewClassifier compiles rules. A code listed under several categories
// takes the first in structural, provenance, semantic, completeness order.
func NewClassifier(rules Rules) *Classifier {
	c := &Classifier{
		byCode:         make(map[string]types.Category),
		highConfidence: rules.HighConfidence,
	}
	sets := []struct {
		cat   types.Category
		codes []string
	}{
		{types.CategoryStructural, rules.Structural},
		{types.CategoryProvenance, rules.Provenance},
		{types.CategorySemantic, rules.Semantic},
		{types.CategoryCompleteness, rules.Completeness},
	}
	for _, set := range sets {
		for _, code := range set.codes {
			if _, ok := c.byCode[code]; !ok {
				c.byCode[code] = set.cat
			}
		}
	}

	words := make([]string, 0, len(rules.HedgingWords))
	for _, w := range rules.HedgingWords {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, regexp.QuoteMeta(w))
		}
	}
	if len(words) > 0 {
		c.hedging = regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
	}
	return c
}

// Categorize returns the category of code; unknown codes are other.
func (c *Classifier) Categorize(code string) types.Category {
	if cat, ok := c.byCode[code]; ok {
		return cat
	}
	return types.CategoryOther
}

// Hedging reports whether text contains hedging vocabulary.
func (c *Classifier) Hedging(text string) bool {
	return c.hedging != nil && c.hedging.MatchString(text)
}

// HighConfidence returns the confidence ceiling for uncertain items.
func (c *Classifier) HighConfidence() float64 { return c.highConfidence }

var defaultClassifier = NewClassifier(DefaultRules())

// Default returns the classifier built from DefaultRules.
func Default() *Classifier { return defaultClassifier }

// Categorize classifies code with the default rules.
func Categorize(code string) types.Category { return defaultClassifier.Categorize(code) }
