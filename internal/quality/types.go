// Package quality scores generated diagrams against five weighted categories
// and decides which artifacts need a repair pass.
//
// Structural validity, readability, and conformance are scored locally from
// the Mermaid source; completeness and accuracy are scored by the model at
// low temperature and degrade to a neutral score when the response cannot be
// parsed.
package quality

// Level classifies an overall quality score.
type Level string

const (
	LevelExcellent Level = "excellent"
	LevelGood      Level = "good"
	LevelFair      Level = "fair"
	LevelPoor      Level = "poor"
)

// Category weights. They sum to 1.
const (
	weightStructural   = 0.25
	weightCompleteness = 0.25
	weightAccuracy     = 0.25
	weightReadability  = 0.15
	weightConformance  = 0.10
)

// Level thresholds, checked descending first-match.
const (
	thresholdExcellent = 90
	thresholdGood      = 75
	thresholdFair      = 60
)

// LevelForScore maps a score to its quality level.
func LevelForScore(score float64) Level {
	switch {
	case score >= thresholdExcellent:
		return LevelExcellent
	case score >= thresholdGood:
		return LevelGood
	case score >= thresholdFair:
		return LevelFair
	default:
		return LevelPoor
	}
}

// CategoryScores holds the per-category sub-scores.
type CategoryScores struct {
	Structural   float64 `json:"structural_validity"`
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Readability  float64 `json:"readability"`
	Conformance  float64 `json:"conformance"`
}

// CategoryIssues holds the per-category findings.
type CategoryIssues struct {
	Structural   []string `json:"structural_issues,omitempty"`
	Completeness []string `json:"missing_elements,omitempty"`
	Accuracy     []string `json:"accuracy_issues,omitempty"`
	Readability  []string `json:"readability_issues,omitempty"`
	Conformance  []string `json:"conformance_issues,omitempty"`
}

// Record is the quality evaluation of a single artifact.
type Record struct {
	Score       float64        `json:"quality_score"`
	Level       Level          `json:"quality_level"`
	SyntaxValid bool           `json:"syntax_valid"`
	Scores      CategoryScores `json:"scores"`
	Issues      CategoryIssues `json:"issues"`
	Suggestions []string       `json:"improvement_suggestions"`
}

// Clone returns an independent copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Issues.Structural = append([]string(nil), r.Issues.Structural...)
	c.Issues.Completeness = append([]string(nil), r.Issues.Completeness...)
	c.Issues.Accuracy = append([]string(nil), r.Issues.Accuracy...)
	c.Issues.Readability = append([]string(nil), r.Issues.Readability...)
	c.Issues.Conformance = append([]string(nil), r.Issues.Conformance...)
	c.Suggestions = append([]string(nil), r.Suggestions...)
	return &c
}

// Summary aggregates a batch of records.
type Summary struct {
	Evaluated      int     `json:"evaluated"`
	MeanScore      float64 `json:"mean_score"`
	BelowThreshold int     `json:"below_threshold"`
}
