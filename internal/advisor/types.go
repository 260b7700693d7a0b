// internal/advisor/types.go

// Package advisor personalizes the pipeline around the caller: it resolves
// preferences, picks a workflow, estimates completion time, and produces
// suggestions and next steps from the current pipeline progress.
package advisor

import (
	"github.com/fyrsmithlabs/diagramd/internal/analysis"
	"github.com/fyrsmithlabs/diagramd/internal/diagram"
	"github.com/fyrsmithlabs/diagramd/internal/quality"
)

// Style selects how much hand-holding the workflow carries.
type Style string

const (
	StyleGuided     Style = "guided"
	StyleAutonomous Style = "autonomous"
	StyleExpert     Style = "expert"
)

// Preferences drive workflow selection and time estimation.
type Preferences struct {
	Complexity        diagram.Complexity `json:"diagram_complexity"`
	DetailLevel       string             `json:"detail_level"`
	Style             Style              `json:"interaction_style"`
	PreferredDiagrams []diagram.Type     `json:"preferred_diagrams,omitempty"`
	QualityThreshold  float64            `json:"quality_threshold"`

	// Optional flags distinguish "not provided" from an explicit false so
	// a partial Preferences payload does not flip the defaults.
	AutoFix   *bool `json:"auto_fix,omitempty"`
	BatchMode *bool `json:"batch_mode,omitempty"`
}

// DefaultPreferences returns the baseline every resolution starts from.
func DefaultPreferences() Preferences {
	return Preferences{
		Complexity:       diagram.ComplexityMedium,
		DetailLevel:      "standard",
		Style:            StyleGuided,
		QualityThreshold: 75,
		AutoFix:          boolPtr(true),
	}
}

func boolPtr(b bool) *bool { return &b }

// boolValue reads an optional flag, treating nil as false.
func boolValue(b *bool) bool { return b != nil && *b }

// Suggestion is one personalized optimization suggestion.
type Suggestion struct {
	Type        string   `json:"type"`
	Priority    string   `json:"priority"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Actions     []string `json:"actions,omitempty"`
	Benefit     string   `json:"benefit,omitempty"`
}

// Result is the advisory output attached to a session.
type Result struct {
	Workflow      []string     `json:"optimized_workflow"`
	Suggestions   []Suggestion `json:"personalized_suggestions"`
	Guidance      string       `json:"user_guidance"`
	NextSteps     []string     `json:"next_steps"`
	EstimatedTime string       `json:"estimated_completion_time"`
	Confidence    float64      `json:"confidence_score"`
}

// HistoryRecord is the slice of a past session the advisor infers
// preferences from.
type HistoryRecord struct {
	DiagramTypes []diagram.Type
	Complexity   diagram.Complexity
}

// Input carries everything the advisor considers. Artifacts and Quality are
// nil before their pipeline stages have run.
type Input struct {
	Request      string
	Requirements *analysis.RequirementResult
	Artifacts    map[diagram.Type]*diagram.Artifact
	Quality      map[diagram.Type]*quality.Record
	History      []HistoryRecord
	Explicit     *Preferences
}
