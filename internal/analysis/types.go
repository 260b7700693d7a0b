// Package analysis provides the requirement and system analyzers that turn a
// natural-language system description into structured input for diagram
// generation.
package analysis

import "github.com/fyrsmithlabs/diagramd/internal/diagram"

// RequirementResult is the structured outcome of requirement analysis.
type RequirementResult struct {
	// UserRequirements carries the raw request text the analysis was run on.
	UserRequirements    string         `json:"user_requirements"`
	SystemType          string         `json:"system_type"`
	CoreRequirements    string         `json:"core_requirements"`
	KeyElements         []string       `json:"key_elements"`
	Completeness        string         `json:"completeness"`
	Questions           []string       `json:"clarifying_questions,omitempty"`
	RecommendedDiagrams []diagram.Type `json:"recommended_diagrams"`
	// Confidence is the analyzer's self-reported confidence in [0,1].
	// Defaults to 0.5 when the response could not be parsed.
	Confidence float64 `json:"confidence_score"`
}

// SystemResult is the structured outcome of system analysis.
type SystemResult struct {
	Overview  string   `json:"overview"`
	Modules   []string `json:"modules"`
	DataFlows []string `json:"data_flows"`
	// DiagramInfo holds per-diagram-type hints for the generator.
	DiagramInfo map[diagram.Type]map[string]any `json:"diagram_specific_info,omitempty"`
}
