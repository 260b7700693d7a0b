// Package diagram defines the Mermaid artifact model shared by the analysis,
// generation, and quality services: supported diagram types, complexity
// classification, deterministic syntax validation, and extraction of Mermaid
// or JSON payloads from model responses.
package diagram

// Type identifies a supported diagram kind.
type Type string

const (
	TypeERDiagram          Type = "er_diagram"
	TypeUMLClass           Type = "uml_class"
	TypeUseCase            Type = "use_case"
	TypeFlowchart          Type = "flowchart"
	TypeSequence           Type = "sequence"
	TypeActivity           Type = "activity"
	TypeCollaboration      Type = "collaboration"
	TypeFunctionStructure  Type = "function_structure"
	TypeSystemArchitecture Type = "system_architecture"
)

// displayNames maps each type to a human-readable name.
var displayNames = map[Type]string{
	TypeERDiagram:          "Entity-Relationship Diagram",
	TypeUMLClass:           "UML Class Diagram",
	TypeUseCase:            "Use Case Diagram",
	TypeFlowchart:          "Flowchart",
	TypeSequence:           "Sequence Diagram",
	TypeActivity:           "Activity Diagram",
	TypeCollaboration:      "Collaboration Diagram",
	TypeFunctionStructure:  "Function Structure Diagram",
	TypeSystemArchitecture: "System Architecture Diagram",
}

// AllTypes returns every supported diagram type in a stable order.
func AllTypes() []Type {
	return []Type{
		TypeERDiagram,
		TypeUMLClass,
		TypeUseCase,
		TypeFlowchart,
		TypeSequence,
		TypeActivity,
		TypeCollaboration,
		TypeFunctionStructure,
		TypeSystemArchitecture,
	}
}

// DefaultTypes returns the types generated when a request carries no
// recommendation.
func DefaultTypes() []Type {
	return []Type{TypeFlowchart, TypeSystemArchitecture}
}

// IsSupported reports whether t is a known diagram type.
func IsSupported(t Type) bool {
	_, ok := displayNames[t]
	return ok
}

// DisplayName returns the human-readable name for t, or the raw value when
// the type is unknown.
func (t Type) DisplayName() string {
	if name, ok := displayNames[t]; ok {
		return name
	}
	return string(t)
}

// Complexity classifies an artifact by element count.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
	ComplexityUnknown Complexity = "unknown"
)

// Artifact is a generated Mermaid diagram with its validation state.
type Artifact struct {
	Type              Type       `json:"type"`
	Code              string     `json:"diagram_code"`
	Description       string     `json:"description"`
	Complexity        Complexity `json:"complexity_level"`
	EstimatedElements int        `json:"estimated_elements"`
	Notes             []string   `json:"generation_notes,omitempty"`
	Valid             bool       `json:"is_valid"`
	ValidationErrors  []string   `json:"validation_errors,omitempty"`
}

// Clone returns an independent copy of the artifact.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	c.Notes = append([]string(nil), a.Notes...)
	c.ValidationErrors = append([]string(nil), a.ValidationErrors...)
	return &c
}
