// internal/diagram/validate.go
package diagram

import (
	"fmt"
	"regexp"
	"strings"
)

// mermaidKeywords are the declarations that mark text as Mermaid source.
var mermaidKeywords = []string{
	"graph", "flowchart", "sequenceDiagram", "classDiagram",
	"erDiagram", "stateDiagram", "pie", "journey",
}

// headerPatterns maps each diagram type to the declaration its first
// non-comment line must match.
var headerPatterns = map[Type]*regexp.Regexp{
	TypeERDiagram:          regexp.MustCompile(`^erDiagram`),
	TypeUMLClass:           regexp.MustCompile(`^classDiagram`),
	TypeSequence:           regexp.MustCompile(`^sequenceDiagram`),
	TypeFlowchart:          regexp.MustCompile(`^(flowchart|graph)\b`),
	TypeUseCase:            regexp.MustCompile(`^(flowchart|graph)\b`),
	TypeActivity:           regexp.MustCompile(`^(flowchart|graph)\b`),
	TypeCollaboration:      regexp.MustCompile(`^(flowchart|graph)\b`),
	TypeFunctionStructure:  regexp.MustCompile(`^(flowchart|graph)\b`),
	TypeSystemArchitecture: regexp.MustCompile(`^(flowchart|graph)\b`),
}

// Validator performs deterministic Mermaid syntax checks. It is intentionally
// shallow: it verifies the declaration header and basic structure rather than
// parsing the full grammar.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks code against the expectations for the given diagram type.
// It returns whether the code passed and the list of findings.
func (v *Validator) Validate(t Type, code string) (bool, []string) {
	var errs []string

	code = strings.TrimSpace(code)
	if code == "" {
		return false, []string{"diagram code is empty"}
	}

	if !containsMermaidKeyword(code) {
		errs = append(errs, "no Mermaid diagram declaration found")
	}

	if pattern, ok := headerPatterns[t]; ok {
		header := firstContentLine(code)
		if !pattern.MatchString(header) {
			errs = append(errs, fmt.Sprintf("diagram should start with %s", pattern.String()))
		}
	}

	return len(errs) == 0, errs
}

// HeaderMatches reports whether the first content line carries the
// declaration expected for the diagram type. Types without a registered
// pattern match trivially.
func HeaderMatches(t Type, code string) bool {
	pattern, ok := headerPatterns[t]
	if !ok {
		return true
	}
	return pattern.MatchString(firstContentLine(code))
}

// ExpectedHeader returns the declaration pattern for the diagram type.
func ExpectedHeader(t Type) string {
	if pattern, ok := headerPatterns[t]; ok {
		return pattern.String()
	}
	return ""
}

func containsMermaidKeyword(code string) bool {
	for _, keyword := range mermaidKeywords {
		if strings.Contains(code, keyword) {
			return true
		}
	}
	return false
}

// firstContentLine returns the first line that is not blank or a comment.
func firstContentLine(code string) string {
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		return line
	}
	return ""
}
