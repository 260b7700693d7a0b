// internal/diagram/diagram_test.go
package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTypes(t *testing.T) {
	assert.Equal(t, []Type{TypeFlowchart, TypeSystemArchitecture}, DefaultTypes())
}

func TestIsSupported(t *testing.T) {
	for _, typ := range AllTypes() {
		assert.True(t, IsSupported(typ), string(typ))
	}
	assert.False(t, IsSupported(Type("gantt")))
}

func TestValidator(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name  string
		typ   Type
		code  string
		valid bool
	}{
		{"valid flowchart", TypeFlowchart, "flowchart TD\n  A --> B", true},
		{"valid graph flowchart", TypeFlowchart, "graph LR\n  A --> B", true},
		{"valid er diagram", TypeERDiagram, "erDiagram\n  USER ||--o{ ORDER : places", true},
		{"valid class diagram", TypeUMLClass, "classDiagram\n  class Animal", true},
		{"valid sequence", TypeSequence, "sequenceDiagram\n  A->>B: hi", true},
		{"architecture uses graph", TypeSystemArchitecture, "graph TB\n  Web --> API", true},
		{"leading comment skipped", TypeFlowchart, "%% overview\nflowchart TD\n  A --> B", true},
		{"empty", TypeFlowchart, "", false},
		{"wrong header", TypeERDiagram, "flowchart TD\n  A --> B", false},
		{"no mermaid keyword", TypeFlowchart, "hello world", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, errs := v.Validate(tt.typ, tt.code)
			assert.Equal(t, tt.valid, valid)
			if !tt.valid {
				assert.NotEmpty(t, errs)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestCountElements(t *testing.T) {
	assert.Equal(t, 0, CountElements(""))
	assert.Equal(t, 0, CountElements("   \n  "))

	code := "flowchart TD\n  A --> B\n  B --> C\n  C --> D"
	assert.Equal(t, 3, CountElements(code))

	// Comment lines are not counted as elements
	withComments := "flowchart TD\n  %% main path\n  A --> B"
	assert.Equal(t, 1, CountElements(withComments))
}

func TestEstimateComplexity(t *testing.T) {
	assert.Equal(t, ComplexityUnknown, EstimateComplexity(""))

	simple := "flowchart TD\n  A --> B"
	assert.Equal(t, ComplexitySimple, EstimateComplexity(simple))

	var sb []byte
	sb = append(sb, "flowchart TD\n"...)
	for i := 0; i < 20; i++ {
		sb = append(sb, "  A --> B\n"...)
	}
	assert.Equal(t, ComplexityMedium, EstimateComplexity(string(sb)))

	for i := 0; i < 20; i++ {
		sb = append(sb, "  C --> D\n"...)
	}
	assert.Equal(t, ComplexityComplex, EstimateComplexity(string(sb)))
}

func TestExtractMermaid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"mermaid fence",
			"Here you go:\n```mermaid\nflowchart TD\n  A --> B\n```\nDone.",
			"flowchart TD\n  A --> B",
		},
		{
			"generic fence",
			"```\ngraph LR\n  A --> B\n```",
			"graph LR\n  A --> B",
		},
		{
			"bare text",
			"  flowchart TD\n  A --> B  ",
			"flowchart TD\n  A --> B",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMermaid(tt.in))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Score float64 `json:"score"`
	}

	var p payload
	require.NoError(t, DecodeJSON("```json\n{\"score\": 85}\n```", &p))
	assert.Equal(t, 85.0, p.Score)

	p = payload{}
	require.NoError(t, DecodeJSON("The result is {\"score\": 42} as requested.", &p))
	assert.Equal(t, 42.0, p.Score)

	assert.Error(t, DecodeJSON("no json here", &p))
}
