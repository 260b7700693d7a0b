// internal/generation/generator_test.go
package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/analysis"
	"github.com/fyrsmithlabs/diagramd/internal/diagram"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
)

// mockClient returns canned responses keyed by prompt substring, in order of
// registration. A nil handler list means always return response/err.
type mockClient struct {
	mu        sync.Mutex
	responses []mockResponse
	response  string
	err       error
	calls     int
}

type mockResponse struct {
	promptContains string
	response       string
	err            error
}

func (m *mockClient) Complete(_ context.Context, prompt string, _ ...llm.CallOption) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, r := range m.responses {
		if strings.Contains(prompt, r.promptContains) {
			return r.response, r.err
		}
	}
	return m.response, m.err
}

func (m *mockClient) Ping(context.Context) error { return m.err }

func (m *mockClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testInputs() (*analysis.RequirementResult, *analysis.SystemResult) {
	req := &analysis.RequirementResult{
		UserRequirements: "order system",
		CoreRequirements: "manage orders",
		KeyElements:      []string{"User", "Order"},
	}
	sys := &analysis.SystemResult{
		Overview: "three tier",
		Modules:  []string{"web", "api"},
	}
	return req, sys
}

func TestGenerate_StructuredResponse(t *testing.T) {
	client := &mockClient{response: `{
		"diagram_code": "flowchart TD\n  A --> B",
		"description": "order flow",
		"complexity_level": "simple",
		"estimated_elements": 2
	}`}

	g, err := NewGenerator(client, diagram.NewValidator(), zap.NewNop())
	require.NoError(t, err)

	req, sys := testInputs()
	artifact, err := g.Generate(context.Background(), req, sys, diagram.TypeFlowchart)
	require.NoError(t, err)

	assert.True(t, artifact.Valid)
	assert.Equal(t, "flowchart TD\n  A --> B", artifact.Code)
	assert.Equal(t, "order flow", artifact.Description)
	assert.Equal(t, diagram.ComplexitySimple, artifact.Complexity)
	assert.Equal(t, 2, artifact.EstimatedElements)
	assert.Equal(t, 1, client.callCount())
}

func TestGenerate_RawMermaidResponse(t *testing.T) {
	client := &mockClient{response: "```mermaid\ngraph LR\n  A --> B\n```"}

	g, err := NewGenerator(client, diagram.NewValidator(), zap.NewNop())
	require.NoError(t, err)

	req, sys := testInputs()
	artifact, err := g.Generate(context.Background(), req, sys, diagram.TypeFlowchart)
	require.NoError(t, err)

	assert.True(t, artifact.Valid)
	assert.Equal(t, "graph LR\n  A --> B", artifact.Code)
	assert.Equal(t, diagram.ComplexitySimple, artifact.Complexity)
}

func TestGenerate_SyntaxRepairSucceeds(t *testing.T) {
	client := &mockClient{responses: []mockResponse{
		{promptContains: "syntax problems", response: "```mermaid\nerDiagram\n  USER ||--o{ ORDER : places\n```"},
		{promptContains: "Generate a Mermaid", response: "this is not a diagram at all"},
	}}

	g, err := NewGenerator(client, diagram.NewValidator(), zap.NewNop())
	require.NoError(t, err)

	req, sys := testInputs()
	artifact, err := g.Generate(context.Background(), req, sys, diagram.TypeERDiagram)
	require.NoError(t, err)

	assert.True(t, artifact.Valid)
	assert.Contains(t, artifact.Code, "erDiagram")
	assert.Contains(t, artifact.Notes, "syntax repaired automatically")
	// One generation call plus exactly one repair call
	assert.Equal(t, 2, client.callCount())
}

func TestGenerate_SyntaxRepairFailsKeepsOriginal(t *testing.T) {
	client := &mockClient{response: "still not a diagram"}

	g, err := NewGenerator(client, diagram.NewValidator(), zap.NewNop())
	require.NoError(t, err)

	req, sys := testInputs()
	artifact, err := g.Generate(context.Background(), req, sys, diagram.TypeERDiagram)
	require.NoError(t, err)

	assert.False(t, artifact.Valid)
	assert.Equal(t, "still not a diagram", artifact.Code)
	assert.NotEmpty(t, artifact.ValidationErrors)
	assert.Contains(t, artifact.Notes, "syntax repair did not produce valid code")
	assert.Equal(t, 2, client.callCount())
}

func TestGenerate_UnsupportedType(t *testing.T) {
	g, err := NewGenerator(&mockClient{}, diagram.NewValidator(), zap.NewNop())
	require.NoError(t, err)

	req, sys := testInputs()
	_, err = g.Generate(context.Background(), req, sys, diagram.Type("gantt"))
	assert.Error(t, err)
}

func TestGenerateBatch_PartialFailure(t *testing.T) {
	client := &mockClient{responses: []mockResponse{
		{promptContains: "Flowchart", response: "```mermaid\nflowchart TD\n  A --> B\n```"},
		{promptContains: "System Architecture", err: errors.New("backend down")},
		{promptContains: "syntax problems", err: errors.New("backend down")},
	}}

	g, err := NewGenerator(client, diagram.NewValidator(), zap.NewNop())
	require.NoError(t, err)

	req, sys := testInputs()
	types := []diagram.Type{diagram.TypeFlowchart, diagram.TypeSystemArchitecture}
	artifacts, err := g.GenerateBatch(context.Background(), req, sys, types)
	require.NoError(t, err)

	// Every requested type is present
	require.Len(t, artifacts, 2)
	assert.True(t, artifacts[diagram.TypeFlowchart].Valid)
	assert.False(t, artifacts[diagram.TypeSystemArchitecture].Valid)
	assert.NotEmpty(t, artifacts[diagram.TypeSystemArchitecture].Notes)
}

func TestGenerateBatch_AllFail(t *testing.T) {
	client := &mockClient{err: errors.New("backend down")}

	g, err := NewGenerator(client, diagram.NewValidator(), zap.NewNop())
	require.NoError(t, err)

	req, sys := testInputs()
	artifacts, err := g.GenerateBatch(context.Background(), req, sys,
		[]diagram.Type{diagram.TypeFlowchart, diagram.TypeSequence})
	require.Error(t, err)
	// Artifacts still carry invalid placeholders
	assert.Len(t, artifacts, 2)
}

func TestGenerateBatch_NoTypes(t *testing.T) {
	g, err := NewGenerator(&mockClient{}, diagram.NewValidator(), zap.NewNop())
	require.NoError(t, err)

	req, sys := testInputs()
	_, err = g.GenerateBatch(context.Background(), req, sys, nil)
	assert.Error(t, err)
}
