// internal/analysis/analysis_test.go
package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/diagram"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
)

// mockClient is a hand-rolled llm.Client for tests.
type mockClient struct {
	response string
	err      error

	calls      int
	lastPrompt string
}

func (m *mockClient) Complete(_ context.Context, prompt string, _ ...llm.CallOption) (string, error) {
	m.calls++
	m.lastPrompt = prompt
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockClient) Ping(context.Context) error {
	return m.err
}

func TestRequirementAnalyzer_Analyze(t *testing.T) {
	client := &mockClient{response: `{
		"system_type": "web application",
		"core_requirements": "order management with user accounts",
		"key_elements": ["User", "Order"],
		"completeness": "complete",
		"recommended_diagrams": ["er_diagram", "flowchart", "gantt"],
		"confidence_score": 0.9
	}`}

	a, err := NewRequirementAnalyzer(client, zap.NewNop())
	require.NoError(t, err)

	result, err := a.Analyze(context.Background(), "An order management system")
	require.NoError(t, err)

	assert.Equal(t, "web application", result.SystemType)
	assert.Equal(t, "An order management system", result.UserRequirements)
	// Unsupported types are dropped
	assert.Equal(t, []diagram.Type{diagram.TypeERDiagram, diagram.TypeFlowchart}, result.RecommendedDiagrams)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Equal(t, 1, client.calls)
}

func TestRequirementAnalyzer_ParseFallback(t *testing.T) {
	client := &mockClient{response: "I think a flowchart would suit your database design."}

	a, err := NewRequirementAnalyzer(client, zap.NewNop())
	require.NoError(t, err)

	result, err := a.Analyze(context.Background(), "Design a database for an online store")
	require.NoError(t, err)

	assert.Equal(t, 0.5, result.Confidence)
	assert.Equal(t, "partial", result.Completeness)
	assert.Equal(t, []diagram.Type{diagram.TypeERDiagram}, result.RecommendedDiagrams)
}

func TestRequirementAnalyzer_EmptyRequest(t *testing.T) {
	a, err := NewRequirementAnalyzer(&mockClient{}, zap.NewNop())
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), "   ")
	assert.Error(t, err)
}

func TestRequirementAnalyzer_ClientError(t *testing.T) {
	client := &mockClient{err: errors.New("backend down")}
	a, err := NewRequirementAnalyzer(client, zap.NewNop())
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), "any system")
	assert.Error(t, err)
}

func TestSuggestType(t *testing.T) {
	tests := []struct {
		request string
		want    diagram.Type
	}{
		{"we need a database with entities", diagram.TypeERDiagram},
		{"show class inheritance", diagram.TypeUMLClass},
		{"actors and their use cases", diagram.TypeUseCase},
		{"message sequence between services", diagram.TypeSequence},
		{"overall architecture with components", diagram.TypeSystemArchitecture},
		{"business process steps", diagram.TypeFlowchart},
		{"nothing matches here", diagram.TypeFlowchart},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SuggestType(tt.request), tt.request)
	}
}

func TestSystemAnalyzer_Analyze(t *testing.T) {
	client := &mockClient{response: `{
		"overview": "three tier web app",
		"modules": ["web", "api", "db"],
		"data_flows": ["web -> api: requests"],
		"diagram_specific_info": {
			"flowchart": {"entry": "login"},
			"unsupported_kind": {"x": 1}
		}
	}`}

	a, err := NewSystemAnalyzer(client, zap.NewNop())
	require.NoError(t, err)

	req := &RequirementResult{
		SystemType:          "web application",
		CoreRequirements:    "orders",
		RecommendedDiagrams: []diagram.Type{diagram.TypeFlowchart},
	}
	result, err := a.Analyze(context.Background(), "an order system", req)
	require.NoError(t, err)

	assert.Equal(t, "three tier web app", result.Overview)
	assert.Equal(t, []string{"web", "api", "db"}, result.Modules)
	require.Contains(t, result.DiagramInfo, diagram.TypeFlowchart)
	assert.NotContains(t, result.DiagramInfo, diagram.Type("unsupported_kind"))
}

func TestSystemAnalyzer_UnparseableKeepsOverview(t *testing.T) {
	client := &mockClient{response: "The system is a classic three tier design."}

	a, err := NewSystemAnalyzer(client, zap.NewNop())
	require.NoError(t, err)

	result, err := a.Analyze(context.Background(), "x", &RequirementResult{})
	require.NoError(t, err)
	assert.Equal(t, "The system is a classic three tier design.", result.Overview)
}

func TestSystemAnalyzer_NilRequirement(t *testing.T) {
	a, err := NewSystemAnalyzer(&mockClient{}, zap.NewNop())
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), "x", nil)
	assert.Error(t, err)
}
