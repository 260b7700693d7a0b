// internal/quality/gate_test.go
package quality

import (
	"context"
	"errors"
	"strings"
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
	m.calls++
	for _, r := range m.responses {
		if strings.Contains(prompt, r.promptContains) {
			return r.response, r.err
		}
	}
	return m.response, m.err
}

func (m *mockClient) Ping(context.Context) error { return m.err }

func validArtifact() *diagram.Artifact {
	return &diagram.Artifact{
		Type:              diagram.TypeFlowchart,
		Code:              "flowchart TD\n    A --> B\n    B --> C",
		Valid:             true,
		Complexity:        diagram.ComplexitySimple,
		EstimatedElements: 3,
	}
}

func testRequirements() *analysis.RequirementResult {
	return &analysis.RequirementResult{
		UserRequirements: "order system",
		KeyElements:      []string{"User", "Order"},
	}
}

func TestNewGate(t *testing.T) {
	client := &mockClient{}

	g, err := NewGate(nil, client, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, g)

	_, err = NewGate(nil, nil, nil)
	assert.Error(t, err)

	_, err = NewGate(&Config{RepairThreshold: 150}, client, nil)
	assert.Error(t, err)
}

func TestEvaluate_HealthyDiagram(t *testing.T) {
	client := &mockClient{responses: []mockResponse{
		{promptContains: "completeness_score", response: `{"completeness_score": 90, "missing_elements": []}`},
		{promptContains: "accuracy_score", response: `{"accuracy_score": 95, "accuracy_issues": []}`},
	}}
	g, err := NewGate(nil, client, zap.NewNop())
	require.NoError(t, err)

	record, err := g.Evaluate(context.Background(), validArtifact(), testRequirements(), nil)
	require.NoError(t, err)

	assert.True(t, record.SyntaxValid)
	assert.Equal(t, 100.0, record.Scores.Structural)
	assert.Equal(t, 90.0, record.Scores.Completeness)
	assert.Equal(t, 95.0, record.Scores.Accuracy)
	assert.Equal(t, 100.0, record.Scores.Readability)
	assert.Equal(t, 100.0, record.Scores.Conformance)
	// 100*.25 + 90*.25 + 95*.25 + 100*.15 + 100*.10
	assert.Equal(t, 96.3, record.Score)
	assert.Equal(t, LevelExcellent, record.Level)
	assert.Equal(t, []string{"diagram quality is good, no changes needed"}, record.Suggestions)
	// no issues means no suggestion synthesis call
	assert.Equal(t, 2, client.calls)
}

func TestEvaluate_InvalidSyntaxScoresZeroStructural(t *testing.T) {
	client := &mockClient{responses: []mockResponse{
		{promptContains: "completeness_score", response: `{"completeness_score": 80}`},
		{promptContains: "accuracy_score", response: `{"accuracy_score": 80}`},
		{promptContains: "suggestions", response: `{"suggestions": ["fix the arrows"]}`},
	}}
	g, err := NewGate(nil, client, zap.NewNop())
	require.NoError(t, err)

	artifact := validArtifact()
	artifact.Valid = false
	artifact.ValidationErrors = []string{"missing flowchart declaration"}

	record, err := g.Evaluate(context.Background(), artifact, testRequirements(), nil)
	require.NoError(t, err)

	assert.False(t, record.SyntaxValid)
	assert.Equal(t, 0.0, record.Scores.Structural)
	assert.Equal(t, []string{"missing flowchart declaration"}, record.Issues.Structural)
	assert.Equal(t, []string{"fix the arrows"}, record.Suggestions)
}

func TestEvaluate_RemoteFailureDegrades(t *testing.T) {
	client := &mockClient{err: errors.New("upstream down")}
	g, err := NewGate(nil, client, zap.NewNop())
	require.NoError(t, err)

	record, err := g.Evaluate(context.Background(), validArtifact(), testRequirements(), nil)
	require.NoError(t, err)

	assert.Equal(t, 30.0, record.Scores.Completeness)
	assert.Equal(t, 30.0, record.Scores.Accuracy)
	require.Len(t, record.Issues.Completeness, 1)
	assert.Contains(t, record.Issues.Completeness[0], "completeness check failed")
	// suggestion call also failed, canned fallback per affected category
	assert.Contains(t, record.Suggestions, "add the missing key elements to make the diagram complete")
	assert.Contains(t, record.Suggestions, "review and correct the relationships and attributes")
}

func TestEvaluate_UnparseableRemoteResponse(t *testing.T) {
	client := &mockClient{responses: []mockResponse{
		{promptContains: "completeness_score", response: "not json at all"},
		{promptContains: "accuracy_score", response: "also not json"},
		{promptContains: "suggestions", response: "still not json"},
	}}
	g, err := NewGate(nil, client, zap.NewNop())
	require.NoError(t, err)

	record, err := g.Evaluate(context.Background(), validArtifact(), testRequirements(), nil)
	require.NoError(t, err)

	assert.Equal(t, 50.0, record.Scores.Completeness)
	assert.Equal(t, 50.0, record.Scores.Accuracy)
	assert.Equal(t, []string{"could not parse completeness check result"}, record.Issues.Completeness)
	assert.NotEmpty(t, record.Suggestions)
}

func TestEvaluate_NilArtifact(t *testing.T) {
	g, err := NewGate(nil, &mockClient{}, zap.NewNop())
	require.NoError(t, err)

	_, err = g.Evaluate(context.Background(), nil, nil, nil)
	assert.Error(t, err)
}

func TestCheckReadability(t *testing.T) {
	longName := strings.Repeat("x", 35)
	artifact := &diagram.Artifact{
		Type:              diagram.TypeFlowchart,
		Code:              "flowchart TD\n    " + longName + " --> B",
		EstimatedElements: 35,
	}

	score, issues := checkReadability(artifact)
	// 100 - 5 (long identifier) - 5 (many elements)
	assert.Equal(t, 90.0, score)
	assert.Len(t, issues, 2)
}

func TestCheckConformance_HeaderMismatch(t *testing.T) {
	artifact := &diagram.Artifact{
		Type: diagram.TypeERDiagram,
		Code: "flowchart TD\n    A --> B",
	}

	score, issues := checkConformance(artifact)
	assert.Equal(t, 80.0, score)
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0], "should start with")
}

func TestNeedsRepair(t *testing.T) {
	g, err := NewGate(&Config{RepairThreshold: 60}, &mockClient{}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, g.NeedsRepair(&Record{Score: 59.9}))
	assert.False(t, g.NeedsRepair(&Record{Score: 60}))
	assert.False(t, g.NeedsRepair(nil))
}

func TestEvaluateBatch(t *testing.T) {
	client := &mockClient{responses: []mockResponse{
		{promptContains: "completeness_score", response: `{"completeness_score": 70}`},
		{promptContains: "accuracy_score", response: `{"accuracy_score": 70}`},
		{promptContains: "suggestions", response: `{"suggestions": ["tighten labels"]}`},
	}}
	g, err := NewGate(nil, client, zap.NewNop())
	require.NoError(t, err)

	artifacts := map[diagram.Type]*diagram.Artifact{
		diagram.TypeFlowchart: validArtifact(),
		diagram.TypeSequence:  nil,
	}

	records, err := g.EvaluateBatch(context.Background(), artifacts, testRequirements(), nil)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Greater(t, records[diagram.TypeFlowchart].Score, 0.0)
	assert.Equal(t, 0.0, records[diagram.TypeSequence].Score)
	assert.Equal(t, LevelPoor, records[diagram.TypeSequence].Level)

	_, err = g.EvaluateBatch(context.Background(), nil, nil, nil)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	g, err := NewGate(nil, &mockClient{}, zap.NewNop())
	require.NoError(t, err)

	records := map[diagram.Type]*Record{
		diagram.TypeFlowchart: {Score: 80},
		diagram.TypeSequence:  {Score: 55},
	}

	s := g.Summarize(records)
	assert.Equal(t, 2, s.Evaluated)
	assert.Equal(t, 67.5, s.MeanScore)
	assert.Equal(t, 1, s.BelowThreshold)

	assert.Equal(t, Summary{}, g.Summarize(nil))
}

func TestLevelForScore(t *testing.T) {
	assert.Equal(t, LevelExcellent, LevelForScore(90))
	assert.Equal(t, LevelGood, LevelForScore(89.9))
	assert.Equal(t, LevelGood, LevelForScore(75))
	assert.Equal(t, LevelFair, LevelForScore(74.9))
	assert.Equal(t, LevelFair, LevelForScore(60))
	assert.Equal(t, LevelPoor, LevelForScore(59.9))
}
