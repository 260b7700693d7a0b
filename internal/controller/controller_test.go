// internal/controller/controller_test.go
package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/advisor"
	"github.com/fyrsmithlabs/diagramd/internal/analysis"
	"github.com/fyrsmithlabs/diagramd/internal/diagram"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/quality"
	"github.com/fyrsmithlabs/diagramd/internal/session"
)

type mockRequirements struct {
	result *analysis.RequirementResult
	err    error
}

func (m *mockRequirements) Analyze(context.Context, string) (*analysis.RequirementResult, error) {
	return m.result, m.err
}

type mockSystem struct {
	result *analysis.SystemResult
	err    error
	hook   func()
}

func (m *mockSystem) Analyze(context.Context, string, *analysis.RequirementResult) (*analysis.SystemResult, error) {
	if m.hook != nil {
		m.hook()
	}
	return m.result, m.err
}

type mockGenerator struct {
	mu         sync.Mutex
	batch      map[diagram.Type]*diagram.Artifact
	batchErr   error
	single     *diagram.Artifact
	singleErr  error
	repairs    int
	batchTypes []diagram.Type
}

func (m *mockGenerator) Generate(_ context.Context, _ *analysis.RequirementResult, _ *analysis.SystemResult, _ diagram.Type) (*diagram.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repairs++
	return m.single, m.singleErr
}

func (m *mockGenerator) GenerateBatch(_ context.Context, _ *analysis.RequirementResult, _ *analysis.SystemResult, types []diagram.Type) (map[diagram.Type]*diagram.Artifact, error) {
	m.mu.Lock()
	m.batchTypes = types
	m.mu.Unlock()
	out := make(map[diagram.Type]*diagram.Artifact, len(m.batch))
	for t, a := range m.batch {
		out[t] = a
	}
	return out, m.batchErr
}

type mockGate struct {
	records   map[diagram.Type]*quality.Record
	record    *quality.Record
	evalErr   error
	threshold float64
}

func (m *mockGate) Evaluate(context.Context, *diagram.Artifact, *analysis.RequirementResult, *analysis.SystemResult) (*quality.Record, error) {
	return m.record, m.evalErr
}

func (m *mockGate) EvaluateBatch(context.Context, map[diagram.Type]*diagram.Artifact, *analysis.RequirementResult, *analysis.SystemResult) (map[diagram.Type]*quality.Record, error) {
	out := make(map[diagram.Type]*quality.Record, len(m.records))
	for t, r := range m.records {
		out[t] = r
	}
	return out, nil
}

func (m *mockGate) NeedsRepair(record *quality.Record) bool {
	return record != nil && record.Score < m.threshold
}

func (m *mockGate) Summarize(records map[diagram.Type]*quality.Record) quality.Summary {
	s := quality.Summary{Evaluated: len(records)}
	total := 0.0
	for _, r := range records {
		total += r.Score
	}
	if len(records) > 0 {
		s.MeanScore = total / float64(len(records))
	}
	return s
}

type mockAdvisor struct {
	mu     sync.Mutex
	result *advisor.Result
	err    error
	calls  int
}

func (m *mockAdvisor) Advise(context.Context, *advisor.Input) (*advisor.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.result, m.err
}

func (m *mockAdvisor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockLLM struct{ err error }

func (m *mockLLM) Complete(context.Context, string, ...llm.CallOption) (string, error) {
	return "", m.err
}

func (m *mockLLM) Ping(context.Context) error { return m.err }

type fixture struct {
	executor  Executor
	registry  *session.Registry
	generator *mockGenerator
	advisor   *mockAdvisor
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()

	registry, err := session.NewRegistry(nil, zap.NewNop())
	require.NoError(t, err)

	gen := &mockGenerator{
		batch: map[diagram.Type]*diagram.Artifact{
			diagram.TypeFlowchart: {Type: diagram.TypeFlowchart, Code: "flowchart TD\n  A --> B", Valid: true},
		},
		single: &diagram.Artifact{Type: diagram.TypeFlowchart, Code: "flowchart TD\n  A --> C", Valid: true},
	}
	adv := &mockAdvisor{result: &advisor.Result{Confidence: 0.8}}

	deps := Deps{
		Registry: registry,
		Requirements: &mockRequirements{result: &analysis.RequirementResult{
			UserRequirements:    "order system",
			RecommendedDiagrams: []diagram.Type{diagram.TypeFlowchart},
			Confidence:          0.8,
		}},
		System:    &mockSystem{result: &analysis.SystemResult{Overview: "three tier"}},
		Generator: gen,
		Gate: &mockGate{
			records: map[diagram.Type]*quality.Record{
				diagram.TypeFlowchart: {Score: 85, Level: quality.LevelGood, Suggestions: []string{"tighten labels"}},
			},
			record:    &quality.Record{Score: 90, Level: quality.LevelExcellent},
			threshold: 60,
		},
		Advisor: adv,
		Client:  &mockLLM{},
		Logger:  zap.NewNop(),
	}
	if mutate != nil {
		mutate(&deps)
	}

	exec, err := NewExecutor(deps)
	require.NoError(t, err)
	return &fixture{executor: exec, registry: registry, generator: gen, advisor: adv}
}

func TestSubmit_FullPipeline(t *testing.T) {
	f := newFixture(t, nil)

	data, err := f.executor.Submit(context.Background(), &Request{Request: "order system"})
	require.NoError(t, err)

	assert.Equal(t, session.StatusCompleted, data.Status)
	assert.Equal(t, StageOutputAssembly, data.CurrentStage)
	assert.NotNil(t, data.Requirements)
	assert.NotNil(t, data.System)
	assert.Len(t, data.Artifacts, 1)
	assert.Len(t, data.Quality, 1)
	assert.NotNil(t, data.Advice)
	require.NotNil(t, data.Output)
	assert.Equal(t, 1, data.Output.Summary.ArtifactCount)
	assert.Equal(t, 1, data.Output.Summary.ValidCount)
	assert.Equal(t, 85.0, data.Output.Summary.MeanQuality)
	assert.Equal(t, []string{"tighten labels"}, data.Output.Summary.TopSuggestions)
	// advisory runs before generation and after quality
	assert.Equal(t, 2, f.advisor.callCount())
	assert.Greater(t, data.Duration, time.Duration(0))
}

func TestSubmit_DefaultTypesWhenNoRecommendation(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Requirements = &mockRequirements{result: &analysis.RequirementResult{
			UserRequirements: "order system",
			Confidence:       0.8,
		}}
	})

	data, err := f.executor.Submit(context.Background(), &Request{Request: "order system"})
	require.NoError(t, err)

	assert.Equal(t, session.StatusCompleted, data.Status)
	f.generator.mu.Lock()
	defer f.generator.mu.Unlock()
	assert.Equal(t, diagram.DefaultTypes(), f.generator.batchTypes)
}

func TestSubmit_OptionalStagesDisabled(t *testing.T) {
	f := newFixture(t, nil)

	data, err := f.executor.Submit(context.Background(), &Request{
		Request: "order system",
		Options: Options{DisableAdvisory: true, DisableQuality: true},
	})
	require.NoError(t, err)

	assert.Equal(t, session.StatusCompleted, data.Status)
	assert.Nil(t, data.Quality)
	assert.Nil(t, data.Advice)
	assert.Equal(t, 0, f.advisor.callCount())
	assert.Equal(t, 0.0, data.Output.Summary.MeanQuality)
}

func TestSubmit_EmptyRequest(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.executor.Submit(context.Background(), &Request{})
	assert.Error(t, err)
}

func TestSubmit_AdmissionLimit(t *testing.T) {
	registry, err := session.NewRegistry(&session.Config{MaxConcurrent: 1, Timeout: time.Hour, MaxHistory: 10}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, registry.Create(session.New("u1", "occupies the slot")))

	f := newFixture(t, func(d *Deps) { d.Registry = registry })

	_, err = f.executor.Submit(context.Background(), &Request{Request: "order system"})
	assert.ErrorIs(t, err, session.ErrTooManySessions)
}

func TestSubmit_StageFailureFinalizesFailed(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Requirements = &mockRequirements{err: errors.New("model unreachable")}
	})

	data, err := f.executor.Submit(context.Background(), &Request{Request: "order system"})
	require.NoError(t, err)

	assert.Equal(t, session.StatusFailed, data.Status)
	assert.Contains(t, data.ErrorMessage, "requirement analysis")
	assert.Contains(t, data.ErrorMessage, "model unreachable")

	stats := f.executor.Statistics()
	assert.Equal(t, 1, stats.Failed)
}

func TestSubmit_RepairReplacesLowScoringArtifact(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Gate = &mockGate{
			records: map[diagram.Type]*quality.Record{
				diagram.TypeFlowchart: {Score: 40, Level: quality.LevelPoor},
			},
			record:    &quality.Record{Score: 88, Level: quality.LevelGood},
			threshold: 60,
		}
	})

	data, err := f.executor.Submit(context.Background(), &Request{Request: "order system"})
	require.NoError(t, err)

	assert.Equal(t, session.StatusCompleted, data.Status)
	assert.Equal(t, 1, f.generator.repairs)
	assert.Equal(t, 88.0, data.Quality[diagram.TypeFlowchart].Score)
	assert.Equal(t, "flowchart TD\n  A --> C", data.Artifacts[diagram.TypeFlowchart].Code)
}

func TestSubmit_RepairFailureKeepsOriginal(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Gate = &mockGate{
			records: map[diagram.Type]*quality.Record{
				diagram.TypeFlowchart: {Score: 40, Level: quality.LevelPoor},
			},
			threshold: 60,
		}
	})
	f.generator.singleErr = errors.New("regeneration failed")

	data, err := f.executor.Submit(context.Background(), &Request{Request: "order system"})
	require.NoError(t, err)

	assert.Equal(t, session.StatusCompleted, data.Status)
	assert.Equal(t, 40.0, data.Quality[diagram.TypeFlowchart].Score)
	artifact := data.Artifacts[diagram.TypeFlowchart]
	assert.Equal(t, "flowchart TD\n  A --> B", artifact.Code)
	require.NotEmpty(t, artifact.Notes)
	assert.Contains(t, artifact.Notes[len(artifact.Notes)-1], "repair generation failed")
}

func TestSubmit_CancelObservedAtStageBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, func(d *Deps) {
		d.System = &mockSystem{
			result: &analysis.SystemResult{},
			// cancellation mid-stage takes effect at the next boundary
			hook: cancel,
		}
	})

	data, err := f.executor.Submit(ctx, &Request{Request: "order system"})
	require.NoError(t, err)

	assert.Equal(t, session.StatusCancelled, data.Status)
	assert.NotNil(t, data.System)
	assert.Nil(t, data.Artifacts)
	assert.Equal(t, 0, f.generator.repairs)
}

func TestStatusAndStatistics(t *testing.T) {
	f := newFixture(t, nil)

	data, err := f.executor.Submit(context.Background(), &Request{OwnerID: "alice", Request: "order system"})
	require.NoError(t, err)

	got, err := f.executor.Status(data.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)

	_, err = f.executor.Status("missing")
	assert.ErrorIs(t, err, session.ErrNotFound)

	stats := f.executor.Statistics()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Succeeded)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	h := f.executor.Health(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "ok", h.LLM)

	f = newFixture(t, func(d *Deps) { d.Client = &mockLLM{err: errors.New("down")} })
	h = f.executor.Health(context.Background())
	assert.Equal(t, "degraded", h.Status)
	assert.Contains(t, h.LLM, "down")
}

func TestNewExecutor_Validation(t *testing.T) {
	_, err := NewExecutor(Deps{})
	assert.Error(t, err)
}
