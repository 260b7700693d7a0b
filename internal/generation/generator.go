// Package generation produces Mermaid artifacts from analysis results. Each
// diagram type gets its own prompt; invalid output gets exactly one automatic
// syntax-repair pass; batch generation fans out per type and isolates
// per-type failures.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/diagramd/internal/analysis"
	"github.com/fyrsmithlabs/diagramd/internal/diagram"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
)

const instrumentationName = "github.com/fyrsmithlabs/diagramd/internal/generation"

// maxConcurrentGenerations bounds the per-session fan-out.
const maxConcurrentGenerations = 4

// Generator produces diagram artifacts.
type Generator interface {
	// Generate produces a single artifact of the given type.
	Generate(ctx context.Context, req *analysis.RequirementResult, sys *analysis.SystemResult, t diagram.Type) (*diagram.Artifact, error)

	// GenerateBatch produces one artifact per requested type. A failed type
	// yields an invalid artifact with a diagnostic note; the batch errors
	// only when every type failed.
	GenerateBatch(ctx context.Context, req *analysis.RequirementResult, sys *analysis.SystemResult, types []diagram.Type) (map[diagram.Type]*diagram.Artifact, error)
}

type generator struct {
	client    llm.Client
	validator *diagram.Validator
	logger    *zap.Logger

	tracer            trace.Tracer
	meter             metric.Meter
	generationCounter metric.Int64Counter
	repairCounter     metric.Int64Counter
}

// NewGenerator creates a diagram generator.
func NewGenerator(client llm.Client, validator *diagram.Validator, logger *zap.Logger) (Generator, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &generator{
		client:    client,
		validator: validator,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	g.initMetrics()
	return g, nil
}

func (g *generator) initMetrics() {
	var err error

	g.generationCounter, err = g.meter.Int64Counter(
		"diagramd.generation.diagrams_total",
		metric.WithDescription("Total number of diagram generations"),
		metric.WithUnit("{diagram}"),
	)
	if err != nil {
		g.logger.Warn("failed to create generation counter", zap.Error(err))
	}

	g.repairCounter, err = g.meter.Int64Counter(
		"diagramd.generation.syntax_repairs_total",
		metric.WithDescription("Total number of automatic syntax repair attempts"),
		metric.WithUnit("{repair}"),
	)
	if err != nil {
		g.logger.Warn("failed to create repair counter", zap.Error(err))
	}
}

// generationWire is the JSON shape requested from the model.
type generationWire struct {
	DiagramCode       string `json:"diagram_code"`
	Description       string `json:"description"`
	ComplexityLevel   string `json:"complexity_level"`
	EstimatedElements int    `json:"estimated_elements"`
}

// Generate produces one artifact. Invalid Mermaid triggers a single
// low-temperature repair request; an artifact that is still invalid is
// returned as such rather than as an error.
func (g *generator) Generate(ctx context.Context, req *analysis.RequirementResult, sys *analysis.SystemResult, t diagram.Type) (*diagram.Artifact, error) {
	ctx, span := g.tracer.Start(ctx, "generation.generate")
	defer span.End()
	span.SetAttributes(attribute.String("diagram_type", string(t)))

	if req == nil || sys == nil {
		return nil, errors.New("analysis results are required")
	}
	if !diagram.IsSupported(t) {
		return nil, fmt.Errorf("unsupported diagram type %q", t)
	}

	if g.generationCounter != nil {
		g.generationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(t))))
	}

	response, err := g.client.Complete(ctx, generationPrompt(req, sys, t),
		llm.WithTemperature(0.7))
	if err != nil {
		return nil, fmt.Errorf("generating %s: %w", t, err)
	}

	artifact := g.parseResponse(response, t)

	valid, verrs := g.validator.Validate(t, artifact.Code)
	artifact.Valid = valid
	artifact.ValidationErrors = verrs

	if !artifact.Valid {
		g.repairSyntax(ctx, artifact)
	}

	span.SetAttributes(attribute.Bool("valid", artifact.Valid))
	g.logger.Info("diagram generated",
		zap.String("type", string(t)),
		zap.Bool("valid", artifact.Valid),
		zap.Int("elements", artifact.EstimatedElements))

	return artifact, nil
}

// parseResponse turns a model response into an artifact, preferring the
// structured JSON shape and degrading to raw Mermaid extraction.
func (g *generator) parseResponse(response string, t diagram.Type) *diagram.Artifact {
	var wire generationWire
	if err := diagram.DecodeJSON(response, &wire); err == nil && wire.DiagramCode != "" {
		artifact := &diagram.Artifact{
			Type:              t,
			Code:              diagram.ExtractMermaid(wire.DiagramCode),
			Description:       wire.Description,
			Complexity:        diagram.Complexity(wire.ComplexityLevel),
			EstimatedElements: wire.EstimatedElements,
		}
		switch artifact.Complexity {
		case diagram.ComplexitySimple, diagram.ComplexityMedium, diagram.ComplexityComplex:
		default:
			artifact.Complexity = diagram.ComplexityMedium
		}
		if artifact.EstimatedElements == 0 {
			artifact.EstimatedElements = diagram.CountElements(artifact.Code)
		}
		return artifact
	}

	code := diagram.ExtractMermaid(response)
	return &diagram.Artifact{
		Type:              t,
		Code:              code,
		Complexity:        diagram.EstimateComplexity(code),
		EstimatedElements: diagram.CountElements(code),
	}
}

// repairSyntax sends one low-temperature fix request for an invalid artifact.
// The artifact keeps its original code when the repair fails.
func (g *generator) repairSyntax(ctx context.Context, artifact *diagram.Artifact) {
	if g.repairCounter != nil {
		g.repairCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(artifact.Type))))
	}

	response, err := g.client.Complete(ctx, repairPrompt(artifact),
		llm.WithTemperature(0.1), llm.WithMaxTokens(2000))
	if err != nil {
		g.logger.Warn("syntax repair request failed",
			zap.String("type", string(artifact.Type)), zap.Error(err))
		artifact.Notes = append(artifact.Notes, fmt.Sprintf("syntax repair failed: %v", err))
		return
	}

	fixed := diagram.ExtractMermaid(response)
	valid, _ := g.validator.Validate(artifact.Type, fixed)
	if !valid {
		g.logger.Warn("syntax repair produced invalid code",
			zap.String("type", string(artifact.Type)))
		artifact.Notes = append(artifact.Notes, "syntax repair did not produce valid code")
		return
	}

	artifact.Code = fixed
	artifact.Valid = true
	artifact.ValidationErrors = nil
	artifact.EstimatedElements = diagram.CountElements(fixed)
	artifact.Complexity = diagram.EstimateComplexity(fixed)
	artifact.Notes = append(artifact.Notes, "syntax repaired automatically")
}

// GenerateBatch fans out one generation per type and joins the results.
func (g *generator) GenerateBatch(ctx context.Context, req *analysis.RequirementResult, sys *analysis.SystemResult, types []diagram.Type) (map[diagram.Type]*diagram.Artifact, error) {
	ctx, span := g.tracer.Start(ctx, "generation.generate_batch")
	defer span.End()
	span.SetAttributes(attribute.Int("types", len(types)))

	if len(types) == 0 {
		return nil, errors.New("no diagram types requested")
	}

	var (
		mu        sync.Mutex
		artifacts = make(map[diagram.Type]*diagram.Artifact, len(types))
		failures  int
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentGenerations)

	for _, t := range types {
		eg.Go(func() error {
			artifact, err := g.Generate(egCtx, req, sys, t)
			if err != nil {
				// Isolate the failure: record an invalid placeholder so the
				// result still carries every requested type.
				artifact = &diagram.Artifact{
					Type:             t,
					Complexity:       diagram.ComplexityUnknown,
					Valid:            false,
					ValidationErrors: []string{err.Error()},
					Notes:            []string{fmt.Sprintf("generation failed: %v", err)},
				}
				mu.Lock()
				failures++
				mu.Unlock()
			}
			mu.Lock()
			artifacts[t] = artifact
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if failures == len(types) {
		return artifacts, fmt.Errorf("all %d diagram generations failed", len(types))
	}

	return artifacts, nil
}

func generationPrompt(req *analysis.RequirementResult, sys *analysis.SystemResult, t diagram.Type) string {
	var sb strings.Builder
	sb.WriteString("Generate a Mermaid ")
	sb.WriteString(t.DisplayName())
	sb.WriteString(" for the following system.\n\n")
	sb.WriteString("Requirements:\n")
	sb.WriteString(req.CoreRequirements)
	if len(req.KeyElements) > 0 {
		sb.WriteString("\nKey elements: ")
		sb.WriteString(strings.Join(req.KeyElements, ", "))
	}
	sb.WriteString("\n\nSystem structure:\n")
	sb.WriteString(sys.Overview)
	if len(sys.Modules) > 0 {
		sb.WriteString("\nModules: ")
		sb.WriteString(strings.Join(sys.Modules, ", "))
	}
	if len(sys.DataFlows) > 0 {
		sb.WriteString("\nData flows: ")
		sb.WriteString(strings.Join(sys.DataFlows, "; "))
	}
	if info, ok := sys.DiagramInfo[t]; ok && len(info) > 0 {
		sb.WriteString("\nDiagram hints:")
		for k, v := range info {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, v))
		}
	}
	sb.WriteString("\n\n")
	sb.WriteString(typeGuidance(t))
	sb.WriteString("\n\nRespond with JSON only:\n")
	sb.WriteString(`{
  "diagram_code": "the Mermaid source",
  "description": "what the diagram shows",
  "complexity_level": "simple/medium/complex",
  "estimated_elements": 0
}`)
	return sb.String()
}

// typeGuidance returns generation guidance per diagram type.
func typeGuidance(t diagram.Type) string {
	switch t {
	case diagram.TypeERDiagram:
		return "Use erDiagram notation. Model entities with attributes and cardinality on every relationship."
	case diagram.TypeUMLClass:
		return "Use classDiagram notation. Include attributes, methods, and inheritance or composition links."
	case diagram.TypeUseCase:
		return "Use graph notation. Show actors on the left, use cases as rounded nodes, and system boundaries as subgraphs."
	case diagram.TypeSequence:
		return "Use sequenceDiagram notation. Declare participants and order the messages top to bottom."
	case diagram.TypeActivity:
		return "Use flowchart notation. Show decisions as diamonds and mark start and end nodes."
	case diagram.TypeCollaboration:
		return "Use graph notation. Show objects and number the messages along the links."
	case diagram.TypeFunctionStructure:
		return "Use graph TD notation. Decompose the system into function modules level by level."
	case diagram.TypeSystemArchitecture:
		return "Use graph TB notation. Group components into layers with subgraphs and use distinct shapes per component kind."
	default:
		return "Use the Mermaid notation that best fits the diagram type."
	}
}

func repairPrompt(artifact *diagram.Artifact) string {
	var sb strings.Builder
	sb.WriteString("The following Mermaid code has syntax problems. Fix them.\n\n")
	sb.WriteString("Problems:\n")
	sb.WriteString(strings.Join(artifact.ValidationErrors, "; "))
	sb.WriteString("\n\nOriginal code:\n```mermaid\n")
	sb.WriteString(artifact.Code)
	sb.WriteString("\n```\n\nReturn only the corrected Mermaid code, no explanations.")
	return sb.String()
}
