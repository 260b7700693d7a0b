// internal/analysis/requirement.go
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/diagram"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
)

const instrumentationName = "github.com/fyrsmithlabs/diagramd/internal/analysis"

// RequirementAnalyzer extracts structured requirements from a request.
type RequirementAnalyzer interface {
	Analyze(ctx context.Context, request string) (*RequirementResult, error)
}

type requirementAnalyzer struct {
	client llm.Client
	logger *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	analysisCounter metric.Int64Counter
	fallbackCounter metric.Int64Counter
}

// NewRequirementAnalyzer creates a requirement analyzer.
func NewRequirementAnalyzer(client llm.Client, logger *zap.Logger) (RequirementAnalyzer, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &requirementAnalyzer{
		client: client,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	a.initMetrics()
	return a, nil
}

func (a *requirementAnalyzer) initMetrics() {
	var err error

	a.analysisCounter, err = a.meter.Int64Counter(
		"diagramd.analysis.requirements_total",
		metric.WithDescription("Total number of requirement analyses"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		a.logger.Warn("failed to create analysis counter", zap.Error(err))
	}

	a.fallbackCounter, err = a.meter.Int64Counter(
		"diagramd.analysis.parse_fallbacks_total",
		metric.WithDescription("Total number of responses that fell back to keyword extraction"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		a.logger.Warn("failed to create fallback counter", zap.Error(err))
	}
}

// requirementWire is the JSON shape requested from the model.
type requirementWire struct {
	SystemType          string   `json:"system_type"`
	CoreRequirements    string   `json:"core_requirements"`
	KeyElements         []string `json:"key_elements"`
	Completeness        string   `json:"completeness"`
	Questions           []string `json:"clarifying_questions"`
	RecommendedDiagrams []string `json:"recommended_diagrams"`
	Confidence          float64  `json:"confidence_score"`
}

// Analyze runs requirement analysis on the request text.
//
// An unparseable model response does not fail the analysis; the analyzer
// degrades to deterministic keyword extraction with a default confidence.
func (a *requirementAnalyzer) Analyze(ctx context.Context, request string) (*RequirementResult, error) {
	ctx, span := a.tracer.Start(ctx, "analysis.requirement")
	defer span.End()

	request = strings.TrimSpace(request)
	if request == "" {
		return nil, errors.New("request is empty")
	}

	if a.analysisCounter != nil {
		a.analysisCounter.Add(ctx, 1)
	}

	response, err := a.client.Complete(ctx, requirementPrompt(request),
		llm.WithTemperature(0.3))
	if err != nil {
		return nil, fmt.Errorf("requirement analysis failed: %w", err)
	}

	var wire requirementWire
	if err := diagram.DecodeJSON(response, &wire); err != nil {
		a.logger.Warn("requirement response not parseable, falling back to keyword extraction",
			zap.Error(err))
		if a.fallbackCounter != nil {
			a.fallbackCounter.Add(ctx, 1)
		}
		return fallbackRequirementResult(request), nil
	}

	result := &RequirementResult{
		UserRequirements:    request,
		SystemType:          wire.SystemType,
		CoreRequirements:    wire.CoreRequirements,
		KeyElements:         wire.KeyElements,
		Completeness:        wire.Completeness,
		Questions:           wire.Questions,
		RecommendedDiagrams: supportedTypes(wire.RecommendedDiagrams),
		Confidence:          clampConfidence(wire.Confidence),
	}
	if result.Confidence == 0 {
		result.Confidence = 0.5
	}

	span.SetAttributes(
		attribute.Int("recommended_diagrams", len(result.RecommendedDiagrams)),
		attribute.Float64("confidence", result.Confidence),
	)
	a.logger.Info("requirement analysis complete",
		zap.Int("recommended_diagrams", len(result.RecommendedDiagrams)),
		zap.String("system_type", result.SystemType))

	return result, nil
}

func requirementPrompt(request string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following system description and extract structured requirements.\n\n")
	sb.WriteString("System description:\n")
	sb.WriteString(request)
	sb.WriteString("\n\nIdentify:\n")
	sb.WriteString("1. The type of system being described\n")
	sb.WriteString("2. The core requirements and key elements\n")
	sb.WriteString("3. Which diagram types best express the system, chosen from: ")
	for i, t := range diagram.AllTypes() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(string(t))
	}
	sb.WriteString("\n\nRespond with JSON only:\n")
	sb.WriteString(`{
  "system_type": "short classification",
  "core_requirements": "one paragraph summary",
  "key_elements": ["entity or component"],
  "completeness": "complete/partial/insufficient",
  "clarifying_questions": ["question if information is missing"],
  "recommended_diagrams": ["diagram type identifiers"],
  "confidence_score": 0.0
}`)
	return sb.String()
}

// fallbackRequirementResult builds a usable result from keyword rules when
// the model response cannot be parsed.
func fallbackRequirementResult(request string) *RequirementResult {
	return &RequirementResult{
		UserRequirements:    request,
		SystemType:          "undetermined",
		CoreRequirements:    request,
		Completeness:        "partial",
		RecommendedDiagrams: []diagram.Type{SuggestType(request)},
		Confidence:          0.5,
	}
}

// typeKeywords maps request keywords to the diagram type they imply.
// Order matters: earlier entries win on the first match.
var typeKeywords = []struct {
	keyword string
	typ     diagram.Type
}{
	{"database", diagram.TypeERDiagram},
	{"entity", diagram.TypeERDiagram},
	{"schema", diagram.TypeERDiagram},
	{"class", diagram.TypeUMLClass},
	{"object", diagram.TypeUMLClass},
	{"inheritance", diagram.TypeUMLClass},
	{"use case", diagram.TypeUseCase},
	{"actor", diagram.TypeUseCase},
	{"role", diagram.TypeUseCase},
	{"sequence", diagram.TypeSequence},
	{"interaction", diagram.TypeSequence},
	{"message", diagram.TypeSequence},
	{"activity", diagram.TypeActivity},
	{"parallel", diagram.TypeActivity},
	{"collaboration", diagram.TypeCollaboration},
	{"architecture", diagram.TypeSystemArchitecture},
	{"component", diagram.TypeSystemArchitecture},
	{"deployment", diagram.TypeSystemArchitecture},
	{"function", diagram.TypeFunctionStructure},
	{"module", diagram.TypeFunctionStructure},
	{"process", diagram.TypeFlowchart},
	{"step", diagram.TypeFlowchart},
	{"workflow", diagram.TypeFlowchart},
	{"business", diagram.TypeFlowchart},
}

// SuggestType picks a diagram type for the request by keyword matching.
// Defaults to flowchart when nothing matches.
func SuggestType(request string) diagram.Type {
	lower := strings.ToLower(request)
	for _, entry := range typeKeywords {
		if strings.Contains(lower, entry.keyword) {
			return entry.typ
		}
	}
	return diagram.TypeFlowchart
}

func supportedTypes(raw []string) []diagram.Type {
	types := make([]diagram.Type, 0, len(raw))
	for _, r := range raw {
		t := diagram.Type(strings.TrimSpace(strings.ToLower(r)))
		if diagram.IsSupported(t) {
			types = append(types, t)
		}
	}
	return types
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
