// internal/analysis/system.go
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

// SystemAnalyzer builds a structural understanding of the described system.
type SystemAnalyzer interface {
	Analyze(ctx context.Context, request string, req *RequirementResult) (*SystemResult, error)
}

type systemAnalyzer struct {
	client llm.Client
	logger *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	analysisCounter metric.Int64Counter
}

// NewSystemAnalyzer creates a system analyzer. System analysis is routed to
// the reasoning model at low temperature.
func NewSystemAnalyzer(client llm.Client, logger *zap.Logger) (SystemAnalyzer, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &systemAnalyzer{
		client: client,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	var err error
	a.analysisCounter, err = a.meter.Int64Counter(
		"diagramd.analysis.systems_total",
		metric.WithDescription("Total number of system analyses"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		a.logger.Warn("failed to create system analysis counter", zap.Error(err))
	}

	return a, nil
}

type systemWire struct {
	Overview    string                    `json:"overview"`
	Modules     []string                  `json:"modules"`
	DataFlows   []string                  `json:"data_flows"`
	DiagramInfo map[string]map[string]any `json:"diagram_specific_info"`
}

// Analyze derives system structure for the recommended diagram types.
func (a *systemAnalyzer) Analyze(ctx context.Context, request string, req *RequirementResult) (*SystemResult, error) {
	ctx, span := a.tracer.Start(ctx, "analysis.system")
	defer span.End()

	if req == nil {
		return nil, errors.New("requirement result is required")
	}

	if a.analysisCounter != nil {
		a.analysisCounter.Add(ctx, 1)
	}

	response, err := a.client.Complete(ctx, systemPrompt(request, req),
		llm.WithTemperature(0.2), llm.WithReasoner())
	if err != nil {
		return nil, fmt.Errorf("system analysis failed: %w", err)
	}

	var wire systemWire
	if err := diagram.DecodeJSON(response, &wire); err != nil {
		// A flexible result is acceptable here: keep the raw overview.
		a.logger.Warn("system response not parseable, keeping raw overview", zap.Error(err))
		return &SystemResult{Overview: strings.TrimSpace(response)}, nil
	}

	result := &SystemResult{
		Overview:  wire.Overview,
		Modules:   wire.Modules,
		DataFlows: wire.DataFlows,
	}
	if len(wire.DiagramInfo) > 0 {
		result.DiagramInfo = make(map[diagram.Type]map[string]any, len(wire.DiagramInfo))
		for raw, info := range wire.DiagramInfo {
			t := diagram.Type(strings.ToLower(raw))
			if diagram.IsSupported(t) {
				result.DiagramInfo[t] = info
			}
		}
	}

	span.SetAttributes(attribute.Int("modules", len(result.Modules)))
	a.logger.Info("system analysis complete", zap.Int("modules", len(result.Modules)))

	return result, nil
}

func systemPrompt(request string, req *RequirementResult) string {
	var sb strings.Builder
	sb.WriteString("Build a structural understanding of the following system for diagram generation.\n\n")
	sb.WriteString("System description:\n")
	sb.WriteString(request)
	sb.WriteString("\n\nRequirement analysis:\n")
	sb.WriteString("- System type: ")
	sb.WriteString(req.SystemType)
	sb.WriteString("\n- Core requirements: ")
	sb.WriteString(req.CoreRequirements)
	sb.WriteString("\n- Diagrams to produce: ")
	for i, t := range req.RecommendedDiagrams {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(string(t))
	}
	sb.WriteString("\n\nDescribe the modules, data flows, and any structure specific to each ")
	sb.WriteString("requested diagram type.\n\nRespond with JSON only:\n")
	sb.WriteString(`{
  "overview": "one paragraph",
  "modules": ["module name"],
  "data_flows": ["source -> target: payload"],
  "diagram_specific_info": {"diagram_type": {"key": "value"}}
}`)
	return sb.String()
}
