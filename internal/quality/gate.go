// internal/quality/gate.go
package quality

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/analysis"
	"github.com/fyrsmithlabs/diagramd/internal/diagram"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
)

const instrumentationName = "github.com/fyrsmithlabs/diagramd/internal/quality"

// Gate evaluates artifact quality.
type Gate interface {
	// Evaluate scores a single artifact.
	Evaluate(ctx context.Context, artifact *diagram.Artifact, req *analysis.RequirementResult, sys *analysis.SystemResult) (*Record, error)

	// EvaluateBatch scores every artifact in the map. A failed evaluation
	// yields a zero-score record rather than failing the batch.
	EvaluateBatch(ctx context.Context, artifacts map[diagram.Type]*diagram.Artifact, req *analysis.RequirementResult, sys *analysis.SystemResult) (map[diagram.Type]*Record, error)

	// NeedsRepair reports whether the record falls below the repair threshold.
	NeedsRepair(record *Record) bool

	// Summarize aggregates a batch of records.
	Summarize(records map[diagram.Type]*Record) Summary
}

// Config configures the quality gate.
type Config struct {
	// RepairThreshold is the score below which an artifact is repaired
	// (default: 60).
	RepairThreshold float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{RepairThreshold: 60}
}

type gate struct {
	config *Config
	client llm.Client
	logger *zap.Logger

	tracer            trace.Tracer
	meter             metric.Meter
	evaluationCounter metric.Int64Counter
	scoreHistogram    metric.Float64Histogram
}

// NewGate creates a quality gate.
func NewGate(cfg *Config, client llm.Client, logger *zap.Logger) (Gate, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RepairThreshold < 0 || cfg.RepairThreshold > 100 {
		return nil, fmt.Errorf("repair threshold must be in [0,100], got %v", cfg.RepairThreshold)
	}
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &gate{
		config: cfg,
		client: client,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	g.initMetrics()
	return g, nil
}

func (g *gate) initMetrics() {
	var err error

	g.evaluationCounter, err = g.meter.Int64Counter(
		"diagramd.quality.evaluations_total",
		metric.WithDescription("Total number of quality evaluations"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		g.logger.Warn("failed to create evaluation counter", zap.Error(err))
	}

	g.scoreHistogram, err = g.meter.Float64Histogram(
		"diagramd.quality.score",
		metric.WithDescription("Distribution of quality scores"),
		metric.WithUnit("1"),
	)
	if err != nil {
		g.logger.Warn("failed to create score histogram", zap.Error(err))
	}
}

// Evaluate scores one artifact across the five categories.
func (g *gate) Evaluate(ctx context.Context, artifact *diagram.Artifact, req *analysis.RequirementResult, sys *analysis.SystemResult) (*Record, error) {
	ctx, span := g.tracer.Start(ctx, "quality.evaluate")
	defer span.End()

	if artifact == nil {
		return nil, errors.New("artifact is required")
	}
	span.SetAttributes(attribute.String("diagram_type", string(artifact.Type)))

	if g.evaluationCounter != nil {
		g.evaluationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(artifact.Type))))
	}

	record := &Record{}

	record.Scores.Structural, record.Issues.Structural = checkStructural(artifact)
	record.SyntaxValid = record.Scores.Structural >= 90
	record.Scores.Readability, record.Issues.Readability = checkReadability(artifact)
	record.Scores.Conformance, record.Issues.Conformance = checkConformance(artifact)
	record.Scores.Completeness, record.Issues.Completeness = g.checkCompleteness(ctx, artifact, req)
	record.Scores.Accuracy, record.Issues.Accuracy = g.checkAccuracy(ctx, artifact, req, sys)

	record.Score = weightedScore(record.Scores)
	record.Level = LevelForScore(record.Score)
	record.Suggestions = g.suggestions(ctx, artifact, record)

	if g.scoreHistogram != nil {
		g.scoreHistogram.Record(ctx, record.Score)
	}
	span.SetAttributes(
		attribute.Float64("score", record.Score),
		attribute.String("level", string(record.Level)),
	)
	g.logger.Info("quality evaluation complete",
		zap.String("type", string(artifact.Type)),
		zap.Float64("score", record.Score),
		zap.String("level", string(record.Level)))

	return record, nil
}

// EvaluateBatch scores every artifact; an evaluation error becomes a
// zero-score record so the batch result stays complete.
func (g *gate) EvaluateBatch(ctx context.Context, artifacts map[diagram.Type]*diagram.Artifact, req *analysis.RequirementResult, sys *analysis.SystemResult) (map[diagram.Type]*Record, error) {
	ctx, span := g.tracer.Start(ctx, "quality.evaluate_batch")
	defer span.End()
	span.SetAttributes(attribute.Int("artifacts", len(artifacts)))

	if len(artifacts) == 0 {
		return nil, errors.New("no artifacts to evaluate")
	}

	records := make(map[diagram.Type]*Record, len(artifacts))
	for t, artifact := range artifacts {
		record, err := g.Evaluate(ctx, artifact, req, sys)
		if err != nil {
			g.logger.Error("quality evaluation failed",
				zap.String("type", string(t)), zap.Error(err))
			record = &Record{
				Level: LevelPoor,
				Issues: CategoryIssues{
					Structural: []string{fmt.Sprintf("evaluation failed: %v", err)},
				},
			}
		}
		records[t] = record
	}

	return records, nil
}

// NeedsRepair reports whether the record's score is below the repair threshold.
func (g *gate) NeedsRepair(record *Record) bool {
	return record != nil && record.Score < g.config.RepairThreshold
}

// Summarize aggregates scores across a batch.
func (g *gate) Summarize(records map[diagram.Type]*Record) Summary {
	s := Summary{Evaluated: len(records)}
	if len(records) == 0 {
		return s
	}

	total := 0.0
	for _, record := range records {
		total += record.Score
		if g.NeedsRepair(record) {
			s.BelowThreshold++
		}
	}
	s.MeanScore = math.Round(total/float64(len(records))*10) / 10
	return s
}

// checkStructural scores structural validity from the validator outcome.
func checkStructural(artifact *diagram.Artifact) (float64, []string) {
	if strings.TrimSpace(artifact.Code) == "" {
		return 0, []string{"diagram code is empty"}
	}
	if artifact.Valid {
		return 100, nil
	}
	if len(artifact.ValidationErrors) > 0 {
		return 0, artifact.ValidationErrors
	}
	return 0, []string{"syntax validation failed"}
}

var identifierPattern = regexp.MustCompile(`\b\w+\b`)

// checkReadability scores naming, density, and annotation locally.
func checkReadability(artifact *diagram.Artifact) (float64, []string) {
	if strings.TrimSpace(artifact.Code) == "" {
		return 0, []string{"diagram code is empty"}
	}

	var issues []string
	score := 100.0
	lines := strings.Split(artifact.Code, "\n")

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}

		for _, word := range identifierPattern.FindAllString(line, -1) {
			if len(word) > 30 {
				issues = append(issues, fmt.Sprintf("identifier too long: %s...", word[:20]))
				score -= 5
			}
		}

		if hasNonASCII(line) && !strings.Contains(line, `"`) {
			issues = append(issues, "non-ASCII labels should be quoted")
			score -= 3
		}
	}

	switch {
	case artifact.EstimatedElements > 50:
		issues = append(issues, "too many elements, readability will suffer")
		score -= 10
	case artifact.EstimatedElements > 30:
		issues = append(issues, "many elements, consider simplifying")
		score -= 5
	}

	hasComments := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "%%") {
			hasComments = true
			break
		}
	}
	if !hasComments && artifact.EstimatedElements > 10 {
		issues = append(issues, "complex diagram should carry explanatory comments")
		score -= 5
	}

	return math.Max(score, 0), issues
}

var arrowPattern = regexp.MustCompile(`\w+\s*(-->|---)\s*\w+`)

// checkConformance scores notation conventions locally.
func checkConformance(artifact *diagram.Artifact) (float64, []string) {
	if strings.TrimSpace(artifact.Code) == "" {
		return 0, []string{"diagram code is empty"}
	}

	var issues []string
	score := 100.0

	if !diagram.HeaderMatches(artifact.Type, artifact.Code) {
		issues = append(issues, fmt.Sprintf("diagram should start with %s", diagram.ExpectedHeader(artifact.Type)))
		score -= 20
	}

	for i, line := range strings.Split(artifact.Code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}

		if strings.Contains(line, "-->") || strings.Contains(line, "---") {
			if !arrowPattern.MatchString(line) {
				issues = append(issues, fmt.Sprintf("line %d: malformed arrow syntax", i+1))
				score -= 3
			}
		}

		if hasNonASCII(line) && !strings.ContainsAny(line, `"'`) {
			issues = append(issues, fmt.Sprintf("line %d: non-ASCII content should be quoted", i+1))
			score -= 2
		}
	}

	return math.Max(score, 0), issues
}

func hasNonASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return true
		}
	}
	return false
}

type completenessWire struct {
	CompletenessScore float64  `json:"completeness_score"`
	MissingElements   []string `json:"missing_elements"`
}

// checkCompleteness asks the model whether the diagram covers the
// requirements. Unparseable responses degrade to a neutral 50; request
// errors degrade to 30.
func (g *gate) checkCompleteness(ctx context.Context, artifact *diagram.Artifact, req *analysis.RequirementResult) (float64, []string) {
	prompt := completenessPrompt(artifact, req)
	response, err := g.client.Complete(ctx, prompt,
		llm.WithTemperature(0.2), llm.WithMaxTokens(1000))
	if err != nil {
		g.logger.Warn("completeness check failed", zap.Error(err))
		return 30, []string{fmt.Sprintf("completeness check failed: %v", err)}
	}

	var wire completenessWire
	if err := diagram.DecodeJSON(response, &wire); err != nil {
		return 50, []string{"could not parse completeness check result"}
	}
	return clampScore(wire.CompletenessScore), wire.MissingElements
}

type accuracyWire struct {
	AccuracyScore  float64  `json:"accuracy_score"`
	AccuracyIssues []string `json:"accuracy_issues"`
}

// checkAccuracy asks the model whether the diagram content is correct.
func (g *gate) checkAccuracy(ctx context.Context, artifact *diagram.Artifact, req *analysis.RequirementResult, sys *analysis.SystemResult) (float64, []string) {
	prompt := accuracyPrompt(artifact, req, sys)
	response, err := g.client.Complete(ctx, prompt,
		llm.WithTemperature(0.2), llm.WithMaxTokens(1000))
	if err != nil {
		g.logger.Warn("accuracy check failed", zap.Error(err))
		return 30, []string{fmt.Sprintf("accuracy check failed: %v", err)}
	}

	var wire accuracyWire
	if err := diagram.DecodeJSON(response, &wire); err != nil {
		return 50, []string{"could not parse accuracy check result"}
	}
	return clampScore(wire.AccuracyScore), wire.AccuracyIssues
}

type suggestionsWire struct {
	Suggestions []string `json:"suggestions"`
}

// suggestions synthesizes improvement suggestions from the issue union,
// with a canned per-category fallback.
func (g *gate) suggestions(ctx context.Context, artifact *diagram.Artifact, record *Record) []string {
	all := collectIssues(record.Issues)
	if len(all) == 0 {
		return []string{"diagram quality is good, no changes needed"}
	}

	response, err := g.client.Complete(ctx, suggestionsPrompt(artifact, all),
		llm.WithTemperature(0.3), llm.WithMaxTokens(800))
	if err == nil {
		var wire suggestionsWire
		if derr := diagram.DecodeJSON(response, &wire); derr == nil && len(wire.Suggestions) > 0 {
			return wire.Suggestions
		}
	} else {
		g.logger.Warn("suggestion synthesis failed", zap.Error(err))
	}

	return defaultSuggestions(record.Issues)
}

func collectIssues(issues CategoryIssues) []string {
	var all []string
	for _, group := range [][]string{
		issues.Structural, issues.Completeness, issues.Accuracy,
		issues.Readability, issues.Conformance,
	} {
		all = append(all, group...)
	}
	return all
}

// defaultSuggestions returns a fixed suggestion per affected category.
func defaultSuggestions(issues CategoryIssues) []string {
	var suggestions []string
	if len(issues.Structural) > 0 {
		suggestions = append(suggestions, "fix the syntax errors so the Mermaid code validates")
	}
	if len(issues.Completeness) > 0 {
		suggestions = append(suggestions, "add the missing key elements to make the diagram complete")
	}
	if len(issues.Accuracy) > 0 {
		suggestions = append(suggestions, "review and correct the relationships and attributes")
	}
	if len(issues.Readability) > 0 {
		suggestions = append(suggestions, "improve layout and naming for readability")
	}
	if len(issues.Conformance) > 0 {
		suggestions = append(suggestions, "adjust the notation to follow Mermaid conventions")
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions, "diagram quality is good, keep the current standard")
	}
	return suggestions
}

func weightedScore(scores CategoryScores) float64 {
	weighted := scores.Structural*weightStructural +
		scores.Completeness*weightCompleteness +
		scores.Accuracy*weightAccuracy +
		scores.Readability*weightReadability +
		scores.Conformance*weightConformance
	return math.Round(weighted*10) / 10
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func completenessPrompt(artifact *diagram.Artifact, req *analysis.RequirementResult) string {
	var sb strings.Builder
	sb.WriteString("Check whether the diagram covers all key elements of the requirements.\n\n")
	sb.WriteString("Requirements:\n")
	if req != nil {
		sb.WriteString(req.UserRequirements)
	}
	sb.WriteString("\n\nDiagram type: ")
	sb.WriteString(string(artifact.Type))
	sb.WriteString("\nDiagram code:\n```mermaid\n")
	sb.WriteString(artifact.Code)
	sb.WriteString("\n```\n\nRespond with JSON only:\n")
	sb.WriteString(`{"completeness_score": 0, "missing_elements": ["element"]}`)
	return sb.String()
}

func accuracyPrompt(artifact *diagram.Artifact, req *analysis.RequirementResult, sys *analysis.SystemResult) string {
	var sb strings.Builder
	sb.WriteString("Check whether the diagram correctly reflects the requirements: ")
	sb.WriteString("relationships, attributes, and flow logic.\n\n")
	sb.WriteString("Requirements:\n")
	if req != nil {
		sb.WriteString(req.UserRequirements)
	}
	if sys != nil {
		if info, ok := sys.DiagramInfo[artifact.Type]; ok && len(info) > 0 {
			sb.WriteString("\nSystem hints:")
			for k, v := range info {
				sb.WriteString(fmt.Sprintf(" %s=%v", k, v))
			}
		}
	}
	sb.WriteString("\n\nDiagram type: ")
	sb.WriteString(string(artifact.Type))
	sb.WriteString("\nDiagram code:\n```mermaid\n")
	sb.WriteString(artifact.Code)
	sb.WriteString("\n```\n\nRespond with JSON only:\n")
	sb.WriteString(`{"accuracy_score": 0, "accuracy_issues": ["issue"]}`)
	return sb.String()
}

func suggestionsPrompt(artifact *diagram.Artifact, issues []string) string {
	var sb strings.Builder
	sb.WriteString("Quality review of a ")
	sb.WriteString(artifact.Type.DisplayName())
	sb.WriteString(" found these problems:\n")
	for _, issue := range issues {
		sb.WriteString("- ")
		sb.WriteString(issue)
		sb.WriteString("\n")
	}
	sb.WriteString("\nGive 3-5 short, actionable improvement suggestions.\n")
	sb.WriteString("Respond with JSON only:\n")
	sb.WriteString(`{"suggestions": ["suggestion"]}`)
	return sb.String()
}
