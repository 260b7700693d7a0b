// internal/advisor/advisor.go
package advisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/diagram"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/quality"
)

const instrumentationName = "github.com/fyrsmithlabs/diagramd/internal/advisor"

const guidanceFallback = "The system is processing your request, please hold on."

// Advisor produces personalized advice from the pipeline state.
type Advisor interface {
	Advise(ctx context.Context, input *Input) (*Result, error)
}

type advisor struct {
	client llm.Client
	logger *zap.Logger

	tracer        trace.Tracer
	meter         metric.Meter
	adviceCounter metric.Int64Counter
}

// NewAdvisor creates an advisor backed by the given model client.
func NewAdvisor(client llm.Client, logger *zap.Logger) (Advisor, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &advisor{
		client: client,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	var err error
	a.adviceCounter, err = a.meter.Int64Counter(
		"diagramd.advisor.advice_total",
		metric.WithDescription("Total number of advisory passes"),
		metric.WithUnit("{advice}"),
	)
	if err != nil {
		a.logger.Warn("failed to create advice counter", zap.Error(err))
	}

	return a, nil
}

// Advise resolves preferences, then assembles workflow, suggestions,
// guidance, next steps, a time estimate, and a confidence score. Remote
// failures degrade to local fallbacks, never to an error.
func (a *advisor) Advise(ctx context.Context, input *Input) (*Result, error) {
	ctx, span := a.tracer.Start(ctx, "advisor.advise")
	defer span.End()

	if input == nil {
		return nil, errors.New("input is required")
	}

	prefs := ResolvePreferences(input.Explicit, input.History, input.Request)
	diagramCount := len(recommendedTypes(input))
	span.SetAttributes(
		attribute.String("style", string(prefs.Style)),
		attribute.Int("diagram_count", diagramCount),
	)
	if a.adviceCounter != nil {
		a.adviceCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("style", string(prefs.Style))))
	}

	result := &Result{
		Workflow:      workflowFor(prefs.Style, diagramCount),
		Suggestions:   a.suggestions(ctx, input, prefs),
		Guidance:      a.guidance(ctx, input),
		NextSteps:     nextSteps(input, prefs),
		EstimatedTime: estimateTime(diagramCount, prefs),
		Confidence:    confidenceScore(input),
	}

	a.logger.Info("advisory pass complete",
		zap.String("style", string(prefs.Style)),
		zap.Float64("confidence", result.Confidence))

	return result, nil
}

// recommendedTypes returns the diagram types the pipeline is working with.
func recommendedTypes(input *Input) []diagram.Type {
	if input.Requirements != nil && len(input.Requirements.RecommendedDiagrams) > 0 {
		return input.Requirements.RecommendedDiagrams
	}
	return nil
}

// suggestions combines local checks with at most one remote synthesis call.
func (a *advisor) suggestions(ctx context.Context, input *Input, prefs Preferences) []Suggestion {
	var suggestions []Suggestion

	if prefs.Style == StyleGuided {
		suggestions = append(suggestions, Suggestion{
			Type:        "workflow",
			Priority:    "medium",
			Title:       "guided mode enabled",
			Description: "the run follows a step by step workflow matching your preferences",
			Actions:     []string{"confirm each stage", "review intermediate results"},
			Benefit:     "a clearer process and fewer surprises",
		})
	}

	if low := lowQualityTypes(input.Quality); len(low) > 0 {
		names := typeNames(low)
		suggestions = append(suggestions, Suggestion{
			Type:        "diagram",
			Priority:    "high",
			Title:       "improve low quality diagrams",
			Description: fmt.Sprintf("%d diagram(s) scored below the good level", len(low)),
			Actions: []string{
				"regenerate " + strings.Join(names, ", "),
				"add more detail to the request",
			},
			Benefit: "higher diagram quality and accuracy",
		})
	}

	remote, err := a.remoteSuggestions(ctx, input)
	if err != nil {
		a.logger.Warn("remote suggestion synthesis failed", zap.Error(err))
		suggestions = append(suggestions, Suggestion{
			Type:        "interaction",
			Priority:    "low",
			Title:       "suggestion synthesis unavailable",
			Description: fmt.Sprintf("personalized suggestions could not be generated: %v", err),
			Actions:     []string{"proceed with the default settings"},
			Benefit:     "the run continues uninterrupted",
		})
	} else {
		suggestions = append(suggestions, remote...)
	}

	return suggestions
}

type suggestionWire struct {
	Suggestions []struct {
		Type        string   `json:"type"`
		Priority    string   `json:"priority"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Actions     []string `json:"actions"`
		Benefit     string   `json:"benefit"`
	} `json:"suggestions"`
}

func (a *advisor) remoteSuggestions(ctx context.Context, input *Input) ([]Suggestion, error) {
	response, err := a.client.Complete(ctx, suggestionPrompt(input),
		llm.WithTemperature(0.4), llm.WithMaxTokens(1500))
	if err != nil {
		return nil, err
	}

	var wire suggestionWire
	if err := diagram.DecodeJSON(response, &wire); err != nil {
		return nil, fmt.Errorf("unparseable suggestion response: %w", err)
	}

	suggestions := make([]Suggestion, 0, len(wire.Suggestions))
	for _, s := range wire.Suggestions {
		suggestion := Suggestion{
			Type:        s.Type,
			Priority:    s.Priority,
			Title:       s.Title,
			Description: s.Description,
			Actions:     s.Actions,
			Benefit:     s.Benefit,
		}
		if suggestion.Type == "" {
			suggestion.Type = "interaction"
		}
		if suggestion.Priority == "" {
			suggestion.Priority = "medium"
		}
		suggestions = append(suggestions, suggestion)
	}
	return suggestions, nil
}

// guidance asks the model for a short status narrative, with a fixed
// fallback when the call fails.
func (a *advisor) guidance(ctx context.Context, input *Input) string {
	response, err := a.client.Complete(ctx, guidancePrompt(input),
		llm.WithTemperature(0.3), llm.WithMaxTokens(500))
	if err != nil {
		a.logger.Warn("guidance generation failed", zap.Error(err))
		return guidanceFallback
	}
	if trimmed := strings.TrimSpace(response); trimmed != "" {
		return trimmed
	}
	return guidanceFallback
}

// nextSteps derives the actions that follow from the current progress.
func nextSteps(input *Input, prefs Preferences) []string {
	var steps []string

	switch {
	case len(input.Artifacts) == 0:
		recommended := recommendedTypes(input)
		if len(recommended) == 0 {
			steps = append(steps, "re-run requirement analysis to determine diagram types")
			break
		}
		if boolValue(prefs.BatchMode) {
			steps = append(steps, fmt.Sprintf("generate all %d recommended diagrams in one batch", len(recommended)))
		} else {
			steps = append(steps, fmt.Sprintf("start with the first diagram: %s", recommended[0].DisplayName()))
			if len(recommended) > 1 {
				steps = append(steps, fmt.Sprintf("queue the remaining %d diagrams", len(recommended)-1))
			}
		}

	case len(input.Quality) == 0:
		steps = append(steps,
			fmt.Sprintf("run quality checks on %d diagrams", len(input.Artifacts)),
			"refine diagrams based on the results")

	default:
		if poor := typesAtLevel(input.Quality, quality.LevelPoor); len(poor) > 0 {
			steps = append(steps, "regenerate the low scoring diagrams: "+strings.Join(typeNames(poor), ", "))
		}
		good := typesAtLevel(input.Quality, quality.LevelGood, quality.LevelExcellent)
		if len(good) > 0 {
			steps = append(steps, "export the high quality diagrams: "+strings.Join(typeNames(good), ", "))
		}
		steps = append(steps, "assemble the final report")

		if boolValue(prefs.AutoFix) {
			pending := 0
			for _, record := range input.Quality {
				if len(record.Suggestions) > 0 && record.Level != quality.LevelExcellent {
					pending++
				}
			}
			if pending > 0 {
				steps = append(steps, fmt.Sprintf("apply the pending improvement suggestions on %d diagrams", pending))
			}
		}
	}

	return steps
}

// estimateTime projects the run duration from diagram count, complexity, and
// quality expectations.
func estimateTime(diagramCount int, prefs Preferences) string {
	total := 30.0 + float64(diagramCount)*15.0

	switch prefs.Complexity {
	case diagram.ComplexityComplex:
		total *= 1.5
	case diagram.ComplexitySimple:
		total *= 0.8
	}

	switch {
	case prefs.QualityThreshold >= 90:
		total *= 1.3
	case prefs.QualityThreshold <= 60:
		total *= 0.9
	}

	seconds := int(total)
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}

// confidenceScore blends requirement confidence, generation validity, and
// mean quality into [0, 1].
func confidenceScore(input *Input) float64 {
	reqConfidence := 0.5
	if input.Requirements != nil && input.Requirements.Confidence > 0 {
		reqConfidence = input.Requirements.Confidence
	}
	confidence := reqConfidence * 0.3

	if len(input.Artifacts) > 0 {
		valid := 0
		for _, artifact := range input.Artifacts {
			if artifact != nil && artifact.Valid {
				valid++
			}
		}
		confidence += float64(valid) / float64(len(input.Artifacts)) * 0.4
	}

	if len(input.Quality) > 0 {
		total := 0.0
		for _, record := range input.Quality {
			total += record.Score
		}
		confidence += total / float64(len(input.Quality)) / 100 * 0.3
	}

	return math.Round(math.Min(confidence, 1.0)*100) / 100
}

func lowQualityTypes(records map[diagram.Type]*quality.Record) []diagram.Type {
	return typesAtLevel(records, quality.LevelPoor, quality.LevelFair)
}

func typesAtLevel(records map[diagram.Type]*quality.Record, levels ...quality.Level) []diagram.Type {
	var matched []diagram.Type
	for t, record := range records {
		for _, level := range levels {
			if record != nil && record.Level == level {
				matched = append(matched, t)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i] < matched[j] })
	return matched
}

func typeNames(types []diagram.Type) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.DisplayName()
	}
	return names
}

func suggestionPrompt(input *Input) string {
	var sb strings.Builder
	sb.WriteString("Provide 3-5 personalized optimization suggestions for this diagram generation run.\n\n")
	sb.WriteString("User request: ")
	sb.WriteString(input.Request)
	sb.WriteString("\nGenerated diagrams: ")
	if len(input.Artifacts) == 0 {
		sb.WriteString("none yet")
	} else {
		sb.WriteString(strings.Join(typeNames(sortedTypes(input.Artifacts)), ", "))
	}
	sb.WriteString(fmt.Sprintf("\nQuality checks done: %d\n", len(input.Quality)))
	sb.WriteString("\nCover workflow efficiency, diagram quality, and user experience.\n")
	sb.WriteString("Respond with JSON only:\n")
	sb.WriteString(`{"suggestions": [{"type": "workflow", "priority": "high", "title": "", "description": "", "actions": [""], "benefit": ""}]}`)
	return sb.String()
}

func guidancePrompt(input *Input) string {
	var sb strings.Builder
	sb.WriteString("Write a short, friendly status update for the user (under 120 words).\n\n")
	sb.WriteString("User request: ")
	sb.WriteString(input.Request)
	sb.WriteString("\nProgress:\n")
	if input.Requirements != nil {
		sb.WriteString("- requirement analysis: done\n")
	} else {
		sb.WriteString("- requirement analysis: pending\n")
	}
	sb.WriteString(fmt.Sprintf("- diagrams generated: %d\n", len(input.Artifacts)))
	sb.WriteString(fmt.Sprintf("- quality checks: %d\n", len(input.Quality)))
	sb.WriteString("\nCover the current state, the next action, and the expected result.")
	return sb.String()
}

func sortedTypes(artifacts map[diagram.Type]*diagram.Artifact) []diagram.Type {
	types := make([]diagram.Type, 0, len(artifacts))
	for t := range artifacts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
