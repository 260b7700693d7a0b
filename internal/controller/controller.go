// internal/controller/controller.go

// Package controller runs the staged pipeline: requirement analysis, system
// analysis, advisory passes, diagram generation, quality evaluation, the
// repair loop, and output assembly, one goroutine per admitted session.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/advisor"
	"github.com/fyrsmithlabs/diagramd/internal/analysis"
	"github.com/fyrsmithlabs/diagramd/internal/diagram"
	"github.com/fyrsmithlabs/diagramd/internal/generation"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/quality"
	"github.com/fyrsmithlabs/diagramd/internal/session"
)

const instrumentationName = "github.com/fyrsmithlabs/diagramd/internal/controller"

// Pipeline stage names, recorded on the session before each stage runs.
const (
	StageRequirementAnalysis = "requirement_analysis"
	StageSystemAnalysis      = "system_analysis"
	StagePreAdvisory         = "pre_advisory"
	StageGeneration          = "diagram_generation"
	StageQualityEvaluation   = "quality_evaluation"
	StageRepairLoop          = "repair_loop"
	StagePostAdvisory        = "post_advisory"
	StageOutputAssembly      = "output_assembly"
)

// errAborted signals that the session left Processing between stages, for
// example through a cancel or a sweep. The finalizer already ran.
var errAborted = errors.New("session no longer processing")

// Options toggles the optional pipeline stages. The zero value enables
// everything.
type Options struct {
	DisableAdvisory bool `json:"disable_advisory,omitempty"`
	DisableQuality  bool `json:"disable_quality,omitempty"`
	DisableRepair   bool `json:"disable_repair,omitempty"`
}

// Request is one diagram generation request.
type Request struct {
	OwnerID     string               `json:"user_id,omitempty"`
	Request     string               `json:"request"`
	Preferences *advisor.Preferences `json:"preferences,omitempty"`
	Options     Options              `json:"options,omitempty"`
}

// Health reports component readiness.
type Health struct {
	Status   string        `json:"status"`
	LLM      string        `json:"llm"`
	Sessions session.Stats `json:"sessions"`
}

// Executor is the pipeline surface the transport layer talks to.
type Executor interface {
	// Submit admits and runs a session, returning its terminal snapshot.
	Submit(ctx context.Context, req *Request) (session.Data, error)

	// Status returns a snapshot of an active or finished session.
	Status(id string) (session.Data, error)

	// Cancel stops an active session at its next stage boundary.
	Cancel(id string) bool

	// Statistics aggregates over all sessions seen so far.
	Statistics() session.Stats

	// Health probes the registry and the model backend.
	Health(ctx context.Context) Health
}

type executor struct {
	registry     *session.Registry
	requirements analysis.RequirementAnalyzer
	system       analysis.SystemAnalyzer
	generator    generation.Generator
	gate         quality.Gate
	advisor      advisor.Advisor
	client       llm.Client
	logger       *zap.Logger

	tracer            trace.Tracer
	meter             metric.Meter
	sessionCounter    metric.Int64Counter
	repairCounter     metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

// Deps bundles the collaborators the executor orchestrates.
type Deps struct {
	Registry     *session.Registry
	Requirements analysis.RequirementAnalyzer
	System       analysis.SystemAnalyzer
	Generator    generation.Generator
	Gate         quality.Gate
	Advisor      advisor.Advisor
	Client       llm.Client
	Logger       *zap.Logger
}

// NewExecutor wires the pipeline.
func NewExecutor(deps Deps) (Executor, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("session registry is required")
	case deps.Requirements == nil:
		return nil, errors.New("requirement analyzer is required")
	case deps.System == nil:
		return nil, errors.New("system analyzer is required")
	case deps.Generator == nil:
		return nil, errors.New("generator is required")
	case deps.Gate == nil:
		return nil, errors.New("quality gate is required")
	case deps.Advisor == nil:
		return nil, errors.New("advisor is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	e := &executor{
		registry:     deps.Registry,
		requirements: deps.Requirements,
		system:       deps.System,
		generator:    deps.Generator,
		gate:         deps.Gate,
		advisor:      deps.Advisor,
		client:       deps.Client,
		logger:       deps.Logger,
		tracer:       otel.Tracer(instrumentationName),
		meter:        otel.Meter(instrumentationName),
	}
	e.initMetrics()
	return e, nil
}

func (e *executor) initMetrics() {
	var err error

	e.sessionCounter, err = e.meter.Int64Counter(
		"diagramd.sessions_total",
		metric.WithDescription("Sessions finalized, by terminal status"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		e.logger.Warn("failed to create session counter", zap.Error(err))
	}

	e.repairCounter, err = e.meter.Int64Counter(
		"diagramd.repairs_total",
		metric.WithDescription("Repair attempts, by outcome"),
		metric.WithUnit("{repair}"),
	)
	if err != nil {
		e.logger.Warn("failed to create repair counter", zap.Error(err))
	}

	e.durationHistogram, err = e.meter.Float64Histogram(
		"diagramd.pipeline.duration_seconds",
		metric.WithDescription("End to end pipeline duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		e.logger.Warn("failed to create duration histogram", zap.Error(err))
	}
}

// Submit admits the session and runs the pipeline in its own goroutine,
// waiting for the terminal snapshot. Caller context cancellation cancels the
// session; the pipeline still settles before Submit returns.
func (e *executor) Submit(ctx context.Context, req *Request) (session.Data, error) {
	ctx, span := e.tracer.Start(ctx, "controller.submit")
	defer span.End()

	if req == nil || req.Request == "" {
		return session.Data{}, errors.New("request text is required")
	}

	sess := session.New(req.OwnerID, req.Request)
	if err := e.registry.Create(sess); err != nil {
		return session.Data{}, err
	}
	span.SetAttributes(attribute.String("session_id", sess.ID()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.run(ctx, sess, req)
	}()
	<-done

	return sess.Snapshot(), nil
}

// run drives the stage sequence and finalizes the session exactly once.
func (e *executor) run(ctx context.Context, sess *session.Session, req *Request) {
	start := time.Now()
	log := e.logger.With(zap.String("session_id", sess.ID()))

	if err := e.registry.Start(sess.ID()); err != nil {
		log.Warn("session did not start", zap.Error(err))
		return
	}

	err := e.pipeline(ctx, sess, req, log)
	switch {
	case err == nil:
		e.finalize(ctx, sess.ID(), session.StatusCompleted, "")
	case errors.Is(err, errAborted):
		// an external cancel or sweep already finalized the session; a
		// context cancellation is settled here, Finalize stays exactly-once
		e.finalize(ctx, sess.ID(), session.StatusCancelled, "cancelled")
	default:
		log.Error("pipeline failed", zap.Error(err))
		e.finalize(ctx, sess.ID(), session.StatusFailed, err.Error())
	}

	if e.durationHistogram != nil {
		e.durationHistogram.Record(ctx, time.Since(start).Seconds())
	}
}

func (e *executor) finalize(ctx context.Context, id string, status session.Status, msg string) {
	if e.registry.Finalize(id, status, msg) && e.sessionCounter != nil {
		e.sessionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
}

// checkpoint enforces the stage boundary contract: the pipeline proceeds
// only while the session is still Processing and the context is live.
func (e *executor) checkpoint(ctx context.Context, sess *session.Session) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errAborted, err)
	}
	if sess.Status() != session.StatusProcessing {
		return errAborted
	}
	return nil
}

func (e *executor) pipeline(ctx context.Context, sess *session.Session, req *Request, log *zap.Logger) error {
	advisoryInput := &advisor.Input{
		Request:  req.Request,
		Explicit: req.Preferences,
		History:  e.historyFor(sess.OwnerID()),
	}

	sess.SetStage(StageRequirementAnalysis)
	log.Info("stage started", zap.String("stage", StageRequirementAnalysis))
	requirements, err := e.requirements.Analyze(ctx, req.Request)
	if err != nil {
		return fmt.Errorf("requirement analysis: %w", err)
	}
	sess.Update(func(d *session.Data) { d.Requirements = requirements })
	advisoryInput.Requirements = requirements
	if err := e.checkpoint(ctx, sess); err != nil {
		return err
	}

	sess.SetStage(StageSystemAnalysis)
	log.Info("stage started", zap.String("stage", StageSystemAnalysis))
	system, err := e.system.Analyze(ctx, req.Request, requirements)
	if err != nil {
		return fmt.Errorf("system analysis: %w", err)
	}
	sess.Update(func(d *session.Data) { d.System = system })
	if err := e.checkpoint(ctx, sess); err != nil {
		return err
	}

	if !req.Options.DisableAdvisory {
		sess.SetStage(StagePreAdvisory)
		log.Info("stage started", zap.String("stage", StagePreAdvisory))
		advice, err := e.advisor.Advise(ctx, advisoryInput)
		if err != nil {
			return fmt.Errorf("pre advisory: %w", err)
		}
		sess.Update(func(d *session.Data) { d.Advice = advice })
		if err := e.checkpoint(ctx, sess); err != nil {
			return err
		}
	}

	sess.SetStage(StageGeneration)
	log.Info("stage started", zap.String("stage", StageGeneration))
	types := requirements.RecommendedDiagrams
	if len(types) == 0 {
		types = diagram.DefaultTypes()
	}
	artifacts, err := e.generator.GenerateBatch(ctx, requirements, system, types)
	if err != nil {
		return fmt.Errorf("diagram generation: %w", err)
	}
	sess.Update(func(d *session.Data) { d.Artifacts = artifacts })
	advisoryInput.Artifacts = artifacts
	if err := e.checkpoint(ctx, sess); err != nil {
		return err
	}

	var records map[diagram.Type]*quality.Record
	if !req.Options.DisableQuality {
		sess.SetStage(StageQualityEvaluation)
		log.Info("stage started", zap.String("stage", StageQualityEvaluation))
		records, err = e.gate.EvaluateBatch(ctx, artifacts, requirements, system)
		if err != nil {
			return fmt.Errorf("quality evaluation: %w", err)
		}
		sess.Update(func(d *session.Data) { d.Quality = records })
		advisoryInput.Quality = records
		if err := e.checkpoint(ctx, sess); err != nil {
			return err
		}

		if !req.Options.DisableRepair {
			sess.SetStage(StageRepairLoop)
			log.Info("stage started", zap.String("stage", StageRepairLoop))
			e.repair(ctx, sess, requirements, system, records, log)
			if err := e.checkpoint(ctx, sess); err != nil {
				return err
			}
		}
	}

	if !req.Options.DisableAdvisory {
		sess.SetStage(StagePostAdvisory)
		log.Info("stage started", zap.String("stage", StagePostAdvisory))
		advice, err := e.advisor.Advise(ctx, advisoryInput)
		if err != nil {
			return fmt.Errorf("post advisory: %w", err)
		}
		sess.Update(func(d *session.Data) { d.Advice = advice })
		if err := e.checkpoint(ctx, sess); err != nil {
			return err
		}
	}

	sess.SetStage(StageOutputAssembly)
	log.Info("stage started", zap.String("stage", StageOutputAssembly))
	output := e.assemble(sess.Snapshot())
	sess.Update(func(d *session.Data) { d.Output = output })
	return nil
}

// repair regenerates artifacts scoring below the threshold, once each, and
// keeps the pre-repair artifact and record when the attempt fails.
func (e *executor) repair(
	ctx context.Context,
	sess *session.Session,
	requirements *analysis.RequirementResult,
	system *analysis.SystemResult,
	records map[diagram.Type]*quality.Record,
	log *zap.Logger,
) {
	for _, t := range sortedTypes(records) {
		record := records[t]
		if !e.gate.NeedsRepair(record) {
			continue
		}

		log.Info("repairing low scoring diagram",
			zap.String("type", string(t)),
			zap.Float64("score", record.Score))

		replacement, err := e.generator.Generate(ctx, requirements, system, t)
		if err != nil {
			e.noteRepairFailure(ctx, sess, t, fmt.Sprintf("repair generation failed: %v", err))
			continue
		}
		newRecord, err := e.gate.Evaluate(ctx, replacement, requirements, system)
		if err != nil {
			e.noteRepairFailure(ctx, sess, t, fmt.Sprintf("repair evaluation failed: %v", err))
			continue
		}

		sess.Update(func(d *session.Data) {
			d.Artifacts[t] = replacement
			d.Quality[t] = newRecord
		})
		if e.repairCounter != nil {
			e.repairCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "replaced")))
		}
	}
}

func (e *executor) noteRepairFailure(ctx context.Context, sess *session.Session, t diagram.Type, note string) {
	sess.Update(func(d *session.Data) {
		if artifact := d.Artifacts[t]; artifact != nil {
			artifact.Notes = append(artifact.Notes, note)
		}
	})
	if e.repairCounter != nil {
		e.repairCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
	}
}

// assemble merges the session results into the final output.
func (e *executor) assemble(data session.Data) *session.Output {
	output := &session.Output{
		Artifacts: data.Artifacts,
		Quality:   data.Quality,
		Advice:    data.Advice,
	}

	output.Summary.ArtifactCount = len(data.Artifacts)
	for _, artifact := range data.Artifacts {
		if artifact != nil && artifact.Valid {
			output.Summary.ValidCount++
		}
	}
	if len(data.Quality) > 0 {
		output.Summary.MeanQuality = e.gate.Summarize(data.Quality).MeanScore
		output.Summary.TopSuggestions = topSuggestions(data.Quality, 3)
	}
	return output
}

// topSuggestions collects suggestions from the lowest scoring records first.
func topSuggestions(records map[diagram.Type]*quality.Record, limit int) []string {
	types := sortedTypes(records)
	sort.SliceStable(types, func(i, j int) bool {
		return records[types[i]].Score < records[types[j]].Score
	})

	var out []string
	seen := make(map[string]bool)
	for _, t := range types {
		for _, suggestion := range records[t].Suggestions {
			if seen[suggestion] {
				continue
			}
			seen[suggestion] = true
			out = append(out, suggestion)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

// historyFor maps finished sessions into advisory history records.
func (e *executor) historyFor(ownerID string) []advisor.HistoryRecord {
	var history []advisor.HistoryRecord
	for _, data := range e.registry.History(ownerID) {
		record := advisor.HistoryRecord{Complexity: dominantComplexity(data.Artifacts)}
		for _, t := range sortedTypes(data.Artifacts) {
			record.DiagramTypes = append(record.DiagramTypes, t)
		}
		if len(record.DiagramTypes) > 0 {
			history = append(history, record)
		}
	}
	return history
}

func dominantComplexity(artifacts map[diagram.Type]*diagram.Artifact) diagram.Complexity {
	counts := make(map[diagram.Complexity]int)
	for _, artifact := range artifacts {
		if artifact != nil && artifact.Complexity != "" && artifact.Complexity != diagram.ComplexityUnknown {
			counts[artifact.Complexity]++
		}
	}
	var best diagram.Complexity
	bestCount := 0
	for c, n := range counts {
		if n > bestCount || (n == bestCount && c < best) {
			best, bestCount = c, n
		}
	}
	return best
}

func sortedTypes[V any](m map[diagram.Type]V) []diagram.Type {
	types := make([]diagram.Type, 0, len(m))
	for t := range m {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Status returns the snapshot for an active or finished session.
func (e *executor) Status(id string) (session.Data, error) {
	sess, err := e.registry.Lookup(id)
	if err != nil {
		return session.Data{}, err
	}
	return sess.Snapshot(), nil
}

// Cancel finalizes an active session as cancelled; the pipeline goroutine
// observes it at the next stage boundary.
func (e *executor) Cancel(id string) bool {
	return e.registry.Cancel(id)
}

// Statistics aggregates registry counters.
func (e *executor) Statistics() session.Stats {
	return e.registry.Stats()
}

// Health probes the registry and the model backend.
func (e *executor) Health(ctx context.Context) Health {
	h := Health{Status: "healthy", LLM: "ok", Sessions: e.registry.Stats()}
	if e.client != nil {
		if err := e.client.Ping(ctx); err != nil {
			h.Status = "degraded"
			h.LLM = fmt.Sprintf("error: %v", err)
		}
	}
	return h
}
