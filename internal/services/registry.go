package services

import (
	"github.com/fyrsmithlabs/diagramd/internal/advisor"
	"github.com/fyrsmithlabs/diagramd/internal/analysis"
	"github.com/fyrsmithlabs/diagramd/internal/controller"
	"github.com/fyrsmithlabs/diagramd/internal/generation"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/quality"
	"github.com/fyrsmithlabs/diagramd/internal/session"
)

// Registry provides access to all diagramd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Executor() controller.Executor
	Sessions() *session.Registry
	Requirements() analysis.RequirementAnalyzer
	System() analysis.SystemAnalyzer
	Generator() generation.Generator
	Gate() quality.Gate
	Advisor() advisor.Advisor
	Client() llm.Client
}

// Options configures the registry with service instances.
type Options struct {
	Executor     controller.Executor
	Sessions     *session.Registry
	Requirements analysis.RequirementAnalyzer
	System       analysis.SystemAnalyzer
	Generator    generation.Generator
	Gate         quality.Gate
	Advisor      advisor.Advisor
	Client       llm.Client
}

// registry is the concrete implementation of Registry.
type registry struct {
	executor     controller.Executor
	sessions     *session.Registry
	requirements analysis.RequirementAnalyzer
	system       analysis.SystemAnalyzer
	generator    generation.Generator
	gate         quality.Gate
	advisor      advisor.Advisor
	client       llm.Client
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		executor:     opts.Executor,
		sessions:     opts.Sessions,
		requirements: opts.Requirements,
		system:       opts.System,
		generator:    opts.Generator,
		gate:         opts.Gate,
		advisor:      opts.Advisor,
		client:       opts.Client,
	}
}

func (r *registry) Executor() controller.Executor              { return r.executor }
func (r *registry) Sessions() *session.Registry                { return r.sessions }
func (r *registry) Requirements() analysis.RequirementAnalyzer { return r.requirements }
func (r *registry) System() analysis.SystemAnalyzer            { return r.system }
func (r *registry) Generator() generation.Generator            { return r.generator }
func (r *registry) Gate() quality.Gate                         { return r.gate }
func (r *registry) Advisor() advisor.Advisor                   { return r.advisor }
func (r *registry) Client() llm.Client                         { return r.client }
