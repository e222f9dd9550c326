// Package pipeline runs an ordered list of graph-generation steps over one
// compilation run.
//
// The step list is owned by the caller and fixed at construction; there is
// no global registry. Steps run in ascending priority, ties in the order
// they were given, and any step can end the run early by setting
// Run.SkipFurtherSteps.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nadzzz/ttsgraph/internal/message"
	"github.com/nadzzz/ttsgraph/internal/workflow"
)

const tracerName = "github.com/nadzzz/ttsgraph/internal/pipeline"

// HandlerFunc performs one step on a run.
type HandlerFunc func(ctx context.Context, run *Run) error

// Step is a named, prioritized unit of graph generation.
type Step struct {
	Name     string
	Priority float64
	Handle   HandlerFunc
}

// Run is the state shared by the steps of one compilation.
type Run struct {
	// Request is the request being compiled. Steps treat it as read-only.
	Request *message.CompileRequest

	// Graph is the document every step reads and writes in place.
	Graph *workflow.Graph

	// Logger carries request-scoped attributes.
	Logger *slog.Logger

	// SkipFurtherSteps stops the run after the current step.
	SkipFurtherSteps bool

	// DialogueID is the dialogue-inference node built during the run.
	DialogueID string

	// AudioOnly marks a run that produced a terminal save-audio node.
	AudioOnly bool

	// Spliced marks a run that injected the dialogue into a video graph.
	Spliced bool

	// Skipped collects "step: reason" notes from steps that did nothing.
	Skipped []string
}

// NewRun creates a run for req over g. A nil graph starts empty.
func NewRun(req *message.CompileRequest, g *workflow.Graph, logger *slog.Logger) *Run {
	if g == nil {
		g = workflow.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Run{Request: req, Graph: g, Logger: logger}
}

// Skip records that step had nothing to do.
func (r *Run) Skip(step, reason string) {
	r.Skipped = append(r.Skipped, step+": "+reason)
	r.Logger.Debug("step skipped", "step", step, "reason", reason)
}

// Pipeline executes steps in priority order.
type Pipeline struct {
	steps  []Step
	tracer trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTracer sets the tracer used for step spans. The default comes from
// the global otel provider.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

// New creates a pipeline over steps.
func New(steps []Step, opts ...Option) *Pipeline {
	sorted := slices.Clone(steps)
	slices.SortStableFunc(sorted, func(a, b Step) int {
		switch {
		case a.Priority < b.Priority:
			return -1
		case a.Priority > b.Priority:
			return 1
		default:
			return 0
		}
	})

	p := &Pipeline{steps: sorted}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	return p
}

// Steps returns the steps in execution order.
func (p *Pipeline) Steps() []Step {
	return slices.Clone(p.steps)
}

// Execute runs the steps over run, stopping at the first error or when a
// step sets SkipFurtherSteps.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.runStep(ctx, step, run); err != nil {
			return err
		}
		if run.SkipFurtherSteps {
			run.Logger.Debug("skipping further steps", "after", step.Name)
			return nil
		}
	}
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step, run *Run) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.String("step.name", step.Name),
		attribute.Float64("step.priority", step.Priority),
	))
	defer span.End()

	if err := step.Handle(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("step %s: %w", step.Name, err)
	}
	return nil
}
