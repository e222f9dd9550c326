// Package dispatch implements the request handling engine.
//
// The dispatcher receives compile requests from transports, runs them
// through the step pipeline over a fresh or caller-provided graph, and turns
// the run into a result. The sender always receives a result, failures
// included; only a cancelled context surfaces as an error.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nadzzz/ttsgraph/internal/apperr"
	"github.com/nadzzz/ttsgraph/internal/message"
	"github.com/nadzzz/ttsgraph/internal/pipeline"
	"github.com/nadzzz/ttsgraph/internal/workflow"
)

// Dispatcher is the central request engine.
type Dispatcher struct {
	pipeline *pipeline.Pipeline
}

// New creates a new Dispatcher over the given pipeline.
func New(p *pipeline.Pipeline) *Dispatcher {
	return &Dispatcher{pipeline: p}
}

// Handle compiles a single request.
// This function is passed as the transport.Handler to each transport.
func (d *Dispatcher) Handle(ctx context.Context, req *message.CompileRequest) (*message.CompileResult, error) {
	start := time.Now()
	req.EnsureID()
	logger := slog.With("request_id", req.ID)
	logger.Info("compile started", "use_in_video", req.UseInVideo, "prompt_length", len(req.Prompt))

	result := &message.CompileResult{RequestID: req.ID}

	// Steps mutate the graph in place; keep the caller's copy intact.
	var g *workflow.Graph
	if req.Workflow != nil {
		g = req.Workflow.Clone()
	}
	run := pipeline.NewRun(req, g, logger)

	if err := d.pipeline.Execute(ctx, run); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		setError(result, err)
		if apperr.UserFacing(err) {
			logger.Warn("compile rejected", "error_kind", result.ErrorKind, "error", result.Error)
		} else {
			logger.Error("compile failed", "error_kind", result.ErrorKind, "error", err)
		}
		return result, nil
	}

	result.Workflow = run.Graph
	result.DialogueNodeID = run.DialogueID
	result.AudioOnly = run.AudioOnly
	result.Spliced = run.Spliced
	result.Skipped = run.Skipped

	logger.Info("compile complete",
		"duration", time.Since(start),
		"nodes", run.Graph.Len(),
		"audio_only", run.AudioOnly,
		"spliced", run.Spliced,
	)
	return result, nil
}

// setError fills the error fields of result. User-facing errors keep their
// own message without the step prefix.
func setError(result *message.CompileResult, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		result.Error = appErr.Error()
		result.ErrorKind = string(appErr.Kind)
		return
	}
	result.Error = err.Error()
	result.ErrorKind = string(apperr.KindInvariant)
}
