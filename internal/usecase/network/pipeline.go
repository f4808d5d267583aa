package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"agentnet/internal/domain"
	"agentnet/internal/infra/tracer"
)

// AgentCaller posts a task to an agent endpoint. *agenthttp.Caller satisfies
// it.
type AgentCaller interface {
	SendTask(ctx context.Context, endpoint string, task domain.TaskRequest) (*domain.TaskResult, error)
}

// FailureSink is notified when a call to an agent surfaces transport failure,
// so crash detection stays lazy: nothing watches agents, callers report them.
type FailureSink interface {
	MarkFailed(agentID string)
}

// Pipeline runs an explicit ordered workflow of agents strictly sequentially,
// threading each stage's textual output into the next stage's input.
type Pipeline struct {
	registry *Registry
	caller   AgentCaller
	failures FailureSink // may be nil
	logger   *slog.Logger
}

// NewPipeline creates a pipeline runner. failures may be nil.
func NewPipeline(registry *Registry, caller AgentCaller, failures FailureSink, logger *slog.Logger) *Pipeline {
	return &Pipeline{registry: registry, caller: caller, failures: failures, logger: logger}
}

// Run executes the workflow. Stage k+1 receives the original query plus a
// context block for every completed stage. On failure at stage k the
// returned error carries that stage's failure and the PipelineContext holds
// the completed prefix 1..k-1; no stage after k is invoked. Cancelling ctx
// stops issuing further stages but never cancels the in-flight call.
func (p *Pipeline) Run(ctx context.Context, query string, agentIDs []string) (*domain.PipelineContext, error) {
	pc := &domain.PipelineContext{Query: query}
	if len(agentIDs) == 0 {
		return pc, domain.NewSubSystemError("network", "Pipeline.Run", domain.ErrInvalidInput, "empty workflow")
	}

	for i, agentID := range agentIDs {
		if err := ctx.Err(); err != nil {
			return pc, domain.WrapOp(fmt.Sprintf("Pipeline.Run: stage %d (%s)", i+1, agentID), err)
		}

		desc, ok := p.registry.Get(agentID)
		if !ok {
			return pc, domain.NewSubSystemError("network", "Pipeline.Run", domain.ErrNotFound,
				fmt.Sprintf("stage %d: agent %q not registered", i+1, agentID))
		}

		input := p.stageInput(pc)
		stageCtx, span := tracer.StartSpan(ctx, "pipeline.stage",
			trace.WithAttributes(tracer.StringAttr("stage.agent", agentID), tracer.IntAttr("stage.index", i+1)),
		)
		result, err := p.caller.SendTask(stageCtx, desc.Endpoint(), domain.TaskRequest{Content: input})
		if err != nil {
			tracer.RecordError(span, err)
			span.End()
			p.reportFailure(agentID, err)
			return pc, domain.WrapOp(fmt.Sprintf("Pipeline.Run: stage %d (%s)", i+1, agentID), err)
		}
		if result.Status == domain.TaskStatusFailed {
			stageErr := domain.NewDomainError("Pipeline.Run",
				fmt.Errorf("stage %d (%s) failed: %s", i+1, agentID, result.Error), "")
			tracer.RecordError(span, stageErr)
			span.End()
			return pc, stageErr
		}
		span.End()

		pc.Stages = append(pc.Stages, domain.PipelineStage{
			AgentID: agentID,
			Input:   input,
			Output:  result.Content,
		})
		p.logger.Debug("pipeline stage complete", "stage", i+1, "agent", agentID)
	}

	return pc, nil
}

// stageInput builds the next stage's input: the original query followed by a
// context block per completed stage.
func (p *Pipeline) stageInput(pc *domain.PipelineContext) string {
	input := pc.Query
	for _, stage := range pc.Stages {
		input += fmt.Sprintf("\n\nContext from %s:\n%s", stage.AgentID, stage.Output)
	}
	return input
}

func (p *Pipeline) reportFailure(agentID string, err error) {
	if p.failures == nil {
		return
	}
	if errors.Is(err, domain.ErrAgentUnreachable) {
		p.failures.MarkFailed(agentID)
		p.registry.Remove(agentID)
		p.logger.Warn("agent unreachable, pruned from registry", "agent", agentID)
	}
}
