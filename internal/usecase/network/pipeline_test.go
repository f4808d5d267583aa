package network

import (
	"context"
	"errors"
	"strings"
	"testing"

	"agentnet/internal/domain"
	"agentnet/internal/infra/logger"
)

type stubCaller struct {
	results map[string]func(task domain.TaskRequest) (*domain.TaskResult, error)
	calls   []string
}

func (c *stubCaller) SendTask(ctx context.Context, endpoint string, task domain.TaskRequest) (*domain.TaskResult, error) {
	c.calls = append(c.calls, endpoint)
	for addr, fn := range c.results {
		if strings.Contains(endpoint, addr) {
			return fn(task)
		}
	}
	return nil, errors.New("no stub for " + endpoint)
}

type recordingSink struct {
	failed []string
}

func (s *recordingSink) MarkFailed(agentID string) { s.failed = append(s.failed, agentID) }

func pipelineRegistry() *Registry {
	reg := NewRegistry()
	a := descriptor("research", "research")
	a.Port = 9001
	b := descriptor("summarize", "summary")
	b.Port = 9002
	reg.Register(a)
	reg.Register(b)
	return reg
}

func TestPipelineThreadsContext(t *testing.T) {
	reg := pipelineRegistry()
	caller := &stubCaller{results: map[string]func(domain.TaskRequest) (*domain.TaskResult, error){
		":9001": func(task domain.TaskRequest) (*domain.TaskResult, error) {
			return &domain.TaskResult{Content: "facts about Tokyo", Status: domain.TaskStatusCompleted}, nil
		},
		":9002": func(task domain.TaskRequest) (*domain.TaskResult, error) {
			// The second stage sees the original query plus stage one's output.
			if !strings.Contains(task.Content, "trip to Tokyo") ||
				!strings.Contains(task.Content, "Context from research:\nfacts about Tokyo") {
				return &domain.TaskResult{Status: domain.TaskStatusFailed, Error: "missing context"}, nil
			}
			return &domain.TaskResult{Content: "summary done", Status: domain.TaskStatusCompleted}, nil
		},
	}}
	p := NewPipeline(reg, caller, nil, logger.Discard())

	pc, err := p.Run(context.Background(), "trip to Tokyo", []string{"research", "summarize"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pc.Output() != "summary done" {
		t.Errorf("output = %q", pc.Output())
	}
	if len(pc.Stages) != 2 {
		t.Errorf("stages = %d", len(pc.Stages))
	}
}

func TestPipelineAbortsOnFailure(t *testing.T) {
	reg := pipelineRegistry()
	c := descriptor("extra", "extra")
	c.Port = 9003
	reg.Register(c)

	caller := &stubCaller{results: map[string]func(domain.TaskRequest) (*domain.TaskResult, error){
		":9001": func(task domain.TaskRequest) (*domain.TaskResult, error) {
			return &domain.TaskResult{Content: "stage one output", Status: domain.TaskStatusCompleted}, nil
		},
		":9002": func(task domain.TaskRequest) (*domain.TaskResult, error) {
			return &domain.TaskResult{Status: domain.TaskStatusFailed, Error: "boom"}, nil
		},
	}}
	p := NewPipeline(reg, caller, nil, logger.Discard())

	pc, err := p.Run(context.Background(), "q", []string{"research", "summarize", "extra"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v, must carry the failing stage's error", err)
	}
	// Completed prefix survives; the failed stage and everything after are
	// absent.
	if len(pc.Stages) != 1 || pc.Stages[0].Output != "stage one output" {
		t.Errorf("stages = %+v, want completed prefix only", pc.Stages)
	}
	if len(caller.calls) != 2 {
		t.Errorf("calls = %v, stage after the failure must not be invoked", caller.calls)
	}
}

func TestPipelineUnreachableAgentPruned(t *testing.T) {
	reg := pipelineRegistry()
	caller := &stubCaller{results: map[string]func(domain.TaskRequest) (*domain.TaskResult, error){
		":9001": func(task domain.TaskRequest) (*domain.TaskResult, error) {
			return nil, domain.NewSubSystemError("agenthttp", "SendTask", domain.ErrAgentUnreachable, "dead")
		},
	}}
	sink := &recordingSink{}
	p := NewPipeline(reg, caller, sink, logger.Discard())

	_, err := p.Run(context.Background(), "q", []string{"research"})
	if !errors.Is(err, domain.ErrAgentUnreachable) {
		t.Fatalf("err = %v", err)
	}
	if len(sink.failed) != 1 || sink.failed[0] != "research" {
		t.Errorf("sink = %v, want lazy failure mark", sink.failed)
	}
	if _, ok := reg.Get("research"); ok {
		t.Error("unreachable agent must be pruned from the registry")
	}
}

func TestPipelineUnknownAgent(t *testing.T) {
	reg := pipelineRegistry()
	p := NewPipeline(reg, &stubCaller{}, nil, logger.Discard())

	_, err := p.Run(context.Background(), "q", []string{"ghost"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPipelineEmptyWorkflow(t *testing.T) {
	p := NewPipeline(NewRegistry(), &stubCaller{}, nil, logger.Discard())
	if _, err := p.Run(context.Background(), "q", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestPipelineCancelledContext(t *testing.T) {
	reg := pipelineRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	caller := &stubCaller{results: map[string]func(domain.TaskRequest) (*domain.TaskResult, error){
		":9001": func(task domain.TaskRequest) (*domain.TaskResult, error) {
			cancel() // cancellation lands while stage one is in flight
			return &domain.TaskResult{Content: "done anyway", Status: domain.TaskStatusCompleted}, nil
		},
	}}
	p := NewPipeline(reg, caller, nil, logger.Discard())

	pc, err := p.Run(ctx, "q", []string{"research", "summarize"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	// The in-flight stage completed and is kept; no further stage was issued.
	if len(pc.Stages) != 1 {
		t.Errorf("stages = %+v", pc.Stages)
	}
	if len(caller.calls) != 1 {
		t.Errorf("calls = %v", caller.calls)
	}
}
