package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agentnet/internal/adapter/agenthttp"
	"agentnet/internal/domain"
	"agentnet/internal/usecase/lifecycle"
	"agentnet/internal/usecase/network"
)

// runQuery starts the configured agent network, routes the query to an agent
// (or runs it through an explicit pipeline) and prints the answer.
func runQuery() error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (default: $AGENTNET_CONFIG, then ./config.yaml)")
	pipeline := fs.String("pipeline", "", "comma-separated agent ids to run as a sequential workflow")
	taskTimeout := fs.Duration("timeout", 60*time.Second, "per-task timeout")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return fmt.Errorf("no query given; usage: agentnet query [FLAGS] \"your question\"")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, cleanup, err := bootstrap(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if len(cfg.Agents) == 0 {
		return fmt.Errorf("no agents configured; point --config (or $AGENTNET_CONFIG) at a config with an agents section")
	}

	caller := agenthttp.NewCaller(*taskTimeout)
	manager := lifecycle.NewManager(lifecycle.ManagerConfig{
		ReadinessTimeout:  cfg.Lifecycle.ReadinessTimeoutD(),
		ReadinessInterval: cfg.Lifecycle.ReadinessIntervalD(),
		StopGrace:         cfg.Lifecycle.StopGraceD(),
	}, &lifecycle.ExecSpawner{}, caller, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		manager.Shutdown(shutdownCtx)
	}()

	registry := network.NewRegistry()
	for _, entry := range cfg.Agents {
		desc, err := manager.Start(ctx, entry.AgentDefinition, entry.Port)
		if err != nil {
			log.Error("agent failed to start", "agent", entry.ID, "error", err)
			continue
		}
		registry.Register(*desc)
	}
	if registry.Len() == 0 {
		return fmt.Errorf("no agents became ready")
	}

	if *pipeline != "" {
		return runPipelineQuery(ctx, registry, caller, manager, log, query, *pipeline)
	}

	router := network.NewRouter(registry, nil, network.RouterConfig{
		ConfidenceThreshold: cfg.Router.ConfidenceThreshold,
	}, log)

	var decision *domain.RoutingDecision
	if cfg.Router.Mode == "semantic" {
		decision, err = router.RouteSemantic(ctx, query)
	} else {
		decision, err = router.Route(ctx, query)
	}
	if err != nil {
		return err
	}

	target := decision.Candidates[0]
	desc, ok := registry.Get(target)
	if !ok {
		return domain.NewSubSystemError("query", "runQuery", domain.ErrNotFound, target)
	}
	log.Info("query routed",
		"agent", target, "stage", decision.Stage, "confidence", decision.Confidence)

	result, err := caller.SendTask(ctx, desc.Endpoint(), domain.TaskRequest{Content: query})
	if err != nil {
		if errors.Is(err, domain.ErrAgentUnreachable) {
			manager.MarkFailed(target)
			registry.Remove(target)
		}
		return err
	}
	if result.Status == domain.TaskStatusFailed {
		return fmt.Errorf("agent %s failed the task: %s", result.AgentID, result.Error)
	}

	fmt.Println(result.Content)
	return nil
}

// runPipelineQuery runs the query through an explicit sequential workflow and
// prints each stage before the final answer.
func runPipelineQuery(ctx context.Context, registry *network.Registry, caller network.AgentCaller,
	manager *lifecycle.Manager, log *slog.Logger, query, stages string) error {
	var ids []string
	for _, id := range strings.Split(stages, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	p := network.NewPipeline(registry, caller, manager, log)
	pc, err := p.Run(ctx, query, ids)
	for _, stage := range pc.Stages {
		fmt.Printf("[%s]\n%s\n\n", stage.AgentID, stage.Output)
	}
	if err != nil {
		return fmt.Errorf("pipeline stopped after %d of %d stages: %w", len(pc.Stages), len(ids), err)
	}
	return nil
}
