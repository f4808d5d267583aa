package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"agentnet/internal/infra/config"
	"agentnet/internal/infra/logger"
	"agentnet/internal/infra/tracer"
)

const version = "1.0.0"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "capservers":
		if err := runCapServers(); err != nil {
			fmt.Fprintf(os.Stderr, "capservers: %v\n", err)
			os.Exit(1)
		}
	case "agent":
		if err := runAgent(); err != nil {
			fmt.Fprintf(os.Stderr, "agent: %v\n", err)
			os.Exit(1)
		}
	case "query":
		if err := runQuery(); err != nil {
			fmt.Fprintf(os.Stderr, "query: %v\n", err)
			os.Exit(1)
		}
	case "list":
		if err := runList(); err != nil {
			fmt.Fprintf(os.Stderr, "list: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'agentnet --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`agentnet - Multi-agent coordination over MCP capability servers

USAGE:
    agentnet COMMAND [FLAGS]

COMMANDS:
    capservers  Host the builtin capability servers (weather, maps, travel)
    agent       Run a single agent process (spawned by 'query', rarely by hand)
    query       Start the configured agent network and route one query
    list        Probe agent endpoints and print their status

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)

EXAMPLES:
    agentnet capservers                          # Serve weather/maps/travel on 5001-5003
    agentnet query "What's the weather in Tokyo?"
    agentnet query --pipeline weather_agent,travel_agent "Plan a rainy-day trip"
    agentnet list --agents weather_agent=127.0.0.1:8101`)
}

// bootstrap loads the config and wires the logger and tracer. The returned
// cleanup flushes both; defer it from every run function. An empty path falls
// back to $AGENTNET_CONFIG, then ./config.yaml if present, then defaults.
func bootstrap(ctx context.Context, configPath string) (*config.Config, *slog.Logger, func(), error) {
	if configPath == "" {
		configPath = os.Getenv("AGENTNET_CONFIG")
	}
	if configPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			configPath = "config.yaml"
		}
	}

	var cfg *config.Config
	if configPath == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, nil, nil, err
		}
		cfg = loaded
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		closeLog()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown", "error", err)
		}
		closeLog()
	}
	return cfg, log, cleanup, nil
}
