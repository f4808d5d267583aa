package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"agentnet/internal/adapter/agenthttp"
	"agentnet/internal/adapter/bridge"
	"agentnet/internal/domain"
	"agentnet/internal/usecase/runtime"
)

// runAgent runs one agent process. It is normally spawned by the lifecycle
// manager with a JSON definition on the command line, but can be started by
// hand for debugging.
func runAgent() error {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	port := fs.Int("port", 0, "port to listen on (0 picks an ephemeral port)")
	definition := fs.String("definition", "", "agent definition as JSON")
	configPath := fs.String("config", "", "config file path (optional)")
	mdns := fs.Bool("mdns", false, "advertise this agent over mDNS")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *definition == "" {
		return fmt.Errorf("--definition is required")
	}

	var def domain.AgentDefinition
	if err := json.Unmarshal([]byte(*definition), &def); err != nil {
		return fmt.Errorf("parse definition: %w", err)
	}
	if def.ID == "" {
		return fmt.Errorf("definition is missing an agent id")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, cleanup, err := bootstrap(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()
	log = log.With("agent", def.ID)

	var invoker domain.CapabilityInvoker
	if len(def.CapabilityServers) > 0 {
		servers := make([]bridge.ServerAddress, 0, len(def.CapabilityServers))
		for _, ref := range def.CapabilityServers {
			servers = append(servers, bridge.ServerAddress{Name: ref.Name, URL: ref.URL})
		}
		br, err := bridge.New(ctx, servers, bridge.Config{
			CallTimeout:        cfg.Bridge.CallTimeoutD(),
			MaxRetries:         cfg.Bridge.MaxRetries,
			BreakerMaxFailures: cfg.Bridge.Breaker.MaxFailures,
			BreakerTimeout:     cfg.Bridge.Breaker.TimeoutD(),
			BreakerInterval:    cfg.Bridge.Breaker.IntervalD(),
		}, log, bridge.WithExpectedFields("get_current_weather", weatherExpectedFields()))
		if err != nil {
			return err
		}
		defer br.Close()
		invoker = br
	}

	var caller runtime.PeerCaller
	if len(def.Peers) > 0 {
		caller = agenthttp.NewCaller(30 * time.Second)
	}

	rt := runtime.New(def, invoker, caller, log)
	srv := agenthttp.NewServer(agenthttp.ServerConfig{
		Addr: fmt.Sprintf("%s:%d", cfg.Lifecycle.Host, *port),
	}, rt.Card(version), rt, log)
	if err := srv.Start(); err != nil {
		return err
	}
	log.Info("agent listening", "addr", srv.BoundAddr())

	if *mdns || cfg.Discovery.MDNS {
		host, boundPort, err := splitBoundAddr(srv.BoundAddr())
		if err != nil {
			return err
		}
		disc := runtime.NewMDNSDiscoverer(log)
		desc := domain.AgentDescriptor{
			ID:     def.ID,
			Name:   def.Name,
			Skills: def.Skills,
			Host:   host,
			Port:   boundPort,
			State:  domain.AgentStateReady,
		}
		go func() {
			if err := disc.Advertise(ctx, desc); err != nil {
				log.Warn("mdns advertise", "error", err)
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func splitBoundAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("parse bound address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("parse bound address %q: %w", addr, err)
	}
	return host, port, nil
}

// weatherExpectedFields is the documented field set for current-weather
// results. Servers that omit a field still produce a complete result.
func weatherExpectedFields() []bridge.ExpectedField {
	return []bridge.ExpectedField{
		{Name: "humidity", Default: "unknown"},
		{Name: "temperature_unit", Default: "celsius"},
		{Name: "wind_unit", Default: "km/h"},
	}
}
