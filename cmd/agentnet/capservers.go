package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"agentnet/internal/adapter/capserver"
)

// Default ports for the builtin capability server tier.
var defaultCapPorts = map[string]int{
	"weather": 5001,
	"maps":    5002,
	"travel":  5003,
}

// runCapServers hosts the builtin MCP capability servers until interrupted.
func runCapServers() error {
	fs := flag.NewFlagSet("capservers", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (optional)")
	weatherPort := fs.Int("weather-port", 0, "port for the weather server")
	mapsPort := fs.Int("maps-port", 0, "port for the maps server")
	travelPort := fs.Int("travel-port", 0, "port for the travel server")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, cleanup, err := bootstrap(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	ports := make(map[string]int, len(defaultCapPorts))
	for name, port := range defaultCapPorts {
		ports[name] = port
	}
	for _, srv := range cfg.Servers {
		if srv.Port != 0 {
			ports[srv.Name] = srv.Port
		}
	}
	for name, flagPort := range map[string]int{
		"weather": *weatherPort,
		"maps":    *mapsPort,
		"travel":  *travelPort,
	} {
		if flagPort != 0 {
			ports[name] = flagPort
		}
	}

	builtin := capserver.Builtin()
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)

	var running []*capserver.Server
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range running {
			if err := srv.Stop(shutdownCtx); err != nil {
				log.Warn("capability server stop", "error", err)
			}
		}
	}()

	for _, name := range names {
		srv := capserver.NewServer(name, builtin[name](), ports[name], log)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start %s server: %w", name, err)
		}
		running = append(running, srv)
		fmt.Printf("%-8s %s\n", name, srv.URL())
	}

	log.Info("capability servers running", "count", len(running))
	<-ctx.Done()
	log.Info("shutting down capability servers")
	return nil
}
