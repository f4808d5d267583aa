package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"agentnet/internal/adapter/agenthttp"
)

// runList probes agent endpoints and prints a status table. Endpoints come
// from --agents, or from the config's fixed-port agents when the flag is
// empty.
func runList() error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (optional)")
	agents := fs.String("agents", "", "endpoints to probe, as id=host:port[,id=host:port...]")
	probeTimeout := fs.Duration("probe-timeout", 2*time.Second, "per-endpoint probe timeout")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	ctx := context.Background()
	cfg, _, cleanup, err := bootstrap(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	type target struct {
		id   string
		addr string
	}
	var targets []target
	if *agents != "" {
		for _, pair := range strings.Split(*agents, ",") {
			id, addr, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || id == "" || addr == "" {
				return fmt.Errorf("bad --agents entry %q, want id=host:port", pair)
			}
			targets = append(targets, target{id: id, addr: addr})
		}
	} else {
		for _, entry := range cfg.Agents {
			if entry.Port == 0 {
				continue
			}
			targets = append(targets, target{
				id:   entry.ID,
				addr: fmt.Sprintf("%s:%d", cfg.Lifecycle.Host, entry.Port),
			})
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("nothing to probe: pass --agents or configure agents with fixed ports")
	}

	caller := agenthttp.NewCaller(*probeTimeout)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADDRESS\tSTATUS\tNAME\tSKILLS")
	for _, t := range targets {
		endpoint := "http://" + t.addr
		probeCtx, cancel := context.WithTimeout(ctx, *probeTimeout)
		status, name, skills := probeAgent(probeCtx, caller, endpoint)
		cancel()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.id, t.addr, status, name, skills)
	}
	return w.Flush()
}

// probeAgent checks one endpoint's health and fetches its card.
func probeAgent(ctx context.Context, caller *agenthttp.Caller, endpoint string) (status, name, skills string) {
	if err := caller.CheckHealth(ctx, endpoint); err != nil {
		return "unreachable", "-", "-"
	}
	card, err := caller.FetchCard(ctx, endpoint)
	if err != nil {
		return "ready", "-", "-"
	}
	var tags []string
	for _, skill := range card.Skills {
		tags = append(tags, skill.Tags...)
	}
	if len(tags) == 0 {
		return "ready", card.Name, "-"
	}
	return "ready", card.Name, strings.Join(tags, ",")
}
