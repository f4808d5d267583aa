package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the configuration for inconsistencies that would only
// surface later as confusing runtime failures.
func (c *Config) Validate() error {
	var problems []string

	switch c.Logger.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("logger.level: unknown level %q", c.Logger.Level))
	}
	switch c.Logger.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logger.format: unknown format %q", c.Logger.Format))
	}

	switch c.Router.Mode {
	case "keyword", "semantic":
	default:
		problems = append(problems, fmt.Sprintf("router.mode: unknown mode %q", c.Router.Mode))
	}
	if c.Router.ConfidenceThreshold < 0 || c.Router.ConfidenceThreshold > 1 {
		problems = append(problems, fmt.Sprintf("router.confidence_threshold: %v outside [0,1]", c.Router.ConfidenceThreshold))
	}

	for _, field := range []struct{ name, value string }{
		{"lifecycle.readiness_timeout", c.Lifecycle.ReadinessTimeout},
		{"lifecycle.readiness_interval", c.Lifecycle.ReadinessInterval},
		{"lifecycle.stop_grace", c.Lifecycle.StopGrace},
		{"bridge.call_timeout", c.Bridge.CallTimeout},
		{"bridge.breaker.timeout", c.Bridge.Breaker.Timeout},
		{"bridge.breaker.interval", c.Bridge.Breaker.Interval},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: invalid duration %q", field.name, field.value))
		}
	}

	seenServers := make(map[string]bool)
	for i, srv := range c.Servers {
		if srv.Name == "" {
			problems = append(problems, fmt.Sprintf("capability_servers[%d]: name required", i))
		}
		if seenServers[srv.Name] {
			problems = append(problems, fmt.Sprintf("capability_servers[%d]: duplicate name %q", i, srv.Name))
		}
		seenServers[srv.Name] = true
		if srv.URL == "" && srv.Port == 0 {
			problems = append(problems, fmt.Sprintf("capability_servers[%d] (%s): url or port required", i, srv.Name))
		}
	}

	seenAgents := make(map[string]bool)
	for i, a := range c.Agents {
		if a.ID == "" {
			problems = append(problems, fmt.Sprintf("agents[%d]: id required", i))
		}
		if seenAgents[a.ID] {
			problems = append(problems, fmt.Sprintf("agents[%d]: duplicate id %q", i, a.ID))
		}
		seenAgents[a.ID] = true
		if a.Port < 0 || a.Port > 65535 {
			problems = append(problems, fmt.Sprintf("agents[%d] (%s): port %d out of range", i, a.ID, a.Port))
		}
		for _, ref := range a.CapabilityServers {
			if ref.URL == "" {
				problems = append(problems, fmt.Sprintf("agents[%d] (%s): capability server %q has empty url", i, a.ID, ref.Name))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}
