// Package runtime is the in-process core of one agent: it resolves inbound
// tasks against the agent's discovered capability set, consults peer agents
// where the task needs their expertise, and formats results as text.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"agentnet/internal/domain"
)

// PeerCaller posts a task to a peer agent. *agenthttp.Caller satisfies it.
type PeerCaller interface {
	SendTask(ctx context.Context, endpoint string, task domain.TaskRequest) (*domain.TaskResult, error)
}

// Runtime handles tasks for one agent definition. Each task runs on its own
// goroutine; a capability call is a suspension point, and at most one
// capability result is folded into a given task's context at a time because
// invocations within a task are issued sequentially.
type Runtime struct {
	def     domain.AgentDefinition
	invoker domain.CapabilityInvoker
	caller  PeerCaller // nil when the agent has no peers
	logger  *slog.Logger
}

// New creates a runtime. invoker may be nil for agents without capability
// servers; caller may be nil for agents without peers.
func New(def domain.AgentDefinition, invoker domain.CapabilityInvoker, caller PeerCaller, logger *slog.Logger) *Runtime {
	return &Runtime{def: def, invoker: invoker, caller: caller, logger: logger}
}

// Card returns the agent's self-describing card. The URL is filled by the
// HTTP server once the listener is bound.
func (r *Runtime) Card(version string) domain.AgentCard {
	return domain.AgentCard{
		ID:          r.def.ID,
		Name:        r.def.Name,
		Description: r.def.Description,
		Version:     version,
		Skills:      r.def.Skills,
	}
}

// HandleTask implements agenthttp.TaskHandler.
func (r *Runtime) HandleTask(ctx context.Context, task domain.TaskRequest) domain.TaskResult {
	r.logger.Info("task received", "agent", r.def.ID, "task", task.ID)

	capability := r.chooseCapability(task.Content)
	if capability == nil {
		return domain.TaskResult{
			TaskID:  task.ID,
			Content: r.helpText(),
			Status:  domain.TaskStatusCompleted,
		}
	}

	args, notes := r.bindArgs(ctx, *capability, task.Content)
	result, err := r.invoker.Invoke(ctx, capability.Name, args)
	if err != nil {
		r.logger.Warn("capability failed", "agent", r.def.ID, "capability", capability.Name, "error", err)
		return domain.TaskResult{
			TaskID: task.ID,
			Status: domain.TaskStatusFailed,
			Error:  err.Error(),
		}
	}

	content := formatResult(capability.Name, result)
	if notes != "" {
		content = notes + "\n\n" + content
	}
	return domain.TaskResult{
		TaskID:  task.ID,
		Content: content,
		Status:  domain.TaskStatusCompleted,
	}
}

// chooseCapability scores each discovered capability by token overlap between
// the query and the capability's name and description. Ties resolve to the
// earlier capability in discovery order; no overlap means no capability.
func (r *Runtime) chooseCapability(query string) *domain.CapabilityDescriptor {
	if r.invoker == nil {
		return nil
	}
	tokens := tokenize(query)

	var best *domain.CapabilityDescriptor
	bestScore := 0
	for _, capability := range r.invoker.Capabilities() {
		score := 0
		for _, term := range strings.Split(capability.Name, "_") {
			if tokens[term] {
				score++
			}
		}
		for term := range tokenize(capability.Description) {
			if len(term) > 3 && tokens[term] {
				score++
			}
		}
		if score > bestScore {
			c := capability
			best = &c
			bestScore = score
		}
	}
	return best
}

func (r *Runtime) helpText() string {
	if r.invoker == nil {
		return fmt.Sprintf("%s: no capabilities available for this request.", r.def.Name)
	}
	var names []string
	for _, c := range r.invoker.Capabilities() {
		names = append(names, c.Name)
	}
	return fmt.Sprintf("%s can help with: %s.", r.def.Name, strings.Join(names, ", "))
}

// bindArgs fills the capability's schema properties from the query, and from
// a peer consultation where the schema asks for weather conditions this agent
// cannot observe itself. Returns the bound arguments plus a note describing
// any peer consultation, to be surfaced with the answer.
func (r *Runtime) bindArgs(ctx context.Context, capability domain.CapabilityDescriptor, query string) (map[string]any, string) {
	args := make(map[string]any)
	notes := ""

	for _, prop := range schemaProperties(capability.Schema) {
		switch prop {
		case "location":
			args["location"] = extractLocation(query)
		case "locations":
			args["locations"] = strings.Join(extractLocations(query), ", ")
		case "days":
			if days, ok := extractDays(query); ok {
				args["days"] = days
			}
		case "conditions":
			if conditions, note := r.consultWeatherPeer(ctx, query); conditions != "" {
				args["conditions"] = conditions
				notes = note
			}
		case "query":
			args["query"] = query
		}
	}
	return args, notes
}

// consultWeatherPeer asks a weather peer, if configured, for the conditions
// at the query's location. A peer failure degrades to no conditions rather
// than failing the task.
func (r *Runtime) consultWeatherPeer(ctx context.Context, query string) (conditions, note string) {
	if r.caller == nil {
		return "", ""
	}
	var endpoint, peerID string
	for id, addr := range r.def.Peers {
		if strings.Contains(id, "weather") {
			peerID = id
			endpoint = "http://" + addr
			break
		}
	}
	if endpoint == "" {
		return "", ""
	}

	location := extractLocation(query)
	result, err := r.caller.SendTask(ctx, endpoint, domain.TaskRequest{
		Content: fmt.Sprintf("What is the current weather in %s?", location),
	})
	if err != nil || result.Status != domain.TaskStatusCompleted {
		r.logger.Warn("weather peer consultation failed", "agent", r.def.ID, "peer", peerID, "error", err)
		return "", ""
	}

	return parseConditions(result.Content),
		fmt.Sprintf("Checked with %s: %s", peerID, firstLine(result.Content))
}

// parseConditions pulls the condition word out of a weather agent's textual
// answer, e.g. "Current weather in Paris: Sunny, 22.0°C ..." -> "Sunny".
func parseConditions(answer string) string {
	line := firstLine(answer)
	if _, after, found := strings.Cut(line, ": "); found {
		line = after
	}
	if before, _, found := strings.Cut(line, ","); found {
		return strings.TrimSpace(before)
	}
	return strings.TrimSpace(line)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// knownCities mirrors the capability servers' dataset plus a few aliases the
// servers will reject with a clear error.
var knownCities = []string{
	"new york", "london", "paris", "tokyo", "sydney",
	"berlin", "rome", "madrid", "cairo", "mumbai",
}

// extractLocation finds the first known city mentioned in the query,
// defaulting to London.
func extractLocation(query string) string {
	folded := strings.ToLower(query)
	for _, city := range knownCities {
		if strings.Contains(folded, city) {
			return titleCase(city)
		}
	}
	return "London"
}

// extractLocations finds every known city mentioned in the query, in dataset
// order, falling back to the single extracted location.
func extractLocations(query string) []string {
	folded := strings.ToLower(query)
	var cities []string
	for _, city := range knownCities {
		if strings.Contains(folded, city) {
			cities = append(cities, titleCase(city))
		}
	}
	if len(cities) == 0 {
		cities = []string{extractLocation(query)}
	}
	return cities
}

// extractDays finds an explicit day count in the query, clamped to 1..7.
func extractDays(query string) (int, bool) {
	for _, token := range strings.Fields(strings.ToLower(query)) {
		if n, err := strconv.Atoi(strings.Trim(token, ".,!?-")); err == nil {
			if n < 1 {
				n = 1
			}
			if n > 7 {
				n = 7
			}
			return n, true
		}
	}
	return 0, false
}

// schemaProperties lists the property names of a JSON schema document.
func schemaProperties(schema json.RawMessage) []string {
	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil
	}
	// Stable order keeps binding deterministic.
	names := make([]string, 0, len(doc.Properties))
	for name := range doc.Properties {
		names = append(names, name)
	}
	sortStrings(names)
	return names
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return tokens
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
