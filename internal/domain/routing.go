package domain

import "context"

// RouteStage identifies which routing stage produced a decision.
type RouteStage string

const (
	RouteStageKeyword  RouteStage = "keyword"
	RouteStageSemantic RouteStage = "semantic"
	RouteStageNone     RouteStage = "none"
)

// RoutingDecision is the ephemeral outcome of routing one query: candidate
// agent ids in priority order plus the stage that matched.
type RoutingDecision struct {
	Query      string     `json:"query"`
	Candidates []string   `json:"candidates"`
	Stage      RouteStage `json:"stage"`
	Confidence float64    `json:"confidence"`
}

// ScoredAgent pairs an agent id with a classifier confidence in [0,1].
type ScoredAgent struct {
	AgentID    string  `json:"agent_id"`
	Confidence float64 `json:"confidence"`
}

// Classifier is the pluggable semantic-routing contract. Implementations
// rank candidate agents for a query given each agent's declared skill tags.
// The exact similarity method is deliberately unspecified.
type Classifier interface {
	Classify(ctx context.Context, query string, candidates map[string][]string) ([]ScoredAgent, error)
}
