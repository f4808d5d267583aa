package network

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"agentnet/internal/domain"
	"agentnet/internal/infra/tracer"
)

// RouterConfig tunes the two-stage router.
type RouterConfig struct {
	// ConfidenceThreshold is the semantic stage's acceptance floor in [0,1].
	// A top candidate below it yields ErrNoRoute rather than a guess.
	ConfidenceThreshold float64
}

// Router maps a free-text query onto agent ids. Stage one matches declared
// trigger terms; stage two delegates to a pluggable classifier. The router is
// stateless per query: it resolves against a registry snapshot and holds no
// long-lived locks.
type Router struct {
	registry   *Registry
	classifier domain.Classifier // nil disables the semantic stage
	config     RouterConfig
	logger     *slog.Logger
}

// NewRouter creates a router over the registry. classifier may be nil.
func NewRouter(registry *Registry, classifier domain.Classifier, cfg RouterConfig, logger *slog.Logger) *Router {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.6
	}
	return &Router{registry: registry, classifier: classifier, config: cfg, logger: logger}
}

// Route resolves query through the keyword stage, falling back to the
// semantic stage when no trigger term matches.
func (r *Router) Route(ctx context.Context, query string) (*domain.RoutingDecision, error) {
	ctx, span := tracer.StartSpan(ctx, "router.route")
	defer span.End()

	if decision := r.routeKeyword(query); decision != nil {
		span.SetAttributes(
			tracer.StringAttr("route.stage", string(decision.Stage)),
			tracer.StringAttr("route.agent", decision.Candidates[0]),
		)
		return decision, nil
	}
	decision, err := r.RouteSemantic(ctx, query)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		tracer.StringAttr("route.stage", string(decision.Stage)),
		tracer.StringAttr("route.agent", decision.Candidates[0]),
	)
	return decision, nil
}

// routeKeyword scores every registered agent by the number of its trigger
// terms present in the case-folded, tokenized query. Candidates are agents
// with score > 0, ranked descending; ties break by registration order, which
// makes the ordering deterministic for identical query and registry state.
func (r *Router) routeKeyword(query string) *domain.RoutingDecision {
	tokens := tokenize(query)
	folded := strings.ToLower(query)

	type scored struct {
		id    string
		score int
		order int
	}
	var matches []scored
	for order, desc := range r.registry.Snapshot() {
		score := 0
		for _, term := range triggerTerms(desc) {
			if termMatches(term, tokens, folded) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{id: desc.ID, score: score, order: order})
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].order < matches[j].order
	})

	candidates := make([]string, len(matches))
	for i, m := range matches {
		candidates[i] = m.id
	}

	// Confidence normalizes the raw term count onto [0,1].
	confidence := float64(matches[0].score) / 10
	if confidence > 1.0 {
		confidence = 1.0
	}

	r.logger.Debug("keyword route",
		"query", query, "candidates", candidates, "confidence", confidence)

	return &domain.RoutingDecision{
		Query:      query,
		Candidates: candidates,
		Stage:      domain.RouteStageKeyword,
		Confidence: confidence,
	}
}

// RouteSemantic resolves query through the classifier alone, for callers
// that explicitly request semantic routing.
func (r *Router) RouteSemantic(ctx context.Context, query string) (*domain.RoutingDecision, error) {
	if r.classifier == nil {
		return nil, domain.NewSubSystemError("network", "Router.Route", domain.ErrNoRoute,
			"no keyword match and no classifier configured")
	}

	candidates := make(map[string][]string)
	for _, desc := range r.registry.Snapshot() {
		candidates[desc.ID] = desc.Tags()
	}
	if len(candidates) == 0 {
		return nil, domain.NewSubSystemError("network", "Router.Route", domain.ErrNoRoute, "registry is empty")
	}

	ranked, err := r.classifier.Classify(ctx, query, candidates)
	if err != nil {
		return nil, domain.WrapOp("Router.Route", err)
	}

	// Drop ids the classifier invented or that left the registry meanwhile.
	var kept []domain.ScoredAgent
	for _, s := range ranked {
		if _, ok := r.registry.Get(s.AgentID); ok {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Confidence > kept[j].Confidence })

	if len(kept) == 0 || kept[0].Confidence < r.config.ConfidenceThreshold {
		top := 0.0
		if len(kept) > 0 {
			top = kept[0].Confidence
		}
		r.logger.Info("no route", "query", query, "top_confidence", top,
			"threshold", r.config.ConfidenceThreshold)
		return nil, domain.NewSubSystemError("network", "Router.Route", domain.ErrNoRoute,
			"semantic confidence below threshold")
	}

	ids := make([]string, len(kept))
	for i, s := range kept {
		ids[i] = s.AgentID
	}
	return &domain.RoutingDecision{
		Query:      query,
		Candidates: ids,
		Stage:      domain.RouteStageSemantic,
		Confidence: kept[0].Confidence,
	}, nil
}

// triggerTerms collects an agent's declared trigger terms: skill tags plus
// skill names, lowercased.
func triggerTerms(desc domain.AgentDescriptor) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}
	for _, skill := range desc.Skills {
		for _, tag := range skill.Tags {
			add(tag)
		}
		add(skill.Name)
	}
	return terms
}

// termMatches reports whether term occurs in the query. Single-word terms
// must match a whole token; multi-word terms match as a substring of the
// folded query.
func termMatches(term string, tokens map[string]bool, folded string) bool {
	if strings.ContainsRune(term, ' ') {
		return strings.Contains(folded, term)
	}
	return tokens[term]
}

// tokenize case-folds the query and splits it on non-alphanumeric runes.
func tokenize(query string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return tokens
}
