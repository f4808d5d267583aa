package network

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"agentnet/internal/domain"
	"agentnet/internal/infra/logger"
)

func descriptor(id string, tags ...string) domain.AgentDescriptor {
	return domain.AgentDescriptor{
		ID:    id,
		Name:  id,
		Host:  "127.0.0.1",
		Port:  8000,
		State: domain.AgentStateReady,
		Skills: []domain.Skill{
			{Name: id, Tags: tags},
		},
	}
}

func TestKeywordRouteMatchesTags(t *testing.T) {
	reg := NewRegistry()
	reg.Register(descriptor("weather_agent", "weather", "forecast"))
	reg.Register(descriptor("travel_agent", "travel", "itinerary"))
	router := NewRouter(reg, nil, RouterConfig{}, logger.Discard())

	decision, err := router.Route(context.Background(), "What's the weather in Tokyo?")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.Stage != domain.RouteStageKeyword {
		t.Errorf("stage = %s", decision.Stage)
	}
	if want := []string{"weather_agent"}; !reflect.DeepEqual(decision.Candidates, want) {
		t.Errorf("candidates = %v, want %v", decision.Candidates, want)
	}
}

func TestKeywordRouteDeterministic(t *testing.T) {
	reg := NewRegistry()
	reg.Register(descriptor("a", "weather", "forecast"))
	reg.Register(descriptor("b", "weather", "rain"))
	reg.Register(descriptor("c", "travel"))
	router := NewRouter(reg, nil, RouterConfig{}, logger.Discard())

	query := "weather forecast with rain"
	first, err := router.Route(context.Background(), query)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := router.Route(context.Background(), query)
		if err != nil {
			t.Fatalf("Route: %v", err)
		}
		if !reflect.DeepEqual(first.Candidates, again.Candidates) {
			t.Fatalf("ordering changed: %v then %v", first.Candidates, again.Candidates)
		}
	}
	// a scores 2 (weather, forecast), b scores 2 (weather, rain): tie broken
	// by registration order.
	if want := []string{"a", "b"}; !reflect.DeepEqual(first.Candidates, want) {
		t.Errorf("candidates = %v, want %v", first.Candidates, want)
	}
}

func TestKeywordRouteCaseFoldsAndTokenizes(t *testing.T) {
	reg := NewRegistry()
	reg.Register(descriptor("weather_agent", "weather"))
	router := NewRouter(reg, nil, RouterConfig{}, logger.Discard())

	decision, err := router.Route(context.Background(), "WEATHER, please!")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(decision.Candidates) != 1 || decision.Candidates[0] != "weather_agent" {
		t.Errorf("candidates = %v", decision.Candidates)
	}

	// "weathering" must not match the term "weather".
	reg2 := NewRegistry()
	reg2.Register(descriptor("weather_agent", "weather"))
	router2 := NewRouter(reg2, nil, RouterConfig{}, logger.Discard())
	if _, err := router2.Route(context.Background(), "weathering heights"); !errors.Is(err, domain.ErrNoRoute) {
		t.Errorf("partial token matched: %v", err)
	}
}

func TestKeywordConfidenceScale(t *testing.T) {
	reg := NewRegistry()
	reg.Register(descriptor("a", "weather", "forecast", "rain"))
	router := NewRouter(reg, nil, RouterConfig{}, logger.Discard())

	decision, err := router.Route(context.Background(), "weather forecast rain")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.Confidence != 0.3 {
		t.Errorf("confidence = %v, want 0.3 for 3 matched terms", decision.Confidence)
	}
}

type stubClassifier struct {
	ranked []domain.ScoredAgent
	err    error
	seen   map[string][]string
}

func (c *stubClassifier) Classify(ctx context.Context, query string, candidates map[string][]string) ([]domain.ScoredAgent, error) {
	c.seen = candidates
	return c.ranked, c.err
}

func TestSemanticFallback(t *testing.T) {
	reg := NewRegistry()
	reg.Register(descriptor("weather_agent", "weather"))
	reg.Register(descriptor("travel_agent", "travel"))
	classifier := &stubClassifier{ranked: []domain.ScoredAgent{
		{AgentID: "travel_agent", Confidence: 0.9},
		{AgentID: "weather_agent", Confidence: 0.4},
	}}
	router := NewRouter(reg, classifier, RouterConfig{ConfidenceThreshold: 0.6}, logger.Discard())

	decision, err := router.Route(context.Background(), "plan something nice for my holiday")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.Stage != domain.RouteStageSemantic {
		t.Errorf("stage = %s", decision.Stage)
	}
	if decision.Candidates[0] != "travel_agent" {
		t.Errorf("candidates = %v", decision.Candidates)
	}
	if decision.Confidence != 0.9 {
		t.Errorf("confidence = %v", decision.Confidence)
	}
	if tags := classifier.seen["weather_agent"]; len(tags) == 0 {
		t.Error("classifier must receive candidate skill tags")
	}
}

func TestSemanticBelowThresholdIsNoRoute(t *testing.T) {
	reg := NewRegistry()
	reg.Register(descriptor("weather_agent", "weather"))
	classifier := &stubClassifier{ranked: []domain.ScoredAgent{
		{AgentID: "weather_agent", Confidence: 0.3},
	}}
	router := NewRouter(reg, classifier, RouterConfig{ConfidenceThreshold: 0.6}, logger.Discard())

	_, err := router.Route(context.Background(), "something entirely unrelated")
	if !errors.Is(err, domain.ErrNoRoute) {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
}

func TestSemanticUnknownAgentFiltered(t *testing.T) {
	reg := NewRegistry()
	reg.Register(descriptor("weather_agent", "weather"))
	classifier := &stubClassifier{ranked: []domain.ScoredAgent{
		{AgentID: "phantom", Confidence: 0.99},
		{AgentID: "weather_agent", Confidence: 0.8},
	}}
	router := NewRouter(reg, classifier, RouterConfig{ConfidenceThreshold: 0.6}, logger.Discard())

	decision, err := router.Route(context.Background(), "unrelated")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if want := []string{"weather_agent"}; !reflect.DeepEqual(decision.Candidates, want) {
		t.Errorf("candidates = %v, want %v", decision.Candidates, want)
	}
}

func TestNoClassifierNoMatchIsNoRoute(t *testing.T) {
	reg := NewRegistry()
	reg.Register(descriptor("weather_agent", "weather"))
	router := NewRouter(reg, nil, RouterConfig{}, logger.Discard())

	_, err := router.Route(context.Background(), "completely unrelated query")
	if !errors.Is(err, domain.ErrNoRoute) {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
}

func TestRouteSemanticExplicit(t *testing.T) {
	reg := NewRegistry()
	reg.Register(descriptor("weather_agent", "weather"))
	classifier := &stubClassifier{ranked: []domain.ScoredAgent{
		{AgentID: "weather_agent", Confidence: 0.95},
	}}
	router := NewRouter(reg, classifier, RouterConfig{ConfidenceThreshold: 0.6}, logger.Discard())

	// Even though "weather" would keyword-match, the explicit call skips
	// stage one.
	decision, err := router.RouteSemantic(context.Background(), "weather in Tokyo")
	if err != nil {
		t.Fatalf("RouteSemantic: %v", err)
	}
	if decision.Stage != domain.RouteStageSemantic {
		t.Errorf("stage = %s", decision.Stage)
	}
}
