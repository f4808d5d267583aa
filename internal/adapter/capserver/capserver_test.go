package capserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentnet/internal/infra/logger"
)

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, result.IsError, "unexpected tool error: %+v", result.Content)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func TestCurrentWeatherKnownCity(t *testing.T) {
	result, err := currentWeatherHandler(context.Background(),
		toolRequest("get_current_weather", map[string]any{"location": "Paris"}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, "Paris", payload["location"])
	assert.Equal(t, "Sunny", payload["condition"])
	assert.Equal(t, "celsius", payload["temperature_unit"])
	assert.Equal(t, "km/h", payload["wind_unit"])
	temp := payload["temperature"].(float64)
	assert.InDelta(t, 22, temp, 1.5, "temperature stays near the base value")
}

func TestCurrentWeatherUnknownCity(t *testing.T) {
	result, err := currentWeatherHandler(context.Background(),
		toolRequest("get_current_weather", map[string]any{"location": "Atlantis"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCurrentWeatherDeterministic(t *testing.T) {
	a, _ := currentWeather("tokyo")
	b, _ := currentWeather("tokyo")
	assert.Equal(t, a["temperature"], b["temperature"], "jitter is stable per city")
	assert.Equal(t, a["humidity"], b["humidity"])
}

func TestForecastClampsDays(t *testing.T) {
	for _, tc := range []struct{ in, want int }{{0, 1}, {3, 3}, {99, 7}} {
		payload, ok := forecast("london", tc.in)
		require.True(t, ok)
		assert.Len(t, payload["forecast"], tc.want, "days=%d", tc.in)
	}
}

func TestParseWeatherURI(t *testing.T) {
	location, days, err := parseWeatherURI("weather://london/current")
	require.NoError(t, err)
	assert.Equal(t, "london", location)
	assert.Zero(t, days)

	location, days, err = parseWeatherURI("weather://tokyo/forecast/5")
	require.NoError(t, err)
	assert.Equal(t, "tokyo", location)
	assert.Equal(t, 5, days)

	for _, bad := range []string{"weather://tokyo/forecast/soon", "weather://tokyo", "maps://tokyo/current"} {
		if _, _, err := parseWeatherURI(bad); err == nil {
			t.Errorf("parseWeatherURI(%q): expected error", bad)
		}
	}
}

func TestGeocode(t *testing.T) {
	result, err := geocodeHandler(context.Background(),
		toolRequest("geocode", map[string]any{"location": "new york"}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, "New York", payload["location"])
	assert.InDelta(t, 40.7128, payload["latitude"].(float64), 0.001)
	assert.Equal(t, "United States", payload["country"])
}

func TestRenderWeatherMap(t *testing.T) {
	result, err := renderMapHandler(context.Background(),
		toolRequest("render_weather_map", map[string]any{"locations": "London, Atlantis, Tokyo"}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, float64(2), payload["cities"])
	assert.Contains(t, payload["map"], "London")
	assert.Contains(t, payload["map"], "Tokyo")
	assert.Equal(t, []any{"atlantis"}, payload["missing"])
}

func TestItineraryPrefersIndoorWhenWet(t *testing.T) {
	result, err := itineraryHandler(context.Background(),
		toolRequest("plan_itinerary", map[string]any{
			"location": "london", "days": float64(3), "conditions": "Heavy Rain",
		}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	plan := payload["itinerary"].([]any)
	require.Len(t, plan, 3)
	first := plan[0].(map[string]any)
	assert.Contains(t, cityActivities["london"].Indoor, first["activity"])
}

func TestPackingListForRain(t *testing.T) {
	result, err := packingHandler(context.Background(),
		toolRequest("packing_list", map[string]any{"conditions": "Rainy", "days": float64(5)}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	items := payload["items"].([]any)
	assert.Contains(t, items, "umbrella")
	assert.Contains(t, items, "laundry bag")
}

func TestServerStartStop(t *testing.T) {
	srv := NewServer("weather", NewWeatherServer(), 0, logger.Discard())
	require.NoError(t, srv.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	}()

	require.NotEmpty(t, srv.Addr())
	assert.Contains(t, srv.URL(), "/mcp")

	resp, err := http.Get(fmt.Sprintf("http://%s/health", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
