package capserver

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// cityWeather is the canned dataset. Responses add deterministic per-day
// jitter so repeated queries look alive without breaking test assertions.
type cityWeather struct {
	Condition     string
	Temperature   float64
	Humidity      int
	WindSpeed     int
	Precipitation float64
}

var weatherData = map[string]cityWeather{
	"london":   {Condition: "Rainy", Temperature: 15, Humidity: 85, WindSpeed: 18, Precipitation: 0.8},
	"paris":    {Condition: "Sunny", Temperature: 22, Humidity: 60, WindSpeed: 10, Precipitation: 0.0},
	"new york": {Condition: "Partly Cloudy", Temperature: 18, Humidity: 65, WindSpeed: 15, Precipitation: 0.2},
	"tokyo":    {Condition: "Clear", Temperature: 24, Humidity: 70, WindSpeed: 8, Precipitation: 0.0},
	"sydney":   {Condition: "Mild", Temperature: 20, Humidity: 75, WindSpeed: 12, Precipitation: 0.1},
}

// NewWeatherServer builds the weather MCP server: current conditions,
// multi-day forecast and alerts, plus templated resources for both.
func NewWeatherServer() *server.MCPServer {
	s := server.NewMCPServer("Weather", "1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, true),
	)

	s.AddTool(mcp.NewTool("get_current_weather",
		mcp.WithDescription("Get current weather conditions for a location"),
		mcp.WithString("location", mcp.Required(),
			mcp.Description("City name to get weather for")),
	), currentWeatherHandler)

	s.AddTool(mcp.NewTool("get_weather_forecast",
		mcp.WithDescription("Get weather forecast for a location"),
		mcp.WithString("location", mcp.Required(),
			mcp.Description("City name to get forecast for")),
		mcp.WithNumber("days",
			mcp.DefaultNumber(3),
			mcp.Description("Number of days to forecast, clamped to 1..7")),
	), forecastHandler)

	s.AddTool(mcp.NewTool("get_weather_alert",
		mcp.WithDescription("Get active weather alerts for a location"),
		mcp.WithString("location", mcp.Required()),
	), alertHandler)

	s.AddResourceTemplate(mcp.NewResourceTemplate(
		"weather://{location}/current", "current-weather",
		mcp.WithTemplateDescription("Current weather data for a location"),
		mcp.WithTemplateMIMEType("application/json"),
	), currentWeatherResource)

	s.AddResourceTemplate(mcp.NewResourceTemplate(
		"weather://{location}/forecast/{days}", "weather-forecast",
		mcp.WithTemplateDescription("Weather forecast data for a location"),
		mcp.WithTemplateMIMEType("application/json"),
	), forecastResource)

	return s
}

func currentWeatherHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	location, err := req.RequireString("location")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	payload, found := currentWeather(location)
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("weather data not available for %s", location)), nil
	}
	return jsonResult(payload)
}

func currentWeather(location string) (map[string]any, bool) {
	key := strings.ToLower(strings.TrimSpace(location))
	data, ok := weatherData[key]
	if !ok {
		return nil, false
	}
	return map[string]any{
		"location":         titleCase(key),
		"condition":        data.Condition,
		"temperature":      round1(data.Temperature + jitter(key+"/temp", 1.0)),
		"temperature_unit": "celsius",
		"humidity":         clampInt(data.Humidity+int(jitter(key+"/humidity", 5.0)), 0, 100),
		"wind_speed":       data.WindSpeed,
		"wind_unit":        "km/h",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	}, true
}

func forecastHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	location, err := req.RequireString("location")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	days := req.GetInt("days", 3)
	payload, found := forecast(location, days)
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("weather data not available for %s", location)), nil
	}
	return jsonResult(payload)
}

func forecast(location string, days int) (map[string]any, bool) {
	key := strings.ToLower(strings.TrimSpace(location))
	data, ok := weatherData[key]
	if !ok {
		return nil, false
	}
	if days < 1 {
		days = 1
	}
	if days > 7 {
		days = 7
	}

	conditions := []string{"Sunny", "Partly Cloudy", "Cloudy", "Rainy", "Clear"}
	entries := make([]map[string]any, 0, days)
	for i := 0; i < days; i++ {
		date := time.Now().AddDate(0, 0, i).Format("2006-01-02")
		seed := fmt.Sprintf("%s/%d", key, i)

		condition := data.Condition
		if hashFraction(seed+"/flip") > 0.7 {
			condition = conditions[int(hashFraction(seed+"/cond")*float64(len(conditions)))%len(conditions)]
		}

		tempShift := jitter(seed+"/temp", 3.0)
		chanceScale := 30.0
		if strings.Contains(condition, "Rain") {
			chanceScale = 100.0
		}
		entries = append(entries, map[string]any{
			"date":                 date,
			"condition":            condition,
			"temperature_high":     round1(data.Temperature + tempShift + 2),
			"temperature_low":      round1(data.Temperature + tempShift - 4),
			"temperature_unit":     "celsius",
			"humidity":             clampInt(data.Humidity+int(jitter(seed+"/humidity", 10.0)), 0, 100),
			"precipitation_chance": int(hashFraction(seed+"/precip") * chanceScale),
		})
	}

	return map[string]any{
		"location":     titleCase(key),
		"forecast":     entries,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}, true
}

func alertHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	location, err := req.RequireString("location")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key := strings.ToLower(strings.TrimSpace(location))
	if _, ok := weatherData[key]; !ok {
		return mcp.NewToolResultError(fmt.Sprintf("weather data not available for %s", location)), nil
	}

	now := time.Now().UTC()
	alerts := []map[string]any{}
	if hashFraction(key+"/"+now.Format("2006-01-02")+"/alert") < 0.3 {
		types := []string{"Flood", "High Wind", "Thunderstorm", "Extreme Heat", "Heavy Rain"}
		severities := []string{"Minor", "Moderate", "Severe"}
		alertType := types[int(hashFraction(key+"/type")*float64(len(types)))%len(types)]
		alerts = append(alerts, map[string]any{
			"type":        alertType,
			"severity":    severities[int(hashFraction(key+"/sev")*float64(len(severities)))%len(severities)],
			"description": fmt.Sprintf("%s warning for %s area", alertType, titleCase(key)),
			"issued_at":   now.Add(-3 * time.Hour).Format(time.RFC3339),
			"expires_at":  now.Add(12 * time.Hour).Format(time.RFC3339),
		})
	}

	return jsonResult(map[string]any{
		"location":  titleCase(key),
		"alerts":    alerts,
		"timestamp": now.Format(time.RFC3339),
	})
}

func currentWeatherResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	location, _, err := parseWeatherURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	payload, found := currentWeather(location)
	if !found {
		return nil, fmt.Errorf("weather data not available for %s", location)
	}
	return jsonResourceContents(req.Params.URI, payload)
}

func forecastResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	location, days, err := parseWeatherURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	payload, found := forecast(location, days)
	if !found {
		return nil, fmt.Errorf("weather data not available for %s", location)
	}
	return jsonResourceContents(req.Params.URI, payload)
}

// parseWeatherURI splits weather://{location}/current and
// weather://{location}/forecast/{days} URIs.
func parseWeatherURI(uri string) (location string, days int, err error) {
	rest, ok := strings.CutPrefix(uri, "weather://")
	if !ok {
		return "", 0, fmt.Errorf("unsupported resource URI %q", uri)
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == "current":
		return parts[0], 0, nil
	case len(parts) == 3 && parts[1] == "forecast":
		d, convErr := strconv.Atoi(parts[2])
		if convErr != nil {
			return "", 0, fmt.Errorf("days must be a number in %q", uri)
		}
		return parts[0], d, nil
	default:
		return "", 0, fmt.Errorf("unsupported resource URI %q", uri)
	}
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func jsonResourceContents(uri string, payload any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{mcp.TextResourceContents{
		URI:      uri,
		MIMEType: "application/json",
		Text:     string(data),
	}}, nil
}

// jitter derives a stable value in [-scale, scale] from seed.
func jitter(seed string, scale float64) float64 {
	return (hashFraction(seed)*2 - 1) * scale
}

// hashFraction maps seed to a stable value in [0, 1).
func hashFraction(seed string) float64 {
	h := fnv.New32a()
	h.Write([]byte(seed))
	return float64(h.Sum32()%10000) / 10000
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
