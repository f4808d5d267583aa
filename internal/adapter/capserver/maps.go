package capserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type cityLocation struct {
	Lat     float64
	Lon     float64
	Country string
}

var cityLocations = map[string]cityLocation{
	"london":   {Lat: 51.5074, Lon: -0.1278, Country: "United Kingdom"},
	"paris":    {Lat: 48.8566, Lon: 2.3522, Country: "France"},
	"new york": {Lat: 40.7128, Lon: -74.0060, Country: "United States"},
	"tokyo":    {Lat: 35.6762, Lon: 139.6503, Country: "Japan"},
	"sydney":   {Lat: -33.8688, Lon: 151.2093, Country: "Australia"},
}

// NewMapsServer builds the maps MCP server: geocoding against the canned city
// table and a text rendering of current conditions across several cities.
func NewMapsServer() *server.MCPServer {
	s := server.NewMCPServer("Maps", "1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("geocode",
		mcp.WithDescription("Resolve a city name to coordinates"),
		mcp.WithString("location", mcp.Required(),
			mcp.Description("City name to resolve")),
	), geocodeHandler)

	s.AddTool(mcp.NewTool("render_weather_map",
		mcp.WithDescription("Render current conditions for several cities as a text table"),
		mcp.WithString("locations", mcp.Required(),
			mcp.Description("Comma-separated city names")),
	), renderMapHandler)

	return s
}

func geocodeHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	location, err := req.RequireString("location")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key := strings.ToLower(strings.TrimSpace(location))
	loc, ok := cityLocations[key]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no coordinates for %s", location)), nil
	}
	return jsonResult(map[string]any{
		"location":  titleCase(key),
		"latitude":  loc.Lat,
		"longitude": loc.Lon,
		"country":   loc.Country,
	})
}

func renderMapHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("locations")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var lines []string
	var missing []string
	for _, name := range strings.Split(raw, ",") {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		weather, ok := currentWeather(key)
		if !ok {
			missing = append(missing, key)
			continue
		}
		lines = append(lines, fmt.Sprintf("%-10s %-14s %5.1f°C  humidity %d%%",
			titleCase(key), weather["condition"], weather["temperature"], weather["humidity"]))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("no weather data for any of: %s", raw)), nil
	}

	result := map[string]any{
		"map":    strings.Join(lines, "\n"),
		"cities": len(lines),
	}
	if len(missing) > 0 {
		result["missing"] = missing
	}
	return jsonResult(result)
}
