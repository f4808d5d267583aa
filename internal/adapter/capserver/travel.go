package capserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var cityActivities = map[string]struct {
	Outdoor []string
	Indoor  []string
}{
	"london": {
		Outdoor: []string{"Walk along the South Bank", "Hyde Park picnic", "Borough Market stroll"},
		Indoor:  []string{"British Museum", "Tate Modern", "West End show"},
	},
	"paris": {
		Outdoor: []string{"Seine riverside walk", "Jardin du Luxembourg", "Montmartre climb"},
		Indoor:  []string{"Louvre", "Musée d'Orsay", "Sainte-Chapelle"},
	},
	"new york": {
		Outdoor: []string{"Central Park loop", "Brooklyn Bridge walk", "High Line"},
		Indoor:  []string{"The Met", "MoMA", "Broadway show"},
	},
	"tokyo": {
		Outdoor: []string{"Meiji Shrine gardens", "Ueno Park", "Shibuya crossing at dusk"},
		Indoor:  []string{"teamLab Planets", "Tokyo National Museum", "Tsukiji food hall"},
	},
	"sydney": {
		Outdoor: []string{"Bondi to Coogee walk", "Harbour Bridge climb", "Royal Botanic Garden"},
		Indoor:  []string{"Art Gallery of NSW", "Sydney Opera House tour", "SEA LIFE aquarium"},
	},
}

// NewTravelServer builds the travel MCP server: itinerary suggestions that
// pick indoor or outdoor activities based on the reported conditions, and a
// condition-aware packing list.
func NewTravelServer() *server.MCPServer {
	s := server.NewMCPServer("Travel", "1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("plan_itinerary",
		mcp.WithDescription("Suggest a day-by-day itinerary for a destination"),
		mcp.WithString("location", mcp.Required(),
			mcp.Description("Destination city")),
		mcp.WithNumber("days",
			mcp.DefaultNumber(2),
			mcp.Description("Trip length in days, clamped to 1..7")),
		mcp.WithString("conditions",
			mcp.Description("Expected weather conditions, used to prefer indoor or outdoor activities")),
	), itineraryHandler)

	s.AddTool(mcp.NewTool("packing_list",
		mcp.WithDescription("Suggest a packing list for the expected conditions"),
		mcp.WithString("conditions", mcp.Required(),
			mcp.Description("Expected weather conditions")),
		mcp.WithNumber("days", mcp.DefaultNumber(3)),
	), packingHandler)

	return s
}

func itineraryHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	location, err := req.RequireString("location")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	days := req.GetInt("days", 2)
	if days < 1 {
		days = 1
	}
	if days > 7 {
		days = 7
	}
	conditions := req.GetString("conditions", "")

	key := strings.ToLower(strings.TrimSpace(location))
	activities, ok := cityActivities[key]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no itinerary data for %s", location)), nil
	}

	pool := activities.Outdoor
	if wetConditions(conditions) {
		pool = activities.Indoor
	}

	plan := make([]map[string]any, 0, days)
	for i := 0; i < days; i++ {
		plan = append(plan, map[string]any{
			"day":      i + 1,
			"activity": pool[i%len(pool)],
		})
	}

	return jsonResult(map[string]any{
		"location":  titleCase(key),
		"days":      days,
		"itinerary": plan,
	})
}

func packingHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conditions, err := req.RequireString("conditions")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	days := req.GetInt("days", 3)

	items := []string{"passport", "phone charger", "comfortable shoes"}
	if wetConditions(conditions) {
		items = append(items, "umbrella", "rain jacket", "waterproof shoes")
	} else {
		items = append(items, "sunglasses", "sunscreen")
	}
	if days > 4 {
		items = append(items, "laundry bag")
	}

	return jsonResult(map[string]any{
		"conditions": conditions,
		"days":       days,
		"items":      items,
	})
}

// wetConditions reports whether the described weather favors indoor plans.
func wetConditions(conditions string) bool {
	c := strings.ToLower(conditions)
	return strings.Contains(c, "rain") || strings.Contains(c, "storm") || strings.Contains(c, "snow")
}
