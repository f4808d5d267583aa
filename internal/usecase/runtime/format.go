package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"agentnet/internal/domain"
)

// formatResult renders a normalized capability result as the textual answer
// an agent returns. Unknown capabilities fall back to the canonical text
// field, then to compact JSON of the field set.
func formatResult(capability string, result *domain.CapabilityResult) string {
	switch capability {
	case "get_current_weather":
		return formatCurrentWeather(result.Fields)
	case "get_weather_forecast":
		return formatForecast(result.Fields)
	case "get_weather_alert":
		return formatAlerts(result.Fields)
	case "plan_itinerary":
		return formatItinerary(result.Fields)
	case "render_weather_map":
		if m, ok := result.Fields["map"].(string); ok {
			return m
		}
	case "packing_list":
		return formatPackingList(result.Fields)
	}

	if text := result.Text(); text != "" {
		return text
	}
	data, err := json.Marshal(result.Fields)
	if err != nil {
		return fmt.Sprintf("%v", result.Fields)
	}
	return string(data)
}

func formatCurrentWeather(fields map[string]any) string {
	location := stringField(fields, "location", "the requested location")
	unit := "celsius"
	if u, ok := fields["temperature_unit"].(string); ok {
		unit = u
	}
	return fmt.Sprintf("Current weather in %s: %v, %v degrees %s (humidity %v%%, wind %v %v)",
		location,
		fields["condition"],
		fields["temperature"], unit,
		fields["humidity"],
		fields["wind_speed"], stringField(fields, "wind_unit", "km/h"))
}

func formatForecast(fields map[string]any) string {
	location := stringField(fields, "location", "the requested location")
	entries, _ := fields["forecast"].([]any)

	var b strings.Builder
	fmt.Fprintf(&b, "Weather forecast for %s:\n", location)
	for _, e := range entries {
		day, ok := e.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%v: %v, high %v, low %v, precipitation chance %v%%\n",
			day["date"], day["condition"],
			day["temperature_high"], day["temperature_low"],
			day["precipitation_chance"])
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatAlerts(fields map[string]any) string {
	location := stringField(fields, "location", "the requested location")
	alerts, _ := fields["alerts"].([]any)
	if len(alerts) == 0 {
		return fmt.Sprintf("No active weather alerts for %s.", location)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active weather alerts for %s:\n", location)
	for _, a := range alerts {
		alert, ok := a.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%v (%v): %v\n", alert["type"], alert["severity"], alert["description"])
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatItinerary(fields map[string]any) string {
	location := stringField(fields, "location", "your destination")
	entries, _ := fields["itinerary"].([]any)

	var b strings.Builder
	fmt.Fprintf(&b, "Suggested itinerary for %s:\n", location)
	for _, e := range entries {
		day, ok := e.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "Day %v: %v\n", day["day"], day["activity"])
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPackingList(fields map[string]any) string {
	items, _ := fields["items"].([]any)
	if len(items) == 0 {
		return "Nothing special to pack."
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%v", item))
	}
	return "Packing list: " + strings.Join(parts, ", ")
}

func stringField(fields map[string]any, key, fallback string) string {
	if s, ok := fields[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
