// Package weather is an MCP server reporting the current weather of a city
// from Open-Meteo.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/itchyny/gojq"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
)

var (
	locationQuery = mustCompile(`.results[0] | select(. != null) | {latitude, longitude}`)
	currentQuery  = mustCompile(`.current_weather`)
)

func mustCompile(expr string) *gojq.Code {
	q, err := gojq.Parse(expr)
	if err != nil {
		panic(fmt.Sprintf("weather: invalid jq expression %q: %v", expr, err))
	}
	code, err := gojq.Compile(q)
	if err != nil {
		panic(fmt.Sprintf("weather: compile %q: %v", expr, err))
	}
	return code
}

// Tool is the get_weather tool.
type Tool struct {
	GeocodingURL string
	ForecastURL  string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

func (t *Tool) httpClient() *http.Client {
	if t.HTTPClient != nil {
		return t.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (t *Tool) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func (t *Tool) Definition() mcp.Tool {
	return mcp.NewTool("get_weather",
		mcp.WithDescription("Get weather info for a city"),
		mcp.WithString("city", mcp.Required(), mcp.Description("Name of the city")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func (t *Tool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	city, err := req.RequireString("city")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := t.Lookup(ctx, city)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

// Lookup returns the current weather of city as JSON, or a not found
// message when the city cannot be geocoded.
func (t *Tool) Lookup(ctx context.Context, city string) (string, error) {
	t.logger().DebugContext(ctx, "getting weather", "city", city)

	geoURL := t.GeocodingURL
	if geoURL == "" {
		geoURL = DefaultGeocodingURL
	}
	geo, err := t.getJSON(ctx, geoURL, url.Values{"name": {city}, "count": {"1"}})
	if err != nil {
		return "", err
	}
	loc, ok := first(locationQuery, geo)
	if !ok {
		return fmt.Sprintf("City %s not found", city), nil
	}
	m, _ := loc.(map[string]any)
	lat, latOK := m["latitude"].(float64)
	lon, lonOK := m["longitude"].(float64)
	if !latOK || !lonOK {
		return fmt.Sprintf("City %s not found", city), nil
	}

	forecastURL := t.ForecastURL
	if forecastURL == "" {
		forecastURL = DefaultForecastURL
	}
	forecast, err := t.getJSON(ctx, forecastURL, url.Values{
		"latitude":         {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude":        {strconv.FormatFloat(lon, 'f', -1, 64)},
		"temperature_unit": {"fahrenheit"},
		"current_weather":  {"true"},
	})
	if err != nil {
		return "", err
	}
	current, ok := first(currentQuery, forecast)
	if !ok || current == nil {
		return "", fmt.Errorf("weather: no current weather for %s", city)
	}
	b, err := json.Marshal(current)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (t *Tool) getJSON(ctx context.Context, base string, params url.Values) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather: %s returned %s", base, resp.Status)
	}
	var v any
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("weather: decode response: %w", err)
	}
	return v, nil
}

// first returns the first value code yields for input.
func first(code *gojq.Code, input any) (any, bool) {
	iter := code.Run(input)
	v, ok := iter.Next()
	if !ok {
		return nil, false
	}
	if _, isErr := v.(error); isErr {
		return nil, false
	}
	return v, true
}

// NewServer returns an MCP server exposing t.
func NewServer(t *Tool, version string) *server.MCPServer {
	s := server.NewMCPServer("Weather", version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.AddTool(t.Definition(), t.Handle)
	return s
}
