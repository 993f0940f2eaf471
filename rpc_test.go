package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

const weatherBody = `{
	"latitude": 52.52,
	"longitude": 13.405,
	"timezone": "Europe/Berlin",
	"current_weather": {"temperature": 18.3, "windspeed": 7.5, "winddirection": 90, "weathercode": 2, "time": "2026-09-01T09:00"}
}`

type rpcFixture struct {
	adapter      *rpcAdapter
	geocodeCalls *atomic.Int64
	weatherQuery *atomic.Pointer[map[string]string]
}

func newRPCFixture(t *testing.T, geocodeBody string) *rpcFixture {
	t.Helper()
	fixture := &rpcFixture{
		geocodeCalls: &atomic.Int64{},
		weatherQuery: &atomic.Pointer[map[string]string]{},
	}

	weatherUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := map[string]string{}
		for key := range r.URL.Query() {
			query[key] = r.URL.Query().Get(key)
		}
		fixture.weatherQuery.Store(&query)
		jsonHandler(http.StatusOK, weatherBody)(w, r)
	}))
	t.Cleanup(weatherUpstream.Close)

	geocodeUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture.geocodeCalls.Add(1)
		jsonHandler(http.StatusOK, geocodeBody)(w, r)
	}))
	t.Cleanup(geocodeUpstream.Close)

	registry, err := newRegistry(map[string]*EndpointConfig{
		"getWeather": {URL: weatherUpstream.URL, Transform: "weather"},
	})
	if err != nil {
		t.Fatalf("newRegistry: %v", err)
	}
	invoker := newUpstreamInvoker("mcp-weather-server", "test")
	dispatcher := newDispatcher(registry, invoker)
	server := &ServerConfig{Name: "mcp-weather-server", Version: "test"}
	fixture.adapter = newRPCAdapter(dispatcher, newGeocoder(geocodeUpstream.URL, invoker), server)
	return fixture
}

func TestRPCInitializeEchoesID(t *testing.T) {
	fixture := newRPCFixture(t, `{"results":[]}`)

	resp := fixture.adapter.handle(context.Background(), &jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      float64(7),
		Method:  "initialize",
	})
	if resp.ID != float64(7) {
		t.Fatalf("id = %v, want 7", resp.ID)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected result map, got %T", resp.Result)
	}
	if result["protocolVersion"] != protocolVersion {
		t.Fatalf("protocolVersion = %v", result["protocolVersion"])
	}
	info, ok := result["serverInfo"].(mcp.Implementation)
	if !ok {
		t.Fatalf("expected serverInfo implementation, got %T", result["serverInfo"])
	}
	if info.Name != "mcp-weather-server" {
		t.Fatalf("serverInfo.name = %s", info.Name)
	}
}

func TestRPCToolsListContainsWeatherTool(t *testing.T) {
	fixture := newRPCFixture(t, `{"results":[]}`)

	resp := fixture.adapter.handle(context.Background(), &jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      float64(1),
		Method:  "tools/list",
	})
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected result map, got %T", resp.Result)
	}
	tools, ok := result["tools"].([]mcp.Tool)
	if !ok {
		t.Fatalf("expected tools slice, got %T", result["tools"])
	}
	if len(tools) != 1 || tools[0].Name != weatherToolName {
		t.Fatalf("expected single %s tool, got %+v", weatherToolName, tools)
	}
	if len(tools[0].InputSchema.Required) == 0 || tools[0].InputSchema.Required[0] != "location" {
		t.Fatalf("location must be required in the schema: %v", tools[0].InputSchema.Required)
	}
}

func TestRPCMethodNotFound(t *testing.T) {
	fixture := newRPCFixture(t, `{"results":[]}`)

	resp := fixture.adapter.handle(context.Background(), &jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      "req-9",
		Method:  "resources/list",
	})
	if resp.Error == nil || resp.Error.Code != rpcCodeMethodNotFound {
		t.Fatalf("expected -32601, got %+v", resp.Error)
	}
	if resp.ID != "req-9" {
		t.Fatalf("id = %v", resp.ID)
	}
	data, ok := resp.Error.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected error data, got %T", resp.Error.Data)
	}
	methods, ok := data["supportedMethods"].([]string)
	if !ok || len(methods) != 3 {
		t.Fatalf("expected the three supported methods, got %v", data["supportedMethods"])
	}
}

func TestRPCToolCallWithCoordinatesSkipsGeocoding(t *testing.T) {
	fixture := newRPCFixture(t, `{"results":[]}`)

	resp := fixture.adapter.handle(context.Background(), &jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      float64(2),
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"get_weather","arguments":{"latitude":1,"longitude":2}}`),
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if calls := fixture.geocodeCalls.Load(); calls != 0 {
		t.Fatalf("geocoding must be skipped with explicit coordinates, saw %d calls", calls)
	}
	query := fixture.weatherQuery.Load()
	if query == nil {
		t.Fatalf("weather upstream was not called")
	}
	if (*query)["latitude"] != "1" || (*query)["longitude"] != "2" {
		t.Fatalf("explicit coordinates not forwarded: %v", *query)
	}
}

func TestRPCToolCallGeocodesLocation(t *testing.T) {
	fixture := newRPCFixture(t, `{"results":[{"latitude":52.52,"longitude":13.405,"name":"Berlin","country":"Germany"}]}`)

	resp := fixture.adapter.handle(context.Background(), &jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      float64(3),
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"get_weather","arguments":{"location":"Berlin"}}`),
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if calls := fixture.geocodeCalls.Load(); calls != 1 {
		t.Fatalf("expected exactly one geocoding call, saw %d", calls)
	}
	query := fixture.weatherQuery.Load()
	if query == nil {
		t.Fatalf("weather upstream was not called")
	}
	if (*query)["latitude"] != "52.52" || (*query)["longitude"] != "13.405" {
		t.Fatalf("resolved coordinates not forwarded: %v", *query)
	}
	if (*query)["location_name"] != "Berlin, Germany" {
		t.Fatalf("location_name not forwarded: %v", *query)
	}

	result, ok := resp.Result.(*mcp.CallToolResult)
	if !ok {
		t.Fatalf("expected call tool result, got %T", resp.Result)
	}
	data, ok := result.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("expected structured content map, got %T", result.StructuredContent)
	}
	current, ok := data["current"].(map[string]any)
	if !ok || current["temperature"] != 18.3 {
		t.Fatalf("structured content missing current weather: %v", data)
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	if !strings.Contains(text.Text, "Berlin, Germany") {
		t.Fatalf("summary should name the resolved place: %q", text.Text)
	}
}

func TestRPCToolCallLocationNotFound(t *testing.T) {
	fixture := newRPCFixture(t, `{"results":[]}`)

	resp := fixture.adapter.handle(context.Background(), &jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      float64(4),
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"get_weather","arguments":{"location":"Nowhere-at-all"}}`),
	})
	if resp.Error == nil || resp.Error.Code != rpcCodeInvalidParams {
		t.Fatalf("expected -32602 for unresolvable location, got %+v", resp.Error)
	}
}

func TestRPCToolCallMissingArguments(t *testing.T) {
	fixture := newRPCFixture(t, `{"results":[]}`)

	resp := fixture.adapter.handle(context.Background(), &jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      float64(5),
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"get_weather","arguments":{}}`),
	})
	if resp.Error == nil || resp.Error.Code != rpcCodeInvalidParams {
		t.Fatalf("expected -32602 for missing arguments, got %+v", resp.Error)
	}
	if fixture.geocodeCalls.Load() != 0 {
		t.Fatalf("no geocoding call expected for missing arguments")
	}
}

func TestRPCToolCallUnknownTool(t *testing.T) {
	fixture := newRPCFixture(t, `{"results":[]}`)

	resp := fixture.adapter.handle(context.Background(), &jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      float64(6),
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"get_stocks","arguments":{"location":"Berlin"}}`),
	})
	if resp.Error == nil || resp.Error.Code != rpcCodeInvalidParams {
		t.Fatalf("expected -32602 for unknown tool, got %+v", resp.Error)
	}
}
