package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	protocolVersion     = "2024-11-05"
	weatherToolName     = "get_weather"
	weatherEndpointName = "getWeather"
)

var supportedMethods = []string{"initialize", "tools/list", "tools/call"}

// ===== JSON-RPC envelope =====

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonrpcError `json:"error,omitempty"`
}

func rpcOK(id any, result any) jsonrpcResponse {
	return jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

func rpcError(id any, code int, msg string) jsonrpcResponse {
	return jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonrpcError{Code: code, Message: msg},
	}
}

func rpcErrorData(id any, code int, msg string, data any) jsonrpcResponse {
	return jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonrpcError{Code: code, Message: msg, Data: data},
	}
}

// ===== tool catalog =====

func weatherTool() mcp.Tool {
	return mcp.NewTool(weatherToolName,
		mcp.WithDescription("Fetch current weather and forecast for a location via the configured weather provider."),
		mcp.WithString("location",
			mcp.Required(),
			mcp.Description("Free-text place name, resolved to coordinates before the fetch."),
		),
		mcp.WithNumber("latitude",
			mcp.Description("Latitude in decimal degrees. Together with longitude, skips geocoding."),
		),
		mcp.WithNumber("longitude",
			mcp.Description("Longitude in decimal degrees. Together with latitude, skips geocoding."),
		),
	)
}

// ===== adapter =====

// rpcAdapter translates the three-method JSON-RPC dialect onto the same
// dispatcher the legacy path uses. Every method is a total function over the
// dispatch result; nothing falls through.
type rpcAdapter struct {
	dispatcher *Dispatcher
	geocoder   *geocoder
	server     *ServerConfig
}

func newRPCAdapter(dispatcher *Dispatcher, geocoder *geocoder, server *ServerConfig) *rpcAdapter {
	return &rpcAdapter{dispatcher: dispatcher, geocoder: geocoder, server: server}
}

func (a *rpcAdapter) handle(ctx context.Context, req *jsonrpcRequest) jsonrpcResponse {
	switch req.Method {
	case "initialize":
		return rpcOK(req.ID, a.initializeResult())
	case "tools/list":
		return rpcOK(req.ID, map[string]any{"tools": []mcp.Tool{weatherTool()}})
	case "tools/call":
		return a.handleToolCall(ctx, req)
	case "ping":
		return rpcOK(req.ID, map[string]any{})
	default:
		log.Printf("<rpc> unsupported method=%s", req.Method)
		return rpcErrorData(req.ID, rpcCodeMethodNotFound, "Method not found: "+req.Method,
			map[string]any{"supportedMethods": supportedMethods})
	}
}

func (a *rpcAdapter) initializeResult() map[string]any {
	info := mcp.Implementation{Name: a.server.Name, Version: a.server.Version}
	return map[string]any{
		"protocolVersion": protocolVersion,
		"serverInfo":      info,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
	}
}

func (a *rpcAdapter) handleToolCall(ctx context.Context, req *jsonrpcRequest) jsonrpcResponse {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments,omitempty"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return rpcErrorData(req.ID, rpcCodeInvalidParams, "Invalid tool call params", err.Error())
		}
	}
	if params.Name == "" {
		return rpcError(req.ID, rpcCodeInvalidParams, "Missing tool name")
	}
	if params.Name != weatherToolName {
		return rpcErrorData(req.ID, rpcCodeInvalidParams, "Unknown tool: "+params.Name,
			map[string]any{"availableTools": []string{weatherToolName}})
	}

	queryParams, errResp := a.resolveWeatherParams(ctx, req.ID, params.Arguments)
	if errResp != nil {
		return *errResp
	}

	mcpCtx := &MCPContext{
		Input: ContextInput{
			EndpointName: weatherEndpointName,
			QueryParams:  queryParams,
		},
		Metadata: map[string]any{},
	}
	updated, dispErr := a.dispatcher.dispatch(ctx, mcpCtx)
	if dispErr != nil {
		return rpcErrorData(req.ID, dispErr.Kind.rpcCode(), dispErr.Message, dispErr.Details)
	}

	data := updated.Tools[len(updated.Tools)-1].Output.Data
	result := mcp.NewToolResultText(summarizeWeather(data, queryParams))
	result.StructuredContent = data
	return rpcOK(req.ID, result)
}

// resolveWeatherParams applies the geocoding pre-step. Explicit coordinates
// bypass it entirely; otherwise the free-text location is resolved to one
// result or the call fails with invalid params.
func (a *rpcAdapter) resolveWeatherParams(ctx context.Context, id any, args map[string]any) (map[string]any, *jsonrpcResponse) {
	latitude, latOK := numberArg(args["latitude"])
	longitude, lonOK := numberArg(args["longitude"])
	if latOK && lonOK {
		return map[string]any{"latitude": latitude, "longitude": longitude}, nil
	}

	location, _ := args["location"].(string)
	if location == "" {
		resp := rpcError(id, rpcCodeInvalidParams, "location or latitude+longitude is required")
		return nil, &resp
	}
	resolved, err := a.geocoder.resolve(ctx, location)
	if err != nil {
		if errors.Is(err, errLocationNotFound) {
			resp := rpcError(id, rpcCodeInvalidParams, err.Error())
			return nil, &resp
		}
		resp := rpcError(id, rpcCodeInternalError, err.Error())
		return nil, &resp
	}
	return map[string]any{
		"latitude":      resolved.Latitude,
		"longitude":     resolved.Longitude,
		"location_name": resolved.DisplayName,
	}, nil
}

func numberArg(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	default:
		return 0, false
	}
}

// summarizeWeather renders a one-line text block for the transformed weather
// payload, falling back to pretty-printed JSON for anything unexpected.
func summarizeWeather(data any, params map[string]any) string {
	payload, ok := data.(map[string]any)
	if !ok {
		return prettyJSON(data)
	}
	current, ok := payload["current"].(map[string]any)
	if !ok {
		return prettyJSON(data)
	}
	place := "the requested location"
	if name, _ := params["location_name"].(string); name != "" {
		place = name
	} else if location, ok := payload["location"].(map[string]any); ok {
		lat, latOK := location["latitude"].(float64)
		lon, lonOK := location["longitude"].(float64)
		if latOK && lonOK {
			place = fmt.Sprintf("%.4f, %.4f", lat, lon)
		}
	}
	temperature, tempOK := current["temperature"].(float64)
	windspeed, windOK := current["windspeed"].(float64)
	if !tempOK || !windOK {
		return prettyJSON(data)
	}
	return fmt.Sprintf("Current weather for %s: %.1f°C, wind %.1f km/h", place, temperature, windspeed)
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
