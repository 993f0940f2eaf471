package main

import (
	"encoding/json"
	"time"
)

// toolCallName identifies the one operation kind this server records.
const toolCallName = "fetch_endpoint"

// Server-maintained metadata keys. Every other metadata key belongs to the
// caller and is passed through untouched.
const (
	metaToolCount    = "tool_count"
	metaLastUpdated  = "last_updated"
	metaLastEndpoint = "last_endpoint"
	metaLastError    = "last_error"
)

type ContextInput struct {
	EndpointName string            `json:"endpointName"`
	QueryParams  map[string]any    `json:"queryParams,omitempty"`
	AuthHeaders  map[string]string `json:"authHeaders,omitempty"`
}

// MCPContext is the caller-visible envelope threaded through a request. The
// server appends exactly one tool call record per request; chaining across
// requests is the caller's job.
type MCPContext struct {
	Input    ContextInput     `json:"input"`
	Tools    []ToolCallRecord `json:"tools"`
	Metadata map[string]any   `json:"metadata"`
}

type ToolCallInput struct {
	Endpoint string         `json:"endpoint"`
	Params   map[string]any `json:"params,omitempty"`
}

type ToolCallMeta struct {
	Endpoint  string `json:"endpoint"`
	Timestamp string `json:"timestamp"`
	DataSize  int    `json:"dataSize,omitempty"`
}

type ToolCallOutput struct {
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    string       `json:"error,omitempty"`
	Metadata ToolCallMeta `json:"metadata"`
}

// ToolCallRecord is immutable once appended to MCPContext.Tools.
type ToolCallRecord struct {
	Name      string         `json:"name"`
	Input     ToolCallInput  `json:"input"`
	Output    ToolCallOutput `json:"output"`
	Timestamp string         `json:"timestamp"`
}

// buildSuccess returns a copy of mcpCtx with a success record appended and the
// summary metadata updated. The original context is never mutated. A data
// value that cannot be serialized is a hard failure, surfaced to the caller.
func buildSuccess(mcpCtx *MCPContext, data any, endpoint string, params map[string]any) (*MCPContext, error) {
	serialized, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	record := ToolCallRecord{
		Name:      toolCallName,
		Input:     ToolCallInput{Endpoint: endpoint, Params: params},
		Output: ToolCallOutput{
			Success:  true,
			Data:     data,
			Metadata: ToolCallMeta{Endpoint: endpoint, Timestamp: now, DataSize: len(serialized)},
		},
		Timestamp: now,
	}
	out := appendRecord(mcpCtx, record)
	out.Metadata[metaLastEndpoint] = endpoint
	return out, nil
}

// buildFailure is the counterpart for a failed upstream call. It additionally
// sets last_error so chained callers can see what went wrong without digging
// through the records.
func buildFailure(mcpCtx *MCPContext, errorMessage, endpoint string, params map[string]any) *MCPContext {
	now := time.Now().UTC().Format(time.RFC3339)
	record := ToolCallRecord{
		Name:      toolCallName,
		Input:     ToolCallInput{Endpoint: endpoint, Params: params},
		Output: ToolCallOutput{
			Success:  false,
			Error:    errorMessage,
			Metadata: ToolCallMeta{Endpoint: endpoint, Timestamp: now},
		},
		Timestamp: now,
	}
	out := appendRecord(mcpCtx, record)
	out.Metadata[metaLastEndpoint] = endpoint
	out.Metadata[metaLastError] = errorMessage
	return out
}

// appendRecord copies the context, appends one record, and refreshes the
// invariant metadata (tool_count == len(tools), last_updated).
func appendRecord(mcpCtx *MCPContext, record ToolCallRecord) *MCPContext {
	tools := make([]ToolCallRecord, 0, len(mcpCtx.Tools)+1)
	tools = append(tools, mcpCtx.Tools...)
	tools = append(tools, record)

	metadata := make(map[string]any, len(mcpCtx.Metadata)+4)
	for k, v := range mcpCtx.Metadata {
		metadata[k] = v
	}
	metadata[metaToolCount] = len(tools)
	metadata[metaLastUpdated] = record.Timestamp

	return &MCPContext{
		Input:    mcpCtx.Input,
		Tools:    tools,
		Metadata: metadata,
	}
}
