package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// ===== error taxonomy =====

type errorKind int

const (
	kindInvalidRequest errorKind = iota
	kindUnknownEndpoint
	kindUpstreamTimeout
	kindUpstreamError
	kindLocationNotFound
	kindInternal
)

// Application-defined JSON-RPC codes for upstream failures; the standard
// codes cover the rest.
const (
	rpcCodeMethodNotFound  = -32601
	rpcCodeInvalidParams   = -32602
	rpcCodeInternalError   = -32603
	rpcCodeUpstreamTimeout = -32001
	rpcCodeUpstreamError   = -32002
)

func (k errorKind) httpStatus() int {
	switch k {
	case kindInvalidRequest, kindUnknownEndpoint, kindLocationNotFound:
		return http.StatusBadRequest
	case kindUpstreamTimeout:
		return http.StatusRequestTimeout
	case kindUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (k errorKind) rpcCode() int {
	switch k {
	case kindInvalidRequest, kindUnknownEndpoint, kindLocationNotFound:
		return rpcCodeInvalidParams
	case kindUpstreamTimeout:
		return rpcCodeUpstreamTimeout
	case kindUpstreamError:
		return rpcCodeUpstreamError
	default:
		return rpcCodeInternalError
	}
}

// dispatchError is the protocol-neutral failure result. Context is non-nil
// when the failure happened after endpoint resolution: it then carries the
// caller's context with a failure record appended, for adapters that return
// the mutated context alongside the error.
type dispatchError struct {
	Kind    errorKind
	Message string
	Details any
	Context *MCPContext
}

func (e *dispatchError) Error() string { return e.Message }

// ===== dispatcher =====

// Dispatcher drives one request through validate, resolve, invoke, transform
// and record. It holds no per-request state; concurrent dispatches are
// independent.
type Dispatcher struct {
	registry *Registry
	invoker  *upstreamInvoker
	timeout  time.Duration
}

func newDispatcher(registry *Registry, invoker *upstreamInvoker) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		invoker:  invoker,
		timeout:  primaryTimeout,
	}
}

// dispatch returns the updated context on success, or a dispatchError with the
// failure mapped onto the taxonomy. It never lets a raw error escape.
func (d *Dispatcher) dispatch(ctx context.Context, mcpCtx *MCPContext) (*MCPContext, *dispatchError) {
	// Validating
	if mcpCtx == nil || strings.TrimSpace(mcpCtx.Input.EndpointName) == "" {
		return nil, &dispatchError{
			Kind:    kindInvalidRequest,
			Message: "input.endpointName is required",
		}
	}
	name := mcpCtx.Input.EndpointName

	// Resolving
	def, ok := d.registry.lookup(name)
	if !ok {
		log.Printf("<dispatch> unknown endpoint %q", name)
		return nil, &dispatchError{
			Kind:    kindUnknownEndpoint,
			Message: fmt.Sprintf("unknown endpoint %q", name),
			Details: map[string]any{"validEndpoints": d.registry.endpointNames()},
		}
	}

	// Invoking
	merged := mergeParams(def.DefaultParams, mcpCtx.Input.QueryParams)
	raw, err := d.invoker.invoke(ctx, def.URL, merged, mcpCtx.Input.AuthHeaders, d.timeout)
	if err != nil {
		return nil, d.invokeError(mcpCtx, def, merged, err)
	}

	// Transforming
	data := def.Transform(raw)

	// Recording
	updated, err := buildSuccess(mcpCtx, data, name, merged)
	if err != nil {
		log.Printf("<dispatch> endpoint=%s failed to record result: %v", name, err)
		message := fmt.Sprintf("failed to serialize response data: %v", err)
		return nil, &dispatchError{
			Kind:    kindInternal,
			Message: message,
			Context: buildFailure(mcpCtx, message, name, merged),
		}
	}
	log.Printf("<dispatch> endpoint=%s ok tools=%d", name, len(updated.Tools))
	return updated, nil
}

func (d *Dispatcher) invokeError(mcpCtx *MCPContext, def *EndpointDefinition, merged map[string]any, err error) *dispatchError {
	kind := kindInternal
	var details any
	var httpErr *upstreamHTTPError
	switch {
	case errors.Is(err, errInvokeTimeout):
		kind = kindUpstreamTimeout
	case errors.As(err, &httpErr):
		kind = kindUpstreamError
		details = map[string]any{"status": httpErr.Status, "statusText": httpErr.StatusText}
	}
	log.Printf("<dispatch> endpoint=%s upstream failure: %v", def.Name, err)
	return &dispatchError{
		Kind:    kind,
		Message: err.Error(),
		Details: details,
		Context: buildFailure(mcpCtx, err.Error(), def.Name, merged),
	}
}
