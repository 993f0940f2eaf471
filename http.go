package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"
)

// ===== infra helpers =====

type MiddlewareFunc func(http.Handler) http.Handler

func chainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}

func newAuthMiddleware(tokens []string) MiddlewareFunc {
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		tokenSet[token] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(tokens) != 0 {
				token := r.Header.Get("Authorization")
				token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
				if token == "" {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				if _, ok := tokenSet[token]; !ok {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func loggerMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("<%s> %s %s", prefix, r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

func recoverMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Printf("<%s> panic: %v", prefix, err)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func requestIDMiddleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set("X-Request-Id", id)
			next.ServeHTTP(w, r)
		})
	}
}

// build a clean route like "/base/name" with leading slash
func routeFor(basePath, name string) string {
	route := path.Join(basePath, name)
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type readinessSnapshot struct {
	ReadyAt       time.Time
	EndpointCount int
}

// ===== bridge server =====

// bridgeServer wires the dispatcher and both protocol adapters behind one
// HTTP surface.
type bridgeServer struct {
	config     *Config
	registry   *Registry
	invoker    *upstreamInvoker
	dispatcher *Dispatcher
	rpc        *rpcAdapter
	baseURL    *url.URL
	ready      atomic.Pointer[readinessSnapshot]
}

func newBridgeServer(config *Config) (*bridgeServer, error) {
	registry, err := newRegistry(config.Endpoints)
	if err != nil {
		return nil, err
	}
	baseURL := &url.URL{}
	if config.Server.BaseURL != "" {
		baseURL, err = url.Parse(config.Server.BaseURL)
		if err != nil {
			return nil, err
		}
	}
	invoker := newUpstreamInvoker(config.Server.Name, config.Server.Version)
	dispatcher := newDispatcher(registry, invoker)
	geo := newGeocoder(config.Geocoding.URL, invoker)
	return &bridgeServer{
		config:     config,
		registry:   registry,
		invoker:    invoker,
		dispatcher: dispatcher,
		rpc:        newRPCAdapter(dispatcher, geo, config.Server),
		baseURL:    baseURL,
	}, nil
}

func (s *bridgeServer) handler() http.Handler {
	httpMux := http.NewServeMux()

	mws := []MiddlewareFunc{recoverMiddleware("mcp"), requestIDMiddleware()}
	var options ServerOptions
	if s.config.Options != nil {
		options = *s.config.Options
	}
	if options.LogEnabled.OrElse(true) {
		mws = append(mws, loggerMiddleware("mcp"))
	}
	if len(options.AuthTokens) > 0 {
		mws = append(mws, newAuthMiddleware(options.AuthTokens))
	}

	mcpRoute := routeFor(s.baseURL.Path, "mcp")
	httpMux.Handle(mcpRoute, chainMiddleware(http.HandlerFunc(s.handleMCP), mws...))
	httpMux.Handle("/.well-known/mcp/manifest.json", chainMiddleware(http.HandlerFunc(s.handleManifest), recoverMiddleware("manifest")))
	httpMux.Handle("/healthz", chainMiddleware(http.HandlerFunc(s.handleHealthz), recoverMiddleware("healthz")))
	return httpMux
}

// ===== /mcp route =====

func (s *bridgeServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		body = bytes.TrimSpace(body)
		if len(body) == 0 {
			body = []byte(`{}`)
		}
		if body[0] == '[' {
			s.handleBatch(w, body)
			return
		}
		if isJSONRPC(body) {
			s.handleRPC(w, r, body)
			return
		}
		s.handleLegacy(w, r, body)

	case http.MethodHead:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("mcp-session-id", uuid.New().String())
		w.WriteHeader(http.StatusOK)

	case http.MethodOptions:
		w.Header().Set("Allow", "HEAD, POST, OPTIONS")
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "HEAD, POST, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// isJSONRPC detects the JSON-RPC dialect by envelope shape; everything else
// on the route is treated as a legacy context request.
func isJSONRPC(body []byte) bool {
	var probe struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.JSONRPC == "2.0" && probe.Method != ""
}

// batch requests are declined per entry rather than dropped
func (s *bridgeServer) handleBatch(w http.ResponseWriter, body []byte) {
	var batch []jsonrpcRequest
	if err := json.Unmarshal(body, &batch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "invalid batch request",
			"details": err.Error(),
		})
		return
	}
	out := make([]jsonrpcResponse, 0, len(batch))
	for _, req := range batch {
		out = append(out, rpcError(req.ID, -32600, "Batch requests not supported"))
	}
	writeJSON(w, http.StatusOK, out)
}

// JSON-RPC errors are payload-level: the HTTP status is always 200 here.
func (s *bridgeServer) handleRPC(w http.ResponseWriter, r *http.Request, body []byte) {
	var req jsonrpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, rpcErrorData(nil, -32700, "Parse error", err.Error()))
		return
	}
	if req.ID == nil {
		// notification, nothing to answer
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, s.rpc.handle(r.Context(), &req))
}

func (s *bridgeServer) handleLegacy(w http.ResponseWriter, r *http.Request, body []byte) {
	var mcpCtx MCPContext
	if err := json.Unmarshal(body, &mcpCtx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}
	updated, dispErr := s.dispatcher.dispatch(r.Context(), &mcpCtx)
	if dispErr != nil {
		s.writeLegacyError(w, dispErr)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Validation-phase failures short-circuit with a bare error body: no endpoint
// was resolved, so there is nothing meaningful to record. Once the upstream
// phase is reached the dispatcher has appended a failure record, and that
// mutated context is the error response body.
func (s *bridgeServer) writeLegacyError(w http.ResponseWriter, dispErr *dispatchError) {
	status := dispErr.Kind.httpStatus()
	if dispErr.Context != nil {
		writeJSON(w, status, dispErr.Context)
		return
	}
	payload := map[string]any{"error": dispErr.Message}
	if dispErr.Details != nil {
		payload["details"] = dispErr.Details
	}
	writeJSON(w, status, payload)
}

// ===== auxiliary routes =====

func (s *bridgeServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.ready.Load()
	if snapshot == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"state": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":         "ready",
		"readyAt":       snapshot.ReadyAt.Format(time.RFC3339Nano),
		"endpointCount": snapshot.EndpointCount,
	})
}

func (s *bridgeServer) handleManifest(w http.ResponseWriter, r *http.Request) {
	doc := buildManifestDocument(s.config.Server, s.baseURL, r, []mcp.Tool{weatherTool()}, s.registry.endpointNames())
	writeJSON(w, http.StatusOK, doc)
}

func buildManifestDocument(server *ServerConfig, baseURL *url.URL, r *http.Request, tools []mcp.Tool, endpointNames []string) map[string]any {
	endpointPath := routeFor(baseURL.Path, "mcp")

	requestScheme := "https"
	if r != nil && r.TLS == nil {
		requestScheme = "http"
		if baseURL.Scheme != "" {
			requestScheme = baseURL.Scheme
		}
	} else if baseURL.Scheme != "" {
		requestScheme = baseURL.Scheme
	}
	requestHost := baseURL.Host
	if r != nil && r.Host != "" {
		requestHost = r.Host
	}
	endpointURL := (&url.URL{Scheme: requestScheme, Host: requestHost, Path: endpointPath}).String()

	return map[string]any{
		"name":        server.Name,
		"version":     server.Version,
		"tools":       tools,
		"endpoints":   endpointNames,
		"endpoint":    endpointPath,
		"endpointURL": endpointURL,
	}
}

// ===== startup probe =====

// probeEndpoints checks each configured upstream once at boot so a
// misconfigured URL shows up in the log before the first request does.
// Failures are tolerated unless the endpoint opts into panicIfUnreachable.
func (s *bridgeServer) probeEndpoints(ctx context.Context) error {
	var eg errgroup.Group
	for name, cfg := range s.config.Endpoints {
		if !cfg.Options.ProbeOnStart.OrElse(true) {
			continue
		}
		def, ok := s.registry.lookup(name)
		if !ok {
			continue
		}
		endpointCfg := cfg
		eg.Go(func() error {
			if _, err := s.invoker.invoke(ctx, def.URL, def.DefaultParams, nil, primaryTimeout); err != nil {
				log.Printf("<%s> probe failed: %v", def.Name, err)
				if endpointCfg.Options.PanicIfUnreachable.OrElse(false) {
					return err
				}
				return nil
			}
			log.Printf("<%s> reachable at %s", def.Name, def.URL)
			return nil
		})
	}
	return eg.Wait()
}

// ===== start & shutdown =====

func startHTTPServer(config *Config) error {
	server, err := newBridgeServer(config)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := server.probeEndpoints(ctx); err != nil {
			log.Fatalf("Endpoint probe failed: %v", err)
		}
		server.ready.Store(&readinessSnapshot{
			ReadyAt:       time.Now().UTC(),
			EndpointCount: len(config.Endpoints),
		})
		log.Printf("Ready: endpoints=%d", len(config.Endpoints))
	}()

	httpServer := &http.Server{
		Addr:    config.Server.Addr,
		Handler: server.handler(),
	}

	go func() {
		log.Printf("%s %s listening on %s", config.Server.Name, config.Server.Version, config.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("Shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
