package main

import (
	"fmt"
	"sort"
)

// EndpointDefinition is one resolved registry entry. Immutable after startup.
type EndpointDefinition struct {
	Name          string
	URL           string
	DefaultParams map[string]any
	Transform     transformFunc
}

// Registry maps logical endpoint names to their upstream definitions. It is
// built once from config and read-only afterwards.
type Registry struct {
	endpoints map[string]*EndpointDefinition
	names     []string
}

func newRegistry(configs map[string]*EndpointConfig) (*Registry, error) {
	endpoints := make(map[string]*EndpointDefinition, len(configs))
	names := make([]string, 0, len(configs))
	for name, cfg := range configs {
		if cfg == nil || cfg.URL == "" {
			return nil, fmt.Errorf("endpoint %q has no url", name)
		}
		transform, err := resolveTransform(cfg.Transform)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", name, err)
		}
		endpoints[name] = &EndpointDefinition{
			Name:          name,
			URL:           cfg.URL,
			DefaultParams: cfg.DefaultParams,
			Transform:     transform,
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return &Registry{endpoints: endpoints, names: names}, nil
}

// lookup resolves a logical endpoint name. A missing name is a normal outcome
// and is reported through ok, not an error.
func (r *Registry) lookup(name string) (*EndpointDefinition, bool) {
	def, ok := r.endpoints[name]
	return def, ok
}

// endpointNames returns all registered names in sorted order, for error
// payloads and the manifest.
func (r *Registry) endpointNames() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// mergeParams shallow-merges caller params over defaults. Caller wins on
// conflicting keys; neither input map is mutated.
func mergeParams(defaults, caller map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(caller))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range caller {
		merged[k] = v
	}
	return merged
}
