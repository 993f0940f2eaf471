package main

import (
	"fmt"
	"strings"

	"github.com/TBXark/optional-go"
	"github.com/go-sphere/confstore"
	"github.com/go-sphere/confstore/codec"
	"github.com/go-sphere/confstore/provider"
	"github.com/go-sphere/confstore/provider/file"
	confhttp "github.com/go-sphere/confstore/provider/http"
)

type ServerConfig struct {
	Addr    string `json:"addr"`
	Name    string `json:"name"`
	Version string `json:"version"`
	BaseURL string `json:"baseURL,omitempty"`
}

type ServerOptions struct {
	LogEnabled optional.Field[bool] `json:"logEnabled,omitempty"`
	AuthTokens []string             `json:"authTokens,omitempty"`
}

type EndpointOptions struct {
	ProbeOnStart       optional.Field[bool] `json:"probeOnStart,omitempty"`
	PanicIfUnreachable optional.Field[bool] `json:"panicIfUnreachable,omitempty"`
}

// EndpointConfig describes one upstream endpoint: where it lives, which
// parameters it gets when the caller supplies none, and the name of the
// transform applied to its raw payload ("" means passthrough).
type EndpointConfig struct {
	URL           string          `json:"url"`
	DefaultParams map[string]any  `json:"defaultParams,omitempty"`
	Transform     string          `json:"transform,omitempty"`
	Options       EndpointOptions `json:"options,omitempty"`
}

type GeocodingConfig struct {
	URL string `json:"url"`
}

type Config struct {
	Server    *ServerConfig              `json:"server"`
	Options   *ServerOptions             `json:"options,omitempty"`
	Endpoints map[string]*EndpointConfig `json:"endpoints"`
	Geocoding *GeocodingConfig           `json:"geocoding,omitempty"`
}

const (
	defaultWeatherURL   = "https://api.open-meteo.com/v1/forecast"
	defaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	defaultUsersURL     = "https://jsonplaceholder.typicode.com/users"
	defaultPostsURL     = "https://jsonplaceholder.typicode.com/posts"
)

func defaultEndpoints() map[string]*EndpointConfig {
	return map[string]*EndpointConfig{
		"getWeather": {
			URL: defaultWeatherURL,
			DefaultParams: map[string]any{
				"latitude":        40.7128,
				"longitude":       -74.006,
				"current_weather": true,
				"daily":           "temperature_2m_max,temperature_2m_min,weathercode",
				"forecast_days":   7,
				"timezone":        "auto",
			},
			Transform: "weather",
		},
		"getCurrentWeather": {
			URL: defaultWeatherURL,
			DefaultParams: map[string]any{
				"latitude":        40.7128,
				"longitude":       -74.006,
				"current_weather": true,
				"timezone":        "auto",
			},
			Transform: "weather",
		},
		"getUsers": {
			URL:       defaultUsersURL,
			Transform: "users",
		},
		"getPosts": {
			URL: defaultPostsURL,
			DefaultParams: map[string]any{
				"_limit": 10,
			},
		},
	}
}

func defaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Addr:    ":8080",
			Name:    "mcp-weather-server",
			Version: BuildVersion,
		},
		Endpoints: defaultEndpoints(),
		Geocoding: &GeocodingConfig{URL: defaultGeocodingURL},
	}
}

// loadConfig reads a JSON config from a local path or http(s) URL. An empty
// path yields the built-in defaults so the server can run unconfigured.
func loadConfig(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return defaultConfig(), nil
	}
	pathProvider := provider.NewSelect(path,
		provider.If(confhttp.IsRemoteURL, func(s string) provider.Provider { return confhttp.New(s) }),
		provider.If(file.IsLocalPath, func(s string) provider.Provider { return file.New(s) }),
	)
	config, err := confstore.Load[Config](pathProvider, codec.JsonCodec())
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return fillConfigDefaults(config), nil
}

func fillConfigDefaults(config *Config) *Config {
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.Name == "" {
		config.Server.Name = "mcp-weather-server"
	}
	if config.Server.Version == "" {
		config.Server.Version = BuildVersion
	}
	if len(config.Endpoints) == 0 {
		config.Endpoints = defaultEndpoints()
	}
	if config.Geocoding == nil || config.Geocoding.URL == "" {
		config.Geocoding = &GeocodingConfig{URL: defaultGeocodingURL}
	}
	return config
}
