package main

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	config, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if config.Server == nil || config.Server.Addr != ":8080" {
		t.Fatalf("unexpected server config: %+v", config.Server)
	}
	for _, name := range []string{"getWeather", "getCurrentWeather", "getUsers", "getPosts"} {
		if _, ok := config.Endpoints[name]; !ok {
			t.Fatalf("default endpoint %q missing", name)
		}
	}
	if config.Geocoding == nil || config.Geocoding.URL == "" {
		t.Fatalf("geocoding config missing")
	}
}

func TestFillConfigDefaults(t *testing.T) {
	config := fillConfigDefaults(&Config{
		Server: &ServerConfig{Name: "custom"},
		Endpoints: map[string]*EndpointConfig{
			"getPosts": {URL: "https://example.com/posts"},
		},
	})
	if config.Server.Addr != ":8080" {
		t.Fatalf("addr default not applied: %s", config.Server.Addr)
	}
	if config.Server.Name != "custom" {
		t.Fatalf("explicit name overwritten: %s", config.Server.Name)
	}
	if len(config.Endpoints) != 1 {
		t.Fatalf("explicit endpoints must not be replaced: %d", len(config.Endpoints))
	}
	if config.Geocoding.URL != defaultGeocodingURL {
		t.Fatalf("geocoding default not applied: %s", config.Geocoding.URL)
	}
}

func TestDefaultEndpointTransformsResolve(t *testing.T) {
	if _, err := newRegistry(defaultEndpoints()); err != nil {
		t.Fatalf("default endpoints must build a registry: %v", err)
	}
}
