package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// errLocationNotFound marks a geocoding lookup that succeeded at the
// transport level but matched nothing. Callers map it to invalid-params, not
// to an internal error.
var errLocationNotFound = errors.New("location not found")

type geoResult struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
}

// geocoder resolves a free-text place name to coordinates via a search API
// shaped like Open-Meteo's geocoding service.
type geocoder struct {
	url     string
	invoker *upstreamInvoker
	timeout time.Duration
}

func newGeocoder(url string, invoker *upstreamInvoker) *geocoder {
	return &geocoder{url: url, invoker: invoker, timeout: geocodingTimeout}
}

// resolve asks for exactly one result. Zero results is a normal condition
// reported as errLocationNotFound; anything else is a transport failure.
func (g *geocoder) resolve(ctx context.Context, location string) (*geoResult, error) {
	params := map[string]any{
		"name":   location,
		"count":  1,
		"format": "json",
	}
	raw, err := g.invoker.invoke(ctx, g.url, params, nil, g.timeout)
	if err != nil {
		return nil, fmt.Errorf("geocoding lookup failed: %w", err)
	}
	payload, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("geocoding returned unexpected payload type %T", raw)
	}
	results, _ := payload["results"].([]any)
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %q", errLocationNotFound, location)
	}
	first, ok := results[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("geocoding returned unexpected result type %T", results[0])
	}
	latitude, latOK := first["latitude"].(float64)
	longitude, lonOK := first["longitude"].(float64)
	if !latOK || !lonOK {
		return nil, errors.New("geocoding result missing coordinates")
	}
	result := &geoResult{
		Latitude:    latitude,
		Longitude:   longitude,
		DisplayName: displayName(first, location),
	}
	log.Printf("<geocode> resolved %q to %.4f,%.4f", location, result.Latitude, result.Longitude)
	return result, nil
}

func displayName(result map[string]any, fallback string) string {
	name, _ := result["name"].(string)
	if name == "" {
		return fallback
	}
	if country, _ := result["country"].(string); country != "" {
		return strings.Join([]string{name, country}, ", ")
	}
	return name
}
