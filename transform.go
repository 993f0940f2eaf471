package main

import "fmt"

// transformFunc reshapes a raw upstream payload into a normalized one. It must
// be pure: no I/O, no mutation of the input, no panics on unexpected shapes.
type transformFunc func(raw any) any

func identityTransform(raw any) any { return raw }

var transforms = map[string]transformFunc{
	"weather": transformWeather,
	"users":   transformUsers,
}

// resolveTransform maps a configured transform name to its function. The empty
// name is the explicit passthrough case.
func resolveTransform(name string) (transformFunc, error) {
	if name == "" {
		return identityTransform, nil
	}
	fn, ok := transforms[name]
	if !ok {
		return nil, fmt.Errorf("unknown transform %q", name)
	}
	return fn, nil
}

// transformWeather normalizes an Open-Meteo forecast payload into
// {location, current, forecast}. Sections the provider omitted come back nil
// rather than absent so callers get a stable shape.
func transformWeather(raw any) any {
	payload, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	out := map[string]any{
		"location": map[string]any{
			"latitude":  payload["latitude"],
			"longitude": payload["longitude"],
			"timezone":  payload["timezone"],
		},
		"current":  nil,
		"forecast": nil,
	}
	if current, ok := payload["current_weather"].(map[string]any); ok {
		out["current"] = map[string]any{
			"temperature":   current["temperature"],
			"windspeed":     current["windspeed"],
			"winddirection": current["winddirection"],
			"weathercode":   current["weathercode"],
			"time":          current["time"],
		}
	}
	if daily, ok := payload["daily"].(map[string]any); ok {
		out["forecast"] = map[string]any{
			"dates":            daily["time"],
			"temperatures_max": daily["temperature_2m_max"],
			"temperatures_min": daily["temperature_2m_min"],
			"weather_codes":    daily["weathercode"],
		}
	}
	return out
}

// transformUsers keeps {id, name, email, city} from each raw user record and
// drops everything else.
func transformUsers(raw any) any {
	records, ok := raw.([]any)
	if !ok {
		return raw
	}
	out := make([]any, 0, len(records))
	for _, item := range records {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}
		user := map[string]any{
			"id":    record["id"],
			"name":  record["name"],
			"email": record["email"],
			"city":  nil,
		}
		if address, ok := record["address"].(map[string]any); ok {
			user["city"] = address["city"]
		}
		out = append(out, user)
	}
	return out
}
