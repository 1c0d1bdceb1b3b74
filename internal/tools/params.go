package tools

import (
	"fmt"
	"time"
)

// RequireString extracts a required non-empty string param.
func RequireString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string, got %T", key, v)
	}
	if s == "" {
		return "", fmt.Errorf("parameter %s must not be empty", key)
	}
	return s, nil
}

// OptionalString returns the string at key, or "" when absent.
func OptionalString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string, got %T", key, v)
	}
	return s, nil
}

// OptionalBool returns the bool at key, or false when absent.
func OptionalBool(params map[string]any, key string) (bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %s must be a boolean, got %T", key, v)
	}
	return b, nil
}

// OptionalStringSlice accepts []string or a decoded JSON array of strings.
func OptionalStringSlice(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch s := v.(type) {
	case []string:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for i, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %s[%d] must be a string, got %T", key, i, e)
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, fmt.Errorf("parameter %s must be an array of strings, got %T", key, v)
}

// OptionalStringMap accepts map[string]string or a decoded JSON object
// whose values are strings.
func OptionalStringMap(params map[string]any, key string) (map[string]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, e := range m {
			str, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %s.%s must be a string, got %T", key, k, e)
			}
			out[k] = str
		}
		return out, nil
	}
	return nil, fmt.Errorf("parameter %s must be an object of strings, got %T", key, v)
}

// OptionalDuration parses a Go duration string such as "10s".
func OptionalDuration(params map[string]any, key string) (time.Duration, error) {
	s, err := OptionalString(params, key)
	if err != nil || s == "" {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
