package tools

import (
	"fmt"
	"slices"
)

// ValidateParams checks params against the subset of JSON Schema the tools
// declare: required keys, property types, integer bounds and string enums.
// Unknown keys are rejected so typos in planner rules surface early.
func ValidateParams(schema map[string]any, params Params) error {
	props, _ := schema["properties"].(map[string]any)

	for _, key := range requiredKeys(schema) {
		if _, ok := params[key]; !ok {
			return fmt.Errorf("%w: missing %q", ErrInvalidParams, key)
		}
	}

	for key, value := range params {
		raw, ok := props[key]
		if !ok {
			return fmt.Errorf("%w: unexpected %q", ErrInvalidParams, key)
		}
		prop, _ := raw.(map[string]any)
		if err := checkProperty(key, prop, value); err != nil {
			return err
		}
	}
	return nil
}

func requiredKeys(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, k := range v {
			if s, ok := k.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func checkProperty(key string, prop map[string]any, value any) error {
	typ, _ := prop["type"].(string)
	switch typ {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %q must be a string", ErrInvalidParams, key)
		}
		if enum, ok := prop["enum"].([]string); ok && !slices.Contains(enum, s) {
			return fmt.Errorf("%w: %q must be one of %v", ErrInvalidParams, key, enum)
		}
	case "integer":
		n, ok := asInt(value)
		if !ok {
			return fmt.Errorf("%w: %q must be an integer", ErrInvalidParams, key)
		}
		if min, ok := asInt(prop["minimum"]); ok && n < min {
			return fmt.Errorf("%w: %q must be >= %d", ErrInvalidParams, key, min)
		}
		if max, ok := asInt(prop["maximum"]); ok && n > max {
			return fmt.Errorf("%w: %q must be <= %d", ErrInvalidParams, key, max)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: %q must be a boolean", ErrInvalidParams, key)
		}
	case "array":
		switch v := value.(type) {
		case []string:
			if len(v) == 0 {
				return fmt.Errorf("%w: %q must not be empty", ErrInvalidParams, key)
			}
		case []any:
			if len(v) == 0 {
				return fmt.Errorf("%w: %q must not be empty", ErrInvalidParams, key)
			}
		default:
			return fmt.Errorf("%w: %q must be an array", ErrInvalidParams, key)
		}
	}
	return nil
}
