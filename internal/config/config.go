package config

import (
	"fmt"
	"strings"
	"unicode"
)

// FieldType names the value types Load knows how to parse out of an
// environment variable's string representation.
type FieldType int

const (
	FieldString FieldType = iota
	FieldBoolean
)

// FieldSpec declares one configuration field: its Go-side name, the value
// type to parse it as, and whether its absence is a configuration error.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
}

// ConfigError reports a missing required field or a value that could not be
// parsed as its declared type.
type ConfigError struct {
	Field   string
	EnvVar  string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: field %q (%s): %s", e.Field, e.EnvVar, e.Message)
}

// Load resolves specs against lookup (ordinarily os.LookupEnv), returning a
// map keyed by each field's Name. A missing Required field or a value that
// fails to parse as its declared Type returns a *ConfigError for the first
// such field encountered, in specs order.
func Load(specs []FieldSpec, lookup func(string) (string, bool)) (map[string]any, error) {
	values := make(map[string]any, len(specs))

	for _, spec := range specs {
		envVar := envVarName(spec.Name)
		raw, found := lookup(envVar)

		if !found || raw == "" {
			if spec.Required {
				return nil, &ConfigError{Field: spec.Name, EnvVar: envVar, Message: "required but not set"}
			}
			continue
		}

		switch spec.Type {
		case FieldBoolean:
			b, err := parseBool(raw)
			if err != nil {
				return nil, &ConfigError{Field: spec.Name, EnvVar: envVar, Message: err.Error()}
			}
			values[spec.Name] = b
		default:
			values[spec.Name] = raw
		}
	}

	return values, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("value %q is not a valid boolean", raw)
	}
}

// envVarName derives a field's environment variable name as
// strings.ToUpper(toSnakeCase(field.Name)), e.g. "HealthcheckPort" ->
// "HEALTHCHECK_PORT".
func envVarName(name string) string {
	return strings.ToUpper(toSnakeCase(name))
}

func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
