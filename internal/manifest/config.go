package manifest

import (
	"fmt"

	"github.com/spf13/cast"

	platformerrors "github.com/plexica/plexica/pkg/errors"
)

// MergeDefaults returns a copy of provided with every omitted field that
// declares a default filled in. The input map is never mutated.
func (m *Manifest) MergeDefaults(provided map[string]any) map[string]any {
	merged := make(map[string]any, len(provided))
	for key, value := range provided {
		merged[key] = value
	}
	for _, field := range m.ConfigFields {
		if _, ok := merged[field.Key]; !ok && field.Default != nil {
			merged[field.Key] = field.Default
		}
	}
	return merged
}

// ValidateConfig checks a tenant configuration against the manifest's config
// field declarations: required presence, runtime type, pattern match and
// numeric bounds. Unknown keys are rejected so that typos surface at install
// time instead of silently riding along.
func (m *Manifest) ValidateConfig(config map[string]any) error {
	fields := make(map[string]ConfigField, len(m.ConfigFields))
	for _, field := range m.ConfigFields {
		fields[field.Key] = field
	}

	for key := range config {
		if _, ok := fields[key]; !ok {
			return platformerrors.NewValidationError(key, "unknown configuration field", nil)
		}
	}

	for _, field := range m.ConfigFields {
		value, present := config[field.Key]
		if !present {
			if field.Required {
				return platformerrors.NewValidationError(field.Key, "required field is missing", nil)
			}
			continue
		}
		if err := validateValue(field, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(field ConfigField, value any) error {
	switch field.Type {
	case FieldString:
		str, ok := value.(string)
		if !ok {
			return typeError(field, value)
		}
		if field.Pattern != "" {
			re, err := CompilePattern(field.Pattern)
			if err != nil {
				return platformerrors.NewValidationError(field.Key, "declared pattern is unsafe or invalid", err)
			}
			if !MatchBounded(re, str) {
				return platformerrors.NewValidationError(field.Key, fmt.Sprintf("value does not match pattern %q", field.Pattern), nil)
			}
		}
	case FieldNumber:
		if !isNumeric(value) {
			return typeError(field, value)
		}
		num, err := cast.ToFloat64E(value)
		if err != nil {
			return typeError(field, value)
		}
		if field.Min != nil && num < *field.Min {
			return platformerrors.NewValidationError(field.Key, fmt.Sprintf("value %v is below minimum %v", num, *field.Min), nil)
		}
		if field.Max != nil && num > *field.Max {
			return platformerrors.NewValidationError(field.Key, fmt.Sprintf("value %v is above maximum %v", num, *field.Max), nil)
		}
	case FieldBoolean:
		if _, ok := value.(bool); !ok {
			return typeError(field, value)
		}
	case FieldObject:
		if !isObject(value) {
			return typeError(field, value)
		}
	case FieldArray:
		if _, ok := value.([]any); !ok {
			return typeError(field, value)
		}
	default:
		return platformerrors.NewValidationError(field.Key, fmt.Sprintf("manifest declares unknown field type '%s'", field.Type), nil)
	}
	return nil
}

// isNumeric accepts the concrete number representations produced by JSON and
// YAML decoders. Strings are deliberately excluded: "5" is not a number.
func isNumeric(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func isObject(value any) bool {
	switch value.(type) {
	case map[string]any, map[any]any:
		return true
	default:
		return false
	}
}

func typeError(field ConfigField, value any) error {
	return platformerrors.NewValidationError(
		field.Key,
		fmt.Sprintf("expected %s, got %T", field.Type, value),
		nil,
	)
}
