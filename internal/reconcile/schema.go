package reconcile

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// FieldType is the declared type of an attribute.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeBool
	TypeStringList
	TypeObject
	TypeObjectList
)

// String returns a human-readable name for the type.
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	case TypeStringList:
		return "list[string]"
	case TypeObject:
		return "object"
	case TypeObjectList:
		return "list[object]"
	default:
		return "unknown"
	}
}

// Field declares one attribute of a resource kind.
type Field struct {
	Name              string
	Type              FieldType
	Aliases           []string
	Choices           []string
	Default           any
	RequiredIfPresent bool
	Description       string
}

// Schema is the ordered attribute set of a resource kind.
type Schema []Field

// Field returns the field with the given canonical name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Has reports whether name is a canonical field name.
func (s Schema) Has(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// Names returns canonical field names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

func (s Schema) resolve(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name || slices.Contains(f.Aliases, name) {
			return f, true
		}
	}
	return Field{}, false
}

// Normalize resolves aliases, coerces raw values (CLI strings, YAML values)
// to the declared types, enforces choices and fills defaults. Unknown
// attributes are rejected.
func (s Schema) Normalize(raw map[string]any) (Attributes, error) {
	out := make(Attributes, len(s))
	seenAs := make(map[string]string)

	for key, value := range raw {
		field, ok := s.resolve(key)
		if !ok {
			return nil, &ValidationError{Field: key, Reason: "unknown attribute"}
		}
		if prev, dup := seenAs[field.Name]; dup {
			return nil, &ValidationError{Field: field.Name, Reason: fmt.Sprintf("given twice (as %q and %q)", prev, key)}
		}
		seenAs[field.Name] = key

		if value == nil {
			out[field.Name] = nil
			continue
		}
		coerced, err := coerce(value, field.Type)
		if err != nil {
			return nil, &ValidationError{Field: field.Name, Reason: err.Error()}
		}
		if len(field.Choices) > 0 {
			str, _ := coerced.(string)
			if !slices.Contains(field.Choices, str) {
				return nil, &ValidationError{
					Field:  field.Name,
					Reason: fmt.Sprintf("must be one of %s; got %v", strings.Join(field.Choices, ", "), coerced),
				}
			}
		}
		out[field.Name] = coerced
	}

	for _, f := range s {
		if f.Default == nil {
			continue
		}
		if v, ok := out[f.Name]; !ok || v == nil {
			out[f.Name] = f.Default
		}
	}

	return out, nil
}

// Validate checks presence rules: the key field is always required, and
// RequiredIfPresent fields are required for the present disposition.
func (s Schema) Validate(attrs Attributes, keyField string, disposition Disposition) error {
	if isBlank(attrs[keyField]) {
		return &ValidationError{Field: keyField, Reason: "required"}
	}
	if disposition != Present {
		return nil
	}
	for _, f := range s {
		if f.RequiredIfPresent && isBlank(attrs[f.Name]) {
			return &ValidationError{Field: f.Name, Reason: "required when state is present"}
		}
	}
	return nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func coerce(value any, t FieldType) (any, error) {
	switch t {
	case TypeString:
		return coerceString(value)
	case TypeInt:
		return coerceInt(value)
	case TypeBool:
		return coerceBool(value)
	case TypeStringList:
		return coerceStringList(value)
	case TypeObject:
		return coerceObject(value)
	case TypeObjectList:
		return coerceObjectList(value)
	}
	return nil, fmt.Errorf("unsupported field type %v", t)
}

func coerceString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int, int64, float64, bool:
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("expected string, got %T", value)
}

func coerceInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("expected integer, got %v", v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", v)
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("expected integer, got %T", value)
}

func coerceBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
		return nil, fmt.Errorf("expected boolean, got %q", v)
	}
	return nil, fmt.Errorf("expected boolean, got %T", value)
}

func coerceStringList(value any) (any, error) {
	switch v := value.(type) {
	case []string:
		return slices.Clone(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := coerceString(item)
			if err != nil {
				return nil, fmt.Errorf("list element: %w", err)
			}
			out = append(out, s.(string))
		}
		return out, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return []string{}, nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
	return nil, fmt.Errorf("expected list of strings, got %T", value)
}

func coerceObject(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return nil, fmt.Errorf("expected JSON object: %w", err)
		}
		return obj, nil
	}
	return nil, fmt.Errorf("expected object, got %T", value)
}

func coerceObjectList(value any) (any, error) {
	switch v := value.(type) {
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, nil
	case []any:
		for i, item := range v {
			if _, ok := item.(map[string]any); !ok {
				return nil, fmt.Errorf("element %d: expected object, got %T", i, item)
			}
		}
		return v, nil
	case string:
		var list []any
		if err := json.Unmarshal([]byte(v), &list); err != nil {
			return nil, fmt.Errorf("expected JSON array of objects: %w", err)
		}
		return coerceObjectList(list)
	}
	return nil, fmt.Errorf("expected list of objects, got %T", value)
}
