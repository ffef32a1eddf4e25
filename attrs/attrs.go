// Package attrs implements the pluggable token-attribute collaborator.
//
// Consumers may attach application-defined key/value data to a token at
// request time (oauth_token_attributes) and users may adjust it at
// authorization time. The owning deployment describes its fields with a
// Schema built from a small closed set of casters — integer, float, boolean
// and bounded string — so the core never needs runtime type introspection.
//
// The wire format is "field:value;field:value". Attribute handling is
// best-effort by design: the core treats a failed cast as "attribute left
// unset", never as a request failure.
package attrs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownField is returned when the raw input names a field the schema
// does not declare.
var ErrUnknownField = errors.New("unknown attribute field")

// CastFunc validates and converts a raw string value.
type CastFunc func(raw string) (any, error)

// Integer casts to int64.
func Integer() CastFunc {
	return func(raw string) (any, error) {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", raw)
		}
		return n, nil
	}
}

// Float casts to float64.
func Float() CastFunc {
	return func(raw string) (any, error) {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("not a float: %q", raw)
		}
		return f, nil
	}
}

// Boolean casts to bool. Accepted spellings: true/t/1 and false/f/0,
// case-insensitive.
func Boolean() CastFunc {
	return func(raw string) (any, error) {
		switch strings.ToLower(raw) {
		case "true", "t", "1":
			return true, nil
		case "false", "f", "0":
			return false, nil
		}
		return nil, fmt.Errorf("not a boolean: %q", raw)
	}
}

// BoundedString truncates to at most maxLen bytes. It never fails.
func BoundedString(maxLen int) CastFunc {
	return func(raw string) (any, error) {
		if len(raw) > maxLen {
			return raw[:maxLen], nil
		}
		return raw, nil
	}
}

// Schema is an ordered set of typed attribute fields. It implements the
// core's AttributesCodec contract.
type Schema struct {
	casters map[string]CastFunc
	order   []string
}

// NewSchema returns an empty schema. Field declarations chain:
//
//	schema := attrs.NewSchema().
//		Int("max_results").
//		Bool("read_only").
//		String("label", 64)
func NewSchema() *Schema {
	return &Schema{casters: make(map[string]CastFunc)}
}

func (s *Schema) add(name string, c CastFunc) *Schema {
	if _, exists := s.casters[name]; !exists {
		s.order = append(s.order, name)
	}
	s.casters[name] = c
	return s
}

// Int declares an integer field.
func (s *Schema) Int(name string) *Schema { return s.add(name, Integer()) }

// Float declares a float field.
func (s *Schema) Float(name string) *Schema { return s.add(name, Float()) }

// Bool declares a boolean field.
func (s *Schema) Bool(name string) *Schema { return s.add(name, Boolean()) }

// String declares a bounded string field.
func (s *Schema) String(name string, maxLen int) *Schema {
	return s.add(name, BoundedString(maxLen))
}

// ValidateAndCast casts each raw field value through its declared caster.
// Values that fail their cast are skipped; a field name the schema does not
// declare fails the whole call with ErrUnknownField.
func (s *Schema) ValidateAndCast(raw map[string]string) (map[string]any, error) {
	blob := make(map[string]any, len(raw))
	for name, value := range raw {
		cast, ok := s.casters[name]
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, ErrUnknownField)
		}
		v, err := cast(value)
		if err != nil {
			continue
		}
		blob[name] = v
	}
	return blob, nil
}

// Serialize renders a blob in declared-field order as
// "field:value;field:value". Fields absent from the blob are omitted.
func (s *Schema) Serialize(blob map[string]any) string {
	parts := make([]string, 0, len(blob))
	for _, name := range s.order {
		v, ok := blob[name]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%v", name, v))
	}
	return strings.Join(parts, ";")
}

// Deserialize splits a wire string back into raw field values. Malformed
// items (no colon) are dropped.
func (s *Schema) Deserialize(raw string) map[string]string {
	fields := make(map[string]string)
	for _, item := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(item, ":")
		if !ok || name == "" {
			continue
		}
		fields[name] = value
	}
	return fields
}

// Empty is the no-op collaborator used when a deployment attaches no
// attributes to its tokens.
type Empty struct{}

// ValidateAndCast discards all input.
func (Empty) ValidateAndCast(map[string]string) (map[string]any, error) {
	return map[string]any{}, nil
}

// Serialize always renders the empty string.
func (Empty) Serialize(map[string]any) string { return "" }

// Deserialize always yields no fields.
func (Empty) Deserialize(string) map[string]string { return map[string]string{} }
