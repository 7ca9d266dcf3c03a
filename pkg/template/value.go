package template

import (
	"fmt"
	"reflect"
	"strconv"
)

// stringify converts a resolved value to its output string form. The common
// context shapes (strings, ints, floats and bools as produced by YAML/JSON
// decoding) are handled directly; everything else falls back to the fmt
// default formatting.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// asMapping reports whether a value is a mapping and returns it as a
// map[string]any. Maps with other string-kinded key types are converted via
// reflection; the conversion copies, which is fine because frames never
// write to caller data.
func asMapping(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}

// asSequence reports whether a value is an ordered sequence and returns it
// as []any. Strings and byte slices are not sequences here; they render as
// scalars.
func asSequence(v any) ([]any, bool) {
	switch v.(type) {
	case []any:
		return v.([]any), true
	case string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	seq := make([]any, rv.Len())
	for i := range seq {
		seq[i] = rv.Index(i).Interface()
	}
	return seq, true
}

// normalizeInstances turns a resolved block value into the ordered list of
// instances the block body is rendered against:
//
//	mapping  -> [mapping]     single pass over the mapping itself
//	nil      -> [{}]          single inert pass with an empty frame
//	sequence -> as-is         one pass per element, order preserved
//	scalar   -> [scalar]      wrapped so self-references work
func normalizeInstances(v any) []any {
	if v == nil {
		return []any{map[string]any{}}
	}
	if m, ok := asMapping(v); ok {
		return []any{m}
	}
	if seq, ok := asSequence(v); ok {
		return seq
	}
	return []any{v}
}

// resolvePath walks the remaining dotted components of a compound name
// against a value found on the context stack. Each component is tried
// against a fixed, ordered list of strategies: a [n] literal indexes a
// sequence, then an exported struct field, then a mapping key. Any failing
// step is an error; the renderer reports it at the token's position.
func resolvePath(value any, components []string) (any, error) {
	for _, component := range components {
		next, err := resolveComponent(value, component)
		if err != nil {
			return nil, err
		}
		value = next
	}
	return value, nil
}

func resolveComponent(value any, component string) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("component %q is missing or invalid", component)
	}

	if len(component) >= 2 && component[0] == '[' && component[len(component)-1] == ']' {
		index, err := strconv.Atoi(component[1 : len(component)-1])
		if err != nil {
			return nil, fmt.Errorf("component %q is not a valid index", component)
		}
		seq, ok := asSequence(value)
		if !ok {
			return nil, fmt.Errorf("component %q indexes a non-sequence", component)
		}
		if index < 0 || index >= len(seq) {
			return nil, fmt.Errorf("component %q is out of range", component)
		}
		return seq[index], nil
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("component %q is missing or invalid", component)
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if field := rv.FieldByName(component); field.IsValid() && field.CanInterface() {
			return field.Interface(), nil
		}
	}

	if m, ok := asMapping(value); ok {
		if v, ok := m[component]; ok {
			return v, nil
		}
	}

	return nil, fmt.Errorf("component %q is missing or invalid", component)
}
