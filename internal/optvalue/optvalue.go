// Package optvalue handles the opaque option values that flow from a
// validation config into the per-job framework configuration. Values are kept
// JSON compatible: strings, bools, int64, float64, []any and map[string]any.
package optvalue

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// Options is a set of named, framework-owned option values.
type Options = map[string]any

// FromCty converts a cty.Value into its JSON-compatible Go representation.
// Null and unknown values become nil.
func FromCty(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if ty.IsPrimitiveType() {
		switch ty {
		case cty.String:
			return val.AsString(), nil
		case cty.Bool:
			return val.True(), nil
		case cty.Number:
			return fromNumber(val.AsBigFloat()), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", ty.FriendlyName())
		}
	}
	if ty.IsObjectType() || ty.IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			conv, err := FromCty(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k.AsString(), err)
			}
			out[k.AsString()] = conv
		}
		return out, nil
	}
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		out := []any{}
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			conv, err := FromCty(v)
			if err != nil {
				return nil, err
			}
			out = append(out, conv)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type for conversion: %s", ty.FriendlyName())
}

func fromNumber(f *big.Float) any {
	if f.IsInt() {
		if i, acc := f.Int64(); acc == big.Exact {
			return i
		}
	}
	v, _ := f.Float64()
	return v
}

// DeepCopy returns a copy of opts that shares no maps or slices with it.
func DeepCopy(opts Options) Options {
	if opts == nil {
		return Options{}
	}
	return copyValue(opts).(map[string]any)
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = copyValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = copyValue(inner)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Without returns a deep copy of opts with the given keys removed.
func Without(opts Options, keys ...string) Options {
	out := DeepCopy(opts)
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// StringList interprets v as a list of strings.
func StringList(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, not a string", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("missing list")
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", v)
	}
}

// String returns opts[key] when it holds a string.
func String(opts Options, key string) (string, bool) {
	s, ok := opts[key].(string)
	return s, ok
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
