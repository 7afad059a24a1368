package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Normalize returns a deep copy of d with every value reduced to its JSON shape, so all
// backends hand back the same types (float64 numbers, string timestamps, []any, map[string]any).
func Normalize(d Data) (Data, error) {
	if d == nil {
		return Data{}, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode data: %w", err)
	}
	out := Data{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: decode data: %w", err)
	}
	return out, nil
}

// NormalizeValue reduces a single value to its JSON shape.
func NormalizeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Clone deep-copies already normalized data.
func Clone(d Data) Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// MergeInto applies a shallow merge of update onto base and returns the result. Neither
// argument is modified.
func MergeInto(base, update Data) Data {
	out := Clone(base)
	if out == nil {
		out = Data{}
	}
	for k, v := range update {
		out[k] = cloneValue(v)
	}
	return out
}

// Matches reports whether d satisfies every filter. Filter values must be normalized.
func Matches(id string, d Data, filters []Filter) bool {
	for _, f := range filters {
		var got any
		if f.Field == DocumentID {
			got = id
		} else {
			v, ok := d[f.Field]
			if !ok {
				return false
			}
			got = v
		}
		if !reflect.DeepEqual(got, f.Value) {
			return false
		}
	}
	return true
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	case []any:
		return 4
	default:
		return 5
	}
}

// CompareValues orders normalized values: null < bool < number < string < array < map.
func CompareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(av, b.(string))
	case []any:
		bv := b.([]any)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := CompareValues(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return compareInts(len(av), len(bv))
	}
	return 0
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// NormalizeQuery validates q and normalizes its filter values.
func NormalizeQuery(q Query) (Query, error) {
	if err := ValidateCollectionPath(q.Collection); err != nil {
		return q, err
	}
	filters := make([]Filter, 0, len(q.Filters))
	for _, f := range q.Filters {
		if strings.TrimSpace(f.Field) == "" {
			return q, fmt.Errorf("%w: empty filter field", ErrInvalidQuery)
		}
		v, err := NormalizeValue(f.Value)
		if err != nil {
			return q, fmt.Errorf("%w: filter %s: %v", ErrInvalidQuery, f.Field, err)
		}
		filters = append(filters, Filter{Field: f.Field, Value: v})
	}
	q.Filters = filters
	return q, nil
}
