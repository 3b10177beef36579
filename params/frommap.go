package params

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/aponysus/bamboo/apierr"
)

// FromMap builds a Query from loosely typed input such as decoded JSON or
// command-line flags.
//
// Recognized keys: select ("all" or a list of strings), query (a mapping),
// group (a list of strings), order_by, distinct, format, callback (strings),
// limit (an integer) and count, index (booleans). Any other key, or a value
// of the wrong type, is a validation error naming that key.
func FromMap(m map[string]any) (Query, error) {
	const op = "params"
	var q Query

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw := m[k]
		if raw == nil {
			continue
		}

		var err error
		switch k {
		case "select":
			if s, ok := raw.(string); ok && s == SelectAll {
				q.Select = nil
				continue
			}
			q.Select, err = stringList(op, k, raw)
		case "query":
			doc, ok := raw.(map[string]any)
			if !ok {
				return Query{}, apierr.Validation(op, k, "must be a mapping, got %T", raw)
			}
			q.Where = doc
		case "group", "groups":
			q.Groups, err = stringList(op, "group", raw)
		case "order_by":
			q.OrderBy, err = str(op, k, raw)
		case "distinct":
			q.Distinct, err = str(op, k, raw)
		case "format":
			q.Format, err = str(op, k, raw)
		case "callback":
			q.Callback, err = str(op, k, raw)
		case "limit":
			q.Limit, err = integer(op, k, raw)
		case "count":
			q.Count, err = boolean(op, k, raw)
		case "index":
			q.Index, err = boolean(op, k, raw)
		default:
			return Query{}, apierr.Validation(op, k, "unknown parameter")
		}
		if err != nil {
			return Query{}, err
		}
	}
	return q, nil
}

func stringList(op, field string, raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, apierr.Validation(op, field, "entry %d must be a string, got %T", i, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, apierr.Validation(op, field, "must be a list of strings, got %T", raw)
	}
}

func str(op, field string, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", apierr.Validation(op, field, "must be a string, got %T", raw)
	}
	return s, nil
}

func boolean(op, field string, raw any) (bool, error) {
	b, ok := raw.(bool)
	if !ok {
		return false, apierr.Validation(op, field, "must be a boolean, got %T", raw)
	}
	return b, nil
}

func integer(op, field string, raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt || v >= -math.MinInt {
			return 0, apierr.Validation(op, field, "must be an integer, got %v", v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil || n < math.MinInt || n > math.MaxInt {
			return 0, apierr.Validation(op, field, "must be an integer, got %q", v.String())
		}
		return int(n), nil
	default:
		return 0, apierr.Validation(op, field, "must be an integer, got %T", raw)
	}
}
