package emulator

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// applyQuery filters and trims a read result according to the recognized
// query parameters: shallow, orderBy, startAt, endAt, equalTo,
// limitToFirst, limitToLast. format=export is accepted and ignored (no
// priority metadata is stored).
func applyQuery(v any, q url.Values) (any, error) {
	if q.Get("shallow") == "true" {
		return shallowValue(v), nil
	}

	orderBy := q.Get("orderBy")
	hasFilter := q.Get("startAt") != "" || q.Get("endAt") != "" || q.Get("equalTo") != "" ||
		q.Get("limitToFirst") != "" || q.Get("limitToLast") != ""

	if orderBy == "" {
		if hasFilter {
			return nil, fmt.Errorf("orderBy must be defined when other query parameters are defined")
		}
		return v, nil
	}

	m, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}

	type entry struct {
		key   string
		value any
		order any
	}
	entries := make([]entry, 0, len(m))
	for k, val := range m {
		entries = append(entries, entry{key: k, value: val, order: orderValue(orderBy, k, val)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if c := compareValues(entries[i].order, entries[j].order); c != 0 {
			return c < 0
		}
		return entries[i].key < entries[j].key
	})

	keep := entries[:0]
	for _, e := range entries {
		if s := q.Get("startAt"); s != "" && compareValues(e.order, coerce(s)) < 0 {
			continue
		}
		if s := q.Get("endAt"); s != "" && compareValues(e.order, coerce(s)) > 0 {
			continue
		}
		if s := q.Get("equalTo"); s != "" && compareValues(e.order, coerce(s)) != 0 {
			continue
		}
		keep = append(keep, e)
	}
	entries = keep

	if s := q.Get("limitToFirst"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid limitToFirst %q", s)
		}
		if len(entries) > n {
			entries = entries[:n]
		}
	}
	if s := q.Get("limitToLast"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid limitToLast %q", s)
		}
		if len(entries) > n {
			entries = entries[len(entries)-n:]
		}
	}

	out := make(map[string]any, len(entries))
	for _, e := range entries {
		out[e.key] = e.value
	}
	return out, nil
}

// shallowValue truncates objects to one level: child values become true.
func shallowValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

// orderValue resolves the ordering value of one child for the given
// orderBy key: "$key" orders by child key, "$value" by the child itself,
// anything else by that field of the child object.
func orderValue(orderBy, key string, value any) any {
	switch orderBy {
	case "$key":
		return key
	case "$value":
		return value
	default:
		if m, ok := value.(map[string]any); ok {
			return m[orderBy]
		}
		return nil
	}
}

// coerce interprets a query parameter value the way child values decode
// from JSON: numbers, booleans, then strings (surrounding quotes
// stripped).
func coerce(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return strings.Trim(s, `"`)
}

// typeRank orders values of different JSON types: null < false < true <
// numbers < strings. Objects and arrays sort last.
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
	default:
		return 4
	}
}

func compareValues(a, b any) int {
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
	default:
		return 0
	}
}
