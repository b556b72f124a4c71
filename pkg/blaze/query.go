package blaze

import (
	"strconv"
)

// Query string parameter names recognized by the server. Case-sensitive.
const (
	paramAuth         = "auth"
	paramOrderBy      = "orderBy"
	paramLimitToFirst = "limitToFirst"
	paramLimitToLast  = "limitToLast"
	paramStartAt      = "startAt"
	paramEndAt        = "endAt"
	paramEqualTo      = "equalTo"
	paramShallow      = "shallow"
	paramFormat       = "format"

	formatExport = "export"
)

// Query accumulates ordering, filtering, and pagination parameters for a
// Reference. Builder calls are pure: each returns a new Query, so partial
// queries can be shared and extended independently.
type Query struct {
	ref    *Reference
	params map[string]string
}

// WithQuery starts a query against the reference.
func (r *Reference) WithQuery() *Query {
	return &Query{ref: r, params: map[string]string{}}
}

func (q *Query) add(key, value string) *Query {
	params := make(map[string]string, len(q.params)+1)
	for k, v := range q.params {
		params[k] = v
	}
	params[key] = value
	return &Query{ref: q.ref, params: params}
}

// OrderBy orders results by the given child key.
func (q *Query) OrderBy(key string) *Query {
	return q.add(paramOrderBy, key)
}

// LimitToFirst limits results to the first n children.
func (q *Query) LimitToFirst(n int) *Query {
	return q.add(paramLimitToFirst, strconv.Itoa(n))
}

// LimitToLast limits results to the last n children.
func (q *Query) LimitToLast(n int) *Query {
	return q.add(paramLimitToLast, strconv.Itoa(n))
}

// StartAt filters out children ordered before value.
func (q *Query) StartAt(value string) *Query {
	return q.add(paramStartAt, value)
}

// EndAt filters out children ordered after value.
func (q *Query) EndAt(value string) *Query {
	return q.add(paramEndAt, value)
}

// EqualTo keeps only children whose ordered value equals value.
func (q *Query) EqualTo(value string) *Query {
	return q.add(paramEqualTo, value)
}

// Shallow limits the response to one level of children.
func (q *Query) Shallow(flag bool) *Query {
	return q.add(paramShallow, strconv.FormatBool(flag))
}

// Export requests the export format (values with priority metadata).
func (q *Query) Export() *Query {
	return q.add(paramFormat, formatExport)
}

// Finish materializes a Reference carrying the accumulated parameters.
// Values are percent-encoded through url.Values, never hand-formatted,
// and serialize in lexical key order so the output is deterministic
// regardless of the order builder calls were made in.
func (q *Query) Finish() *Reference {
	u := q.ref.uri
	vals := u.Query()
	for k, v := range q.params {
		vals.Set(k, v)
	}
	// url.Values.Encode sorts by key.
	u.RawQuery = vals.Encode()

	clone := *q.ref
	clone.uri = u
	return &clone
}
