// Package raw holds the untyped JSON boundary shared by every upstream source.
// Values are kept as json.RawMessage until a normalizer converts them.
package raw

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Row is one result row (or document) as returned by a remote API.
type Row map[string]json.RawMessage

// Float returns the numeric value at key. Absent, null, non-numeric and
// non-finite values all yield 0. Numeric strings are accepted.
func (r Row) Float(key string) float64 {
	return Float(r[key])
}

// String returns the string value at key. ok is false when the key is
// absent or the value is not a JSON string.
func (r Row) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || isNull(v) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// Rows decodes the array at key into rows. A missing or null key yields nil.
func (r Row) Rows(key string) ([]Row, error) {
	v, ok := r[key]
	if !ok || isNull(v) {
		return nil, nil
	}
	var out []Row
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Float coerces a single raw value; see Row.Float.
func Float(v json.RawMessage) float64 {
	if len(v) == 0 || isNull(v) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return finite(f)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}
