package channel

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// Message is a flat dictionary of scalar values. Unknown keys are ignored by
// every reader, so either side may add fields without breaking the other.
type Message map[string]any

// Ack is the reply sent for every received request unless the handler
// produced its own.
func Ack() Message {
	return Message{"Status": "OK"}
}

func (m Message) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// String returns the value under key if it is a string.
func (m Message) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// Int returns the value under key as an int. Integral floats (the JSON
// decoding of numbers) and decimal strings (URI query values) are accepted.
func (m Message) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint32:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v > math.MaxInt32 || v < math.MinInt32 {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// Float returns the value under key as a float64.
func (m Message) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Validate rejects nested values. Messages only carry scalars.
func (m Message) Validate() error {
	for k, v := range m {
		switch v.(type) {
		case nil, string, bool, int, int32, int64, uint32, float32, float64, json.Number:
		default:
			return errors.Errorf("message field %q has non-scalar type %T", k, v)
		}
	}
	return nil
}
