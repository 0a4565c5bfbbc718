package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// args wraps a call's argument map with typed accessors that report
// ArgumentErrors naming the tool.
type args struct {
	tool string
	m    map[string]interface{}
}

func (a args) missing(key string) error {
	return &ArgumentError{Tool: a.tool, Argument: key, Reason: "required"}
}

func (a args) mistyped(key, want string) error {
	return &ArgumentError{Tool: a.tool, Argument: key, Reason: "expected " + want}
}

func (a args) requiredString(key string) (string, error) {
	v, ok := a.m[key]
	if !ok || v == nil {
		return "", a.missing(key)
	}
	s, ok := v.(string)
	if !ok {
		return "", a.mistyped(key, "string")
	}
	return s, nil
}

// requiredPath is a required string that must not be blank.
func (a args) requiredPath(key string) (string, error) {
	s, err := a.requiredString(key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", a.missing(key)
	}
	return strings.TrimSpace(s), nil
}

func (a args) optionalString(key string) (string, error) {
	v, ok := a.m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", a.mistyped(key, "string")
	}
	return strings.TrimSpace(s), nil
}

func (a args) optionalInt(key string) (int64, bool, error) {
	v, ok := a.m[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, false, a.mistyped(key, "non-negative integer")
	}
	if n < 0 {
		return 0, false, a.mistyped(key, "non-negative integer")
	}
	return n, true, nil
}

func (a args) requiredInt(key string) (int64, error) {
	n, ok, err := a.optionalInt(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, a.missing(key)
	}
	return n, nil
}

func (a args) optionalBool(key string, def bool) (bool, error) {
	v, ok := a.m[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, a.mistyped(key, "boolean")
		}
		return parsed, nil
	}
	return false, a.mistyped(key, "boolean")
}

// toInt accepts the numeric shapes JSON decoding and provider SDKs produce.
func toInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("out of range")
		}
		return int64(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("not an integer")
	}
	return int64(f), nil
}
