package value

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// truthy is the token set boolean text is compared against, lower-cased.
var truthy = map[string]struct{}{
	"1": {}, "true": {}, "t": {}, "y": {}, "yes": {}, "on": {},
}

// normalizeInteger reads an integer column. Text forms parse as 32-bit first
// when small is set and widen to 64-bit on overflow; unsigned values beyond
// int64 are kept as exact decimal text.
func normalizeInteger(raw any, small bool) (Value, error) {
	switch v := raw.(type) {
	case int64:
		return Int(v), nil
	case int32:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int:
		return Int(int64(v)), nil
	case uint8:
		return Int(int64(v)), nil
	case uint16:
		return Int(int64(v)), nil
	case uint32:
		return Int(int64(v)), nil
	case uint64:
		if v > math.MaxInt64 {
			return Text(strconv.FormatUint(v, 10)), nil
		}
		return Int(int64(v)), nil
	case uint:
		return normalizeInteger(uint64(v), small)
	case bool:
		if v {
			return Int(1), nil
		}
		return Int(0), nil
	case float64:
		if v != math.Trunc(v) || v >= math.MaxInt64 || v < math.MinInt64 {
			return Null(), fmt.Errorf("integer: %v is not integral", v)
		}
		return Int(int64(v)), nil
	case string:
		return parseInteger(v, small)
	case []byte:
		return parseInteger(string(v), small)
	}
	return Null(), fmt.Errorf("integer: unexpected %T", raw)
}

func parseInteger(s string, small bool) (Value, error) {
	s = strings.TrimSpace(s)
	if small {
		i, err := strconv.ParseInt(s, 10, 32)
		if err == nil {
			return Int(i), nil
		}
		if !errors.Is(err, strconv.ErrRange) {
			return Null(), fmt.Errorf("integer: %w", err)
		}
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return Int(i), nil
	}
	if errors.Is(err, strconv.ErrRange) {
		if u, uerr := strconv.ParseUint(s, 10, 64); uerr == nil {
			return Text(strconv.FormatUint(u, 10)), nil
		}
	}
	return Null(), fmt.Errorf("integer: %w", err)
}

// normalizeBool reads a boolean or bit column. Numbers are true when non-zero;
// a single byte is a MySQL BIT(1); text is matched against the truthy tokens.
func normalizeBool(raw any) (Value, error) {
	switch v := raw.(type) {
	case bool:
		return Bool(v), nil
	case int64:
		return Bool(v != 0), nil
	case int32:
		return Bool(v != 0), nil
	case int:
		return Bool(v != 0), nil
	case uint64:
		return Bool(v != 0), nil
	case float64:
		return Bool(v != 0), nil
	case []byte:
		if len(v) == 1 && v[0] <= 1 {
			return Bool(v[0] == 1), nil
		}
		return boolFromText(string(v)), nil
	case string:
		return boolFromText(v), nil
	}
	return Null(), fmt.Errorf("bool: unexpected %T", raw)
}

func boolFromText(s string) Value {
	_, ok := truthy[strings.ToLower(strings.TrimSpace(s))]
	return Bool(ok)
}

// normalizeFloat passes binary floats through and parses text with the
// locale's separators.
func normalizeFloat(raw any, sep separators) (Value, error) {
	switch v := raw.(type) {
	case float64:
		return Float(v), nil
	case float32:
		return Float(float64(v)), nil
	case int64:
		return Float(float64(v)), nil
	case int32:
		return Float(float64(v)), nil
	case int:
		return Float(float64(v)), nil
	case string:
		return parseFloat(v, sep)
	case []byte:
		return parseFloat(string(v), sep)
	}
	return Null(), fmt.Errorf("float: unexpected %T", raw)
}

func parseFloat(s string, sep separators) (Value, error) {
	f, err := strconv.ParseFloat(delocalize(s, sep), 64)
	if err != nil {
		return Null(), fmt.Errorf("float: %w", err)
	}
	return Float(f), nil
}
