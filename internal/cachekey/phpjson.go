package cachekey

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// member is one key/value pair of an ordered JSON object.
type member struct {
	Key   string
	Value any
}

// object is a JSON object whose members keep insertion order, the way PHP
// serializes an associative array.
type object []member

// encodePHPJSON renders v byte-for-byte the way PHP's json_encode does with
// default flags: "/" is escaped, non-ASCII runes become lowercase \uXXXX
// sequences and map keys are emitted sorted (ksort).
func encodePHPJSON(v any) ([]byte, error) {
	return appendPHPJSON(nil, v)
}

func appendPHPJSON(buf []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		if val {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case string:
		return appendPHPString(buf, val)
	case int:
		return strconv.AppendInt(buf, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(buf, val, 10), nil
	case float64:
		return appendPHPFloat(buf, val)
	case []any:
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = appendPHPJSON(buf, item); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case object:
		return appendObject(buf, val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(object, 0, len(keys))
		for _, k := range keys {
			obj = append(obj, member{Key: k, Value: val[k]})
		}
		return appendObject(buf, obj)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return appendPHPJSON(buf, m)
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func appendObject(buf []byte, obj object) ([]byte, error) {
	buf = append(buf, '{')
	for i, m := range obj {
		if i > 0 {
			buf = append(buf, ',')
		}
		var err error
		if buf, err = appendPHPString(buf, m.Key); err != nil {
			return nil, err
		}
		buf = append(buf, ':')
		if buf, err = appendPHPJSON(buf, m.Value); err != nil {
			return nil, err
		}
	}
	return append(buf, '}'), nil
}

func appendPHPString(buf []byte, s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, errors.New("malformed UTF-8 characters, possibly incorrectly encoded")
	}
	buf = append(buf, '"')
	for _, r := range s {
		switch r {
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		case '/':
			buf = append(buf, '\\', '/')
		case '\b':
			buf = append(buf, '\\', 'b')
		case '\f':
			buf = append(buf, '\\', 'f')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		default:
			switch {
			case r < 0x20:
				buf = appendUnicodeEscape(buf, r)
			case r < utf8.RuneSelf:
				buf = append(buf, byte(r))
			case r > 0xFFFF:
				hi, lo := utf16.EncodeRune(r)
				buf = appendUnicodeEscape(buf, hi)
				buf = appendUnicodeEscape(buf, lo)
			default:
				buf = appendUnicodeEscape(buf, r)
			}
		}
	}
	return append(buf, '"'), nil
}

func appendUnicodeEscape(buf []byte, r rune) []byte {
	return append(buf, '\\', 'u',
		hexDigits[(r>>12)&0xF],
		hexDigits[(r>>8)&0xF],
		hexDigits[(r>>4)&0xF],
		hexDigits[r&0xF],
	)
}

// appendPHPFloat covers the plain-notation range PHP prints with
// serialize_precision=-1; integral values keep a trailing ".0".
func appendPHPFloat(buf []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errors.New("inf and nan cannot be JSON encoded")
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf = strconv.AppendFloat(buf, f, 'f', -1, 64)
		return append(buf, '.', '0'), nil
	}
	return strconv.AppendFloat(buf, f, 'f', -1, 64), nil
}
