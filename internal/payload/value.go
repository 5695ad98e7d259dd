package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the payload value types.
type Value interface {
	payloadValue()
}

// String is a string value.
type String string

func (String) payloadValue() {}

// Int is an integer value. Always int64 on the wire.
type Int int64

func (Int) payloadValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) payloadValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) payloadValue() {}

// Object maps string keys to values.
type Object map[string]Value

func (Object) payloadValue() {}

// Pair is a key/value pair for Object construction.
type Pair struct {
	Key   string
	Value Value
}

// O is a shorthand for Pair.
func O(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// NewObject builds an Object from pairs.
//
//	payload.NewObject(payload.O("eventID", payload.String("x")), payload.O("value", payload.Int(1)))
func NewObject(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// SortedKeys returns keys in UTF-16 code unit order.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// compareKeys orders strings by UTF-16 code units. Go string comparison is
// by UTF-8 bytes, which differs for characters outside the BMP.
func compareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// String returns the string stored under key.
func (obj Object) String(key string) (string, bool) {
	s, ok := obj[key].(String)
	return string(s), ok
}

// Bool returns the boolean stored under key.
func (obj Object) Bool(key string) (bool, bool) {
	b, ok := obj[key].(Bool)
	return bool(b), ok
}

// Int returns the integer stored under key.
func (obj Object) Int(key string) (int64, bool) {
	n, ok := obj[key].(Int)
	return int64(n), ok
}

// Object returns the nested object stored under key.
func (obj Object) Object(key string) (Object, bool) {
	o, ok := obj[key].(Object)
	return o, ok
}

// Int32 returns the value under key as a signed 32-bit integer. Integers and
// strings holding a base-10 integer are accepted; anything else, or a value
// outside the int32 range, reports false.
func (obj Object) Int32(key string) (int32, bool) {
	switch v := obj[key].(type) {
	case Int:
		if int64(v) < -1<<31 || int64(v) > 1<<31-1 {
			return 0, false
		}
		return int32(v), true
	case String:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 32)
		if err != nil {
			return 0, false
		}
		return int32(n), true
	default:
		return 0, false
	}
}

// Unmarshal decodes JSON into a Value. Floats and null are rejected.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return convert(raw)
}

// UnmarshalObject decodes JSON that must be an object at the top level.
func UnmarshalObject(data []byte) (Object, error) {
	v, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("decode payload: expected object, got %T", v)
	}
	return obj, nil
}

// UnmarshalFields decodes a top-level JSON object but converts only the
// named keys. Other members are not inspected, so they may hold floats or
// null. Keys that are absent are left out of the result.
func UnmarshalFields(data []byte, keys ...string) (Object, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if members == nil {
		return nil, fmt.Errorf("decode payload: expected object, got null")
	}

	obj := make(Object, len(keys))
	for _, key := range keys {
		raw, ok := members[key]
		if !ok {
			continue
		}
		v, err := Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		obj[key] = v
	}
	return obj, nil
}

// FromGo converts plain Go values (as produced by YAML or JSON decoders)
// into a Value.
func FromGo(v any) (Value, error) {
	return convert(v)
}

func convert(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a payload value")
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not payload values: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", s)
		}
		return Int(n), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are not payload values: %v", val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			pv, err := convert(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = pv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			pv, err := convert(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = pv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
