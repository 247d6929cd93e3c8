package entities

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TypedValue is a tagged union holding one attribute value in its native Go type.
// The zero value has no kind and is not a valid attribute value.
type TypedValue struct {
	kind ValueKind
	i    int64
	f    float64
	b    bool
	t    time.Time
	s    string // string payload, or compacted JSON text
}

// IntegerValue returns an integer typed value
func IntegerValue(v int64) TypedValue { return TypedValue{kind: KindInteger, i: v} }

// FloatValue returns a float typed value
func FloatValue(v float64) TypedValue { return TypedValue{kind: KindFloat, f: v} }

// StringValue returns a string typed value
func StringValue(v string) TypedValue { return TypedValue{kind: KindString, s: v} }

// BooleanValue returns a boolean typed value
func BooleanValue(v bool) TypedValue { return TypedValue{kind: KindBoolean, b: v} }

// TimestampValue returns a timestamp typed value normalised to UTC
func TimestampValue(v time.Time) TypedValue {
	return TypedValue{kind: KindTimestamp, t: v.UTC().Round(0)}
}

// JSONValue returns a json typed value holding the compacted form of raw
func JSONValue(raw []byte) (TypedValue, error) {
	compacted, err := compactJSON(raw)
	if err != nil {
		return TypedValue{}, err
	}
	return TypedValue{kind: KindJSON, s: compacted}, nil
}

// Kind returns the value's kind tag
func (v TypedValue) Kind() ValueKind { return v.kind }

// IsZero reports whether v carries no value
func (v TypedValue) IsZero() bool { return v.kind == "" }

// Int64 returns the integer payload
func (v TypedValue) Int64() (int64, bool) { return v.i, v.kind == KindInteger }

// Float64 returns the float payload
func (v TypedValue) Float64() (float64, bool) { return v.f, v.kind == KindFloat }

// Str returns the string payload
func (v TypedValue) Str() (string, bool) { return v.s, v.kind == KindString }

// Bool returns the boolean payload
func (v TypedValue) Bool() (bool, bool) { return v.b, v.kind == KindBoolean }

// Time returns the timestamp payload
func (v TypedValue) Time() (time.Time, bool) { return v.t, v.kind == KindTimestamp }

// JSON returns the compacted JSON payload
func (v TypedValue) JSON() (json.RawMessage, bool) {
	if v.kind != KindJSON {
		return nil, false
	}
	return json.RawMessage(v.s), true
}

// Text returns the canonical text form stored in project_attribute.value.
func (v TypedValue) Text() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	case KindString, KindJSON:
		return v.s
	default:
		return ""
	}
}

// Interface returns the payload as a plain Go value (json payloads as json.RawMessage).
func (v TypedValue) Interface() interface{} {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindBoolean:
		return v.b
	case KindTimestamp:
		return v.t
	case KindString:
		return v.s
	case KindJSON:
		return json.RawMessage(v.s)
	default:
		return nil
	}
}

// Equal reports whether both values have the same kind and canonical text
func (v TypedValue) Equal(other TypedValue) bool {
	return v.kind == other.kind && v.Text() == other.Text()
}

func (v TypedValue) String() string {
	if v.kind == "" {
		return "<none>"
	}
	return fmt.Sprintf("%s(%s)", v.kind, v.Text())
}

// StoredValue is a validated attribute value in canonical text form, paired with its kind.
// It can only be built through Encode or EncodeValue, so every StoredValue passed to a
// repository has been through the kind registry.
type StoredValue struct {
	kind ValueKind
	text string
}

// Encode validates raw against kind and returns its canonical stored form.
func Encode(kind ValueKind, raw string) (StoredValue, error) {
	if !kind.Valid() {
		return StoredValue{}, NewValidationError("value_type", "unsupported value type %q (kind set v%d)", kind, KindSetVersion)
	}
	v, err := Parse(kind, raw)
	if err != nil {
		return StoredValue{}, &ValidationError{
			Field:  "value",
			Reason: fmt.Sprintf("%q cannot be represented as %s", raw, kind),
			Err:    err,
		}
	}
	return StoredValue{kind: kind, text: v.Text()}, nil
}

// EncodeValue validates a typed value and returns its canonical stored form.
func EncodeValue(v TypedValue) (StoredValue, error) {
	if v.IsZero() {
		return StoredValue{}, NewValidationError("value", "typed value has no kind")
	}
	return Encode(v.kind, v.Text())
}

// Kind returns the kind tag
func (s StoredValue) Kind() ValueKind { return s.kind }

// Text returns the canonical text
func (s StoredValue) Text() string { return s.text }

// IsZero reports whether s was not produced by Encode
func (s StoredValue) IsZero() bool { return s.kind == "" }

// Decode parses stored text according to its value_type tag.
func Decode(valueType string, text string) (TypedValue, error) {
	return Parse(ValueKind(valueType), text)
}
