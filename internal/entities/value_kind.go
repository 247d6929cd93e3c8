package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ValueKind is the type tag stored in project_attribute.value_type.
type ValueKind string

const (
	KindInteger   ValueKind = "integer"
	KindFloat     ValueKind = "float"
	KindString    ValueKind = "string"
	KindBoolean   ValueKind = "boolean"
	KindTimestamp ValueKind = "timestamp"
	KindJSON      ValueKind = "json"
)

// KindSetVersion is the version of the closed kind set below.
// Version 1: integer, float, string. Version 2 adds boolean, timestamp, json.
const KindSetVersion = 2

type kindCodec struct {
	since int
	parse func(text string) (TypedValue, error)
}

var kindRegistry = map[ValueKind]kindCodec{
	KindInteger:   {since: 1, parse: parseInteger},
	KindFloat:     {since: 1, parse: parseFloat},
	KindString:    {since: 1, parse: parseString},
	KindBoolean:   {since: 2, parse: parseBoolean},
	KindTimestamp: {since: 2, parse: parseTimestamp},
	KindJSON:      {since: 2, parse: parseJSON},
}

// ParseKind resolves a value_type tag. Unknown tags are rejected.
func ParseKind(tag string) (ValueKind, error) {
	kind := ValueKind(tag)
	if !kind.Valid() {
		return "", NewValidationError("value_type", "unsupported value type %q (kind set v%d)", tag, KindSetVersion)
	}
	return kind, nil
}

// Valid reports whether the kind belongs to the current kind set
func (k ValueKind) Valid() bool {
	_, ok := kindRegistry[k]
	return ok
}

// Since returns the kind set version that introduced k, or 0 for unknown kinds
func (k ValueKind) Since() int {
	return kindRegistry[k].since
}

func (k ValueKind) String() string {
	return string(k)
}

// Kinds returns every supported kind ordered by introduction version, then name.
func Kinds() []ValueKind {
	kinds := make([]ValueKind, 0, len(kindRegistry))
	for k := range kindRegistry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if kinds[i].Since() != kinds[j].Since() {
			return kinds[i].Since() < kinds[j].Since()
		}
		return kinds[i] < kinds[j]
	})
	return kinds
}

// Parse interprets text as a value of the given kind.
// The returned error is plain; callers decide whether it is a validation or a corruption failure.
func Parse(kind ValueKind, text string) (TypedValue, error) {
	codec, ok := kindRegistry[kind]
	if !ok {
		return TypedValue{}, fmt.Errorf("unsupported value type %q", kind)
	}
	return codec.parse(text)
}

func parseInteger(text string) (TypedValue, error) {
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return TypedValue{}, fmt.Errorf("not a 64-bit integer: %w", err)
	}
	return IntegerValue(v), nil
}

func parseFloat(text string) (TypedValue, error) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return TypedValue{}, fmt.Errorf("not a 64-bit float: %w", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return TypedValue{}, fmt.Errorf("non-finite float %q", text)
	}
	return FloatValue(v), nil
}

func parseString(text string) (TypedValue, error) {
	if !utf8.ValidString(text) {
		return TypedValue{}, fmt.Errorf("string is not valid UTF-8")
	}
	// Postgres TEXT cannot hold NUL
	if strings.IndexByte(text, 0) >= 0 {
		return TypedValue{}, fmt.Errorf("string contains a NUL byte")
	}
	return StringValue(text), nil
}

func parseBoolean(text string) (TypedValue, error) {
	v, err := strconv.ParseBool(text)
	if err != nil {
		return TypedValue{}, fmt.Errorf("not a boolean: %w", err)
	}
	return BooleanValue(v), nil
}

func parseTimestamp(text string) (TypedValue, error) {
	t, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return TypedValue{}, fmt.Errorf("not an RFC 3339 timestamp: %w", err)
	}
	return TimestampValue(t), nil
}

func parseJSON(text string) (TypedValue, error) {
	return JSONValue([]byte(text))
}

func compactJSON(raw []byte) (string, error) {
	if !json.Valid(raw) {
		return "", fmt.Errorf("not valid JSON")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("not valid JSON: %w", err)
	}
	return buf.String(), nil
}
