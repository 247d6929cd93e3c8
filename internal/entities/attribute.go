package entities

import (
	"fmt"
	"sort"
)

const maxAttributeKeyLength = 128

// ProjectAttribute is one stored row of project_attribute.
// Value is uninterpreted text; ValueType is the authoritative tag used to cast it back.
// Example: project 7, key "total_value_locked", value "1234.5", value_type "float"
type ProjectAttribute struct {
	ID        int64
	ProjectID int64
	Key       string
	Value     string
	ValueType string
}

// String returns a string representation of the attribute
// Format: project_id.key = value (value_type)
func (a *ProjectAttribute) String() string {
	return fmt.Sprintf("%d.%s = %s (%s)", a.ProjectID, a.Key, a.Value, a.ValueType)
}

// Typed parses the stored text according to its tag.
// A row that fails to parse yields a *CorruptionError.
func (a *ProjectAttribute) Typed() (TypedValue, error) {
	v, err := Decode(a.ValueType, a.Value)
	if err != nil {
		return TypedValue{}, &CorruptionError{
			ProjectID: a.ProjectID,
			Key:       a.Key,
			ValueType: a.ValueType,
			Value:     a.Value,
			Err:       err,
		}
	}
	return v, nil
}

// ValidateAttributeKey checks an attribute key: non-empty, bounded, [A-Za-z0-9_.-] only
func ValidateAttributeKey(key string) error {
	if key == "" {
		return NewValidationError("key", "attribute key is required")
	}
	if len(key) > maxAttributeKeyLength {
		return NewValidationError("key", "attribute key must be at most %d bytes", maxAttributeKeyLength)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '-':
		default:
			return NewValidationError("key", "attribute key %q contains invalid character %q", key, r)
		}
	}
	return nil
}

// AttributeInput is one attribute to write, already validated and encoded
type AttributeInput struct {
	Key   string
	Value StoredValue
}

// AttributeSet is the typed view of every attribute of one project.
// Rows whose text does not parse are kept apart in Corrupt instead of failing the whole set.
type AttributeSet struct {
	Values  map[string]TypedValue
	Corrupt map[string]*CorruptionError
}

// NewAttributeSet creates an empty set
func NewAttributeSet() *AttributeSet {
	return &AttributeSet{
		Values:  make(map[string]TypedValue),
		Corrupt: make(map[string]*CorruptionError),
	}
}

// BuildAttributeSet decodes stored rows into a set
func BuildAttributeSet(rows []*ProjectAttribute) *AttributeSet {
	set := NewAttributeSet()
	for _, row := range rows {
		v, err := row.Typed()
		if err != nil {
			set.Corrupt[row.Key] = err.(*CorruptionError)
			continue
		}
		set.Values[row.Key] = v
	}
	return set
}

// Len returns the number of keys, corrupt ones included
func (s *AttributeSet) Len() int {
	return len(s.Values) + len(s.Corrupt)
}

// Keys returns every key in lexical order, corrupt ones included
func (s *AttributeSet) Keys() []string {
	keys := make([]string, 0, s.Len())
	for k := range s.Values {
		keys = append(keys, k)
	}
	for k := range s.Corrupt {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the typed value for key, or the corruption error recorded for it
func (s *AttributeSet) Get(key string) (TypedValue, error) {
	if v, ok := s.Values[key]; ok {
		return v, nil
	}
	if cerr, ok := s.Corrupt[key]; ok {
		return TypedValue{}, cerr
	}
	return TypedValue{}, &NotFoundError{Resource: "attribute", Key: key}
}

// Clone returns a copy of the set; the corruption errors themselves are shared
func (s *AttributeSet) Clone() *AttributeSet {
	if s == nil {
		return nil
	}
	out := &AttributeSet{
		Values:  make(map[string]TypedValue, len(s.Values)),
		Corrupt: make(map[string]*CorruptionError, len(s.Corrupt)),
	}
	for k, v := range s.Values {
		out.Values[k] = v
	}
	for k, v := range s.Corrupt {
		out.Corrupt[k] = v
	}
	return out
}
