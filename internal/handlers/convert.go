package handlers

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/asakaida/warehouse/internal/entities"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxExactInteger is the largest integer a JSON number carries without loss
const maxExactInteger = 1 << 53

// === request fields ===

func field(req *structpb.Struct, name string) (*structpb.Value, bool) {
	if req == nil {
		return nil, false
	}
	v, ok := req.GetFields()[name]
	if !ok {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

func requireString(req *structpb.Struct, name string) (string, error) {
	s, ok, err := optionalString(req, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", entities.NewValidationError(name, "is required")
	}
	return s, nil
}

func optionalString(req *structpb.Struct, name string) (string, bool, error) {
	v, ok := field(req, name)
	if !ok {
		return "", false, nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", false, entities.NewValidationError(name, "must be a string")
	}
	return s.StringValue, true, nil
}

func requireInt64(req *structpb.Struct, name string) (int64, error) {
	n, ok, err := optionalInt64(req, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, entities.NewValidationError(name, "is required")
	}
	return n, nil
}

// optionalInt64 accepts an integral number or a base-10 string
func optionalInt64(req *structpb.Struct, name string) (int64, bool, error) {
	v, ok := field(req, name)
	if !ok {
		return 0, false, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f != math.Trunc(f) || math.Abs(f) > maxExactInteger {
			return 0, false, entities.NewValidationError(name, "must be an integer")
		}
		return int64(f), true, nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil {
			return 0, false, entities.NewValidationError(name, "must be an integer")
		}
		return n, true, nil
	default:
		return 0, false, entities.NewValidationError(name, "must be an integer")
	}
}

func optionalBool(req *structpb.Struct, name string) (bool, error) {
	v, ok := field(req, name)
	if !ok {
		return false, nil
	}
	b, isBool := v.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		return false, entities.NewValidationError(name, "must be a boolean")
	}
	return b.BoolValue, nil
}

// valueText renders a request value as the raw text handed to the kind registry.
// Strings pass through unchanged; native values are formatted for kind.
func valueText(kind entities.ValueKind, v *structpb.Value) (string, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if kind == entities.KindInteger {
			if f != math.Trunc(f) || math.Abs(f) > maxExactInteger {
				return "", entities.NewValidationError("value", "%v is not an exact integer; send large integers as strings", f)
			}
			return strconv.FormatInt(int64(f), 10), nil
		}
		if kind == entities.KindJSON {
			return protojsonText(v)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case *structpb.Value_BoolValue:
		if kind == entities.KindJSON {
			return protojsonText(v)
		}
		return strconv.FormatBool(k.BoolValue), nil
	case *structpb.Value_StructValue, *structpb.Value_ListValue:
		return protojsonText(v)
	default:
		return "", entities.NewValidationError("value", "is required")
	}
}

func protojsonText(v *structpb.Value) (string, error) {
	raw, err := protojson.Marshal(v)
	if err != nil {
		return "", entities.NewValidationError("value", "cannot encode as json: %v", err)
	}
	return string(raw), nil
}

// === responses ===

// typedValueToProto renders a typed value as {kind, value}
func typedValueToProto(v entities.TypedValue) (*structpb.Value, error) {
	native, err := nativeValue(v)
	if err != nil {
		return nil, err
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":  structpb.NewStringValue(string(v.Kind())),
		"value": native,
	}}), nil
}

func nativeValue(v entities.TypedValue) (*structpb.Value, error) {
	switch v.Kind() {
	case entities.KindInteger:
		n, _ := v.Int64()
		if n > maxExactInteger || n < -maxExactInteger {
			return structpb.NewStringValue(v.Text()), nil
		}
		return structpb.NewNumberValue(float64(n)), nil
	case entities.KindFloat:
		f, _ := v.Float64()
		return structpb.NewNumberValue(f), nil
	case entities.KindBoolean:
		b, _ := v.Bool()
		return structpb.NewBoolValue(b), nil
	case entities.KindJSON:
		raw, _ := v.JSON()
		out := &structpb.Value{}
		if err := protojson.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("failed to convert json attribute: %w", err)
		}
		return out, nil
	case entities.KindString, entities.KindTimestamp:
		return structpb.NewStringValue(v.Text()), nil
	default:
		return structpb.NewNullValue(), nil
	}
}

func attributeSetToProto(set *entities.AttributeSet) (attrs *structpb.Value, corrupt *structpb.Value, err error) {
	values := &structpb.Struct{Fields: make(map[string]*structpb.Value)}
	bad := &structpb.Struct{Fields: make(map[string]*structpb.Value)}
	if set != nil {
		for key, v := range set.Values {
			pv, err := typedValueToProto(v)
			if err != nil {
				return nil, nil, err
			}
			values.Fields[key] = pv
		}
		for key, cerr := range set.Corrupt {
			bad.Fields[key] = corruptionToProto(cerr)
		}
	}
	return structpb.NewStructValue(values), structpb.NewStructValue(bad), nil
}

func corruptionToProto(cerr *entities.CorruptionError) *structpb.Value {
	reason := cerr.Error()
	if cerr.Err != nil {
		reason = cerr.Err.Error()
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"value_type": structpb.NewStringValue(cerr.ValueType),
		"value":      structpb.NewStringValue(cerr.Value),
		"error":      structpb.NewStringValue(reason),
	}})
}

func timeValue(t time.Time) *structpb.Value {
	if t.IsZero() {
		return structpb.NewNullValue()
	}
	return structpb.NewStringValue(t.UTC().Format(time.RFC3339Nano))
}

func idValue(id int64) *structpb.Value {
	return structpb.NewNumberValue(float64(id))
}

func entityToProto(e *entities.Entity) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"id":         idValue(e.ID),
		"name":       structpb.NewStringValue(e.Name),
		"created_at": timeValue(e.CreatedAt),
		"updated_at": timeValue(e.UpdatedAt),
	}})
}

func accountToProto(a *entities.Account) *structpb.Value {
	owner := structpb.NewNullValue()
	if a.EntityID != nil {
		owner = idValue(*a.EntityID)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"id":         idValue(a.ID),
		"address":    structpb.NewStringValue(a.Address),
		"entity_id":  owner,
		"created_at": timeValue(a.CreatedAt),
		"updated_at": timeValue(a.UpdatedAt),
	}})
}

func projectToProto(p *entities.Project) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"id":               idValue(p.ID),
		"name":             structpb.NewStringValue(p.Name),
		"token":            structpb.NewStringValue(p.Token),
		"category":         structpb.NewStringValue(p.Category),
		"contract_address": structpb.NewStringValue(p.ContractAddress),
		"created_at":       timeValue(p.CreatedAt),
		"updated_at":       timeValue(p.UpdatedAt),
	}})
}

func summaryToProto(s *entities.CascadeSummary) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"accounts":   structpb.NewNumberValue(float64(s.Accounts)),
		"projects":   structpb.NewNumberValue(float64(s.Projects)),
		"attributes": structpb.NewNumberValue(float64(s.Attributes)),
	}})
}

func stringList(items []string) *structpb.Value {
	values := make([]*structpb.Value, len(items))
	for i, s := range items {
		values[i] = structpb.NewStringValue(s)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func response(fields map[string]*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: fields}
}
