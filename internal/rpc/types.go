package rpc

import (
	"encoding/json"
	"reflect"
	"strings"
)

// TypeKind is one of the six abstract JSON-RPC value categories.
type TypeKind int

const (
	KindNull TypeKind = iota
	KindString
	KindNumber
	KindBoolean
	KindArray
	KindObject
)

// resolutionOrder is the order in which kinds are tried when a declared type
// is reduced to a single kind. Object is the fallback.
var resolutionOrder = []TypeKind{KindString, KindNumber, KindObject, KindArray, KindBoolean, KindNull}

// String returns the name used by rpc.describe.
func (k TypeKind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindString:
		return "String"
	case KindNumber:
		return "Number"
	case KindBoolean:
		return "Boolean"
	case KindArray:
		return "Array"
	case KindObject:
		return "Object"
	default:
		return "Object"
	}
}

// SchemaType returns the JSON Schema type name for the kind.
func (k TypeKind) SchemaType() string {
	if k == KindNull {
		return "null"
	}
	return strings.ToLower(k.String())
}

// MarshalJSON encodes the kind by name.
func (k TypeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Matches reports whether a runtime value belongs to the kind. Values are
// either decoded JSON (nil, bool, float64, json.Number, string, []any,
// map[string]any) or native Go values handed to the dispatcher.
func (k TypeKind) Matches(v any) bool {
	if v == nil {
		return k == KindNull
	}
	if _, ok := v.(json.Number); ok {
		return k == KindNumber
	}
	if raw, ok := v.(json.RawMessage); ok {
		return k.matchesRaw(raw)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return k == KindNull
		}
		rv = rv.Elem()
	}
	return k == kindOfReflect(rv.Type())
}

func (k TypeKind) matchesRaw(raw json.RawMessage) bool {
	var v any
	if err := decodeJSON(raw, &v); err != nil {
		return false
	}
	return k.Matches(v)
}

// KindOf returns the kind of a runtime value.
func KindOf(v any) TypeKind {
	for _, k := range []TypeKind{KindNull, KindBoolean, KindNumber, KindString, KindArray} {
		if k.Matches(v) {
			return k
		}
	}
	return KindObject
}

// kindOfReflect maps a concrete Go type onto a kind. Booleans are checked
// before numbers so that a bool never counts as a Number.
func kindOfReflect(t reflect.Type) TypeKind {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == jsonNumberType {
		return KindNumber
	}
	switch t.Kind() {
	case reflect.Bool:
		return KindBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	case reflect.String:
		return KindString
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindString
		}
		return KindArray
	case reflect.Array:
		return KindArray
	default:
		return KindObject
	}
}

var jsonNumberType = reflect.TypeOf(json.Number(""))

// pyTypeName renders the received type of a decoded JSON value the way
// error messages name it.
func pyTypeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case json.Number:
		if strings.ContainsAny(string(x), ".eE") {
			return "float"
		}
		return "int"
	case float32, float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	}
	switch KindOf(v) {
	case KindNumber:
		return "int"
	case KindString:
		return "str"
	case KindArray:
		return "list"
	case KindBoolean:
		return "bool"
	}
	return "dict"
}
