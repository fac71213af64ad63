package rpc

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/samber/lo"
)

// Bind reconciles raw params with the method's declared parameters and
// returns one value per parameter in positional order.
func Bind(entry *MethodEntry, raw json.RawMessage) ([]any, *Error) {
	if entry.Validate {
		if err := checkSchema(entry.paramsSchema, raw); err != nil {
			return nil, err
		}
	}

	switch {
	case raw == nil:
		return bindMissing(entry)
	case isJSONArray(raw):
		var values []json.RawMessage
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, NewInvalidParamsError("Invalid params: %v", err).WithCause(err)
		}
		return bindPositional(entry, values)
	case isJSONObject(raw):
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, NewInvalidParamsError("Invalid params: %v", err).WithCause(err)
		}
		return bindNamed(entry, raw, fields)
	default:
		return nil, NewInvalidParamsError("Parameter structures are by-position (list) or by-name (dict): %s", compact(raw))
	}
}

func bindMissing(entry *MethodEntry) ([]any, *Error) {
	args := make([]any, len(entry.Params))
	for i, p := range entry.Params {
		v, err := fallback(p)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// fallback is the value of a parameter absent from the payload.
func fallback(p ParamSpec) (any, *Error) {
	switch {
	case p.Variadic:
		return []any{}, nil
	case p.HasDefault:
		return p.Default, nil
	default:
		return nil, NewInvalidParamsError("missing a required argument: '%s'", p.Name)
	}
}

func bindPositional(entry *MethodEntry, values []json.RawMessage) ([]any, *Error) {
	fixed := entry.Params
	var tail *ParamSpec
	if entry.hasVariadic {
		fixed = entry.Params[:len(entry.Params)-1]
		tail = &entry.Params[len(entry.Params)-1]
	}
	if len(values) > len(fixed) && tail == nil {
		return nil, NewInvalidParamsError("too many positional arguments: expected at most %d, got %d", len(fixed), len(values))
	}

	args := make([]any, len(entry.Params))
	for i, p := range fixed {
		if i >= len(values) {
			v, err := fallback(p)
			if err != nil {
				return nil, err
			}
			args[i] = v
			continue
		}
		v, err := bindValue(entry, p, values[i])
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	if tail != nil {
		rest := []any{}
		for _, raw := range lo.Drop(values, len(fixed)) {
			v, err := bindValue(entry, *tail, raw)
			if err != nil {
				return nil, err
			}
			rest = append(rest, v)
		}
		args[len(fixed)] = rest
	}
	return args, nil
}

func bindNamed(entry *MethodEntry, raw json.RawMessage, fields map[string]json.RawMessage) ([]any, *Error) {
	args := make([]any, len(entry.Params))
	bound := make([]bool, len(entry.Params))
	consumed := make(map[string]bool, len(fields))

	// A DTO parameter whose own key is absent may receive the whole payload.
	for i, p := range entry.Params {
		if _, present := fields[p.Name]; present || p.Variadic {
			continue
		}
		st, ok := p.structTarget()
		if !ok || !payloadFits(st, fields) {
			continue
		}
		v, err := bindValue(entry, p, raw)
		if err != nil {
			return nil, err
		}
		args[i], bound[i] = v, true
		for _, name := range jsonFieldNames(st) {
			consumed[name] = true
		}
	}

	for i, p := range entry.Params {
		if bound[i] {
			continue
		}
		value, present := fields[p.Name]
		if !present {
			v, err := fallback(p)
			if err != nil {
				return nil, err
			}
			args[i] = v
			continue
		}
		consumed[p.Name] = true
		if p.Variadic {
			v, err := bindVariadic(entry, p, value)
			if err != nil {
				return nil, err
			}
			args[i] = v
			continue
		}
		v, err := bindValue(entry, p, value)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	if entry.Strict {
		for _, key := range lo.Keys(fields) {
			if !consumed[key] {
				return nil, NewInvalidParamsError("got an unexpected keyword argument '%s'", key)
			}
		}
	}
	return args, nil
}

func bindVariadic(entry *MethodEntry, p ParamSpec, raw json.RawMessage) (any, *Error) {
	if !isJSONArray(raw) {
		return nil, NewInvalidParamsError("argument %q (%s) is not an instance of list", p.Name, pyTypeName(decodeAny(raw)))
	}
	var values []json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, NewInvalidParamsError("Invalid params: %v", err).WithCause(err)
	}
	rest := make([]any, 0, len(values))
	for _, item := range values {
		v, err := bindValue(entry, p, item)
		if err != nil {
			return nil, err
		}
		rest = append(rest, v)
	}
	return rest, nil
}

// bindValue type-checks one raw value and decodes it into the parameter's
// Go type.
func bindValue(entry *MethodEntry, p ParamSpec, raw json.RawMessage) (any, *Error) {
	if entry.Validate {
		decoded := decodeAny(raw)
		if decoded == nil && !p.Nullable {
			return nil, typeMismatch(p, nil)
		}
		if decoded != nil && !accepts(p.Type, decoded) {
			return nil, typeMismatch(p, decoded)
		}
	}

	v, err := decodeInto(p, raw)
	if err != nil {
		return nil, err
	}

	if entry.Validate {
		if err := checkConstraints(p, v); err != nil {
			return nil, err
		}
		if err := checkStructs(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func decodeInto(p ParamSpec, raw json.RawMessage) (any, *Error) {
	target := p.target()
	if target == nil {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, NewInvalidParamsError("Invalid params: %v", err).WithCause(err)
		}
		return v, nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return reflect.Zero(target).Interface(), nil
	}
	ptr := reflect.New(target)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, NewInvalidParamsError("argument %q (%s) is not an instance of %s", p.Name, pyTypeName(decodeAny(raw)), typeNameOf(p.Type)).WithCause(err)
	}
	return ptr.Elem().Interface(), nil
}

func decodeAny(raw json.RawMessage) any {
	var v any
	if err := decodeJSON(raw, &v); err != nil {
		return nil
	}
	return v
}

// payloadFits reports whether the payload looks like an instance of the
// struct: every required field is present and at least one field matches.
func payloadFits(st reflect.Type, fields map[string]json.RawMessage) bool {
	matched := 0
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := jsonFieldName(f)
		if !ok {
			continue
		}
		_, present := fields[name]
		if present {
			matched++
			continue
		}
		if isRequiredField(f) {
			return false
		}
	}
	return matched > 0
}

func jsonFieldNames(st reflect.Type) []string {
	var names []string
	for i := 0; i < st.NumField(); i++ {
		if name, ok := jsonFieldName(st.Field(i)); ok {
			names = append(names, name)
		}
	}
	return names
}

func jsonFieldName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	tag := f.Tag.Get("json")
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return "", false
	}
	if name == "" {
		name = f.Name
	}
	return name, true
}

func isRequiredField(f reflect.StructField) bool {
	for _, rule := range strings.Split(f.Tag.Get("validate"), ",") {
		if rule == "required" {
			return true
		}
	}
	_, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
	return f.Type.Kind() != reflect.Pointer && !lo.Contains(strings.Split(opts, ","), "omitempty") && f.Tag.Get("validate") == ""
}
