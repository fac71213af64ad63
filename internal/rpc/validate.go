package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/xeipuuv/gojsonschema"
	"norelock.dev/rpcsite/internal/utils"
)

// accepts reports whether a decoded JSON value is an instance of the
// declared type.
func accepts(t Type, v any) bool {
	switch d := t.(type) {
	case nil:
		return true
	case kindType:
		return d.kind.Matches(v)
	case unionType:
		return lo.SomeBy(d.members, func(m Type) bool { return accepts(m, v) })
	case aliasType:
		return accepts(d.underlying, v)
	case paramType:
		if d.bound != nil {
			return accepts(d.bound, v)
		}
		if len(d.constraints) > 0 {
			return lo.SomeBy(d.constraints, func(c Type) bool { return accepts(c, v) })
		}
		return true
	case literalType:
		return lo.SomeBy(d.values, func(l any) bool { return literalEqual(l, v) })
	case goType:
		rt := d.t
		for rt.Kind() == reflect.Pointer {
			if v == nil {
				return true
			}
			rt = rt.Elem()
		}
		if rt.Kind() == reflect.Interface {
			return true
		}
		return kindOfReflect(rt).Matches(v)
	}
	return false
}

func literalEqual(literal, v any) bool {
	if KindNumber.Matches(literal) && KindNumber.Matches(v) {
		a, okA := toFloat(literal)
		b, okB := toFloat(v)
		return okA && okB && a == b
	}
	return reflect.DeepEqual(literal, v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func typeMismatch(p ParamSpec, v any) *Error {
	return NewInvalidParamsError("argument %q (%s) is not an instance of %s", p.Name, pyTypeName(v), typeNameOf(p.Type))
}

// checkConstraints applies the parameter's validator tag.
func checkConstraints(p ParamSpec, v any) *Error {
	if p.Constraints == "" {
		return nil
	}
	if v == nil || (reflect.ValueOf(v).Kind() == reflect.Pointer && reflect.ValueOf(v).IsNil()) {
		if strings.Contains(p.Constraints, "required") && !p.Nullable {
			return NewInvalidParamsError("ensure the parameter '%s' is not null", p.Name)
		}
		return nil
	}
	err := utils.ValidateVar(v, p.Constraints)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return NewInvalidParamsError("%s", utils.FieldErrorMessage(p.Name, verrs[0])).WithCause(err)
	}
	return NewInvalidParamsError("%s", err.Error()).WithCause(err)
}

// compileConstraints runs the parameter's validator tags once against a
// zero value so unknown tags and tags unfit for the type fail at
// registration instead of panicking during a call.
func compileConstraints(p ParamSpec) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid validate tag: %v", r)
		}
	}()

	if p.Constraints != "" {
		var zero any
		if t := p.target(); t != nil {
			zero = reflect.Zero(t).Interface()
		}
		_ = utils.ValidateVar(zero, p.Constraints)
	}
	if st, ok := dtoType(p.target()); ok {
		_ = utils.Validate(reflect.New(st).Elem().Interface())
	}
	return nil
}

// dtoType finds the struct type behind pointers, slices and maps.
func dtoType(t reflect.Type) (reflect.Type, bool) {
	for t != nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
			t = t.Elem()
		case reflect.Struct:
			return t, true
		default:
			return nil, false
		}
	}
	return nil, false
}

// convertDefault returns the parameter's default as a value of its Go type.
// Values of another type are converted through their JSON encoding.
func convertDefault(p ParamSpec) (any, error) {
	t := p.target()
	if t == nil || p.Default == nil {
		return p.Default, nil
	}
	if reflect.TypeOf(p.Default).AssignableTo(t) {
		return p.Default, nil
	}
	raw, err := json.Marshal(p.Default)
	if err != nil {
		return nil, fmt.Errorf("default %v: %w", p.Default, err)
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("default %s is not a %s", raw, t)
	}
	return ptr.Elem().Interface(), nil
}

// checkStructs validates the validate tags of a DTO value, or of every DTO
// in a slice or map.
func checkStructs(v any) *Error {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		return validateStruct(rv)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := checkStructs(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if err := checkStructs(iter.Value().Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateStruct(rv reflect.Value) *Error {
	err := utils.Validate(rv.Interface())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return NewInvalidParamsError("%s", err.Error()).WithCause(err)
	}

	var b strings.Builder
	plural := ""
	if len(verrs) > 1 {
		plural = "s"
	}
	fmt.Fprintf(&b, "%d validation error%s for %s", len(verrs), plural, rv.Type().Name())
	for _, fe := range verrs {
		field := fe.Field()
		msg := "Field required"
		if fe.Tag() != "required" {
			msg = utils.FieldErrorMessage(field, fe)
		}
		fmt.Fprintf(&b, "\n%s\n  %s", field, msg)
	}
	return NewInvalidParamsError("%s", b.String()).WithCause(err)
}

// checkSchema validates raw params against the method's JSON Schema.
func checkSchema(schema *gojsonschema.Schema, raw json.RawMessage) *Error {
	if schema == nil {
		return nil
	}
	if raw == nil {
		raw = json.RawMessage("{}")
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return NewInvalidParamsError("Invalid params: %v", err).WithCause(err)
	}
	if result.Valid() {
		return nil
	}
	msgs := lo.Map(result.Errors(), func(e gojsonschema.ResultError, _ int) string { return e.String() })
	return NewInvalidParamsError("%s", strings.Join(msgs, "; "))
}
