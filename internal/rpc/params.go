package rpc

import (
	"reflect"
)

// ParamSpec declares one method parameter. The order of a method's specs is
// the positional order of array params.
type ParamSpec struct {
	// Name is the by-name key of the parameter.
	Name string

	// Type is the declared type. Nil accepts any value.
	Type Type

	// Kind is Type reduced to a TypeKind, filled in at registration.
	Kind TypeKind

	// Required is true when the parameter has no default.
	Required bool

	// HasDefault is true when Default is used for a missing value.
	HasDefault bool

	// Default is the value bound when the parameter is missing.
	Default any

	// Nullable is true when null is an acceptable value.
	Nullable bool

	// Variadic marks the tail parameter collecting extra positional values.
	Variadic bool

	// Constraints is a validator tag applied to the bound value, e.g. "min=1,max=10".
	Constraints string

	Summary     string
	Description string

	goType reflect.Type
}

// Param declares a required parameter.
func Param(name string, t Type) ParamSpec {
	return ParamSpec{Name: name, Type: t, Required: true}
}

// WithDefault makes the parameter optional with the given default.
func (p ParamSpec) WithDefault(v any) ParamSpec {
	p.HasDefault = true
	p.Default = v
	p.Required = false
	return p
}

// Optional makes the parameter nullable with a nil default.
func (p ParamSpec) Optional() ParamSpec {
	p.Nullable = true
	return p.WithDefault(nil)
}

// Constrain sets a validator tag for the parameter.
func (p ParamSpec) Constrain(tag string) ParamSpec {
	p.Constraints = tag
	return p
}

// Describe sets the documentation of the parameter.
func (p ParamSpec) Describe(summary, description string) ParamSpec {
	p.Summary = summary
	p.Description = description
	return p
}

// target is the Go type bound values are decoded into; nil keeps the
// decoded JSON value.
func (p ParamSpec) target() reflect.Type {
	if p.goType != nil {
		return p.goType
	}
	if gt, ok := p.Type.(goType); ok {
		return gt.t
	}
	return nil
}

// structTarget returns the struct type of a DTO parameter.
func (p ParamSpec) structTarget() (reflect.Type, bool) {
	t := p.target()
	if t == nil {
		return nil, false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t, t.Kind() == reflect.Struct
}

// resolve fills in derived fields.
func (p ParamSpec) resolve() ParamSpec {
	p.Kind = Resolve(p.Type)
	if p.Type == nil || IsNullable(p.Type) {
		p.Nullable = true
	}
	if p.HasDefault {
		p.Required = false
	} else if !p.Variadic {
		p.Required = true
	}
	return p
}
