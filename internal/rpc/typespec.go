package rpc

import (
	"reflect"
	"strings"

	"github.com/samber/lo"
)

// Type is a declared parameter or return type. It is reduced to a TypeKind
// once, when a method is registered.
type Type interface {
	typeName() string
}

type kindType struct{ kind TypeKind }

type unionType struct{ members []Type }

type aliasType struct {
	name       string
	underlying Type
}

type paramType struct {
	name        string
	bound       Type
	constraints []Type
}

type literalType struct{ values []any }

type goType struct{ t reflect.Type }

// Of declares a plain kind.
func Of(k TypeKind) Type { return kindType{kind: k} }

// Union declares a value that may be any of the member types.
func Union(members ...Type) Type { return unionType{members: members} }

// Optional declares a nullable type.
func Optional(t Type) Type { return Union(t, Of(KindNull)) }

// Alias declares a named wrapper around another type.
func Alias(name string, underlying Type) Type {
	return aliasType{name: name, underlying: underlying}
}

// TypeParam declares a generic type parameter. A parameter with neither a
// bound nor constraints accepts anything and is treated as Object.
func TypeParam(name string, bound Type, constraints ...Type) Type {
	return paramType{name: name, bound: bound, constraints: constraints}
}

// Literal declares a type restricted to the given values.
func Literal(values ...any) Type { return literalType{values: values} }

// GoType declares a type from a Go reflect.Type. Pointers are optional.
func GoType(t reflect.Type) Type { return goType{t: t} }

// TypeFor declares a type from a Go type parameter.
func TypeFor[T any]() Type { return GoType(reflect.TypeOf((*T)(nil)).Elem()) }

// MatchesDeclared reports whether a declared type is compatible with the kind.
func (k TypeKind) MatchesDeclared(t Type) bool {
	switch d := t.(type) {
	case nil:
		return k == KindObject
	case kindType:
		return d.kind == k
	case unionType:
		members := nonNullMembers(d)
		if len(members) == 0 {
			return k == KindNull
		}
		return lo.EveryBy(members, k.MatchesDeclared)
	case aliasType:
		return k.MatchesDeclared(d.underlying)
	case paramType:
		if d.bound != nil {
			return k.MatchesDeclared(d.bound)
		}
		if len(d.constraints) > 0 {
			return lo.EveryBy(d.constraints, k.MatchesDeclared)
		}
		return k == KindObject
	case literalType:
		if len(d.values) == 0 {
			return false
		}
		return lo.EveryBy(d.values, func(v any) bool { return k.Matches(v) })
	case goType:
		rt := d.t
		for rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		if rt.Kind() == reflect.Interface {
			return k == KindObject
		}
		return kindOfReflect(rt) == k
	}
	return false
}

// Resolve reduces a declared type to the first kind it matches, falling back
// to Object.
func Resolve(t Type) TypeKind {
	for _, k := range resolutionOrder {
		if k.MatchesDeclared(t) {
			return k
		}
	}
	return KindObject
}

// IsNullable reports whether the declared type admits null.
func IsNullable(t Type) bool {
	switch d := t.(type) {
	case nil:
		return true
	case kindType:
		return d.kind == KindNull
	case unionType:
		return lo.SomeBy(d.members, IsNullable)
	case aliasType:
		return IsNullable(d.underlying)
	case paramType:
		return d.bound == nil && len(d.constraints) == 0
	case literalType:
		return lo.Contains(d.values, nil)
	case goType:
		switch d.t.Kind() {
		case reflect.Pointer, reflect.Interface:
			return true
		}
	}
	return false
}

func nonNullMembers(u unionType) []Type {
	return lo.Reject(u.members, func(m Type, _ int) bool {
		kt, ok := m.(kindType)
		return ok && kt.kind == KindNull
	})
}

func (t kindType) typeName() string {
	switch t.kind {
	case KindNull:
		return "NoneType"
	case KindString:
		return "str"
	case KindNumber:
		return "float"
	case KindBoolean:
		return "bool"
	case KindArray:
		return "list"
	}
	return "dict"
}

func (t unionType) typeName() string {
	return strings.Join(lo.Map(t.members, func(m Type, _ int) string { return typeNameOf(m) }), " | ")
}

func (t aliasType) typeName() string { return t.name }

func (t paramType) typeName() string { return t.name }

func (t literalType) typeName() string { return "Literal" }

func (t goType) typeName() string {
	rt := t.t
	if rt.Kind() == reflect.Pointer {
		return typeNameOf(GoType(rt.Elem())) + " | None"
	}
	switch rt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Struct:
		if rt.Name() != "" {
			return rt.Name()
		}
	case reflect.Interface:
		return "Any"
	}
	return kindType{kind: kindOfReflect(rt)}.typeName()
}

func typeNameOf(t Type) string {
	if t == nil {
		return "Any"
	}
	return t.typeName()
}
