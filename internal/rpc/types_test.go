package rpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

type typeTestPet struct {
	Name string `json:"name"`
}

type typeTestID int

func TestTypeKindMatches(t *testing.T) {
	tests := []struct {
		name  string
		kind  TypeKind
		value any
		want  bool
	}{
		{"null matches nil", KindNull, nil, true},
		{"null matches nil pointer", KindNull, (*int)(nil), true},
		{"null rejects zero", KindNull, 0, false},
		{"boolean matches true", KindBoolean, true, true},
		{"boolean rejects number", KindBoolean, 1, false},
		{"number matches int", KindNumber, 1, true},
		{"number matches float", KindNumber, 1.5, true},
		{"number matches json number", KindNumber, json.Number("10"), true},
		{"number matches named int", KindNumber, typeTestID(3), true},
		{"number rejects bool", KindNumber, true, false},
		{"number rejects numeric string", KindNumber, "1", false},
		{"string matches text", KindString, "abc", true},
		{"string matches bytes", KindString, []byte("abc"), true},
		{"array matches slice", KindArray, []any{1, "a"}, true},
		{"array matches fixed array", KindArray, [2]int{1, 2}, true},
		{"array rejects int-keyed map", KindArray, map[int]struct{}{1: {}}, false},
		{"object matches int-keyed map", KindObject, map[int]string{1: "a"}, true},
		{"array rejects object", KindArray, map[string]any{}, false},
		{"object matches map", KindObject, map[string]any{"a": 1}, true},
		{"object matches struct", KindObject, typeTestPet{Name: "rex"}, true},
		{"object matches struct pointer", KindObject, &typeTestPet{}, true},
		{"raw json object", KindObject, json.RawMessage(`{"a":1}`), true},
		{"raw json number", KindNumber, json.RawMessage(`1`), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Matches(tt.value))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNull, KindOf(nil))
	assert.Equal(t, KindBoolean, KindOf(false))
	assert.Equal(t, KindNumber, KindOf(json.Number("1.5")))
	assert.Equal(t, KindString, KindOf("x"))
	assert.Equal(t, KindArray, KindOf([]string{"x"}))
	assert.Equal(t, KindObject, KindOf(map[string]int{}))
	assert.Equal(t, KindObject, KindOf(typeTestPet{}))
}

func TestMatchesDeclared(t *testing.T) {
	tests := []struct {
		name     string
		kind     TypeKind
		declared Type
		want     bool
	}{
		{"plain kind", KindString, Of(KindString), true},
		{"plain kind mismatch", KindNumber, Of(KindString), false},
		{"optional strips null", KindString, Optional(Of(KindString)), true},
		{"union needs every member", KindString, Union(Of(KindString), Of(KindNumber)), false},
		{"union of one kind", KindNumber, Union(Of(KindNumber), TypeFor[int]()), true},
		{"null-only union", KindNull, Union(Of(KindNull)), true},
		{"alias resolves underlying", KindNumber, Alias("UserID", Of(KindNumber)), true},
		{"bound type parameter", KindString, TypeParam("T", Of(KindString)), true},
		{"constrained type parameter", KindNumber, TypeParam("N", nil, TypeFor[int](), TypeFor[float64]()), true},
		{"unconstrained type parameter is object", KindObject, TypeParam("T", nil), true},
		{"unconstrained type parameter is not string", KindString, TypeParam("T", nil), false},
		{"string literal", KindString, Literal("asc", "desc"), true},
		{"numeric literal", KindNumber, Literal(1, 2, 3), true},
		{"mixed literal", KindString, Literal("a", 1), false},
		{"go int", KindNumber, TypeFor[int](), true},
		{"go bool is not number", KindNumber, TypeFor[bool](), false},
		{"go pointer", KindString, TypeFor[*string](), true},
		{"go slice", KindArray, TypeFor[[]string](), true},
		{"go map", KindObject, TypeFor[map[string]int](), true},
		{"go struct", KindObject, TypeFor[typeTestPet](), true},
		{"go interface is object", KindObject, TypeFor[any](), true},
		{"undeclared is object", KindObject, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.MatchesDeclared(tt.declared))
		})
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, KindString, Resolve(Of(KindString)))
	assert.Equal(t, KindString, Resolve(Optional(Of(KindString))))
	assert.Equal(t, KindNumber, Resolve(TypeFor[typeTestID]()))
	assert.Equal(t, KindBoolean, Resolve(TypeFor[bool]()))
	assert.Equal(t, KindArray, Resolve(TypeFor[[]typeTestPet]()))
	assert.Equal(t, KindNull, Resolve(Of(KindNull)))
	assert.Equal(t, KindObject, Resolve(Union(Of(KindString), Of(KindNumber))), "mixed unions fall back to Object")
	assert.Equal(t, KindObject, Resolve(nil))
}

func TestIsNullable(t *testing.T) {
	assert.True(t, IsNullable(nil))
	assert.True(t, IsNullable(Optional(Of(KindNumber))))
	assert.True(t, IsNullable(TypeFor[*int]()))
	assert.True(t, IsNullable(TypeFor[any]()))
	assert.True(t, IsNullable(Literal("a", nil)))
	assert.False(t, IsNullable(Of(KindString)))
	assert.False(t, IsNullable(TypeFor[[]int]()))
	assert.False(t, IsNullable(Alias("Name", Of(KindString))))
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, "str", typeNameOf(Of(KindString)))
	assert.Equal(t, "int", typeNameOf(TypeFor[int]()))
	assert.Equal(t, "str | None", typeNameOf(TypeFor[*string]()))
	assert.Equal(t, "typeTestPet", typeNameOf(TypeFor[typeTestPet]()))
	assert.Equal(t, "list", typeNameOf(TypeFor[[]int]()))
	assert.Equal(t, "str | NoneType", typeNameOf(Optional(Of(KindString))))
	assert.Equal(t, "Any", typeNameOf(nil))

	assert.Equal(t, "int", pyTypeName(json.Number("1")))
	assert.Equal(t, "float", pyTypeName(json.Number("1.5")))
	assert.Equal(t, "NoneType", pyTypeName(nil))
	assert.Equal(t, "dict", pyTypeName(map[string]any{}))
}
