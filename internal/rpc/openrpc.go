package rpc

import (
	"context"
	"reflect"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// OpenRPCVersion is the OpenRPC specification version produced.
const OpenRPCVersion = "1.3.2"

// OpenRPCDocument is the result of rpc.discover.
type OpenRPCDocument struct {
	OpenRPC    string             `json:"openrpc"`
	Info       OpenRPCInfo        `json:"info"`
	Servers    []Server           `json:"servers,omitempty"`
	Methods    []OpenRPCMethod    `json:"methods"`
	Components *OpenRPCComponents `json:"components,omitempty"`
}

// OpenRPCInfo is the info object.
type OpenRPCInfo struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// OpenRPCTag is a method tag.
type OpenRPCTag struct {
	Name string `json:"name"`
}

// OpenRPCMethod is a method object.
type OpenRPCMethod struct {
	Name           string              `json:"name"`
	Summary        string              `json:"summary,omitempty"`
	Description    string              `json:"description,omitempty"`
	Tags           []OpenRPCTag        `json:"tags,omitempty"`
	ParamStructure string              `json:"paramStructure,omitempty"`
	Params         []ContentDescriptor `json:"params"`
	Result         *ContentDescriptor  `json:"result,omitempty"`
	Deprecated     bool                `json:"deprecated,omitempty"`
	Errors         []ErrorDoc          `json:"errors,omitempty"`
	Examples       []Example           `json:"examples,omitempty"`
}

// ContentDescriptor describes a parameter or result.
type ContentDescriptor struct {
	Name        string  `json:"name"`
	Summary     string  `json:"summary,omitempty"`
	Description string  `json:"description,omitempty"`
	Required    bool    `json:"required,omitempty"`
	Schema      *Schema `json:"schema"`
}

// OpenRPCComponents holds reusable schemas.
type OpenRPCComponents struct {
	Schemas map[string]*Schema `json:"schemas,omitempty"`
}

// Schema is the subset of JSON Schema emitted for parameters and results.
type Schema struct {
	Ref                  string             `json:"$ref,omitempty"`
	Type                 string             `json:"type,omitempty"`
	Format               string             `json:"format,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	Minimum              *float64           `json:"minimum,omitempty"`
	Maximum              *float64           `json:"maximum,omitempty"`
	ExclusiveMinimum     *float64           `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum     *float64           `json:"exclusiveMaximum,omitempty"`
	MultipleOf           *float64           `json:"multipleOf,omitempty"`
	MinLength            *int               `json:"minLength,omitempty"`
	MaxLength            *int               `json:"maxLength,omitempty"`
	MinItems             *int               `json:"minItems,omitempty"`
	MaxItems             *int               `json:"maxItems,omitempty"`
	Pattern              string             `json:"pattern,omitempty"`
}

// Discover builds the OpenRPC document of the site and its aggregated peers.
// Built-in rpc.* methods of peers are skipped.
func (s *Site) Discover(ctx context.Context) *OpenRPCDocument {
	title := s.config.Title
	if title == "" {
		title = s.config.Name
	}
	doc := &OpenRPCDocument{
		OpenRPC: OpenRPCVersion,
		Info: OpenRPCInfo{
			Title:       title,
			Version:     s.config.Version,
			Description: s.config.Description,
		},
		Servers: s.servers(ctx),
	}

	sb := &schemaBuilder{components: make(map[string]*Schema)}
	for _, e := range s.registry.List() {
		doc.Methods = append(doc.Methods, sb.method(e))
	}
	for _, peer := range s.aggregated() {
		for _, e := range peer.registry.List() {
			if strings.HasPrefix(e.Name, "rpc.") {
				continue
			}
			doc.Methods = append(doc.Methods, sb.method(e))
		}
	}
	if len(sb.components) > 0 {
		doc.Components = &OpenRPCComponents{Schemas: sb.components}
	}
	return doc
}

type schemaBuilder struct {
	components map[string]*Schema
}

func (sb *schemaBuilder) method(e *MethodEntry) OpenRPCMethod {
	m := OpenRPCMethod{
		Name:        e.Name,
		Summary:     e.Meta.Summary,
		Description: e.Meta.Description,
		Deprecated:  e.Meta.Deprecated,
		Errors:      e.Meta.Errors,
		Examples:    e.Meta.Examples,
		Params: lo.Map(e.Params, func(p ParamSpec, _ int) ContentDescriptor {
			return ContentDescriptor{
				Name:        p.Name,
				Summary:     p.Summary,
				Description: p.Description,
				Required:    p.Required,
				Schema:      sb.param(p),
			}
		}),
		Result: &ContentDescriptor{Name: "default", Schema: sb.declared(e.Returns, e.ReturnKind)},
	}
	if len(e.Meta.Tags) > 0 {
		m.Tags = lo.Map(e.Meta.Tags, func(t string, _ int) OpenRPCTag { return OpenRPCTag{Name: t} })
	}
	if e.hasVariadic {
		m.ParamStructure = "by-position"
	}
	return m
}

func (sb *schemaBuilder) param(p ParamSpec) *Schema {
	schema := sb.declared(p.Type, p.Kind)
	if p.Variadic {
		schema = &Schema{Type: "array", Items: schema}
	}
	if p.Constraints != "" && schema.Ref == "" {
		applyConstraints(schema, p.Constraints)
	}
	return schema
}

func (sb *schemaBuilder) declared(t Type, kind TypeKind) *Schema {
	if gt, ok := t.(goType); ok {
		return sb.goSchema(gt.t)
	}
	return &Schema{Type: kind.SchemaType()}
}

func (sb *schemaBuilder) goSchema(t reflect.Type) *Schema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}
	case reflect.Interface:
		return &Schema{Type: "object"}
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return &Schema{Type: "string", Format: "byte"}
		}
		return &Schema{Type: "array", Items: sb.goSchema(t.Elem())}
	case reflect.Map:
		return &Schema{Type: "object", AdditionalProperties: sb.goSchema(t.Elem())}
	case reflect.Struct:
		if t.Name() == "" {
			return sb.structSchema(t)
		}
		if _, done := sb.components[t.Name()]; !done {
			sb.components[t.Name()] = &Schema{Type: "object"}
			sb.components[t.Name()] = sb.structSchema(t)
		}
		return &Schema{Ref: "#/components/schemas/" + t.Name()}
	}
	return &Schema{Type: kindOfReflect(t).SchemaType()}
}

func (sb *schemaBuilder) structSchema(t reflect.Type) *Schema {
	schema := &Schema{Type: "object", Properties: make(map[string]*Schema)}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, ok := jsonFieldName(f)
		if !ok {
			continue
		}
		prop := sb.goSchema(f.Type)
		if tag := f.Tag.Get("validate"); tag != "" && prop.Ref == "" {
			applyConstraints(prop, tag)
		}
		schema.Properties[name] = prop
		if isRequiredField(f) {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

// applyConstraints maps validator rules onto JSON Schema keywords.
func applyConstraints(schema *Schema, tag string) {
	for _, rule := range strings.Split(tag, ",") {
		name, param, _ := strings.Cut(rule, "=")
		num, numErr := strconv.ParseFloat(param, 64)
		length, lenErr := strconv.Atoi(param)
		switch name {
		case "min", "gte":
			switch {
			case schema.Type == "string" && lenErr == nil:
				schema.MinLength = &length
			case schema.Type == "array" && lenErr == nil:
				schema.MinItems = &length
			case numErr == nil:
				schema.Minimum = &num
			}
		case "max", "lte":
			switch {
			case schema.Type == "string" && lenErr == nil:
				schema.MaxLength = &length
			case schema.Type == "array" && lenErr == nil:
				schema.MaxItems = &length
			case numErr == nil:
				schema.Maximum = &num
			}
		case "gt":
			if numErr == nil {
				schema.ExclusiveMinimum = &num
			}
		case "lt":
			if numErr == nil {
				schema.ExclusiveMaximum = &num
			}
		case "multiple_of":
			if numErr == nil {
				schema.MultipleOf = &num
			}
		case "pattern":
			schema.Pattern = param
		case "oneof":
			schema.Enum = lo.Map(strings.Fields(param), func(v string, _ int) any { return v })
		}
	}
}
