package rpc

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/samber/lo"
	"norelock.dev/rpcsite/pkg/jsonrpc"
)

// ServiceDescribe is the result of rpc.describe.
type ServiceDescribe struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Servers     []Server        `json:"servers"`
	Methods     MethodDescribes `json:"methods"`
}

// MethodDescribe documents one method.
type MethodDescribe struct {
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Notification bool            `json:"notification"`
	Validation   bool            `json:"validation"`
	Params       []ParamDescribe `json:"params"`
	Returns      ReturnDescribe  `json:"returns"`
	Summary      string          `json:"summary,omitempty"`
	Description  string          `json:"description,omitempty"`
	Deprecated   bool            `json:"deprecated,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Errors       []ErrorDoc      `json:"errors,omitempty"`
	Examples     []Example       `json:"examples,omitempty"`
}

// ParamDescribe documents one parameter.
type ParamDescribe struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Nullable    bool   `json:"nullable"`
	Default     any    `json:"default,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	Constraints string `json:"constraints,omitempty"`
}

// ReturnDescribe documents the result.
type ReturnDescribe struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// MethodDescribes keeps registration order when encoded as a JSON object.
type MethodDescribes []MethodDescribe

// MarshalJSON encodes the methods as an object keyed by name.
func (m MethodDescribes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, method := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(method.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(method)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Describe builds the rpc.describe document. The output depends only on the
// site configuration and its registered methods.
func (s *Site) Describe(ctx context.Context) *ServiceDescribe {
	return &ServiceDescribe{
		ID:          "urn:uuid:" + s.id.String(),
		Name:        ServiceName,
		Version:     jsonrpc.Version,
		Title:       s.config.Title,
		Description: s.config.Description,
		Servers:     s.servers(ctx),
		Methods: lo.Map(s.registry.List(), func(e *MethodEntry, _ int) MethodDescribe {
			return describeMethod(e)
		}),
	}
}

func (s *Site) servers(ctx context.Context) []Server {
	if len(s.config.Servers) > 0 {
		return s.config.Servers
	}
	return []Server{{URL: BaseURLFromContext(ctx) + s.config.Path}}
}

func describeMethod(e *MethodEntry) MethodDescribe {
	return MethodDescribe{
		Name:         e.Name,
		Type:         "method",
		Notification: e.Notification,
		Validation:   e.Validate,
		Params: lo.Map(e.Params, func(p ParamSpec, _ int) ParamDescribe {
			pd := ParamDescribe{
				Name:        p.Name,
				Type:        p.Kind.String(),
				Required:    p.Required,
				Nullable:    p.Nullable,
				Summary:     p.Summary,
				Description: p.Description,
				Constraints: p.Constraints,
			}
			if p.Variadic {
				pd.Type = KindArray.String()
			}
			if p.HasDefault {
				pd.Default = p.Default
			}
			return pd
		}),
		Returns:     ReturnDescribe{Name: "default", Type: e.ReturnKind.String()},
		Summary:     e.Meta.Summary,
		Description: e.Meta.Description,
		Deprecated:  e.Meta.Deprecated,
		Tags:        e.Meta.Tags,
		Errors:      e.Meta.Errors,
		Examples:    e.Meta.Examples,
	}
}
