package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"norelock.dev/rpcsite/internal/utils"
	"norelock.dev/rpcsite/pkg/jsonrpc"
)

type describeNewPet struct {
	Name string   `json:"name" validate:"required,min=1,max=64"`
	Tag  *string  `json:"tag,omitempty"`
	Age  int      `json:"age" validate:"gte=0"`
	Tags []string `json:"tags,omitempty" validate:"max=5"`
}

func objectKeys(t *testing.T, raw []byte) []string {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	require.NoError(t, err)
	require.Equal(t, json.Delim('{'), tok)

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		require.NoError(t, err)
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		require.NoError(t, dec.Decode(&skip))
	}
	return keys
}

func TestDescribe(t *testing.T) {
	site := newTestSite(t, DispatcherOptions{})
	doc := site.Describe(WithBaseURL(context.Background(), "http://localhost:5000"))

	assert.Equal(t, "urn:uuid:"+uuid.NewSHA1(uuid.NameSpaceURL, []byte("api/api")).String(), doc.ID)
	assert.Equal(t, ServiceName, doc.Name)
	assert.Equal(t, "2.0", doc.Version)
	assert.Equal(t, "Test API", doc.Title)
	assert.Equal(t, []Server{{URL: "http://localhost:5000/api"}}, doc.Servers)

	names := make([]string, 0, len(doc.Methods))
	for _, m := range doc.Methods {
		names = append(names, m.Name)
	}
	listed := make([]string, 0, site.Registry().Len())
	for _, e := range site.Registry().List() {
		listed = append(listed, e.Name)
	}
	assert.Equal(t, listed, names)
	assert.Equal(t, []string{MethodNameDescribe, MethodNameDiscover, "App.sum"}, names[:3])

	methods, err := json.Marshal(doc.Methods)
	require.NoError(t, err)
	assert.Equal(t, listed, objectKeys(t, methods), "methods keep registration order")
}

func TestDescribeMethodShape(t *testing.T) {
	site := newTestSite(t, DispatcherOptions{})
	res := dispatch(t, site, `{"id":1,"jsonrpc":"2.0","method":"rpc.describe"}`)
	require.Equal(t, http.StatusOK, res.Status)

	var doc struct {
		Methods map[string]json.RawMessage `json:"methods"`
	}
	r := singleResponse(t, res)
	require.NoError(t, r.UnmarshalResult(&doc))

	assert.JSONEq(t, `{
		"name": "App.greeting",
		"type": "method",
		"notification": true,
		"validation": true,
		"params": [
			{"name": "name", "type": "String", "required": false, "nullable": false, "default": "JSON-RPC"}
		],
		"returns": {"name": "default", "type": "String"}
	}`, string(doc.Methods["App.greeting"]))

	assert.JSONEq(t, `{
		"name": "rpc.describe",
		"type": "method",
		"notification": false,
		"validation": false,
		"params": [],
		"returns": {"name": "default", "type": "Object"},
		"summary": "Describe the service and its methods"
	}`, string(doc.Methods[MethodNameDescribe]))

	assert.JSONEq(t, `{
		"name": "App.notify",
		"type": "method",
		"notification": true,
		"validation": true,
		"params": [
			{"name": "string", "type": "String", "required": false, "nullable": true}
		],
		"returns": {"name": "default", "type": "Null"}
	}`, string(doc.Methods["App.notify"]))
}

func TestDescribeRejectsNotification(t *testing.T) {
	site := newTestSite(t, DispatcherOptions{})
	res := dispatch(t, site, `{"jsonrpc":"2.0","method":"rpc.describe"}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	r := singleResponse(t, res)
	require.NotNil(t, r.Error)
	assert.Equal(t, jsonrpc.CodeInvalidRequest, r.Error.Code)
}

func TestDescribeConfiguredServers(t *testing.T) {
	site, err := NewSite(SiteConfig{
		Name:    "petstore",
		Path:    "/api/petstore",
		Servers: []Server{{Name: "production", URL: "https://pets.example.com/api/petstore"}},
	}, utils.NewNopLogger())
	require.NoError(t, err)

	doc := site.Describe(context.Background())
	assert.Equal(t, "https://pets.example.com/api/petstore", doc.Servers[0].URL)
	assert.Equal(t, "1.0.0", site.Config().Version)
}

func TestNewSiteRequiresName(t *testing.T) {
	_, err := NewSite(SiteConfig{}, utils.NewNopLogger())
	assert.Error(t, err)
}

func newPetstoreSite(t *testing.T) *Site {
	t.Helper()
	site, err := NewSite(SiteConfig{
		Name:        "petstore",
		Path:        "/api/petstore",
		Title:       "Petstore",
		Description: "A sample pet store",
		Version:     "1.0.1",
		Defaults:    DefaultOptions(),
	}, utils.NewNopLogger())
	require.NoError(t, err)

	MustRegister(site, "Petstore.create_pet", Func(func(pet describeNewPet) describeNewPet { return pet }, "pet"),
		WithSummary("Create a pet"),
		WithTags("pets"),
		WithErrors(ErrorDoc{Code: -32000, Message: "Server error"}),
		WithExamples(Example{
			Name:   "create a dog",
			Params: []ExampleParam{{Name: "pet", Value: map[string]any{"name": "Lou"}}},
		}),
	)
	MustRegister(site, "Petstore.get_pets", Func(func(tags []string, limit *int) []describeNewPet { return nil }, "tags", "limit"),
		WithConstraint("limit", "min=1,max=100"),
		WithParamDoc("limit", "Maximum number of results", ""),
	)
	MustRegister(site, "Petstore.tag_all", Func(func(tag string, ids ...int) {}, "tag", "ids"), Deprecated())
	return site
}

func TestDiscover(t *testing.T) {
	site := newPetstoreSite(t)
	doc := site.Discover(WithBaseURL(context.Background(), "http://localhost"))

	assert.Equal(t, OpenRPCVersion, doc.OpenRPC)
	assert.Equal(t, OpenRPCInfo{Title: "Petstore", Version: "1.0.1", Description: "A sample pet store"}, doc.Info)
	assert.Equal(t, "http://localhost/api/petstore", doc.Servers[0].URL)
	require.Len(t, doc.Methods, 5)

	create := doc.Methods[2]
	assert.Equal(t, "Petstore.create_pet", create.Name)
	assert.Equal(t, "Create a pet", create.Summary)
	assert.Equal(t, []OpenRPCTag{{Name: "pets"}}, create.Tags)
	require.Len(t, create.Params, 1)
	assert.Equal(t, "#/components/schemas/describeNewPet", create.Params[0].Schema.Ref)
	assert.True(t, create.Params[0].Required)
	assert.Equal(t, "#/components/schemas/describeNewPet", create.Result.Schema.Ref)
	assert.Len(t, create.Examples, 1)
	assert.Len(t, create.Errors, 1)

	require.NotNil(t, doc.Components)
	pet := doc.Components.Schemas["describeNewPet"]
	require.NotNil(t, pet)
	assert.Equal(t, "object", pet.Type)
	assert.Equal(t, []string{"name"}, pet.Required)
	assert.Equal(t, "string", pet.Properties["name"].Type)
	assert.Equal(t, 1, *pet.Properties["name"].MinLength)
	assert.Equal(t, 64, *pet.Properties["name"].MaxLength)
	assert.Equal(t, "integer", pet.Properties["age"].Type)
	assert.Equal(t, 0.0, *pet.Properties["age"].Minimum)
	assert.Equal(t, 5, *pet.Properties["tags"].MaxItems)
	assert.Equal(t, "string", pet.Properties["tags"].Items.Type)

	getPets := doc.Methods[3]
	assert.Equal(t, "array", getPets.Params[0].Schema.Type)
	limit := getPets.Params[1]
	assert.False(t, limit.Required)
	assert.Equal(t, "Maximum number of results", limit.Summary)
	assert.Equal(t, "integer", limit.Schema.Type)
	assert.Equal(t, 1.0, *limit.Schema.Minimum)
	assert.Equal(t, 100.0, *limit.Schema.Maximum)
	assert.Equal(t, "array", getPets.Result.Schema.Type)
	assert.Equal(t, "#/components/schemas/describeNewPet", getPets.Result.Schema.Items.Ref)

	tagAll := doc.Methods[4]
	assert.True(t, tagAll.Deprecated)
	assert.Equal(t, "by-position", tagAll.ParamStructure)
	assert.Equal(t, "array", tagAll.Params[1].Schema.Type)
	assert.Equal(t, "integer", tagAll.Params[1].Schema.Items.Type)
	assert.Equal(t, "null", tagAll.Result.Schema.Type)
}

func TestDiscoverOmitsEmptyMetadata(t *testing.T) {
	site := newTestSite(t, DispatcherOptions{})
	res := dispatch(t, site, `{"id":1,"jsonrpc":"2.0","method":"rpc.discover"}`)
	require.Equal(t, http.StatusOK, res.Status)

	var doc struct {
		Methods []map[string]json.RawMessage `json:"methods"`
	}
	require.NoError(t, singleResponse(t, res).UnmarshalResult(&doc))

	for _, m := range doc.Methods {
		if string(m["name"]) != `"App.sum"` {
			continue
		}
		assert.NotContains(t, m, "summary")
		assert.NotContains(t, m, "tags")
		assert.NotContains(t, m, "errors")
		assert.NotContains(t, m, "examples")
		assert.NotContains(t, m, "deprecated")
		assert.JSONEq(t, `[
			{"name": "a", "required": true, "schema": {"type": "number"}},
			{"name": "b", "required": true, "schema": {"type": "number"}}
		]`, string(m["params"]))
		return
	}
	t.Fatal("App.sum missing from discover")
}

func TestDiscoverAggregatesSites(t *testing.T) {
	api := newTestSite(t, DispatcherOptions{})
	petstore := newPetstoreSite(t)
	api.Aggregate(petstore, api)

	doc := api.Discover(context.Background())
	var names []string
	for _, m := range doc.Methods {
		names = append(names, m.Name)
	}

	assert.Contains(t, names, "App.sum")
	assert.Contains(t, names, "Petstore.create_pet")
	assert.Equal(t, 2, countOf(names, MethodNameDescribe)+countOf(names, MethodNameDiscover), "peer built-ins are skipped")
	assert.Len(t, names, api.Registry().Len()+petstore.Registry().Len()-2)
}

func countOf(names []string, name string) int {
	n := 0
	for _, s := range names {
		if s == name {
			n++
		}
	}
	return n
}

func TestApplyConstraints(t *testing.T) {
	s := &Schema{Type: "number"}
	applyConstraints(s, "gt=0,lt=10,multiple_of=2")
	assert.Equal(t, 0.0, *s.ExclusiveMinimum)
	assert.Equal(t, 10.0, *s.ExclusiveMaximum)
	assert.Equal(t, 2.0, *s.MultipleOf)

	s = &Schema{Type: "string"}
	applyConstraints(s, "oneof=asc desc,pattern=^[a-z]+$")
	assert.Equal(t, []any{"asc", "desc"}, s.Enum)
	assert.Equal(t, "^[a-z]+$", s.Pattern)
}
