package methods

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"norelock.dev/rpcsite/internal/rpc"
	"norelock.dev/rpcsite/internal/utils"
	"norelock.dev/rpcsite/pkg/jsonrpc"
)

func newSites(t *testing.T) (*rpc.Site, *rpc.Site) {
	t.Helper()
	logger := utils.NewNopLogger()

	api, err := rpc.NewSite(rpc.SiteConfig{Name: "api", Path: "/api", Defaults: rpc.DefaultOptions()}, logger)
	require.NoError(t, err)
	petstore, err := rpc.NewSite(rpc.SiteConfig{Name: "petstore", Path: "/api/petstore", Defaults: rpc.DefaultOptions()}, logger)
	require.NoError(t, err)

	require.NoError(t, RegisterAllMethods(api, petstore, logger))
	return api, petstore
}

func call(t *testing.T, ctx context.Context, site *rpc.Site, body string) (rpc.Result, *jsonrpc.Response) {
	t.Helper()
	res := site.Dispatch(ctx, []byte(body), "application/json")
	if len(res.Body) == 0 {
		return res, nil
	}
	r, err := jsonrpc.ParseResponse(res.Body)
	require.NoError(t, err)
	return res, r
}

func TestRegisterAllMethodsTwice(t *testing.T) {
	api, petstore := newSites(t)
	assert.Error(t, RegisterAllMethods(api, petstore, utils.NewNopLogger()))
}

func TestAppMethods(t *testing.T) {
	api, _ := newSites(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		body   string
		result string
	}{
		{"index", `{"id":1,"jsonrpc":"2.0","method":"App.index"}`, `"Welcome to rpcsite"`},
		{"greeting default", `{"id":1,"jsonrpc":"2.0","method":"App.greeting"}`, `"Hello JSON-RPC"`},
		{"greeting named", `{"id":1,"jsonrpc":"2.0","method":"App.greeting","params":{"name":"Lou"}}`, `"Hello Lou"`},
		{"hello default args", `{"id":1,"jsonrpc":"2.0","method":"App.helloDefaultArgs"}`, `"We salute you JSON-RPC"`},
		{"args validate", `{"id":1,"jsonrpc":"2.0","method":"App.argsValidate","params":[1,"s",true,[1],{"k":"v"}]}`,
			`"Number: 1, String: s, Boolean: true, Array: [1], Object: map[k:v]"`},
		{"echo", `{"id":1,"jsonrpc":"2.0","method":"App.echo","params":["hi",{"x":1}]}`, `"hi"`},
		{"not allow notify", `{"id":1,"jsonrpc":"2.0","method":"App.not_allow_notify"}`, `"Not allow notification: None"`},
		{"fails even", `{"id":1,"jsonrpc":"2.0","method":"App.fails","params":[2]}`, `2`},
		{"sum", `{"id":1,"jsonrpc":"2.0","method":"App.sum","params":[1,2]}`, `3`},
		{"subtract", `{"id":1,"jsonrpc":"2.0","method":"App.subtract","params":{"a":5,"b":2}}`, `3`},
		{"multiply", `{"id":1,"jsonrpc":"2.0","method":"App.multiply","params":[2,3.5]}`, `7`},
		{"divide", `{"id":1,"jsonrpc":"2.0","method":"App.divide","params":[9,2]}`, `4.5`},
		{"not validate", `{"id":1,"jsonrpc":"2.0","method":"App.not_validate","params":[1]}`, `1`},
		{"not validate default", `{"id":1,"jsonrpc":"2.0","method":"App.not_validate"}`, `""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, r := call(t, ctx, api, tt.body)
			assert.Equal(t, http.StatusOK, res.Status)
			require.NotNil(t, r)
			require.Nil(t, r.Error)
			assert.JSONEq(t, tt.result, string(r.Result))
		})
	}
}

func TestAppNotify(t *testing.T) {
	api, _ := newSites(t)
	res, r := call(t, context.Background(), api, `{"jsonrpc":"2.0","method":"App.notify","params":["x"]}`)
	assert.Equal(t, http.StatusNoContent, res.Status)
	assert.Nil(t, r)
}

func TestAppErrors(t *testing.T) {
	api, _ := newSites(t)
	ctx := context.Background()

	res, r := call(t, ctx, api, `{"id":1,"jsonrpc":"2.0","method":"App.fails","params":[3]}`)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	require.NotNil(t, r.Error)
	assert.Equal(t, jsonrpc.CodeServerError, r.Error.Code)
	assert.Equal(t, "number is odd", r.Error.DataMessage())

	res, r = call(t, ctx, api, `{"id":1,"jsonrpc":"2.0","method":"App.divide","params":[1,0]}`)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, "float division by zero", r.Error.DataMessage())

	res, r = call(t, ctx, api, `{"id":1,"jsonrpc":"2.0","method":"App.failsWithCustomException"}`)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.JSONEq(t, `{"message":"It is a custom exception","code":"0001"}`, string(r.Error.Data))

	res, r = call(t, ctx, api, `{"id":1,"jsonrpc":"2.0","method":"App.failsWithCustomExceptionWithStatusCode"}`)
	assert.Equal(t, http.StatusConflict, res.Status)
	assert.JSONEq(t, `{"message":"It is a custom exception","code":"0001"}`, string(r.Error.Data))

	res, r = call(t, ctx, api, `{"jsonrpc":"2.0","method":"App.not_allow_notify"}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, jsonrpc.CodeInvalidRequest, r.Error.Code)

	res, r = call(t, ctx, api, `{"id":1,"jsonrpc":"2.0","method":"App.argsValidate","params":["1","s",true,[],{}]}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, `argument "a1" (str) is not an instance of int`, r.Error.DataMessage())
}

func TestAppDecoratorsRequiresPrincipal(t *testing.T) {
	api, _ := newSites(t)
	body := `{"id":1,"jsonrpc":"2.0","method":"App.decorators"}`

	res, r := call(t, context.Background(), api, body)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	require.NotNil(t, r.Error)
	assert.Equal(t, int(rpc.ErrAuthenticationRequired), r.Error.Code)

	ctx := rpc.WithPrincipal(context.Background(), &rpc.Principal{UserID: "1", Username: "lou"})
	res, r = call(t, ctx, api, body)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `"Hello lou"`, string(r.Result))
}

func TestPetstoreCRUD(t *testing.T) {
	_, petstore := newSites(t)
	ctx := context.Background()

	_, r := call(t, ctx, petstore, `{"id":1,"jsonrpc":"2.0","method":"Petstore.get_pets"}`)
	require.Nil(t, r.Error)
	var pets []Pet
	require.NoError(t, r.UnmarshalResult(&pets))
	assert.Len(t, pets, 3)

	_, r = call(t, ctx, petstore, `{"id":2,"jsonrpc":"2.0","method":"Petstore.get_pets","params":{"tags":["cat","bird"],"limit":1}}`)
	require.Nil(t, r.Error)
	require.NoError(t, r.UnmarshalResult(&pets))
	require.Len(t, pets, 1)
	assert.Equal(t, "Eve", pets[0].Name)

	_, r = call(t, ctx, petstore, `{"id":3,"jsonrpc":"2.0","method":"Petstore.create_pet","params":{"newPet":{"name":"Lou","tag":"dog"}}}`)
	require.Nil(t, r.Error)
	assert.JSONEq(t, `{"id":4,"name":"Lou","tag":"dog"}`, string(r.Result))

	_, r = call(t, ctx, petstore, `{"id":4,"jsonrpc":"2.0","method":"Petstore.create_pet","params":{"name":"Tom"}}`)
	require.Nil(t, r.Error)
	assert.JSONEq(t, `{"id":5,"name":"Tom"}`, string(r.Result))

	_, r = call(t, ctx, petstore, `{"id":5,"jsonrpc":"2.0","method":"Petstore.get_pet_by_id","params":[4]}`)
	require.Nil(t, r.Error)
	assert.JSONEq(t, `{"id":4,"name":"Lou","tag":"dog"}`, string(r.Result))

	res, r := call(t, ctx, petstore, `{"id":6,"jsonrpc":"2.0","method":"Petstore.delete_pet_by_id","params":[4]}`)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `null`, string(r.Result))

	_, r = call(t, ctx, petstore, `{"id":7,"jsonrpc":"2.0","method":"Petstore.get_pet_by_id","params":[4]}`)
	require.Nil(t, r.Error)
	assert.JSONEq(t, `null`, string(r.Result))

	res, r = call(t, ctx, petstore, `{"id":8,"jsonrpc":"2.0","method":"Petstore.delete_pet_by_id","params":[4]}`)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.JSONEq(t, `{"message":"Pet not found","pet_id":4}`, string(r.Error.Data))
}

func TestPetstoreValidation(t *testing.T) {
	_, petstore := newSites(t)
	ctx := context.Background()

	res, r := call(t, ctx, petstore, `{"id":1,"jsonrpc":"2.0","method":"Petstore.create_pet","params":{"newPet":{"tag":"dog"}}}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "1 validation error for NewPet\nname\n  Field required", r.Error.DataMessage())

	res, r = call(t, ctx, petstore, `{"id":2,"jsonrpc":"2.0","method":"Petstore.get_pets","params":{"limit":0}}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "ensure the value of the parameter 'limit' is greater than or equal to 1", r.Error.DataMessage())

	res, r = call(t, ctx, petstore, `{"id":3,"jsonrpc":"2.0","method":"Petstore.get_pet_by_id","params":["1"]}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, jsonrpc.CodeInvalidParams, r.Error.Code)
}

func TestPetstoreCreateMany(t *testing.T) {
	_, petstore := newSites(t)
	ctx := context.Background()

	_, r := call(t, ctx, petstore, `{"id":1,"jsonrpc":"2.0","method":"Petstore.createManyPet","params":{"pets":[{"name":"Lou","tag":"dog"},{"name":"Tom"}],"pet":{"name":"Ada"}}}`)
	require.Nil(t, r.Error)
	assert.JSONEq(t, `[{"id":0,"name":"Lou","tag":"dog"},{"id":1,"name":"Tom"},{"id":2,"name":"Ada"}]`, string(r.Result))

	_, r = call(t, ctx, petstore, `{"id":2,"jsonrpc":"2.0","method":"Petstore.createManyFixPet","params":{"pets":{"2":{"name":"Tom"},"1":{"name":"Lou"}}}}`)
	require.Nil(t, r.Error)
	assert.JSONEq(t, `[{"id":1,"name":"Lou"},{"id":2,"name":"Tom"}]`, string(r.Result))

	res, r := call(t, ctx, petstore, `{"id":3,"jsonrpc":"2.0","method":"Petstore.createManyFixPet","params":{"pets":{"one":{"name":"Lou"}}}}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "invalid pet id: 'one'", r.Error.DataMessage())

	_, r = call(t, ctx, petstore, `{"id":4,"jsonrpc":"2.0","method":"Petstore.get_pets"}`)
	var pets []Pet
	require.NoError(t, r.UnmarshalResult(&pets))
	assert.Len(t, pets, 3, "createMany methods do not store pets")
}

func TestPetstoreRemovePet(t *testing.T) {
	_, petstore := newSites(t)
	ctx := context.Background()

	_, r := call(t, ctx, petstore, `{"id":1,"jsonrpc":"2.0","method":"Petstore.removePet","params":{"id":2,"name":"Eve"}}`)
	require.Nil(t, r.Error)
	assert.JSONEq(t, `{"id":2,"name":"Eve"}`, string(r.Result))

	for _, params := range []string{`{"pet":null}`, `[]`} {
		res, r := call(t, ctx, petstore, `{"id":3,"jsonrpc":"2.0","method":"Petstore.removePet","params":`+params+`}`)
		assert.Equal(t, http.StatusOK, res.Status)
		require.Nil(t, r.Error)
		assert.JSONEq(t, `null`, string(r.Result))
	}

	res, r := call(t, ctx, petstore, `{"id":2,"jsonrpc":"2.0","method":"Petstore.removePet","params":{"pet":{"id":11,"name":"Ghost"}}}`)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.JSONEq(t, `{
		"message": "Pet not found",
		"pet_id": 11,
		"reason": "The pet with an ID greater than 10 does not exist."
	}`, string(r.Error.Data))
}

func TestPetstoreDiscover(t *testing.T) {
	_, petstore := newSites(t)
	doc := petstore.Discover(context.Background())

	byName := make(map[string]rpc.OpenRPCMethod, len(doc.Methods))
	for _, m := range doc.Methods {
		byName[m.Name] = m
	}

	getPets, ok := byName[MethodGetPets]
	require.True(t, ok)
	assert.Equal(t, []rpc.OpenRPCTag{{Name: "pets"}}, getPets.Tags)
	require.Len(t, getPets.Params, 2)
	assert.Equal(t, "maximum number of results to return", getPets.Params[1].Description)
	assert.Len(t, getPets.Examples, 1)

	require.NotNil(t, doc.Components)
	assert.Contains(t, doc.Components.Schemas, "NewPet")
	assert.Contains(t, doc.Components.Schemas, "Pet")

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"#/components/schemas/Pet"`)
}

func TestPetStore(t *testing.T) {
	s := NewPetStore()

	pet := s.Create(NewPet{Name: "Lou"})
	assert.Equal(t, 4, pet.ID)

	got, ok := s.Get(4)
	require.True(t, ok)
	assert.Equal(t, "Lou", got.Name)

	assert.Len(t, s.List([]string{"dog"}, 0), 1)
	assert.Len(t, s.List(nil, 2), 2)

	assert.True(t, s.Delete(4))
	assert.False(t, s.Delete(4))
	_, ok = s.Get(4)
	assert.False(t, ok)
}
