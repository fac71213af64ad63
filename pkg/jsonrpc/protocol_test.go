package jsonrpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		result  string
		code    int
		wantErr error
	}{
		{name: "result", body: `{"jsonrpc":"2.0","id":1,"result":{"a":1}}`, result: `{"a":1}`},
		{name: "null result", body: `{"jsonrpc":"2.0","id":1,"result":null}`, result: `null`},
		{name: "error", body: `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`, code: CodeMethodNotFound},
		{name: "error with null result", body: `{"jsonrpc":"2.0","id":1,"result":null,"error":{"code":-32000,"message":"Server error"}}`, wantErr: ErrInvalidResponse},
		{name: "null error", body: `{"jsonrpc":"2.0","id":1,"result":2,"error":null}`, result: `2`},
		{name: "neither result nor error", body: `{"jsonrpc":"2.0","id":1}`, wantErr: ErrInvalidResponse},
		{name: "wrong version", body: `{"jsonrpc":"1.0","id":1,"result":1}`, wantErr: ErrInvalidVersion},
		{name: "missing version", body: `{"id":1,"result":1}`, wantErr: ErrInvalidVersion},
		{name: "not an object", body: `"ok"`, wantErr: ErrInvalidJSON},
		{name: "null envelope", body: `null`, wantErr: ErrInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseResponse([]byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, json.RawMessage("1"), res.ID)
			if tt.code != 0 {
				require.NotNil(t, res.Error)
				assert.Equal(t, tt.code, res.Error.Code)
				assert.Nil(t, res.Result)
				return
			}
			assert.Nil(t, res.Error)
			require.NotNil(t, res.Result)
			assert.JSONEq(t, tt.result, string(res.Result))
		})
	}
}

func TestParseResponses(t *testing.T) {
	responses, err := ParseResponses([]byte(`
		[
			{"jsonrpc":"2.0","id":1,"result":"a"},
			{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"Invalid Request","data":{"message":"Invalid JSON: 1"}}}
		]`))
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.JSONEq(t, `"a"`, string(responses[0].Result))
	assert.Equal(t, json.RawMessage("null"), responses[1].ID)
	assert.Equal(t, "Invalid JSON: 1", responses[1].Error.DataMessage())

	responses, err = ParseResponses([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, responses)

	_, err = ParseResponses([]byte(`[{"jsonrpc":"2.0","id":1,"result":1},{"jsonrpc":"2.0","id":2}]`))
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = ParseResponses([]byte(`[1,`))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestResponseMarshalKeepsNullResult(t *testing.T) {
	data, err := json.Marshal(Response{JSONRPC: Version, ID: json.RawMessage("3")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"result":null}`, string(data))

	res, err := ParseResponse(data)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("null"), res.Result)

	var out *string
	require.NoError(t, res.UnmarshalResult(&out))
	assert.Nil(t, out)
}

func TestNewNotification(t *testing.T) {
	req, err := NewNotification("App.notify", []string{"x"})
	require.NoError(t, err)
	assert.True(t, req.IsNotification())

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"App.notify","params":["x"]}`, string(data))

	req, err = NewRequest("App.index", nil, 1)
	require.NoError(t, err)
	assert.False(t, req.IsNotification())
}

func TestClientCallNullResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req Request
		assert.NoError(t, json.Unmarshal(body, &req))

		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "Petstore.get_pet_by_id":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":null}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"Method not found"}}`))
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	defer client.Close()

	pet := &struct{ Name string }{Name: "stale"}
	require.NoError(t, client.Call(context.Background(), "Petstore.get_pet_by_id", []int{4}, &pet))
	assert.Nil(t, pet)

	err := client.Call(context.Background(), "Petstore.missing", nil, nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)
}
