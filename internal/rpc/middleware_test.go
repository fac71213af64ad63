package rpc

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"norelock.dev/rpcsite/internal/utils"
	"norelock.dev/rpcsite/pkg/jsonrpc"
)

func TestAuthMiddleware(t *testing.T) {
	site := newTestSite(t, DispatcherOptions{})
	MustRegister(site.Wrap(AuthMiddleware), "App.whoami", Func(func(ctx context.Context) string {
		return PrincipalFromContext(ctx).Username
	}))

	body := []byte(`{"id":1,"jsonrpc":"2.0","method":"App.whoami"}`)

	res := site.Dispatch(context.Background(), body, "application/json")
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	r := singleResponse(t, res)
	require.NotNil(t, r.Error)
	assert.Equal(t, int(ErrAuthenticationRequired), r.Error.Code)
	assert.Equal(t, "The method 'App.whoami' requires authentication", r.Error.DataMessage())

	ctx := WithPrincipal(context.Background(), &Principal{UserID: "1", Username: "lou"})
	res = site.Dispatch(ctx, body, "application/json")
	assert.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `{"id":1,"jsonrpc":"2.0","result":"lou"}`, string(res.Body))
}

func TestRoleMiddleware(t *testing.T) {
	site := newTestSite(t, DispatcherOptions{})
	MustRegister(site.Wrap(RoleMiddleware("admin")), "App.admin", Func(func() string { return "ok" }))
	body := []byte(`{"id":1,"jsonrpc":"2.0","method":"App.admin"}`)

	res := site.Dispatch(context.Background(), body, "application/json")
	assert.Equal(t, http.StatusUnauthorized, res.Status)

	user := WithPrincipal(context.Background(), &Principal{Username: "lou", Roles: []string{"user"}})
	res = site.Dispatch(user, body, "application/json")
	assert.Equal(t, http.StatusForbidden, res.Status)
	r := singleResponse(t, res)
	require.NotNil(t, r.Error)
	assert.Equal(t, int(ErrNotAuthorized), r.Error.Code)
	assert.Equal(t, "NotAuthorizedError", r.Error.Name)

	admin := WithPrincipal(context.Background(), &Principal{Username: "root", Roles: []string{"user", "admin"}})
	res = site.Dispatch(admin, body, "application/json")
	assert.Equal(t, http.StatusOK, res.Status)
}

func TestTimeoutMiddleware(t *testing.T) {
	site := newTestSite(t, DispatcherOptions{})
	MustRegister(site.Wrap(TimeoutMiddleware(10*time.Millisecond)), "App.wait", Func(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}))

	res := site.Dispatch(context.Background(), []byte(`{"id":1,"jsonrpc":"2.0","method":"App.wait"}`), "application/json")
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	r := singleResponse(t, res)
	require.NotNil(t, r.Error)
	assert.Equal(t, context.DeadlineExceeded.Error(), r.Error.DataMessage())
}

func TestRecoveryAndLoggingMiddleware(t *testing.T) {
	logger := utils.NewNopLogger()
	r := newTestRegistry()
	mr := r.Wrap(RecoveryMiddleware(logger)).Wrap(LoggingMiddleware(logger))
	MustRegister(mr, "explode", Func(func() string { panic("kaboom") }))
	MustRegister(mr, "fine", Func(func() string { return "fine" }))

	entry, _ := r.Resolve("explode")
	_, err := entry.invoke(context.Background(), &Call{Method: "explode", Entry: entry, Args: []any{}})
	require.Error(t, err)
	assert.Equal(t, "panic: kaboom", err.Error())

	entry, _ = r.Resolve("fine")
	result, err := entry.invoke(context.Background(), &Call{Method: "fine", Entry: entry, Args: []any{}})
	require.NoError(t, err)
	assert.Equal(t, "fine", result)
}

func TestErrorHandlersOrder(t *testing.T) {
	h := NewErrorHandlers()
	sentinel := errors.New("sentinel")

	HandleError(h, func(err *petNotFoundError) (any, int) { return "first", 0 })
	HandleError(h, func(err *petNotFoundError) (any, int) { return "second", 0 })

	data, status, ok := h.Handle(&petNotFoundError{ID: 1})
	require.True(t, ok)
	assert.Equal(t, "first", data)
	assert.Equal(t, 0, status)

	_, _, ok = h.Handle(sentinel)
	assert.False(t, ok)

	var nilHandlers *ErrorHandlers
	_, _, ok = nilHandlers.Handle(sentinel)
	assert.False(t, ok)
}

func TestErrorHandlerDefaultStatus(t *testing.T) {
	site := newTestSite(t, DispatcherOptions{})
	type quotaError struct{ error }
	HandleError(site.Errors(), func(err quotaError) (any, int) { return map[string]any{"message": "quota"}, 0 })
	MustRegister(site, "App.quota", Func(func() error { return quotaError{errors.New("over quota")} }))

	res := dispatch(t, site, `{"id":1,"jsonrpc":"2.0","method":"App.quota"}`)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	r := singleResponse(t, res)
	require.NotNil(t, r.Error)
	assert.Equal(t, jsonrpc.CodeServerError, r.Error.Code)
	assert.Equal(t, "quota", r.Error.DataMessage())
}

func TestErrorValues(t *testing.T) {
	err := NewInvalidParamsError("missing a required argument: '%s'", "a")
	assert.Equal(t, "Invalid params: missing a required argument: 'a'", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.True(t, IsInvalidParamsError(err))
	assert.False(t, IsParseError(err))

	wrapped := NewServerError(nil).WithCause(context.Canceled)
	assert.True(t, errors.Is(wrapped, context.Canceled))
	assert.Equal(t, http.StatusInternalServerError, wrapped.HTTPStatus())
	assert.Nil(t, wrapped.Object().Data)

	assert.Equal(t, http.StatusTooManyRequests, NewError(ErrRateLimitExceeded, "", nil).HTTPStatus())
	assert.Equal(t, "RateLimitExceededError", ErrRateLimitExceeded.Name())
	assert.True(t, IsMethodNotFoundError(NewMethodNotFoundError("x")))
	assert.True(t, IsInvalidRequestError(NewInvalidRequestError("Empty array: []")))
}
