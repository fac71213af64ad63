package methods

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"norelock.dev/rpcsite/internal/rpc"
	"norelock.dev/rpcsite/internal/utils"
)

// App method names.
const (
	MethodIndex                     = "App.index"
	MethodGreeting                  = "App.greeting"
	MethodHelloDefaultArgs          = "App.helloDefaultArgs"
	MethodArgsValidate              = "App.argsValidate"
	MethodEcho                      = "App.echo"
	MethodNotify                    = "App.notify"
	MethodNotAllowNotify            = "App.not_allow_notify"
	MethodFails                     = "App.fails"
	MethodFailsWithCustomException  = "App.failsWithCustomException"
	MethodFailsWithCustomStatusCode = "App.failsWithCustomExceptionWithStatusCode"
	MethodSum                       = "App.sum"
	MethodSubtract                  = "App.subtract"
	MethodMultiply                  = "App.multiply"
	MethodDivide                    = "App.divide"
	MethodNotValidate               = "App.not_validate"
	MethodDecorators                = "App.decorators"
)

// WelcomeMessage is returned by App.index.
const WelcomeMessage = "Welcome to rpcsite"

var (
	// ErrOddNumber is returned by App.fails for odd input.
	ErrOddNumber = errors.New("number is odd")

	// ErrDivisionByZero is returned by App.divide.
	ErrDivisionByZero = errors.New("float division by zero")
)

// CustomError is an application error mapped to server error data by a
// registered error handler.
type CustomError struct {
	Message string
	Status  int
}

func (e *CustomError) Error() string {
	return e.Message
}

// AppHandler serves the App methods.
type AppHandler struct {
	logger *utils.Logger
}

// NewAppHandler creates a new AppHandler.
func NewAppHandler(logger *utils.Logger) *AppHandler {
	return &AppHandler{logger: logger.Named("app")}
}

// RegisterMethods registers the App methods and their error handlers.
func (h *AppHandler) RegisterMethods(hr rpc.MethodRegistrar, errs *rpc.ErrorHandlers) error {
	r := &registrar{mr: hr}
	auth := &registrar{mr: hr.Wrap(rpc.AuthMiddleware)}

	r.register(MethodIndex, rpc.Func(h.Index), rpc.WithSummary("Welcome message"))
	r.register(MethodGreeting, rpc.Func(h.Greeting, "name"),
		rpc.WithDefault("name", "JSON-RPC"))
	r.register(MethodHelloDefaultArgs, rpc.Func(h.HelloDefaultArgs, "string"),
		rpc.WithDefault("string", "JSON-RPC"))
	r.register(MethodArgsValidate, rpc.Func(h.ArgsValidate, "a1", "a2", "a3", "a4", "a5"))
	r.register(MethodEcho, rpc.Func(h.Echo, "string", "_some"))
	r.register(MethodNotify, rpc.Func(h.Notify, "_string"))
	r.register(MethodNotAllowNotify, rpc.Func(h.NotAllowNotify, "string"),
		rpc.WithDefault("string", "None"),
		rpc.WithNotification(false))
	r.register(MethodFails, rpc.Func(h.Fails, "n"))
	r.register(MethodFailsWithCustomException, rpc.Func(h.FailsWithCustomException, "_string"))
	r.register(MethodFailsWithCustomStatusCode, rpc.Func(h.FailsWithCustomStatusCode, "_string"))
	r.register(MethodSum, rpc.Func(h.Sum, "a", "b"), rpc.WithTags("math"))
	r.register(MethodSubtract, rpc.Func(h.Subtract, "a", "b"), rpc.WithTags("math"))
	r.register(MethodMultiply, rpc.Func(h.Multiply, "a", "b"), rpc.WithTags("math"))
	r.register(MethodDivide, rpc.Func(h.Divide, "a", "b"), rpc.WithTags("math"),
		rpc.WithErrors(rpc.ErrorDoc{Code: int(rpc.ErrServerError), Message: "Server error", Data: map[string]any{"message": ErrDivisionByZero.Error()}}))
	r.register(MethodNotValidate, rpc.Func(h.NotValidate, "s"),
		rpc.WithDefault("s", ""),
		rpc.WithValidate(false))
	auth.register(MethodDecorators, rpc.Func(h.Decorators, "string"),
		rpc.WithDefault("string", ""),
		rpc.WithSummary("Greets the authenticated caller"))

	rpc.HandleError(errs, func(err *CustomError) (any, int) {
		return map[string]any{"message": err.Message, "code": "0001"}, err.Status
	})

	return errors.Join(r.err, auth.err)
}

// Index returns the welcome message.
func (h *AppHandler) Index() string {
	return WelcomeMessage
}

// Greeting greets name.
func (h *AppHandler) Greeting(name string) string {
	return "Hello " + name
}

func (h *AppHandler) HelloDefaultArgs(s string) string {
	return "We salute you " + s
}

// ArgsValidate echoes one argument of each JSON type.
func (h *AppHandler) ArgsValidate(a1 int, a2 string, a3 bool, a4 []any, a5 map[string]any) string {
	return fmt.Sprintf("Number: %d, String: %s, Boolean: %t, Array: %v, Object: %v", a1, a2, a3, a4, a5)
}

func (h *AppHandler) Echo(s string, _ any) string {
	return s
}

// Notify accepts notifications and returns nothing.
func (h *AppHandler) Notify(_ *string) {}

func (h *AppHandler) NotAllowNotify(s string) string {
	return "Not allow notification: " + s
}

// Fails returns n when it is even.
func (h *AppHandler) Fails(n int) (int, error) {
	if n%2 != 0 {
		return 0, ErrOddNumber
	}
	return n, nil
}

func (h *AppHandler) FailsWithCustomException(_ *string) error {
	return &CustomError{Message: "It is a custom exception"}
}

func (h *AppHandler) FailsWithCustomStatusCode(_ *string) error {
	return fmt.Errorf("custom status: %w", &CustomError{Message: "It is a custom exception", Status: http.StatusConflict})
}

func (h *AppHandler) Sum(a, b float64) float64 {
	return a + b
}

func (h *AppHandler) Subtract(a, b float64) float64 {
	return a - b
}

func (h *AppHandler) Multiply(a, b float64) float64 {
	return a * b
}

func (h *AppHandler) Divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}

// NotValidate returns s unchecked.
func (h *AppHandler) NotValidate(s any) any {
	return s
}

// Decorators greets the authenticated caller.
func (h *AppHandler) Decorators(ctx context.Context, s string) string {
	principal := rpc.PrincipalFromContext(ctx)
	h.logger.Debug("Authenticated call", "user", principal.Username)
	if s != "" {
		return fmt.Sprintf("Hello %s, %s", principal.Username, s)
	}
	return "Hello " + principal.Username
}
