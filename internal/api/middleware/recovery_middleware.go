package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"norelock.dev/rpcsite/internal/rpc"
	"norelock.dev/rpcsite/internal/utils"
)

// PanicHandler answers a request whose handler panicked.
type PanicHandler func(w http.ResponseWriter, r *http.Request, err any)

// RecoveryMiddleware handles panic recovery for the API.
type RecoveryMiddleware struct {
	logger *utils.Logger
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(logger *utils.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{
		logger: logger.Named("recovery"),
	}
}

// Recovery is a middleware that recovers from panics with a plain JSON
// error body.
func (m *RecoveryMiddleware) Recovery(next http.Handler) http.Handler {
	return m.RecoveryWithHandler(DefaultPanicHandler)(next)
}

// RecoveryWithHandler returns a recovery middleware answering panics with
// handler.
func (m *RecoveryMiddleware) RecoveryWithHandler(handler PanicHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					m.logger.Error("Panic recovered", fmt.Errorf("panic: %v", err),
						"stack", string(debug.Stack()),
						"method", r.Method,
						"path", r.URL.Path,
						"ip", utils.GetRequestIP(r),
					)

					handler(w, r, err)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// DefaultPanicHandler responds with a 500 Internal Server Error.
func DefaultPanicHandler(w http.ResponseWriter, r *http.Request, err any) {
	utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
}

// RPCPanicHandler responds with a JSON-RPC internal error envelope.
func RPCPanicHandler(w http.ResponseWriter, r *http.Request, err any) {
	rpc.WriteError(w, rpc.NewInternalError("Internal server error").WithStatus(http.StatusInternalServerError))
}
