package rpc

import (
	"context"
	"fmt"
	"slices"
	"time"

	"norelock.dev/rpcsite/internal/utils"
)

// AuthMiddleware rejects calls without an authenticated principal.
func AuthMiddleware(next Invoker) Invoker {
	return func(ctx context.Context, call *Call) (any, error) {
		if PrincipalFromContext(ctx) == nil {
			return nil, NewError(ErrAuthenticationRequired, "", map[string]any{
				"message": fmt.Sprintf("The method '%s' requires authentication", call.Method),
			})
		}
		return next(ctx, call)
	}
}

// RoleMiddleware creates middleware that requires any of the given roles.
func RoleMiddleware(roles ...string) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, call *Call) (any, error) {
			principal := PrincipalFromContext(ctx)
			if principal == nil {
				return nil, NewError(ErrAuthenticationRequired, "", map[string]any{
					"message": fmt.Sprintf("The method '%s' requires authentication", call.Method),
				})
			}
			if !slices.ContainsFunc(roles, func(r string) bool { return slices.Contains(principal.Roles, r) }) {
				return nil, NewError(ErrNotAuthorized, "", map[string]any{
					"message": fmt.Sprintf("The method '%s' requires one of the roles %v", call.Method, roles),
				})
			}
			return next(ctx, call)
		}
	}
}

// LoggingMiddleware creates middleware that logs calls and their outcome.
func LoggingMiddleware(logger *utils.Logger) Middleware {
	logger = logger.Named("calls")
	return func(next Invoker) Invoker {
		return func(ctx context.Context, call *Call) (any, error) {
			start := time.Now()
			logger.Debug("RPC request", "method", call.Method, "id", string(call.ID), "notification", call.Notification, "transport", TransportFromContext(ctx))
			result, err := next(ctx, call)
			if err != nil {
				logger.Warn("RPC error", "method", call.Method, "id", string(call.ID), "error", err, "elapsed", time.Since(start))
			} else {
				logger.Debug("RPC response", "method", call.Method, "id", string(call.ID), "elapsed", time.Since(start))
			}
			return result, err
		}
	}
}

// RecoveryMiddleware creates middleware that turns panics into errors.
func RecoveryMiddleware(logger *utils.Logger) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, call *Call) (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					logger.Error("Panic recovered", err, "method", call.Method)
				}
			}()
			return next(ctx, call)
		}
	}
}

// TimeoutMiddleware bounds the time a call may take.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, call *Call) (any, error) {
			if timeout <= 0 {
				return next(ctx, call)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, call)
		}
	}
}
