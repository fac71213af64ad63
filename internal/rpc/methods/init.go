// Package methods contains the RPC methods served by the application sites.
package methods

import (
	"errors"

	"norelock.dev/rpcsite/internal/rpc"
	"norelock.dev/rpcsite/internal/utils"
)

// registrar registers methods and keeps the first error.
type registrar struct {
	mr  rpc.MethodRegistrar
	err error
}

func (r *registrar) register(name string, c rpc.Callable, opts ...rpc.Option) {
	if r.err != nil {
		return
	}
	r.err = r.mr.Register(name, c, opts...)
}

// RegisterAllMethods registers the App methods on api and the Petstore
// methods on petstore. Either site may be nil.
func RegisterAllMethods(api, petstore *rpc.Site, logger *utils.Logger) error {
	var errs []error

	if api != nil {
		hr := api.Wrap(rpc.RecoveryMiddleware(logger)).Wrap(rpc.LoggingMiddleware(logger))
		errs = append(errs, NewAppHandler(logger).RegisterMethods(hr, api.Errors()))
	}

	if petstore != nil {
		hr := petstore.Wrap(rpc.RecoveryMiddleware(logger)).Wrap(rpc.LoggingMiddleware(logger))
		errs = append(errs, NewPetstoreHandler(NewPetStore(), logger).RegisterMethods(hr, petstore.Errors()))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info("Registered all RPC methods")
	return nil
}
