package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"norelock.dev/rpcsite/internal/utils"
)

// Defaults holds the options methods get when they do not set their own.
type Defaults struct {
	Validate     bool
	Notification bool
}

// DefaultOptions returns validation on and notifications allowed.
func DefaultOptions() Defaults {
	return Defaults{Validate: true, Notification: true}
}

// MethodRegistrar registers methods, possibly through middleware.
type MethodRegistrar interface {
	Register(name string, c Callable, opts ...Option) error
	Wrap(mw Middleware) MethodRegistrar
}

// Register registers a method taking a params struct.
func Register[P any, R any](mr MethodRegistrar, name string, fn func(ctx context.Context, params P) (R, error), opts ...Option) error {
	return mr.Register(name, Typed(fn), opts...)
}

// MustRegister registers a method and panics on error. Meant for startup code.
func MustRegister(mr MethodRegistrar, name string, c Callable, opts ...Option) {
	if err := mr.Register(name, c, opts...); err != nil {
		panic(err)
	}
}

// Registry holds the methods of one site.
type Registry struct {
	// methods is a map of method names to entries.
	methods map[string]*MethodEntry

	// order is the registration order of method names.
	order []string

	defaults Defaults

	// mutex is used to synchronize access to the methods map.
	mutex sync.RWMutex

	// logger is the registry's logger.
	logger *utils.Logger
}

type wrappedRegistrar struct {
	registry *Registry
	mws      []Middleware
}

// Register registers a method with the wrapped middleware.
func (w wrappedRegistrar) Register(name string, c Callable, opts ...Option) error {
	return w.registry.register(name, c, w.mws, opts)
}

// Wrap adds another middleware inside the existing ones.
func (w wrappedRegistrar) Wrap(mw Middleware) MethodRegistrar {
	mws := make([]Middleware, len(w.mws), len(w.mws)+1)
	copy(mws, w.mws)
	return wrappedRegistrar{registry: w.registry, mws: append(mws, mw)}
}

// NewRegistry creates an empty registry.
func NewRegistry(defaults Defaults, logger *utils.Logger) *Registry {
	return &Registry{
		methods:  make(map[string]*MethodEntry),
		defaults: defaults,
		logger:   logger.Named("registry"),
	}
}

// Register registers a method. Registering a name twice fails with
// ErrDuplicateMethod unless WithOverride is given.
func (r *Registry) Register(name string, c Callable, opts ...Option) error {
	return r.register(name, c, nil, opts)
}

// Wrap returns a registrar applying mw to every method it registers.
func (r *Registry) Wrap(mw Middleware) MethodRegistrar {
	return wrappedRegistrar{registry: r, mws: []Middleware{mw}}
}

func (r *Registry) register(name string, c Callable, mws []Middleware, opts []Option) error {
	if name == "" {
		return fmt.Errorf("%w: empty method name", ErrInvalidMethod)
	}
	entry, override, err := r.build(name, c, opts)
	if err != nil {
		return err
	}

	var invoke Invoker = func(ctx context.Context, call *Call) (any, error) {
		return c.Call(ctx, call.Args)
	}
	for i := len(mws) - 1; i >= 0; i-- {
		invoke = mws[i](invoke)
	}
	entry.invoke = invoke

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.methods[name]; exists {
		if !override {
			return fmt.Errorf("%w: %s", ErrDuplicateMethod, name)
		}
	} else {
		r.order = append(r.order, name)
	}
	r.methods[name] = entry

	r.logger.Debug("Registered method", "method", name, "params", len(entry.Params))
	return nil
}

func (r *Registry) build(name string, c Callable, opts []Option) (*MethodEntry, bool, error) {
	if c == nil {
		return nil, false, fmt.Errorf("%w: %s has no implementation", ErrInvalidMethod, name)
	}
	var o methodOptions
	for _, opt := range opts {
		opt(&o)
	}

	declared, err := c.Params()
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", name, err)
	}

	entry := &MethodEntry{
		Name:         name,
		Validate:     r.defaults.Validate,
		Notification: r.defaults.Notification,
		Strict:       o.strict,
		Meta:         o.meta,
		Returns:      c.Returns(),
		callable:     c,
	}
	if o.validate != nil {
		entry.Validate = *o.validate
	}
	if o.notification != nil {
		entry.Notification = *o.notification
	}
	if o.returns != nil {
		entry.Returns = o.returns
	}
	entry.ReturnKind = Resolve(entry.Returns)

	seen := make(map[string]bool, len(declared))
	for i, p := range declared {
		if p.Name == "" {
			return nil, false, fmt.Errorf("%w: %s parameter %d has no name", ErrInvalidMethod, name, i)
		}
		if seen[p.Name] {
			return nil, false, fmt.Errorf("%w: %s parameter %q declared twice", ErrInvalidMethod, name, p.Name)
		}
		seen[p.Name] = true
		if p.Variadic && i != len(declared)-1 {
			return nil, false, fmt.Errorf("%w: %s variadic parameter %q is not last", ErrInvalidMethod, name, p.Name)
		}
		if v, ok := o.defaults[p.Name]; ok {
			p = p.WithDefault(v)
		}
		if tag, ok := o.constraints[p.Name]; ok {
			p.Constraints = tag
		}
		if doc, ok := o.docs[p.Name]; ok {
			p.Summary, p.Description = doc[0], doc[1]
		}
		p = p.resolve()
		if p.HasDefault {
			v, err := convertDefault(p)
			if err != nil {
				return nil, false, fmt.Errorf("%w: %s parameter %q: %v", ErrInvalidMethod, name, p.Name, err)
			}
			p.Default = v
		}
		if err := compileConstraints(p); err != nil {
			return nil, false, fmt.Errorf("%w: %s parameter %q: %v", ErrInvalidMethod, name, p.Name, err)
		}
		entry.hasVariadic = entry.hasVariadic || p.Variadic
		entry.Params = append(entry.Params, p)
	}

	if o.schema != "" {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(o.schema))
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s params schema: %v", ErrInvalidMethod, name, err)
		}
		entry.paramsSchema = schema
	}

	return entry, o.override, nil
}

// Resolve looks up a method by name.
func (r *Registry) Resolve(name string) (*MethodEntry, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, ok := r.methods[name]
	return entry, ok
}

// List returns all methods in registration order.
func (r *Registry) List() []*MethodEntry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entries := make([]*MethodEntry, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, r.methods[name])
	}
	return entries
}

// Len returns the number of registered methods.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.order)
}
