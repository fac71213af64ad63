package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Callable is a method implementation together with its declared signature.
type Callable interface {
	// Params returns the declared parameters in positional order.
	Params() ([]ParamSpec, error)

	// Returns returns the declared result type, or nil if unknown.
	Returns() Type

	// Call invokes the method with one bound value per declared parameter.
	// A variadic parameter receives a []any.
	Call(ctx context.Context, args []any) (any, error)
}

// Args gives a HandlerFunc access to its bound parameters.
type Args struct {
	names  []string
	values []any
}

// Len returns the number of bound parameters.
func (a Args) Len() int { return len(a.values) }

// At returns the i-th bound value.
func (a Args) At(i int) any { return a.values[i] }

// Get returns the value bound to name, or nil.
func (a Args) Get(name string) any {
	for i, n := range a.names {
		if n == name {
			return a.values[i]
		}
	}
	return nil
}

// String returns the value bound to name as a string.
func (a Args) String(name string) string {
	s, _ := a.Get(name).(string)
	return s
}

// Float returns the value bound to name as a float64.
func (a Args) Float(name string) float64 {
	switch v := a.Get(name).(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case int:
		return float64(v)
	}
	return 0
}

// Handler is a method that reads its parameters through Args.
type Handler func(ctx context.Context, args Args) (any, error)

type handlerCallable struct {
	fn     Handler
	params []ParamSpec
}

// HandlerFunc pairs a Handler with an explicit parameter table.
func HandlerFunc(fn Handler, params ...ParamSpec) Callable {
	return &handlerCallable{fn: fn, params: params}
}

func (h *handlerCallable) Params() ([]ParamSpec, error) { return h.params, nil }

func (h *handlerCallable) Returns() Type { return nil }

func (h *handlerCallable) Call(ctx context.Context, args []any) (any, error) {
	names := make([]string, len(h.params))
	for i, p := range h.params {
		names[i] = p.Name
	}
	return h.fn(ctx, Args{names: names, values: args})
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

type funcCallable struct {
	fn      reflect.Value
	withCtx bool
	names   []string
	params  []ParamSpec
	returns Type
	err     error
}

// Func derives a Callable from a Go function. An optional leading
// context.Context is passed through; the remaining parameters are named by
// names in order. Pointer and interface parameters are optional. The
// function may return nothing, a value, an error, or a value and an error.
func Func(fn any, names ...string) Callable {
	c := &funcCallable{fn: reflect.ValueOf(fn), names: names}
	c.err = c.derive()
	return c
}

func (c *funcCallable) derive() error {
	if c.fn.Kind() != reflect.Func || c.fn.IsNil() {
		return fmt.Errorf("%w: %T is not a function", ErrInvalidMethod, c.fn.Interface())
	}
	ft := c.fn.Type()

	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		c.withCtx = true
		first = 1
	}
	if ft.NumIn()-first != len(c.names) {
		return fmt.Errorf("%w: function takes %d parameters, %d names given", ErrInvalidMethod, ft.NumIn()-first, len(c.names))
	}

	for i, name := range c.names {
		t := ft.In(first + i)
		spec := ParamSpec{Name: name}
		if ft.IsVariadic() && first+i == ft.NumIn()-1 {
			t = t.Elem()
			spec.Variadic = true
		}
		spec.Type = GoType(t)
		spec.goType = t
		if !spec.Variadic && (t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface) {
			spec = spec.Optional()
		}
		c.params = append(c.params, spec)
	}

	switch ft.NumOut() {
	case 0:
		c.returns = Of(KindNull)
	case 1:
		if ft.Out(0) == errorType {
			c.returns = Of(KindNull)
		} else {
			c.returns = GoType(ft.Out(0))
		}
	case 2:
		if ft.Out(1) != errorType {
			return fmt.Errorf("%w: second result must be error", ErrInvalidMethod)
		}
		c.returns = GoType(ft.Out(0))
	default:
		return fmt.Errorf("%w: too many results", ErrInvalidMethod)
	}
	return nil
}

func (c *funcCallable) Params() ([]ParamSpec, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.params, nil
}

func (c *funcCallable) Returns() Type { return c.returns }

func (c *funcCallable) Call(ctx context.Context, args []any) (any, error) {
	in := make([]reflect.Value, 0, len(args)+1)
	if c.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, p := range c.params {
		if p.Variadic {
			rest, _ := args[i].([]any)
			for _, v := range rest {
				rv, err := valueFor(p, v)
				if err != nil {
					return nil, err
				}
				in = append(in, rv)
			}
			continue
		}
		rv, err := valueFor(p, args[i])
		if err != nil {
			return nil, err
		}
		in = append(in, rv)
	}
	return splitResults(c.fn.Call(in))
}

type typedCallable struct {
	fn      reflect.Value
	pt      reflect.Type
	fields  []int
	params  []ParamSpec
	returns Type
	err     error
}

// Typed derives a Callable from a function taking a params struct. Each
// exported field is a parameter named by its json tag. The validate tag sets
// constraints, the default tag holds a JSON default and description documents
// the parameter. Pointer fields and fields tagged omitempty are optional.
func Typed[P any, R any](fn func(ctx context.Context, params P) (R, error)) Callable {
	c := &typedCallable{
		fn:      reflect.ValueOf(fn),
		pt:      reflect.TypeOf((*P)(nil)).Elem(),
		returns: TypeFor[R](),
	}
	c.err = c.derive()
	return c
}

func (c *typedCallable) derive() error {
	if c.pt.Kind() != reflect.Struct {
		return fmt.Errorf("%w: params type %s is not a struct", ErrInvalidMethod, c.pt)
	}
	for i := 0; i < c.pt.NumField(); i++ {
		f := c.pt.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		spec := ParamSpec{
			Name:        name,
			Type:        GoType(f.Type),
			Constraints: f.Tag.Get("validate"),
			Description: f.Tag.Get("description"),
			goType:      f.Type,
		}
		if def, ok := f.Tag.Lookup("default"); ok {
			v := reflect.New(f.Type)
			if err := json.Unmarshal([]byte(def), v.Interface()); err != nil {
				return fmt.Errorf("%w: default of %s: %v", ErrInvalidMethod, name, err)
			}
			spec = spec.WithDefault(v.Elem().Interface())
		} else if f.Type.Kind() == reflect.Pointer {
			spec = spec.Optional()
		} else if strings.Contains(opts, "omitempty") {
			spec = spec.WithDefault(reflect.Zero(f.Type).Interface())
		}
		c.fields = append(c.fields, i)
		c.params = append(c.params, spec)
	}
	return nil
}

func (c *typedCallable) Params() ([]ParamSpec, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.params, nil
}

func (c *typedCallable) Returns() Type { return c.returns }

func (c *typedCallable) Call(ctx context.Context, args []any) (any, error) {
	pv := reflect.New(c.pt).Elem()
	for i, field := range c.fields {
		rv, err := valueFor(c.params[i], args[i])
		if err != nil {
			return nil, err
		}
		pv.Field(field).Set(rv)
	}
	return splitResults(c.fn.Call([]reflect.Value{reflect.ValueOf(ctx), pv}))
}

// valueFor converts a bound value to the parameter's Go type for a
// reflective call. Only numeric values are converted between types.
func valueFor(p ParamSpec, v any) (reflect.Value, error) {
	t := p.goType
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumericKind(rv.Kind()) && isNumericKind(t.Kind()) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, NewInternalError("argument %q of type %s cannot be passed as %s", p.Name, rv.Type(), t)
}

func isNumericKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

func splitResults(out []reflect.Value) (any, error) {
	var result any
	var err error
	for _, o := range out {
		if o.Type() == errorType {
			if !o.IsNil() {
				err = o.Interface().(error)
			}
			continue
		}
		result = o.Interface()
	}
	return result, err
}

// ErrorDoc documents an error a method may return.
type ErrorDoc struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ExampleParam is one named value of an Example.
type ExampleParam struct {
	Name        string `json:"name"`
	Value       any    `json:"value"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
}

// Example documents one call of a method.
type Example struct {
	Name        string         `json:"name"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Params      []ExampleParam `json:"params"`
	Result      *ExampleParam  `json:"result,omitempty"`
}

// Metadata is optional documentation used by introspection.
type Metadata struct {
	Summary     string
	Description string
	Tags        []string
	Errors      []ErrorDoc
	Examples    []Example
	Deprecated  bool
}

// MethodEntry is one registered method. It is not modified after
// registration.
type MethodEntry struct {
	Name         string
	Params       []ParamSpec
	Returns      Type
	ReturnKind   TypeKind
	Validate     bool
	Notification bool
	Strict       bool
	Meta         Metadata

	callable     Callable
	invoke       Invoker
	paramsSchema *gojsonschema.Schema
	hasVariadic  bool
}

// Call describes one invocation passed through middleware.
type Call struct {
	Method       string
	ID           json.RawMessage
	Notification bool
	Args         []any
	Entry        *MethodEntry
}

// Invoker runs a bound call.
type Invoker func(ctx context.Context, call *Call) (any, error)

// Middleware wraps an Invoker.
type Middleware func(next Invoker) Invoker

// Option configures a method at registration.
type Option func(*methodOptions)

type methodOptions struct {
	validate     *bool
	notification *bool
	strict       bool
	override     bool
	returns      Type
	meta         Metadata
	defaults     map[string]any
	constraints  map[string]string
	docs         map[string][2]string
	schema       string
}

// WithValidate toggles parameter type checking.
func WithValidate(v bool) Option {
	return func(o *methodOptions) { o.validate = &v }
}

// WithNotification toggles whether the method accepts notifications.
func WithNotification(v bool) Option {
	return func(o *methodOptions) { o.notification = &v }
}

// WithStrictParams rejects unknown keys in by-name params.
func WithStrictParams() Option {
	return func(o *methodOptions) { o.strict = true }
}

// WithOverride replaces an existing method of the same name.
func WithOverride() Option {
	return func(o *methodOptions) { o.override = true }
}

// WithReturns declares the result type.
func WithReturns(t Type) Option {
	return func(o *methodOptions) { o.returns = t }
}

// WithSummary sets the method summary.
func WithSummary(s string) Option {
	return func(o *methodOptions) { o.meta.Summary = s }
}

// WithDescription sets the method description.
func WithDescription(s string) Option {
	return func(o *methodOptions) { o.meta.Description = s }
}

// WithTags sets the method tags.
func WithTags(tags ...string) Option {
	return func(o *methodOptions) { o.meta.Tags = append(o.meta.Tags, tags...) }
}

// WithErrors documents errors the method may return.
func WithErrors(errs ...ErrorDoc) Option {
	return func(o *methodOptions) { o.meta.Errors = append(o.meta.Errors, errs...) }
}

// WithExamples documents example calls.
func WithExamples(examples ...Example) Option {
	return func(o *methodOptions) { o.meta.Examples = append(o.meta.Examples, examples...) }
}

// Deprecated marks the method as deprecated.
func Deprecated() Option {
	return func(o *methodOptions) { o.meta.Deprecated = true }
}

// WithDefault sets the default of a derived parameter.
func WithDefault(param string, v any) Option {
	return func(o *methodOptions) {
		if o.defaults == nil {
			o.defaults = make(map[string]any)
		}
		o.defaults[param] = v
	}
}

// WithConstraint sets a validator tag on a derived parameter.
func WithConstraint(param, tag string) Option {
	return func(o *methodOptions) {
		if o.constraints == nil {
			o.constraints = make(map[string]string)
		}
		o.constraints[param] = tag
	}
}

// WithParamDoc documents a derived parameter.
func WithParamDoc(param, summary, description string) Option {
	return func(o *methodOptions) {
		if o.docs == nil {
			o.docs = make(map[string][2]string)
		}
		o.docs[param] = [2]string{summary, description}
	}
}

// WithParamsSchema validates the params member against a JSON Schema.
func WithParamsSchema(schema string) Option {
	return func(o *methodOptions) { o.schema = schema }
}
