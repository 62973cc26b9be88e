package nrpc

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/url"

	"github.com/pkg/errors"
)

// Caller invokes one procedure.
type Caller func(ctx context.Context, input any) (any, error)

// FormTransformer converts form input (url.Values or *multipart.Form)
// into structured input.  The procedure's input schema, which may be
// nil, is provided to guide coercion.
type FormTransformer func(form any, schema Schema) (any, error)

// CallerOpt are functional arguments for NewCaller
type CallerOpt func(*callerConfig)

type callerConfig struct {
	context ContextSource
	path    []string
	setup   []func(*Hooks)
	form    FormTransformer
}

// WithContext sets the source of the initial context.  The source is
// evaluated once per call.
func WithContext(src ContextSource) CallerOpt {
	return func(cfg *callerConfig) {
		cfg.context = src
	}
}

// WithPath records the router path of the procedure.  The path is
// passed to middleware and the handler in Meta.
func WithPath(path ...string) CallerOpt {
	return func(cfg *callerConfig) {
		cfg.path = append([]string(nil), path...)
	}
}

// WithOnSuccess registers a success hook for every call.
func WithOnSuccess(fn SuccessHook) CallerOpt {
	return WithHooks(func(h *Hooks) { h.OnSuccess(fn) })
}

// WithOnError registers an error hook for every call.
func WithOnError(fn ErrorHook) CallerOpt {
	return WithHooks(func(h *Hooks) { h.OnError(fn) })
}

// WithOnFinish registers a finish hook for every call.
func WithOnFinish(fn FinishHook) CallerOpt {
	return WithHooks(func(h *Hooks) { h.OnFinish(fn) })
}

// WithHooks provides a function that is called at the start of every
// call, before the context is resolved, to register hooks for that
// call.
func WithHooks(setup func(*Hooks)) CallerOpt {
	return func(cfg *callerConfig) {
		cfg.setup = append(cfg.setup, setup)
	}
}

// WithFormTransformer overrides the conversion of url.Values and
// *multipart.Form input.  The default keeps single values as strings
// and repeated values as lists, then applies the input schema's
// Coercer if it has one.
func WithFormTransformer(fn FormTransformer) CallerOpt {
	return func(cfg *callerConfig) {
		cfg.form = fn
	}
}

// NewCaller returns a Caller for p which must be a *Procedure or a Lazy
// that loads a *Procedure.  A lazy procedure is loaded on every call.
func NewCaller(p any, opts ...CallerOpt) Caller {
	var cfg callerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.form == nil {
		cfg.form = DefaultFormTransformer
	}
	return func(ctx context.Context, input any) (any, error) {
		procedure, err := LoadProcedure(ctx, p)
		if err != nil {
			return nil, err
		}
		hooks := &Hooks{}
		for _, setup := range cfg.setup {
			setup(hooks)
		}
		c, err := cfg.context.resolve(ctx)
		if err != nil {
			return nil, err
		}
		meta := Meta{
			Path:      append([]string(nil), cfg.path...),
			Procedure: procedure,
			Hooks:     hooks,
		}
		return ExecuteWithHooks(ctx, hooks, func(ctx context.Context) (any, error) {
			return execute(ctx, procedure, input, c, meta, cfg.form)
		})
	}
}

// Call is NewCaller for a single call.
func Call(ctx context.Context, p any, input any, opts ...CallerOpt) (any, error) {
	return NewCaller(p, opts...)(ctx, input)
}

// LoadProcedure returns p if it is a *Procedure, or forces it if it is
// a Lazy.  Anything else is NOT_FOUND with cause ErrNotProcedure.
func LoadProcedure(ctx context.Context, p any) (*Procedure, error) {
	v, err := forceAll(ctx, p)
	if err != nil {
		return nil, err
	}
	procedure, ok := v.(*Procedure)
	if !ok || procedure == nil {
		return nil, notFound(ErrNotProcedure)
	}
	return procedure, nil
}

func execute(ctx context.Context, p *Procedure, input any, c Context, meta Meta, form FormTransformer) (any, error) {
	contract := p.contract
	switch input.(type) {
	case url.Values, *multipart.Form:
		transformed, err := form(input, contract.InputSchema)
		if err != nil {
			return nil, NewError(BadRequest, WithMessage("Malformed form input"), WithCause(err))
		}
		input = transformed
	}

	validInput, err := validate(ctx, contract.InputSchema, input, BadRequest, "Validation input failed", "input")
	if err != nil {
		return nil, err
	}

	result, err := Execute(ctx, p.Middleware(), p.handler, validInput, c, meta)
	if err != nil {
		return nil, err
	}

	return validate(ctx, contract.OutputSchema, result.Output, InternalServerError, "Validation output failed", "output")
}

func validate(ctx context.Context, schema Schema, value any, code Code, message string, direction string) (any, error) {
	if schema == nil {
		return value, nil
	}
	res, err := schema.Validate(ctx, value)
	if err != nil {
		return nil, err
	}
	if len(res.Issues) > 0 {
		return nil, NewError(code,
			WithMessage(message),
			WithIssues(res.Issues...),
			WithCause(&ValidationError{Direction: direction, Issues: res.Issues}))
	}
	return res.Value, nil
}

// ValidationError is the cause of errors produced by failed input or
// output validation.
type ValidationError struct {
	Direction string
	Issues    []Issue
}

func (v *ValidationError) Error() string {
	if len(v.Issues) == 1 {
		return fmt.Sprintf("%s validation failed: %s", v.Direction, v.Issues[0].Message)
	}
	return fmt.Sprintf("%s validation failed with %d issues", v.Direction, len(v.Issues))
}

// DefaultFormTransformer flattens form values: a field with one value
// becomes a string and a field with several becomes a list.  Uploaded
// files become *multipart.FileHeader values.  If schema implements
// Coercer, the result is coerced.
func DefaultFormTransformer(form any, schema Schema) (any, error) {
	out := make(map[string]any)
	add := func(values map[string][]string) {
		for k, v := range values {
			switch len(v) {
			case 0:
			case 1:
				out[k] = v[0]
			default:
				list := make([]any, len(v))
				for i, s := range v {
					list[i] = s
				}
				out[k] = list
			}
		}
	}
	switch f := form.(type) {
	case url.Values:
		add(f)
	case *multipart.Form:
		if f != nil {
			add(f.Value)
			for k, files := range f.File {
				if len(files) == 1 {
					out[k] = files[0]
					continue
				}
				list := make([]any, len(files))
				for i, fh := range files {
					list[i] = fh
				}
				out[k] = list
			}
		}
	default:
		return nil, errors.Errorf("unsupported form type %T", form)
	}
	if coercer, ok := schema.(Coercer); ok {
		return coercer.Coerce(out), nil
	}
	return out, nil
}
