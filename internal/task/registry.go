package task

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxRetries is the retry budget of a task type registered without WithMaxRetries.
const DefaultMaxRetries = 3

// ErrDuplicateTaskType is returned when a type is registered twice.
var ErrDuplicateTaskType = errors.New("task type already registered")

// Handler executes one task type. P is the concrete parameter payload of
// that type; the returned string becomes the record's result.
type Handler[P any] func(ctx context.Context, params P) (string, error)

// RegisterOption customizes a registration.
type RegisterOption func(*registration)

// WithMaxRetries sets the retry budget for new records of the type.
func WithMaxRetries(n int) RegisterOption {
	return func(r *registration) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithTimeout overrides the dispatcher's execution ceiling for the type.
func WithTimeout(d time.Duration) RegisterOption {
	return func(r *registration) {
		if d > 0 {
			r.timeout = d
		}
	}
}

type registration struct {
	typ        Type
	maxRetries int
	timeout    time.Duration
	decode     func(raw json.RawMessage) (any, error)
	run        func(ctx context.Context, params any) (string, error)
}

// Registry maps each task type to exactly one handler and knows how to
// decode and validate that type's parameters.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Type]*registration
	validate *validator.Validate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Type]*registration),
		validate: validator.New(),
	}
}

// Register binds handler to typ. Parameters are decoded strictly into P and
// checked against its `validate` struct tags.
func Register[P any](r *Registry, typ Type, handler Handler[P], opts ...RegisterOption) error {
	if typ == "" {
		return fmt.Errorf("%w: empty task type", ErrUnknownTaskType)
	}
	if handler == nil {
		return fmt.Errorf("handler for %q cannot be nil", typ)
	}

	reg := &registration{
		typ:        typ,
		maxRetries: DefaultMaxRetries,
		decode: func(raw json.RawMessage) (any, error) {
			var params P
			if err := decodeStrict(raw, &params); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrValidation, typ, err)
			}
			if err := r.validateStruct(params); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrValidation, typ, err)
			}
			return params, nil
		},
		run: func(ctx context.Context, params any) (string, error) {
			p, ok := params.(P)
			if !ok {
				return "", Permanent(fmt.Errorf("%w: unexpected parameter type %T", ErrValidation, params))
			}
			return handler(ctx, p)
		},
	}
	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typ]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTaskType, typ)
	}
	r.handlers[typ] = reg
	return nil
}

// Types returns the registered task types in sorted order.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.handlers))
	for typ := range r.handlers {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Has reports whether a handler is registered for typ.
func (r *Registry) Has(typ Type) bool {
	_, err := r.lookup(typ)
	return err == nil
}

// Validate checks raw parameters against the shape registered for typ.
func (r *Registry) Validate(typ Type, raw json.RawMessage) error {
	reg, err := r.lookup(typ)
	if err != nil {
		return err
	}
	_, err = reg.decode(raw)
	return err
}

// MaxRetries returns the retry budget registered for typ.
func (r *Registry) MaxRetries(typ Type) (int, error) {
	reg, err := r.lookup(typ)
	if err != nil {
		return 0, err
	}
	return reg.maxRetries, nil
}

// Timeout returns the per-type execution ceiling, or zero if none was set.
func (r *Registry) Timeout(typ Type) time.Duration {
	reg, err := r.lookup(typ)
	if err != nil {
		return 0
	}
	return reg.timeout
}

// Execute decodes raw into the type's payload and invokes its handler.
// Decode failures are permanent since the stored parameters cannot change.
func (r *Registry) Execute(ctx context.Context, typ Type, raw json.RawMessage) (string, error) {
	reg, err := r.lookup(typ)
	if err != nil {
		return "", Permanent(err)
	}
	params, err := reg.decode(raw)
	if err != nil {
		return "", Permanent(err)
	}
	return reg.run(ctx, params)
}

func (r *Registry) lookup(typ Type) (*registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.handlers[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, typ)
	}
	return reg, nil
}

func (r *Registry) validateStruct(params any) error {
	v := reflect.ValueOf(params)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return errors.New("parameters are required")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	return r.validate.Struct(v.Interface())
}

// decodeStrict unmarshals raw into dst, rejecting unknown fields and
// trailing data. Absent parameters decode as an empty object.
func decodeStrict(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after parameters object")
	}
	return nil
}
