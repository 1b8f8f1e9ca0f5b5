// Package tools exposes printer, monitor, and account operations as a
// named registry with declared input schemas. Callers (the CLI, and any
// future automation surface) invoke by name; no operation error escapes
// the dispatch boundary.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

var (
	ErrDuplicate        = errors.New("tools: operation already registered")
	ErrInvalidOperation = errors.New("tools: invalid operation")
)

// ParamType is the declared type of one operation argument.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInt     ParamType = "int"
	ParamBool    ParamType = "bool"
	ParamIntList ParamType = "int_list"
)

// Param declares one named argument of an operation.
type Param struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Required bool      `json:"required"`
	Help     string    `json:"help,omitempty"`
}

// Args holds validated, type-coerced arguments for one invocation.
type Args map[string]any

func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

func (a Args) Int(name string) int {
	v, _ := a[name].(int)
	return v
}

func (a Args) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

func (a Args) IntList(name string) []int {
	v, _ := a[name].([]int)
	return v
}

func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Handler runs one operation against validated args.
type Handler func(ctx context.Context, args Args) (any, error)

// Operation is one registered, invokable capability.
type Operation struct {
	Name   string  `json:"name"`
	Help   string  `json:"help"`
	Params []Param `json:"params,omitempty"`

	run Handler
}

// Result is the uniform outcome shape of every invocation.
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func fail(format string, args ...any) Result {
	return Result{OK: false, Error: fmt.Sprintf(format, args...)}
}

// Registry maps operation names to handlers. Built once at startup, then
// read-only.
type Registry struct {
	log zerolog.Logger
	ops map[string]Operation
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log: log.With().Str("component", "tools").Logger(),
		ops: make(map[string]Operation),
	}
}

// Register adds one operation. Names are unique for the registry lifetime.
func (r *Registry) Register(name, help string, params []Param, run Handler) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidOperation)
	}
	if run == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidOperation, name)
	}
	if _, ok := r.ops[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.ops[name] = Operation{Name: name, Help: help, Params: params, run: run}
	return nil
}

// List returns every operation sorted by name.
func (r *Registry) List() []Operation {
	out := make([]Operation, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke validates args against the operation's schema and runs it. Every
// failure, schema or handler, comes back as an error Result.
func (r *Registry) Invoke(ctx context.Context, name string, raw map[string]any) Result {
	op, ok := r.ops[name]
	if !ok {
		return fail("unknown operation %q", name)
	}

	args, err := coerceArgs(op.Params, raw)
	if err != nil {
		return fail("%s: %v", name, err)
	}

	data, err := op.run(ctx, args)
	if err != nil {
		r.log.Warn().Str("op", name).Err(err).Msg("operation failed")
		return Result{OK: false, Error: err.Error()}
	}
	return Result{OK: true, Data: data}
}

// coerceArgs checks required presence, rejects undeclared keys, and
// normalizes values to the declared types. Numbers arriving from JSON
// decode as float64 and are accepted when integral.
func coerceArgs(params []Param, raw map[string]any) (Args, error) {
	byName := make(map[string]Param, len(params))
	for _, p := range params {
		byName[p.Name] = p
	}
	for name := range raw {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("unknown argument %q", name)
		}
	}

	args := make(Args, len(raw))
	for _, p := range params {
		v, ok := raw[p.Name]
		if !ok {
			if p.Required {
				return nil, fmt.Errorf("missing required argument %q", p.Name)
			}
			continue
		}
		coerced, err := coerceValue(p.Type, v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %v", p.Name, err)
		}
		args[p.Name] = coerced
	}
	return args, nil
}

func coerceValue(t ParamType, v any) (any, error) {
	switch t {
	case ParamString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		return s, nil
	case ParamBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", v)
		}
		return b, nil
	case ParamInt:
		return toInt(v)
	case ParamIntList:
		switch list := v.(type) {
		case []int:
			return list, nil
		case []any:
			out := make([]int, 0, len(list))
			for _, item := range list {
				n, err := toInt(item)
				if err != nil {
					return nil, err
				}
				out = append(out, n)
			}
			return out, nil
		default:
			return nil, fmt.Errorf("want int list, got %T", v)
		}
	default:
		return nil, fmt.Errorf("unhandled param type %q", t)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("want integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
}
