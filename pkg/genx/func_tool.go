package genx

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

var _ Tool = (*FuncTool)(nil)

type FuncToolOption[ArgType any] interface {
	applyToFuncTool(*FuncTool)
}

// InvokeFunc receives decoded arguments of type T.
type InvokeFunc[T any] func(ctx context.Context, call *FuncCall, arg T) (any, error)

func (fn InvokeFunc[T]) applyToFuncTool(t *FuncTool) {
	t.Invoke = func(ctx context.Context, call *FuncCall, arg string) (any, error) {
		var v T
		if err := unmarshalJSON([]byte(arg), &v); err != nil {
			return nil, fmt.Errorf("unmarshal %q error: %w", arg, err)
		}
		return fn(ctx, call, v)
	}
}

// FuncTool is a function the model may call, or the shape of a structured
// answer when passed to Generator.Invoke.
type FuncTool struct {
	Name        string
	Description string
	Argument    *jsonschema.Schema

	Invoke func(ctx context.Context, call *FuncCall, arg string) (any, error)
}

func (tool *FuncTool) NewFuncCall(args string) *FuncCall {
	return &FuncCall{
		Name:      tool.Name,
		Arguments: args,

		tool: tool,
	}
}

func (*FuncTool) isTool() {}

// NewFuncTool derives the argument schema from ArgType.
func NewFuncTool[ArgType any](name, description string, opts ...FuncToolOption[ArgType]) (*FuncTool, error) {
	tool := &FuncTool{
		Name:        name,
		Description: description,
	}
	for _, opt := range opts {
		opt.applyToFuncTool(tool)
	}
	arg, err := jsonschema.For[ArgType](&jsonschema.ForOptions{})
	if err != nil {
		return nil, err
	}
	tool.Argument = arg

	if tool.Invoke == nil {
		tool.Invoke = func(ctx context.Context, _ *FuncCall, arg string) (any, error) {
			var v ArgType
			if err := unmarshalJSON([]byte(arg), &v); err != nil {
				return nil, fmt.Errorf("unmarshal %q error: %w", arg, err)
			}
			return &v, nil
		}
	}
	return tool, nil
}

func MustNewFuncTool[ArgType any](name, description string, opts ...FuncToolOption[ArgType]) *FuncTool {
	tool, err := NewFuncTool(name, description, opts...)
	if err != nil {
		panic(err)
	}
	return tool
}

// NewRawFuncTool wraps a tool whose schema is known only at runtime, such as
// a tool discovered on a remote server.
func NewRawFuncTool(name, description string, schema *jsonschema.Schema, invoke func(ctx context.Context, arg string) (any, error)) *FuncTool {
	return &FuncTool{
		Name:        name,
		Description: description,
		Argument:    schema,
		Invoke: func(ctx context.Context, _ *FuncCall, arg string) (any, error) {
			return invoke(ctx, arg)
		},
	}
}
