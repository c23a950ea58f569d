package hcl

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/nsafar1/vbmgrid/internal/config"
	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Converter is the HCL-specific implementation of the config.Converter interface.
type Converter struct {
	functions map[string]function.Function
}

// NewConverter creates a new HCL converter.
func NewConverter() *Converter {
	return &Converter{
		functions: map[string]function.Function{
			"concat":     stdlib.ConcatFunc,
			"flatten":    stdlib.FlattenFunc,
			"format":     stdlib.FormatFunc,
			"join":       stdlib.JoinFunc,
			"jsonencode": stdlib.JSONEncodeFunc,
			"lower":      stdlib.LowerFunc,
			"replace":    stdlib.ReplaceFunc,
			"upper":      stdlib.UpperFunc,
		},
	}
}

var _ config.Converter = (*Converter)(nil)

// DecodeParams populates the struct pointed to by target from params. Fields
// are matched by their `param:"name[,optional]"` tag. A required parameter
// that is absent, or a parameter no field accepts, is an error.
func (c *Converter) DecodeParams(ctx context.Context, target any, params map[string]cty.Value) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting parameter decoding.", "count", len(params))

	structVal := reflect.ValueOf(target)
	if structVal.Kind() != reflect.Ptr || structVal.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	structVal = structVal.Elem()
	if structVal.Kind() != reflect.Struct {
		return fmt.Errorf("target must point to a struct, got %s", structVal.Kind())
	}
	structType := structVal.Type()

	consumed := make(map[string]struct{}, len(params))
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		fieldVal := structVal.Field(i)

		tag := field.Tag.Get("param")
		if tag == "" || !fieldVal.CanSet() {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		optional := opts == "optional"

		val, ok := params[name]
		if !ok || val.IsNull() {
			if !optional {
				return fmt.Errorf("missing required parameter %q", name)
			}
			consumed[name] = struct{}{}
			continue
		}
		consumed[name] = struct{}{}
		if err := c.decode(ctx, val, fieldVal.Addr().Interface()); err != nil {
			return fmt.Errorf("failed to decode parameter %q: %w", name, err)
		}
	}

	var unknown []string
	for name := range params {
		if _, ok := consumed[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unsupported parameters: %s", strings.Join(unknown, ", "))
	}
	logger.Debug("Finished parameter decoding successfully.")
	return nil
}

// decode handles the conversion and decoding of a cty.Value into a Go pointer.
func (c *Converter) decode(ctx context.Context, val cty.Value, goVal any) error {
	logger := ctxlog.FromContext(ctx)
	valPtr := reflect.ValueOf(goVal)
	if valPtr.Kind() != reflect.Ptr {
		return fmt.Errorf("target for decoding must be a pointer, got %T", goVal)
	}

	impliedType, err := gocty.ImpliedType(valPtr.Elem().Interface())
	if err != nil {
		logger.Debug("Could not imply cty.Type from Go type, attempting direct decoding.", "go_type", valPtr.Elem().Type().String(), "error", err)
		return gocty.FromCtyValue(val, goVal)
	}

	convertedVal, err := convert.Convert(val, impliedType)
	if err != nil {
		return fmt.Errorf("cannot convert %s to required type %s: %w", val.Type().FriendlyName(), impliedType.FriendlyName(), err)
	}
	if !val.Type().Equals(convertedVal.Type()) {
		logger.Debug("Implicitly converted value type.",
			"from", val.Type().FriendlyName(),
			"to", convertedVal.Type().FriendlyName(),
		)
	}
	return gocty.FromCtyValue(convertedVal, goVal)
}

// EvalCommand evaluates a command template against one subject's variables.
// The template must yield a non-empty list whose elements are strings or
// numbers; numbers are rendered in their shortest decimal form.
func (c *Converter) EvalCommand(ctx context.Context, expr hcl.Expression, vars config.CommandVars) ([]string, error) {
	if expr == nil {
		return nil, errors.New("no command template")
	}

	inputs := make(map[string]cty.Value, len(vars.Inputs))
	for role, path := range vars.Inputs {
		inputs[role] = cty.StringVal(path)
	}
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			varSubject: cty.StringVal(string(vars.Subject)),
			varInputs:  cty.ObjectVal(inputs),
			varOutput:  cty.StringVal(vars.Output),
			varParams:  cty.ObjectVal(vars.Params),
		},
		Functions: c.functions,
	}

	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to evaluate command: %w", diags)
	}
	if val.IsNull() {
		return nil, errors.New("no command template")
	}
	if !val.IsWhollyKnown() {
		return nil, errors.New("command contains unknown values")
	}

	list, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("command must be a list of strings, got %s: %w", val.Type().FriendlyName(), err)
	}
	if list.LengthInt() == 0 {
		return nil, errors.New("command evaluates to an empty list")
	}

	argv := make([]string, 0, list.LengthInt())
	for i, el := range list.AsValueSlice() {
		if el.IsNull() {
			return nil, fmt.Errorf("command element %d is null", i)
		}
		argv = append(argv, el.AsString())
	}
	ctxlog.FromContext(ctx).Debug("Evaluated command template.", "argv", argv)
	return argv, nil
}
