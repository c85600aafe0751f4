package graphql

import (
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
)

// ExtractInput reconstructs the input payload of a field from its arguments,
// resolving variable references against vars. The second return reports
// whether there is anything to validate.
//
// An argument literally named "input" is preferred and returned as-is.
// Otherwise all arguments are assembled into a synthetic map keyed by
// argument name; a field with no arguments yields (nil, false).
//
// Undefined is distinct from null throughout: a variable reference absent
// from vars is undefined. An undefined top-level input yields (nil, false)
// so validation is skipped entirely; undefined object members are omitted
// from the resolved map; undefined list elements resolve to null so list
// positions stay stable.
func ExtractInput(field *ast.Field, vars map[string]any) (any, bool) {
	if field == nil || len(field.Arguments) == 0 {
		return nil, false
	}

	if arg := field.Arguments.ForName("input"); arg != nil {
		value, defined := resolveValue(arg.Value, vars)
		if !defined {
			return nil, false
		}
		return value, true
	}

	synthetic := make(map[string]any, len(field.Arguments))
	for _, arg := range field.Arguments {
		value, defined := resolveValue(arg.Value, vars)
		if !defined {
			continue
		}
		synthetic[arg.Name] = value
	}
	if len(synthetic) == 0 {
		return nil, false
	}
	return synthetic, true
}

// resolveValue converts an AST value to its Go representation. The boolean
// is false only for undefined variable references.
func resolveValue(v *ast.Value, vars map[string]any) (any, bool) {
	if v == nil {
		return nil, false
	}

	switch v.Kind {
	case ast.Variable:
		value, ok := vars[v.Raw]
		if !ok {
			return nil, false
		}
		return value, true

	case ast.IntValue, ast.FloatValue:
		// Both resolve to float64, the type encoding/json decodes every
		// JSON number to. Inline literals and variable-bound values must
		// extract identically.
		f, err := strconv.ParseFloat(v.Raw, 64)
		if err != nil {
			return v.Raw, true
		}
		return f, true

	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return v.Raw, true

	case ast.BooleanValue:
		return v.Raw == "true", true

	case ast.NullValue:
		return nil, true

	case ast.ListValue:
		list := make([]any, 0, len(v.Children))
		for _, child := range v.Children {
			value, defined := resolveValue(child.Value, vars)
			if !defined {
				// Keep the position, undefined collapses to null here.
				value = nil
			}
			list = append(list, value)
		}
		return list, true

	case ast.ObjectValue:
		obj := make(map[string]any, len(v.Children))
		for _, child := range v.Children {
			value, defined := resolveValue(child.Value, vars)
			if !defined {
				continue
			}
			obj[child.Name] = value
		}
		return obj, true

	default:
		return v.Raw, true
	}
}
