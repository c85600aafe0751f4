package graphql

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tallyhq/ledgergate/errors"
)

// Validator enforces structural size ceilings and per-operation JSON-schema
// validation on extracted inputs. Schemas are registered once at startup
// against the mutation field name; operations without a registered schema
// pass through after the size check.
type Validator struct {
	limits  SizeLimits
	schemas map[string]*gojsonschema.Schema
	logger  *slog.Logger
}

// NewValidator creates a validator with the given size limits.
func NewValidator(limits SizeLimits, logger *slog.Logger) (*Validator, error) {
	if err := limits.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Validator", "NewValidator", "limits validation")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		limits:  limits,
		schemas: make(map[string]*gojsonschema.Schema),
		logger:  logger.With("component", "validator"),
	}, nil
}

// Register compiles and stores the JSON schema for an operation.
func (v *Validator) Register(operation string, schemaJSON []byte) error {
	if operation == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Validator", "Register",
			"operation name check")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return errors.WrapInvalid(err, "Validator", "Register", "schema compile")
	}
	v.schemas[operation] = schema
	return nil
}

// Operations returns the registered operation names, sorted.
func (v *Validator) Operations() []string {
	ops := make([]string, 0, len(v.schemas))
	for op := range v.schemas {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Validate runs the size check and then, if a schema is registered for the
// operation, the schema check. Size violations short-circuit: an oversized
// input is rejected before any schema evaluation touches it.
func (v *Validator) Validate(operation string, input any) error {
	if sizeErrs := checkSize(input, "", v.limits); len(sizeErrs) > 0 {
		return &RequestError{
			Code:       CodeInputSizeExceeded,
			Message:    "input exceeds structural size limits",
			Validation: sizeErrs,
		}
	}

	schema, ok := v.schemas[operation]
	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return errors.WrapInvalid(err, "Validator", "Validate", "schema evaluation")
	}
	if result.Valid() {
		return nil
	}

	violations := make([]ValidationError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		violations = append(violations, ValidationError{
			FieldPath: re.Field(),
			Message:   re.Description(),
		})
	}
	return &RequestError{
		Code:       CodeBadUserInput,
		Message:    fmt.Sprintf("input failed validation for %s", operation),
		Validation: violations,
	}
}

// checkSize walks the value tree collecting every string and array ceiling
// violation with its field path.
func checkSize(value any, path string, limits SizeLimits) []ValidationError {
	var violations []ValidationError

	switch v := value.(type) {
	case string:
		if len(v) > limits.MaxStringLength {
			violations = append(violations, ValidationError{
				FieldPath: pathOrRoot(path),
				Message: fmt.Sprintf("string length %d exceeds the maximum of %d",
					len(v), limits.MaxStringLength),
			})
		}

	case []any:
		if len(v) > limits.MaxArrayLength {
			violations = append(violations, ValidationError{
				FieldPath: pathOrRoot(path),
				Message: fmt.Sprintf("array length %d exceeds the maximum of %d",
					len(v), limits.MaxArrayLength),
			})
		}
		for i, elem := range v {
			violations = append(violations, checkSize(elem, fmt.Sprintf("%s[%d]", path, i), limits)...)
		}

	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			violations = append(violations, checkSize(v[k], childPath, limits)...)
		}
	}

	return violations
}

func pathOrRoot(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}
