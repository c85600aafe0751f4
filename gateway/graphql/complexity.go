package graphql

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
)

// Scores is the result of analyzing one operation's selection shape.
type Scores struct {
	Complexity float64
	Cost       float64
	FieldCount int
	MaxDepth   int
}

// Score computes the complexity and cost of an operation. It is pure: the
// same operation and config always produce the same scores.
//
// Complexity sums, per field, the field's weight plus its nested selection's
// complexity scaled by (1 + depth), so deep nesting amplifies strictly.
// Cost is fieldCount * BaseCostPerField * max(1, maxDepth *
// CostMultiplierPerDepth).
//
// Selections beyond MaximumDepth contribute zero to both scores. The cap
// fails open: a pathologically deep query is bounded by what the walk sees,
// not rejected outright for depth alone. Fragment spreads are opaque and
// skipped; inline fragments are walked at the same depth as their parent.
func Score(op *ast.OperationDefinition, cfg CostConfig) Scores {
	if op == nil {
		return Scores{}
	}
	complexity, fields, maxDepth := walkSelections(op.SelectionSet, 0, cfg)

	var cost float64
	if fields > 0 {
		depthFactor := float64(maxDepth) * cfg.CostMultiplierPerDepth
		if depthFactor < 1 {
			depthFactor = 1
		}
		cost = float64(fields) * cfg.BaseCostPerField * depthFactor
	}

	return Scores{
		Complexity: complexity,
		Cost:       cost,
		FieldCount: fields,
		MaxDepth:   maxDepth,
	}
}

func walkSelections(set ast.SelectionSet, depth int, cfg CostConfig) (complexity float64, fields, maxDepth int) {
	if len(set) == 0 || depth >= cfg.MaximumDepth {
		return 0, 0, depth
	}

	maxDepth = depth
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			fields++
			nested, nestedFields, nestedDepth := walkSelections(s.SelectionSet, depth+1, cfg)
			complexity += cfg.weightFor(s.Name) + nested*float64(1+depth)
			fields += nestedFields
			if len(s.SelectionSet) > 0 && nestedDepth > maxDepth {
				maxDepth = nestedDepth
			}
			if maxDepth < depth+1 {
				maxDepth = depth + 1
			}

		case *ast.InlineFragment:
			nested, nestedFields, nestedDepth := walkSelections(s.SelectionSet, depth, cfg)
			complexity += nested
			fields += nestedFields
			if nestedDepth > maxDepth {
				maxDepth = nestedDepth
			}

		case *ast.FragmentSpread:
			// Opaque: named fragments are not expanded here.
		}
	}
	return complexity, fields, maxDepth
}

// CheckShape scores the operation and rejects it when either ceiling is
// exceeded. The rejection names the ceiling, the computed value and the
// limit, which is governance detail the client is entitled to see.
func CheckShape(op *ast.OperationDefinition, cfg CostConfig) (Scores, error) {
	scores := Score(op, cfg)

	if scores.Complexity > cfg.MaximumComplexity {
		return scores, &RequestError{
			Code: CodeQueryTooComplex,
			Message: fmt.Sprintf("query complexity %.0f exceeds the maximum of %.0f",
				scores.Complexity, cfg.MaximumComplexity),
		}
	}
	if scores.Cost > cfg.MaximumCost {
		return scores, &RequestError{
			Code: CodeQueryCostExceeded,
			Message: fmt.Sprintf("query cost %.0f exceeds the maximum of %.0f",
				scores.Cost, cfg.MaximumCost),
		}
	}
	return scores, nil
}
