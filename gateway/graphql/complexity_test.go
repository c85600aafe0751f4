package graphql

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

func parseOperation(t *testing.T, query string) *ast.OperationDefinition {
	t.Helper()
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	require.NoError(t, err)
	require.NotEmpty(t, doc.Operations)
	return doc.Operations[0]
}

func defaultCostConfig(t *testing.T) CostConfig {
	t.Helper()
	cfg := CostConfig{}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestScoreDeterministic(t *testing.T) {
	op := parseOperation(t, `query { accounts { id name transactions { id amount } } }`)
	cfg := defaultCostConfig(t)

	first := Score(op, cfg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(op, cfg))
	}
}

func TestScoreEmptySelection(t *testing.T) {
	scores := Score(&ast.OperationDefinition{Operation: ast.Query}, defaultCostConfig(t))
	assert.Zero(t, scores.Complexity)
	assert.Zero(t, scores.Cost)
	assert.Zero(t, scores.FieldCount)

	_, err := CheckShape(&ast.OperationDefinition{Operation: ast.Query}, defaultCostConfig(t))
	assert.NoError(t, err)
}

func TestScoreNestingAmplifies(t *testing.T) {
	cfg := defaultCostConfig(t)

	flat := Score(parseOperation(t, `query { a b c d }`), cfg)
	nested := Score(parseOperation(t, `query { a { b { c { d } } } }`), cfg)

	// Same field count, strictly higher scores when nested
	assert.Equal(t, flat.FieldCount, nested.FieldCount)
	assert.Greater(t, nested.Complexity, flat.Complexity)
	assert.Greater(t, nested.Cost, flat.Cost)
	assert.Greater(t, nested.MaxDepth, flat.MaxDepth)
}

func TestScoreDeeperNestingScoresHigher(t *testing.T) {
	cfg := defaultCostConfig(t)

	prev := Score(parseOperation(t, `query { a }`), cfg)
	queries := []string{
		`query { a { b } }`,
		`query { a { b { c } } }`,
		`query { a { b { c { d } } } }`,
	}
	for _, q := range queries {
		next := Score(parseOperation(t, q), cfg)
		assert.Greater(t, next.Complexity, prev.Complexity, "query %s", q)
		prev = next
	}
}

func TestScoreFieldWeightOverride(t *testing.T) {
	cfg := defaultCostConfig(t)
	plain := Score(parseOperation(t, `query { transactions }`), cfg)

	cfg.FieldWeights = map[string]float64{"transactions": 25}
	weighted := Score(parseOperation(t, `query { transactions }`), cfg)

	assert.Equal(t, float64(1), plain.Complexity)
	assert.Equal(t, float64(25), weighted.Complexity)
}

func TestScoreDepthCapFailsOpen(t *testing.T) {
	cfg := defaultCostConfig(t)
	cfg.MaximumDepth = 3

	capped := Score(parseOperation(t, `query { a { b { c { d { e { f } } } } } }`), cfg)
	atCap := Score(parseOperation(t, `query { a { b { c } } }`), cfg)

	// Levels beyond the cap contribute nothing; the query is not rejected
	assert.Equal(t, atCap.Complexity, capped.Complexity)
	assert.Equal(t, atCap.FieldCount, capped.FieldCount)
}

func TestScoreInlineFragmentSameDepth(t *testing.T) {
	cfg := defaultCostConfig(t)

	direct := Score(parseOperation(t, `query { accounts { id name } }`), cfg)
	fragmented := Score(parseOperation(t, `query { accounts { ... on Account { id name } } }`), cfg)

	assert.Equal(t, direct.Complexity, fragmented.Complexity)
	assert.Equal(t, direct.FieldCount, fragmented.FieldCount)
	assert.Equal(t, direct.MaxDepth, fragmented.MaxDepth)
}

func TestScoreFragmentSpreadSkipped(t *testing.T) {
	cfg := defaultCostConfig(t)
	op := parseOperation(t, `
		query { accounts { ...accountFields } }
		fragment accountFields on Account { id name balance }
	`)

	withSpread := Score(op, cfg)
	bare := Score(parseOperation(t, `query { accounts }`), cfg)
	assert.Equal(t, bare.Complexity, withSpread.Complexity)
}

func TestCheckShapeComplexityCeiling(t *testing.T) {
	cfg := defaultCostConfig(t)
	cfg.MaximumComplexity = 2

	_, err := CheckShape(parseOperation(t, `query { a { b { c } } }`), cfg)
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, stderrors.As(err, &reqErr))
	assert.Equal(t, CodeQueryTooComplex, reqErr.Code)
	assert.Contains(t, reqErr.Message, "exceeds the maximum of 2")
}

func TestCheckShapeCostCeiling(t *testing.T) {
	cfg := defaultCostConfig(t)
	cfg.MaximumComplexity = 1e9
	cfg.MaximumCost = 3

	_, err := CheckShape(parseOperation(t, `query { a { b { c { d } } } }`), cfg)
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, stderrors.As(err, &reqErr))
	assert.Equal(t, CodeQueryCostExceeded, reqErr.Code)
}

func TestCheckShapeWithinLimits(t *testing.T) {
	_, err := CheckShape(parseOperation(t, `query { me { id email } }`), defaultCostConfig(t))
	assert.NoError(t, err)
}
