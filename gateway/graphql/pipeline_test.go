package graphql

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/tallyhq/ledgergate/auth"
	"github.com/tallyhq/ledgergate/pkg/cache"
)

func testRequestContext() *RequestContext {
	return &RequestContext{
		RequestID: "req-test",
		Identity:  auth.Identity{Subject: "auth0|alice", Email: "alice@example.com"},
	}
}

type executorOverrides struct {
	respCache   *ResponseCache
	rateLimiter *RateLimiter
	costCfg     *CostConfig
	resolver    ResolverFunc
}

func newTestExecutor(t *testing.T, o executorOverrides) *Executor {
	t.Helper()

	validator, err := NewValidator(SizeLimits{}, nil)
	require.NoError(t, err)
	require.NoError(t, validator.Register("createTransaction", createTransactionSchema))

	costCfg := CostConfig{}
	if o.costCfg != nil {
		costCfg = *o.costCfg
	}
	resolver := o.resolver
	if resolver == nil {
		resolver = func(context.Context, *ast.OperationDefinition, map[string]any) (json.RawMessage, error) {
			return json.RawMessage(`{"ok":true}`), nil
		}
	}

	exec, err := NewExecutor(ExecutorParams{
		CostConfig:  costCfg,
		Validator:   validator,
		RespCache:   o.respCache,
		RateLimiter: o.rateLimiter,
		Resolver:    resolver,
	})
	require.NoError(t, err)
	return exec
}

func TestExecuteHappyPath(t *testing.T) {
	exec := newTestExecutor(t, executorOverrides{})

	resp := exec.Execute(context.Background(), testRequestContext(), Request{
		Query: `query { me { id email } }`,
	})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Data))
}

func TestExecuteParseFailure(t *testing.T) {
	exec := newTestExecutor(t, executorOverrides{})

	resp := exec.Execute(context.Background(), testRequestContext(), Request{
		Query: `query { unterminated`,
	})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, CodeBadUserInput, resp.Errors[0].Extensions["code"])
}

func TestExecuteNoMatchingOperation(t *testing.T) {
	exec := newTestExecutor(t, executorOverrides{})

	resp := exec.Execute(context.Background(), testRequestContext(), Request{
		Query:         `query GetMe { me { id } }`,
		OperationName: "SomethingElse",
	})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, CodeBadUserInput, resp.Errors[0].Extensions["code"])
}

func TestExecuteComplexityRejection(t *testing.T) {
	costCfg := CostConfig{MaximumComplexity: 2}
	require.NoError(t, costCfg.Validate())
	var calls atomic.Int64

	exec := newTestExecutor(t, executorOverrides{
		costCfg: &costCfg,
		resolver: func(context.Context, *ast.OperationDefinition, map[string]any) (json.RawMessage, error) {
			calls.Add(1)
			return json.RawMessage(`{}`), nil
		},
	})

	resp := exec.Execute(context.Background(), testRequestContext(), Request{
		Query: `query { accounts { transactions { splits { id } } } }`,
	})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, CodeQueryTooComplex, resp.Errors[0].Extensions["code"])
	// The resolver never runs for a rejected query
	assert.Zero(t, calls.Load())
}

func TestExecuteMutationValidationRejection(t *testing.T) {
	var calls atomic.Int64
	exec := newTestExecutor(t, executorOverrides{
		resolver: func(context.Context, *ast.OperationDefinition, map[string]any) (json.RawMessage, error) {
			calls.Add(1)
			return json.RawMessage(`{}`), nil
		},
	})

	resp := exec.Execute(context.Background(), testRequestContext(), Request{
		Query: `mutation { createTransaction(input: {amount: "wrong"}) { id } }`,
	})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, CodeBadUserInput, resp.Errors[0].Extensions["code"])
	assert.Zero(t, calls.Load())
}

func TestExecuteMutationValidInputReachesResolver(t *testing.T) {
	var calls atomic.Int64
	exec := newTestExecutor(t, executorOverrides{
		resolver: func(context.Context, *ast.OperationDefinition, map[string]any) (json.RawMessage, error) {
			calls.Add(1)
			return json.RawMessage(`{"createTransaction":{"id":"tx-1"}}`), nil
		},
	})

	resp := exec.Execute(context.Background(), testRequestContext(), Request{
		Query:     `mutation ($in: CreateTransactionInput!) { createTransaction(input: $in) { id } }`,
		Variables: map[string]any{"in": map[string]any{"amount": 5}},
	})
	require.Empty(t, resp.Errors)
	assert.Equal(t, int64(1), calls.Load())
}

func TestExecuteIdenticalQueryServedFromCacheOnce(t *testing.T) {
	store, err := cache.NewHybrid[[]byte](context.Background(), 64, time.Minute, time.Minute)
	require.NoError(t, err)
	respCache := NewResponseCache(store, nil, time.Minute, nil)
	defer func() { _ = respCache.Close() }()

	var calls atomic.Int64
	exec := newTestExecutor(t, executorOverrides{
		respCache: respCache,
		resolver: func(context.Context, *ast.OperationDefinition, map[string]any) (json.RawMessage, error) {
			calls.Add(1)
			return json.RawMessage(`{"accounts":[{"id":"a1"}]}`), nil
		},
	})

	rc := testRequestContext()
	req := Request{Query: `query { accounts { id } }`}

	first := exec.Execute(context.Background(), rc, req)
	require.Empty(t, first.Errors)

	// Wait for the write-behind store to land
	fingerprint := Fingerprint(req.Query, req.Variables, rc.Identity.Subject)
	require.Eventually(t, func() bool {
		_, ok := respCache.Get(fingerprint)
		return ok
	}, time.Second, 5*time.Millisecond)

	second := exec.Execute(context.Background(), rc, req)
	require.Empty(t, second.Errors)

	assert.Equal(t, int64(1), calls.Load())
	assert.JSONEq(t, string(first.Data), string(second.Data))
}

func TestExecuteMutationNeverCached(t *testing.T) {
	store, err := cache.NewHybrid[[]byte](context.Background(), 64, time.Minute, time.Minute)
	require.NoError(t, err)
	respCache := NewResponseCache(store, nil, time.Minute, nil)
	defer func() { _ = respCache.Close() }()

	var calls atomic.Int64
	exec := newTestExecutor(t, executorOverrides{
		respCache: respCache,
		resolver: func(context.Context, *ast.OperationDefinition, map[string]any) (json.RawMessage, error) {
			calls.Add(1)
			return json.RawMessage(`{"createTransaction":{"id":"tx"}}`), nil
		},
	})

	req := Request{Query: `mutation { createTransaction(input: {amount: 1}) { id } }`}
	for i := 0; i < 2; i++ {
		resp := exec.Execute(context.Background(), testRequestContext(), req)
		require.Empty(t, resp.Errors)
	}

	// Both executions ran the resolver; nothing was written behind
	assert.Equal(t, int64(2), calls.Load())
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, store.Size())
}

func TestExecuteDifferentSubjectsDoNotShareCache(t *testing.T) {
	store, err := cache.NewHybrid[[]byte](context.Background(), 64, time.Minute, time.Minute)
	require.NoError(t, err)
	respCache := NewResponseCache(store, nil, time.Minute, nil)
	defer func() { _ = respCache.Close() }()

	var calls atomic.Int64
	exec := newTestExecutor(t, executorOverrides{
		respCache: respCache,
		resolver: func(context.Context, *ast.OperationDefinition, map[string]any) (json.RawMessage, error) {
			calls.Add(1)
			return json.RawMessage(`{"me":{"id":"x"}}`), nil
		},
	})

	req := Request{Query: `query { me { id } }`}

	alice := &RequestContext{RequestID: "r1", Identity: auth.Identity{Subject: "alice"}}
	bob := &RequestContext{RequestID: "r2", Identity: auth.Identity{Subject: "bob"}}

	exec.Execute(context.Background(), alice, req)
	require.Eventually(t, func() bool {
		_, ok := respCache.Get(Fingerprint(req.Query, nil, "alice"))
		return ok
	}, time.Second, 5*time.Millisecond)

	exec.Execute(context.Background(), bob, req)
	assert.Equal(t, int64(2), calls.Load())
}

func TestExecuteResolverErrorNormalized(t *testing.T) {
	exec := newTestExecutor(t, executorOverrides{
		resolver: func(context.Context, *ast.OperationDefinition, map[string]any) (json.RawMessage, error) {
			return nil, assert.AnError
		},
	})

	resp := exec.Execute(context.Background(), testRequestContext(), Request{
		Query: `query { me { id } }`,
	})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, CodeInternal, resp.Errors[0].Extensions["code"])
	assert.Equal(t, "req-test", resp.Errors[0].Extensions["requestId"])
}

func TestExecuteResolverErrorNotCached(t *testing.T) {
	store, err := cache.NewHybrid[[]byte](context.Background(), 64, time.Minute, time.Minute)
	require.NoError(t, err)
	respCache := NewResponseCache(store, nil, time.Minute, nil)
	defer func() { _ = respCache.Close() }()

	exec := newTestExecutor(t, executorOverrides{
		respCache: respCache,
		resolver: func(context.Context, *ast.OperationDefinition, map[string]any) (json.RawMessage, error) {
			return nil, assert.AnError
		},
	})

	exec.Execute(context.Background(), testRequestContext(), Request{Query: `query { me { id } }`})

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, store.Size())
}

func TestExecuteRateLimited(t *testing.T) {
	limiter, err := NewRateLimiter(1, 1, 100, nil)
	require.NoError(t, err)
	defer func() { _ = limiter.Close() }()

	exec := newTestExecutor(t, executorOverrides{rateLimiter: limiter})

	rc := testRequestContext()
	req := Request{Query: `query { me { id } }`}

	first := exec.Execute(context.Background(), rc, req)
	require.Empty(t, first.Errors)

	second := exec.Execute(context.Background(), rc, req)
	require.Len(t, second.Errors, 1)
	assert.Equal(t, CodeRateLimited, second.Errors[0].Extensions["code"])
}

func TestExecuteRequestContextVisibleToResolver(t *testing.T) {
	var seenSubject string
	exec := newTestExecutor(t, executorOverrides{
		resolver: func(ctx context.Context, _ *ast.OperationDefinition, _ map[string]any) (json.RawMessage, error) {
			if rc, ok := FromContext(ctx); ok {
				seenSubject = rc.Identity.Subject
			}
			return json.RawMessage(`{}`), nil
		},
	})

	exec.Execute(context.Background(), testRequestContext(), Request{Query: `query { me { id } }`})
	assert.Equal(t, "auth0|alice", seenSubject)
}
