package graphql

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	gqlgen "github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/tallyhq/ledgergate/metric"
)

// ResolverFunc executes one operation and returns the JSON-encoded data
// payload. The business layer supplies it; the pipeline treats it as opaque.
// The RequestContext is available via FromContext.
type ResolverFunc func(ctx context.Context, op *ast.OperationDefinition, vars map[string]any) (json.RawMessage, error)

// Request is one GraphQL request as received on the wire.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Executor runs the governance pipeline around a resolver. Stage order is
// fixed: rate limit, cache read (queries), input validation (mutations),
// shape scoring, resolver, write-behind cache store. Any error leaving a
// stage is normalized into the bounded wire shape.
type Executor struct {
	costCfg     CostConfig
	validator   *Validator
	respCache   *ResponseCache
	rateLimiter *RateLimiter
	metrics     *metric.Metrics
	normalizer  Normalizer
	resolver    ResolverFunc
	logger      *slog.Logger
}

// ExecutorParams collects the Executor's collaborators. Validator is
// required; RespCache, RateLimiter and Metrics may be nil to disable the
// corresponding stage.
type ExecutorParams struct {
	CostConfig  CostConfig
	Validator   *Validator
	RespCache   *ResponseCache
	RateLimiter *RateLimiter
	Metrics     *metric.Metrics
	Hardened    bool
	Resolver    ResolverFunc
	Logger      *slog.Logger
}

// NewExecutor validates the configuration and builds an Executor.
func NewExecutor(p ExecutorParams) (*Executor, error) {
	if err := p.CostConfig.Validate(); err != nil {
		return nil, err
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		costCfg:     p.CostConfig,
		validator:   p.Validator,
		respCache:   p.RespCache,
		rateLimiter: p.RateLimiter,
		metrics:     p.Metrics,
		normalizer:  Normalizer{Hardened: p.Hardened},
		resolver:    p.Resolver,
		logger:      logger.With("component", "executor"),
	}, nil
}

// Execute runs one request through the pipeline. It always returns a
// well-formed response; errors surface only inside the envelope.
func (e *Executor) Execute(ctx context.Context, rc *RequestContext, req Request) *gqlgen.Response {
	start := time.Now()
	opLabel := "unknown"
	defer func() {
		if e.metrics != nil {
			e.metrics.RequestDuration.WithLabelValues(opLabel).Observe(time.Since(start).Seconds())
		}
	}()

	if e.rateLimiter != nil && !e.rateLimiter.Allow(rc.Identity.Subject) {
		return e.reject(rc, opLabel, &RequestError{
			Code:    CodeRateLimited,
			Message: "request rate limit exceeded",
		})
	}

	doc, err := parser.ParseQuery(&ast.Source{Input: req.Query})
	if err != nil {
		return e.reject(rc, opLabel, &RequestError{
			Code:    CodeBadUserInput,
			Message: "query parse failed: " + err.Error(),
		})
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		return e.reject(rc, opLabel, &RequestError{
			Code:    CodeBadUserInput,
			Message: "no matching operation in request",
		})
	}
	opLabel = operationLabel(op)

	cacheable := e.respCache != nil && ShouldCache(op, req.Query)
	fingerprint := ""
	if cacheable {
		fingerprint = Fingerprint(req.Query, req.Variables, rc.Identity.Subject)
		if payload, hit := e.respCache.Get(fingerprint); hit {
			if e.metrics != nil {
				e.metrics.CacheServedTotal.Inc()
				e.metrics.RequestsTotal.WithLabelValues(opLabel, "cached").Inc()
			}
			return &gqlgen.Response{Data: payload}
		}
	}

	if op.Operation == ast.Mutation && e.validator != nil {
		for _, sel := range op.SelectionSet {
			field, ok := sel.(*ast.Field)
			if !ok {
				continue
			}
			input, hasInput := ExtractInput(field, req.Variables)
			if !hasInput {
				continue
			}
			if err := e.validator.Validate(field.Name, input); err != nil {
				return e.reject(rc, opLabel, err)
			}
		}
	}

	if _, err := CheckShape(op, e.costCfg); err != nil {
		return e.reject(rc, opLabel, err)
	}

	data, err := e.resolver(WithRequestContext(ctx, rc), op, req.Variables)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RequestsTotal.WithLabelValues(opLabel, "error").Inc()
		}
		apiErr := e.normalizer.Normalize(err, rc.RequestID)
		if apiErr.Code == CodeInternal {
			e.logger.Error("Resolver failed",
				"request_id", rc.RequestID, "operation", opLabel, "error", err)
		}
		return &gqlgen.Response{Errors: gqlerror.List{apiErr.GQLError()}}
	}

	if cacheable {
		// Detached from the request: a client disconnect must not cancel
		// the in-flight cache write.
		e.respCache.StoreAsync(fingerprint, data, e.respCache.TTLFor(op.Name, req.Query))
	}

	if e.metrics != nil {
		e.metrics.RequestsTotal.WithLabelValues(opLabel, "ok").Inc()
	}
	return &gqlgen.Response{Data: data}
}

func (e *Executor) reject(rc *RequestContext, opLabel string, err error) *gqlgen.Response {
	apiErr := e.normalizer.Normalize(err, rc.RequestID)
	if e.metrics != nil {
		e.metrics.RejectionsTotal.WithLabelValues(apiErr.Code).Inc()
		e.metrics.RequestsTotal.WithLabelValues(opLabel, "rejected").Inc()
	}
	e.logger.Debug("Request rejected",
		"request_id", rc.RequestID, "operation", opLabel, "code", apiErr.Code)
	return &gqlgen.Response{Errors: gqlerror.List{apiErr.GQLError()}}
}

func operationLabel(op *ast.OperationDefinition) string {
	if op.Name != "" {
		return op.Name
	}
	return string(op.Operation)
}
