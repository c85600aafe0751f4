// Command ledgergate runs the governance gateway with an in-memory store
// and a small demo resolver, enough to exercise the full pipeline end to
// end against a real identity provider.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vektah/gqlparser/v2/ast"
	"golang.org/x/sync/errgroup"

	"github.com/tallyhq/ledgergate/auth"
	"github.com/tallyhq/ledgergate/config"
	"github.com/tallyhq/ledgergate/gateway/graphql"
	"github.com/tallyhq/ledgergate/health"
	"github.com/tallyhq/ledgergate/metric"
	"github.com/tallyhq/ledgergate/pkg/cache"
	"github.com/tallyhq/ledgergate/pkg/retry"
	"github.com/tallyhq/ledgergate/store"
)

var createTransactionSchema = []byte(`{
	"type": "object",
	"required": ["amount"],
	"properties": {
		"amount": {"type": "integer", "minimum": 1},
		"accountId": {"type": "string", "minLength": 1},
		"note": {"type": "string", "maxLength": 500},
		"tags": {"type": "array", "items": {"type": "string", "maxLength": 50}}
	},
	"additionalProperties": false
}`)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	if err := run(logger, *configPath); err != nil {
		logger.Error("Gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()

	// Identity provider discovery happens before anything listens. The
	// linear retry gives the provider time to come up; exhaustion is fatal
	// because authentication is mandatory.
	provider, err := auth.Discover(ctx, cfg.Auth.DiscoveryURL,
		&http.Client{Timeout: cfg.Auth.RequestTimeout},
		retry.Linear(cfg.Auth.DiscoveryMaxAttempts, cfg.Auth.DiscoveryRetryStep),
		logger)
	if err != nil {
		return fmt.Errorf("identity provider discovery: %w", err)
	}

	credCache, err := cache.NewHybrid[auth.Identity](ctx,
		cfg.CredentialCache.MaxEntries, cfg.CredentialCache.TTL, cfg.CredentialCache.CleanupInterval,
		cache.WithMetrics[auth.Identity](registry, "credential_cache"))
	if err != nil {
		return fmt.Errorf("credential cache: %w", err)
	}
	authenticator := auth.NewAuthenticator(provider, credCache, logger)
	defer func() { _ = authenticator.Close() }()

	var respCache *graphql.ResponseCache
	if cfg.ResponseCache.Enabled {
		respStore, err := cache.NewHybrid[[]byte](ctx,
			cfg.ResponseCache.MaxEntries, cfg.ResponseCache.DefaultTTL, cfg.CredentialCache.CleanupInterval,
			cache.WithMetrics[[]byte](registry, "response_cache"))
		if err != nil {
			return fmt.Errorf("response cache: %w", err)
		}
		respCache = graphql.NewResponseCache(respStore, cfg.ResponseCache.Rules,
			cfg.ResponseCache.DefaultTTL, logger)
		defer func() { _ = respCache.Close() }()
	}

	var rateLimiter *graphql.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter, err = graphql.NewRateLimiter(cfg.RateLimit.RequestsPerSecond,
			cfg.RateLimit.Burst, cfg.RateLimit.MaxTracked, logger)
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		defer func() { _ = rateLimiter.Close() }()
	}

	validator, err := graphql.NewValidator(graphql.SizeLimits{
		MaxStringLength: cfg.Governance.MaxStringLength,
		MaxArrayLength:  cfg.Governance.MaxArrayLength,
	}, logger)
	if err != nil {
		return fmt.Errorf("validator: %w", err)
	}
	if err := validator.Register("createTransaction", createTransactionSchema); err != nil {
		return fmt.Errorf("schema registration: %w", err)
	}

	userStore := store.NewMemStore()

	executor, err := graphql.NewExecutor(graphql.ExecutorParams{
		CostConfig: graphql.CostConfig{
			MaximumComplexity:      cfg.Governance.MaxComplexity,
			MaximumCost:            cfg.Governance.MaxCost,
			MaximumDepth:           cfg.Governance.MaxDepth,
			DefaultFieldWeight:     cfg.Governance.DefaultFieldWeight,
			FieldWeights:           cfg.Governance.FieldWeights,
			BaseCostPerField:       cfg.Governance.BaseCostPerField,
			CostMultiplierPerDepth: cfg.Governance.CostMultiplierPerDepth,
		},
		Validator:   validator,
		RespCache:   respCache,
		RateLimiter: rateLimiter,
		Metrics:     registry.Metrics,
		Hardened:    cfg.Hardened,
		Resolver:    demoResolver(userStore),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("executor: %w", err)
	}

	assembler := graphql.NewContextAssembler(authenticator, userStore, logger)

	server, err := graphql.NewServer(cfg.Server, executor, assembler, registry, logger)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	healthRegistry := health.NewRegistry()
	healthRegistry.Register("identity-provider", func(context.Context) health.Status {
		if provider.Metadata().UserinfoEndpoint == "" {
			return health.Unhealthy("identity-provider", "discovery incomplete")
		}
		return health.Healthy("identity-provider")
	})
	healthRegistry.Register("credential-cache", func(context.Context) health.Status {
		if credCache.Size() >= cfg.CredentialCache.MaxEntries {
			return health.Degraded("credential-cache", "at capacity")
		}
		return health.Healthy("credential-cache")
	})
	server.SetHealthRegistry(healthRegistry)

	if err := server.Setup(); err != nil {
		return fmt.Errorf("server setup: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Start(groupCtx, nil)
	})

	logger.Info("Gateway running",
		"address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"hardened", cfg.Hardened,
		"response_cache", cfg.ResponseCache.Enabled,
		"rate_limit", cfg.RateLimit.Enabled)

	return group.Wait()
}

// demoResolver answers a handful of operations from the user store so the
// binary is runnable without a business layer behind it.
func demoResolver(userStore store.UserStore) graphql.ResolverFunc {
	return func(ctx context.Context, op *ast.OperationDefinition, _ map[string]any) (json.RawMessage, error) {
		rc, ok := graphql.FromContext(ctx)
		if !ok {
			return nil, fmt.Errorf("request context missing")
		}

		data := make(map[string]any)
		for _, sel := range op.SelectionSet {
			field, isField := sel.(*ast.Field)
			if !isField {
				continue
			}
			switch field.Name {
			case "me":
				data["me"] = map[string]any{
					"id":    rc.User.ID,
					"email": rc.User.Email,
				}
			case "workspace":
				data["workspace"] = map[string]any{
					"id":   rc.Workspace.ID,
					"name": rc.Workspace.Name,
				}
			case "workspaces":
				workspaces, err := userStore.WorkspacesForUser(ctx, rc.User.ID)
				if err != nil {
					return nil, err
				}
				list := make([]map[string]any, 0, len(workspaces))
				for _, ws := range workspaces {
					list = append(list, map[string]any{"id": ws.ID, "name": ws.Name})
				}
				data["workspaces"] = list
			case "accounts":
				// Placeholder until the ledger resolvers land behind
				// the pipeline.
				data["accounts"] = []any{}
			default:
				data[field.Name] = nil
			}
		}
		return json.Marshal(data)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
