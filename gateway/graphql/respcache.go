package graphql

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/tallyhq/ledgergate/config"
	"github.com/tallyhq/ledgergate/pkg/cache"
)

// ResponseCache serves previously computed query payloads keyed by a
// content-derived fingerprint. Only successful query responses enter it;
// mutations, subscriptions and introspection never do.
type ResponseCache struct {
	store      cache.Cache[[]byte]
	rules      []config.TTLRule
	defaultTTL time.Duration
	logger     *slog.Logger
}

// NewResponseCache wraps a byte cache with TTL rule matching.
func NewResponseCache(
	store cache.Cache[[]byte], rules []config.TTLRule, defaultTTL time.Duration,
	logger *slog.Logger,
) *ResponseCache {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = cache.NewNoop[[]byte]()
	}
	if defaultTTL <= 0 {
		defaultTTL = 60 * time.Second
	}
	return &ResponseCache{
		store:      store,
		rules:      rules,
		defaultTTL: defaultTTL,
		logger:     logger.With("component", "response-cache"),
	}
}

// introspectionField matches the schema introspection entry points as whole
// field tokens. The trailing boundary keeps __typename, which any ordinary
// query may select, from counting as introspection.
var introspectionField = regexp.MustCompile(`(?:__schema|__type)\b`)

// ShouldCache reports whether the operation's response is cacheable.
// Mutations and subscriptions are never cached. Introspection is excluded
// because schema responses are large and clients re-issue them freely.
func ShouldCache(op *ast.OperationDefinition, rawQuery string) bool {
	if op == nil || op.Operation != ast.Query {
		return false
	}
	return !introspectionField.MatchString(rawQuery)
}

// Fingerprint derives the cache key from the full query text, the variable
// values and the caller's subject. Distinct queries, variables or subjects
// can never share a key; whitespace differences intentionally produce
// distinct keys.
func Fingerprint(query string, variables map[string]any, subject string) string {
	querySum := sha256.Sum256([]byte(query))

	varsPart := "novars"
	if len(variables) > 0 {
		// json.Marshal sorts map keys, giving a canonical encoding.
		encoded, err := json.Marshal(variables)
		if err == nil {
			varsSum := sha256.Sum256(encoded)
			varsPart = hex.EncodeToString(varsSum[:])
		} else {
			varsSum := sha256.Sum256([]byte(err.Error()))
			varsPart = hex.EncodeToString(varsSum[:])
		}
	}

	if subject == "" {
		subject = "anon"
	}

	return hex.EncodeToString(querySum[:]) + "::" + varsPart + "::" + subject
}

// TTLFor selects the TTL for an operation. Rules are checked in declaration
// order: first against the declared operation name (case-insensitive
// substring), then against the raw query text, then the default applies.
func (rc *ResponseCache) TTLFor(operationName, rawQuery string) time.Duration {
	loweredName := strings.ToLower(operationName)
	if loweredName != "" {
		for _, rule := range rc.rules {
			if strings.Contains(loweredName, strings.ToLower(rule.Match)) {
				return rule.TTL
			}
		}
	}
	loweredQuery := strings.ToLower(rawQuery)
	for _, rule := range rc.rules {
		if strings.Contains(loweredQuery, strings.ToLower(rule.Match)) {
			return rule.TTL
		}
	}
	return rc.defaultTTL
}

// Get returns the cached payload for the fingerprint, if present.
func (rc *ResponseCache) Get(fingerprint string) ([]byte, bool) {
	return rc.store.Get(fingerprint)
}

// StoreAsync writes the payload behind the response on its own goroutine.
// The write has its own error boundary: a cache fault or panic is logged
// and dropped, the already-sent response is unaffected. Callers pass a
// payload they no longer mutate.
func (rc *ResponseCache) StoreAsync(fingerprint string, payload []byte, ttl time.Duration) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				rc.logger.Error("Response cache write panicked", "panic", r)
			}
		}()
		if _, err := rc.store.SetWithTTL(fingerprint, payload, ttl); err != nil {
			rc.logger.Warn("Response cache write failed", "error", err)
		}
	}()
}

// Close releases the underlying cache.
func (rc *ResponseCache) Close() error {
	return rc.store.Close()
}
