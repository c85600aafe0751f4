// Package ledgergate provides the request-governance pipeline for the
// multi-tenant ledger GraphQL API.
//
// # Architecture
//
// Every incoming query or mutation passes through an ordered set of
// cross-cutting stages before (and after) its business resolver runs:
//
//   - Request Context Assembler: resolves the caller's identity, finds or
//     creates the backing user record, determines the active workspace and
//     builds request-scoped batching loaders.
//   - Rate limiter: per-identity token bucket.
//   - Response Cache: fingerprint-keyed read-through cache for read-only
//     operations with per-operation TTLs.
//   - Input Extractor + Structural Validator: reconstruct mutation input
//     from the query document and enforce size ceilings and JSON-schema
//     shape validation.
//   - Query Shape Analyzer: complexity and cost scoring against configured
//     ceilings.
//   - Error Normalizer: maps every escaping failure to a bounded,
//     non-leaking external error shape.
//
// Business resolvers, the persistence schema and email delivery are external
// collaborators; the pipeline consumes them through narrow interfaces and
// does not know what they do internally.
//
// # Package layout
//
//   - errors: classified error handling shared across the module
//   - config: startup configuration (YAML, immutable after load)
//   - metric: Prometheus metrics registry
//   - pkg/cache: generic bounded caches (LRU, TTL, hybrid)
//   - pkg/retry: backoff retry for external calls
//   - pkg/loader: request-scoped batching loaders
//   - auth: identity provider client and credential cache
//   - store: user/workspace store interfaces and an in-memory implementation
//   - gateway/graphql: the governance pipeline and its HTTP host
package ledgergate
