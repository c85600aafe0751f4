// Package graphql implements the request-governance pipeline that every
// GraphQL operation passes through before reaching a resolver.
//
// The pipeline runs a fixed stage order:
//
//	context assembly -> rate limit -> response-cache read (queries only)
//	  -> input extraction + structural validation (mutations)
//	  -> query shape scoring -> resolver -> write-behind cache store
//	  -> error normalization
//
// Stages are independently testable: the shape analyzer and input extractor
// are pure functions over gqlparser AST nodes, the validator and response
// cache are small structs around their configuration, and the Executor
// composes them around an opaque ResolverFunc supplied by the business
// layer. Nothing in this package knows what the resolvers do.
//
// Governance rejections (complexity, cost, input size, schema violations,
// rate limits) are client faults and keep their detail on the wire even in
// hardened mode. Everything else is normalized through the error envelope
// in errors.go, which bounds message size and strips anything that could
// leak internals.
package graphql
