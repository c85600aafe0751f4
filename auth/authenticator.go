package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"log/slog"

	"github.com/tallyhq/ledgergate/errors"
	"github.com/tallyhq/ledgergate/pkg/cache"
)

// Authenticator resolves raw bearer credentials to identities, memoizing
// successful verifications in a bounded TTL cache. Only the SHA-256 digest
// of a credential ever touches the cache or the logs. Failed verifications
// are never cached, a retried credential always goes back to the provider.
type Authenticator struct {
	verifier Verifier
	cache    cache.Cache[Identity]
	logger   *slog.Logger
}

// NewAuthenticator wires a verifier to a credential cache. The cache may be
// a no-op cache, in which case every request hits the provider.
func NewAuthenticator(verifier Verifier, credCache cache.Cache[Identity], logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if credCache == nil {
		credCache = cache.NewNoop[Identity]()
	}
	return &Authenticator{
		verifier: verifier,
		cache:    credCache,
		logger:   logger.With("component", "authenticator"),
	}
}

// DigestCredential returns the hex SHA-256 digest of a raw credential. The
// digest is the only form of the credential that is ever persisted.
func DigestCredential(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Resolve verifies the credential, consulting the cache first. Two distinct
// credentials can never collide on a cache entry because the key is a
// cryptographic digest of the full credential.
func (a *Authenticator) Resolve(ctx context.Context, rawCredential string) (Identity, error) {
	if rawCredential == "" {
		return Identity{}, errors.Wrap(errors.ErrUnauthorized, "Authenticator", "Resolve",
			"missing credential")
	}

	digest := DigestCredential(rawCredential)

	if identity, ok := a.cache.Get(digest); ok {
		return identity, nil
	}

	identity, err := a.verifier.Verify(ctx, rawCredential)
	if err != nil {
		a.logger.Debug("Credential verification failed", "digest_prefix", digest[:8])
		if stderrors.Is(err, errors.ErrUnauthorized) {
			return Identity{}, err
		}
		return Identity{}, errors.Wrap(errors.ErrUnauthorized, "Authenticator", "Resolve",
			"credential verification")
	}

	// Cache faults are an availability concern, never a correctness one.
	if _, err := a.cache.Set(digest, identity); err != nil {
		a.logger.Warn("Credential cache write failed", "error", err)
	}

	return identity, nil
}

// Invalidate drops any cached entry for the credential.
func (a *Authenticator) Invalidate(rawCredential string) {
	if rawCredential == "" {
		return
	}
	_, _ = a.cache.Delete(DigestCredential(rawCredential))
}

// Close releases the underlying cache resources.
func (a *Authenticator) Close() error {
	return a.cache.Close()
}
