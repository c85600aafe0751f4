// Package auth resolves bearer credentials to verified identities. A
// credential is verified against an external identity provider (discovered
// once at startup) and the result is memoized in a bounded cache keyed by a
// one-way digest of the credential. The raw credential is never stored,
// logged, or retained beyond the single verification call.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tallyhq/ledgergate/errors"
	"github.com/tallyhq/ledgergate/pkg/retry"
)

// Identity is the verified result of credential verification.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
}

// Verifier validates a raw credential against an identity provider.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// ProviderMetadata is the subset of the provider's discovery document the
// gateway needs.
type ProviderMetadata struct {
	Issuer           string `json:"issuer"`
	UserinfoEndpoint string `json:"userinfo_endpoint"`
}

// Provider is a Verifier backed by an external identity provider's
// userinfo endpoint.
type Provider struct {
	meta       ProviderMetadata
	httpClient *http.Client
	logger     *slog.Logger
}

// Discover fetches the provider's discovery document, retrying with the
// given config. Authentication is mandatory: callers must treat a discovery
// failure as fatal, the process cannot serve traffic without a provider.
func Discover(
	ctx context.Context, discoveryURL string, httpClient *http.Client,
	retryCfg retry.Config, logger *slog.Logger,
) (*Provider, error) {
	if discoveryURL == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Provider", "Discover",
			"discovery URL check")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "identity-provider")

	var meta ProviderMetadata
	err := retry.Do(ctx, retryCfg, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
		if reqErr != nil {
			return retry.NonRetryable(reqErr)
		}

		resp, doErr := httpClient.Do(req)
		if doErr != nil {
			logger.Warn("Provider discovery attempt failed", "error", doErr)
			return doErr
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("discovery returned status %d", resp.StatusCode)
			logger.Warn("Provider discovery attempt failed", "status", resp.StatusCode)
			return statusErr
		}

		if decErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&meta); decErr != nil {
			return decErr
		}
		if meta.UserinfoEndpoint == "" {
			return retry.NonRetryable(fmt.Errorf("discovery document missing userinfo_endpoint"))
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "Provider", "Discover", "provider discovery")
	}

	logger.Info("Identity provider discovered", "issuer", meta.Issuer)

	return &Provider{
		meta:       meta,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Metadata returns the discovered provider metadata.
func (p *Provider) Metadata() ProviderMetadata {
	return p.meta
}

// Verify calls the provider's userinfo endpoint with the credential.
// Any rejection or transport fault maps to ErrUnauthorized; the original
// cause is logged, never surfaced.
func (p *Provider) Verify(ctx context.Context, credential string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.meta.UserinfoEndpoint, nil)
	if err != nil {
		return Identity{}, errors.Wrap(errors.ErrUnauthorized, "Provider", "Verify", "request build")
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("Identity verification call failed", "error", err)
		return Identity{}, errors.Wrap(errors.ErrUnauthorized, "Provider", "Verify", "provider call")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		p.logger.Debug("Credential rejected by provider", "status", resp.StatusCode)
		return Identity{}, errors.Wrap(errors.ErrUnauthorized, "Provider", "Verify",
			fmt.Sprintf("provider status %d", resp.StatusCode))
	}

	var identity Identity
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&identity); err != nil {
		p.logger.Warn("Malformed userinfo response", "error", err)
		return Identity{}, errors.Wrap(errors.ErrUnauthorized, "Provider", "Verify", "userinfo decode")
	}
	if identity.Subject == "" {
		return Identity{}, errors.Wrap(errors.ErrUnauthorized, "Provider", "Verify", "empty subject")
	}

	return identity, nil
}

var _ Verifier = (*Provider)(nil)
