package graphql

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tallyhq/ledgergate/auth"
	"github.com/tallyhq/ledgergate/errors"
	"github.com/tallyhq/ledgergate/pkg/loader"
	"github.com/tallyhq/ledgergate/store"
)

const (
	// SessionCookieName is the cookie carrying the bearer credential when
	// the browser transport is used.
	SessionCookieName = "ledgergate_session"

	// WorkspaceHeader selects a workspace other than the user's default.
	WorkspaceHeader = "X-Workspace-ID"

	// WorkspaceQueryParam is the query-string fallback for WorkspaceHeader.
	WorkspaceQueryParam = "workspace"
)

// Loaders are the request-scoped batching loaders handed to resolvers.
// A fresh set is built per request so nothing leaks across requests.
type Loaders struct {
	Users      *loader.Loader[string, *store.User]
	Workspaces *loader.Loader[string, *store.Workspace]
}

// NewLoaders builds loaders over the user store.
func NewLoaders(st store.UserStore) *Loaders {
	cfg := loader.DefaultConfig()
	return &Loaders{
		Users: loader.New(cfg, func(ctx context.Context, ids []string) (map[string]*store.User, error) {
			return st.UsersByIDs(ctx, ids)
		}),
		Workspaces: loader.New(cfg, func(ctx context.Context, ids []string) (map[string]*store.Workspace, error) {
			return st.WorkspacesByIDs(ctx, ids)
		}),
	}
}

// RequestContext carries everything a resolver needs about the caller.
type RequestContext struct {
	RequestID string
	Identity  auth.Identity
	User      *store.User
	Workspace *store.Workspace
	Loaders   *Loaders
}

// ContextAssembler turns an HTTP request into a RequestContext: credential
// extraction, identity resolution, user upsert and tenant scoping.
type ContextAssembler struct {
	authenticator *auth.Authenticator
	store         store.UserStore
	logger        *slog.Logger
}

// NewContextAssembler wires the assembler to its collaborators.
func NewContextAssembler(authenticator *auth.Authenticator, st store.UserStore, logger *slog.Logger) *ContextAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextAssembler{
		authenticator: authenticator,
		store:         st,
		logger:        logger.With("component", "context-assembler"),
	}
}

// CredentialFromRequest extracts the bearer credential. The session cookie
// wins; the Authorization header is the fallback for non-browser clients.
func CredentialFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

// Assemble builds the RequestContext for one request: a resolved identity,
// an upserted user, a membership-checked workspace and its own loaders. The
// caller owns the request ID so that failures here still answer with the
// same correlation identifier they were logged under.
func (a *ContextAssembler) Assemble(ctx context.Context, r *http.Request, requestID string) (*RequestContext, error) {
	credential := CredentialFromRequest(r)
	if credential == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "ContextAssembler", "Assemble",
			"credential extraction")
	}

	identity, err := a.authenticator.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}

	user, defaultWorkspace, err := a.store.FindOrCreateByExternalID(ctx, identity.Subject, identity.Email)
	if err != nil {
		a.logger.Error("User upsert failed", "request_id", requestID, "error", err)
		return nil, errors.Wrap(err, "ContextAssembler", "Assemble", "user upsert")
	}

	workspace := defaultWorkspace
	if override := workspaceOverride(r); override != "" && override != defaultWorkspace.ID {
		if _, err := a.store.Membership(ctx, user.ID, override); err != nil {
			a.logger.Debug("Workspace override denied",
				"request_id", requestID, "user_id", user.ID, "workspace_id", override)
			return nil, errors.Wrap(errors.ErrForbidden, "ContextAssembler", "Assemble",
				"workspace membership check")
		}
		workspaces, err := a.store.WorkspacesByIDs(ctx, []string{override})
		if err != nil {
			return nil, errors.Wrap(err, "ContextAssembler", "Assemble", "workspace lookup")
		}
		ws, ok := workspaces[override]
		if !ok {
			return nil, errors.Wrap(errors.ErrForbidden, "ContextAssembler", "Assemble",
				"workspace lookup")
		}
		workspace = ws
	}

	return &RequestContext{
		RequestID: requestID,
		Identity:  identity,
		User:      user,
		Workspace: workspace,
		Loaders:   NewLoaders(a.store),
	}, nil
}

func workspaceOverride(r *http.Request) string {
	if v := r.Header.Get(WorkspaceHeader); v != "" {
		return v
	}
	return r.URL.Query().Get(WorkspaceQueryParam)
}

type contextKey struct{}

// WithRequestContext stores rc on the context for resolver access.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext retrieves the RequestContext stored by WithRequestContext.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(*RequestContext)
	return rc, ok
}
