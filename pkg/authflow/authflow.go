package authflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/walletdeck/pkg/walletapi"
	"go.uber.org/zap"
)

// ErrInvalidFlowConfig marks a missing or mistyped collaborator at
// construction time. This is a configuration failure, not a runtime
// condition to recover from.
var ErrInvalidFlowConfig = errors.New("invalid auth flow config")

// AuthenticatedOptions qualifies an authentication event. Bootstrap is
// false for restored sessions so the wallet is refreshed, not reset.
type AuthenticatedOptions struct {
	Bootstrap bool
}

// Callbacks are the channels an auth client reports through.
type Callbacks struct {
	OnAuthenticated   func(profile walletapi.Profile)
	OnUnauthenticated func()
}

// AuthClient is the externally supplied identity capability. In the
// browser original this is an injected script on the window object; here
// it is an explicit dependency so nothing in the core touches globals.
type AuthClient interface {
	InitAuthClient(ctx context.Context, callbacks Callbacks) error
	CurrentUser(ctx context.Context) (*walletapi.Profile, error)
	Logout(ctx context.Context) error
}

// SessionFetcher is the slice of the wallet API client the flow needs.
type SessionFetcher interface {
	FetchSession(ctx context.Context) (walletapi.Session, error)
}

// Config wires a Flow.
type Config struct {
	WalletClient    SessionFetcher
	AuthClient      AuthClient
	OnAuthenticated func(ctx context.Context, profile walletapi.Profile, options AuthenticatedOptions)
	OnSignOut       func()
	OnMissingClient func()
	Logger          *zap.Logger
}

// Flow bridges the auth client and the session endpoint to the
// orchestrator. Stateless between calls.
type Flow struct {
	walletClient    SessionFetcher
	authClient      AuthClient
	onAuthenticated func(ctx context.Context, profile walletapi.Profile, options AuthenticatedOptions)
	onSignOut       func()
	onMissingClient func()
	logger          *zap.Logger
}

// NewFlow validates collaborators and wires a Flow.
func NewFlow(cfg Config) (*Flow, error) {
	if cfg.WalletClient == nil {
		return nil, fmt.Errorf("%w: wallet client is required", ErrInvalidFlowConfig)
	}
	if cfg.OnAuthenticated == nil {
		return nil, fmt.Errorf("%w: authenticated callback is required", ErrInvalidFlowConfig)
	}
	if cfg.OnSignOut == nil {
		return nil, fmt.Errorf("%w: sign-out callback is required", ErrInvalidFlowConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		walletClient:    cfg.WalletClient,
		authClient:      cfg.AuthClient,
		onAuthenticated: cfg.OnAuthenticated,
		onSignOut:       cfg.OnSignOut,
		onMissingClient: cfg.OnMissingClient,
		logger:          logger,
	}, nil
}

// RestoreSession attempts a silent session restore. A 401 means no
// session exists and is swallowed; any other failure is logged and
// swallowed so startup is never blocked. The authenticated callback is
// invoked with Bootstrap false because a returning session must not
// reset the wallet.
func (flow *Flow) RestoreSession(ctx context.Context) {
	session, err := flow.walletClient.FetchSession(ctx)
	if err != nil {
		if walletapi.IsUnauthorized(err) {
			flow.logger.Debug("no session to restore")
			return
		}
		flow.logger.Warn("session restore failed", zap.Error(err))
		return
	}
	if session.UserID == "" {
		return
	}
	flow.onAuthenticated(ctx, session.Profile(), AuthenticatedOptions{Bootstrap: false})
}

// AttachAuthClient registers the orchestrator callbacks with the auth
// client. When the capability is absent the missing-client callback is
// invoked so the caller can surface a configuration error instead of
// silently doing nothing.
func (flow *Flow) AttachAuthClient(ctx context.Context) error {
	if flow.authClient == nil {
		if flow.onMissingClient != nil {
			flow.onMissingClient()
		}
		return nil
	}
	return flow.authClient.InitAuthClient(ctx, Callbacks{
		OnAuthenticated: func(profile walletapi.Profile) {
			flow.onAuthenticated(ctx, profile, AuthenticatedOptions{Bootstrap: true})
		},
		OnUnauthenticated: flow.onSignOut,
	})
}
