package stubbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/MarkoPoloResearchLab/walletdeck/pkg/authflow"
	"github.com/MarkoPoloResearchLab/walletdeck/pkg/walletapi"
)

// AuthClient implements the injected auth capability against the stub
// backend's login/logout endpoints. It plays the role of the external
// auth-client script: callbacks registered once, then authenticated and
// unauthenticated signals delivered as they happen.
//
// Share the *http.Client (and its cookie jar) with the wallet API client
// so the session cookie minted on login applies to wallet requests.
type AuthClient struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	callbacks authflow.Callbacks
	profile   *walletapi.Profile
}

// NewAuthClient wires an AuthClient against the stub base URL (the
// server root, not the /api prefix).
func NewAuthClient(rawBaseURL string, httpClient *http.Client) (*AuthClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(rawBaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", walletapi.ErrInvalidClientConfig)
	}
	if httpClient == nil {
		return nil, fmt.Errorf("%w: http client is required", walletapi.ErrInvalidClientConfig)
	}
	return &AuthClient{baseURL: baseURL, httpClient: httpClient}, nil
}

// InitAuthClient registers the callbacks and reports the current auth
// state, the way the browser auth client does on script load.
func (client *AuthClient) InitAuthClient(_ context.Context, callbacks authflow.Callbacks) error {
	client.mu.Lock()
	client.callbacks = callbacks
	profile := client.profile
	client.mu.Unlock()

	if profile != nil {
		if callbacks.OnAuthenticated != nil {
			callbacks.OnAuthenticated(*profile)
		}
	} else if callbacks.OnUnauthenticated != nil {
		callbacks.OnUnauthenticated()
	}
	return nil
}

// CurrentUser returns the profile of the signed-in user, or nil.
func (client *AuthClient) CurrentUser(_ context.Context) (*walletapi.Profile, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.profile == nil {
		return nil, nil
	}
	profileCopy := *client.profile
	return &profileCopy, nil
}

// Login obtains a session cookie for the profile and fires the
// authenticated callback.
func (client *AuthClient) Login(ctx context.Context, profile walletapi.Profile) error {
	body, err := json.Marshal(loginRequest{
		UserID:    profile.UserID,
		Email:     profile.Email,
		Display:   profile.Display,
		AvatarURL: profile.AvatarURL,
		Roles:     profile.Roles,
	})
	if err != nil {
		return fmt.Errorf("encode login request: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer func() { _ = response.Body.Close() }()
	_, _ = io.Copy(io.Discard, response.Body)
	if response.StatusCode != http.StatusOK {
		return &walletapi.HTTPError{Status: response.StatusCode, Message: "login failed"}
	}

	client.mu.Lock()
	storedProfile := profile
	client.profile = &storedProfile
	callbacks := client.callbacks
	client.mu.Unlock()

	if callbacks.OnAuthenticated != nil {
		callbacks.OnAuthenticated(profile)
	}
	return nil
}

// Logout invalidates the session cookie and fires the unauthenticated
// callback.
func (client *AuthClient) Logout(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("build logout request: %w", err)
	}
	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	defer func() { _ = response.Body.Close() }()
	_, _ = io.Copy(io.Discard, response.Body)
	if response.StatusCode != http.StatusNoContent && response.StatusCode != http.StatusOK {
		return &walletapi.HTTPError{Status: response.StatusCode, Message: "logout failed"}
	}

	client.mu.Lock()
	client.profile = nil
	callbacks := client.callbacks
	client.mu.Unlock()

	if callbacks.OnUnauthenticated != nil {
		callbacks.OnUnauthenticated()
	}
	return nil
}
