package walletapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

const (
	pathSession      = "/session"
	pathBootstrap    = "/bootstrap"
	pathWallet       = "/wallet"
	pathTransactions = "/transactions"
	pathPurchases    = "/purchases"

	contentTypeJSON = "application/json"

	defaultRequestTimeout = 10 * time.Second
)

// Client is a typed wrapper over the wallet HTTP API. It holds no wallet
// state; every call returns a normalized value or a typed error.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client instance.
type ClientOption func(*Client)

// WithHTTPClient substitutes the underlying HTTP client (tests inject
// one bound to an in-process server).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = httpClient
	}
}

// NewClient wires a Client against the given API base URL.
func NewClient(rawBaseURL string, options ...ClientOption) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(rawBaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidClientConfig)
	}
	client := &Client{baseURL: baseURL}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	if client.httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: cookie jar init: %v", ErrInvalidClientConfig, err)
		}
		client.httpClient = &http.Client{
			Jar:     jar,
			Timeout: defaultRequestTimeout,
		}
	}
	return client, nil
}

// FetchSession returns the current session. A 401 HTTPError means no
// session cookie is present and callers must not log it as a failure.
func (client *Client) FetchSession(ctx context.Context) (Session, error) {
	payload, err := client.requestJSON(ctx, http.MethodGet, pathSession, nil)
	if err != nil {
		return Session{}, err
	}
	return normalizeSession(payload)
}

// BootstrapWallet resets or creates the wallet for the authenticated
// user. Safe to call once per authentication event; the server keys the
// underlying grant so repeats do not double-fund.
func (client *Client) BootstrapWallet(ctx context.Context, metadata map[string]any) (WalletSnapshot, error) {
	payload, err := client.requestJSON(ctx, http.MethodPost, pathBootstrap, bootstrapRequest{Metadata: metadata})
	if err != nil {
		return WalletSnapshot{}, err
	}
	return normalizeWalletEnvelope(payload)
}

// FetchWallet is a read-only wallet refresh.
func (client *Client) FetchWallet(ctx context.Context) (WalletSnapshot, error) {
	payload, err := client.requestJSON(ctx, http.MethodGet, pathWallet, nil)
	if err != nil {
		return WalletSnapshot{}, err
	}
	return normalizeWalletEnvelope(payload)
}

// SpendCoins issues one fixed-size transaction. Business-level
// insufficiency is reported through SpendResult.Status, never as an
// error; HTTPError is reserved for transport and auth failures.
func (client *Client) SpendCoins(ctx context.Context, metadata map[string]any) (SpendResult, error) {
	payload, err := client.requestJSON(ctx, http.MethodPost, pathTransactions, spendRequest{Metadata: metadata})
	if err != nil {
		return SpendResult{}, err
	}
	return normalizeSpendEnvelope(payload)
}

// PurchaseCoins buys the given number of coins. Amount constraints are
// enforced at the orchestrator boundary, not re-checked here.
func (client *Client) PurchaseCoins(ctx context.Context, coins int64, metadata map[string]any) (WalletSnapshot, error) {
	payload, err := client.requestJSON(ctx, http.MethodPost, pathPurchases, purchaseRequest{Coins: coins, Metadata: metadata})
	if err != nil {
		return WalletSnapshot{}, err
	}
	return normalizeWalletEnvelope(payload)
}

func (client *Client) requestJSON(ctx context.Context, method string, path string, body any) (map[string]any, error) {
	var requestBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		requestBody = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, requestBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", contentTypeJSON)
	}
	request.Header.Set("Accept", contentTypeJSON)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, &HTTPError{
			Status:  response.StatusCode,
			Message: extractErrorMessage(response.Body),
		}
	}
	if response.StatusCode == http.StatusNoContent {
		return map[string]any{}, nil
	}
	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrMalformedResponse)
	}
	return payload, nil
}

// extractErrorMessage pulls the message out of the API error envelope,
// falling back to the raw body text.
func extractErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(body)
	if err != nil {
		return ""
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

type bootstrapRequest struct {
	Metadata map[string]any `json:"metadata,omitempty"`
}

type spendRequest struct {
	Metadata map[string]any `json:"metadata,omitempty"`
}

type purchaseRequest struct {
	Coins    int64          `json:"coins"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
