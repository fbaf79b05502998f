package stubbackend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarkoPoloResearchLab/walletdeck/internal/walletdeck"
	"go.uber.org/zap"
)

type walletEnvelope struct {
	Status string        `json:"status"`
	Wallet walletPayload `json:"wallet"`
}

func newStubEnv(t *testing.T) (*Server, *http.Client, string) {
	t.Helper()
	cfg := walletdeck.Config{
		SessionSigningKey: "test-signing-key",
		DatabaseDSN:       fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
	}
	server, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("stub server init failed: %v", err)
	}
	testServer := httptest.NewServer(server.Handler())
	t.Cleanup(testServer.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar init failed: %v", err)
	}
	return server, &http.Client{Jar: jar}, testServer.URL
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	response, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return response
}

func decodeWallet(t *testing.T, response *http.Response) walletEnvelope {
	t.Helper()
	defer func() { _ = response.Body.Close() }()
	var envelope walletEnvelope
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode wallet envelope: %v", err)
	}
	return envelope
}

func login(t *testing.T, client *http.Client, baseURL string, userID string) {
	t.Helper()
	response := postJSON(t, client, baseURL+"/auth/login", map[string]any{
		"user_id": userID,
		"email":   userID + "@example.com",
		"display": "Test User",
	})
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("login failed with status %d", response.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	_, client, baseURL := newStubEnv(t)
	response, err := client.Get(baseURL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
}

func TestAPIRequiresSession(t *testing.T) {
	t.Parallel()
	_, client, baseURL := newStubEnv(t)
	response, err := client.Get(baseURL + "/api/wallet")
	if err != nil {
		t.Fatalf("wallet request failed: %v", err)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session cookie, got %d", response.StatusCode)
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized error code, got %q", envelope.Error.Code)
	}
}

func TestLoginThenSession(t *testing.T) {
	t.Parallel()
	_, client, baseURL := newStubEnv(t)
	login(t, client, baseURL, "user-1")

	response, err := client.Get(baseURL + "/api/session")
	if err != nil {
		t.Fatalf("session request failed: %v", err)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
	var session struct {
		UserID  string   `json:"user_id"`
		Email   string   `json:"email"`
		Display string   `json:"display"`
		Roles   []string `json:"roles"`
		Expires int64    `json:"expires"`
	}
	if err := json.NewDecoder(response.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.UserID != "user-1" || session.Display != "Test User" {
		t.Fatalf("unexpected session payload: %+v", session)
	}
	if session.Roles == nil {
		t.Fatalf("roles must serialize as an empty array, not null")
	}
	if session.Expires == 0 {
		t.Fatalf("expected a session expiry timestamp")
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	t.Parallel()
	_, client, baseURL := newStubEnv(t)
	login(t, client, baseURL, "user-1")

	first := decodeWallet(t, postJSON(t, client, baseURL+"/api/bootstrap", map[string]any{}))
	if first.Wallet.Balance.AvailableCoins != 20 {
		t.Fatalf("expected a 20-coin grant, got %d", first.Wallet.Balance.AvailableCoins)
	}
	second := decodeWallet(t, postJSON(t, client, baseURL+"/api/bootstrap", map[string]any{}))
	if second.Wallet.Balance.AvailableCoins != 20 {
		t.Fatalf("a repeated bootstrap must not double-fund, got %d", second.Wallet.Balance.AvailableCoins)
	}
	if len(second.Wallet.Entries) != 1 {
		t.Fatalf("expected one grant entry, got %d", len(second.Wallet.Entries))
	}
}

func TestSpendSequenceExhaustsBalance(t *testing.T) {
	t.Parallel()
	_, client, baseURL := newStubEnv(t)
	login(t, client, baseURL, "user-1")
	decodeWallet(t, postJSON(t, client, baseURL+"/api/bootstrap", map[string]any{}))

	expected := []int64{15, 10, 5, 0}
	for i, want := range expected {
		envelope := decodeWallet(t, postJSON(t, client, baseURL+"/api/transactions", map[string]any{}))
		if envelope.Status != statusSuccess {
			t.Fatalf("spend %d: expected success, got %q", i, envelope.Status)
		}
		if envelope.Wallet.Balance.AvailableCoins != want {
			t.Fatalf("spend %d: expected %d coins, got %d", i, want, envelope.Wallet.Balance.AvailableCoins)
		}
		if len(envelope.Wallet.Entries) != i+2 {
			t.Fatalf("spend %d: expected %d entries, got %d", i, i+2, len(envelope.Wallet.Entries))
		}
	}

	envelope := decodeWallet(t, postJSON(t, client, baseURL+"/api/transactions", map[string]any{}))
	if envelope.Status != statusInsufficientFunds {
		t.Fatalf("expected insufficient_funds, got %q", envelope.Status)
	}
	if envelope.Wallet.Balance.AvailableCoins != 0 {
		t.Fatalf("a refused spend must not change the balance, got %d", envelope.Wallet.Balance.AvailableCoins)
	}
	if len(envelope.Wallet.Entries) != 5 {
		t.Fatalf("a refused spend must not record an entry, got %d entries", len(envelope.Wallet.Entries))
	}
}

func TestPurchaseValidation(t *testing.T) {
	t.Parallel()
	_, client, baseURL := newStubEnv(t)
	login(t, client, baseURL, "user-1")

	response := postJSON(t, client, baseURL+"/api/purchases", map[string]any{"coins": 3})
	_ = response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a below-minimum purchase, got %d", response.StatusCode)
	}

	response = postJSON(t, client, baseURL+"/api/purchases", map[string]any{"coins": 7})
	_ = response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an off-step purchase, got %d", response.StatusCode)
	}

	envelope := decodeWallet(t, postJSON(t, client, baseURL+"/api/purchases", map[string]any{"coins": 10}))
	if envelope.Wallet.Balance.AvailableCoins != 10 {
		t.Fatalf("expected 10 coins after purchase, got %d", envelope.Wallet.Balance.AvailableCoins)
	}
	if len(envelope.Wallet.Entries) != 1 || envelope.Wallet.Entries[0].Type != "purchase" {
		t.Fatalf("expected a single purchase entry, got %+v", envelope.Wallet.Entries)
	}
}

func TestScriptedSpendStatuses(t *testing.T) {
	t.Parallel()
	server, client, baseURL := newStubEnv(t)
	login(t, client, baseURL, "user-1")
	decodeWallet(t, postJSON(t, client, baseURL+"/api/bootstrap", map[string]any{}))

	server.ScriptSpendStatuses(statusInsufficientFunds)
	envelope := decodeWallet(t, postJSON(t, client, baseURL+"/api/transactions", map[string]any{}))
	if envelope.Status != statusInsufficientFunds {
		t.Fatalf("expected the scripted status, got %q", envelope.Status)
	}
	if envelope.Wallet.Balance.AvailableCoins != 20 {
		t.Fatalf("a scripted refusal must not touch the ledger, got %d coins", envelope.Wallet.Balance.AvailableCoins)
	}

	envelope = decodeWallet(t, postJSON(t, client, baseURL+"/api/transactions", map[string]any{}))
	if envelope.Status != statusSuccess {
		t.Fatalf("an exhausted script must fall back to real arithmetic, got %q", envelope.Status)
	}
	if envelope.Wallet.Balance.AvailableCoins != 15 {
		t.Fatalf("expected 15 coins after a real spend, got %d", envelope.Wallet.Balance.AvailableCoins)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	t.Parallel()
	_, client, baseURL := newStubEnv(t)
	login(t, client, baseURL, "user-1")

	response := postJSON(t, client, baseURL+"/auth/logout", map[string]any{})
	_ = response.Body.Close()
	if response.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 from logout, got %d", response.StatusCode)
	}

	response, err := client.Get(baseURL + "/api/session")
	if err != nil {
		t.Fatalf("session request failed: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", response.StatusCode)
	}
}

func TestWalletHistoryIsCapped(t *testing.T) {
	t.Parallel()
	_, client, baseURL := newStubEnv(t)
	login(t, client, baseURL, "user-1")

	for i := 0; i < 15; i++ {
		response := postJSON(t, client, baseURL+"/api/purchases", map[string]any{"coins": 5})
		_ = response.Body.Close()
		if response.StatusCode != http.StatusOK {
			t.Fatalf("purchase %d failed with status %d", i, response.StatusCode)
		}
	}

	response, err := client.Get(baseURL + "/api/wallet")
	if err != nil {
		t.Fatalf("wallet request failed: %v", err)
	}
	envelope := decodeWallet(t, response)
	if len(envelope.Wallet.Entries) != walletdeck.WalletHistoryLimit() {
		t.Fatalf("expected history capped at %d, got %d", walletdeck.WalletHistoryLimit(), len(envelope.Wallet.Entries))
	}
	if envelope.Wallet.Balance.AvailableCoins != 75 {
		t.Fatalf("the balance must cover the full ledger, got %d coins", envelope.Wallet.Balance.AvailableCoins)
	}
}
