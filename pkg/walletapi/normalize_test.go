package walletapi

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalizeWalletEnvelopeSnakeAndCamelMatch(t *testing.T) {
	t.Parallel()
	snakePayload := map[string]any{
		"wallet": map[string]any{
			"balance": map[string]any{
				"total_cents":     float64(2000),
				"available_cents": float64(1500),
				"total_coins":     float64(20),
				"available_coins": float64(15),
			},
			"entries": []any{
				map[string]any{
					"entry_id":         "entry-1",
					"type":             "spend",
					"amount_cents":     float64(-500),
					"amount_coins":     float64(-5),
					"reservation_id":   "",
					"idempotency_key":  "spend:abc",
					"metadata":         map[string]any{"source": "ui"},
					"created_unix_utc": float64(1700000000),
				},
			},
		},
	}
	camelPayload := map[string]any{
		"wallet": map[string]any{
			"balance": map[string]any{
				"totalCents":     float64(2000),
				"availableCents": float64(1500),
				"totalCoins":     float64(20),
				"availableCoins": float64(15),
			},
			"entries": []any{
				map[string]any{
					"entryId":        "entry-1",
					"type":           "spend",
					"amountCents":    float64(-500),
					"amountCoins":    float64(-5),
					"reservationId":  "",
					"idempotencyKey": "spend:abc",
					"metadata":       map[string]any{"source": "ui"},
					"createdUnixUtc": float64(1700000000),
				},
			},
		},
	}

	fromSnake, err := normalizeWalletEnvelope(snakePayload)
	if err != nil {
		t.Fatalf("unexpected error for snake_case payload: %v", err)
	}
	fromCamel, err := normalizeWalletEnvelope(camelPayload)
	if err != nil {
		t.Fatalf("unexpected error for camelCase payload: %v", err)
	}
	if !reflect.DeepEqual(fromSnake, fromCamel) {
		t.Fatalf("snake and camel payloads normalized differently:\n%+v\n%+v", fromSnake, fromCamel)
	}
	if fromSnake.Balance.AvailableCoins != 15 {
		t.Fatalf("expected 15 available coins, got %d", fromSnake.Balance.AvailableCoins)
	}
	if len(fromSnake.Entries) != 1 || fromSnake.Entries[0].AmountCoins != -5 {
		t.Fatalf("unexpected entries: %+v", fromSnake.Entries)
	}
}

func TestNormalizeWalletEnvelopeMissingFields(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		payload map[string]any
	}{
		{name: "wallet absent", payload: map[string]any{"status": "ok"}},
		{name: "wallet mistyped", payload: map[string]any{"wallet": "nope"}},
		{name: "balance absent", payload: map[string]any{"wallet": map[string]any{"entries": []any{}}}},
		{name: "balance mistyped", payload: map[string]any{"wallet": map[string]any{"balance": float64(7)}}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := normalizeWalletEnvelope(tc.payload)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestNormalizeBalanceCoinsDerivedWhenAbsent(t *testing.T) {
	t.Parallel()
	balance, err := normalizeBalance(map[string]any{
		"total_cents":     float64(2000),
		"available_cents": float64(500),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.TotalCoins != 20 {
		t.Fatalf("expected derived total coins 20, got %d", balance.TotalCoins)
	}
	if balance.AvailableCoins != 5 {
		t.Fatalf("expected derived available coins 5, got %d", balance.AvailableCoins)
	}
}

func TestNormalizeBalancePrefersServerCoins(t *testing.T) {
	t.Parallel()
	balance, err := normalizeBalance(map[string]any{
		"total_cents":     float64(2000),
		"available_cents": float64(500),
		"total_coins":     float64(21),
		"available_coins": float64(6),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.TotalCoins != 21 || balance.AvailableCoins != 6 {
		t.Fatalf("expected server-provided coins to win, got %+v", balance)
	}
}

func TestReadInt64Coercion(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input any
		want  int64
	}{
		{name: "float", input: float64(42), want: 42},
		{name: "numeric string", input: "42", want: 42},
		{name: "padded string", input: " 7 ", want: 7},
		{name: "garbage string", input: "not-a-number", want: 0},
		{name: "nil", input: nil, want: 0},
		{name: "bool", input: true, want: 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := readInt64(tc.input); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestParseMetadata(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input any
		want  map[string]any
	}{
		{name: "object", input: map[string]any{"source": "ui"}, want: map[string]any{"source": "ui"}},
		{name: "json string", input: `{"source":"ui"}`, want: map[string]any{"source": "ui"}},
		{name: "invalid string", input: "{not json", want: nil},
		{name: "nil", input: nil, want: nil},
		{name: "number", input: float64(5), want: nil},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := parseMetadata(tc.input)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestNormalizeSpendEnvelope(t *testing.T) {
	t.Parallel()
	payload := map[string]any{
		"status": "insufficient_funds",
		"wallet": map[string]any{
			"balance": map[string]any{
				"total_cents":     float64(0),
				"available_cents": float64(0),
			},
		},
	}
	result, err := normalizeSpendEnvelope(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusInsufficientFunds {
		t.Fatalf("expected insufficient_funds status, got %q", result.Status)
	}

	_, err = normalizeSpendEnvelope(map[string]any{"wallet": map[string]any{}})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse for missing status, got %v", err)
	}
}

func TestNormalizeSessionAcceptsCamelCase(t *testing.T) {
	t.Parallel()
	session, err := normalizeSession(map[string]any{
		"userId":    "user-1",
		"display":   "Demo User",
		"email":     "demo@example.com",
		"avatarUrl": "https://example.com/a.png",
		"roles":     []any{"user", "admin"},
		"expires":   float64(1800000000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.UserID != "user-1" {
		t.Fatalf("expected user id to be read from camelCase, got %q", session.UserID)
	}
	if len(session.Roles) != 2 {
		t.Fatalf("expected two roles, got %v", session.Roles)
	}
	profile := session.Profile()
	if profile.Display != "Demo User" || profile.AvatarURL != "https://example.com/a.png" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}
