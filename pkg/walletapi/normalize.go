package walletapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const centsPerCoin int64 = 100

// normalizeWalletEnvelope unwraps {"wallet": ...} and normalizes it.
func normalizeWalletEnvelope(payload map[string]any) (WalletSnapshot, error) {
	walletValue, found := pickField(payload, "wallet")
	if !found {
		return WalletSnapshot{}, fmt.Errorf("%w: wallet field missing", ErrMalformedResponse)
	}
	return normalizeWallet(walletValue)
}

// normalizeSpendEnvelope unwraps {"status": ..., "wallet": ...}.
func normalizeSpendEnvelope(payload map[string]any) (SpendResult, error) {
	statusValue, found := pickField(payload, "status")
	statusText, ok := statusValue.(string)
	if !found || !ok || strings.TrimSpace(statusText) == "" {
		return SpendResult{}, fmt.Errorf("%w: transaction status missing", ErrMalformedResponse)
	}
	walletValue, found := pickField(payload, "wallet")
	if !found {
		return SpendResult{}, fmt.Errorf("%w: transaction wallet missing", ErrMalformedResponse)
	}
	wallet, err := normalizeWallet(walletValue)
	if err != nil {
		return SpendResult{}, err
	}
	return SpendResult{Status: statusText, Wallet: wallet}, nil
}

func normalizeWallet(raw any) (WalletSnapshot, error) {
	source, ok := raw.(map[string]any)
	if !ok {
		return WalletSnapshot{}, fmt.Errorf("%w: wallet payload is not an object", ErrMalformedResponse)
	}
	balanceValue, found := pickField(source, "balance")
	if !found {
		return WalletSnapshot{}, fmt.Errorf("%w: wallet balance missing", ErrMalformedResponse)
	}
	balance, err := normalizeBalance(balanceValue)
	if err != nil {
		return WalletSnapshot{}, err
	}
	entries := []LedgerEntry{}
	if entriesValue, found := pickField(source, "entries"); found {
		if entryList, ok := entriesValue.([]any); ok {
			for _, entryValue := range entryList {
				entrySource, ok := entryValue.(map[string]any)
				if !ok {
					continue
				}
				entries = append(entries, normalizeEntry(entrySource))
			}
		}
	}
	return WalletSnapshot{Balance: balance, Entries: entries}, nil
}

func normalizeBalance(raw any) (BalanceSnapshot, error) {
	source, ok := raw.(map[string]any)
	if !ok {
		return BalanceSnapshot{}, fmt.Errorf("%w: balance payload is not an object", ErrMalformedResponse)
	}
	totalCents := readInt64(fieldValue(source, "total_cents", "totalCents"))
	availableCents := readInt64(fieldValue(source, "available_cents", "availableCents"))
	return BalanceSnapshot{
		TotalCents:     totalCents,
		AvailableCents: availableCents,
		TotalCoins:     coinsOrDerived(source, totalCents, "total_coins", "totalCoins"),
		AvailableCoins: coinsOrDerived(source, availableCents, "available_coins", "availableCoins"),
	}, nil
}

func normalizeEntry(source map[string]any) LedgerEntry {
	amountCents := readInt64(fieldValue(source, "amount_cents", "amountCents"))
	return LedgerEntry{
		EntryID:        readString(fieldValue(source, "entry_id", "entryId")),
		Type:           readString(fieldValue(source, "type")),
		AmountCents:    amountCents,
		AmountCoins:    coinsOrDerived(source, amountCents, "amount_coins", "amountCoins"),
		ReservationID:  readString(fieldValue(source, "reservation_id", "reservationId")),
		IdempotencyKey: readString(fieldValue(source, "idempotency_key", "idempotencyKey")),
		Metadata:       parseMetadata(fieldValue(source, "metadata")),
		CreatedAtUnix:  readInt64(fieldValue(source, "created_unix_utc", "createdUnixUtc", "created_at_unix", "createdAtUnix")),
	}
}

func normalizeSession(payload map[string]any) (Session, error) {
	if payload == nil {
		return Session{}, fmt.Errorf("%w: session payload missing", ErrMalformedResponse)
	}
	return Session{
		UserID:      readString(fieldValue(payload, "user_id", "userId")),
		Display:     readString(fieldValue(payload, "display")),
		Email:       readString(fieldValue(payload, "email")),
		AvatarURL:   readString(fieldValue(payload, "avatar_url", "avatarUrl")),
		Roles:       readStringSlice(fieldValue(payload, "roles")),
		ExpiresUnix: readInt64(fieldValue(payload, "expires")),
	}, nil
}

// pickField looks the key up directly; servers in the wild send both
// snake_case and camelCase, so callers pass every observed spelling.
func pickField(source map[string]any, names ...string) (any, bool) {
	for _, name := range names {
		if value, exists := source[name]; exists && value != nil {
			return value, true
		}
	}
	return nil, false
}

func fieldValue(source map[string]any, names ...string) any {
	value, _ := pickField(source, names...)
	return value
}

// coinsOrDerived prefers the server-provided coin field and derives the
// value from cents when the server omits it.
func coinsOrDerived(source map[string]any, cents int64, names ...string) int64 {
	if value, found := pickField(source, names...); found {
		return readInt64(value)
	}
	return cents / centsPerCoin
}

// readInt64 coerces JSON numbers and numeric-looking strings; anything
// unparseable yields 0 rather than an error so a single odd field never
// poisons an otherwise valid snapshot.
func readInt64(raw any) int64 {
	switch value := raw.(type) {
	case float64:
		return int64(value)
	case json.Number:
		parsed, err := value.Int64()
		if err != nil {
			return 0
		}
		return parsed
	case int64:
		return value
	case int:
		return int64(value)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func readString(raw any) string {
	value, ok := raw.(string)
	if !ok {
		return ""
	}
	return value
}

func readStringSlice(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return []string{}
	}
	values := make([]string, 0, len(list))
	for _, item := range list {
		if text, ok := item.(string); ok {
			values = append(values, text)
		}
	}
	return values
}

// parseMetadata accepts an object directly or a JSON-encoded string;
// parse failure yields nil, never an error.
func parseMetadata(raw any) map[string]any {
	switch value := raw.(type) {
	case map[string]any:
		return value
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			return nil
		}
		return parsed
	default:
		return nil
	}
}
