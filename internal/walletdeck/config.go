package walletdeck

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr          = ":9090"
	defaultAPIBaseURL          = "http://localhost:9090/api"
	defaultAllowedOrigin       = "http://localhost:8000"
	defaultSessionIssuer       = "walletdeck-stub"
	defaultSessionCookie       = "app_session"
	defaultSessionTTL          = 12 * time.Hour
	defaultRequestTimeout      = 10 * time.Second
	defaultDatabaseDSN         = "file::memory:?cache=shared"
	coinValueCents       int64 = 100
	transactionCoins     int64 = 5
	bootstrapCoins       int64 = 20
	minPurchaseCoins     int64 = 5
	purchaseStep         int64 = 5
	walletHistoryLimit         = 10
)

// Config aggregates runtime settings for the stub backend and the demo
// session runner.
type Config struct {
	ListenAddr        string
	APIBaseURL        string
	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	SessionTTL        time.Duration
	RequestTimeout    time.Duration
	DatabaseDSN       string
}

// ApplyDefaults fills every unset field. The demo runner uses this
// directly since it has no session to sign.
func (cfg *Config) ApplyDefaults() {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.APIBaseURL = defaultIfEmpty(cfg.APIBaseURL, defaultAPIBaseURL)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	cfg.DatabaseDSN = defaultIfEmpty(cfg.DatabaseDSN, defaultDatabaseDSN)
}

// Validate applies defaults and ensures the configuration contains sane
// values.
func (cfg *Config) Validate() error {
	cfg.ApplyDefaults()
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("session signing key is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

// CoinValueCents exposes the cents-per-coin conversion.
func CoinValueCents() int64 {
	return coinValueCents
}

// TransactionCoins returns the fixed per-transaction spend size.
func TransactionCoins() int64 {
	return transactionCoins
}

// TransactionAmountCents returns the per-transaction spend amount in cents.
func TransactionAmountCents() int64 {
	return transactionCoins * coinValueCents
}

// BootstrapAmountCents returns the default bootstrap amount in cents.
func BootstrapAmountCents() int64 {
	return bootstrapCoins * coinValueCents
}

// MinimumPurchaseCoins returns the minimum purchasable coins per request.
func MinimumPurchaseCoins() int64 {
	return minPurchaseCoins
}

// PurchaseIncrementCoins returns the purchase step size.
func PurchaseIncrementCoins() int64 {
	return purchaseStep
}

// PurchaseOptions returns the amounts the demo UI offers.
func PurchaseOptions() []int64 {
	return []int64{5, 10, 20}
}

// WalletHistoryLimit returns how many entries are returned to the UI.
func WalletHistoryLimit() int {
	return walletHistoryLimit
}
