package walletapi

// Transaction status discriminators returned by the spend endpoint.
const (
	StatusSuccess           = "success"
	StatusInsufficientFunds = "insufficient_funds"
)

// Session is the normalized payload of the session endpoint.
type Session struct {
	UserID      string
	Display     string
	Email       string
	AvatarURL   string
	Roles       []string
	ExpiresUnix int64
}

// Profile describes an authenticated user. Immutable once constructed.
type Profile struct {
	UserID    string
	Display   string
	Email     string
	AvatarURL string
	Roles     []string
}

// BalanceSnapshot carries the cents and coins views of a wallet balance.
// Available may be lower than total when holds are active.
type BalanceSnapshot struct {
	TotalCents     int64
	AvailableCents int64
	TotalCoins     int64
	AvailableCoins int64
}

// LedgerEntry is a single immutable line of wallet history.
// IdempotencyKey is carried for wire compatibility; the client never
// generates one (duplicate protection lives behind the API).
type LedgerEntry struct {
	EntryID        string
	Type           string
	AmountCents    int64
	AmountCoins    int64
	ReservationID  string
	IdempotencyKey string
	Metadata       map[string]any
	CreatedAtUnix  int64
}

// WalletSnapshot is the full wallet view returned by the API. Snapshots
// are replaced wholesale on every response, never merged.
type WalletSnapshot struct {
	Balance BalanceSnapshot
	Entries []LedgerEntry
}

// SpendResult pairs the business-level status with the updated wallet.
// An insufficient_funds status is a successful response, not an error.
type SpendResult struct {
	Status string
	Wallet WalletSnapshot
}

// Profile builds a Profile from a restored session.
func (session Session) Profile() Profile {
	return Profile{
		UserID:    session.UserID,
		Display:   session.Display,
		Email:     session.Email,
		AvatarURL: session.AvatarURL,
		Roles:     session.Roles,
	}
}
