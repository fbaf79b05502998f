package walletsession

import "github.com/MarkoPoloResearchLab/walletdeck/pkg/walletapi"

// AuthState enumerates the auth lifecycle.
type AuthState string

const (
	AuthStateLoading         AuthState = "loading"
	AuthStateAuthenticated   AuthState = "authenticated"
	AuthStateUnauthenticated AuthState = "unauthenticated"
	AuthStateError           AuthState = "error"
)

// Tone classifies user-facing messages.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneInfo    Tone = "info"
	ToneError   Tone = "error"
)

// Banner is a transient status message. A banner with no expiry (the
// error-state banner) stays until the state changes.
type Banner struct {
	Tone   Tone
	Title  string
	Detail string
}

// State is the read-only view render bindings consume. Wallet and
// Profile are replaced wholesale, never mutated in place.
type State struct {
	AuthState         AuthState
	Profile           *walletapi.Profile
	Wallet            *walletapi.WalletSnapshot
	SpendPending      bool
	PurchasePending   bool
	Initializing      bool
	Banner            *Banner
	StatusText        string
	StatusTone        Tone
	ZeroBalanceNotice bool
}

// CanSpend reports whether a spend operation would currently be
// accepted.
func (state State) CanSpend() bool {
	return state.AuthState == AuthStateAuthenticated && !state.SpendPending && !state.PurchasePending
}

// User-facing copy, kept in one place the way the original UI does.
const (
	messageProcessing        = "Processing…"
	messageSpendSuccess      = "Transaction succeeded."
	messageSpendInsufficient = "Insufficient funds. Purchase more coins to continue."
	messageSpendError        = "Unexpected error while spending coins."
	messagePurchaseError     = "Unable to purchase coins."
	messageSelectValidAmount = "Select a valid purchase amount."
	messageBootstrapError    = "Bootstrap failed. Check the API logs."
	messageLoadWalletError   = "Unable to load wallet"
	messageZeroBalance       = "Balance is zero. Purchase coins to continue."
	messageSignedOut         = "Signed out"
	messageSignedInPrefix    = "Signed in as "
	messageSignOutFailed     = "Sign out failed. Try again."
	messageAuthUnavailable   = "Sign-out unavailable: auth client not loaded."
	messageAuthClientMissing = "Auth client failed to load. Check the demo configuration."
)
