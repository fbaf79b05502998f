package walletsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/walletdeck/pkg/authflow"
	"github.com/MarkoPoloResearchLab/walletdeck/pkg/walletapi"
	"go.uber.org/zap"
)

// ErrInvalidOrchestratorConfig marks a missing collaborator at
// construction time.
var ErrInvalidOrchestratorConfig = errors.New("invalid orchestrator config")

const (
	defaultTransactionCoins int64 = 5
	defaultPurchaseUnit     int64 = 5
	defaultBannerTTLSeconds int64 = 4

	metadataSource = "walletdeck"
)

// WalletClient is the slice of the wallet API client the orchestrator
// drives.
type WalletClient interface {
	BootstrapWallet(ctx context.Context, metadata map[string]any) (walletapi.WalletSnapshot, error)
	FetchWallet(ctx context.Context) (walletapi.WalletSnapshot, error)
	SpendCoins(ctx context.Context, metadata map[string]any) (walletapi.SpendResult, error)
	PurchaseCoins(ctx context.Context, coins int64, metadata map[string]any) (walletapi.WalletSnapshot, error)
}

// Listener receives a state snapshot after every mutation.
type Listener func(state State)

// Config wires an Orchestrator.
type Config struct {
	WalletClient     WalletClient
	AuthClient       authflow.AuthClient
	Logger           *zap.Logger
	Now              func() int64
	TransactionCoins int64
	PurchaseUnit     int64
	BannerTTLSeconds int64
}

// Orchestrator owns the UI-agnostic wallet/session state machine. All
// state lives behind one mutex; network calls run outside it so the
// busy-flag guards, not the lock, serialize operations.
type Orchestrator struct {
	walletClient     WalletClient
	authClient       authflow.AuthClient
	logger           *zap.Logger
	nowFn            func() int64
	transactionCoins int64
	purchaseUnit     int64
	bannerTTL        int64

	mu              sync.Mutex
	listeners       []Listener
	authState       AuthState
	profile         *walletapi.Profile
	wallet          *walletapi.WalletSnapshot
	spendPending    bool
	purchasePending bool
	initializing    bool
	banner          *Banner
	bannerExpiresAt int64
	statusText      string
	statusTone      Tone
	zeroNotice      bool
}

// New validates collaborators and wires an Orchestrator in the Loading
// state.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.WalletClient == nil {
		return nil, fmt.Errorf("%w: wallet client is required", ErrInvalidOrchestratorConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = func() int64 { return time.Now().UTC().Unix() }
	}
	transactionCoins := cfg.TransactionCoins
	if transactionCoins <= 0 {
		transactionCoins = defaultTransactionCoins
	}
	purchaseUnit := cfg.PurchaseUnit
	if purchaseUnit <= 0 {
		purchaseUnit = defaultPurchaseUnit
	}
	bannerTTL := cfg.BannerTTLSeconds
	if bannerTTL <= 0 {
		bannerTTL = defaultBannerTTLSeconds
	}
	return &Orchestrator{
		walletClient:     cfg.WalletClient,
		authClient:       cfg.AuthClient,
		logger:           logger,
		nowFn:            nowFn,
		transactionCoins: transactionCoins,
		purchaseUnit:     purchaseUnit,
		bannerTTL:        bannerTTL,
		authState:        AuthStateLoading,
		initializing:     true,
		statusTone:       ToneInfo,
	}, nil
}

// Subscribe registers a listener for state snapshots.
func (orchestrator *Orchestrator) Subscribe(listener Listener) {
	if listener == nil {
		return
	}
	orchestrator.mu.Lock()
	orchestrator.listeners = append(orchestrator.listeners, listener)
	orchestrator.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (orchestrator *Orchestrator) Snapshot() State {
	orchestrator.mu.Lock()
	defer orchestrator.mu.Unlock()
	return orchestrator.snapshotLocked()
}

// HandleAuthenticated transitions to Authenticated, stores the profile,
// and populates the wallet: a fresh login bootstraps, a restored session
// only refreshes. A 401 during population invalidates the session and
// re-enters Unauthenticated.
func (orchestrator *Orchestrator) HandleAuthenticated(ctx context.Context, profile walletapi.Profile, options authflow.AuthenticatedOptions) {
	display := profile.Display
	if display == "" {
		display = "user"
	}
	storedProfile := profile
	orchestrator.update(func() {
		orchestrator.authState = AuthStateAuthenticated
		orchestrator.profile = &storedProfile
		orchestrator.initializing = true
		orchestrator.setBannerLocked(ToneSuccess, messageSignedInPrefix+display, "")
	})

	var wallet walletapi.WalletSnapshot
	var err error
	if options.Bootstrap {
		wallet, err = orchestrator.walletClient.BootstrapWallet(ctx, map[string]any{"source": metadataSource})
	} else {
		wallet, err = orchestrator.walletClient.FetchWallet(ctx)
	}
	if err != nil {
		if walletapi.IsUnauthorized(err) {
			orchestrator.update(func() {
				orchestrator.resetLocked()
			})
			return
		}
		orchestrator.logger.Error("wallet populate failed", zap.Error(err))
		orchestrator.update(func() {
			orchestrator.initializing = false
			orchestrator.setBannerLocked(ToneError, messageBootstrapError, "")
		})
		return
	}
	orchestrator.update(func() {
		orchestrator.initializing = false
		orchestrator.replaceWalletLocked(wallet)
	})
}

// HandleSignedOut resets to the Unauthenticated shape. Used for the
// explicit unauthenticated signal from the auth client and for any 401.
func (orchestrator *Orchestrator) HandleSignedOut() {
	orchestrator.update(func() {
		orchestrator.resetLocked()
		orchestrator.setBannerLocked(ToneSuccess, messageSignedOut, "")
	})
}

// HandleMissingAuthClient enters the persistent Error state: without the
// auth capability the feature cannot work and a transient banner would
// understate that.
func (orchestrator *Orchestrator) HandleMissingAuthClient() {
	orchestrator.update(func() {
		orchestrator.authState = AuthStateError
		orchestrator.initializing = false
		orchestrator.setPersistentBannerLocked(ToneError, messageAuthClientMissing, "")
	})
}

// MarkReady ends startup. A Loading state that saw no authentication
// event settles into Unauthenticated.
func (orchestrator *Orchestrator) MarkReady() {
	orchestrator.update(func() {
		orchestrator.initializing = false
		if orchestrator.authState == AuthStateLoading {
			orchestrator.authState = AuthStateUnauthenticated
		}
	})
}

// Spend issues one fixed-size transaction. No-op unless Authenticated
// and idle, so rapid repeated triggers collapse into a single request.
func (orchestrator *Orchestrator) Spend(ctx context.Context) {
	orchestrator.mu.Lock()
	if orchestrator.walletClient == nil || orchestrator.authState != AuthStateAuthenticated || orchestrator.spendPending || orchestrator.purchasePending {
		orchestrator.mu.Unlock()
		return
	}
	orchestrator.spendPending = true
	orchestrator.setStatusLocked(messageProcessing, ToneInfo)
	snapshot := orchestrator.snapshotLocked()
	orchestrator.mu.Unlock()
	orchestrator.notify(snapshot)

	defer orchestrator.update(func() {
		orchestrator.spendPending = false
	})

	result, err := orchestrator.walletClient.SpendCoins(ctx, map[string]any{
		"source": metadataSource,
		"coins":  orchestrator.transactionCoins,
	})
	if err != nil {
		orchestrator.handleOperationError(err, messageSpendError)
		return
	}
	orchestrator.update(func() {
		orchestrator.replaceWalletLocked(result.Wallet)
		if result.Status == walletapi.StatusInsufficientFunds {
			orchestrator.setStatusLocked(messageSpendInsufficient, ToneError)
			orchestrator.setBannerLocked(ToneError, messageSpendInsufficient, "")
			return
		}
		orchestrator.setStatusLocked(messageSpendSuccess, ToneSuccess)
		if orchestrator.zeroNotice {
			orchestrator.setBannerLocked(ToneError, messageZeroBalance, "")
		}
	})
}

// Purchase buys coins. Invalid amounts are rejected locally before any
// network call; the unit is both the minimum and the step.
func (orchestrator *Orchestrator) Purchase(ctx context.Context, coins int64) {
	orchestrator.mu.Lock()
	if orchestrator.walletClient == nil || orchestrator.authState != AuthStateAuthenticated || orchestrator.spendPending || orchestrator.purchasePending {
		orchestrator.mu.Unlock()
		return
	}
	if coins < orchestrator.purchaseUnit || coins%orchestrator.purchaseUnit != 0 {
		orchestrator.setStatusLocked(messageSelectValidAmount, ToneError)
		snapshot := orchestrator.snapshotLocked()
		orchestrator.mu.Unlock()
		orchestrator.notify(snapshot)
		return
	}
	orchestrator.purchasePending = true
	orchestrator.setStatusLocked(messageProcessing, ToneInfo)
	snapshot := orchestrator.snapshotLocked()
	orchestrator.mu.Unlock()
	orchestrator.notify(snapshot)

	defer orchestrator.update(func() {
		orchestrator.purchasePending = false
	})

	wallet, err := orchestrator.walletClient.PurchaseCoins(ctx, coins, map[string]any{
		"source": metadataSource,
		"coins":  coins,
	})
	if err != nil {
		orchestrator.handleOperationError(err, messagePurchaseError)
		return
	}
	orchestrator.update(func() {
		orchestrator.replaceWalletLocked(wallet)
		orchestrator.setStatusLocked(fmt.Sprintf("Added %d coins.", coins), ToneSuccess)
	})
}

// RefreshWallet re-reads the wallet without mutating it server-side. On
// failure the prior snapshot stays visible; stale beats blank.
func (orchestrator *Orchestrator) RefreshWallet(ctx context.Context) {
	orchestrator.mu.Lock()
	if orchestrator.authState != AuthStateAuthenticated {
		orchestrator.mu.Unlock()
		return
	}
	orchestrator.mu.Unlock()

	wallet, err := orchestrator.walletClient.FetchWallet(ctx)
	if err != nil {
		orchestrator.handleOperationError(err, messageLoadWalletError)
		return
	}
	orchestrator.update(func() {
		orchestrator.replaceWalletLocked(wallet)
	})
}

// SignOut delegates to the external logout capability. Client-side state
// resets only once logout returns without error; without the capability
// there is nothing to fabricate a sign-out with.
func (orchestrator *Orchestrator) SignOut(ctx context.Context) {
	if orchestrator.authClient == nil {
		orchestrator.update(func() {
			orchestrator.setBannerLocked(ToneError, messageAuthUnavailable, "")
		})
		return
	}
	if err := orchestrator.authClient.Logout(ctx); err != nil {
		orchestrator.logger.Error("logout failed", zap.Error(err))
		orchestrator.update(func() {
			orchestrator.setBannerLocked(ToneError, messageSignOutFailed, "")
		})
		return
	}
	orchestrator.HandleSignedOut()
}

// handleOperationError converts request failures into state: a 401 is an
// unauthenticated signal, anything else becomes a banner while the auth
// state and wallet stay put.
func (orchestrator *Orchestrator) handleOperationError(err error, statusMessage string) {
	if walletapi.IsUnauthorized(err) {
		orchestrator.HandleSignedOut()
		return
	}
	orchestrator.logger.Error("wallet operation failed", zap.Error(err))
	orchestrator.update(func() {
		orchestrator.setStatusLocked(statusMessage, ToneError)
		orchestrator.setBannerLocked(ToneError, statusMessage, "")
	})
}

func (orchestrator *Orchestrator) update(fn func()) {
	orchestrator.mu.Lock()
	fn()
	snapshot := orchestrator.snapshotLocked()
	orchestrator.mu.Unlock()
	orchestrator.notify(snapshot)
}

func (orchestrator *Orchestrator) notify(snapshot State) {
	orchestrator.mu.Lock()
	listeners := make([]Listener, len(orchestrator.listeners))
	copy(listeners, orchestrator.listeners)
	orchestrator.mu.Unlock()
	for _, listener := range listeners {
		listener(snapshot)
	}
}

func (orchestrator *Orchestrator) snapshotLocked() State {
	if orchestrator.banner != nil && orchestrator.bannerExpiresAt > 0 && orchestrator.nowFn() >= orchestrator.bannerExpiresAt {
		orchestrator.banner = nil
		orchestrator.bannerExpiresAt = 0
	}
	state := State{
		AuthState:         orchestrator.authState,
		SpendPending:      orchestrator.spendPending,
		PurchasePending:   orchestrator.purchasePending,
		Initializing:      orchestrator.initializing,
		StatusText:        orchestrator.statusText,
		StatusTone:        orchestrator.statusTone,
		ZeroBalanceNotice: orchestrator.zeroNotice,
	}
	if orchestrator.profile != nil {
		profileCopy := *orchestrator.profile
		profileCopy.Roles = append([]string(nil), orchestrator.profile.Roles...)
		state.Profile = &profileCopy
	}
	if orchestrator.wallet != nil {
		walletCopy := *orchestrator.wallet
		walletCopy.Entries = append([]walletapi.LedgerEntry(nil), orchestrator.wallet.Entries...)
		state.Wallet = &walletCopy
	}
	if orchestrator.banner != nil {
		bannerCopy := *orchestrator.banner
		state.Banner = &bannerCopy
	}
	return state
}

// replaceWalletLocked swaps the snapshot wholesale and recomputes the
// zero-balance notice from the server-reported balance.
func (orchestrator *Orchestrator) replaceWalletLocked(wallet walletapi.WalletSnapshot) {
	orchestrator.wallet = &wallet
	orchestrator.zeroNotice = wallet.Balance.AvailableCoins <= 0
}

func (orchestrator *Orchestrator) resetLocked() {
	orchestrator.authState = AuthStateUnauthenticated
	orchestrator.profile = nil
	orchestrator.wallet = nil
	orchestrator.zeroNotice = false
	orchestrator.initializing = false
	orchestrator.statusText = ""
	orchestrator.statusTone = ToneInfo
	orchestrator.banner = nil
	orchestrator.bannerExpiresAt = 0
}

func (orchestrator *Orchestrator) setStatusLocked(text string, tone Tone) {
	orchestrator.statusText = text
	orchestrator.statusTone = tone
}

func (orchestrator *Orchestrator) setBannerLocked(tone Tone, title string, detail string) {
	orchestrator.banner = &Banner{Tone: tone, Title: title, Detail: detail}
	orchestrator.bannerExpiresAt = orchestrator.nowFn() + orchestrator.bannerTTL
}

func (orchestrator *Orchestrator) setPersistentBannerLocked(tone Tone, title string, detail string) {
	orchestrator.banner = &Banner{Tone: tone, Title: title, Detail: detail}
	orchestrator.bannerExpiresAt = 0
}
