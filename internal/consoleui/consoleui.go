package consoleui

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/walletdeck/internal/walletdeck"
	"github.com/MarkoPoloResearchLab/walletdeck/pkg/walletsession"
)

// Binding is a textual render adapter: it subscribes to orchestrator
// state and writes a wallet view. It never mutates state; operations go
// through the orchestrator.
type Binding struct {
	mu     sync.Mutex
	writer io.Writer
}

// New wires a Binding over the given writer.
func New(writer io.Writer) *Binding {
	return &Binding{writer: writer}
}

// Render writes one view of the state. Safe for concurrent listeners.
func (binding *Binding) Render(state walletsession.State) {
	binding.mu.Lock()
	defer binding.mu.Unlock()

	if state.Banner != nil {
		fmt.Fprintf(binding.writer, "[%s] %s\n", state.Banner.Tone, state.Banner.Title)
	}
	switch state.AuthState {
	case walletsession.AuthStateLoading:
		fmt.Fprintln(binding.writer, "loading session...")
		return
	case walletsession.AuthStateUnauthenticated:
		fmt.Fprintln(binding.writer, "signed out, log in to see the wallet")
		return
	case walletsession.AuthStateError:
		fmt.Fprintln(binding.writer, "configuration error, see banner above")
		return
	}

	if state.Profile != nil {
		fmt.Fprintf(binding.writer, "user: %s <%s>\n", state.Profile.Display, state.Profile.Email)
	}
	if state.Wallet == nil {
		fmt.Fprintln(binding.writer, "wallet: loading...")
		return
	}
	balance := state.Wallet.Balance
	fmt.Fprintf(binding.writer, "wallet: %d coins available of %d total (%d/%d cents)\n",
		balance.AvailableCoins, balance.TotalCoins, balance.AvailableCents, balance.TotalCents)
	if state.ZeroBalanceNotice {
		fmt.Fprintf(binding.writer, "balance is zero, purchase coins to continue (options: %s)\n", purchaseOptionsLine())
	}
	if state.StatusText != "" {
		fmt.Fprintf(binding.writer, "status [%s]: %s\n", state.StatusTone, state.StatusText)
	}
	for _, entry := range state.Wallet.Entries {
		sign := ""
		if entry.AmountCoins > 0 {
			sign = "+"
		}
		createdAt := time.Unix(entry.CreatedAtUnix, 0).UTC().Format(time.RFC3339)
		fmt.Fprintf(binding.writer, "  %-9s %s%d coins  %s\n", entry.Type, sign, entry.AmountCoins, createdAt)
	}
}

func purchaseOptionsLine() string {
	options := walletdeck.PurchaseOptions()
	parts := make([]string, 0, len(options))
	for _, option := range options {
		parts = append(parts, strconv.FormatInt(option, 10))
	}
	return strings.Join(parts, ", ")
}
