package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/walletdeck/internal/consoleui"
	"github.com/MarkoPoloResearchLab/walletdeck/internal/stubbackend"
	"github.com/MarkoPoloResearchLab/walletdeck/internal/walletdeck"
	"github.com/MarkoPoloResearchLab/walletdeck/pkg/authflow"
	"github.com/MarkoPoloResearchLab/walletdeck/pkg/walletapi"
	"github.com/MarkoPoloResearchLab/walletdeck/pkg/walletsession"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagListenAddr     = "listen-addr"
	flagAPIBaseURL     = "api-base-url"
	flagAuthBaseURL    = "auth-base-url"
	flagAllowedOrigins = "allowed-origins"
	flagJWTSigningKey  = "jwt-signing-key"
	flagJWTIssuer      = "jwt-issuer"
	flagJWTCookieName  = "jwt-cookie-name"
	flagDatabaseDSN    = "database-dsn"
	flagUserID         = "user-id"
	flagUserEmail      = "user-email"
	flagUserDisplay    = "user-display"
	flagSpends         = "spends"
	flagPurchaseCoins  = "purchase-coins"
	envPrefix          = "WALLETDECK"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "walletdeck: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "walletdeck",
		Short:         "Headless wallet demo client and stub backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newStubCommand())
	cmd.AddCommand(newDemoCommand())
	return cmd
}

func newStubCommand() *cobra.Command {
	cfg := walletdeck.Config{}
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve the in-memory wallet stub backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadStubConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return stubbackend.Run(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "session JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "", "session JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "", "session cookie name")
	cmd.Flags().String(flagDatabaseDSN, "", "sqlite DSN for the wallet store")

	return cmd
}

func loadStubConfig(cmd *cobra.Command, cfg *walletdeck.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{flagListenAddr, flagAllowedOrigins, flagJWTSigningKey, flagJWTIssuer, flagJWTCookieName, flagDatabaseDSN} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	if !v.IsSet(flagJWTSigningKey) || strings.TrimSpace(v.GetString(flagJWTSigningKey)) == "" {
		return fmt.Errorf("%s is required", flagJWTSigningKey)
	}

	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.AllowedOrigins = walletdeck.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.SessionSigningKey = v.GetString(flagJWTSigningKey)
	cfg.SessionIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))
	cfg.SessionCookieName = strings.TrimSpace(v.GetString(flagJWTCookieName))
	cfg.DatabaseDSN = strings.TrimSpace(v.GetString(flagDatabaseDSN))

	return cfg.Validate()
}

type demoOptions struct {
	apiBaseURL     string
	authBaseURL    string
	requestTimeout time.Duration
	userID         string
	userEmail      string
	userDisplay    string
	spends         int
	purchaseCoins  int64
}

func newDemoCommand() *cobra.Command {
	options := demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted wallet session against a backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadDemoOptions(cmd, &options)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDemo(ctx, options)
		},
	}

	cmd.Flags().String(flagAPIBaseURL, "", "wallet API base URL (including the /api prefix)")
	cmd.Flags().String(flagAuthBaseURL, "", "stub auth base URL (server root)")
	cmd.Flags().String(flagUserID, "demo-user", "demo user id")
	cmd.Flags().String(flagUserEmail, "demo@example.com", "demo user email")
	cmd.Flags().String(flagUserDisplay, "Demo User", "demo user display name")
	cmd.Flags().Int(flagSpends, 5, "number of spend attempts to run")
	cmd.Flags().Int64(flagPurchaseCoins, 10, "coins to purchase after spending")

	return cmd
}

func loadDemoOptions(cmd *cobra.Command, options *demoOptions) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{flagAPIBaseURL, flagAuthBaseURL, flagUserID, flagUserEmail, flagUserDisplay, flagSpends, flagPurchaseCoins} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg := walletdeck.Config{APIBaseURL: strings.TrimSpace(v.GetString(flagAPIBaseURL))}
	cfg.ApplyDefaults()
	options.apiBaseURL = cfg.APIBaseURL
	options.requestTimeout = cfg.RequestTimeout
	options.authBaseURL = strings.TrimSpace(v.GetString(flagAuthBaseURL))
	if options.authBaseURL == "" {
		options.authBaseURL = strings.TrimSuffix(cfg.APIBaseURL, "/api")
	}
	options.userID = strings.TrimSpace(v.GetString(flagUserID))
	options.userEmail = strings.TrimSpace(v.GetString(flagUserEmail))
	options.userDisplay = strings.TrimSpace(v.GetString(flagUserDisplay))
	options.spends = v.GetInt(flagSpends)
	options.purchaseCoins = v.GetInt64(flagPurchaseCoins)
	if options.userID == "" {
		return fmt.Errorf("%s is required", flagUserID)
	}
	return nil
}

// runDemo drives a full session: restore, sign in, bootstrap, a series
// of spends, one purchase, sign out — rendering each state change.
func runDemo(ctx context.Context, options demoOptions) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("zap init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("cookie jar init: %w", err)
	}
	httpClient := &http.Client{Jar: jar, Timeout: options.requestTimeout}

	apiClient, err := walletapi.NewClient(options.apiBaseURL, walletapi.WithHTTPClient(httpClient))
	if err != nil {
		return err
	}
	authClient, err := stubbackend.NewAuthClient(options.authBaseURL, httpClient)
	if err != nil {
		return err
	}

	orchestrator, err := walletsession.New(walletsession.Config{
		WalletClient: apiClient,
		AuthClient:   authClient,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	binding := consoleui.New(os.Stdout)
	orchestrator.Subscribe(binding.Render)

	flow, err := authflow.NewFlow(authflow.Config{
		WalletClient:    apiClient,
		AuthClient:      authClient,
		OnAuthenticated: orchestrator.HandleAuthenticated,
		OnSignOut:       orchestrator.HandleSignedOut,
		OnMissingClient: orchestrator.HandleMissingAuthClient,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	flow.RestoreSession(ctx)
	if err := flow.AttachAuthClient(ctx); err != nil {
		return err
	}
	orchestrator.MarkReady()

	if orchestrator.Snapshot().AuthState != walletsession.AuthStateAuthenticated {
		err := authClient.Login(ctx, walletapi.Profile{
			UserID:  options.userID,
			Email:   options.userEmail,
			Display: options.userDisplay,
			Roles:   []string{"user"},
		})
		if err != nil {
			return fmt.Errorf("demo login: %w", err)
		}
	}

	for i := 0; i < options.spends; i++ {
		orchestrator.Spend(ctx)
	}
	if options.purchaseCoins > 0 {
		orchestrator.Purchase(ctx, options.purchaseCoins)
	}
	orchestrator.SignOut(ctx)

	return nil
}
