package stubbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/walletdeck/internal/walletdeck"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const claimsContextKey = "auth_claims"

// Server is an in-memory wallet backend implementing the HTTP contract
// the orchestration core consumes. It exists for local demos and tests;
// the real ledger lives behind the production façade.
type Server struct {
	cfg    walletdeck.Config
	logger *zap.Logger
	store  *ledgerStore
	router *gin.Engine

	mu             sync.Mutex
	scriptedSpends []string
}

// New wires a Server with a migrated sqlite store.
func New(cfg walletdeck.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("stub config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := newLedgerStore(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	server := &Server{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
	server.router = server.setupRouter()
	return server, nil
}

// Handler exposes the router for in-process tests.
func (server *Server) Handler() http.Handler {
	return server.router
}

// ScriptSpendStatuses queues forced transaction outcomes. Each spend
// consumes one queued status; an empty queue falls back to real balance
// arithmetic.
func (server *Server) ScriptSpendStatuses(statuses ...string) {
	server.mu.Lock()
	server.scriptedSpends = append(server.scriptedSpends, statuses...)
	server.mu.Unlock()
}

// Run boots the stub backend and serves until ctx is cancelled.
func Run(ctx context.Context, cfg walletdeck.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("zap init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	server, err := New(cfg, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stub backend listening", zap.String("addr", cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/auth/login", server.handleLogin)
	router.POST("/auth/logout", server.handleLogout)

	api := router.Group("/api")
	api.Use(server.sessionMiddleware())

	api.GET("/session", server.handleSession)
	api.POST("/bootstrap", server.handleBootstrap)
	api.GET("/wallet", server.handleWallet)
	api.POST("/transactions", server.handleTransaction)
	api.POST("/purchases", server.handlePurchase)

	return router
}

// handleLogin mints a session cookie for the supplied profile. This is
// the stub's stand-in for the external identity provider; the real
// backend never exposes it.
func (server *Server) handleLogin(ctx *gin.Context) {
	var request loginRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if request.UserID == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "user_id is required"))
		return
	}
	expiresAt := time.Now().UTC().Add(server.cfg.SessionTTL)
	token, err := server.issueSessionToken(request, expiresAt)
	if err != nil {
		server.logger.Error("session token issue failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("session_error", "could not issue session"))
		return
	}
	ctx.SetCookie(server.cfg.SessionCookieName, token, int(server.cfg.SessionTTL.Seconds()), "/", "", false, true)
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":    request.UserID,
		"email":      request.Email,
		"display":    request.Display,
		"avatar_url": request.AvatarURL,
		"roles":      rolesOrEmpty(request.Roles),
		"expires":    expiresAt.Unix(),
	})
}

func (server *Server) handleLogout(ctx *gin.Context) {
	ctx.SetCookie(server.cfg.SessionCookieName, "", -1, "/", "", false, true)
	ctx.Status(http.StatusNoContent)
}

func (server *Server) handleSession(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":    claims.UserID,
		"email":      claims.Email,
		"display":    claims.Display,
		"avatar_url": claims.AvatarURL,
		"roles":      rolesOrEmpty(claims.Roles),
		"expires":    claims.ExpiresAt.Unix(),
	})
}

// handleBootstrap grants the starting balance once per user; repeats
// return the current wallet without double-funding, mirroring the
// AlreadyExists tolerance of the production façade.
func (server *Server) handleBootstrap(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	bootstrapKey := fmt.Sprintf("bootstrap:%s", claims.UserID)
	granted, err := server.store.hasIdempotencyKey(bootstrapKey)
	if err != nil {
		server.logger.Error("bootstrap lookup failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("ledger_error", "grant failed"))
		return
	}
	if !granted {
		err := server.store.insertEntry(WalletEntry{
			UserID:         claims.UserID,
			Type:           "grant",
			AmountCents:    walletdeck.BootstrapAmountCents(),
			IdempotencyKey: bootstrapKey,
			Metadata:       marshalMetadata(map[string]any{"action": "bootstrap"}),
		})
		if err != nil {
			server.logger.Error("bootstrap grant failed", zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, errorResponse("ledger_error", "grant failed"))
			return
		}
	}
	server.respondWithWallet(ctx, claims.UserID)
}

func (server *Server) handleWallet(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	server.respondWithWallet(ctx, claims.UserID)
}

func (server *Server) handleTransaction(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request spendRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	metadata := request.Metadata
	if metadata == nil {
		metadata = map[string]any{"action": "spend"}
	}

	if forced, ok := server.nextScriptedSpend(); ok && forced != statusSuccess {
		server.respondTransactionStatus(ctx, forced, claims.UserID)
		return
	}

	entry := WalletEntry{
		UserID:         claims.UserID,
		Type:           "spend",
		AmountCents:    -walletdeck.TransactionAmountCents(),
		IdempotencyKey: fmt.Sprintf("spend:%s", uuid.NewString()),
		Metadata:       marshalMetadata(metadata),
	}
	sufficient, err := server.store.spend(entry, walletdeck.TransactionAmountCents())
	if err != nil {
		server.logger.Error("spend failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("ledger_error", "spend failed"))
		return
	}
	if !sufficient {
		server.respondTransactionStatus(ctx, statusInsufficientFunds, claims.UserID)
		return
	}
	server.respondTransactionStatus(ctx, statusSuccess, claims.UserID)
}

func (server *Server) handlePurchase(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request purchaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if request.Coins < walletdeck.MinimumPurchaseCoins() || request.Coins%walletdeck.PurchaseIncrementCoins() != 0 {
		message := fmt.Sprintf("coins must be >= %d and in steps of %d", walletdeck.MinimumPurchaseCoins(), walletdeck.PurchaseIncrementCoins())
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_coins", message))
		return
	}
	metadata := request.Metadata
	if metadata == nil {
		metadata = map[string]any{"action": "purchase"}
	}
	err := server.store.insertEntry(WalletEntry{
		UserID:         claims.UserID,
		Type:           "purchase",
		AmountCents:    request.Coins * walletdeck.CoinValueCents(),
		IdempotencyKey: fmt.Sprintf("purchase:%s", uuid.NewString()),
		Metadata:       marshalMetadata(metadata),
	})
	if err != nil {
		server.logger.Error("purchase grant failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("ledger_error", "grant failed"))
		return
	}
	server.respondWithWallet(ctx, claims.UserID)
}

func (server *Server) respondTransactionStatus(ctx *gin.Context, status string, userID string) {
	wallet, err := server.buildWallet(userID)
	if err != nil {
		server.logger.Error("wallet fetch failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("ledger_error", "wallet unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status": status,
		"wallet": wallet,
	})
}

func (server *Server) respondWithWallet(ctx *gin.Context, userID string) {
	wallet, err := server.buildWallet(userID)
	if err != nil {
		server.logger.Error("wallet fetch failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("ledger_error", "wallet unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": wallet})
}

func (server *Server) buildWallet(userID string) (*walletPayload, error) {
	balance, err := server.store.balanceCents(userID)
	if err != nil {
		return nil, err
	}
	entries, err := server.store.listEntries(userID, walletdeck.WalletHistoryLimit())
	if err != nil {
		return nil, err
	}
	entryPayloads := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		entryPayloads = append(entryPayloads, entryPayload{
			EntryID:        entry.EntryID,
			Type:           entry.Type,
			AmountCents:    entry.AmountCents,
			AmountCoins:    entry.AmountCents / walletdeck.CoinValueCents(),
			ReservationID:  entry.ReservationID,
			IdempotencyKey: entry.IdempotencyKey,
			Metadata:       json.RawMessage(entry.Metadata),
			CreatedUnixUTC: entry.CreatedAt.Unix(),
		})
	}
	return &walletPayload{
		Balance: balancePayload{
			TotalCents:     balance,
			AvailableCents: balance,
			TotalCoins:     balance / walletdeck.CoinValueCents(),
			AvailableCoins: balance / walletdeck.CoinValueCents(),
		},
		Entries: entryPayloads,
	}, nil
}

func (server *Server) nextScriptedSpend() (string, bool) {
	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.scriptedSpends) == 0 {
		return "", false
	}
	status := server.scriptedSpends[0]
	server.scriptedSpends = server.scriptedSpends[1:]
	return status, true
}

func marshalMetadata(metadata any) []byte {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

func rolesOrEmpty(roles []string) []string {
	if roles == nil {
		return []string{}
	}
	return roles
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

const (
	statusSuccess           = "success"
	statusInsufficientFunds = "insufficient_funds"
)

type loginRequest struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email"`
	Display   string   `json:"display"`
	AvatarURL string   `json:"avatar_url"`
	Roles     []string `json:"roles"`
}

type spendRequest struct {
	Metadata map[string]any `json:"metadata"`
}

type purchaseRequest struct {
	Coins    int64          `json:"coins"`
	Metadata map[string]any `json:"metadata"`
}

type walletPayload struct {
	Balance balancePayload `json:"balance"`
	Entries []entryPayload `json:"entries"`
}

type balancePayload struct {
	TotalCents     int64 `json:"total_cents"`
	AvailableCents int64 `json:"available_cents"`
	TotalCoins     int64 `json:"total_coins"`
	AvailableCoins int64 `json:"available_coins"`
}

type entryPayload struct {
	EntryID        string          `json:"entry_id"`
	Type           string          `json:"type"`
	AmountCents    int64           `json:"amount_cents"`
	AmountCoins    int64           `json:"amount_coins"`
	ReservationID  string          `json:"reservation_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}
