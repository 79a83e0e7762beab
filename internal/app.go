package internal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dopaya1/dopaya-app-sub001/internal/authapi"
	"github.com/Dopaya1/dopaya-app-sub001/internal/callback"
	"github.com/Dopaya1/dopaya-app-sub001/internal/config"
	"github.com/Dopaya1/dopaya-app-sub001/internal/crypto"
	"github.com/Dopaya1/dopaya-app-sub001/internal/idp"
	"github.com/Dopaya1/dopaya-app-sub001/internal/impact"
	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
	"github.com/Dopaya1/dopaya-app-sub001/internal/pending"
	"github.com/Dopaya1/dopaya-app-sub001/internal/reconcile"
	"github.com/Dopaya1/dopaya-app-sub001/internal/resume"
	"github.com/Dopaya1/dopaya-app-sub001/internal/server"
)

const (
	accountCacheTTL  = 30 * time.Second
	reconcileTimeout = 30 * time.Second
	shutdownTimeout  = 30 * time.Second
)

// App is the assembled auth-resume service
type App struct {
	config     config.Config
	httpServer *server.HTTPServer
	store      pending.Store
	cleanup    *pending.CleanupManager
	reconciler *reconcile.Reconciler
}

// NewApp builds the application from config
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	log.LogInfoWithFields("app", "Building auth-resume service", map[string]any{
		"baseURL": cfg.Server.BaseURL,
		"storage": string(cfg.Resume.Storage),
	})

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	sessionEncryptor, err := crypto.NewAESEncryptor([]byte(cfg.Auth.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create session encryptor: %w", err)
	}
	stateSigner := crypto.NewTokenSigner([]byte(cfg.Auth.JWTSecret), cfg.Auth.StateTTL)

	authClient := authapi.NewClient(cfg.Auth.APIURL, string(cfg.Auth.APIKey), []byte(cfg.Auth.JWTSecret))
	impactClient := impact.NewClient(cfg.Impact.BaseURL, string(cfg.Impact.ServiceToken))
	accountCache := impact.NewCache(impactClient, accountCacheTTL)

	reconciler := reconcile.New(accountCache, impactClient, store, reconcileTimeout)
	selector := resume.NewSelector(store, cfg.Server.BaseURL, cfg.Resume.DefaultPath)
	dispatcher := resume.NewDispatcher(cfg.Server.BaseURL)

	var provider idp.Provider
	if cfg.Auth.Provider.ClientID != "" {
		provider, err = idp.NewProvider(cfg.Auth.Provider)
		if err != nil {
			return nil, fmt.Errorf("failed to create identity provider: %w", err)
		}
		log.LogInfoWithFields("app", "Identity provider configured", map[string]any{
			"kind": string(cfg.Auth.Provider.Kind),
		})
	}

	resolver := callback.NewResolver(authClient, provider, reconciler, selector, accountCache, stateSigner)

	authHandler := server.NewAuthHandler(
		cfg.Server.BaseURL,
		authClient,
		resolver,
		store,
		provider,
		stateSigner,
		sessionEncryptor,
		dispatcher,
		cfg.Auth.SessionTTL,
		cfg.Resume.PendingTTL,
	)
	paymentHandler := server.NewPaymentHandler(impactClient, sessionEncryptor)

	mux := http.NewServeMux()
	mux.Handle("/health", server.NewHealthHandler())
	mux.HandleFunc("/auth/start", authHandler.StartHandler)
	mux.HandleFunc("/auth/login", authHandler.LoginHandler)
	mux.HandleFunc("/auth/signup", authHandler.SignupHandler)
	mux.HandleFunc("/auth/callback", authHandler.CallbackHandler)
	mux.HandleFunc("/auth/logout", authHandler.LogoutHandler)
	mux.Handle("/support/payment-intent", paymentHandler)

	if cfg.Ops != nil {
		opsHandler := server.NewOpsHandler(store)
		opsAuth := server.NewOpsAuthMiddleware(cfg.Ops)
		mux.Handle("/ops/status", opsAuth(http.HandlerFunc(opsHandler.StatusHandler)))
		mux.Handle("/ops/log-level", opsAuth(http.HandlerFunc(opsHandler.LogLevelHandler)))
	}

	handler := server.ChainMiddleware(mux,
		server.NewRecoverMiddleware("http"),
		server.NewLoggerMiddleware("http"),
	)

	return &App{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
		store:      store,
		cleanup:    pending.NewCleanupManager(store, cfg.Resume.CleanupInterval),
		reconciler: reconciler,
	}, nil
}

// Run starts the service and blocks until shutdown
func (a *App) Run() error {
	log.LogInfoWithFields("app", "Starting auth-resume service", map[string]any{
		"addr": a.config.Server.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.cleanup.Start(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := a.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("app", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("app", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	case <-ctx.Done():
		shutdownReason = "context cancelled"
	}

	log.LogInfoWithFields("app", "Starting graceful shutdown", map[string]any{
		"reason": shutdownReason,
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("app", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	// let in-flight bonus grants finish; losing one means a user has to
	// sign in again before the next reconciliation repairs it
	if err := a.reconciler.Drain(shutdownCtx); err != nil {
		log.LogWarnWithFields("app", "Reconciler drain interrupted", map[string]any{
			"error": err.Error(),
		})
	}

	a.cleanup.Stop()

	if closer, ok := a.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.LogWarnWithFields("app", "Storage close error", map[string]any{
				"error": err.Error(),
			})
		}
	}

	log.LogInfoWithFields("app", "Shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

// setupStorage creates the resume context store for the configured backend
func setupStorage(ctx context.Context, cfg config.Config) (pending.Store, error) {
	switch cfg.Resume.Storage {
	case config.StorageKindFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.Resume.GCPProject,
			"database":   cfg.Resume.FirestoreDatabase,
			"collection": cfg.Resume.FirestoreCollection,
		})
		return pending.NewFirestoreStore(ctx, cfg.Resume.GCPProject, cfg.Resume.FirestoreDatabase, cfg.Resume.FirestoreCollection)

	case config.StorageKindRedis:
		log.LogInfoWithFields("storage", "Using Redis storage", map[string]any{
			"addr": cfg.Resume.RedisAddr,
			"db":   cfg.Resume.RedisDB,
		})
		return pending.NewRedisStore(ctx, cfg.Resume.RedisAddr, string(cfg.Resume.RedisPassword), cfg.Resume.RedisDB, cfg.Resume.PendingTTL)

	default:
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
		return pending.NewMemoryStore(), nil
	}
}
