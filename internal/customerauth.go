package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/customer-auth/internal/auth"
	"github.com/dgellow/customer-auth/internal/config"
	"github.com/dgellow/customer-auth/internal/crypto"
	"github.com/dgellow/customer-auth/internal/httpclient"
	"github.com/dgellow/customer-auth/internal/log"
	"github.com/dgellow/customer-auth/internal/metrics"
	"github.com/dgellow/customer-auth/internal/oauth"
	"github.com/dgellow/customer-auth/internal/profile"
	"github.com/dgellow/customer-auth/internal/server"
	"github.com/dgellow/customer-auth/internal/session"
	"github.com/dgellow/customer-auth/internal/storage"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds graceful shutdown of the HTTP server
const ShutdownTimeout = 30 * time.Second

// CustomerAuth is the complete customer login application
type CustomerAuth struct {
	config     config.Config
	httpServer *server.HTTPServer
	store      storage.Store
	cleanup    *storage.CleanupManager
}

// keys holds the per-purpose keys derived from the session secret
type keys struct {
	session []byte
	state   []byte
	store   []byte
}

func deriveKeys(secret string) (keys, error) {
	var k keys
	var err error
	if k.session, err = crypto.DeriveKey([]byte(secret), crypto.PurposeSessionToken); err != nil {
		return keys{}, err
	}
	if k.state, err = crypto.DeriveKey([]byte(secret), crypto.PurposeAuthState); err != nil {
		return keys{}, err
	}
	if k.store, err = crypto.DeriveKey([]byte(secret), crypto.PurposeStoreValues); err != nil {
		return keys{}, err
	}
	return k, nil
}

// NewCustomerAuth builds the application with all dependencies wired
func NewCustomerAuth(ctx context.Context, cfg config.Config) (*CustomerAuth, error) {
	log.LogInfoWithFields("customerauth", "Building customer auth application", map[string]any{
		"baseURL": cfg.Server.BaseURL,
		"shopId":  cfg.Provider.ShopID,
		"flow":    cfg.Provider.Flow,
		"storage": cfg.Session.Storage,
	})

	k, err := deriveKeys(string(cfg.Session.Secret))
	if err != nil {
		return nil, fmt.Errorf("invalid session secret: %w", err)
	}

	store, health, err := setupStorage(ctx, cfg, k.store)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	m := metrics.New(metrics.Config{})
	client := httpclient.New(
		httpclient.WithTimeout(cfg.Provider.Timeout),
		httpclient.WithMetrics(m),
	)

	provider, err := oauth.ShopifyCustomerAccount(cfg.ProviderOptions())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("invalid provider configuration: %w", err)
	}

	var engineOpts []oauth.EngineOption
	if cfg.Provider.VerifyIDToken {
		verifier, err := oauth.NewIDTokenVerifier(ctx, &provider)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to setup ID token verification: %w", err)
		}
		engineOpts = append(engineOpts, oauth.WithIDTokenVerifier(verifier))
	}
	engine, err := oauth.NewEngine(provider, client, engineOpts...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create token exchange engine: %w", err)
	}

	fetcher, err := profile.NewFetcher(&provider, client)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create profile fetcher: %w", err)
	}
	sessions, err := session.NewManager(&provider, store, client)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	codec, err := session.NewCodec(k.session, cfg.Server.BaseURL)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create session codec: %w", err)
	}

	service := auth.NewService(engine, fetcher, sessions, store, auth.WithMetrics(m))
	handlers := server.NewAuthHandlers(service, codec, k.state, cfg.Session.CookieName)

	clientIP, err := server.NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	routes := server.RoutesConfig{
		Name:           cfg.Server.Name,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health:         server.NewHealthHandler(health),
		Metrics:        m.Handler(),
		ClientIP:       clientIP,
	}
	if rl := cfg.Server.RateLimit; rl != nil {
		routes.RequestsPerSecond = rl.RequestsPerSecond
		routes.Burst = rl.Burst
	}

	app := &CustomerAuth{
		config:     cfg,
		httpServer: server.NewHTTPServer(server.NewHandler(handlers, routes), cfg.Server.Addr),
		store:      store,
	}
	if sweeper, ok := store.(storage.Sweeper); ok && cfg.Session.CleanupInterval > 0 {
		app.cleanup = storage.NewCleanupManager(sweeper, cfg.Session.CleanupInterval)
	}
	return app, nil
}

// setupStorage opens the configured backend and wraps it so stored tokens
// are encrypted at rest. It also returns the dependencies health checks ping.
func setupStorage(ctx context.Context, cfg config.Config, key []byte) (storage.Store, map[string]server.Pinger, error) {
	var inner storage.Store
	health := map[string]server.Pinger{}

	switch cfg.Session.Storage {
	case config.StorageRedis:
		rc := cfg.Session.Redis
		log.LogInfoWithFields("storage", "Using Redis storage", map[string]any{
			"address": rc.Address,
			"db":      rc.DB,
		})
		rs, err := storage.NewRedisStore(ctx, storage.RedisConfig{
			Address:   rc.Address,
			Password:  string(rc.Password),
			DB:        rc.DB,
			KeyPrefix: rc.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		health["redis"] = rs
		inner = rs
	case config.StorageFirestore:
		fc := cfg.Session.Firestore
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    fc.Project,
			"database":   fc.Database,
			"collection": fc.Collection,
		})
		fs, err := storage.NewFirestoreStore(ctx, fc.Project, fc.Database, fc.Collection)
		if err != nil {
			return nil, nil, err
		}
		inner = fs
	default:
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
		inner = storage.NewMemoryStore()
	}

	encryptor, err := crypto.NewEncryptor(key)
	if err != nil {
		_ = inner.Close()
		return nil, nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	store, err := storage.NewEncrypted(inner, encryptor)
	if err != nil {
		_ = inner.Close()
		return nil, nil, err
	}
	return store, health, nil
}

// Run serves until ctx is cancelled or the server fails, then shuts down
// gracefully
func (a *CustomerAuth) Run(ctx context.Context) error {
	log.LogInfoWithFields("customerauth", "Starting customer auth application", map[string]any{
		"addr": a.config.Server.Addr,
	})

	if a.cleanup != nil {
		a.cleanup.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		reason := "context cancelled"
		if cause := context.Cause(gctx); cause != nil && !errors.Is(cause, context.Canceled) {
			reason = cause.Error()
		}
		log.LogInfoWithFields("customerauth", "Starting graceful shutdown", map[string]any{
			"reason":  reason,
			"timeout": ShutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return a.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()

	if a.cleanup != nil {
		a.cleanup.Stop()
	}
	if cerr := a.store.Close(); cerr != nil {
		log.LogWarnWithFields("customerauth", "Failed to close storage", map[string]any{
			"error": cerr.Error(),
		})
	}

	if err != nil {
		log.LogErrorWithFields("customerauth", "Application stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	log.LogInfoWithFields("customerauth", "Application shutdown complete", nil)
	return nil
}
