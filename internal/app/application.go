package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"classcast/internal/api"
	"classcast/internal/config"
	"classcast/internal/database"
	"classcast/internal/directory"
	"classcast/internal/group"
	"classcast/internal/lifecycle"
	"classcast/internal/registry"
	"classcast/internal/router"
	"classcast/internal/store"
	"classcast/internal/websocket"
	"classcast/internal/writeback"
	dbconfig "classcast/pkg/database"
	"classcast/pkg/interfaces"
)

// Application coordinates all system components. Initialization follows
// strict dependency order:
// Database → Directory → Store → Registry → Router → Scheduler →
// Broadcaster → Lifecycle → WebSocket → API → HTTP.
type Application struct {
	config       *config.Config
	dbManager    *database.Manager
	classDir     *directory.Manager
	sessionStore interfaces.SessionStore
	registry     *registry.Registry
	router       *router.Router
	limiter      *router.RateLimiter
	scheduler    *writeback.Scheduler
	broadcaster  *group.Broadcaster
	lifecycle    *lifecycle.Manager
	httpServer   *http.Server

	stopCh chan struct{}
}

// NewApplication creates an application instance with all components wired.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Database manager (foundation layer). The class directory
	// always lives in SQLite, regardless of the session store backend.
	dbConfig := &dbconfig.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: Class directory with warmed cache.
	classDir, err := directory.NewManager(dbManager)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to initialize class directory: %w", err)
	}

	// STEP 3: Durable session store (sqlite shares the database manager).
	sessionStore, err := store.New(cfg.Store.Backend, cfg.Store.RedisURL, dbManager)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	// STEP 4: Live relay state.
	sessionRegistry := registry.NewRegistry()
	subscriptionRouter := router.NewRouter(sessionRegistry)
	limiter := router.NewRateLimiter(cfg.Relay.UpdateRate, cfg.Relay.UpdateBurst)
	scheduler := writeback.NewScheduler(sessionStore, cfg.Relay.DebounceInterval, cfg.Relay.StoreTimeout)
	broadcaster := group.NewBroadcaster()

	// STEP 5: Lifecycle manager ties the relay core together.
	lifecycleManager := lifecycle.NewManager(lifecycle.Config{
		Registry:    sessionRegistry,
		Router:      subscriptionRouter,
		Scheduler:   scheduler,
		Broadcaster: broadcaster,
		Directory:   classDir,
		Store:       sessionStore,
		Limiter:     limiter,
		Capacity:    cfg.Relay.ClassCapacity,
		Retention:   cfg.Relay.SessionRetention,
	})

	// STEP 6: Transport layers.
	wsHandler := websocket.NewHandler(lifecycleManager, websocket.Config{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		SendBuffer:   cfg.WebSocket.SendBuffer,
	})
	apiServer := api.NewServer(classDir, sessionRegistry, lifecycleManager, sessionStore)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:       cfg,
		dbManager:    dbManager,
		classDir:     classDir,
		sessionStore: sessionStore,
		registry:     sessionRegistry,
		router:       subscriptionRouter,
		limiter:      limiter,
		scheduler:    scheduler,
		broadcaster:  broadcaster,
		lifecycle:    lifecycleManager,
		httpServer:   httpServer,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start begins application execution. Background maintenance loops start
// first, then the HTTP server accepts connections.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting classcast on %s (store backend: %s)", app.httpServer.Addr, app.config.Store.Backend)

	go app.maintenanceLoop()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		close(app.stopCh)
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("classcast started successfully")
		return nil
	case <-ctx.Done():
		close(app.stopCh)
		return ctx.Err()
	}
}

// maintenanceLoop purges expired session records hourly and drops idle
// rate limiter entries.
func (app *Application) maintenanceLoop() {
	purgeTicker := time.NewTicker(time.Hour)
	limiterTicker := time.NewTicker(10 * time.Minute)
	defer purgeTicker.Stop()
	defer limiterTicker.Stop()

	for {
		select {
		case <-app.stopCh:
			return
		case <-purgeTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			purged, err := app.sessionStore.PurgeExpired(ctx)
			cancel()
			if err != nil {
				log.Printf("Session record purge failed: %v", err)
			} else if purged > 0 {
				log.Printf("Purged %d expired session records", purged)
			}
		case <-limiterTicker.C:
			app.limiter.Cleanup(30 * time.Minute)
		}
	}
}

// Stop gracefully shuts down the application in reverse dependency order:
// HTTP → maintenance → scheduler → store → database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down classcast")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	select {
	case <-app.stopCh:
	default:
		close(app.stopCh)
	}

	// Pending debounced documents are written out before the store closes.
	app.scheduler.FlushAll()

	if err := app.sessionStore.Close(); err != nil {
		log.Printf("Session store shutdown error: %v", err)
	}
	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("classcast shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
