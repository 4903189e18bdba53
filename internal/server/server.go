// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/streamvault/internal/accrual"
	"github.com/mbd888/streamvault/internal/business"
	"github.com/mbd888/streamvault/internal/circuitbreaker"
	"github.com/mbd888/streamvault/internal/config"
	"github.com/mbd888/streamvault/internal/health"
	"github.com/mbd888/streamvault/internal/idgen"
	"github.com/mbd888/streamvault/internal/logging"
	"github.com/mbd888/streamvault/internal/metrics"
	"github.com/mbd888/streamvault/internal/pools"
	"github.com/mbd888/streamvault/internal/ratelimit"
	"github.com/mbd888/streamvault/internal/realtime"
	"github.com/mbd888/streamvault/internal/risk"
	"github.com/mbd888/streamvault/internal/riskstore"
	"github.com/mbd888/streamvault/internal/scorer"
	"github.com/mbd888/streamvault/internal/security"
	"github.com/mbd888/streamvault/internal/traces"
	"github.com/mbd888/streamvault/internal/validation"
	"github.com/mbd888/streamvault/migrations"
)

// Version is reported by / and the build_info metric. Set by ldflags.
var Version = "dev"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	store        riskstore.Store
	db           *sql.DB // nil unless STORE_BACKEND=postgres
	scorer       risk.Scorer
	breaker      *circuitbreaker.Breaker
	riskService  *risk.Service
	businessSvc  *business.Service
	poolService  *pools.Service
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	health       *health.Registry
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	stopTracing  func(context.Context) error
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run
	drainDelay   time.Duration

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStore skips backend selection and uses store (for testing).
func WithStore(store riskstore.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithScorer replaces the HTTP scorer client (for testing).
func WithScorer(sc risk.Scorer) Option {
	return func(s *Server) {
		s.scorer = sc
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		drainDelay: 2 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	stopTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, Version, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.stopTracing = stopTracing

	// The signing key is mandatory; refuse to start without it.
	signer, err := risk.NewSigner(cfg.SignerPrivateKey)
	if err != nil {
		return nil, &config.ConfigurationError{Key: "SIGNER_PRIVATE_KEY", Message: err.Error()}
	}
	s.logger.Info("risk signer loaded", "address", signer.Address().Hex())

	poolConfigs := pools.DefaultConfigs()
	if cfg.PoolsFile != "" {
		poolConfigs, err = pools.LoadConfigs(cfg.PoolsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load pools: %w", err)
		}
		s.logger.Info("pools loaded", "file", cfg.PoolsFile, "count", len(poolConfigs))
	}

	if s.store == nil {
		if err := s.openStore(ctx); err != nil {
			return nil, err
		}
	}

	s.breaker = circuitbreaker.New(5, 30*time.Second)
	if s.scorer == nil {
		s.scorer = scorer.New(scorer.Config{
			BaseURL:     cfg.ScorerURL,
			Timeout:     cfg.ScorerTimeout,
			MaxAttempts: cfg.ScorerMaxAttempts,
		}, s.breaker)
	}

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger, cfg.CORSOrigins...)

	s.riskService = risk.NewService(s.store, s.scorer, signer).WithNotifier(s.realtimeHub)
	s.businessSvc = business.NewService(s.store).WithNotifier(s.realtimeHub)
	s.poolService = pools.NewService(s.store, poolConfigs)

	s.health = health.NewRegistry()
	s.health.Register("store", health.PingChecker("store", storePinger{s.store}))
	s.health.Register("scorer", health.Degraded("scorer", func() string {
		return s.breaker.State(scorer.BreakerKey).String()
	}, circuitbreaker.StateOpen.String()))

	metrics.BuildInfo.WithLabelValues(Version, cfg.StoreBackend).Set(1)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// openStore selects the persistence backend from STORE_BACKEND.
func (s *Server) openStore(ctx context.Context) error {
	switch s.cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := sql.Open("postgres", s.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		s.db = db
		s.store = riskstore.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(s.cfg.DatabaseURL))

	case config.BackendBolt:
		store, err := riskstore.OpenBoltStore(s.cfg.BoltPath)
		if err != nil {
			return fmt.Errorf("failed to open bolt store: %w", err)
		}
		s.store = store
		s.logger.Info("using bolt storage", "path", s.cfg.BoltPath)

	default:
		store, err := riskstore.OpenJSONStore(s.cfg.DataFile, s.logger)
		if err != nil {
			return fmt.Errorf("failed to open json store: %w", err)
		}
		s.store = store
		s.logger.Info("using JSON file storage", "path", s.cfg.DataFile)
	}
	return nil
}

// storePinger checks stores without a Ping method with a cheap read.
type storePinger struct {
	store riskstore.Store
}

func (p storePinger) Ping(ctx context.Context) error {
	if pinger, ok := p.store.(health.Pinger); ok {
		return pinger.Ping(ctx)
	}
	_, err := p.store.ListPools(ctx)
	return err
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := validation.SanitizeString(c.GetHeader(logging.RequestIDHeader), 64)
		if requestID == "" {
			requestID = idgen.RequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header(logging.RequestIDHeader, requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}

		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		case path == "/health/live" || path == "/health/ready" || path == "/metrics":
			logger.Debug("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/", s.infoHandler)
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/ws", s.realtimeHub.Handler())

	api := s.router.Group("/api")
	api.Use(validation.AddressParamMiddleware())

	accrual.NewHandler().RegisterRoutes(api)
	business.NewHandler(s.businessSvc).RegisterRoutes(api)
	pools.NewHandler(s.poolService).RegisterRoutes(api)

	var evaluate []gin.HandlerFunc
	if s.cfg.RateLimitPerMinute > 0 {
		s.rateLimiter = ratelimit.New(ratelimit.Config{
			RequestsPerMinute: s.cfg.RateLimitPerMinute,
			BurstSize:         s.cfg.RateLimitBurst,
		})
		evaluate = append(evaluate, s.rateLimiter.Middleware())
	}
	risk.NewHandler(s.riskService).RegisterRoutes(api, evaluate...)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Route not found",
		})
	})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks"`
	Realtime  realtime.Stats  `json:"realtime"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.health.CheckAll(c.Request.Context())

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Realtime:  s.realtimeHub.Stats(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":         "streamvault",
		"version":      Version,
		"signer":       s.riskService.Signer().Address().Hex(),
		"storeBackend": s.cfg.StoreBackend,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// evaluations wait on the scorer, including retries
	writeTimeout := s.cfg.ScorerTimeout*time.Duration(s.cfg.ScorerMaxAttempts) + 10*time.Second

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"store", s.cfg.StoreBackend,
			"signer", s.riskService.Signer().Address().Hex(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)
	go metrics.StartCollector(runCtx, s.db, 15*time.Second)

	s.ready.Store(true)
	s.logger.Info("server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		_ = s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	// Cancel the context for background goroutines (hub, collector)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	// Closing the store also closes the postgres pool.
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close error", "error", err)
	} else {
		s.logger.Info("store closed")
	}

	if err := s.stopTracing(ctx); err != nil {
		s.logger.Warn("tracing shutdown error", "error", err)
	}

	s.logger.Info("server stopped")
	return shutdownErr
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
