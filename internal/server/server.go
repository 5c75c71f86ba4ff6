// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/gamepay/procadmin/internal/config"
	"github.com/gamepay/procadmin/internal/health"
	"github.com/gamepay/procadmin/internal/identity"
	"github.com/gamepay/procadmin/internal/logging"
	"github.com/gamepay/procadmin/internal/metrics"
	"github.com/gamepay/procadmin/internal/orders"
	"github.com/gamepay/procadmin/internal/processor"
	"github.com/gamepay/procadmin/internal/ratelimit"
	"github.com/gamepay/procadmin/internal/realtime"
	"github.com/gamepay/procadmin/internal/reconcile"
	"github.com/gamepay/procadmin/internal/security"
	"github.com/gamepay/procadmin/internal/traces"
	"github.com/gamepay/procadmin/internal/validation"
)

// -----------------------------------------------------------------------------
// Collaborator interfaces
// -----------------------------------------------------------------------------

// ContractService is the slice of the payment processor the HTTP layer needs.
type ContractService interface {
	Snapshot(ctx context.Context) (*processor.State, error)
	Services(ctx context.Context, count uint64) ([]processor.Service, error)
	AddService(ctx context.Context, name string, cost *big.Int) (*processor.TxResult, error)
	UpdateService(ctx context.Context, id *big.Int, name string, cost *big.Int, enabled bool) (*processor.TxResult, error)
	Purchases(ctx context.Context, address string) ([]processor.Purchase, error)
	Address() string
	Ping(ctx context.Context) error
	Close() error
}

// IdentityClient talks to the game identity provider.
type IdentityClient interface {
	Login(ctx context.Context, username, password string) (string, error)
	Profile(ctx context.Context, token string) (*identity.AdminProfile, error)
}

// AddressAuditor merges on-chain purchase history with pending order rows.
type AddressAuditor interface {
	Lookup(ctx context.Context, address string) (*reconcile.Report, error)
}

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	contract      ContractService
	gate          identity.Authorizer
	idClient      IdentityClient
	reconciler    AddressAuditor
	orders        orders.Store
	hub           *realtime.Hub
	health        *health.Registry
	rateLimiter   *ratelimit.Limiter
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	adminToken    string             // operator session established at startup
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run
	traceShutdown func(context.Context) error

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

// WithContract sets a custom contract service (for testing)
func WithContract(c ContractService) Option {
	return func(s *Server) {
		s.contract = c
	}
}

// WithGate sets a custom admin gate (for testing)
func WithGate(g identity.Authorizer) Option {
	return func(s *Server) {
		s.gate = g
	}
}

// WithIdentityClient sets a custom identity provider client (for testing)
func WithIdentityClient(c IdentityClient) Option {
	return func(s *Server) {
		s.idClient = c
	}
}

// WithOrderStore sets a custom pending-order store (for testing)
func WithOrderStore(st orders.Store) Option {
	return func(s *Server) {
		s.orders = st
	}
}

// New creates a new server instance. It establishes the operator session with
// the identity provider and fails fast when the credentials are rejected.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may inject collaborators)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		store := orders.NewPostgresStore(db, cfg.PendingOrdersTable)
		if err := store.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate order store", "error", err)
		}
		s.orders = store
		s.logger.Info("using PostgreSQL order storage",
			"url", maskDSN(cfg.DatabaseURL),
			"table", cfg.PendingOrdersTable,
		)
	} else if s.orders == nil {
		s.orders = orders.NewMemoryStore()
		s.logger.Info("using in-memory order storage (data will not persist)")
	}

	// Create processor client if not injected
	if s.contract == nil {
		proc, err := processor.New(processor.Config{
			RPCURL:     cfg.RPCURL,
			PrivateKey: cfg.PrivateKey,
			ChainID:    cfg.ChainID,
			Contract:   cfg.ProcessorContract,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create processor client: %w", err)
		}
		s.contract = proc
		s.logger.Info("payment processor connected",
			"contract", cfg.ProcessorContract,
			"firstParty", proc.Address(),
		)
	}

	// Identity provider client and admin gate
	if s.idClient == nil || s.gate == nil {
		client := identity.NewClient(cfg.IdentityLoginURL, cfg.IdentityProfileURL)
		if s.idClient == nil {
			s.idClient = client
		}
		if s.gate == nil {
			keys := identity.NewKeyResolver(cfg.IdentityJWKSURL)
			s.gate = identity.NewGate(identity.NewTokenValidator(keys), client)
		}
	}

	// Establish the operator session. A rejected login at startup means the
	// configured credentials are wrong; starting anyway would leave every
	// health probe against the provider failing.
	token, err := s.idClient.Login(ctx, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("operator login against identity provider failed: %w", err)
	}
	s.adminToken = token
	s.logger.Info("operator session established", "username", cfg.AdminUsername)

	// Purchase reconciler over the same contract client and order store
	if s.reconciler == nil {
		s.reconciler = reconcile.New(s.contract, s.orders)
	}

	// Health checks: chain RPC, identity provider, database when present
	s.health = health.NewRegistry()
	s.health.Register("rpc", health.FuncChecker("rpc", s.contract.Ping))
	s.health.Register("identity", health.FuncChecker("identity", func(ctx context.Context) error {
		_, err := s.idClient.Profile(ctx, s.adminToken)
		return err
	}))
	if s.db != nil {
		s.health.Register("database", health.DBChecker("database", s.db))
	}

	// Realtime hub for the live admin event stream
	s.hub = realtime.NewHub(s.logger)

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
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"status":  "ERROR",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS: the dashboard is served same-origin; only the configured identity
	// provider pages ever embed it
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Tracing spans, one per matched route
	s.router.Use(traces.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Session routes. GET / decides between the dashboard and login views
	// itself, so it is registered outside the gated group.
	s.router.GET("/", s.dashboardHandler)
	s.router.POST("/login", s.loginHandler)
	s.router.POST("/logout", s.logoutHandler)

	// Every contract operation requires an authenticated admin session
	protected := s.router.Group("")
	protected.Use(identity.RequireAdmin(s.gate, s.cfg.ApplicationName))
	{
		protected.POST("/get-state", s.getStateHandler)
		protected.POST("/get-services", s.getServicesHandler)
		protected.POST("/add-service", s.addServiceHandler)
		protected.POST("/update-service", s.updateServiceHandler)
		protected.POST("/lookup-address", s.lookupAddressHandler)

		// Live event stream for connected dashboards
		protected.GET("/ws", func(c *gin.Context) {
			s.hub.HandleWebSocket(c.Writer, c.Request)
		})
	}
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.health.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
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

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	traceShutdown, err := traces.Init(ctx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}
	s.traceShutdown = traceShutdown

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2 * time.Minute, // catalog writes block until the tx is mined
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"contract", s.cfg.ProcessorContract,
			"firstParty", s.contract.Address(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Sample DB pool stats into Prometheus gauges
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 30*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
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

	// Cancel the context for background goroutines (hub, stats collector)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close RPC connection
	if err := s.contract.Close(); err != nil {
		s.logger.Error("processor close error", "error", err)
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	// Flush any buffered spans
	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
