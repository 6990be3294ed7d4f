// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/address-vault/internal/logging"
	"github.com/address-vault/internal/models"
	"github.com/address-vault/internal/service"
	"github.com/address-vault/internal/types"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

// Service interfaces for dependency injection and testing

// AccessServiceInterface defines the interface for token-gated address access
type AccessServiceInterface interface {
	ValidateAndFetch(ctx context.Context, input *service.ValidateAndFetchInput) (*service.AddressView, error)
	ValidateToken(ctx context.Context, token types.AccessToken) (*service.TokenValidation, error)
}

// PermissionServiceInterface defines the interface for permission management
type PermissionServiceInterface interface {
	IssuePermission(ctx context.Context, input *service.IssuePermissionInput) (*service.IssuePermissionResult, error)
	ListPermissions(ctx context.Context, userID string) ([]*models.AddressPermission, error)
	Revoke(ctx context.Context, permissionID, userID string, reason *string) error
	GetAccessHistory(ctx context.Context, permissionID, userID string, limit, offset int) (*service.AccessHistory, error)
}

// WalletServiceInterface defines the interface for wallet linking
type WalletServiceInterface interface {
	LinkWallet(ctx context.Context, input *service.LinkWalletInput) (*models.WalletAddress, error)
	ListWallets(ctx context.Context, userID string) ([]*models.WalletAddress, error)
}

// VerificationServiceInterface defines the interface for verification status lookups
type VerificationServiceInterface interface {
	GetStatus(ctx context.Context, input *service.VerificationStatusInput) (*service.VerificationStatusView, error)
}

// UsageSummaryProvider reads per-app access counts from the analytics
// store. Nil when analytics is not configured.
type UsageSummaryProvider interface {
	UsageSummary(ctx context.Context, from, to time.Time) (map[string]uint64, error)
}

// Server represents the HTTP API server.
type Server struct {
	router              *mux.Router
	httpServer          *http.Server
	accessService       AccessServiceInterface
	permissionService   PermissionServiceInterface
	walletService       WalletServiceInterface
	verificationService VerificationServiceInterface
	usageProvider       UsageSummaryProvider
	redisClient         redis.Cmdable
	config              *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// AddressRateLimit is the per-IP per-minute budget for the address
	// and token endpoints; RevokeRateLimit applies to revocation.
	AddressRateLimit int
	RevokeRateLimit  int
}

// NewServer creates a new API server instance. redisClient may be nil,
// in which case rate limiting falls back to per-process counters;
// usageProvider may be nil when analytics is not configured.
func NewServer(
	config *ServerConfig,
	accessService AccessServiceInterface,
	permissionService PermissionServiceInterface,
	walletService WalletServiceInterface,
	verificationService VerificationServiceInterface,
	usageProvider UsageSummaryProvider,
	redisClient redis.Cmdable,
) *Server {
	s := &Server{
		router:              mux.NewRouter(),
		accessService:       accessService,
		permissionService:   permissionService,
		walletService:       walletService,
		verificationService: verificationService,
		usageProvider:       usageProvider,
		redisClient:         redisClient,
		config:              config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Revocation gets a much tighter budget than reads: it is a rare,
	// user-initiated action and a favorite target for scripted abuse.
	addressLimited := RateLimitMiddleware(NewRateLimiter(s.redisClient, "ratelimit:address", s.config.AddressRateLimit))
	revokeLimited := RateLimitMiddleware(NewRateLimiter(s.redisClient, "ratelimit:revoke", s.config.RevokeRateLimit))

	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Legacy token-bearing endpoints with flat responses
	s.router.Handle("/get-address", addressLimited(http.HandlerFunc(s.handleGetAddress))).Methods("GET", "POST")
	s.router.Handle("/validate-token", addressLimited(http.HandlerFunc(s.handleValidateToken))).Methods("GET")

	// Hardened API with enveloped responses
	api := s.router.PathPrefix("/api").Subrouter()

	api.Handle("/address", addressLimited(http.HandlerFunc(s.handleAPIAddress))).Methods("GET", "POST")
	api.Handle("/verification-status", addressLimited(http.HandlerFunc(s.handleVerificationStatus))).Methods("GET")

	api.Handle("/permissions", addressLimited(http.HandlerFunc(s.handleIssuePermission))).Methods("POST")
	api.Handle("/permissions", addressLimited(http.HandlerFunc(s.handleListPermissions))).Methods("GET")
	api.Handle("/permissions/{id}/revoke", revokeLimited(http.HandlerFunc(s.handleRevokePermission))).Methods("POST")
	api.Handle("/permissions/{id}/access-logs", addressLimited(http.HandlerFunc(s.handleAccessHistory))).Methods("GET")

	api.Handle("/wallets/link", addressLimited(http.HandlerFunc(s.handleLinkWallet))).Methods("POST")
	api.Handle("/wallets", addressLimited(http.HandlerFunc(s.handleListWallets))).Methods("GET")

	api.Handle("/analytics/usage-summary", addressLimited(http.HandlerFunc(s.handleUsageSummary))).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "address-vault",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.GetGlobalLogger().WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
