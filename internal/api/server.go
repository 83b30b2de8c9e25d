package api

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/api/handler"
	"github.com/llmrelay/llmrelay/internal/api/middleware"
	"github.com/llmrelay/llmrelay/internal/metrics"
	"github.com/llmrelay/llmrelay/internal/repository"
	"github.com/llmrelay/llmrelay/internal/service"
)

// Server wraps the HTTP router and its dependencies.
type Server struct {
	router *gin.Engine
	logger *zap.Logger
}

// ServerDeps holds all dependencies for the API server.
type ServerDeps struct {
	ProxyService   *service.ProxyService
	AuthService    *service.AuthService
	Importer       *service.Importer
	ProviderRepo   repository.ProviderRepository
	GroupRepo      repository.GroupRepository
	MembershipRepo repository.MembershipRepository
	KeyRepo        repository.APIKeyRepository
	CallLogRepo    repository.CallLogRepository
	KeywordRepo    repository.KeywordRepository
	SettingsRepo   repository.SettingsRepository
	// Metrics is optional; leave nil to drop the /metrics endpoint.
	Metrics *metrics.Metrics
	// DB is optional; leave nil to drop the backup endpoints.
	DB *sql.DB
	// LogDir is optional; leave empty to drop the system log endpoints.
	LogDir    string
	RateLimit *middleware.RateLimitConfig
	Logger    *zap.Logger
}

// NewServer creates a new API server with all routes configured.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware.
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))

	healthHandler := handler.NewHealthHandler(deps.GroupRepo, deps.ProviderRepo)
	r.GET("/health", healthHandler.Health)

	// Inference surface. The messages endpoint also accepts the x-api-key
	// header scheme; everything else is bearer only.
	proxyHandler := handler.NewProxyHandler(deps.ProxyService, deps.Metrics, logger)
	bearerAuth := middleware.RequireAPIKey(deps.AuthService, deps.ProxyService, false)
	vendorAuth := middleware.RequireAPIKey(deps.AuthService, deps.ProxyService, true)
	v1 := r.Group("/v1")
	{
		v1.POST("/chat/completions", bearerAuth, proxyHandler.ChatCompletions)
		v1.POST("/responses", bearerAuth, proxyHandler.Responses)
		v1.POST("/messages", vendorAuth, proxyHandler.Messages)
		v1.POST("/completions", bearerAuth, proxyHandler.Completions)
		v1.POST("/embeddings", bearerAuth, proxyHandler.Embeddings)
		v1.POST("/images/generations", bearerAuth, proxyHandler.ImageGenerations)
		v1.GET("/models", bearerAuth, proxyHandler.Models)
	}

	// Management surface. Rate limited as a whole; the status and public
	// endpoints are exempted inside the limiter.
	api := r.Group("/api")
	api.Use(middleware.RateLimit(deps.RateLimit))

	// Public endpoints (no auth).
	authHandler := handler.NewAuthHandler(deps.AuthService, logger)
	statusHandler := handler.NewStatusHandler(deps.GroupRepo, deps.ProviderRepo, deps.MembershipRepo, logger)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/status", statusHandler.SystemStatus)
	api.GET("/public/groups", statusHandler.PublicGroups)
	api.GET("/public/providers", statusHandler.PublicProviders)

	// Key-scoped remote management. The handler authenticates the client
	// API key from the query string itself.
	remoteHandler := handler.NewRemoteHandler(deps.KeyRepo, deps.ProviderRepo, deps.MembershipRepo, logger)
	api.GET("/remote/status", remoteHandler.Status)
	api.POST("/remote/move-to-top", remoteHandler.MoveToTop)
	api.POST("/remote/update-order", remoteHandler.UpdateOrder)

	// Everything below requires an admin token.
	admin := api.Group("")
	admin.Use(middleware.RequireAdmin(deps.AuthService))
	{
		providerHandler := handler.NewProviderAdminHandler(deps.ProviderRepo, deps.Importer, logger)
		admin.POST("/providers/", providerHandler.Create)
		admin.GET("/providers/", providerHandler.List)
		admin.GET("/providers/:provider_id", providerHandler.Get)
		admin.PATCH("/providers/:provider_id", providerHandler.Update)
		admin.DELETE("/providers/:provider_id", providerHandler.Delete)
		admin.DELETE("/providers/quick-remove/:api_key", providerHandler.QuickRemove)
		admin.POST("/providers/sync", providerHandler.Sync)
		admin.POST("/import-models/", providerHandler.Import)

		groupHandler := handler.NewGroupAdminHandler(deps.GroupRepo, deps.ProviderRepo, deps.MembershipRepo, logger)
		admin.POST("/groups/", groupHandler.Create)
		admin.GET("/groups/", groupHandler.List)
		admin.DELETE("/groups/:group_id", groupHandler.Delete)
		admin.POST("/groups/:group_id/providers/:provider_id", groupHandler.AddProvider)
		admin.DELETE("/groups/:group_id/providers/:provider_id", groupHandler.RemoveProvider)
		admin.PUT("/groups/:group_id/providers", groupHandler.ReplaceProviders)

		keyHandler := handler.NewKeyAdminHandler(deps.KeyRepo, logger)
		admin.GET("/keys/", keyHandler.List)
		admin.POST("/keys/", keyHandler.Create)
		admin.PATCH("/keys/:key_id", keyHandler.Update)
		admin.DELETE("/keys/:key_id", keyHandler.Delete)

		keywordHandler := handler.NewKeywordAdminHandler(deps.KeywordRepo, logger)
		admin.GET("/keywords/", keywordHandler.List)
		admin.POST("/keywords/", keywordHandler.Create)
		admin.PATCH("/keywords/:keyword_id", keywordHandler.Update)
		admin.DELETE("/keywords/:keyword_id", keywordHandler.Delete)

		settingsHandler := handler.NewSettingsAdminHandler(deps.SettingsRepo, logger)
		admin.GET("/settings/", settingsHandler.List)
		admin.GET("/settings/:key", settingsHandler.Get)
		admin.POST("/settings/", settingsHandler.Upsert)

		logHandler := handler.NewLogAdminHandler(deps.CallLogRepo, logger)
		admin.GET("/logs/", logHandler.List)
		admin.GET("/logs/:log_id", logHandler.Get)
		admin.DELETE("/logs/", logHandler.Clear)

		dashboardHandler := handler.NewDashboardHandler(deps.CallLogRepo, logger)
		admin.GET("/dashboard/stats", dashboardHandler.Stats)

		if deps.DB != nil {
			backupHandler := handler.NewBackupHandler(deps.DB, logger)
			admin.GET("/backup/export", backupHandler.Export)
			admin.POST("/backup/import", backupHandler.Import)
		}

		if deps.LogDir != "" {
			syslogHandler := handler.NewSystemLogHandler(deps.LogDir, logger)
			admin.GET("/system-logs", syslogHandler.Tail)
			admin.POST("/system-logs/clear", syslogHandler.Clear)
		}
	}

	// Prometheus metrics, admin only.
	if deps.Metrics != nil {
		r.GET("/metrics", middleware.RequireAdmin(deps.AuthService), gin.WrapH(deps.Metrics.Handler()))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "Not Found", "type": "not_found_error"}})
	})

	return &Server{
		router: r,
		logger: logger,
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run starts the HTTP server.
func (s *Server) Run(addr string) error {
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.router.Run(addr)
}
