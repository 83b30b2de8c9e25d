package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/llmrelay/llmrelay/internal/api"
	"github.com/llmrelay/llmrelay/internal/api/middleware"
	"github.com/llmrelay/llmrelay/internal/config"
	"github.com/llmrelay/llmrelay/internal/database"
	"github.com/llmrelay/llmrelay/internal/metrics"
	"github.com/llmrelay/llmrelay/internal/repository"
	"github.com/llmrelay/llmrelay/internal/service"
	"github.com/llmrelay/llmrelay/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v":
			fmt.Println(version.Info())
			os.Exit(0)
		case "--init":
			if err := runInit(); err != nil {
				log.Fatalf("init: %v", err)
			}
			os.Exit(0)
		case "--help", "-h":
			printUsage()
			os.Exit(0)
		}
	}
	if err := run(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func printUsage() {
	fmt.Printf("llmrelay - %s\n\n", version.Short())
	fmt.Println("Usage: llmrelay [OPTIONS]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --init         Generate .env.example configuration template")
	fmt.Println("  --version, -v  Show version information")
	fmt.Println("  --help, -h     Show this help message")
	fmt.Println()
	fmt.Println("Without options, starts the aggregation gateway.")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  Use environment variables or a .env file (see .env.example)")
	fmt.Println("  Run 'llmrelay --init' to generate the configuration template")
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize logger.
	logger, err := newLogger(cfg.Logging.Level, cfg.Logging.Dir, cfg.LogRotation)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting llmrelay",
		zap.String("version", version.Short()),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	// Initialize database.
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	// Read-only pool for query-heavy workloads so log listing and
	// dashboard aggregates never starve the proxy's writes.
	readDB, err := database.NewReadOnly(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("init read-only database: %w", err)
	}
	defer readDB.Close()

	if err := database.RunMigrations(db, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Initialize repositories.
	providerRepo := repository.NewProviderRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	keyRepo := repository.NewAPIKeyRepository(db)
	callLogRepo := repository.NewCallLogRepository(db, logger, readDB)
	keywordRepo := repository.NewKeywordRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	ctx := context.Background()

	// Live-call counters survive an unclean shutdown; start from zero.
	if err := membershipRepo.ResetAllActive(ctx); err != nil {
		return fmt.Errorf("reset active calls: %w", err)
	}

	if err := settingsRepo.Seed(ctx, map[string]string{
		"failover_threshold_count":          "2",
		"failover_threshold_period_minutes": "5",
	}); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	// Optional declarative seed of groups, providers, and keys.
	if cfg.Bootstrap.File != "" {
		file, err := service.LoadBootstrap(cfg.Bootstrap.File)
		if err != nil {
			return fmt.Errorf("load bootstrap file: %w", err)
		}
		bootstrapper := service.NewBootstrapper(providerRepo, groupRepo, membershipRepo, keyRepo, logger)
		if err := bootstrapper.Apply(ctx, file); err != nil {
			return fmt.Errorf("apply bootstrap: %w", err)
		}
	}

	// Initialize services.
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}
	authService := service.NewAuthService(keyRepo, cfg.Auth, logger)
	sentinel := service.NewSentinel(keywordRepo, logger)
	selector := service.NewSelector(groupRepo, membershipRepo, callLogRepo, settingsRepo,
		cfg.Selector.HealthFilter, logger)
	proxyService := service.NewProxyService(selector, sentinel, providerRepo, membershipRepo,
		callLogRepo, m, cfg.Proxy, logger)
	importer := service.NewImporter(providerRepo, logger)

	// Scheduled call log pruning.
	sweeper := service.NewRetentionSweeper(callLogRepo, cfg.Retention, logger)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start retention sweeper: %w", err)
	}
	defer sweeper.Stop()

	// Create HTTP server.
	server := api.NewServer(api.ServerDeps{
		ProxyService:   proxyService,
		AuthService:    authService,
		Importer:       importer,
		ProviderRepo:   providerRepo,
		GroupRepo:      groupRepo,
		MembershipRepo: membershipRepo,
		KeyRepo:        keyRepo,
		CallLogRepo:    callLogRepo,
		KeywordRepo:    keywordRepo,
		SettingsRepo:   settingsRepo,
		Metrics:        m,
		DB:             db,
		LogDir:         cfg.Logging.Dir,
		RateLimit: &middleware.RateLimitConfig{
			Enabled:       cfg.RateLimit.Enabled,
			MaxRequests:   cfg.RateLimit.MaxRequests,
			WindowSeconds: cfg.RateLimit.WindowSeconds,
			ExemptPaths:   []string{"/api/status", "/api/public/"},
		},
		Logger: logger,
	})

	// Start server in goroutine.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     server,
		ReadTimeout: 30 * time.Second,
		// No write timeout: a streaming response with failover has no
		// fixed bound; per-attempt deadlines cap upstream time instead.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("addr", addr))

	// Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(level string, logDir string, rotation config.LogRotationConfig) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug", "DEBUG":
		zapLevel = zap.DebugLevel
	case "warn", "WARN":
		zapLevel = zap.WarnLevel
	case "error", "ERROR":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", logDir, err)
	}

	lj := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "llmrelay.log"),
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	}

	// File core: JSON encoder for structured log parsing
	fileEncoderCfg := zap.NewProductionEncoderConfig()
	fileEncoderCfg.TimeKey = "ts"
	fileEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(fileEncoderCfg),
		zapcore.AddSync(lj),
		zapLevel,
	)

	// Console core: human-readable output to stdout/stderr
	consoleEncoderCfg := zap.NewDevelopmentEncoderConfig()
	consoleEncoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	consoleEncoder := zapcore.NewConsoleEncoder(consoleEncoderCfg)

	// stdout for DEBUG/INFO, stderr for WARN/ERROR+
	stdoutCore := zapcore.NewCore(
		consoleEncoder,
		zapcore.Lock(os.Stdout),
		zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapLevel && l < zapcore.WarnLevel
		}),
	)
	stderrCore := zapcore.NewCore(
		consoleEncoder,
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapLevel && l >= zapcore.WarnLevel
		}),
	)

	core := zapcore.NewTee(fileCore, stdoutCore, stderrCore)

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	), nil
}
