package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kaiwahq/kaiwa/internal"
	"github.com/kaiwahq/kaiwa/internal/ai"
	aianthropic "github.com/kaiwahq/kaiwa/internal/ai/anthropic"
	aimock "github.com/kaiwahq/kaiwa/internal/ai/mock"
	"github.com/kaiwahq/kaiwa/internal/billing"
	"github.com/kaiwahq/kaiwa/internal/csrf"
	"github.com/kaiwahq/kaiwa/internal/email"
	"github.com/kaiwahq/kaiwa/internal/handler"
	"github.com/kaiwahq/kaiwa/internal/invite"
	"github.com/kaiwahq/kaiwa/internal/jobs"
	"github.com/kaiwahq/kaiwa/internal/metrics"
	"github.com/kaiwahq/kaiwa/internal/middleware"
	"github.com/kaiwahq/kaiwa/internal/repository"
	"github.com/kaiwahq/kaiwa/internal/service"
	"github.com/kaiwahq/kaiwa/internal/storage"
	"github.com/kaiwahq/kaiwa/internal/stt"
	sttassemblyai "github.com/kaiwahq/kaiwa/internal/stt/assemblyai"
	sttmock "github.com/kaiwahq/kaiwa/internal/stt/mock"
	"github.com/kaiwahq/kaiwa/internal/worker"
)

// cleanupInterval is how often expired sessions and email tokens are purged.
const cleanupInterval = time.Hour

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	queries := repository.New(db)

	// ==========================================================================
	// Infrastructure: storage, email, providers, billing
	// ==========================================================================

	var store storage.Storage
	switch cfg.StorageProvider {
	case "r2":
		store, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		store, err = storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Storage ready", "provider", cfg.StorageProvider)

	emailService, err := email.NewSMTPEmailService(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, cfg.BaseURL, "web/templates/email", logger)
	if err != nil {
		return fmt.Errorf("email service initialization failed: %w", err)
	}

	var sttProvider stt.Provider
	if cfg.STTProvider == "assemblyai" {
		sttProvider, err = sttassemblyai.New(sttassemblyai.Config{
			APIKey:         cfg.AssemblyAIAPIKey,
			PollInterval:   cfg.STTPollInterval,
			RequestTimeout: cfg.STTRequestTimeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("stt provider initialization failed: %w", err)
		}
	} else {
		sttProvider = sttmock.New(logger)
	}

	var aiProvider ai.AIProvider
	if cfg.AIProvider == "anthropic" {
		aiProvider, err = aianthropic.New(aianthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("ai provider initialization failed: %w", err)
		}
	} else {
		aiProvider = aimock.New(logger)
	}
	logger.Info("Providers ready", "stt", cfg.STTProvider, "ai", cfg.AIProvider)

	prices := billing.PriceConfig{
		ProMonthlyPriceID:      cfg.StripeProMonthlyPriceID,
		ProYearlyPriceID:       cfg.StripeProYearlyPriceID,
		BusinessMonthlyPriceID: cfg.StripeBusinessMonthlyPriceID,
		BusinessYearlyPriceID:  cfg.StripeBusinessYearlyPriceID,
	}
	var stripeService billing.Service
	if cfg.StripeSecretKey != "" {
		stripeService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, prices)
	}
	ecpayService := billing.NewECPayService(billing.ECPayConfig{
		MerchantID: cfg.ECPayMerchantID,
		HashKey:    cfg.ECPayHashKey,
		HashIV:     cfg.ECPayHashIV,
		Sandbox:    cfg.ECPaySandbox,
	})
	logger.Info("Billing ready",
		"stripe_enabled", stripeService != nil,
		"ecpay_enabled", ecpayService.Enabled(),
	)

	// ==========================================================================
	// Services
	// ==========================================================================

	userService := service.NewUserService(queries, logger, service.UserServiceConfig{})
	usageService := service.NewUsageService(queries, emailService, logger)
	limitService := service.NewLimitService(usageService, logger)
	clientService := service.NewClientService(queries, logger)
	sessionService := service.NewSessionService(db, queries, store, limitService, usageService, logger)
	reportService := service.NewReportService(queries, store, logger)

	inviteValidator := invite.New(cfg.InviteCodesEnabled, cfg.ValidInviteCodes)

	// ==========================================================================
	// Background workers
	// ==========================================================================

	var jobWorker *worker.Worker
	var scheduler *worker.Scheduler
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Concurrency = cfg.WorkerConcurrency
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout

		jobWorker, err = worker.New(db, queries, workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}

		jobWorker.Register(jobs.NewTranscribeSessionHandler(db, queries, sttProvider, store, usageService, logger))
		jobWorker.Register(jobs.NewAnalyzeSessionHandler(queries, aiProvider, usageService, logger))
		jobWorker.Register(jobs.NewGenerateReportHandler(queries, store, emailService, logger, cfg.BaseURL))
		jobWorker.Register(jobs.NewMonthlyResetHandler(queries, usageService, logger))
		jobWorker.Start(ctx)
		defer jobWorker.Stop()

		scheduler = worker.NewScheduler(queries, time.Hour, logger)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	// DB-derived gauges (users per tier, job queue depth).
	gaugePoller := metrics.NewPoller(queries, time.Minute, logger)
	gaugePoller.Start(ctx)
	defer gaugePoller.Stop()

	// Purge expired sessions and email tokens periodically.
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := userService.DeleteExpiredSessions(ctx); err != nil {
					logger.Error("Failed to delete expired sessions", "error", err)
				}
				if err := userService.DeleteExpiredEmailTokens(ctx); err != nil {
					logger.Error("Failed to delete expired email tokens", "error", err)
				}
			}
		}
	}()

	// ==========================================================================
	// Middleware and handlers
	// ==========================================================================

	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(userService, logger, isSecure).
		WithAdminEmails(cfg.AdminEmails)

	requireUser := middleware.Stack(authMw.WithUser, authMw.RequireUser)
	requireVerified := middleware.Stack(authMw.WithUser, authMw.RequireUser, authMw.RequireEmailVerified)

	authHandler := handler.NewAuthHandler(userService, emailService, inviteValidator, logger, isSecure)
	clientHandler := handler.NewClientHandler(clientService, logger)
	sessionHandler := handler.NewSessionHandler(sessionService, reportService, logger)
	usageHandler := handler.NewUsageHandler(usageService, logger)
	billingHandler := handler.NewBillingHandler(stripeService, ecpayService, userService, cfg.BaseURL, prices, logger)
	webhookHandler := handler.NewWebhookHandler(stripeService, ecpayService, userService, emailService, queries, logger)

	// ==========================================================================
	// Routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Local storage serves uploaded files directly; R2 uses presigned URLs.
	if cfg.StorageProvider == "local" {
		fileServer := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", fileServer))
	}

	authHandler.RegisterRoutes(mux, requireUser)
	clientHandler.RegisterRoutes(mux, requireVerified)
	sessionHandler.RegisterRoutes(mux, requireVerified)
	usageHandler.RegisterRoutes(mux, requireUser)
	billingHandler.RegisterRoutes(mux, requireUser)
	webhookHandler.RegisterRoutes(mux)

	// ==========================================================================
	// Outer middleware chain
	// ==========================================================================

	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	authRateLimit := middleware.NewRateLimitMiddleware(
		middleware.NewRateLimiter(10, time.Minute, logger), logger)
	csrfProtect := csrf.Protect(isSecure)

	var root http.Handler = mux
	root = routeGuards(root, csrfProtect, authRateLimit)
	root = metrics.Middleware(root)
	root = loggingMw.Handler(root)
	root = securityMw.Handler(root)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	// Cancel the run context so the worker and scheduler wind down.
	cancel()

	logger.Info("Graceful shutdown complete")
	return nil
}

// routeGuards applies CSRF protection and the auth-route rate limit,
// skipping webhook routes: payment gateways authenticate with
// signatures, not cookies, and must never be rate-limited away.
func routeGuards(next http.Handler, csrfProtect func(http.Handler) http.Handler, rateLimit *middleware.RateLimitMiddleware) http.Handler {
	protected := csrfProtect(next)
	authLimited := rateLimit.Limit(protected)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/webhooks/"):
			next.ServeHTTP(w, r)
		case strings.HasPrefix(r.URL.Path, "/api/auth/"):
			authLimited.ServeHTTP(w, r)
		default:
			protected.ServeHTTP(w, r)
		}
	})
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
