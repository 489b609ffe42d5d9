// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oorion/avery-messenger-bot/internal/actions"
	"github.com/oorion/avery-messenger-bot/internal/brewery"
	"github.com/oorion/avery-messenger-bot/internal/buildinfo"
	"github.com/oorion/avery-messenger-bot/internal/config"
	"github.com/oorion/avery-messenger-bot/internal/logger"
	"github.com/oorion/avery-messenger-bot/internal/messenger"
	"github.com/oorion/avery-messenger-bot/internal/metrics"
	"github.com/oorion/avery-messenger-bot/internal/ratelimit"
	"github.com/oorion/avery-messenger-bot/internal/sentry"
	"github.com/oorion/avery-messenger-bot/internal/session"
	"github.com/oorion/avery-messenger-bot/internal/storage"
	"github.com/oorion/avery-messenger-bot/internal/untappd"
	"github.com/oorion/avery-messenger-bot/internal/weather"
	"github.com/oorion/avery-messenger-bot/internal/webhook"
	"github.com/oorion/avery-messenger-bot/internal/wit"
)

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg            *config.Config
	logger         *logger.Logger
	db             *storage.DB
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	sessions       *session.Store
	messengerAPI   *messenger.Client
	breweryAPI     *brewery.Client
	untappdAPI     *untappd.Client
	weatherAPI     *weather.Client
	witAPI         *wit.Client
	actionsHandler *actions.Handler
	webhookHandler *webhook.Handler
	server         *http.Server
	wg             sync.WaitGroup
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.New(cfg.LogLevel).WithField("service", "avery-messenger-bot")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	log.Info("Initializing application...")

	if err := sentry.Initialize(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Version,
	}); err != nil {
		log.WithError(err).Warn("Failed to initialize Sentry, error tracking disabled")
	} else if sentry.IsEnabled() {
		log.WithField("environment", cfg.SentryEnvironment).Info("Sentry error tracking enabled")
	}

	db, err := storage.New(cfg.SQLitePath(), cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	log.WithField("path", cfg.SQLitePath()).
		WithField("session_ttl", cfg.SessionTTL).
		Info("Session database connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewBuildInfoCollector())
	m := metrics.New(registry)
	log.Info("Metrics initialized")

	sessions := session.NewStore(db, m, log)

	sendLimiter := ratelimit.New(cfg.Bot.SendRateBurst, cfg.Bot.SendRateRPS)
	messengerAPI := messenger.NewClient(messenger.ClientConfig{
		BaseURL:       cfg.MessengerBaseURL,
		PageToken:     cfg.PageToken,
		MaxTextLength: cfg.Bot.MaxMessageLength,
		Timeout:       cfg.Bot.APITimeout,
		Limiter:       sendLimiter,
		Metrics:       m,
		Logger:        log,
	})

	breweryAPI := brewery.NewClient(cfg.BreweryBaseURL, cfg.Bot.APITimeout, cfg.Bot.APIMaxRetries, m, log)
	untappdAPI := untappd.NewClient(cfg.UntappdBaseURL, cfg.UntappdClientID, cfg.UntappdClientSecret,
		cfg.Bot.APITimeout, cfg.Bot.APIMaxRetries, m, log)
	weatherAPI := weather.NewClient(cfg.ForecastBaseURL, cfg.ForecastToken,
		cfg.Bot.APITimeout, cfg.Bot.APIMaxRetries, m, log)
	witAPI := wit.NewClient(cfg.WitBaseURL, cfg.WitToken,
		cfg.Bot.APITimeout, cfg.Bot.APIMaxRetries, cfg.Bot.MaxSteps, m, log)

	log.WithFields(map[string]any{
		"wit":      cfg.HasWit(),
		"untappd":  cfg.HasUntappd(),
		"forecast": cfg.ForecastToken != "",
	}).Info("Upstream clients created")

	actionsHandler := actions.NewHandler(actions.HandlerConfig{
		Sessions:  sessions,
		Messenger: messengerAPI,
		Brewery:   breweryAPI,
		Untappd:   untappdAPI,
		Weather:   weatherAPI,
		Metrics:   m,
		Logger:    log,
	})

	webhookHandler := webhook.NewHandler(webhook.HandlerConfig{
		PageID:      cfg.PageID,
		VerifyToken: cfg.VerifyToken,
		BotConfig:   &cfg.Bot,
		Sessions:    sessions,
		Messenger:   messengerAPI,
		Wit:         witAPI,
		Actions:     actionsHandler,
		Metrics:     m,
		Logger:      log,
	})
	log.Info("Webhook handler created")

	app := &Application{
		cfg:            cfg,
		logger:         log,
		db:             db,
		metrics:        m,
		registry:       registry,
		sessions:       sessions,
		messengerAPI:   messengerAPI,
		breweryAPI:     breweryAPI,
		untappdAPI:     untappdAPI,
		weatherAPI:     weatherAPI,
		witAPI:         witAPI,
		actionsHandler: actionsHandler,
		webhookHandler: webhookHandler,
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	app.server = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.buildRouter(),
		ReadTimeout:  config.WebhookHTTPRead,
		WriteTimeout: config.WebhookHTTPWrite,
		IdleTimeout:  config.WebhookHTTPIdle,
	}

	log.Info("Application initialized")
	return app, nil
}

// buildRouter assembles the Gin router with middleware and routes.
func (a *Application) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	if sentry.IsEnabled() {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(a.logger))

	router.GET("/", a.rootHandler)
	router.HEAD("/", a.rootHandler)

	router.GET("/healthz", a.livenessCheck)
	router.HEAD("/healthz", a.livenessCheck)
	router.GET("/ready", a.readinessCheck)
	router.HEAD("/ready", a.readinessCheck)

	router.GET("/fb", a.webhookHandler.HandleVerify)
	router.POST("/fb", a.webhookHandler.HandleMessage)

	metricsAuth := metricsAuthMiddleware(a.cfg.MetricsPassword != "", a.cfg.MetricsUsername, a.cfg.MetricsPassword)
	router.GET("/metrics", metricsAuth, gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	return router
}

func (a *Application) rootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "avery-messenger-bot",
		"version": buildinfo.Version,
	})
}

// livenessCheck reports that the process is alive. It never checks
// dependencies.
func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readinessCheck reports whether the application can serve traffic.
func (a *Application) readinessCheck(c *gin.Context) {
	if err := a.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": err.Error(),
		})
		return
	}

	sessionCount, _ := a.sessions.Count(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"database": "connected",
		"sessions": sessionCount,
		"features": gin.H{
			"wit":      a.cfg.HasWit(),
			"untappd":  a.cfg.HasUntappd(),
			"forecast": a.cfg.ForecastToken != "",
		},
	})
}

// Run starts the HTTP server and background jobs, then blocks until a
// shutdown signal arrives.
//
// Shutdown order matters: background jobs stop before resources close, so
// the eviction job never hits a closed database.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startBackgroundJobs starts all background goroutines tracked by WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	a.wg.Go(func() {
		a.evictExpiredSessions(ctx)
	})
	a.wg.Go(func() {
		a.updateSessionMetrics(ctx)
	})
}

// startHTTPServer starts the HTTP server in a goroutine.
func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

// waitForShutdownSignal blocks until SIGINT/SIGTERM is received.
func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown stops the HTTP server, drains in-flight turns, and closes
// resources.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Waiting for in-flight conversation turns...")
	if err := a.webhookHandler.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Webhook handler shutdown timeout")
	}

	a.logger.Info("Closing resources...")
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}

	if sentry.IsEnabled() {
		sentry.Flush(2 * time.Second)
	}

	a.logger.Info("Shutdown complete")
	return nil
}
