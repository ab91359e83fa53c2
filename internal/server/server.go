package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zerotocryptodev/gateway/internal/circuitbreaker"
	"github.com/zerotocryptodev/gateway/internal/config"
	"github.com/zerotocryptodev/gateway/internal/features"
	"github.com/zerotocryptodev/gateway/internal/handler"
	"github.com/zerotocryptodev/gateway/internal/healthcheck"
	"github.com/zerotocryptodev/gateway/internal/middleware"
	"github.com/zerotocryptodev/gateway/internal/observability"
	"github.com/zerotocryptodev/gateway/internal/ratelimit"
	"github.com/zerotocryptodev/gateway/internal/repository"
	"github.com/zerotocryptodev/gateway/internal/service"
	"github.com/zerotocryptodev/gateway/internal/storage"
)

const (
	metricsNamespace = "gateway"
	sweepInterval    = time.Minute

	checkEndpointPolicyName = "ratelimit_check"
)

var checkEndpointPolicy = ratelimit.Policy{MaxRequests: 120, Window: time.Minute}

type Server struct {
	router     *gin.Engine
	config     *config.Config
	logger     logrus.FieldLogger
	redis      *storage.RedisClient
	postgres   *storage.Postgres
	registry   *prometheus.Registry
	metrics    *observability.Metrics
	httpServer *http.Server
	health     *healthcheck.Checker

	limiter   ratelimit.Limiter
	policies  *ratelimit.Policies
	breaker   *circuitbreaker.CircuitBreaker
	evaluator *features.Evaluator
	recorder  *service.RejectionRecorder

	authService *service.AuthService

	authHandler      *handler.AuthHandler
	flagHandler      *handler.FeatureFlagHandler
	rateLimitHandler *handler.RateLimitHandler
	systemHandler    *handler.SystemHandler

	stopBackground context.CancelFunc
}

func New(cfg *config.Config, logger logrus.FieldLogger, redis *storage.RedisClient, postgres *storage.Postgres) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry, metricsNamespace)

	overrides, err := cfg.RateLimit.PolicyOverrides()
	if err != nil {
		return nil, err
	}
	policies, err := ratelimit.NewPolicies(overrides)
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.NewLimiter(cfg.RateLimit.Backend, redis.Scripter(), cfg.RateLimit.MaxEntries, logger, metrics)
	if err != nil {
		return nil, err
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:        "feature_flags",
		MaxFailures: cfg.Features.BreakerMaxFailures,
		Timeout:     cfg.Features.BreakerTimeout,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.SetBreakerState(name, float64(to))
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
	metrics.SetBreakerState(breaker.Name(), float64(breaker.State()))

	flagRepo := repository.NewFeatureFlagRepository(postgres)
	evaluator := features.NewEvaluator(flagRepo,
		features.WithPersistedCache(redis),
		features.WithCacheTTL(cfg.Features.CacheTTL),
		features.WithPersistTTL(cfg.Features.PersistTTL),
		features.WithCacheKey(cfg.Features.CacheKey),
		features.WithFetchTimeout(cfg.Features.FetchTimeout),
		features.WithBreaker(breaker),
		features.WithLogger(logger.WithField("component", "features")),
		features.WithMetrics(metrics),
	)
	flagService := service.NewFeatureFlagService(flagRepo, evaluator)

	userRepo := repository.NewUserRepository(postgres)
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.ExpiryHours, cfg.Admin.IsAdminEmail)

	eventRepo := repository.NewRateLimitEventRepository(postgres)
	recorder := service.NewRejectionRecorder(eventRepo, cfg.RateLimit.AuditBuffer, logger.WithField("component", "ratelimit_audit"), metrics)

	health := healthcheck.NewChecker(healthcheck.Config{Logger: logger.WithField("component", "healthcheck")},
		map[string]healthcheck.Probe{
			"redis":    redis.Ping,
			"database": postgres.Ping,
		})

	s := &Server{
		router:      gin.New(),
		health:      health,
		config:      cfg,
		logger:      logger,
		redis:       redis,
		postgres:    postgres,
		registry:    registry,
		metrics:     metrics,
		limiter:     limiter,
		policies:    policies,
		breaker:     breaker,
		evaluator:   evaluator,
		recorder:    recorder,
		authService: authService,

		authHandler:      handler.NewAuthHandler(authService),
		flagHandler:      handler.NewFeatureFlagHandler(flagService, evaluator),
		rateLimitHandler: handler.NewRateLimitHandler(limiter, policies, recorder, eventRepo, metrics),
		systemHandler:    handler.NewSystemHandler(breaker),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logger(s.logger))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})))

	requireAuth := middleware.RequireAuth(s.authService)
	requireAdmin := middleware.RequireAdmin(s.authService)

	auth := s.router.Group("/auth")
	auth.Use(s.rateLimit(ratelimit.PolicyAuth))
	{
		auth.POST("/register", s.authHandler.Register)
		auth.POST("/login", s.authHandler.Login)
	}
	s.router.GET("/auth/me", requireAuth, s.authHandler.Me)

	flags := s.router.Group("/api/features")
	{
		evaluate := flags.Group("")
		evaluate.Use(middleware.OptionalAuth(s.authService), middleware.RolloutSession(s.config.Server.SecureCookie))
		evaluate.GET("/evaluate", s.flagHandler.Evaluate)
		evaluate.GET("/:key/enabled", s.flagHandler.IsEnabled)

		flags.GET("", s.flagHandler.List)

		admin := flags.Group("")
		admin.Use(requireAuth, requireAdmin)
		admin.POST("", s.flagHandler.Create)
		admin.PUT("/:id", s.flagHandler.Update)
		admin.PATCH("/:id/toggle", s.flagHandler.Toggle)
		admin.DELETE("/:id", s.flagHandler.Delete)
		admin.POST("/cache/invalidate", s.flagHandler.InvalidateCache)
	}

	limits := s.router.Group("/api/ratelimit")
	{
		limits.POST("/check", s.checkEndpointLimit(), s.rateLimitHandler.Check)
		limits.GET("/policies", s.rateLimitHandler.Policies)
		limits.GET("/events", requireAuth, requireAdmin, s.rateLimitHandler.RecentRejections)
	}

	system := s.router.Group("/admin")
	system.Use(requireAuth, requireAdmin)
	{
		system.GET("/status", s.adminStatus)
		system.GET("/circuit-breakers", s.systemHandler.CircuitBreakerStatus)
		system.POST("/circuit-breakers/:name/reset", s.systemHandler.ResetCircuitBreaker)
	}
}

func (s *Server) rateLimit(name string) gin.HandlerFunc {
	policy, ok := s.policies.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("rate limit policy %q is not registered", name))
	}

	return middleware.RateLimit(middleware.RateLimitOptions{
		Limiter: s.limiter,
		Name:    name,
		Policy:  policy,
		Sink:    s.recorder,
		Metrics: s.metrics,
		Logger:  s.logger,
	})
}

// checkEndpointLimit bounds how often a single client may call
// /api/ratelimit/check. It is not a registered policy, so the endpoint cannot
// be asked about its own window.
func (s *Server) checkEndpointLimit() gin.HandlerFunc {
	return middleware.RateLimit(middleware.RateLimitOptions{
		Limiter: s.limiter,
		Name:    checkEndpointPolicyName,
		Policy:  checkEndpointPolicy,
		Sink:    s.recorder,
		Metrics: s.metrics,
		Logger:  s.logger,
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	overall := s.health.OverallHealth()

	statusCode := http.StatusOK
	if overall != healthcheck.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    overall.String(),
		"service":   "gateway",
		"timestamp": time.Now().Unix(),
		"checks":    s.health.Statuses(),
	})
}

func (s *Server) adminStatus(c *gin.Context) {
	status := gin.H{
		"gateway":           "running",
		"rate_limit":        s.config.RateLimit.Backend,
		"policies":          s.policies.Names(),
		"flag_source_state": s.breaker.State().String(),
		"uptime":            time.Since(startTime).Seconds(),
		"timestamp":         time.Now().Unix(),
	}
	if mem, ok := s.limiter.(*ratelimit.MemoryLimiter); ok {
		status["tracked_identifiers"] = mem.Len()
	}

	c.JSON(http.StatusOK, status)
}

// Starts the rejection recorder, dependency probes and, for the memory
// backend, a periodic sweep of expired windows.
func (s *Server) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopBackground = cancel

	s.recorder.Start(ctx)
	s.health.Start(ctx)

	mem, ok := s.limiter.(*ratelimit.MemoryLimiter)
	if !ok {
		return
	}
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := mem.Sweep(); n > 0 {
					s.logger.WithField("removed", n).Debug("swept expired rate limit windows")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Server) Run(addr string) error {
	s.startBackground()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	s.logger.WithFields(logrus.Fields{
		"addr":        addr,
		"environment": s.config.Server.Environment,
		"backend":     s.config.RateLimit.Backend,
	}).Info("starting gateway")

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	if s.stopBackground != nil {
		s.stopBackground()
		s.recorder.Wait()
	}

	return err
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

var startTime = time.Now()
