package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sentinelvision/console/backend/internal/api/http"
	"github.com/sentinelvision/console/backend/internal/api/middleware"
	"github.com/sentinelvision/console/backend/internal/api/ws"
	"github.com/sentinelvision/console/backend/internal/domain/channel"
	"github.com/sentinelvision/console/backend/internal/domain/health"
	"github.com/sentinelvision/console/backend/internal/domain/retry"
	"github.com/sentinelvision/console/backend/internal/infrastructure/config"
	"github.com/sentinelvision/console/backend/internal/infrastructure/logging"
	"github.com/sentinelvision/console/backend/internal/infrastructure/monitoring"
	"github.com/sentinelvision/console/backend/internal/infrastructure/resilience"
	"github.com/sentinelvision/console/backend/internal/infrastructure/tracing"
	"github.com/sentinelvision/console/backend/internal/platform"
	"github.com/sentinelvision/console/backend/internal/transport"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	config     *config.Config
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
	platform   *platform.Client
	scheduler  *retry.Scheduler
	channels   *channel.Group
	streams    []*transport.Stream
	workers    *health.Workers
	aggregator *health.Aggregator
	events     *resilience.Fetcher[platform.EventPage]

	stop    chan struct{}
	done    chan struct{}
	started atomic.Bool
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing Sentinel console",
		zap.String("port", cfg.Server.Port),
		zap.String("platform_url", cfg.Platform.BaseURL),
		zap.Strings("channels", cfg.Platform.Channels),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	// Initialize tracing
	tracer := tracing.New("console", logger.Logger)

	// Initialize platform client
	platformClient := platform.NewClient(platform.Config{
		BaseURL:           cfg.Platform.BaseURL,
		APIKey:            cfg.Platform.APIKey,
		Timeout:           cfg.Platform.Timeout,
		RequestsPerSecond: cfg.Platform.RequestsPerSecond,
	}, logger.Component("platform"))

	// Initialize the rate limit retry scheduler
	scheduler := retry.NewScheduler(retry.Config{
		Policy:       resilience.Exponential(cfg.Retry.BaseDelay, cfg.Retry.MaxDelay),
		TickInterval: cfg.Retry.TickInterval,
		Recorder:     metrics,
	}, logger.Component("retry"))

	workers := health.NewWorkers(logger.Component("workers"))

	// The events fallback poller. Rate limited calls wait on the shared
	// scheduler so the operator sees and can cancel the countdown; other
	// failures stay inside the fetcher's own backoff loop.
	classify := func(err error) (time.Duration, bool) {
		if platform.Classify(err) != platform.OutcomeRateLimited {
			return 0, false
		}
		wait, _ := platform.RetryAfter(err)
		return wait, true
	}
	listEvents := func(ctx context.Context) (platform.EventPage, error) {
		timer := monitoring.NewTimer(metrics, "list_events")
		page, err := platformClient.ListEvents(ctx, platform.EventQuery{Limit: cfg.Polling.PageSize})
		if err != nil {
			timer.Stop("error")
			return platform.EventPage{}, err
		}
		timer.Stop("success")
		return page, nil
	}
	events := resilience.NewFetcher("events-fallback",
		retry.Paced(scheduler, "events poll", cfg.Retry.MaxAttempts, classify, listEvents),
		resilience.FetchConfig[platform.EventPage]{
			Attempts:     cfg.Retry.MaxAttempts,
			Delay:        cfg.Retry.BaseDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			PollInterval: cfg.Polling.Interval,
			PauseOnError: cfg.Polling.PauseOnError,
			Terminal: func(err error) bool {
				return platform.Classify(err) != platform.OutcomeTransient
			},
		},
		logger.Component("events"))

	// Degradation aggregator drives the poll fallback: polling runs only
	// while the realtime transport is failed.
	aggregator := health.NewAggregator(health.AggregatorConfig{
		GraceWindow: cfg.Degradation.GraceWindow,
		OnChange: func(st health.DegradationState) {
			metrics.SetDegraded(st.IsDegraded)
			if st.ShouldPoll {
				logger.Warn("realtime stream down, falling back to event polling")
				events.Refetch()
			} else {
				events.Pause()
			}
		},
	}, logger.Component("health"))

	// Realtime streams, one per configured channel
	group := channel.NewGroup()
	transportLog := logger.Component("transport")
	streamRouter := transport.NewRouter(workers, aggregator, func(env transport.Envelope) {
		transportLog.Debug("platform event",
			zap.String("type", env.Type),
			zap.String("channel", env.Channel),
		)
	}, transportLog)

	onTransition := func(name string, from, to channel.ConnState) {
		metrics.SetChannelState(name, int(to))
		if to == channel.StateReconnecting {
			metrics.IncReconnects(name)
		}
		aggregator.SetTransportState(group.CombinedState())
	}

	streams := make([]*transport.Stream, 0, len(cfg.Platform.Channels))
	for _, name := range cfg.Platform.Channels {
		stream, err := transport.NewStream(transport.StreamConfig{
			Name:         name,
			URL:          cfg.Platform.StreamURL,
			MaxAttempts:  cfg.Reconnect.MaxAttempts,
			Backoff:      resilience.Exponential(cfg.Reconnect.BaseDelay, cfg.Reconnect.MaxDelay),
			OnTransition: onTransition,
			Recorder:     metrics,
		}, streamRouter, logger.Component("stream"))
		if err != nil {
			events.Close()
			scheduler.Close()
			aggregator.Close()
			tracer.Close()
			return nil, fmt.Errorf("stream %s: %w", name, err)
		}
		streams = append(streams, stream)
		group.Add(stream.Machine())
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// Create handlers
	handlers := http.NewHandlers(scheduler, group, workers, aggregator, metrics, platformClient, logger.Component("api"))
	wsHandler := ws.NewHandler(scheduler, group, workers, aggregator, logger.Component("ws"))

	// Register routes
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/stream", wsHandler.HandleConnection)

	// Status surface polled by the console UI
	router.GET("/status/connection", handlers.GetConnectionStatus)
	router.GET("/status/retries", handlers.GetRetries)
	router.GET("/status/workers", handlers.GetWorkers)
	router.GET("/status/degradation", handlers.GetDegradation)

	// Operator actions
	actions := router.Group("", middleware.OperatorAuth(cfg.Auth.OperatorKeyHash))
	actions.POST("/channels/:name/retry", handlers.RetryChannel)
	actions.DELETE("/retries/:id", handlers.CancelRetry)
	actions.DELETE("/retries", handlers.CancelAllRetries)
	actions.DELETE("/status/workers", handlers.ClearWorkers)

	// Metrics endpoints
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/metrics/json", handlers.GetMetricsJSON)
	router.GET("/debug/bundle", handlers.GetDebugBundle)

	logger.Info("Server initialized successfully")

	return &Server{
		router:     router,
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		platform:   platformClient,
		scheduler:  scheduler,
		channels:   group,
		streams:    streams,
		workers:    workers,
		aggregator: aggregator,
		events:     events,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Run connects the streams, starts the health probe, and serves HTTP.
// It blocks until the listener fails.
func (s *Server) Run() error {
	for _, stream := range s.streams {
		stream.Start()
	}

	// Warm the events snapshot once, then leave polling to the
	// degradation aggregator.
	s.events.Start()
	if !s.aggregator.ShouldPoll() {
		s.events.Pause()
	}

	go s.probeLoop()
	s.started.Store(true)

	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// probeLoop polls the platform health endpoint and feeds the aggregator.
func (s *Server) probeLoop() {
	defer close(s.done)

	s.probeOnce()

	ticker := time.NewTicker(s.config.Degradation.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.probeOnce()
		}
	}
}

// probeOnce runs a single health probe. An unreachable platform reads
// as an unhealthy store, so sustained probe failure degrades the mode.
func (s *Server) probeOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Platform.Timeout)
	defer cancel()

	timer := monitoring.NewTimer(s.metrics, "health_probe")
	report, err := s.platform.ProbeHealth(ctx)
	if err != nil {
		timer.Stop("error")
		s.logger.Warn("health probe failed", zap.Error(err))
		s.aggregator.SetReport(health.Report{RedisHealthy: false})
	} else {
		timer.Stop("success")
		s.aggregator.SetReport(health.Report{
			RedisHealthy:      report.RedisHealthy,
			FallbackQueues:    report.FallbackQueues,
			AvailableFeatures: report.AvailableFeatures,
		})
	}

	sum := s.workers.Summary()
	s.metrics.SetWorkers(sum.Running, sum.Total)
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	if s.started.Load() {
		close(s.stop)
		<-s.done
	}

	for _, stream := range s.streams {
		stream.Stop()
	}
	s.events.Close()
	s.scheduler.Close()
	s.aggregator.Close()
	s.tracer.Close()

	// Sync logger before exit
	s.logger.Sync()

	return nil
}
