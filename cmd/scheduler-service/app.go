package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"filepipe/internal/config"
	"filepipe/internal/constants"
	"filepipe/internal/lock"
	"filepipe/internal/logger"
	"filepipe/internal/scheduler"
	"filepipe/internal/source"
	"filepipe/pkg/bootstrap"
	"filepipe/pkg/health"
	"filepipe/pkg/logging"
	"filepipe/pkg/metrics"
	"filepipe/pkg/middleware"
	"filepipe/pkg/migrations"
	"filepipe/pkg/tracing"
)

const appName = "scheduler-service"

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	mongoClient    *mongo.Client
	locks          *lock.Manager
	manager        *scheduler.Manager
	tracerProvider *tracing.TracerProvider
	server         *http.Server
	instanceID     string
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(appName)
	}

	hostname, _ := os.Hostname()
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		instanceID:  fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	a.mongoClient = mongoClient

	if err := a.InitBroker(appName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	db := mongoClient.Database(a.Config.Database.MongoDB.Database)
	if err := migrations.EnsureMongoCollection(ctx, db); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}

	sources := source.NewRepository(db)
	a.locks = lock.NewManager(db, a.Config.Scheduler.LockGracePeriod, a.Logger)
	a.manager = scheduler.NewManager(sources, a.locks, a.Producer, a.Logger, a.instanceID)

	tp, err := tracing.Init(a.Config.Tracing, appName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterSchedulerMetrics()
	metrics.RegisterBrokerMetrics()

	a.initHTTPServer()

	return nil
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RecoveryMiddleware(a.Logger))

	healthRegistry := health.NewCheckerRegistry()
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Releases every lock this instance holds so an orchestrator can drain
	// the node before killing the process.
	router.POST("/api/lifecycle/shutdown", func(c *gin.Context) {
		released, err := a.locks.ReleaseOwned(c.Request.Context(), a.instanceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"instanceId":    a.instanceID,
			"locksReleased": released,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		})
	})

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

func (a *App) Run(ctx context.Context) error {
	runCtx := logging.WithServiceName(ctx, appName)

	if err := a.manager.Reload(runCtx); err != nil {
		return fmt.Errorf("failed to load triggers: %w", err)
	}
	a.manager.Start()

	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(runCtx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		a.Logger.InfowCtx(runCtx, "Starting source event consumer",
			"topic", constants.TopicSourceEvents,
		)
		return a.Consumer.Consume(gCtx, constants.TopicSourceEvents, a.manager.HandleSourceEvent)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, appName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down scheduler service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.manager != nil {
			if err := a.manager.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("cron stop error: %w", err))
			}
		}

		// Locks held by this instance would otherwise sit until the grace
		// period expires.
		if a.locks != nil {
			released, err := a.locks.ReleaseOwned(ctx, a.instanceID)
			if err != nil {
				errs = append(errs, fmt.Errorf("lock release error: %w", err))
			} else {
				a.Logger.InfowCtx(shutdownCtx, "Released owned locks on shutdown",
					"instance_id", a.instanceID,
					"locks_released", released,
					"timestamp", time.Now().UTC().Format(time.RFC3339),
				)
			}
		}

		if a.server != nil {
			srvCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(srvCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, nil, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
