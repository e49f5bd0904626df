package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"filepipe/internal/config"
	"filepipe/internal/constants"
	"filepipe/internal/contentcache"
	"filepipe/internal/convert"
	"filepipe/internal/logger"
	"filepipe/internal/output"
	"filepipe/internal/source"
	"filepipe/pkg/bootstrap"
	"filepipe/pkg/health"
	"filepipe/pkg/logging"
	"filepipe/pkg/metrics"
	"filepipe/pkg/tracing"
)

const appName = "output-service"

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	mongoClient    *mongo.Client
	engine         *output.Engine
	kafkaHandler   *output.KafkaHandler
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(appName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	a.redis = rdb

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	a.mongoClient = mongoClient

	if err := a.InitBroker(appName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	db := mongoClient.Database(a.Config.Database.MongoDB.Database)
	sources := source.NewRepository(db)
	cache := contentcache.New(a.redis, a.Config.ContentCache.TTL)
	converters := convert.NewRegistry()

	a.kafkaHandler = output.NewKafkaHandler(a.Config.Broker.Kafka.Brokers, a.Logger)
	handlers := output.NewHandlerRegistry(
		a.kafkaHandler,
		output.NewFolderHandler(a.Logger),
	)

	a.engine = output.NewEngine(sources, cache, converters, handlers, a.Config.Output, a.Logger)

	tp, err := tracing.Init(a.Config.Tracing, appName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterOutputMetrics()
	metrics.RegisterBrokerMetrics()

	a.initHTTPServer()

	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.Consumer.Consume(gCtx, constants.TopicValidationCompleted, a.engine.HandleValidationCompleted)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, appName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down output service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.kafkaHandler != nil {
			if err := a.kafkaHandler.Close(); err != nil {
				errs = append(errs, fmt.Errorf("kafka output handler close error: %w", err))
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

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
