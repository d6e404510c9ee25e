package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"project-alert-service/internal/api"
	"project-alert-service/internal/config"
	"project-alert-service/internal/db"
	"project-alert-service/internal/kafka"
	"project-alert-service/internal/ledger"
	"project-alert-service/internal/logging"
	"project-alert-service/internal/metrics"
	"project-alert-service/internal/models"
	"project-alert-service/internal/notification"
	"project-alert-service/internal/providers"
	"project-alert-service/internal/runner"
	"project-alert-service/internal/schedule"
	"project-alert-service/internal/tasksource"
)

const (
	resolverCacheTTL = time.Minute
	shutdownTimeout  = 15 * time.Second
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()

	if err := dbConn.Migrate(ctx); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}
	if err := dbConn.EnsureDefaultRules(ctx); err != nil {
		log.Fatalf("Failed to seed default rules: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	origin := uuid.NewString()
	var wg sync.WaitGroup

	// Kafka carries alert events and schedule changes between replicas
	var (
		producer  *kafka.Producer
		publisher schedule.ChangePublisher
	)
	if cfg.KafkaEnabled() {
		producer, err = kafka.NewProducer(cfg.Kafka.Broker, cfg.Kafka.ConfigTopic, logger)
		if err != nil {
			log.Fatalf("Failed to create Kafka producer: %v", err)
		}
		publisher = producer
	}

	// Notification sink
	sink := notification.New(dbConn, logger, m)
	telegram := providers.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.RateLimit, logger)
	sink.Register(models.ChannelTelegram, telegram.Send)
	if producer != nil {
		sink.Register(models.ChannelKafka, providers.NewKafkaChannel(producer, cfg.Kafka.AlertTopic).Send)
	}
	sink.LogFailures(ctx, &wg)

	// Evaluation pipeline
	source := tasksource.NewClient(cfg.TaskSource.URL, cfg.TaskSource.Token, cfg.TaskSource.Timeout)
	alerts := ledger.New(dbConn, logger)
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		log.Fatalf("Invalid scheduler timezone: %v", err)
	}
	jobs := runner.New(dbConn, source, alerts, sink, dbConn, cfg.TaskSource.Timeout, logger, m).WithLocation(loc)

	// Timers
	cronLogger := cron.PrintfLogger(logger)
	scheduler := cron.New(
		cron.WithChain(cron.Recover(cronLogger)),
		cron.WithLogger(cronLogger),
	)
	resolver := schedule.NewResolver(schedule.DefaultCatalog(), dbConn, cfg.Scheduler.Timezone, resolverCacheTTL, m)
	jobs.WithZoneSource(resolver)
	registry := schedule.NewRegistry(scheduler, resolver, dbConn, jobs, logger, m)
	manager := schedule.NewManager(dbConn, resolver, registry, publisher, origin, logger)

	if err := registry.Rebuild(ctx); err != nil {
		logger.Errorf("Initial timer build failed: %v", err)
	}
	scheduler.Start()
	logger.Infof("Scheduler started with %d timers", len(registry.Keys()))

	var consumer *kafka.Consumer
	if cfg.KafkaEnabled() {
		consumer = kafka.NewConsumer(cfg.Kafka.Broker, cfg.Kafka.ConfigTopic, cfg.Kafka.GroupID+"-"+origin, origin,
			func(ctx context.Context, _ models.ScheduleChange) error { return manager.Reload(ctx) }, logger)
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.ConfigTopic)
	}

	// Start API server
	handler := api.NewHandler(api.Deps{
		Rules:         dbConn,
		Schedules:     manager,
		Timers:        registry,
		Audit:         dbConn,
		Previewer:     jobs,
		ContactPoints: dbConn,
		WebSockets:    sink.WebSockets(),
		Logger:        logger,
	})
	router := api.NewRouter(logger, cfg, handler, dbConn, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.API.Port, Handler: router}

	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown failed: %v", err)
	}

	// Wait for in-flight firings
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("Timed out waiting for running jobs")
	}

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Errorf("Failed to close Kafka consumer: %v", err)
		}
	}
	wg.Wait()
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Errorf("Failed to close Kafka producer: %v", err)
		}
	}
}
