package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/ticket-marketplace/internal/adapter/gateway"
	"github.com/rl1809/ticket-marketplace/internal/adapter/handler"
	"github.com/rl1809/ticket-marketplace/internal/adapter/notify"
	"github.com/rl1809/ticket-marketplace/internal/adapter/storage"
	"github.com/rl1809/ticket-marketplace/internal/config"
	"github.com/rl1809/ticket-marketplace/internal/core/service"
	"github.com/rl1809/ticket-marketplace/internal/observability"
	"github.com/rl1809/ticket-marketplace/internal/port"
)

func main() {
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if cfg.AutoMigrate {
		if err := mysqlAdapter.Migrate(ctx); err != nil {
			logger.Fatal("failed to migrate schema", zap.Error(err))
		}
		logger.Info("schema migrated")
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis")
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "tickets"),
	)
	metrics := observability.NewMetrics(registry)

	// Payment gateway
	var payments port.PaymentGateway
	switch cfg.GatewayMode {
	case config.GatewayFake:
		payments = gateway.NewFakeGateway(false)
		logger.Warn("using in-memory payment gateway")
	default:
		payments = gateway.NewStripeGateway(cfg.StripeSecretKey, nil)
	}

	// Notifications
	var notifier port.Notifier
	channels := notify.NewMultiNotifier(logger, metrics)
	hasChannel := false
	if cfg.MailEnabled() {
		channels.Add("email", notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom))
		hasChannel = true
	}
	var kafkaPublisher *notify.KafkaPublisher
	if cfg.KafkaEnabled() {
		kafkaPublisher = notify.NewKafkaPublisher(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		channels.Add("kafka", kafkaPublisher)
		hasChannel = true
	}
	if hasChannel {
		notifier = channels
	} else {
		logger.Warn("no notification channel configured")
	}

	// Initialize services
	ticketService := service.NewTicketService(service.TicketServiceDeps{
		Events:   mysqlAdapter,
		Tickets:  mysqlAdapter,
		Attempts: mysqlAdapter,
		Cache:    redisAdapter,
		Gateway:  payments,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  metrics,
		Currency: cfg.Currency,
	})
	eventService := service.NewEventService(mysqlAdapter, logger)
	userService := service.NewUserService(mysqlAdapter, mysqlAdapter, mysqlAdapter, logger)

	// Reconciler
	reconciler := service.NewReconciler(mysqlAdapter, mysqlAdapter, payments, logger, metrics, cfg.AttemptTTL)
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("failed to create scheduler", zap.Error(err))
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.ReconcileInterval),
		gocron.NewTask(func() { reconciler.Run(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Fatal("failed to schedule reconciler", zap.Error(err))
	}
	scheduler.Start()
	logger.Info("reconciler scheduled", zap.Duration("interval", cfg.ReconcileInterval))

	auth := handler.NewAuth(cfg.JWTSecret).WithGate(userService)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.AuthInterceptor(auth)))
	handler.RegisterTicketServiceServer(grpcServer, handler.NewGRPCHandler(ticketService))

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	mux := http.NewServeMux()
	handler.NewHTTPHandler(ticketService, eventService, userService, logger).Register(mux, auth, metrics)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	if err := scheduler.Shutdown(); err != nil {
		logger.Error("scheduler shutdown failed", zap.Error(err))
	}
	cancel()
	logger.Info("reconciler stopped")

	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka writer close failed", zap.Error(err))
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown failed", zap.Error(err))
	}

	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
