package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"pulsefeed/internal/broadcast"
	"pulsefeed/internal/config"
	"pulsefeed/internal/publisher"
	"pulsefeed/internal/reconcile"
	"pulsefeed/internal/scheduler"
	"pulsefeed/internal/source/news"
	"pulsefeed/internal/source/reddit"
	"pulsefeed/internal/source/twitter"
	"pulsefeed/internal/storage/postgres"
	transporthttp "pulsefeed/internal/transport/http"
	"pulsefeed/internal/trends"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize RabbitMQ publisher. An empty URL runs without a broker;
	// dashboards then rely on the event stream alone.
	var cyclePublisher scheduler.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		cyclePublisher = rabbitMQ
	}

	// Initialize stores
	postStore := postgres.NewPostStore(db)
	trendStore := postgres.NewTrendStore(db)
	runLogStore := postgres.NewRunLogStore(db)
	txManager := postgres.NewTransactionManager(db)

	reconciler := reconcile.New(postStore, logger)
	trendEngine := trends.New(postStore, trendStore, txManager, cfg.Trends, logger)
	broadcaster := broadcast.New(cfg.Server.MaxEventClients, logger)

	sched := scheduler.New(
		reconciler,
		trendEngine,
		runLogStore,
		txManager,
		broadcaster,
		cyclePublisher,
		logger,
	)

	sched.Register(reddit.New(reddit.Config{
		Subreddits:   cfg.Scrape.Reddit.Subreddits,
		Sort:         cfg.Scrape.Reddit.Sort,
		Limit:        cfg.Scrape.Reddit.Limit,
		RequestDelay: cfg.Scrape.RequestDelay,
	}, logger), cfg.Scrape.Reddit.Interval)

	sched.Register(news.New(news.Config{
		Sites:        cfg.Scrape.News.Sites,
		RequestDelay: cfg.Scrape.RequestDelay,
	}, logger), cfg.Scrape.News.Interval)

	sched.Register(twitter.New(twitter.Config{
		Queries:      cfg.Scrape.Twitter.Queries,
		Instances:    cfg.Scrape.Twitter.Instances,
		RequestDelay: cfg.Scrape.RequestDelay,
	}, logger), cfg.Scrape.Twitter.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)

	srv := transporthttp.NewServer(postStore, trendStore, runLogStore, sched, broadcaster, logger)

	// WriteTimeout stays unset so event streams can outlive it.
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("dashboard api listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	sched.Stop()
	logger.Info("shutdown complete")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
