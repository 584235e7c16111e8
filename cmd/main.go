package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vlasovmx/stockfolio/config"
	"github.com/vlasovmx/stockfolio/data"
	"github.com/vlasovmx/stockfolio/data/cache"
	"github.com/vlasovmx/stockfolio/data/repository/postgres"
	"github.com/vlasovmx/stockfolio/data/session"
	"github.com/vlasovmx/stockfolio/internal/externalapi/quoteapi"
	"github.com/vlasovmx/stockfolio/internal/reportgenerator/xlsxgenerator"
	"github.com/vlasovmx/stockfolio/internal/scheduler"
	"github.com/vlasovmx/stockfolio/internal/service/brokerageservice"
	"github.com/vlasovmx/stockfolio/internal/transport/web"
	"github.com/vlasovmx/stockfolio/internal/webserver"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	pgClient := data.NewPostgresClient(cfg)
	defer pgClient.Close()

	pgRepo := postgres.NewPostgres(cfg, pgClient)

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, cfg)
	redisSession := session.NewRedisSession(redisClient, cfg)

	quoteApiClient := quoteapi.New(cfg)

	reportGenerator := xlsxgenerator.New()

	brokerageSrv := brokerageservice.New(cfg, pgRepo, redisCache, quoteApiClient, reportGenerator)

	sched := scheduler.New()
	sched.NewIntervalJob("refresh quote cache", brokerageSrv.RefreshQuoteCache, cfg.Jobs.RefreshQuotesInterval, true)
	sched.Start()
	defer sched.Stop()

	webController := web.NewController(cfg, brokerageSrv, redisSession)

	server := webserver.New(cfg, webController)
	server.Start()
	defer server.Stop()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
