package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zerotocryptodev/gateway/internal/config"
	"github.com/zerotocryptodev/gateway/internal/logging"
	"github.com/zerotocryptodev/gateway/internal/server"
	"github.com/zerotocryptodev/gateway/internal/storage"
)

func main() {
	// Load env if it exists
	_ = godotenv.Load()

	cfg, err := config.Load("config.json")
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}

	redis, err := storage.NewRedis(
		cfg.Redis.GetRedisAddr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer redis.Close()

	logger.Info("connected to redis")

	postgres, err := storage.NewPostgres(cfg.Database.DSN, cfg.Server.Environment != "production")
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		logger.WithError(err).Fatal("failed to migrate database")
	}

	logger.Info("connected to postgres")

	srv, err := server.New(cfg, logger, redis, postgres)
	if err != nil {
		logger.WithError(err).Fatal("failed to build server")
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}

	logger.Info("server exited")
}
