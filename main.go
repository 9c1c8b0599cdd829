package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicbounty-be/config"
	"civicbounty-be/controllers"
	"civicbounty-be/logger"
	"civicbounty-be/models"
	"civicbounty-be/routes"
	"civicbounty-be/services"
	"civicbounty-be/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.NewDefault("main").Info("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("main").WithError(err).Fatal("invalid configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	db, err := config.OpenStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := db.Close(closeCtx); err != nil {
			log.WithError(err).Warn("store close")
		}
	}()

	rdb, err := config.ConnectRedis(cfg.RedisAddress, cfg.RedisPassword)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, issue rate limiting disabled")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	rules := services.DefaultRules()
	accounts := services.NewAccounts(db, log.WithField("component", "accounts"))
	categories := services.NewCategories(db)
	if err := categories.Seed(ctx, models.DefaultCategories); err != nil {
		log.WithError(err).Fatal("failed to seed categories")
	}
	ledger := services.NewLedger(db, rules, log.WithField("component", "ledger"))
	images := storage.NewLocalImageStore(cfg.UploadDir, "/uploads")
	issues := services.NewIssueService(db, categories, ledger, images, rules, log.WithField("component", "issues"))

	ctl := &controllers.Controller{
		Accounts:   accounts,
		Categories: categories,
		Issues:     issues,
		Ledger:     ledger,
		Auth: controllers.AuthConfig{
			Secret:     cfg.JWTSecret,
			TokenTTL:   cfg.TokenTTL,
			Domain:     cfg.Domain,
			Production: cfg.IsProduction(),
		},
		Log: log.WithField("component", "http"),
	}

	r := routes.NewRouter(ctl, routes.Options{
		JWTSecret:        cfg.JWTSecret,
		CORSOrigin:       cfg.CORSOrigin,
		UploadDir:        cfg.UploadDir,
		Redis:            rdb,
		IssueLimitPrefix: cfg.IssueLimitPrefix,
		IssueDailyLimit:  cfg.IssueDailyLimit,
		Log:              log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown")
	case err := <-errCh:
		log.WithError(err).Error("server failed")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
}
